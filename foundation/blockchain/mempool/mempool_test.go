package mempool_test

import (
	"testing"

	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/ardanlabs/ledger/foundation/blockchain/mempool"
	"github.com/ardanlabs/ledger/foundation/blockchain/signature"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

// keys is a key registry for testing mapping names to secrets.
type keys map[string]string

func (k keys) LookupSecret(publicKey string) (string, bool) {
	for _, secret := range k {
		if signature.PublicKey(secret) == publicKey {
			return secret, true
		}
	}
	return "", false
}

var registry = keys{
	"alice": "alice_private",
	"bob":   "bob_private",
}

func sign(t *testing.T, from string, to string, amount int64, timeStamp string) database.SignedTx {
	t.Helper()

	tr, err := database.NewTransfer(from, to, amount)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to build the transfer: %v", failed, err)
	}

	tx, err := database.NewSignedTx(tr, registry[from], timeStamp)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to sign the transfer: %v", failed, err)
	}

	return tx
}

func TestCRUD(t *testing.T) {
	t.Log("Given the need to validate mempool api.")
	{
		t.Logf("\tTest 0:\tWhen handling a set of transactions.")
		{
			mp := mempool.New()

			txs := []database.SignedTx{
				sign(t, "alice", "bob", 10, "t1"),
				sign(t, "bob", "alice", 5, "t2"),
				sign(t, "alice", "bob", 10, "t3"),
			}

			for _, tx := range txs {
				if _, err := mp.Upsert(tx); err != nil {
					t.Fatalf("\t%s\tTest 0:\tShould be able to add new transaction: %v", failed, err)
				}
			}
			t.Logf("\t%s\tTest 0:\tShould be able to add new transactions.", success)

			if n, _ := mp.Upsert(txs[1]); n != 3 {
				t.Fatalf("\t%s\tTest 0:\tShould not add the same transaction twice, got %d", failed, n)
			}
			t.Logf("\t%s\tTest 0:\tShould not add the same transaction twice.", success)

			for i, tx := range mp.Copy() {
				if tx.TimeStamp != txs[i].TimeStamp {
					t.Fatalf("\t%s\tTest 0:\tShould keep arrival order, got %s exp %s", failed, tx.TimeStamp, txs[i].TimeStamp)
				}
			}
			t.Logf("\t%s\tTest 0:\tShould keep arrival order.", success)

			if err := mp.Delete(txs[1]); err != nil || mp.Count() != 2 {
				t.Fatalf("\t%s\tTest 0:\tShould be able to remove a transaction: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to remove a transaction.", success)

			if cpy := mp.Copy(); cpy[0].TimeStamp != "t1" || cpy[1].TimeStamp != "t3" {
				t.Fatalf("\t%s\tTest 0:\tShould keep the order of the rest.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould keep the order of the rest.", success)
		}
	}
}

func TestPickValid(t *testing.T) {
	t.Log("Given the need to pick transactions for the next block.")
	{
		t.Logf("\tTest 0:\tWhen the second spend overdraws the account.")
		{
			mp := mempool.New()
			mp.Upsert(sign(t, "alice", "bob", 60, "t1"))
			mp.Upsert(sign(t, "alice", "bob", 60, "t2"))
			mp.Upsert(sign(t, "bob", "alice", 10, "t3"))

			state := database.Balances{"alice": 100, "bob": 0}

			picked, rejected := mp.PickValid(state, registry, -1)
			if len(picked) != 2 || rejected != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould pick 2 and reject 1, got %d and %d", failed, len(picked), rejected)
			}
			t.Logf("\t%s\tTest 0:\tShould pick 2 and reject 1.", success)

			if picked[0].TimeStamp != "t1" || picked[1].TimeStamp != "t3" {
				t.Fatalf("\t%s\tTest 0:\tShould pick in arrival order.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould pick in arrival order.", success)

			if !state.Equal(database.Balances{"alice": 100}) {
				t.Fatalf("\t%s\tTest 0:\tShould not modify the state, got %v", failed, state)
			}
			t.Logf("\t%s\tTest 0:\tShould not modify the state.", success)

			if mp.Count() != 3 {
				t.Fatalf("\t%s\tTest 0:\tShould leave every transaction pending.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould leave every transaction pending.", success)
		}

		t.Logf("\tTest 1:\tWhen limiting the number of transactions.")
		{
			mp := mempool.New()
			mp.Upsert(sign(t, "alice", "bob", 1, "t1"))
			mp.Upsert(sign(t, "alice", "bob", 1, "t2"))

			picked, _ := mp.PickValid(database.Balances{"alice": 100}, registry, 1)
			if len(picked) != 1 {
				t.Fatalf("\t%s\tTest 1:\tShould pick 1 transaction, got %d", failed, len(picked))
			}
			t.Logf("\t%s\tTest 1:\tShould pick 1 transaction.", success)
		}
	}
}
