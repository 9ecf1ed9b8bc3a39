package state_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/ardanlabs/ledger/foundation/blockchain/genesis"
	"github.com/ardanlabs/ledger/foundation/blockchain/keystore"
	"github.com/ardanlabs/ledger/foundation/blockchain/state"
	"github.com/ardanlabs/ledger/foundation/blockchain/storage/memory"
	"github.com/ardanlabs/ledger/foundation/blockchain/storage/sqlite"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func ifErrFailNow(t *testing.T, err error) {
	if err != nil {
		t.Error(err)
		t.FailNow()
	}
}

func newState(t *testing.T, storage database.Storage, index *sqlite.Store) *state.State {
	t.Helper()

	ev := func(v string, args ...any) {
		t.Log(fmt.Sprintf(v, args...))
	}

	st, err := state.New(state.Config{
		Storage:  storage,
		Index:    index,
		KeyStore: keystore.New(),
		Genesis: genesis.Genesis{
			Difficulty: 2,
			Balances:   map[string]int64{"alice": 100, "bob": 100},
		},
		BackupDir: filepath.Join(t.TempDir(), "backups"),
		EvHandler: ev,
	})
	ifErrFailNow(t, err)

	return st
}

func Test_Ledger(t *testing.T) {
	storage := memory.New()

	index, err := sqlite.Open(filepath.Join(t.TempDir(), "blockchain.db"))
	ifErrFailNow(t, err)
	defer index.Close()

	st := newState(t, storage, index)
	ctx := context.Background()

	t.Log("Given the need to run the ledger.")
	{
		t.Logf("\tTest 0:\tWhen starting with no chain.")
		{
			if st.Length() != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould mine the genesis block, got %d blocks", failed, st.Length())
			}
			t.Logf("\t%s\tTest 0:\tShould mine the genesis block.", success)

			if !st.Balances().Equal(database.Balances{"alice": 100, "bob": 100}) {
				t.Fatalf("\t%s\tTest 0:\tShould fund the genesis accounts, got %v", failed, st.Balances())
			}
			t.Logf("\t%s\tTest 0:\tShould fund the genesis accounts.", success)

			if users := st.Users(); len(users) != 2 {
				t.Fatalf("\t%s\tTest 0:\tShould register the genesis accounts, got %d", failed, len(users))
			}
			t.Logf("\t%s\tTest 0:\tShould register the genesis accounts.", success)
		}

		t.Logf("\tTest 1:\tWhen submitting transfers.")
		{
			if _, err := st.SubmitTransfer("alice", "bob", 10); err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould accept a valid transfer: %v", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould accept a valid transfer.", success)

			if _, err := st.SubmitTransfer("alice", "carol", 10); !errors.Is(err, state.ErrUnknownUser) {
				t.Fatalf("\t%s\tTest 1:\tShould reject an unknown user: %v", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould reject an unknown user.", success)

			if _, err := st.SubmitTransfer("alice", "bob", 0); !errors.Is(err, state.ErrInvalidTransfer) {
				t.Fatalf("\t%s\tTest 1:\tShould reject a zero amount: %v", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould reject a zero amount.", success)

			if _, err := st.SubmitTransfer("alice", "bob", 101); !errors.Is(err, database.ErrInvalidTransaction) {
				t.Fatalf("\t%s\tTest 1:\tShould reject an overdraft: %v", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould reject an overdraft.", success)

			if st.PendingCount() != 1 {
				t.Fatalf("\t%s\tTest 1:\tShould have 1 pending transaction, got %d", failed, st.PendingCount())
			}
			t.Logf("\t%s\tTest 1:\tShould have 1 pending transaction.", success)
		}

		t.Logf("\tTest 2:\tWhen mining the pending transactions.")
		{
			res, err := st.MineNewBlock(ctx)
			if err != nil {
				t.Fatalf("\t%s\tTest 2:\tShould be able to mine: %v", failed, err)
			}
			t.Logf("\t%s\tTest 2:\tShould be able to mine.", success)

			if res.Mined != 1 || res.Remaining != 0 || res.Block.Content.Index != 1 {
				t.Fatalf("\t%s\tTest 2:\tShould mine block 1 with 1 transaction, got %+v", failed, res)
			}
			t.Logf("\t%s\tTest 2:\tShould mine block 1 with 1 transaction.", success)

			if !st.Balances().Equal(database.Balances{"alice": 90, "bob": 110}) {
				t.Fatalf("\t%s\tTest 2:\tShould move the funds, got %v", failed, st.Balances())
			}
			t.Logf("\t%s\tTest 2:\tShould move the funds.", success)

			if _, err := st.MineNewBlock(ctx); !errors.Is(err, state.ErrNoTransactions) {
				t.Fatalf("\t%s\tTest 2:\tShould not mine an empty block: %v", failed, err)
			}
			t.Logf("\t%s\tTest 2:\tShould not mine an empty block.", success)
		}

		t.Logf("\tTest 3:\tWhen pending transactions spend the same funds.")
		{
			secret, err := st.KeyStore().Secret("alice")
			ifErrFailNow(t, err)

			tr, err := database.NewTransfer("alice", "bob", 90)
			ifErrFailNow(t, err)

			for i, timeStamp := range []string{"2026-01-01T00:00:00.000001", "2026-01-01T00:00:00.000002"} {
				tx, err := database.NewSignedTx(tr, secret, timeStamp)
				ifErrFailNow(t, err)

				if err := st.SubmitSignedTx(tx); err != nil {
					t.Fatalf("\t%s\tTest 3:\tShould accept transfer %d: %v", failed, i, err)
				}
			}

			res, err := st.MineNewBlock(ctx)
			if err != nil {
				t.Fatalf("\t%s\tTest 3:\tShould be able to mine: %v", failed, err)
			}
			if res.Mined != 1 || res.Rejected != 1 || res.Remaining != 1 {
				t.Fatalf("\t%s\tTest 3:\tShould mine 1 and leave 1 pending, got %+v", failed, res)
			}
			t.Logf("\t%s\tTest 3:\tShould mine 1 and leave 1 pending.", success)

			if _, err := st.MineNewBlock(ctx); !errors.Is(err, state.ErrNoValidTransactions) {
				t.Fatalf("\t%s\tTest 3:\tShould find no valid transactions: %v", failed, err)
			}
			t.Logf("\t%s\tTest 3:\tShould find no valid transactions.", success)

			final, err := st.ValidateChain()
			if err != nil || !final.Equal(database.Balances{"alice": 0, "bob": 200}) {
				t.Fatalf("\t%s\tTest 3:\tShould validate the chain, got %v: %v", failed, final, err)
			}
			t.Logf("\t%s\tTest 3:\tShould validate the chain.", success)

			if final.Sum() != 200 {
				t.Fatalf("\t%s\tTest 3:\tShould conserve the total, got %d", failed, final.Sum())
			}
			t.Logf("\t%s\tTest 3:\tShould conserve the total.", success)
		}

		t.Logf("\tTest 4:\tWhen querying the index.")
		{
			stats, err := st.Stats()
			if err != nil || stats.BlockCount != 3 || stats.TransactionCount != 3 || stats.TotalVolume != 100 {
				t.Fatalf("\t%s\tTest 4:\tShould get the stats, got %+v: %v", failed, stats, err)
			}
			t.Logf("\t%s\tTest 4:\tShould get the stats.", success)

			hist, err := st.History("alice", 10)
			if err != nil || len(hist) != 2 || hist[0].Amount != 90 {
				t.Fatalf("\t%s\tTest 4:\tShould get alice's history, got %+v: %v", failed, hist, err)
			}
			t.Logf("\t%s\tTest 4:\tShould get alice's history.", success)
		}

		t.Logf("\tTest 5:\tWhen creating users.")
		{
			usr, err := st.CreateUser("carol")
			if err != nil || usr.Balance != 0 || usr.PublicKey == "" {
				t.Fatalf("\t%s\tTest 5:\tShould create carol, got %+v: %v", failed, usr, err)
			}
			t.Logf("\t%s\tTest 5:\tShould create carol.", success)

			if _, err := st.CreateUser("carol"); !errors.Is(err, state.ErrUserExists) {
				t.Fatalf("\t%s\tTest 5:\tShould not create carol twice: %v", failed, err)
			}
			t.Logf("\t%s\tTest 5:\tShould not create carol twice.", success)
		}

		t.Logf("\tTest 6:\tWhen restarting from storage.")
		{
			restarted := newState(t, storage, index)

			if restarted.Length() != 3 {
				t.Fatalf("\t%s\tTest 6:\tShould load the chain, got %d blocks", failed, restarted.Length())
			}
			t.Logf("\t%s\tTest 6:\tShould load the chain.", success)

			if !restarted.Balances().Equal(st.Balances()) {
				t.Fatalf("\t%s\tTest 6:\tShould derive the same balances, got %v", failed, restarted.Balances())
			}
			t.Logf("\t%s\tTest 6:\tShould derive the same balances.", success)

			if restarted.PendingCount() != 1 {
				t.Fatalf("\t%s\tTest 6:\tShould load the pending transaction, got %d", failed, restarted.PendingCount())
			}
			t.Logf("\t%s\tTest 6:\tShould load the pending transaction.", success)

			if _, err := restarted.SubmitTransfer("bob", "carol", 5); err != nil {
				t.Fatalf("\t%s\tTest 6:\tShould know the users from the index: %v", failed, err)
			}
			t.Logf("\t%s\tTest 6:\tShould know the users from the index.", success)
		}
	}
}

func Test_MiningCancelled(t *testing.T) {
	st := newState(t, memory.New(), nil)

	t.Log("Given the need to cancel mining.")
	{
		t.Logf("\tTest 0:\tWhen the context is already cancelled.")
		{
			if _, err := st.SubmitTransfer("alice", "bob", 1); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould accept the transfer: %v", failed, err)
			}

			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			if _, err := st.MineNewBlock(ctx); !errors.Is(err, context.Canceled) {
				t.Fatalf("\t%s\tTest 0:\tShould stop mining: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould stop mining.", success)

			if st.Length() != 1 || st.PendingCount() != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould leave the chain and the pool alone.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould leave the chain and the pool alone.", success)

			if _, err := st.Stats(); !errors.Is(err, state.ErrIndexDisabled) {
				t.Fatalf("\t%s\tTest 0:\tShould report the index is disabled: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould report the index is disabled.", success)
		}
	}
}

func Test_UserIndexFailure(t *testing.T) {
	storage := memory.New()
	dbFile := filepath.Join(t.TempDir(), "blockchain.db")

	index, err := sqlite.Open(dbFile)
	ifErrFailNow(t, err)
	defer index.Close()

	st := newState(t, storage, index)

	conn, err := sql.Open("sqlite", "file:"+dbFile)
	ifErrFailNow(t, err)
	defer conn.Close()

	t.Log("Given the need to keep the index and the key store in step.")
	{
		t.Logf("\tTest 0:\tWhen the index refuses to save a user.")
		{
			const q = `CREATE TRIGGER reject_users BEFORE INSERT ON users BEGIN SELECT RAISE(ABORT, 'users are read only'); END`
			if _, err := conn.Exec(q); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to add the trigger: %v", failed, err)
			}

			if _, err := st.CreateUser("carol"); err == nil {
				t.Fatalf("\t%s\tTest 0:\tShould fail to create carol.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould fail to create carol.", success)

			if _, err := st.CreateUser("carol"); err == nil || errors.Is(err, state.ErrUserExists) {
				t.Fatalf("\t%s\tTest 0:\tShould not report carol as existing: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould not report carol as existing.", success)

			for _, usr := range st.Users() {
				if usr.Name == "carol" {
					t.Fatalf("\t%s\tTest 0:\tShould not list carol.", failed)
				}
			}
			t.Logf("\t%s\tTest 0:\tShould not list carol.", success)

			if _, err := st.KeyStore().Secret("carol"); !errors.Is(err, keystore.ErrNotFound) {
				t.Fatalf("\t%s\tTest 0:\tShould not hold a secret for carol: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould not hold a secret for carol.", success)

			if _, err := st.SubmitTransfer("alice", "carol", 5); !errors.Is(err, state.ErrUnknownUser) {
				t.Fatalf("\t%s\tTest 0:\tShould not accept transfers to carol: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould not accept transfers to carol.", success)
		}

		t.Logf("\tTest 1:\tWhen the index accepts users again.")
		{
			if _, err := conn.Exec(`DROP TRIGGER reject_users`); err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to drop the trigger: %v", failed, err)
			}

			if _, err := st.CreateUser("carol"); err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to create carol: %v", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould be able to create carol.", success)

			restarted := newState(t, storage, index)
			if _, err := restarted.KeyStore().Secret("carol"); err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould load carol from the index: %v", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould load carol from the index.", success)
		}
	}
}

func Test_PendingWhileMining(t *testing.T) {
	storage := memory.New()
	st := newState(t, storage, nil)

	t.Log("Given the need to store pending transactions while mining.")
	{
		t.Logf("\tTest 0:\tWhen transfers arrive during mining.")
		{
			var wg sync.WaitGroup

			for i := 1; i <= 10; i++ {
				wg.Add(2)
				go func(amount int64) {
					defer wg.Done()
					if _, err := st.SubmitTransfer("alice", "bob", amount); err != nil {
						t.Errorf("\t%s\tTest 0:\tShould accept alice's transfer: %v", failed, err)
					}
				}(int64(i))
				go func(amount int64) {
					defer wg.Done()
					if _, err := st.SubmitTransfer("bob", "alice", amount); err != nil {
						t.Errorf("\t%s\tTest 0:\tShould accept bob's transfer: %v", failed, err)
					}
				}(int64(i))
			}

			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 5; i++ {
					_, err := st.MineNewBlock(context.Background())
					switch {
					case err == nil:
					case errors.Is(err, state.ErrNoTransactions), errors.Is(err, state.ErrNoValidTransactions):
					default:
						t.Errorf("\t%s\tTest 0:\tShould be able to mine: %v", failed, err)
					}
				}
			}()

			wg.Wait()

			mined := make(map[string]bool)
			var count int
			for _, block := range st.Blocks()[1:] {
				for _, tx := range block.Content.Transactions {
					hash, err := tx.Hash()
					ifErrFailNow(t, err)
					mined[hash] = true
					count++
				}
			}

			stored, err := storage.LoadPending()
			ifErrFailNow(t, err)

			for _, tx := range stored {
				hash, err := tx.Hash()
				ifErrFailNow(t, err)
				if mined[hash] {
					t.Fatalf("\t%s\tTest 0:\tShould not store a mined transaction as pending: %s", failed, tx)
				}
			}
			t.Logf("\t%s\tTest 0:\tShould not store a mined transaction as pending.", success)

			if len(stored) != st.PendingCount() {
				t.Fatalf("\t%s\tTest 0:\tShould store the whole pool, got %d of %d", failed, len(stored), st.PendingCount())
			}
			t.Logf("\t%s\tTest 0:\tShould store the whole pool.", success)

			if count+len(stored) != 20 {
				t.Fatalf("\t%s\tTest 0:\tShould account for every transfer, got %d mined and %d pending", failed, count, len(stored))
			}
			t.Logf("\t%s\tTest 0:\tShould account for every transfer.", success)

			if st.Balances().Sum() != 200 {
				t.Fatalf("\t%s\tTest 0:\tShould conserve the total, got %d", failed, st.Balances().Sum())
			}
			t.Logf("\t%s\tTest 0:\tShould conserve the total.", success)
		}
	}
}

func Test_MinedHandler(t *testing.T) {
	var mu sync.Mutex
	var events []string
	var results []state.MineResult

	st, err := state.New(state.Config{
		Storage:  memory.New(),
		KeyStore: keystore.New(),
		Genesis: genesis.Genesis{
			Difficulty: 1,
			Balances:   map[string]int64{"alice": 100, "bob": 100},
		},
		EvHandler: func(v string, args ...any) {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, fmt.Sprintf(v, args...))
		},
		MinedHandler: func(res state.MineResult) {
			mu.Lock()
			defer mu.Unlock()
			results = append(results, res)
		},
	})
	ifErrFailNow(t, err)

	t.Log("Given the need to report mined blocks.")
	{
		t.Logf("\tTest 0:\tWhen a block is mined.")
		{
			if _, err := st.SubmitTransfer("alice", "bob", 10); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould accept the transfer: %v", failed, err)
			}

			res, err := st.MineNewBlock(context.Background())
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to mine: %v", failed, err)
			}

			mu.Lock()
			defer mu.Unlock()

			if len(results) != 1 || results[0].Block.Hash != res.Block.Hash || results[0].Mined != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould call the handler once with the block, got %+v", failed, results)
			}
			t.Logf("\t%s\tTest 0:\tShould call the handler once with the block.", success)

			var signed bool
			for _, ev := range events {
				if strings.Contains(ev, "signer[alice]") {
					signed = true
				}
			}
			if !signed {
				t.Fatalf("\t%s\tTest 0:\tShould name alice as the signer.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould name alice as the signer.", success)
		}
	}
}
