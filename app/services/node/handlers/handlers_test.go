package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/ardanlabs/ledger/app/services/node/handlers"
	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/ardanlabs/ledger/foundation/blockchain/genesis"
	"github.com/ardanlabs/ledger/foundation/blockchain/keystore"
	"github.com/ardanlabs/ledger/foundation/blockchain/state"
	"github.com/ardanlabs/ledger/foundation/blockchain/storage/memory"
	"github.com/ardanlabs/ledger/foundation/blockchain/storage/sqlite"
	"github.com/ardanlabs/ledger/foundation/events"
	"go.uber.org/zap"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

// nodeTests holds methods for each node subtest. This type allows passing
// dependencies for tests while still providing a convenient syntax when
// subtests are registered.
type nodeTests struct {
	app   http.Handler
	state *state.State
}

func newNode(t *testing.T) nodeTests {
	t.Helper()

	index, err := sqlite.Open(filepath.Join(t.TempDir(), "blockchain.db"))
	if err != nil {
		t.Fatalf("\t%s\tShould be able to open the index: %v", failed, err)
	}

	st, err := state.New(state.Config{
		Storage:  memory.New(),
		Index:    index,
		KeyStore: keystore.New(),
		Genesis: genesis.Genesis{
			Difficulty: 1,
			Balances:   map[string]int64{"alice": 100, "bob": 100},
		},
		BackupDir: filepath.Join(t.TempDir(), "backups"),
	})
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct the state: %v", failed, err)
	}
	t.Cleanup(func() { st.Shutdown() })

	app := handlers.PublicMux(handlers.MuxConfig{
		Shutdown: make(chan os.Signal, 1),
		Log:      zap.NewNop().Sugar(),
		State:    st,
		Evts:     events.New(),
		Origins:  []string{"*"},
	})

	return nodeTests{
		app:   app,
		state: st,
	}
}

func (nt nodeTests) do(t *testing.T, method string, path string, body any, resp any) int {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("\t%s\tShould be able to encode the request: %v", failed, err)
		}
	}

	r := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	nt.app.ServeHTTP(w, r)

	if resp != nil {
		if err := json.NewDecoder(w.Body).Decode(resp); err != nil {
			t.Fatalf("\t%s\tShould be able to decode the response of %s %s: %v", failed, method, path, err)
		}
	}

	return w.Code
}

// =============================================================================

func TestNode(t *testing.T) {
	nt := newNode(t)

	t.Run("transfer", nt.transfer)
	t.Run("signed", nt.signed)
	t.Run("query", nt.query)
	t.Run("users", nt.users)
}

func (nt nodeTests) transfer(t *testing.T) {
	t.Log("Given the need to transfer and mine through the api.")
	{
		t.Logf("\tTest 0:\tWhen alice sends 10 to bob.")
		{
			var sub struct {
				Transaction database.SignedTx `json:"transaction"`
			}
			body := map[string]any{"sender": "alice", "receiver": "bob", "amount": 10}
			if code := nt.do(t, http.MethodPost, "/v1/transaction", body, &sub); code != http.StatusOK {
				t.Fatalf("\t%s\tTest 0:\tShould receive a status code of 200 for the response : %v", failed, code)
			}
			t.Logf("\t%s\tTest 0:\tShould receive a status code of 200 for the response.", success)

			if sub.Transaction.Transfer["alice"] != -10 || sub.Transaction.Signature == nil {
				t.Fatalf("\t%s\tTest 0:\tShould get back the signed transaction : %v", failed, sub.Transaction)
			}
			t.Logf("\t%s\tTest 0:\tShould get back the signed transaction.", success)

			var mined struct {
				Block database.Block `json:"block"`
				Mined int            `json:"transactions_mined"`
			}
			if code := nt.do(t, http.MethodPost, "/v1/mine", nil, &mined); code != http.StatusOK {
				t.Fatalf("\t%s\tTest 0:\tShould be able to mine : %v", failed, code)
			}
			if mined.Mined != 1 || mined.Block.Content.Index != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould mine block 1 with 1 transaction : %+v", failed, mined)
			}
			t.Logf("\t%s\tTest 0:\tShould mine block 1 with 1 transaction.", success)

			var er struct {
				Error string `json:"error"`
			}
			if code := nt.do(t, http.MethodPost, "/v1/mine", nil, &er); code != http.StatusBadRequest || er.Error == "" {
				t.Fatalf("\t%s\tTest 0:\tShould not mine without pending transactions : %v", failed, code)
			}
			t.Logf("\t%s\tTest 0:\tShould not mine without pending transactions.", success)
		}

		t.Logf("\tTest 1:\tWhen the transfer is not acceptable.")
		{
			var er struct {
				Error  string            `json:"error"`
				Fields map[string]string `json:"fields"`
			}
			body := map[string]any{"sender": "alice", "receiver": "bob", "amount": 0}
			if code := nt.do(t, http.MethodPost, "/v1/transaction", body, &er); code != http.StatusBadRequest {
				t.Fatalf("\t%s\tTest 1:\tShould receive a status code of 400 for a zero amount : %v", failed, code)
			}
			if _, exists := er.Fields["amount"]; !exists {
				t.Fatalf("\t%s\tTest 1:\tShould report the amount field : %v", failed, er.Fields)
			}
			t.Logf("\t%s\tTest 1:\tShould receive a status code of 400 for a zero amount.", success)

			body = map[string]any{"sender": "mallory", "receiver": "bob", "amount": 5}
			if code := nt.do(t, http.MethodPost, "/v1/transaction", body, nil); code != http.StatusBadRequest {
				t.Fatalf("\t%s\tTest 1:\tShould receive a status code of 400 for an unknown sender : %v", failed, code)
			}
			t.Logf("\t%s\tTest 1:\tShould receive a status code of 400 for an unknown sender.", success)

			body = map[string]any{"sender": "bob", "receiver": "alice", "amount": 1000}
			if code := nt.do(t, http.MethodPost, "/v1/transaction", body, nil); code != http.StatusBadRequest {
				t.Fatalf("\t%s\tTest 1:\tShould receive a status code of 400 for an overdraft : %v", failed, code)
			}
			t.Logf("\t%s\tTest 1:\tShould receive a status code of 400 for an overdraft.", success)
		}
	}
}

func (nt nodeTests) signed(t *testing.T) {
	t.Log("Given the need to submit transactions signed by a wallet.")
	{
		t.Logf("\tTest 0:\tWhen bob signs a transfer of 5 to alice.")
		{
			secret, err := nt.state.KeyStore().Secret("bob")
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould know the secret of bob : %v", failed, err)
			}

			tr, _ := database.NewTransfer("bob", "alice", 5)
			tx, err := database.NewSignedTx(tr, secret, "2024-01-01T00:00:00.000000")
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to sign : %v", failed, err)
			}

			if code := nt.do(t, http.MethodPost, "/v1/tx/submit", tx, nil); code != http.StatusOK {
				t.Fatalf("\t%s\tTest 0:\tShould receive a status code of 200 for the response : %v", failed, code)
			}
			t.Logf("\t%s\tTest 0:\tShould receive a status code of 200 for the response.", success)

			var pending struct {
				Count int `json:"count"`
			}
			nt.do(t, http.MethodGet, "/v1/pending", nil, &pending)
			if pending.Count != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould have 1 pending transaction : %d", failed, pending.Count)
			}
			t.Logf("\t%s\tTest 0:\tShould have 1 pending transaction.", success)

			if code := nt.do(t, http.MethodPost, "/v1/mine", nil, nil); code != http.StatusOK {
				t.Fatalf("\t%s\tTest 0:\tShould be able to mine : %v", failed, code)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to mine.", success)
		}

		t.Logf("\tTest 1:\tWhen the signature is forged.")
		{
			tr, _ := database.NewTransfer("bob", "alice", 5)
			tx, _ := database.NewSignedTx(tr, "not-bobs-secret", "2024-01-01T00:00:01.000000")

			var er struct {
				Kind string `json:"kind"`
			}
			if code := nt.do(t, http.MethodPost, "/v1/tx/submit", tx, &er); code != http.StatusBadRequest {
				t.Fatalf("\t%s\tTest 1:\tShould receive a status code of 400 for the response : %v", failed, code)
			}
			if er.Kind != database.ErrInvalidTransaction.Error() {
				t.Fatalf("\t%s\tTest 1:\tShould report an invalid transaction : %q", failed, er.Kind)
			}
			t.Logf("\t%s\tTest 1:\tShould report an invalid transaction.", success)
		}
	}
}

func (nt nodeTests) query(t *testing.T) {
	t.Log("Given the need to query the ledger.")
	{
		t.Logf("\tTest 0:\tWhen three blocks are on the chain.")
		{
			var length struct {
				Length int `json:"length"`
			}
			nt.do(t, http.MethodGet, "/v1/blockchain/length", nil, &length)
			if length.Length != 3 {
				t.Fatalf("\t%s\tTest 0:\tShould have 3 blocks : %d", failed, length.Length)
			}
			t.Logf("\t%s\tTest 0:\tShould have 3 blocks.", success)

			var bal struct {
				Balance int64 `json:"balance"`
			}
			nt.do(t, http.MethodGet, "/v1/balance/alice", nil, &bal)
			if bal.Balance != 95 {
				t.Fatalf("\t%s\tTest 0:\tShould have alice at 95 : %d", failed, bal.Balance)
			}
			t.Logf("\t%s\tTest 0:\tShould have alice at 95.", success)

			var st struct {
				State database.Balances `json:"state"`
			}
			nt.do(t, http.MethodGet, "/v1/state", nil, &st)
			if !st.State.Equal(database.Balances{"alice": 95, "bob": 105}) {
				t.Fatalf("\t%s\tTest 0:\tShould conserve the total : %v", failed, st.State)
			}
			t.Logf("\t%s\tTest 0:\tShould conserve the total.", success)

			var blk struct {
				Block database.Block `json:"block"`
			}
			if code := nt.do(t, http.MethodGet, "/v1/block/0", nil, &blk); code != http.StatusOK || blk.Block.Content.ParentHash != nil {
				t.Fatalf("\t%s\tTest 0:\tShould get the genesis block : %v", failed, code)
			}
			t.Logf("\t%s\tTest 0:\tShould get the genesis block.", success)

			for _, path := range []string{"/v1/block/3", "/v1/block/-1", "/v1/block/abc"} {
				if code := nt.do(t, http.MethodGet, path, nil, nil); code != http.StatusNotFound {
					t.Fatalf("\t%s\tTest 0:\tShould receive a status code of 404 for %s : %v", failed, path, code)
				}
			}
			t.Logf("\t%s\tTest 0:\tShould receive a status code of 404 for blocks not on the chain.", success)

			var val struct {
				Valid      bool              `json:"valid"`
				FinalState database.Balances `json:"final_state"`
			}
			if code := nt.do(t, http.MethodPost, "/v1/validate", nil, &val); code != http.StatusOK || !val.Valid {
				t.Fatalf("\t%s\tTest 0:\tShould validate the chain : %v", failed, code)
			}
			if !val.FinalState.Equal(st.State) {
				t.Fatalf("\t%s\tTest 0:\tShould replay to the current state : %v", failed, val.FinalState)
			}
			t.Logf("\t%s\tTest 0:\tShould validate the chain.", success)

			var stats struct {
				BlockCount       int64 `json:"block_count"`
				TransactionCount int64 `json:"transaction_count"`
				TotalVolume      int64 `json:"total_volume"`
			}
			nt.do(t, http.MethodGet, "/v1/blockchain/stats", nil, &stats)
			if stats.BlockCount != 3 || stats.TransactionCount != 3 || stats.TotalVolume != 15 {
				t.Fatalf("\t%s\tTest 0:\tShould index every block : %+v", failed, stats)
			}
			t.Logf("\t%s\tTest 0:\tShould index every block.", success)

			var hist struct {
				Count int `json:"count"`
			}
			nt.do(t, http.MethodGet, "/v1/transactions?limit=2", nil, &hist)
			if hist.Count != 2 {
				t.Fatalf("\t%s\tTest 0:\tShould honor the limit : %d", failed, hist.Count)
			}
			t.Logf("\t%s\tTest 0:\tShould honor the limit.", success)

			if code := nt.do(t, http.MethodGet, "/v1/transactions?limit=x", nil, nil); code != http.StatusBadRequest {
				t.Fatalf("\t%s\tTest 0:\tShould reject a bad limit : %v", failed, code)
			}
			t.Logf("\t%s\tTest 0:\tShould reject a bad limit.", success)
		}
	}
}

func (nt nodeTests) users(t *testing.T) {
	t.Log("Given the need to register users.")
	{
		t.Logf("\tTest 0:\tWhen registering carol.")
		{
			var usr struct {
				Username  string `json:"username"`
				PublicKey string `json:"public_key"`
				Balance   int64  `json:"balance"`
			}
			body := map[string]string{"username": "carol"}
			if code := nt.do(t, http.MethodPost, "/v1/users", body, &usr); code != http.StatusOK {
				t.Fatalf("\t%s\tTest 0:\tShould receive a status code of 200 for the response : %v", failed, code)
			}
			if usr.Username != "carol" || usr.PublicKey == "" || usr.Balance != 0 {
				t.Fatalf("\t%s\tTest 0:\tShould get back the new user : %+v", failed, usr)
			}
			t.Logf("\t%s\tTest 0:\tShould get back the new user.", success)

			if code := nt.do(t, http.MethodPost, "/v1/users", body, nil); code != http.StatusBadRequest {
				t.Fatalf("\t%s\tTest 0:\tShould not register carol twice : %v", failed, code)
			}
			t.Logf("\t%s\tTest 0:\tShould not register carol twice.", success)

			var users struct {
				Users []struct {
					Username string `json:"username"`
				} `json:"users"`
			}
			nt.do(t, http.MethodGet, "/v1/users", nil, &users)
			if len(users.Users) != 3 {
				t.Fatalf("\t%s\tTest 0:\tShould list 3 users : %d", failed, len(users.Users))
			}
			t.Logf("\t%s\tTest 0:\tShould list 3 users.", success)
		}
	}
}
