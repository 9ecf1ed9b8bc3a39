// Package public maintains the group of handlers for public access.
package public

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ardanlabs/ledger/business/sys/metrics"
	"github.com/ardanlabs/ledger/business/web/errs"
	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/ardanlabs/ledger/foundation/blockchain/state"
	"github.com/ardanlabs/ledger/foundation/events"
	"github.com/ardanlabs/ledger/foundation/validate"
	"github.com/ardanlabs/ledger/foundation/web"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// defaultLimit is the number of history rows returned when no limit is given.
const defaultLimit = 50

// Handlers manages the set of ledger endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
	WS    websocket.Upgrader
	Evts  *events.Events
}

// Events handles a web socket to provide events to a client.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	ch := h.Evts.Acquire(v.TraceID)
	defer h.Evts.Release(v.TraceID)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, wd := <-ch:
			if !wd {
				return nil
			}

			if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return err
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}

// =============================================================================

// Blockchain returns the full chain.
func (h Handlers) Blockchain(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	blocks := h.State.Blocks()

	resp := chain{
		Blockchain: blocks,
		Length:     len(blocks),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Length returns the number of blocks in the chain.
func (h Handlers) Length(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	resp := struct {
		Length int `json:"length"`
	}{
		Length: h.State.Length(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Stats returns the statistics kept by the index.
func (h Handlers) Stats(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	st, err := h.State.Stats()
	if err != nil {
		return errs.FromLedger(err)
	}

	resp := stats{
		BlockCount:          st.BlockCount,
		TransactionCount:    st.TransactionCount,
		TotalVolume:         st.TotalVolume,
		CurrentBlockHeight:  h.State.Length() - 1,
		PendingTransactions: h.State.PendingCount(),
		ActiveUsers:         len(h.State.Users()),
		Difficulty:          h.State.Difficulty(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Block returns the block at the specified index.
func (h Handlers) Block(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	index, err := strconv.ParseUint(web.Param(r, "index"), 10, 64)
	if err != nil {
		return errs.NewTrusted(fmt.Errorf("%w: invalid index %q", database.ErrBlockNotFound, web.Param(r, "index")), http.StatusNotFound)
	}

	block, err := h.State.BlockByIndex(index)
	if err != nil {
		return errs.FromLedger(err)
	}

	resp := struct {
		Block database.Block `json:"block"`
	}{
		Block: block,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Balance returns the balance of the specified user. Unknown users hold 0.
func (h Handlers) Balance(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	name := web.Param(r, "user")

	resp := struct {
		Username string `json:"username"`
		Balance  int64  `json:"balance"`
	}{
		Username: name,
		Balance:  h.State.Balance(name),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Ledger returns the balances produced by replaying the chain.
func (h Handlers) Ledger(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	resp := struct {
		State database.Balances `json:"state"`
	}{
		State: h.State.Balances(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Pending returns the transactions waiting to be mined.
func (h Handlers) Pending(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	trans := h.State.Pending()

	resp := pending{
		Transactions: trans,
		Count:        len(trans),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// =============================================================================

// Users returns the registered users and their balances.
func (h Handlers) Users(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	usrs := h.State.Users()

	users := make([]user, len(usrs))
	for i, usr := range usrs {
		users[i] = toUser(usr)
	}

	resp := struct {
		Users []user `json:"users"`
	}{
		Users: users,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// CreateUser registers a new user with a generated secret.
func (h Handlers) CreateUser(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var nu NewUser
	if err := web.Decode(r, &nu); err != nil {
		return errs.NewTrusted(fmt.Errorf("unable to decode payload: %w", err), http.StatusBadRequest)
	}

	if err := validate.Check(nu); err != nil {
		return err
	}

	usr, err := h.State.CreateUser(nu.Username)
	if err != nil {
		return errs.FromLedger(err)
	}

	resp := newUserResponse{
		Message: fmt.Sprintf("User %s created successfully", usr.Name),
		user:    toUser(usr),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// =============================================================================

// SubmitTransfer signs a transfer on behalf of the sender and adds it to
// the pending pool.
func (h Handlers) SubmitTransfer(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var nt NewTransfer
	if err := web.Decode(r, &nt); err != nil {
		return errs.NewTrusted(fmt.Errorf("unable to decode payload: %w", err), http.StatusBadRequest)
	}

	if err := validate.Check(nt); err != nil {
		return err
	}

	h.Log.Infow("add transfer", "traceid", v.TraceID, "sender", nt.Sender, "receiver", nt.Receiver, "amount", nt.Amount)

	tx, err := h.State.SubmitTransfer(nt.Sender, nt.Receiver, nt.Amount)
	metrics.RecordTransaction(err == nil)
	if err != nil {
		return errs.FromLedger(err)
	}

	resp := submitted{
		Message:     "Transaction created and added to pending pool",
		Transaction: tx,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// SubmitSignedTx adds a transaction signed by a wallet to the pending pool.
func (h Handlers) SubmitSignedTx(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var tx database.SignedTx
	if err := web.Decode(r, &tx); err != nil {
		return errs.NewTrusted(fmt.Errorf("unable to decode payload: %w", err), http.StatusBadRequest)
	}

	h.Log.Infow("add signed tx", "traceid", v.TraceID, "tx", tx)

	err = h.State.SubmitSignedTx(tx)
	metrics.RecordTransaction(err == nil)
	if err != nil {
		return errs.FromLedger(err)
	}

	resp := submitted{
		Message:     "Transaction added to pending pool",
		Transaction: tx,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Mine mines the valid pending transactions into a new block.
func (h Handlers) Mine(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	res, err := h.State.MineNewBlock(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return errs.NewTrusted(fmt.Errorf("mining cancelled: %w", err), http.StatusServiceUnavailable)
		}
		return errs.FromLedger(err)
	}

	resp := mined{
		Message:   fmt.Sprintf("Block mined successfully with %d transactions", res.Mined),
		Block:     res.Block,
		Mined:     res.Mined,
		Rejected:  res.Rejected,
		Remaining: res.Remaining,
		Duration:  res.Duration.String(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Validate replays the whole chain from genesis.
func (h Handlers) Validate(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	final, err := h.State.ValidateChain()
	metrics.RecordValidation(err == nil)

	if err != nil {
		er := errs.NewResponse(err)
		resp := validation{
			Valid: false,
			Error: er.Error,
			Kind:  er.Kind,
			Block: er.Block,
		}
		return web.Respond(ctx, w, resp, http.StatusBadRequest)
	}

	resp := validation{
		Valid:      true,
		Message:    "Blockchain is valid",
		FinalState: final,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// =============================================================================

// History returns the indexed transactions, newest first, optionally for
// a single user.
func (h Handlers) History(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	limit := defaultLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			return errs.NewTrusted(fmt.Errorf("invalid limit %q", l), http.StatusBadRequest)
		}
		limit = n
	}

	name := web.Param(r, "user")

	trans, err := h.State.History(name, limit)
	if err != nil {
		return errs.FromLedger(err)
	}

	resp := history{
		Username:     name,
		Transactions: toTxs(trans),
		Count:        len(trans),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Save writes everything to storage.
func (h Handlers) Save(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	if err := h.State.Save(); err != nil {
		return fmt.Errorf("save failed: %w", err)
	}

	resp := message{
		Message: "All data saved successfully",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Backup copies the stored files into the backup folder.
func (h Handlers) Backup(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	files, err := h.State.Backup()
	if err != nil {
		return fmt.Errorf("backup failed: %w", err)
	}

	resp := message{
		Message: "Backup created successfully",
		Files:   files,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}
