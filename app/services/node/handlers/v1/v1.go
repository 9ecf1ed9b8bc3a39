// Package v1 contains the full set of handler functions and routes
// supported by the v1 web api.
package v1

import (
	"net/http"

	"github.com/ardanlabs/ledger/app/services/node/handlers/v1/public"
	"github.com/ardanlabs/ledger/foundation/blockchain/state"
	"github.com/ardanlabs/ledger/foundation/events"
	"github.com/ardanlabs/ledger/foundation/web"
	"go.uber.org/zap"
)

const version = "v1"

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Log   *zap.SugaredLogger
	State *state.State
	Evts  *events.Events
}

// PublicRoutes binds all the version 1 public routes.
func PublicRoutes(app *web.App, cfg Config) {
	pbl := public.Handlers{
		Log:   cfg.Log,
		State: cfg.State,
		Evts:  cfg.Evts,
	}

	app.Handle(http.MethodGet, version, "/events", pbl.Events)
	app.Handle(http.MethodGet, version, "/blockchain", pbl.Blockchain)
	app.Handle(http.MethodGet, version, "/blockchain/length", pbl.Length)
	app.Handle(http.MethodGet, version, "/blockchain/stats", pbl.Stats)
	app.Handle(http.MethodGet, version, "/block/:index", pbl.Block)
	app.Handle(http.MethodGet, version, "/balance/:user", pbl.Balance)
	app.Handle(http.MethodGet, version, "/state", pbl.Ledger)
	app.Handle(http.MethodGet, version, "/pending", pbl.Pending)
	app.Handle(http.MethodGet, version, "/users", pbl.Users)
	app.Handle(http.MethodPost, version, "/users", pbl.CreateUser)
	app.Handle(http.MethodGet, version, "/transactions", pbl.History)
	app.Handle(http.MethodGet, version, "/transactions/:user", pbl.History)
	app.Handle(http.MethodPost, version, "/transaction", pbl.SubmitTransfer)
	app.Handle(http.MethodPost, version, "/tx/submit", pbl.SubmitSignedTx)
	app.Handle(http.MethodPost, version, "/mine", pbl.Mine)
	app.Handle(http.MethodPost, version, "/validate", pbl.Validate)
	app.Handle(http.MethodPost, version, "/backup", pbl.Backup)
	app.Handle(http.MethodPost, version, "/save", pbl.Save)
}
