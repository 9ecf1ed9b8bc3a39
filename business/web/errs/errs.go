// Package errs provides types and support related to web v1 functionality.
package errs

import (
	"errors"
	"net/http"

	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/ardanlabs/ledger/foundation/blockchain/keystore"
	"github.com/ardanlabs/ledger/foundation/blockchain/state"
)

// Response is the form used for API responses from failures in the API.
type Response struct {
	Error  string            `json:"error"`
	Kind   string            `json:"kind,omitempty"`
	Block  *uint64           `json:"block,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

// Trusted is used to pass an error during the request through the
// application with web specific context.
type Trusted struct {
	Err    error
	Status int
}

// NewTrusted wraps a provided error with an HTTP status code. This
// function should be used when handlers encounter expected errors.
func NewTrusted(err error, status int) error {
	return &Trusted{err, status}
}

// Error implements the error interface. It uses the default message of the
// wrapped error. This is what will be shown in the services' logs.
func (te *Trusted) Error() string {
	return te.Err.Error()
}

// Unwrap provides access to the wrapped error.
func (te *Trusted) Unwrap() error {
	return te.Err
}

// IsTrusted checks if an error of type Trusted exists.
func IsTrusted(err error) bool {
	var te *Trusted
	return errors.As(err, &te)
}

// GetTrusted returns a copy of the Trusted pointer.
func GetTrusted(err error) *Trusted {
	var te *Trusted
	if !errors.As(err, &te) {
		return nil
	}
	return te
}

// =============================================================================

// clientErrors are the ledger errors caused by the request, not the node.
var clientErrors = []error{
	database.ErrMalformedInput,
	database.ErrEmptyChain,
	database.ErrHashMismatch,
	database.ErrDifficultyNotMet,
	database.ErrIndexMismatch,
	database.ErrParentHashMismatch,
	database.ErrInvalidTransaction,
	state.ErrUnknownUser,
	state.ErrUserExists,
	state.ErrInvalidUser,
	state.ErrInvalidTransfer,
	state.ErrNoTransactions,
	state.ErrNoValidTransactions,
	keystore.ErrExists,
}

// notFoundErrors are the ledger errors for lookups that found nothing.
var notFoundErrors = []error{
	database.ErrBlockNotFound,
	keystore.ErrNotFound,
}

// FromLedger converts an error returned by the ledger into a trusted error
// when it is caused by the request. Other errors are returned as is.
func FromLedger(err error) error {
	for _, target := range notFoundErrors {
		if errors.Is(err, target) {
			return NewTrusted(err, http.StatusNotFound)
		}
	}

	for _, target := range clientErrors {
		if errors.Is(err, target) {
			return NewTrusted(err, http.StatusBadRequest)
		}
	}

	if errors.Is(err, state.ErrIndexDisabled) {
		return NewTrusted(err, http.StatusServiceUnavailable)
	}

	return err
}

// NewResponse constructs the response for a trusted error. Validation
// failures carry their kind and the index of the offending block.
func NewResponse(err error) Response {
	resp := Response{
		Error: err.Error(),
	}

	if kind := database.Kind(err); kind != nil {
		resp.Kind = kind.Error()
	}

	if be := database.GetBlockError(err); be != nil {
		index := be.Index
		resp.Block = &index
	}

	return resp
}
