package database

import (
	"errors"
	"fmt"
)

// Set of error kinds produced while validating transactions, blocks and
// chains. Every validation failure wraps exactly one of these so callers can
// match with errors.Is.
var (
	ErrMalformedInput     = errors.New("malformed input")
	ErrEmptyChain         = errors.New("blockchain is empty")
	ErrHashMismatch       = errors.New("block hash mismatch")
	ErrDifficultyNotMet   = errors.New("block hash does not meet difficulty")
	ErrIndexMismatch      = errors.New("block index mismatch")
	ErrParentHashMismatch = errors.New("block parent hash mismatch")
	ErrInvalidTransaction = errors.New("invalid transaction")
)

// kinds lists the error kinds in the order Kind checks them.
var kinds = []error{
	ErrMalformedInput,
	ErrEmptyChain,
	ErrHashMismatch,
	ErrDifficultyNotMet,
	ErrIndexMismatch,
	ErrParentHashMismatch,
	ErrInvalidTransaction,
}

// Kind returns the error kind wrapped by err or nil if err is not a
// validation failure.
func Kind(err error) error {
	for _, kind := range kinds {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// =============================================================================

// BlockError identifies the block a validation failure belongs to.
type BlockError struct {
	Index uint64
	Err   error
}

// Error implements the error interface.
func (be *BlockError) Error() string {
	return fmt.Sprintf("block %d is invalid: %s", be.Index, be.Err)
}

// Unwrap provides access to the underlying validation failure.
func (be *BlockError) Unwrap() error {
	return be.Err
}

// Kind returns the error kind of the underlying failure.
func (be *BlockError) Kind() error {
	return Kind(be.Err)
}

// GetBlockError returns a copy of the BlockError pointer.
func GetBlockError(err error) *BlockError {
	var be *BlockError
	if !errors.As(err, &be) {
		return nil
	}
	return be
}
