package state

import (
	"errors"
	"fmt"
	"time"

	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/ardanlabs/ledger/foundation/blockchain/keystore"
)

// SubmitTransfer signs a transfer of amount from one registered user to
// another on behalf of the sender and adds it to the pending pool.
func (s *State) SubmitTransfer(from string, to string, amount int64) (database.SignedTx, error) {
	for _, name := range []string{from, to} {
		if _, err := s.keys.Secret(name); err != nil {
			if errors.Is(err, keystore.ErrNotFound) {
				return database.SignedTx{}, fmt.Errorf("%w: %s", ErrUnknownUser, name)
			}
			return database.SignedTx{}, err
		}
	}

	tr, err := database.NewTransfer(from, to, amount)
	if err != nil {
		return database.SignedTx{}, fmt.Errorf("%w: %s", ErrInvalidTransfer, err)
	}

	secret, err := s.keys.Secret(from)
	if err != nil {
		return database.SignedTx{}, err
	}

	tx, err := database.NewSignedTx(tr, secret, time.Now().Format(TimeFormat))
	if err != nil {
		return database.SignedTx{}, err
	}

	if err := s.SubmitSignedTx(tx); err != nil {
		return database.SignedTx{}, err
	}

	return tx, nil
}

// SubmitSignedTx accepts a transaction signed by a client. The transaction
// must be valid against the current state to be added to the pending pool.
func (s *State) SubmitSignedTx(tx database.SignedTx) error {
	if err := database.ValidateTx(s.db.Balances(), tx, s.keys); err != nil {
		return err
	}

	n, err := s.mempool.Upsert(tx)
	if err != nil {
		return err
	}

	signer := "unknown"
	if tx.PublicKey != nil {
		if name, ok := s.keys.Lookup(*tx.PublicKey); ok {
			signer = name
		}
	}

	s.evHandler("state: SubmitSignedTx: tx[%s]: signer[%s]: pending[%d]", tx, signer, n)
	s.evHandler("viewer: tx[%s]: pending[%d]", tx, n)

	if err := s.savePending(); err != nil {
		s.evHandler("state: SubmitSignedTx: save pending: WARNING: %s", err)
	}

	s.signalStartMining()

	return nil
}
