package database

import (
	"errors"
	"fmt"
	"math"

	"github.com/ardanlabs/ledger/foundation/blockchain/canonical"
	"github.com/ardanlabs/ledger/foundation/blockchain/signature"
)

// Transfer moves value between accounts. Each account maps to the delta
// applied to its balance and a valid transfer sums to zero.
type Transfer map[string]int64

// NewTransfer constructs a transfer of amount from one account to another.
func NewTransfer(from string, to string, amount int64) (Transfer, error) {
	if from == "" || to == "" {
		return nil, errors.New("transfer requires both accounts")
	}

	if from == to {
		return nil, fmt.Errorf("transfer to the same account, %s", from)
	}

	if amount <= 0 {
		return nil, fmt.Errorf("amount must be positive, got %d", amount)
	}

	tr := Transfer{
		from: -amount,
		to:   amount,
	}

	return tr, nil
}

// Sum returns the sum of all deltas. The bool is false if the sum
// overflows.
func (tr Transfer) Sum() (int64, bool) {
	var sum int64
	for _, delta := range tr {
		next, ok := add(sum, delta)
		if !ok {
			return 0, false
		}
		sum = next
	}
	return sum, true
}

// Message returns the canonical encoding of the transfer. This is the
// message that gets signed.
func (tr Transfer) Message() (string, error) {
	data, err := canonical.Marshal(tr)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// copy returns an independent copy of the transfer.
func (tr Transfer) copy() Transfer {
	if tr == nil {
		return nil
	}

	cpy := make(Transfer, len(tr))
	for account, delta := range tr {
		cpy[account] = delta
	}
	return cpy
}

// =============================================================================

// SignedTx is a transfer with the credential and signature authorizing it.
// The genesis transaction carries no credential or signature. The field
// names are part of the block hash and can't change.
type SignedTx struct {
	Transfer  Transfer `json:"transaction"`
	PublicKey *string  `json:"publicKey"`
	Signature *string  `json:"signature"`
	TimeStamp string   `json:"timestamp,omitempty"`
}

// NewSignedTx signs the transfer with the specified secret.
func NewSignedTx(tr Transfer, secret string, timeStamp string) (SignedTx, error) {
	if tr == nil {
		return SignedTx{}, fmt.Errorf("%w: missing transfer", ErrMalformedInput)
	}

	message, err := tr.Message()
	if err != nil {
		return SignedTx{}, err
	}

	publicKey := signature.PublicKey(secret)
	sig := signature.Sign(message, secret)

	tx := SignedTx{
		Transfer:  tr.copy(),
		PublicKey: &publicKey,
		Signature: &sig,
		TimeStamp: timeStamp,
	}

	return tx, nil
}

// Hash returns the canonical hash of the signed transaction.
func (tx SignedTx) Hash() (string, error) {
	return canonical.Hash(tx)
}

// SignatureString returns the signature or an empty string.
func (tx SignedTx) SignatureString() string {
	if tx.Signature == nil {
		return ""
	}
	return *tx.Signature
}

// PublicKeyString returns the public credential or an empty string.
func (tx SignedTx) PublicKeyString() string {
	if tx.PublicKey == nil {
		return ""
	}
	return *tx.PublicKey
}

// String implements the fmt.Stringer interface for logging.
func (tx SignedTx) String() string {
	message, err := tx.Transfer.Message()
	if err != nil {
		message = "unknown"
	}

	sig := tx.SignatureString()
	if len(sig) > 8 {
		sig = sig[:8]
	}

	return fmt.Sprintf("%s:%s", message, sig)
}

// clone returns a copy of the transaction that shares no memory with tx.
func (tx SignedTx) clone() SignedTx {
	cpy := SignedTx{
		Transfer:  tx.Transfer.copy(),
		TimeStamp: tx.TimeStamp,
	}
	if tx.PublicKey != nil {
		pk := *tx.PublicKey
		cpy.PublicKey = &pk
	}
	if tx.Signature != nil {
		sig := *tx.Signature
		cpy.Signature = &sig
	}
	return cpy
}

// =============================================================================

// ValidateTx checks the signed transaction can be applied to the specified
// state. The checks run in order and stop at the first failure: the deltas
// must sum to zero, no account may go negative and the signature must verify
// against the keys. The state is not modified.
func ValidateTx(state Balances, tx SignedTx, keys signature.SecretLookup) error {
	if tx.Transfer == nil {
		return fmt.Errorf("%w: transaction is missing the transfer", ErrMalformedInput)
	}

	sum, ok := tx.Transfer.Sum()
	if !ok {
		return fmt.Errorf("%w: deltas overflow", ErrInvalidTransaction)
	}
	if sum != 0 {
		return fmt.Errorf("%w: deltas sum to %d, exp 0", ErrInvalidTransaction, sum)
	}

	for account, delta := range tx.Transfer {
		balance, ok := add(state.Balance(account), delta)
		if !ok || balance < 0 {
			return fmt.Errorf("%w: insufficient funds, account %s, bal %d, delta %d", ErrInvalidTransaction, account, state.Balance(account), delta)
		}
	}

	if tx.PublicKey == nil || tx.Signature == nil {
		return fmt.Errorf("%w: missing signature", ErrInvalidTransaction)
	}

	message, err := tx.Transfer.Message()
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidTransaction, err)
	}

	if !signature.Verify(message, *tx.Signature, *tx.PublicKey, keys) {
		return fmt.Errorf("%w: signature does not verify", ErrInvalidTransaction)
	}

	return nil
}

// IsValidTx reports whether the signed transaction can be applied to the
// specified state.
func IsValidTx(state Balances, tx SignedTx, keys signature.SecretLookup) bool {
	return ValidateTx(state, tx, keys) == nil
}

// =============================================================================

// add returns a+b and false if the addition overflows.
func add(a, b int64) (int64, bool) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, false
	}
	return a + b, true
}
