// Package mempool maintains the mempool for the blockchain.
package mempool

import (
	"sync"

	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/ardanlabs/ledger/foundation/blockchain/signature"
)

// Mempool represents a cache of pending transactions organized by the hash
// of the signed transaction. Transactions are kept in arrival order.
type Mempool struct {
	mu    sync.RWMutex
	pool  map[string]database.SignedTx
	order []string
}

// New constructs a new mempool.
func New() *Mempool {
	return &Mempool{
		pool: make(map[string]database.SignedTx),
	}
}

// Count returns the current number of transaction in the pool.
func (mp *Mempool) Count() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return len(mp.pool)
}

// Upsert adds or replaces a transaction in the mempool. A replaced
// transaction keeps its place in line.
func (mp *Mempool) Upsert(tx database.SignedTx) (int, error) {
	key, err := tx.Hash()
	if err != nil {
		return 0, err
	}

	mp.mu.Lock()
	defer mp.mu.Unlock()

	if _, exists := mp.pool[key]; !exists {
		mp.order = append(mp.order, key)
	}
	mp.pool[key] = tx

	return len(mp.pool), nil
}

// Delete removes a transaction from the mempool.
func (mp *Mempool) Delete(tx database.SignedTx) error {
	key, err := tx.Hash()
	if err != nil {
		return err
	}

	mp.mu.Lock()
	defer mp.mu.Unlock()

	if _, exists := mp.pool[key]; !exists {
		return nil
	}

	delete(mp.pool, key)
	for i, k := range mp.order {
		if k == key {
			mp.order = append(mp.order[:i], mp.order[i+1:]...)
			break
		}
	}

	return nil
}

// Copy returns the pending transactions in arrival order.
func (mp *Mempool) Copy() []database.SignedTx {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	cpy := make([]database.SignedTx, 0, len(mp.order))
	for _, key := range mp.order {
		cpy = append(cpy, mp.pool[key])
	}
	return cpy
}

// PickValid screens the pending transactions in arrival order against a
// trial copy of the state and returns the ones that can be mined together,
// up to howMany. Pass -1 for no limit. Each accepted transaction is applied
// to the trial state before the next one is checked, so later transactions
// see the effect of earlier ones. Rejected transactions stay in the pool.
func (mp *Mempool) PickValid(state database.Balances, keys signature.SecretLookup, howMany int) (picked []database.SignedTx, rejected int) {
	trial := state.Copy()

	for _, tx := range mp.Copy() {
		if howMany >= 0 && len(picked) == howMany {
			break
		}

		if !database.IsValidTx(trial, tx, keys) {
			rejected++
			continue
		}

		trial = trial.Apply(tx.Transfer)
		picked = append(picked, tx)
	}

	return picked, rejected
}
