// Package memory implements the ability to read and write the blockchain
// and its snapshots to memory.
package memory

import (
	"errors"
	"sync"

	"github.com/ardanlabs/ledger/foundation/blockchain/database"
)

// Memory represents the serialization implementation for reading and storing
// the blockchain in memory. This implements the database.Storage interface.
type Memory struct {
	mu      sync.RWMutex
	chain   []database.Block
	state   database.Balances
	pending []database.SignedTx
}

// New constructs an Memory value for use.
func New() *Memory {
	return &Memory{}
}

// Close in this implementation has nothing to do since everything
// is in memory.
func (m *Memory) Close() error {
	return nil
}

// SaveChain replaces the stored chain.
func (m *Memory) SaveChain(chain []database.Block) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.chain = append([]database.Block(nil), chain...)
	return nil
}

// LoadChain returns the stored chain.
func (m *Memory) LoadChain() ([]database.Block, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]database.Block(nil), m.chain...), nil
}

// SaveState replaces the stored ledger state snapshot.
func (m *Memory) SaveState(state database.Balances) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state = state.Copy()
	return nil
}

// LoadState returns the stored ledger state snapshot.
func (m *Memory) LoadState() (database.Balances, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.state == nil {
		return nil, nil
	}
	return m.state.Copy(), nil
}

// SavePending replaces the stored pending transactions.
func (m *Memory) SavePending(trans []database.SignedTx) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pending = append([]database.SignedTx(nil), trans...)
	return nil
}

// LoadPending returns the stored pending transactions.
func (m *Memory) LoadPending() ([]database.SignedTx, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]database.SignedTx(nil), m.pending...), nil
}

// Backup is not supported since nothing is ever written to disk.
func (m *Memory) Backup(dir string) ([]string, error) {
	return nil, errors.New("memory storage can't be backed up")
}
