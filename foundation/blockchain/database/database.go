// Package database handles the blockchain data model and the rules for
// validating and sealing blocks. It maintains the chain and the ledger state
// derived from it, and reads/writes both through a Storage implementation.
package database

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ardanlabs/ledger/foundation/blockchain/signature"
)

// ErrBlockNotFound is returned when a block index is outside the chain.
var ErrBlockNotFound = errors.New("block index out of range")

// Database manages the chain and the ledger state derived from it. Chain
// appends and state updates are serialized so a failed validation never
// leaves a partial update behind.
type Database struct {
	mu sync.RWMutex

	difficulty uint
	keys       signature.SecretLookup
	evHandler  func(v string, args ...any)

	chain    []Block
	balances Balances

	storage Storage
}

// New constructs a database and reads the chain from storage. An existing
// chain is replayed from genesis to derive the ledger state, so a chain that
// fails validation can't be opened.
func New(storage Storage, difficulty uint, keys signature.SecretLookup, evHandler func(v string, args ...any)) (*Database, error) {
	ev := func(v string, args ...any) {
		if evHandler != nil {
			evHandler(v, args...)
		}
	}

	db := Database{
		difficulty: difficulty,
		keys:       keys,
		evHandler:  ev,
		balances:   make(Balances),
		storage:    storage,
	}

	chain, err := storage.LoadChain()
	if err != nil {
		return nil, fmt.Errorf("loading chain: %w", err)
	}

	if len(chain) == 0 {
		return &db, nil
	}

	balances, err := ValidateChain(chain, difficulty, keys, ev)
	if err != nil {
		return nil, fmt.Errorf("validating chain: %w", err)
	}

	db.chain = chain
	db.balances = balances

	return &db, nil
}

// Close closes the underlying storage.
func (db *Database) Close() error {
	return db.storage.Close()
}

// Difficulty returns the difficulty blocks are validated against.
func (db *Database) Difficulty() uint {
	return db.difficulty
}

// Empty reports whether the chain has no genesis block yet.
func (db *Database) Empty() bool {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return len(db.chain) == 0
}

// Length returns the number of blocks in the chain.
func (db *Database) Length() int {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return len(db.chain)
}

// AddGenesis starts the chain with the specified genesis block.
func (db *Database) AddGenesis(genesis Block) error {
	balances, err := GenesisState(genesis)
	if err != nil {
		return &BlockError{Index: genesis.Content.Index, Err: err}
	}

	if err := genesis.CheckHash(db.difficulty); err != nil {
		return &BlockError{Index: genesis.Content.Index, Err: err}
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if len(db.chain) != 0 {
		return errors.New("chain already has a genesis block")
	}

	db.chain = []Block{genesis}
	db.balances = balances

	return nil
}

// Append validates the block against the latest block and the current
// ledger state. If the block passes, it is added to the chain and the state
// advances. Otherwise nothing changes.
func (db *Database) Append(block Block) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if len(db.chain) == 0 {
		return errors.New("chain has no genesis block")
	}

	latest := db.chain[len(db.chain)-1]

	balances, err := block.ValidateBlock(latest, db.balances, db.difficulty, db.keys, db.evHandler)
	if err != nil {
		return err
	}

	db.chain = append(db.chain, block)
	db.balances = balances

	return nil
}

// LatestBlock returns the latest block.
func (db *Database) LatestBlock() Block {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if len(db.chain) == 0 {
		return Block{}
	}
	return db.chain[len(db.chain)-1]
}

// Block returns the block at the specified index.
func (db *Database) Block(index uint64) (Block, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if index >= uint64(len(db.chain)) {
		return Block{}, fmt.Errorf("%w: %d", ErrBlockNotFound, index)
	}
	return db.chain[index], nil
}

// Chain returns a copy of the chain.
func (db *Database) Chain() []Block {
	db.mu.RLock()
	defer db.mu.RUnlock()

	chain := make([]Block, len(db.chain))
	copy(chain, db.chain)
	return chain
}

// Balances returns a copy of the current ledger state.
func (db *Database) Balances() Balances {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.balances.Copy()
}

// Validate replays the whole chain from genesis and returns the ledger
// state it produces.
func (db *Database) Validate() (Balances, error) {
	chain := db.Chain()
	return ValidateChain(chain, db.difficulty, db.keys, db.evHandler)
}

// Write persists the chain and the current ledger state.
func (db *Database) Write() error {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if err := db.storage.SaveChain(db.chain); err != nil {
		return fmt.Errorf("saving chain: %w", err)
	}

	if err := db.storage.SaveState(db.balances); err != nil {
		return fmt.Errorf("saving state: %w", err)
	}

	return nil
}
