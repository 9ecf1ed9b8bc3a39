// Package state is the core API for the blockchain and implements all the
// business rules and processing.
package state

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/ardanlabs/ledger/foundation/blockchain/genesis"
	"github.com/ardanlabs/ledger/foundation/blockchain/keystore"
	"github.com/ardanlabs/ledger/foundation/blockchain/mempool"
	"github.com/ardanlabs/ledger/foundation/blockchain/storage/sqlite"
)

// TimeFormat is the layout of the timestamps recorded on transactions and
// blocks.
const TimeFormat = "2006-01-02T15:04:05.000000"

// Set of errors returned by the state API.
var (
	ErrUnknownUser         = errors.New("user does not exist")
	ErrUserExists          = errors.New("user already exists")
	ErrInvalidUser         = errors.New("invalid user name")
	ErrInvalidTransfer     = errors.New("invalid transfer")
	ErrNoTransactions      = errors.New("no pending transactions to mine")
	ErrNoValidTransactions = errors.New("no valid transactions to mine")
	ErrIndexDisabled       = errors.New("blockchain index is not configured")
)

// =============================================================================

// EventHandler defines a function that is called when events
// occur in the processing of persisting blocks.
type EventHandler func(v string, args ...any)

// MinedHandler defines a function that is called after a block is mined
// and appended to the chain.
type MinedHandler func(res MineResult)

// Worker interface represents the behavior required to be implemented by any
// package providing support for mining in the background.
type Worker interface {
	Shutdown()
	SignalStartMining()
	SignalCancelMining()
}

// =============================================================================

// Config represents the configuration required to start
// the blockchain node.
type Config struct {
	Storage   database.Storage
	Index     *sqlite.Store
	KeyStore  *keystore.KeyStore
	Genesis   genesis.Genesis
	BackupDir    string
	EvHandler    EventHandler
	MinedHandler MinedHandler
}

// State manages the blockchain database.
type State struct {
	mu        sync.Mutex
	userMu    sync.Mutex
	persistMu sync.Mutex

	evHandler    EventHandler
	minedHandler MinedHandler
	genesis      genesis.Genesis
	backupDir string

	keys    *keystore.KeyStore
	db      *database.Database
	mempool *mempool.Mempool
	storage database.Storage
	index   *sqlite.Store

	Worker Worker
}

// New constructs a new blockchain for data management. The users, chain and
// pending transactions are loaded from storage. An existing chain is replayed
// from genesis, otherwise a new genesis block is mined from the genesis
// balances.
func New(cfg Config) (*State, error) {

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	keys := cfg.KeyStore
	if keys == nil {
		keys = keystore.New()
	}

	// Register the users known to the index so their signatures verify.
	if cfg.Index != nil {
		users, err := cfg.Index.Users()
		if err != nil {
			return nil, fmt.Errorf("loading users: %w", err)
		}

		for _, usr := range users {
			if err := keys.Add(usr.Name, usr.Secret); err != nil && !errors.Is(err, keystore.ErrExists) {
				return nil, fmt.Errorf("registering user %s: %w", usr.Name, err)
			}
		}

		ev("state: New: loaded users[%d]", len(users))
	}

	db, err := database.New(cfg.Storage, cfg.Genesis.Difficulty, keys, ev)
	if err != nil {
		return nil, err
	}

	mined := func(res MineResult) {
		if cfg.MinedHandler != nil {
			cfg.MinedHandler(res)
		}
	}

	s := State{
		evHandler:    ev,
		minedHandler: mined,
		genesis:      cfg.Genesis,
		backupDir:    cfg.BackupDir,

		keys:    keys,
		db:      db,
		mempool: mempool.New(),
		storage: cfg.Storage,
		index:   cfg.Index,
	}

	// The Worker is not set here. The call to worker.Run will assign itself
	// and start everything up and running for the node.

	if db.Empty() {
		if err := s.createGenesis(); err != nil {
			return nil, err
		}
	}

	ev("state: New: loaded blockchain: blocks[%d]", db.Length())

	if err := s.loadSnapshots(); err != nil {
		return nil, err
	}

	return &s, nil
}

// Shutdown cleanly brings the node down.
func (s *State) Shutdown() error {
	s.evHandler("state: shutdown: started")
	defer s.evHandler("state: shutdown: completed")

	// Stop all blockchain writing activity.
	if s.Worker != nil {
		s.Worker.Shutdown()
	}

	saveErr := s.Save()

	if s.index != nil {
		if err := s.index.Close(); err != nil {
			s.evHandler("state: shutdown: close index: ERROR: %s", err)
		}
	}

	if err := s.db.Close(); err != nil {
		return err
	}

	return saveErr
}

// Genesis returns a copy of the genesis information.
func (s *State) Genesis() genesis.Genesis {
	return s.genesis
}

// Difficulty returns the difficulty blocks are mined at.
func (s *State) Difficulty() uint {
	return s.db.Difficulty()
}

// KeyStore returns the registry of users and their secrets.
func (s *State) KeyStore() *keystore.KeyStore {
	return s.keys
}

// =============================================================================

// createGenesis registers the genesis accounts and mines the genesis block.
func (s *State) createGenesis() error {
	s.evHandler("state: createGenesis: started")
	defer s.evHandler("state: createGenesis: completed")

	balances := database.Balances(s.genesis.Balances)

	for _, account := range balances.Accounts() {
		if _, err := s.keys.Secret(account); err == nil {
			continue
		}

		if _, err := s.registerUser(account); err != nil {
			return fmt.Errorf("registering genesis account %s: %w", account, err)
		}
	}

	timeStamp := s.genesis.Date
	if timeStamp.IsZero() {
		timeStamp = time.Now()
	}

	content := database.NewGenesisContent(balances, timeStamp.Format(TimeFormat))

	s.evHandler("state: createGenesis: mining genesis: difficulty[%d]", s.db.Difficulty())

	block, err := database.POW(context.Background(), content, s.db.Difficulty(), s.evHandler)
	if err != nil {
		return fmt.Errorf("mining genesis: %w", err)
	}

	if err := s.db.AddGenesis(block); err != nil {
		return fmt.Errorf("adding genesis: %w", err)
	}

	s.indexBlock(block)

	return s.Save()
}

// loadSnapshots loads the pending transactions and compares the state
// snapshot against the state derived from the chain. The chain wins.
func (s *State) loadSnapshots() error {
	snapshot, err := s.storage.LoadState()
	if err != nil {
		s.evHandler("state: loadSnapshots: state snapshot: WARNING: %s", err)
	}

	if snapshot != nil && !snapshot.Equal(s.db.Balances()) {
		s.evHandler("state: loadSnapshots: state snapshot does not match the blockchain, using the blockchain")
	}

	pending, err := s.storage.LoadPending()
	if err != nil {
		return fmt.Errorf("loading pending transactions: %w", err)
	}

	for _, tx := range pending {
		if _, err := s.mempool.Upsert(tx); err != nil {
			s.evHandler("state: loadSnapshots: pending tx: WARNING: %s", err)
		}
	}

	s.evHandler("state: loadSnapshots: loaded pending transactions[%d]", s.mempool.Count())

	return nil
}

// indexBlock adds the block to the index. The chain is authoritative so a
// failure is only reported.
func (s *State) indexBlock(block database.Block) {
	if s.index == nil {
		return
	}

	if err := s.index.SaveBlock(block, s.db.Difficulty()); err != nil {
		s.evHandler("state: indexBlock: blk[%d]: WARNING: %s", block.Content.Index, err)
	}
}

// signalStartMining tells the worker, if one is running, there is work.
func (s *State) signalStartMining() {
	if s.Worker != nil {
		s.Worker.SignalStartMining()
	}
}
