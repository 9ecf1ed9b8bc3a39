package state

import (
	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/ardanlabs/ledger/foundation/blockchain/storage/sqlite"
)

// Balance returns the balance of the account. Unknown accounts hold zero.
func (s *State) Balance(account string) int64 {
	return s.db.Balances().Balance(account)
}

// Balances returns a copy of the current ledger state.
func (s *State) Balances() database.Balances {
	return s.db.Balances()
}

// Pending returns the pending transactions in arrival order.
func (s *State) Pending() []database.SignedTx {
	return s.mempool.Copy()
}

// PendingCount returns the number of pending transactions.
func (s *State) PendingCount() int {
	return s.mempool.Count()
}

// Blocks returns a copy of the whole chain.
func (s *State) Blocks() []database.Block {
	return s.db.Chain()
}

// BlockByIndex returns the block at the specified index.
func (s *State) BlockByIndex(index uint64) (database.Block, error) {
	return s.db.Block(index)
}

// LatestBlock returns the latest block in the chain.
func (s *State) LatestBlock() database.Block {
	return s.db.LatestBlock()
}

// Length returns the number of blocks in the chain.
func (s *State) Length() int {
	return s.db.Length()
}

// ValidateChain replays the whole chain from genesis and returns the final
// ledger state.
func (s *State) ValidateChain() (database.Balances, error) {
	return s.db.Validate()
}

// Stats returns the block and transaction totals from the index.
func (s *State) Stats() (sqlite.Stats, error) {
	if s.index == nil {
		return sqlite.Stats{}, ErrIndexDisabled
	}
	return s.index.Stats()
}

// History returns the most recent transactions involving the user from the
// index. An empty user returns the most recent transactions of all users.
func (s *State) History(user string, limit int) ([]sqlite.Transaction, error) {
	if s.index == nil {
		return nil, ErrIndexDisabled
	}
	return s.index.History(user, limit)
}
