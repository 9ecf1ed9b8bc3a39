package state

import (
	"context"
	"fmt"
	"time"

	"github.com/ardanlabs/ledger/foundation/blockchain/database"
)

// MineResult describes the outcome of a successful mining operation.
type MineResult struct {
	Block     database.Block
	Mined     int
	Rejected  int
	Remaining int
	Duration  time.Duration
}

// MineNewBlock screens the pending transactions against the current state,
// mines the valid ones into the next block and appends it to the chain.
// Transactions that fail screening stay pending.
func (s *State) MineNewBlock(ctx context.Context) (MineResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evHandler("state: MineNewBlock: MINING: check mempool count")

	if s.mempool.Count() == 0 {
		return MineResult{}, ErrNoTransactions
	}

	howMany := -1
	if s.genesis.TransPerBlock > 0 {
		howMany = int(s.genesis.TransPerBlock)
	}

	trans, rejected := s.mempool.PickValid(s.db.Balances(), s.keys, howMany)
	if len(trans) == 0 {
		return MineResult{}, ErrNoValidTransactions
	}

	s.evHandler("state: MineNewBlock: MINING: perform POW: txs[%d]: rejected[%d]", len(trans), rejected)

	start := time.Now()

	content := database.NewBlockContent(s.db.LatestBlock(), trans, time.Now().Format(TimeFormat))
	block, err := database.POW(ctx, content, s.db.Difficulty(), s.evHandler)
	if err != nil {
		return MineResult{}, err
	}

	duration := time.Since(start)

	s.evHandler("state: MineNewBlock: MINING: update local state")

	if err := s.db.Append(block); err != nil {
		return MineResult{}, err
	}

	for _, tx := range trans {
		if err := s.mempool.Delete(tx); err != nil {
			s.evHandler("state: MineNewBlock: remove tx: WARNING: %s", err)
		}
	}

	s.indexBlock(block)

	if err := s.Save(); err != nil {
		return MineResult{}, fmt.Errorf("block %d mined but not saved: %w", block.Content.Index, err)
	}

	res := MineResult{
		Block:     block,
		Mined:     len(trans),
		Rejected:  rejected,
		Remaining: s.mempool.Count(),
		Duration:  duration,
	}

	s.evHandler("viewer: block[%d]: hash[%s]: txs[%d]", block.Content.Index, block.Hash, len(trans))
	s.minedHandler(res)

	return res, nil
}
