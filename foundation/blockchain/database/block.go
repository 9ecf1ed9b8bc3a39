package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ardanlabs/ledger/foundation/blockchain/canonical"
	"github.com/ardanlabs/ledger/foundation/blockchain/signature"
)

// MaxDifficulty is the largest difficulty a 256 bit hex digest can satisfy.
const MaxDifficulty = 64

// ErrInvalidDifficulty is returned when mining is asked to solve a puzzle
// no digest can satisfy.
var ErrInvalidDifficulty = errors.New("difficulty out of range")

// =============================================================================

// BlockContent represents everything in a block that is covered by the
// block hash. The field names are part of the hash and can't change.
type BlockContent struct {
	Index            uint64     `json:"index"`
	ParentHash       *string    `json:"parentHash"`
	TransactionCount int        `json:"transactionCount"`
	Transactions     []SignedTx `json:"transactions"`
	Nonce            uint64     `json:"nonce"`
	TimeStamp        string     `json:"timestamp,omitempty"`
}

// NewBlockContent constructs the content for the block following the parent
// block. The content owns a copy of the transactions.
func NewBlockContent(parent Block, trans []SignedTx, timeStamp string) BlockContent {
	parentHash := parent.Hash

	bc := BlockContent{
		Index:            parent.Content.Index + 1,
		ParentHash:       &parentHash,
		TransactionCount: len(trans),
		Transactions:     cloneTrans(trans),
		TimeStamp:        timeStamp,
	}

	return bc
}

// NewGenesisContent constructs the content for the genesis block. The
// balances become the sole transaction of the block and carry no
// credential or signature.
func NewGenesisContent(balances Balances, timeStamp string) BlockContent {
	tx := SignedTx{
		Transfer: Transfer(balances.Copy()),
	}

	bc := BlockContent{
		Index:            0,
		ParentHash:       nil,
		TransactionCount: 1,
		Transactions:     []SignedTx{tx},
		TimeStamp:        timeStamp,
	}

	return bc
}

// Hash returns the canonical hash of the block content.
func (bc BlockContent) Hash() (string, error) {
	return canonical.Hash(bc)
}

// ParentHashString returns the parent hash or an empty string for the
// genesis block.
func (bc BlockContent) ParentHashString() string {
	if bc.ParentHash == nil {
		return ""
	}
	return *bc.ParentHash
}

// clone returns a copy of the content that shares no memory with bc.
func (bc BlockContent) clone() BlockContent {
	cpy := bc
	if bc.ParentHash != nil {
		ph := *bc.ParentHash
		cpy.ParentHash = &ph
	}
	cpy.Transactions = cloneTrans(bc.Transactions)
	return cpy
}

// =============================================================================

// Block represents a sealed block, the content and the hash that solves
// the proof of work puzzle for it.
type Block struct {
	Hash    string       `json:"hash"`
	Content BlockContent `json:"content"`
}

// POW performs the work of mining to find the nonce that makes the hash of
// the content start with difficulty zeros. The search is sequential starting
// at nonce zero, so the same content and difficulty always produce the same
// block. The search only stops early when the context is cancelled.
func POW(ctx context.Context, content BlockContent, difficulty uint, evHandler func(v string, args ...any)) (Block, error) {
	evHandler("database: POW: MINING: started: blk[%d]", content.Index)
	defer evHandler("database: POW: MINING: completed: blk[%d]", content.Index)

	if difficulty > MaxDifficulty {
		return Block{}, fmt.Errorf("%w: got %d, max %d", ErrInvalidDifficulty, difficulty, MaxDifficulty)
	}

	// The content being mined is owned by this function until it's sealed.
	bc := content.clone()
	bc.Nonce = 0

	// Render the content once. Only the nonce changes between attempts.
	tree, err := canonical.Tree(bc)
	if err != nil {
		return Block{}, err
	}
	doc, ok := tree.(map[string]any)
	if !ok {
		return Block{}, fmt.Errorf("%w: block content is not an object", ErrMalformedInput)
	}

	for _, tx := range bc.Transactions {
		evHandler("database: POW: MINING: tx[%s]", tx)
	}

	var attempts uint64
	for {
		attempts++
		if attempts%1_000_000 == 0 {
			evHandler("database: POW: MINING: attempts[%d]", attempts)
		}

		// Did we timeout trying to solve the problem.
		if ctx.Err() != nil {
			evHandler("database: POW: MINING: CANCELLED: attempts[%d]", attempts)
			return Block{}, ctx.Err()
		}

		doc["nonce"] = json.Number(strconv.FormatUint(bc.Nonce, 10))
		data, err := canonical.Encode(doc)
		if err != nil {
			return Block{}, err
		}

		hash := canonical.HashBytes(data)
		if !isHashSolved(difficulty, hash) {
			bc.Nonce++
			continue
		}

		evHandler("database: POW: MINING: SOLVED: blk[%d]: hash[%s]: attempts[%d]", bc.Index, hash, attempts)

		block := Block{
			Hash:    hash,
			Content: bc,
		}

		return block, nil
	}
}

// CheckHash recomputes the hash of the content and verifies it matches the
// stored hash and meets the difficulty.
func (b Block) CheckHash(difficulty uint) error {
	hash, err := b.Content.Hash()
	if err != nil {
		return fmt.Errorf("%w: %s", ErrMalformedInput, err)
	}

	if hash != b.Hash {
		return fmt.Errorf("%w: got %s, exp %s", ErrHashMismatch, b.Hash, hash)
	}

	if !isHashSolved(difficulty, b.Hash) {
		return fmt.Errorf("%w: hash %s, difficulty %d", ErrDifficultyNotMet, b.Hash, difficulty)
	}

	return nil
}

// ValidateBlock takes a block and validates it to be the next block after the
// parent block. The transactions are replayed in order against the specified
// state and the resulting state is returned. A single invalid transaction
// rejects the whole block and the specified state is never modified. Every
// failure is returned as a *BlockError.
func (b Block) ValidateBlock(parent Block, state Balances, difficulty uint, keys signature.SecretLookup, evHandler func(v string, args ...any)) (Balances, error) {
	fail := func(err error) (Balances, error) {
		return nil, &BlockError{Index: b.Content.Index, Err: err}
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: block hash has been solved", b.Content.Index)

	if err := b.CheckHash(difficulty); err != nil {
		return fail(err)
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: block index is the next index", b.Content.Index)

	nextIndex := parent.Content.Index + 1
	if b.Content.Index != nextIndex {
		return fail(fmt.Errorf("%w: got %d, exp %d", ErrIndexMismatch, b.Content.Index, nextIndex))
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: parent hash does match parent block", b.Content.Index)

	if b.Content.ParentHash == nil || *b.Content.ParentHash != parent.Hash {
		return fail(fmt.Errorf("%w: got %q, exp %q", ErrParentHashMismatch, b.Content.ParentHashString(), parent.Hash))
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: replay transactions", b.Content.Index)

	running := state.Copy()
	for i, tx := range b.Content.Transactions {
		if tx.Transfer == nil {
			return fail(fmt.Errorf("%w: transaction %d is missing the transfer", ErrMalformedInput, i))
		}

		if err := ValidateTx(running, tx, keys); err != nil {
			return fail(fmt.Errorf("transaction %d: %w", i, err))
		}

		running = running.Apply(tx.Transfer)
	}

	return running, nil
}

// =============================================================================

// isHashSolved checks the hash to make sure it complies with
// the POW rules. We need to match a difficulty number of 0's.
func isHashSolved(difficulty uint, hash string) bool {
	if difficulty > MaxDifficulty || len(hash) < int(difficulty) {
		return false
	}

	return strings.Count(hash[:difficulty], "0") == int(difficulty)
}

// cloneTrans returns a deep copy of the transactions. A nil slice becomes
// an empty slice so it encodes as an empty list.
func cloneTrans(trans []SignedTx) []SignedTx {
	cpy := make([]SignedTx, len(trans))
	for i, tx := range trans {
		cpy[i] = tx.clone()
	}
	return cpy
}
