package database

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/ardanlabs/ledger/foundation/blockchain/signature"
)

// GenesisState returns the initial ledger state defined by the genesis
// block. The genesis block must hold exactly one transaction and its
// transfer is copied verbatim. It's the trusted funding event, so it's not
// checked for conservation, balances or signature.
func GenesisState(genesis Block) (Balances, error) {
	if n := len(genesis.Content.Transactions); n != 1 {
		return nil, fmt.Errorf("%w: genesis block holds %d transactions, exp 1", ErrMalformedInput, n)
	}

	tr := genesis.Content.Transactions[0].Transfer
	if tr == nil {
		return nil, fmt.Errorf("%w: genesis transaction is missing the transfer", ErrMalformedInput)
	}

	return Balances(tr.copy()), nil
}

// ValidateChain replays the entire chain from the genesis block and returns
// the resulting ledger state. Any failure is returned as a *BlockError
// identifying the offending block and no partial chain is accepted.
func ValidateChain(chain []Block, difficulty uint, keys signature.SecretLookup, evHandler func(v string, args ...any)) (Balances, error) {
	if len(chain) == 0 {
		return nil, ErrEmptyChain
	}

	genesis := chain[0]

	evHandler("database: ValidateChain: started: blocks[%d]", len(chain))

	state, err := GenesisState(genesis)
	if err != nil {
		return nil, &BlockError{Index: genesis.Content.Index, Err: err}
	}

	if err := genesis.CheckHash(difficulty); err != nil {
		return nil, &BlockError{Index: genesis.Content.Index, Err: err}
	}

	parent := genesis
	for _, block := range chain[1:] {
		state, err = block.ValidateBlock(parent, state, difficulty, keys, evHandler)
		if err != nil {
			evHandler("database: ValidateChain: failed: %s", err)
			return nil, err
		}
		parent = block
	}

	evHandler("database: ValidateChain: completed: blocks[%d]", len(chain))

	return state, nil
}

// ValidateChainJSON decodes a chain from its JSON representation and
// validates it with ValidateChain.
func ValidateChainJSON(data []byte, difficulty uint, keys signature.SecretLookup, evHandler func(v string, args ...any)) (Balances, error) {
	chain, err := DecodeChain(data)
	if err != nil {
		return nil, err
	}

	return ValidateChain(chain, difficulty, keys, evHandler)
}

// DecodeChain decodes a chain from its JSON representation. The document
// must be a list of blocks.
func DecodeChain(data []byte) ([]Block, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, ErrEmptyChain
	}

	if data[0] != '[' {
		return nil, fmt.Errorf("%w: blockchain is not a list", ErrMalformedInput)
	}

	var chain []Block
	if err := json.Unmarshal(data, &chain); err != nil {
		return nil, fmt.Errorf("%w: blockchain is not valid JSON: %s", ErrMalformedInput, err)
	}

	return chain, nil
}
