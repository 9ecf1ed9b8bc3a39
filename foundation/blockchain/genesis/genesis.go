// Package genesis maintains access to the genesis file.
package genesis

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// Genesis represents the genesis file.
type Genesis struct {
	Date          time.Time        `json:"date"`
	Difficulty    uint             `json:"difficulty"`      // How difficult it needs to be to solve the work problem.
	TransPerBlock uint16           `json:"trans_per_block"` // The maximum number of transactions in a block, 0 for no limit.
	Balances      map[string]int64 `json:"balances"`
}

// =============================================================================

// Load opens and consumes the genesis file.
func Load(path string) (Genesis, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, err
	}

	var genesis Genesis
	if err := json.Unmarshal(content, &genesis); err != nil {
		return Genesis{}, fmt.Errorf("decoding genesis: %w", err)
	}

	if err := genesis.validate(); err != nil {
		return Genesis{}, err
	}

	return genesis, nil
}

// validate checks the genesis can fund a chain.
func (g Genesis) validate() error {
	if len(g.Balances) == 0 {
		return errors.New("genesis has no balances")
	}

	for account, balance := range g.Balances {
		if account == "" {
			return errors.New("genesis has an empty account name")
		}
		if balance < 0 {
			return fmt.Errorf("genesis balance for %s is negative", account)
		}
	}

	return nil
}
