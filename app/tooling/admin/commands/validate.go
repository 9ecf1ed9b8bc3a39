package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/ardanlabs/ledger/foundation/blockchain/genesis"
	"github.com/ardanlabs/ledger/foundation/blockchain/keystore"
	"github.com/ardanlabs/ledger/foundation/blockchain/storage/sqlite"
	"go.uber.org/zap"
)

// ValidateConfig holds the inputs for an offline chain validation.
type ValidateConfig struct {
	ChainFile  string
	Accounts   string
	IndexPath  string
	Genesis    string
	Difficulty int
}

// Validate replays the chain file from genesis and prints the final state.
// Signatures are checked against the users found in the accounts folder
// and the index.
func Validate(log *zap.SugaredLogger, cfg ValidateConfig) error {
	data, err := os.ReadFile(cfg.ChainFile)
	if err != nil {
		return fmt.Errorf("reading chain: %w", err)
	}

	difficulty := cfg.Difficulty
	if difficulty < 0 {
		gen, err := genesis.Load(cfg.Genesis)
		if err != nil {
			return err
		}
		difficulty = int(gen.Difficulty)
	}

	keys, err := loadKeys(cfg.Accounts, cfg.IndexPath)
	if err != nil {
		return err
	}

	ev := func(v string, args ...any) {
		log.Debugw(fmt.Sprintf(v, args...))
	}

	final, err := database.ValidateChainJSON(data, uint(difficulty), keys, ev)
	if err != nil {
		if be := database.GetBlockError(err); be != nil {
			fmt.Printf("Invalid: block %d: %s\n", be.Index, database.Kind(err))
		}
		return err
	}

	fmt.Println("Valid")
	for _, act := range final.Accounts() {
		fmt.Printf("Account: %s  Balance: %d\n", act, final[act])
	}

	return nil
}

// loadKeys builds the key store from the key files and the index. Either
// source may be missing.
func loadKeys(accounts string, indexPath string) (*keystore.KeyStore, error) {
	keys := keystore.New()

	if _, err := os.Stat(accounts); err == nil {
		if err := keys.LoadFolder(accounts); err != nil {
			return nil, err
		}
	}

	if _, err := os.Stat(indexPath); err != nil {
		return keys, nil
	}

	index, err := sqlite.Open(indexPath)
	if err != nil {
		return nil, err
	}
	defer index.Close()

	users, err := index.Users()
	if err != nil {
		return nil, err
	}

	for _, usr := range users {
		if err := keys.Add(usr.Name, usr.Secret); err != nil && !errors.Is(err, keystore.ErrExists) {
			return nil, err
		}
	}

	return keys, nil
}
