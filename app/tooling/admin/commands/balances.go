// Package commands contains the functionality for the set of commands
// currently supported by the admin tool.
package commands

import (
	"fmt"
	"path/filepath"

	"github.com/ardanlabs/ledger/foundation/blockchain/storage/disk"
)

// ChainFile returns the path of the chain file kept in the db path.
func ChainFile(dbPath string) string {
	return filepath.Join(dbPath, disk.ChainFile)
}

// Balances prints the balances recorded in the state snapshot.
func Balances(dbPath string, onlyAct string) error {
	d, err := disk.New(dbPath)
	if err != nil {
		return err
	}
	defer d.Close()

	balances, err := d.LoadState()
	if err != nil {
		return err
	}

	if balances == nil {
		return fmt.Errorf("no state snapshot in %s", dbPath)
	}

	for _, act := range balances.Accounts() {
		if onlyAct != "" && onlyAct != act {
			continue
		}
		fmt.Printf("Account: %s  Balance: %d\n", act, balances[act])
	}

	return nil
}
