package commands

import (
	"fmt"

	"github.com/ardanlabs/ledger/foundation/blockchain/storage/sqlite"
)

// Transactions prints the most recent transactions from the index.
func Transactions(indexPath string, user string, limit int) error {
	index, err := sqlite.Open(indexPath)
	if err != nil {
		return err
	}
	defer index.Close()

	trans, err := index.History(user, limit)
	if err != nil {
		return err
	}

	for _, tx := range trans {
		fmt.Printf("ID: %d  Block: %d  From: %s  To: %s  Amount: %d  Time: %s\n",
			tx.ID, tx.BlockIndex, tx.Sender, tx.Receiver, tx.Amount, tx.TimeStamp)
	}

	return nil
}
