package database

// Storage interface represents the behavior required to be implemented by any
// package providing support for persisting the blockchain, the ledger state
// snapshot and the pending transactions.
type Storage interface {
	SaveChain(chain []Block) error
	LoadChain() ([]Block, error)
	SaveState(state Balances) error
	LoadState() (Balances, error)
	SavePending(trans []SignedTx) error
	LoadPending() ([]SignedTx, error)
	Backup(dir string) ([]string, error)
	Close() error
}
