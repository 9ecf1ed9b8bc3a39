// This program performs administrative tasks for the ledger node.
package main

import (
	"fmt"
	"os"

	"github.com/ardanlabs/ledger/app/tooling/admin/commands"
	"github.com/ardanlabs/ledger/foundation/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// build is the git version of this program. It is set using build flags in the makefile.
var build = "develop"

func main() {

	// Construct the application logger.
	log, err := logger.New("ADMIN")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer log.Sync()

	// Perform the startup and shutdown sequence.
	if err := run(log); err != nil {
		log.Errorw("startup", "ERROR", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(log *zap.SugaredLogger) error {
	var (
		dbPath     string
		indexPath  string
		accounts   string
		genesis    string
		backupDir  string
		chainFile  string
		difficulty int
		limit      int
	)

	root := &cobra.Command{
		Use:     "admin",
		Short:   "Administrative tasks for the ledger node",
		Version: build,
	}
	root.PersistentFlags().StringVar(&dbPath, "db-path", "zblock/data", "Folder holding the chain, state and pending files.")
	root.PersistentFlags().StringVar(&indexPath, "index-path", "zblock/blockchain.db", "Path of the sqlite index.")

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a chain file offline",
		RunE: func(cmd *cobra.Command, args []string) error {
			if chainFile == "" {
				chainFile = commands.ChainFile(dbPath)
			}
			return commands.Validate(log, commands.ValidateConfig{
				ChainFile:  chainFile,
				Accounts:   accounts,
				IndexPath:  indexPath,
				Genesis:    genesis,
				Difficulty: difficulty,
			})
		},
	}
	validateCmd.Flags().StringVar(&chainFile, "file", "", "Chain file to validate, defaults to the chain in the db path.")
	validateCmd.Flags().StringVar(&accounts, "accounts", "zblock/accounts", "Folder holding the account key files.")
	validateCmd.Flags().StringVar(&genesis, "genesis", "zblock/genesis.json", "Genesis file providing the difficulty.")
	validateCmd.Flags().IntVar(&difficulty, "difficulty", -1, "Overrides the genesis difficulty when not negative.")

	balsCmd := &cobra.Command{
		Use:   "bals [account]",
		Short: "Print the balances from the state snapshot",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var account string
			if len(args) == 1 {
				account = args[0]
			}
			return commands.Balances(dbPath, account)
		},
	}

	transCmd := &cobra.Command{
		Use:   "trans [user]",
		Short: "Print the indexed transaction history",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var user string
			if len(args) == 1 {
				user = args[0]
			}
			return commands.Transactions(indexPath, user, limit)
		},
	}
	transCmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of transactions to print.")

	backupCmd := &cobra.Command{
		Use:   "backup",
		Short: "Copy the stored files and the index into the backup folder",
		RunE: func(cmd *cobra.Command, args []string) error {
			return commands.Backup(log, dbPath, indexPath, backupDir)
		},
	}
	backupCmd.Flags().StringVar(&backupDir, "dir", "zblock/backups", "Backup folder.")

	root.AddCommand(validateCmd, balsCmd, transCmd, backupCmd)

	return root.Execute()
}
