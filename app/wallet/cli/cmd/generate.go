package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/ardanlabs/ledger/foundation/blockchain/keystore"
	"github.com/ardanlabs/ledger/foundation/blockchain/signature"
	"github.com/spf13/cobra"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a new account key file",
	Run: func(cmd *cobra.Command, args []string) {
		path := getPrivateKeyPath()
		if _, err := os.Stat(path); err == nil {
			log.Fatalf("account key file %s already exists", path)
		}

		if err := os.MkdirAll(accountPath, 0755); err != nil {
			log.Fatal(err)
		}

		secret, err := keystore.NewSecret()
		if err != nil {
			log.Fatal(err)
		}

		if _, err := keystore.SaveSecret(secret, path); err != nil {
			log.Fatal(err)
		}

		fmt.Println("Account:", getAccount())
		fmt.Println("Key File:", path)
		fmt.Println("Public Key:", signature.PublicKey(secret))
	},
}

func init() {
	rootCmd.AddCommand(generateCmd)
}
