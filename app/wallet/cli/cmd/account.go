package cmd

import (
	"fmt"
	"log"

	"github.com/ardanlabs/ledger/foundation/blockchain/keystore"
	"github.com/ardanlabs/ledger/foundation/blockchain/signature"
	"github.com/spf13/cobra"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Print the public key for the account",
	Run: func(cmd *cobra.Command, args []string) {
		secret, err := keystore.LoadSecret(getPrivateKeyPath())
		if err != nil {
			log.Fatal(err)
		}

		fmt.Println(signature.PublicKey(secret))
	},
}

func init() {
	rootCmd.AddCommand(accountCmd)
}
