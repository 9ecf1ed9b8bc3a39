package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/ardanlabs/ledger/foundation/blockchain/keystore"
	"github.com/ardanlabs/ledger/foundation/blockchain/state"
	"github.com/spf13/cobra"
)

var (
	to     string
	amount int64
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Sign a transfer and submit it to the node",
	Run: func(cmd *cobra.Command, args []string) {
		secret, err := keystore.LoadSecret(getPrivateKeyPath())
		if err != nil {
			log.Fatal(err)
		}

		tr, err := database.NewTransfer(getAccount(), to, amount)
		if err != nil {
			log.Fatal(err)
		}

		tx, err := database.NewSignedTx(tr, secret, time.Now().Format(state.TimeFormat))
		if err != nil {
			log.Fatal(err)
		}

		data, err := json.Marshal(tx)
		if err != nil {
			log.Fatal(err)
		}

		resp, err := http.Post(fmt.Sprintf("%s/v1/tx/submit", url), "application/json", bytes.NewBuffer(data))
		if err != nil {
			log.Fatal(err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			log.Fatal(err)
		}

		if resp.StatusCode != http.StatusOK {
			log.Fatalf("submit failed: %s: %s", resp.Status, body)
		}

		fmt.Println(tx)
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVarP(&url, "url", "u", "http://localhost:8080", "Url of the node.")
	sendCmd.Flags().StringVarP(&to, "to", "t", "", "Account receiving the amount.")
	sendCmd.MarkFlagRequired("to")
	sendCmd.Flags().Int64VarP(&amount, "amount", "v", 0, "Amount to send.")
}
