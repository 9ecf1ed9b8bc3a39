package cmd

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/spf13/cobra"
)

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Print your balance.",
	Run: func(cmd *cobra.Command, args []string) {
		account := getAccount()
		fmt.Println("For Account:", account)

		resp, err := http.Get(fmt.Sprintf("%s/v1/balance/%s", url, account))
		if err != nil {
			log.Fatal(err)
		}
		defer resp.Body.Close()

		var bal struct {
			Balance int64 `json:"balance"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&bal); err != nil {
			log.Fatal(err)
		}

		fmt.Println(bal.Balance)
	},
}

func init() {
	rootCmd.AddCommand(balanceCmd)
	balanceCmd.Flags().StringVarP(&url, "url", "u", "http://localhost:8080", "Url of the node.")
}
