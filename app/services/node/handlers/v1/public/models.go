package public

import (
	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/ardanlabs/ledger/foundation/blockchain/state"
	"github.com/ardanlabs/ledger/foundation/blockchain/storage/sqlite"
)

// NewUser is what is required to register a user.
type NewUser struct {
	Username string `json:"username" validate:"required"`
}

// NewTransfer is what is required to have the node sign and submit a
// transfer on behalf of the sender.
type NewTransfer struct {
	Sender   string `json:"sender" validate:"required"`
	Receiver string `json:"receiver" validate:"required,nefield=Sender"`
	Amount   int64  `json:"amount" validate:"required,gt=0"`
}

// =============================================================================

type user struct {
	Username  string `json:"username"`
	PublicKey string `json:"public_key"`
	Balance   int64  `json:"balance"`
}

func toUser(usr state.User) user {
	return user{
		Username:  usr.Name,
		PublicKey: usr.PublicKey,
		Balance:   usr.Balance,
	}
}

type newUserResponse struct {
	Message string `json:"message"`
	user
}

type chain struct {
	Blockchain []database.Block `json:"blockchain"`
	Length     int              `json:"length"`
}

type stats struct {
	BlockCount          int64 `json:"block_count"`
	TransactionCount    int64 `json:"transaction_count"`
	TotalVolume         int64 `json:"total_volume"`
	CurrentBlockHeight  int   `json:"current_block_height"`
	PendingTransactions int   `json:"pending_transactions"`
	ActiveUsers         int   `json:"active_users"`
	Difficulty          uint  `json:"difficulty"`
}

type tx struct {
	ID         int64  `json:"id"`
	BlockIndex uint64 `json:"block_index"`
	Sender     string `json:"sender,omitempty"`
	Receiver   string `json:"receiver,omitempty"`
	Amount     int64  `json:"amount"`
	Transfer   string `json:"transaction_hash"`
	TimeStamp  string `json:"timestamp,omitempty"`
}

func toTxs(trans []sqlite.Transaction) []tx {
	txs := make([]tx, len(trans))
	for i, tran := range trans {
		txs[i] = tx{
			ID:         tran.ID,
			BlockIndex: tran.BlockIndex,
			Sender:     tran.Sender,
			Receiver:   tran.Receiver,
			Amount:     tran.Amount,
			Transfer:   tran.Transfer,
			TimeStamp:  tran.TimeStamp,
		}
	}
	return txs
}

type history struct {
	Username     string `json:"username,omitempty"`
	Transactions []tx   `json:"transactions"`
	Count        int    `json:"count"`
}

type pending struct {
	Transactions []database.SignedTx `json:"pending_transactions"`
	Count        int                 `json:"count"`
}

type submitted struct {
	Message     string            `json:"message"`
	Transaction database.SignedTx `json:"transaction"`
}

type mined struct {
	Message   string         `json:"message"`
	Block     database.Block `json:"block"`
	Mined     int            `json:"transactions_mined"`
	Rejected  int            `json:"transactions_rejected"`
	Remaining int            `json:"remaining_pending"`
	Duration  string         `json:"duration"`
}

type validation struct {
	Valid      bool              `json:"valid"`
	Message    string            `json:"message,omitempty"`
	FinalState database.Balances `json:"final_state,omitempty"`
	Error      string            `json:"error,omitempty"`
	Kind       string            `json:"kind,omitempty"`
	Block      *uint64           `json:"block,omitempty"`
}

type message struct {
	Message string   `json:"message"`
	Files   []string `json:"files,omitempty"`
}
