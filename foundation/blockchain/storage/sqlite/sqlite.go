// Package sqlite maintains an index of the blockchain in a SQLite database:
// the registered users, the metadata of every block and a history of the
// transfers mined into them. The chain itself stays authoritative, the index
// only serves queries the chain can't answer cheaply.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/ardanlabs/ledger/foundation/blockchain/canonical"
	"github.com/ardanlabs/ledger/foundation/blockchain/database"

	_ "modernc.org/sqlite"
)

const maxBusyTimeoutMs = 5000

// DefaultHistoryLimit is the number of transactions History returns when no
// limit is provided.
const DefaultHistoryLimit = 50

// Set of errors returned by the index.
var (
	ErrUserNotFound = errors.New("user not found")
	ErrClosed       = errors.New("index is closed")
)

// User represents a registered account and the credentials used to sign on
// its behalf.
type User struct {
	Name        string
	Secret      string
	PublicKey   string
	DateCreated time.Time
}

// Transaction represents a transfer mined into a block. The sender is empty
// for transfers that only credit accounts, like the genesis funding.
type Transaction struct {
	ID         int64
	BlockIndex uint64
	Sender     string
	Receiver   string
	Amount     int64
	Transfer   string
	TimeStamp  string
}

// Stats summarizes the indexed blocks and transactions.
type Stats struct {
	BlockCount       int64
	TransactionCount int64
	TotalVolume      int64
}

// =============================================================================

// Store manages the index stored in a SQLite database file.
type Store struct {
	mu   sync.RWMutex
	db   *sql.DB
	file string
}

// Open opens or creates the index in the specified database file.
func Open(filePath string) (*Store, error) {
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return nil, fmt.Errorf("resolve db path: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s", filepath.Clean(absPath)))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d", maxBusyTimeoutMs)); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	s := Store{
		db:   db,
		file: absPath,
	}

	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return &s, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// File returns the path of the database file.
func (s *Store) File() string {
	return s.file
}

func (s *Store) ensureSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			username TEXT PRIMARY KEY,
			private_key TEXT NOT NULL,
			public_key TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS blocks (
			block_index INTEGER PRIMARY KEY,
			block_hash TEXT NOT NULL,
			parent_hash TEXT,
			transaction_count INTEGER,
			nonce INTEGER,
			timestamp TEXT,
			difficulty INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			block_index INTEGER,
			sender TEXT,
			receiver TEXT,
			amount INTEGER,
			transaction_hash TEXT,
			timestamp TEXT,
			FOREIGN KEY (block_index) REFERENCES blocks (block_index)
		)`,
		`CREATE INDEX IF NOT EXISTS transactions_sender ON transactions (sender)`,
		`CREATE INDEX IF NOT EXISTS transactions_receiver ON transactions (receiver)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}

	return nil
}

// =============================================================================

// SaveUser adds or replaces the user.
func (s *Store) SaveUser(usr User) error {
	if usr.DateCreated.IsZero() {
		usr.DateCreated = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return ErrClosed
	}

	const q = `INSERT OR REPLACE INTO users (username, private_key, public_key, created_at) VALUES (?, ?, ?, ?)`
	if _, err := s.db.Exec(q, usr.Name, usr.Secret, usr.PublicKey, usr.DateCreated.UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// Users returns all the users ordered by name.
func (s *Store) Users() ([]User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, ErrClosed
	}

	rows, err := s.db.Query(`SELECT username, private_key, public_key, created_at FROM users ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var usr User
		var created string
		if err := rows.Scan(&usr.Name, &usr.Secret, &usr.PublicKey, &created); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		usr.DateCreated, _ = time.Parse(time.RFC3339Nano, created)
		users = append(users, usr)
	}

	return users, rows.Err()
}

// User returns the named user.
func (s *Store) User(name string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return User{}, ErrClosed
	}

	var usr User
	var created string

	const q = `SELECT username, private_key, public_key, created_at FROM users WHERE username = ?`
	err := s.db.QueryRow(q, name).Scan(&usr.Name, &usr.Secret, &usr.PublicKey, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, fmt.Errorf("%w: %s", ErrUserNotFound, name)
		}
		return User{}, fmt.Errorf("query user: %w", err)
	}
	usr.DateCreated, _ = time.Parse(time.RFC3339Nano, created)

	return usr, nil
}

// SaveBlock indexes the block and its transactions. Saving the same block
// again replaces its rows.
func (s *Store) SaveBlock(block database.Block, difficulty uint) error {
	content := block.Content

	timeStamp := content.TimeStamp
	if timeStamp == "" {
		timeStamp = time.Now().UTC().Format(time.RFC3339)
	}

	var parentHash sql.NullString
	if content.ParentHash != nil {
		parentHash = sql.NullString{String: *content.ParentHash, Valid: true}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return ErrClosed
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin save block: %w", err)
	}

	const qBlock = `INSERT OR REPLACE INTO blocks
		(block_index, block_hash, parent_hash, transaction_count, nonce, timestamp, difficulty)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	if _, err := tx.Exec(qBlock, content.Index, block.Hash, parentHash, content.TransactionCount, content.Nonce, timeStamp, difficulty); err != nil {
		tx.Rollback()
		return fmt.Errorf("insert block: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM transactions WHERE block_index = ?`, content.Index); err != nil {
		tx.Rollback()
		return fmt.Errorf("clear block transactions: %w", err)
	}

	const qTx = `INSERT INTO transactions
		(block_index, sender, receiver, amount, transaction_hash, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)`
	for _, signedTx := range content.Transactions {
		if signedTx.Transfer == nil {
			continue
		}

		sender, receiver, amount := parties(signedTx.Transfer)

		data, err := canonical.Marshal(signedTx.Transfer)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("encode transfer: %w", err)
		}

		if _, err := tx.Exec(qTx, content.Index, nullString(sender), nullString(receiver), amount, string(data), timeStamp); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert transaction: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save block: %w", err)
	}

	return nil
}

// History returns the most recent transactions involving the user, newest
// first. An empty user returns the most recent transactions of all users.
func (s *Store) History(user string, limit int) ([]Transaction, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, ErrClosed
	}

	const cols = `id, block_index, sender, receiver, amount, transaction_hash, timestamp`

	var rows *sql.Rows
	var err error
	switch user {
	case "":
		rows, err = s.db.Query(`SELECT `+cols+` FROM transactions ORDER BY id DESC LIMIT ?`, limit)
	default:
		rows, err = s.db.Query(`SELECT `+cols+` FROM transactions WHERE sender = ? OR receiver = ? ORDER BY id DESC LIMIT ?`, user, user, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	trans := []Transaction{}
	for rows.Next() {
		var tr Transaction
		var sender, receiver sql.NullString
		if err := rows.Scan(&tr.ID, &tr.BlockIndex, &sender, &receiver, &tr.Amount, &tr.Transfer, &tr.TimeStamp); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		tr.Sender = sender.String
		tr.Receiver = receiver.String
		trans = append(trans, tr)
	}

	return trans, rows.Err()
}

// Stats returns the number of blocks and transactions indexed and the total
// value moved by them.
func (s *Store) Stats() (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return Stats{}, ErrClosed
	}

	var stats Stats
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM blocks`).Scan(&stats.BlockCount); err != nil {
		return Stats{}, fmt.Errorf("count blocks: %w", err)
	}

	const q = `SELECT COUNT(*), COALESCE(SUM(amount), 0) FROM transactions`
	if err := s.db.QueryRow(q).Scan(&stats.TransactionCount, &stats.TotalVolume); err != nil {
		return Stats{}, fmt.Errorf("count transactions: %w", err)
	}

	return stats, nil
}

// Backup writes a consistent copy of the database into dir and returns the
// name of the copy.
func (s *Store) Backup(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create backup directory: %w", err)
	}

	dst := filepath.Join(dir, fmt.Sprintf("database_%s.db", time.Now().UTC().Format("20060102_150405")))
	if err := os.Remove(dst); err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("remove old backup: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return "", ErrClosed
	}

	if _, err := s.db.Exec(`VACUUM INTO ?`, dst); err != nil {
		return "", fmt.Errorf("vacuum into backup: %w", err)
	}

	return dst, nil
}

// =============================================================================

// parties returns the account debited, the account credited and the amount
// moved by the transfer. Accounts are visited in sorted order so a transfer
// with several credits always reports the same receiver.
func parties(tr database.Transfer) (sender string, receiver string, amount int64) {
	accounts := make([]string, 0, len(tr))
	for account := range tr {
		accounts = append(accounts, account)
	}
	sort.Strings(accounts)

	for _, account := range accounts {
		switch delta := tr[account]; {
		case delta < 0:
			sender = account
			amount = -delta
		case delta > 0:
			receiver = account
		}
	}

	return sender, receiver, amount
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
