// Package disk implements the ability to read and write the blockchain and
// its snapshots to JSON files in a folder.
package disk

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ardanlabs/ledger/foundation/blockchain/canonical"
	"github.com/ardanlabs/ledger/foundation/blockchain/database"
)

// Names of the files maintained in the folder.
const (
	ChainFile   = "blockchain.json"
	StateFile   = "state.json"
	PendingFile = "pending_transactions.json"
)

// backupNames maps each file to the prefix used for its backup copy.
var backupNames = []struct {
	file   string
	prefix string
}{
	{ChainFile, "blockchain"},
	{StateFile, "state"},
	{PendingFile, "pending"},
}

// Disk represents the serialization implementation for reading and storing
// the blockchain in a folder on disk. This implements the database.Storage
// interface.
type Disk struct {
	mu     sync.Mutex
	dbPath string
}

// New constructs a Disk value for use, creating the folder if needed.
func New(dbPath string) (*Disk, error) {
	if err := os.MkdirAll(dbPath, 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	return &Disk{dbPath: dbPath}, nil
}

// Close in this implementation has nothing to do since files are never
// held open.
func (d *Disk) Close() error {
	return nil
}

// SaveChain writes the chain to the blockchain file.
func (d *Disk) SaveChain(chain []database.Block) error {
	if chain == nil {
		chain = []database.Block{}
	}
	return d.write(ChainFile, chain)
}

// LoadChain reads the chain from the blockchain file. A missing file is an
// empty chain.
func (d *Disk) LoadChain() ([]database.Block, error) {
	data, err := d.read(ChainFile)
	if err != nil || data == nil {
		return nil, err
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	return database.DecodeChain(data)
}

// SaveState writes the ledger state snapshot to the state file.
func (d *Disk) SaveState(state database.Balances) error {
	if state == nil {
		state = database.Balances{}
	}
	return d.write(StateFile, state)
}

// LoadState reads the ledger state snapshot from the state file. A missing
// file returns a nil state.
func (d *Disk) LoadState() (database.Balances, error) {
	data, err := d.read(StateFile)
	if err != nil || data == nil {
		return nil, err
	}

	var state database.Balances
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("%w: decoding state: %s", database.ErrMalformedInput, err)
	}

	return state, nil
}

// SavePending writes the pending transactions to the pending file.
func (d *Disk) SavePending(trans []database.SignedTx) error {
	if trans == nil {
		trans = []database.SignedTx{}
	}
	return d.write(PendingFile, trans)
}

// LoadPending reads the pending transactions from the pending file. A
// missing file has no transactions.
func (d *Disk) LoadPending() ([]database.SignedTx, error) {
	data, err := d.read(PendingFile)
	if err != nil || data == nil {
		return nil, err
	}

	var trans []database.SignedTx
	if err := json.Unmarshal(data, &trans); err != nil {
		return nil, fmt.Errorf("%w: decoding pending transactions: %s", database.ErrMalformedInput, err)
	}

	return trans, nil
}

// Backup copies every existing file into dir under a timestamped name and
// returns the names of the copies.
func (d *Disk) Backup(dir string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create backup directory: %w", err)
	}

	stamp := time.Now().UTC().Format("20060102_150405")

	var files []string
	for _, bn := range backupNames {
		src := filepath.Join(d.dbPath, bn.file)
		if _, err := os.Stat(src); errors.Is(err, os.ErrNotExist) {
			continue
		}

		dst := filepath.Join(dir, fmt.Sprintf("%s_%s.json", bn.prefix, stamp))
		if err := copyFile(src, dst); err != nil {
			return files, fmt.Errorf("copy %s: %w", bn.file, err)
		}
		files = append(files, dst)
	}

	return files, nil
}

// =============================================================================

// write encodes the value as indented JSON with sorted keys and replaces
// the named file. The file is written to a temp file first and renamed so
// a crash never leaves a partial file behind.
func (d *Disk) write(name string, v any) error {
	tree, err := canonical.Tree(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", name, err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(tree); err != nil {
		return fmt.Errorf("encoding %s: %w", name, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	path := filepath.Join(d.dbPath, name)
	tmp := path + ".tmp"

	if err := os.WriteFile(tmp, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing %s: %w", name, err)
	}

	return nil
}

// read returns the contents of the named file or nil if it doesn't exist.
func (d *Disk) read(name string) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(d.dbPath, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}

	return data, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
