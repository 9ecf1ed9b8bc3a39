// Package keystore maintains the registry of account names and the secrets
// used to sign on their behalf. Secrets can be generated, loaded from and
// saved to the zblock/accounts folder as .ecdsa key files.
package keystore

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ardanlabs/ledger/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Set of errors returned by the key store.
var (
	ErrNotFound = errors.New("account not found")
	ErrExists   = errors.New("account already exists")
)

// KeyStore maintains a map of account names to their secrets.
type KeyStore struct {
	mu      sync.RWMutex
	secrets map[string]string
}

// New constructs an empty key store.
func New() *KeyStore {
	return &KeyStore{
		secrets: make(map[string]string),
	}
}

// Add registers the secret for the named account.
func (ks *KeyStore) Add(name string, secret string) error {
	if name == "" || secret == "" {
		return errors.New("name and secret are required")
	}

	ks.mu.Lock()
	defer ks.mu.Unlock()

	if _, exists := ks.secrets[name]; exists {
		return fmt.Errorf("%w: %s", ErrExists, name)
	}

	ks.secrets[name] = secret
	return nil
}

// LoadFolder registers an account for every .ecdsa file found under root.
// The file name without the extension is the account name.
func (ks *KeyStore) LoadFolder(root string) error {
	fn := func(fileName string, info fs.FileInfo, err error) error {
		if err != nil {
			return fmt.Errorf("walkdir failure: %w", err)
		}

		if path.Ext(fileName) != ".ecdsa" {
			return nil
		}

		privateKey, err := crypto.LoadECDSA(fileName)
		if err != nil {
			return fmt.Errorf("loading %s: %w", fileName, err)
		}

		name := strings.TrimSuffix(path.Base(fileName), ".ecdsa")
		return ks.Add(name, common.Bytes2Hex(crypto.FromECDSA(privateKey)))
	}

	if err := filepath.Walk(root, fn); err != nil {
		return fmt.Errorf("walking directory: %w", err)
	}

	return nil
}

// Save writes the secret of the named account into dir as an .ecdsa key
// file. Only secrets produced by NewSecret can be saved this way.
func (ks *KeyStore) Save(name string, dir string) (string, error) {
	secret, err := ks.Secret(name)
	if err != nil {
		return "", err
	}

	return SaveSecret(secret, filepath.Join(dir, name+".ecdsa"))
}

// Secret returns the secret for the named account.
func (ks *KeyStore) Secret(name string) (string, error) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()

	secret, exists := ks.secrets[name]
	if !exists {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return secret, nil
}

// PublicKey returns the public credential for the named account.
func (ks *KeyStore) PublicKey(name string) (string, error) {
	secret, err := ks.Secret(name)
	if err != nil {
		return "", err
	}
	return signature.PublicKey(secret), nil
}

// Lookup returns the name of the account owning the public credential.
func (ks *KeyStore) Lookup(publicKey string) (string, bool) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()

	for name, secret := range ks.secrets {
		if signature.PublicKey(secret) == publicKey {
			return name, true
		}
	}
	return "", false
}

// LookupSecret implements signature.SecretLookup by scanning the registry
// for the secret whose derived public credential matches.
func (ks *KeyStore) LookupSecret(publicKey string) (string, bool) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()

	for _, secret := range ks.secrets {
		if signature.PublicKey(secret) == publicKey {
			return secret, true
		}
	}
	return "", false
}

// Names returns the registered account names in sorted order.
func (ks *KeyStore) Names() []string {
	ks.mu.RLock()
	defer ks.mu.RUnlock()

	names := make([]string, 0, len(ks.secrets))
	for name := range ks.secrets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// =============================================================================

// NewSecret generates a random secret. The secret is the hex encoding of a
// new ECDSA private key so it can be stored as a key file.
func NewSecret() (string, error) {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return "", fmt.Errorf("generating key: %w", err)
	}
	return common.Bytes2Hex(crypto.FromECDSA(privateKey)), nil
}

// SaveSecret writes the secret to the key file and returns the file name.
func SaveSecret(secret string, fileName string) (string, error) {
	privateKey, err := crypto.HexToECDSA(secret)
	if err != nil {
		return "", fmt.Errorf("secret is not a key: %w", err)
	}

	if err := crypto.SaveECDSA(fileName, privateKey); err != nil {
		return "", fmt.Errorf("saving key: %w", err)
	}

	return fileName, nil
}

// LoadSecret reads the secret from the key file.
func LoadSecret(fileName string) (string, error) {
	privateKey, err := crypto.LoadECDSA(fileName)
	if err != nil {
		return "", fmt.Errorf("loading key: %w", err)
	}
	return common.Bytes2Hex(crypto.FromECDSA(privateKey)), nil
}
