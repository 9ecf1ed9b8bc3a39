package state

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ardanlabs/ledger/foundation/blockchain/keystore"
	"github.com/ardanlabs/ledger/foundation/blockchain/signature"
	"github.com/ardanlabs/ledger/foundation/blockchain/storage/sqlite"
)

// User represents a registered user and their current balance.
type User struct {
	Name      string
	PublicKey string
	Balance   int64
}

// CreateUser registers a new user with a generated secret. A new user holds
// nothing until a transfer credits them.
func (s *State) CreateUser(name string) (User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return User{}, fmt.Errorf("%w: name is required", ErrInvalidUser)
	}

	publicKey, err := s.registerUser(name)
	if err != nil {
		return User{}, err
	}

	s.evHandler("state: CreateUser: user[%s]: publicKey[%s]", name, publicKey)

	usr := User{
		Name:      name,
		PublicKey: publicKey,
		Balance:   s.db.Balances().Balance(name),
	}

	return usr, nil
}

// Users returns all registered users with their balances.
func (s *State) Users() []User {
	balances := s.db.Balances()

	names := s.keys.Names()
	users := make([]User, 0, len(names))
	for _, name := range names {
		publicKey, err := s.keys.PublicKey(name)
		if err != nil {
			continue
		}

		users = append(users, User{
			Name:      name,
			PublicKey: publicKey,
			Balance:   balances.Balance(name),
		})
	}

	return users
}

// registerUser generates a secret for the user and records it in the index
// and then the key store. A user is never in the key store without the index
// holding their secret.
func (s *State) registerUser(name string) (string, error) {
	s.userMu.Lock()
	defer s.userMu.Unlock()

	if _, err := s.keys.Secret(name); err == nil {
		return "", fmt.Errorf("%w: %s", ErrUserExists, name)
	}

	secret, err := keystore.NewSecret()
	if err != nil {
		return "", err
	}
	publicKey := signature.PublicKey(secret)

	if s.index != nil {
		_, err := s.index.User(name)
		switch {
		case err == nil:
			return "", fmt.Errorf("%w: %s", ErrUserExists, name)
		case !errors.Is(err, sqlite.ErrUserNotFound):
			return "", fmt.Errorf("checking user: %w", err)
		}

		usr := sqlite.User{
			Name:      name,
			Secret:    secret,
			PublicKey: publicKey,
		}

		if err := s.index.SaveUser(usr); err != nil {
			return "", fmt.Errorf("saving user: %w", err)
		}
	}

	if err := s.keys.Add(name, secret); err != nil {
		if errors.Is(err, keystore.ErrExists) {
			return "", fmt.Errorf("%w: %s", ErrUserExists, name)
		}
		return "", err
	}

	return publicKey, nil
}
