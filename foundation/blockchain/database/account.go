package database

import (
	"sort"
)

// Balances represents the ledger state, the balance held by each account.
// A value is never mutated by the ledger functions in this package, every
// state transition returns a new value.
type Balances map[string]int64

// Copy returns an independent copy of the balances.
func (b Balances) Copy() Balances {
	cpy := make(Balances, len(b))
	for account, balance := range b {
		cpy[account] = balance
	}
	return cpy
}

// Balance returns the balance for the account. Unknown accounts hold zero.
func (b Balances) Balance(account string) int64 {
	return b[account]
}

// Apply returns a new state with every delta of the transfer added to the
// matching account. Accounts missing from the state start at zero. No
// validation is performed, the transfer must already be validated.
func (b Balances) Apply(tr Transfer) Balances {
	next := b.Copy()
	for account, delta := range tr {
		next[account] += delta
	}
	return next
}

// Sum returns the total value held across all accounts.
func (b Balances) Sum() int64 {
	var sum int64
	for _, balance := range b {
		sum += balance
	}
	return sum
}

// Accounts returns the account names in sorted order.
func (b Balances) Accounts() []string {
	accounts := make([]string, 0, len(b))
	for account := range b {
		accounts = append(accounts, account)
	}
	sort.Strings(accounts)
	return accounts
}

// Equal reports whether both states hold the same balances. An account
// holding zero is treated the same as a missing account.
func (b Balances) Equal(other Balances) bool {
	for account, balance := range b {
		if other[account] != balance {
			return false
		}
	}
	for account, balance := range other {
		if b[account] != balance {
			return false
		}
	}
	return true
}
