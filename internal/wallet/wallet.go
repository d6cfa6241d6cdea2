package wallet

import (
	"context"
	"errors"
	"strings"
)

// Account is an opaque ledger address. Addresses are case-insensitive:
// always compare with Equal, never with ==, unless both sides are normalized.
type Account string

// Normalize lowercases the address so it can be used as a map key.
func (a Account) Normalize() Account {
	return Account(strings.ToLower(strings.TrimSpace(string(a))))
}

// Equal reports whether two addresses refer to the same account.
func (a Account) Equal(b Account) bool {
	return strings.EqualFold(strings.TrimSpace(string(a)), strings.TrimSpace(string(b)))
}

// IsZero reports whether the address is absent.
func (a Account) IsZero() bool {
	return strings.TrimSpace(string(a)) == ""
}

func (a Account) String() string { return string(a) }

// TxHandle references a submitted transaction, for display only.
type TxHandle string

var (
	ErrNotConnected = errors.New("wallet: no connected account")
	ErrUserRejected = errors.New("wallet: request rejected by user")
)

// Provider is the signing agent that holds the user's keys and authorizes
// outgoing transactions. Implementations may prompt interactively on
// RequestAccounts; CurrentAccounts never prompts.
type Provider interface {
	RequestAccounts(ctx context.Context) ([]Account, error)
	CurrentAccounts(ctx context.Context) ([]Account, error)
	SubmitTransaction(ctx context.Context, to, from Account, payload []byte) (TxHandle, error)
}

// ActiveAccount returns the provider's currently selected account.
// The selection is process-wide state on the provider side; callers must
// re-read it before every authorization decision rather than holding on to
// a previously returned address.
func ActiveAccount(ctx context.Context, p Provider) (Account, error) {
	accounts, err := p.CurrentAccounts(ctx)
	if err != nil {
		return "", err
	}
	if len(accounts) == 0 || accounts[0].IsZero() {
		return "", ErrNotConnected
	}
	return accounts[0], nil
}
