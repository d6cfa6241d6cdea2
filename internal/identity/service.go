// Package identity resolves wallet addresses to registered digital
// identities and registers new ones. An identity is bound exactly once;
// there is no rename.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"provenly.org/internal/ledger"
	"provenly.org/internal/wallet"
)

var (
	ErrAlreadyRegistered = errors.New("identity: address already registered")
	ErrNameMismatch      = errors.New("identity: display name does not match registered identity")
	ErrEmptyName         = errors.New("identity: display name must not be empty")
)

// Service reads and writes identities on the ownership contract.
type Service struct {
	contract *ledger.Contract
}

func NewService(contract *ledger.Contract) *Service {
	return &Service{contract: contract}
}

// Resolve returns the identity bound to addr. It never fails for a
// well-formed address: unregistered addresses resolve to an identity with
// an empty name.
func (s *Service) Resolve(ctx context.Context, addr wallet.Account) (ledger.Identity, error) {
	return s.contract.DigitalIdentity(ctx, addr)
}

// Register binds name to the acting account. It resolves first: an address
// that already carries a name is rejected here rather than relying on the
// contract to revert, though the contract rejects it independently.
func (s *Service) Register(ctx context.Context, acting wallet.Account, name string) error {
	if acting.IsZero() {
		return wallet.ErrNotConnected
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}

	existing, err := s.contract.DigitalIdentity(ctx, acting)
	if err != nil {
		return fmt.Errorf("resolve before register: %w", err)
	}
	if existing.Registered() {
		return ErrAlreadyRegistered
	}

	if _, err := s.contract.RegisterIdentity(ctx, acting, name); err != nil {
		return err
	}
	return nil
}

// Login implements the resolve-then-register flow: an unregistered address
// is registered under name; a registered address must present its exact
// registered name or the attempt is treated as an authentication mismatch.
func (s *Service) Login(ctx context.Context, acting wallet.Account, name string) (ledger.Identity, error) {
	if acting.IsZero() {
		return ledger.Identity{}, wallet.ErrNotConnected
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return ledger.Identity{}, ErrEmptyName
	}

	existing, err := s.contract.DigitalIdentity(ctx, acting)
	if err != nil {
		return ledger.Identity{}, err
	}
	if !existing.Registered() {
		if _, err := s.contract.RegisterIdentity(ctx, acting, name); err != nil {
			return ledger.Identity{}, err
		}
		return s.contract.DigitalIdentity(ctx, acting)
	}
	if existing.Name != name {
		return ledger.Identity{}, ErrNameMismatch
	}
	return existing, nil
}
