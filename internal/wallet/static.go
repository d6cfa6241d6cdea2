package wallet

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
)

// Static is a Provider backed by a fixed account list. It stands in for a
// browser wallet in local development and tests: Select switches the active
// account, Disconnect empties the list, and RejectNext makes the following
// interactive request fail the way a user pressing "reject" would.
type Static struct {
	mu         sync.Mutex
	accounts   []Account
	active     int
	connected  bool
	rejectNext bool
	submitted  []SubmittedTx
}

// SubmittedTx records a transaction routed through the provider.
type SubmittedTx struct {
	To      Account
	From    Account
	Payload []byte
	Handle  TxHandle
}

// NewStatic creates a connected provider holding the given accounts.
func NewStatic(accounts ...Account) *Static {
	return &Static{accounts: accounts, connected: len(accounts) > 0}
}

// Select makes the account at index i the active one.
func (s *Static) Select(i int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i >= 0 && i < len(s.accounts) {
		s.active = i
	}
}

// Disconnect simulates the user disconnecting the wallet.
func (s *Static) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
}

// RejectNext makes the next RequestAccounts or SubmitTransaction fail with
// ErrUserRejected.
func (s *Static) RejectNext() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectNext = true
}

// Submitted returns all transactions routed through the provider so far.
func (s *Static) Submitted() []SubmittedTx {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SubmittedTx, len(s.submitted))
	copy(out, s.submitted)
	return out
}

func (s *Static) RequestAccounts(ctx context.Context) ([]Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rejectNext {
		s.rejectNext = false
		return nil, ErrUserRejected
	}
	s.connected = len(s.accounts) > 0
	return s.currentLocked(), nil
}

func (s *Static) CurrentAccounts(ctx context.Context) ([]Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentLocked(), nil
}

func (s *Static) SubmitTransaction(ctx context.Context, to, from Account, payload []byte) (TxHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rejectNext {
		s.rejectNext = false
		return "", ErrUserRejected
	}
	if !s.connected {
		return "", ErrNotConnected
	}
	handle := TxHandle("0x" + randomHex(32))
	s.submitted = append(s.submitted, SubmittedTx{To: to, From: from, Payload: payload, Handle: handle})
	return handle, nil
}

func (s *Static) currentLocked() []Account {
	if !s.connected || len(s.accounts) == 0 {
		return nil
	}
	return []Account{s.accounts[s.active]}
}

func randomHex(n int) string {
	buf := make([]byte, n)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
