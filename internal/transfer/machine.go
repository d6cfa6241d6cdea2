// Package transfer drives the two-party ownership-transfer protocol.
// Per asset the states are Owned(owner) -> TransferPending(from, to) and
// back: confirm moves ownership to the recipient, cancel and decline return
// it to the original owner. Every operation re-reads on-ledger state before
// acting; stale local state is never trusted for authorization, and a
// "stale read, then rejected write" from the contract is a normal outcome.
package transfer

import (
	"context"
	"errors"
	"fmt"

	"provenly.org/internal/ledger"
	"provenly.org/internal/wallet"
)

var (
	ErrNotOwner          = errors.New("transfer: account is not the asset owner")
	ErrNotInitiator      = errors.New("transfer: account did not initiate the transfer")
	ErrNotRecipient      = errors.New("transfer: account is not the transfer recipient")
	ErrNotParticipant    = errors.New("transfer: account is not a party to the transfer")
	ErrInvalidRecipient  = errors.New("transfer: invalid transfer recipient")
	ErrAlreadyPending    = errors.New("transfer: a transfer is already pending")
	ErrNoPendingTransfer = errors.New("transfer: no transfer is pending")
)

// Status is the asset's current transfer state: the owner plus the pending
// proposal, if one exists.
type Status struct {
	AssetID string
	Owner   wallet.Account
	Pending *ledger.PendingTransfer
}

// Machine executes transfer transitions against the ownership contract.
type Machine struct {
	contract *ledger.Contract
}

func NewMachine(contract *ledger.Contract) *Machine {
	return &Machine{contract: contract}
}

// Status re-reads the asset's owner and pending transfer from the ledger.
func (m *Machine) Status(ctx context.Context, assetID string) (Status, error) {
	owner, err := m.contract.Owner(ctx, assetID)
	if err != nil {
		return Status{}, err
	}
	pending, err := m.contract.PendingTransfer(ctx, assetID)
	if err != nil {
		return Status{}, err
	}
	return Status{AssetID: assetID, Owner: owner, Pending: pending}, nil
}

// Initiate proposes transferring the asset to recipient. Only the current
// owner may initiate, the recipient must be a real third party, and no
// other transfer may be pending.
func (m *Machine) Initiate(ctx context.Context, acting wallet.Account, assetID string, recipient wallet.Account) (wallet.TxHandle, error) {
	if acting.IsZero() {
		return "", wallet.ErrNotConnected
	}

	st, err := m.Status(ctx, assetID)
	if err != nil {
		return "", err
	}
	if !acting.Equal(st.Owner) {
		return "", fmt.Errorf("%w: owner is %s", ErrNotOwner, st.Owner)
	}
	if recipient.IsZero() || recipient.Equal(st.Owner) {
		return "", ErrInvalidRecipient
	}
	if st.Pending != nil {
		return "", ErrAlreadyPending
	}
	return m.contract.InitiateTransfer(ctx, acting, assetID, recipient)
}

// Cancel aborts the pending transfer. Only the initiating owner may cancel.
func (m *Machine) Cancel(ctx context.Context, acting wallet.Account, assetID string) (wallet.TxHandle, error) {
	if acting.IsZero() {
		return "", wallet.ErrNotConnected
	}

	pending, err := m.contract.PendingTransfer(ctx, assetID)
	if err != nil {
		return "", err
	}
	if pending == nil {
		return "", ErrNoPendingTransfer
	}
	if !acting.Equal(pending.From) {
		return "", ErrNotInitiator
	}
	return m.contract.CancelTransfer(ctx, acting, assetID)
}

// Confirm completes the pending transfer. Only the designated recipient may
// confirm; on success the ledger appends one ownership record.
func (m *Machine) Confirm(ctx context.Context, acting wallet.Account, assetID string) (wallet.TxHandle, error) {
	if acting.IsZero() {
		return "", wallet.ErrNotConnected
	}

	pending, err := m.contract.PendingTransfer(ctx, assetID)
	if err != nil {
		return "", err
	}
	if pending == nil {
		return "", ErrNoPendingTransfer
	}
	if !acting.Equal(pending.To) {
		return "", ErrNotRecipient
	}
	return m.contract.ConfirmTransfer(ctx, acting, assetID)
}

// Decline aborts the pending transfer from either side: both the initiator
// and the designated recipient may walk away, with the identical resulting
// state of ownership staying where it was. Whether the deployed contract
// also lets the recipient through is its call; the check here mirrors the
// in-memory authority.
func (m *Machine) Decline(ctx context.Context, acting wallet.Account, assetID string) (wallet.TxHandle, error) {
	if acting.IsZero() {
		return "", wallet.ErrNotConnected
	}

	pending, err := m.contract.PendingTransfer(ctx, assetID)
	if err != nil {
		return "", err
	}
	if pending == nil {
		return "", ErrNoPendingTransfer
	}
	if !acting.Equal(pending.From) && !acting.Equal(pending.To) {
		return "", ErrNotParticipant
	}
	return m.contract.CancelTransfer(ctx, acting, assetID)
}
