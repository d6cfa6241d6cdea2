package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"provenly.org/internal/wallet"
)

// Contract provides typed access to the ownership contract on top of the
// generic Client. All sentinel translation happens here: callers above this
// layer never see ZeroAddress.
type Contract struct {
	client Client
}

func NewContract(client Client) *Contract {
	return &Contract{client: client}
}

// DigitalIdentity resolves the identity bound to an address. It succeeds for
// any well-formed address; an unregistered address yields an identity with
// an empty name.
func (c *Contract) DigitalIdentity(ctx context.Context, addr wallet.Account) (Identity, error) {
	raw, err := c.client.Call(ctx, MethodGetDigitalIdentity, addr.String())
	if err != nil {
		return Identity{}, err
	}
	var id Identity
	if err := json.Unmarshal(raw, &id); err != nil {
		return Identity{}, fmt.Errorf("decode identity: %w", err)
	}
	if id.Address.IsZero() {
		id.Address = addr
	}
	return id, nil
}

// RegisterIdentity binds a display name to the sending address.
func (c *Contract) RegisterIdentity(ctx context.Context, from wallet.Account, name string) (wallet.TxHandle, error) {
	return c.client.Send(ctx, from, MethodAddUser, name, from.String())
}

// RegisterBrand marks an address as a brand account. Only the contract
// admin may send this.
func (c *Contract) RegisterBrand(ctx context.Context, admin, brand wallet.Account) (wallet.TxHandle, error) {
	return c.client.Send(ctx, admin, MethodRegisterBrand, brand.String())
}

// VerifyBrand reports whether the address is a registered brand.
func (c *Contract) VerifyBrand(ctx context.Context, addr wallet.Account) (bool, error) {
	raw, err := c.client.Call(ctx, MethodVerifyBrand, addr.String())
	if err != nil {
		return false, err
	}
	var isBrand bool
	if err := json.Unmarshal(raw, &isBrand); err != nil {
		return false, fmt.Errorf("decode brand flag: %w", err)
	}
	return isBrand, nil
}

// RegisterAsset commits an asset record binding assetID and name to the
// metadata document. The contract rejects duplicate asset ids and
// non-brand senders.
func (c *Contract) RegisterAsset(ctx context.Context, from wallet.Account, assetID, name, metadataCID string) (wallet.TxHandle, error) {
	return c.client.Send(ctx, from, MethodRegisterAsset, assetID, name, metadataCID)
}

// Asset reads the on-ledger record for an asset.
func (c *Contract) Asset(ctx context.Context, assetID string) (AssetRecord, error) {
	raw, err := c.client.Call(ctx, MethodGetAsset, assetID)
	if err != nil {
		return AssetRecord{}, err
	}
	var rec AssetRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return AssetRecord{}, fmt.Errorf("decode asset: %w", err)
	}
	return rec, nil
}

// UserAssets lists ids of assets whose current owner is addr.
func (c *Contract) UserAssets(ctx context.Context, addr wallet.Account) ([]string, error) {
	raw, err := c.client.Call(ctx, MethodGetUserAssets, addr.String())
	if err != nil {
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, fmt.Errorf("decode asset ids: %w", err)
	}
	return ids, nil
}

// Owner returns the current owner of an asset.
func (c *Contract) Owner(ctx context.Context, assetID string) (wallet.Account, error) {
	raw, err := c.client.Call(ctx, MethodVerifyOwner, assetID)
	if err != nil {
		return "", err
	}
	var owner wallet.Account
	if err := json.Unmarshal(raw, &owner); err != nil {
		return "", fmt.Errorf("decode owner: %w", err)
	}
	return owner, nil
}

// InitiateTransfer proposes moving the asset to a new owner.
func (c *Contract) InitiateTransfer(ctx context.Context, from wallet.Account, assetID string, to wallet.Account) (wallet.TxHandle, error) {
	return c.client.Send(ctx, from, MethodInitiateTransfer, assetID, to.String())
}

// CancelTransfer aborts the pending transfer of an asset. The contract
// accepts it from either party of the pending transfer.
func (c *Contract) CancelTransfer(ctx context.Context, from wallet.Account, assetID string) (wallet.TxHandle, error) {
	return c.client.Send(ctx, from, MethodCancelTransfer, assetID)
}

// ConfirmTransfer completes the pending transfer of an asset. Only the
// designated recipient may send it.
func (c *Contract) ConfirmTransfer(ctx context.Context, from wallet.Account, assetID string) (wallet.TxHandle, error) {
	return c.client.Send(ctx, from, MethodConfirmTransfer, assetID)
}

// PendingTransfer returns the asset's in-flight transfer, or nil when none
// exists. The contract encodes absence as a record whose recipient is the
// zero address; that sentinel is converted here.
func (c *Contract) PendingTransfer(ctx context.Context, assetID string) (*PendingTransfer, error) {
	raw, err := c.client.Call(ctx, MethodPendingTransfer, assetID)
	if err != nil {
		return nil, err
	}
	var pending PendingTransfer
	if err := json.Unmarshal(raw, &pending); err != nil {
		return nil, fmt.Errorf("decode pending transfer: %w", err)
	}
	if pending.To.IsZero() || pending.To.Equal(ZeroAddress) {
		return nil, nil
	}
	return &pending, nil
}

// OwnershipHistory returns the asset's completed transfers in chronological
// order. The ledger already returns them oldest-first; if the source order
// is broken we sort by timestamp, ties broken by ledger sequence, rather
// than silently trusting it.
func (c *Contract) OwnershipHistory(ctx context.Context, assetID string) ([]OwnershipRecord, error) {
	raw, err := c.client.Call(ctx, MethodOwnershipHistory, assetID)
	if err != nil {
		return nil, err
	}
	var records []OwnershipRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	for i := range records {
		if records[i].From.Equal(ZeroAddress) {
			records[i].From = ""
		}
	}
	if !chronological(records) {
		sort.SliceStable(records, func(i, j int) bool {
			if records[i].Timestamp != records[j].Timestamp {
				return records[i].Timestamp < records[j].Timestamp
			}
			return records[i].Sequence < records[j].Sequence
		})
	}
	return records, nil
}

func chronological(records []OwnershipRecord) bool {
	for i := 1; i < len(records); i++ {
		if records[i].Timestamp < records[i-1].Timestamp {
			return false
		}
	}
	return true
}
