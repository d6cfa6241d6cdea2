package ledger

import (
	"errors"
	"fmt"

	"provenly.org/internal/wallet"
)

// ZeroAddress is the contract's sentinel for "no account". It never escapes
// this package: the typed bindings translate it to an absent value.
const ZeroAddress wallet.Account = "0x0000000000000000000000000000000000000000"

// Identity binds an address to a registered display name. An empty Name
// means the address has never registered.
type Identity struct {
	Address wallet.Account `json:"address"`
	Name    string         `json:"name"`
	IsBrand bool           `json:"isBrand"`
}

// Registered reports whether the identity has been bound on the ledger.
func (id Identity) Registered() bool { return id.Name != "" }

// AssetRecord is the on-ledger record of a registered asset. MetadataCID
// references the content-addressed metadata document and is immutable once
// committed.
type AssetRecord struct {
	AssetID     string         `json:"assetId"`
	Name        string         `json:"name"`
	MetadataCID string         `json:"metadataCid"`
	Registrant  wallet.Account `json:"registrant"`
}

// OwnershipRecord is one completed transfer. The initial registration is a
// degenerate transfer with an absent From. Sequence is ledger-assigned and
// strictly increasing across the whole ledger.
type OwnershipRecord struct {
	AssetID   string         `json:"assetId"`
	From      wallet.Account `json:"from"`
	To        wallet.Account `json:"to"`
	Timestamp int64          `json:"timestamp"`
	Sequence  uint64         `json:"sequence"`
}

// PendingTransfer is an in-flight transfer proposal awaiting recipient
// action. At most one exists per asset.
type PendingTransfer struct {
	AssetID string         `json:"assetId"`
	From    wallet.Account `json:"from"`
	To      wallet.Account `json:"to"`
}

var (
	// ErrTransport covers network and RPC failures, including the remote
	// not responding at all.
	ErrTransport = errors.New("ledger: transport failure")

	// ErrNotFound is returned for reads of assets the ledger does not know.
	ErrNotFound = errors.New("ledger: not found")
)

// RevertError is a business-rule rejection by the contract itself.
type RevertError struct {
	Reason string
}

func (e *RevertError) Error() string {
	return fmt.Sprintf("ledger: contract reverted: %s", e.Reason)
}

// Revert builds a RevertError with the given reason.
func Revert(reason string) error { return &RevertError{Reason: reason} }

// IsRevert reports whether err is a contract rejection.
func IsRevert(err error) bool {
	var re *RevertError
	return errors.As(err, &re)
}
