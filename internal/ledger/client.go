package ledger

import (
	"context"
	"encoding/json"

	"provenly.org/internal/wallet"
)

// Method names exposed by the deployed ownership contract.
const (
	MethodGetDigitalIdentity = "getDigitalIdentity"
	MethodAddUser            = "addUser"
	MethodRegisterBrand      = "registerBrand"
	MethodVerifyBrand        = "verifyBrandAddress"
	MethodRegisterAsset      = "registerAssetWithIPFS"
	MethodGetAsset           = "getAsset"
	MethodGetUserAssets      = "getUserAssets"
	MethodVerifyOwner        = "verifyOwner"
	MethodInitiateTransfer   = "initiateTransferAsset"
	MethodCancelTransfer     = "cancelTransaction"
	MethodConfirmTransfer    = "confirmTransferAsset"
	MethodPendingTransfer    = "getPendingTransactions"
	MethodOwnershipHistory   = "showOwnershipHistory"
)

// Client invokes methods on the ownership contract. Call is read-only and
// carries no signing semantics. Send mutates ledger state and is routed
// through the signing provider; it returns once the transport acknowledges
// inclusion, not when the state change is final.
type Client interface {
	Call(ctx context.Context, method string, args ...any) (json.RawMessage, error)
	Send(ctx context.Context, from wallet.Account, method string, args ...any) (wallet.TxHandle, error)
}

// Watcher yields ownership records as the ledger appends them. The returned
// channel closes when ctx is done or the upstream subscription drops;
// consumers restart by subscribing again. assetID narrows the stream to one
// asset; empty means all assets.
type Watcher interface {
	WatchTransfers(ctx context.Context, assetID string) (<-chan OwnershipRecord, error)
}
