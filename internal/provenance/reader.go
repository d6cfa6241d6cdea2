// Package provenance reconstructs an asset's ownership timeline from ledger
// records and exposes it as a navigable, one-record-per-page sequence.
package provenance

import (
	"context"
	"sync"

	"provenly.org/internal/ledger"
	"provenly.org/internal/wallet"
)

// Resolver resolves an address to its registered identity. Satisfied by
// identity.Service.
type Resolver interface {
	Resolve(ctx context.Context, addr wallet.Account) (ledger.Identity, error)
}

// Entry is one ownership record annotated for display.
type Entry struct {
	AssetID      string         `json:"asset_id"`
	OwnerName    string         `json:"owner_name,omitempty"`
	OwnerAddress wallet.Account `json:"owner_address"`
	From         wallet.Account `json:"from,omitempty"`
	Timestamp    int64          `json:"timestamp"`
}

// Reader reads ownership history with a per-asset cache that ledger
// transfer events invalidate. Identity annotation is a lazy join done per
// view, never cached here.
type Reader struct {
	contract *ledger.Contract
	resolver Resolver

	mu    sync.Mutex
	cache map[string][]ledger.OwnershipRecord
}

func NewReader(contract *ledger.Contract, resolver Resolver) *Reader {
	return &Reader{
		contract: contract,
		resolver: resolver,
		cache:    make(map[string][]ledger.OwnershipRecord),
	}
}

// History returns the asset's completed transfers, oldest first.
func (r *Reader) History(ctx context.Context, assetID string) ([]ledger.OwnershipRecord, error) {
	r.mu.Lock()
	cached, ok := r.cache[assetID]
	r.mu.Unlock()
	if ok {
		out := make([]ledger.OwnershipRecord, len(cached))
		copy(out, cached)
		return out, nil
	}

	records, err := r.contract.OwnershipHistory(ctx, assetID)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.cache[assetID] = records
	r.mu.Unlock()

	out := make([]ledger.OwnershipRecord, len(records))
	copy(out, records)
	return out, nil
}

// Annotate joins one record with the identity registered for its new owner.
func (r *Reader) Annotate(ctx context.Context, rec ledger.OwnershipRecord) (Entry, error) {
	id, err := r.resolver.Resolve(ctx, rec.To)
	if err != nil {
		return Entry{}, err
	}
	return Entry{
		AssetID:      rec.AssetID,
		OwnerName:    id.Name,
		OwnerAddress: rec.To,
		From:         rec.From,
		Timestamp:    rec.Timestamp,
	}, nil
}

// AnnotatedHistory loads the history and resolves each record's owner.
func (r *Reader) AnnotatedHistory(ctx context.Context, assetID string) ([]Entry, error) {
	records, err := r.History(ctx, assetID)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(records))
	for _, rec := range records {
		entry, err := r.Annotate(ctx, rec)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Invalidate drops the cached history for an asset.
func (r *Reader) Invalidate(assetID string) {
	r.mu.Lock()
	delete(r.cache, assetID)
	r.mu.Unlock()
}

// Watch consumes transfer events from the watcher and invalidates the
// affected asset's cached history. It resubscribes whenever the upstream
// channel closes and returns once ctx is done.
func (r *Reader) Watch(ctx context.Context, watcher ledger.Watcher) error {
	for {
		ch, err := watcher.WatchTransfers(ctx, "")
		if err != nil {
			return err
		}
		for rec := range ch {
			r.Invalidate(rec.AssetID)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			// Upstream dropped; subscribe again.
		}
	}
}
