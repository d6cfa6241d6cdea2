package provenance

import (
	"context"
	"testing"
	"time"

	"provenly.org/internal/identity"
	"provenly.org/internal/ledger"
	"provenly.org/internal/ledger/inmemory"
	"provenly.org/internal/wallet"
)

const (
	admin = wallet.Account("0xAD")
	brand = wallet.Account("0xB1")
	buyer = wallet.Account("0xC2")
)

func seed(t *testing.T) (*Reader, *ledger.Contract, *inmemory.Ledger) {
	t.Helper()
	l := inmemory.New(admin, inmemory.WithBrand(brand))
	contract := ledger.NewContract(l)
	ctx := context.Background()

	if _, err := contract.RegisterIdentity(ctx, brand, "Acme"); err != nil {
		t.Fatal(err)
	}
	if _, err := contract.RegisterIdentity(ctx, buyer, "Robin"); err != nil {
		t.Fatal(err)
	}
	if _, err := contract.RegisterAsset(ctx, brand, "asset-1", "Bag", "bafy"); err != nil {
		t.Fatal(err)
	}
	reader := NewReader(contract, identity.NewService(contract))
	return reader, contract, l
}

func transferOnce(t *testing.T, contract *ledger.Contract) {
	t.Helper()
	ctx := context.Background()
	if _, err := contract.InitiateTransfer(ctx, brand, "asset-1", buyer); err != nil {
		t.Fatal(err)
	}
	if _, err := contract.ConfirmTransfer(ctx, buyer, "asset-1"); err != nil {
		t.Fatal(err)
	}
}

func TestHistoryChronological(t *testing.T) {
	ctx := context.Background()
	reader, contract, _ := seed(t)
	transferOnce(t, contract)

	records, err := reader.History(ctx, "asset-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if !records[0].From.IsZero() || !records[1].From.Equal(brand) {
		t.Fatalf("unexpected order: %+v", records)
	}
	for i := 1; i < len(records); i++ {
		if records[i].Sequence <= records[i-1].Sequence {
			t.Fatalf("sequence not increasing: %+v", records)
		}
	}
}

func TestAnnotatedHistoryJoinsIdentities(t *testing.T) {
	ctx := context.Background()
	reader, contract, _ := seed(t)
	transferOnce(t, contract)

	entries, err := reader.AnnotatedHistory(ctx, "asset-1")
	if err != nil {
		t.Fatal(err)
	}
	if entries[0].OwnerName != "Acme" || entries[1].OwnerName != "Robin" {
		t.Fatalf("identity join failed: %+v", entries)
	}
	if !entries[1].OwnerAddress.Equal(buyer) {
		t.Fatalf("unexpected owner address: %+v", entries[1])
	}
}

func TestHistoryCacheAndInvalidation(t *testing.T) {
	ctx := context.Background()
	reader, contract, _ := seed(t)

	first, err := reader.History(ctx, "asset-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 1 {
		t.Fatalf("expected genesis only, got %d", len(first))
	}

	transferOnce(t, contract)

	// Cached view until invalidated.
	stale, _ := reader.History(ctx, "asset-1")
	if len(stale) != 1 {
		t.Fatalf("expected cached view, got %d records", len(stale))
	}

	reader.Invalidate("asset-1")
	fresh, _ := reader.History(ctx, "asset-1")
	if len(fresh) != 2 {
		t.Fatalf("expected refreshed view, got %d records", len(fresh))
	}
}

func TestWatchInvalidatesCache(t *testing.T) {
	reader, contract, l := seed(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- reader.Watch(ctx, l) }()

	if _, err := reader.History(ctx, "asset-1"); err != nil {
		t.Fatal(err)
	}
	transferOnce(t, contract)

	// The watcher invalidates asynchronously; poll until the fresh view
	// appears.
	deadline := time.After(2 * time.Second)
	for {
		records, err := reader.History(ctx, "asset-1")
		if err != nil {
			t.Fatal(err)
		}
		if len(records) == 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("cache never invalidated by watcher")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop on cancel")
	}
}

func TestTimelineClamping(t *testing.T) {
	records := []ledger.OwnershipRecord{
		{AssetID: "asset-1", To: brand, Sequence: 1},
		{AssetID: "asset-1", From: brand, To: buyer, Sequence: 2},
		{AssetID: "asset-1", From: buyer, To: "0xDD", Sequence: 3},
	}
	tl := NewTimeline(records)

	if tl.Len() != 3 || tl.Active() != 0 {
		t.Fatalf("unexpected initial state: len=%d active=%d", tl.Len(), tl.Active())
	}

	// Backward on the first page is a no-op.
	if got := tl.Backward(); got != 0 {
		t.Fatalf("backward on first page moved to %d", got)
	}

	tl.Forward()
	tl.Forward()
	if tl.Active() != 2 {
		t.Fatalf("expected last page, got %d", tl.Active())
	}
	// Forward on the last page is a no-op.
	if got := tl.Forward(); got != 2 {
		t.Fatalf("forward on last page moved to %d", got)
	}

	rec, ok := tl.Record()
	if !ok || rec.Sequence != 3 {
		t.Fatalf("unexpected active record: %+v ok=%v", rec, ok)
	}

	// Valid jumps land, invalid jumps are ignored.
	if got := tl.Go(1); got != 1 {
		t.Fatalf("go(1) landed on %d", got)
	}
	if got := tl.Go(7); got != 1 {
		t.Fatalf("go out of range moved to %d", got)
	}
	if got := tl.Go(-1); got != 1 {
		t.Fatalf("go negative moved to %d", got)
	}
}

func TestTimelineEmpty(t *testing.T) {
	tl := NewTimeline(nil)
	if tl.Forward() != 0 || tl.Backward() != 0 {
		t.Fatal("empty timeline must stay on page 0")
	}
	if _, ok := tl.Record(); ok {
		t.Fatal("empty timeline must yield no record")
	}
}
