package inmemory

import (
	"context"
	"errors"
	"testing"
	"time"

	"provenly.org/internal/ledger"
	"provenly.org/internal/wallet"
)

const (
	admin = wallet.Account("0xAD")
	brand = wallet.Account("0xB1")
	buyer = wallet.Account("0xC2")
)

func newContract(t *testing.T) (*ledger.Contract, *Ledger) {
	t.Helper()
	l := New(admin, WithBrand(brand), WithClock(func() time.Time {
		return time.Unix(1700000000, 0)
	}))
	return ledger.NewContract(l), l
}

func TestIdentityRegistration(t *testing.T) {
	ctx := context.Background()
	c, _ := newContract(t)

	id, err := c.DigitalIdentity(ctx, brand)
	if err != nil {
		t.Fatal(err)
	}
	if id.Registered() {
		t.Fatalf("expected unregistered identity, got %+v", id)
	}
	if !id.IsBrand {
		t.Fatal("seeded brand must carry the brand flag")
	}

	if _, err := c.RegisterIdentity(ctx, brand, "Acme"); err != nil {
		t.Fatal(err)
	}
	id, _ = c.DigitalIdentity(ctx, brand)
	if id.Name != "Acme" || !id.IsBrand {
		t.Fatalf("unexpected identity after registration: %+v", id)
	}

	// Second registration reverts; identities are immutable.
	_, err = c.RegisterIdentity(ctx, brand, "Other")
	if !ledger.IsRevert(err) {
		t.Fatalf("expected revert, got %v", err)
	}
}

func TestIdentityLookupIsCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	c, _ := newContract(t)

	if _, err := c.RegisterIdentity(ctx, "0xAbCd", "Maker"); err != nil {
		t.Fatal(err)
	}
	id, err := c.DigitalIdentity(ctx, "0xABCD")
	if err != nil {
		t.Fatal(err)
	}
	if id.Name != "Maker" {
		t.Fatalf("lookup with different casing failed: %+v", id)
	}
}

func TestRegisterAsset(t *testing.T) {
	ctx := context.Background()
	c, _ := newContract(t)

	if _, err := c.RegisterAsset(ctx, brand, "asset-1", "Bag", "bafy-meta"); err != nil {
		t.Fatal(err)
	}

	rec, err := c.Asset(ctx, "asset-1")
	if err != nil {
		t.Fatal(err)
	}
	if rec.MetadataCID != "bafy-meta" || !rec.Registrant.Equal(brand) {
		t.Fatalf("unexpected asset record: %+v", rec)
	}

	owner, _ := c.Owner(ctx, "asset-1")
	if !owner.Equal(brand) {
		t.Fatalf("registrant must be initial owner, got %s", owner)
	}

	history, _ := c.OwnershipHistory(ctx, "asset-1")
	if len(history) != 1 {
		t.Fatalf("expected genesis record, got %d", len(history))
	}
	if !history[0].From.IsZero() {
		t.Fatalf("genesis record must have absent from, got %q", history[0].From)
	}

	ids, _ := c.UserAssets(ctx, brand)
	if len(ids) != 1 || ids[0] != "asset-1" {
		t.Fatalf("unexpected user assets: %v", ids)
	}
}

func TestRegisterAssetRejections(t *testing.T) {
	ctx := context.Background()
	c, _ := newContract(t)

	// Non-brand sender.
	if _, err := c.RegisterAsset(ctx, buyer, "asset-1", "Bag", "bafy"); !ledger.IsRevert(err) {
		t.Fatalf("expected revert for non-brand, got %v", err)
	}

	// Duplicate asset id.
	if _, err := c.RegisterAsset(ctx, brand, "asset-1", "Bag", "bafy"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.RegisterAsset(ctx, brand, "asset-1", "Bag 2", "bafy2"); !ledger.IsRevert(err) {
		t.Fatalf("expected revert for duplicate id, got %v", err)
	}
}

func TestBrandRegistrationRequiresAdmin(t *testing.T) {
	ctx := context.Background()
	c, _ := newContract(t)

	if _, err := c.RegisterBrand(ctx, buyer, buyer); !ledger.IsRevert(err) {
		t.Fatalf("expected revert for non-admin, got %v", err)
	}
	if _, err := c.RegisterBrand(ctx, admin, buyer); err != nil {
		t.Fatal(err)
	}
	ok, _ := c.VerifyBrand(ctx, buyer)
	if !ok {
		t.Fatal("admin-registered brand not recognized")
	}
}

func TestTransferLifecycle(t *testing.T) {
	ctx := context.Background()
	c, _ := newContract(t)

	if _, err := c.RegisterAsset(ctx, brand, "asset-1", "Bag", "bafy"); err != nil {
		t.Fatal(err)
	}

	// No pending transfer before initiation: the sentinel becomes nil.
	pending, err := c.PendingTransfer(ctx, "asset-1")
	if err != nil {
		t.Fatal(err)
	}
	if pending != nil {
		t.Fatalf("expected no pending transfer, got %+v", pending)
	}

	if _, err := c.InitiateTransfer(ctx, brand, "asset-1", buyer); err != nil {
		t.Fatal(err)
	}
	pending, _ = c.PendingTransfer(ctx, "asset-1")
	if pending == nil || !pending.To.Equal(buyer) || !pending.From.Equal(brand) {
		t.Fatalf("unexpected pending transfer: %+v", pending)
	}

	// Only one transfer may be pending.
	if _, err := c.InitiateTransfer(ctx, brand, "asset-1", "0xDD"); !ledger.IsRevert(err) {
		t.Fatalf("expected revert for second initiate, got %v", err)
	}

	// Only the recipient confirms.
	if _, err := c.ConfirmTransfer(ctx, brand, "asset-1"); !ledger.IsRevert(err) {
		t.Fatalf("expected revert for non-recipient confirm, got %v", err)
	}
	if _, err := c.ConfirmTransfer(ctx, buyer, "asset-1"); err != nil {
		t.Fatal(err)
	}

	owner, _ := c.Owner(ctx, "asset-1")
	if !owner.Equal(buyer) {
		t.Fatalf("ownership did not move, owner=%s", owner)
	}
	history, _ := c.OwnershipHistory(ctx, "asset-1")
	if len(history) != 2 {
		t.Fatalf("expected 2 records, got %d", len(history))
	}
	last := history[len(history)-1]
	if !last.From.Equal(brand) || !last.To.Equal(buyer) {
		t.Fatalf("unexpected final record: %+v", last)
	}
	pending, _ = c.PendingTransfer(ctx, "asset-1")
	if pending != nil {
		t.Fatal("pending transfer must be cleared after confirm")
	}

	// Asset index follows ownership.
	brandAssets, _ := c.UserAssets(ctx, brand)
	buyerAssets, _ := c.UserAssets(ctx, buyer)
	if len(brandAssets) != 0 || len(buyerAssets) != 1 {
		t.Fatalf("asset index out of sync: brand=%v buyer=%v", brandAssets, buyerAssets)
	}

	// Cancelling after completion reverts: nothing is pending.
	if _, err := c.CancelTransfer(ctx, brand, "asset-1"); !ledger.IsRevert(err) {
		t.Fatalf("expected revert for cancel with no pending transfer, got %v", err)
	}
}

func TestCancelByEitherParty(t *testing.T) {
	ctx := context.Background()
	c, _ := newContract(t)

	if _, err := c.RegisterAsset(ctx, brand, "asset-1", "Bag", "bafy"); err != nil {
		t.Fatal(err)
	}

	for _, caller := range []wallet.Account{brand, buyer} {
		if _, err := c.InitiateTransfer(ctx, brand, "asset-1", buyer); err != nil {
			t.Fatal(err)
		}
		if _, err := c.CancelTransfer(ctx, "0xEE", "asset-1"); !ledger.IsRevert(err) {
			t.Fatalf("expected revert for third-party cancel, got %v", err)
		}
		if _, err := c.CancelTransfer(ctx, caller, "asset-1"); err != nil {
			t.Fatalf("cancel by %s: %v", caller, err)
		}
		owner, _ := c.Owner(ctx, "asset-1")
		if !owner.Equal(brand) {
			t.Fatalf("cancel must keep the original owner, got %s", owner)
		}
		history, _ := c.OwnershipHistory(ctx, "asset-1")
		if len(history) != 1 {
			t.Fatalf("cancel must not append history, got %d records", len(history))
		}
	}
}

func TestUnknownAsset(t *testing.T) {
	ctx := context.Background()
	c, _ := newContract(t)

	if _, err := c.Asset(ctx, "ghost"); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestWatchTransfers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c, l := newContract(t)

	ch, err := l.WatchTransfers(ctx, "asset-1")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := c.RegisterAsset(ctx, brand, "asset-1", "Bag", "bafy"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.RegisterAsset(ctx, brand, "asset-2", "Hat", "bafy2"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.InitiateTransfer(ctx, brand, "asset-1", buyer); err != nil {
		t.Fatal(err)
	}
	if _, err := c.ConfirmTransfer(ctx, buyer, "asset-1"); err != nil {
		t.Fatal(err)
	}

	want := []wallet.Account{brand, buyer}
	for i := 0; i < 2; i++ {
		select {
		case rec := <-ch:
			if rec.AssetID != "asset-1" {
				t.Fatalf("subscription leaked foreign asset: %+v", rec)
			}
			if !rec.To.Equal(want[i]) {
				t.Fatalf("event %d: expected to=%s got %s", i, want[i], rec.To)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for transfer event")
		}
	}

	cancel()
	select {
	case _, open := <-ch:
		if open {
			t.Fatal("channel should close after cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel did not close")
	}
}
