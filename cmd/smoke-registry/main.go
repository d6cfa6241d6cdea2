package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"provenly.org/internal/identity"
	"provenly.org/internal/ledger"
	"provenly.org/internal/ledger/inmemory"
	"provenly.org/internal/provenance"
	"provenly.org/internal/registry"
	"provenly.org/internal/storage"
	"provenly.org/internal/transfer"
)

const (
	admin = "0xAD00"
	brand = "0xB100"
	buyer = "0xC200"
)

// Runs the full registration and transfer workflow against the in-process
// ledger and memory store, end to end.
func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	node := inmemory.New(admin)
	contract := ledger.NewContract(node)
	store := storage.NewMemory()

	identities := identity.NewService(contract)
	pipeline := registry.NewPipeline(contract, store)
	machine := transfer.NewMachine(contract)
	reader := provenance.NewReader(contract, identities)

	if err := identities.Register(ctx, brand, "Acme Leather"); err != nil {
		log.Fatalf("register brand identity: %v", err)
	}
	if err := identities.Register(ctx, buyer, "Robin"); err != nil {
		log.Fatalf("register buyer identity: %v", err)
	}
	if _, err := contract.RegisterBrand(ctx, admin, brand); err != nil {
		log.Fatalf("grant brand role: %v", err)
	}

	asset, err := pipeline.Register(ctx, brand, "Weekender Bag", "Full-grain leather, single batch.",
		[][]byte{[]byte("front view"), []byte("side view")})
	if err != nil {
		log.Fatalf("register asset: %v", err)
	}

	detail, err := pipeline.Detail(ctx, asset.ID)
	if err != nil {
		log.Fatalf("asset detail: %v", err)
	}
	if len(detail.ImageURLs) != 2 {
		log.Fatalf("expected 2 image urls, got %d", len(detail.ImageURLs))
	}

	if _, err := machine.Initiate(ctx, brand, asset.ID, buyer); err != nil {
		log.Fatalf("initiate transfer: %v", err)
	}
	if _, err := machine.Confirm(ctx, buyer, asset.ID); err != nil {
		log.Fatalf("confirm transfer: %v", err)
	}

	owner, err := contract.Owner(ctx, asset.ID)
	if err != nil {
		log.Fatalf("owner: %v", err)
	}
	if !owner.Equal(buyer) {
		log.Fatalf("ownership did not move: owner=%s", owner)
	}

	entries, err := reader.AnnotatedHistory(ctx, asset.ID)
	if err != nil {
		log.Fatalf("history: %v", err)
	}
	if len(entries) != 2 {
		log.Fatalf("expected 2 history entries, got %d", len(entries))
	}
	if entries[0].OwnerName != "Acme Leather" || entries[1].OwnerName != "Robin" {
		log.Fatalf("unexpected owner names: %s, %s", entries[0].OwnerName, entries[1].OwnerName)
	}

	records, err := reader.History(ctx, asset.ID)
	if err != nil {
		log.Fatalf("records: %v", err)
	}
	timeline := provenance.NewTimeline(records)
	timeline.Forward()
	if timeline.Active() != 1 {
		log.Fatalf("timeline did not advance: %d", timeline.Active())
	}

	fmt.Printf("registry smoke test passed: asset=%s owner=%s\n", asset.ID, owner)
}
