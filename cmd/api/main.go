package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"provenly.org/internal/config"
	"provenly.org/internal/httpapi"
	"provenly.org/internal/identity"
	"provenly.org/internal/ledger"
	"provenly.org/internal/ledger/inmemory"
	"provenly.org/internal/ledger/rpc"
	"provenly.org/internal/obs"
	"provenly.org/internal/provenance"
	"provenly.org/internal/registry"
	"provenly.org/internal/storage"
	"provenly.org/internal/store/pg"
	"provenly.org/internal/transfer"
	"provenly.org/internal/wallet"
)

var version = "0.3.1"

func main() {
	obs.Init()
	obs.InitBuildInfo()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// Ledger backend: remote node or the in-process one for development.
	var (
		client  ledger.Client
		watcher ledger.Watcher
	)
	if cfg.UseRemoteLedger() {
		provider := wallet.NewStatic(wallet.Account(cfg.AdminAddress))
		client = rpc.New(cfg.LedgerRPCURL, wallet.Account(cfg.ContractAddress), provider)
	} else {
		node := inmemory.New(wallet.Account(cfg.AdminAddress))
		client = node
		watcher = node
	}
	contract := ledger.NewContract(client)

	// Content store: remote pinning gateway or in-memory for development.
	var store storage.Store
	if cfg.UseGatewayStorage() {
		store = storage.NewGateway(cfg.StorageURL, cfg.StorageToken)
	} else {
		store = storage.NewMemory()
	}

	identities := identity.NewService(contract)
	pipeline := registry.NewPipeline(contract, store, registry.WithSignedURLTTL(cfg.SignedURLTTL))
	machine := transfer.NewMachine(contract)
	reader := provenance.NewReader(contract, identities)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Optional Postgres archive: mirrors transfer events for durable
	// provenance queries and feeds the readiness probe.
	var db *sql.DB
	if cfg.PostgresDSN != "" {
		archive, err := pg.Open(cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("open archive: %v", err)
		}
		defer archive.Close()
		db = archive.DB()

		if watcher != nil {
			go func() {
				ch, err := watcher.WatchTransfers(ctx, "")
				if err != nil {
					log.Printf("archive watch: %v", err)
					return
				}
				for rec := range ch {
					if err := archive.RecordTransfer(ctx, rec); err != nil {
						log.Printf("archive record: %v", err)
					}
				}
			}()
		}
	}

	// Keep cached histories fresh as transfers complete.
	if watcher != nil {
		go func() {
			if err := reader.Watch(ctx, watcher); err != nil && ctx.Err() == nil {
				log.Printf("provenance watch: %v", err)
			}
		}()
	}

	api := httpapi.New(httpapi.Services{
		Identity:   identities,
		Registry:   pipeline,
		Transfer:   machine,
		Provenance: reader,
		Watcher:    watcher,
	}, httpapi.ReadyProbe{DB: db}, version, cfg.SessionTTL)

	handler := api.Handler()
	handler = httpapi.MaxBodyBytes(handler, cfg.MaxBodyBytes)
	handler = httpapi.RateLimit(handler, cfg.RateBurst, cfg.RateLimitRPS)
	handler = httpapi.CORS(handler, cfg.CORSAllowOrigin)
	handler = httpapi.SecurityHeaders(handler)
	handler = httpapi.Logging(handler)
	handler = httpapi.RequestID(handler)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting provenly-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	log.Println("Stopped")
}
