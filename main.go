package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"election-ledger/api"
	"election-ledger/config"
	"election-ledger/encryption"
	"election-ledger/logging"
	"election-ledger/models"
	"election-ledger/registry"
	"election-ledger/service"
	"election-ledger/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	log := logging.Base()

	if err := config.LoadEnv(".env"); err != nil {
		log.Fatalf("Failed to load .env: %v", err)
	}
	cfg, err := config.ParseFlags(os.Args[1:])
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if err := setupLogging(log, cfg); err != nil {
		log.Fatalf("Invalid log configuration: %v", err)
	}

	if err := os.MkdirAll(cfg.StorageDir, 0755); err != nil {
		log.Fatalf("Failed to setup storage: %v", err)
	}

	svc, err := initializeElectionService(cfg, log)
	if err != nil {
		log.Fatalf("Failed to initialize election service: %v", err)
	}

	if cfg.RosterFile != "" {
		roster, err := registry.LoadRoster(cfg.RosterFile)
		if err != nil {
			log.Fatalf("Failed to load roster: %v", err)
		}
		if _, err := svc.ImportRoster(roster); err != nil {
			log.Fatalf("Failed to import roster: %v", err)
		}
	}

	queue := service.NewTxQueue(svc, cfg.QueueSize, log)
	svc.Metrics().ObserveQueueDepth(queue.Depth)
	queue.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.RunSnapshots(ctx, cfg.SnapshotInterval)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           api.NewServer(svc, queue, log).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	serverChan := make(chan error, 1)
	go func() {
		log.Infof("Starting election ledger on port %d", cfg.Port)
		serverChan <- server.ListenAndServe()
	}()

	select {
	case err := <-serverChan:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("Server error: %v", err)
		}
	case sig := <-sigChan:
		log.Infof("Received signal: %v", sig)
		shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warnf("HTTP shutdown: %v", err)
		}
		done()
	}

	cancel()
	queue.Stop()
	if err := svc.Close(); err != nil {
		log.Errorf("Error closing ledger: %v", err)
	}
	log.Info("Server shutdown completed")
}

func setupLogging(log logging.Logger, cfg config.Config) error {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	log.SetLevel(level)
	if cfg.LogJSON {
		log.SetJSONFormatter()
	}
	return nil
}

func initializeElectionService(cfg config.Config, log logging.Logger) (*service.ElectionService, error) {
	absPath, err := filepath.Abs(cfg.StorageDir)
	if err != nil {
		return nil, err
	}

	cs := encryption.NewCryptoService()
	adminKey, err := service.LoadOrGenerateAdminKey(absPath, cs)
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(cfg.StoreBackend, absPath)
	if err != nil {
		return nil, err
	}
	snapshots, err := storage.NewSnapshotStorage(filepath.Join(absPath, "snapshots"), log)
	if err != nil {
		store.Close()
		return nil, err
	}

	sealer := encryption.NewPaillierAdapter(cfg.PaillierKeySize)
	if err := sealer.Initialize(); err != nil {
		store.Close()
		return nil, err
	}

	// Only consulted when the store is empty.
	now := time.Now()
	start, end := cfg.Schedule(now)
	genesis := models.Genesis{
		Admin:      cs.Address(adminKey),
		StartTime:  start,
		EndTime:    end,
		Proposals:  cfg.Proposals,
		DeployedAt: uint64(now.Unix()),
	}

	svc, err := service.NewElectionService(service.Options{
		Store:      store,
		Snapshots:  snapshots,
		Genesis:    genesis,
		Difficulty: cfg.Difficulty,
		AdminKey:   adminKey,
		Sealer:     sealer,
		Logger:     log,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	e := svc.Election()
	log.WithFields(logging.Fields{
		"admin":  e.Admin().Hex(),
		"start":  e.StartTime(),
		"end":    e.EndTime(),
		"status": e.Status(svc.Now()).String(),
		"height": svc.Ledger().Height(),
		"sealer": sealer.Name(),
	}).Info("Election ready")
	return svc, nil
}
