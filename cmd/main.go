package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"crate-ledger/config"
	"crate-ledger/db"
	"crate-ledger/handlers"
	"crate-ledger/logger"
	"crate-ledger/provenance"
	"crate-ledger/repository"
	"crate-ledger/routers"
)

func main() {
	// Load config
	cfg, err := config.Load("")
	if err != nil {
		fmt.Println("Config file error:", err)
		os.Exit(1)
	}

	if err := logger.InitLogger(cfg.Log.AppLogFile, cfg.Log.Level); err != nil {
		fmt.Println("Failed to initialize logger:", err)
		os.Exit(1)
	}
	defer logger.Logger.Sync()

	logger.Logger.Info("Starting crate ledger...")

	// Connect to LevelDB
	ldb, err := db.NewLevelDB(cfg.LevelDB.Path)
	if err != nil {
		logger.Logger.Fatal("Failed to open leveldb", zap.Error(err))
	}
	defer ldb.Close()

	// Initialize repository
	crateRepo := repository.NewCrateRepository(ldb)

	// Initialize the provenance ledger with repository
	ledger := provenance.NewLedger(crateRepo, ledgerOptions(cfg.Ledger))

	// Initialize HTTP handlers
	h := handlers.NewHandler(ledger)

	// Setup router
	r := mux.NewRouter()
	routers.RegisterRoutes(r, h)

	// HTTP Server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Logger.Info("Server running on port", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		// Graceful shutdown
		<-gctx.Done()
		logger.Logger.Info("Shutdown signal received, exiting...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Logger.Error("Server stopped", zap.Error(err))
	}
}

func ledgerOptions(c config.LedgerConfig) provenance.Options {
	return provenance.Options{
		VerifyChildren:   c.VerifyChildren,
		RequireBacklinks: c.RequireBacklinks,
		RejectCycles:     c.RejectCycles,
		MaxWalk:          c.MaxWalk,
	}
}
