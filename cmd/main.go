/*
Package main is the entry point for the group chat server.

It is responsible for loading configuration, initializing the global logging system,
opening the configured store, starting the chat Hub and the HTTP server, and gracefully
handling operating system interrupt signals (SIGINT, SIGTERM).
*/
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"groupchat/internal/app/chat"
	"groupchat/internal/app/db"
	"groupchat/internal/app/storage"
	"groupchat/internal/app/store"
	"groupchat/internal/app/store/memstore"
	"groupchat/internal/app/store/sqlite"
	"groupchat/internal/configs"
	"groupchat/internal/handler"
	"groupchat/internal/pkg/logx"
)

// openStore opens the store selected by STORE_DRIVER.
func openStore(ctx context.Context, cfg *configs.AppConfig) (store.Store, error) {
	switch cfg.StoreDriver {
	case configs.StoreDriverPostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseDSN)
		if err != nil {
			return nil, err
		}
		return db.NewStore(pool), nil
	case configs.StoreDriverSQLite:
		return sqlite.New(cfg.SQLitePath)
	case configs.StoreDriverMemory:
		logx.Warn("Using the in-memory store; data is lost on restart")
		return memstore.New(), nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}
}

func main() {
	// Load configuration from environment variables
	cfg, err := configs.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize global logger
	logx.InitGlobalLogger(cfg.IsDevelopment())
	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Str("store_driver", cfg.StoreDriver).
		Bool("archive_enabled", cfg.ArchiveEnabled()).
		Msg("Configuration loaded successfully")

	// Create a context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		logx.Fatal(err, "Failed to open store")
	}

	if err := store.SeedDefaultRooms(ctx, st); err != nil {
		logx.Fatal(err, "Failed to seed default rooms")
	}

	archiveCfg := storage.ServiceConfig{}
	if cfg.ArchiveEnabled() {
		archiveCfg = storage.ServiceConfig{
			S3BucketName:      cfg.S3BucketName,
			S3Endpoint:        cfg.S3Endpoint,
			S3AccessKeyID:     cfg.S3AccessKeyID,
			S3SecretAccessKey: cfg.S3SecretAccessKey,
		}
	}
	archiver, err := storage.NewArchiver(archiveCfg)
	if err != nil {
		logx.Fatal(err, "Failed to initialize transcript archive")
	}

	hub := chat.NewHub(chat.HubConfig{
		Store:    st,
		Archiver: archiver,
	})

	deps := &handler.AppDeps{
		Hub:      hub,
		Config:   cfg,
		Store:    st,
		Archiver: archiver,
	}

	limiters := handler.NewLimiters()
	defer limiters.Close()

	serverAddr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      handler.Router(deps, limiters),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logx.Info(fmt.Sprintf("Group chat server starting on http://localhost%s", serverAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logx.Fatal(err, "Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server with a timeout of 5 seconds.
	<-ctx.Done()
	logx.Info("Received shutdown signal. Starting graceful shutdown...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logx.Error(err, "Server forced to shutdown")
	}

	hub.Shutdown()

	if err := st.Close(); err != nil {
		logx.Error(err, "Failed to close store")
	}

	logx.Info("Server gracefully stopped.")
}
