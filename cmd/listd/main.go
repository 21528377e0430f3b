package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bpires/listd/internal/backup"
	"github.com/bpires/listd/internal/database"
	"github.com/bpires/listd/internal/logging"
	"github.com/bpires/listd/internal/server"
)

func main() {
	port := envOr("LISTD_PORT", "8080")
	dbPath := envOr("LISTD_DB_PATH", "listd.db")

	logger := logging.Setup(os.Getenv("LISTD_LOG_LEVEL"), os.Getenv("LISTD_LOG_FORMAT"))

	authSecret := os.Getenv("LISTD_AUTH_SECRET")
	if authSecret == "" {
		log.Fatal("LISTD_AUTH_SECRET is required")
	}

	db, err := database.Open(dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	srv := server.New(db, server.Config{
		AuthSecret:  authSecret,
		ShareSecret: envOr("LISTD_SHARE_SECRET", authSecret),
	}, logger)

	backupInterval, _ := time.ParseDuration(os.Getenv("LISTD_BACKUP_INTERVAL"))
	backupMgr := backup.NewManager(backup.Config{
		S3: backup.S3Config{
			Endpoint:  os.Getenv("LISTD_BACKUP_S3_ENDPOINT"),
			Bucket:    os.Getenv("LISTD_BACKUP_S3_BUCKET"),
			Region:    envOr("LISTD_BACKUP_S3_REGION", "us-east-1"),
			AccessKey: os.Getenv("LISTD_BACKUP_S3_ACCESS_KEY"),
			SecretKey: os.Getenv("LISTD_BACKUP_S3_SECRET_KEY"),
		},
		DBPath:     dbPath,
		Passphrase: os.Getenv("LISTD_BACKUP_PASSPHRASE"),
		Interval:   backupInterval,
	}, db, logger.With("component", "backup"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backupMgr.Start(ctx)
	defer backupMgr.Stop()

	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				srv.RateLimiter().Cleanup()
			}
		}
	}()

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 0, // WebSocket subscriptions are long-lived
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("listd running", "port", port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("shutdown error: %v", err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
