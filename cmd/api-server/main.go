// Command api-server serves a ragask ledger read-only. Asking is disabled
// because no model or vector store is configured.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jcpsimmons/ragask/pkg/api"
	"github.com/jcpsimmons/ragask/pkg/database"
	"github.com/jcpsimmons/ragask/pkg/logging"
)

func main() {
	var dbPath string
	var port int
	var logLevel string

	flag.StringVar(&dbPath, "db", "", "Path to the ragask ledger database")
	flag.IntVar(&port, "port", 8080, "Server port")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	logger := logging.Setup(os.Stderr, logLevel, "text")

	if dbPath == "" {
		logger.Error("database path is required, use -db")
		os.Exit(1)
	}

	db, err := database.OpenExistingDB(dbPath)
	if err != nil {
		logger.Error("failed to open ledger", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := api.NewServer(db, nil).ListenAndServe(ctx, port); err != nil {
		slog.Error("server failed", "error", err)
		db.Close()
		os.Exit(1)
	}
}
