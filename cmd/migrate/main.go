/**
 * @description
 * This is the schema migration tool for the pool service. It applies or rolls back the
 * SQL migrations, using the set embedded in the binary unless MIGRATIONS_DIR is set.
 *
 * @dependencies
 * - github.com/lib/pq: database/sql driver for Postgres.
 * - internal/persistence: The migrator.
 */
package main

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/luckypool/pool-service/internal/config"
	"github.com/luckypool/pool-service/internal/persistence"
	"github.com/luckypool/pool-service/migrations"
	"github.com/luckypool/pool-service/pkg/logging"
	"github.com/sirupsen/logrus"
)

func usage() {
	fmt.Println("Usage: migrate <up|down|status>")
	fmt.Println("  up     - apply all pending migrations")
	fmt.Println("  down   - roll back the last migration")
	fmt.Println("  status - list pending migrations")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  DATABASE_URL    - Postgres connection string (required)")
	fmt.Println("  MIGRATIONS_DIR  - read migrations from this directory instead of the embedded set")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	_ = godotenv.Load()
	cfg, err := config.LoadConfig(".")
	if err != nil {
		logrus.WithError(err).Fatal("config load failed")
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	if cfg.DatabaseURL == "" {
		logger.Fatal("DATABASE_URL must be configured")
	}

	var files fs.FS = migrations.Files
	if dir := strings.TrimSpace(os.Getenv("MIGRATIONS_DIR")); dir != "" {
		files = os.DirFS(dir)
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.WithError(err).Fatal("open db")
	}
	defer db.Close()

	ctx := context.Background()
	migrator := persistence.NewMigrator(db, files, logger)

	switch os.Args[1] {
	case "up":
		applied, err := migrator.Up(ctx)
		if err != nil {
			logger.WithError(err).Fatal("migrate up")
		}
		logger.WithField("applied", applied).Info("all migrations applied")
	case "down":
		rolledBack, err := migrator.Down(ctx)
		if err != nil {
			logger.WithError(err).Fatal("migrate down")
		}
		if rolledBack {
			logger.Info("last migration rolled back")
		}
	case "status":
		pending, err := migrator.Pending(ctx)
		if err != nil {
			logger.WithError(err).Fatal("migrate status")
		}
		if len(pending) == 0 {
			fmt.Println("schema is up to date")
			return
		}
		for _, name := range pending {
			fmt.Println("pending:", name)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s (use 'up', 'down' or 'status')\n", os.Args[1])
		os.Exit(1)
	}
}
