// Command seed populates the database with a development dataset.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lensai/lensai/internal/config"
	"github.com/lensai/lensai/internal/redact"
	"github.com/lensai/lensai/internal/repository"
	"github.com/lensai/lensai/internal/seed"
	"github.com/lensai/lensai/migrations"
)

const connectTimeout = 10 * time.Second

// store is what the seed command needs from the database layer.
type store interface {
	seed.Store
	Migrate(ctx context.Context, fsys fs.FS) ([]string, error)
	Close()
}

type connectFunc func(ctx context.Context, databaseURL string) (store, error)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr, connectPostgres)
	stop()
	os.Exit(code)
}

func connectPostgres(ctx context.Context, databaseURL string) (store, error) {
	repo, err := repository.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	return repo, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, connect connectFunc) int {
	cfg, err := config.LoadSeed()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	fset := flag.NewFlagSet("seed", flag.ContinueOnError)
	fset.SetOutput(stderr)
	var (
		databaseURL = fset.String("database-url", cfg.DatabaseURL, "PostgreSQL connection string")
		migrate     = fset.Bool("migrate", true, "Apply schema migrations before seeding")
		issueKey    = fset.Bool("issue-key", false, "Store a real lk_test_ key and print it once")
	)
	if err := fset.Parse(args); err != nil {
		return 2
	}

	fmt.Fprintln(stdout, seed.StartMessage)

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	db, err := connect(connectCtx, *databaseURL)
	if err != nil {
		seed.ReportConnectionError(stdout, redact.Error(err, *databaseURL))
		return 1
	}
	defer db.Close()

	seeder := seed.New(db, stdout)
	seeder.IssueRealKey(*issueKey)
	seeder.RedactSecrets(*databaseURL)

	if err := seeder.CheckConnection(connectCtx); err != nil {
		return 1
	}

	if *migrate {
		applied, err := db.Migrate(ctx, migrations.FS)
		if err != nil {
			fmt.Fprintf(stderr, "Error applying migrations: %s\n", redact.Error(err, *databaseURL))
			return 1
		}
		for _, version := range applied {
			fmt.Fprintf(stderr, "Applied migration %s\n", version)
		}
	}

	if _, err := seeder.Run(ctx); err != nil {
		fmt.Fprintf(stderr, "Error seeding database: %v\n", err)
		return 1
	}
	return 0
}
