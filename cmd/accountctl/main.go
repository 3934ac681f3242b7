package main

import (
	"context"
	"fmt"
	"os"
	"slices"

	"github.com/dmitrijs2005/accountkeeper/internal/admincli"
	"github.com/dmitrijs2005/accountkeeper/internal/cryptox"
	"github.com/dmitrijs2005/accountkeeper/internal/logging"
	"github.com/dmitrijs2005/accountkeeper/internal/server/config"
	"github.com/dmitrijs2005/accountkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/accountkeeper/internal/server/services"
)

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	db, err := repomanager.Open(ctx, cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	accounts := services.NewAccountService(services.Deps{
		DB:          db,
		RepoManager: rm,
		Hasher:      cryptox.NewBcryptHasher(cfg.BcryptCost),
		Logger:      logging.NewJSON(os.Stderr, cfg.LogLevel),
	})

	return admincli.New(os.Stdout, accounts).Run(ctx, subcommandArgs(os.Args[1:]))
}

// subcommandArgs drops config flags such as -d that precede the command.
func subcommandArgs(args []string) []string {
	if i := slices.Index(args, "bootstrap-admin"); i >= 0 {
		return args[i:]
	}
	return args
}
