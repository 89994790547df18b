package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
	"github.com/trogers1052/portfolio-ledger/internal/config"
	"github.com/trogers1052/portfolio-ledger/internal/database"
)

type migrateCmd struct {
	source string
}

func (*migrateCmd) Name() string     { return "migrate" }
func (*migrateCmd) Synopsis() string { return "apply database migrations" }
func (*migrateCmd) Usage() string {
	return `ledgerd migrate [-source <url>]

  Applies every pending migration. The source defaults to DB_MIGRATIONS_PATH.
`
}

func (c *migrateCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.source, "source", "", "Migration source URL, e.g. file://db/migrations.")
}

func (c *migrateCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	source := c.source
	if source == "" {
		source = cfg.Database.MigrationsURL()
	}

	db, err := database.New(cfg.Database.ConnectionString())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer db.Close()

	if err := db.Migrate(source); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	fmt.Println("migrations applied")
	return subcommands.ExitSuccess
}
