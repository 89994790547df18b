package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
)

type workerCmd struct{}

func (*workerCmd) Name() string     { return "worker" }
func (*workerCmd) Synopsis() string { return "process queued refresh tasks" }
func (*workerCmd) Usage() string {
	return `ledgerd worker

  Pulls refresh tasks from the Redis queue and revalues positions, retrying
  failed tasks with exponential backoff. Requires REDIS_ADDR.
`
}

func (*workerCmd) SetFlags(*flag.FlagSet) {}

func (*workerCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := newApp(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	if a.redis == nil {
		fmt.Fprintln(os.Stderr, "REDIS_ADDR is required for a standalone worker")
		return subcommands.ExitUsageError
	}

	if err := a.newWorker().Run(ctx); err != nil {
		a.log.WithError(err).Error("worker stopped")
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
