package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
	"github.com/trogers1052/portfolio-ledger/internal/tasks"
)

type refreshCmd struct {
	userID int
	async  bool
}

func (*refreshCmd) Name() string     { return "refresh" }
func (*refreshCmd) Synopsis() string { return "revalue a user's positions" }
func (*refreshCmd) Usage() string {
	return `ledgerd refresh -user <id> [-async]

  Revalues every active position of the user and prints the result. With
  -async the refresh is queued for a worker instead and the task id is printed.
`
}

func (c *refreshCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.userID, "user", 0, "User id to refresh.")
	f.BoolVar(&c.async, "async", false, "Queue the refresh instead of running it.")
}

func (c *refreshCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.userID <= 0 {
		fmt.Fprintln(os.Stderr, "-user is required")
		return subcommands.ExitUsageError
	}

	a, err := newApp(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	var out any
	if c.async {
		if a.redis == nil {
			fmt.Fprintln(os.Stderr, "REDIS_ADDR is required for -async")
			return subcommands.ExitUsageError
		}
		task := tasks.NewRefreshTask(c.userID)
		if err := a.queue.Enqueue(ctx, task); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return subcommands.ExitFailure
		}
		out = map[string]string{"task_id": task.ID}
	} else {
		result, err := a.engine.RefreshPositions(ctx, c.userID)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return subcommands.ExitFailure
		}
		out = result
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
