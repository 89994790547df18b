package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sync"

	"github.com/google/subcommands"
	"github.com/trogers1052/portfolio-ledger/internal/api"
)

type serveCmd struct {
	withWorker bool
}

func (*serveCmd) Name() string     { return "serve" }
func (*serveCmd) Synopsis() string { return "run the HTTP API" }
func (*serveCmd) Usage() string {
	return `ledgerd serve [-worker]

  Serves the ledger HTTP API. Without REDIS_ADDR refresh tasks are queued in
  memory and a worker always runs in-process.
`
}

func (c *serveCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.withWorker, "worker", false, "Also run a refresh worker in this process.")
}

func (c *serveCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := newApp(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	handler := api.NewHandler(a.engine, a.db, a.queue, a.prices, a.log).WithCurrency(a.cfg.Price.QuoteCurrency)
	if a.producer != nil {
		handler.WithEvents(a.producer)
	}

	srv := &http.Server{
		Addr:    a.cfg.Server.Addr(),
		Handler: api.SetupRoutes(handler),
	}

	var wg sync.WaitGroup
	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	if c.withWorker || a.redis == nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.newWorker().Run(workerCtx)
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.WithField("addr", srv.Addr).Info("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	status := subcommands.ExitSuccess
	select {
	case <-ctx.Done():
		a.log.Info("shutting down")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			a.log.WithError(err).Error("http server failed")
			status = subcommands.ExitFailure
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.WithError(err).Warn("http server shutdown incomplete")
	}

	stopWorker()
	wg.Wait()
	return status
}
