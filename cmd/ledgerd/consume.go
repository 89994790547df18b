package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
	"github.com/trogers1052/portfolio-ledger/internal/kafka"
)

type consumeCmd struct{}

func (*consumeCmd) Name() string     { return "consume" }
func (*consumeCmd) Synopsis() string { return "apply trade requests from Kafka" }
func (*consumeCmd) Usage() string {
	return `ledgerd consume

  Reads TRADE_REQUESTED events from KAFKA_TRADE_TOPIC and applies them to the
  ledger. Requires KAFKA_BROKERS.
`
}

func (*consumeCmd) SetFlags(*flag.FlagSet) {}

func (*consumeCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := newApp(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	if !a.cfg.Kafka.KafkaEnabled() {
		fmt.Fprintln(os.Stderr, "KAFKA_BROKERS is required")
		return subcommands.ExitUsageError
	}

	consumer := kafka.NewTradeConsumer(a.cfg.Kafka.Brokers, a.cfg.Kafka.TradeTopic, a.cfg.Kafka.GroupID, a.engine, a.log)
	if err := consumer.Start(ctx); err != nil {
		a.log.WithError(err).Error("trade consumer stopped")
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
