package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/trogers1052/portfolio-ledger/internal/models"
)

// TradeApplier applies a trade request to the ledger
type TradeApplier interface {
	ApplyTrade(ctx context.Context, req models.TradeRequest) (*models.Trade, *models.Position, error)
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
	Config() kafka.ReaderConfig
}

// TradeConsumer applies TRADE_REQUESTED events from Kafka. Messages are keyed by
// user_id:symbol, so requests for one pair arrive in submission order. An offset
// is committed only once its message is applied or rejected; store failures are
// retried on the same message so later requests never overtake it.
type TradeConsumer struct {
	reader     messageReader
	applier    TradeApplier
	log        logrus.FieldLogger
	newBackOff func() backoff.BackOff
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	return b
}

// NewTradeConsumer creates a new Kafka consumer for trade requests
func NewTradeConsumer(brokers []string, topic, groupID string, applier TradeApplier, log logrus.FieldLogger) *TradeConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       10e3, // 10KB
		MaxBytes:       10e6, // 10MB
		MaxWait:        1 * time.Second,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: time.Second,
	})

	return &TradeConsumer{
		reader:     reader,
		applier:    applier,
		log:        log,
		newBackOff: defaultBackOff,
	}
}

// Start consumes messages until ctx is cancelled
func (c *TradeConsumer) Start(ctx context.Context) error {
	c.log.WithField("topic", c.reader.Config().Topic).Info("starting trade request consumer")

	for {
		select {
		case <-ctx.Done():
			c.log.Info("trade request consumer shutting down")
			return c.reader.Close()
		default:
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return c.reader.Close()
				}
				c.log.WithError(err).Error("error reading message")
				continue
			}

			if err := c.handleMessage(ctx, msg); err != nil {
				// stopped mid-retry; the message is redelivered on restart
				return c.reader.Close()
			}

			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				if ctx.Err() != nil {
					return c.reader.Close()
				}
				c.log.WithError(err).WithFields(logrus.Fields{
					"partition": msg.Partition,
					"offset":    msg.Offset,
				}).Error("failed to commit offset")
			}
		}
	}
}

// handleMessage processes msg, retrying store failures until they clear or ctx
// is done. It returns an error only when ctx ended before the message was
// settled; unprocessable messages are logged and reported as handled.
func (c *TradeConsumer) handleMessage(ctx context.Context, msg kafka.Message) error {
	log := c.log.WithFields(logrus.Fields{
		"partition": msg.Partition,
		"offset":    msg.Offset,
	})

	notify := func(err error, next time.Duration) {
		log.WithError(err).WithField("retry_in", next.String()).Warn("error processing message, retrying")
	}
	err := backoff.RetryNotify(func() error {
		return c.processMessage(ctx, msg)
	}, backoff.WithContext(c.newBackOff(), ctx), notify)

	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	log.WithError(err).Error("dropping unprocessable message")
	return nil
}

// rejected lists errors that mean the request itself is unusable; retrying
// the message cannot succeed
var rejected = []error{
	models.ErrInvalidTrade,
	models.ErrInvalidSymbol,
	models.ErrInsufficientUnits,
	models.ErrPriceUnavailable,
	models.ErrNotFound,
}

// processMessage handles a single Kafka message. Errors wrapped in
// backoff.Permanent cannot succeed on retry.
func (c *TradeConsumer) processMessage(ctx context.Context, msg kafka.Message) error {
	var event models.TradeRequestEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return backoff.Permanent(fmt.Errorf("failed to unmarshal trade request: %w", err))
	}

	if event.EventType != models.EventTradeRequested {
		c.log.WithField("event_type", event.EventType).Debug("ignoring event type")
		return nil
	}

	req, err := toTradeRequest(event.Data)
	if err != nil {
		c.log.WithError(err).WithField("request_id", event.Data.RequestID).Warn("dropping malformed trade request")
		return nil
	}

	log := c.log.WithFields(logrus.Fields{
		"request_id": req.RequestID,
		"user_id":    req.UserID,
		"symbol":     req.Symbol,
		"source":     event.Source,
	})

	trade, _, err := c.applier.ApplyTrade(ctx, req)
	switch {
	case err == nil:
		log.WithField("trade_id", trade.ID).Info("applied trade request")
		return nil
	case errors.Is(err, models.ErrDuplicateTrade):
		log.Info("trade request already applied, skipping")
		return nil
	}

	for _, target := range rejected {
		if errors.Is(err, target) {
			log.WithError(err).Warn("trade request rejected")
			return nil
		}
	}
	return fmt.Errorf("failed to apply trade request %s: %w", req.RequestID, err)
}

// toTradeRequest parses the string fields of a trade request
func toTradeRequest(data models.TradeRequestData) (models.TradeRequest, error) {
	quantity, err := decimal.NewFromString(strings.TrimSpace(data.Quantity))
	if err != nil {
		return models.TradeRequest{}, fmt.Errorf("invalid quantity %q: %w", data.Quantity, err)
	}

	fees := decimal.Zero
	if strings.TrimSpace(data.Fees) != "" {
		fees, err = decimal.NewFromString(strings.TrimSpace(data.Fees))
		if err != nil {
			return models.TradeRequest{}, fmt.Errorf("invalid fees %q: %w", data.Fees, err)
		}
	}

	return models.TradeRequest{
		UserID:    data.UserID,
		Symbol:    data.Symbol,
		Type:      strings.ToUpper(strings.TrimSpace(data.Side)),
		Quantity:  quantity,
		Fees:      fees,
		RequestID: data.RequestID,
	}, nil
}

// Close closes the Kafka consumer
func (c *TradeConsumer) Close() error {
	return c.reader.Close()
}
