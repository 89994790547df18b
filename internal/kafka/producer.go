package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/trogers1052/portfolio-ledger/internal/models"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes ledger events to Kafka
type Producer struct {
	writer messageWriter
	topic  string
}

// NewProducer creates a new Kafka producer
func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
	}

	return &Producer{
		writer: writer,
		topic:  topic,
	}
}

// PublishTradeApplied publishes a committed trade together with the resulting position
func (p *Producer) PublishTradeApplied(ctx context.Context, trade *models.Trade, position *models.Position) error {
	event := models.LedgerEvent{
		EventType: models.EventTradeApplied,
		UserID:    trade.UserID,
		Symbol:    trade.Symbol,
		Trade:     trade,
		Position:  position,
		Timestamp: time.Now().UTC(),
	}
	return p.publish(ctx, pairKey(trade.UserID, trade.Symbol), event)
}

// PublishPositionsRefreshed publishes the outcome of a valuation sweep
func (p *Producer) PublishPositionsRefreshed(ctx context.Context, userID int, refreshed []string, failed []models.SymbolFailure) error {
	event := models.LedgerEvent{
		EventType: models.EventPositionsRefreshed,
		UserID:    userID,
		Refreshed: refreshed,
		Failed:    failed,
		Timestamp: time.Now().UTC(),
	}
	return p.publish(ctx, strconv.Itoa(userID), event)
}

// PublishInvestmentDeleted publishes the removal of a position row
func (p *Producer) PublishInvestmentDeleted(ctx context.Context, position *models.Position) error {
	event := models.LedgerEvent{
		EventType: models.EventInvestmentDeleted,
		UserID:    position.UserID,
		Symbol:    position.Symbol,
		Position:  position,
		Timestamp: time.Now().UTC(),
	}
	return p.publish(ctx, pairKey(position.UserID, position.Symbol), event)
}

func (p *Producer) publish(ctx context.Context, key string, event models.LedgerEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: data,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}

	return nil
}

// Close closes the Kafka producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// pairKey keeps every event of one (user, symbol) pair on one partition
func pairKey(userID int, symbol string) string {
	return strconv.Itoa(userID) + ":" + symbol
}
