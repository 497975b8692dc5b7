package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/Food-Ordering-System/internal/inventory/domain"
	"github.com/dmehra2102/Food-Ordering-System/pkg/tracing"
)

// retryBackoff is the first pause before a failed message is handled again.
var retryBackoff = 500 * time.Millisecond

const maxRetryBackoff = 30 * time.Second

type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Restocker interface {
	Restock(ctx context.Context, venue string, req domain.Request) error
}

// Deduper is satisfied by *idempotency.Store.
type Deduper interface {
	Key(topic string, partition int, offset int64) string
	KeyFor(source, id string) string
	Seen(ctx context.Context, key string) (bool, error)
	Forget(ctx context.Context, key string) error
}

// Consumer applies kitchen restock events to the stock ledger.
type Consumer struct {
	log    *slog.Logger
	reader Reader
	svc    Restocker
	idem   Deduper
	tracer trace.Tracer
}

func NewConsumer(log *slog.Logger, brokers []string, topic, group string, svc Restocker, idem Deduper) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: group,
	})
	return newConsumer(log, r, svc, idem)
}

func newConsumer(log *slog.Logger, r Reader, svc Restocker, idem Deduper) *Consumer {
	return &Consumer{
		log:    log,
		reader: r,
		svc:    svc,
		idem:   idem,
		tracer: otel.Tracer("inventory-consumer"),
	}
}

func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if !c.handleUntilDone(ctx, msg) {
			return nil
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.log.Error("commit failed", "offset", msg.Offset, "err", err)
		}
	}
}

// handleUntilDone retries msg in place, since a later commit would skip it.
// It reports false only when ctx ends first.
func (c *Consumer) handleUntilDone(ctx context.Context, msg kafka.Message) bool {
	backoff := retryBackoff
	for !c.handle(ctx, msg) {
		c.log.Warn("retrying message", "offset", msg.Offset, "backoff", backoff)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxRetryBackoff)
	}
	return true
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) bool {
	if t := headerValue(msg.Headers, "event_type"); t != "" && t != domain.EventStockRestocked {
		return true
	}

	var ev domain.StockRestocked
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		c.log.Error("unmarshal failed", "offset", msg.Offset, "err", err)
		return true
	}

	key := c.idem.Key(msg.Topic, msg.Partition, msg.Offset)
	if ev.EventID != "" {
		key = c.idem.KeyFor("restock", ev.EventID)
	}
	seen, err := c.idem.Seen(ctx, key)
	if err != nil {
		c.log.Error("idempotency check failed", "err", err)
		return false
	}
	if seen {
		c.log.Info("duplicate message skipped", "key", key)
		return true
	}

	msgCtx := tracing.ExtractKafkaHeaders(ctx, msg.Headers)
	msgCtx, span := c.tracer.Start(msgCtx, "ConsumeStockRestocked", trace.WithAttributes(
		attribute.String("venue", ev.Venue),
		attribute.Int("restock.items", len(ev.Items)),
	))
	defer span.End()

	err = c.svc.Restock(msgCtx, ev.Venue, ev.Request())
	switch {
	case err == nil:
		return true
	case errors.Is(err, domain.ErrUnknownMenuItem), errors.Is(err, domain.ErrInvalidQuantity):
		span.SetStatus(codes.Error, err.Error())
		c.log.Error("restock rejected", "venue", ev.Venue, "err", err)
		return true
	default:
		span.SetStatus(codes.Error, err.Error())
		c.log.Error("restock failed", "venue", ev.Venue, "err", err)
		if ferr := c.idem.Forget(context.WithoutCancel(ctx), key); ferr != nil {
			c.log.Error("idempotency release failed", "key", key, "err", ferr)
		}
		return false
	}
}

func headerValue(h []kafka.Header, key string) string {
	for _, hh := range h {
		if hh.Key == key {
			return string(hh.Value)
		}
	}
	return ""
}
