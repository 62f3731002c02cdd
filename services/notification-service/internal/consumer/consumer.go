package consumer

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/tablebook/libs/kafkax"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Handler func(ctx context.Context, msg kafka.Message) error

// MessageReader is the subset of *kafka.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Inbox interface {
	Record(ctx context.Context, eventID string, eventType string) (bool, error)
}

type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Consumer struct {
	reader     MessageReader
	logger     *slog.Logger
	tx         TxRunner
	inbox      Inbox
	handler    Handler
	retryDelay time.Duration
}

type Config struct {
	Brokers string
	GroupID string
	Topic   string
}

func NewReader(cfg Config) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  kafkax.SplitBrokers(cfg.Brokers),
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
}

func New(logger *slog.Logger, reader MessageReader, tx TxRunner, inboxRepo Inbox, handler Handler) *Consumer {
	return &Consumer{
		reader:     reader,
		logger:     logger,
		tx:         tx,
		inbox:      inboxRepo,
		handler:    handler,
		retryDelay: time.Second,
	}
}

// Run reads until ctx ends. A message is committed only after it was handled (or found to be a
// duplicate); handler errors are retried on the same message.
func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka read error", "err", err)
			if !c.sleep(ctx) {
				return
			}
			continue
		}

		for {
			err := c.Handle(ctx, msg)
			if err == nil {
				break
			}
			c.logger.Error("handler error", "err", err, "topic", msg.Topic, "offset", msg.Offset)
			if !c.sleep(ctx) {
				return
			}
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("kafka commit error", "err", err, "offset", msg.Offset)
		}
	}
}

// Handle records the event in the inbox and runs the handler in the same transaction, so a
// failed handler leaves the event unrecorded and a redelivery is processed again.
func (c *Consumer) Handle(ctx context.Context, msg kafka.Message) error {
	ctxMsg := kafkax.ExtractTraceContext(ctx, msg)
	ctxSpan, span := otel.Tracer("kafka").Start(ctxMsg, "kafka.consume",
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
		),
	)
	defer span.End()

	meta := kafkax.ExtractEventMeta(msg)
	if meta.EventID == "" {
		c.logger.Error("message without event_id skipped", "topic", msg.Topic, "offset", msg.Offset)
		return nil
	}

	err := c.tx.WithTx(ctxSpan, func(ctx context.Context) error {
		fresh, err := c.inbox.Record(ctx, meta.EventID, meta.EventType)
		if err != nil {
			return err
		}
		if !fresh {
			c.logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
			return nil
		}
		return c.handler(ctx, msg)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, "handle failed")
	}
	return err
}

func (c *Consumer) sleep(ctx context.Context) bool {
	t := time.NewTimer(c.retryDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
