package consumer

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/serenity-care/platform/libs/kafkax"
	"github.com/serenity-care/platform/services/availability-service/internal/inbox"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Handler func(ctx context.Context, msg kafka.Message) error

// Inbox de-duplicates deliveries by event id.
type Inbox interface {
	Record(ctx context.Context, e inbox.Entry) (bool, error)
}

type Consumer struct {
	reader  *kafka.Reader
	logger  *slog.Logger
	inbox   Inbox
	handler Handler
}

type Config struct {
	Brokers string
	GroupID string
	Topics  []string
}

func New(logger *slog.Logger, inbox Inbox, cfg Config, handler Handler) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     kafkax.SplitBrokers(cfg.Brokers),
		GroupID:     cfg.GroupID,
		GroupTopics: cfg.Topics,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	return &Consumer{
		reader:  reader,
		logger:  logger,
		inbox:   inbox,
		handler: handler,
	}
}

func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka read error", "err", err)
			time.Sleep(1 * time.Second)
			continue
		}
		_ = c.handle(ctx, msg)
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	ctxMsg := kafkax.ExtractTraceContext(ctx, msg)
	ctxSpan, span := otel.Tracer("kafka").Start(ctxMsg, "kafka.consume",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
		),
	)
	defer span.End()

	entry := inboxEntry(msg)
	span.SetAttributes(attribute.String("availability.window_id", entry.AggregateID))

	ok, err := c.inbox.Record(ctxSpan, entry)
	if err != nil {
		c.logger.Error("inbox record failed", "err", err, "event_id", entry.EventID, "window_id", entry.AggregateID)
		span.RecordError(err)
		span.SetStatus(codes.Error, "inbox")
		return err
	}
	if !ok {
		c.logger.Info("duplicate event ignored", "event_id", entry.EventID, "event_type", entry.EventType, "window_id", entry.AggregateID)
		return nil
	}

	if err := c.handler(ctxSpan, msg); err != nil {
		c.logger.Error("handler error", "err", err, "event_id", entry.EventID, "window_id", entry.AggregateID)
		span.RecordError(err)
		span.SetStatus(codes.Error, "handler")
		return err
	}
	return nil
}

// inboxEntry keys the delivery by its event id. Window events are published
// with the window id as message key.
func inboxEntry(msg kafka.Message) inbox.Entry {
	meta := kafkax.ExtractEventMeta(msg)
	return inbox.Entry{
		EventID:     meta.EventID,
		EventType:   meta.EventType,
		AggregateID: string(msg.Key),
		Topic:       msg.Topic,
	}
}
