package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// TopicPrefix namespaces the topics events are relayed to.
const TopicPrefix = "scheduling."

// Record is an unpublished row of event_logs.
type Record struct {
	ID          int64
	EventType   string
	AggregateID *uuid.UUID
	Payload     []byte
	CreatedAt   time.Time

	// TraceContext is the JSON object of propagation fields captured when
	// the event was recorded.
	TraceContext []byte
}

// MessageWriter is the subset of *kafka.Writer the relay needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher relays committed scheduling events from event_logs to Kafka.
// Rows are claimed with FOR UPDATE SKIP LOCKED, so several workers can run
// side by side; a row is marked published only after Kafka accepted it.
type Publisher struct {
	pool      *pgxpool.Pool
	writer    MessageWriter
	logger    *zap.Logger
	pollEvery time.Duration
	batchSize int
}

type PublisherConfig struct {
	Brokers   []string
	PollEvery time.Duration
	BatchSize int
}

// NewPublisher returns nil when no brokers are configured.
func NewPublisher(pool *pgxpool.Pool, logger *zap.Logger, cfg PublisherConfig) *Publisher {
	if len(cfg.Brokers) == 0 {
		return nil
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return newPublisher(pool, writer, logger, cfg)
}

func newPublisher(pool *pgxpool.Pool, writer MessageWriter, logger *zap.Logger, cfg PublisherConfig) *Publisher {
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		pool:      pool,
		writer:    writer,
		logger:    logger,
		pollEvery: cfg.PollEvery,
		batchSize: cfg.BatchSize,
	}
}

// Run polls until ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) {
	defer p.writer.Close()

	ticker := time.NewTicker(p.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.PublishBatch(ctx)
			if err != nil {
				p.logger.Error("outbox publish failed", zap.Error(err))
				continue
			}
			if n > 0 {
				p.logger.Info("outbox batch published", zap.Int("count", n))
			}
		}
	}
}

// PublishBatch relays one batch and returns how many events were sent.
func (p *Publisher) PublishBatch(ctx context.Context) (int, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin outbox tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	records, err := fetchUnpublished(ctx, tx, p.batchSize)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, tx.Commit(ctx)
	}

	msgs := make([]kafka.Message, 0, len(records))
	ids := make([]int64, 0, len(records))
	for _, r := range records {
		msgs = append(msgs, toMessage(r))
		ids = append(ids, r.ID)
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return 0, fmt.Errorf("write kafka messages: %w", err)
	}

	if err := markPublished(ctx, tx, ids); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit outbox tx: %w", err)
	}
	return len(records), nil
}

func fetchUnpublished(ctx context.Context, tx pgx.Tx, limit int) ([]Record, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, event_type, aggregate_id, payload, created_at, trace_context
		FROM event_logs
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch unpublished events: %w", err)
	}
	defer rows.Close()

	var result []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.EventType, &r.AggregateID, &r.Payload, &r.CreatedAt, &r.TraceContext); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func markPublished(ctx context.Context, tx pgx.Tx, ids []int64) error {
	_, err := tx.Exec(ctx, `
		UPDATE event_logs
		SET published_at = now()
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return fmt.Errorf("mark events published: %w", err)
	}
	return nil
}

// Topic maps an event type such as BOOKING_CREATED to scheduling.booking_created.
func Topic(eventType string) string {
	return TopicPrefix + strings.ToLower(eventType)
}

// toMessage copies the trace context stored with the event into the headers.
// A malformed trace context is dropped.
func toMessage(r Record) kafka.Message {
	var key []byte
	if r.AggregateID != nil {
		key = []byte(r.AggregateID.String())
	}
	carrier := &headerCarrier{headers: []kafka.Header{
		{Key: "event_id", Value: []byte(strconv.FormatInt(r.ID, 10))},
		{Key: "event_type", Value: []byte(r.EventType)},
	}}
	var trace map[string]string
	if len(r.TraceContext) > 0 && json.Unmarshal(r.TraceContext, &trace) == nil {
		keys := make([]string, 0, len(trace))
		for k := range trace {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			carrier.Set(k, trace[k])
		}
	}

	return kafka.Message{
		Topic:   Topic(r.EventType),
		Key:     key,
		Value:   r.Payload,
		Headers: carrier.headers,
		Time:    r.CreatedAt,
	}
}

// headerCarrier adapts Kafka headers to a propagation.TextMapCarrier.
type headerCarrier struct {
	headers []kafka.Header
}

func (c *headerCarrier) Get(key string) string {
	for _, h := range c.headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c *headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c.headers))
	for _, h := range c.headers {
		keys = append(keys, h.Key)
	}
	return keys
}

func (c *headerCarrier) Set(key, value string) {
	for i := range c.headers {
		if c.headers[i].Key == key {
			c.headers[i].Value = []byte(value)
			return
		}
	}
	c.headers = append(c.headers, kafka.Header{Key: key, Value: []byte(value)})
}
