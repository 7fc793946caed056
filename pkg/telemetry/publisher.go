package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/lunamage/featurehub/pkg/featurestore"
	"github.com/lunamage/featurehub/pkg/observability"
)

const streamPrefix = "featurehub:stream:"

// Publisher emits events onto the bus. Publishing is best-effort: each event
// is written with a single XADD, and a failed write is counted and logged but
// not retried, so that event is lost.
type Publisher interface {
	// PublishQueryLog emits one read record, partitioned by its key
	PublishQueryLog(ctx context.Context, queryLog *featurestore.QueryLog)
	// PublishMigrationEvent emits a per-key migration outcome or sweep completion
	PublishMigrationEvent(ctx context.Context, key string, event any)
	// PublishCleanupEvent emits a cleanup sweep result
	PublishCleanupEvent(ctx context.Context, record *featurestore.CleanupRecord)
	// Ping verifies bus connectivity
	Ping(ctx context.Context) error
	// Close releases the bus connection
	Close() error
}

type publisher struct {
	log        logrus.FieldLogger
	client     *redis.Client
	partitions int
	maxLen     int64
}

// NewPublisher creates a stream-backed publisher from its config
func NewPublisher(log logrus.FieldLogger, cfg *Config) (Publisher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telemetry config: %w", err)
	}

	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse telemetry URL: %w", err)
	}

	return &publisher{
		log:        log.WithField("component", "telemetry"),
		client:     redis.NewClient(opt),
		partitions: cfg.Partitions,
		maxLen:     cfg.StreamMaxLen,
	}, nil
}

// NewPublisherFromClient wraps an existing go-redis client (used by tests)
func NewPublisherFromClient(log logrus.FieldLogger, client *redis.Client, cfg *Config) Publisher {
	return &publisher{
		log:        log.WithField("component", "telemetry"),
		client:     client,
		partitions: cfg.Partitions,
		maxLen:     cfg.StreamMaxLen,
	}
}

func (p *publisher) PublishQueryLog(ctx context.Context, queryLog *featurestore.QueryLog) {
	p.publish(ctx, TopicQueryLogs, queryLog.Key, queryLog)
}

func (p *publisher) PublishMigrationEvent(ctx context.Context, key string, event any) {
	p.publish(ctx, TopicMigrationEvents, key, event)
}

func (p *publisher) PublishCleanupEvent(ctx context.Context, record *featurestore.CleanupRecord) {
	p.publish(ctx, TopicCleanupEvents, record.TaskID, record)
}

// publish is fire-and-forget: bus failures are counted and logged but never
// surface to the caller.
func (p *publisher) publish(ctx context.Context, topic, key string, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		observability.RecordEventPublish(topic, "marshal_error")
		p.log.WithError(err).WithField("topic", topic).Warn("Failed to marshal event")

		return
	}

	args := &redis.XAddArgs{
		Stream: StreamName(topic, p.Partition(key)),
		Values: map[string]interface{}{"key": key, "payload": string(payload)},
	}

	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		observability.RecordEventPublish(topic, "error")
		p.log.WithError(err).WithFields(logrus.Fields{
			"topic": topic,
			"key":   key,
		}).Warn("Failed to publish event")

		return
	}

	observability.RecordEventPublish(topic, "ok")
}

// Partition maps a key to its partition index
func (p *publisher) Partition(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))

	return int(h.Sum32() % uint32(p.partitions)) //nolint:gosec // partitions is a small positive int
}

func (p *publisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func (p *publisher) Close() error {
	return p.client.Close()
}

// StreamName returns the stream holding one partition of a topic
func StreamName(topic string, partition int) string {
	return fmt.Sprintf("%s%s:%d", streamPrefix, topic, partition)
}
