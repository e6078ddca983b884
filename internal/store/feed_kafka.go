package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaFeedConfig configures the change-data-capture consumer.
type KafkaFeedConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// KafkaFeed consumes Change messages from a CDC topic and fans them out
// through a Hub. Message keys carry the organization id.
type KafkaFeed struct {
	reader *kafka.Reader
	hub    *Hub
	logger *slog.Logger
}

// NewKafkaFeed constructs the Kafka feed.
func NewKafkaFeed(cfg KafkaFeedConfig, logger *slog.Logger) (*KafkaFeed, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, errors.New("store: kafka brokers and topic required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &KafkaFeed{reader: reader, hub: NewHub(), logger: logger.With(slog.String("feed", "kafka"))}, nil
}

// Subscribe implements Feed.
func (f *KafkaFeed) Subscribe(ctx context.Context, organizationID string) (<-chan Change, error) {
	return f.hub.Subscribe(ctx, organizationID)
}

// Run consumes until ctx ends.
func (f *KafkaFeed) Run(ctx context.Context) error {
	for {
		msg, err := f.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.logger.Error("read change", slog.Any("error", err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}
		change, err := decodeKafkaChange(msg)
		if err != nil {
			f.logger.Warn("discard malformed change", slog.Any("error", err), slog.Int64("offset", msg.Offset))
			continue
		}
		f.hub.Publish(change)
	}
}

// Close releases the reader.
func (f *KafkaFeed) Close() error {
	return f.reader.Close()
}

func decodeKafkaChange(msg kafka.Message) (Change, error) {
	var change Change
	if err := json.Unmarshal(msg.Value, &change); err != nil {
		return Change{}, fmt.Errorf("store: decode change: %w", err)
	}
	if change.OrganizationID == "" {
		change.OrganizationID = string(msg.Key)
	}
	for _, h := range msg.Headers {
		if h.Key == "event-type" && change.Type == "" {
			change.Type = ChangeType(h.Value)
		}
	}
	if change.OrganizationID == "" {
		return Change{}, ErrOrganizationRequired
	}
	return change, nil
}
