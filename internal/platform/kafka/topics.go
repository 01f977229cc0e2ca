// Package kafka writes run reports to Kafka/Redpanda and manages the topics
// they go to.
package kafka

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
)

// TopicConfig defines the configuration for a Kafka topic.
type TopicConfig struct {
	Name              string
	Partitions        int32
	ReplicationFactor int16
	RetentionMs       int64
	CleanupPolicy     string
}

// ReportsTopic receives one record per job run.
const ReportsTopic = "relayer-reports"

// DefaultTopicConfigs returns the topics the relayer writes to.
func DefaultTopicConfigs() []TopicConfig {
	return []TopicConfig{
		{
			Name:              ReportsTopic,
			Partitions:        4,
			ReplicationFactor: 1,
			RetentionMs:       14 * 24 * 60 * 60 * 1000,
			CleanupPolicy:     "delete",
		},
	}
}

// TopicManager manages Kafka topics.
type TopicManager struct {
	admin *kadm.Client
}

// NewTopicManager connects an admin client to a comma separated broker list.
func NewTopicManager(brokers string) (*TopicManager, error) {
	client, err := kgo.NewClient(kgo.SeedBrokers(SplitBrokers(brokers)...))
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	return &TopicManager{
		admin: kadm.NewClient(client),
	}, nil
}

// EnsureTopics creates the topics that are missing. Existing topics are not
// reconfigured.
func (m *TopicManager) EnsureTopics(ctx context.Context, configs []TopicConfig) error {
	existing, err := m.admin.ListTopics(ctx)
	if err != nil {
		return fmt.Errorf("list topics: %w", err)
	}

	existingSet := make(map[string]bool)
	for _, t := range existing {
		existingSet[t.Topic] = true
	}

	for _, cfg := range configs {
		if existingSet[cfg.Name] {
			continue
		}

		if err := m.CreateTopic(ctx, cfg); err != nil {
			return fmt.Errorf("create topic %s: %w", cfg.Name, err)
		}
	}

	return nil
}

// CreateTopic creates a single topic.
func (m *TopicManager) CreateTopic(ctx context.Context, cfg TopicConfig) error {
	resp, err := m.admin.CreateTopics(ctx, cfg.Partitions, cfg.ReplicationFactor,
		map[string]*string{
			"retention.ms":   stringPtr(fmt.Sprintf("%d", cfg.RetentionMs)),
			"cleanup.policy": stringPtr(cfg.CleanupPolicy),
		},
		cfg.Name,
	)
	if err != nil {
		return fmt.Errorf("create topic: %w", err)
	}

	for _, r := range resp {
		if r.Err != nil {
			return fmt.Errorf("create topic %s: %w", r.Topic, r.Err)
		}
	}

	return nil
}

// Close closes the admin client.
func (m *TopicManager) Close() {
	m.admin.Close()
}

// WaitForTopic polls until topic is listed by the brokers or timeout elapses.
func (m *TopicManager) WaitForTopic(ctx context.Context, topic string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		topics, err := m.admin.ListTopics(ctx, topic)
		if err == nil {
			if d, ok := topics[topic]; ok && d.Err == nil {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}

	return fmt.Errorf("timeout waiting for topic %s", topic)
}

// SplitBrokers turns "a:9092, b:9092" into a trimmed list, skipping empty
// entries.
func SplitBrokers(brokers string) []string {
	var out []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

func stringPtr(s string) *string {
	return &s
}
