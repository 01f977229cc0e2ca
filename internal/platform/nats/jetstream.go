package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// StreamConfig defines the configuration for a JetStream stream.
type StreamConfig struct {
	Name        string
	Subjects    []string
	Retention   jetstream.RetentionPolicy
	MaxAge      time.Duration // 0 = unlimited
	MaxMsgs     int64         // 0 = unlimited
	MaxBytes    int64         // 0 = unlimited
	Replicas    int
	Description string
}

// DefaultReportsStreamConfig keeps a week of run reports regardless of
// consumer interest, so dashboards can replay them.
func DefaultReportsStreamConfig() StreamConfig {
	return StreamConfig{
		Name:        "RELAYER_REPORTS",
		Subjects:    []string{"relayer.reports.>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      7 * 24 * time.Hour,
		MaxBytes:    1024 * 1024 * 1024,
		Replicas:    1,
		Description: "Arbitration relayer job run reports",
	}
}

// EnsureStream creates or updates a stream. Safe to call on every start.
func EnsureStream(ctx context.Context, js jetstream.JetStream, cfg StreamConfig) (jetstream.Stream, error) {
	streamCfg := jetstream.StreamConfig{
		Name:        cfg.Name,
		Subjects:    cfg.Subjects,
		Retention:   cfg.Retention,
		MaxAge:      cfg.MaxAge,
		MaxMsgs:     cfg.MaxMsgs,
		MaxBytes:    cfg.MaxBytes,
		Replicas:    cfg.Replicas,
		Description: cfg.Description,
		Storage:     jetstream.FileStorage,
		Discard:     jetstream.DiscardOld,
	}

	stream, err := js.CreateOrUpdateStream(ctx, streamCfg)
	if err != nil {
		return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
	}
	return stream, nil
}

// SubjectForReport returns relayer.reports.<job>.<chain_id>.
func SubjectForReport(job string, chainID uint64) string {
	return fmt.Sprintf("relayer.reports.%s.%d", job, chainID)
}

// SubjectForJob returns the wildcard subject for every chain of a job.
func SubjectForJob(job string) string {
	return fmt.Sprintf("relayer.reports.%s.>", job)
}
