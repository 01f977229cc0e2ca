//go:build integration

package nats_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	pnats "github.com/marko911/arbitration-relayer/internal/platform/nats"
	"github.com/marko911/arbitration-relayer/internal/report"
)

func TestNATSIntegration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg := pnats.DefaultConfig()
	cfg.Name = "integration-test"

	client, err := pnats.Connect(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer client.Close()

	stream, err := pnats.EnsureStream(ctx, client.JetStream(), pnats.DefaultReportsStreamConfig())
	if err != nil {
		t.Fatalf("Failed to create stream: %v", err)
	}

	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		FilterSubject: pnats.SubjectForJob("integration"),
		DeliverPolicy: jetstream.DeliverNewPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		t.Fatalf("Failed to create consumer: %v", err)
	}

	r := report.New("integration", 42, time.Now())
	r.Finish(nil, time.Now())
	if err := pnats.NewReportPublisher(client.JetStream()).Publish(ctx, r); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	msgs, err := consumer.Fetch(1, jetstream.FetchMaxWait(5*time.Second))
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	for msg := range msgs.Messages() {
		var got report.Report
		if err := json.Unmarshal(msg.Data(), &got); err != nil {
			t.Fatalf("Failed to decode report: %v", err)
		}
		if got.RunID != r.RunID {
			t.Errorf("expected run id %s, got %s", r.RunID, got.RunID)
		}
		_ = msg.Ack()
		return
	}
	t.Fatal("no report received")
}
