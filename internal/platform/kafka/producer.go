package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/marko911/arbitration-relayer/internal/report"
)

// syncProducer is the part of kgo.Client the report producer needs.
type syncProducer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// ReportProducer writes each run report as one record keyed by job and chain,
// so reports of one job stay ordered within a partition.
type ReportProducer struct {
	client syncProducer
	topic  string
	closer func()
}

func NewReportProducer(brokers, topic string) (*ReportProducer, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(SplitBrokers(brokers)...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
		kgo.RecordRetries(5),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &ReportProducer{client: client, topic: topic, closer: client.Close}, nil
}

func (p *ReportProducer) Name() string {
	return "kafka"
}

func (p *ReportProducer) Publish(ctx context.Context, r *report.Report) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	status := "ok"
	if r.Failed() {
		status = "failed"
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(r.Key()),
		Value: data,
		Headers: []kgo.RecordHeader{
			{Key: "run_id", Value: []byte(r.RunID.String())},
			{Key: "job", Value: []byte(r.Job)},
			{Key: "status", Value: []byte(status)},
		},
	}

	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce: %w", err)
	}
	return nil
}

func (p *ReportProducer) Close() {
	if p.closer != nil {
		p.closer()
	}
}
