package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/marko911/arbitration-relayer/internal/report"
)

// streamPublisher is the part of jetstream.JetStream the publisher needs.
type streamPublisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// ReportPublisher publishes run reports to JetStream. The run id is the
// message id, so a retried publish is deduplicated by the stream.
type ReportPublisher struct {
	js streamPublisher
}

func NewReportPublisher(js jetstream.JetStream) *ReportPublisher {
	return &ReportPublisher{js: js}
}

func (p *ReportPublisher) Name() string {
	return "nats"
}

func (p *ReportPublisher) Publish(ctx context.Context, r *report.Report) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	subject := SubjectForReport(r.Job, r.ChainID)
	if _, err := p.js.Publish(ctx, subject, data, jetstream.WithMsgID(r.RunID.String())); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}
