package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/marko911/arbitration-relayer/internal/report"
)

type fakeProducer struct {
	records []*kgo.Record
	err     error
}

func (f *fakeProducer) ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	var results kgo.ProduceResults
	for _, r := range rs {
		f.records = append(f.records, r)
		results = append(results, kgo.ProduceResult{Record: r, Err: f.err})
	}
	return results
}

func header(r *kgo.Record, key string) string {
	for _, h := range r.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestReportProducer_Publish(t *testing.T) {
	fp := &fakeProducer{}
	p := &ReportProducer{client: fp, topic: ReportsTopic}

	r := report.New("requested", 1, time.Now())
	r.Finish(errors.New("fetch events: timeout"), time.Now())

	if err := p.Publish(context.Background(), r); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if len(fp.records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(fp.records))
	}

	rec := fp.records[0]
	if rec.Topic != "relayer-reports" || string(rec.Key) != "requested:1" {
		t.Errorf("unexpected topic/key %s/%s", rec.Topic, rec.Key)
	}
	if header(rec, "status") != "failed" || header(rec, "run_id") != r.RunID.String() {
		t.Errorf("unexpected headers %v", rec.Headers)
	}
}

func TestReportProducer_Error(t *testing.T) {
	fp := &fakeProducer{err: errors.New("broker down")}
	p := &ReportProducer{client: fp, topic: ReportsTopic}

	if err := p.Publish(context.Background(), report.New("ruled", 1, time.Now())); !errors.Is(err, fp.err) {
		t.Errorf("expected produce error, got %v", err)
	}
}

func TestSplitBrokers(t *testing.T) {
	got := SplitBrokers(" a:9092, ,b:9092 ")
	if len(got) != 2 || got[0] != "a:9092" || got[1] != "b:9092" {
		t.Errorf("unexpected brokers %v", got)
	}
	if len(SplitBrokers("")) != 0 {
		t.Error("expected no brokers for empty string")
	}
}

func TestDefaultTopicConfigs(t *testing.T) {
	cfgs := DefaultTopicConfigs()
	if len(cfgs) != 1 || cfgs[0].Name != ReportsTopic {
		t.Fatalf("unexpected topics %v", cfgs)
	}
	if cfgs[0].CleanupPolicy != "delete" {
		t.Errorf("expected delete cleanup policy, got %s", cfgs[0].CleanupPolicy)
	}
}

func TestTopicManager_WaitForTopic(t *testing.T) {
	// Nothing listens on this port, so the topic is never listed.
	m, err := NewTopicManager("127.0.0.1:1")
	if err != nil {
		t.Fatalf("NewTopicManager() error = %v", err)
	}
	defer m.Close()

	t.Run("timeout", func(t *testing.T) {
		err := m.WaitForTopic(context.Background(), ReportsTopic, 0)
		if err == nil {
			t.Fatal("WaitForTopic() error = nil, want timeout")
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := m.WaitForTopic(ctx, ReportsTopic, time.Minute)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("WaitForTopic() error = %v, want context.Canceled", err)
		}
	})
}
