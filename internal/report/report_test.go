package report

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/marko911/arbitration-relayer/internal/reconcile"
)

type recordingSink struct {
	name      string
	err       error
	published []*Report
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Publish(ctx context.Context, r *Report) error {
	s.published = append(s.published, r)
	return s.err
}

func TestReport_Lifecycle(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r := New("notified", 100, start)

	r.SetScan(&reconcile.ScanResult{Key: "NOTIFIED_REQUESTS", FromBlock: 1, ToBlock: 9, Fetched: 2})
	r.SetOutcomes(reconcile.Outcomes{
		reconcile.TagNoOp:    {{QuestionID: "0x01"}},
		reconcile.TagFailure: {{QuestionID: "0x02", Error: "boom"}},
	})
	r.Finish(nil, start.Add(3*time.Second))

	if r.Failed() {
		t.Error("expected successful report")
	}
	if r.Reconciled != 2 || r.Counts[reconcile.TagFailure] != 1 {
		t.Errorf("unexpected counts reconciled=%d counts=%v", r.Reconciled, r.Counts)
	}
	if r.Duration() != 3*time.Second {
		t.Errorf("expected 3s duration, got %v", r.Duration())
	}
	if r.Key() != "notified:100" {
		t.Errorf("unexpected key %s", r.Key())
	}

	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	scan, ok := decoded["scan"].(map[string]interface{})
	if !ok || scan["key"] != "NOTIFIED_REQUESTS" {
		t.Errorf("expected scan summary in JSON, got %v", decoded["scan"])
	}
	if _, ok := decoded["error"]; ok {
		t.Error("expected error to be omitted on success")
	}
}

func TestReport_FailedRun(t *testing.T) {
	r := New("ruled", 1, time.Now())
	r.Finish(errors.New("get block number: timeout"), time.Now())

	if !r.Failed() || r.Error != "get block number: timeout" {
		t.Errorf("expected failed report, got %+v", r)
	}
	if r.Scan != nil {
		t.Error("expected no scan summary")
	}
}

func TestReport_RunIDsAreUnique(t *testing.T) {
	a := New("rejected", 1, time.Now())
	b := New("rejected", 1, time.Now())
	if a.RunID == b.RunID {
		t.Error("expected distinct run ids")
	}
}

func TestMulti_ContinuesAfterFailure(t *testing.T) {
	failing := &recordingSink{name: "nats", err: errors.New("no responders")}
	ok := &recordingSink{name: "s3"}
	m := NewMulti(nil, failing, ok)

	err := m.Publish(context.Background(), New("notified", 1, time.Now()))
	if !errors.Is(err, failing.err) {
		t.Errorf("expected joined sink error, got %v", err)
	}
	if len(ok.published) != 1 {
		t.Error("expected healthy sink to receive the report")
	}
	if m.Len() != 2 {
		t.Errorf("expected 2 sinks, got %d", m.Len())
	}
}

func TestMulti_NoSinks(t *testing.T) {
	if err := NewMulti(nil).Publish(context.Background(), New("x", 1, time.Now())); err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
}
