package reconcile

import (
	"fmt"
	"testing"

	protov1 "github.com/marko911/arbitration-relayer/pkg/proto/v1"
)

func TestAggregate(t *testing.T) {
	removed := homeRequest(1, protov1.Status_HOME_NONE)
	changed := homeRequest(2, protov1.Status_HOME_RULED)
	failed := homeRequest(3, protov1.Status_HOME_NOTIFIED)

	results := []Result{
		{Request: removed, Outcome: Outcome{Action: "REMOVED", Payload: removed}},
		{Request: changed, Outcome: Outcome{Action: TagStatusChanged, Payload: changed}},
		{Request: failed, Err: fmt.Errorf("fetch on-chain request: %w", errInjected)},
	}

	out := Aggregate(results)
	if out.Total() != len(results) {
		t.Errorf("expected %d outcomes, got %d", len(results), out.Total())
	}

	counts := out.Counts()
	for _, tag := range []Tag{"REMOVED", TagStatusChanged, TagFailure} {
		if counts[tag] != 1 {
			t.Errorf("expected 1 outcome for %s, got %d", tag, counts[tag])
		}
	}

	changedSummary := out[TagStatusChanged][0]
	if changedSummary.Status != "ruled" {
		t.Errorf("expected status ruled, got %q", changedSummary.Status)
	}
	if changedSummary.Discriminator != changed.Requester.Hex() {
		t.Errorf("expected requester discriminator, got %s", changedSummary.Discriminator)
	}

	failure := out[TagFailure][0]
	if failure.Error != "fetch on-chain request: injected failure" {
		t.Errorf("unexpected failure message %q", failure.Error)
	}
	if failure.Status != "" {
		t.Errorf("expected no status on failures, got %q", failure.Status)
	}
}

func TestOutcomes_Tags(t *testing.T) {
	out := Outcomes{
		TagStatusChanged: {{}},
		TagFailure:       {{}},
		TagNoOp:          {{}},
	}
	tags := out.Tags()
	want := []Tag{TagFailure, TagNoOp, TagStatusChanged}
	if len(tags) != len(want) {
		t.Fatalf("expected %v, got %v", want, tags)
	}
	for i := range want {
		if tags[i] != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], tags[i])
		}
	}
}

func TestAggregate_Empty(t *testing.T) {
	out := Aggregate(nil)
	if out.Total() != 0 || out.Count(TagFailure) != 0 {
		t.Errorf("expected empty outcomes, got %v", out)
	}
}
