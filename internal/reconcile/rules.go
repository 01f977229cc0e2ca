package reconcile

import (
	"context"
	"fmt"

	protov1 "github.com/marko911/arbitration-relayer/pkg/proto/v1"
)

// Tag names the action a request went through during a run.
type Tag string

const (
	TagNoOp          Tag = "NO_OP"
	TagStatusChanged Tag = "STATUS_CHANGED"
	TagFailure       Tag = "FAILURE"
)

// Pair is what predicates classify: the stored snapshot and the live view.
type Pair struct {
	OffChain protov1.Request
	OnChain  protov1.Request
}

// Predicate decides whether a rule applies to a pair.
type Predicate func(p Pair) bool

// Action is the corrective step bound to a rule. Do receives the merged
// request and returns the payload reported for it.
type Action struct {
	Tag Tag
	Do  func(ctx context.Context, merged protov1.Request) (protov1.Request, error)
}

// Rule binds a predicate to an action.
type Rule struct {
	Name string
	When Predicate
	Then Action
}

// Table is an ordered list of rules evaluated first-match. The last rule is
// always an unconditional no-op, so every request classifies to exactly one
// action.
type Table struct {
	rules []Rule
}

// NewTable builds a table from rules in priority order and appends the no-op
// fallback.
func NewTable(rules ...Rule) Table {
	all := make([]Rule, 0, len(rules)+1)
	all = append(all, rules...)
	all = append(all, Rule{Name: "default", When: Always, Then: NoOp()})
	return Table{rules: all}
}

// Classify returns the first rule whose predicate holds for p.
func (t Table) Classify(p Pair) Rule {
	for _, r := range t.rules {
		if r.When(p) {
			return r
		}
	}
	// Unreachable for tables built with NewTable.
	return Rule{Name: "default", When: Always, Then: NoOp()}
}

// Rules returns the rules in evaluation order, fallback included.
func (t Table) Rules() []Rule {
	out := make([]Rule, len(t.rules))
	copy(out, t.rules)
	return out
}

// Always matches every pair.
func Always(Pair) bool { return true }

// OnChainStatusIn matches when the live status is one of statuses.
func OnChainStatusIn(statuses ...protov1.Status) Predicate {
	return func(p Pair) bool {
		for _, s := range statuses {
			if p.OnChain.Status == s {
				return true
			}
		}
		return false
	}
}

// StatusChanged matches when the live status differs from the stored one.
func StatusChanged(p Pair) bool {
	return p.OnChain.Status != p.OffChain.Status
}

// Remove drops the request from the store. Used once the on-chain state is
// terminal.
func Remove(store RequestStore, tag Tag) Action {
	return Action{
		Tag: tag,
		Do: func(ctx context.Context, merged protov1.Request) (protov1.Request, error) {
			if err := store.Remove(ctx, merged); err != nil {
				return merged, fmt.Errorf("remove request: %w", err)
			}
			return merged, nil
		},
	}
}

// Update persists the merged snapshot.
func Update(store RequestStore) Action {
	return Action{
		Tag: TagStatusChanged,
		Do: func(ctx context.Context, merged protov1.Request) (protov1.Request, error) {
			if err := store.Update(ctx, merged); err != nil {
				return merged, fmt.Errorf("update request: %w", err)
			}
			return merged, nil
		},
	}
}

// Handle sends a corrective transaction through op.
func Handle(tag Tag, op func(ctx context.Context, req protov1.Request) (protov1.Request, error)) Action {
	return Action{Tag: tag, Do: op}
}

// NoOp echoes the merged request without touching anything.
func NoOp() Action {
	return Action{
		Tag: TagNoOp,
		Do: func(_ context.Context, merged protov1.Request) (protov1.Request, error) {
			return merged, nil
		},
	}
}
