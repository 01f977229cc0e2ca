package reconcile

import (
	"sort"

	protov1 "github.com/marko911/arbitration-relayer/pkg/proto/v1"
)

// Summary is the compact form of one request outcome kept in reports.
type Summary struct {
	QuestionID    string `json:"question_id"`
	Discriminator string `json:"discriminator"`
	Status        string `json:"status,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Outcomes groups summaries by action tag. Failed requests are grouped under
// TagFailure.
type Outcomes map[Tag][]Summary

// Aggregate partitions settled results into tag groups. It has no side
// effects and never retries.
func Aggregate(results []Result) Outcomes {
	out := make(Outcomes)
	for _, r := range results {
		if r.Failed() {
			out[TagFailure] = append(out[TagFailure], summarize(r.Request, r.Err.Error()))
			continue
		}
		out[r.Outcome.Action] = append(out[r.Outcome.Action], summarize(r.Outcome.Payload, ""))
	}
	return out
}

func summarize(req protov1.Request, errMsg string) Summary {
	s := Summary{
		QuestionID:    req.QuestionID.Hex(),
		Discriminator: req.Discriminator(),
		Error:         errMsg,
	}
	if errMsg == "" {
		s.Status = req.StatusName()
	}
	return s
}

// Total returns the number of outcomes across all tags.
func (o Outcomes) Total() int {
	n := 0
	for _, group := range o {
		n += len(group)
	}
	return n
}

// Count returns the number of outcomes tagged tag.
func (o Outcomes) Count(tag Tag) int {
	return len(o[tag])
}

// Counts returns per-tag sizes.
func (o Outcomes) Counts() map[Tag]int {
	counts := make(map[Tag]int, len(o))
	for tag, group := range o {
		counts[tag] = len(group)
	}
	return counts
}

// Tags returns the tags present, sorted.
func (o Outcomes) Tags() []Tag {
	tags := make([]Tag, 0, len(o))
	for tag := range o {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}
