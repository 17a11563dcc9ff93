package catalog

import (
	"sort"
	"time"

	"github.com/ignite/notification-agent/internal/condition"
	"github.com/ignite/notification-agent/internal/domain"
)

// CompiledRule is a validated rule with its compiled trigger predicate.
type CompiledRule struct {
	domain.Rule
	Predicate condition.Predicate
}

// Exclusion records a rule left out of a snapshot.
type Exclusion struct {
	RuleID string `json:"rule_id"`
	Reason string `json:"reason"`
}

// Snapshot is an immutable, indexed view of the active rules.
type Snapshot struct {
	byTrigger map[string][]*CompiledRule
	loadedAt  time.Time
	size      int
	excluded  []Exclusion
}

// Candidates returns the rules for a trigger event ordered by priority
// descending, ties broken by rule ID. The slice must not be modified.
func (s *Snapshot) Candidates(triggerEvent string) []*CompiledRule {
	return s.byTrigger[triggerEvent]
}

// LoadedAt is when the snapshot was built.
func (s *Snapshot) LoadedAt() time.Time { return s.loadedAt }

// Size is the number of rules in the snapshot.
func (s *Snapshot) Size() int { return s.size }

// Excluded lists rules dropped as misconfigured.
func (s *Snapshot) Excluded() []Exclusion { return s.excluded }

// Triggers returns the indexed trigger events with their rule counts.
func (s *Snapshot) Triggers() map[string]int {
	out := make(map[string]int, len(s.byTrigger))
	for k, v := range s.byTrigger {
		out[k] = len(v)
	}
	return out
}

func buildSnapshot(rules []*CompiledRule, excluded []Exclusion, at time.Time) *Snapshot {
	idx := make(map[string][]*CompiledRule)
	for _, r := range rules {
		idx[r.TriggerEvent] = append(idx[r.TriggerEvent], r)
	}
	for _, bucket := range idx {
		sort.SliceStable(bucket, func(i, j int) bool {
			if bucket[i].Priority != bucket[j].Priority {
				return bucket[i].Priority > bucket[j].Priority
			}
			return bucket[i].ID < bucket[j].ID
		})
	}
	return &Snapshot{byTrigger: idx, loadedAt: at, size: len(rules), excluded: excluded}
}
