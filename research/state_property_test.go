package research

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// Re-applying any sequence of deltas a second time must leave the whole
// state unchanged: dedupe by source+content hash makes Apply idempotent for
// evidence, and repeated outcomes are not logged twice, even under duplicate
// delivery.
func TestProperty_ApplyIdempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		topics := []string{"financials", "news", "industry", "company"}
		steps := []string{"financial_analysis", "news_scan", "industry_analysis", "company_analysis"}
		statuses := []StepStatus{StepSucceeded, StepPartial, StepFailed, StepSkipped}

		deltas := rapid.SliceOfN(rapid.Custom(func(t *rapid.T) *Delta {
			n := rapid.IntRange(0, 5).Draw(t, "evidence_count")
			evs := make([]Evidence, 0, n)
			for i := 0; i < n; i++ {
				evs = append(evs, Evidence{
					Topic:   rapid.SampledFrom(topics).Draw(t, "topic"),
					Source:  fmt.Sprintf("https://src.example/%d", rapid.IntRange(0, 20).Draw(t, "source")),
					Content: rapid.StringMatching(`[a-z]{1,12}`).Draw(t, "content"),
				})
			}
			step := rapid.SampledFrom(steps).Draw(t, "step")
			return &Delta{
				Step:     step,
				Evidence: evs,
				Outcome: StepOutcome{
					Step:     step,
					Status:   rapid.SampledFrom(statuses).Draw(t, "status"),
					Calls:    rapid.IntRange(0, 8).Draw(t, "calls"),
					Failures: rapid.IntRange(0, 8).Draw(t, "failures"),
				},
			}
		}), 1, 8).Draw(t, "deltas")

		once := NewState("run", Subject{Company: "Acme Corp"})
		twice := NewState("run", Subject{Company: "Acme Corp"})

		for _, d := range deltas {
			once.Apply(d)
			twice.Apply(d)
			twice.Apply(d)
		}

		for _, topic := range topics {
			require.Equal(t, once.Findings(topic), twice.Findings(topic),
				"topic %s diverged under duplicate delivery", topic)
		}
		require.Equal(t, once.StepLog(), twice.StepLog(),
			"step log diverged under duplicate delivery")
	})
}

// Whatever sequence of transitions is attempted, the observed status ranks
// never decrease over the run's lifetime.
func TestProperty_StatusMonotonic(t *testing.T) {
	all := []RunStatus{RunPending, RunRunning, RunCompleted, RunCompletedWithWarnings, RunFailed}

	rapid.Check(t, func(t *rapid.T) {
		st := NewState("run", Subject{Company: "Acme Corp"})
		prev := st.Status()
		attempts := rapid.SliceOfN(rapid.SampledFrom(all), 1, 12).Draw(t, "attempts")

		for _, next := range attempts {
			_ = st.SetStatus(next) // rejected transitions are fine; regressions are not
			cur := st.Status()
			require.GreaterOrEqual(t, runStatusRank[cur], runStatusRank[prev],
				"status regressed from %s to %s", prev, cur)
			prev = cur
		}
	})
}
