package report

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mirrorlake/augur/research"
)

func snapshotFixture(status research.RunStatus) *research.Snapshot {
	return &research.Snapshot{
		RunID:   "run-1",
		Subject: research.Subject{Company: "Acme Corp"},
		Status:  status,
		Findings: map[string][]research.Evidence{
			"grounding": {
				{Topic: "grounding", Source: "https://acme.example", Title: "Acme", Content: "Acme makes anvils.", Score: 0.9},
			},
			"financials": {
				{Topic: "financials", Source: "https://news.example/funding", Title: "Funding", Content: "Acme raised a Series B.", Score: 0.8},
			},
		},
		StepLog: []research.StepOutcome{
			{Step: "grounding", Status: research.StepSucceeded, Calls: 2},
			{Step: "financial_analysis", Status: research.StepSucceeded, Calls: 3},
		},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
}

func TestMarkdownAssembler_RendersSectionsAndReferences(t *testing.T) {
	a := NewMarkdownAssembler(zap.NewNop())

	doc := a.Assemble(snapshotFixture(research.RunCompleted))

	assert.Equal(t, "run-1", doc.RunID)
	assert.Equal(t, "Acme Corp Research Report", doc.Title)
	assert.Contains(t, doc.Markdown, "# Acme Corp Research Report")
	assert.Contains(t, doc.Markdown, "## Company Overview")
	assert.Contains(t, doc.Markdown, "## Financial Position")
	assert.Contains(t, doc.Markdown, "## References")
	assert.Contains(t, doc.Markdown, "https://acme.example")
	assert.Contains(t, doc.Markdown, "## Research Audit Trail")
	assert.NotContains(t, doc.Markdown, "best-effort partial")
}

func TestMarkdownAssembler_PrefersEditorOutput(t *testing.T) {
	snap := snapshotFixture(research.RunCompleted)
	snap.Findings["report"] = []research.Evidence{
		{Topic: "report", Content: "Final synthesized report body.", Synthesized: true},
	}
	a := NewMarkdownAssembler(zap.NewNop())

	doc := a.Assemble(snap)

	assert.Contains(t, doc.Markdown, "Final synthesized report body.")
	// Raw per-topic sections are replaced by the editor body.
	assert.NotContains(t, doc.Markdown, "## Company Overview")
}

func TestMarkdownAssembler_MarksWarnings(t *testing.T) {
	snap := snapshotFixture(research.RunCompletedWithWarnings)
	snap.StepLog = append(snap.StepLog, research.StepOutcome{
		Step: "news_scan", Status: research.StepFailed, Error: "all calls failed",
	})
	a := NewMarkdownAssembler(zap.NewNop())

	doc := a.Assemble(snap)

	assert.Contains(t, doc.Markdown, "did not complete cleanly")
	assert.Contains(t, doc.Markdown, "| news_scan | failed |")
}

func TestMarkdownAssembler_FailedRunProducesPartialDocument(t *testing.T) {
	snap := snapshotFixture(research.RunFailed)
	a := NewMarkdownAssembler(zap.NewNop())

	doc := a.Assemble(snap)

	require.NotEmpty(t, doc.Markdown)
	assert.Contains(t, doc.Markdown, "best-effort partial")
	assert.Contains(t, doc.Markdown, "Acme makes anvils.")
}

func TestMarkdownAssembler_EmptyFindings(t *testing.T) {
	snap := &research.Snapshot{
		RunID:    "run-2",
		Subject:  research.Subject{Company: "Ghost Inc"},
		Status:   research.RunFailed,
		Findings: map[string][]research.Evidence{},
		StepLog: []research.StepOutcome{
			{Step: "grounding", Status: research.StepFailed, Error: "all calls failed"},
		},
	}
	a := NewMarkdownAssembler(zap.NewNop())

	doc := a.Assemble(snap)

	assert.True(t, strings.HasPrefix(doc.Markdown, "# Ghost Inc Research Report"))
	assert.Contains(t, doc.Markdown, "## Research Audit Trail")
	assert.NotContains(t, doc.Markdown, "## References")
}
