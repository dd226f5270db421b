// Package report renders a terminal run state into a readable document.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mirrorlake/augur/research"
)

// Document is the assembled output for one run.
type Document struct {
	RunID       string    `json:"run_id" bson:"run_id"`
	Title       string    `json:"title" bson:"title"`
	Markdown    string    `json:"markdown" bson:"markdown"`
	GeneratedAt time.Time `json:"generated_at" bson:"generated_at"`
}

// Assembler consumes a terminal state snapshot and produces a document.
// Implementations must handle CompletedWithWarnings by marking sections
// lacking complete evidence, and Failed by producing a best-effort partial
// document rather than erroring.
type Assembler interface {
	Assemble(snap *research.Snapshot) Document
}

// topicTitles maps topic keys to section headings, in render order.
var topicOrder = []struct {
	key   string
	title string
}{
	{"grounding", "Company Overview"},
	{"company", "Company Analysis"},
	{"financials", "Financial Position"},
	{"news", "Recent News"},
	{"industry", "Industry Landscape"},
	{"competitors", "Competitive Landscape"},
}

// MarkdownAssembler renders the snapshot as a markdown report. It prefers
// the synthesized editor output when present and falls back to per-topic
// briefings, then to raw evidence, so a failed run still yields a readable
// partial document.
type MarkdownAssembler struct {
	logger *zap.Logger
}

// NewMarkdownAssembler creates a markdown assembler.
func NewMarkdownAssembler(logger *zap.Logger) *MarkdownAssembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MarkdownAssembler{logger: logger.With(zap.String("component", "report_assembler"))}
}

// Assemble never errors: whatever evidence the run produced becomes the
// document body, and missing pieces are called out in place.
func (a *MarkdownAssembler) Assemble(snap *research.Snapshot) Document {
	var b strings.Builder

	title := fmt.Sprintf("%s Research Report", snap.Subject.Company)
	fmt.Fprintf(&b, "# %s\n\n", title)

	switch snap.Status {
	case research.RunCompletedWithWarnings:
		b.WriteString("> Some research steps did not complete cleanly. Sections below that lack complete evidence are marked.\n\n")
	case research.RunFailed:
		b.WriteString("> This run failed before all required research completed. The report below is a best-effort partial result.\n\n")
	}

	imperfect := imperfectSteps(snap)

	if body := editorBody(snap); body != "" {
		b.WriteString(body)
		b.WriteString("\n\n")
	} else {
		a.writeSections(&b, snap, imperfect)
	}

	a.writeReferences(&b, snap)
	a.writeAuditTrail(&b, snap)

	a.logger.Debug("report assembled",
		zap.String("run_id", snap.RunID),
		zap.String("status", string(snap.Status)),
	)
	return Document{
		RunID:       snap.RunID,
		Title:       title,
		Markdown:    b.String(),
		GeneratedAt: time.Now().UTC(),
	}
}

// editorBody returns the synthesized final report if the editor step ran.
func editorBody(snap *research.Snapshot) string {
	for _, ev := range snap.Findings["report"] {
		if ev.Synthesized && ev.Content != "" {
			return strings.TrimSpace(ev.Content)
		}
	}
	return ""
}

// imperfectSteps collects topics whose producing step was not a clean success.
func imperfectSteps(snap *research.Snapshot) map[string]research.StepStatus {
	out := make(map[string]research.StepStatus)
	for _, outcome := range snap.StepLog {
		if outcome.Status != research.StepSucceeded {
			out[outcome.Step] = outcome.Status
		}
	}
	return out
}

func (a *MarkdownAssembler) writeSections(b *strings.Builder, snap *research.Snapshot, imperfect map[string]research.StepStatus) {
	for _, section := range topicOrder {
		briefings := snap.Findings["briefings"]
		var body string
		for _, ev := range briefings {
			if ev.Synthesized && ev.Query == section.key {
				body = strings.TrimSpace(ev.Content)
				break
			}
		}
		if body == "" {
			body = rawSummary(snap.Findings[section.key])
		}
		if body == "" {
			continue
		}
		fmt.Fprintf(b, "## %s\n\n", section.title)
		for step, status := range imperfect {
			if def := stepTopic(step); def == section.key {
				fmt.Fprintf(b, "_Incomplete evidence for this section (step %s: %s)._\n\n", step, status)
			}
		}
		b.WriteString(body)
		b.WriteString("\n\n")
	}
}

// stepTopic maps the pipeline step names to their topic keys for marking
// incomplete sections. Unknown steps map to empty.
func stepTopic(step string) string {
	switch step {
	case "grounding":
		return "grounding"
	case "financial_analysis":
		return "financials"
	case "news_scan":
		return "news"
	case "industry_analysis":
		return "industry"
	case "company_analysis":
		return "company"
	case "competitor_analysis":
		return "competitors"
	}
	return ""
}

// rawSummary renders raw evidence as a bulleted digest when no briefing
// exists for the topic.
func rawSummary(evs []research.Evidence) string {
	if len(evs) == 0 {
		return ""
	}
	var b strings.Builder
	for _, ev := range evs {
		line := strings.TrimSpace(ev.Content)
		if len(line) > 300 {
			line = line[:300] + "…"
		}
		if ev.Title != "" {
			fmt.Fprintf(&b, "- **%s** — %s\n", ev.Title, line)
		} else {
			fmt.Fprintf(&b, "- %s\n", line)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func (a *MarkdownAssembler) writeReferences(b *strings.Builder, snap *research.Snapshot) {
	seen := make(map[string]struct{})
	var refs []string
	for _, topic := range sortedTopics(snap) {
		for _, ev := range snap.Findings[topic] {
			if ev.Synthesized || ev.Source == "" {
				continue
			}
			if _, dup := seen[ev.Source]; dup {
				continue
			}
			seen[ev.Source] = struct{}{}
			refs = append(refs, ev.Source)
		}
	}
	if len(refs) == 0 {
		return
	}
	b.WriteString("## References\n\n")
	for i, ref := range refs {
		fmt.Fprintf(b, "%d. %s\n", i+1, ref)
	}
	b.WriteString("\n")
}

func (a *MarkdownAssembler) writeAuditTrail(b *strings.Builder, snap *research.Snapshot) {
	if len(snap.StepLog) == 0 {
		return
	}
	b.WriteString("## Research Audit Trail\n\n")
	b.WriteString("| Step | Status | Calls | Failures | Detail |\n")
	b.WriteString("|------|--------|-------|----------|--------|\n")
	for _, outcome := range snap.StepLog {
		fmt.Fprintf(b, "| %s | %s | %d | %d | %s |\n",
			outcome.Step, outcome.Status, outcome.Calls, outcome.Failures, outcome.Error)
	}
}

func sortedTopics(snap *research.Snapshot) []string {
	topics := make([]string, 0, len(snap.Findings))
	for t := range snap.Findings {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}
