package research

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Subject identifies the company under research. The name is required; the
// remaining fields are optional hints that sharpen search queries.
// Immutable after run creation.
type Subject struct {
	Company    string `json:"company" yaml:"company" bson:"company"`
	CompanyURL string `json:"company_url,omitempty" yaml:"company_url" bson:"company_url,omitempty"`
	HQLocation string `json:"hq_location,omitempty" yaml:"hq_location" bson:"hq_location,omitempty"`
	Industry   string `json:"industry,omitempty" yaml:"industry" bson:"industry,omitempty"`
}

// Validate checks that the subject carries the required fields.
func (s Subject) Validate() error {
	if strings.TrimSpace(s.Company) == "" {
		return fmt.Errorf("subject: company name is required")
	}
	return nil
}

// RunStatus is the overall state of one research run.
type RunStatus string

const (
	RunPending               RunStatus = "pending"
	RunRunning               RunStatus = "running"
	RunCompleted             RunStatus = "completed"
	RunCompletedWithWarnings RunStatus = "completed_with_warnings"
	RunFailed                RunStatus = "failed"
)

// runStatusRank orders statuses so transitions can only move forward.
var runStatusRank = map[RunStatus]int{
	RunPending:               0,
	RunRunning:               1,
	RunCompleted:             2,
	RunCompletedWithWarnings: 2,
	RunFailed:                2,
}

// Terminal reports whether the status is one of the three terminal states.
func (s RunStatus) Terminal() bool {
	return runStatusRank[s] == 2
}

// StepStatus is the terminal outcome of one step within a run.
type StepStatus string

const (
	StepSucceeded StepStatus = "succeeded"
	StepPartial   StepStatus = "partial"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// StepOutcome is one entry of the run's audit trail.
type StepOutcome struct {
	Step       string     `json:"step" bson:"step"`
	Status     StepStatus `json:"status" bson:"status"`
	Error      string     `json:"error,omitempty" bson:"error,omitempty"`
	Calls      int        `json:"calls" bson:"calls"`
	Failures   int        `json:"failures" bson:"failures"`
	StartedAt  time.Time  `json:"started_at" bson:"started_at"`
	FinishedAt time.Time  `json:"finished_at" bson:"finished_at"`
}

// Evidence is one piece of raw or synthesized information attached to a
// topic, with provenance. Evidence is never mutated once appended; later
// steps supersede by adding synthesized entries under new topics.
type Evidence struct {
	Topic       string    `json:"topic" bson:"topic"`
	Source      string    `json:"source" bson:"source"`
	Title       string    `json:"title,omitempty" bson:"title,omitempty"`
	Content     string    `json:"content" bson:"content"`
	Query       string    `json:"query,omitempty" bson:"query,omitempty"`
	Score       float64   `json:"score" bson:"score"`
	Synthesized bool      `json:"synthesized,omitempty" bson:"synthesized,omitempty"`
	CapturedAt  time.Time `json:"captured_at" bson:"captured_at"`
}

// Key returns the dedupe identity of the record: a hash of source + content.
// Re-applying the same delta twice must not duplicate evidence.
func (e Evidence) Key() string {
	h := sha256.New()
	h.Write([]byte(e.Source))
	h.Write([]byte{0})
	h.Write([]byte(e.Content))
	return hex.EncodeToString(h.Sum(nil))
}

// Delta is the set of findings and the outcome produced by one step
// execution. Deltas are immutable once returned; a single owner (the
// workflow runner) applies them to the state sequentially.
type Delta struct {
	Step     string
	Evidence []Evidence
	Outcome  StepOutcome
}

// State is the mutable, append-only record shared across all steps of one
// run. It has exactly one writer for the duration of the run; steps receive
// read-only views and return deltas instead of mutating it.
type State struct {
	runID     string
	subject   Subject
	findings  map[string][]Evidence
	seen      map[string]struct{}
	stepLog   []StepOutcome
	status    RunStatus
	createdAt time.Time
	updatedAt time.Time
}

// NewState creates the state for one run in the Pending status.
func NewState(runID string, subject Subject) *State {
	now := time.Now().UTC()
	return &State{
		runID:     runID,
		subject:   subject,
		findings:  make(map[string][]Evidence),
		seen:      make(map[string]struct{}),
		status:    RunPending,
		createdAt: now,
		updatedAt: now,
	}
}

// RunID returns the run identifier.
func (s *State) RunID() string { return s.runID }

// Subject returns the immutable research subject.
func (s *State) Subject() Subject { return s.subject }

// Status returns the current run status.
func (s *State) Status() RunStatus { return s.status }

// SetStatus transitions the run status. Transitions only move forward:
// a run never re-enters an earlier status, and terminal statuses are final.
func (s *State) SetStatus(next RunStatus) error {
	if _, ok := runStatusRank[next]; !ok {
		return fmt.Errorf("state: unknown run status %q", next)
	}
	if s.status.Terminal() {
		return fmt.Errorf("state: run %s is terminal (%s), cannot transition to %s", s.runID, s.status, next)
	}
	if runStatusRank[next] <= runStatusRank[s.status] && next != s.status {
		return fmt.Errorf("state: run %s cannot regress from %s to %s", s.runID, s.status, next)
	}
	s.status = next
	s.updatedAt = time.Now().UTC()
	return nil
}

// Apply merges a step's delta into the state: evidence is appended per topic
// in arrival order, duplicates (by source+content hash) are dropped, and the
// outcome is appended to the step log unless it repeats the step's most
// recent logged outcome. Applying the same delta twice yields the same state
// as applying it once.
func (s *State) Apply(d *Delta) {
	if d == nil {
		return
	}
	for _, ev := range d.Evidence {
		key := ev.Key()
		if _, dup := s.seen[key]; dup {
			continue
		}
		s.seen[key] = struct{}{}
		s.findings[ev.Topic] = append(s.findings[ev.Topic], ev)
	}
	if last, ok := s.lastOutcome(d.Outcome.Step); !ok || last != d.Outcome {
		s.stepLog = append(s.stepLog, d.Outcome)
	}
	s.updatedAt = time.Now().UTC()
}

// lastOutcome returns the most recent logged outcome for one step.
func (s *State) lastOutcome(step string) (StepOutcome, bool) {
	for i := len(s.stepLog) - 1; i >= 0; i-- {
		if s.stepLog[i].Step == step {
			return s.stepLog[i], true
		}
	}
	return StepOutcome{}, false
}

// Findings returns a copy of the evidence recorded under one topic, in
// append order.
func (s *State) Findings(topic string) []Evidence {
	evs := s.findings[topic]
	out := make([]Evidence, len(evs))
	copy(out, evs)
	return out
}

// Topics returns all topic keys with at least one evidence record.
func (s *State) Topics() []string {
	out := make([]string, 0, len(s.findings))
	for t := range s.findings {
		out = append(out, t)
	}
	return out
}

// StepLog returns a copy of the ordered step outcomes.
func (s *State) StepLog() []StepOutcome {
	out := make([]StepOutcome, len(s.stepLog))
	copy(out, s.stepLog)
	return out
}

// ViewFor builds a read-only snapshot of the subject plus the given topics.
// The runner captures a view before scheduling a step so the step can read
// concurrently with later deltas being applied.
func (s *State) ViewFor(topics ...string) View {
	v := View{
		RunID:    s.runID,
		Subject:  s.subject,
		findings: make(map[string][]Evidence, len(topics)),
	}
	for _, t := range topics {
		if evs, ok := s.findings[t]; ok {
			cp := make([]Evidence, len(evs))
			copy(cp, evs)
			v.findings[t] = cp
		}
	}
	return v
}

// Snapshot renders the full state as an immutable value for hand-off to the
// report assembler, the archive, and API consumers.
func (s *State) Snapshot() *Snapshot {
	snap := &Snapshot{
		RunID:     s.runID,
		Subject:   s.subject,
		Status:    s.status,
		Findings:  make(map[string][]Evidence, len(s.findings)),
		StepLog:   s.StepLog(),
		CreatedAt: s.createdAt,
		UpdatedAt: s.updatedAt,
	}
	for topic, evs := range s.findings {
		cp := make([]Evidence, len(evs))
		copy(cp, evs)
		snap.Findings[topic] = cp
	}
	return snap
}

// View is a frozen read-only slice of the state: the subject plus the topics
// a step declared it reads.
type View struct {
	RunID    string
	Subject  Subject
	findings map[string][]Evidence
}

// Findings returns the evidence captured for one topic, or nil when the
// topic was not part of the view or holds no evidence.
func (v View) Findings(topic string) []Evidence {
	return v.findings[topic]
}

// HasFindings reports whether the view carries evidence for the topic.
func (v View) HasFindings(topic string) bool {
	return len(v.findings[topic]) > 0
}

// Snapshot is the serializable form of a run's state.
type Snapshot struct {
	RunID     string                `json:"run_id" bson:"run_id"`
	Subject   Subject               `json:"subject" bson:"subject"`
	Status    RunStatus             `json:"status" bson:"status"`
	Findings  map[string][]Evidence `json:"findings" bson:"findings"`
	StepLog   []StepOutcome         `json:"step_log" bson:"step_log"`
	CreatedAt time.Time             `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time             `json:"updated_at" bson:"updated_at"`
}
