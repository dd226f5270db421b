package workflow

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/mirrorlake/augur/internal/metrics"
	"github.com/mirrorlake/augur/research"
)

// Config tunes run-level scheduling behavior.
type Config struct {
	// RunDeadline bounds one run end to end. Past the deadline no new step
	// is scheduled and unstarted steps are skipped; the run still finalizes
	// from the steps that did complete. Zero means no deadline.
	RunDeadline time.Duration
	// WarnOnBestEffort controls whether a non-succeeded best-effort step
	// surfaces as CompletedWithWarnings. Predicate skips never count.
	WarnOnBestEffort bool
}

// DefaultConfig 返回默认的运行配置
func DefaultConfig() Config {
	return Config{
		RunDeadline:      5 * time.Minute,
		WarnOnBestEffort: true,
	}
}

// scheduling state of one step within a run
type stepPhase int

const (
	phaseNotStarted stepPhase = iota
	phaseRunning
	phaseDone
)

// Runner drives one run through the graph: it schedules eligible steps
// concurrently, applies their deltas as the single writer, publishes progress
// after each application, and finalizes the run status. A Runner holds no
// per-run state and is safe for concurrent runs.
type Runner struct {
	graph     *Graph
	executor  Executor
	publisher ProgressPublisher
	collector *metrics.Collector
	logger    *zap.Logger
	cfg       Config
}

// NewRunner creates a runner. publisher and collector may be nil.
func NewRunner(graph *Graph, executor Executor, publisher ProgressPublisher, collector *metrics.Collector, cfg Config, logger *zap.Logger) *Runner {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		graph:     graph,
		executor:  executor,
		publisher: publisher,
		collector: collector,
		logger:    logger.With(zap.String("component", "workflow_runner")),
		cfg:       cfg,
	}
}

// Run executes the pipeline for one run. The state must be in Pending. The
// run always reaches a terminal status; Run never returns an error for step
// failures, only for a state that cannot start.
func (r *Runner) Run(ctx context.Context, state *research.State) error {
	if err := state.SetStatus(research.RunRunning); err != nil {
		return err
	}

	tracer := otel.Tracer("augur/workflow")
	ctx, span := tracer.Start(ctx, "workflow.run", trace.WithAttributes(
		attribute.String("run.id", state.RunID()),
		attribute.String("subject.company", state.Subject().Company),
	))
	defer span.End()

	logger := r.logger.With(zap.String("run_id", state.RunID()))
	logger.Info("run started",
		zap.String("company", state.Subject().Company),
		zap.Int("steps", r.graph.Len()),
	)
	start := time.Now()

	phases := make(map[string]stepPhase, r.graph.Len())
	outcomes := make(map[string]research.StepStatus, r.graph.Len())
	// predicate-driven skips are routine branching, not imperfections
	predicateSkips := make(map[string]bool)

	results := make(chan *research.Delta)
	inFlight := 0
	runFailed := false
	deadlineHit := false
	seq := 0

	var deadlineCh <-chan time.Time
	if r.cfg.RunDeadline > 0 {
		timer := time.NewTimer(r.cfg.RunDeadline)
		defer timer.Stop()
		deadlineCh = timer.C
	}

	skip := func(def StepDefinition, reason string, byPredicate bool) {
		now := time.Now().UTC()
		delta := &research.Delta{
			Step: def.Name,
			Outcome: research.StepOutcome{
				Step:       def.Name,
				Status:     research.StepSkipped,
				Error:      reason,
				StartedAt:  now,
				FinishedAt: now,
			},
		}
		state.Apply(delta)
		phases[def.Name] = phaseDone
		outcomes[def.Name] = research.StepSkipped
		predicateSkips[def.Name] = byPredicate
		seq++
		r.publisher.Publish(Event{
			RunID:     state.RunID(),
			Step:      def.Name,
			Outcome:   research.StepSkipped,
			RunStatus: state.Status(),
			Seq:       seq,
			Timestamp: now,
		})
		logger.Info("step skipped", zap.String("step", def.Name), zap.String("reason", reason))
	}

	depsTerminal := func(def StepDefinition) bool {
		for _, dep := range def.DependsOn {
			if phases[dep] != phaseDone {
				return false
			}
		}
		return true
	}

	for {
		if runFailed || deadlineHit {
			// No new work is started. Everything not yet running is skipped.
			reason := "run failed before step became eligible"
			if deadlineHit && !runFailed {
				reason = "run deadline elapsed"
			}
			for _, def := range r.graph.Steps() {
				if phases[def.Name] == phaseNotStarted {
					skip(def, reason, false)
				}
			}
		} else {
			// Steps are visited in topological order so a skip in this pass
			// can make its dependents eligible in the same pass.
			for _, def := range r.graph.Steps() {
				if phases[def.Name] != phaseNotStarted || !depsTerminal(def) {
					continue
				}
				// The view is frozen here; the step reads it concurrently
				// with later deltas being applied by this loop.
				view := state.ViewFor(def.Reads...)
				if def.Predicate != nil && !def.Predicate(view) {
					skip(def, "predicate evaluated false", true)
					continue
				}
				phases[def.Name] = phaseRunning
				inFlight++
				logger.Info("step started", zap.String("step", def.Name))
				go func(def StepDefinition, view research.View) {
					stepCtx, stepSpan := tracer.Start(ctx, "workflow.step", trace.WithAttributes(
						attribute.String("step.name", def.Name),
					))
					defer stepSpan.End()
					results <- r.executor.Execute(stepCtx, def, view)
				}(def, view)
			}
		}

		if inFlight == 0 {
			break
		}

		select {
		case delta := <-results:
			inFlight--
			state.Apply(delta)
			phases[delta.Step] = phaseDone
			outcomes[delta.Step] = delta.Outcome.Status
			seq++

			if r.collector != nil {
				r.collector.RecordStep(delta.Step, string(delta.Outcome.Status), delta.Outcome.FinishedAt.Sub(delta.Outcome.StartedAt))
			}
			r.publisher.Publish(Event{
				RunID:     state.RunID(),
				Step:      delta.Step,
				Outcome:   delta.Outcome.Status,
				RunStatus: state.Status(),
				Seq:       seq,
				Timestamp: time.Now().UTC(),
			})
			logger.Info("step finished",
				zap.String("step", delta.Step),
				zap.String("status", string(delta.Outcome.Status)),
				zap.Int("calls", delta.Outcome.Calls),
				zap.Int("failures", delta.Outcome.Failures),
			)

			if def, ok := r.graph.Step(delta.Step); ok && def.Required && delta.Outcome.Status == research.StepFailed {
				// In-flight steps run to completion; nothing new starts.
				runFailed = true
				logger.Warn("required step failed, failing run", zap.String("step", delta.Step))
			}
		case <-deadlineCh:
			deadlineHit = true
			deadlineCh = nil
			logger.Warn("run deadline elapsed, skipping unstarted steps")
		}
	}

	final := r.finalStatus(runFailed, outcomes, predicateSkips)
	if err := state.SetStatus(final); err != nil {
		// Unreachable after a normal Running transition. Recorded, not fatal.
		logger.Error("final status transition rejected", zap.Error(err))
	}
	span.SetAttributes(attribute.String("run.status", string(final)))

	seq++
	r.publisher.Publish(Event{
		RunID:     state.RunID(),
		Step:      EventStepRunCompleted,
		RunStatus: state.Status(),
		Seq:       seq,
		Timestamp: time.Now().UTC(),
	})
	if r.collector != nil {
		r.collector.RecordRun(string(final), time.Since(start))
	}
	logger.Info("run finished",
		zap.String("status", string(final)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// finalStatus derives the terminal run status from the step outcomes.
// Completed requires every required step Succeeded and no imperfection.
// Required Partial or deadline-Skipped, and (when configured) any
// non-succeeded best-effort step, yield CompletedWithWarnings.
func (r *Runner) finalStatus(runFailed bool, outcomes map[string]research.StepStatus, predicateSkips map[string]bool) research.RunStatus {
	if runFailed {
		return research.RunFailed
	}
	warnings := false
	for _, def := range r.graph.Steps() {
		status := outcomes[def.Name]
		if predicateSkips[def.Name] {
			continue
		}
		if def.Required {
			if status != research.StepSucceeded {
				warnings = true
			}
		} else if r.cfg.WarnOnBestEffort && status != research.StepSucceeded {
			warnings = true
		}
	}
	if warnings {
		return research.RunCompletedWithWarnings
	}
	return research.RunCompleted
}
