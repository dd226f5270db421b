package workflow

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mirrorlake/augur/internal/metrics"
	"github.com/mirrorlake/augur/research"
)

// EventStepRunCompleted is the step name carried by the run-level terminal
// event, distinguishing it from per-step events.
const EventStepRunCompleted = "run"

// Event is one progress notification. Delivery is at-least-once; consumers
// that need exactness deduplicate on (RunID, Step, Seq).
type Event struct {
	RunID     string              `json:"run_id"`
	Step      string              `json:"step"`
	Outcome   research.StepStatus `json:"outcome,omitempty"`
	RunStatus research.RunStatus  `json:"run_status"`
	// Seq is assigned in step-completion order within the run.
	Seq       int       `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
}

// ProgressPublisher receives progress events from the runner. Publish is
// fire-and-forget: it must not block the scheduling loop beyond a bounded
// enqueue and must not surface its own failures into the run.
type ProgressPublisher interface {
	Publish(event Event)
}

// NopPublisher discards all events.
type NopPublisher struct{}

func (NopPublisher) Publish(Event) {}

// AsyncPublisher decouples a downstream publisher from the scheduling loop
// with a bounded queue. A full queue drops the event rather than blocking;
// at-least-once delivery still holds for events that were enqueued.
type AsyncPublisher struct {
	downstream ProgressPublisher
	queue      chan Event
	collector  *metrics.Collector
	logger     *zap.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// NewAsyncPublisher wraps downstream with a queue of the given capacity and
// starts the delivery goroutine. collector may be nil.
func NewAsyncPublisher(downstream ProgressPublisher, capacity int, collector *metrics.Collector, logger *zap.Logger) *AsyncPublisher {
	if capacity < 1 {
		capacity = 64
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &AsyncPublisher{
		downstream: downstream,
		queue:      make(chan Event, capacity),
		collector:  collector,
		logger:     logger.With(zap.String("component", "progress_publisher")),
		done:       make(chan struct{}),
	}
	go p.loop()
	return p
}

// Publish enqueues the event without blocking. Events hitting a full queue
// are dropped and counted.
func (p *AsyncPublisher) Publish(event Event) {
	select {
	case p.queue <- event:
		if p.collector != nil {
			p.collector.RecordEventPublished()
		}
	default:
		if p.collector != nil {
			p.collector.RecordEventDropped()
		}
		p.logger.Warn("progress event dropped, queue full",
			zap.String("run_id", event.RunID),
			zap.String("step", event.Step),
		)
	}
}

// Close stops accepting events and waits for the queue to drain.
func (p *AsyncPublisher) Close() {
	p.closeOnce.Do(func() {
		close(p.queue)
		<-p.done
	})
}

func (p *AsyncPublisher) loop() {
	defer close(p.done)
	for event := range p.queue {
		p.downstream.Publish(event)
	}
}
