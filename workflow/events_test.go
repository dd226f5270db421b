package workflow

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// blockingPublisher holds deliveries until released.
type blockingPublisher struct {
	release chan struct{}
	mu      sync.Mutex
	events  []Event
}

func (p *blockingPublisher) Publish(event Event) {
	<-p.release
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *blockingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func TestAsyncPublisher_DeliversInOrder(t *testing.T) {
	downstream := &capturingPublisher{}
	pub := NewAsyncPublisher(downstream, 16, nil, zap.NewNop())

	for i := 1; i <= 5; i++ {
		pub.Publish(Event{RunID: "run-1", Step: "grounding", Seq: i, Timestamp: time.Now()})
	}
	pub.Close()

	events := downstream.all()
	require.Len(t, events, 5)
	for i, ev := range events {
		assert.Equal(t, i+1, ev.Seq)
	}
}

func TestAsyncPublisher_DropsWhenQueueFull(t *testing.T) {
	downstream := &blockingPublisher{release: make(chan struct{})}
	pub := NewAsyncPublisher(downstream, 2, nil, zap.NewNop())

	// queue capacity 2 plus one event stuck in the delivery goroutine
	for i := 1; i <= 10; i++ {
		pub.Publish(Event{RunID: "run-1", Seq: i})
	}

	close(downstream.release)
	pub.Close()

	// dropped events never reach downstream, enqueued ones all do
	assert.LessOrEqual(t, downstream.count(), 4)
	assert.GreaterOrEqual(t, downstream.count(), 2)
}

func TestAsyncPublisher_PublishNeverBlocks(t *testing.T) {
	downstream := &blockingPublisher{release: make(chan struct{})}
	pub := NewAsyncPublisher(downstream, 1, nil, zap.NewNop())
	defer func() {
		close(downstream.release)
		pub.Close()
	}()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			pub.Publish(Event{RunID: "run-1", Seq: i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full queue")
	}
}

func TestAsyncPublisher_CloseIsIdempotent(t *testing.T) {
	pub := NewAsyncPublisher(&capturingPublisher{}, 4, nil, zap.NewNop())
	pub.Close()
	assert.NotPanics(t, func() { pub.Close() })
}
