package audit

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/golang/glog"
)

// Config sizes the queue. With DropIfFull, Emit never blocks and counts
// the events it could not queue.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// Dispatcher queues events for a single delivery goroutine.
type Dispatcher struct {
	sink       Sink
	dropIfFull bool

	mu     sync.RWMutex // guards closed and sends on queue
	closed bool
	queue  chan Event

	finished chan struct{}
	dropped  atomic.Uint64
}

// NewDispatcher returns nil when cfg is disabled.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = Discard{}
	}
	d := &Dispatcher{
		sink:       sink,
		dropIfFull: cfg.DropIfFull,
		queue:      make(chan Event, max(cfg.BufferSize, 1)),
		finished:   make(chan struct{}),
	}
	go d.deliver()
	return d
}

func (d *Dispatcher) deliver() {
	defer close(d.finished)
	for ev := range d.queue {
		d.record(ev)
	}
}

func (d *Dispatcher) record(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			glog.Errorf("audit: sink panicked on %s event: %v", ev.Kind, r)
		}
	}()
	d.sink.Record(context.Background(), ev)
}

// Emit queues ev. Without DropIfFull it waits for room or for ctx. Events
// emitted after Close are discarded.
func (d *Dispatcher) Emit(ctx context.Context, ev Event) {
	if d == nil {
		return
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	if d.dropIfFull {
		select {
		case d.queue <- ev:
		default:
			d.dropped.Add(1)
		}
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case d.queue <- ev:
	case <-ctx.Done():
		d.dropped.Add(1)
	}
}

// Close stops accepting events and returns once every queued event has
// reached the sink.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	<-d.finished
}

// Dropped counts events that were never queued.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
