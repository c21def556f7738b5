package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/golang/glog"
)

// Event is one audit record.
type Event struct {
	At     time.Time         `json:"at"`
	Kind   string            `json:"kind"`
	UserID string            `json:"user_id,omitempty"`
	Email  string            `json:"email,omitempty"`
	OK     bool              `json:"ok"`
	Error  string            `json:"error,omitempty"`
	Detail map[string]string `json:"detail,omitempty"`
}

// Sink consumes events on the dispatcher goroutine.
type Sink interface {
	Record(ctx context.Context, ev Event)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Record(context.Context, Event) {}

// ChannelSink hands events to a reader of Events. Record blocks while the
// channel is full unless ctx ends first.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	return &ChannelSink{events: make(chan Event, max(buffer, 1))}
}

func (s *ChannelSink) Record(ctx context.Context, ev Event) {
	select {
	case s.events <- ev:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event { return s.events }

// JSONLinesSink writes each event as one JSON line.
type JSONLinesSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewJSONLinesSink(w io.Writer) *JSONLinesSink {
	return &JSONLinesSink{enc: json.NewEncoder(w)}
}

func (s *JSONLinesSink) Record(_ context.Context, ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(ev); err != nil {
		glog.Warningf("audit: write %s event: %v", ev.Kind, err)
	}
}
