package trace

import "sync"

// Sink receives task events from the executor.
//
// Record must not panic and must not block for long; it runs on the
// scheduling path.
type Sink interface {
	Record(event Event)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Record(Event) {}

// SafeRecord records an event, swallowing panics from a buggy sink.
func SafeRecord(s Sink, event Event) {
	if s == nil {
		return
	}
	defer func() {
		_ = recover()
	}()
	s.Record(event)
}

// Recorder is a concurrency-safe in-memory collector. Snapshot preserves
// recording order.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Record(event Event) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

// Snapshot returns a point-in-time copy of all recorded events.
func (r *Recorder) Snapshot() []Event {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Reset drops all recorded events.
func (r *Recorder) Reset() {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

// Trace builds a canonical ExecutionTrace from the recorded events.
func (r *Recorder) Trace(planHash, target string) ExecutionTrace {
	tr := ExecutionTrace{PlanHash: planHash, Target: target, Events: r.Snapshot()}
	tr.Canonicalize()
	return tr
}

// Multi fans events out to several sinks.
type Multi []Sink

func (m Multi) Record(event Event) {
	for _, s := range m {
		SafeRecord(s, event)
	}
}
