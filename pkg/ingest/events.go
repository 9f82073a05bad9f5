package ingest

import (
	"sync"

	"github.com/luxfi/migrator/pkg/stage"
)

// EventKind distinguishes the two batch events.
type EventKind uint8

const (
	BatchReceived EventKind = iota
	BatchProcessed
)

func (k EventKind) String() string {
	if k == BatchReceived {
		return "batch_received"
	}
	return "batch_processed"
}

// Event reports the progress of a batch. CountGood and CountBad are set on
// BatchProcessed only.
type Event struct {
	Kind      EventKind
	Domain    stage.Domain
	Count     int
	CountGood int
	CountBad  int
}

// EventSink receives batch events.
type EventSink interface {
	Emit(Event)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Emit(Event) {}

// Recorder keeps every event in memory and totals the bad items per domain.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	bad    map[stage.Domain]int
}

// NewRecorder creates an empty recorder
func NewRecorder() *Recorder {
	return &Recorder{bad: map[stage.Domain]int{}}
}

func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	if e.Kind == BatchProcessed {
		r.bad[e.Domain] += e.CountBad
	}
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Bad returns the number of bad items recorded for every domain.
func (r *Recorder) Bad() map[stage.Domain]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[stage.Domain]int, len(r.bad))
	for d, n := range r.bad {
		out[d] = n
	}
	return out
}

// TotalBad returns the number of bad items over all domains.
func (r *Recorder) TotalBad() int {
	total := 0
	for _, n := range r.Bad() {
		total += n
	}
	return total
}

// Reset forgets the recorded bad counts, after an operator repaired the
// affected items.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bad = map[stage.Domain]int{}
}

type tee []EventSink

func (t tee) Emit(e Event) {
	for _, s := range t {
		s.Emit(e)
	}
}

// Tee returns a sink forwarding every event to all of sinks. Nil sinks are skipped.
func Tee(sinks ...EventSink) EventSink {
	var out tee
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}
