package job

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/FlashBlank7/ModelsEvalSystem/internal/domain/model"
)

// EventKind enumerates the lifecycle events a job can emit.
type EventKind string

const (
	EventStart    EventKind = "start"
	EventProgress EventKind = "progress"
	EventComplete EventKind = "complete"
	EventError    EventKind = "error"
)

// StartEvent is published once when a job transitions to running.
type StartEvent struct {
	JobID      string
	Kind       model.JobKind
	TotalCount int
	At         time.Time
}

// ProgressEvent is published once per finished batch item.
type ProgressEvent struct {
	JobID          string
	CompletedCount int
	TotalCount     int
	CurrentModel   string
	Success        bool
	At             time.Time
}

// CompleteEvent is published when a job reaches Completed.
type CompleteEvent struct {
	JobID  string
	Result *model.JobResult
	At     time.Time
}

// ErrorEvent is published when a job reaches Failed.
type ErrorEvent struct {
	JobID string
	Err   error
	At    time.Time
}

// Event is the envelope delivered on subscription channels. Exactly one payload is set.
type Event struct {
	Kind     EventKind
	JobID    string
	Start    *StartEvent
	Progress *ProgressEvent
	Complete *CompleteEvent
	Error    *ErrorEvent
}

// Terminal reports whether no further events follow for the job.
func (e Event) Terminal() bool {
	return e.Kind == EventComplete || e.Kind == EventError
}

// Handlers is a set of synchronous callbacks. Nil fields are skipped.
// Handlers run on the goroutine that produced the event; a returned error or panic
// is logged and never reaches the producer.
type Handlers struct {
	OnStart    func(ctx context.Context, ev StartEvent) error
	OnProgress func(ctx context.Context, ev ProgressEvent) error
	OnComplete func(ctx context.Context, ev CompleteEvent) error
	OnError    func(ctx context.Context, ev ErrorEvent) error
}

// Publisher is the producer side of the bus.
type Publisher interface {
	PublishStart(ctx context.Context, ev StartEvent)
	PublishProgress(ctx context.Context, ev ProgressEvent)
	PublishComplete(ctx context.Context, ev CompleteEvent)
	PublishError(ctx context.Context, ev ErrorEvent)
}

// ProgressBusOptions configure a ProgressBus.
type ProgressBusOptions struct {
	Logger *slog.Logger
	// SubscriberBuffer is the channel capacity of each Subscribe call (default 32).
	SubscriberBuffer int
}

// ProgressBus fans typed job events out to registered handlers and per-job subscribers.
type ProgressBus struct {
	logger *slog.Logger
	buffer int

	mu       sync.RWMutex
	handlers map[string]Handlers
	subs     map[string]map[chan Event]struct{}
}

// NewProgressBus constructs an empty bus.
func NewProgressBus(opts ProgressBusOptions) *ProgressBus {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	buffer := opts.SubscriberBuffer
	if buffer <= 0 {
		buffer = 32
	}
	return &ProgressBus{
		logger:   logger.With("component", "progress_bus"),
		buffer:   buffer,
		handlers: make(map[string]Handlers),
		subs:     make(map[string]map[chan Event]struct{}),
	}
}

// Register installs handlers under name, replacing any previous set with that name.
func (b *ProgressBus) Register(name string, h Handlers) func() {
	b.mu.Lock()
	b.handlers[name] = h
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers, name)
	}
}

// Subscribe returns a buffered channel of events for one job. Events are dropped when
// the buffer is full. The channel is closed after a terminal event, on CloseJob, or on unsubscribe.
func (b *ProgressBus) Subscribe(jobID string) (func(), <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.buffer)
	if b.subs[jobID] == nil {
		b.subs[jobID] = make(map[chan Event]struct{})
	}
	b.subs[jobID][ch] = struct{}{}

	unsub := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subscribers := b.subs[jobID]
		if _, ok := subscribers[ch]; !ok {
			return
		}
		delete(subscribers, ch)
		drainAndClose(ch)
		if len(subscribers) == 0 {
			delete(b.subs, jobID)
		}
	}
	return unsub, ch
}

// CloseJob closes every subscription for jobID without emitting an event.
func (b *ProgressBus) CloseJob(jobID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[jobID] {
		close(ch)
	}
	delete(b.subs, jobID)
}

// StopAll closes every open subscription.
func (b *ProgressBus) StopAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for jobID, subscribers := range b.subs {
		for ch := range subscribers {
			drainAndClose(ch)
		}
		delete(b.subs, jobID)
	}
}

func (b *ProgressBus) PublishStart(ctx context.Context, ev StartEvent) {
	for _, n := range b.snapshot() {
		if n.h.OnStart != nil {
			b.invoke(ctx, EventStart, ev.JobID, n.name, func() error { return n.h.OnStart(ctx, ev) })
		}
	}
	b.fanout(Event{Kind: EventStart, JobID: ev.JobID, Start: &ev})
}

func (b *ProgressBus) PublishProgress(ctx context.Context, ev ProgressEvent) {
	for _, n := range b.snapshot() {
		if n.h.OnProgress != nil {
			b.invoke(ctx, EventProgress, ev.JobID, n.name, func() error { return n.h.OnProgress(ctx, ev) })
		}
	}
	b.fanout(Event{Kind: EventProgress, JobID: ev.JobID, Progress: &ev})
}

func (b *ProgressBus) PublishComplete(ctx context.Context, ev CompleteEvent) {
	for _, n := range b.snapshot() {
		if n.h.OnComplete != nil {
			b.invoke(ctx, EventComplete, ev.JobID, n.name, func() error { return n.h.OnComplete(ctx, ev) })
		}
	}
	b.fanout(Event{Kind: EventComplete, JobID: ev.JobID, Complete: &ev})
}

func (b *ProgressBus) PublishError(ctx context.Context, ev ErrorEvent) {
	for _, n := range b.snapshot() {
		if n.h.OnError != nil {
			b.invoke(ctx, EventError, ev.JobID, n.name, func() error { return n.h.OnError(ctx, ev) })
		}
	}
	b.fanout(Event{Kind: EventError, JobID: ev.JobID, Error: &ev})
}

type namedHandlers struct {
	name string
	h    Handlers
}

// snapshot copies the handler set so callbacks run without holding the lock.
// Handlers run in name order.
func (b *ProgressBus) snapshot() []namedHandlers {
	b.mu.RLock()
	out := make([]namedHandlers, 0, len(b.handlers))
	for name, h := range b.handlers {
		out = append(out, namedHandlers{name: name, h: h})
	}
	b.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

func (b *ProgressBus) invoke(ctx context.Context, kind EventKind, jobID, name string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.ErrorContext(ctx, "progress handler panicked",
				"event", kind, "job_id", jobID, "subscriber", name, "panic", fmt.Sprint(r))
		}
	}()
	if err := fn(); err != nil {
		b.logger.ErrorContext(ctx, "progress handler failed",
			"event", kind, "job_id", jobID, "subscriber", name, "error", err)
	}
}

func (b *ProgressBus) fanout(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subscribers := b.subs[ev.JobID]
	for ch := range subscribers {
		select {
		case ch <- ev:
		default:
		}
		if ev.Terminal() {
			close(ch)
		}
	}
	if ev.Terminal() {
		delete(b.subs, ev.JobID)
	}
}

// drainAndClose removes any buffered events before closing the channel so
// receivers observe a closed channel immediately.
func drainAndClose(ch chan Event) {
	for {
		select {
		case <-ch:
		default:
			close(ch)
			return
		}
	}
}

var _ Publisher = (*ProgressBus)(nil)
