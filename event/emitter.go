package event

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"persona/notify"
	"persona/record"
)

var emitFailures = promauto.NewCounter(prometheus.CounterOpts{
	Name: "persona_event_emit_failures_total",
	Help: "Events that could not be appended or announced",
})

const (
	defaultSource    = "persona"
	defaultRetention = 24 * time.Hour
	deliverTimeout   = 5 * time.Second
)

// Emitter turns record mutations into events. Delivery is fire-and-forget:
// Emit returns immediately and failures are logged, never propagated, so an
// event problem can never fail or roll back the record mutation it describes.
type Emitter struct {
	events    Store
	changes   notify.Publisher
	source    string
	retention time.Duration
	clock     Clock
	log       *slog.Logger
	inflight  sync.WaitGroup
}

// EmitterOption configures an Emitter.
type EmitterOption func(*Emitter)

// WithSource overrides the source identifier stamped on emitted events.
func WithSource(source string) EmitterOption {
	return func(e *Emitter) {
		if source != "" {
			e.source = source
		}
	}
}

// WithRetention overrides how long emitted events stay readable.
func WithRetention(retention time.Duration) EmitterOption {
	return func(e *Emitter) {
		if retention > 0 {
			e.retention = retention
		}
	}
}

// WithEmitterClock sets the clock function for testability.
func WithEmitterClock(clock Clock) EmitterOption {
	return func(e *Emitter) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithEmitterLogger sets the emitter's logger.
func WithEmitterLogger(log *slog.Logger) EmitterOption {
	return func(e *Emitter) {
		if log != nil {
			e.log = log
		}
	}
}

// WithChangePublisher adds a best-effort change notifier that is told about
// every emitted event.
func WithChangePublisher(changes notify.Publisher) EmitterOption {
	return func(e *Emitter) {
		e.changes = changes
	}
}

// NewEmitter constructs an Emitter appending to events.
func NewEmitter(events Store, opts ...EmitterOption) *Emitter {
	e := &Emitter{
		events:    events,
		source:    defaultSource,
		retention: defaultRetention,
		clock:     time.Now,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Emit builds the "record mutated" event for rec and hands it off for
// asynchronous delivery.
func (e *Emitter) Emit(ctx context.Context, rec *record.Record, level Level, status, message string) {
	if rec == nil {
		emitFailures.Inc()
		e.log.ErrorContext(ctx, "event emit dropped", "reason", "nil record", "status", status)
		return
	}
	now := e.clock().UTC().Truncate(time.Millisecond)
	ev := &Event{
		EventID: uuid.NewString(),
		Ref: ResourceRef{
			ResourceType: ResourceTypeUser,
			ExternalID:   rec.ExternalID,
		},
		Timestamp: now,
		ExpiresAt: now.Add(e.retention),
		Source:    e.source,
		Level:     level,
		Data: map[string]any{
			"v":       1,
			"status":  status,
			"message": message,
		},
	}

	e.inflight.Add(1)
	go e.deliver(context.WithoutCancel(ctx), ev, status, message)
}

func (e *Emitter) deliver(ctx context.Context, ev *Event, status, message string) {
	defer e.inflight.Done()
	ctx, cancel := context.WithTimeout(ctx, deliverTimeout)
	defer cancel()

	if err := e.events.Append(ctx, ev); err != nil {
		emitFailures.Inc()
		e.log.ErrorContext(ctx, "event append failed",
			"event_id", ev.EventID, "external_id", ev.Ref.ExternalID, "err", err)
	}
	if e.changes == nil {
		return
	}
	ch := notify.Change{
		ExternalID:   ev.Ref.ExternalID,
		ResourceType: string(ev.Ref.ResourceType),
		Status:       status,
		Message:      message,
		Timestamp:    ev.Timestamp,
	}
	if err := e.changes.PublishChange(ctx, ch); err != nil {
		emitFailures.Inc()
		e.log.ErrorContext(ctx, "change notice failed",
			"event_id", ev.EventID, "external_id", ev.Ref.ExternalID, "err", err)
	}
}

// Flush blocks until every delivery handed off so far has finished.
func (e *Emitter) Flush() {
	e.inflight.Wait()
}
