package envelope

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Clock is the causal-ordering capability the factory stamps envelopes
// with. Satisfied by *clock.Authority.
type Clock interface {
	Tick(ctx context.Context) (uint64, error)
	NodeID() string
}

// Recorder is the local history capability. Every emit is appended here
// regardless of transmissibility.
type Recorder interface {
	Append(ctx context.Context, ev *Event, localOnly bool) error
}

// Enqueuer is the offline-queue capability. Only events carrying a
// project UUID are forwarded here.
type Enqueuer interface {
	Enqueue(ctx context.Context, ev *Event) error
}

// Factory builds, validates, and records event envelopes.
//
// Dependencies are injected owned stores, not package-level singletons,
// so tests can substitute in-memory implementations.
type Factory struct {
	clock   Clock
	history Recorder
	queue   Enqueuer
	routing Routing
	now     func() time.Time
	log     *slog.Logger
}

// FactoryOption customizes a Factory.
type FactoryOption func(*Factory)

// WithNow overrides the wall-clock source (for tests).
func WithNow(now func() time.Time) FactoryOption {
	return func(f *Factory) { f.now = now }
}

// WithLogger overrides the factory's logger.
func WithLogger(log *slog.Logger) FactoryOption {
	return func(f *Factory) { f.log = log }
}

// NewFactory creates a factory stamping envelopes with the given routing
// identity. A routing with no ProjectUUID produces local-only events.
func NewFactory(clk Clock, history Recorder, queue Enqueuer, routing Routing, opts ...FactoryOption) *Factory {
	f := &Factory{
		clock:   clk,
		history: history,
		queue:   queue,
		routing: routing,
		now:     time.Now,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// EmitOption customizes a single emit.
type EmitOption func(*emitConfig)

type emitConfig struct {
	causationID string
}

// WithCausation links the new event to the event that caused it.
func WithCausation(eventID string) EmitOption {
	return func(c *emitConfig) { c.causationID = eventID }
}

// Emit validates and records one event.
//
// The envelope is stamped with a fresh ULID, the node identity, the next
// Lamport clock value, and the wall-clock timestamp. The event is always
// appended to local history; it is forwarded to the offline queue only
// when the routing identity carries a project UUID (hard branch: events
// without one are durably recorded but never transmitted).
//
// A clock tick failure fails the emit: the event must not carry a clock
// value that cannot be trusted to never repeat.
func (f *Factory) Emit(ctx context.Context, t Type, aggregateID string, payload map[string]any, opts ...EmitOption) (*Event, error) {
	var cfg emitConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	aggType, ok := AggregateTypeFor(t)
	if !ok {
		return nil, newValidationError("", "unknown event type %q", t)
	}
	if aggregateID == "" {
		return nil, newValidationError("", "aggregate id must not be empty")
	}
	if cfg.causationID != "" && !ValidID(cfg.causationID) {
		return nil, newValidationError("", "causation id %q is not a ULID", cfg.causationID)
	}
	if payload == nil {
		payload = map[string]any{}
	}
	if err := ValidatePayload(t, payload); err != nil {
		return nil, err
	}

	lamport, err := f.clock.Tick(ctx)
	if err != nil {
		return nil, fmt.Errorf("emit %s: %w", t, err)
	}

	ev := &Event{
		EventID:       NewID(),
		EventType:     t,
		AggregateID:   aggregateID,
		AggregateType: aggType,
		Payload:       payload,
		Timestamp:     FormatTimestamp(f.now()),
		NodeID:        f.clock.NodeID(),
		LamportClock:  lamport,
		CausationID:   cfg.causationID,
		TeamSlug:      f.routing.TeamSlug,
		ProjectUUID:   f.routing.ProjectUUID,
		ProjectSlug:   f.routing.ProjectSlug,
		GitBranch:     f.routing.GitBranch,
		HeadCommitSHA: f.routing.HeadCommitSHA,
		RepoSlug:      f.routing.RepoSlug,
	}

	localOnly := ev.LocalOnly()
	if err := f.history.Append(ctx, ev, localOnly); err != nil {
		return nil, fmt.Errorf("emit %s: record history: %w", t, err)
	}

	if localOnly {
		f.log.Debug("event recorded local-only (no project uuid)",
			"event_id", ev.EventID, "event_type", ev.EventType)
		return ev, nil
	}

	if err := f.queue.Enqueue(ctx, ev); err != nil {
		return nil, fmt.Errorf("emit %s: enqueue: %w", t, err)
	}

	f.log.Debug("event emitted",
		"event_id", ev.EventID,
		"event_type", ev.EventType,
		"aggregate_id", ev.AggregateID,
		"lamport_clock", ev.LamportClock)

	return ev, nil
}

// EmitStatusChange emits a WPStatusChanged event for a 7-lane
// transition, collapsing both ends to the sync vocabulary first.
//
// Transitions that are no-ops after collapse (e.g. planned -> claimed)
// are suppressed entirely: no event is created and (nil, nil) is
// returned. extra fields are merged into the payload without overriding
// the computed statuses.
func (f *Factory) EmitStatusChange(ctx context.Context, workPackageID string, prev, next Lane, extra map[string]any, opts ...EmitOption) (*Event, error) {
	from, to, suppressed, err := CollapseTransition(prev, next)
	if err != nil {
		return nil, err
	}
	if suppressed {
		f.log.Debug("status change suppressed (no-op after lane collapse)",
			"work_package_id", workPackageID, "prev", prev, "next", next)
		return nil, nil
	}

	payload := map[string]any{
		"work_package_id": workPackageID,
		"previous_status": string(from),
		"new_status":      string(to),
	}
	for k, v := range extra {
		if _, taken := payload[k]; !taken {
			payload[k] = v
		}
	}

	return f.Emit(ctx, TypeWPStatusChanged, workPackageID, payload, opts...)
}
