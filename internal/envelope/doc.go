// Package envelope defines the immutable event envelope, the per-type
// payload validation rules, the 7-lane to 4-lane status collapse, and
// the EventFactory that stamps envelopes with identity and causal order.
//
// Events are identified by ULIDs (time-sortable, globally unique) and
// causally ordered per node by a persisted Lamport clock. Wall-clock
// timestamps are carried for observability and FIFO drain ordering but
// are never used for causal ordering.
package envelope
