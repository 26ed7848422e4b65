// Package store provides the shared SQLite database backing chute's
// durable local state: the offline event queue, the per-node Lamport
// clock, and the local history log.
//
// The database is opened in WAL mode with a busy timeout so that a sync
// running in one CLI process can tolerate another process appending
// events concurrently. Higher-level packages (queue, clock, history)
// own their tables; this package owns opening, pragmas, and schema
// migrations.
package store
