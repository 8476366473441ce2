// Package recording is the acquisition-and-durability core of CLiQR: it
// owns the session lifecycle, the per-sensor state machines, the bounded
// sample buffers, and the writer that persists everything to the session
// file.
//
// The engine runs as a single actor goroutine. Commands (session start and
// stop, sensor start and stop, metadata updates) arrive on an internal
// queue and are answered synchronously; board reads arrive on an ingest
// channel from the acquisition layer; connectivity changes and write
// faults arrive as events. Because one goroutine owns all mutable state,
// no buffer is ever touched from two contexts and every transition is
// totally ordered.
//
// Persistence goes through a Writer goroutine that owns the session store
// exclusively. Its queue is strictly FIFO, which makes the durability
// ordering structural: a sensor's flushed samples land before the cycle
// metadata written at its stop edge, and the session comment lands last.
// A failed write parks the writer with the failed operation still at the
// head of its queue; the engine halts acquisition and keeps buffered data
// in memory until RetryWrites succeeds or the session stops.
//
// State machines:
//
//	session:  idle <-> active
//	sensor:   idle -> recording -> idle   (repeatable; one cycle each)
//	          idle|recording -> error     (board failure threshold)
//	          error -> idle               (explicit board reconnect only)
//
// Observers receive immutable Snapshots; elapsed recording time is always
// computed from the cycle start instant, never ticked.
package recording
