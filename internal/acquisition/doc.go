// Package acquisition drives the sampling loop: a single coordination
// ticker that polls every connected board once per interval, one
// in-flight read per board, and hands each frame of readings to the
// recording layer.
//
// The scheduler owns failure accounting. A board whose reads fail too
// many times in a row is marked errored on the hardware manager and
// reported to the sink exactly once; it is then skipped until an
// explicit reconnect flips it back to connected. Failure counts reset
// on any successful read and whenever a board is skipped as
// not-connected, so a reconnected board starts with a clean slate.
//
// Start and Stop mirror a session's lifetime: the recording engine
// starts the scheduler when a session opens and stops it when the
// session closes or persistence faults. Stop cancels in-flight reads
// and returns only after they have settled, so no reading is delivered
// after Stop returns. A stopped scheduler can be started again.
package acquisition
