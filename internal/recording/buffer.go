package recording

// Buffer accumulates samples for one sensor up to a fixed capacity,
// decoupling the sampling cadence from disk writes.
//
// Not safe for concurrent use: each buffer is owned by the engine loop and
// never touched from another goroutine.
type Buffer struct {
	samples  []Sample
	capacity int
}

// NewBuffer creates a buffer that triggers a flush at the given capacity.
func NewBuffer(capacity int) *Buffer {
	return &Buffer{
		samples:  make([]Sample, 0, capacity),
		capacity: capacity,
	}
}

// Append adds one sample and reports whether the buffer has reached
// capacity and must be flushed before the next append.
func (b *Buffer) Append(s Sample) bool {
	b.samples = append(b.samples, s)
	return len(b.samples) >= b.capacity
}

// Len returns the number of buffered samples.
func (b *Buffer) Len() int {
	return len(b.samples)
}

// Take returns the buffered batch and resets the buffer. The returned
// slice is handed off to the writer and never reused.
func (b *Buffer) Take() []Sample {
	if len(b.samples) == 0 {
		return nil
	}
	batch := b.samples
	b.samples = make([]Sample, 0, b.capacity)
	return batch
}

// recentRing keeps the last N samples of a sensor for live inspection,
// independent of the flush buffers. Unlike Buffer it is locked by the
// engine because API handlers read it concurrently.
type recentRing struct {
	buf  []Sample
	next int
	full bool
}

func newRecentRing(n int) *recentRing {
	return &recentRing{buf: make([]Sample, n)}
}

// append adds one sample, overwriting the oldest once full.
func (r *recentRing) append(s Sample) {
	r.buf[r.next] = s
	r.next++
	if r.next == len(r.buf) {
		r.next = 0
		r.full = true
	}
}

// tail returns up to n samples, oldest first. n <= 0 returns the whole
// window.
func (r *recentRing) tail(n int) []Sample {
	var ordered []Sample
	if r.full {
		ordered = make([]Sample, 0, len(r.buf))
		ordered = append(ordered, r.buf[r.next:]...)
		ordered = append(ordered, r.buf[:r.next]...)
	} else {
		ordered = append(ordered, r.buf[:r.next]...)
	}

	if n > 0 && n < len(ordered) {
		ordered = ordered[len(ordered)-n:]
	}
	return ordered
}

// eventRing keeps the tail of the session event log for operator UIs,
// spanning session boundaries. Locked by the engine, same as recentRing.
type eventRing struct {
	buf  []Event
	next int
	full bool
}

func newEventRing(n int) *eventRing {
	return &eventRing{buf: make([]Event, n)}
}

// append adds one event, overwriting the oldest once full.
func (r *eventRing) append(ev Event) {
	r.buf[r.next] = ev
	r.next++
	if r.next == len(r.buf) {
		r.next = 0
		r.full = true
	}
}

// tail returns up to n events, oldest first. n <= 0 returns the whole
// window.
func (r *eventRing) tail(n int) []Event {
	var ordered []Event
	if r.full {
		ordered = make([]Event, 0, len(r.buf))
		ordered = append(ordered, r.buf[r.next:]...)
		ordered = append(ordered, r.buf[:r.next]...)
	} else {
		ordered = append(ordered, r.buf[:r.next]...)
	}

	if n > 0 && n < len(ordered) {
		ordered = ordered[len(ordered)-n:]
	}
	return ordered
}
