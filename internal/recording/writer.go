package recording

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/cliqr-core/internal/infrastructure/logging"
)

// jobTimeout bounds a single store operation. A healthy SQLite write is
// milliseconds; anything near this limit means the disk is gone.
const jobTimeout = 30 * time.Second

// FaultHandler is called once each time the writer latches a fault.
// It runs on the writer goroutine and must not block.
type FaultHandler func(err error)

// job is one queued store operation.
type job struct {
	name string
	fn   func(ctx context.Context) error
}

// Writer serialises store operations into a single background goroutine.
//
// Operations run strictly in enqueue order. When one fails the writer
// parks: the failed operation stays at the head of the queue, the fault is
// latched, and nothing further runs until Retry clears the fault. Because
// later operations never overtake a failed one, the on-disk file is always
// a prefix of what was enqueued.
type Writer struct {
	store   Store
	onFault FaultHandler

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []job
	fault  error
	busy   bool
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	logger   *logging.Logger
	loggerMu sync.RWMutex
}

// NewWriter starts a writer over the given store. onFault may be nil.
func NewWriter(store Store, onFault FaultHandler) *Writer {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Writer{
		store:   store,
		onFault: onFault,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	w.cond = sync.NewCond(&w.mu)

	go w.run()
	return w
}

// SetLogger sets the logger for the writer.
func (w *Writer) SetLogger(logger *logging.Logger) {
	w.loggerMu.Lock()
	w.logger = logger
	w.loggerMu.Unlock()
}

// EnqueueSamples queues one flushed sample batch for a sensor.
func (w *Writer) EnqueueSamples(boardID string, sensor int, batch []Sample) error {
	return w.enqueue("append samples", func(ctx context.Context) error {
		return w.store.AppendSamples(ctx, boardID, sensor, batch)
	})
}

// EnqueueBeginCycle queues the start edge of a recording cycle.
func (w *Writer) EnqueueBeginCycle(sensor, cycle int, subject string, startTime time.Time) error {
	return w.enqueue("begin cycle", func(ctx context.Context) error {
		return w.store.BeginCycle(ctx, sensor, cycle, subject, startTime)
	})
}

// EnqueueFinishCycle queues the stop edge of a recording cycle.
func (w *Writer) EnqueueFinishCycle(sensor, cycle int, upd CycleUpdate) error {
	return w.enqueue("finish cycle", func(ctx context.Context) error {
		return w.store.FinishCycle(ctx, sensor, cycle, upd)
	})
}

// EnqueueEvent queues one event row.
func (w *Writer) EnqueueEvent(ev Event) error {
	return w.enqueue("append event", func(ctx context.Context) error {
		return w.store.AppendEvent(ctx, ev)
	})
}

// EnqueueFinish queues the session stop stamp.
func (w *Writer) EnqueueFinish(stoppedAt time.Time, comment string) error {
	return w.enqueue("finish session", func(ctx context.Context) error {
		return w.store.Finish(ctx, stoppedAt, comment)
	})
}

// Fault returns the latched fault, or nil when the writer is healthy.
func (w *Writer) Fault() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fault
}

// Pending returns the number of queued operations, including one that has
// failed and is waiting on Retry.
func (w *Writer) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queue)
}

// Retry clears a latched fault and resumes the queue from the operation
// that failed. No-op when the writer is healthy.
func (w *Writer) Retry() {
	w.mu.Lock()
	if w.fault != nil {
		w.fault = nil
		w.cond.Broadcast()
	}
	w.mu.Unlock()
}

// Drain blocks until every queued operation has been persisted and the
// writer is idle. It returns the latched fault if the writer parks, or the
// context error if ctx expires first.
func (w *Writer) Drain(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		w.mu.Lock()
		w.cond.Broadcast()
		w.mu.Unlock()
	})
	defer stop()

	w.mu.Lock()
	defer w.mu.Unlock()
	for {
		switch {
		case w.fault != nil:
			return w.fault
		case w.closed:
			return ErrStoreClosed
		case len(w.queue) == 0 && !w.busy:
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		}
		w.cond.Wait()
	}
}

// Close stops the writer and closes the store. Queued operations that have
// not run are abandoned; call Drain first when they must survive. Safe to
// call more than once.
func (w *Writer) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.cond.Broadcast()
	w.mu.Unlock()

	w.cancel()
	<-w.done

	return w.store.Close()
}

// enqueue appends one job and wakes the run loop. Jobs queue even while
// the writer is parked so buffered data is not lost during a disk stall.
func (w *Writer) enqueue(name string, fn func(ctx context.Context) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrStoreClosed
	}
	w.queue = append(w.queue, job{name: name, fn: fn})
	w.cond.Broadcast()
	return nil
}

// run executes queued jobs in order, parking on failure until Retry.
func (w *Writer) run() {
	defer close(w.done)

	for {
		w.mu.Lock()
		for !w.closed && (len(w.queue) == 0 || w.fault != nil) {
			w.cond.Wait()
		}
		if w.closed {
			w.mu.Unlock()
			return
		}
		j := w.queue[0]
		w.busy = true
		w.mu.Unlock()

		err := w.execute(j)

		w.mu.Lock()
		w.busy = false
		if w.closed {
			w.mu.Unlock()
			return
		}
		if err != nil {
			// Leave the job at the head of the queue for Retry.
			w.fault = fmt.Errorf("%s: %w", j.name, err)
			w.cond.Broadcast()
			w.mu.Unlock()

			w.logError("store write failed, writer parked", err, "op", j.name)
			if w.onFault != nil {
				w.onFault(err)
			}
			continue
		}
		w.queue = w.queue[1:]
		if len(w.queue) == 0 {
			w.queue = nil
		}
		w.cond.Broadcast()
		w.mu.Unlock()
	}
}

func (w *Writer) execute(j job) error {
	ctx, cancel := context.WithTimeout(w.ctx, jobTimeout)
	defer cancel()
	return j.fn(ctx)
}

// logError logs an error message if a logger is set.
func (w *Writer) logError(msg string, err error, args ...any) {
	w.loggerMu.RLock()
	logger := w.logger
	w.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, append([]any{"error", err}, args...)...)
	}
}
