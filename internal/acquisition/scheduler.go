package acquisition

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/cliqr-core/internal/hardware"
	"github.com/nerrad567/cliqr-core/internal/infrastructure/logging"
)

// Sink receives acquisition output. Both methods must not block: they are
// called from the coordination loop, and a stalled sink would stall every
// board.
type Sink interface {
	// Ingest delivers one frame of readings from one board.
	Ingest(boardID string, readings []hardware.Reading)

	// BoardFailed reports that a board exhausted its failure allowance.
	BoardFailed(boardID string)
}

// BoardPool is the slice of the hardware manager the scheduler needs:
// board handles, connectivity, and the error flag.
type BoardPool interface {
	Board(boardID string) (hardware.Board, bool)
	Status(boardID string) hardware.Status
	MarkError(boardID string)
}

// Options holds configuration for creating a Scheduler.
type Options struct {
	// Boards lists the boards to poll, in rack order.
	Boards []hardware.Config

	// Pool resolves board handles and connectivity.
	Pool BoardPool

	// Sink receives readings and failure reports.
	Sink Sink

	// Interval is the coordination tick. Every connected board is polled
	// once per tick, so 20ms yields the nominal 50Hz per-sensor cadence.
	Interval time.Duration

	// ReadTimeout bounds one board read. A read that exceeds it counts as
	// a failure for that board.
	ReadTimeout time.Duration

	// FailureThreshold is how many consecutive failed reads a board is
	// allowed before it is marked errored.
	FailureThreshold int

	// Logger is optional structured logger.
	Logger *logging.Logger
}

// Scheduler polls the rack's boards on a fixed cadence and forwards frames
// to the sink. At most one read is started per board at a time; a board
// still busy when the next tick arrives is skipped for that tick rather
// than queued. A read that outlives the read timeout counts as a failure
// and frees the board's slot even when the driver ignores cancellation.
//
// Thread Safety: Start and Stop are safe for concurrent use. Stop blocks
// until the loop has exited and every outstanding read has been delivered
// or abandoned, and is a no-op on a stopped scheduler.
type Scheduler struct {
	boards      []hardware.Config
	pool        BoardPool
	sink        Sink
	interval    time.Duration
	readTimeout time.Duration
	threshold   int

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	logger   *logging.Logger
	loggerMu sync.RWMutex
}

// readResult carries one board read back to the coordination loop.
type readResult struct {
	boardID  string
	readings []hardware.Reading
	err      error
}

// New creates a scheduler. Call Start to begin polling.
func New(opts Options) (*Scheduler, error) {
	if len(opts.Boards) == 0 {
		return nil, fmt.Errorf("at least one board is required")
	}
	if opts.Pool == nil {
		return nil, fmt.Errorf("board pool is required")
	}
	if opts.Sink == nil {
		return nil, fmt.Errorf("sink is required")
	}
	if opts.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive")
	}
	if opts.ReadTimeout <= 0 {
		return nil, fmt.Errorf("read timeout must be positive")
	}
	if opts.FailureThreshold < 1 {
		return nil, fmt.Errorf("failure threshold must be at least 1")
	}

	return &Scheduler{
		boards:      opts.Boards,
		pool:        opts.Pool,
		sink:        opts.Sink,
		interval:    opts.Interval,
		readTimeout: opts.ReadTimeout,
		threshold:   opts.FailureThreshold,
		logger:      opts.Logger,
	}, nil
}

// Start begins the coordination loop. Starting a running scheduler is a
// no-op; starting after Stop begins a fresh loop with clean failure
// counts.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.running = true

	go s.run(ctx, done)
	s.logInfo("acquisition started", "boards", len(s.boards), "interval", s.interval.String())
}

// Stop cancels in-flight reads and waits for the loop to exit. After Stop
// returns, the sink receives nothing further until the next Start.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel, done := s.cancel, s.done
	s.running = false
	s.mu.Unlock()

	cancel()
	<-done
	s.logInfo("acquisition stopped")
}

// run is the coordination loop. It owns the in-flight and failure maps;
// workers only report back through the results channel.
func (s *Scheduler) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	inFlight := make(map[string]bool, len(s.boards))
	failures := make(map[string]int, len(s.boards))
	results := make(chan readResult)

	pending := 0
	stopping := false
	ctxDone := ctx.Done()

	for {
		select {
		case <-ctxDone:
			ctxDone = nil
			stopping = true
			if pending == 0 {
				return
			}

		case <-ticker.C:
			if stopping {
				continue
			}
			for _, cfg := range s.boards {
				if inFlight[cfg.ID] {
					// Board still answering the previous tick.
					continue
				}
				if s.pool.Status(cfg.ID) != hardware.StatusConnected {
					// Skipped boards, including freshly reconnected
					// ones, start over on their failure allowance.
					failures[cfg.ID] = 0
					continue
				}
				board, ok := s.pool.Board(cfg.ID)
				if !ok {
					failures[cfg.ID] = 0
					continue
				}
				inFlight[cfg.ID] = true
				pending++
				go s.read(ctx, board, results)
			}

		case res := <-results:
			pending--
			inFlight[res.boardID] = false

			if stopping || ctx.Err() != nil {
				// Shutdown read; neither counted nor forwarded.
				if stopping && pending == 0 {
					return
				}
				continue
			}

			if res.err != nil {
				failures[res.boardID]++
				s.logError("board read failed", res.err,
					"board_id", res.boardID, "consecutive", failures[res.boardID])
				if failures[res.boardID] >= s.threshold {
					s.logError("board failure allowance exhausted", res.err, "board_id", res.boardID)
					s.pool.MarkError(res.boardID)
					s.sink.BoardFailed(res.boardID)
					failures[res.boardID] = 0
				}
				continue
			}

			failures[res.boardID] = 0
			s.sink.Ingest(res.boardID, res.readings)
		}
	}
}

// read polls one board once, bounded by the read timeout, and reports the
// outcome. The driver call runs on its own goroutine: a transfer wedged in
// the kernel never sees the context, so the deadline is enforced here. A
// read that outlives it is reported as failed and abandoned; its result,
// if one ever arrives, lands in the buffered channel and is dropped.
func (s *Scheduler) read(ctx context.Context, board hardware.Board, results chan<- readResult) {
	readCtx, cancel := context.WithTimeout(ctx, s.readTimeout)
	defer cancel()

	outcome := make(chan readResult, 1)
	go func() {
		readings, err := board.Read(readCtx)
		outcome <- readResult{boardID: board.ID(), readings: readings, err: err}
	}()

	select {
	case res := <-outcome:
		results <- res
	case <-readCtx.Done():
		results <- readResult{boardID: board.ID(), err: readCtx.Err()}
	}
}

// SetLogger sets the logger for the scheduler.
func (s *Scheduler) SetLogger(logger *logging.Logger) {
	s.loggerMu.Lock()
	s.logger = logger
	s.loggerMu.Unlock()
}

// logInfo logs an info message if a logger is set.
func (s *Scheduler) logInfo(msg string, args ...any) {
	s.loggerMu.RLock()
	logger := s.logger
	s.loggerMu.RUnlock()

	if logger != nil {
		logger.Info(msg, args...)
	}
}

// logError logs an error message if a logger is set.
func (s *Scheduler) logError(msg string, err error, args ...any) {
	s.loggerMu.RLock()
	logger := s.logger
	s.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, append([]any{"error", err}, args...)...)
	}
}
