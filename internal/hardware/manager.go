package hardware

import (
	"context"
	"fmt"
	"sync"

	"github.com/nerrad567/cliqr-core/internal/infrastructure/logging"
)

// StatusHandler receives board connectivity changes.
type StatusHandler func(boardID string, status Status)

// ManagerOptions holds configuration for creating a Manager.
type ManagerOptions struct {
	// Configs describes the boards to manage, in rack order.
	Configs []Config

	// Opener creates boards; select OpenI2C or OpenMock per deployment.
	Opener Opener

	// Logger is optional structured logger.
	Logger *logging.Logger
}

// Manager owns the lifecycle of every configured board: initial
// connection, explicit reconnects after faults, and teardown. It is the
// authority on board connectivity and publishes changes to a single
// registered handler.
//
// Thread Safety: all methods are safe for concurrent use.
type Manager struct {
	configs []Config
	opener  Opener

	mu       sync.RWMutex
	boards   map[string]Board
	statuses map[string]Status
	onChange StatusHandler

	logger   *logging.Logger
	loggerMu sync.RWMutex
}

// NewManager creates a manager for the given boards.
// Call Connect to open them.
func NewManager(opts ManagerOptions) (*Manager, error) {
	if len(opts.Configs) == 0 {
		return nil, fmt.Errorf("at least one board config is required")
	}
	if opts.Opener == nil {
		return nil, fmt.Errorf("opener is required")
	}

	m := &Manager{
		configs:  opts.Configs,
		opener:   opts.Opener,
		boards:   make(map[string]Board, len(opts.Configs)),
		statuses: make(map[string]Status, len(opts.Configs)),
		logger:   opts.Logger,
	}
	for _, cfg := range opts.Configs {
		m.statuses[cfg.ID] = StatusDisconnected
	}
	return m, nil
}

// Connect opens every configured board. A board that fails to open is left
// Disconnected and logged; the others proceed, so a rig with one dead
// board still records on the rest.
//
// Returns:
//   - error: ErrNoBoards if nothing could be opened, ctx.Err() on cancellation
func (m *Manager) Connect(ctx context.Context) error {
	connected := 0
	for _, cfg := range m.configs {
		if err := ctx.Err(); err != nil {
			return err
		}

		board, err := m.opener(cfg)
		if err != nil {
			m.logError("board connect failed", err, "board_id", cfg.ID)
			m.setStatus(cfg.ID, StatusDisconnected)
			continue
		}

		m.mu.Lock()
		m.boards[cfg.ID] = board
		m.mu.Unlock()

		m.setStatus(cfg.ID, StatusConnected)
		m.logInfo("board connected", "board_id", cfg.ID, "sensors", len(cfg.Sensors))
		connected++
	}

	if connected == 0 {
		return ErrNoBoards
	}
	return nil
}

// Reconnect closes and reopens one board. This is the only recovery path
// out of the error state; it is never triggered automatically.
//
// Parameters:
//   - ctx: Context for cancellation
//   - boardID: Board to reopen
//
// Returns:
//   - error: ErrUnknownBoard for unconfigured IDs, or the open failure
func (m *Manager) Reconnect(ctx context.Context, boardID string) error {
	cfg, ok := m.configFor(boardID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownBoard, boardID)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// Drop the stale board first so a failed reopen leaves it absent
	// rather than half-open.
	m.mu.Lock()
	old := m.boards[boardID]
	delete(m.boards, boardID)
	m.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			m.logError("closing stale board", err, "board_id", boardID)
		}
	}

	board, err := m.opener(cfg)
	if err != nil {
		m.setStatus(boardID, StatusDisconnected)
		return fmt.Errorf("reopening board %s: %w", boardID, err)
	}

	m.mu.Lock()
	m.boards[boardID] = board
	m.mu.Unlock()

	m.setStatus(boardID, StatusConnected)
	m.logInfo("board reconnected", "board_id", boardID)
	return nil
}

// Board returns the open board with the given ID.
func (m *Manager) Board(boardID string) (Board, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.boards[boardID]
	return b, ok
}

// Boards returns all currently open boards in configuration order.
func (m *Manager) Boards() []Board {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Board, 0, len(m.boards))
	for _, cfg := range m.configs {
		if b, ok := m.boards[cfg.ID]; ok {
			out = append(out, b)
		}
	}
	return out
}

// Status returns the connectivity status for one board.
// Unknown IDs read as Disconnected.
func (m *Manager) Status(boardID string) Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if s, ok := m.statuses[boardID]; ok {
		return s
	}
	return StatusDisconnected
}

// Statuses returns a copy of all board statuses.
func (m *Manager) Statuses() map[string]Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]Status, len(m.statuses))
	for id, s := range m.statuses {
		out[id] = s
	}
	return out
}

// ConnectedCount returns how many boards are currently Connected.
func (m *Manager) ConnectedCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, s := range m.statuses {
		if s == StatusConnected {
			n++
		}
	}
	return n
}

// MarkError flags a board as failed. The acquisition layer calls this when
// a board exceeds its consecutive-failure allowance; the board stays open
// but is skipped until an explicit Reconnect.
func (m *Manager) MarkError(boardID string) {
	m.setStatus(boardID, StatusError)
}

// OnStatusChange registers the handler for connectivity changes. One
// handler is supported; later calls replace earlier ones. Register before
// Connect to observe the initial transitions.
func (m *Manager) OnStatusChange(fn StatusHandler) {
	m.mu.Lock()
	m.onChange = fn
	m.mu.Unlock()
}

// Disconnect closes all boards and marks them Disconnected.
// The first close error is returned; remaining boards are still closed.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	boards := make(map[string]Board, len(m.boards))
	for id, b := range m.boards {
		boards[id] = b
	}
	m.boards = make(map[string]Board)
	m.mu.Unlock()

	var firstErr error
	for id, b := range boards {
		if err := b.Close(); err != nil {
			m.logError("board close failed", err, "board_id", id)
			if firstErr == nil {
				firstErr = err
			}
		}
		m.setStatus(id, StatusDisconnected)
	}
	return firstErr
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger *logging.Logger) {
	m.loggerMu.Lock()
	m.logger = logger
	m.loggerMu.Unlock()
}

// configFor finds the configuration for a board ID.
func (m *Manager) configFor(boardID string) (Config, bool) {
	for _, cfg := range m.configs {
		if cfg.ID == boardID {
			return cfg, true
		}
	}
	return Config{}, false
}

// setStatus records a status and notifies the handler when it changed.
func (m *Manager) setStatus(boardID string, status Status) {
	m.mu.Lock()
	old := m.statuses[boardID]
	m.statuses[boardID] = status
	fn := m.onChange
	m.mu.Unlock()

	if fn != nil && old != status {
		fn(boardID, status)
	}
}

// logInfo logs an info message if a logger is set.
func (m *Manager) logInfo(msg string, args ...any) {
	m.loggerMu.RLock()
	logger := m.logger
	m.loggerMu.RUnlock()

	if logger != nil {
		logger.Info(msg, args...)
	}
}

// logError logs an error message if a logger is set.
func (m *Manager) logError(msg string, err error, args ...any) {
	m.loggerMu.RLock()
	logger := m.logger
	m.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, append([]any{"error", err}, args...)...)
	}
}
