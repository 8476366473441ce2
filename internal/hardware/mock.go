package hardware

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"
)

// Mock signal parameters. The generated trace is a slow sine riding on a
// per-board baseline with uniform noise, which looks enough like licking
// activity to exercise plots, buffers, and thresholds.
const (
	mockBaselineMin = 400
	mockBaselineMax = 600
	mockSwing       = 30.0
	mockNoise       = 10
)

// MockBoard is a synthetic Board for development and tests. It produces
// frames shaped exactly like controller output without any bus underneath,
// and can inject read failures on demand.
type MockBoard struct {
	id      string
	sensors []int
	start   time.Time

	mu       sync.Mutex
	rng      *rand.Rand
	baseline int
	failing  bool
	closed   bool
}

// OpenMock creates a mock board seeded from the clock. It never fails; the
// signature matches Opener so the backends are interchangeable.
func OpenMock(cfg Config) (Board, error) {
	return NewMock(cfg, time.Now().UnixNano()), nil
}

// NewMock creates a mock board with a caller-chosen seed, for tests that
// need reproducible traces.
func NewMock(cfg Config, seed int64) *MockBoard {
	rng := rand.New(rand.NewSource(seed)) //nolint:gosec // Synthetic data, not security sensitive
	return &MockBoard{
		id:       cfg.ID,
		sensors:  append([]int(nil), cfg.Sensors...),
		start:    time.Now(),
		rng:      rng,
		baseline: mockBaselineMin + rng.Intn(mockBaselineMax-mockBaselineMin+1),
	}
}

// ID returns the board identity from configuration.
func (m *MockBoard) ID() string {
	return m.id
}

// Sensors returns the rack positions this board serves, in electrode order.
func (m *MockBoard) Sensors() []int {
	return m.sensors
}

// SetFailing toggles failure injection. While enabled every Read returns
// ErrReadFailed, which is how tests drive a board over its failure
// allowance.
func (m *MockBoard) SetFailing(failing bool) {
	m.mu.Lock()
	m.failing = failing
	m.mu.Unlock()
}

// Read produces one synthetic frame and maps it to rack positions the same
// way the i2c backend does.
func (m *MockBoard) Read(ctx context.Context) ([]Reading, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrBoardClosed
	}
	if m.failing {
		return nil, ErrReadFailed
	}

	return readingsFromFrame(m.sensors, m.frame(), time.Now())
}

// frame builds one synthetic data frame: per electrode, the board baseline
// plus a slow sine offset plus noise, clamped to the 10-bit range and
// encoded little-endian.
func (m *MockBoard) frame() []byte {
	elapsed := time.Since(m.start).Seconds()

	frame := make([]byte, frameLength)
	for ch := 0; ch < numElectrodes; ch++ {
		swing := mockSwing * math.Sin(elapsed*0.5+float64(ch)*0.1)
		noise := m.rng.Intn(2*mockNoise+1) - mockNoise

		v := m.baseline + int(swing) + noise
		if v < 0 {
			v = 0
		}
		if v > maxCount {
			v = maxCount
		}

		frame[2*ch] = byte(v & 0xFF)
		frame[2*ch+1] = byte(v >> 8)
	}
	return frame
}

// Close marks the board closed. Reads after Close return ErrBoardClosed.
func (m *MockBoard) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
