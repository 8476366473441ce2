package hardware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// I2CBoard drives one MPR121 controller over a periph.io I2C bus.
type I2CBoard struct {
	id      string
	sensors []int
	dev     *i2c.Dev
	bus     i2c.BusCloser

	mu     sync.Mutex
	closed bool
}

// OpenI2C opens the named bus, brings up the controller at cfg.Address,
// and verifies it answers. The returned board is ready to poll.
//
// Parameters:
//   - cfg: Board description (bus name, address, rack positions)
//
// Returns:
//   - Board: Connected board
//   - error: If the bus cannot be opened or the controller does not answer
func OpenI2C(cfg Config) (Board, error) {
	// Idempotent; loads the host's bus drivers on first call.
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}

	bus, err := i2creg.Open(cfg.Bus)
	if err != nil {
		return nil, fmt.Errorf("opening i2c bus %q: %w", cfg.Bus, err)
	}

	b := &I2CBoard{
		id:      cfg.ID,
		sensors: append([]int(nil), cfg.Sensors...),
		dev:     &i2c.Dev{Addr: cfg.Address, Bus: bus},
		bus:     bus,
	}

	if err := b.initialise(); err != nil {
		bus.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, err
	}

	return b, nil
}

// initialise soft-resets the controller, enables all electrodes with
// baseline tracking, and confirms it answers with real data.
func (b *I2CBoard) initialise() error {
	if err := b.dev.Tx([]byte{regSoftReset, softResetValue}, nil); err != nil {
		return fmt.Errorf("soft reset: %w", err)
	}

	if err := b.dev.Tx([]byte{regECR, ecrRunValue}, nil); err != nil {
		return fmt.Errorf("writing electrode config: %w", err)
	}

	// The controller needs a beat to establish baselines before the
	// filtered-data registers hold anything.
	time.Sleep(settleDelay)

	frame := make([]byte, frameLength)
	if err := b.dev.Tx([]byte{regFilteredData}, frame); err != nil {
		return fmt.Errorf("verify read: %w", err)
	}
	if frameEmpty(frame) {
		return fmt.Errorf("%w: board %s at 0x%02X", ErrNotResponding, b.id, b.dev.Addr)
	}

	return nil
}

// ID returns the board identity from configuration.
func (b *I2CBoard) ID() string {
	return b.id
}

// Sensors returns the rack positions this board serves, in electrode order.
func (b *I2CBoard) Sensors() []int {
	return b.sensors
}

// Read polls one filtered-data frame and maps the wired electrodes to this
// board's rack positions.
func (b *I2CBoard) Read(ctx context.Context) ([]Reading, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBoardClosed
	}

	frame := make([]byte, frameLength)
	if err := b.dev.Tx([]byte{regFilteredData}, frame); err != nil {
		return nil, fmt.Errorf("reading frame: %w", err)
	}

	return readingsFromFrame(b.sensors, frame, time.Now())
}

// Close releases the underlying bus.
func (b *I2CBoard) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	return b.bus.Close()
}
