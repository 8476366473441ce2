package hardware

import (
	"context"
	"time"
)

// Status describes board connectivity.
type Status string

// Board connectivity states.
const (
	// StatusConnected means the board is open and answering reads.
	StatusConnected Status = "connected"

	// StatusDisconnected means the board could not be opened, or has been
	// closed. Boards start Disconnected until Connect succeeds.
	StatusDisconnected Status = "disconnected"

	// StatusError means the board exceeded its consecutive-failure
	// allowance during acquisition. It stays Error until an explicit
	// reconnect.
	StatusError Status = "error"
)

// Config describes one interface board: its identity, where it sits on the
// bus, and the rack positions wired to its odd electrodes in electrode
// order.
type Config struct {
	ID      string
	Bus     string
	Address uint16
	Sensors []int
}

// Reading is one capacitance measurement for one rack position.
type Reading struct {
	// Sensor is the rack position (1..N) the measurement belongs to.
	Sensor int

	// Channel is the electrode index on the board the position is wired to.
	Channel int

	// Value is the controller's filtered 10-bit count.
	Value uint16

	// Timestamp is when the frame holding this value was read.
	Timestamp time.Time
}

// Board is a connected interface board that can be polled for one frame of
// readings.
//
// The acquisition layer starts at most one read per board at a time, but a
// read that outlives its deadline is abandoned rather than awaited, so the
// next Read may begin while an earlier call is still blocked in the driver.
// Implementations guard shared bus state with their own locking; I2CBoard
// serialises transfers behind a mutex.
type Board interface {
	// ID returns the board identity from configuration.
	ID() string

	// Sensors returns the rack positions this board serves, in electrode
	// order.
	Sensors() []int

	// Read polls the board once and returns one Reading per wired
	// position. A read with no answering controller or a bus fault
	// returns an error; the caller decides how failures accumulate.
	Read(ctx context.Context) ([]Reading, error)

	// Close releases the underlying bus. Reads after Close return
	// ErrBoardClosed.
	Close() error
}

// Opener creates a Board from its description. The Manager uses it for the
// initial connect and for explicit reconnects, so the i2c and mock
// backends are interchangeable at wiring time.
type Opener func(cfg Config) (Board, error)
