package hardware

import "errors"

// Domain errors for the hardware package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, hardware.ErrNotResponding) {
//	    // nothing answered at the configured address
//	}
var (
	// ErrNotResponding is returned when a controller reads back an
	// all-zero frame after bring-up, meaning nothing answered at the
	// configured address.
	ErrNotResponding = errors.New("hardware: controller not responding")

	// ErrShortFrame is returned when a data-register read yields fewer
	// bytes than a full frame.
	ErrShortFrame = errors.New("hardware: short frame")

	// ErrBoardClosed is returned when reading from a closed board.
	ErrBoardClosed = errors.New("hardware: board closed")

	// ErrUnknownBoard is returned when a board ID is not configured.
	ErrUnknownBoard = errors.New("hardware: unknown board")

	// ErrNoBoards is returned by Connect when no board could be opened.
	ErrNoBoards = errors.New("hardware: no boards connected")

	// ErrReadFailed is returned by the mock backend while failure
	// injection is enabled.
	ErrReadFailed = errors.New("hardware: read failed")
)
