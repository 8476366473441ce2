package hardware

import (
	"fmt"
	"time"
)

// MPR121 register map (the subset used here) and bring-up values.
const (
	// regSoftReset resets the controller when written with softResetValue.
	regSoftReset = 0x80

	// regECR is the electrode configuration register; writing a non-zero
	// value takes the controller out of stop mode.
	regECR = 0x5E

	// regFilteredData is the first filtered-data register. Reading a full
	// frame from here yields two little-endian bytes per electrode.
	regFilteredData = 0x04

	// softResetValue is the magic byte that triggers a soft reset.
	softResetValue = 0x63

	// ecrRunValue enables all twelve electrodes with baseline tracking on,
	// the same bring-up the Adafruit library defaults to.
	ecrRunValue = 0x8F

	numElectrodes = 12

	// frameLength is one filtered-data frame: two bytes per electrode.
	frameLength = numElectrodes * 2

	// maxCount is the largest filtered reading the 10-bit ADC produces.
	maxCount = 1023
)

// settleDelay is how long the controller needs after configuration before
// the filtered-data registers hold meaningful values.
const settleDelay = 100 * time.Millisecond

// wiredElectrodes are the electrode indices wired to rack positions, in
// the order positions are listed in board configuration. Only the odd
// electrodes are wired on the standard rack.
var wiredElectrodes = [...]int{1, 3, 5, 7, 9, 11}

// ElectrodeChannel returns the electrode index wired to the i-th sensor
// position of a board, or -1 when the position is not wired.
func ElectrodeChannel(i int) int {
	if i < 0 || i >= len(wiredElectrodes) {
		return -1
	}
	return wiredElectrodes[i]
}

// decodeFrame extracts the wired electrodes' filtered counts from one raw
// data frame. Each electrode contributes two little-endian bytes.
func decodeFrame(frame []byte) ([]uint16, error) {
	if len(frame) < frameLength {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrShortFrame, len(frame), frameLength)
	}

	values := make([]uint16, len(wiredElectrodes))
	for i, ch := range wiredElectrodes {
		values[i] = uint16(frame[2*ch]) | uint16(frame[2*ch+1])<<8
	}
	return values, nil
}

// frameEmpty reports whether a frame is all zeroes. A running controller
// never produces one, so an empty frame means nothing answered the read.
func frameEmpty(frame []byte) bool {
	for _, b := range frame {
		if b != 0 {
			return false
		}
	}
	return true
}

// readingsFromFrame decodes a frame and pairs each wired electrode's value
// with the rack position configured for it. A board configured with fewer
// positions than wired electrodes uses the leading electrodes.
func readingsFromFrame(sensors []int, frame []byte, at time.Time) ([]Reading, error) {
	values, err := decodeFrame(frame)
	if err != nil {
		return nil, err
	}

	n := len(sensors)
	if n > len(values) {
		n = len(values)
	}

	readings := make([]Reading, n)
	for i := 0; i < n; i++ {
		readings[i] = Reading{
			Sensor:    sensors[i],
			Channel:   wiredElectrodes[i],
			Value:     values[i],
			Timestamp: at,
		}
	}
	return readings, nil
}
