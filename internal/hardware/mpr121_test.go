package hardware

import (
	"errors"
	"testing"
	"time"
)

// buildFrame creates a raw data frame with the given per-electrode values,
// little-endian encoded like the controller produces.
func buildFrame(t *testing.T, values [numElectrodes]uint16) []byte {
	t.Helper()

	frame := make([]byte, frameLength)
	for ch, v := range values {
		frame[2*ch] = byte(v & 0xFF)
		frame[2*ch+1] = byte(v >> 8)
	}
	return frame
}

func TestDecodeFrame(t *testing.T) {
	var values [numElectrodes]uint16
	for ch := range values {
		values[ch] = uint16(100 + ch) //nolint:gosec // Small test constants
	}
	frame := buildFrame(t, values)

	got, err := decodeFrame(frame)
	if err != nil {
		t.Fatalf("decodeFrame() error = %v", err)
	}

	if len(got) != len(wiredElectrodes) {
		t.Fatalf("decodeFrame() returned %d values, want %d", len(got), len(wiredElectrodes))
	}

	// Only the odd electrodes should appear, in order.
	for i, ch := range wiredElectrodes {
		want := uint16(100 + ch) //nolint:gosec // Small test constants
		if got[i] != want {
			t.Errorf("value[%d] (electrode %d) = %d, want %d", i, ch, got[i], want)
		}
	}
}

func TestDecodeFrame_TwoByteValues(t *testing.T) {
	// A value above 255 must reassemble from both bytes.
	var values [numElectrodes]uint16
	values[1] = 1023
	values[3] = 0x0201
	frame := buildFrame(t, values)

	got, err := decodeFrame(frame)
	if err != nil {
		t.Fatalf("decodeFrame() error = %v", err)
	}

	if got[0] != 1023 {
		t.Errorf("electrode 1 = %d, want 1023", got[0])
	}
	if got[1] != 0x0201 {
		t.Errorf("electrode 3 = %#04x, want 0x0201", got[1])
	}
}

func TestDecodeFrame_ShortFrame(t *testing.T) {
	_, err := decodeFrame(make([]byte, frameLength-1))
	if !errors.Is(err, ErrShortFrame) {
		t.Errorf("decodeFrame() error = %v, want ErrShortFrame", err)
	}
}

func TestFrameEmpty(t *testing.T) {
	if !frameEmpty(make([]byte, frameLength)) {
		t.Error("frameEmpty() = false for all-zero frame, want true")
	}

	frame := make([]byte, frameLength)
	frame[frameLength-1] = 0x01
	if frameEmpty(frame) {
		t.Error("frameEmpty() = true for non-zero frame, want false")
	}
}

func TestReadingsFromFrame(t *testing.T) {
	var values [numElectrodes]uint16
	for ch := range values {
		values[ch] = uint16(500 + ch) //nolint:gosec // Small test constants
	}
	frame := buildFrame(t, values)
	at := time.Now()

	sensors := []int{1, 2, 3, 7, 8, 9}
	readings, err := readingsFromFrame(sensors, frame, at)
	if err != nil {
		t.Fatalf("readingsFromFrame() error = %v", err)
	}

	if len(readings) != len(sensors) {
		t.Fatalf("got %d readings, want %d", len(readings), len(sensors))
	}

	for i, r := range readings {
		if r.Sensor != sensors[i] {
			t.Errorf("reading[%d].Sensor = %d, want %d", i, r.Sensor, sensors[i])
		}
		if r.Channel != wiredElectrodes[i] {
			t.Errorf("reading[%d].Channel = %d, want %d", i, r.Channel, wiredElectrodes[i])
		}
		want := uint16(500 + wiredElectrodes[i]) //nolint:gosec // Small test constants
		if r.Value != want {
			t.Errorf("reading[%d].Value = %d, want %d", i, r.Value, want)
		}
		if !r.Timestamp.Equal(at) {
			t.Errorf("reading[%d].Timestamp = %v, want %v", i, r.Timestamp, at)
		}
	}
}

func TestReadingsFromFrame_FewerSensorsThanElectrodes(t *testing.T) {
	var values [numElectrodes]uint16
	frame := buildFrame(t, values)

	readings, err := readingsFromFrame([]int{4, 5}, frame, time.Now())
	if err != nil {
		t.Fatalf("readingsFromFrame() error = %v", err)
	}

	if len(readings) != 2 {
		t.Fatalf("got %d readings, want 2", len(readings))
	}
	if readings[0].Channel != 1 || readings[1].Channel != 3 {
		t.Errorf("channels = %d,%d, want 1,3 (leading wired electrodes)",
			readings[0].Channel, readings[1].Channel)
	}
}
