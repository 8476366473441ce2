package hardware

import (
	"context"
	"errors"
	"testing"
)

func TestMockBoard_Read(t *testing.T) {
	cfg := Config{ID: "board0", Sensors: []int{1, 2, 3, 7, 8, 9}}
	m := NewMock(cfg, 42)

	readings, err := m.Read(context.Background())
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if len(readings) != 6 {
		t.Fatalf("got %d readings, want 6", len(readings))
	}

	for i, r := range readings {
		if r.Sensor != cfg.Sensors[i] {
			t.Errorf("reading[%d].Sensor = %d, want %d", i, r.Sensor, cfg.Sensors[i])
		}
		if r.Value > maxCount {
			t.Errorf("reading[%d].Value = %d exceeds 10-bit range", i, r.Value)
		}
		// Signal is baseline plus at most swing plus noise.
		lo := m.baseline - int(mockSwing) - mockNoise
		hi := m.baseline + int(mockSwing) + mockNoise
		if int(r.Value) < lo || int(r.Value) > hi {
			t.Errorf("reading[%d].Value = %d outside [%d, %d]", i, r.Value, lo, hi)
		}
		if r.Timestamp.IsZero() {
			t.Errorf("reading[%d].Timestamp is zero", i)
		}
	}
}

func TestMockBoard_DeterministicSeed(t *testing.T) {
	cfg := Config{ID: "board0", Sensors: []int{1, 2, 3}}

	a := NewMock(cfg, 7)
	b := NewMock(cfg, 7)

	if a.baseline != b.baseline {
		t.Errorf("same seed produced baselines %d and %d", a.baseline, b.baseline)
	}
	if a.baseline < mockBaselineMin || a.baseline > mockBaselineMax {
		t.Errorf("baseline %d outside [%d, %d]", a.baseline, mockBaselineMin, mockBaselineMax)
	}
}

func TestMockBoard_SetFailing(t *testing.T) {
	m := NewMock(Config{ID: "board0", Sensors: []int{1}}, 1)

	m.SetFailing(true)
	if _, err := m.Read(context.Background()); !errors.Is(err, ErrReadFailed) {
		t.Errorf("Read() while failing error = %v, want ErrReadFailed", err)
	}

	m.SetFailing(false)
	if _, err := m.Read(context.Background()); err != nil {
		t.Errorf("Read() after clearing failure error = %v", err)
	}
}

func TestMockBoard_Close(t *testing.T) {
	m := NewMock(Config{ID: "board0", Sensors: []int{1}}, 1)

	if err := m.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if _, err := m.Read(context.Background()); !errors.Is(err, ErrBoardClosed) {
		t.Errorf("Read() after Close error = %v, want ErrBoardClosed", err)
	}
}

func TestMockBoard_CancelledContext(t *testing.T) {
	m := NewMock(Config{ID: "board0", Sensors: []int{1}}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := m.Read(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Read() with cancelled context error = %v, want context.Canceled", err)
	}
}

func TestOpenMock(t *testing.T) {
	board, err := OpenMock(Config{ID: "board1", Sensors: []int{4, 5, 6}})
	if err != nil {
		t.Fatalf("OpenMock() error = %v", err)
	}
	defer board.Close() //nolint:errcheck // Test cleanup

	if board.ID() != "board1" {
		t.Errorf("ID() = %q, want %q", board.ID(), "board1")
	}
	if got := board.Sensors(); len(got) != 3 || got[0] != 4 {
		t.Errorf("Sensors() = %v, want [4 5 6]", got)
	}
}
