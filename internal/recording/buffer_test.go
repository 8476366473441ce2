package recording

import (
	"testing"
	"time"
)

func TestBuffer_AppendSignalsFull(t *testing.T) {
	buf := NewBuffer(3)
	base := time.Now()

	for i := 0; i < 2; i++ {
		if full := buf.Append(Sample{CapturedAt: base, Value: uint16(i)}); full { //nolint:gosec // Small test values
			t.Fatalf("Append() reported full at %d samples, capacity 3", i+1)
		}
	}
	if full := buf.Append(Sample{CapturedAt: base, Value: 2}); !full {
		t.Fatal("Append() did not report full at capacity")
	}
	if buf.Len() != 3 {
		t.Errorf("Len() = %d, want 3", buf.Len())
	}
}

func TestBuffer_TakeReturnsAndClears(t *testing.T) {
	buf := NewBuffer(4)
	base := time.Now()

	want := []uint16{10, 11, 12}
	for _, v := range want {
		buf.Append(Sample{CapturedAt: base, Value: v})
	}

	batch := buf.Take()
	if len(batch) != len(want) {
		t.Fatalf("Take() returned %d samples, want %d", len(batch), len(want))
	}
	for i, s := range batch {
		if s.Value != want[i] {
			t.Errorf("batch[%d].Value = %d, want %d", i, s.Value, want[i])
		}
	}
	if buf.Len() != 0 {
		t.Errorf("Len() after Take = %d, want 0", buf.Len())
	}
	if got := buf.Take(); got != nil {
		t.Errorf("Take() on empty buffer = %v, want nil", got)
	}
}

func TestBuffer_TakeDoesNotShareBacking(t *testing.T) {
	buf := NewBuffer(2)
	buf.Append(Sample{Value: 1})
	buf.Append(Sample{Value: 2})

	batch := buf.Take()
	buf.Append(Sample{Value: 99})

	if batch[0].Value != 1 || batch[1].Value != 2 {
		t.Errorf("taken batch mutated after reuse: %v", batch)
	}
}

func TestRecentRing_TailBeforeWrap(t *testing.T) {
	ring := newRecentRing(5)
	for v := uint16(1); v <= 3; v++ {
		ring.append(Sample{Value: v})
	}

	got := ring.tail(0)
	if len(got) != 3 {
		t.Fatalf("tail(0) returned %d samples, want 3", len(got))
	}
	for i, want := range []uint16{1, 2, 3} {
		if got[i].Value != want {
			t.Errorf("tail[%d].Value = %d, want %d", i, got[i].Value, want)
		}
	}
}

func TestRecentRing_TailAfterWrap(t *testing.T) {
	ring := newRecentRing(4)
	for v := uint16(1); v <= 7; v++ {
		ring.append(Sample{Value: v})
	}

	got := ring.tail(0)
	if len(got) != 4 {
		t.Fatalf("tail(0) returned %d samples, want 4", len(got))
	}
	for i, want := range []uint16{4, 5, 6, 7} {
		if got[i].Value != want {
			t.Errorf("tail[%d].Value = %d, want %d", i, got[i].Value, want)
		}
	}
}

func TestRecentRing_TailLimit(t *testing.T) {
	ring := newRecentRing(4)
	for v := uint16(1); v <= 6; v++ {
		ring.append(Sample{Value: v})
	}

	got := ring.tail(2)
	if len(got) != 2 {
		t.Fatalf("tail(2) returned %d samples, want 2", len(got))
	}
	if got[0].Value != 5 || got[1].Value != 6 {
		t.Errorf("tail(2) = [%d %d], want [5 6]", got[0].Value, got[1].Value)
	}
}

func TestEventRing_TailAfterWrap(t *testing.T) {
	ring := newEventRing(3)
	for _, kind := range []string{"a", "b", "c", "d", "e"} {
		ring.append(Event{Kind: kind})
	}

	got := ring.tail(0)
	if len(got) != 3 {
		t.Fatalf("tail(0) returned %d events, want 3", len(got))
	}
	for i, want := range []string{"c", "d", "e"} {
		if got[i].Kind != want {
			t.Errorf("tail[%d].Kind = %q, want %q", i, got[i].Kind, want)
		}
	}

	got = ring.tail(1)
	if len(got) != 1 || got[0].Kind != "e" {
		t.Errorf("tail(1) = %+v, want just the newest event", got)
	}
}
