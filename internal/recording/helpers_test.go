package recording

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/cliqr-core/internal/hardware"
)

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

// fakeStore records every store operation in order and can be told to
// fail specific operations.
type fakeStore struct {
	mu sync.Mutex

	ops      []string
	info     SessionInfo
	bindings []SensorBinding
	samples  map[int][]Sample
	begins   []cycleEdge
	finishes []cycleFinish
	events   []Event
	comment  string
	finished bool
	closed   bool

	failOp    string
	failCount int
}

type cycleEdge struct {
	sensor  int
	cycle   int
	subject string
	start   time.Time
}

type cycleFinish struct {
	sensor int
	cycle  int
	upd    CycleUpdate
}

var _ Store = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{samples: make(map[int][]Sample)}
}

// failNext makes the next n calls of the named operation fail.
func (f *fakeStore) failNext(op string, n int) {
	f.mu.Lock()
	f.failOp = op
	f.failCount = n
	f.mu.Unlock()
}

func (f *fakeStore) maybeFail(op string) error {
	if f.failCount > 0 && f.failOp == op {
		f.failCount--
		return fmt.Errorf("induced %s failure", op)
	}
	return nil
}

func (f *fakeStore) Begin(_ context.Context, info SessionInfo, bindings []SensorBinding) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.maybeFail("begin"); err != nil {
		return err
	}
	f.info = info
	f.bindings = bindings
	f.ops = append(f.ops, "begin")
	return nil
}

func (f *fakeStore) AppendSamples(_ context.Context, _ string, sensor int, batch []Sample) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.maybeFail("samples"); err != nil {
		return err
	}
	f.samples[sensor] = append(f.samples[sensor], batch...)
	f.ops = append(f.ops, fmt.Sprintf("samples:%d:%d", sensor, len(batch)))
	return nil
}

func (f *fakeStore) BeginCycle(_ context.Context, sensor, cycle int, subject string, start time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.maybeFail("begin_cycle"); err != nil {
		return err
	}
	f.begins = append(f.begins, cycleEdge{sensor: sensor, cycle: cycle, subject: subject, start: start})
	f.ops = append(f.ops, fmt.Sprintf("begin_cycle:%d:%d", sensor, cycle))
	return nil
}

func (f *fakeStore) FinishCycle(_ context.Context, sensor, cycle int, upd CycleUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.maybeFail("finish_cycle"); err != nil {
		return err
	}
	f.finishes = append(f.finishes, cycleFinish{sensor: sensor, cycle: cycle, upd: upd})
	f.ops = append(f.ops, fmt.Sprintf("finish_cycle:%d:%d", sensor, cycle))
	return nil
}

func (f *fakeStore) AppendEvent(_ context.Context, ev Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.maybeFail("event"); err != nil {
		return err
	}
	f.events = append(f.events, ev)
	f.ops = append(f.ops, "event:"+ev.Kind)
	return nil
}

func (f *fakeStore) Finish(_ context.Context, _ time.Time, comment string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.maybeFail("finish"); err != nil {
		return err
	}
	f.finished = true
	f.comment = comment
	f.ops = append(f.ops, "finish")
	return nil
}

func (f *fakeStore) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeStore) opList() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ops...)
}

func (f *fakeStore) sampleCount(sensor int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.samples[sensor])
}

func (f *fakeStore) sensorSamples(sensor int) []Sample {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Sample(nil), f.samples[sensor]...)
}

func (f *fakeStore) cycleBegins() []cycleEdge {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]cycleEdge(nil), f.begins...)
}

func (f *fakeStore) cycleFinishes() []cycleFinish {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]cycleFinish(nil), f.finishes...)
}

func (f *fakeStore) sessionInfo() SessionInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.info
}

func (f *fakeStore) sessionBindings() []SensorBinding {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SensorBinding(nil), f.bindings...)
}

func (f *fakeStore) finishState() (bool, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.finished, f.comment
}

func (f *fakeStore) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// fakeBoardSource is a controllable BoardStatusSource.
type fakeBoardSource struct {
	mu       sync.Mutex
	statuses map[string]hardware.Status
}

func newFakeBoardSource(boards ...string) *fakeBoardSource {
	statuses := make(map[string]hardware.Status, len(boards))
	for _, id := range boards {
		statuses[id] = hardware.StatusConnected
	}
	return &fakeBoardSource{statuses: statuses}
}

func (f *fakeBoardSource) Statuses() map[string]hardware.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]hardware.Status, len(f.statuses))
	for id, status := range f.statuses {
		out[id] = status
	}
	return out
}

func (f *fakeBoardSource) set(id string, status hardware.Status) {
	f.mu.Lock()
	f.statuses[id] = status
	f.mu.Unlock()
}

// fakeRunner counts start/stop calls from the engine.
type fakeRunner struct {
	mu     sync.Mutex
	starts int
	stops  int
}

func (r *fakeRunner) Start() {
	r.mu.Lock()
	r.starts++
	r.mu.Unlock()
}

func (r *fakeRunner) Stop() {
	r.mu.Lock()
	r.stops++
	r.mu.Unlock()
}

func (r *fakeRunner) counts() (starts, stops int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.starts, r.stops
}

// newTestEngine builds a started engine over two fake boards with three
// sensors each, wired to the given store.
func newTestEngine(t *testing.T, fs *fakeStore, capacity int) (*Engine, *fakeBoardSource, *fakeRunner) {
	t.Helper()

	hw := newFakeBoardSource("board0", "board1")
	eng, err := New(Options{
		Boards: []hardware.Config{
			{ID: "board0", Sensors: []int{1, 2, 3}},
			{ID: "board1", Sensors: []int{4, 5, 6}},
		},
		BufferCapacity: capacity,
		OpenStore: func(_ context.Context, start time.Time) (Store, string, error) {
			return fs, filepath.Join(t.TempDir(), SessionFilename(start)), nil
		},
		SiteID:   "rig-test",
		Hardware: hw,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	runner := &fakeRunner{}
	eng.SetRunner(runner)
	eng.Start()
	t.Cleanup(func() {
		if err := eng.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return eng, hw, runner
}

// sensorReadings builds n consecutive readings for one sensor, 20ms
// apart, values counting up from base.
func sensorReadings(sensor int, start time.Time, n int, base uint16) []hardware.Reading {
	out := make([]hardware.Reading, n)
	for i := range out {
		out[i] = hardware.Reading{
			Sensor:    sensor,
			Channel:   1,
			Value:     base + uint16(i), //nolint:gosec // Small test values
			Timestamp: start.Add(time.Duration(i) * 20 * time.Millisecond),
		}
	}
	return out
}

// feed pushes readings one at a time so every sample lands even when the
// ingest channel is small.
func feed(t *testing.T, eng *Engine, boardID string, readings []hardware.Reading) {
	t.Helper()

	for _, r := range readings {
		one := []hardware.Reading{r}
		deadline := time.Now().Add(2 * time.Second)
		for {
			select {
			case eng.ingest <- ingestBatch{boardID: boardID, readings: one}:
			default:
				if time.Now().After(deadline) {
					t.Fatalf("ingest channel full for sensor %d", r.Sensor)
				}
				time.Sleep(time.Millisecond)
				continue
			}
			break
		}
	}
}
