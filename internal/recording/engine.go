package recording

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/cliqr-core/internal/hardware"
	"github.com/nerrad567/cliqr-core/internal/infrastructure/logging"
)

const (
	// defaultRecentSize is the per-sensor live window when Options leaves
	// RecentSize unset.
	defaultRecentSize = 250

	// defaultEventLogSize is the in-memory event log tail when Options
	// leaves EventLogSize unset.
	defaultEventLogSize = 200

	// ingestSlack sizes the ingest channel per board so acquisition never
	// stalls on a busy coordination loop; overflow is dropped instead.
	ingestSlack = 4

	// drainTimeout bounds how long a stop or retry waits for queued
	// writes before giving up on them.
	drainTimeout = 10 * time.Second

	// republishInterval refreshes the published snapshot during a session
	// so elapsed times and buffer levels stay current downstream.
	republishInterval = time.Second
)

// BoardStatusSource reports board connectivity. Satisfied by
// *hardware.Manager.
type BoardStatusSource interface {
	Statuses() map[string]hardware.Status
}

// Runner is the acquisition loop the engine drives at session boundaries.
// Start and Stop are called from the coordination loop; Stop must not
// return until in-flight reads have settled.
type Runner interface {
	Start()
	Stop()
}

// Options configures an Engine.
type Options struct {
	// Boards is the rack layout, one entry per acquisition board.
	Boards []hardware.Config

	// BufferCapacity is the per-sensor buffer size; a full buffer is
	// flushed to the writer and cleared.
	BufferCapacity int

	// OpenStore creates the per-session store.
	OpenStore StoreOpener

	// SiteID identifies the rig in session files.
	SiteID string

	// Hardware reports board connectivity for snapshots and the
	// session-start check.
	Hardware BoardStatusSource

	// RecentSize overrides the per-sensor live sample window.
	RecentSize int

	// EventLogSize overrides the in-memory session event log tail.
	EventLogSize int

	// Logger is optional structured logger.
	Logger *logging.Logger

	// OnSnapshot is called with each newly published snapshot. Optional;
	// runs on the coordination loop and must not block.
	OnSnapshot func(Snapshot)

	// OnEvent mirrors session events to live consumers as they are
	// queued for persistence. Optional; must not block.
	OnEvent func(Event)

	// OnSample observes every routed reading regardless of recording
	// state, for live mirrors. Optional; must not block.
	OnSample func(boardID string, r hardware.Reading)
}

// Engine owns all recording state: the session lifecycle, per-sensor
// cycles and buffers, and the writer for the open session file.
//
// All state lives on a single coordination goroutine. Public methods send
// commands to it and wait for the reply, so callers from any goroutine see
// serialised, consistent transitions. See the package documentation for
// the state machine.
type Engine struct {
	boards     []hardware.Config
	bufferCap  int
	openStore  StoreOpener
	siteID     string
	hw         BoardStatusSource
	onSnapshot func(Snapshot)
	onEvent    func(Event)
	onSample   func(string, hardware.Reading)

	cmds     chan command
	ingest   chan ingestBatch
	hwEvents chan hwEvent
	faults   chan error

	current atomic.Pointer[Snapshot]

	recentMu sync.Mutex
	recent   map[int]*recentRing

	eventsMu sync.Mutex
	eventLog *eventRing

	runnerMu sync.Mutex
	runner   Runner

	// Coordination-loop state. Only run() and the command closures it
	// executes may touch these fields.
	state      SessionState
	sessionID  string
	file       string
	startedAt  time.Time
	comment    string
	writeFault string
	writer     *Writer
	sensors    map[int]*sensorRuntime
	order      []int

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	logger   *logging.Logger
	loggerMu sync.RWMutex
}

// sensorRuntime is the loop-owned state for one sensor.
type sensorRuntime struct {
	id      int
	boardID string
	channel int

	state      SensorState
	cycle      int
	cycleStart time.Time
	subject    string
	startVol   float64
	stopVol    float64
	weight     float64

	buf *Buffer
}

// command is one operation executed on the coordination loop.
type command struct {
	run   func() error
	reply chan error
}

// ingestBatch carries one board read into the loop.
type ingestBatch struct {
	boardID  string
	readings []hardware.Reading
}

// hwEvent carries a board connectivity change or failure declaration.
type hwEvent struct {
	boardID string
	status  hardware.Status
	failed  bool
}

// New creates an engine for the given rack layout.
// Call Start to begin processing commands.
func New(opts Options) (*Engine, error) {
	if len(opts.Boards) == 0 {
		return nil, fmt.Errorf("at least one board is required")
	}
	if opts.BufferCapacity <= 0 {
		return nil, fmt.Errorf("buffer capacity must be positive")
	}
	if opts.OpenStore == nil {
		return nil, fmt.Errorf("store opener is required")
	}
	if opts.SiteID == "" {
		return nil, fmt.Errorf("site id is required")
	}
	if opts.Hardware == nil {
		return nil, fmt.Errorf("hardware status source is required")
	}

	recentSize := opts.RecentSize
	if recentSize <= 0 {
		recentSize = defaultRecentSize
	}
	eventLogSize := opts.EventLogSize
	if eventLogSize <= 0 {
		eventLogSize = defaultEventLogSize
	}

	e := &Engine{
		boards:     opts.Boards,
		bufferCap:  opts.BufferCapacity,
		openStore:  opts.OpenStore,
		siteID:     opts.SiteID,
		hw:         opts.Hardware,
		onSnapshot: opts.OnSnapshot,
		onEvent:    opts.OnEvent,
		onSample:   opts.OnSample,
		cmds:       make(chan command),
		ingest:     make(chan ingestBatch, ingestSlack*len(opts.Boards)),
		hwEvents:   make(chan hwEvent, 2*len(opts.Boards)),
		faults:     make(chan error, 1),
		recent:     make(map[int]*recentRing),
		eventLog:   newEventRing(eventLogSize),
		state:      SessionIdle,
		sensors:    make(map[int]*sensorRuntime),
		done:       make(chan struct{}),
		logger:     opts.Logger,
	}

	for _, board := range opts.Boards {
		for i, id := range board.Sensors {
			if _, dup := e.sensors[id]; dup {
				return nil, fmt.Errorf("sensor %d appears on more than one board", id)
			}
			e.sensors[id] = &sensorRuntime{
				id:      id,
				boardID: board.ID,
				channel: hardware.ElectrodeChannel(i),
				state:   SensorIdle,
				buf:     NewBuffer(opts.BufferCapacity),
			}
			e.recent[id] = newRecentRing(recentSize)
			e.order = append(e.order, id)
		}
	}
	sort.Ints(e.order)

	snap := e.buildSnapshot()
	e.current.Store(&snap)

	return e, nil
}

// SetRunner wires the acquisition loop the engine starts and stops at
// session boundaries. Must be set before the first session starts.
func (e *Engine) SetRunner(r Runner) {
	e.runnerMu.Lock()
	e.runner = r
	e.runnerMu.Unlock()
}

// Start launches the coordination loop.
func (e *Engine) Start() {
	e.wg.Add(1)
	go e.run()
}

// Close stops an active session so the open file is finished cleanly,
// then shuts the coordination loop down. Safe to call more than once.
func (e *Engine) Close() error {
	var stopErr error
	if e.Snapshot().Session.State == SessionActive {
		ctx, cancel := context.WithTimeout(context.Background(), drainTimeout+jobTimeout)
		stopErr = e.SessionStop(ctx)
		cancel()
		if IsStateError(stopErr) {
			stopErr = nil
		}
	}

	e.stopOnce.Do(func() {
		close(e.done)
		e.wg.Wait()
	})
	return stopErr
}

// SetLogger sets the logger for the engine.
func (e *Engine) SetLogger(logger *logging.Logger) {
	e.loggerMu.Lock()
	e.logger = logger
	e.loggerMu.Unlock()
}

// run is the coordination loop. It is the only goroutine that touches
// session and sensor state.
func (e *Engine) run() {
	defer e.wg.Done()

	ticker := time.NewTicker(republishInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.done:
			return
		case cmd := <-e.cmds:
			cmd.reply <- cmd.run()
		case batch := <-e.ingest:
			e.handleIngest(batch)
		case ev := <-e.hwEvents:
			e.handleHardwareEvent(ev)
		case err := <-e.faults:
			e.handleWriteFault(err)
		case <-ticker.C:
			if e.state == SessionActive {
				e.publish()
			}
		}
	}
}

// do executes a command on the coordination loop and waits for its reply.
func (e *Engine) do(ctx context.Context, run func() error) error {
	cmd := command{run: run, reply: make(chan error, 1)}

	select {
	case e.cmds <- cmd:
	case <-e.done:
		return ErrEngineClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-cmd.reply:
		return err
	case <-e.done:
		return ErrEngineClosed
	}
}

// sessionStart opens a new session file, records the layout, and starts
// acquisition.
func (e *Engine) sessionStart(ctx context.Context) error {
	if e.state == SessionActive {
		return ErrSessionActive
	}
	if !e.anyBoardConnected() {
		return ErrNoBoardsConnected
	}

	start := time.Now()
	store, path, err := e.openStore(ctx, start)
	if err != nil {
		return fmt.Errorf("opening session store: %w", err)
	}

	info := SessionInfo{ID: uuid.NewString(), SiteID: e.siteID, StartedAt: start}
	if err := store.Begin(ctx, info, e.bindings()); err != nil {
		store.Close() //nolint:errcheck // Best effort cleanup on error path
		return fmt.Errorf("beginning session: %w", err)
	}

	e.writer = NewWriter(store, func(err error) {
		select {
		case e.faults <- err:
		default:
		}
	})
	e.loggerMu.RLock()
	e.writer.SetLogger(e.logger)
	e.loggerMu.RUnlock()

	e.state = SessionActive
	e.sessionID = info.ID
	e.file = path
	e.startedAt = start
	e.comment = ""
	e.writeFault = ""
	for _, sr := range e.sensors {
		sr.cycle = 0
		sr.cycleStart = time.Time{}
		sr.buf = NewBuffer(e.bufferCap)
	}

	e.emit(Event{OccurredAt: start, Kind: EventSessionStarted})
	e.startRunner()
	e.publish()

	e.logInfo("session started", "session_id", info.ID, "file", path)
	return nil
}

// sessionStop walks the stop cascade: every recording sensor is stopped
// with its current metadata, the comment is persisted, queued writes are
// drained, and only then is acquisition cancelled and the file closed.
func (e *Engine) sessionStop(ctx context.Context) error {
	if e.state != SessionActive {
		return ErrSessionIdle
	}

	now := time.Now()

	for _, id := range e.order {
		sr := e.sensors[id]
		if sr.state == SensorRecording {
			e.stopSensor(sr, now)
		}
	}

	e.emit(Event{OccurredAt: now, Kind: EventSessionStopped})
	if err := e.writer.EnqueueFinish(now, e.comment); err != nil {
		e.logError("queueing session finish", err)
	}

	// A parked writer gets one more attempt before its queue is abandoned.
	drainCtx, cancel := context.WithTimeout(ctx, drainTimeout)
	e.writer.Retry()
	drainErr := e.writer.Drain(drainCtx)
	cancel()
	if drainErr != nil {
		e.writeFault = drainErr.Error()
		e.logError("session stopped with unpersisted writes", drainErr,
			"pending", e.writer.Pending())
	}

	e.stopRunner()

	if err := e.writer.Close(); err != nil {
		e.logError("closing session store", err)
	}
	e.writer = nil

	file := e.file
	e.state = SessionIdle
	e.sessionID = ""
	e.file = ""
	e.startedAt = time.Time{}
	e.publish()

	e.logInfo("session stopped", "file", file)
	return nil
}

// sensorStart begins a new recording cycle for the sensor.
func (e *Engine) sensorStart(id int) error {
	if e.state != SessionActive {
		return ErrSessionIdle
	}
	if e.writeFault != "" {
		return ErrSessionFault
	}
	sr, ok := e.sensors[id]
	if !ok {
		return ErrUnknownSensor
	}

	switch sr.state {
	case SensorRecording:
		return ErrAlreadyRecording
	case SensorError:
		return ErrSensorFaulted
	case SensorIdle:
	}
	if e.hw.Statuses()[sr.boardID] != hardware.StatusConnected {
		return ErrBoardUnavailable
	}

	now := time.Now()
	sr.cycle++
	sr.cycleStart = now
	sr.state = SensorRecording

	if err := e.writer.EnqueueBeginCycle(sr.id, sr.cycle, sr.subject, now); err != nil {
		e.logError("queueing cycle start", err, "sensor", sr.id)
	}
	e.emit(Event{OccurredAt: now, Kind: EventCycleStarted, Sensor: sr.id, BoardID: sr.boardID,
		Detail: fmt.Sprintf("cycle %d", sr.cycle)})
	e.publish()

	e.logInfo("cycle started", "sensor", sr.id, "cycle", sr.cycle)
	return nil
}

// sensorStop ends the sensor's current cycle with its held metadata. It
// works even with a write fault latched: the stop edge queues behind the
// parked writer and survives a later retry.
func (e *Engine) sensorStop(id int) error {
	if e.state != SessionActive {
		return ErrSessionIdle
	}
	sr, ok := e.sensors[id]
	if !ok {
		return ErrUnknownSensor
	}
	if sr.state != SensorRecording {
		return ErrNotRecording
	}

	e.stopSensor(sr, time.Now())
	e.publish()

	e.logInfo("cycle stopped", "sensor", sr.id, "cycle", sr.cycle)
	return nil
}

// setVolume updates one of the sensor's held volume fields.
func (e *Engine) setVolume(id int, phase VolumePhase, value float64) error {
	sr, ok := e.sensors[id]
	if !ok {
		return ErrUnknownSensor
	}
	if value < 0 {
		return ErrInvalidValue
	}

	switch phase {
	case PhaseStart:
		sr.startVol = value
	case PhaseStop:
		sr.stopVol = value
	default:
		return ErrInvalidPhase
	}
	e.publish()
	return nil
}

// setWeight updates the sensor's held weight field.
func (e *Engine) setWeight(id int, value float64) error {
	sr, ok := e.sensors[id]
	if !ok {
		return ErrUnknownSensor
	}
	if value < 0 {
		return ErrInvalidValue
	}

	sr.weight = value
	e.publish()
	return nil
}

// setSubject updates the sensor's subject; it is captured into cycle
// metadata at the next cycle start.
func (e *Engine) setSubject(id int, subject string) error {
	sr, ok := e.sensors[id]
	if !ok {
		return ErrUnknownSensor
	}

	sr.subject = subject
	e.publish()
	return nil
}

// setComment replaces the session comment, persisted when the session
// stops.
func (e *Engine) setComment(text string) error {
	if e.state != SessionActive {
		return ErrSessionIdle
	}

	e.comment = text
	e.emit(Event{OccurredAt: time.Now(), Kind: EventCommentSet})
	e.publish()
	return nil
}

// retryWrites resumes a parked writer and waits for its queue to clear.
// On success acquisition restarts and the fault clears.
func (e *Engine) retryWrites(ctx context.Context) error {
	if e.state != SessionActive {
		return ErrSessionIdle
	}
	if e.writeFault == "" {
		return nil
	}

	drainCtx, cancel := context.WithTimeout(ctx, drainTimeout)
	e.writer.Retry()
	drainErr := e.writer.Drain(drainCtx)
	cancel()

	if drainErr != nil {
		e.writeFault = drainErr.Error()
		e.publish()
		return fmt.Errorf("%w: %v", ErrSessionFault, drainErr)
	}

	e.writeFault = ""
	e.emit(Event{OccurredAt: time.Now(), Kind: EventWriteRecovered})
	e.startRunner()
	e.publish()

	e.logInfo("write fault cleared, acquisition resumed")
	return nil
}

// stopSensor flushes the sensor's partial buffer and writes the cycle's
// stop edge from the currently held metadata. Caller republishes.
func (e *Engine) stopSensor(sr *sensorRuntime, now time.Time) {
	e.flush(sr)

	upd := CycleUpdate{
		StopTime: now,
		StartVol: sr.startVol,
		StopVol:  sr.stopVol,
		Weight:   sr.weight,
	}
	if err := e.writer.EnqueueFinishCycle(sr.id, sr.cycle, upd); err != nil {
		e.logError("queueing cycle stop", err, "sensor", sr.id)
	}

	sr.state = SensorIdle
	e.emit(Event{OccurredAt: now, Kind: EventCycleStopped, Sensor: sr.id, BoardID: sr.boardID,
		Detail: fmt.Sprintf("cycle %d", sr.cycle)})
}

// handleIngest routes one board read: every reading feeds the live window
// and sample mirror; recording sensors also buffer it, flushing at
// capacity.
func (e *Engine) handleIngest(batch ingestBatch) {
	for _, r := range batch.readings {
		sr, ok := e.sensors[r.Sensor]
		if !ok {
			continue
		}

		sample := Sample{CapturedAt: r.Timestamp, Value: r.Value}

		e.recentMu.Lock()
		e.recent[r.Sensor].append(sample)
		e.recentMu.Unlock()

		if e.onSample != nil {
			e.onSample(batch.boardID, r)
		}

		if e.state != SessionActive || sr.state != SensorRecording {
			continue
		}
		if full := sr.buf.Append(sample); full {
			e.flush(sr)
		}
	}
}

// flush hands the sensor's buffered samples to the writer.
func (e *Engine) flush(sr *sensorRuntime) {
	batch := sr.buf.Take()
	if len(batch) == 0 {
		return
	}
	if err := e.writer.EnqueueSamples(sr.boardID, sr.id, batch); err != nil {
		e.logError("queueing sample batch", err, "sensor", sr.id, "samples", len(batch))
	}
}

// handleHardwareEvent reacts to board failures and reconnections.
func (e *Engine) handleHardwareEvent(ev hwEvent) {
	now := time.Now()

	switch {
	case ev.failed:
		e.faultBoard(ev.boardID, now)
	case ev.status == hardware.StatusConnected:
		e.recoverBoard(ev.boardID, now)
	}
	e.publish()
}

// faultBoard parks every sensor on the board in the error state, flushing
// recording sensors best-effort first. Their open cycles keep whatever
// stop fields were written, which is none.
func (e *Engine) faultBoard(boardID string, now time.Time) {
	faulted := false
	for _, id := range e.order {
		sr := e.sensors[id]
		if sr.boardID != boardID || sr.state == SensorError {
			continue
		}
		if sr.state == SensorRecording && e.state == SessionActive {
			e.flush(sr)
			e.emit(Event{OccurredAt: now, Kind: EventSensorFault, Sensor: sr.id, BoardID: boardID,
				Detail: fmt.Sprintf("cycle %d interrupted", sr.cycle)})
		}
		sr.state = SensorError
		faulted = true
	}

	if faulted {
		e.emit(Event{OccurredAt: now, Kind: EventBoardFault, BoardID: boardID})
		e.logInfo("board failed, sensors parked", "board_id", boardID)
	}
}

// recoverBoard releases the board's sensors from the error state after an
// explicit reconnect.
func (e *Engine) recoverBoard(boardID string, now time.Time) {
	recovered := false
	for _, id := range e.order {
		sr := e.sensors[id]
		if sr.boardID != boardID || sr.state != SensorError {
			continue
		}
		sr.state = SensorIdle
		recovered = true
	}

	if recovered {
		e.emit(Event{OccurredAt: now, Kind: EventBoardRecovered, BoardID: boardID})
		e.logInfo("board recovered, sensors released", "board_id", boardID)
	}
}

// handleWriteFault latches a writer fault and halts acquisition. Buffered
// and queued data stays in memory for retry.
func (e *Engine) handleWriteFault(err error) {
	e.writeFault = err.Error()
	e.stopRunner()
	e.emit(Event{OccurredAt: time.Now(), Kind: EventWriteFault, Detail: err.Error()})
	e.publish()

	e.logError("write fault latched, acquisition halted", err)
}

// emit queues an event for persistence and mirrors it live. Events raised
// outside a session are mirrored and logged but not persisted.
func (e *Engine) emit(ev Event) {
	if e.writer != nil {
		if err := e.writer.EnqueueEvent(ev); err != nil {
			e.logError("queueing event", err, "kind", ev.Kind)
		}
	}

	e.eventsMu.Lock()
	e.eventLog.append(ev)
	e.eventsMu.Unlock()

	if e.onEvent != nil {
		e.onEvent(ev)
	}
}

// publish stores and delivers a fresh snapshot.
func (e *Engine) publish() {
	snap := e.buildSnapshot()
	e.current.Store(&snap)
	if e.onSnapshot != nil {
		e.onSnapshot(snap)
	}
}

// buildSnapshot assembles an immutable view of the current state.
func (e *Engine) buildSnapshot() Snapshot {
	session := SessionStatus{
		State:      e.state,
		Comment:    e.comment,
		WriteFault: e.writeFault,
	}
	if e.state == SessionActive {
		session.ID = e.sessionID
		session.File = e.file
		started := e.startedAt
		session.StartedAt = &started
	}

	sensors := make([]SensorStatus, 0, len(e.order))
	for _, id := range e.order {
		sr := e.sensors[id]
		st := SensorStatus{
			ID:       sr.id,
			BoardID:  sr.boardID,
			Channel:  sr.channel,
			State:    sr.state,
			Cycle:    sr.cycle,
			Subject:  sr.subject,
			StartVol: sr.startVol,
			StopVol:  sr.stopVol,
			Weight:   sr.weight,
			Buffered: sr.buf.Len(),
		}
		if sr.state == SensorRecording && !sr.cycleStart.IsZero() {
			cycleStart := sr.cycleStart
			st.CycleStartedAt = &cycleStart
		}
		sensors = append(sensors, st)
	}

	statuses := e.hw.Statuses()
	boards := make([]BoardStatus, 0, len(e.boards))
	for _, b := range e.boards {
		status, ok := statuses[b.ID]
		if !ok {
			status = hardware.StatusDisconnected
		}
		boards = append(boards, BoardStatus{
			ID:      b.ID,
			Status:  status,
			Sensors: append([]int(nil), b.Sensors...),
		})
	}

	return Snapshot{
		Session:     session,
		Sensors:     sensors,
		Boards:      boards,
		GeneratedAt: time.Now(),
	}
}

// bindings returns the rack map recorded at session start.
func (e *Engine) bindings() []SensorBinding {
	out := make([]SensorBinding, 0, len(e.order))
	for _, id := range e.order {
		sr := e.sensors[id]
		out = append(out, SensorBinding{Sensor: sr.id, BoardID: sr.boardID, Channel: sr.channel})
	}
	return out
}

// anyBoardConnected reports whether at least one board is connected.
func (e *Engine) anyBoardConnected() bool {
	for _, status := range e.hw.Statuses() {
		if status == hardware.StatusConnected {
			return true
		}
	}
	return false
}

func (e *Engine) startRunner() {
	e.runnerMu.Lock()
	r := e.runner
	e.runnerMu.Unlock()
	if r != nil {
		r.Start()
	}
}

func (e *Engine) stopRunner() {
	e.runnerMu.Lock()
	r := e.runner
	e.runnerMu.Unlock()
	if r != nil {
		r.Stop()
	}
}

// logInfo logs an info message if a logger is set.
func (e *Engine) logInfo(msg string, args ...any) {
	e.loggerMu.RLock()
	logger := e.logger
	e.loggerMu.RUnlock()

	if logger != nil {
		logger.Info(msg, args...)
	}
}

// logError logs an error message if a logger is set.
func (e *Engine) logError(msg string, err error, args ...any) {
	e.loggerMu.RLock()
	logger := e.logger
	e.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, append([]any{"error", err}, args...)...)
	}
}
