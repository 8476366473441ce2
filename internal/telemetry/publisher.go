package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/cliqr-core/internal/hardware"
	"github.com/nerrad567/cliqr-core/internal/infrastructure/logging"
	"github.com/nerrad567/cliqr-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/cliqr-core/internal/recording"
)

// Queue sizes for the publisher's inbound channels. Events are rare;
// samples arrive at the full acquisition rate and are droppable.
const (
	eventQueueSize  = 64
	sampleQueueSize = 256
)

// Broker is the slice of the MQTT client the telemetry layer needs.
type Broker interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	PublishRetained(topic string, payload []byte) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// PublisherOptions holds configuration for creating a Publisher.
type PublisherOptions struct {
	// Broker is the connected MQTT client.
	Broker Broker

	// QoS for status and event publishes. Live samples always go out at
	// QoS 0; a lost reading is stale by the time it could be resent.
	QoS byte

	// Interval between periodic re-publishes of the retained status.
	// Changes publish immediately; the ticker covers subscribers that
	// missed the retained message during a broker restart.
	Interval time.Duration

	// Logger is optional structured logger.
	Logger *logging.Logger
}

// liveSample is the wire form of one reading on a sensor's live topic.
type liveSample struct {
	Sensor     int       `json:"sensor"`
	Value      uint16    `json:"value"`
	CapturedAt time.Time `json:"captured_at"`
}

// Publisher mirrors engine state onto the MQTT surface. Feed methods never
// block: they enqueue onto buffered channels and drop when the broker
// cannot keep up, which keeps the engine loop independent of broker
// health.
type Publisher struct {
	broker   Broker
	qos      byte
	interval time.Duration

	latest  atomic.Pointer[recording.Snapshot]
	kick    chan struct{}
	events  chan recording.Event
	samples chan liveSample

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   *logging.Logger
	loggerMu sync.RWMutex
}

// NewPublisher creates a publisher. Call Start to begin publishing.
func NewPublisher(opts PublisherOptions) (*Publisher, error) {
	if opts.Broker == nil {
		return nil, fmt.Errorf("broker is required")
	}
	if opts.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive")
	}

	return &Publisher{
		broker:   opts.Broker,
		qos:      opts.QoS,
		interval: opts.Interval,
		kick:     make(chan struct{}, 1),
		events:   make(chan recording.Event, eventQueueSize),
		samples:  make(chan liveSample, sampleQueueSize),
		done:     make(chan struct{}),
		logger:   opts.Logger,
	}, nil
}

// Start launches the publishing loop.
func (p *Publisher) Start() {
	p.wg.Add(1)
	go p.run()
}

// Close stops the publishing loop. Idempotent.
func (p *Publisher) Close() {
	p.stopOnce.Do(func() {
		close(p.done)
	})
	p.wg.Wait()
}

// PublishSnapshot records the latest snapshot and nudges the loop.
// Intermediate snapshots may be coalesced; the newest always wins.
func (p *Publisher) PublishSnapshot(snap recording.Snapshot) {
	p.latest.Store(&snap)
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

// PublishEvent enqueues one recording event.
func (p *Publisher) PublishEvent(ev recording.Event) {
	select {
	case p.events <- ev:
	default:
		p.logInfo("event publish dropped", "kind", ev.Kind)
	}
}

// PublishSample enqueues one live reading. Drops are silent: the live
// feed sheds load when the broker falls behind, and the session store
// has the authoritative copy.
func (p *Publisher) PublishSample(r hardware.Reading) {
	select {
	case p.samples <- liveSample{Sensor: r.Sensor, Value: r.Value, CapturedAt: r.Timestamp}:
	default:
	}
}

// run is the publishing loop.
func (p *Publisher) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			p.publishStatus()
		case <-p.kick:
			p.publishStatus()
		case ev := <-p.events:
			p.publishEvent(ev)
		case s := <-p.samples:
			p.publishSample(s)
		}
	}
}

// publishStatus publishes the latest snapshot as the retained status.
func (p *Publisher) publishStatus() {
	snap := p.latest.Load()
	if snap == nil {
		return
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		p.logError("marshalling status snapshot", err)
		return
	}

	if err := p.broker.PublishRetained(mqtt.Topics{}.Status(), payload); err != nil {
		if !errors.Is(err, mqtt.ErrNotConnected) {
			p.logError("publishing status", err)
		}
	}
}

// publishEvent publishes one event to its kind topic.
func (p *Publisher) publishEvent(ev recording.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		p.logError("marshalling event", err, "kind", ev.Kind)
		return
	}

	if err := p.broker.Publish(mqtt.Topics{}.Event(ev.Kind), payload, p.qos, false); err != nil {
		if !errors.Is(err, mqtt.ErrNotConnected) {
			p.logError("publishing event", err, "kind", ev.Kind)
		}
	}
}

// publishSample publishes one live reading at QoS 0. Failures are not
// logged; during a broker outage this path runs at the acquisition rate.
func (p *Publisher) publishSample(s liveSample) {
	payload, err := json.Marshal(s)
	if err != nil {
		return
	}

	//nolint:errcheck // Live readings are fire-and-forget.
	p.broker.Publish(mqtt.Topics{}.SensorLive(s.Sensor), payload, 0, false)
}

// SetLogger sets the logger for the publisher.
func (p *Publisher) SetLogger(logger *logging.Logger) {
	p.loggerMu.Lock()
	p.logger = logger
	p.loggerMu.Unlock()
}

// logInfo logs an info message if a logger is set.
func (p *Publisher) logInfo(msg string, args ...any) {
	p.loggerMu.RLock()
	logger := p.logger
	p.loggerMu.RUnlock()

	if logger != nil {
		logger.Info(msg, args...)
	}
}

// logError logs an error message if a logger is set.
func (p *Publisher) logError(msg string, err error, args ...any) {
	p.loggerMu.RLock()
	logger := p.logger
	p.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, append([]any{"error", err}, args...)...)
	}
}
