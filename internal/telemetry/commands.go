package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/cliqr-core/internal/infrastructure/logging"
	"github.com/nerrad567/cliqr-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/cliqr-core/internal/recording"
)

// commandTimeout bounds one command execution. Session stop is the slowest
// operation: it flushes every recording sensor and drains the writer.
const commandTimeout = 30 * time.Second

// Controller is the slice of the recording engine the command adapter
// drives. Every operation the HTTP API exposes is reachable here too.
type Controller interface {
	SessionStart(ctx context.Context) error
	SessionStop(ctx context.Context) error
	SensorStart(ctx context.Context, sensor int) error
	SensorStop(ctx context.Context, sensor int) error
	SetVolume(ctx context.Context, sensor int, phase recording.VolumePhase, value float64) error
	SetWeight(ctx context.Context, sensor int, value float64) error
	SetSubject(ctx context.Context, sensor int, subject string) error
	SetComment(ctx context.Context, text string) error
	RetryWrites(ctx context.Context) error
}

// commandRequest is the JSON payload accepted on command topics. Fields
// are read per command; extras are ignored.
type commandRequest struct {
	RequestID string  `json:"request_id,omitempty"`
	Sensor    int     `json:"sensor,omitempty"`
	Phase     string  `json:"phase,omitempty"`
	Value     float64 `json:"value,omitempty"`
	Subject   string  `json:"subject,omitempty"`
	Comment   string  `json:"comment,omitempty"`
}

// commandAck is published on the ack topic for requests that carry a
// request_id.
type commandAck struct {
	RequestID   string    `json:"request_id"`
	OK          bool      `json:"ok"`
	Error       string    `json:"error,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}

// CommandsOptions holds configuration for creating a Commands adapter.
type CommandsOptions struct {
	// Broker is the connected MQTT client.
	Broker Broker

	// Engine receives the decoded commands.
	Engine Controller

	// QoS for the command subscription and acks.
	QoS byte

	// Logger is optional structured logger.
	Logger *logging.Logger
}

// Commands bridges MQTT command topics onto the recording engine.
//
// Topic scheme: cliqr/command/{scope}/{action} with a JSON body. A request
// carrying a request_id gets an acknowledgement on cliqr/ack/{request_id}
// once the command has been applied or refused.
type Commands struct {
	broker Broker
	engine Controller
	qos    byte

	logger   *logging.Logger
	loggerMu sync.RWMutex
}

// NewCommands creates a command adapter. Call Subscribe to start
// receiving.
func NewCommands(opts CommandsOptions) (*Commands, error) {
	if opts.Broker == nil {
		return nil, fmt.Errorf("broker is required")
	}
	if opts.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}

	return &Commands{
		broker: opts.Broker,
		engine: opts.Engine,
		qos:    opts.QoS,
		logger: opts.Logger,
	}, nil
}

// Subscribe registers the command handler on the broker.
func (c *Commands) Subscribe() error {
	return c.broker.Subscribe(mqtt.Topics{}.AllCommands(), c.qos, c.handle)
}

// handle decodes and executes one command message.
func (c *Commands) handle(topic string, payload []byte) error {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 {
		return fmt.Errorf("malformed command topic %q", topic)
	}
	scope, action := parts[2], parts[3]

	var req commandRequest
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &req); err != nil {
			return fmt.Errorf("decoding command %s/%s: %w", scope, action, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	err := c.dispatch(ctx, scope, action, req)
	if err != nil {
		c.logInfo("command refused", "scope", scope, "action", action, "reason", err.Error())
	}

	c.ack(req.RequestID, err)
	return err
}

// dispatch maps one scope/action pair onto the engine.
func (c *Commands) dispatch(ctx context.Context, scope, action string, req commandRequest) error {
	switch scope + "/" + action {
	case "session/start":
		return c.engine.SessionStart(ctx)
	case "session/stop":
		return c.engine.SessionStop(ctx)
	case "session/comment":
		return c.engine.SetComment(ctx, req.Comment)
	case "session/retry":
		return c.engine.RetryWrites(ctx)
	case "sensor/start":
		return c.engine.SensorStart(ctx, req.Sensor)
	case "sensor/stop":
		return c.engine.SensorStop(ctx, req.Sensor)
	case "sensor/volume":
		return c.engine.SetVolume(ctx, req.Sensor, recording.VolumePhase(req.Phase), req.Value)
	case "sensor/weight":
		return c.engine.SetWeight(ctx, req.Sensor, req.Value)
	case "sensor/subject":
		return c.engine.SetSubject(ctx, req.Sensor, req.Subject)
	default:
		return fmt.Errorf("unknown command %s/%s", scope, action)
	}
}

// ack publishes the outcome for requests that asked for one.
func (c *Commands) ack(requestID string, cmdErr error) {
	if requestID == "" {
		return
	}

	ack := commandAck{
		RequestID:   requestID,
		OK:          cmdErr == nil,
		CompletedAt: time.Now().UTC(),
	}
	if cmdErr != nil {
		ack.Error = cmdErr.Error()
	}

	payload, err := json.Marshal(ack)
	if err != nil {
		c.logError("marshalling ack", err, "request_id", requestID)
		return
	}

	if err := c.broker.Publish(mqtt.Topics{}.Ack(requestID), payload, c.qos, false); err != nil {
		c.logError("publishing ack", err, "request_id", requestID)
	}
}

// SetLogger sets the logger for the command adapter.
func (c *Commands) SetLogger(logger *logging.Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// logInfo logs an info message if a logger is set.
func (c *Commands) logInfo(msg string, args ...any) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()

	if logger != nil {
		logger.Info(msg, args...)
	}
}

// logError logs an error message if a logger is set.
func (c *Commands) logError(msg string, err error, args ...any) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, append([]any{"error", err}, args...)...)
	}
}
