package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/cliqr-core/internal/infrastructure/config"
)

// Client is the recorder's link to the bench broker, wrapping
// paho.mqtt.golang with the behaviour the rig needs: a retained
// presence topic with an LWT so a crashed recorder cannot pass for a
// quiet one, subscriptions that survive reconnects, and panic
// isolation around inbound command handlers.
//
// All methods are safe for concurrent use. The zero value is a
// permanently disconnected client; every operation on it returns
// ErrNotConnected.
type Client struct {
	paho pahomqtt.Client
	cfg  config.MQTTConfig

	// mu guards connection state and the optional hooks. The hooks are
	// set once during startup, so contention is not a concern.
	mu        sync.RWMutex
	connected bool
	onUp      func()
	onDown    func(error)
	logger    Logger

	// subs remembers every live subscription so it can be replayed
	// after a reconnect. Clean sessions mean the broker forgets us on
	// every drop.
	subMu sync.RWMutex
	subs  map[string]subscription
}

// Logger receives handler errors and recovered panics. Satisfied by
// logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// MessageHandler is the callback signature for inbound messages. Paho
// invokes handlers on its own goroutines; a handler that blocks stalls
// delivery on its topic, so long work belongs elsewhere. A returned
// error is logged and the message is still acknowledged.
type MessageHandler func(topic string, payload []byte) error

// Connect dials the broker and establishes the recorder's presence.
//
// The connection carries a Last Will and Testament on the system status
// topic: if the recorder dies without a goodbye, the broker publishes
// the offline notice on its behalf. Reconnection is automatic with
// exponential backoff, and tracked subscriptions are replayed each time
// the link comes back.
//
// Parameters:
//   - cfg: MQTT section of the rig configuration
//
// Returns:
//   - *Client: connected client, already announced as online
//   - error: ErrConnectionFailed if the broker cannot be reached in time
func Connect(cfg config.MQTTConfig) (*Client, error) {
	opts := buildClientOptions(cfg)
	configureLWT(opts, cfg.Broker.ClientID)

	c := &Client{
		cfg:  cfg,
		subs: make(map[string]subscription),
	}

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.brokerUp()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.brokerDown(err)
	})

	c.paho = pahomqtt.NewClient(opts)
	if err := waitToken(c.paho.Connect(), defaultConnectTimeout, ErrConnectionFailed); err != nil {
		return nil, err
	}

	// The OnConnect callback runs asynchronously and may not have fired
	// yet. Mark the link up here so IsConnected holds as soon as
	// Connect returns; the callback still handles replay and presence.
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()

	return c, nil
}

// brokerUp runs on every successful (re)connection.
func (c *Client) brokerUp() {
	c.mu.Lock()
	c.connected = true
	hook := c.onUp
	c.mu.Unlock()

	c.replaySubscriptions()
	c.announcePresence(buildOnlinePayload(c.cfg.Broker.ClientID))

	if hook != nil {
		hook()
	}
}

// brokerDown runs when paho loses the link. Reconnection is paho's
// job; this only updates state and informs the daemon.
func (c *Client) brokerDown(err error) {
	c.mu.Lock()
	c.connected = false
	hook := c.onDown
	c.mu.Unlock()

	if hook != nil {
		hook(err)
	}
}

// replaySubscriptions re-registers every tracked topic with the
// broker. Failures are ignored here; the next reconnect retries.
func (c *Client) replaySubscriptions() {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	for _, sub := range c.subs {
		c.paho.Subscribe(sub.topic, sub.qos, c.dispatch(sub.handler))
	}
}

// announcePresence publishes a retained payload to the system status
// topic, replacing whatever the broker held there.
func (c *Client) announcePresence(payload string) {
	c.paho.Publish(Topics{}.SystemStatus(), byte(c.cfg.QoS), true, payload)
}

// Close says goodbye and disconnects. The graceful offline notice
// replaces the LWT's crash notice on the presence topic, so dashboards
// can tell a shutdown from a failure. Safe to call on a zero client.
func (c *Client) Close() error {
	if c.paho == nil {
		return nil
	}

	if c.IsConnected() {
		token := c.paho.Publish(
			Topics{}.SystemStatus(),
			byte(c.cfg.QoS), true,
			buildOfflinePayload(c.cfg.Broker.ClientID),
		)
		token.WaitTimeout(defaultPublishTimeout)
	}

	c.paho.Disconnect(defaultDisconnectQuiesce)

	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()

	return nil
}

// HealthCheck reports whether the broker link is usable. The daemon
// runs it once at startup; operators hit it through the health
// endpoint when the bench misbehaves.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports the last known connection state, cross-checked
// against paho's own view of the socket.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	up := c.connected
	c.mu.RUnlock()
	return up && c.paho.IsConnected()
}

// SetOnConnect registers a hook invoked on the initial connection and
// on every reconnect.
func (c *Client) SetOnConnect(hook func()) {
	c.mu.Lock()
	c.onUp = hook
	c.mu.Unlock()
}

// SetOnDisconnect registers a hook invoked when the link drops, with
// the transport error that killed it.
func (c *Client) SetOnDisconnect(hook func(err error)) {
	c.mu.Lock()
	c.onDown = hook
	c.mu.Unlock()
}

// SetLogger routes handler errors and recovered panics to the given
// logger. Without one they are dropped.
func (c *Client) SetLogger(logger Logger) {
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.logger
}

// dispatch adapts a MessageHandler to paho's callback shape. A panic
// in one command handler must not take down the recorder mid-session,
// so it is recovered and logged here.
func (c *Client) dispatch(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if logger := c.getLogger(); logger != nil {
					logger.Error("mqtt handler panicked",
						"topic", msg.Topic(),
						"panic", r,
					)
				}
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Warn("mqtt handler failed",
					"topic", msg.Topic(),
					"error", err,
				)
			}
		}
	}
}

// waitToken blocks on a paho token and folds its two failure modes
// into one wrapped error. Timeouts additionally match ErrTimeout.
func waitToken(token pahomqtt.Token, timeout time.Duration, sentinel error) error {
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("%w: %w after %v", sentinel, ErrTimeout, timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", sentinel, err)
	}
	return nil
}
