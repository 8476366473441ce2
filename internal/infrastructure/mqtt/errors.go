package mqtt

import "errors"

// Sentinel errors for broker operations. Callers branch with errors.Is;
// the telemetry publisher treats ErrNotConnected as a quiet skip rather
// than a fault, since the broker link is optional on a bench rig.
var (
	// ErrNotConnected means the broker link is down. Operations fail fast
	// instead of queueing; paho reconnects in the background.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrConnectionFailed wraps failures of the initial connection attempt.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrPublishFailed wraps broker-side or transport publish failures.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed wraps subscription registration failures.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrUnsubscribeFailed wraps subscription removal failures.
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrInvalidQoS rejects QoS levels outside 0..2 before they reach paho.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic rejects empty topics before they reach paho.
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")

	// ErrTimeout marks operations that gave up waiting on a broker
	// acknowledgement. Wrapped alongside the operation sentinel, so both
	// errors.Is(err, ErrPublishFailed) and errors.Is(err, ErrTimeout) hold.
	ErrTimeout = errors.New("mqtt: operation timed out")
)
