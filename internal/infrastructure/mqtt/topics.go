package mqtt

import "fmt"

// Topic prefixes for the CLiQR MQTT surface.
//
// The hierarchy is flat: cliqr/{category}/{...}. Retained topics carry the
// latest value so late subscribers catch up immediately; command and event
// topics are fire-and-forget.
const (
	// TopicPrefix is the base for all CLiQR topics.
	TopicPrefix = "cliqr"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "cliqr/system"
)

// Topics provides builders for CLiQR MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	statusTopic := topics.Status()
//	// Returns: "cliqr/status"
type Topics struct{}

// =============================================================================
// Rig Topics
// =============================================================================

// Status returns the topic for the retained rig status snapshot: session
// state, per-sensor states, board connectivity.
//
// Example: cliqr/status
func (Topics) Status() string {
	return fmt.Sprintf("%s/status", TopicPrefix)
}

// Event returns the topic for one recording event kind.
//
// Example: cliqr/event/session_started
func (Topics) Event(kind string) string {
	return fmt.Sprintf("%s/event/%s", TopicPrefix, kind)
}

// SensorLive returns the live-readings topic for one rack position.
//
// Example: cliqr/sensor/12/live
func (Topics) SensorLive(sensorID int) string {
	return fmt.Sprintf("%s/sensor/%d/live", TopicPrefix, sensorID)
}

// Command returns the topic for one inbound command.
//
// Example: cliqr/command/session/start
func (Topics) Command(scope, action string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefix, scope, action)
}

// Ack returns the topic for the acknowledgement of one command request.
//
// Example: cliqr/ack/req-abc123
func (Topics) Ack(requestID string) string {
	return fmt.Sprintf("%s/ack/%s", TopicPrefix, requestID)
}

// =============================================================================
// System Topics
// =============================================================================

// SystemStatus returns the online/offline status topic. The broker
// publishes the LWT here when the service dies without a goodbye.
//
// Example: cliqr/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllCommands returns a pattern matching every inbound command.
//
// Pattern: cliqr/command/+/+
func (Topics) AllCommands() string {
	return fmt.Sprintf("%s/command/+/+", TopicPrefix)
}

// AllEvents returns a pattern matching every recording event.
//
// Pattern: cliqr/event/+
func (Topics) AllEvents() string {
	return fmt.Sprintf("%s/event/+", TopicPrefix)
}

// AllSensorLive returns a pattern matching live readings from every rack
// position.
//
// Pattern: cliqr/sensor/+/live
func (Topics) AllSensorLive() string {
	return fmt.Sprintf("%s/sensor/+/live", TopicPrefix)
}

// AllTopics returns a pattern matching all CLiQR topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: cliqr/#
func (Topics) AllTopics() string {
	return "cliqr/#"
}
