package mqtt

import "fmt"

// maxPayloadSize caps outbound messages at 1MB. A full status snapshot
// for a 48-sensor rig is a few kilobytes; anything near this limit is
// a bug upstream, and brokers commonly reject larger messages anyway.
const maxPayloadSize = 1 << 20

// validateTopicQoS applies the checks shared by every outbound
// operation, before anything touches paho.
func validateTopicQoS(topic string, qos byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	return nil
}

// Publish sends one message and waits for the broker to take it.
//
// QoS 0 is fire-and-forget and right for live readings, where the next
// sample supersedes a lost one within 20ms. QoS 1 guarantees delivery
// at the cost of possible duplicates and carries events and acks.
// Retained messages are for state topics only: the broker hands the
// last one to each new subscriber, which is exactly wrong for a
// command.
//
// Parameters:
//   - topic: destination topic, usually from a Topics builder
//   - payload: message body, JSON by convention, at most 1MB
//   - qos: delivery guarantee, 0 to 2
//   - retained: whether the broker keeps it for late subscribers
//
// Returns:
//   - error: ErrNotConnected while the link is down, ErrPublishFailed
//     (possibly also matching ErrTimeout) when the broker refuses
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if err := validateTopicQoS(topic, qos); err != nil {
		return err
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: %d byte payload exceeds %d byte limit",
			ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	return waitToken(c.paho.Publish(topic, qos, retained, payload), defaultPublishTimeout, ErrPublishFailed)
}

// PublishString publishes a string payload. Equivalent to Publish with
// []byte(payload).
func (c *Client) PublishString(topic, payload string, qos byte, retained bool) error {
	return c.Publish(topic, []byte(payload), qos, retained)
}

// PublishRetained publishes a retained message at the configured
// default QoS. Used for the status snapshot, where a late subscriber
// should see the rig's current state immediately.
func (c *Client) PublishRetained(topic string, payload []byte) error {
	return c.Publish(topic, payload, byte(c.cfg.QoS), true)
}
