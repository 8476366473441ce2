package mqtt

import "fmt"

// Subscribe registers a handler for a topic and remembers the
// registration, replaying it on every reconnect.
//
// Wildcards work as usual: the command intake subscribes once to
// "cliqr/command/+/+" rather than to each scope and action. Handlers
// run on paho's goroutines wrapped in panic recovery; see
// MessageHandler for the blocking rules.
//
// The subscription is tracked only after the broker confirms it, so a
// failed call leaves nothing behind to replay.
//
// Parameters:
//   - topic: topic or wildcard pattern to receive
//   - qos: highest QoS to accept, 0 to 2
//   - handler: callback for each message
//
// Returns:
//   - error: ErrNotConnected while the link is down, ErrSubscribeFailed
//     if the broker rejects the registration
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if err := validateTopicQoS(topic, qos); err != nil {
		return err
	}
	if handler == nil {
		return fmt.Errorf("%w: nil handler", ErrSubscribeFailed)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	err := waitToken(c.paho.Subscribe(topic, qos, c.dispatch(handler)), defaultPublishTimeout, ErrSubscribeFailed)
	if err != nil {
		return err
	}

	c.subMu.Lock()
	c.subs[topic] = subscription{topic: topic, qos: qos, handler: handler}
	c.subMu.Unlock()

	return nil
}

// Unsubscribe stops delivery for a topic. The pattern must match the
// subscribed one exactly; messages already in flight may still arrive.
//
// Tracking is dropped before the broker call, so the topic is not
// replayed on reconnect even if the broker-side removal fails.
func (c *Client) Unsubscribe(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.subMu.Lock()
	delete(c.subs, topic)
	c.subMu.Unlock()

	return waitToken(c.paho.Unsubscribe(topic), defaultPublishTimeout, ErrUnsubscribeFailed)
}

// SubscriptionCount returns the number of tracked subscriptions.
func (c *Client) SubscriptionCount() int {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.subs)
}

// HasSubscription reports whether the exact topic string is tracked.
// No pattern matching: "cliqr/command/+/+" and a concrete command
// topic are different keys.
func (c *Client) HasSubscription(topic string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	_, ok := c.subs[topic]
	return ok
}
