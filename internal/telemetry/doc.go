// Package telemetry exposes the recorder over MQTT.
//
// Two halves: the Publisher pushes outbound traffic (the retained status
// snapshot, recording events, decimation-free live readings), and Commands
// accepts the same operations the HTTP API serves, acknowledging each
// request on its own ack topic.
//
// The publisher decouples the recording engine from the broker: engine
// callbacks only enqueue onto buffered channels, and a single goroutine
// talks to MQTT. A slow or absent broker therefore drops telemetry rather
// than stalling acquisition; the session store never depends on any of
// this.
package telemetry
