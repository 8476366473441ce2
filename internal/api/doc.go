// Package api implements the HTTP REST API and WebSocket server for CLiQR Core.
//
// This package provides:
//   - REST endpoints for session control, sensor cycles, and metadata entry
//   - Read endpoints for the status snapshot, recent samples, and the
//     session event log
//   - Board management (status, explicit reconnect)
//   - WebSocket hub streaming status, events, and live readings
//   - Middleware stack (request ID, logging, recovery, CORS)
//   - TLS support for deployments off the bench
//
// # Architecture
//
// The API server sits between bench clients (the operator panel, scripts)
// and the recording engine. Commands call the engine directly and return
// the fresh status snapshot, so a client can render the outcome without a
// second round trip. The engine's snapshot, event, and sample callbacks
// feed the WebSocket hub for clients that want a push feed instead of
// polling.
//
// # Error Mapping
//
// State-machine refusals (starting an already-active session, stopping an
// idle sensor) are 409 Conflict: the engine rejected the command and is
// unchanged. Validation failures are 400, unknown sensors and boards 404.
// A latched write fault also maps to 409; the fix is POST /session/retry
// or stopping the session, not retrying the refused command.
//
// # Graceful Degradation
//
// The server has no MQTT dependency; the broker mirror lives in the
// telemetry package. Everything here works on a bare rig.
package api
