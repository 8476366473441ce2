package influxdb

import "errors"

var (
	// ErrNotConnected means the client has been closed or never
	// connected. Write helpers silently skip in that state; only
	// HealthCheck reports it.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrConnectionFailed wraps failures of the startup ping.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrDisabled is returned by Connect when the mirror is switched
	// off in configuration. The daemon treats it as "do not wire the
	// mirror", not as a fault.
	ErrDisabled = errors.New("influxdb: disabled in configuration")
)
