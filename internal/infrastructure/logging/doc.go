// Package logging wraps log/slog for the recorder.
//
// One Logger is built at startup from the logging section of the
// configuration and threaded through every component; subsystems tag
// their lines with With("component", ...) rather than owning loggers
// of their own. JSON output is the service-mode default so journald
// queries work; text is for running the daemon by hand.
//
//	logging:
//	  level: "info"    # debug, info, warn, error
//	  format: "json"   # json, text
//	  output: "stdout" # stdout, stderr
//
// Broker credentials and API tokens must never appear in log fields,
// truncated or otherwise.
package logging
