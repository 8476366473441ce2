// Package config loads and validates the recorder's configuration.
//
// One YAML file describes the whole rig: boards and their bus
// addresses, acquisition cadence, storage directory, and the optional
// MQTT and InfluxDB integrations. Environment variables override
// individual fields for deployment differences, so the same file can
// drive the bench rig and a CI run. Validation happens once at load;
// a daemon that starts has a coherent config.
//
// The built-in defaults describe the standard four-board, 24-sensor
// lickometer rack on the mock backend, so a config file containing
// only overrides (output directory, broker address, real bus names)
// is enough to run.
//
// Broker passwords and tokens belong in environment variables, not in
// the file; the file itself should be 0600 when they end up there
// anyway.
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
package config
