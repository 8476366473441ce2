// Package mqtt connects the recorder to the bench broker.
//
// MQTT is the rig's outward message fabric. The recorder publishes the
// retained status snapshot, recording events and live readings, and
// accepts the same commands the HTTP API serves, so a Grafana panel, a
// cage-side display and a pytest harness all talk to the same surface
// without knowing the recorder's address.
//
//	CLiQR Core <-> Mosquitto <-> dashboards / lab tooling
//
// The wrapper earns its keep in three places paho alone does not
// cover: presence (a retained online/offline topic armed with an LWT,
// so a crashed recorder is visibly dead within a keepalive), replayed
// subscriptions (clean sessions mean the broker forgets everything on
// each drop), and panic isolation around command handlers.
//
// Topic strings live in the Topics builder; nothing else in the
// codebase spells out "cliqr/...". Payloads are JSON.
//
// Typical wiring from the daemon:
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.Subscribe(mqtt.Topics{}.AllCommands(), 1, commands.Handle)
//	client.PublishRetained(mqtt.Topics{}.Status(), snapshotJSON)
//
// TLS and broker credentials come from the config; plaintext anonymous
// access is for a broker on the same bench only.
package mqtt
