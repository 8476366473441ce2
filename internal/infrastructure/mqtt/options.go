package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"net"
	"strconv"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/cliqr-core/internal/infrastructure/config"
)

const (
	// defaultConnectTimeout bounds the initial dial. The broker is
	// usually Mosquitto on the rig Pi, so anything slower than this is
	// a misconfiguration, not latency.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout bounds waits for broker acknowledgements.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is how long Disconnect lets in-flight
	// messages drain, in milliseconds as paho wants it.
	defaultDisconnectQuiesce = 1000

	// defaultKeepAlive is the PING interval that lets both ends notice
	// a dead socket.
	defaultKeepAlive = 60 * time.Second

	// maxQoS is the highest MQTT QoS level.
	maxQoS = 2

	tlsMinVersion = tls.VersionTLS12
)

// buildClientOptions maps the rig configuration onto paho options.
//
// Sessions are clean: the recorder has no use for messages queued
// while it was away, because the retained status topic already carries
// the current truth and stale commands must not replay against a new
// session. Reconnection backs off between the configured delays.
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	addr := net.JoinHostPort(cfg.Broker.Host, strconv.Itoa(cfg.Broker.Port))

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(scheme + "://" + addr)
	opts.SetClientID(cfg.Broker.ClientID)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second)
	opts.SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tlsMinVersion})
	}

	return opts
}

// presence is the payload on the system status topic. The reason field
// distinguishes a goodbye from a crash.
type presence struct {
	Status    string `json:"status"`
	ClientID  string `json:"client_id"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

func presencePayload(status, clientID, reason string) string {
	b, err := json.Marshal(presence{
		Status:    status,
		ClientID:  clientID,
		Reason:    reason,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		// Marshalling a flat struct of strings cannot fail.
		return `{"status":"` + status + `"}`
	}
	return string(b)
}

// configureLWT arms the Last Will and Testament. The broker publishes
// this retained crash notice if the recorder vanishes without
// disconnecting, so a dashboard watching a mid-session rig learns the
// truth within one keepalive interval.
func configureLWT(opts *pahomqtt.ClientOptions, clientID string) {
	opts.SetWill(
		Topics{}.SystemStatus(),
		presencePayload("offline", clientID, "unexpected_disconnect"),
		1, true,
	)
}

func buildOnlinePayload(clientID string) string {
	return presencePayload("online", clientID, "")
}

func buildOfflinePayload(clientID string) string {
	return presencePayload("offline", clientID, "graceful_shutdown")
}
