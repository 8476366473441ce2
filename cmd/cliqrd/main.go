// CLiQR Core - Capacitive Sensor Recording Engine
//
// This is the main entry point for the CLiQR Core service. CLiQR drives a
// rack of capacitive sensors through MPR121 interface boards and records
// filtered capacitance counts into per-session SQLite files:
//   - Continuous 50 Hz sampling across all connected boards
//   - Append-only session stores, one file per recording session
//   - Live monitoring over WebSocket and MQTT while sessions run
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/cliqr-core/migrations"

	"github.com/nerrad567/cliqr-core/internal/acquisition"
	"github.com/nerrad567/cliqr-core/internal/api"
	"github.com/nerrad567/cliqr-core/internal/hardware"
	"github.com/nerrad567/cliqr-core/internal/infrastructure/config"
	"github.com/nerrad567/cliqr-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/cliqr-core/internal/infrastructure/logging"
	"github.com/nerrad567/cliqr-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/cliqr-core/internal/recording"
	"github.com/nerrad567/cliqr-core/internal/telemetry"
)

// Build metadata, stamped via
// go build -ldflags "-X main.version=1.2.0 -X main.commit=abc123".
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	// SIGINT/SIGTERM cancel the context; everything below unwinds through
	// deferred Close calls.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run carries the whole daemon lifecycle so main stays a thin exit-code
// shim. Components come up in dependency order - boards, broker, engine,
// scheduler, API - and the deferred closes tear them down in reverse.
func run(ctx context.Context) error {
	// Bootstrap logger; replaced once config says how to log.
	log := logging.Default()
	log.Info("starting CLiQR Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Bring up the sensor rack. A board that fails to open is left
	// disconnected and can be reopened later over the API; only a rack
	// with no boards at all aborts startup.
	mgr, err := hardware.NewManager(hardware.ManagerOptions{
		Configs: boardConfigs(cfg),
		Opener:  boardOpener(cfg),
		Logger:  log,
	})
	if err != nil {
		return fmt.Errorf("creating board manager: %w", err)
	}
	if err := mgr.Connect(ctx); err != nil {
		return fmt.Errorf("connecting boards: %w", err)
	}
	defer func() {
		log.Info("closing boards")
		if closeErr := mgr.Disconnect(); closeErr != nil {
			log.Error("error closing boards", "error", closeErr)
		}
	}()
	log.Info("boards connected",
		"backend", cfg.Hardware.Backend,
		"connected", mgr.ConnectedCount(),
		"configured", len(cfg.Hardware.Boards),
	)

	// Optional broker link for remote monitoring and commands.
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		mqttClient.SetLogger(log.With("component", "mqtt"))
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
	} else {
		log.Info("MQTT disabled")
	}

	// Optional InfluxDB mirror of live readings for Grafana rig dashboards.
	// Session files stay the source of record; this feed is best-effort.
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// The WebSocket hub and MQTT publisher exist before the engine so the
	// engine's callbacks can fan out to them from the first snapshot.
	hub := api.NewHub(cfg.WebSocket, log)
	go hub.Run(ctx)

	var pub *telemetry.Publisher
	if mqttClient != nil {
		pub, err = telemetry.NewPublisher(telemetry.PublisherOptions{
			Broker:   mqttClient,
			QoS:      byte(cfg.MQTT.QoS), //nolint:gosec // QoS validated to 0..2 by config
			Interval: cfg.GetStatusInterval(),
			Logger:   log,
		})
		if err != nil {
			return fmt.Errorf("creating MQTT publisher: %w", err)
		}
		pub.Start()
		defer pub.Close()
	}

	// Session filenames are stamped in the site zone so they sort
	// alongside the lab notebook.
	loc, err := time.LoadLocation(cfg.Site.Timezone)
	if err != nil {
		log.Warn("unknown site timezone, stamping filenames in the process zone",
			"timezone", cfg.Site.Timezone, "error", err)
		loc = time.Local
	}

	// Recording engine. Callbacks run on the engine's coordination loop
	// and every sink here is non-blocking: the hub drops on slow clients,
	// the publisher drops on a saturated broker, and InfluxDB writes are
	// batched asynchronously.
	eng, err := recording.New(recording.Options{
		Boards:         boardConfigs(cfg),
		BufferCapacity: cfg.Acquisition.BufferCapacity,
		OpenStore: recording.SQLiteOpener(recording.StoreConfig{
			OutputDir:   cfg.Storage.OutputDir,
			WALMode:     cfg.Storage.WALMode,
			BusyTimeout: cfg.Storage.BusyTimeout,
			Location:    loc,
		}),
		SiteID:   cfg.Site.ID,
		Hardware: mgr,
		Logger:   log,
		OnSnapshot: func(snap recording.Snapshot) {
			hub.BroadcastStatus(snap)
			if pub != nil {
				pub.PublishSnapshot(snap)
			}
		},
		OnEvent: func(ev recording.Event) {
			hub.BroadcastEvent(ev)
			if pub != nil {
				pub.PublishEvent(ev)
			}
			if influxClient != nil {
				influxClient.WriteRecordingEvent(ev.Kind, ev.Detail, ev.Sensor, ev.BoardID, ev.OccurredAt)
			}
		},
		OnSample: func(boardID string, r hardware.Reading) {
			hub.BroadcastReading(r)
			if pub != nil {
				pub.PublishSample(r)
			}
			if influxClient != nil {
				influxClient.WriteCapacitance(r.Sensor, boardID, r.Value, r.Timestamp)
			}
		},
	})
	if err != nil {
		return fmt.Errorf("creating recording engine: %w", err)
	}
	eng.Start()
	defer func() {
		log.Info("closing recording engine")
		if closeErr := eng.Close(); closeErr != nil {
			log.Error("error closing recording engine", "error", closeErr)
		}
	}()
	log.Info("recording engine started",
		"site", cfg.Site.ID,
		"output_dir", cfg.Storage.OutputDir,
		"buffer_capacity", cfg.Acquisition.BufferCapacity,
	)

	// Acquisition scheduler. The engine owns its lifecycle: polling starts
	// with the session and stops on session stop or a latched write fault.
	sched, err := acquisition.New(acquisition.Options{
		Boards:           boardConfigs(cfg),
		Pool:             mgr,
		Sink:             eng,
		Interval:         cfg.GetAcquisitionInterval(),
		ReadTimeout:      cfg.GetReadTimeout(),
		FailureThreshold: cfg.Acquisition.FailureThreshold,
		Logger:           log,
	})
	if err != nil {
		return fmt.Errorf("creating acquisition scheduler: %w", err)
	}
	eng.SetRunner(sched)
	log.Info("acquisition scheduler ready",
		"interval", cfg.GetAcquisitionInterval().String(),
		"read_timeout", cfg.GetReadTimeout().String(),
	)

	// Board connectivity changes flow to the engine (sensors on a dropped
	// board move to error) and, when enabled, to the rig-health dashboard.
	mgr.OnStatusChange(func(boardID string, status hardware.Status) {
		eng.BoardStatusChanged(boardID, status)
		if influxClient != nil {
			influxClient.WriteBoardStatus(boardID, string(status))
		}
	})

	// MQTT command surface (requires MQTT)
	if mqttClient != nil {
		cmds, cmdErr := telemetry.NewCommands(telemetry.CommandsOptions{
			Broker: mqttClient,
			Engine: eng,
			QoS:    byte(cfg.MQTT.QoS), //nolint:gosec // QoS validated to 0..2 by config
			Logger: log,
		})
		if cmdErr != nil {
			return fmt.Errorf("creating MQTT command handler: %w", cmdErr)
		}
		if subErr := cmds.Subscribe(); subErr != nil {
			return fmt.Errorf("subscribing to MQTT commands: %w", subErr)
		}
		log.Info("MQTT command surface active")
	}

	// Start HTTP API server
	var broker api.BrokerStatus
	if mqttClient != nil {
		broker = mqttClient
	}
	apiServer, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Site:     cfg.Site,
		Logger:   log,
		Engine:   eng,
		Hardware: mgr,
		Broker:   broker,
		Hub:      hub,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := apiServer.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error stopping API server", "error", closeErr)
		}
	}()
	log.Info("API server started",
		"addr", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
		"tls", cfg.API.TLS.Enabled,
	)

	// One startup probe across everything optional before declaring ready.
	if err := healthCheck(ctx, apiServer, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// The deferred closes unwind in reverse:
	// 1. API server (stops accepting requests)
	// 2. Recording engine (finishes any open session file)
	// 3. InfluxDB (if enabled)
	// 4. MQTT (if enabled)
	// 5. Boards

	log.Info("CLiQR Core stopped")
	return nil
}

// getConfigPath honours CLIQR_CONFIG, falling back to the default path.
func getConfigPath() string {
	if path := os.Getenv("CLIQR_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// boardConfigs maps the YAML rack description onto the hardware layer's
// board configs.
func boardConfigs(cfg *config.Config) []hardware.Config {
	out := make([]hardware.Config, 0, len(cfg.Hardware.Boards))
	for _, b := range cfg.Hardware.Boards {
		out = append(out, hardware.Config{
			ID:      b.ID,
			Bus:     b.Bus,
			Address: b.Address,
			Sensors: append([]int(nil), b.Sensors...),
		})
	}
	return out
}

// boardOpener selects the board driver for the configured backend. The
// config validator has already rejected anything other than i2c or mock.
func boardOpener(cfg *config.Config) hardware.Opener {
	if cfg.Hardware.Backend == "i2c" {
		return hardware.OpenI2C
	}
	return hardware.OpenMock
}

// healthCheck probes the API listener and whichever optional connections
// are up, stopping at the first failure. Board connectivity is deliberately
// not part of it: a rig with a dead board still records on the rest, and
// reconnects are driven over the API.
func healthCheck(ctx context.Context, apiServer *api.Server, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := apiServer.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
