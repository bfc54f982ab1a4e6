// alpwatch watches a Seestar smart telescope over MQTT and reacts to its
// events: it shuts the rig down on low battery, retakes dark frames when the
// sensor temperature drifts, and runs user scripts on selected events.
//
// Every command sent to the rig and every action taken is journalled to
// SQLite, and the ops API exposes watcher status and a live event feed.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	_ "github.com/bguthro/seestar-alp/migrations"

	"github.com/bguthro/seestar-alp/internal/api"
	"github.com/bguthro/seestar-alp/internal/audit"
	"github.com/bguthro/seestar-alp/internal/event"
	"github.com/bguthro/seestar-alp/internal/infrastructure/config"
	"github.com/bguthro/seestar-alp/internal/infrastructure/database"
	"github.com/bguthro/seestar-alp/internal/infrastructure/influxdb"
	"github.com/bguthro/seestar-alp/internal/infrastructure/logging"
	"github.com/bguthro/seestar-alp/internal/infrastructure/mqtt"
	"github.com/bguthro/seestar-alp/internal/process"
	"github.com/bguthro/seestar-alp/internal/rig"
	"github.com/bguthro/seestar-alp/internal/telemetry"
	"github.com/bguthro/seestar-alp/internal/watch"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // startup wiring
	log := logging.Default()
	log.Info("starting alpwatch",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "device_id", cfg.Device.ID)

	// Journal database
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", db.Path())

	auditRepo := audit.NewSQLiteRepository(db.DB)
	journal := audit.NewJournal(auditRepo, 0, log)

	// Deferred before router.Stop, so it runs after the watchers drain.
	defer startJournal(ctx, journal, log)()

	// MQTT
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() { log.Info("MQTT reconnected") })
	mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	// Rig client
	qos := byte(cfg.MQTT.QoS) //nolint:gosec // validated to 0..2
	device := rig.New(mqttClient, rig.Options{
		DeviceID: cfg.Device.ID,
		Timeout:  cfg.GetCommandTimeout(),
		Rate:     cfg.Device.CommandRate,
		Burst:    cfg.Device.CommandBurst,
		QoS:      qos,
	})
	device.SetLogger(log)
	device.SetJournal(journal)
	if startErr := device.Start(); startErr != nil {
		return fmt.Errorf("starting rig client: %w", startErr)
	}
	defer func() {
		if closeErr := device.Close(); closeErr != nil {
			log.Error("error closing rig client", "error", closeErr)
		}
	}()

	snapshot := fetchSnapshot(ctx, cfg, device, log)

	// Script launcher
	launcher := process.NewLauncher(process.Config{
		OnExit: journal.ScriptExited,
	})
	launcher.SetLogger(log)
	defer stopScripts(launcher, cfg.Watchers.TerminateScriptsOnExit, log)

	watchers, err := buildWatchers(cfg, device, snapshot, launcher, influxClient)
	if err != nil {
		return err
	}

	// Ops API
	var hub *api.Hub
	var server *api.Server
	notifiers := watch.Notifiers{journal, rig.NewActionPublisher(mqttClient, qos, log)}
	if cfg.API.Enabled {
		hub = api.NewHub(cfg.WebSocket, log)
		notifiers = append(notifiers, hub)
	}
	for _, w := range watchers {
		if n, ok := w.(interface{ SetNotifier(watch.Notifier) }); ok {
			n.SetNotifier(notifiers)
		}
	}

	router := watch.NewRouter(device, watchers...)
	router.SetLogger(log)
	router.SetBacklogWarning(cfg.Dispatch.BacklogWarning)
	if startErr := router.Start(ctx); startErr != nil {
		return fmt.Errorf("starting dispatch router: %w", startErr)
	}
	defer router.Stop()

	if cfg.API.Enabled {
		health := map[string]api.HealthChecker{
			"database": db,
			"mqtt":     mqttClient,
		}
		if influxClient != nil {
			health["influxdb"] = influxClient
		}
		server, err = api.New(api.Deps{
			Config:   cfg.API,
			WS:       cfg.WebSocket,
			Logger:   log,
			Watchers: router,
			Audit:    auditRepo,
			Hub:      hub,
			Health:   health,
			Version:  version,
		})
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		if startErr := server.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	if listenErr := device.Listen(func(ev event.Event) {
		if router.Dispatch(ev) == 0 {
			log.Debug("event has no subscribers", "kind", ev.Kind)
		}
		if hub != nil {
			hub.PublishEvent(ev)
		}
	}); listenErr != nil {
		return fmt.Errorf("subscribing to device events: %w", listenErr)
	}

	log.Info("alpwatch running", "watchers", len(watchers))
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")
	return nil
}

// startJournal runs the audit journal until the returned stop function is
// called. The journal ignores ctx cancellation so that actions taken while
// the router drains at shutdown are still written; stop then flushes what
// is queued.
func startJournal(ctx context.Context, journal *audit.Journal, log *logging.Logger) (stop func()) {
	journalCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	var g errgroup.Group
	g.Go(func() error { return journal.Run(journalCtx) })

	return func() {
		cancel()
		if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("audit journal failed", "error", err)
		}
		if n := journal.Dropped(); n > 0 {
			log.Warn("audit entries dropped", "count", n)
		}
	}
}

// stopScripts handles user scripts still running at shutdown. They are
// left to finish unless terminate is set.
func stopScripts(launcher *process.Launcher, terminate bool, log *logging.Logger) {
	running := launcher.Running()
	if running == 0 {
		return
	}
	if terminate {
		log.Info("terminating user scripts", "running", running)
		launcher.Terminate()
		return
	}
	log.Info("leaving user scripts running", "running", running)
}

func getConfigPath() string {
	if path := os.Getenv("ALPWATCH_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// fetchSnapshot reads the device state used to seed the watchers. A rig
// that does not answer yields an empty snapshot; watchers then seed from
// the first event.
func fetchSnapshot(ctx context.Context, cfg *config.Config, device *rig.Client, log *logging.Logger) event.Snapshot {
	snapCtx, cancel := context.WithTimeout(ctx, cfg.GetSnapshotTimeout())
	defer cancel()

	snap, err := device.FetchSnapshot(snapCtx)
	if err != nil {
		log.Warn("device state unavailable, watchers start unseeded", "error", err)
		return event.Snapshot{}
	}
	return snap
}

// buildWatchers creates the configured watchers in dispatch order.
func buildWatchers(cfg *config.Config, device *rig.Client, snap event.Snapshot, launcher *process.Launcher, influxClient *influxdb.Client) ([]watch.Watcher, error) {
	var watchers []watch.Watcher

	if cfg.Watchers.Battery.Enabled {
		watchers = append(watchers, watch.NewBatteryWatch(device, snap, watch.BatteryConfig{
			LowCapacityLimit: cfg.Watchers.Battery.LowLimit,
		}))
	}

	if cfg.Watchers.SensorTemp.Enabled {
		watchers = append(watchers, watch.NewSensorTempWatch(device, snap, watch.SensorTempConfig{
			MaxChange:   cfg.Watchers.SensorTemp.MaxChange,
			Recalibrate: cfg.Watchers.SensorTemp.Recalibrate,
			Timeout:     cfg.GetRecalibrationTimeout(),
		}))
	}

	for i, sc := range cfg.Watchers.UserScripts {
		kinds, err := event.ParseKinds(sc.Events)
		if err != nil {
			return nil, fmt.Errorf("user script %d: %w", i, err)
		}
		watchers = append(watchers, watch.NewUserScriptEvent(device, watch.UserScript{
			Name:    sc.ScriptName(i),
			Events:  kinds,
			Execute: sc.Execute,
		}, launcher))
	}

	if influxClient != nil {
		watchers = append(watchers, telemetry.NewStatusRecorder(cfg.Device.ID, influxClient))
	}

	return watchers, nil
}
