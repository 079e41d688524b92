// Command fleet-core is the composition root: it wires the Listeners,
// Device Resolver, Position Pipeline, Geofence Engine, Event Engine,
// Command Queue & Dispatcher, Subscription Hub, and Persistence Facade
// into the one long-running process described by spec.md §5, and serves
// the Command API over gRPC.
package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"fleettrack/internal/command"
	"fleettrack/internal/events"
	"fleettrack/internal/geofence"
	"fleettrack/internal/hub"
	"fleettrack/internal/pipeline"
	"fleettrack/internal/protocol"
	"fleettrack/internal/repository"
	"fleettrack/internal/resolver"
	"fleettrack/internal/rpc"
	"fleettrack/internal/service"
	"fleettrack/internal/transport"
	"fleettrack/migrations"
	"fleettrack/pkg/cache"
	"fleettrack/pkg/config"
	"fleettrack/pkg/database"
	"fleettrack/pkg/logger"
	"fleettrack/pkg/metrics"
	"fleettrack/pkg/server"
)

// commandStore composes the device lookup the Command Dispatcher needs
// (DeviceRef) with the rest of the Command Queue & Dispatcher's
// persistence, since those two concerns live on separate repository
// types (spec.md §4.9/§4.10 keeps one repository per aggregate).
type commandStore struct {
	*repository.DeviceRepository
	*repository.CommandRepository
}

func main() {
	cfg, err := config.LoadWithServiceDefaults("fleet-core", 50070)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger.InitWithConfig(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		FilePath:   cfg.Log.FilePath,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	})

	metrics.InitMetrics(cfg.Metrics.Namespace, cfg.App.Name)

	bgCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgresDB(bgCtx, &cfg.Database)
	if err != nil {
		logger.Fatal("failed to connect to database", "error", err)
	}
	defer db.Close()

	if err := database.RunMigrations(bgCtx, db.Pool(), &cfg.Database, migrations.FS, migrations.Dir); err != nil {
		logger.Fatal("failed to run migrations", "error", err)
	}

	deviceRepo := repository.NewDeviceRepository(db)
	unknownRepo := repository.NewUnknownDeviceRepository(db)
	positionRepo := repository.NewPositionRepository(db)
	eventRepo := repository.NewEventRepository(db)
	geofenceRepo := repository.NewGeofenceRepository(db)
	cmdRepo := repository.NewCommandRepository(db)
	templateRepo := repository.NewTemplateRepository(db)
	scheduleRepo := repository.NewScheduleRepository(db)

	positionCache, err := cache.New(cache.FromConfig(&cfg.Cache))
	if err != nil {
		logger.Fatal("failed to build cache", "error", err)
	}
	snapshotCache := cache.NewSnapshotCache(positionCache, cfg.Cache.DefaultTTL)

	h := hub.New(cfg.Hub)

	res := resolver.New(deviceRepo, unknownRepo, h)

	geoIndex := geofence.NewIndex()
	geoLoader := geofence.NewLoader(geofenceRepo, snapshotCache)
	if err := rebuildGeofenceIndex(bgCtx, geoLoader, geoIndex); err != nil {
		logger.Log.Warn("initial geofence load failed, starting with an empty index", "error", err)
	}

	eventEngine := events.NewEngine(cfg.Events, float64(cfg.Pipeline.DefaultSpeedKmh))
	onlineOfflineSweeper := events.NewSweeper(cfg.Events.SweepInterval, cfg.Events.OnlineWindow, cfg.Events.OfflineWindow, deviceRepo, h)

	pl := pipeline.New(cfg.Pipeline, cfg.Retry, res, geoIndex, eventEngine, positionRepo, snapshotCache, h)
	pl.Start(bgCtx)

	links := transport.NewLinkTable()

	suntechDecoder := protocol.NewSuntechDecoder()
	osmandDecoder := protocol.NewOsmAndDecoder()
	encoders := map[string]protocol.Encoder{
		"suntech": suntechDecoder,
		"osmand":  osmandDecoder,
	}

	var listeners []listener
	if cfg.Listeners.Suntech.Enabled {
		listeners = append(listeners, transport.NewStreamListener(
			fmt.Sprintf(":%d", cfg.Listeners.Suntech.Port),
			suntechDecoder, pl, links, cfg.Listeners.Suntech.IdleTimeout,
		))
	}
	if cfg.Listeners.Suntech.UDPEnabled {
		listeners = append(listeners, transport.NewDatagramListener(
			fmt.Sprintf(":%d", cfg.Listeners.Suntech.UDPPort),
			suntechDecoder, pl, links, cfg.Listeners.Suntech.UDPWorkers,
		))
	}
	if cfg.Listeners.OsmAnd.Enabled {
		listeners = append(listeners, transport.NewRequestResponseListener(
			fmt.Sprintf(":%d", cfg.Listeners.OsmAnd.Port),
			osmandDecoder, pl, cfg.Listeners.OsmAnd.ReadTimeout, cfg.Listeners.OsmAnd.WriteTimeout,
		))
	}
	for _, l := range listeners {
		go func(l listener) {
			if err := l.ListenAndServe(bgCtx); err != nil && bgCtx.Err() == nil {
				logger.Log.Error("listener stopped", "error", err)
			}
		}(l)
	}

	queueStore := &commandStore{DeviceRepository: deviceRepo, CommandRepository: cmdRepo}
	dispatcher := command.NewDispatcher(queueStore, links, encoders, cfg.Command, h)
	queue := command.NewQueue(queueStore, dispatcher)
	templates := command.NewTemplates(templateRepo, queue)
	scheduler := command.NewScheduler(scheduleRepo, templateRepo, queue, cfg.Command.SweepInterval)
	timeoutSweeper := command.NewTimeoutSweeper(queueStore, cfg.Command)

	retentionDays := time.Duration(cfg.Database.RetentionDays) * 24 * time.Hour
	retentionJob := repository.NewRetentionJob(24*time.Hour, retentionDays, positionRepo, eventRepo)

	geofenceRefresher := newGeofenceRefresher(geoLoader, geoIndex, cfg.Events.SweepInterval)

	core := service.New(queue, templates, scheduler, h).WithBackground(
		dispatcher,
		timeoutSweeper,
		scheduler,
		onlineOfflineSweeper,
		retentionJob,
		geofenceRefresher,
	)
	go core.Run(bgCtx)

	srv := server.New(cfg)
	rpc.RegisterFleetServiceServer(srv.GetEngine(), core)

	logger.Info("starting fleet-core",
		"grpc_port", cfg.GRPC.Port,
		"suntech_enabled", cfg.Listeners.Suntech.Enabled,
		"suntech_udp_enabled", cfg.Listeners.Suntech.UDPEnabled,
		"osmand_enabled", cfg.Listeners.OsmAnd.Enabled,
		"environment", cfg.App.Environment,
	)

	if err := srv.Run(); err != nil {
		logger.Fatal("server failed", "error", err)
	}

	stop()
}

type listener interface {
	ListenAndServe(ctx context.Context) error
}

func rebuildGeofenceIndex(ctx context.Context, loader *geofence.Loader, idx *geofence.Index) error {
	snap, err := loader.Load(ctx)
	if err != nil {
		return err
	}
	idx.Rebuild(snap.Geofences())
	return nil
}

// geofenceRefresher periodically reloads the geofence snapshot so CRUD
// changes made through the Command API's operator surface become visible
// to the Position Pipeline without restarting fleet-core.
type geofenceRefresher struct {
	loader   *geofence.Loader
	idx      *geofence.Index
	interval time.Duration
}

func newGeofenceRefresher(loader *geofence.Loader, idx *geofence.Index, interval time.Duration) *geofenceRefresher {
	if interval <= 0 {
		interval = time.Minute
	}
	return &geofenceRefresher{loader: loader, idx: idx, interval: interval}
}

func (r *geofenceRefresher) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := rebuildGeofenceIndex(ctx, r.loader, r.idx); err != nil {
				logger.Log.Warn("geofence snapshot refresh failed", "error", err)
			}
		}
	}
}

