package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rleusmann/Cambridge-audio-custom/internal/api"
	"github.com/rleusmann/Cambridge-audio-custom/internal/apperrors"
	"github.com/rleusmann/Cambridge-audio-custom/internal/audit"
	"github.com/rleusmann/Cambridge-audio-custom/internal/auth"
	"github.com/rleusmann/Cambridge-audio-custom/internal/config"
	"github.com/rleusmann/Cambridge-audio-custom/internal/coordinator"
	"github.com/rleusmann/Cambridge-audio-custom/internal/db"
	"github.com/rleusmann/Cambridge-audio-custom/internal/history"
	"github.com/rleusmann/Cambridge-audio-custom/internal/mediaplayer"
	"github.com/rleusmann/Cambridge-audio-custom/internal/mqtt"
	"github.com/rleusmann/Cambridge-audio-custom/internal/openapi"
	"github.com/rleusmann/Cambridge-audio-custom/internal/stream"
	"github.com/rleusmann/Cambridge-audio-custom/internal/streammagic"
	"github.com/rleusmann/Cambridge-audio-custom/internal/system"
)

const setupTimeout = 30 * time.Second

// Device is the receiver client the hub coordinates.
type Device interface {
	coordinator.DeviceClient
	mediaplayer.Controller
}

// Options controls server wiring.
type Options struct {
	// Device replaces the StreamMagic client built from cfg.Device (tests).
	Device Device
	Logger *log.Logger
}

// CoordinatorName is the name of the coordinator for the receiver at host.
func CoordinatorName(host string) string {
	return "cambridge_audio_" + host
}

// NewHandler builds the HTTP handler and returns a shutdown function. It
// fails if the first refresh of the receiver fails.
func NewHandler(cfg config.Config, options Options) (http.Handler, func(context.Context) error, error) {
	logger := options.Logger
	if logger == nil {
		logger = log.Default()
	}

	logger.Printf("Using database: %s", cfg.SQLiteDBPath)
	dbPair, err := db.Init(cfg.SQLiteDBPath)
	if err != nil {
		return nil, nil, err
	}

	auditService := audit.NewService(dbPair, audit.ServiceOptions{
		RetentionDays: cfg.AuditRetentionDays,
		Logger:        logger,
	})
	recorder := audit.NewRecorder(auditService, logger)

	device := options.Device
	if device == nil {
		device = streammagic.NewClient(cfg.Device.Host, streammagic.Options{
			Name:    cfg.Device.Name,
			Model:   cfg.Device.Model,
			Timeout: cfg.Device.Timeout(),
		})
	}

	coord := coordinator.New(device, coordinator.Options{
		Name:     CoordinatorName(cfg.Device.Host),
		Interval: cfg.Device.ScanInterval(),
		Logger:   logger,
	})
	player := mediaplayer.New(coord, device, mediaplayer.Options{
		Logger:   logger,
		Recorder: recorder,
	})

	hub := stream.NewHub(logger, 0)
	hub.Attach(coord)
	recorder.Watch(coord)

	var historyClient *history.Client
	if cfg.InfluxDB.Enabled {
		historyClient, err = history.Connect(cfg.InfluxDB, logger)
		if err != nil {
			_ = coord.Close()
			_ = dbPair.Close()
			return nil, nil, err
		}
		history.NewRecorder(historyClient, logger).Attach(coord)
	}

	ctx, cancel := context.WithTimeout(context.Background(), setupTimeout)
	defer cancel()
	if err := coord.Initialize(ctx); err != nil {
		_ = coord.Close()
		if historyClient != nil {
			_ = historyClient.Close()
		}
		_ = dbPair.Close()
		return nil, nil, fmt.Errorf("setup %s: %w", coord.Name(), err)
	}

	var bridge *mqtt.Bridge
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		bridge, mqttClient, err = startBridge(cfg.MQTT, coord, player, logger)
		if err != nil {
			_ = coord.Close()
			if historyClient != nil {
				_ = historyClient.Close()
			}
			_ = dbPair.Close()
			return nil, nil, err
		}
	}

	router := chi.NewRouter()
	router.Use(middleware.StripSlashes)
	router.Use(api.LoggerMiddleware(logger))
	router.Use(api.RequestIDMiddleware)
	router.Use(api.RecovererMiddleware)
	tokens := auth.NewTokens(cfg)
	router.Use(auth.Middleware(cfg, tokens))

	router.NotFound(api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		return apperrors.NewNotFoundError("No route for "+r.Method+" "+r.URL.Path, nil)
	}).ServeHTTP)

	registerHealthRoutes(router, coord)
	openapi.RegisterRoutes(router)
	auth.RegisterRoutes(router, tokens)
	mediaplayer.RegisterRoutes(router, player)
	audit.RegisterRoutes(router, auditService)
	stream.RegisterRoutes(router, hub, player)
	system.RegisterRoutes(router, system.NewService(cfg, dbPair, logger, coord, hub, auditService))

	auditService.StartPruneJob()
	recorder.RecordLifecycle(audit.EventSystemStartup, "cambridge-hub started", map[string]any{
		"coordinator": coord.Name(),
		"interval":    coord.Interval().String(),
	})

	shutdown := func(ctx context.Context) error {
		recorder.RecordLifecycle(audit.EventSystemShutdown, "cambridge-hub stopping", nil)
		if bridge != nil {
			bridge.Stop()
			_ = mqttClient.Close()
		}
		hub.Close()
		closeErr := coord.Close()
		if historyClient != nil {
			_ = historyClient.Close()
		}
		auditService.StopPruneJob()
		return errors.Join(closeErr, dbPair.Close())
	}

	return router, shutdown, nil
}

func startBridge(cfg config.MQTTConfig, coord *coordinator.Coordinator, player *mediaplayer.Player, logger *log.Logger) (*mqtt.Bridge, *mqtt.Client, error) {
	snapshot, err := coord.Snapshot()
	if err != nil {
		return nil, nil, err
	}
	topics := mqtt.Topics{Prefix: cfg.TopicPrefix, UnitID: snapshot.Identity.UnitID}

	client, err := mqtt.Connect(cfg, topics.Will(), logger)
	if err != nil {
		return nil, nil, err
	}
	bridge := mqtt.NewBridge(client, player, mqtt.BridgeOptions{
		Prefix: topics.Prefix,
		UnitID: topics.UnitID,
		QoS:    cfg.QoS,
		Logger: logger,
	})
	bridge.Attach(coord)
	if err := bridge.Start(); err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return bridge, client, nil
}

func registerHealthRoutes(router chi.Router, coord *coordinator.Coordinator) {
	router.Method(http.MethodGet, "/v1/health", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		status := coord.Status()
		response := map[string]any{
			"status":      "healthy",
			"service":     "cambridge-hub",
			"timestamp":   time.Now().UTC().Format(time.RFC3339),
			"coordinator": status,
			"available":   status.Available(),
		}
		return api.WriteJSON(w, http.StatusOK, response)
	}))
	router.Method(http.MethodGet, "/v1/health/live", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		return api.WriteJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	}))
	router.Method(http.MethodGet, "/v1/health/ready", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		status := coord.Status()
		if status.State != coordinator.StateReady || !status.HasSnapshot {
			return api.WriteJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status": "not_ready",
				"state":  status.State,
			})
		}
		return api.WriteJSON(w, http.StatusOK, map[string]any{
			"status":    "ready",
			"available": status.Available(),
		})
	}))
}
