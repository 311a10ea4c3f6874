package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"thermostat_runtime/internal/config"
	"thermostat_runtime/internal/handlers"
	"thermostat_runtime/internal/logger"
	"thermostat_runtime/internal/repository"
	"thermostat_runtime/internal/repository/db"
	"thermostat_runtime/internal/server"
	"thermostat_runtime/internal/service"
	"thermostat_runtime/internal/session"
	"thermostat_runtime/internal/sink"
)

const shutdownTimeout = 15 * time.Second

// app holds the long-lived components that need an ordered shutdown.
type app struct {
	engine     *service.Engine
	persister  *service.Persister
	dispatcher *sink.Dispatcher
	mqtt       *sink.MQTTSink
}

func main() {
	// load configs/config.yml + THERMO_* overrides
	cfg, err := config.Load("configs")
	if err != nil {
		logger.Get(logger.InfoLevel).Fatalw("error reading config", "err", err)
	}

	log := logger.GetWithFormat(cfg.Log.Level, cfg.Log.Format)
	defer func() { _ = log.Sync() }()

	// open DB
	conn, err := db.InitDB(cfg.DBPath)
	if err != nil {
		log.Fatalw("failed to init sqlite", "err", err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			log.Errorw("failed to close sqlite", "err", cerr)
		}
	}()

	repos := repository.NewRepository(conn)

	// context for background goroutines
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := startRuntime(ctx, cfg, repos, log)
	if err != nil {
		log.Fatalw("failed to start runtime", "err", err)
	}

	services := service.NewService(repos, service.Deps{
		Engine:     rt.engine,
		Delivery:   rt.dispatcher,
		Persister:  rt.persister,
		Log:        log.Named("service"),
		SigningKey: cfg.Auth.SigningKey,
		TokenTTL:   cfg.Auth.TokenTTL,
		StaleAfter: cfg.Runtime.StaleAfter,
	})

	// expire idle sessions and fan tails
	go services.Sweeper.Run(ctx, cfg.Runtime.SweepInterval)

	apiHandler := handlers.NewHandler(services, log.Named("http"), cfg.Webhook.Token)

	// start HTTP server
	srv := &server.Server{}
	runHTTPServer(srv, cfg.Port, apiHandler, log)

	// graceful shutdown
	waitForShutdown(cancel, srv, rt, log)
}

// startRuntime builds the delivery, persistence and engine layers, restores
// open sessions from the last run and starts the workers.
func startRuntime(ctx context.Context, cfg config.Config, repos *repository.Repository, log *logger.Logger) (*app, error) {
	rt := &app{}

	sinks, mqttSink, err := buildSinks(cfg.Sinks, log)
	if err != nil {
		return nil, err
	}
	rt.mqtt = mqttSink

	rt.dispatcher = sink.NewDispatcher(log.Named("sink"), sinks, sink.Options{
		Workers:   cfg.Sinks.Workers,
		QueueSize: cfg.Sinks.QueueSize,
		MaxTries:  cfg.Sinks.MaxTries,
		Timeout:   cfg.Sinks.Timeout,
	})
	rt.dispatcher.Start()

	rt.persister = service.NewPersister(repos.StateRepo, repos.SessionRepo, log.Named("persist"), cfg.Runtime.PersistQueue)
	rt.persister.Start()

	machine := session.NewMachine(cfg.Engine, nil)
	rt.engine = service.NewEngine(machine, rt.persister, rt.dispatcher, log.Named("engine"), service.EngineOptions{
		Workers:        cfg.Runtime.Workers,
		QueueSize:      cfg.Runtime.QueueSize,
		ProcessTimeout: cfg.Runtime.ProcessTimeout,
	})

	recovery := service.NewRecoveryService(repos.StateRepo, repos.SessionRepo, machine, log.Named("recovery"), cfg.Runtime.RecoveryLimit)
	states, err := recovery.Recover(ctx)
	if err != nil {
		// a cold start is still usable; sessions resume on the next reading
		log.Errorw("recovery_failed", "err", err)
	}
	rt.engine.Restore(states)
	rt.engine.Start()

	log.Infow("runtime started",
		"sinks", len(sinks),
		"restored", len(states),
		"workers", cfg.Runtime.Workers,
	)
	return rt, nil
}

// buildSinks returns every configured outbound sink. The MQTT sink is also
// returned separately so main can disconnect it on shutdown.
func buildSinks(cfg config.SinksConfig, log *logger.Logger) ([]sink.Sink, *sink.MQTTSink, error) {
	client := &http.Client{Timeout: cfg.Timeout}

	var sinks []sink.Sink
	if cfg.StatusWebhookURL != "" {
		sinks = append(sinks, sink.NewWebhookSink(cfg.StatusWebhookURL, client))
	}
	if cfg.IngestURL != "" {
		sinks = append(sinks, sink.NewIngestSink(cfg.IngestURL, cfg.IngestAPIKey, client))
	}

	var mqttSink *sink.MQTTSink
	if cfg.MQTT.Broker != "" {
		s, err := sink.NewMQTTSink(sink.MQTTOptions{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Topic:    cfg.MQTT.Topic,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
			QoS:      cfg.MQTT.QoS,
		})
		if err != nil {
			return nil, nil, err
		}
		mqttSink = s
		sinks = append(sinks, s)
	}

	if len(sinks) == 0 {
		log.Warnw("no outbound sinks configured; payloads will be dropped")
	}
	return sinks, mqttSink, nil
}

// runHTTPServer runs the HTTP server in a separate goroutine.
func runHTTPServer(srv *server.Server, port string, handler *handlers.Handler, log *logger.Logger) {
	go func() {
		if port == "" {
			port = "8080"
		}
		log.Infow("http server listening", "port", port)
		if err := srv.Run(port, handler.InitRoutes()); err != nil {
			log.Fatalw("error starting server", "err", err)
		}
	}()
}

// waitForShutdown listens for termination signals and stops components in
// dependency order: ingress first, then the engine, then its downstream
// writers.
func waitForShutdown(cancel context.CancelFunc, srv *server.Server, rt *app, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down server...")

	ctx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// allow in-flight requests to complete
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorw("server forced to shutdown", "err", err)
	}

	// stop background goroutines
	cancel()

	if err := rt.engine.Close(ctx); err != nil {
		log.Errorw("engine_close_failed", "err", err)
	}
	if err := rt.persister.Close(ctx); err != nil {
		log.Errorw("persister_close_failed", "err", err)
	}
	if err := rt.dispatcher.Close(ctx); err != nil {
		log.Errorw("dispatcher_close_failed", "err", err)
	}
	if rt.mqtt != nil {
		if err := rt.mqtt.Close(); err != nil {
			log.Errorw("mqtt_close_failed", "err", err)
		}
	}

	stats := rt.dispatcher.Stats()
	log.Infow("shutdown complete",
		"delivered", stats.Delivered,
		"failed", stats.Failed,
		"dropped", stats.Dropped,
	)
}
