// Package httpd implements the HTTP server for the dispatcher service.
package httpd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/north-cloud/dispatcher/internal/api"
	"github.com/jonesrussell/north-cloud/dispatcher/internal/clock"
	"github.com/jonesrussell/north-cloud/dispatcher/internal/config"
	"github.com/jonesrussell/north-cloud/dispatcher/internal/database"
	"github.com/jonesrussell/north-cloud/dispatcher/internal/executor"
	"github.com/jonesrussell/north-cloud/dispatcher/internal/job"
	"github.com/jonesrussell/north-cloud/dispatcher/internal/kafka"
	"github.com/jonesrussell/north-cloud/dispatcher/internal/logger"
	"github.com/jonesrussell/north-cloud/dispatcher/internal/scheduler"
	"github.com/jonesrussell/north-cloud/dispatcher/internal/worker"
)

const (
	signalChannelBufferSize = 1
	errorChannelBufferSize  = 1
)

// deps holds the wired application components.
type deps struct {
	cfg      *config.Config
	logger   logger.Interface
	db       *sqlx.DB
	producer *kafka.Producer
	engine   *scheduler.Engine
	pool     *worker.Pool
	service  *job.Service
}

// Start starts the HTTP server and runs until interrupted.
// It handles graceful shutdown on SIGINT or SIGTERM signals.
func Start() error {
	// Phase 1: Initialize Viper configuration
	if err := config.InitializeViper(); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(&cfg.Logger)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	// Phase 2: Wire storage, bus and scheduling
	d, err := buildDeps(cfg, log)
	if err != nil {
		return err
	}
	defer d.close()

	// Phase 3: Restore the persisted schedule and start dispatching
	runCtx, stopRun := context.WithCancel(context.Background())
	defer stopRun()

	if startErr := d.startScheduling(runCtx); startErr != nil {
		return startErr
	}

	// Phase 4: Start the HTTP server
	server, errChan := startHTTPServer(d)

	// Phase 5: Run until interrupted
	return runUntilInterrupt(d, server, errChan)
}

// buildDeps connects the database, ensures the schema, and wires the
// producer, engine, pool and service together.
func buildDeps(cfg *config.Config, log logger.Interface) (*deps, error) {
	db, err := database.NewPostgresConnection(database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := database.EnsureSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	jobRepo := database.NewJobRepository(db)
	triggerRepo := database.NewTriggerRepository(db)
	userRepo := database.NewUserRepository(db)

	producer := kafka.NewProducer(kafka.Config{
		Brokers:           cfg.Kafka.Brokers,
		Topic:             cfg.Kafka.Topic,
		Partitions:        cfg.Kafka.Partitions,
		ReplicationFactor: cfg.Kafka.ReplicationFactor,
		WriteTimeout:      cfg.Kafka.WriteTimeout,
	}, log)

	clk := clock.System()
	engine := scheduler.NewEngine(triggerRepo, clk, cfg.Scheduler.QueueCapacity, log)

	exec := executor.New(jobRepo, userRepo, triggerRepo, producer, log)
	pool, err := worker.NewPool(worker.Config{
		PoolSize:     cfg.Scheduler.PoolSize,
		FireTimeout:  cfg.Scheduler.FireTimeout,
		DrainTimeout: cfg.Scheduler.DrainTimeout,
	}, engine.Fires(), exec, engine.FireDone, log)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}

	service := job.NewService(db, jobRepo, engine, pool, clk, cfg.Scheduler.DefaultTimeZone, log)

	return &deps{
		cfg:      cfg,
		logger:   log,
		db:       db,
		producer: producer,
		engine:   engine,
		pool:     pool,
		service:  service,
	}, nil
}

// startScheduling ensures the topic, rehydrates the schedule and starts the
// engine and pool.
func (d *deps) startScheduling(ctx context.Context) error {
	if err := d.producer.EnsureTopic(ctx); err != nil {
		// Brokers with auto-creation handle this themselves.
		d.logger.Warn("Failed to ensure Kafka topic", "error", err)
	}

	d.engine.Start(ctx)
	if err := d.pool.Start(ctx); err != nil {
		return fmt.Errorf("failed to start worker pool: %w", err)
	}

	restored, err := d.engine.Restore(ctx)
	if err != nil {
		return fmt.Errorf("failed to restore schedule: %w", err)
	}
	d.logger.Info("Scheduling started", "restored_triggers", restored)
	return nil
}

// startHTTPServer creates and starts the HTTP server.
// Returns the server and an error channel for server errors.
func startHTTPServer(d *deps) (*http.Server, chan error) {
	router := api.NewRouter(d.service, d.logger)
	server := &http.Server{
		Addr:         d.cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  d.cfg.Server.ReadTimeout,
		WriteTimeout: d.cfg.Server.WriteTimeout,
		IdleTimeout:  d.cfg.Server.IdleTimeout,
	}

	d.logger.Info("Starting HTTP server", "addr", d.cfg.Server.Address)
	errChan := make(chan error, errorChannelBufferSize)
	go func() {
		if serveErr := server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errChan <- serveErr
		}
	}()

	return server, errChan
}

// runUntilInterrupt runs until a shutdown signal or a server error.
func runUntilInterrupt(d *deps, server *http.Server, errChan chan error) error {
	sigChan := make(chan os.Signal, signalChannelBufferSize)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case serverErr := <-errChan:
		d.logger.Error("Server error", "error", serverErr)
		return fmt.Errorf("server error: %w", serverErr)
	case sig := <-sigChan:
		return d.shutdown(server, sig)
	}
}

// shutdown stops intake first, then drains in-flight fires, then closes the
// producer and database.
func (d *deps) shutdown(server *http.Server, sig os.Signal) error {
	d.logger.Info("Shutdown signal received", "signal", sig.String())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), d.cfg.Server.ShutdownTimeout)
	defer cancel()

	d.logger.Info("Stopping HTTP server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		d.logger.Error("Failed to stop server", "error", err)
	}

	d.logger.Info("Stopping scheduler engine")
	d.engine.Stop()

	if err := d.pool.Stop(shutdownCtx); err != nil {
		d.logger.Error("Failed to stop worker pool", "error", err)
	}

	d.logger.Info("Server stopped successfully")
	return nil
}

// close releases the long-lived resources.
func (d *deps) close() {
	if d.producer != nil {
		if err := d.producer.Close(); err != nil {
			d.logger.Error("Failed to close producer", "error", err)
		}
	}
	if d.db != nil {
		d.db.Close()
	}
}
