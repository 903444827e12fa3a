package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/example/appointment-scheduler/internal/application"
	"github.com/example/appointment-scheduler/internal/config"
	"github.com/example/appointment-scheduler/internal/events"
	httptransport "github.com/example/appointment-scheduler/internal/http"
	"github.com/example/appointment-scheduler/internal/jobs"
	"github.com/example/appointment-scheduler/internal/persistence/sqlite"
	"github.com/example/appointment-scheduler/internal/refdata"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	db, err := sqlite.Open(cfg.DatabasePath)
	if err != nil {
		logger.Error("failed to open storage", "error", err)
		os.Exit(1)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	seriesRepo := sqlite.NewSeriesRepository(db)
	setRepo := sqlite.NewSetRepository(db)
	jobRepo := sqlite.NewJobRepository(db)

	catalogue, directory, err := loadReferenceData(cfg.RefdataPath)
	if err != nil {
		logger.Error("failed to load reference data", "error", err)
		os.Exit(1)
	}
	resolver, err := refdata.NewCachedResolver(catalogue, cfg.RefdataCacheSize)
	if err != nil {
		logger.Error("failed to build reference data cache", "error", err)
		os.Exit(1)
	}

	var emitter events.Emitter = &events.LogEmitter{Logger: logger}
	if cfg.AMQPURL != "" {
		publisher, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
		if err != nil {
			logger.Error("failed to connect to the message broker", "error", err)
			os.Exit(1)
		}
		defer func() {
			if cerr := publisher.Close(); cerr != nil {
				logger.Error("failed to close the message broker connection", "error", cerr)
			}
		}()
		emitter = publisher
	}

	idGenerator := uuid.NewString
	now := time.Now

	runner := jobs.NewRunner(jobRepo, &events.LogMonitor{Logger: logger}, logger, idGenerator, now, cfg.JobRetries)

	nightly := jobs.NewNightly(runner, jobRepo, logger, now, cfg.JobRetention)
	if err := nightly.Start(cfg.NightlySpec); err != nil {
		logger.Error("failed to schedule nightly housekeeping", "error", err)
		os.Exit(1)
	}
	defer nightly.Stop()

	service := application.NewAppointmentService(
		seriesRepo,
		setRepo,
		jobRepo,
		resolver,
		directory,
		emitter,
		runner,
		logger,
		idGenerator,
		now,
		cfg.BulkThreshold,
	)

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Series:      httptransport.NewSeriesHandler(service, logger),
		Sets:        httptransport.NewSetHandler(service, logger),
		Occurrences: httptransport.NewOccurrenceHandler(service, logger),
		Jobs:        httptransport.NewJobHandler(service, logger),
		Middleware: []func(http.Handler) http.Handler{
			httptransport.RequestLogger(logger),
			httptransport.CallerIdentity(),
		},
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("appointments API listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server encountered error", "error", err)
		os.Exit(1)
	}
}

// referenceDataFile is the on-disk shape of the reference catalogue and the
// booking directory. The file is optional; without one a small built-in
// catalogue is served so the service can run standalone.
type referenceDataFile struct {
	Categories []refdata.Category          `json:"categories"`
	Tiers      []refdata.Tier              `json:"tiers"`
	Locations  []refdata.Location          `json:"locations"`
	Organisers []refdata.Organiser         `json:"organisers"`
	Bookings   map[string]map[string]int64 `json:"bookings"`
}

func loadReferenceData(path string) (*refdata.StaticResolver, *refdata.StaticDirectory, error) {
	if path == "" {
		return builtinCatalogue(), &refdata.StaticDirectory{Bookings: map[string]map[string]int64{}}, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read reference data %s: %w", path, err)
	}
	var file referenceDataFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, nil, fmt.Errorf("parse reference data %s: %w", path, err)
	}

	resolver := &refdata.StaticResolver{
		Categories: make(map[string]refdata.Category, len(file.Categories)),
		Tiers:      make(map[string]refdata.Tier, len(file.Tiers)),
		Locations:  make(map[int64]refdata.Location, len(file.Locations)),
		Organisers: make(map[string]refdata.Organiser, len(file.Organisers)),
	}
	for _, category := range file.Categories {
		resolver.Categories[category.Code] = category
	}
	for _, tier := range file.Tiers {
		resolver.Tiers[tier.Code] = tier
	}
	for _, location := range file.Locations {
		resolver.Locations[location.ID] = location
	}
	for _, organiser := range file.Organisers {
		resolver.Organisers[organiser.ID] = organiser
	}

	bookings := file.Bookings
	if bookings == nil {
		bookings = map[string]map[string]int64{}
	}
	return resolver, &refdata.StaticDirectory{Bookings: bookings}, nil
}

func builtinCatalogue() *refdata.StaticResolver {
	return &refdata.StaticResolver{
		Categories: map[string]refdata.Category{
			"CHAP": {Code: "CHAP", Description: "Chaplaincy"},
			"MEDO": {Code: "MEDO", Description: "Medical - Doctor"},
			"GYMW": {Code: "GYMW", Description: "Gym - Weights"},
		},
		Tiers: map[string]refdata.Tier{
			"1": {Code: "1", Description: "Tier 1"},
			"2": {Code: "2", Description: "Tier 2"},
		},
		Locations: map[int64]refdata.Location{
			27: {ID: 27, Description: "Chapel"},
			35: {ID: 35, Description: "Health Care Centre"},
		},
		Organisers: map[string]refdata.Organiser{
			"org-1": {ID: "org-1", Name: "Prison staff"},
		},
	}
}
