package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gorilla/mux"
	"gorm.io/gorm"
	gormlog "gorm.io/gorm/logger"

	"github.com/bitechdev/CrudlSpec/pkg/common/adapters/database"
	"github.com/bitechdev/CrudlSpec/pkg/config"
	"github.com/bitechdev/CrudlSpec/pkg/crudlspec"
	"github.com/bitechdev/CrudlSpec/pkg/errortracking"
	"github.com/bitechdev/CrudlSpec/pkg/logger"
	"github.com/bitechdev/CrudlSpec/pkg/metrics"
	"github.com/bitechdev/CrudlSpec/pkg/middleware"
	"github.com/bitechdev/CrudlSpec/pkg/server"
)

func main() {
	// Load configuration
	cfgMgr := config.NewManager()
	if err := cfgMgr.Load(); err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	cfg, err := cfgMgr.GetConfig()
	if err != nil {
		log.Fatalf("Failed to get configuration: %v", err)
	}

	// Initialize logger with configuration
	logger.Init(cfg.Logger.Dev)
	if cfg.Logger.Path != "" {
		logger.UpdateLoggerPath(cfg.Logger.Path, cfg.Logger.Dev)
	}
	logger.Info("CrudlSpec test server starting")

	// Initialize error tracking
	tracker, err := errortracking.NewProviderFromConfig(cfg.ErrorTracking)
	if err != nil {
		logger.Error("Failed to initialize error tracking: %v", err)
		os.Exit(1)
	}
	logger.InitErrorTracking(tracker)
	defer logger.CloseErrorTracking()

	// Initialize metrics
	var metricsProvider metrics.Provider = &metrics.NoOpProvider{}
	if cfg.Metrics.Enabled {
		metricsProvider = metrics.NewPrometheusProvider(&metrics.Config{
			Enabled:   true,
			Provider:  cfg.Metrics.Provider,
			Namespace: cfg.Metrics.Namespace,
		})
	}
	metrics.SetProvider(metricsProvider)

	// Open the database
	db, err := openDB(cfg)
	if err != nil {
		logger.Error("Failed to initialize database: %+v", err)
		os.Exit(1)
	}

	// Assemble controllers
	controllers, err := assembleControllers(db)
	if err != nil {
		logger.Error("Failed to assemble controllers: %v", err)
		os.Exit(1)
	}

	// Create router and register generated routes
	r := mux.NewRouter()
	crudlspec.SetupMuxRoutes(r, nil, controllers...)

	// Rate limiting and metrics middleware around everything
	rl := middleware.NewRateLimiter(cfg.Middleware.RateLimitRPS, cfg.Middleware.RateLimitBurst)
	r.Use(rl.Middleware)
	if p, ok := metricsProvider.(*metrics.PrometheusProvider); ok {
		r.Use(p.Middleware)
	}

	// Operational endpoints
	r.Handle("/metrics", metricsProvider.Handler()).Methods("GET")
	r.Handle("/rate-limit-stats", rl.StatsHandler()).Methods("GET")

	generator := crudlspec.NewOpenAPIGenerator(crudlspec.OpenAPIConfig{
		Title:   "CrudlSpec Test API",
		Version: "1.0.0",
	}, controllers...)
	r.HandleFunc("/openapi.json", generator.SpecHandler()).Methods("GET")

	// Create server manager
	mgr := server.NewManager()
	mgr.RegisterShutdownCallback(func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})

	serverCfg := server.Config{
		Name:            "crudlspec-test",
		Addr:            cfg.Server.Addr,
		Handler:         r,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		DrainTimeout:    cfg.Server.DrainTimeout,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
	}

	instance, err := mgr.Add(serverCfg)
	if err != nil {
		logger.Error("Failed to add server: %v", err)
		os.Exit(1)
	}

	r.HandleFunc("/health", instance.HealthCheckHandler()).Methods("GET")
	r.HandleFunc("/ready", instance.ReadinessHandler()).Methods("GET")

	logger.Info("Starting server on %s", cfg.Server.Addr)
	if err := mgr.ServeWithGracefulShutdown(); err != nil {
		logger.Error("Server failed: %v", err)
		os.Exit(1)
	}
}

// openDB opens the configured database through GORM and migrates the demo
// models.
func openDB(cfg *config.Config) (*gorm.DB, error) {
	logLevel := gormlog.Warn
	if cfg.Logger.Dev {
		logLevel = gormlog.Info
	}

	gormLogger := gormlog.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlog.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logLevel,
			IgnoreRecordNotFoundError: true,
			ParameterizedQueries:      true,
			Colorful:                  cfg.Logger.Dev,
		},
	)

	var dialector gorm.Dialector
	switch cfg.Database.Driver {
	case "postgres":
		sqlDB, err := database.OpenPostgresPool(cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres pool: %w", err)
		}
		dialector = database.GetPostgresDialector(sqlDB)
	case "sqlite", "":
		dialector = database.GetSQLiteDialector(cfg.Database.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Database.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	if err := db.AutoMigrate(&Publisher{}, &Author{}, &Book{}); err != nil {
		return nil, fmt.Errorf("failed to auto migrate: %w", err)
	}

	return db, nil
}

// assembleControllers builds the CRUD(L) controllers for the demo models.
func assembleControllers(db *gorm.DB) ([]*crudlspec.Controller, error) {
	publishers, err := crudlspec.AssembleWithGORM(db, &crudlspec.Config{
		Model: Publisher{},
		CreateFields: crudlspec.FieldSelection{
			"name":    crudlspec.Infer,
			"address": crudlspec.Infer,
		},
		GetOneFields:  crudlspec.AllFields(Publisher{}),
		UpdateFields:  crudlspec.FieldSelection{"name": crudlspec.Infer, "address": crudlspec.Infer},
		ListFields:    crudlspec.AllFields(Publisher{}),
		DeleteAllowed: true,
	})
	if err != nil {
		return nil, err
	}

	authors, err := crudlspec.AssembleWithGORM(db, &crudlspec.Config{
		Model: Author{},
		CreateFields: crudlspec.FieldSelection{
			"name":     crudlspec.Infer,
			"birthday": crudlspec.Infer,
		},
		GetOneFields:  crudlspec.AllFields(Author{}),
		UpdateFields:  crudlspec.FieldSelection{"name": crudlspec.Infer, "birthday": crudlspec.Infer},
		ListFields:    crudlspec.AllFields(Author{}),
		DeleteAllowed: true,
	})
	if err != nil {
		return nil, err
	}

	books, err := crudlspec.AssembleWithGORM(db, &crudlspec.Config{
		Model: Book{},
		CreateFields: crudlspec.FieldSelection{
			"title":        crudlspec.Infer,
			"isbn":         crudlspec.Infer,
			"published_at": crudlspec.Infer,
			"publisher":    crudlspec.Infer,
			"authors":      crudlspec.Infer,
		},
		GetOneFields: crudlspec.FieldSelection{
			"id":           crudlspec.Infer,
			"title":        crudlspec.Infer,
			"isbn":         crudlspec.Infer,
			"published_at": crudlspec.Infer,
			"publisher": crudlspec.FieldSelection{
				"id":   crudlspec.Infer,
				"name": crudlspec.Infer,
			},
			"authors": crudlspec.FieldSelection{
				"id":   crudlspec.Infer,
				"name": crudlspec.Infer,
			},
		},
		UpdateFields: crudlspec.FieldSelection{
			"title":        crudlspec.Infer,
			"isbn":         crudlspec.Infer,
			"published_at": crudlspec.Infer,
			"publisher":    crudlspec.Infer,
			"authors":      crudlspec.Infer,
		},
		ListFields: crudlspec.FieldSelection{
			"id":           crudlspec.Infer,
			"title":        crudlspec.Infer,
			"isbn":         crudlspec.Infer,
			"published_at": crudlspec.Infer,
			"publisher":    crudlspec.Infer,
		},
		DeleteAllowed: true,
	})
	if err != nil {
		return nil, err
	}

	return []*crudlspec.Controller{publishers, authors, books}, nil
}
