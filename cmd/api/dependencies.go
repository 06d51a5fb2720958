package api

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kyodo-analytics/finmap/internal/domain/aggregation"
	"github.com/kyodo-analytics/finmap/internal/domain/chart"
	"github.com/kyodo-analytics/finmap/internal/domain/institution"
	"github.com/kyodo-analytics/finmap/internal/domain/mapping"
	"github.com/kyodo-analytics/finmap/internal/domain/upload"
	"github.com/kyodo-analytics/finmap/internal/llm"
	"github.com/kyodo-analytics/finmap/pkg/config"
	"github.com/kyodo-analytics/finmap/pkg/db"
)

// Dependencies holds all application dependencies
type Dependencies struct {
	Config *config.Config
	DB     *db.DB
	Logger *slog.Logger

	// Reference data
	ChartRepo chart.Repository
	Catalog   *chart.Catalog
	Loader    *chart.Loader

	// Repositories
	MappingRepo     mapping.Repository
	AggregationRepo aggregation.Repository
	UploadRepo      upload.Repository
	InstitutionRepo institution.Repository

	// Services
	LLMProvider        llm.Provider
	MappingService     *mapping.Service
	AggregationService *aggregation.Service
	UploadService      *upload.Service

	// Handlers
	ChartHandler       *chart.Handler
	MappingHandler     *mapping.Handler
	AggregationHandler *aggregation.Handler
	UploadHandler      *upload.Handler
	InstitutionHandler *institution.Handler
}

// InitDependencies initializes all application dependencies
func InitDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to init database: %w", err)
	}

	if err := deps.initReferenceData(ctx); err != nil {
		return nil, fmt.Errorf("failed to init reference data: %w", err)
	}

	if err := deps.initRepositories(); err != nil {
		return nil, fmt.Errorf("failed to init repositories: %w", err)
	}

	if err := deps.initServices(ctx); err != nil {
		return nil, fmt.Errorf("failed to init services: %w", err)
	}

	if err := deps.initHandlers(); err != nil {
		return nil, fmt.Errorf("failed to init handlers: %w", err)
	}

	logger.Info("all dependencies initialized successfully")

	return deps, nil
}

// initDatabase initializes the database connection and runs migrations
func (d *Dependencies) initDatabase() error {
	database, err := db.New(db.Config{
		DSN:             d.Config.DSNFromEnv(),
		MaxConns:        25,
		MinConns:        5,
		MaxConnLifetime: 5 * time.Minute,
		MaxConnIdleTime: 10 * time.Minute,
	}, d.Logger)
	if err != nil {
		return err
	}

	d.DB = database

	if err := d.DB.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	d.Logger.Info("database connected and migrations completed successfully")
	return nil
}

// initReferenceData loads the standard chart of accounts into the in-memory
// catalog. An empty catalog is not fatal; matching degrades to UNKNOWN until
// the reference tables are seeded.
func (d *Dependencies) initReferenceData(ctx context.Context) error {
	d.ChartRepo = chart.NewPostgresRepository(d.DB.Pool)
	d.Catalog = chart.NewCatalog(d.ChartRepo)
	d.Loader = chart.NewLoader(d.ChartRepo, d.Logger)

	if err := d.Catalog.Refresh(ctx); err != nil {
		return fmt.Errorf("failed to load account catalog: %w", err)
	}
	if d.Catalog.Size(chart.StatementBS) == 0 {
		d.Logger.Warn("standard account catalog is empty; seed the reference tables via /reference/accounts")
	}

	d.Logger.Info("account catalog loaded",
		slog.Int("bs_accounts", d.Catalog.Size(chart.StatementBS)),
		slog.Int("pl_accounts", d.Catalog.Size(chart.StatementPL)),
		slog.Int("cf_accounts", d.Catalog.Size(chart.StatementCF)))
	return nil
}

// initRepositories initializes all repository layer dependencies
func (d *Dependencies) initRepositories() error {
	d.MappingRepo = mapping.NewPostgresRepository(d.DB.Pool, d.Logger)
	d.AggregationRepo = aggregation.NewPostgresRepository(d.DB.Pool)
	d.UploadRepo = upload.NewPostgresRepository(d.DB.Pool)
	d.InstitutionRepo = institution.NewPostgresRepository(d.DB.Pool)

	d.Logger.Info("repositories initialized")
	return nil
}

// initServices initializes all service layer dependencies. The matching chain
// is ordered cheapest first: exact lookup, then the LLM stage when configured,
// then string similarity as the final automated fallback.
func (d *Dependencies) initServices(ctx context.Context) error {
	strategies := []mapping.Strategy{mapping.NewExactMatcher(d.Catalog)}

	if d.Config.LLM.Enabled() {
		provider, err := llm.NewGeminiProvider(ctx, d.Config.LLM)
		if err != nil {
			return fmt.Errorf("failed to init gemini provider: %w", err)
		}
		d.LLMProvider = provider
		strategies = append(strategies, mapping.NewAIMatcher(
			provider,
			d.Catalog,
			d.Config.LLM.MaxRetries,
			d.Config.LLM.RetryDelay,
			d.Logger,
		))
		d.Logger.Info("AI mapping stage enabled", slog.String("model", d.Config.LLM.Model))
	} else {
		d.Logger.Warn("GEMINI_API_KEY not set; AI mapping stage disabled")
	}

	strategies = append(strategies, mapping.NewSimilarityMatcher(
		d.Catalog,
		d.Config.Matching.SimilarityThreshold,
		d.Logger,
	))

	d.MappingService = mapping.NewService(
		d.MappingRepo,
		d.Catalog,
		strategies,
		d.Config.Matching.DefaultBatchSize,
		d.Logger,
	)
	d.AggregationService = aggregation.NewService(d.AggregationRepo, d.ChartRepo, d.Catalog, d.Logger)
	d.UploadService = upload.NewService(d.UploadRepo, d.Logger)

	d.Logger.Info("services initialized")
	return nil
}

// initHandlers initializes all handler dependencies
func (d *Dependencies) initHandlers() error {
	d.ChartHandler = chart.NewHandler(d.ChartRepo, d.Catalog, d.Loader, d.Logger)
	d.MappingHandler = mapping.NewHandler(d.MappingService, d.Logger)
	d.AggregationHandler = aggregation.NewHandler(d.AggregationService, d.Logger)
	d.UploadHandler = upload.NewHandler(d.UploadService, d.Logger)
	d.InstitutionHandler = institution.NewHandler(d.InstitutionRepo, d.Logger)

	d.Logger.Info("handlers initialized")
	return nil
}

// Cleanup closes all resources
func (d *Dependencies) Cleanup() {
	if d.DB != nil {
		d.DB.Close()
	}
	d.Logger.Info("cleanup completed")
}
