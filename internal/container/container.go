package container

import (
	"context"
	"fmt"

	"goequity/adapters/excel"
	"goequity/adapters/markdown"
	"goequity/adapters/memory"
	"goequity/adapters/postgres"
	"goequity/adapters/rng"
	"goequity/app"
	"goequity/internal"
	"goequity/internal/api"
	"goequity/internal/config"
	"goequity/internal/migration"
	"goequity/ports"

	"github.com/jmoiron/sqlx"
)

// Container holds all application dependencies and manages their lifecycle
type Container struct {
	Config *config.Config
	Logger *internal.Logger

	// Infrastructure; nil when no database is configured
	DB *sqlx.DB

	RNG          ports.RNGPort
	AnalysisRepo ports.AnalysisRepository
	Service      *app.AnalysisService
	ProgressHub  *api.ProgressHub
}

// New creates a container. Storage is in memory until InitWithDatabase is
// called.
func New(cfg *config.Config, logger *internal.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		logger = internal.DefaultLogger
	}

	c := &Container{
		Config:       cfg,
		Logger:       logger,
		RNG:          rng.NewPCGAdapter(),
		AnalysisRepo: memory.NewAnalysisRepository(),
	}
	c.initService()
	return c, nil
}

// InitWithDatabase switches storage to PostgreSQL, running migrations first
// when configured to
func (c *Container) InitWithDatabase(ctx context.Context, db *sqlx.DB) error {
	if db == nil {
		return fmt.Errorf("database connection cannot be nil")
	}
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database connection test failed: %w", err)
	}
	c.DB = db

	if c.Config.Database.AutoMigrate {
		runner := migration.NewRunner()
		if err := runner.Run(ctx, db); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		c.Logger.Info("database schema at version %s", runner.Version())
	}

	c.AnalysisRepo = postgres.NewAnalysisRepository(db)
	c.initService()
	c.Logger.Info("container initialized with database storage")
	return nil
}

// Handler builds the API handler over the container's service
func (c *Container) Handler() *api.AnalysisHandler {
	if c.ProgressHub == nil {
		c.ProgressHub = api.NewProgressHub(c.Logger)
	}
	return api.NewAnalysisHandler(c.Service, c.ProgressHub, c.Logger)
}

func (c *Container) initService() {
	c.Service = app.NewAnalysisService(c.RNG, c.AnalysisRepo, c.Config.Simulation, c.Logger)
	c.Service.RegisterWriter("xlsx", excel.NewReportWriter())
	c.Service.RegisterWriter("md", markdown.NewMarkdownWriter())
	c.Service.RegisterWriter("html", markdown.NewHTMLWriter())
}

// Shutdown releases held resources
func (c *Container) Shutdown(ctx context.Context) error {
	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			return fmt.Errorf("failed to close database: %w", err)
		}
	}
	return nil
}
