package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/ontology-impact/pkg/config"
	"github.com/ekaya-inc/ontology-impact/pkg/database"
	"github.com/ekaya-inc/ontology-impact/pkg/graphstore"
	"github.com/ekaya-inc/ontology-impact/pkg/handlers"
	"github.com/ekaya-inc/ontology-impact/pkg/logging"
	"github.com/ekaya-inc/ontology-impact/pkg/mcp"
	"github.com/ekaya-inc/ontology-impact/pkg/mcp/tools"
	"github.com/ekaya-inc/ontology-impact/pkg/metrics"
	"github.com/ekaya-inc/ontology-impact/pkg/middleware"
	"github.com/ekaya-inc/ontology-impact/pkg/models"
	"github.com/ekaya-inc/ontology-impact/pkg/ontology"
	"github.com/ekaya-inc/ontology-impact/pkg/repositories"
	"github.com/ekaya-inc/ontology-impact/pkg/retry"
	"github.com/ekaya-inc/ontology-impact/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

const shutdownTimeout = 15 * time.Second

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:           "ontology-impact",
		Short:         "Ontology change detection and dependency tracking",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Config file path (YAML)")
	cmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	cmd.AddCommand(
		serveCmd(&configPath, &debug),
		migrateCmd(&configPath, &debug),
		diffCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "ontology-impact %s\n", Version)
			},
		},
	)
	return cmd
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func serveCmd(configPath *string, debug *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and MCP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(*debug)
			if err != nil {
				return fmt.Errorf("create logger: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			cfg, err := config.LoadFrom(*configPath, Version)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("base_url", cfg.BaseURL),
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.ConnectionString())),
		zap.String("graph_store", logging.SanitizeConnectionString(cfg.GraphStore.QueryURL)),
		zap.Bool("persist_enabled", cfg.GraphStore.UpdateURL != ""),
	)

	collector := metrics.NewCollector()

	db, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := withMigrationDB(cfg, func(sqlDB *sql.DB) error {
		return database.RunMigrations(sqlDB, logger)
	}); err != nil {
		return err
	}

	store, err := graphstore.NewClient(graphStoreConfig(cfg.GraphStore), logger,
		graphstore.WithHTTPClient(&http.Client{Timeout: cfg.GraphStore.Timeout}),
		graphstore.WithStateListener(collector.BreakerStateChanged),
	)
	if err != nil {
		return fmt.Errorf("create graph store client: %w", err)
	}
	breakerState := func() string { return store.State().String() }

	// Services
	depRepo := repositories.NewDependencyRepository()
	snapshots := services.NewGraphStoreSnapshotSource(store, retry.GraphStoreConfig(), logger)
	var writer services.GraphWriter
	if cfg.GraphStore.UpdateURL != "" {
		writer = store
	}
	impactService := services.NewImpactService(depRepo, collector, logger)
	trackingService := services.NewChangeTrackingService(
		trackingConfig(cfg.Tracking), depRepo, snapshots, writer, impactService, collector, logger)
	validationService := services.NewDependencyValidationService(depRepo, snapshots, collector, logger)
	dependencyService := services.NewDependencyService(depRepo, logger)

	mux := http.NewServeMux()
	tenantMiddleware := handlers.TenantMiddleware(database.WithTenantContext(db, logger))

	handlers.NewHealthHandler(cfg, map[string]handlers.Pinger{
		"database":    db,
		"graph_store": store,
	}, breakerState, logger).RegisterRoutes(mux)
	handlers.NewOntologyHandler(trackingService, impactService, cfg.Tracking, logger).
		RegisterRoutes(mux, tenantMiddleware)
	handlers.NewDependencyHandler(trackingService, validationService, dependencyService, cfg.Tracking, logger).
		RegisterRoutes(mux, tenantMiddleware)
	mux.Handle("GET /metrics", collector.Handler())

	if cfg.MCP.Enabled {
		audit := mcp.NewAuditLogger(logger, collector)
		mcpServer := mcp.NewServer("ontology-impact", Version, logger, audit.Hooks())
		deps := &tools.ToolDeps{
			Tracking:      trackingService,
			Validation:    validationService,
			Dependencies:  dependencyService,
			Impact:        impactService,
			TenantContext: services.NewTenantContextFunc(db),
			Config:        cfg.Tracking,
			Logger:        logger,
		}
		tools.RegisterDependencyTools(mcpServer.MCP(), deps)
		tools.RegisterOntologyTools(mcpServer.MCP(), deps)
		tools.RegisterHealthTool(mcpServer.MCP(), Version, breakerState)

		mux.Handle("/mcp/{pid}", middleware.MCPRequestLogger(logger)(mcpServer.ProjectHandler()))
	}

	srv := &http.Server{
		Addr:              cfg.BindAddr + ":" + cfg.Port,
		Handler:           middleware.RequestLogger(logger, collector)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting ontology-impact",
			zap.String("addr", srv.Addr),
			zap.String("version", cfg.Version),
			zap.Bool("tls", cfg.TLSCertPath != ""),
		)
		if cfg.TLSCertPath != "" {
			serverErr <- srv.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
			return
		}
		serverErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func openDatabase(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*database.DB, error) {
	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.ConnectionString(),
		MaxConnections: cfg.Database.MaxConnections,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %s", logging.SanitizeError(err))
	}
	return db, nil
}

// withMigrationDB opens a database/sql handle for golang-migrate, separate
// from the pgx pool, and closes it after fn returns.
func withMigrationDB(cfg *config.Config, fn func(*sql.DB) error) error {
	sqlDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		return fmt.Errorf("open migration connection: %s", logging.SanitizeError(err))
	}
	defer sqlDB.Close()
	return fn(sqlDB)
}

func graphStoreConfig(cfg config.GraphStoreConfig) graphstore.Config {
	return graphstore.Config{
		QueryURL:  cfg.QueryURL,
		UpdateURL: cfg.UpdateURL,
		Username:  cfg.Username,
		Password:  cfg.Password,
		Timeout:   cfg.Timeout,
		Breaker: graphstore.BreakerConfig{
			MaxRequests:      cfg.Breaker.MaxRequests,
			Interval:         cfg.Breaker.Interval,
			Timeout:          cfg.Breaker.Timeout,
			FailureThreshold: cfg.Breaker.FailureThreshold,
			MinRequests:      cfg.Breaker.MinRequests,
		},
	}
}

func trackingConfig(cfg config.TrackingConfig) services.TrackingConfig {
	return services.TrackingConfig{
		IgnoreIRIs:       cfg.IgnoreIRIs,
		IgnoreNamespaces: cfg.IgnoreNamespaces,
		BookkeepingTypes: cfg.BookkeepingTypes,
		ClassifyOnSave:   cfg.ClassifyOnSave,
		ClassifyTimeout:  cfg.ClassifyTimeout,
	}
}

func migrateCmd(configPath *string, debug *bool) *cobra.Command {
	var steps int

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the dependency store schema",
	}

	run := func(apply func(sqlDB *sql.DB, logger *zap.Logger) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(*debug)
			if err != nil {
				return fmt.Errorf("create logger: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			cfg, err := config.LoadFrom(*configPath, Version)
			if err != nil {
				return err
			}
			return withMigrationDB(cfg, func(sqlDB *sql.DB) error {
				return apply(sqlDB, logger)
			})
		}
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE:  run(database.RunMigrations),
	}
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back applied migrations",
		RunE: run(func(sqlDB *sql.DB, logger *zap.Logger) error {
			return database.RollbackMigrations(sqlDB, steps, logger)
		}),
	}
	down.Flags().IntVar(&steps, "steps", 1, "Number of migrations to roll back")

	cmd.AddCommand(up, down)
	return cmd
}

// diffReport is the output of the diff command.
type diffReport struct {
	GraphIRI  string                `json:"graph_iri"`
	Changes   []models.ChangeRecord `json:"changes"`
	Summary   models.ChangeSummary  `json:"summary"`
	Conflicts []models.KindConflict `json:"conflicts"`
}

func diffCmd() *cobra.Command {
	var (
		graphIRI string
		format   string
	)

	cmd := &cobra.Command{
		Use:   "diff OLD.ttl NEW.ttl",
		Short: "Print the element changes between two Turtle documents",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			previous, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			current, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			report, err := diffDocuments(graphIRI, string(previous), string(current))
			if err != nil {
				return err
			}
			return writeReport(cmd.OutOrStdout(), report, format)
		},
	}
	cmd.Flags().StringVar(&graphIRI, "graph", "urn:ontology-impact:local", "Graph IRI assigned to both documents")
	cmd.Flags().StringVarP(&format, "format", "f", "json", "Output format (json, yaml)")
	return cmd
}

func diffDocuments(graphIRI, previousDoc, currentDoc string) (*diffReport, error) {
	previous, err := ontology.SnapshotFromDocument(graphIRI, previousDoc)
	if err != nil {
		return nil, fmt.Errorf("old document: %w", err)
	}
	current, err := ontology.SnapshotFromDocument(graphIRI, currentDoc)
	if err != nil {
		return nil, fmt.Errorf("new document: %w", err)
	}
	changes, err := ontology.Diff(previous, current)
	if err != nil {
		return nil, err
	}
	return &diffReport{
		GraphIRI:  graphIRI,
		Changes:   changes,
		Summary:   ontology.Summarize(changes),
		Conflicts: append(previous.Conflicts(), current.Conflicts()...),
	}, nil
}

func writeReport(w io.Writer, report *diffReport, format string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}

	switch strings.ToLower(format) {
	case "json":
		_, err = fmt.Fprintln(w, string(data))
		return err
	case "yaml":
		// Round-trip through JSON so YAML keys follow the json tags.
		var generic any
		if err := json.Unmarshal(data, &generic); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(generic); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}
