package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	// Schema source adapters register themselves on import.
	_ "github.com/ekaya-inc/schema-graph/pkg/adapters/schemasource/mssql"
	_ "github.com/ekaya-inc/schema-graph/pkg/adapters/schemasource/mysql"
	_ "github.com/ekaya-inc/schema-graph/pkg/adapters/schemasource/postgres"
	_ "github.com/ekaya-inc/schema-graph/pkg/adapters/schemasource/sqlite"

	"github.com/ekaya-inc/schema-graph/pkg/auth"
	"github.com/ekaya-inc/schema-graph/pkg/config"
	"github.com/ekaya-inc/schema-graph/pkg/database"
	"github.com/ekaya-inc/schema-graph/pkg/graph"
	"github.com/ekaya-inc/schema-graph/pkg/graph/memory"
	"github.com/ekaya-inc/schema-graph/pkg/graph/neo4j"
	graphpg "github.com/ekaya-inc/schema-graph/pkg/graph/postgres"
	"github.com/ekaya-inc/schema-graph/pkg/handlers"
	"github.com/ekaya-inc/schema-graph/pkg/llm"
	"github.com/ekaya-inc/schema-graph/pkg/logging"
	"github.com/ekaya-inc/schema-graph/pkg/mcp"
	mcpauth "github.com/ekaya-inc/schema-graph/pkg/mcp/auth"
	"github.com/ekaya-inc/schema-graph/pkg/mcp/tools"
	"github.com/ekaya-inc/schema-graph/pkg/middleware"
	"github.com/ekaya-inc/schema-graph/pkg/repositories"
	"github.com/ekaya-inc/schema-graph/pkg/services"
	"github.com/ekaya-inc/schema-graph/pkg/sessions"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	importPath := flag.String("import", "", "import a YAML or JSON schema descriptor file at startup")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("base_url", cfg.BaseURL),
		zap.Bool("auth_verification", cfg.Auth.EnableVerification),
		zap.String("graph_backend", cfg.Graph.Backend),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.Bool("redis", cfg.Redis.Enabled()))

	ctx := context.Background()

	// PostgreSQL backs the chat log and usage log, and the graph unless
	// another backend is selected. The memory backend runs without it.
	var db *database.DB
	if cfg.Graph.Backend != config.GraphBackendMemory {
		db, err = openDatabase(ctx, cfg, logger)
		if err != nil {
			logger.Fatal("Failed to open database", zap.String("error", logging.SanitizeError(err)))
		}
		defer db.Close()
	}

	store, err := openGraphStore(ctx, cfg, db, logger)
	if err != nil {
		logger.Fatal("Failed to open graph store", zap.String("error", logging.SanitizeError(err)))
	}
	defer func() { _ = store.Close() }()

	var (
		turns     repositories.ChatTurnRepository
		usageRepo repositories.TokenUsageRepository
		recorder  *llm.AsyncUsageRecorder
	)
	if db != nil {
		turns = repositories.NewChatTurnRepository(db)
		if cfg.Usage.Persist {
			usageRepo = repositories.NewTokenUsageRepository(db)
			recorder = llm.NewAsyncUsageRecorder(usageRepo, logger, cfg.Usage.QueueSize)
			defer recorder.Close()
		}
	} else {
		turns = repositories.NewMemoryChatTurnRepository()
	}

	var ledger *llm.TokenLedger
	if recorder != nil {
		ledger = llm.NewTokenLedger(recorder)
	} else {
		ledger = llm.NewTokenLedger(nil)
	}

	provider, err := llm.NewProviderFromConfig(&cfg.LLM, ledger, logger)
	if err != nil {
		logger.Fatal("Failed to create LLM provider", zap.Error(err))
	}

	sessionStore, closeSessions, err := openSessionStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to open session store", zap.String("error", logging.SanitizeError(err)))
	}
	defer closeSessions()

	// Services
	sessionService := services.NewSessionService(sessionStore, cfg.Auth.SessionTTL, logger)
	extractor := services.NewEntityExtractor(provider, logger)
	chatService := services.NewChatService(extractor, store, provider, turns, sessionService, cfg.Chat, logger)
	importService := services.NewSchemaImportService(store, logger)
	lookupService := services.NewSchemaLookupService(store, services.DefaultLookupLimit, logger)
	exportService := services.NewExportService(store, cfg.Export, logger)
	usageService := services.NewTokenUsageService(ledger, usageRepo, logger)

	if *importPath != "" {
		if err := importDescriptorFile(ctx, importService, *importPath, logger); err != nil {
			logger.Fatal("Startup import failed", zap.String("path", *importPath), zap.Error(err))
		}
	}

	// Auth
	validator, err := auth.NewJWKSClient(ctx, &auth.ValidatorConfig{
		EnableVerification: cfg.Auth.EnableVerification,
		JWKSEndpoints:      cfg.Auth.JWKSEndpoints,
		HMACSecret:         cfg.Auth.JWTSecret,
	})
	if err != nil {
		logger.Fatal("Failed to create token validator", zap.Error(err))
	}
	defer validator.Close()
	if !cfg.Auth.EnableVerification {
		logger.Warn("Token verification is disabled; do not run this configuration in production")
	}
	authService := auth.NewAuthService(validator, logger)
	authMiddleware := auth.NewMiddleware(authService, logger)

	mux := http.NewServeMux()

	// Register handlers
	handlers.NewHealthHandler(cfg, store, logger).RegisterRoutes(mux)
	handlers.NewSessionHandler(sessionService, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewChatHandler(chatService, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewSchemaHandler(importService, lookupService, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewExportHandler(exportService, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewUsageHandler(usageService, logger).RegisterRoutes(mux, authMiddleware)

	if cfg.MCP.Enabled {
		mcpServer := mcp.NewServer("schema-graph", cfg.Version, logger)
		tools.RegisterHealthTool(mcpServer.MCP(), cfg.Version, store)
		tools.RegisterSchemaTools(mcpServer.MCP(), &tools.SchemaToolDeps{
			Chat:   chatService,
			Lookup: lookupService,
			Usage:  usageService,
			Logger: logger,
		})
		handlers.NewMCPHandler(mcpServer, logger).RegisterRoutes(mux, mcpauth.NewMiddleware(authService, logger))
	}

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           middleware.RequestLogger(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
		// Chat and export requests wait on providers and file writes.
		WriteTimeout: cfg.RequestTimeout + cfg.Export.Timeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting schema-graph",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version),
			zap.Bool("tls", cfg.TLSCertPath != ""))
		if cfg.TLSCertPath != "" {
			serverErr <- server.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
			return
		}
		serverErr <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	case sig := <-stop:
		logger.Info("Shutting down", zap.String("signal", sig.String()))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Graceful shutdown failed", zap.Error(err))
		}
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "local" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func openDatabase(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*database.DB, error) {
	connStr := cfg.Database.ConnectionString()
	logger.Info("Connecting to PostgreSQL", zap.String("url", logging.SanitizeConnectionString(connStr)))

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            connStr,
		MaxConnections: cfg.Database.MaxConnections,
		MinConnections: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		return nil, err
	}

	sqlDB := db.SQLDB()
	defer sqlDB.Close()
	if err := database.RunMigrations(sqlDB, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}

func openGraphStore(ctx context.Context, cfg *config.Config, db *database.DB, logger *zap.Logger) (graph.Store, error) {
	switch cfg.Graph.Backend {
	case config.GraphBackendMemory:
		logger.Warn("Using in-memory graph store; the graph is lost on restart")
		return memory.New(), nil
	case config.GraphBackendNeo4j:
		return neo4j.NewStore(ctx, neo4j.Config{
			URI:          cfg.Graph.Neo4jURI,
			User:         cfg.Graph.Neo4jUser,
			Password:     cfg.Graph.Neo4jPassword,
			Database:     cfg.Graph.Neo4jDatabase,
			QueryTimeout: cfg.Graph.QueryTimeout,
		}, logger)
	default:
		return graphpg.NewStore(db, cfg.Graph.QueryTimeout, logger), nil
	}
}

func openSessionStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (sessions.Store, func(), error) {
	client, err := database.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	if client != nil {
		logger.Info("Using Redis session cache", zap.String("addr", cfg.Redis.Addr()))
		return sessions.NewRedisStore(client, logger), func() { closeRedis(client, logger) }, nil
	}

	logger.Info("Using in-memory session cache")
	store := sessions.NewMemoryStore(10000)
	store.StartCleanup(time.Minute)
	return store, func() { _ = store.Close() }, nil
}

func closeRedis(client *redis.Client, logger *zap.Logger) {
	if err := client.Close(); err != nil {
		logger.Warn("Failed to close Redis client", zap.Error(err))
	}
}

func importDescriptorFile(ctx context.Context, importService services.SchemaImportService, path string, logger *zap.Logger) error {
	descriptors, err := services.LoadDescriptorsFile(path)
	if err != nil {
		return err
	}

	report, err := importService.Import(ctx, descriptors)
	if err != nil {
		return err
	}

	logger.Info("Imported schema descriptors",
		zap.String("path", path),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.String("linking", report.Linking.Status))
	if !report.OK() {
		logger.Warn("Schema import was partial; see the report for failed items and links")
	}
	return nil
}
