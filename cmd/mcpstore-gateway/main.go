package main

import (
	"context"
	"database/sql"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"

	"github.com/triage-ai/mcpstore/internal/auth"
	"github.com/triage-ai/mcpstore/internal/config"
	"github.com/triage-ai/mcpstore/internal/datastore"
	"github.com/triage-ai/mcpstore/internal/logging"
	"github.com/triage-ai/mcpstore/internal/registry"
	"github.com/triage-ai/mcpstore/internal/server"
	"github.com/triage-ai/mcpstore/internal/session"
	"github.com/triage-ai/mcpstore/internal/storage"
)

func main() {
	cfg := config.Load()

	logger := logging.MustBuild(cfg.LogLevel)
	defer logger.Sync() //nolint:errcheck // best-effort flush

	logger.Info("starting mcpstore gateway",
		zap.String("port", cfg.GatewayPort),
		zap.String("transport", cfg.Transport),
		zap.String("url", cfg.URL),
	)

	catalog, err := cfg.Catalog()
	if err != nil {
		logger.Fatal("failed to load model catalog", zap.Error(err))
	}

	// Call events: ClickHouse or LogWriter fallback
	var events storage.EventWriter
	if cfg.ClickHouseDSN != "" {
		chWriter, err := storage.NewClickHouseWriter(cfg.ClickHouseDSN, logger)
		if err != nil {
			logger.Warn("clickhouse connection failed, falling back to log writer",
				zap.Error(err),
			)
			events = storage.NewLogWriter(logger)
		} else {
			events = chWriter
			logger.Info("clickhouse writer connected")
		}
	} else {
		events = storage.NewLogWriter(logger)
		logger.Info("no CLICKHOUSE_DSN set, using log writer")
	}
	defer events.Close()

	// Session and dispatcher
	sessionCfg, err := cfg.SessionConfig(nil)
	if err != nil {
		logger.Fatal("invalid session config", zap.Error(err))
	}
	sessions, err := session.NewManager(sessionCfg, session.WithLogger(logger))
	if err != nil {
		logger.Fatal("failed to create session manager", zap.Error(err))
	}
	defer func() { _ = sessions.Close() }()

	dispatcher, err := datastore.NewDispatcher(datastore.Config{
		Sessions: sessions,
		Events:   events,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatal("failed to create dispatcher", zap.Error(err))
	}

	// Postgres backs the tool registry and gateway keys when configured
	var db *sql.DB
	if cfg.PostgresDSN != "" {
		db, err = sql.Open("pgx", cfg.PostgresDSN)
		if err != nil {
			logger.Fatal("failed to open postgres", zap.Error(err))
		}
		defer func() { _ = db.Close() }()
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.PingContext(context.Background()); err != nil {
			logger.Fatal("failed to ping postgres", zap.Error(err))
		}
	}

	// Auth: configured hashes, then the gateway_keys table, then any msk_ key
	var authenticator auth.Authenticator
	switch {
	case len(cfg.GatewayKeyHashes) > 0:
		authenticator, err = auth.NewHashAuthenticator(cfg.GatewayKeyHashes, 30*time.Second, logger)
		if err != nil {
			logger.Fatal("invalid gateway key hashes", zap.Error(err))
		}
		logger.Info("hash authenticator configured", zap.Int("keys", len(cfg.GatewayKeyHashes)))
	case db != nil:
		if err := auth.EnsureKeysSchema(context.Background(), db); err != nil {
			logger.Fatal("failed to create gateway key schema", zap.Error(err))
		}
		authenticator = auth.NewPostgresAuthenticator(auth.PostgresAuthConfig{
			DB:       db,
			CacheTTL: 30 * time.Second,
			Logger:   logger,
		})
		logger.Info("postgres authenticator connected")
	default:
		authenticator = auth.NewStaticAuthenticator()
		logger.Warn("using static authenticator (no MCPSTORE_GATEWAY_API_KEY_HASHES or POSTGRES_DSN)")
	}

	// Tool registry: publish compiled descriptors to Postgres
	var toolRegistry registry.ToolRegistry
	if db != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := registry.EnsureSchema(ctx, db); err != nil {
			cancel()
			logger.Fatal("failed to create registry schema", zap.Error(err))
		}
		pgRegistry := registry.NewPostgresToolRegistry(registry.PostgresToolRegistryConfig{
			DB:       db,
			CacheTTL: cfg.RegistryCacheTTL,
			Logger:   logger,
		})
		defs, err := registry.DefinitionsForCatalog(catalog, nil)
		if err != nil {
			cancel()
			logger.Fatal("failed to compile tool descriptors", zap.Error(err))
		}
		changed, err := pgRegistry.Publish(ctx, defs)
		cancel()
		if err != nil {
			logger.Fatal("failed to publish tool descriptors", zap.Error(err))
		}
		toolRegistry = pgRegistry
		logger.Info("tool descriptors published",
			zap.Int("tools", len(defs)),
			zap.Int("changed", changed),
		)
	} else {
		logger.Info("no POSTGRES_DSN set, serving tools from the compiled catalog")
	}

	// gRPC server
	grpcServer := grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle:     5 * time.Minute,
			MaxConnectionAge:      30 * time.Minute,
			MaxConnectionAgeGrace: 10 * time.Second,
			Time:                  30 * time.Second,
			Timeout:               5 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             10 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.MaxRecvMsgSize(4*1024*1024),
		grpc.MaxSendMsgSize(4*1024*1024),
	)

	datastoreServer, err := server.NewDatastoreServer(server.Config{
		Store:         dispatcher,
		Catalog:       catalog,
		Registry:      toolRegistry,
		Authenticator: authenticator,
		Logger:        logger,
	})
	if err != nil {
		logger.Fatal("failed to create datastore server", zap.Error(err))
	}
	server.RegisterDatastoreServiceServer(grpcServer, datastoreServer)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(server.ServiceName, healthpb.HealthCheckResponse_SERVING)

	// Enable reflection for debugging with grpcurl
	reflection.Register(grpcServer)

	lis, err := net.Listen("tcp", ":"+cfg.GatewayPort)
	if err != nil {
		logger.Fatal("failed to listen", zap.String("port", cfg.GatewayPort), zap.Error(err))
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		healthServer.SetServingStatus(server.ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
		grpcServer.GracefulStop()
	}()

	logger.Info("mcpstore gateway listening", zap.String("addr", lis.Addr().String()))
	if err := grpcServer.Serve(lis); err != nil {
		logger.Fatal("grpc server failed", zap.Error(err))
	}
}
