package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/fedbroker/fedbroker/pkg/cache"
	"github.com/fedbroker/fedbroker/pkg/config"
	"github.com/fedbroker/fedbroker/pkg/federation"
	"github.com/fedbroker/fedbroker/pkg/httputil"
	"github.com/fedbroker/fedbroker/pkg/observability"
	"github.com/fedbroker/fedbroker/pkg/policy"
)

func main() {
	startup := logrus.New()
	startup.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.LoadConfig()
	if err != nil {
		startup.WithError(err).Fatal("failed to load configuration")
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	db, err := openDatabase(cfg)
	if err != nil {
		startup.WithError(err).Fatal("failed to open database")
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	schemaCtx, schemaCancel := context.WithTimeout(ctx, cfg.Database.ConnTimeout)
	defer schemaCancel()
	if err := federation.EnsureSchema(schemaCtx, db); err != nil {
		startup.WithError(err).Fatal("failed to ensure federation schema")
	}
	if err := policy.EnsureSchema(schemaCtx, db); err != nil {
		startup.WithError(err).Fatal("failed to ensure policy schema")
	}

	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(prometheus.NewRegistry())
	}

	readCache, err := buildCache(ctx, cfg, metrics, logger)
	if err != nil {
		startup.WithError(err).Fatal("failed to initialize cache")
	}

	extractors, err := buildExtractors(ctx, cfg)
	if err != nil {
		startup.WithError(err).Fatal("failed to initialize auth frontends")
	}

	metadata := federation.NewMetadataServer(cfg.SAML.IdPMetadataPath, logger)
	if cfg.SAML.IdPMetadataPath != "" {
		if err := metadata.Load(); err != nil {
			logger.WithError(err).Warn("identity provider metadata not yet readable")
		}
		if err := metadata.Watch(ctx); err != nil {
			logger.WithError(err).Error("failed to start metadata watcher")
		}
	}

	pipeline := federation.NewRemotePipeline(cfg.Auth.TokenEndpoint, cfg.Auth.Timeout)
	handlers := federation.NewHandlers(federation.HandlersConfig{
		Storage:    federation.NewStorage(db),
		Mappings:   federation.NewMappingStorage(db),
		SPs:        federation.NewServiceProviderStorage(db, cfg.SAML.RelayStatePrefix),
		Aggregator: federation.NewAggregator(federation.NewAssignmentStorage(db)),
		Bridge:     federation.NewAuthBridge(pipeline, logger, metrics),
		Metadata:   metadata,
		Extractors: extractors,
		Enforcer:   policy.NewDBEnforcer(db),
		Cache:      readCache,
		Logger:     logger,
	})

	router := mux.NewRouter()
	router.Use(httputil.RequestIDMiddleware)
	router.Use(httputil.LoggingMiddleware(logger))
	if metrics != nil {
		router.Use(httputil.MetricsMiddleware(metrics))
		router.Handle("/metrics", metrics.Handler()).Methods("GET")
	}
	router.Use(httputil.RecoveryMiddleware(logger))
	router.Use(jsonBodyMiddleware)
	router.Use(federation.PrincipalMiddleware)
	handlers.RegisterRoutes(router)

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.WithFields(map[string]interface{}{
			"addr":   server.Addr,
			"driver": cfg.Database.Driver,
		}).Info("federation broker listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			startup.WithError(err).Fatal("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("graceful shutdown failed")
	}
}

func openDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Database.ConnTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func buildCache(ctx context.Context, cfg *config.Config, metrics *observability.Metrics, logger *observability.Logger) (cache.Cache, error) {
	if !cfg.Cache.Enabled {
		return nil, nil
	}

	var opts []cache.Option
	if metrics != nil {
		opts = append(opts, cache.WithMetrics(metrics))
	}
	if cfg.Cache.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.Cache.RedisURL)
		if err != nil {
			return nil, err
		}
		if cfg.Cache.RedisPassword != "" {
			redisOpts.Password = cfg.Cache.RedisPassword
		}
		if cfg.Cache.RedisDB != 0 {
			redisOpts.DB = cfg.Cache.RedisDB
		}

		client := redis.NewClient(redisOpts)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, err
		}
		logger.WithField("addr", redisOpts.Addr).Info("redis cache tier enabled")
		opts = append(opts, cache.WithRedis(client))
	}

	return cache.New(cfg.Cache.MaxEntries, cfg.Cache.TTL, opts...), nil
}

// buildExtractors creates the assertion frontends for each configured
// protocol. Protocols without a frontend still authenticate; the pipeline
// then sees only whatever assertion context the deployment's own gateway
// attached upstream.
func buildExtractors(ctx context.Context, cfg *config.Config) (map[string]federation.AssertionExtractor, error) {
	extractors := make(map[string]federation.AssertionExtractor)

	if cfg.SAML.IdPCertificatePath != "" {
		cert, err := os.ReadFile(cfg.SAML.IdPCertificatePath)
		if err != nil {
			return nil, err
		}
		frontend, err := federation.NewSAMLFrontend(federation.SAMLFrontendConfig{
			IdPSSOURL:      cfg.SAML.IdPSSOURL,
			IdPIssuer:      cfg.SAML.IdPIssuer,
			SPIssuer:       cfg.SAML.SPIssuer,
			CallbackURL:    cfg.SAML.CallbackURL,
			AudienceURI:    cfg.SAML.AudienceURI,
			IdPCertificate: string(cert),
		})
		if err != nil {
			return nil, err
		}
		extractors["saml2"] = frontend
	}

	if cfg.OIDC.IssuerURL != "" {
		frontend, err := federation.NewOIDCFrontend(ctx, federation.OIDCFrontendConfig{
			IssuerURL:    cfg.OIDC.IssuerURL,
			ClientID:     cfg.OIDC.ClientID,
			ClientSecret: cfg.OIDC.ClientSecret,
			RedirectURL:  cfg.OIDC.RedirectURL,
			Scopes:       cfg.OIDC.Scopes,
		})
		if err != nil {
			return nil, err
		}
		extractors["openid"] = frontend
	}

	return extractors, nil
}

// jsonBodyMiddleware enforces JSON bodies on the registry surface. The auth
// callback is exempt: SAML responses arrive form-encoded.
func jsonBodyMiddleware(next http.Handler) http.Handler {
	enforced := httputil.ContentTypeMiddleware(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/auth") {
			next.ServeHTTP(w, r)
			return
		}
		enforced.ServeHTTP(w, r)
	})
}
