package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/Ramsey-B/bellflower/config"
	"github.com/Ramsey-B/bellflower/internal/handlers"
	"github.com/Ramsey-B/bellflower/pkg/chat"
	"github.com/Ramsey-B/bellflower/pkg/database"
	"github.com/Ramsey-B/bellflower/pkg/delivery"
	"github.com/Ramsey-B/bellflower/pkg/events"
	"github.com/Ramsey-B/bellflower/pkg/health"
	"github.com/Ramsey-B/bellflower/pkg/kafka"
	"github.com/Ramsey-B/bellflower/pkg/middleware"
	"github.com/Ramsey-B/bellflower/pkg/notify"
	"github.com/Ramsey-B/bellflower/pkg/redis"
	"github.com/Ramsey-B/bellflower/pkg/repositories"
	"github.com/Ramsey-B/bellflower/pkg/scheduler"
	"github.com/Ramsey-B/bellflower/pkg/startup"
	"github.com/Ramsey-B/bellflower/pkg/tracing"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the live chat sockets and the importance scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, flush, err := loadConfig()
			if err != nil {
				return err
			}
			defer flush()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return (&server{cfg: cfg, logger: logger}).run(ctx)
		},
	}
}

// server holds the process-wide handles created while starting up.
type server struct {
	cfg    *config.Config
	logger ectologger.Logger

	sqlDB    *sqlx.DB
	db       database.DB
	cache    *redis.Client
	producer *kafka.Producer
	registry *chat.Registry
	sched    *scheduler.Scheduler
	httpSrv  *http.Server
	served   chan error
}

func (s *server) run(ctx context.Context) error {
	shutdownTracing, err := tracing.Setup(ctx, s.cfg.AppName, s.cfg.OTLP())
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			s.logger.WithError(err).Warn("failed to flush traces")
		}
	}()

	boot := startup.NewStartup(s.logger, s.cfg.StartupMaxAttempts)
	boot.Add(s.infrastructure()...)
	if err := boot.Start(ctx); err != nil {
		s.shutdown(boot)
		return err
	}

	checker, e, err := s.build(ctx)
	if err != nil {
		s.shutdown(boot)
		return err
	}

	boot.Add(s.services(e)...)
	if err := boot.Start(ctx); err != nil {
		s.shutdown(boot)
		return err
	}
	checker.SetReady(true)
	s.logger.WithContext(ctx).Infof("%s listening on :%d", s.cfg.AppName, s.cfg.Port)

	select {
	case <-ctx.Done():
		s.logger.Info("Shutdown signal received")
	case err = <-s.served:
		s.logger.WithError(err).Error("HTTP server stopped unexpectedly")
	}

	checker.SetReady(false)
	if stopErr := s.shutdown(boot); stopErr != nil {
		return stopErr
	}
	return err
}

func (s *server) shutdown(boot *startup.Startup) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(s.cfg.ShutdownTimeoutSeconds)*time.Second)
	defer cancel()
	return boot.Stop(ctx)
}

// infrastructure returns the external connections in start order: database, redis, kafka.
func (s *server) infrastructure() []startup.Dependency {
	deps := []startup.Dependency{
		startup.Hook{
			Name: "database",
			StartFn: func(ctx context.Context) error {
				sqlDB, err := database.Connect(ctx, s.cfg.Database(), s.logger)
				if err != nil {
					return err
				}
				if s.cfg.DatabaseMigrateOnStart {
					migrations := database.NewMigrationService(s.logger, s.cfg.Migration())
					if err := migrations.MigratePostgres(sqlDB.DB, s.cfg.DatabaseName); err != nil {
						_ = sqlDB.Close()
						return err
					}
				}
				s.sqlDB = sqlDB
				s.db = database.NewDatabaseInstance(sqlDB, s.logger)
				return nil
			},
			StopFn: func(context.Context) error {
				return s.sqlDB.Close()
			},
		},
	}

	if s.cfg.RedisEnabled {
		deps = append(deps, startup.Hook{
			Name: "redis",
			StartFn: func(ctx context.Context) error {
				client, err := redis.NewClient(ctx, s.cfg.Redis(), s.logger)
				if err != nil {
					return err
				}
				s.cache = client
				return nil
			},
			StopFn: func(context.Context) error {
				return s.cache.Close()
			},
		})
	}

	if s.cfg.KafkaEnabled {
		deps = append(deps, startup.Hook{
			Name: "kafka",
			StartFn: func(context.Context) error {
				s.producer = kafka.NewProducer(s.cfg.Kafka(), s.logger)
				return nil
			},
			StopFn: func(context.Context) error {
				return s.producer.Close()
			},
		})
	}
	return deps
}

// services returns the in-process components in start order. Stopping runs in reverse, so the
// HTTP server stops accepting first and the live sockets are drained after the scheduler.
func (s *server) services(e *echo.Echo) []startup.Dependency {
	deps := []startup.Dependency{
		startup.Hook{
			Name: "chat",
			StopFn: func(context.Context) error {
				s.registry.Close()
				return nil
			},
		},
	}

	if s.cfg.SchedulerEnabled {
		deps = append(deps, startup.Hook{
			Name:    "scheduler",
			StartFn: s.sched.Start,
			StopFn:  s.sched.Stop,
		})
	}

	deps = append(deps, startup.Hook{
		Name: "http",
		StartFn: func(context.Context) error {
			listener, err := net.Listen("tcp", ":"+strconv.Itoa(s.cfg.Port))
			if err != nil {
				return err
			}
			s.httpSrv = s.httpServer(e)
			s.served = make(chan error, 1)
			go func() {
				if err := s.httpSrv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
					s.served <- err
				}
			}()
			return nil
		},
		StopFn: func(ctx context.Context) error {
			return s.httpSrv.Shutdown(ctx)
		},
	})
	return deps
}

func (s *server) httpServer(handler http.Handler) *http.Server {
	return &http.Server{
		Handler:           handler,
		ReadTimeout:       time.Duration(s.cfg.HttpServerReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.HttpServerWriteTimeoutSeconds) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.HttpServerIdleTimeoutSeconds) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.ReadHeaderTimeoutSeconds) * time.Second,
		MaxHeaderBytes:    s.cfg.MaxHeaderBytes,
	}
}

// build wires repositories, services and routes on top of the started infrastructure.
func (s *server) build(ctx context.Context) (*health.Checker, *echo.Echo, error) {
	cfg, logger := s.cfg, s.logger

	notifications := repositories.NewNotificationRepository(s.db, logger)
	users := repositories.NewUserRepository(s.db, logger)
	owners := repositories.NewOwnershipRepository(s.db, logger)
	chats := repositories.NewChatRepository(s.db, logger)
	messages := repositories.NewMessageRepository(s.db, logger)

	var publisher events.Publisher
	if s.producer != nil {
		publisher = s.producer
	}
	emitter := events.NewEmitter(publisher, logger)

	signalClient := delivery.NewSignalClient(cfg.Signal(), logger)
	var minter delivery.IdentifierMinter = delivery.UUIDMinter{}
	if cfg.SignalIdentifiersEnabled {
		minter = delivery.NewFallbackMinter(signalClient, logger)
	}
	dispatcher := notify.NewDispatcher(notifications, owners, users, signalClient, minter, emitter, logger, cfg.Notify())

	s.registry = chat.NewRegistry(cfg.ChatRegistry(), logger)
	chatService := chat.NewService(chat.NewGate(owners), messages, chats, s.registry, emitter, logger)

	var locker scheduler.Locker
	if s.cache != nil {
		locker = redis.NewLocker(s.cache, "")
	}
	s.sched = scheduler.NewScheduler(notifications, locker, cfg.Scheduler(), logger)

	authn, authMiddleware, err := s.authentication(ctx, users)
	if err != nil {
		return nil, nil, err
	}

	socketCfg := cfg.ChatSocket()
	socketCfg.CheckOrigin = originChecker(cfg.AllowOrigins)
	sockets := chat.NewSocketHandler(chatService, authn, socketCfg, logger)

	var cache health.CachePinger
	if s.cache != nil {
		cache = s.cache
	}
	checker := health.NewChecker(s.sqlDB, cache, cfg.Version)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(logger)
	e.Validator = middleware.Validator{}
	e.Use(
		echomw.Recover(),
		echomw.CORSWithConfig(echomw.CORSConfig{AllowOrigins: cfg.AllowOrigins, AllowMethods: cfg.AllowMethods}),
		otelecho.Middleware(cfg.AppName),
		middleware.Context(),
		middleware.Logger(logger),
	)

	checker.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	chatHandler := handlers.NewChatHandler(chatService, sockets, logger)
	chatHandler.RegisterSocket(e)

	api := e.Group("", authMiddleware)
	if cfg.RateLimitEnabled && s.cache != nil {
		api.Use(middleware.RateLimit(redis.NewRateLimiter(s.cache, ""), cfg.RateLimit(), logger))
	}
	handlers.NewNotificationHandler(dispatcher, notifications, logger).Register(api)
	chatHandler.Register(api)

	return checker, e, nil
}

// authentication picks the token verifier for AUTH_MODE. With auth disabled the caller's user
// uuid is taken as the token itself.
func (s *server) authentication(ctx context.Context, users middleware.UserLookup) (*middleware.Authenticator, echo.MiddlewareFunc, error) {
	if !s.cfg.AuthEnabled {
		s.logger.Warn("Authentication is disabled; callers are identified by the X-User-ID header")
		authn := middleware.NewAuthenticator(middleware.UserUUIDVerifier{}, users, s.logger)
		return authn, middleware.TestAuth(users, s.logger), nil
	}

	var verifier middleware.TokenVerifier
	switch s.cfg.AuthMode {
	case "jwt":
		verifier = middleware.NewJWTVerifier(s.cfg.AuthJWTSecret, s.cfg.AuthIssuerURL)
	default:
		oidcVerifier, err := middleware.NewOIDCVerifier(ctx, s.cfg.AuthIssuerURL, s.cfg.AuthClientID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create OIDC verifier: %w", err)
		}
		verifier = oidcVerifier
	}

	authn := middleware.NewAuthenticator(verifier, users, s.logger)
	return authn, middleware.Authentication(authn), nil
}

// originChecker accepts any origin when the allow list contains "*".
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 || ectolinq.Contains(allowed, "*") {
		return nil
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || ectolinq.Contains(allowed, origin)
	}
}
