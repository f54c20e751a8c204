package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/pulse/internal/config"
	"github.com/MrSnakeDoc/pulse/internal/httpserver"
	"github.com/MrSnakeDoc/pulse/internal/httpserver/deps"
	"github.com/MrSnakeDoc/pulse/internal/logger"
	"github.com/MrSnakeDoc/pulse/internal/redis"
	"github.com/MrSnakeDoc/pulse/internal/resources"
	"github.com/MrSnakeDoc/pulse/internal/scheduler"
	"github.com/MrSnakeDoc/pulse/internal/session"
	redisstore "github.com/MrSnakeDoc/pulse/internal/store/redis"
	"github.com/MrSnakeDoc/pulse/internal/upstream"
	"github.com/MrSnakeDoc/pulse/internal/utils"
	"github.com/MrSnakeDoc/pulse/internal/version"
)

type App struct {
	cfg         *config.Config
	logger      logger.Logger
	server      *httpserver.Server
	transport   *upstream.Transport
	sessions    *session.Registry
	redisClient *goredis.Client
	bus         *redisstore.Bus
	reaper      *scheduler.SessionReaper
}

func New() *App {
	cfg := config.Load()

	loggerClient := logger.New(cfg.LogLevel, cfg.PrettyLog)

	descriptors, err := resources.LoadRegistry(cfg.ResourcesFile)
	if err != nil {
		loggerClient.Errorf("Failed to load resource descriptors: %v", err)
		os.Exit(1)
	}

	transport := upstream.NewTransport(upstream.TransportConfig{
		BaseURL:   cfg.APIBaseURL,
		Prefix:    cfg.APIPrefix,
		Token:     cfg.APIToken,
		Timeout:   cfg.RequestTimeout,
		UserAgent: "pulse/" + version.Version,
	})

	sessions := session.NewRegistry(transport, descriptors, loggerClient, session.Options{
		IdleTTL:        cfg.SessionIdleTTL,
		SearchDebounce: cfg.SearchDebounce,
		RollupParallel: cfg.RollupParallel,
	})

	// Redis is optional: without it invalidation stays inside this process.
	var (
		redisClient *goredis.Client
		bus         *redisstore.Bus
	)
	if cfg.RedisEnabled() {
		loggerClient.Infof("Connecting to Redis at %s", cfg.RedisAddr)
		redisClient, err = redis.New(context.Background(), redis.ConnectOptions{
			Addr:           cfg.RedisAddr,
			User:           cfg.RedisUser,
			Password:       cfg.RedisPassword,
			RedisDB:        cfg.RedisDB,
			DialTimeout:    cfg.RedisDT,
			ReadTimeout:    cfg.RedisRT,
			WriteTimeout:   cfg.RedisWT,
			PoolSize:       cfg.RedisPoolSize,
			ConnectTimeout: cfg.RedisConnectTimeout,
			RetryInterval:  cfg.RedisRetryInterval,
			MaxWait:        cfg.RedisMaxWait,
			PingTimeout:    cfg.RedisPingTimeout,
			WarnThreshold:  cfg.RedisWarnThreshold,
		}, loggerClient)
		if err != nil {
			loggerClient.Errorf("Failed to connect to Redis: %v", err)
			os.Exit(1)
		}

		bus = redisstore.NewBus(redisClient, replicaID(), loggerClient)
		sessions.SetPublisher(bus)
		loggerClient.Info("cross-replica invalidation enabled",
			logger.String("origin", bus.Origin()))
	} else {
		loggerClient.Info("redis not configured, invalidation stays process-local")
	}

	d := deps.Deps{
		Logger:               loggerClient,
		StartTime:            time.Now(),
		Version:              version.Version,
		Commit:               version.Commit,
		BuildDate:            version.BuildDate,
		GoVersion:            version.GoVersion,
		TimeNow:              time.Now,
		AllowedHosts:         cfg.AllowedHosts,
		AllowedCIDRS:         cfg.AllowedCIDRS,
		TrustProxy:           cfg.TrustProxy,
		MutationBurst:        cfg.MutationBurst,
		MutationRefillPerMin: cfg.MutationRefillPerMin,
		Sessions:             sessions,
		RedisClient:          redisClient,
	}
	if bus != nil {
		d.Mutations = bus
	}

	return &App{
		cfg:         cfg,
		logger:      loggerClient,
		server:      httpserver.New(cfg, loggerClient, d),
		transport:   transport,
		sessions:    sessions,
		redisClient: redisClient,
		bus:         bus,
		reaper:      scheduler.NewSessionReaper(sessions, loggerClient, cfg.SessionReapEvery),
	}
}

func (a *App) Run() error {
	a.logger.Infof("🚀 Starting Pulse v%s on %s", version.Version, a.cfg.ListenPort)
	a.logger.Info(version.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.reaper.Start(ctx)
	a.logger.Info("session reaper started",
		logger.Duration("interval", a.cfg.SessionReapEvery),
		logger.Duration("idle_ttl", a.cfg.SessionIdleTTL))

	var listener *scheduler.InvalidationListener
	if a.bus != nil {
		listener = scheduler.NewInvalidationListener(a.bus, a.sessions, a.logger)
		listener.Start(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("⏳ Shutting down gracefully...")
	case err := <-errCh:
		stop()
		return err
	}

	a.reaper.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}

	a.sessions.Close()
	if listener != nil {
		<-listener.Done()
	}

	utils.CloseLogged(a.logger, "upstream transport", a.transport)
	if a.redisClient != nil {
		utils.CloseLogged(a.logger, "redis", a.redisClient)
	}

	a.logger.Info("✅ Pulse stopped cleanly")
	return nil
}

// replicaID tags published invalidations so a replica ignores its own.
func replicaID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "pulse"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
