// Command gateway is the Task Execution Engine's binary: it wires the
// Storage Layer, Provider Abstraction, Task Engine, Status Projector, and
// the minimal HTTP contract of §6 together and serves them. Grounded on
// the teacher's orchestrator main.go (go/orchestrator/main.go) for the
// overall shape — health checks first, metrics endpoint, Temporal client
// dial-with-retry, worker registration, graceful shutdown — generalized
// from the teacher's multi-queue agent-orchestration worker to this
// engine's single task queue and three-endpoint surface.
package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/geosentry/citation-engine/internal/auth"
	"github.com/geosentry/citation-engine/internal/circuitbreaker"
	cfg "github.com/geosentry/citation-engine/internal/config"
	"github.com/geosentry/citation-engine/internal/db"
	"github.com/geosentry/citation-engine/internal/engine"
	"github.com/geosentry/citation-engine/internal/health"
	"github.com/geosentry/citation-engine/internal/httpapi"
	"github.com/geosentry/citation-engine/internal/platformlock"
	"github.com/geosentry/citation-engine/internal/provider"
	"github.com/geosentry/citation-engine/internal/status"
	"github.com/geosentry/citation-engine/internal/temporal"
	"github.com/geosentry/citation-engine/internal/tracing"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	engineCfg, err := cfg.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	if err := tracing.Initialize(tracing.Config{
		Enabled:      engineCfg.Tracing.Enabled,
		ServiceName:  engineCfg.Tracing.ServiceName,
		OTLPEndpoint: engineCfg.Tracing.OTLPEndpoint,
	}, logger); err != nil {
		logger.Warn("failed to initialize tracing", zap.Error(err))
	}

	dbClient, err := db.NewClient(&db.Config{
		Host:     engineCfg.Database.Host,
		Port:     engineCfg.Database.Port,
		User:     engineCfg.Database.User,
		Password: engineCfg.Database.Password,
		Database: engineCfg.Database.Name,
		SSLMode:  engineCfg.Database.SSLMode,
	}, logger)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer dbClient.Close()

	pgDB := sqlx.NewDb(dbClient.GetDB(), "postgres")

	redisURL := engineCfg.RedisURL
	if redisURL == "" {
		redisURL = "redis://localhost:6379"
	}
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Fatal("failed to parse redis url", zap.Error(err))
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if _, err := redisClient.Ping(pingCtx).Result(); err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	pingCancel()

	redisWrapper := circuitbreaker.NewRedisWrapper(redisClient, logger)
	lockRegistry := platformlock.NewRegistry(redisWrapper, logger, 2*time.Minute)

	providers := provider.NewRegistry()
	providers.Register("bocha", provider.NewBochaProvider(engineCfg.Providers.BochaAPIKey, 30*time.Second, logger))
	// MaxWaitBudget must stay below the per-unit TimeoutMs the engine wraps
	// Search's ctx with (internal/engine/activities.go) or the generation-
	// stability poller's own engineerr.Timeout can never fire before the
	// ancestor ctx deadline does. Derived once here from the configured
	// default TimeoutMs; a TimeoutMs reloaded at runtime through
	// internal/config.DefaultsHolder, or a task's own timeout, does not
	// change it.
	unitTimeout := time.Duration(engineCfg.DefaultSettings.TimeoutMs) * time.Millisecond
	hostedChatWaitBudget := unitTimeout - unitTimeout/5 // 80% of the per-unit timeout

	providers.Register("deepseek", provider.NewHostedChatProvider(provider.HostedChatConfig{
		Platform:                "deepseek",
		ChatURL:                 "https://chat.deepseek.com/",
		ProfileRootDir:          engineCfg.BrowserProfileDir,
		PromptSelector:          "#chat-input",
		SubmitSelector:          "div[role=button].f6d670",
		AnswerContainerSelector: ".ds-markdown",
		APIURLSubstring:         "/api/v0/chat/completion",
		OwnDomains:              map[string]bool{"deepseek.com": true},
		Toggle:                  provider.NewDeepseekToggleStrategy(),
		Headless:                engineCfg.DefaultSettings.Headless,
		MaxWaitBudget:           hostedChatWaitBudget,
	}, logger))
	providers.Register("doubao", provider.NewHostedChatProvider(provider.HostedChatConfig{
		Platform:                "doubao",
		ChatURL:                 "https://www.doubao.com/chat/",
		ProfileRootDir:          engineCfg.BrowserProfileDir,
		PromptSelector:          "[data-testid=chat_input_input]",
		SubmitSelector:          "[data-testid=chat_input_send_button]",
		AnswerContainerSelector: "[data-testid=receive_message]",
		APIURLSubstring:         "/samantha/chat/completion",
		OwnDomains:              map[string]bool{"doubao.com": true},
		Toggle:                  provider.NewDoubaoToggleStrategy(),
		Headless:                engineCfg.DefaultSettings.Headless,
		MaxWaitBudget:           hostedChatWaitBudget,
	}, logger))

	temporalHost := getEnvOrDefault("TEMPORAL_HOST", "localhost:7233")
	for i := 1; i <= 30; i++ {
		if c, err := net.DialTimeout("tcp", temporalHost, 2*time.Second); err == nil {
			_ = c.Close()
			break
		}
		logger.Warn("waiting for temporal", zap.String("host", temporalHost), zap.Int("attempt", i))
		time.Sleep(time.Second)
	}
	temporalClient, err := client.Dial(client.Options{
		HostPort: temporalHost,
		Logger:   temporal.NewZapAdapter(logger),
	})
	if err != nil {
		logger.Fatal("failed to dial temporal", zap.Error(err))
	}
	defer temporalClient.Close()

	defaultsHolder := cfg.NewDefaultsHolder(engineCfg.DefaultSettings)
	runtimeDir := filepath.Join(filepath.Dir(resolveConfigPath()), "runtime")
	if configManager, err := cfg.NewConfigManager(runtimeDir, logger); err != nil {
		logger.Warn("failed to start runtime defaults watcher", zap.Error(err))
	} else {
		configManager.RegisterHandler("defaults.yaml", defaultsHolder.ApplyChangeEvent)
		configManager.RegisterHandler("defaults.json", defaultsHolder.ApplyChangeEvent)
		if err := configManager.Start(context.Background()); err != nil {
			logger.Warn("failed to start runtime defaults watcher", zap.Error(err))
		} else {
			defer configManager.Stop()
		}
	}

	eng := engine.New(engine.Dependencies{
		DB:        dbClient,
		Providers: providers,
		Locks:     lockRegistry,
		Logger:    logger,
		Defaults:  defaultsHolder,
	}, temporalClient)

	taskWorker := worker.New(temporalClient, engine.TaskQueueName, worker.Options{
		MaxConcurrentActivityExecutionSize: 4,
	})
	taskWorker.RegisterWorkflow(engine.TaskWorkflow)
	taskWorker.RegisterActivity(eng.Activities())
	go func() {
		logger.Info("temporal worker starting", zap.String("task_queue", engine.TaskQueueName))
		if err := taskWorker.Run(worker.InterruptCh()); err != nil {
			logger.Error("temporal worker exited", zap.Error(err))
		}
	}()

	authService := auth.NewService(pgDB, logger, getEnvOrDefault("JWT_SECRET", "change-me"))
	projector := status.New(dbClient.GetDB(), logger)

	taskHandler := httpapi.NewTaskHandler(eng, logger)
	statusHandler := httpapi.NewStatusHandler(projector, logger)
	exportHandler := httpapi.NewExportHandler(dbClient.GetDB(), logger)
	authHandler := httpapi.NewAuthHTTPHandler(authService, logger)

	healthManager := health.NewManager(logger)
	if err := healthManager.RegisterChecker(health.NewDatabaseHealthChecker(dbClient.Wrapper(), logger)); err != nil {
		logger.Warn("failed to register database health checker", zap.Error(err))
	}
	if err := healthManager.RegisterChecker(health.NewRedisHealthChecker(redisClient, redisWrapper, logger)); err != nil {
		logger.Warn("failed to register redis health checker", zap.Error(err))
	}
	if err := healthManager.RegisterChecker(health.NewTemporalHealthChecker(temporalClient, logger)); err != nil {
		logger.Warn("failed to register temporal health checker", zap.Error(err))
	}
	if err := healthManager.Start(context.Background()); err != nil {
		logger.Warn("failed to start health manager", zap.Error(err))
	}
	defer healthManager.Stop()
	healthHTTP := health.NewHTTPHandler(healthManager, logger)

	mux := http.NewServeMux()
	healthHTTP.RegisterRoutes(mux)
	authHandler.RegisterRoutes(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.Handle("POST /mock", httpapi.RequireAuth(authService, logger, http.HandlerFunc(taskHandler.Submit)))
	mux.Handle("GET /status", httpapi.RequireAuth(authService, logger, http.HandlerFunc(statusHandler.Get)))
	mux.Handle("GET /export", httpapi.RequireAuth(authService, logger, http.HandlerFunc(exportHandler.Export)))

	port := engineCfg.HTTPPort
	if port == 0 {
		port = 8080
	}
	server := &http.Server{
		Addr:         ":" + strconv.Itoa(port),
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("gateway starting", zap.Int("port", port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("gateway failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("gateway shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("gateway forced to shutdown", zap.Error(err))
	}
	taskWorker.Stop()
	logger.Info("gateway stopped")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// resolveConfigPath mirrors internal/config.Load's own CONFIG_PATH
// resolution so the runtime-defaults watcher sits next to whichever
// engine.yaml was actually loaded.
func resolveConfigPath() string {
	return getEnvOrDefault("CONFIG_PATH", "config/engine.yaml")
}
