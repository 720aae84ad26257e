package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/tributary-ai/llm-router-waf/internal/alias"
	"github.com/tributary-ai/llm-router-waf/internal/circuitbreaker"
	"github.com/tributary-ai/llm-router-waf/internal/config"
	"github.com/tributary-ai/llm-router-waf/internal/costtable"
	"github.com/tributary-ai/llm-router-waf/internal/failover"
	"github.com/tributary-ai/llm-router-waf/internal/overflow"
	"github.com/tributary-ai/llm-router-waf/internal/providers/anthropic"
	"github.com/tributary-ai/llm-router-waf/internal/providers/openai"
	"github.com/tributary-ai/llm-router-waf/internal/retry"
	"github.com/tributary-ai/llm-router-waf/internal/routing"
	"github.com/tributary-ai/llm-router-waf/internal/security"
	"github.com/tributary-ai/llm-router-waf/internal/server"
	"github.com/tributary-ai/llm-router-waf/internal/telemetry"
	"github.com/tributary-ai/llm-router-waf/internal/types"
)

// Application represents the main application
type Application struct {
	config    *config.Config
	router    *routing.Router
	breakers  *circuitbreaker.Registry
	failover  *failover.Manager
	aliases   *alias.Store
	telemetry *telemetry.Bus
	overflow  *overflow.Queue
	server    *server.Server
	logger    *logrus.Logger

	drainCancel context.CancelFunc
}

// NewApplication creates a new application instance
func NewApplication(configPath string) (*Application, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := logrus.New()
	if err := setupLogger(logger, cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to setup logger: %w", err)
	}

	bus := telemetry.NewBus(prometheus.DefaultRegisterer, logger)

	breakers := circuitbreaker.NewRegistry(cfg.ToCircuitBreakerConfig(), logger)

	costs := costtable.NewTable()
	costs.Refresh(cfg.ToCostEntries())

	routerInstance := routing.NewRouter(
		routing.Policy(cfg.Router.Policy),
		cfg.Router.DefaultProvider,
		costs,
		breakers,
		cfg.Router.HealthThreshold,
		logger,
	)

	if err := registerProviders(routerInstance, cfg, logger); err != nil {
		return nil, fmt.Errorf("failed to register providers: %w", err)
	}

	retryPolicy := cfg.ToRetryPolicy()
	failoverMgr := failover.NewManager(breakers, retryPolicy, logger)
	failoverMgr.RegisterGroup(cfg.ToFailoverGroup("chat-completions", routerInstance.ListProviders(), costs, breakers))

	aliasStore := alias.NewStore(cfg.Alias.Path, cfg.Alias.ReloadDebounce, logger)
	if cfg.Alias.Path != "" {
		if err := aliasStore.Reload(); err != nil {
			logger.WithError(err).Warn("Initial alias load failed, using built-in defaults")
		}
		if err := aliasStore.Watch(); err != nil {
			logger.WithError(err).Warn("Alias file watch failed, hot-reload disabled")
		}
	}

	keys := security.NewApiKeyStore(security.KeyRateLimit{
		RPM:        cfg.Security.RateLimiting.RequestsPerMin,
		RPH:        cfg.Security.RateLimiting.RequestsPerMin * 60,
		Concurrent: cfg.Security.RateLimiting.BurstSize,
	})
	keys.LoadKeys(cfg.Security.APIKeys)

	var overflowQueue *overflow.Queue
	var drainCancel context.CancelFunc
	if cfg.Overflow.Enabled {
		overflowQueue, err = overflow.NewQueue(cfg.Overflow.RedisURL, cfg.Overflow.IdempotencyWindow, cfg.Overflow.MaxAttempts, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize overflow queue: %w", err)
		}
		var drainCtx context.Context
		drainCtx, drainCancel = context.WithCancel(context.Background())
		go overflowQueue.Drain(drainCtx, replayOverflowJob(failoverMgr, routerInstance, logger))
		go pollOverflowDepth(drainCtx, overflowQueue, bus, logger)
	}

	serverInstance, err := server.NewServer(routerInstance, failoverMgr, aliasStore, bus, keys, costs, overflowQueue, cfg.ToServerConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create server: %w", err)
	}

	return &Application{
		config:      cfg,
		router:      routerInstance,
		breakers:    breakers,
		failover:    failoverMgr,
		aliases:     aliasStore,
		telemetry:   bus,
		overflow:    overflowQueue,
		server:      serverInstance,
		logger:      logger,
		drainCancel: drainCancel,
	}, nil
}

// replayOverflowJob rebuilds a chat completion request from a drained
// overflow job's redacted payload and replays it through the full
// router + resilience stack. The response is discarded — overflow replay
// has no client connection to answer, so success/failure only affects
// whether the job is dropped or requeued.
func replayOverflowJob(fo *failover.Manager, router *routing.Router, logger *logrus.Logger) overflow.ReplayFunc {
	return func(ctx context.Context, job overflow.Job) error {
		req := &types.ChatRequest{ID: job.RequestID}
		if model, ok := job.RedactedPayload["model"].(string); ok {
			req.Model = model
		}
		if provider, ok := job.RedactedPayload["provider"].(string); ok {
			req.Provider = provider
		}
		if rawMessages, ok := job.RedactedPayload["messages"].([]interface{}); ok {
			for _, rm := range rawMessages {
				m, ok := rm.(map[string]interface{})
				if !ok {
					continue
				}
				role, _ := m["role"].(string)
				content, _ := m["content"].(string)
				req.Messages = append(req.Messages, types.Message{Role: role, Content: content})
			}
		}

		return fo.WithFailover(ctx, chatCompletionsService, func(ctx context.Context, providerName string) error {
			logger.WithFields(logrus.Fields{
				"request_id": job.RequestID,
				"provider":   providerName,
				"attempt":    job.Attempts,
			}).Info("replaying overflow job")
			provider, ok := router.GetProvider(providerName)
			if !ok {
				return fmt.Errorf("provider %s not registered", providerName)
			}
			_, err := provider.ChatCompletion(ctx, req)
			return err
		})
	}
}

const chatCompletionsService = "chat-completions"

// pollOverflowDepth periodically samples the overflow queue's length into
// telemetry so dashboards can alert on a growing backlog, rather than
// waiting for a drain failure to surface it.
func pollOverflowDepth(ctx context.Context, q *overflow.Queue, bus *telemetry.Bus, logger *logrus.Logger) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			depth, err := q.Depth(ctx)
			if err != nil {
				logger.WithError(err).Warn("failed to sample overflow queue depth")
				continue
			}
			bus.SetOverflowDepth(int(depth))
		}
	}
}

// Run starts the application
func (app *Application) Run() error {
	app.logger.Info("Starting LLM Router WAF")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		app.logger.WithField("address", ":"+app.config.Server.Port).Info("HTTP server starting")
		if err := app.server.Start(); err != nil {
			serverErrors <- fmt.Errorf("server failed to start: %w", err)
		}
	}()

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		app.logger.WithField("signal", sig.String()).Info("Shutdown signal received")
	}

	app.logger.Info("Starting graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
	defer shutdownCancel()

	if err := app.server.Stop(shutdownCtx); err != nil {
		app.logger.WithError(err).Error("Server shutdown error")
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	if app.drainCancel != nil {
		app.drainCancel()
	}
	if app.overflow != nil {
		if err := app.overflow.Close(); err != nil {
			app.logger.WithError(err).Warn("overflow queue close error")
		}
	}

	app.logger.Info("Graceful shutdown completed")
	return nil
}

// setupLogger configures the logger based on configuration
func setupLogger(logger *logrus.Logger, config config.LoggingConfig) error {
	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		return fmt.Errorf("invalid log level %s: %w", config.Level, err)
	}
	logger.SetLevel(level)

	switch config.Format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		})
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	default:
		return fmt.Errorf("invalid log format: %s", config.Format)
	}

	switch config.Output {
	case "stdout":
		logger.SetOutput(os.Stdout)
	case "stderr":
		logger.SetOutput(os.Stderr)
	default:
		file, err := os.OpenFile(config.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return fmt.Errorf("failed to open log file %s: %w", config.Output, err)
		}
		logger.SetOutput(file)
	}

	return nil
}

// registerProviders registers all configured providers with the router
func registerProviders(router *routing.Router, cfg *config.Config, logger *logrus.Logger) error {
	providersRegistered := 0

	if cfg.Providers.OpenAI != nil && cfg.Providers.OpenAI.APIKey != "" {
		openaiProvider := openai.NewOpenAIProvider(cfg.Providers.OpenAI, logger)
		router.RegisterProvider("openai", openaiProvider)
		logger.WithFields(logrus.Fields{
			"provider": "openai",
			"models":   len(cfg.Providers.OpenAI.Models),
		}).Info("OpenAI provider registered")
		providersRegistered++
	}

	if cfg.Providers.Anthropic != nil && cfg.Providers.Anthropic.APIKey != "" {
		anthropicProvider := anthropic.NewAnthropicProvider(cfg.Providers.Anthropic, logger)
		router.RegisterProvider("anthropic", anthropicProvider)
		logger.WithFields(logrus.Fields{
			"provider": "anthropic",
			"models":   len(cfg.Providers.Anthropic.Models),
		}).Info("Anthropic provider registered")
		providersRegistered++
	}

	if providersRegistered == 0 {
		return fmt.Errorf("no providers were registered - check your configuration and API keys")
	}

	logger.WithField("count", providersRegistered).Info("Provider registration completed")
	return nil
}

// printUsage prints application usage information
func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "\nOptions:\n")
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
	fmt.Fprintf(os.Stderr, "  OPENAI_API_KEY                      OpenAI API key\n")
	fmt.Fprintf(os.Stderr, "  ANTHROPIC_API_KEY                   Anthropic API key\n")
	fmt.Fprintf(os.Stderr, "  LLM_ROUTER_PORT                     Server port (default: 8080)\n")
	fmt.Fprintf(os.Stderr, "  LLM_ROUTER_LOG_LEVEL                Log level (debug,info,warn,error,fatal)\n")
	fmt.Fprintf(os.Stderr, "  LLM_ROUTER_LOG_FORMAT               Log format (json,text)\n")
	fmt.Fprintf(os.Stderr, "  LLM_ROUTER_POLICY                   Routing policy (default,cost,health,enhanced)\n")
	fmt.Fprintf(os.Stderr, "  REDIS_URL                           Overflow queue Redis connection string\n")
	fmt.Fprintf(os.Stderr, "  OVERFLOW_QUEUE_IDEMPOTENCY_WINDOW    Overflow idempotency window (duration)\n")
	fmt.Fprintf(os.Stderr, "  OVERFLOW_QUEUE_MAX_ATTEMPTS          Overflow drain retry bound before a job is dropped\n")
	fmt.Fprintf(os.Stderr, "  ALIASES_RELOAD_DEBOUNCE_MS           Alias hot-reload debounce interval (ms)\n")
	fmt.Fprintf(os.Stderr, "\nExamples:\n")
	fmt.Fprintf(os.Stderr, "  %s --config configs/config.yaml\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  OPENAI_API_KEY=sk-xxx ANTHROPIC_API_KEY=sk-ant-xxx %s\n", os.Args[0])
}

func main() {
	var (
		configPath = flag.String("config", "", "Path to configuration file")
		showHelp   = flag.Bool("help", false, "Show help message")
		version    = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showHelp {
		printUsage()
		os.Exit(0)
	}

	if *version {
		fmt.Printf("LLM Router WAF v1.0.0\n")
		fmt.Printf("Build Date: %s\n", time.Now().Format("2006-01-02"))
		os.Exit(0)
	}

	app, err := NewApplication(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create application: %v\n", err)
		os.Exit(1)
	}

	if err := app.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Application error: %v\n", err)
		os.Exit(1)
	}
}
