package config

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/sentra-ai/diagnosis-proxy/internal/api"
	"github.com/sentra-ai/diagnosis-proxy/internal/config"
	"github.com/sentra-ai/diagnosis-proxy/internal/models"
	"github.com/sentra-ai/diagnosis-proxy/internal/services/request"
	"github.com/sentra-ai/diagnosis-proxy/internal/services/response"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/pprof"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

const (
	defaultRequestTimeout = 60 * time.Second
	maxRequestTimeout     = 2 * time.Minute
	shutdownTimeout       = 30 * time.Second
)

// Proxy is a Sentra diagnosis server instance.
type Proxy struct {
	config  *config.Config
	app     *fiber.App
	core    *Core
	builder *Builder
}

// NewProxy creates a new Proxy with the given configuration.
// The cfg parameter is required and must not be nil.
func NewProxy(cfg *config.Config) *Proxy {
	if cfg == nil {
		panic("config cannot be nil - use config.LoadFromFile() or the config builder to create config")
	}
	return &Proxy{config: cfg}
}

// NewProxyWithBuilder creates a Proxy whose middlewares and request timeout
// come from the builder.
func NewProxyWithBuilder(b *Builder) *Proxy {
	return &Proxy{config: b.Build(), builder: b}
}

// App exposes the fiber app after Setup, mainly for tests.
func (p *Proxy) App() *fiber.App { return p.app }

// Setup validates the configuration, wires every service and registers
// routes without listening.
func (p *Proxy) Setup(ctx context.Context) error {
	if err := p.config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	setupLogLevel(p.config)

	core, err := NewCore(ctx, p.config)
	if err != nil {
		return err
	}
	p.core = core

	p.app = createFiberApp(p.config)
	setupMiddleware(p.app, p.config, p.builder)
	setupRoutes(p.app, p.config, core)
	return nil
}

// Run starts the server and blocks until shutdown.
func (p *Proxy) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := p.Setup(ctx); err != nil {
		return err
	}
	defer p.core.Close()

	p.core.StartupSweep(ctx)
	if p.config.Maintenance.Enabled {
		if err := p.core.Maintenance.Start(); err != nil {
			return fmt.Errorf("failed to start maintenance scheduler: %w", err)
		}
	}

	listenAddr := ":" + p.config.Server.Port

	fmt.Printf("Sentra diagnosis proxy starting on %s\n", listenAddr)
	fmt.Printf("   Environment: %s\n", p.config.Server.Environment)
	fmt.Printf("   Model chain: %s\n", strings.Join(p.config.Models.Chain, " -> "))
	fmt.Printf("   Go version: %s\n", runtime.Version())
	fmt.Printf("   GOMAXPROCS: %d\n", runtime.GOMAXPROCS(0))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		if err := p.app.Listen(listenAddr); err != nil {
			serverErrChan <- err
		}
	}()

	select {
	case sig := <-sigChan:
		fiberlog.Infof("Received signal: %v. Starting graceful shutdown...", sig)
	case err := <-serverErrChan:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	shutdownErrChan := make(chan error, 1)
	go func() {
		shutdownErrChan <- p.app.ShutdownWithTimeout(shutdownTimeout)
	}()

	select {
	case err := <-shutdownErrChan:
		if err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		fiberlog.Info("Server shutdown completed successfully")
	case <-shutdownCtx.Done():
		return fmt.Errorf("shutdown timeout exceeded")
	}

	return nil
}

func createFiberApp(cfg *config.Config) *fiber.App {
	isProd := cfg.IsProduction()

	return fiber.New(fiber.Config{
		AppName:           "Sentra Diagnosis Proxy v1.0",
		EnablePrintRoutes: !isProd,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       5 * time.Minute,
		ReadBufferSize:    8192,
		WriteBufferSize:   8192,
		BodyLimit:         64 * 1024,
		CaseSensitive:     true,
		Network:           "tcp",
		ServerHeader:      "Sentra",
	})
}

func setupMiddleware(app *fiber.App, cfg *config.Config, b *Builder) {
	isProd := cfg.IsProduction()

	app.Use(recover.New(recover.Config{
		EnableStackTrace: !isProd,
	}))

	app.Use(request.Middleware())

	baseTimeout := defaultRequestTimeout
	if b != nil && b.requestTimeout > 0 {
		baseTimeout = b.requestTimeout
	}
	app.Use(func(c *fiber.Ctx) error {
		timeout := baseTimeout
		if customTimeout := c.Get("X-Request-Timeout"); customTimeout != "" {
			if d, err := time.ParseDuration(customTimeout); err == nil && d > 0 {
				timeout = min(d, maxRequestTimeout)
			}
		}

		ctx, cancel := context.WithTimeout(c.UserContext(), timeout)
		defer cancel()
		c.SetUserContext(ctx)

		return c.Next()
	})

	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	if isProd {
		app.Use(logger.New(logger.Config{
			Format: "${time} ${status} ${method} ${path} ${latency} ${bytesSent}b ${locals:request_id}\n",
			Output: os.Stdout,
		}))
	} else {
		app.Use(logger.New(logger.Config{
			Format: "[${time}] ${status} - ${latency} ${method} ${path} ${locals:request_id} ${error}\n",
			Output: os.Stdout,
		}))
	}

	app.Use(cors.New(cors.Config{
		AllowOrigins:  cfg.Server.AllowedOrigins,
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, X-Request-ID, X-Request-Timeout",
		AllowMethods:  "GET, POST, DELETE, OPTIONS",
		MaxAge:        86400,
		ExposeHeaders: "Content-Length, Content-Type, X-Request-ID, X-RateLimit-Limit, X-RateLimit-Remaining",
	}))

	if b != nil {
		for _, middleware := range b.middlewares {
			app.Use(middleware)
		}
	}

	if !isProd {
		app.Use(pprof.New())
	}
}

// diagnosisLimiter bounds diagnosis requests per client address.
func diagnosisLimiter(cfg *config.Config) fiber.Handler {
	window := cfg.RateLimitWindow()
	return limiter.New(limiter.Config{
		Max:               cfg.RateLimit.Max,
		Expiration:        window,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      clientKey,
		LimitReached: func(c *fiber.Ctx) error {
			return response.Error(c, fiber.StatusTooManyRequests,
				fmt.Sprintf("Too many diagnosis requests: limit is %d per %v", cfg.RateLimit.Max, window),
				string(models.ErrorTypeRateLimit), "")
		},
	})
}

// clientKey prefers the first X-Forwarded-For hop set by the edge proxy.
func clientKey(c *fiber.Ctx) string {
	if fwd := c.Get(fiber.HeaderXForwardedFor); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	return c.IP()
}

func setupLogLevel(cfg *config.Config) {
	logLevel := cfg.GetNormalizedLogLevel()

	switch logLevel {
	case "trace":
		fiberlog.SetLevel(fiberlog.LevelTrace)
	case "debug":
		fiberlog.SetLevel(fiberlog.LevelDebug)
	case "info":
		fiberlog.SetLevel(fiberlog.LevelInfo)
	case "warn", "warning":
		fiberlog.SetLevel(fiberlog.LevelWarn)
	case "error":
		fiberlog.SetLevel(fiberlog.LevelError)
	case "fatal":
		fiberlog.SetLevel(fiberlog.LevelFatal)
	case "panic":
		fiberlog.SetLevel(fiberlog.LevelPanic)
	default:
		fiberlog.SetLevel(fiberlog.LevelInfo)
		fiberlog.Warnf("Unknown log level '%s', defaulting to 'info'", logLevel)
	}

	fiberlog.Infof("Log level set to: %s", logLevel)
}

func createRedisClient(cfg *config.Config) (*redis.Client, error) {
	redisURL := cfg.RedisURL()
	if redisURL == "" {
		fiberlog.Info("Redis not configured - breakers, exact cache and vector index stay in process")
		return nil, nil
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opt.PoolSize = 50
	if cfg.Redis.PoolSize > 0 {
		opt.PoolSize = cfg.Redis.PoolSize
	}
	opt.MinIdleConns = 10
	opt.PoolTimeout = 4 * time.Second
	opt.ConnMaxIdleTime = 5 * time.Minute
	opt.ConnMaxLifetime = 30 * time.Minute
	opt.DialTimeout = 10 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second
	opt.MaxRetries = 3
	opt.MinRetryBackoff = 8 * time.Millisecond
	opt.MaxRetryBackoff = 512 * time.Millisecond

	fiberlog.Debugf("Redis client configuration: PoolSize=%d, MinIdle=%d, MaxRetries=%d",
		opt.PoolSize, opt.MinIdleConns, opt.MaxRetries)

	return testRedisConnectionWithRetry(redis.NewClient(opt))
}

func testRedisConnectionWithRetry(client *redis.Client) (*redis.Client, error) {
	const maxAttempts = 3
	const baseDelay = 1 * time.Second

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := client.Ping(ctx).Err()
		cancel()

		if err == nil {
			fiberlog.Infof("Redis connection established successfully (attempt %d/%d)", attempt, maxAttempts)
			return client, nil
		}

		fiberlog.Warnf("Redis connection failed (attempt %d/%d): %v", attempt, maxAttempts, err)

		if attempt < maxAttempts {
			delay := time.Duration(attempt) * baseDelay
			fiberlog.Infof("Retrying Redis connection in %v...", delay)
			time.Sleep(delay)
		}
	}

	if err := client.Close(); err != nil {
		fiberlog.Errorf("Failed to close Redis client after connection failures: %v", err)
	}

	return nil, fmt.Errorf("failed to connect to Redis after %d attempts", maxAttempts)
}

func setupRoutes(app *fiber.App, cfg *config.Config, core *Core) {
	var db api.Pinger
	if core.DB != nil {
		db = core.DB
	}

	healthHandler := api.NewHealthHandler(core.Redis, db, core.Breaker, cfg.Models.Chain)
	app.Get("/health", healthHandler.HealthCheck)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	diagnosisHandler := api.NewDiagnosisHandler(core.Diagnosis, core.Breaker, cfg.ModelKeys())

	var semanticAdmin api.SemanticAdmin
	if core.Semantic != nil {
		semanticAdmin = core.Semantic
	}
	cacheHandler := api.NewCacheHandler(core.Exact, semanticAdmin, core.Diagnosis.Tracker(), semanticHealth(cfg, core))

	diagnosisGroup := app.Group("/api/diagnosis")
	if cfg.RateLimit.IsEnabled() {
		diagnosisGroup.Post("/generate", diagnosisLimiter(cfg), diagnosisHandler.Generate)
	} else {
		diagnosisGroup.Post("/generate", diagnosisHandler.Generate)
	}
	diagnosisGroup.Get("/circuit-status", diagnosisHandler.CircuitStatus)
	diagnosisGroup.Post("/circuit-reset", diagnosisHandler.CircuitReset)
	if core.Telemetry != nil {
		diagnosisGroup.Get("/events", api.NewEventsHandler(core.Telemetry).Recent)
	}

	app.Get("/api/cache/stats", cacheHandler.Stats)
	app.Delete("/api/cache", cacheHandler.Clear)
	app.Get("/api/health/semantic-cache", cacheHandler.SemanticHealth)

	app.Get("/", welcomeHandler(cfg))
}

func semanticHealth(cfg *config.Config, core *Core) api.SemanticHealth {
	sem := cfg.Cache.Semantic
	health := api.SemanticHealth{
		Enabled: sem.Enabled,
		Backend: string(sem.Backend),
	}
	if cfg.Embedding != nil {
		health.Provider = string(cfg.Embedding.Provider)
	}
	switch {
	case core.Embedder != nil:
		health.Embeddings = true
		health.Provider = core.Embedder.Name()
	case core.Semantic != nil && sem.Backend == models.SemanticBackendLibrary:
		health.Embeddings = true
	}
	return health
}

func welcomeHandler(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message":    "Sentra diagnosis proxy",
			"version":    "1.0.0",
			"go_version": runtime.Version(),
			"status":     "running",
			"models":     cfg.Models.Chain,
			"endpoints": fiber.Map{
				"generate":       "/api/diagnosis/generate",
				"circuit_status": "/api/diagnosis/circuit-status",
				"cache_stats":    "/api/cache/stats",
				"health":         "/health",
				"metrics":        "/metrics",
			},
		})
	}
}
