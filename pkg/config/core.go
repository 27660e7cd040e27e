package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sentra-ai/diagnosis-proxy/internal/config"
	"github.com/sentra-ai/diagnosis-proxy/internal/models"
	"github.com/sentra-ai/diagnosis-proxy/internal/services/cache"
	"github.com/sentra-ai/diagnosis-proxy/internal/services/circuitbreaker"
	"github.com/sentra-ai/diagnosis-proxy/internal/services/database"
	"github.com/sentra-ai/diagnosis-proxy/internal/services/diagnosis"
	"github.com/sentra-ai/diagnosis-proxy/internal/services/embedding"
	"github.com/sentra-ai/diagnosis-proxy/internal/services/fallback"
	"github.com/sentra-ai/diagnosis-proxy/internal/services/invoker"
	"github.com/sentra-ai/diagnosis-proxy/internal/services/metrics"
	"github.com/sentra-ai/diagnosis-proxy/internal/services/scheduler"
	"github.com/sentra-ai/diagnosis-proxy/internal/services/semantic"
	"github.com/sentra-ai/diagnosis-proxy/internal/services/telemetry"
	"github.com/sentra-ai/diagnosis-proxy/internal/services/worker"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

const (
	exactCacheKeyPrefix = "diagnosis:exact:"
	vectorKeyPrefix     = "diagnosis:semantic:"
	startupSweepTimeout = 30 * time.Second
)

// Core holds every service behind the HTTP surface. The server and the
// cachectl CLI both build one.
type Core struct {
	Config      *config.Config
	Redis       *redis.Client
	DB          *database.DB
	Breaker     *circuitbreaker.CircuitBreaker
	Exact       *cache.ExactCache
	Semantic    *semantic.SemanticCache
	Embedder    embedding.Provider
	Diagnosis   *diagnosis.Service
	Telemetry   *telemetry.Recorder
	Pool        *worker.Pool
	Maintenance *scheduler.Maintenance

	closers []closer
}

type closer struct {
	name  string
	close func() error
}

// NewCore connects infrastructure and wires the services described by cfg.
// cfg must already be validated.
func NewCore(ctx context.Context, cfg *config.Config) (*Core, error) {
	core := &Core{Config: cfg}

	if err := core.initInfrastructure(); err != nil {
		core.Close()
		return nil, err
	}
	if err := core.initServices(ctx); err != nil {
		core.Close()
		return nil, err
	}
	return core, nil
}

func (c *Core) initInfrastructure() error {
	client, err := createRedisClient(c.Config)
	if err != nil {
		return fmt.Errorf("redis initialization failed: %w", err)
	}
	if client != nil {
		c.Redis = client
		c.addCloser("redis", client.Close)
	}

	if c.Config.Database != nil {
		db, err := database.New(*c.Config.Database)
		if err != nil {
			return fmt.Errorf("database initialization failed: %w", err)
		}
		c.DB = db
		c.addCloser("database", db.Close)
		fiberlog.Infof("Database (%s) initialized successfully", db.DriverName())
	} else {
		fiberlog.Info("Database not configured")
	}
	return nil
}

func (c *Core) initServices(ctx context.Context) error {
	cfg := c.Config

	c.Breaker = circuitbreaker.NewFromConfig(cfg.CircuitBreaker, c.Redis,
		circuitbreaker.WithStateChangeHook(func(key string, from, to models.CircuitState) {
			metrics.CircuitTransitions.WithLabelValues(key, from.String(), to.String()).Inc()
		}))

	durable, err := c.durableStore()
	if err != nil {
		return err
	}
	c.Exact = cache.NewExactCache(cfg.Cache.Exact, durable)

	if cfg.Cache.Semantic.Enabled {
		if err := c.initSemantic(ctx); err != nil {
			return err
		}
	}

	// Registered after every store its tasks write to, so it drains first.
	c.Pool = worker.NewPool(cfg.Telemetry.Workers, cfg.Telemetry.BufferSize)
	c.addCloser("worker-pool", func() error {
		c.Pool.Stop()
		return nil
	})

	if cfg.Telemetry.Enabled && c.DB != nil {
		rec, err := telemetry.NewRecorder(c.DB, c.Pool)
		if err != nil {
			return err
		}
		c.Telemetry = rec
	}

	opts := []diagnosis.Option{diagnosis.WithWorkerPool(c.Pool)}
	if c.Semantic != nil {
		opts = append(opts, diagnosis.WithSemanticCache(c.Semantic))
	}
	if c.Telemetry != nil {
		opts = append(opts, diagnosis.WithEventSink(c.Telemetry))
	}

	c.Diagnosis = diagnosis.NewService(
		c.Exact,
		fallback.NewFallbackService(c.Breaker, cfg.BreakerTimeout()),
		invoker.NewRegistry(cfg.Models.Definitions, time.Duration(cfg.Models.TimeoutMs)*time.Millisecond),
		diagnosis.Settings{
			Chain:       cfg.Models.Chain,
			Temperature: cfg.Models.Temperature,
			MaxTokens:   cfg.Models.MaxTokens,
		},
		opts...,
	)

	maintenance, err := scheduler.NewMaintenance(cfg.Maintenance.Schedule, c.sweepJobs()...)
	if err != nil {
		return err
	}
	c.Maintenance = maintenance
	return nil
}

func (c *Core) durableStore() (cache.DurableStore, error) {
	exact := c.Config.Cache.Exact
	if !exact.IsEnabled() {
		return nil, nil
	}

	switch exact.Durable {
	case models.CacheBackendDatabase:
		if c.DB == nil {
			return nil, errors.New("exact cache durable tier 'database' requires a database section")
		}
		store, err := cache.NewGormStore(c.DB)
		if err != nil {
			return nil, fmt.Errorf("exact cache store: %w", err)
		}
		return store, nil
	case models.CacheBackendRedis:
		if c.Redis == nil {
			return nil, errors.New("exact cache durable tier 'redis' requires redis.url")
		}
		return cache.NewRedisStore(c.Redis, exactCacheKeyPrefix, c.Config.ExactTTL()), nil
	case models.CacheBackendNone, models.CacheBackendMemory, "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported exact cache durable tier: %s", exact.Durable)
	}
}

func (c *Core) initSemantic(ctx context.Context) error {
	cfg := c.Config
	sem := cfg.Cache.Semantic

	var (
		index    semantic.Index
		embedder embedding.Provider
	)

	switch sem.Backend {
	case models.SemanticBackendLibrary:
		lib, err := semantic.NewLibraryIndex(sem, *cfg.Embedding, cfg.RedisURL())
		if err != nil {
			return fmt.Errorf("semantic cache initialization failed: %w", err)
		}
		c.addCloser("semantic-library", lib.Close)
		index = lib

	default:
		emb, err := embedding.New(ctx, *cfg.Embedding)
		if err != nil {
			return fmt.Errorf("embedding provider initialization failed: %w", err)
		}
		embedder = emb
		c.Embedder = emb

		switch sem.Index {
		case models.CacheBackendRedis:
			if c.Redis == nil {
				return errors.New("redis semantic index requires redis.url")
			}
			index = semantic.NewRedisIndex(c.Redis, vectorKeyPrefix, sem.Capacity)
		default:
			index = semantic.NewMemoryIndex(sem.Capacity)
		}
	}

	c.Semantic = semantic.New(sem, index, embedder, semantic.WithMaxChars(cfg.Embedding.MaxInputChars))
	return nil
}

func (c *Core) sweepJobs() []scheduler.Job {
	jobs := []scheduler.Job{{
		Name: "exact-cache-sweep",
		Run: func(ctx context.Context) error {
			if n := c.Exact.Sweep(ctx); n > 0 {
				fiberlog.Infof("Exact cache sweep removed %d expired entries", n)
			}
			return nil
		},
	}}
	if c.Semantic != nil {
		jobs = append(jobs, scheduler.Job{
			Name: "semantic-cache-sweep",
			Run: func(ctx context.Context) error {
				if n := c.Semantic.Sweep(ctx); n > 0 {
					fiberlog.Infof("Semantic cache sweep removed %d expired entries", n)
				}
				return nil
			},
		})
	}
	return jobs
}

// StartupSweep removes entries that expired while the service was down.
func (c *Core) StartupSweep(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, startupSweepTimeout)
	defer cancel()
	c.Maintenance.RunOnce(ctx)
}

// Close releases everything NewCore opened, last opened first.
func (c *Core) Close() {
	if c.Maintenance != nil {
		c.Maintenance.Stop()
	}
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i].close(); err != nil {
			fiberlog.Errorf("Failed to release %s during shutdown: %v", c.closers[i].name, err)
		}
	}
	c.closers = nil
}

func (c *Core) addCloser(name string, fn func() error) {
	c.closers = append(c.closers, closer{name: name, close: fn})
}

// releaseOrder lists resource names in the order Close releases them.
func (c *Core) releaseOrder() []string {
	names := make([]string, 0, len(c.closers))
	for i := len(c.closers) - 1; i >= 0; i-- {
		names = append(names, c.closers[i].name)
	}
	return names
}
