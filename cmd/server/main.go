package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/p-n-ai/examino/internal/ai"
	"github.com/p-n-ai/examino/internal/bank"
	"github.com/p-n-ai/examino/internal/curriculum"
	"github.com/p-n-ai/examino/internal/generator"
	"github.com/p-n-ai/examino/internal/ingest"
	"github.com/p-n-ai/examino/internal/mastery"
	"github.com/p-n-ai/examino/internal/platform/cache"
	"github.com/p-n-ai/examino/internal/platform/config"
	"github.com/p-n-ai/examino/internal/platform/database"
	"github.com/p-n-ai/examino/internal/platform/logging"
	"github.com/p-n-ai/examino/internal/platform/metrics"
	"github.com/p-n-ai/examino/internal/store"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.New(cfg.Log))

	// Graceful shutdown on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	m := metrics.New()

	st, closeStore, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer closeStore()

	var c *cache.Cache
	if cfg.Cache.Enabled {
		c, err = cache.New(ctx, cfg.Cache.URL)
		if err != nil {
			return fmt.Errorf("connecting to cache: %w", err)
		}
		defer c.Close()
	}

	var locker bank.Locker
	if cfg.Bank.Lock == "redis" {
		locker = bank.NewRedisLocker(c.Client, c.Key("bank:lock"), 0)
	}
	syncer, err := bank.New(bank.Config{
		Path:         cfg.Bank.Path,
		BackupDir:    cfg.Bank.BackupDir,
		KeepBackups:  cfg.Bank.KeepBackups,
		WriteTimeout: cfg.Bank.WriteTimeout,
		Locker:       locker,
		Metrics:      m,
	})
	if err != nil {
		return fmt.Errorf("creating bank: %w", err)
	}

	loader, err := curriculum.NewLoader(cfg.CurriculumPath)
	if err != nil {
		return err
	}

	router, err := newAIRouter(cfg.AI)
	if err != nil {
		return err
	}
	var primary generator.Generator
	if router.HasProvider() {
		primary = generator.NewAIGenerator(generator.AIConfig{
			Router: router,
			Budget: ai.NewInMemoryBudget(cfg.AI.SubjectTokenBudget),
			Model:  cfg.AI.Model,
		})
		slog.Info("question generation enabled", "providers", router.Providers())
	} else {
		slog.Warn("no AI provider configured, using local extraction only")
	}

	pipeline, err := ingest.New(ingest.Config{
		Runner: generator.NewRunner(generator.RunnerConfig{
			Primary:     primary,
			Concurrency: cfg.Ingest.Concurrency,
			Timeout:     cfg.Ingest.GenerateTimeout,
			Metrics:     m,
		}),
		Bank:                syncer,
		Store:               st,
		Curriculum:          loader,
		MinWords:            cfg.Ingest.MinWords,
		QuestionsPerSection: cfg.Ingest.QuestionsPerSection,
		MinTextChars:        cfg.Ingest.MinTextChars,
	})
	if err != nil {
		return err
	}

	if n, err := seedStore(ctx, st, syncer); err != nil {
		slog.Warn("seeding store from bank failed", "error", err)
	} else if n > 0 {
		slog.Info("store seeded from bank", "questions", n)
	}

	s := &server{
		store:          st,
		bank:           syncer,
		ingest:         pipeline,
		mastery:        mastery.NewScheduler(st, m),
		cache:          c,
		metrics:        m,
		maxUploadBytes: cfg.Ingest.MaxUploadBytes,
	}

	srv := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:     m.Middleware(s.routes()),
		ReadTimeout: 30 * time.Second,
		// Ingestion waits on the generator for every section.
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openStore connects the configured store. The returned func releases it.
func openStore(ctx context.Context, sc config.StoreConfig) (store.Store, func(), error) {
	switch sc.Driver {
	case "memory":
		return store.NewMemoryStore(), func() {}, nil
	case "postgres":
		db, err := database.New(ctx, sc)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		st, err := store.NewPostgresStore(ctx, db.Pool)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return st, db.Close, nil
	default:
		db, err := database.OpenSQLite(ctx, sc.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		st, err := store.NewSQLiteStore(ctx, db)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return st, func() { _ = st.Close() }, nil
	}
}

// newAIRouter registers every configured provider. Registration order is
// the fallback order.
func newAIRouter(cfg config.AIConfig) (*ai.Router, error) {
	router := ai.NewRouter()

	if cfg.Anthropic.APIKey != "" {
		p, err := ai.NewAnthropicProvider(cfg.Anthropic.APIKey, ai.WithAnthropicModel(cfg.Model))
		if err != nil {
			return nil, fmt.Errorf("creating anthropic provider: %w", err)
		}
		router.Register("anthropic", p)
	}
	if cfg.OpenAI.APIKey != "" {
		router.Register("openai", ai.NewOpenAIProvider(cfg.OpenAI.APIKey, ai.WithDefaultModel(cfg.Model)))
	}
	if cfg.DeepSeek.APIKey != "" {
		router.Register("deepseek", ai.NewDeepSeekProvider(cfg.DeepSeek.APIKey, ai.WithDefaultModel(cfg.Model)))
	}
	if cfg.Google.APIKey != "" {
		router.Register("google", ai.NewGoogleProvider(cfg.Google.APIKey, ai.WithGoogleModel(cfg.Model)))
	}
	if cfg.OpenRouter.APIKey != "" {
		router.Register("openrouter", ai.NewOpenRouterProvider(cfg.OpenRouter.APIKey, ai.WithDefaultModel(cfg.Model)))
	}
	if cfg.Ollama.Enabled {
		router.Register("ollama", ai.NewOllamaProvider(cfg.Ollama.URL, ai.WithDefaultModel(cfg.Model)))
	}
	return router, nil
}
