package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kozaktomas/face-labeler/internal/config"
	"github.com/kozaktomas/face-labeler/internal/constants"
	"github.com/kozaktomas/face-labeler/internal/database"
	"github.com/kozaktomas/face-labeler/internal/database/mariadb"
	"github.com/kozaktomas/face-labeler/internal/database/postgres"
	"github.com/kozaktomas/face-labeler/internal/database/sqlite"
	"github.com/kozaktomas/face-labeler/internal/embedding"
	"github.com/kozaktomas/face-labeler/internal/index"
)

var errNoCache = errors.New("no embedding cache configured (set EMBEDDING_CACHE or database.backend)")

// openCache opens the configured embedding cache. It returns nil, nil when
// caching is disabled.
func openCache(ctx context.Context, cfg *config.DatabaseConfig) (database.EmbeddingCache, error) {
	switch cfg.Backend {
	case constants.CacheNone:
		return nil, nil
	case constants.CacheSQLite:
		c, err := sqlite.Open(ctx, cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite cache: %w", err)
		}
		return c, nil
	case constants.CachePostgres:
		pool, err := postgres.Open(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
		}
		return postgres.NewEmbeddingCache(pool), nil
	case constants.CacheMariaDB:
		pool, err := mariadb.NewPool(cfg.DSN, cfg.MaxOpenConns, cfg.MaxIdleConns)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to MariaDB: %w", err)
		}
		if err := pool.Migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to migrate MariaDB: %w", err)
		}
		return mariadb.NewEmbeddingCache(pool), nil
	default:
		return nil, fmt.Errorf("unknown embedding cache backend %q", cfg.Backend)
	}
}

// newProvider builds the configured provider, wrapped in the cache when one is open.
func newProvider(cfg *config.EmbeddingConfig, cache database.EmbeddingCache, log *slog.Logger) (embedding.Provider, error) {
	var p embedding.Provider
	switch cfg.Provider {
	case constants.ProviderHTTP:
		p = embedding.NewHTTPProvider(cfg.URL, cfg.Model)
	case constants.ProviderPixel:
		p = embedding.NewPixelProvider()
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
	return embedding.NewCached(p, cache, log), nil
}

func indexOptions(cfg *config.Config, showProgress bool, log *slog.Logger) index.Options {
	return index.Options{
		Cap:            cfg.Match.CapPerLabel,
		Growth:         cfg.Match.Growth,
		Search:         cfg.Match.Search,
		HNSWCandidates: cfg.Match.HNSWCandidates,
		Concurrency:    cfg.Embedding.Concurrency,
		ShowProgress:   showProgress,
		Logger:         log,
	}
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			fmt.Fprintln(os.Stderr, "\nReceived interrupt signal...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx, cancel
}
