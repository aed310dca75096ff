package backend

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"steady/internal/ingest"
	"steady/internal/storage"
	"steady/internal/store"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SQLiteBackend:
		return f.createSQLiteBackend(ctx, config)
	case MemoryBackend:
		return f.createMemoryBackend(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSQLiteBackend(ctx context.Context, config Config) (*BackendResult, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	s := store.New(store.WithJournal(repo))
	if err := repo.Restore(ctx, s); err != nil {
		repo.Close()
		return nil, fmt.Errorf("failed to restore store from SQLite: %w", err)
	}

	f.logger.InfoContext(ctx, "Initialized SQLite backend",
		"db_path", config.SQLiteDBPath,
		"periods", s.Len(),
		"version", s.Version())

	return &BackendResult{
		Store:   s,
		Ping:    repo.Ping,
		Cleanup: repo.Close,
	}, nil
}

func (f *DefaultFactory) createMemoryBackend(ctx context.Context, config Config) (*BackendResult, error) {
	s := store.New()

	if config.SeedCSVPath != "" {
		n, err := seed(ctx, s, config.SeedCSVPath)
		if err != nil {
			return nil, err
		}
		f.logger.InfoContext(ctx, "Seeded memory backend", "path", config.SeedCSVPath, "periods", n)
	}

	f.logger.InfoContext(ctx, "Initialized memory backend", "periods", s.Len())

	return &BackendResult{
		Store:   s,
		Ping:    func(context.Context) error { return nil },
		Cleanup: nil, // No cleanup needed for memory backend
	}, nil
}

func seed(ctx context.Context, s *store.Store, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()

	periods, err := ingest.ParseCSV(f)
	if err != nil {
		return 0, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	if len(periods) == 0 {
		return 0, nil
	}
	ingest.SortByStart(periods)
	stored, err := s.AppendBatch(ctx, periods)
	if err != nil {
		return 0, fmt.Errorf("load seed file %s: %w", path, err)
	}
	return len(stored), nil
}
