package calllog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"classrelay/config"
	"classrelay/internal/storage"
)

// Result holds the initialized call logger and the storage it owns.
// The caller must call Close during shutdown.
type Result struct {
	Logger  LoggerInterface
	Storage storage.Storage
}

// Close releases the logger and any storage it owns. Safe to call more than once.
func (r *Result) Close() error {
	var errs []error
	if r.Logger != nil {
		if err := r.Logger.Close(); err != nil {
			errs = append(errs, fmt.Errorf("logger close: %w", err))
		}
	}
	if r.Storage != nil {
		if err := r.Storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage close: %w", err))
		}
		r.Storage = nil
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %w", errors.Join(errs...))
	}
	return nil
}

// New opens storage and creates a call logger from configuration.
// When call logging is disabled it returns a NoopLogger and no storage.
func New(ctx context.Context, cfg *config.Config) (*Result, error) {
	if !cfg.CallLog.Enabled {
		return &Result{Logger: &NoopLogger{}}, nil
	}

	store, err := storage.New(ctx, buildStorageConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create storage: %w", err)
	}

	logStore, err := createStore(store, cfg.CallLog.RetentionDays)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &Result{
		Logger:  NewLogger(logStore, buildLoggerConfig(cfg.CallLog)),
		Storage: store,
	}, nil
}

// NewWithSharedStorage creates a call logger over a connection the caller
// owns. The returned Result does not close store.
func NewWithSharedStorage(cfg *config.Config, store storage.Storage) (*Result, error) {
	if !cfg.CallLog.Enabled {
		return &Result{Logger: &NoopLogger{}}, nil
	}
	if store == nil {
		return nil, fmt.Errorf("storage is required when call logging is enabled")
	}

	logStore, err := createStore(store, cfg.CallLog.RetentionDays)
	if err != nil {
		return nil, err
	}

	return &Result{Logger: NewLogger(logStore, buildLoggerConfig(cfg.CallLog))}, nil
}

func buildStorageConfig(cfg *config.Config) storage.Config {
	storageCfg := storage.Config{
		Type: cfg.Storage.Type,
		SQLite: storage.SQLiteConfig{
			Path: cfg.Storage.SQLite.Path,
		},
		PostgreSQL: storage.PostgreSQLConfig{
			URL:      cfg.Storage.PostgreSQL.URL,
			MaxConns: cfg.Storage.PostgreSQL.MaxConns,
		},
		MongoDB: storage.MongoDBConfig{
			URL:      cfg.Storage.MongoDB.URL,
			Database: cfg.Storage.MongoDB.Database,
		},
	}

	if storageCfg.Type == "" {
		storageCfg.Type = storage.TypeSQLite
	}
	if storageCfg.SQLite.Path == "" {
		storageCfg.SQLite.Path = storage.DefaultSQLitePath
	}
	if storageCfg.MongoDB.Database == "" {
		storageCfg.MongoDB.Database = storage.DefaultMongoDatabase
	}

	return storageCfg
}

func createStore(store storage.Storage, retentionDays int) (Store, error) {
	switch store.Type() {
	case storage.TypeSQLite:
		return NewSQLiteStore(store.SQLiteDB(), retentionDays)
	case storage.TypePostgreSQL:
		return NewPostgreSQLStore(store.PostgreSQLPool(), retentionDays)
	case storage.TypeMongoDB:
		return NewMongoDBStore(store.MongoDatabase(), retentionDays)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", store.Type())
	}
}

func buildLoggerConfig(c config.CallLogConfig) Config {
	cfg := Config{
		Enabled:       c.Enabled,
		BufferSize:    c.BufferSize,
		FlushInterval: time.Duration(c.FlushInterval) * time.Second,
		RetentionDays: c.RetentionDays,
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1000
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	return cfg
}
