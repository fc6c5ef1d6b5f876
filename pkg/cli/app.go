// Package cli implements the pocketumami command tree.
package cli

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pocketumami/pocketumami/pkg/api"
	"github.com/pocketumami/pocketumami/pkg/config"
	"github.com/pocketumami/pocketumami/pkg/data"
	"github.com/pocketumami/pocketumami/pkg/instance"
	"github.com/pocketumami/pocketumami/pkg/querycache"
	"github.com/pocketumami/pocketumami/pkg/session"
	"github.com/pocketumami/pocketumami/pkg/storage"
	"github.com/pocketumami/pocketumami/pkg/storage/badger"
	"github.com/pocketumami/pocketumami/pkg/storage/secure"
)

const secretKeySize = 32

// app carries everything a command needs. It is built lazily by requireApp
// so commands like help and completion never touch the database.
type app struct {
	cfg       config.Config
	log       *zap.Logger
	store     storage.Store
	instances *instance.Store
	sessions  *session.Manager
	api       *api.Client
	cache     *querycache.Cache
	data      *data.Service
	loc       *time.Location
}

func newApp(cfgPath string) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	loc := time.Local
	if cfg.Timezone != "" {
		loc, err = time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
		}
	}

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	store, err := badger.New(badger.Config{Path: filepath.Join(cfg.DataDir, "db")})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	key, err := loadOrCreateKey(cfg.SecretKeyFile)
	if err != nil {
		store.Close()
		return nil, err
	}
	secret, err := secure.Wrap(store, key)
	if err != nil {
		store.Close()
		return nil, err
	}

	if err := instance.Migrate(context.Background(), store, secret); err != nil {
		store.Close()
		return nil, fmt.Errorf("storage migration failed: %w", err)
	}

	instances := instance.NewStore(store, secret)
	sessions := session.NewManager(instances, session.NewStore(), log)
	apiClient := api.NewClient(sessions, log)
	cache := querycache.New(store, log)

	return &app{
		cfg:       cfg,
		log:       log,
		store:     store,
		instances: instances,
		sessions:  sessions,
		api:       apiClient,
		cache:     cache,
		data:      data.NewService(apiClient, cache, instances, log),
		loc:       loc,
	}, nil
}

// timezoneName is what the Umami API expects for its timezone parameter.
// "Local" is not an IANA name, so an unconfigured timezone falls back to UTC.
func (a *app) timezoneName() string {
	if a.cfg.Timezone != "" {
		return a.cfg.Timezone
	}
	return "UTC"
}

func (a *app) close() {
	a.cache.Close()
	if err := a.store.Close(); err != nil {
		a.log.Warn("failed to close database", zap.Error(err))
	}
	_ = a.log.Sync()
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	// Logs go to stderr so command output stays pipeable.
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}

// loadOrCreateKey reads the credential-wrapping key, generating it on first
// run.
func loadOrCreateKey(path string) ([]byte, error) {
	key, err := os.ReadFile(path)
	if err == nil {
		if len(key) != secretKeySize {
			return nil, fmt.Errorf("secret key file %s is corrupt (%d bytes)", path, len(key))
		}
		return key, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read secret key: %w", err)
	}

	key = make([]byte, secretKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate secret key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create key directory: %w", err)
	}
	if err := os.WriteFile(path, key, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write secret key: %w", err)
	}
	return key, nil
}
