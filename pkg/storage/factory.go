package storage

import (
	"fmt"
	"path/filepath"

	"github.com/fystack/peermon/pkg/config"
	"github.com/fystack/peermon/pkg/filesystem"
	"github.com/fystack/peermon/pkg/logger"
)

// NewKVStore opens the ledger store selected by configuration. name
// scopes badger databases so several groups on one host do not share a
// directory.
func NewKVStore(name string) Store {
	cfg := config.GetConfig()
	switch cfg.StorageType {
	case config.StorageTypePostgres:
		postgresConfig := PostgresConfig{
			DSN:             cfg.PostgresDSN,
			MaxIdleConns:    cfg.PostgresMaxIdleConns,
			MaxOpenConns:    cfg.PostgresMaxOpenConns,
			ConnMaxLifetime: cfg.PostgresConnMaxLifetime,
		}
		store, err := NewPostgresStore(postgresConfig)
		if err != nil {
			logger.Fatal("Failed to create postgres store", err)
		}
		logger.Info("Connected to postgres store", "name", name)
		return store

	case config.StorageTypeBadger:
		basePath := config.DBPath()
		if basePath == "" {
			basePath = filepath.Join(".", "db")
		}
		dbPath, err := filesystem.SafeJoin(basePath, name)
		if err != nil {
			logger.Fatal("Invalid ledger path", err, "name", name)
		}

		badgerStore, err := NewBadgerStore(BadgerConfig{
			DBPath:        dbPath,
			EncryptionKey: []byte(config.BadgerPassword()),
		})
		if err != nil {
			logger.Fatal("Failed to create badger kv store", err)
		}
		logger.Info("Connected to badger kv store", "name", name, "path", dbPath)
		return badgerStore

	case config.StorageTypeMemory:
		return NewMemoryStore()

	default:
		logger.Fatal("Unsupported storage type configured", fmt.Errorf("storage type %q is not supported", cfg.StorageType))
		return nil
	}
}
