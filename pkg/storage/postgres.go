package storage

import (
	"database/sql"
	"time"

	"github.com/fystack/peermon/pkg/common/errors"
	"github.com/fystack/peermon/pkg/logger"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PostgresStore struct {
	db    *gorm.DB
	sqlDB *sql.DB
}

type PostgresConfig struct {
	DSN             string        `json:"dsn"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	MaxOpenConns    int           `json:"max_open_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
}

// ProvisionMark is one ledger row. Key encodes what was confirmed, Value
// carries the confirmation record.
type ProvisionMark struct {
	Key       string    `gorm:"column:key;primaryKey"`
	Value     []byte    `gorm:"column:value"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (ProvisionMark) TableName() string {
	return "provision_marks"
}

// NewPostgresStore constructs a Postgres-backed Store.
func NewPostgresStore(cfg PostgresConfig) (*PostgresStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("postgres dsn is required")
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{})
	if err != nil {
		return nil, errors.Wrap(err, "open postgres connection")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "retrieve sql.DB from gorm")
	}

	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.AutoMigrate(&ProvisionMark{}); err != nil {
		return nil, errors.Wrap(err, "auto-migrate provision_marks")
	}

	logger.Info("Connected to PostgreSQL successfully!")

	return &PostgresStore{
		db:    db,
		sqlDB: sqlDB,
	}, nil
}

// Put stores or updates a key/value pair.
func (s *PostgresStore) Put(key string, value []byte) error {
	entry := ProvisionMark{
		Key:   key,
		Value: append([]byte(nil), value...),
	}
	return s.db.Clauses(clause.OnConflict{
		UpdateAll: true,
	}).Create(&entry).Error
}

// Get returns the value stored under key or an error if not found.
func (s *PostgresStore) Get(key string) ([]byte, error) {
	var entry ProvisionMark
	if err := s.db.First(&entry, "key = ?", key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.WrapWithCode(errors.CodeNotFound, err, "key not found: "+key)
		}
		return nil, errors.WrapWithCode(errors.CodeStorage, err, "postgres get failed")
	}
	return append([]byte(nil), entry.Value...), nil
}

// Delete removes a key/value pair.
func (s *PostgresStore) Delete(key string) error {
	return s.db.Delete(&ProvisionMark{}, "key = ?", key).Error
}

// Keys lists every ledger key.
func (s *PostgresStore) Keys() ([]string, error) {
	var keys []string
	if err := s.db.Model(&ProvisionMark{}).Order("key").Pluck("key", &keys).Error; err != nil {
		return nil, errors.WrapWithCode(errors.CodeStorage, err, "postgres keys failed")
	}
	return keys, nil
}

// Close releases the underlying sql.DB.
func (s *PostgresStore) Close() error {
	if s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}
