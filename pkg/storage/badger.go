package storage

import (
	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/fystack/peermon/pkg/common/errors"
	"github.com/fystack/peermon/pkg/logger"
)

// BadgerStore is a Store implementation backed by BadgerDB.
type BadgerStore struct {
	DB *badger.DB
}

type BadgerConfig struct {
	DBPath string
	// EncryptionKey enables at-rest encryption when set. The ledger
	// holds confirmation marks, not secrets, so it may stay empty.
	EncryptionKey []byte
}

// NewBadgerStore opens the ledger database at the configured path.
func NewBadgerStore(config BadgerConfig) (*BadgerStore, error) {
	opts := badger.DefaultOptions(config.DBPath).
		WithCompression(options.ZSTD).
		WithIndexCacheSize(16 << 20).
		WithBlockCacheSize(32 << 20).
		WithSyncWrites(true).
		WithVerifyValueChecksum(true). // validate every value-log entry's checksum on read, surfacing corruption instead of masking it
		WithCompactL0OnClose(true).    // compacts level-0 SSTables on shutdown, reducing startup work and avoiding stalls on open
		WithLogger(newQuietBadgerLogger())

	if len(config.EncryptionKey) > 0 {
		opts = opts.WithEncryptionKey(config.EncryptionKey)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	logger.Info("Connected to BadgerDB successfully!", "path", config.DBPath)
	return &BadgerStore{DB: db}, nil
}

// Put stores a key-value pair in the BadgerDB.
func (b *BadgerStore) Put(key string, value []byte) error {
	return b.DB.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

// Get retrieves the value associated with a key from BadgerDB.
func (b *BadgerStore) Get(key string) ([]byte, error) {
	var result []byte
	err := b.DB.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err == nil {
			return item.Value(func(val []byte) error {
				result = append([]byte{}, val...)
				return nil
			})
		}
		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, errors.WrapWithCode(errors.CodeNotFound, err, "key not found: "+key)
		}
		return nil, errors.WrapWithCode(errors.CodeStorage, err, "badger get failed")
	}
	return result, nil
}

func (b *BadgerStore) Keys() ([]string, error) {
	var keys []string
	err := b.DB.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			keys = append(keys, string(item.Key()))
		}
		return nil
	})

	return keys, err
}

// Delete removes a key-value pair from BadgerDB.
func (b *BadgerStore) Delete(key string) error {
	return b.DB.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// Close closes the BadgerDB.
func (b *BadgerStore) Close() error {
	return b.DB.Close()
}
