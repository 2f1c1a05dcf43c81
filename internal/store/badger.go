package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

const badgerPrefix = "kv/"

// BadgerConfig параметры встраиваемой базы
type BadgerConfig struct {
	Path       string
	InMemory   bool
	SyncWrites bool
}

// BadgerKV: долговременное локальное хранилище (аналог localStorage)
type BadgerKV struct {
	db *badger.DB
}

// zapBadgerLogger: адаптер zap под интерфейс логгера badger
type zapBadgerLogger struct {
	s *zap.SugaredLogger
}

func (l zapBadgerLogger) Errorf(f string, a ...interface{})   { l.s.Errorf(f, a...) }
func (l zapBadgerLogger) Warningf(f string, a ...interface{}) { l.s.Warnf(f, a...) }
func (l zapBadgerLogger) Infof(f string, a ...interface{})    { l.s.Debugf(f, a...) }
func (l zapBadgerLogger) Debugf(f string, a ...interface{})   { l.s.Debugf(f, a...) }

// OpenBadger открывает базу на диске или в памяти. logger может быть nil.
func OpenBadger(cfg BadgerConfig, logger *zap.Logger) (*BadgerKV, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("badger: path is required for persistent store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)

	if logger != nil {
		opts = opts.WithLogger(zapBadgerLogger{s: logger.Named("badger").Sugar()})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerKV{db: db}, nil
}

func (b *BadgerKV) Name() string  { return "badger" }
func (b *BadgerKV) Durable() bool { return true }

func (b *BadgerKV) Get(_ context.Context, key string) ([]byte, error) {
	var out []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(badgerPrefix + key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	return out, err
}

func (b *BadgerKV) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	return b.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(badgerPrefix+key), value)
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		return txn.SetEntry(e)
	})
}

func (b *BadgerKV) Delete(_ context.Context, key string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(badgerPrefix + key))
	})
}

func (b *BadgerKV) Clear(_ context.Context) error {
	return b.db.DropPrefix([]byte(badgerPrefix))
}

func (b *BadgerKV) Close() error {
	return b.db.Close()
}
