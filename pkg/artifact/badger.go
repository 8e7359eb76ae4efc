package artifact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
)

const keyPrefix = "dataset/"

// BadgerConfig holds Badger backend configuration.
type BadgerConfig struct {
	// Path to the database directory.
	Path string
	// InMemory mode (for testing).
	InMemory bool

	Compression Compression
	Logger      *slog.Logger
}

// BadgerStore keeps datasets as checksummed values in a Badger database.
type BadgerStore struct {
	db          *badger.DB
	path        string
	compression Compression
}

// OpenBadger opens a Badger database with synchronous writes.
func OpenBadger(cfg BadgerConfig) (*BadgerStore, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	opts := badger.DefaultOptions(cfg.Path).
		WithSyncWrites(true).
		WithNumVersionsToKeep(1).
		WithLogger(badgerLogger{logger: logger.With("component", "badger")})

	if cfg.InMemory {
		opts = opts.WithInMemory(true).WithDir("").WithValueDir("")
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, &IOError{Op: "open", Path: cfg.Path, Err: err}
	}

	return &BadgerStore{db: db, path: cfg.Path, compression: cfg.Compression}, nil
}

// Load reads the dataset called name.
func (s *BadgerStore) Load(ctx context.Context, name string) (*Matrix, error) {
	err := ctx.Err()
	if err != nil {
		return nil, err
	}

	var data []byte

	err = s.db.View(func(txn *badger.Txn) error {
		item, getErr := txn.Get([]byte(keyPrefix + name))
		if getErr != nil {
			return getErr
		}

		data, getErr = item.ValueCopy(nil)

		return getErr
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}

	if err != nil {
		return nil, &IOError{Op: "read", Path: s.path, Err: err}
	}

	m, err := Decode(data)
	if err != nil {
		return nil, &IOError{Op: "decode", Path: s.path, Err: err}
	}

	return m, nil
}

// Save writes m in a single transaction.
func (s *BadgerStore) Save(ctx context.Context, m *Matrix) error {
	err := ctx.Err()
	if err != nil {
		return err
	}

	data, err := Encode(m, s.compression)
	if err != nil {
		return err
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+m.Name), data)
	})
	if err != nil {
		return &IOError{Op: "write", Path: s.path, Err: err}
	}

	return nil
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	err := s.db.Close()
	if err != nil {
		return &IOError{Op: "close", Path: s.path, Err: err}
	}

	return nil
}

// badgerLogger routes Badger's printf-style logging through slog.
type badgerLogger struct {
	logger *slog.Logger
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
