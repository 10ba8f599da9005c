package badger

import (
	"fmt"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"

	"github.com/spacemaster/spacedrive/internal/logger"
	"github.com/spacemaster/spacedrive/pkg/metadata"
)

// BadgerMetadataStore implements metadata.MetadataStore using BadgerDB,
// an embedded LSM-tree key-value database.
//
// This implementation provides durable, crash-safe metadata storage with
// no external service dependency, making it the default choice for
// single-node deployments.
//
// Thread Safety:
// BadgerDB transactions give snapshot isolation; mutations run inside
// db.Update and readers inside db.View. A small store-level mutex guards
// the monotonic CreatedAt counter, which badger cannot provide.
//
// See keys.go for the key namespace design.
type BadgerMetadataStore struct {
	db *badger.DB

	// createMu serializes CreatedAt assignment so timestamps stay
	// strictly monotonic across concurrent creations.
	createMu   sync.Mutex
	lastCreate time.Time
}

// Config holds the options for opening a Badger-backed metadata store.
// It is decoded from the metadata backend options map via mapstructure.
type Config struct {
	// Path is the directory for the badger value log and LSM files.
	Path string `mapstructure:"path"`

	// InMemory runs badger without disk persistence. Useful for tests
	// that want badger semantics without a TempDir.
	InMemory bool `mapstructure:"in_memory"`
}

// NewBadgerMetadataStore opens (or creates) a badger database at the
// configured path and returns a store ready for use.
//
// Badger's own logger is routed through the application logger at
// warning level to keep its chatty INFO output out of normal runs.
func NewBadgerMetadataStore(cfg Config) (*BadgerMetadataStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, &metadata.StoreError{Code: metadata.ErrInvalidArgument, Message: "badger metadata store requires a path"}
	}

	opts := badger.DefaultOptions(cfg.Path).
		WithInMemory(cfg.InMemory).
		WithLogger(badgerLogger{}).
		WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, &metadata.StoreError{
			Code:    metadata.ErrUnavailable,
			Message: "failed to open badger database",
			Ref:     cfg.Path,
			Err:     err,
		}
	}

	return &BadgerMetadataStore{db: db}, nil
}

// NewBadgerMetadataStoreFromOptions decodes a generic options map into a
// Config and opens the store. This is the factory entry point used by the
// configuration layer.
func NewBadgerMetadataStoreFromOptions(options map[string]any) (*BadgerMetadataStore, error) {
	var cfg Config
	if err := mapstructure.Decode(options, &cfg); err != nil {
		return nil, &metadata.StoreError{
			Code:    metadata.ErrInvalidArgument,
			Message: "invalid badger metadata store options",
			Err:     err,
		}
	}
	return NewBadgerMetadataStore(cfg)
}

// Close flushes and closes the underlying database. The store must not
// be used after Close returns.
func (s *BadgerMetadataStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close badger database: %w", err)
	}
	return nil
}

// nextCreatedAt assigns a creation timestamp strictly after every
// previously assigned one.
func (s *BadgerMetadataStore) nextCreatedAt() time.Time {
	s.createMu.Lock()
	defer s.createMu.Unlock()

	now := time.Now()
	if !now.After(s.lastCreate) {
		now = s.lastCreate.Add(time.Nanosecond)
	}
	s.lastCreate = now
	return now
}

// newID generates a unique record identifier.
func newID() string {
	return uuid.NewString()
}

// backendError wraps a badger failure as a retryable store error.
func backendError(msg string, err error) error {
	return &metadata.StoreError{Code: metadata.ErrUnavailable, Message: msg, Err: err}
}

// badgerLogger adapts the application logger to badger's Logger interface.
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...any) {
	logger.Error("badger: "+format, args...)
}

func (badgerLogger) Warningf(format string, args ...any) {
	logger.Warn("badger: "+format, args...)
}

func (badgerLogger) Infof(format string, args ...any) {
	logger.Info("badger: "+format, args...)
}

func (badgerLogger) Debugf(format string, args ...any) {
	logger.Debug("badger: "+format, args...)
}
