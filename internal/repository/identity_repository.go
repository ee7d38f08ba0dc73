package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/face-check/internal/logging"
	"github.com/example/face-check/internal/retry"
)

// ErrNotFound is returned when a looked up row does not exist.
var ErrNotFound = errors.New("record not found")

// Identity is a registered face: a name and the image it was enrolled with.
type Identity struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	Name      string    `gorm:"column:name;type:text;not null"`
	Image     []byte    `gorm:"column:image_data;not null"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

// TableName overrides the default table name.
func (Identity) TableName() string {
	return "users"
}

// Store persists identities and verification logs.
type Store struct {
	db          *gorm.DB
	logger      *zap.Logger
	retryPolicy retry.Policy
}

// Open connects to the database selected by driver ("sqlite" or "postgres").
func Open(ctx context.Context, driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		return nil, logging.NewOperationError("repository.open", "", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, logging.NewOperationError("repository.open", "", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, logging.NewOperationError("repository.ping", "", err)
	}
	return db, nil
}

// NewStore creates a store over an open database handle.
func NewStore(db *gorm.DB, logger *zap.Logger) *Store {
	return &Store{
		db:          db,
		logger:      logger.Named("store"),
		retryPolicy: retry.Default(ErrNotFound),
	}
}

// AutoMigrate ensures the schema is available. It is safe to call repeatedly.
func (s *Store) AutoMigrate(ctx context.Context) error {
	return logging.NewOperationError("repository.auto_migrate", "",
		s.db.WithContext(ctx).AutoMigrate(&Identity{}, &VerificationLog{}))
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Insert appends a new identity and returns its id.
func (s *Store) Insert(ctx context.Context, name string, image []byte) (uint, error) {
	identity := &Identity{Name: name, Image: image, CreatedAt: time.Now().UTC()}
	err := s.executeWithRetry(ctx, "repository.insert", "", func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return tx.Create(identity).Error
		})
	})
	if err != nil {
		return 0, err
	}
	return identity.ID, nil
}

// Count returns the number of registered identities.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.executeWithRetry(ctx, "repository.count", "", func() error {
		return s.db.WithContext(ctx).Model(&Identity{}).Count(&count).Error
	})
	return count, err
}

// ListAll returns every identity, most recently registered first.
func (s *Store) ListAll(ctx context.Context) ([]Identity, error) {
	var identities []Identity
	err := s.executeWithRetry(ctx, "repository.list_all", "", func() error {
		identities = identities[:0]
		return s.db.WithContext(ctx).Order("id DESC").Find(&identities).Error
	})
	if err != nil {
		return nil, err
	}
	return identities, nil
}

// executeWithRetry retries transient database failures. gorm's not-found
// error surfaces as ErrNotFound and is never retried.
func (s *Store) executeWithRetry(ctx context.Context, operation, requestID string, fn func() error) error {
	return s.retryPolicy.Do(ctx, s.logger, operation, requestID, func() error {
		err := fn()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	})
}
