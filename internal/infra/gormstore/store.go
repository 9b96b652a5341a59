// Package gormstore is the relational catalog store: products, categories,
// orders with their line snapshots, and the read-only user directory.
// Production runs on Postgres; tests run the same code on SQLite.
package gormstore

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jcmexdev/storefront/internal/core/domain"
	"github.com/jcmexdev/storefront/internal/core/ports"
)

var (
	_ ports.CategoryRepository = (*Store)(nil)
	_ ports.ProductRepository  = (*Store)(nil)
	_ ports.StockStore         = (*Store)(nil)
	_ ports.OrderRepository    = (*Store)(nil)
	_ ports.UserDirectory      = (*Store)(nil)
	_ ports.SlugLookup         = (*Store)(nil)
)

type Store struct {
	db *gorm.DB
}

// Open connects to Postgres and migrates the schema.
func Open(dsn string) (*Store, error) {
	return OpenDialector(postgres.Open(dsn))
}

// OpenDialector lets callers bring their own driver (SQLite in tests).
func OpenDialector(d gorm.Dialector) (*Store, error) {
	db, err := gorm.Open(d, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("gormstore: open: %w", err)
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&categoryModel{}, &productModel{}, &orderModel{}, &orderLineModel{}, &userModel{}); err != nil {
		return fmt.Errorf("gormstore: migrate: %w", err)
	}
	return nil
}

func (s *Store) DB() *gorm.DB { return s.db }

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) SlugTaken(ctx context.Context, kind domain.EntityKind, slug, excludeID string) (bool, error) {
	var model any
	switch kind {
	case domain.KindCategory:
		model = &categoryModel{}
	case domain.KindProduct:
		model = &productModel{}
	default:
		return false, fmt.Errorf("gormstore: unknown entity kind %q", kind)
	}

	q := s.db.WithContext(ctx).Model(model).Where("slug = ?", slug)
	if excludeID != "" {
		q = q.Where("id <> ?", excludeID)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return false, fmt.Errorf("gormstore: slug lookup: %w", err)
	}
	return n > 0, nil
}

// CreateUser inserts a directory entry. Users are owned by the external auth
// layer; this exists for seeding.
func (s *Store) CreateUser(ctx context.Context, u domain.User) error {
	m := userModel{ID: u.ID, Name: u.Name, Role: int(u.Role)}
	return translate(s.db.WithContext(ctx).Create(&m).Error, "user", u.ID)
}

func (s *Store) FindUserByID(ctx context.Context, id string) (*domain.User, error) {
	var m userModel
	if err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("gormstore: find user %s: %w", id, err)
	}
	return &domain.User{ID: m.ID, Name: m.Name, Role: domain.Role(m.Role)}, nil
}

// translate maps driver-level constraint errors onto domain sentinels.
func translate(err error, entity, key string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return err
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%s %s: %w", entity, key, domain.ErrConflict)
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return fmt.Errorf("%s %s: %w", entity, key, domain.ErrConflict)
	case errors.Is(err, gorm.ErrCheckConstraintViolated):
		return domain.NewValidationError("", fmt.Sprintf("%s %s violates a constraint", entity, key))
	default:
		return fmt.Errorf("gormstore: %s %s: %w", entity, key, err)
	}
}
