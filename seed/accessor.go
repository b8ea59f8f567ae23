package seed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"

	"github.com/judyrop/inventory/models"
)

// Accessor is the data-access surface the loader needs for one entity.
type Accessor interface {
	// Exists reports whether the entity's table exists.
	Exists(ctx context.Context) bool
	// DeleteMany removes every row and returns how many were deleted.
	DeleteMany(ctx context.Context) (int64, error)
	// Create inserts exactly one row built from a snapshot record.
	Create(ctx context.Context, record json.RawMessage) error
}

// Registry maps each entity to its accessor. It is built once at startup.
type Registry map[Entity]Accessor

// NewGormRegistry returns accessors for every entity backed by db.
func NewGormRegistry(db *gorm.DB) Registry {
	return Registry{
		Users:             gormTable[models.User]{db: db},
		Products:          gormTable[models.Product]{db: db},
		Expenses:          gormTable[models.Expense]{db: db},
		Sales:             gormTable[models.Sale]{db: db},
		Purchases:         gormTable[models.Purchase]{db: db},
		ExpenseSummary:    gormTable[models.ExpenseSummary]{db: db},
		ExpenseByCategory: gormTable[models.ExpenseByCategory]{db: db},
		SalesSummary:      gormTable[models.SalesSummary]{db: db},
		PurchaseSummary:   gormTable[models.PurchaseSummary]{db: db},
	}
}

type gormTable[T any] struct {
	db *gorm.DB
}

func (t gormTable[T]) Exists(ctx context.Context) bool {
	return t.db.WithContext(ctx).Migrator().HasTable(new(T))
}

func (t gormTable[T]) DeleteMany(ctx context.Context) (int64, error) {
	res := t.db.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(new(T))
	return res.RowsAffected, res.Error
}

func (t gormTable[T]) Create(ctx context.Context, record json.RawMessage) error {
	row := new(T)
	dec := json.NewDecoder(bytes.NewReader(record))
	dec.DisallowUnknownFields()
	if err := dec.Decode(row); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedSnapshot, err)
	}
	return t.db.WithContext(ctx).Create(row).Error
}
