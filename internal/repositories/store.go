package repositories

import (
	"context"

	"gorm.io/gorm"
)

// Store groups the product/order repositories that share one database handle.
type Store struct {
	db       *gorm.DB
	Products ProductRepository
	Orders   OrderRepository
	Outbox   OutboxRepository
}

// NewStore builds GORM repositories on db.
func NewStore(db *gorm.DB) *Store {
	return &Store{
		db:       db,
		Products: NewGORMProductRepository(db),
		Orders:   NewGORMOrderRepository(db),
		Outbox:   NewGORMOutboxRepository(db),
	}
}

// WithTx runs fn with a Store bound to a single transaction, committing when
// fn returns nil and rolling back every write otherwise.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewStore(tx))
	})
}
