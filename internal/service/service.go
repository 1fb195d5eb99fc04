// Package service holds the payment, ledger and session core. Services get
// their dependencies through constructors and return *apperr.Error values
// (possibly wrapped) that the handler layer maps to HTTP responses.
package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/iliyamo/paycore/internal/queue"
)

// EventPublisher is the outbound side of the broker. *queue.Publisher
// implements it.
type EventPublisher interface {
	PublishSettled(ctx context.Context, ev queue.PaymentSettledEvent) error
	PublishSettlementRetry(ctx context.Context, ev queue.SettlementRetryEvent) error
}

// NopPublisher drops events. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishSettled(context.Context, queue.PaymentSettledEvent) error { return nil }

func (NopPublisher) PublishSettlementRetry(context.Context, queue.SettlementRetryEvent) error {
	return nil
}

// withTx runs fn inside a transaction, committing when fn returns nil and
// rolling back otherwise.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}
