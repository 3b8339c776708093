// internal/storage/storage.go
package storage

import (
	"context"
	"errors"

	"github.com/fossr-labs/fossr/internal/ledger"
	"github.com/fossr-labs/fossr/internal/storage/models"
)

var ErrNotFound = errors.New("record not found")

// Storage определяет интерфейс для работы с хранилищем
type Storage interface {
	// Аккаунты леджера
	ledger.Store

	// Транзакции
	SaveTransaction(ctx context.Context, tx *models.Transaction) error
	GetTransaction(ctx context.Context, signature string) (*models.Transaction, error)
	ListTransactions(ctx context.Context, limit, offset int) ([]*models.Transaction, error)

	// Циклы аирдропа
	RecordCycle(ctx context.Context, run *models.CycleRun) error
	ListCycles(ctx context.Context, limit int) ([]*models.CycleRun, error)

	RunMigrations() error
	Close() error
}
