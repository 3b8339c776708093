// internal/storage/gormstore/gormstore.go
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fossr-labs/fossr/internal/events"
	"github.com/fossr-labs/fossr/internal/ledger"
	"github.com/fossr-labs/fossr/internal/storage"
	"github.com/fossr-labs/fossr/internal/storage/models"
)

const (
	migrationLockID = 101
	headID          = 1
)

// Store keeps the ledger and its history in a SQL database. Postgres DSNs
// select the postgres driver, anything else is opened as a sqlite file.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

func Open(dsn string, zapLogger *zap.Logger) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("empty database dsn")
	}
	db, err := gorm.Open(dialector(dsn), &gorm.Config{
		Logger: newGormLogger(zapLogger.Named("gorm")),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		DisableForeignKeyConstraintWhenMigrating: true,
		SkipDefaultTransaction:                   true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	if db.Dialector.Name() == "postgres" {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetConnMaxLifetime(time.Hour)
	} else {
		// один писатель, иначе sqlite отвечает "database is locked"
		sqlDB.SetMaxOpenConns(1)
	}

	return &Store{db: db, logger: zapLogger}, nil
}

func dialector(dsn string) gorm.Dialector {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return postgres.Open(dsn)
	}
	return sqlite.Open(dsn)
}

// RunMigrations creates the tables. On postgres concurrent runners are
// serialized with an advisory lock.
func (s *Store) RunMigrations() error {
	if s.db.Dialector.Name() == "postgres" {
		var lockObtained bool
		err := s.db.Raw("SELECT pg_try_advisory_lock(?)", migrationLockID).Scan(&lockObtained).Error
		if err != nil {
			return fmt.Errorf("failed to acquire migration lock: %w", err)
		}
		if !lockObtained {
			return fmt.Errorf("another migration is in progress")
		}
		defer s.db.Exec("SELECT pg_advisory_unlock(?)", migrationLockID)
	}

	err := s.db.AutoMigrate(
		&models.Account{},
		&models.LedgerHead{},
		&models.Transaction{},
		&models.CycleRun{},
	)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Get(ctx context.Context, addr solana.PublicKey) (*ledger.Account, error) {
	var row models.Account
	err := s.db.WithContext(ctx).Where("address = ?", addr.String()).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ledger.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrStoreUnavailable, err)
	}
	return toLedger(&row)
}

// Scan filters by owner in SQL and by data in memory. Results are ordered
// by address like the in-memory store.
func (s *Store) Scan(ctx context.Context, owner solana.PublicKey, filters ...ledger.Filter) ([]*ledger.Account, error) {
	var rows []models.Account
	err := s.db.WithContext(ctx).
		Where("owner = ?", owner.String()).
		Order("address").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrStoreUnavailable, err)
	}
	out := make([]*ledger.Account, 0, len(rows))
	for i := range rows {
		if !ledger.MatchAll(rows[i].Data, filters) {
			continue
		}
		acc, err := toLedger(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, acc)
	}
	return out, nil
}

func (s *Store) Apply(ctx context.Context, cs ledger.ChangeSet) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(cs.Put) > 0 {
			rows := make([]models.Account, 0, len(cs.Put))
			for _, acc := range cs.Put {
				rows = append(rows, fromLedger(acc, cs.Slot))
			}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "address"}},
				UpdateAll: true,
			}).Create(&rows).Error
			if err != nil {
				return fmt.Errorf("upsert accounts: %w", err)
			}
		}
		if len(cs.Delete) > 0 {
			addrs := make([]string, 0, len(cs.Delete))
			for _, a := range cs.Delete {
				addrs = append(addrs, a.String())
			}
			if err := tx.Where("address IN ?", addrs).Delete(&models.Account{}).Error; err != nil {
				return fmt.Errorf("delete accounts: %w", err)
			}
		}
		return advanceHead(tx, cs.Slot)
	})
}

func advanceHead(tx *gorm.DB, slot uint64) error {
	var head models.LedgerHead
	err := tx.Where("id = ?", headID).First(&head).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return tx.Create(&models.LedgerHead{ID: headID, Slot: slot}).Error
	case err != nil:
		return fmt.Errorf("read ledger head: %w", err)
	case slot > head.Slot:
		return tx.Model(&head).Update("slot", slot).Error
	}
	return nil
}

func (s *Store) LatestSlot(ctx context.Context) (uint64, error) {
	var head models.LedgerHead
	err := s.db.WithContext(ctx).Where("id = ?", headID).First(&head).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return head.Slot, nil
}

func (s *Store) SaveTransaction(ctx context.Context, tx *models.Transaction) error {
	return s.db.WithContext(ctx).Create(tx).Error
}

func (s *Store) GetTransaction(ctx context.Context, signature string) (*models.Transaction, error) {
	var tx models.Transaction
	err := s.db.WithContext(ctx).Where("signature = ?", signature).First(&tx).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func (s *Store) ListTransactions(ctx context.Context, limit, offset int) ([]*models.Transaction, error) {
	var txs []*models.Transaction
	err := s.db.WithContext(ctx).
		Order("slot desc").
		Limit(limit).
		Offset(offset).
		Find(&txs).Error
	return txs, err
}

// RecordReceipt saves a committed transaction. It is meant to be passed to
// Bank.Subscribe.
func (s *Store) RecordReceipt(ctx context.Context, r *ledger.Receipt) error {
	names := make([]string, 0, len(r.Events))
	for _, ev := range r.Events {
		if e, ok := ev.(events.Event); ok {
			names = append(names, string(e.Type()))
		}
	}
	return s.SaveTransaction(ctx, &models.Transaction{
		Signature: r.Signature,
		Slot:      r.Slot,
		BlockTime: time.Unix(r.BlockTime, 0).UTC(),
		Events:    strings.Join(names, ","),
		Logs:      strings.Join(r.Logs, "\n"),
	})
}

func (s *Store) RecordCycle(ctx context.Context, run *models.CycleRun) error {
	return s.db.WithContext(ctx).Create(run).Error
}

// ListCycles returns the most recent runs first.
func (s *Store) ListCycles(ctx context.Context, limit int) ([]*models.CycleRun, error) {
	var runs []*models.CycleRun
	err := s.db.WithContext(ctx).
		Order("id desc").
		Limit(limit).
		Find(&runs).Error
	return runs, err
}

func fromLedger(acc *ledger.Account, slot uint64) models.Account {
	data := acc.Data
	if data == nil {
		data = []byte{}
	}
	return models.Account{
		Address:  acc.Address.String(),
		Owner:    acc.Owner.String(),
		Lamports: acc.Lamports,
		Data:     data,
		Slot:     slot,
	}
}

func toLedger(row *models.Account) (*ledger.Account, error) {
	addr, err := solana.PublicKeyFromBase58(row.Address)
	if err != nil {
		return nil, fmt.Errorf("corrupt account address %q: %w", row.Address, err)
	}
	owner, err := solana.PublicKeyFromBase58(row.Owner)
	if err != nil {
		return nil, fmt.Errorf("corrupt owner of %s: %w", row.Address, err)
	}
	return &ledger.Account{
		Address:  addr,
		Owner:    owner,
		Lamports: row.Lamports,
		Data:     append([]byte(nil), row.Data...),
	}, nil
}

var (
	_ ledger.Store    = (*Store)(nil)
	_ storage.Storage = (*Store)(nil)
)
