package gormstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fossr-labs/fossr/internal/ledger"
	"github.com/fossr-labs/fossr/internal/program"
	"github.com/fossr-labs/fossr/internal/program/schema"
	"github.com/fossr-labs/fossr/internal/storage"
	"github.com/fossr-labs/fossr/internal/storage/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "fossr.db"), zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, s.RunMigrations())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestApplyAndGet(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	owner := solana.NewWallet().PublicKey()
	a := &ledger.Account{Address: solana.NewWallet().PublicKey(), Owner: owner, Lamports: 10, Data: []byte{1, 2, 3}}
	b := &ledger.Account{Address: solana.NewWallet().PublicKey(), Owner: owner, Lamports: 20}

	require.NoError(t, s.Apply(ctx, ledger.ChangeSet{Slot: 3, Put: []*ledger.Account{a, b}}))

	got, err := s.Get(ctx, a.Address)
	require.NoError(t, err)
	assert.Equal(t, a.Owner, got.Owner)
	assert.Equal(t, uint64(10), got.Lamports)
	assert.Equal(t, []byte{1, 2, 3}, got.Data)

	// повторная запись обновляет строку
	a.Lamports = 15
	require.NoError(t, s.Apply(ctx, ledger.ChangeSet{Slot: 4, Put: []*ledger.Account{a}, Delete: []solana.PublicKey{b.Address}}))
	got, err = s.Get(ctx, a.Address)
	require.NoError(t, err)
	assert.Equal(t, uint64(15), got.Lamports)

	_, err = s.Get(ctx, b.Address)
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)

	slot, err := s.LatestSlot(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), slot)

	// слот не откатывается назад
	require.NoError(t, s.Apply(ctx, ledger.ChangeSet{Slot: 2}))
	slot, err = s.LatestSlot(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), slot)
}

func TestScanFiltersAndOrders(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	owner := solana.NewWallet().PublicKey()
	other := solana.NewWallet().PublicKey()
	var put []*ledger.Account
	for i := 0; i < 5; i++ {
		put = append(put, &ledger.Account{
			Address: solana.NewWallet().PublicKey(),
			Owner:   owner,
			Data:    []byte{byte(i % 2), 9},
		})
	}
	put = append(put, &ledger.Account{Address: solana.NewWallet().PublicKey(), Owner: other, Data: []byte{1, 9}})
	require.NoError(t, s.Apply(ctx, ledger.ChangeSet{Slot: 1, Put: put}))

	all, err := s.Scan(ctx, owner)
	require.NoError(t, err)
	require.Len(t, all, 5)
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].Address.String(), all[i].Address.String())
	}

	odd, err := s.Scan(ctx, owner, ledger.Filter{Offset: 0, Bytes: []byte{1}, DataSize: 2})
	require.NoError(t, err)
	assert.Len(t, odd, 2)
}

func TestEmptyStore(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	slot, err := s.LatestSlot(ctx)
	require.NoError(t, err)
	assert.Zero(t, slot)

	_, err = s.GetTransaction(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCycleHistory(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	for i, outcome := range []string{"reset", "paid"} {
		require.NoError(t, s.RecordCycle(ctx, &models.CycleRun{
			CycleTime: int64(1_700_000_100 + i*300),
			Outcome:   outcome,
			StartedAt: time.Now().UTC(),
		}))
	}
	runs, err := s.ListCycles(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "paid", runs[0].Outcome)
	assert.Equal(t, int64(1_700_000_400), runs[0].CycleTime)
}

// Банк поверх SQL хранилища: состояние переживает переоткрытие базы.
func TestBankOnSQLStore(t *testing.T) {
	ctx := context.Background()
	logger := zaptest.NewLogger(t)
	dsn := filepath.Join(t.TempDir(), "ledger.db")

	s, err := Open(dsn, logger)
	require.NoError(t, err)
	require.NoError(t, s.RunMigrations())

	clock := ledger.NewManualClock(time.Unix(1_700_000_000, 0))
	bank, err := ledger.NewBank(ctx, s, logger, ledger.WithClock(clock))
	require.NoError(t, err)
	bank.Subscribe(func(r *ledger.Receipt) {
		assert.NoError(t, s.RecordReceipt(ctx, r))
	})

	prog, err := program.New(schema.DefaultProgramID, program.DefaultParams(), logger)
	require.NoError(t, err)
	bank.Register(prog.ID(), prog)
	addrs := prog.Addresses()

	mint := solana.NewWallet().PublicKey()
	authority := solana.NewWallet().PublicKey()
	require.NoError(t, bank.CreateMint(ctx, mint, addrs.ProgramState, 9))
	require.NoError(t, bank.Airdrop(ctx, authority, 1_000_000_000_000))

	ix, err := program.BuildInitializeInstruction(addrs, authority, mint, 10_000, 0)
	require.NoError(t, err)
	receipt, err := bank.Process(ctx, []solana.PublicKey{authority}, ix)
	require.NoError(t, err)

	rec, err := s.GetTransaction(ctx, receipt.Signature)
	require.NoError(t, err)
	assert.Equal(t, receipt.Slot, rec.Slot)
	assert.Contains(t, rec.Events, "program.initialized")
	require.NoError(t, s.Close())

	reopened, err := Open(dsn, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	acc, err := reopened.Get(ctx, addrs.ProgramState)
	require.NoError(t, err)
	state, err := schema.DecodeProgramState(acc.Data)
	require.NoError(t, err)
	assert.Equal(t, authority, state.Authority)
	assert.Equal(t, uint64(10_000), state.CurrentPrice)

	slot, err := reopened.LatestSlot(ctx)
	require.NoError(t, err)
	assert.Equal(t, receipt.Slot, slot)
}
