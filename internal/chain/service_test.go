package chain

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fossr-labs/fossr/internal/events"
	"github.com/fossr-labs/fossr/internal/ledger"
	"github.com/fossr-labs/fossr/internal/program"
	"github.com/fossr-labs/fossr/internal/program/schema"
	"github.com/fossr-labs/fossr/internal/utils/metrics"
	"github.com/fossr-labs/fossr/internal/wallet"
)

const (
	start    int64 = 1_700_000_000
	oneSOL         = 1_000_000_000
	price          = 10_000
	oneToken       = 1_000_000_000
)

type env struct {
	ctx       context.Context
	svc       *Service
	local     *Local
	bus       *events.Bus
	clock     *ledger.ManualClock
	authority *wallet.Wallet
	mint      solana.PublicKey
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	logger := zaptest.NewLogger(t)
	clock := ledger.NewManualClock(time.Unix(start, 0))

	bank, err := ledger.NewBank(ctx, ledger.NewMemoryStore(), logger, ledger.WithClock(clock))
	require.NoError(t, err)
	prog, err := program.New(schema.DefaultProgramID, program.DefaultParams(), logger)
	require.NoError(t, err)
	bank.Register(prog.ID(), prog)

	bus := events.NewBus(logger, 64)
	local := NewLocal(bank, bus, logger)
	svc, err := NewService(local, prog.ID(), prog.Params(), logger, WithMetrics(metrics.NewCollector()))
	require.NoError(t, err)

	authority, err := wallet.Generate()
	require.NoError(t, err)
	mint := solana.NewWallet().PublicKey()
	require.NoError(t, bank.CreateMint(ctx, mint, svc.Addresses().ProgramState, 9))
	require.NoError(t, bank.Airdrop(ctx, authority.PublicKey, 100*oneSOL))

	_, err = svc.Initialize(ctx, authority, mint, price, 0)
	require.NoError(t, err)

	return &env{ctx: ctx, svc: svc, local: local, bus: bus, clock: clock, authority: authority, mint: mint}
}

func (e *env) funded(t *testing.T, lamports uint64) *wallet.Wallet {
	t.Helper()
	w, err := wallet.Generate()
	require.NoError(t, err)
	require.NoError(t, e.local.Bank().Airdrop(e.ctx, w.PublicKey, lamports))
	return w
}

func TestBuyListsLockedOrder(t *testing.T) {
	e := newEnv(t)
	buyer := e.funded(t, 10*oneSOL)

	res, err := e.svc.Buy(e.ctx, buyer, oneSOL)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Signature)
	assert.Equal(t, uint64(99_310_000_000_000), res.Quote.Net)

	orders, err := e.svc.Orders(e.ctx, buyer.PublicKey)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, res.Order, orders[0].Address)
	assert.Equal(t, res.Quote.Net, orders[0].TokenAmount)

	bal, err := e.svc.Balance(e.ctx, buyer.PublicKey)
	require.NoError(t, err)
	assert.Zero(t, bal.Unlocked)
	assert.Equal(t, res.Quote.Net, bal.Locked)
	assert.GreaterOrEqual(t, bal.NextUnlock, start+60)
	assert.LessOrEqual(t, bal.NextUnlock, start+3600)
}

func TestRepeatedBuysUseDistinctOrders(t *testing.T) {
	e := newEnv(t)
	buyer := e.funded(t, 10*oneSOL)

	// Часы не двигаются: seed заказа всё равно должен быть уникальным
	for i := 0; i < 3; i++ {
		_, err := e.svc.Buy(e.ctx, buyer, 100_000_000)
		require.NoError(t, err)
	}
	orders, err := e.svc.Orders(e.ctx, buyer.PublicKey)
	require.NoError(t, err)
	assert.Len(t, orders, 3)
}

func TestSellPercentAndLevel(t *testing.T) {
	e := newEnv(t)
	buyer := e.funded(t, 10*oneSOL)
	res, err := e.svc.Buy(e.ctx, buyer, oneSOL)
	require.NoError(t, err)

	_, err = e.svc.SellPercent(e.ctx, buyer, 50)
	assert.ErrorIs(t, err, ErrNothingToSell)

	e.clock.Advance(2 * time.Hour)

	lvl, err := e.svc.Level(e.ctx, buyer.PublicKey)
	require.NoError(t, err)
	assert.Equal(t, uint64(99_310), lvl.Points)
	assert.Equal(t, "Chained Shark", lvl.Current.Name)

	_, err = e.svc.SellPercent(e.ctx, buyer, 50)
	require.NoError(t, err)

	bal, err := e.svc.Balance(e.ctx, buyer.PublicKey)
	require.NoError(t, err)
	assert.Equal(t, res.Quote.Net-res.Quote.Net/2, bal.Unlocked)

	_, err = e.svc.SellPercent(e.ctx, buyer, 101)
	assert.Error(t, err)
}

func TestSellMoreThanUnlockedFails(t *testing.T) {
	e := newEnv(t)
	buyer := e.funded(t, 10*oneSOL)
	res, err := e.svc.Buy(e.ctx, buyer, oneSOL)
	require.NoError(t, err)
	e.clock.Advance(2 * time.Hour)

	_, err = e.svc.Sell(e.ctx, buyer, res.Quote.Net+1)
	assert.ErrorIs(t, err, program.ErrTokensStillLocked)
	assert.Equal(t, program.KindResource, program.KindOf(err))
}

func TestEligibleHolders(t *testing.T) {
	e := newEnv(t)
	whale := e.funded(t, 10*oneSOL)
	_, err := e.svc.Buy(e.ctx, whale, oneSOL)
	require.NoError(t, err)

	small := solana.NewWallet().PublicKey()
	_, err = e.local.Bank().SetTokenBalance(e.ctx, small, e.mint, 5_000*oneToken)
	require.NoError(t, err)
	mid := solana.NewWallet().PublicKey()
	midATA, err := e.local.Bank().SetTokenBalance(e.ctx, mid, e.mint, 20_000*oneToken)
	require.NoError(t, err)

	holders, err := e.svc.EligibleHolders(e.ctx, e.mint, e.svc.Params().MinAirdropEligible)
	require.NoError(t, err)
	require.Len(t, holders, 2)
	assert.Equal(t, whale.PublicKey, holders[0].Wallet)
	assert.Equal(t, mid, holders[1].Wallet)
	assert.Equal(t, midATA, holders[1].TokenAccount)
}

func TestAirdropThroughServicePublishesEvents(t *testing.T) {
	e := newEnv(t)

	var mu sync.Mutex
	var seen []events.EventType
	e.bus.SubscribeFunc(events.All, func(_ context.Context, ev events.Event) error {
		if ev.Type() == events.ProgramInitialized {
			// опубликовано до подписки, доставка не гарантирована
			return nil
		}
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, ev.Type())
		return nil
	})

	buyer := e.funded(t, 10*oneSOL)
	_, err := e.svc.Buy(e.ctx, buyer, oneSOL)
	require.NoError(t, err)

	_, err = e.svc.ExecuteAirdrop(e.ctx, e.authority, buyer.PublicKey)
	assert.ErrorIs(t, err, program.ErrAirdropNotReady)

	e.clock.Advance(10 * time.Minute)
	state, err := e.svc.ProgramState(e.ctx)
	require.NoError(t, err)
	pot := state.AirdropAmount
	require.Equal(t, uint64(621_000_000_000), pot)

	_, err = e.svc.ExecuteAirdrop(e.ctx, e.authority, buyer.PublicKey)
	require.NoError(t, err)
	_, err = e.svc.ExecuteAirdrop(e.ctx, e.authority, buyer.PublicKey)
	assert.ErrorIs(t, err, program.ErrAirdropAlreadyExecuted)
	assert.True(t, program.IsRace(err))

	last, err := e.svc.LastAirdrop(e.ctx)
	require.NoError(t, err)
	assert.Equal(t, buyer.PublicKey, last.Winner)
	assert.Equal(t, pot, last.Amount)

	_, err = e.svc.ResetCycle(e.ctx, e.authority)
	require.NoError(t, err)
	after, err := e.svc.ProgramState(e.ctx)
	require.NoError(t, err)
	assert.Equal(t, state.NextAirdropTime+300, after.NextAirdropTime)
	assert.False(t, after.AirdropExecuted)

	require.NoError(t, e.bus.Shutdown(e.ctx))
	assert.Equal(t, []events.EventType{
		events.BuyExecuted, events.AirdropExecuted, events.CycleReset,
	}, seen)
}

func testOrder(amount uint64, created, unlock int64) Order {
	return Order{
		Address:       solana.NewWallet().PublicKey(),
		PurchaseOrder: &schema.PurchaseOrder{TokenAmount: amount, CreatedAt: created, UnlockTime: unlock},
	}
}

func TestPlanSellTakesShortestPrefix(t *testing.T) {
	orders := []Order{testOrder(5, 1, 10), testOrder(7, 2, 500), testOrder(3, 3, 20), testOrder(9, 4, 30)}

	got, err := planSell(orders, 100, 8, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []solana.PublicKey{orders[0].Address, orders[2].Address}, got[0].orders)
	assert.Equal(t, uint64(8), got[0].amount)

	_, err = planSell(orders, 100, 1_000, 1)
	assert.ErrorIs(t, err, program.ErrTokensStillLocked)
	assert.Equal(t, program.KindResource, program.KindOf(err))
}

func TestPlanSellSplitsAtOrderLimit(t *testing.T) {
	var orders []Order
	for i := 0; i < maxSellOrders+1; i++ {
		orders = append(orders, testOrder(10, int64(i), 0))
	}

	got, err := planSell(orders, 100, 10*uint64(len(orders)), 1)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Len(t, got[0].orders, maxSellOrders)
	assert.Equal(t, uint64(10*maxSellOrders), got[0].amount)
	assert.Equal(t, []solana.PublicKey{orders[maxSellOrders].Address}, got[1].orders)
	assert.Equal(t, uint64(10), got[1].amount)

	// хвост 3 < минимума 5: недостающее берётся из первой части
	got, err = planSell(orders, 100, 10*maxSellOrders+3, 5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(10*maxSellOrders-2), got[0].amount)
	assert.Equal(t, uint64(5), got[1].amount)
}

func TestSellFullBalanceAcrossManyOrders(t *testing.T) {
	e := newEnv(t)
	buyer := e.funded(t, 10*oneSOL)
	const buys = 30
	for i := 0; i < buys; i++ {
		_, err := e.svc.Buy(e.ctx, buyer, 10_000_000)
		require.NoError(t, err)
	}
	e.clock.Advance(6 * time.Hour)

	bal, err := e.svc.Balance(e.ctx, buyer.PublicKey)
	require.NoError(t, err)
	require.Zero(t, bal.Locked)

	res, err := e.svc.Sell(e.ctx, buyer, bal.Unlocked)
	require.NoError(t, err)
	assert.Len(t, res.Signatures, 2)
	assert.Equal(t, bal.Unlocked, res.Sold)

	after, err := e.svc.Balance(e.ctx, buyer.PublicKey)
	require.NoError(t, err)
	assert.Zero(t, after.Unlocked)
	orders, err := e.svc.Orders(e.ctx, buyer.PublicKey)
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestSellPercentHundredAcrossManyOrders(t *testing.T) {
	e := newEnv(t)
	buyer := e.funded(t, 10*oneSOL)
	for i := 0; i < maxSellOrders+6; i++ {
		_, err := e.svc.Buy(e.ctx, buyer, 10_000_000)
		require.NoError(t, err)
	}
	e.clock.Advance(6 * time.Hour)
	bal, err := e.svc.Balance(e.ctx, buyer.PublicKey)
	require.NoError(t, err)

	res, err := e.svc.SellPercent(e.ctx, buyer, 100)
	require.NoError(t, err)
	assert.Equal(t, bal.Unlocked, res.Sold)
	assert.Len(t, res.Signatures, 2)
}

func TestBuyReturnsQuoteError(t *testing.T) {
	e := newEnv(t)
	buyer := e.funded(t, 10*oneSOL)

	_, err := e.svc.Buy(e.ctx, buyer, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quote buy")

	orders, err := e.svc.Orders(e.ctx, buyer.PublicKey)
	require.NoError(t, err)
	assert.Empty(t, orders)
}
