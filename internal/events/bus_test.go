package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestBusDeliversToTypeAndWildcard(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t), 16)

	var mu sync.Mutex
	var typed, all []EventType
	bus.SubscribeFunc(BuyExecuted, func(_ context.Context, e Event) error {
		mu.Lock()
		defer mu.Unlock()
		typed = append(typed, e.Type())
		return nil
	})
	bus.SubscribeFunc(All, func(_ context.Context, e Event) error {
		mu.Lock()
		defer mu.Unlock()
		all = append(all, e.Type())
		return nil
	})

	require.NoError(t, bus.Publish(BuyExecutedEvent{BaseEvent: NewBase(BuyExecuted, 1)}))
	require.NoError(t, bus.Publish(CycleResetEvent{BaseEvent: NewBase(CycleReset, 2)}))
	require.NoError(t, bus.Shutdown(context.Background()))

	assert.Equal(t, []EventType{BuyExecuted}, typed)
	assert.Equal(t, []EventType{BuyExecuted, CycleReset}, all)
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t), 4)
	calls := 0
	sub := bus.SubscribeFunc(SellExecuted, func(context.Context, Event) error {
		calls++
		return nil
	})
	require.NoError(t, bus.PublishSync(context.Background(), SellExecutedEvent{BaseEvent: NewBase(SellExecuted, 1)}))
	sub.Unsubscribe()
	sub.Unsubscribe()
	require.NoError(t, bus.PublishSync(context.Background(), SellExecutedEvent{BaseEvent: NewBase(SellExecuted, 2)}))

	assert.Equal(t, 1, calls)
	require.NoError(t, bus.Shutdown(context.Background()))
}

func TestBusRejectsAfterShutdown(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t), 1)
	require.NoError(t, bus.Shutdown(context.Background()))
	assert.ErrorIs(t, bus.Publish(PotUpdatedEvent{BaseEvent: NewBase(PotUpdated, 1)}), ErrBusClosed)
}

func TestNewBaseUsesLedgerTime(t *testing.T) {
	b := NewBase(AirdropExecuted, 1_700_000_000)
	assert.Equal(t, AirdropExecuted, b.Type())
	assert.Equal(t, time.Unix(1_700_000_000, 0).UTC(), b.Timestamp())
}

func TestOnFiltersByConcreteType(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t), 8)

	var winners []uint64
	On(bus, All, func(_ context.Context, e AirdropExecutedEvent) error {
		winners = append(winners, e.Amount)
		return nil
	})
	require.NoError(t, bus.PublishSync(context.Background(), BuyExecutedEvent{BaseEvent: NewBase(BuyExecuted, 1)}))
	require.NoError(t, bus.PublishSync(context.Background(), AirdropExecutedEvent{BaseEvent: NewBase(AirdropExecuted, 2), Amount: 42}))

	assert.Equal(t, []uint64{42}, winners)
	st := bus.Stats()
	assert.Equal(t, 1, st.Handlers[string(All)])
	assert.Zero(t, st.Dropped)
	require.NoError(t, bus.Shutdown(context.Background()))
}
