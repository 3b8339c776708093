package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fossr-labs/fossr/internal/chain"
	"github.com/fossr-labs/fossr/internal/program"
	"github.com/fossr-labs/fossr/internal/program/schema"
	"github.com/fossr-labs/fossr/internal/storage/models"
	"github.com/fossr-labs/fossr/internal/utils/metrics"
	"github.com/fossr-labs/fossr/internal/wallet"
)

const cycleTime int64 = 1_700_000_100

// fakeLedger отвечает из памяти и считает вызовы.
type fakeLedger struct {
	mu         sync.Mutex
	state      schema.ProgramState
	now        time.Time
	holders    []chain.Holder
	stateErrs  []error
	airdropErr error
	resetErr   error

	airdrops []solana.PublicKey
	resets   int
}

func (f *fakeLedger) ProgramState(context.Context) (*schema.ProgramState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.stateErrs) > 0 {
		err := f.stateErrs[0]
		f.stateErrs = f.stateErrs[1:]
		return nil, err
	}
	s := f.state
	return &s, nil
}

func (f *fakeLedger) Now(context.Context) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now, nil
}

func (f *fakeLedger) EligibleHolders(_ context.Context, _ solana.PublicKey, min uint64) ([]chain.Holder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []chain.Holder
	for _, h := range f.holders {
		if h.Balance >= min {
			out = append(out, h)
		}
	}
	return out, nil
}

func (f *fakeLedger) ExecuteAirdrop(_ context.Context, _ *wallet.Wallet, winner solana.PublicKey) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.airdropErr != nil {
		return "", f.airdropErr
	}
	f.airdrops = append(f.airdrops, winner)
	f.state.AirdropExecuted = true
	return "airdrop-sig", nil
}

func (f *fakeLedger) ResetCycle(context.Context, *wallet.Wallet) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resetErr != nil {
		return "", f.resetErr
	}
	f.resets++
	f.state.NextAirdropTime += 300
	f.state.AirdropExecuted = false
	return "reset-sig", nil
}

type memHistory struct {
	runs []*models.CycleRun
}

func (h *memHistory) RecordCycle(_ context.Context, run *models.CycleRun) error {
	h.runs = append(h.runs, run)
	return nil
}

func holder(balance uint64) chain.Holder {
	return chain.Holder{
		Wallet:       solana.NewWallet().PublicKey(),
		TokenAccount: solana.NewWallet().PublicKey(),
		Balance:      balance,
	}
}

func newTestScheduler(t *testing.T, l Ledger, opts ...Option) *Scheduler {
	t.Helper()
	authority, err := wallet.Generate()
	require.NoError(t, err)
	cfg := DefaultConfig()
	cfg.MinEligible = 100
	cfg.Retry = RetryConfig{MaxTries: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}
	s, err := New(l, authority, cfg, zaptest.NewLogger(t), opts...)
	require.NoError(t, err)
	return s
}

func dueLedger(holders ...chain.Holder) *fakeLedger {
	return &fakeLedger{
		state:   schema.ProgramState{NextAirdropTime: cycleTime, AirdropAmount: 5_000},
		now:     time.Unix(cycleTime+1, 0),
		holders: holders,
	}
}

func TestRunCycleNotDue(t *testing.T) {
	l := dueLedger(holder(1_000))
	l.now = time.Unix(cycleTime-40, 0)
	s := newTestScheduler(t, l)

	res, err := s.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeWaiting, res.Outcome)
	assert.Equal(t, 40*time.Second, res.Wait)
	assert.Empty(t, l.airdrops)
	assert.Zero(t, l.resets)
}

func TestRunCyclePaysOneEligibleHolder(t *testing.T) {
	small := holder(10)
	big := holder(1_000)
	l := dueLedger(small, big)
	hist := &memHistory{}
	s := newTestScheduler(t, l, WithHistory(hist), WithPicker(func(n int) int {
		assert.Equal(t, 1, n) // мелкий держатель отфильтрован
		return 0
	}))

	res, err := s.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomePaid, res.Outcome)
	assert.Equal(t, []solana.PublicKey{big.Wallet}, l.airdrops)
	assert.Equal(t, 1, l.resets)
	assert.Equal(t, "airdrop-sig", res.Signature)
	assert.Equal(t, "reset-sig", res.ResetSignature)
	assert.Equal(t, uint64(5_000), res.Amount)

	require.Len(t, hist.runs, 1)
	assert.Equal(t, "paid", hist.runs[0].Outcome)
	assert.Equal(t, big.Wallet.String(), hist.runs[0].Winner)
	assert.Equal(t, cycleTime, hist.runs[0].CycleTime)
}

func TestRunCycleNoEligibleResetsWithoutPayout(t *testing.T) {
	l := dueLedger(holder(1))
	s := newTestScheduler(t, l)

	res, err := s.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, res.Outcome)
	assert.Empty(t, l.airdrops)
	assert.Equal(t, 1, l.resets)
}

func TestRunCycleEmptyPotSkips(t *testing.T) {
	l := dueLedger(holder(1_000))
	l.state.AirdropAmount = 0
	s := newTestScheduler(t, l)

	res, err := s.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, res.Outcome)
	assert.Empty(t, l.airdrops)
	assert.Equal(t, 1, l.resets)
}

func TestRunCycleAlreadyExecutedOnlyResets(t *testing.T) {
	l := dueLedger(holder(1_000))
	l.state.AirdropExecuted = true
	s := newTestScheduler(t, l)

	res, err := s.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeReset, res.Outcome)
	assert.Empty(t, l.airdrops)
	assert.Equal(t, 1, l.resets)
}

func TestRunCycleLostRaceStillResets(t *testing.T) {
	l := dueLedger(holder(1_000))
	l.airdropErr = program.ErrAirdropAlreadyExecuted
	s := newTestScheduler(t, l)

	res, err := s.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeRace, res.Outcome)
	assert.Zero(t, res.Amount)
	assert.Equal(t, 1, l.resets)
}

func TestRunCycleResetRaceIsNotAFailure(t *testing.T) {
	l := dueLedger()
	l.resetErr = program.ErrAirdropNotReady
	s := newTestScheduler(t, l)

	res, err := s.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, res.Outcome)
	assert.Empty(t, res.ResetSignature)
}

func TestRunCycleNonRaceFailureDoesNotReset(t *testing.T) {
	l := dueLedger(holder(1_000))
	l.airdropErr = program.ErrNotEligibleForAirdrop
	hist := &memHistory{}
	m := metrics.NewCollector()
	s := newTestScheduler(t, l, WithHistory(hist), WithMetrics(m))

	_, err := s.RunCycle(context.Background())
	require.ErrorIs(t, err, program.ErrNotEligibleForAirdrop)
	assert.Zero(t, l.resets)
	require.Len(t, hist.runs, 1)
	assert.Equal(t, "failed", hist.runs[0].Outcome)
	assert.NotEmpty(t, hist.runs[0].ErrorMessage)
}

func TestRunCycleRetriesTransientErrors(t *testing.T) {
	l := dueLedger(holder(1_000))
	l.stateErrs = []error{program.ErrTransient, program.ErrTransient}
	s := newTestScheduler(t, l)

	res, err := s.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomePaid, res.Outcome)
}

func TestRunCycleGivesUpAfterMaxTries(t *testing.T) {
	l := dueLedger(holder(1_000))
	l.stateErrs = []error{program.ErrTransient, program.ErrTransient, program.ErrTransient}
	s := newTestScheduler(t, l)

	_, err := s.RunCycle(context.Background())
	require.Error(t, err)
	assert.Equal(t, program.KindTransient, program.KindOf(err))
}

func TestRunCycleDoesNotRetryPermanentErrors(t *testing.T) {
	l := dueLedger(holder(1_000))
	l.stateErrs = []error{program.ErrInvalidAccount}
	s := newTestScheduler(t, l)

	_, err := s.RunCycle(context.Background())
	require.ErrorIs(t, err, program.ErrInvalidAccount)
	assert.Empty(t, l.stateErrs)
}

func TestRunStopsOnCancel(t *testing.T) {
	l := dueLedger(holder(1_000))
	s := newTestScheduler(t, l)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		l.mu.Lock()
		defer l.mu.Unlock()
		return l.resets == 1
	}, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Len(t, l.airdrops, 1)
}

func TestNewValidates(t *testing.T) {
	_, err := New(&fakeLedger{}, nil, DefaultConfig(), zaptest.NewLogger(t))
	assert.ErrorIs(t, err, wallet.ErrNoKey)

	authority, err := wallet.Generate()
	require.NoError(t, err)
	cfg := DefaultConfig()
	cfg.PollInterval = 0
	_, err = New(&fakeLedger{}, authority, cfg, zaptest.NewLogger(t))
	assert.Error(t, err)
}
