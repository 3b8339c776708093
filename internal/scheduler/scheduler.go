// internal/scheduler/scheduler.go
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fossr-labs/fossr/internal/chain"
	"github.com/fossr-labs/fossr/internal/events"
	"github.com/fossr-labs/fossr/internal/program"
	"github.com/fossr-labs/fossr/internal/program/schema"
	"github.com/fossr-labs/fossr/internal/storage/models"
	"github.com/fossr-labs/fossr/internal/utils/metrics"
	"github.com/fossr-labs/fossr/internal/wallet"
)

// Ledger is the part of chain.Service the scheduler drives.
type Ledger interface {
	ProgramState(ctx context.Context) (*schema.ProgramState, error)
	Now(ctx context.Context) (time.Time, error)
	EligibleHolders(ctx context.Context, mint solana.PublicKey, minBalance uint64) ([]chain.Holder, error)
	ExecuteAirdrop(ctx context.Context, authority *wallet.Wallet, winner solana.PublicKey) (string, error)
	ResetCycle(ctx context.Context, authority *wallet.Wallet) (string, error)
}

// History stores what each cycle did.
type History interface {
	RecordCycle(ctx context.Context, run *models.CycleRun) error
}

type Outcome string

const (
	// OutcomeWaiting: the cycle is not due yet. Nothing was sent.
	OutcomeWaiting Outcome = "waiting"
	// OutcomeReset: the payout already happened, only the reset was sent.
	OutcomeReset Outcome = "reset"
	// OutcomeSkipped: no eligible holder or an empty pot. Reset without payout.
	OutcomeSkipped Outcome = "skipped"
	OutcomePaid    Outcome = "paid"
	// OutcomeRace: another caller moved the cycle first.
	OutcomeRace   Outcome = "race"
	OutcomeFailed Outcome = "failed"
)

type RetryConfig struct {
	MaxTries        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

type Config struct {
	PollInterval time.Duration
	// MinEligible is the smallest balance that can win, in base units.
	MinEligible uint64
	// TokenMint overrides the mint read from program state when set.
	TokenMint solana.PublicKey
	Retry     RetryConfig
}

func DefaultConfig() Config {
	return Config{
		PollInterval: 30 * time.Second,
		MinEligible:  program.DefaultParams().MinAirdropEligible,
		Retry: RetryConfig{
			MaxTries:        5,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     10 * time.Second,
		},
	}
}

// Result describes one wake.
type Result struct {
	CycleTime      int64
	Outcome        Outcome
	Candidates     int
	Winner         *chain.Holder
	Amount         uint64
	Signature      string
	ResetSignature string
	// Wait is the time left until the cycle is due. Set for OutcomeWaiting.
	Wait time.Duration
}

// Picker returns an index in [0, n).
type Picker func(n int) int

type Option func(*Scheduler)

func WithPicker(p Picker) Option { return func(s *Scheduler) { s.pick = p } }

func WithHistory(h History) Option { return func(s *Scheduler) { s.history = h } }

func WithMetrics(m *metrics.Collector) Option { return func(s *Scheduler) { s.metrics = m } }

func WithBus(b *events.Bus) Option { return func(s *Scheduler) { s.bus = b } }

// Scheduler runs the airdrop cycle on a single goroutine. Each wake does at
// most one cycle; a failed wake is retried on the next one.
type Scheduler struct {
	ledger    Ledger
	authority *wallet.Wallet
	cfg       Config
	logger    *zap.Logger
	pick      Picker
	history   History
	metrics   *metrics.Collector
	bus       *events.Bus
}

func New(ledger Ledger, authority *wallet.Wallet, cfg Config, logger *zap.Logger, opts ...Option) (*Scheduler, error) {
	if authority == nil {
		return nil, wallet.ErrNoKey
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive, got %s", cfg.PollInterval)
	}
	if cfg.Retry.MaxTries == 0 {
		cfg.Retry.MaxTries = 1
	}
	s := &Scheduler{
		ledger:    ledger,
		authority: authority,
		cfg:       cfg,
		logger:    logger.Named("scheduler"),
		pick:      rand.IntN,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run wakes every PollInterval, or sooner when the cycle comes due, until
// ctx is cancelled. Cycle errors are logged and never stop the loop.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("Airdrop scheduler started",
		zap.String("authority", s.authority.PublicKey.String()),
		zap.Duration("poll_interval", s.cfg.PollInterval))

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Airdrop scheduler stopped")
			return nil
		case <-timer.C:
		}

		wait := s.cfg.PollInterval
		res, err := s.RunCycle(ctx)
		switch {
		case err != nil && ctx.Err() != nil:
			continue
		case err != nil:
			s.logger.Error("Airdrop cycle failed", zap.Error(err))
		case res.Outcome == OutcomeWaiting && res.Wait < wait:
			wait = res.Wait
		}
		timer.Reset(wait)
	}
}

// RunCycle performs one cycle check.
func (s *Scheduler) RunCycle(ctx context.Context) (*Result, error) {
	started := time.Now()
	log := s.logger.With(zap.String("cycle_id", uuid.NewString()))

	state, err := retry(ctx, s, "program_state", func() (*schema.ProgramState, error) {
		return s.ledger.ProgramState(ctx)
	})
	if err != nil {
		return nil, s.fail(ctx, log, started, 0, fmt.Errorf("read program state: %w", err))
	}
	s.metrics.ObserveCycleState(state.AirdropAmount, state.NextAirdropTime)

	now, err := retry(ctx, s, "clock", func() (time.Time, error) {
		return s.ledger.Now(ctx)
	})
	if err != nil {
		return nil, s.fail(ctx, log, started, state.NextAirdropTime, fmt.Errorf("read ledger clock: %w", err))
	}

	res := &Result{CycleTime: state.NextAirdropTime}
	if now.Unix() < state.NextAirdropTime {
		res.Outcome = OutcomeWaiting
		res.Wait = time.Unix(state.NextAirdropTime, 0).Sub(now)
		log.Debug("Airdrop not due yet", zap.Duration("wait", res.Wait))
		return res, nil
	}

	if state.AirdropExecuted {
		log.Info("Airdrop already executed for this cycle, resetting")
		res.Outcome = OutcomeReset
		return s.finishWithReset(ctx, log, started, res)
	}

	mint := state.TokenMint
	if !s.cfg.TokenMint.IsZero() {
		mint = s.cfg.TokenMint
	}
	holders, err := retry(ctx, s, "eligible_holders", func() ([]chain.Holder, error) {
		return s.ledger.EligibleHolders(ctx, mint, s.cfg.MinEligible)
	})
	if err != nil {
		return nil, s.fail(ctx, log, started, res.CycleTime, fmt.Errorf("scan holders: %w", err))
	}
	res.Candidates = len(holders)

	if len(holders) == 0 || state.AirdropAmount == 0 {
		log.Info("No payout this cycle",
			zap.Int("eligible", len(holders)),
			zap.Uint64("pot", state.AirdropAmount))
		res.Outcome = OutcomeSkipped
		return s.finishWithReset(ctx, log, started, res)
	}

	winner := holders[s.pick(len(holders))]
	res.Winner = &winner
	res.Amount = state.AirdropAmount
	log.Info("Selected airdrop winner",
		zap.String("winner", winner.Wallet.String()),
		zap.Uint64("balance", winner.Balance),
		zap.Int("eligible", len(holders)),
		zap.Uint64("pot", state.AirdropAmount))

	sig, err := retry(ctx, s, program.NameAirdrop, func() (string, error) {
		return s.ledger.ExecuteAirdrop(ctx, s.authority, winner.Wallet)
	})
	switch {
	case program.IsRace(err):
		log.Info("Airdrop lost a race", zap.Error(err))
		res.Outcome = OutcomeRace
		res.Amount = 0
	case err != nil:
		// Eligibility may have changed since the scan. The next wake re-picks.
		return nil, s.fail(ctx, log, started, res.CycleTime, fmt.Errorf("execute airdrop: %w", err))
	default:
		res.Outcome = OutcomePaid
		res.Signature = sig
		log.Info("Airdrop executed",
			zap.String("signature", sig),
			zap.String("winner", winner.Wallet.String()),
			zap.Uint64("amount", res.Amount))
	}
	return s.finishWithReset(ctx, log, started, res)
}

func (s *Scheduler) finishWithReset(ctx context.Context, log *zap.Logger, started time.Time, res *Result) (*Result, error) {
	sig, err := retry(ctx, s, program.NameResetAirdropCycle, func() (string, error) {
		return s.ledger.ResetCycle(ctx, s.authority)
	})
	switch {
	case program.IsRace(err):
		log.Info("Cycle already reset by another caller", zap.Error(err))
	case err != nil:
		return nil, s.fail(ctx, log, started, res.CycleTime, fmt.Errorf("reset cycle: %w", err))
	default:
		res.ResetSignature = sig
		log.Info("Airdrop cycle reset", zap.String("signature", sig))
	}
	s.complete(ctx, log, started, res, nil)
	return res, nil
}

func (s *Scheduler) fail(ctx context.Context, log *zap.Logger, started time.Time, cycleTime int64, err error) error {
	if ctx.Err() != nil {
		return err
	}
	s.metrics.RecordSchedulerError(program.KindOf(err).String())
	s.complete(ctx, log, started, &Result{CycleTime: cycleTime, Outcome: OutcomeFailed}, err)
	return err
}

// complete records a finished wake in metrics, history and the bus.
func (s *Scheduler) complete(ctx context.Context, log *zap.Logger, started time.Time, res *Result, cycleErr error) {
	s.metrics.RecordCycle(string(res.Outcome))

	run := &models.CycleRun{
		CycleTime:      res.CycleTime,
		Outcome:        string(res.Outcome),
		Candidates:     res.Candidates,
		Amount:         res.Amount,
		Signature:      res.Signature,
		ResetSignature: res.ResetSignature,
		StartedAt:      started.UTC(),
		ExecutionTime:  float64(time.Since(started).Microseconds()) / 1000,
	}
	ev := events.CycleCompletedEvent{
		BaseEvent: events.NewBase(events.CycleCompleted, time.Now().Unix()),
		Outcome:   string(res.Outcome),
		Amount:    res.Amount,
	}
	if res.Winner != nil && res.Outcome == OutcomePaid {
		run.Winner = res.Winner.Wallet.String()
		run.TokenAccount = res.Winner.TokenAccount.String()
		ev.Winner = res.Winner.Wallet
	}
	if cycleErr != nil {
		run.ErrorMessage = cycleErr.Error()
		ev.Error = cycleErr.Error()
	}

	if s.history != nil {
		if err := s.history.RecordCycle(ctx, run); err != nil {
			log.Warn("Failed to record cycle", zap.Error(err))
		}
	}
	if s.bus != nil {
		if err := s.bus.Publish(ev); err != nil && !errors.Is(err, events.ErrBusClosed) {
			log.Warn("Failed to publish cycle event", zap.Error(err))
		}
	}
}

// retry repeats op while it fails with a transient error.
func retry[T any](ctx context.Context, s *Scheduler, op string, fn func() (T, error)) (T, error) {
	policy := backoff.NewExponentialBackOff()
	if s.cfg.Retry.InitialInterval > 0 {
		policy.InitialInterval = s.cfg.Retry.InitialInterval
	}
	if s.cfg.Retry.MaxInterval > 0 {
		policy.MaxInterval = s.cfg.Retry.MaxInterval
	}
	return backoff.Retry(ctx, func() (T, error) {
		v, err := fn()
		if err != nil && program.KindOf(err) != program.KindTransient {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(s.cfg.Retry.MaxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			s.metrics.RecordSchedulerError(program.KindTransient.String())
			s.logger.Warn("Retrying after transient error",
				zap.String("operation", op),
				zap.Duration("next", next),
				zap.Error(err))
		}))
}
