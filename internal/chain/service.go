// ==============================================
// File: internal/chain/service.go
// ==============================================
package chain

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/fossr-labs/fossr/internal/ledger"
	"github.com/fossr-labs/fossr/internal/levels"
	"github.com/fossr-labs/fossr/internal/program"
	"github.com/fossr-labs/fossr/internal/program/curve"
	"github.com/fossr-labs/fossr/internal/program/schema"
	"github.com/fossr-labs/fossr/internal/utils/metrics"
	"github.com/fossr-labs/fossr/internal/wallet"
)

// maxSellOrders bounds the order accounts passed to one sell so the
// transaction stays within the account limit. Larger sells are split.
const maxSellOrders = 24

var ErrNothingToSell = errors.New("no unlocked tokens to sell")

// Order is a PurchaseOrder together with its address.
type Order struct {
	Address solana.PublicKey
	*schema.PurchaseOrder
}

// Holder is a token account eligible for the airdrop.
type Holder struct {
	Wallet       solana.PublicKey `json:"wallet"`
	TokenAccount solana.PublicKey `json:"token_account"`
	Balance      uint64           `json:"balance"`
}

// Balance splits a wallet's recorded tokens by lock state.
type Balance struct {
	Unlocked   uint64 `json:"unlocked"`
	Locked     uint64 `json:"locked"`
	NextUnlock int64  `json:"next_unlock,omitempty"`
}

// BuyResult describes a committed purchase. Quote is the preview at the
// state read before sending; a concurrent buy can move the actual fill.
type BuyResult struct {
	Signature string
	Order     solana.PublicKey
	Quote     curve.Quote
}

// SellResult lists the transactions of one sell, oldest orders first.
type SellResult struct {
	Signatures []string `json:"signatures"`
	Sold       uint64   `json:"sold"`
}

// Service is the typed surface of the program for CLIs and the scheduler.
type Service struct {
	client  Client
	addrs   schema.Addresses
	params  program.Params
	logger  *zap.Logger
	metrics *metrics.Collector

	mu     sync.Mutex
	lastTs int64
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithMetrics records every submitted instruction.
func WithMetrics(m *metrics.Collector) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// NewService binds client to the program deployed at programID.
func NewService(client Client, programID solana.PublicKey, params program.Params, logger *zap.Logger, opts ...ServiceOption) (*Service, error) {
	addrs, err := schema.DeriveAddresses(programID)
	if err != nil {
		return nil, fmt.Errorf("derive program addresses: %w", err)
	}
	s := &Service{
		client: client,
		addrs:  addrs,
		params: params,
		logger: logger.Named("service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Service) Addresses() schema.Addresses { return s.addrs }

func (s *Service) Params() program.Params { return s.params }

func (s *Service) Client() Client { return s.client }

// send submits one instruction and records its outcome.
func (s *Service) send(ctx context.Context, name string, signers []*wallet.Wallet, ix solana.Instruction) (string, error) {
	start := time.Now()
	sig, err := s.client.Send(ctx, signers, ix)
	kind := ""
	if err != nil {
		kind = program.KindOf(err).String()
	}
	s.metrics.RecordInstruction(ctx, name, time.Since(start), err, kind)
	if err != nil {
		return sig, fmt.Errorf("%s: %w", name, err)
	}
	s.logger.Debug("Instruction committed", zap.String("instruction", name), zap.String("signature", sig))
	return sig, nil
}

// ProgramState reads and decodes the singleton state account.
func (s *Service) ProgramState(ctx context.Context) (*schema.ProgramState, error) {
	acc, err := s.client.Account(ctx, s.addrs.ProgramState)
	if err != nil {
		return nil, fmt.Errorf("read program state: %w", err)
	}
	return schema.DecodeProgramState(acc.Data)
}

// LastAirdrop returns the most recent payout record.
func (s *Service) LastAirdrop(ctx context.Context) (*schema.LastAirdrop, error) {
	acc, err := s.client.Account(ctx, s.addrs.LastAirdrop)
	if err != nil {
		return nil, fmt.Errorf("read last airdrop: %w", err)
	}
	return schema.DecodeLastAirdrop(acc.Data)
}

// Now returns ledger time.
func (s *Service) Now(ctx context.Context) (time.Time, error) {
	return s.client.Now(ctx)
}

// Initialize creates program state and vault. The mint authority must
// already be the program state address.
func (s *Service) Initialize(ctx context.Context, authority *wallet.Wallet, mint solana.PublicKey, initialPrice, airdropAmount uint64) (string, error) {
	ix, err := program.BuildInitializeInstruction(s.addrs, authority.PublicKey, mint, initialPrice, airdropAmount)
	if err != nil {
		return "", err
	}
	return s.send(ctx, program.NameInitialize, []*wallet.Wallet{authority}, ix)
}

func (s *Service) InitializeVault(ctx context.Context, authority *wallet.Wallet) (string, error) {
	ix, err := program.BuildInitializeVaultInstruction(s.addrs, authority.PublicKey)
	if err != nil {
		return "", err
	}
	return s.send(ctx, program.NameInitializeVault, []*wallet.Wallet{authority}, ix)
}

// Quote previews a buy at the current state.
func (s *Service) Quote(ctx context.Context, lamports uint64) (curve.Quote, error) {
	state, err := s.ProgramState(ctx)
	if err != nil {
		return curve.Quote{}, err
	}
	return s.quote(state, lamports)
}

func (s *Service) quote(state *schema.ProgramState, lamports uint64) (curve.Quote, error) {
	c, err := curve.FromState(state.CurrentPrice, state.TotalBuys, s.params.PriceStep)
	if err != nil {
		return curve.Quote{}, err
	}
	return c.TokensForPayment(lamports, state.TotalBuys)
}

// nextClientTimestamp returns a strictly increasing order seed.
func (s *Service) nextClientTimestamp(now time.Time) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := now.UnixMilli()
	if ts <= s.lastTs {
		ts = s.lastTs + 1
	}
	s.lastTs = ts
	return ts
}

// Buy pays lamports into the vault and records a locked purchase order.
func (s *Service) Buy(ctx context.Context, buyer *wallet.Wallet, lamports uint64) (*BuyResult, error) {
	state, err := s.ProgramState(ctx)
	if err != nil {
		return nil, err
	}
	quote, err := s.quote(state, lamports)
	if err != nil {
		return nil, fmt.Errorf("quote buy of %d lamports: %w", lamports, err)
	}
	now, err := s.client.Now(ctx)
	if err != nil {
		return nil, err
	}
	ix, order, err := program.BuildBuyInstruction(s.addrs, state.TokenMint, buyer.PublicKey, lamports, s.nextClientTimestamp(now))
	if err != nil {
		return nil, err
	}
	sig, err := s.send(ctx, program.NameBuyTokens, []*wallet.Wallet{buyer}, ix)
	if err != nil {
		return nil, err
	}
	return &BuyResult{Signature: sig, Order: order, Quote: quote}, nil
}

// Orders lists owner's purchase orders in sell consumption order.
func (s *Service) Orders(ctx context.Context, owner solana.PublicKey) ([]Order, error) {
	accs, err := s.client.ProgramAccounts(ctx, s.addrs.ProgramID,
		ledger.Filter{DataSize: schema.PurchaseOrderLayout.Size},
		ledger.Filter{Offset: 0, Bytes: schema.PurchaseOrderLayout.Discriminator[:]},
		ledger.Filter{Offset: schema.DiscriminatorSize, Bytes: owner.Bytes()},
	)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	out := make([]Order, 0, len(accs))
	for _, acc := range accs {
		o, err := schema.DecodePurchaseOrder(acc.Data)
		if err != nil {
			s.logger.Warn("Skipping undecodable order", zap.String("address", acc.Address.String()), zap.Error(err))
			continue
		}
		out = append(out, Order{Address: acc.Address, PurchaseOrder: o})
	}
	program.SortOrders(out, func(o Order) (*schema.PurchaseOrder, solana.PublicKey) { return o.PurchaseOrder, o.Address })
	return out, nil
}

// Balance sums owner's orders by lock state at ledger time.
func (s *Service) Balance(ctx context.Context, owner solana.PublicKey) (Balance, error) {
	orders, err := s.Orders(ctx, owner)
	if err != nil {
		return Balance{}, err
	}
	now, err := s.client.Now(ctx)
	if err != nil {
		return Balance{}, err
	}
	var b Balance
	for _, o := range orders {
		if o.Unlocked(now.Unix()) {
			b.Unlocked += o.TokenAmount
			continue
		}
		b.Locked += o.TokenAmount
		if b.NextUnlock == 0 || o.UnlockTime < b.NextUnlock {
			b.NextUnlock = o.UnlockTime
		}
	}
	return b, nil
}

// Level projects owner's unlocked balance onto the level table.
func (s *Service) Level(ctx context.Context, owner solana.PublicKey) (levels.Projection, error) {
	b, err := s.Balance(ctx, owner)
	if err != nil {
		return levels.Projection{}, err
	}
	return levels.Project(b.Unlocked), nil
}

// Sell burns amount tokens against the oldest unlocked orders. When more
// than maxSellOrders orders are needed the sell is split into consecutive
// transactions; on a failure the result holds what was already sold.
func (s *Service) Sell(ctx context.Context, seller *wallet.Wallet, amount uint64) (*SellResult, error) {
	state, err := s.ProgramState(ctx)
	if err != nil {
		return nil, err
	}
	orders, err := s.Orders(ctx, seller.PublicKey)
	if err != nil {
		return nil, err
	}
	now, err := s.client.Now(ctx)
	if err != nil {
		return nil, err
	}
	batches, err := planSell(orders, now.Unix(), amount, s.params.MinSell)
	if err != nil {
		return nil, err
	}

	res := &SellResult{}
	for i, b := range batches {
		ix, err := program.BuildSellInstruction(s.addrs, state.TokenMint, seller.PublicKey, b.amount, b.orders)
		if err != nil {
			return res, err
		}
		sig, err := s.send(ctx, program.NameSellTokens, []*wallet.Wallet{seller}, ix)
		if err != nil {
			if len(batches) == 1 {
				return res, err
			}
			return res, fmt.Errorf("sell part %d/%d: %w", i+1, len(batches), err)
		}
		res.Signatures = append(res.Signatures, sig)
		res.Sold += b.amount
	}
	if len(batches) > 1 {
		s.logger.Info("Sell split across transactions",
			zap.String("seller", seller.PublicKey.String()),
			zap.Uint64("amount", amount),
			zap.Int("transactions", len(batches)))
	}
	return res, nil
}

// SellPercent sells pct percent (1-100) of the unlocked balance.
func (s *Service) SellPercent(ctx context.Context, seller *wallet.Wallet, pct uint64) (*SellResult, error) {
	if pct == 0 || pct > 100 {
		return nil, fmt.Errorf("percentage must be in 1..100, got %d", pct)
	}
	b, err := s.Balance(ctx, seller.PublicKey)
	if err != nil {
		return nil, err
	}
	amount, err := curve.MulDiv(b.Unlocked, pct, 100)
	if err != nil {
		return nil, err
	}
	if amount == 0 {
		return nil, ErrNothingToSell
	}
	return s.Sell(ctx, seller, amount)
}

type sellBatch struct {
	orders   []solana.PublicKey
	amount   uint64
	capacity uint64
}

// planSell walks unlocked orders in consumption order and groups them into
// sells of at most maxSellOrders orders each. Every part covers at least
// minSell tokens so the program accepts it.
func planSell(orders []Order, now int64, amount, minSell uint64) ([]sellBatch, error) {
	var unlocked []Order
	var total uint64
	for _, o := range orders {
		if !o.Unlocked(now) || o.TokenAmount == 0 {
			continue
		}
		unlocked = append(unlocked, o)
		total += o.TokenAmount
	}
	if amount > total {
		return nil, fmt.Errorf("%w: requested %d, unlocked %d", program.ErrTokensStillLocked, amount, total)
	}

	var batches []sellBatch
	remaining := amount
	next := 0
	for remaining > 0 {
		want := max(remaining, minSell)
		var b sellBatch
		for next < len(unlocked) && len(b.orders) < maxSellOrders && b.capacity < want {
			b.orders = append(b.orders, unlocked[next].Address)
			b.capacity += unlocked[next].TokenAmount
			next++
		}
		if len(b.orders) == 0 {
			return nil, fmt.Errorf("%w: requested %d, unlocked %d", program.ErrTokensStillLocked, amount, total)
		}
		b.amount = min(remaining, b.capacity)
		remaining -= b.amount
		batches = append(batches, b)
	}

	// Хвост меньше минимальной продажи: добираем его из предыдущей части.
	// The previous part then leaves a remainder on its newest order.
	n := len(batches)
	if n > 1 && batches[n-1].amount < minSell {
		last, prev := &batches[n-1], &batches[n-2]
		d := minSell - last.amount
		if last.capacity < minSell || prev.amount < minSell+d {
			return nil, fmt.Errorf("%w: last part of %d is below the minimum sell", program.ErrSellAmountTooSmall, last.amount)
		}
		prev.amount -= d
		last.amount += d
	}
	return batches, nil
}

// ExecuteAirdrop pays the current pot to winner.
func (s *Service) ExecuteAirdrop(ctx context.Context, authority *wallet.Wallet, winner solana.PublicKey) (string, error) {
	state, err := s.ProgramState(ctx)
	if err != nil {
		return "", err
	}
	ix, err := program.BuildAirdropInstruction(s.addrs, state.TokenMint, authority.PublicKey, winner, state.NextAirdropTime)
	if err != nil {
		return "", err
	}
	return s.send(ctx, program.NameAirdrop, []*wallet.Wallet{authority}, ix)
}

// ResetCycle advances the cycle by one interval.
func (s *Service) ResetCycle(ctx context.Context, authority *wallet.Wallet) (string, error) {
	ix, err := program.BuildResetAirdropCycleInstruction(s.addrs, authority.PublicKey)
	if err != nil {
		return "", err
	}
	return s.send(ctx, program.NameResetAirdropCycle, []*wallet.Wallet{authority}, ix)
}

// UpdateAirdropPot sets the pot. Only accepted in admin funding mode.
func (s *Service) UpdateAirdropPot(ctx context.Context, authority *wallet.Wallet, amount uint64) (string, error) {
	ix, err := program.BuildUpdateAirdropSettingsInstruction(s.addrs, authority.PublicKey, amount)
	if err != nil {
		return "", err
	}
	return s.send(ctx, program.NameUpdateAirdropSettings, []*wallet.Wallet{authority}, ix)
}

func (s *Service) UpdateTokenMint(ctx context.Context, authority *wallet.Wallet, mint solana.PublicKey) (string, error) {
	ix, err := program.BuildUpdateTokenMintInstruction(s.addrs, authority.PublicKey, mint)
	if err != nil {
		return "", err
	}
	return s.send(ctx, program.NameUpdateTokenMint, []*wallet.Wallet{authority}, ix)
}

func (s *Service) WithdrawVault(ctx context.Context, authority *wallet.Wallet, lamports uint64) (string, error) {
	ix, err := program.BuildWithdrawVaultInstruction(s.addrs, authority.PublicKey, lamports)
	if err != nil {
		return "", err
	}
	return s.send(ctx, program.NameWithdrawVault, []*wallet.Wallet{authority}, ix)
}

// EligibleHolders lists token accounts of mint holding at least minBalance,
// largest first. The result is a snapshot; balances may change before use.
func (s *Service) EligibleHolders(ctx context.Context, mint solana.PublicKey, minBalance uint64) ([]Holder, error) {
	accs, err := s.client.ProgramAccounts(ctx, solana.TokenProgramID, ledger.TokenAccountFilters(mint)...)
	if err != nil {
		return nil, fmt.Errorf("list token accounts: %w", err)
	}
	var out []Holder
	for _, acc := range accs {
		ta, err := ledger.DecodeTokenAccount(acc.Data)
		if err != nil || !ta.Mint.Equals(mint) {
			continue
		}
		if ta.Amount < minBalance {
			continue
		}
		// Payouts go to the owner's associated account only.
		ata, _, err := solana.FindAssociatedTokenAddress(ta.Owner, mint)
		if err != nil || !ata.Equals(acc.Address) {
			continue
		}
		out = append(out, Holder{Wallet: ta.Owner, TokenAccount: acc.Address, Balance: ta.Amount})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Balance != out[j].Balance {
			return out[i].Balance > out[j].Balance
		}
		return out[i].TokenAccount.String() < out[j].TokenAccount.String()
	})
	return out, nil
}
