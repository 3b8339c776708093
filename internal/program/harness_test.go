package program

import (
	"context"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fossr-labs/fossr/internal/ledger"
	"github.com/fossr-labs/fossr/internal/program/schema"
)

const (
	testStart     int64 = 1_700_000_000
	testPrice           = 10_000
	oneSOL              = 1_000_000_000
	funding             = 1_000 * oneSOL
	testNextCycle int64 = 1_700_000_100
)

type harness struct {
	t         *testing.T
	ctx       context.Context
	bank      *ledger.Bank
	clock     *ledger.ManualClock
	prog      *Program
	addrs     schema.Addresses
	mint      solana.PublicKey
	authority solana.PublicKey
}

func newHarness(t *testing.T, params Params, airdropAmount uint64) *harness {
	t.Helper()
	ctx := context.Background()
	logger := zaptest.NewLogger(t)
	clock := ledger.NewManualClock(time.Unix(testStart, 0))

	bank, err := ledger.NewBank(ctx, ledger.NewMemoryStore(), logger, ledger.WithClock(clock))
	require.NoError(t, err)

	prog, err := New(schema.DefaultProgramID, params, logger)
	require.NoError(t, err)
	bank.Register(prog.ID(), prog)

	h := &harness{
		t:         t,
		ctx:       ctx,
		bank:      bank,
		clock:     clock,
		prog:      prog,
		addrs:     prog.Addresses(),
		mint:      solana.NewWallet().PublicKey(),
		authority: solana.NewWallet().PublicKey(),
	}
	require.NoError(t, bank.CreateMint(ctx, h.mint, h.addrs.ProgramState, 9))
	require.NoError(t, bank.Airdrop(ctx, h.authority, funding))

	ix, err := BuildInitializeInstruction(h.addrs, h.authority, h.mint, testPrice, airdropAmount)
	require.NoError(t, err)
	h.process(ix, h.authority)
	return h
}

func (h *harness) send(ix solana.Instruction, signers ...solana.PublicKey) error {
	_, err := h.bank.Process(h.ctx, signers, ix)
	return err
}

func (h *harness) process(ix solana.Instruction, signers ...solana.PublicKey) {
	h.t.Helper()
	require.NoError(h.t, h.send(ix, signers...))
}

func (h *harness) wallet(lamports uint64) solana.PublicKey {
	h.t.Helper()
	w := solana.NewWallet().PublicKey()
	if lamports > 0 {
		require.NoError(h.t, h.bank.Airdrop(h.ctx, w, lamports))
	}
	return w
}

func (h *harness) buy(buyer solana.PublicKey, lamports uint64, ts int64) (solana.PublicKey, error) {
	ix, order, err := BuildBuyInstruction(h.addrs, h.mint, buyer, lamports, ts)
	require.NoError(h.t, err)
	return order, h.send(ix, buyer)
}

func (h *harness) sell(seller solana.PublicKey, amount uint64, orders ...solana.PublicKey) error {
	ix, err := BuildSellInstruction(h.addrs, h.mint, seller, amount, orders)
	require.NoError(h.t, err)
	return h.send(ix, seller)
}

func (h *harness) executeAirdrop(winner solana.PublicKey) error {
	state := h.state()
	ix, err := BuildAirdropInstruction(h.addrs, h.mint, h.authority, winner, state.NextAirdropTime)
	require.NoError(h.t, err)
	return h.send(ix, h.authority)
}

func (h *harness) reset() error {
	ix, err := BuildResetAirdropCycleInstruction(h.addrs, h.authority)
	require.NoError(h.t, err)
	return h.send(ix, h.authority)
}

func (h *harness) state() *schema.ProgramState {
	h.t.Helper()
	acc, err := h.bank.Store().Get(h.ctx, h.addrs.ProgramState)
	require.NoError(h.t, err)
	s, err := schema.DecodeProgramState(acc.Data)
	require.NoError(h.t, err)
	return s
}

func (h *harness) order(addr solana.PublicKey) (*schema.PurchaseOrder, error) {
	acc, err := h.bank.Store().Get(h.ctx, addr)
	if err != nil {
		return nil, err
	}
	return schema.DecodePurchaseOrder(acc.Data)
}

func (h *harness) tokens(owner solana.PublicKey) uint64 {
	h.t.Helper()
	ata, _, err := solana.FindAssociatedTokenAddress(owner, h.mint)
	require.NoError(h.t, err)
	acc, err := h.bank.Store().Get(h.ctx, ata)
	if err != nil {
		return 0
	}
	ta, err := ledger.DecodeTokenAccount(acc.Data)
	require.NoError(h.t, err)
	return ta.Amount
}

func (h *harness) lamports(addr solana.PublicKey) uint64 {
	acc, err := h.bank.Store().Get(h.ctx, addr)
	if err != nil {
		return 0
	}
	return acc.Lamports
}
