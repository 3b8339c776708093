package ledger

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var errBoom = errors.New("boom")

// counterProgram: data[0]==0 increments the counter at accounts[0],
// data[0]==1 fails, data[0]==2 creates the counter PDA paid by accounts[1],
// data[0]==3 mints data[1..9] to accounts[1] from mint accounts[0].
type counterProgram struct{}

var counterSeed = []byte("counter")

func (counterProgram) Execute(tx *Tx, ix solana.Instruction) error {
	data, err := ix.Data()
	if err != nil {
		return err
	}
	accs := ix.Accounts()
	switch data[0] {
	case 0:
		acc, err := tx.Account(accs[0].PublicKey)
		if err != nil {
			return err
		}
		n := binary.LittleEndian.Uint64(acc.Data)
		out := make([]byte, 8)
		binary.LittleEndian.PutUint64(out, n+1)
		tx.Logf("counter=%d", n+1)
		tx.Emit(n + 1)
		return tx.SetData(acc.Address, out)
	case 1:
		return errBoom
	case 2:
		_, bump, err := solana.FindProgramAddress([][]byte{counterSeed}, tx.ProgramID())
		if err != nil {
			return err
		}
		return tx.CreateAccount(accs[1].PublicKey, accs[0].PublicKey, 8, tx.ProgramID(), [][]byte{counterSeed, {bump}})
	case 3:
		_, bump, err := solana.FindProgramAddress([][]byte{counterSeed}, tx.ProgramID())
		if err != nil {
			return err
		}
		return tx.MintToSigned(accs[0].PublicKey, accs[1].PublicKey, binary.LittleEndian.Uint64(data[1:9]), [][]byte{counterSeed, {bump}})
	}
	return errors.New("unknown op")
}

type fixture struct {
	bank    *Bank
	program solana.PublicKey
	counter solana.PublicKey
	payer   solana.PublicKey
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	bank, err := NewBank(ctx, NewMemoryStore(), zaptest.NewLogger(t),
		WithClock(NewManualClock(time.Unix(1_700_000_000, 0))))
	require.NoError(t, err)

	program := solana.NewWallet().PublicKey()
	bank.Register(program, counterProgram{})
	counter, _, err := solana.FindProgramAddress([][]byte{counterSeed}, program)
	require.NoError(t, err)

	payer := solana.NewWallet().PublicKey()
	require.NoError(t, bank.Airdrop(ctx, payer, 10_000_000_000))

	f := &fixture{bank: bank, program: program, counter: counter, payer: payer}
	_, err = bank.Process(ctx, []solana.PublicKey{payer}, f.ix(2, solana.Meta(counter).WRITE(), solana.Meta(payer).WRITE().SIGNER()))
	require.NoError(t, err)
	return f
}

func (f *fixture) ix(op byte, metas ...*solana.AccountMeta) solana.Instruction {
	return solana.NewInstruction(f.program, metas, []byte{op})
}

func (f *fixture) value(t *testing.T) uint64 {
	acc, err := f.bank.Store().Get(context.Background(), f.counter)
	require.NoError(t, err)
	return binary.LittleEndian.Uint64(acc.Data)
}

func TestProcessCommitsAndReports(t *testing.T) {
	f := newFixture(t)
	var seen []*Receipt
	f.bank.Subscribe(func(r *Receipt) { seen = append(seen, r) })

	r, err := f.bank.Process(context.Background(), nil, f.ix(0, solana.Meta(f.counter).WRITE()))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), f.value(t))
	assert.Equal(t, uint64(2), r.Slot)
	assert.Contains(t, r.Logs, "Program log: counter=1")
	assert.Equal(t, []any{uint64(1)}, r.Events)
	assert.NotEmpty(t, r.Signature)
	require.Len(t, seen, 1)
	assert.Equal(t, r, seen[0])
}

func TestProcessIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	before := f.bank.Slot()

	_, err := f.bank.Process(context.Background(), nil,
		f.ix(0, solana.Meta(f.counter).WRITE()),
		f.ix(1),
	)
	var txErr *TxError
	require.ErrorAs(t, err, &txErr)
	assert.Equal(t, 1, txErr.Index)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, uint64(0), f.value(t))
	assert.Equal(t, before, f.bank.Slot())
}

func TestProcessRequiresSignatures(t *testing.T) {
	f := newFixture(t)
	other := solana.NewWallet().PublicKey()
	_, err := f.bank.Process(context.Background(), nil,
		f.ix(0, solana.Meta(f.counter).WRITE(), solana.Meta(other).SIGNER()))
	assert.ErrorIs(t, err, ErrMissingSignature)
}

func TestCreateAccountTwiceFails(t *testing.T) {
	f := newFixture(t)
	_, err := f.bank.Process(context.Background(), []solana.PublicKey{f.payer},
		f.ix(2, solana.Meta(f.counter).WRITE(), solana.Meta(f.payer).WRITE().SIGNER()))
	assert.ErrorIs(t, err, ErrAccountInUse)
}

func TestConcurrentTransactionsAreSerialized(t *testing.T) {
	f := newFixture(t)
	const n = 64
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.bank.Process(context.Background(), nil, f.ix(0, solana.Meta(f.counter).WRITE()))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, uint64(n), f.value(t))
}

func TestMintToSignedAndBurn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mint := solana.NewWallet().PublicKey()
	require.NoError(t, f.bank.CreateMint(ctx, mint, f.counter, 9))

	holder := solana.NewWallet().PublicKey()
	ata, err := f.bank.SetTokenBalance(ctx, holder, mint, 0)
	require.NoError(t, err)

	data := make([]byte, 9)
	data[0] = 3
	binary.LittleEndian.PutUint64(data[1:], 500)
	_, err = f.bank.Process(ctx, nil, solana.NewInstruction(f.program,
		solana.AccountMetaSlice{solana.Meta(mint).WRITE(), solana.Meta(ata).WRITE()}, data))
	require.NoError(t, err)

	acc, err := f.bank.Store().Get(ctx, ata)
	require.NoError(t, err)
	ta, err := DecodeTokenAccount(acc.Data)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), ta.Amount)
	assert.Equal(t, holder, ta.Owner)

	macc, err := f.bank.Store().Get(ctx, mint)
	require.NoError(t, err)
	m, err := DecodeMint(macc.Data)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), m.Supply)
	assert.Equal(t, f.counter, *m.MintAuthority)
}

func TestMemoryStoreScanFilters(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	owner := solana.TokenProgramID
	mintA := solana.NewWallet().PublicKey()
	mintB := solana.NewWallet().PublicKey()

	var puts []*Account
	for i, mint := range []solana.PublicKey{mintA, mintA, mintB} {
		data, err := (&TokenAccount{Mint: mint, Owner: solana.NewWallet().PublicKey(), Amount: uint64(i)}).Encode()
		require.NoError(t, err)
		puts = append(puts, &Account{Address: solana.NewWallet().PublicKey(), Owner: owner, Data: data})
	}
	require.NoError(t, s.Apply(ctx, ChangeSet{Slot: 7, Put: puts}))

	got, err := s.Scan(ctx, owner, TokenAccountFilters(mintA)...)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	slot, err := s.LatestSlot(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), slot)

	require.NoError(t, s.Apply(ctx, ChangeSet{Delete: []solana.PublicKey{puts[0].Address}}))
	_, err = s.Get(ctx, puts[0].Address)
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestMintCodecLayout(t *testing.T) {
	auth := solana.NewWallet().PublicKey()
	data, err := (&Mint{MintAuthority: &auth, Supply: 42, Decimals: 9, IsInitialized: true}).Encode()
	require.NoError(t, err)
	require.Len(t, data, MintSize)
	assert.Equal(t, byte(9), data[44])

	m, err := DecodeMint(data)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), m.Supply)
	assert.Nil(t, m.FreezeAuthority)
}
