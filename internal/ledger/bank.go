// ==============================================
// File: internal/ledger/bank.go
// ==============================================
package ledger

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"go.uber.org/zap"
	"lukechampine.com/blake3"
)

// Program executes instructions addressed to its id.
type Program interface {
	Execute(tx *Tx, ix solana.Instruction) error
}

// Receipt describes a committed transaction.
type Receipt struct {
	Signature string
	Slot      uint64
	SlotHash  [32]byte
	BlockTime int64
	Logs      []string
	Events    []any
}

// TxError is returned when an instruction aborts the transaction.
// Nothing the transaction wrote is visible afterwards.
type TxError struct {
	Index int
	Err   error
	Logs  []string
}

func (e *TxError) Error() string {
	return fmt.Sprintf("instruction %d failed: %v", e.Index, e.Err)
}

func (e *TxError) Unwrap() error { return e.Err }

// Bank executes transactions against a Store one at a time. Every
// transaction reads the state left by the previous commit, so the
// checks a program makes are always against committed state.
type Bank struct {
	store  Store
	clock  Clock
	logger *zap.Logger

	mu       sync.Mutex
	programs map[solana.PublicKey]Program
	slot     uint64
	slotHash [32]byte

	listenersMu sync.RWMutex
	listeners   []func(*Receipt)
}

// Option configures a Bank.
type Option func(*Bank)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(b *Bank) { b.clock = c }
}

// WithGenesisHash fixes the initial slot hash. Without it the hash is random,
// so slot hashes cannot be computed ahead of inclusion.
func WithGenesisHash(h [32]byte) Option {
	return func(b *Bank) { b.slotHash = h }
}

// NewBank resumes from the latest slot recorded in store.
func NewBank(ctx context.Context, store Store, logger *zap.Logger, opts ...Option) (*Bank, error) {
	b := &Bank{
		store:    store,
		clock:    SystemClock{},
		logger:   logger.Named("ledger"),
		programs: make(map[solana.PublicKey]Program),
	}
	if _, err := rand.Read(b.slotHash[:]); err != nil {
		return nil, fmt.Errorf("failed to seed slot hash: %w", err)
	}
	for _, opt := range opts {
		opt(b)
	}
	slot, err := store.LatestSlot(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	b.slot = slot
	return b, nil
}

// Register binds a program to id.
func (b *Bank) Register(id solana.PublicKey, p Program) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.programs[id] = p
}

// Subscribe adds a listener called after every commit, outside the bank lock.
func (b *Bank) Subscribe(fn func(*Receipt)) {
	b.listenersMu.Lock()
	defer b.listenersMu.Unlock()
	b.listeners = append(b.listeners, fn)
}

// Store exposes the backing store for reads.
func (b *Bank) Store() Store { return b.store }

// Clock returns the cluster clock.
func (b *Bank) Clock() Clock { return b.clock }

// Slot returns the last committed slot.
func (b *Bank) Slot() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.slot
}

// Process runs ixs as one atomic transaction signed by signers.
func (b *Bank) Process(ctx context.Context, signers []solana.PublicKey, ixs ...solana.Instruction) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	msg, err := messageDigest(ixs)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	slot := b.slot + 1
	slotHash := nextSlotHash(b.slotHash, slot, msg)
	tx := newTx(ctx, b, signers, slot, slotHash, b.clock.Now().Unix())

	for i, ix := range ixs {
		if err := b.execute(tx, ix); err != nil {
			b.mu.Unlock()
			tx.logf("Program %s failed: %v", ix.ProgramID(), err)
			b.logger.Debug("Transaction aborted",
				zap.Uint64("slot", slot),
				zap.Int("instruction", i),
				zap.Error(err))
			return nil, &TxError{Index: i, Err: err, Logs: tx.logs}
		}
	}

	if err := b.store.Apply(ctx, tx.changeSet()); err != nil {
		b.mu.Unlock()
		b.logger.Error("Failed to commit transaction", zap.Uint64("slot", slot), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	b.slot = slot
	b.slotHash = slotHash
	b.mu.Unlock()

	sigHash := blake3.Sum512(append(slotHash[:], msg[:]...))
	receipt := &Receipt{
		Signature: base58.Encode(sigHash[:]),
		Slot:      slot,
		SlotHash:  slotHash,
		BlockTime: tx.now,
		Logs:      tx.logs,
		Events:    tx.events,
	}
	b.logger.Debug("Transaction committed",
		zap.Uint64("slot", slot),
		zap.String("signature", receipt.Signature),
		zap.Int("writes", len(tx.writes)))

	b.listenersMu.RLock()
	listeners := append([]func(*Receipt){}, b.listeners...)
	b.listenersMu.RUnlock()
	for _, fn := range listeners {
		fn(receipt)
	}
	return receipt, nil
}

func (b *Bank) execute(tx *Tx, ix solana.Instruction) error {
	prog, ok := b.programs[ix.ProgramID()]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProgram, ix.ProgramID())
	}
	accounts := ix.Accounts()
	for _, meta := range accounts {
		if meta.IsSigner && !tx.signers[meta.PublicKey] {
			return fmt.Errorf("%w: %s", ErrMissingSignature, meta.PublicKey)
		}
	}
	tx.program = ix.ProgramID()
	tx.logf("Program %s invoke", ix.ProgramID())
	if err := prog.Execute(tx, ix); err != nil {
		return err
	}
	tx.logf("Program %s success", ix.ProgramID())
	return nil
}

func messageDigest(ixs []solana.Instruction) ([32]byte, error) {
	h := blake3.New(32, nil)
	for _, ix := range ixs {
		h.Write(ix.ProgramID().Bytes())
		for _, meta := range ix.Accounts() {
			h.Write(meta.PublicKey.Bytes())
		}
		data, err := ix.Data()
		if err != nil {
			return [32]byte{}, fmt.Errorf("failed to read instruction data: %w", err)
		}
		h.Write(data)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out, nil
}

func nextSlotHash(prev [32]byte, slot uint64, msg [32]byte) [32]byte {
	buf := make([]byte, 0, 32+8+32)
	buf = append(buf, prev[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, slot)
	buf = append(buf, msg[:]...)
	return blake3.Sum256(buf)
}
