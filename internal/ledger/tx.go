// ==============================================
// File: internal/ledger/tx.go
// ==============================================
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/gagliardetto/solana-go"
)

// Tx is the view a program has of the ledger while an instruction runs.
// Writes are buffered and reach the store only if the whole transaction
// succeeds.
type Tx struct {
	ctx      context.Context
	bank     *Bank
	signers  map[solana.PublicKey]bool
	slot     uint64
	slotHash [32]byte
	now      int64
	program  solana.PublicKey

	writes  map[solana.PublicKey]*Account
	deleted map[solana.PublicKey]bool
	logs    []string
	events  []any
}

func newTx(ctx context.Context, b *Bank, signers []solana.PublicKey, slot uint64, slotHash [32]byte, now int64) *Tx {
	set := make(map[solana.PublicKey]bool, len(signers))
	for _, s := range signers {
		set[s] = true
	}
	return &Tx{
		ctx:      ctx,
		bank:     b,
		signers:  set,
		slot:     slot,
		slotHash: slotHash,
		now:      now,
		writes:   make(map[solana.PublicKey]*Account),
		deleted:  make(map[solana.PublicKey]bool),
	}
}

// Context of the submitting caller.
func (t *Tx) Context() context.Context { return t.ctx }

// Now is the cluster unix time for this transaction.
func (t *Tx) Now() int64 { return t.now }

// Slot the transaction lands in.
func (t *Tx) Slot() uint64 { return t.slot }

// SlotHash is fixed once the transaction is ordered.
func (t *Tx) SlotHash() [32]byte { return t.slotHash }

// ProgramID of the executing instruction.
func (t *Tx) ProgramID() solana.PublicKey { return t.program }

func (t *Tx) IsSigner(key solana.PublicKey) bool { return t.signers[key] }

// Logf appends a program log line.
func (t *Tx) Logf(format string, args ...any) {
	t.logf("Program log: "+format, args...)
}

func (t *Tx) logf(format string, args ...any) {
	t.logs = append(t.logs, fmt.Sprintf(format, args...))
}

// Emit records an event delivered to subscribers after commit.
func (t *Tx) Emit(ev any) {
	t.events = append(t.events, ev)
}

// Account returns a copy of addr as seen by this transaction.
func (t *Tx) Account(addr solana.PublicKey) (*Account, error) {
	if t.deleted[addr] {
		return nil, ErrAccountNotFound
	}
	if acc, ok := t.writes[addr]; ok {
		return acc.Clone(), nil
	}
	acc, err := t.bank.store.Get(t.ctx, addr)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return acc, nil
}

// Exists reports whether addr holds lamports or data.
func (t *Tx) Exists(addr solana.PublicKey) (bool, error) {
	acc, err := t.Account(addr)
	if errors.Is(err, ErrAccountNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return acc.Lamports > 0 || len(acc.Data) > 0, nil
}

// Balance returns the lamports of addr, zero if it does not exist.
func (t *Tx) Balance(addr solana.PublicKey) (uint64, error) {
	acc, err := t.Account(addr)
	if errors.Is(err, ErrAccountNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return acc.Lamports, nil
}

// Put buffers a write.
func (t *Tx) Put(acc *Account) {
	delete(t.deleted, acc.Address)
	t.writes[acc.Address] = acc.Clone()
}

// SetData replaces the data of an account owned by the executing program.
func (t *Tx) SetData(addr solana.PublicKey, data []byte) error {
	acc, err := t.Account(addr)
	if err != nil {
		return err
	}
	if !acc.Owner.Equals(t.program) {
		return fmt.Errorf("%w: %s", ErrIllegalOwner, addr)
	}
	acc.Data = data
	t.Put(acc)
	return nil
}

// Close drains addr into dest and removes it. addr must be owned by the
// executing program.
func (t *Tx) Close(addr, dest solana.PublicKey) error {
	acc, err := t.Account(addr)
	if err != nil {
		return err
	}
	if !acc.Owner.Equals(t.program) {
		return fmt.Errorf("%w: %s", ErrIllegalOwner, addr)
	}
	if err := t.credit(dest, acc.Lamports); err != nil {
		return err
	}
	delete(t.writes, addr)
	t.deleted[addr] = true
	return nil
}

// Transfer moves lamports. from must be a signer or owned by the executing
// program.
func (t *Tx) Transfer(from, to solana.PublicKey, lamports uint64) error {
	if lamports == 0 {
		return nil
	}
	src, err := t.Account(from)
	if errors.Is(err, ErrAccountNotFound) {
		return fmt.Errorf("%w: %s", ErrInsufficientLamports, from)
	}
	if err != nil {
		return err
	}
	if !t.signers[from] && !src.Owner.Equals(t.program) {
		return fmt.Errorf("%w: %s", ErrMissingSignature, from)
	}
	if src.Lamports < lamports {
		return fmt.Errorf("%w: %s has %d, needs %d", ErrInsufficientLamports, from, src.Lamports, lamports)
	}
	src.Lamports -= lamports
	t.Put(src)
	return t.credit(to, lamports)
}

func (t *Tx) credit(to solana.PublicKey, lamports uint64) error {
	dst, err := t.Account(to)
	if errors.Is(err, ErrAccountNotFound) {
		dst = &Account{Address: to, Owner: solana.SystemProgramID}
	} else if err != nil {
		return err
	}
	dst.Lamports += lamports
	t.Put(dst)
	return nil
}

// CreateAccount funds and allocates addr for owner. When seeds are given,
// addr must be the executing program's address for those seeds (bump
// included); otherwise addr must sign.
func (t *Tx) CreateAccount(payer, addr solana.PublicKey, space int, owner solana.PublicKey, seeds [][]byte) error {
	if err := t.authorize(addr, seeds); err != nil {
		return err
	}
	exists, err := t.Exists(addr)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrAccountInUse, addr)
	}
	rent := MinimumBalance(space)
	if err := t.Transfer(payer, addr, rent); err != nil {
		return err
	}
	acc, err := t.Account(addr)
	if err != nil {
		return err
	}
	acc.Owner = owner
	acc.Data = make([]byte, space)
	t.Put(acc)
	return nil
}

func (t *Tx) authorize(addr solana.PublicKey, seeds [][]byte) error {
	if len(seeds) == 0 {
		if !t.signers[addr] {
			return fmt.Errorf("%w: %s", ErrMissingSignature, addr)
		}
		return nil
	}
	derived, err := solana.CreateProgramAddress(seeds, t.program)
	if err != nil || !derived.Equals(addr) {
		return fmt.Errorf("%w: %s", ErrInvalidSeeds, addr)
	}
	return nil
}

// Mint loads and validates a mint account.
func (t *Tx) Mint(addr solana.PublicKey) (*Mint, error) {
	acc, err := t.Account(addr)
	if err != nil {
		return nil, err
	}
	if !acc.Owner.Equals(solana.TokenProgramID) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidMint, addr)
	}
	return DecodeMint(acc.Data)
}

// TokenAccount loads and validates a token account.
func (t *Tx) TokenAccount(addr solana.PublicKey) (*TokenAccount, error) {
	acc, err := t.Account(addr)
	if err != nil {
		return nil, err
	}
	if !acc.Owner.Equals(solana.TokenProgramID) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTokenAccount, addr)
	}
	return DecodeTokenAccount(acc.Data)
}

func (t *Tx) putTokenData(addr solana.PublicKey, data []byte) error {
	acc, err := t.Account(addr)
	if err != nil {
		return err
	}
	acc.Data = data
	t.Put(acc)
	return nil
}

// CreateAssociatedTokenAccount opens the canonical token account of wallet
// for mint, paid by payer. An existing account is returned as is.
func (t *Tx) CreateAssociatedTokenAccount(payer, wallet, mint solana.PublicKey) (solana.PublicKey, error) {
	ata, _, err := solana.FindAssociatedTokenAddress(wallet, mint)
	if err != nil {
		return solana.PublicKey{}, err
	}
	if existing, err := t.TokenAccount(ata); err == nil {
		if !existing.Mint.Equals(mint) || !existing.Owner.Equals(wallet) {
			return solana.PublicKey{}, fmt.Errorf("%w: %s", ErrInvalidTokenAccount, ata)
		}
		return ata, nil
	} else if !errors.Is(err, ErrAccountNotFound) {
		return solana.PublicKey{}, err
	}
	if _, err := t.Mint(mint); err != nil {
		return solana.PublicKey{}, err
	}
	if err := t.Transfer(payer, ata, MinimumBalance(TokenAccountSize)); err != nil {
		return solana.PublicKey{}, err
	}
	data, err := (&TokenAccount{Mint: mint, Owner: wallet}).Encode()
	if err != nil {
		return solana.PublicKey{}, err
	}
	acc, err := t.Account(ata)
	if err != nil {
		return solana.PublicKey{}, err
	}
	acc.Owner = solana.TokenProgramID
	acc.Data = data
	t.Put(acc)
	return ata, nil
}

// MintToSigned mints amount to dest with a mint authority that is the
// executing program's address for seeds.
func (t *Tx) MintToSigned(mint, dest solana.PublicKey, amount uint64, seeds [][]byte) error {
	authority, err := solana.CreateProgramAddress(seeds, t.program)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSeeds, err)
	}
	m, err := t.Mint(mint)
	if err != nil {
		return err
	}
	if m.MintAuthority == nil || !m.MintAuthority.Equals(authority) {
		return ErrMintAuthority
	}
	holder, err := t.TokenAccount(dest)
	if err != nil {
		return err
	}
	if !holder.Mint.Equals(mint) {
		return ErrMintMismatch
	}
	if m.Supply+amount < m.Supply || holder.Amount+amount < holder.Amount {
		return fmt.Errorf("mint overflow")
	}
	m.Supply += amount
	holder.Amount += amount

	mintData, err := m.Encode()
	if err != nil {
		return err
	}
	holderData, err := holder.Encode()
	if err != nil {
		return err
	}
	if err := t.putTokenData(mint, mintData); err != nil {
		return err
	}
	return t.putTokenData(dest, holderData)
}

// Burn destroys amount from source. The token account owner must sign.
func (t *Tx) Burn(source, mint solana.PublicKey, amount uint64) error {
	holder, err := t.TokenAccount(source)
	if err != nil {
		return err
	}
	if !holder.Mint.Equals(mint) {
		return ErrMintMismatch
	}
	if !t.signers[holder.Owner] {
		return fmt.Errorf("%w: %s", ErrMissingSignature, holder.Owner)
	}
	if holder.Amount < amount {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientTokens, holder.Amount, amount)
	}
	m, err := t.Mint(mint)
	if err != nil {
		return err
	}
	holder.Amount -= amount
	m.Supply -= amount

	mintData, err := m.Encode()
	if err != nil {
		return err
	}
	holderData, err := holder.Encode()
	if err != nil {
		return err
	}
	if err := t.putTokenData(mint, mintData); err != nil {
		return err
	}
	return t.putTokenData(source, holderData)
}

func (t *Tx) changeSet() ChangeSet {
	cs := ChangeSet{Slot: t.slot}
	for _, acc := range t.writes {
		cs.Put = append(cs.Put, acc)
	}
	for addr := range t.deleted {
		cs.Delete = append(cs.Delete, addr)
	}
	sort.Slice(cs.Put, func(i, j int) bool {
		return cs.Put[i].Address.String() < cs.Put[j].Address.String()
	})
	return cs
}
