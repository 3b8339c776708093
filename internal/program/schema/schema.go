// ==============================================
// File: internal/program/schema/schema.go
// ==============================================
package schema

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// Version is the layout revision understood by this package. A record whose
// discriminator or size does not match the revision is rejected on read.
const Version uint8 = 1

// DiscriminatorSize is the Anchor type tag prefix on every account.
const DiscriminatorSize = 8

var (
	// ErrDiscriminatorMismatch is returned when the type tag is not the expected one.
	ErrDiscriminatorMismatch = errors.New("account discriminator mismatch")
	// ErrLayoutSize is returned when the data length differs from the layout.
	ErrLayoutSize = errors.New("account data has unexpected size")
	// ErrUnknownLayout is returned by Identify for data that matches no layout.
	ErrUnknownLayout = errors.New("unknown account layout")
)

// Layout describes one fixed-width record.
type Layout struct {
	Name          string
	Version       uint8
	Discriminator [DiscriminatorSize]byte
	Size          int
}

var (
	ProgramStateLayout = newLayout("ProgramState", DiscriminatorSize+32+32+8*6+1+1)
	PurchaseOrderLayout = newLayout("PurchaseOrder", DiscriminatorSize+32+8+8+8+8+1)
	LastAirdropLayout   = newLayout("LastAirdrop", DiscriminatorSize+32+32+8+8+1)

	layouts = []Layout{ProgramStateLayout, PurchaseOrderLayout, LastAirdropLayout}
)

func newLayout(name string, size int) Layout {
	return Layout{
		Name:          name,
		Version:       Version,
		Discriminator: AccountDiscriminator(name),
		Size:          size,
	}
}

// AccountDiscriminator returns sha256("account:<name>")[:8], the Anchor account tag.
func AccountDiscriminator(name string) [DiscriminatorSize]byte {
	sum := sha256.Sum256([]byte("account:" + name))
	var d [DiscriminatorSize]byte
	copy(d[:], sum[:DiscriminatorSize])
	return d
}

// Identify returns the layout whose discriminator and size match data.
func Identify(data []byte) (Layout, error) {
	if len(data) < DiscriminatorSize {
		return Layout{}, fmt.Errorf("%w: %d bytes", ErrLayoutSize, len(data))
	}
	for _, l := range layouts {
		if bytes.Equal(data[:DiscriminatorSize], l.Discriminator[:]) {
			if len(data) != l.Size {
				return Layout{}, fmt.Errorf("%w: %s expects %d bytes, got %d", ErrLayoutSize, l.Name, l.Size, len(data))
			}
			return l, nil
		}
	}
	return Layout{}, ErrUnknownLayout
}

// check validates the header of data against l and returns a decoder
// positioned after the discriminator.
func (l Layout) check(data []byte) (*bin.Decoder, error) {
	if len(data) != l.Size {
		return nil, fmt.Errorf("%w: %s expects %d bytes, got %d", ErrLayoutSize, l.Name, l.Size, len(data))
	}
	if !bytes.Equal(data[:DiscriminatorSize], l.Discriminator[:]) {
		return nil, fmt.Errorf("%w: expected %s", ErrDiscriminatorMismatch, l.Name)
	}
	dec := bin.NewBorshDecoder(data)
	if _, err := dec.ReadNBytes(DiscriminatorSize); err != nil {
		return nil, err
	}
	return dec, nil
}

// ProgramState is the global singleton at PDA ["program-state"].
type ProgramState struct {
	Authority        solana.PublicKey
	TokenMint        solana.PublicKey
	CurrentPrice     uint64
	TotalBurned      uint64
	TotalBuys        uint64
	NextAirdropTime  int64
	AirdropAmount    uint64
	LastAirdropCycle int64
	AirdropExecuted  bool
	Bump             uint8
}

// Due reports whether the cycle has reached its payout window and has not paid yet.
func (s *ProgramState) Due(now int64) bool {
	return now >= s.NextAirdropTime && !s.AirdropExecuted
}

// Encode serializes the state including its discriminator.
func (s *ProgramState) Encode() ([]byte, error) {
	w := newWriter(ProgramStateLayout)
	w.key(s.Authority)
	w.key(s.TokenMint)
	w.u64(s.CurrentPrice)
	w.u64(s.TotalBurned)
	w.u64(s.TotalBuys)
	w.i64(s.NextAirdropTime)
	w.u64(s.AirdropAmount)
	w.i64(s.LastAirdropCycle)
	w.boolean(s.AirdropExecuted)
	w.u8(s.Bump)
	return w.finish()
}

// DecodeProgramState parses data strictly.
func DecodeProgramState(data []byte) (*ProgramState, error) {
	dec, err := ProgramStateLayout.check(data)
	if err != nil {
		return nil, err
	}
	r := reader{dec: dec}
	s := &ProgramState{
		Authority:        r.key(),
		TokenMint:        r.key(),
		CurrentPrice:     r.u64(),
		TotalBurned:      r.u64(),
		TotalBuys:        r.u64(),
		NextAirdropTime:  r.i64(),
		AirdropAmount:    r.u64(),
		LastAirdropCycle: r.i64(),
		AirdropExecuted:  r.boolean(),
		Bump:             r.u8(),
	}
	if r.err != nil {
		return nil, fmt.Errorf("decode ProgramState: %w", r.err)
	}
	return s, nil
}

// PurchaseOrder is one buy (or one recorded airdrop win).
type PurchaseOrder struct {
	Buyer       solana.PublicKey
	SolAmount   uint64
	TokenAmount uint64
	CreatedAt   int64
	UnlockTime  int64
	Bump        uint8
}

// Unlocked reports whether the order may be sold at now.
func (o *PurchaseOrder) Unlocked(now int64) bool {
	return now >= o.UnlockTime
}

func (o *PurchaseOrder) Encode() ([]byte, error) {
	w := newWriter(PurchaseOrderLayout)
	w.key(o.Buyer)
	w.u64(o.SolAmount)
	w.u64(o.TokenAmount)
	w.i64(o.CreatedAt)
	w.i64(o.UnlockTime)
	w.u8(o.Bump)
	return w.finish()
}

func DecodePurchaseOrder(data []byte) (*PurchaseOrder, error) {
	dec, err := PurchaseOrderLayout.check(data)
	if err != nil {
		return nil, err
	}
	r := reader{dec: dec}
	o := &PurchaseOrder{
		Buyer:       r.key(),
		SolAmount:   r.u64(),
		TokenAmount: r.u64(),
		CreatedAt:   r.i64(),
		UnlockTime:  r.i64(),
		Bump:        r.u8(),
	}
	if r.err != nil {
		return nil, fmt.Errorf("decode PurchaseOrder: %w", r.err)
	}
	return o, nil
}

// LastAirdrop is the audit projection of the most recent payout.
// It is overwritten every successful cycle.
type LastAirdrop struct {
	Winner        solana.PublicKey
	WinnerAccount solana.PublicKey
	Amount        uint64
	Timestamp     int64
	Bump          uint8
}

func (l *LastAirdrop) Encode() ([]byte, error) {
	w := newWriter(LastAirdropLayout)
	w.key(l.Winner)
	w.key(l.WinnerAccount)
	w.u64(l.Amount)
	w.i64(l.Timestamp)
	w.u8(l.Bump)
	return w.finish()
}

func DecodeLastAirdrop(data []byte) (*LastAirdrop, error) {
	dec, err := LastAirdropLayout.check(data)
	if err != nil {
		return nil, err
	}
	r := reader{dec: dec}
	l := &LastAirdrop{
		Winner:        r.key(),
		WinnerAccount: r.key(),
		Amount:        r.u64(),
		Timestamp:     r.i64(),
		Bump:          r.u8(),
	}
	if r.err != nil {
		return nil, fmt.Errorf("decode LastAirdrop: %w", r.err)
	}
	return l, nil
}

// writer keeps the first encoding error so call sites stay linear.
type writer struct {
	layout Layout
	buf    *bytes.Buffer
	enc    *bin.Encoder
	err    error
}

func newWriter(l Layout) *writer {
	buf := new(bytes.Buffer)
	w := &writer{layout: l, buf: buf, enc: bin.NewBorshEncoder(buf)}
	w.err = w.enc.WriteBytes(l.Discriminator[:], false)
	return w
}

func (w *writer) key(k solana.PublicKey) {
	if w.err == nil {
		w.err = w.enc.WriteBytes(k[:], false)
	}
}

func (w *writer) u64(v uint64) {
	if w.err == nil {
		w.err = w.enc.WriteUint64(v, binary.LittleEndian)
	}
}

func (w *writer) i64(v int64) {
	if w.err == nil {
		w.err = w.enc.WriteInt64(v, binary.LittleEndian)
	}
}

func (w *writer) boolean(v bool) {
	if w.err == nil {
		w.err = w.enc.WriteBool(v)
	}
}

func (w *writer) u8(v uint8) {
	if w.err == nil {
		w.err = w.enc.WriteUint8(v)
	}
}

func (w *writer) finish() ([]byte, error) {
	if w.err != nil {
		return nil, fmt.Errorf("encode %s: %w", w.layout.Name, w.err)
	}
	if w.buf.Len() != w.layout.Size {
		return nil, fmt.Errorf("encode %s: %w: %d bytes", w.layout.Name, ErrLayoutSize, w.buf.Len())
	}
	return w.buf.Bytes(), nil
}

type reader struct {
	dec *bin.Decoder
	err error
}

func (r *reader) key() solana.PublicKey {
	if r.err != nil {
		return solana.PublicKey{}
	}
	b, err := r.dec.ReadNBytes(32)
	if err != nil {
		r.err = err
		return solana.PublicKey{}
	}
	return solana.PublicKeyFromBytes(b)
}

func (r *reader) u64() uint64 {
	if r.err != nil {
		return 0
	}
	v, err := r.dec.ReadUint64(binary.LittleEndian)
	r.err = err
	return v
}

func (r *reader) i64() int64 {
	if r.err != nil {
		return 0
	}
	v, err := r.dec.ReadInt64(binary.LittleEndian)
	r.err = err
	return v
}

func (r *reader) boolean() bool {
	if r.err != nil {
		return false
	}
	v, err := r.dec.ReadBool()
	r.err = err
	return v
}

func (r *reader) u8() uint8 {
	if r.err != nil {
		return 0
	}
	v, err := r.dec.ReadUint8()
	r.err = err
	return v
}
