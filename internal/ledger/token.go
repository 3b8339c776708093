// ==============================================
// File: internal/ledger/token.go
// ==============================================
package ledger

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// SPL token program account layouts.
const (
	MintSize         = 82
	TokenAccountSize = 165
)

var (
	ErrInvalidTokenAccount = errors.New("invalid token account")
	ErrInvalidMint         = errors.New("invalid mint")
	ErrMintMismatch        = errors.New("token account mint mismatch")
	ErrOwnerMismatch       = errors.New("token account owner mismatch")
	ErrInsufficientTokens  = errors.New("insufficient token balance")
	ErrMintAuthority       = errors.New("invalid mint authority")
)

// Mint mirrors the SPL mint record.
type Mint struct {
	MintAuthority   *solana.PublicKey
	Supply          uint64
	Decimals        uint8
	IsInitialized   bool
	FreezeAuthority *solana.PublicKey
}

// TokenAccount mirrors the SPL token account record. Only the fields used by
// the protocol are kept; the rest are written as zero.
type TokenAccount struct {
	Mint   solana.PublicKey
	Owner  solana.PublicKey
	Amount uint64
}

func (m *Mint) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := bin.NewBinEncoder(buf)
	if err := writeOptionKey(enc, m.MintAuthority); err != nil {
		return nil, err
	}
	if err := enc.WriteUint64(m.Supply, binary.LittleEndian); err != nil {
		return nil, err
	}
	if err := enc.WriteUint8(m.Decimals); err != nil {
		return nil, err
	}
	if err := enc.WriteBool(m.IsInitialized); err != nil {
		return nil, err
	}
	if err := writeOptionKey(enc, m.FreezeAuthority); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func DecodeMint(data []byte) (*Mint, error) {
	if len(data) != MintSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidMint, len(data))
	}
	dec := bin.NewBinDecoder(data)
	m := &Mint{}
	var err error
	if m.MintAuthority, err = readOptionKey(dec); err != nil {
		return nil, err
	}
	if m.Supply, err = dec.ReadUint64(binary.LittleEndian); err != nil {
		return nil, err
	}
	if m.Decimals, err = dec.ReadUint8(); err != nil {
		return nil, err
	}
	if m.IsInitialized, err = dec.ReadBool(); err != nil {
		return nil, err
	}
	if m.FreezeAuthority, err = readOptionKey(dec); err != nil {
		return nil, err
	}
	if !m.IsInitialized {
		return nil, fmt.Errorf("%w: not initialized", ErrInvalidMint)
	}
	return m, nil
}

func (a *TokenAccount) Encode() ([]byte, error) {
	data := make([]byte, TokenAccountSize)
	copy(data[0:32], a.Mint[:])
	copy(data[32:64], a.Owner[:])
	binary.LittleEndian.PutUint64(data[64:72], a.Amount)
	data[108] = 1 // initialized
	return data, nil
}

func DecodeTokenAccount(data []byte) (*TokenAccount, error) {
	if len(data) != TokenAccountSize || data[108] == 0 {
		return nil, ErrInvalidTokenAccount
	}
	return &TokenAccount{
		Mint:   solana.PublicKeyFromBytes(data[0:32]),
		Owner:  solana.PublicKeyFromBytes(data[32:64]),
		Amount: binary.LittleEndian.Uint64(data[64:72]),
	}, nil
}

// TokenAccountFilters selects token accounts of mint.
func TokenAccountFilters(mint solana.PublicKey) []Filter {
	return []Filter{
		{DataSize: TokenAccountSize},
		{Offset: 0, Bytes: mint.Bytes()},
	}
}

func writeOptionKey(enc *bin.Encoder, key *solana.PublicKey) error {
	if key == nil {
		if err := enc.WriteUint32(0, binary.LittleEndian); err != nil {
			return err
		}
		return enc.WriteBytes(make([]byte, 32), false)
	}
	if err := enc.WriteUint32(1, binary.LittleEndian); err != nil {
		return err
	}
	return enc.WriteBytes(key[:], false)
}

func readOptionKey(dec *bin.Decoder) (*solana.PublicKey, error) {
	tag, err := dec.ReadUint32(binary.LittleEndian)
	if err != nil {
		return nil, err
	}
	raw, err := dec.ReadNBytes(32)
	if err != nil {
		return nil, err
	}
	if tag == 0 {
		return nil, nil
	}
	key := solana.PublicKeyFromBytes(raw)
	return &key, nil
}
