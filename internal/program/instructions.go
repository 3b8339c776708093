// ==============================================
// File: internal/program/instructions.go
// ==============================================
package program

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/fossr-labs/fossr/internal/program/schema"
)

// Instruction names as exposed by the program IDL.
const (
	NameInitialize            = "initialize"
	NameInitializeVault       = "initialize_vault"
	NameBuyTokens             = "buy_tokens"
	NameSellTokens            = "sell_tokens"
	NameAirdrop               = "airdrop"
	NameResetAirdropCycle     = "reset_airdrop_cycle"
	NameUpdateAirdropSettings = "update_airdrop_settings"
	NameUpdateTokenMint       = "update_token_mint"
	NameWithdrawVault         = "withdraw_vault"
)

// Sighash returns sha256("global:<name>")[:8].
func Sighash(name string) [8]byte {
	sum := sha256.Sum256([]byte("global:" + name))
	var d [8]byte
	copy(d[:], sum[:8])
	return d
}

var instructionNames = map[[8]byte]string{}

func init() {
	for _, name := range []string{
		NameInitialize, NameInitializeVault, NameBuyTokens, NameSellTokens, NameAirdrop,
		NameResetAirdropCycle, NameUpdateAirdropSettings, NameUpdateTokenMint, NameWithdrawVault,
	} {
		instructionNames[Sighash(name)] = name
	}
}

// InstructionName decodes the discriminator of instruction data.
func InstructionName(data []byte) (string, bool) {
	if len(data) < 8 {
		return "", false
	}
	var d [8]byte
	copy(d[:], data[:8])
	name, ok := instructionNames[d]
	return name, ok
}

// AssociatedTokenProgramID of the SPL associated token account program.
var AssociatedTokenProgramID = solana.SPLAssociatedTokenAccountProgramID

func encodeArgs(name string, args ...any) ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)
	d := Sighash(name)
	if err := enc.WriteBytes(d[:], false); err != nil {
		return nil, err
	}
	for _, a := range args {
		var err error
		switch v := a.(type) {
		case uint64:
			err = enc.WriteUint64(v, binary.LittleEndian)
		case int64:
			err = enc.WriteInt64(v, binary.LittleEndian)
		default:
			err = fmt.Errorf("unsupported argument type %T", a)
		}
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", name, err)
		}
	}
	return buf.Bytes(), nil
}

// argDecoder reads the arguments that follow the discriminator.
type argDecoder struct {
	dec *bin.Decoder
	err error
}

func newArgDecoder(data []byte) *argDecoder {
	return &argDecoder{dec: bin.NewBorshDecoder(data[8:])}
}

func (a *argDecoder) u64() uint64 {
	if a.err != nil {
		return 0
	}
	v, err := a.dec.ReadUint64(binary.LittleEndian)
	a.err = err
	return v
}

func (a *argDecoder) i64() int64 {
	if a.err != nil {
		return 0
	}
	v, err := a.dec.ReadInt64(binary.LittleEndian)
	a.err = err
	return v
}

func (a *argDecoder) done() error {
	if a.err != nil {
		return ErrInvalidAmount
	}
	if a.dec.Remaining() != 0 {
		return ErrInvalidAmount
	}
	return nil
}

// BuildInitializeInstruction creates program state and vault.
func BuildInitializeInstruction(addrs schema.Addresses, authority, mint solana.PublicKey, initialPrice, airdropAmount uint64) (solana.Instruction, error) {
	data, err := encodeArgs(NameInitialize, initialPrice, airdropAmount)
	if err != nil {
		return nil, err
	}
	insAccounts := []*solana.AccountMeta{
		{PublicKey: addrs.ProgramState, IsSigner: false, IsWritable: true},
		{PublicKey: mint, IsSigner: false, IsWritable: false},
		{PublicKey: addrs.Vault, IsSigner: false, IsWritable: true},
		{PublicKey: authority, IsSigner: true, IsWritable: true},
		{PublicKey: solana.SystemProgramID, IsSigner: false, IsWritable: false},
	}
	return solana.NewInstruction(addrs.ProgramID, insAccounts, data), nil
}

// BuildInitializeVaultInstruction creates the vault if it is missing.
func BuildInitializeVaultInstruction(addrs schema.Addresses, authority solana.PublicKey) (solana.Instruction, error) {
	data, err := encodeArgs(NameInitializeVault)
	if err != nil {
		return nil, err
	}
	insAccounts := []*solana.AccountMeta{
		{PublicKey: addrs.ProgramState, IsSigner: false, IsWritable: true},
		{PublicKey: authority, IsSigner: true, IsWritable: true},
		{PublicKey: addrs.Vault, IsSigner: false, IsWritable: true},
		{PublicKey: solana.SystemProgramID, IsSigner: false, IsWritable: false},
	}
	return solana.NewInstruction(addrs.ProgramID, insAccounts, data), nil
}

// BuildBuyInstruction returns the instruction and the order address it creates.
// clientTimestamp only seeds the order address.
func BuildBuyInstruction(addrs schema.Addresses, mint, buyer solana.PublicKey, solAmount uint64, clientTimestamp int64) (solana.Instruction, solana.PublicKey, error) {
	data, err := encodeArgs(NameBuyTokens, solAmount, clientTimestamp)
	if err != nil {
		return nil, solana.PublicKey{}, err
	}
	order, _, err := schema.OrderAddress(addrs.ProgramID, buyer, clientTimestamp)
	if err != nil {
		return nil, solana.PublicKey{}, fmt.Errorf("failed to derive order address: %w", err)
	}
	buyerATA, _, err := solana.FindAssociatedTokenAddress(buyer, mint)
	if err != nil {
		return nil, solana.PublicKey{}, fmt.Errorf("failed to get associated token account: %w", err)
	}
	insAccounts := []*solana.AccountMeta{
		{PublicKey: addrs.ProgramState, IsSigner: false, IsWritable: true},
		{PublicKey: mint, IsSigner: false, IsWritable: true},
		{PublicKey: buyer, IsSigner: true, IsWritable: true},
		{PublicKey: buyerATA, IsSigner: false, IsWritable: true},
		{PublicKey: order, IsSigner: false, IsWritable: true},
		{PublicKey: addrs.Vault, IsSigner: false, IsWritable: true},
		{PublicKey: solana.SysVarSlotHashesPubkey, IsSigner: false, IsWritable: false},
		{PublicKey: solana.TokenProgramID, IsSigner: false, IsWritable: false},
		{PublicKey: AssociatedTokenProgramID, IsSigner: false, IsWritable: false},
		{PublicKey: solana.SystemProgramID, IsSigner: false, IsWritable: false},
	}
	return solana.NewInstruction(addrs.ProgramID, insAccounts, data), order, nil
}

// BuildSellInstruction sells amount against orders, which must all belong to seller.
func BuildSellInstruction(addrs schema.Addresses, mint, seller solana.PublicKey, amount uint64, orders []solana.PublicKey) (solana.Instruction, error) {
	data, err := encodeArgs(NameSellTokens, amount)
	if err != nil {
		return nil, err
	}
	sellerATA, _, err := solana.FindAssociatedTokenAddress(seller, mint)
	if err != nil {
		return nil, fmt.Errorf("failed to get associated token account: %w", err)
	}
	insAccounts := []*solana.AccountMeta{
		{PublicKey: addrs.ProgramState, IsSigner: false, IsWritable: true},
		{PublicKey: mint, IsSigner: false, IsWritable: true},
		{PublicKey: seller, IsSigner: true, IsWritable: true},
		{PublicKey: sellerATA, IsSigner: false, IsWritable: true},
		{PublicKey: addrs.Vault, IsSigner: false, IsWritable: true},
		{PublicKey: solana.TokenProgramID, IsSigner: false, IsWritable: false},
		{PublicKey: solana.SystemProgramID, IsSigner: false, IsWritable: false},
	}
	for _, o := range orders {
		insAccounts = append(insAccounts, &solana.AccountMeta{PublicKey: o, IsSigner: false, IsWritable: true})
	}
	return solana.NewInstruction(addrs.ProgramID, insAccounts, data), nil
}

// BuildAirdropInstruction pays the pot of the cycle ending at cycleTime to
// winner's associated token account.
func BuildAirdropInstruction(addrs schema.Addresses, mint, authority, winner solana.PublicKey, cycleTime int64) (solana.Instruction, error) {
	data, err := encodeArgs(NameAirdrop)
	if err != nil {
		return nil, err
	}
	recipient, _, err := solana.FindAssociatedTokenAddress(winner, mint)
	if err != nil {
		return nil, fmt.Errorf("failed to get associated token account: %w", err)
	}
	airdropOrder, _, err := schema.AirdropOrderAddress(addrs.ProgramID, winner, cycleTime)
	if err != nil {
		return nil, fmt.Errorf("failed to derive airdrop order: %w", err)
	}
	// Порядок как у развёрнутой программы, airdrop_order идёт последним
	insAccounts := []*solana.AccountMeta{
		{PublicKey: addrs.ProgramState, IsSigner: false, IsWritable: true},
		{PublicKey: mint, IsSigner: false, IsWritable: true},
		{PublicKey: authority, IsSigner: true, IsWritable: true},
		{PublicKey: recipient, IsSigner: false, IsWritable: true},
		{PublicKey: addrs.LastAirdrop, IsSigner: false, IsWritable: true},
		{PublicKey: solana.TokenProgramID, IsSigner: false, IsWritable: false},
		{PublicKey: solana.SystemProgramID, IsSigner: false, IsWritable: false},
		{PublicKey: airdropOrder, IsSigner: false, IsWritable: true},
	}
	return solana.NewInstruction(addrs.ProgramID, insAccounts, data), nil
}

// BuildResetAirdropCycleInstruction advances the cycle.
func BuildResetAirdropCycleInstruction(addrs schema.Addresses, authority solana.PublicKey) (solana.Instruction, error) {
	data, err := encodeArgs(NameResetAirdropCycle)
	if err != nil {
		return nil, err
	}
	insAccounts := []*solana.AccountMeta{
		{PublicKey: addrs.ProgramState, IsSigner: false, IsWritable: true},
		{PublicKey: authority, IsSigner: true, IsWritable: false},
	}
	return solana.NewInstruction(addrs.ProgramID, insAccounts, data), nil
}

// BuildUpdateAirdropSettingsInstruction sets the pot in admin funding mode.
func BuildUpdateAirdropSettingsInstruction(addrs schema.Addresses, authority solana.PublicKey, amount uint64) (solana.Instruction, error) {
	data, err := encodeArgs(NameUpdateAirdropSettings, amount)
	if err != nil {
		return nil, err
	}
	insAccounts := []*solana.AccountMeta{
		{PublicKey: addrs.ProgramState, IsSigner: false, IsWritable: true},
		{PublicKey: authority, IsSigner: true, IsWritable: false},
	}
	return solana.NewInstruction(addrs.ProgramID, insAccounts, data), nil
}

// BuildUpdateTokenMintInstruction points the program at a new mint.
func BuildUpdateTokenMintInstruction(addrs schema.Addresses, authority, newMint solana.PublicKey) (solana.Instruction, error) {
	data, err := encodeArgs(NameUpdateTokenMint)
	if err != nil {
		return nil, err
	}
	insAccounts := []*solana.AccountMeta{
		{PublicKey: addrs.ProgramState, IsSigner: false, IsWritable: true},
		{PublicKey: authority, IsSigner: true, IsWritable: false},
		{PublicKey: newMint, IsSigner: false, IsWritable: false},
	}
	return solana.NewInstruction(addrs.ProgramID, insAccounts, data), nil
}

// BuildWithdrawVaultInstruction moves amount lamports from the vault to the authority.
func BuildWithdrawVaultInstruction(addrs schema.Addresses, authority solana.PublicKey, amount uint64) (solana.Instruction, error) {
	data, err := encodeArgs(NameWithdrawVault, amount)
	if err != nil {
		return nil, err
	}
	insAccounts := []*solana.AccountMeta{
		{PublicKey: addrs.ProgramState, IsSigner: false, IsWritable: false},
		{PublicKey: authority, IsSigner: true, IsWritable: true},
		{PublicKey: addrs.Vault, IsSigner: false, IsWritable: true},
		{PublicKey: solana.SystemProgramID, IsSigner: false, IsWritable: false},
	}
	return solana.NewInstruction(addrs.ProgramID, insAccounts, data), nil
}
