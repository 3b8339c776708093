// ==============================================
// File: internal/program/schema/seeds.go
// ==============================================
package schema

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// PDA seed constants. Any caller must derive accounts from exactly these seeds
// so that addresses can be located without querying the program.
var (
	SeedProgramState = []byte("program-state")
	SeedVault        = []byte("vault")
	SeedOrder        = []byte("order")
	SeedAirdropOrder = []byte("airdrop-order")
	SeedLastAirdrop  = []byte("last-airdrop")
)

// DefaultProgramID is the deployed devnet program id.
var DefaultProgramID = solana.MustPublicKeyFromBase58("5WCXWwsaw8WRxMzxqBiAQ5ByHWY9ruV9egijtgC493SP")

// Addresses bundles the singleton PDAs of one deployment.
type Addresses struct {
	ProgramID    solana.PublicKey
	ProgramState solana.PublicKey
	StateBump    uint8
	Vault        solana.PublicKey
	VaultBump    uint8
	LastAirdrop  solana.PublicKey
	LastBump     uint8
}

// DeriveAddresses computes the singleton PDAs for programID.
func DeriveAddresses(programID solana.PublicKey) (Addresses, error) {
	state, stateBump, err := solana.FindProgramAddress([][]byte{SeedProgramState}, programID)
	if err != nil {
		return Addresses{}, fmt.Errorf("failed to derive program state: %w", err)
	}
	vault, vaultBump, err := solana.FindProgramAddress([][]byte{SeedVault}, programID)
	if err != nil {
		return Addresses{}, fmt.Errorf("failed to derive vault: %w", err)
	}
	last, lastBump, err := solana.FindProgramAddress([][]byte{SeedLastAirdrop}, programID)
	if err != nil {
		return Addresses{}, fmt.Errorf("failed to derive last airdrop: %w", err)
	}
	return Addresses{
		ProgramID:    programID,
		ProgramState: state,
		StateBump:    stateBump,
		Vault:        vault,
		VaultBump:    vaultBump,
		LastAirdrop:  last,
		LastBump:     lastBump,
	}, nil
}

// OrderAddress derives the PurchaseOrder PDA for a buyer and the client-supplied
// timestamp. The timestamp is only a seed and never trusted as time.
func OrderAddress(programID, buyer solana.PublicKey, clientTimestamp int64) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress(
		[][]byte{SeedOrder, buyer.Bytes(), i64le(clientTimestamp)},
		programID,
	)
}

// AirdropOrderAddress derives the order that records a cycle's winnings.
// cycleTime is the next_airdrop_time of the cycle that paid out.
func AirdropOrderAddress(programID, winner solana.PublicKey, cycleTime int64) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress(
		[][]byte{SeedAirdropOrder, winner.Bytes(), i64le(cycleTime)},
		programID,
	)
}

// OrderSeeds are the signer seeds of an order created with bump.
func OrderSeeds(buyer solana.PublicKey, clientTimestamp int64, bump uint8) [][]byte {
	return [][]byte{SeedOrder, buyer.Bytes(), i64le(clientTimestamp), {bump}}
}

// AirdropOrderSeeds are the signer seeds of an airdrop order created with bump.
func AirdropOrderSeeds(winner solana.PublicKey, cycleTime int64, bump uint8) [][]byte {
	return [][]byte{SeedAirdropOrder, winner.Bytes(), i64le(cycleTime), {bump}}
}

func i64le(v int64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, uint64(v))
	return b
}
