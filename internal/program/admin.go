// ==============================================
// File: internal/program/admin.go
// ==============================================
package program

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/fossr-labs/fossr/internal/events"
	"github.com/fossr-labs/fossr/internal/ledger"
	"github.com/fossr-labs/fossr/internal/program/curve"
	"github.com/fossr-labs/fossr/internal/program/schema"
)

// initialize: [state w, mint, vault w, authority s w, system]
func (p *Program) initialize(tx *ledger.Tx, accts accountList, data []byte) error {
	if err := accts.want(4); err != nil {
		return err
	}
	args := newArgDecoder(data)
	initialPrice := args.u64()
	airdropAmount := args.u64()
	if err := args.done(); err != nil {
		return err
	}

	stateAddr, _ := accts.at(0)
	mint, _ := accts.at(1)
	vault, _ := accts.at(2)
	authority, _ := accts.at(3)

	if !stateAddr.Equals(p.addrs.ProgramState) || !vault.Equals(p.addrs.Vault) {
		return ErrInvalidAccount
	}
	if !tx.IsSigner(authority) {
		return ErrUnauthorized
	}
	if initialPrice < curve.MinPrice {
		return ErrInvalidPrice
	}
	if err := p.checkMint(tx, mint); err != nil {
		return err
	}
	if err := tx.CreateAccount(authority, stateAddr, schema.ProgramStateLayout.Size, p.id, p.stateSeeds()); err != nil {
		return ledgerErr(err, ErrInvalidAccount)
	}

	now := tx.Now()
	state := &schema.ProgramState{
		Authority:        authority,
		TokenMint:        mint,
		CurrentPrice:     initialPrice,
		NextAirdropTime:  p.params.NextAirdropTime(now),
		AirdropAmount:    airdropAmount,
		LastAirdropCycle: now,
		Bump:             p.addrs.StateBump,
	}
	if err := p.saveState(tx, state); err != nil {
		return err
	}
	if err := p.ensureVault(tx, authority); err != nil {
		return err
	}

	tx.Logf("FOSSR initialized | Price: %d | Airdrop every %s", initialPrice, p.params.AirdropInterval)
	tx.Emit(events.ProgramInitializedEvent{
		BaseEvent:       events.NewBase(events.ProgramInitialized, now),
		Authority:       authority,
		TokenMint:       mint,
		InitialPrice:    initialPrice,
		NextAirdropTime: state.NextAirdropTime,
	})
	return nil
}

// initialize_vault: [state w, authority s w, vault w, system]
func (p *Program) initializeVault(tx *ledger.Tx, accts accountList) error {
	if err := accts.want(3); err != nil {
		return err
	}
	stateAddr, _ := accts.at(0)
	authority, _ := accts.at(1)
	vault, _ := accts.at(2)

	state, err := p.loadState(tx, stateAddr)
	if err != nil {
		return err
	}
	if err := p.requireAuthority(tx, state, authority); err != nil {
		return err
	}
	if !vault.Equals(p.addrs.Vault) {
		return ErrInvalidAccount
	}
	return p.ensureVault(tx, authority)
}

func (p *Program) ensureVault(tx *ledger.Tx, payer solana.PublicKey) error {
	acc, err := tx.Account(p.addrs.Vault)
	if err == nil && acc.Lamports > 0 {
		if !acc.Owner.Equals(p.id) {
			return fmt.Errorf("%w: vault owned by %s", ErrInvalidAccount, acc.Owner)
		}
		tx.Logf("Vault already initialized")
		return nil
	}
	seeds := [][]byte{schema.SeedVault, {p.addrs.VaultBump}}
	if err := tx.CreateAccount(payer, p.addrs.Vault, 0, p.id, seeds); err != nil {
		return ledgerErr(err, ErrInvalidAccount)
	}
	tx.Logf("Vault initialized")
	return nil
}

// checkMint requires the program state to be the mint authority, so that
// only this program can create supply.
func (p *Program) checkMint(tx *ledger.Tx, mint solana.PublicKey) error {
	m, err := tx.Mint(mint)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMint, err)
	}
	if m.MintAuthority == nil || !m.MintAuthority.Equals(p.addrs.ProgramState) {
		return ErrInvalidMint
	}
	return nil
}

// update_airdrop_settings: [state w, authority s]
func (p *Program) updateAirdropSettings(tx *ledger.Tx, accts accountList, data []byte) error {
	if err := accts.want(2); err != nil {
		return err
	}
	args := newArgDecoder(data)
	amount := args.u64()
	if err := args.done(); err != nil {
		return err
	}
	stateAddr, _ := accts.at(0)
	authority, _ := accts.at(1)

	state, err := p.loadState(tx, stateAddr)
	if err != nil {
		return err
	}
	if err := p.requireAuthority(tx, state, authority); err != nil {
		return err
	}
	if p.params.PotFunding != PotAdmin {
		return ErrPotFundingMode
	}
	state.AirdropAmount = amount
	if err := p.saveState(tx, state); err != nil {
		return err
	}
	tx.Logf("Airdrop amount updated: %d", amount)
	tx.Emit(events.PotUpdatedEvent{
		BaseEvent: events.NewBase(events.PotUpdated, tx.Now()),
		Amount:    amount,
	})
	return nil
}

// update_token_mint: [state w, authority s, new mint]
func (p *Program) updateTokenMint(tx *ledger.Tx, accts accountList) error {
	if err := accts.want(3); err != nil {
		return err
	}
	stateAddr, _ := accts.at(0)
	authority, _ := accts.at(1)
	newMint, _ := accts.at(2)

	state, err := p.loadState(tx, stateAddr)
	if err != nil {
		return err
	}
	if err := p.requireAuthority(tx, state, authority); err != nil {
		return err
	}
	if err := p.checkMint(tx, newMint); err != nil {
		return err
	}
	old := state.TokenMint
	state.TokenMint = newMint
	if err := p.saveState(tx, state); err != nil {
		return err
	}
	tx.Logf("Token mint updated to %s", newMint)
	tx.Emit(events.TokenMintUpdatedEvent{
		BaseEvent: events.NewBase(events.TokenMintUpdated, tx.Now()),
		OldMint:   old,
		NewMint:   newMint,
	})
	return nil
}

// withdraw_vault: [state, authority s w, vault w, system]
func (p *Program) withdrawVault(tx *ledger.Tx, accts accountList, data []byte) error {
	if err := accts.want(3); err != nil {
		return err
	}
	args := newArgDecoder(data)
	amount := args.u64()
	if err := args.done(); err != nil {
		return err
	}
	if amount == 0 {
		return ErrInvalidAmount
	}
	stateAddr, _ := accts.at(0)
	authority, _ := accts.at(1)
	vault, _ := accts.at(2)

	state, err := p.loadState(tx, stateAddr)
	if err != nil {
		return err
	}
	if err := p.requireAuthority(tx, state, authority); err != nil {
		return err
	}
	if !vault.Equals(p.addrs.Vault) {
		return ErrInvalidAccount
	}
	if err := p.payFromVault(tx, authority, amount); err != nil {
		return err
	}
	tx.Logf("Withdrew %d lamports from vault", amount)
	tx.Emit(events.VaultWithdrawnEvent{
		BaseEvent: events.NewBase(events.VaultWithdrawn, tx.Now()),
		Recipient: authority,
		Amount:    amount,
	})
	return nil
}

// payFromVault keeps the vault rent exempt.
func (p *Program) payFromVault(tx *ledger.Tx, to solana.PublicKey, amount uint64) error {
	balance, err := tx.Balance(p.addrs.Vault)
	if err != nil {
		return ledgerErr(err, ErrInsufficientVaultBalance)
	}
	floor := ledger.MinimumBalance(0)
	if balance < floor || balance-floor < amount {
		return ErrInsufficientVaultBalance
	}
	if err := tx.Transfer(p.addrs.Vault, to, amount); err != nil {
		return ledgerErr(err, ErrInsufficientVaultBalance)
	}
	return nil
}
