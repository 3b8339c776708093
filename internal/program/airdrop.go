// ==============================================
// File: internal/program/airdrop.go
// ==============================================
package program

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/fossr-labs/fossr/internal/events"
	"github.com/fossr-labs/fossr/internal/ledger"
	"github.com/fossr-labs/fossr/internal/program/schema"
)

// airdrop: [state w, mint w, authority s w, recipient_ata w, last_airdrop w,
// token, system, airdrop_order w]
//
// The first seven accounts keep the deployed program's order; the winnings
// order is a trailing account, and the winner is the owner of the recipient
// token account.
//
// airdrop_executed is checked and set inside this transaction. Two racing
// calls are serialized by the ledger on the state account, so the second
// one reads executed=true and fails.
func (p *Program) airdrop(tx *ledger.Tx, accts accountList) error {
	if err := accts.want(8); err != nil {
		return err
	}
	stateAddr, _ := accts.at(0)
	mint, _ := accts.at(1)
	authority, _ := accts.at(2)
	recipient, _ := accts.at(3)
	lastAddr, _ := accts.at(4)
	orderAddr, _ := accts.at(7)

	state, err := p.loadState(tx, stateAddr)
	if err != nil {
		return err
	}
	if err := p.requireAuthority(tx, state, authority); err != nil {
		return err
	}
	now := tx.Now()
	if state.AirdropExecuted {
		return ErrAirdropAlreadyExecuted
	}
	if now < state.NextAirdropTime {
		return ErrAirdropNotReady
	}
	if state.AirdropAmount == 0 {
		return ErrEmptyPot
	}
	if !mint.Equals(state.TokenMint) {
		return ErrInvalidMint
	}
	if !lastAddr.Equals(p.addrs.LastAirdrop) {
		return fmt.Errorf("%w: last airdrop", ErrInvalidAccount)
	}

	holder, err := tx.TokenAccount(recipient)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return ErrNotEligibleForAirdrop
	}
	if err != nil {
		return ledgerErr(err, ErrInvalidAccount)
	}
	winner := holder.Owner
	expectedATA, _, err := solana.FindAssociatedTokenAddress(winner, mint)
	if err != nil || !expectedATA.Equals(recipient) || !holder.Mint.Equals(mint) {
		return fmt.Errorf("%w: recipient token account", ErrInvalidAccount)
	}
	if holder.Amount < p.params.MinAirdropEligible {
		return ErrNotEligibleForAirdrop
	}

	cycleTime := state.NextAirdropTime
	expectedOrder, orderBump, err := schema.AirdropOrderAddress(p.id, winner, cycleTime)
	if err != nil || !expectedOrder.Equals(orderAddr) {
		return fmt.Errorf("%w: airdrop order", ErrInvalidAccount)
	}

	lastExists, err := tx.Exists(lastAddr)
	if err != nil {
		return ledgerErr(err, ErrInvalidAccount)
	}
	if !lastExists {
		seeds := [][]byte{schema.SeedLastAirdrop, {p.addrs.LastBump}}
		if err := tx.CreateAccount(authority, lastAddr, schema.LastAirdropLayout.Size, p.id, seeds); err != nil {
			return ledgerErr(err, ErrInvalidAccount)
		}
	}
	orderSeeds := schema.AirdropOrderSeeds(winner, cycleTime, orderBump)
	if err := tx.CreateAccount(authority, orderAddr, schema.PurchaseOrderLayout.Size, p.id, orderSeeds); err != nil {
		return ledgerErr(err, ErrInvalidAccount)
	}

	amount := state.AirdropAmount
	if err := tx.MintToSigned(mint, recipient, amount, p.stateSeeds()); err != nil {
		return ledgerErr(err, ErrInvalidMint)
	}

	record := &schema.LastAirdrop{
		Winner:        winner,
		WinnerAccount: recipient,
		Amount:        amount,
		Timestamp:     now,
		Bump:          p.addrs.LastBump,
	}
	recordData, err := record.Encode()
	if err != nil {
		return err
	}
	if err := tx.SetData(lastAddr, recordData); err != nil {
		return err
	}
	// Winnings are recorded as an order that is unlocked from the start, so
	// the sell gate can release them like any other purchase.
	winnings := &schema.PurchaseOrder{
		Buyer:       winner,
		TokenAmount: amount,
		CreatedAt:   now,
		UnlockTime:  now,
		Bump:        orderBump,
	}
	if err := p.saveOrder(tx, orderAddr, winnings); err != nil {
		return err
	}

	state.AirdropExecuted = true
	state.LastAirdropCycle = now
	if p.params.PotFunding == PotAccumulate {
		state.AirdropAmount = 0
	}
	if err := p.saveState(tx, state); err != nil {
		return err
	}

	tx.Logf("Airdrop executed | Winner: %s | Amount: %d", winner, amount)
	tx.Emit(events.AirdropExecutedEvent{
		BaseEvent:     events.NewBase(events.AirdropExecuted, now),
		Winner:        winner,
		WinnerAccount: recipient,
		Amount:        amount,
		CycleTime:     cycleTime,
	})
	return nil
}

// reset_airdrop_cycle: [state w, authority s]
func (p *Program) resetAirdropCycle(tx *ledger.Tx, accts accountList) error {
	if err := accts.want(2); err != nil {
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
	if tx.Now() < state.NextAirdropTime {
		return ErrAirdropNotReady
	}
	next := state.NextAirdropTime + p.params.intervalSeconds()
	if next < state.NextAirdropTime {
		return ErrArithmeticOverflow
	}
	paid := state.AirdropExecuted
	state.NextAirdropTime = next
	state.AirdropExecuted = false
	if err := p.saveState(tx, state); err != nil {
		return err
	}

	tx.Logf("Airdrop cycle reset | Next: %d", next)
	tx.Emit(events.CycleResetEvent{
		BaseEvent:       events.NewBase(events.CycleReset, tx.Now()),
		NextAirdropTime: next,
		Paid:            paid,
	})
	return nil
}
