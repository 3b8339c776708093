// ==============================================
// File: internal/program/trade.go
// ==============================================
package program

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/fossr-labs/fossr/internal/events"
	"github.com/fossr-labs/fossr/internal/ledger"
	"github.com/fossr-labs/fossr/internal/program/curve"
	"github.com/fossr-labs/fossr/internal/program/locktier"
	"github.com/fossr-labs/fossr/internal/program/schema"
)

// buy_tokens(sol_amount, timestamp):
// [state w, mint w, buyer s w, buyer_ata w, order w, vault w, slot_hashes, token, ata, system]
func (p *Program) buyTokens(tx *ledger.Tx, accts accountList, data []byte) error {
	if err := accts.want(6); err != nil {
		return err
	}
	args := newArgDecoder(data)
	solAmount := args.u64()
	clientTimestamp := args.i64()
	if err := args.done(); err != nil {
		return err
	}
	switch {
	case solAmount == 0:
		return ErrInvalidAmount
	case solAmount < p.params.MinBuy:
		return ErrBuyAmountTooSmall
	case solAmount > p.params.MaxBuy:
		return ErrBuyAmountTooLarge
	}

	stateAddr, _ := accts.at(0)
	mint, _ := accts.at(1)
	buyer, _ := accts.at(2)
	buyerATA, _ := accts.at(3)
	orderAddr, _ := accts.at(4)
	vault, _ := accts.at(5)

	state, err := p.loadState(tx, stateAddr)
	if err != nil {
		return err
	}
	if !mint.Equals(state.TokenMint) {
		return ErrInvalidMint
	}
	if !vault.Equals(p.addrs.Vault) {
		return ErrInvalidAccount
	}
	if !tx.IsSigner(buyer) {
		return ErrUnauthorized
	}
	expectedOrder, orderBump, err := schema.OrderAddress(p.id, buyer, clientTimestamp)
	if err != nil || !expectedOrder.Equals(orderAddr) {
		return fmt.Errorf("%w: order address", ErrInvalidAccount)
	}
	inUse, err := tx.Exists(orderAddr)
	if err != nil {
		return ledgerErr(err, ErrInvalidAccount)
	}
	if inUse {
		return ErrAccountAlreadyInUse
	}

	c, err := curve.FromState(state.CurrentPrice, state.TotalBuys, p.params.PriceStep)
	if err != nil {
		return ErrArithmeticOverflow
	}
	quote, err := c.TokensForPayment(solAmount, state.TotalBuys)
	if err != nil {
		return curveErr(err)
	}

	// Payment plus every rent the buyer may owe in this transaction.
	need, err := checkedAdd(solAmount, ledger.MinimumBalance(schema.PurchaseOrderLayout.Size))
	if err != nil {
		return err
	}
	ataExists, err := tx.Exists(buyerATA)
	if err != nil {
		return ledgerErr(err, ErrInvalidAccount)
	}
	if !ataExists {
		if need, err = checkedAdd(need, ledger.MinimumBalance(ledger.TokenAccountSize)); err != nil {
			return err
		}
	}
	balance, err := tx.Balance(buyer)
	if err != nil {
		return ledgerErr(err, ErrInsufficientFunds)
	}
	if balance < need {
		return ErrInsufficientFunds
	}

	if err := tx.Transfer(buyer, vault, solAmount); err != nil {
		return ledgerErr(err, ErrInsufficientFunds)
	}
	ata, err := tx.CreateAssociatedTokenAccount(buyer, buyer, mint)
	if err != nil {
		return ledgerErr(err, ErrInvalidAccount)
	}
	if !ata.Equals(buyerATA) {
		return fmt.Errorf("%w: buyer token account", ErrInvalidAccount)
	}

	now := tx.Now()
	seed := locktier.Entropy(tx.SlotHash(), buyer, now, tx.Slot())
	lock := locktier.Sample(p.params.Tiers.For(solAmount), seed)
	order := &schema.PurchaseOrder{
		Buyer:       buyer,
		SolAmount:   solAmount,
		TokenAmount: quote.Net,
		CreatedAt:   now,
		UnlockTime:  now + int64(lock/time.Second),
		Bump:        orderBump,
	}
	seeds := schema.OrderSeeds(buyer, clientTimestamp, orderBump)
	if err := tx.CreateAccount(buyer, orderAddr, schema.PurchaseOrderLayout.Size, p.id, seeds); err != nil {
		return ledgerErr(err, ErrInvalidAccount)
	}
	if err := p.saveOrder(tx, orderAddr, order); err != nil {
		return err
	}
	if err := tx.MintToSigned(mint, buyerATA, quote.Net, p.stateSeeds()); err != nil {
		return ledgerErr(err, ErrInvalidMint)
	}

	if state.TotalBuys, err = checkedAdd(state.TotalBuys, 1); err != nil {
		return err
	}
	if state.TotalBurned, err = checkedAdd(state.TotalBurned, quote.Burn); err != nil {
		return err
	}
	if p.params.PotFunding == PotAccumulate {
		if state.AirdropAmount, err = checkedAdd(state.AirdropAmount, quote.Pot); err != nil {
			return err
		}
	}
	if state.CurrentPrice, err = c.Price(state.TotalBuys); err != nil {
		return ErrArithmeticOverflow
	}
	if err := p.saveState(tx, state); err != nil {
		return err
	}

	tx.Logf("Bought %d tokens for %d lamports | Lock: %ds | Burned: %d | Pot: +%d",
		quote.Net, solAmount, int64(lock/time.Second), quote.Burn, quote.Pot)
	tx.Emit(events.BuyExecutedEvent{
		BaseEvent:       events.NewBase(events.BuyExecuted, now),
		Buyer:           buyer,
		Order:           orderAddr,
		SolAmount:       solAmount,
		TokenAmount:     quote.Net,
		Burned:          quote.Burn,
		PotContribution: quote.Pot,
		Price:           quote.Price,
		TotalBuys:       state.TotalBuys,
		UnlockTime:      order.UnlockTime,
	})
	return nil
}

type heldOrder struct {
	addr  solana.PublicKey
	order *schema.PurchaseOrder
}

// sell_tokens(token_amount):
// [state w, mint w, seller s w, seller_ata w, vault w, token, system, orders w...]
//
// The passed orders are consumed oldest first. A partially consumed order
// keeps its unlock time; an emptied order is closed and its rent returned to
// the seller. The program only sees the orders in the account list, so the
// oldest-first order holds across a seller's whole history only when the
// client passes its oldest unlocked orders, as chain.Service does. Leaving
// one out changes which records are drawn down, never the amounts.
func (p *Program) sellTokens(tx *ledger.Tx, accts accountList, data []byte) error {
	if err := accts.want(5); err != nil {
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
	if amount < p.params.MinSell {
		return ErrSellAmountTooSmall
	}

	stateAddr, _ := accts.at(0)
	mint, _ := accts.at(1)
	seller, _ := accts.at(2)
	sellerATA, _ := accts.at(3)
	vault, _ := accts.at(4)

	state, err := p.loadState(tx, stateAddr)
	if err != nil {
		return err
	}
	if !mint.Equals(state.TokenMint) {
		return ErrInvalidMint
	}
	if !vault.Equals(p.addrs.Vault) {
		return ErrInvalidAccount
	}
	if !tx.IsSigner(seller) {
		return ErrUnauthorized
	}
	holder, err := tx.TokenAccount(sellerATA)
	if err != nil {
		return ledgerErr(err, ErrInsufficientBalance)
	}
	if !holder.Owner.Equals(seller) || !holder.Mint.Equals(mint) {
		return fmt.Errorf("%w: seller token account", ErrInvalidAccount)
	}

	unlocked, err := p.unlockedOrders(tx, seller, accts.from(7))
	if err != nil {
		return err
	}
	var available uint64
	for _, h := range unlocked {
		if available, err = checkedAdd(available, h.order.TokenAmount); err != nil {
			return err
		}
	}
	if amount > available {
		return fmt.Errorf("%w: requested %d, unlocked %d", ErrTokensStillLocked, amount, available)
	}
	if holder.Amount < amount {
		return ErrInsufficientBalance
	}

	quote, err := curve.QuoteSell(amount, state.CurrentPrice)
	if err != nil {
		return curveErr(err)
	}
	if err := tx.Burn(sellerATA, mint, amount); err != nil {
		return ledgerErr(err, ErrInsufficientBalance)
	}
	if err := p.payFromVault(tx, seller, quote.Payout); err != nil {
		return err
	}

	remaining := amount
	closed := 0
	for _, h := range unlocked {
		if remaining == 0 {
			break
		}
		take := min(h.order.TokenAmount, remaining)
		h.order.TokenAmount -= take
		remaining -= take
		if h.order.TokenAmount == 0 {
			if err := tx.Close(h.addr, seller); err != nil {
				return ledgerErr(err, ErrInvalidAccount)
			}
			closed++
			continue
		}
		if err := p.saveOrder(tx, h.addr, h.order); err != nil {
			return err
		}
	}

	if state.TotalBurned, err = checkedAdd(state.TotalBurned, quote.Burn); err != nil {
		return err
	}
	if err := p.saveState(tx, state); err != nil {
		return err
	}

	p.logger.Debug("Sell consumed orders",
		zap.String("seller", seller.String()),
		zap.Uint64("amount", amount),
		zap.Int("closed", closed))
	tx.Logf("Sold %d tokens for %d lamports | Burned: %d", amount, quote.Payout, quote.Burn)
	tx.Emit(events.SellExecutedEvent{
		BaseEvent:    events.NewBase(events.SellExecuted, tx.Now()),
		Seller:       seller,
		Amount:       amount,
		Burned:       quote.Burn,
		Payout:       quote.Payout,
		OrdersClosed: closed,
	})
	return nil
}

// unlockedOrders validates the passed orders and returns the unlocked ones in
// consumption order. Locked orders are never touched.
func (p *Program) unlockedOrders(tx *ledger.Tx, seller solana.PublicKey, addrs []solana.PublicKey) ([]heldOrder, error) {
	now := tx.Now()
	seen := make(map[solana.PublicKey]bool, len(addrs))
	var out []heldOrder
	for _, addr := range addrs {
		if seen[addr] {
			return nil, fmt.Errorf("%w: duplicate order %s", ErrInvalidAccount, addr)
		}
		seen[addr] = true
		o, err := p.loadOrder(tx, addr)
		if err != nil {
			return nil, err
		}
		if !o.Buyer.Equals(seller) {
			return nil, fmt.Errorf("%w: order %s belongs to %s", ErrInvalidAccount, addr, o.Buyer)
		}
		if o.Unlocked(now) {
			out = append(out, heldOrder{addr: addr, order: o})
		}
	}
	SortOrders(out, func(h heldOrder) (*schema.PurchaseOrder, solana.PublicKey) { return h.order, h.addr })
	return out, nil
}

// SortOrders orders records oldest first, by unlock time, then by address.
// Clients must use the same order to predict which records a sell consumes.
func SortOrders[T any](items []T, key func(T) (*schema.PurchaseOrder, solana.PublicKey)) {
	sort.SliceStable(items, func(i, j int) bool {
		oi, ai := key(items[i])
		oj, aj := key(items[j])
		if oi.CreatedAt != oj.CreatedAt {
			return oi.CreatedAt < oj.CreatedAt
		}
		if oi.UnlockTime != oj.UnlockTime {
			return oi.UnlockTime < oj.UnlockTime
		}
		return ai.String() < aj.String()
	})
}

func curveErr(err error) error {
	switch {
	case errors.Is(err, curve.ErrZeroPayment), errors.Is(err, curve.ErrZeroAmount):
		return ErrInvalidAmount
	case errors.Is(err, curve.ErrPriceFloor):
		return ErrInvalidPrice
	}
	return ErrArithmeticOverflow
}
