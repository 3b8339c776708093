// internal/events/types.go
package events

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

// EventType represents the type of event.
type EventType string

const (
	// Program events, emitted once the transaction commits
	ProgramInitialized EventType = "program.initialized"
	BuyExecuted        EventType = "buy.executed"
	SellExecuted       EventType = "sell.executed"
	AirdropExecuted    EventType = "airdrop.executed"
	CycleReset         EventType = "airdrop.cycle_reset"
	PotUpdated         EventType = "airdrop.pot_updated"
	TokenMintUpdated   EventType = "token.mint_updated"
	VaultWithdrawn     EventType = "vault.withdrawn"

	// Scheduler events
	CycleCompleted EventType = "scheduler.cycle_completed"

	// All subscribes a handler to every event type.
	All EventType = "*"
)

// Event is the base interface for all events.
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common fields for all events.
type BaseEvent struct {
	EventType EventType `json:"type"`
	EventTime time.Time `json:"time"`
}

// Type returns the event type.
func (e BaseEvent) Type() EventType {
	return e.EventType
}

// Timestamp returns when the event occurred.
func (e BaseEvent) Timestamp() time.Time {
	return e.EventTime
}

// NewBase stamps an event with ledger time.
func NewBase(t EventType, unix int64) BaseEvent {
	return BaseEvent{EventType: t, EventTime: time.Unix(unix, 0).UTC()}
}

type ProgramInitializedEvent struct {
	BaseEvent
	Authority       solana.PublicKey `json:"authority"`
	TokenMint       solana.PublicKey `json:"token_mint"`
	InitialPrice    uint64           `json:"initial_price"`
	NextAirdropTime int64            `json:"next_airdrop_time"`
}

// BuyExecutedEvent is emitted for every committed purchase.
type BuyExecutedEvent struct {
	BaseEvent
	Buyer           solana.PublicKey `json:"buyer"`
	Order           solana.PublicKey `json:"order"`
	SolAmount       uint64           `json:"sol_amount"`
	TokenAmount     uint64           `json:"token_amount"`
	Burned          uint64           `json:"burned"`
	PotContribution uint64           `json:"pot_contribution"`
	Price           uint64           `json:"price"`
	TotalBuys       uint64           `json:"total_buys"`
	UnlockTime      int64            `json:"unlock_time"`
}

// SellExecutedEvent is emitted for every committed sell.
type SellExecutedEvent struct {
	BaseEvent
	Seller       solana.PublicKey `json:"seller"`
	Amount       uint64           `json:"amount"`
	Burned       uint64           `json:"burned"`
	Payout       uint64           `json:"payout"`
	OrdersClosed int              `json:"orders_closed"`
}

// AirdropExecutedEvent is emitted when a cycle pays out.
type AirdropExecutedEvent struct {
	BaseEvent
	Winner        solana.PublicKey `json:"winner"`
	WinnerAccount solana.PublicKey `json:"winner_account"`
	Amount        uint64           `json:"amount"`
	CycleTime     int64            `json:"cycle_time"`
}

// CycleResetEvent is emitted when the airdrop cycle advances.
type CycleResetEvent struct {
	BaseEvent
	NextAirdropTime int64 `json:"next_airdrop_time"`
	Paid            bool  `json:"paid"`
}

type PotUpdatedEvent struct {
	BaseEvent
	Amount uint64 `json:"amount"`
}

type TokenMintUpdatedEvent struct {
	BaseEvent
	OldMint solana.PublicKey `json:"old_mint"`
	NewMint solana.PublicKey `json:"new_mint"`
}

type VaultWithdrawnEvent struct {
	BaseEvent
	Recipient solana.PublicKey `json:"recipient"`
	Amount    uint64           `json:"amount"`
}

// CycleCompletedEvent is published by the scheduler after each wake.
type CycleCompletedEvent struct {
	BaseEvent
	Outcome string           `json:"outcome"`
	Winner  solana.PublicKey `json:"winner,omitempty"`
	Amount  uint64           `json:"amount,omitempty"`
	Error   string           `json:"error,omitempty"`
}
