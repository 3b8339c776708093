// ==============================================
// File: internal/ledger/genesis.go
// ==============================================
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
)

// Genesis writes accounts outside of any program, the way a local validator
// is seeded before use. Writes go through the bank lock so they are ordered
// with transactions.
func (b *Bank) Genesis(ctx context.Context, accounts ...*Account) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.genesisLocked(ctx, accounts...)
}

func (b *Bank) genesisLocked(ctx context.Context, accounts ...*Account) error {
	cs := ChangeSet{Slot: b.slot}
	for _, acc := range accounts {
		cs.Put = append(cs.Put, acc.Clone())
	}
	if err := b.store.Apply(ctx, cs); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Airdrop credits lamports to a system account.
func (b *Bank) Airdrop(ctx context.Context, to solana.PublicKey, lamports uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	acc, err := b.store.Get(ctx, to)
	if errors.Is(err, ErrAccountNotFound) {
		acc = &Account{Address: to, Owner: solana.SystemProgramID}
	} else if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	acc.Lamports += lamports
	b.logger.Debug("Airdrop", zap.String("to", to.String()), zap.Uint64("lamports", lamports))
	return b.genesisLocked(ctx, acc)
}

// CreateMint installs an initialized mint.
func (b *Bank) CreateMint(ctx context.Context, mint solana.PublicKey, authority solana.PublicKey, decimals uint8) error {
	data, err := (&Mint{MintAuthority: &authority, Decimals: decimals, IsInitialized: true}).Encode()
	if err != nil {
		return err
	}
	return b.Genesis(ctx, &Account{
		Address:  mint,
		Owner:    solana.TokenProgramID,
		Lamports: MinimumBalance(MintSize),
		Data:     data,
	})
}

// SetTokenBalance installs (or overwrites) the associated token account of
// wallet with amount. Supply is not adjusted.
func (b *Bank) SetTokenBalance(ctx context.Context, wallet, mint solana.PublicKey, amount uint64) (solana.PublicKey, error) {
	ata, _, err := solana.FindAssociatedTokenAddress(wallet, mint)
	if err != nil {
		return solana.PublicKey{}, err
	}
	data, err := (&TokenAccount{Mint: mint, Owner: wallet, Amount: amount}).Encode()
	if err != nil {
		return solana.PublicKey{}, err
	}
	err = b.Genesis(ctx, &Account{
		Address:  ata,
		Owner:    solana.TokenProgramID,
		Lamports: MinimumBalance(TokenAccountSize),
		Data:     data,
	})
	return ata, err
}
