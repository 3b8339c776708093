// ==============================================
// File: internal/chain/client.go
// ==============================================
package chain

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/fossr-labs/fossr/internal/ledger"
	"github.com/fossr-labs/fossr/internal/wallet"
)

// Client is what off-chain callers need from a ledger: submit a signed
// transaction and read committed accounts.
//
// Send returns an error that unwraps to a *program.Error when the program
// rejected the transaction, and to program.ErrTransient when the ledger
// could not be reached. Nothing else is retried by callers.
type Client interface {
	// Send submits ixs as one atomic transaction. signers[0] pays fees.
	Send(ctx context.Context, signers []*wallet.Wallet, ixs ...solana.Instruction) (string, error)
	// Account returns ledger.ErrAccountNotFound for missing accounts.
	Account(ctx context.Context, addr solana.PublicKey) (*ledger.Account, error)
	// ProgramAccounts lists accounts owned by owner matching all filters.
	ProgramAccounts(ctx context.Context, owner solana.PublicKey, filters ...ledger.Filter) ([]*ledger.Account, error)
	// Now returns the ledger's notion of the current time.
	Now(ctx context.Context) (time.Time, error)
}

func signerKeys(signers []*wallet.Wallet) []solana.PublicKey {
	keys := make([]solana.PublicKey, 0, len(signers))
	for _, w := range signers {
		keys = append(keys, w.PublicKey)
	}
	return keys
}
