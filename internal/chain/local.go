// ==============================================
// File: internal/chain/local.go
// ==============================================
package chain

import (
	"context"
	"errors"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/fossr-labs/fossr/internal/events"
	"github.com/fossr-labs/fossr/internal/ledger"
	"github.com/fossr-labs/fossr/internal/wallet"
)

// Local runs transactions against an in-process ledger.Bank.
type Local struct {
	bank   *ledger.Bank
	logger *zap.Logger
}

// NewLocal wraps bank. When bus is not nil every event of a committed
// transaction is published on it, in emission order.
func NewLocal(bank *ledger.Bank, bus *events.Bus, logger *zap.Logger) *Local {
	l := &Local{bank: bank, logger: logger.Named("chain-local")}
	if bus != nil {
		bank.Subscribe(func(r *ledger.Receipt) {
			for _, raw := range r.Events {
				ev, ok := raw.(events.Event)
				if !ok {
					continue
				}
				if err := bus.Publish(ev); err != nil {
					l.logger.Warn("Event dropped",
						zap.String("event_type", string(ev.Type())),
						zap.String("signature", r.Signature),
						zap.Error(err))
				}
			}
		})
	}
	return l
}

// Bank exposes the underlying ledger (genesis helpers, clock).
func (l *Local) Bank() *ledger.Bank { return l.bank }

func (l *Local) Send(ctx context.Context, signers []*wallet.Wallet, ixs ...solana.Instruction) (string, error) {
	if len(signers) == 0 {
		return "", errors.New("no signers")
	}
	receipt, err := l.bank.Process(ctx, signerKeys(signers), ixs...)
	if err != nil {
		var txErr *ledger.TxError
		if errors.As(err, &txErr) {
			l.logger.Debug("Transaction aborted",
				zap.Int("instruction", txErr.Index),
				zap.Strings("logs", txErr.Logs),
				zap.Error(txErr.Err))
		}
		return "", err
	}
	return receipt.Signature, nil
}

func (l *Local) Account(ctx context.Context, addr solana.PublicKey) (*ledger.Account, error) {
	return l.bank.Store().Get(ctx, addr)
}

func (l *Local) ProgramAccounts(ctx context.Context, owner solana.PublicKey, filters ...ledger.Filter) ([]*ledger.Account, error) {
	return l.bank.Store().Scan(ctx, owner, filters...)
}

func (l *Local) Now(context.Context) (time.Time, error) {
	return l.bank.Clock().Now(), nil
}

var _ Client = (*Local)(nil)
