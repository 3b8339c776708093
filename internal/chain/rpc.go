// ==============================================
// File: internal/chain/rpc.go
// ==============================================
package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/fossr-labs/fossr/internal/ledger"
	"github.com/fossr-labs/fossr/internal/program"
	"github.com/fossr-labs/fossr/internal/wallet"
)

var errPending = errors.New("transaction not confirmed yet")

// RPC – тонкий адаптер к задеплоенной программе через solana-go JSON-RPC.
type RPC struct {
	rpc            *rpc.Client
	logger         *zap.Logger
	commitment     rpc.CommitmentType
	pollInterval   time.Duration
	confirmTimeout time.Duration
}

// RPCOption configures an RPC client.
type RPCOption func(*RPC)

// WithCommitment sets the commitment used for reads and confirmation.
func WithCommitment(c rpc.CommitmentType) RPCOption {
	return func(r *RPC) { r.commitment = c }
}

// WithConfirmTimeout bounds how long Send waits for confirmation.
func WithConfirmTimeout(d time.Duration) RPCOption {
	return func(r *RPC) { r.confirmTimeout = d }
}

// NewRPC создаёт клиент, принимая RPC URL и логгер через dependency injection.
func NewRPC(rpcURL string, logger *zap.Logger, opts ...RPCOption) *RPC {
	r := &RPC{
		rpc:            rpc.New(rpcURL),
		logger:         logger.Named("chain-rpc"),
		commitment:     rpc.CommitmentConfirmed,
		pollInterval:   500 * time.Millisecond,
		confirmTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Send builds, signs, submits and confirms a transaction. Preflight
// simulation is on, so program rejections come back before anything lands.
func (c *RPC) Send(ctx context.Context, signers []*wallet.Wallet, ixs ...solana.Instruction) (string, error) {
	if len(signers) == 0 {
		return "", errors.New("no signers")
	}
	latest, err := c.rpc.GetLatestBlockhash(ctx, c.commitment)
	if err != nil {
		c.logger.Debug("GetLatestBlockhash error", zap.Error(err))
		return "", fmt.Errorf("%w: get recent blockhash: %v", program.ErrTransient, err)
	}

	tx, err := solana.NewTransaction(ixs, latest.Value.Blockhash, solana.TransactionPayer(signers[0].PublicKey))
	if err != nil {
		return "", fmt.Errorf("create transaction: %w", err)
	}
	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		for _, w := range signers {
			if key.Equals(w.PublicKey) {
				return &w.PrivateKey
			}
		}
		return nil
	}); err != nil {
		return "", fmt.Errorf("sign transaction: %w", err)
	}

	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: c.commitment,
	})
	if err != nil {
		classified := classifySendError(err)
		c.logger.Debug("SendTransaction error", zap.Error(err), zap.NamedError("classified", classified))
		return "", classified
	}
	c.logger.Debug("Transaction sent", zap.String("signature", sig.String()))

	if err := c.waitForConfirmation(ctx, sig); err != nil {
		return sig.String(), err
	}
	return sig.String(), nil
}

// waitForConfirmation polls signature status with exponential backoff.
func (c *RPC) waitForConfirmation(ctx context.Context, sig solana.Signature) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.pollInterval
	policy.MaxInterval = 4 * c.pollInterval

	op := func() (struct{}, error) {
		res, err := c.rpc.GetSignatureStatuses(ctx, false, sig)
		if err != nil {
			c.logger.Warn("Error getting signature statuses", zap.Error(err))
			return struct{}{}, err
		}
		if res == nil || len(res.Value) == 0 || res.Value[0] == nil {
			return struct{}{}, errPending
		}
		status := res.Value[0]
		if status.Err != nil {
			if perr, ok := programErrorFromStatus(status.Err); ok {
				return struct{}{}, backoff.Permanent(&RemoteError{Err: perr})
			}
			return struct{}{}, backoff.Permanent(fmt.Errorf("transaction %s failed: %v", sig, status.Err))
		}
		if status.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
			status.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
			return struct{}{}, nil
		}
		return struct{}{}, errPending
	}

	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(policy),
		backoff.WithMaxElapsedTime(c.confirmTimeout))
	if err == nil {
		return nil
	}
	var remote *RemoteError
	if errors.As(err, &remote) {
		return err
	}
	if errors.Is(err, errPending) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: confirmation of %s timed out", program.ErrTransient, sig)
	}
	return err
}

func (c *RPC) Account(ctx context.Context, addr solana.PublicKey) (*ledger.Account, error) {
	res, err := c.rpc.GetAccountInfoWithOpts(ctx, addr, &rpc.GetAccountInfoOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: c.commitment,
	})
	if errors.Is(err, rpc.ErrNotFound) || (err == nil && (res == nil || res.Value == nil)) {
		return nil, fmt.Errorf("%w: %s", ledger.ErrAccountNotFound, addr)
	}
	if err != nil {
		c.logger.Debug("GetAccountInfo error",
			zap.String("pubkey", addr.String()),
			zap.Error(err))
		return nil, fmt.Errorf("%w: get account %s: %v", program.ErrTransient, addr, err)
	}
	return toAccount(addr, res.Value), nil
}

func (c *RPC) ProgramAccounts(ctx context.Context, owner solana.PublicKey, filters ...ledger.Filter) ([]*ledger.Account, error) {
	opts := rpc.GetProgramAccountsOpts{
		Commitment: c.commitment,
		Encoding:   solana.EncodingBase64,
	}
	for _, f := range filters {
		if f.DataSize > 0 {
			opts.Filters = append(opts.Filters, rpc.RPCFilter{DataSize: uint64(f.DataSize)})
		}
		if len(f.Bytes) > 0 {
			opts.Filters = append(opts.Filters, rpc.RPCFilter{
				Memcmp: &rpc.RPCFilterMemcmp{
					Offset: uint64(f.Offset),
					Bytes:  f.Bytes,
				},
			})
		}
	}

	res, err := c.rpc.GetProgramAccountsWithOpts(ctx, owner, &opts)
	if err != nil {
		c.logger.Debug("GetProgramAccountsWithOpts error",
			zap.String("program_id", owner.String()),
			zap.Error(err))
		return nil, fmt.Errorf("%w: get program accounts: %v", program.ErrTransient, err)
	}
	out := make([]*ledger.Account, 0, len(res))
	for _, keyed := range res {
		if keyed == nil || keyed.Account == nil {
			continue
		}
		out = append(out, toAccount(keyed.Pubkey, keyed.Account))
	}
	return out, nil
}

// Now returns the block time of the latest slot at the client's commitment.
func (c *RPC) Now(ctx context.Context) (time.Time, error) {
	slot, err := c.rpc.GetSlot(ctx, c.commitment)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: get slot: %v", program.ErrTransient, err)
	}
	bt, err := c.rpc.GetBlockTime(ctx, slot)
	if err != nil || bt == nil {
		return time.Time{}, fmt.Errorf("%w: get block time for slot %d: %v", program.ErrTransient, slot, err)
	}
	return bt.Time(), nil
}

func toAccount(addr solana.PublicKey, acc *rpc.Account) *ledger.Account {
	out := &ledger.Account{
		Address:  addr,
		Owner:    acc.Owner,
		Lamports: acc.Lamports,
	}
	if acc.Data != nil {
		out.Data = acc.Data.GetBinary()
	}
	return out
}

var _ Client = (*RPC)(nil)
