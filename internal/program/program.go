// ==============================================
// File: internal/program/program.go
// ==============================================
package program

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/fossr-labs/fossr/internal/ledger"
	"github.com/fossr-labs/fossr/internal/program/schema"
)

// Program is the token sale program. Every handler re-reads the accounts it
// needs from the transaction, so its checks run against committed state in
// the same atomic unit as its writes.
type Program struct {
	id     solana.PublicKey
	addrs  schema.Addresses
	params Params
	logger *zap.Logger
}

// New creates the program for programID.
func New(programID solana.PublicKey, params Params, logger *zap.Logger) (*Program, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid program params: %w", err)
	}
	addrs, err := schema.DeriveAddresses(programID)
	if err != nil {
		return nil, err
	}
	return &Program{
		id:     programID,
		addrs:  addrs,
		params: params,
		logger: logger.Named("program"),
	}, nil
}

func (p *Program) ID() solana.PublicKey { return p.id }

func (p *Program) Addresses() schema.Addresses { return p.addrs }

func (p *Program) Params() Params { return p.params }

// Execute dispatches one instruction.
func (p *Program) Execute(tx *ledger.Tx, ix solana.Instruction) error {
	data, err := ix.Data()
	if err != nil {
		return ErrUnknownInstruction
	}
	name, ok := InstructionName(data)
	if !ok {
		return p.fail(tx, ErrUnknownInstruction)
	}
	tx.Logf("Instruction: %s", displayName(name))

	accts := accountList(ix.Accounts())
	switch name {
	case NameInitialize:
		err = p.initialize(tx, accts, data)
	case NameInitializeVault:
		err = p.initializeVault(tx, accts)
	case NameBuyTokens:
		err = p.buyTokens(tx, accts, data)
	case NameSellTokens:
		err = p.sellTokens(tx, accts, data)
	case NameAirdrop:
		err = p.airdrop(tx, accts)
	case NameResetAirdropCycle:
		err = p.resetAirdropCycle(tx, accts)
	case NameUpdateAirdropSettings:
		err = p.updateAirdropSettings(tx, accts, data)
	case NameUpdateTokenMint:
		err = p.updateTokenMint(tx, accts)
	case NameWithdrawVault:
		err = p.withdrawVault(tx, accts, data)
	}
	if err != nil {
		p.logger.Debug("Instruction failed", zap.String("instruction", name), zap.Error(err))
		return p.fail(tx, err)
	}
	return nil
}

func (p *Program) fail(tx *ledger.Tx, err error) error {
	var perr *Error
	if errors.As(err, &perr) {
		tx.Logf("AnchorError occurred. Error Code: %s. Error Number: %d. Error Message: %s.", perr.Name, perr.Code, perr.Msg)
	}
	return err
}

func displayName(name string) string {
	parts := strings.Split(name, "_")
	for i, part := range parts {
		if part != "" {
			parts[i] = strings.ToUpper(part[:1]) + part[1:]
		}
	}
	return strings.Join(parts, "")
}

// accountList gives bounds-checked access to instruction accounts.
type accountList []*solana.AccountMeta

func (a accountList) at(i int) (solana.PublicKey, error) {
	if i >= len(a) {
		return solana.PublicKey{}, fmt.Errorf("%w: missing account #%d", ErrInvalidAccount, i)
	}
	return a[i].PublicKey, nil
}

func (a accountList) from(i int) []solana.PublicKey {
	if i >= len(a) {
		return nil
	}
	out := make([]solana.PublicKey, 0, len(a)-i)
	for _, m := range a[i:] {
		out = append(out, m.PublicKey)
	}
	return out
}

func (a accountList) want(n int) error {
	if len(a) < n {
		return fmt.Errorf("%w: expected %d accounts, got %d", ErrInvalidAccount, n, len(a))
	}
	return nil
}

func (p *Program) stateSeeds() [][]byte {
	return [][]byte{schema.SeedProgramState, {p.addrs.StateBump}}
}

func (p *Program) loadState(tx *ledger.Tx, addr solana.PublicKey) (*schema.ProgramState, error) {
	if !addr.Equals(p.addrs.ProgramState) {
		return nil, fmt.Errorf("%w: program state %s", ErrInvalidAccount, addr)
	}
	acc, err := tx.Account(addr)
	if err != nil {
		return nil, ledgerErr(err, ErrInvalidAccount)
	}
	if !acc.Owner.Equals(p.id) {
		return nil, fmt.Errorf("%w: program state owner %s", ErrInvalidAccount, acc.Owner)
	}
	state, err := schema.DecodeProgramState(acc.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAccount, err)
	}
	return state, nil
}

func (p *Program) saveState(tx *ledger.Tx, state *schema.ProgramState) error {
	data, err := state.Encode()
	if err != nil {
		return err
	}
	return tx.SetData(p.addrs.ProgramState, data)
}

func (p *Program) requireAuthority(tx *ledger.Tx, state *schema.ProgramState, authority solana.PublicKey) error {
	if !authority.Equals(state.Authority) || !tx.IsSigner(authority) {
		return ErrUnauthorized
	}
	return nil
}

func (p *Program) loadOrder(tx *ledger.Tx, addr solana.PublicKey) (*schema.PurchaseOrder, error) {
	acc, err := tx.Account(addr)
	if err != nil {
		return nil, ledgerErr(err, ErrInvalidAccount)
	}
	if !acc.Owner.Equals(p.id) {
		return nil, fmt.Errorf("%w: order owner %s", ErrInvalidAccount, acc.Owner)
	}
	o, err := schema.DecodePurchaseOrder(acc.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAccount, err)
	}
	return o, nil
}

func (p *Program) saveOrder(tx *ledger.Tx, addr solana.PublicKey, o *schema.PurchaseOrder) error {
	data, err := o.Encode()
	if err != nil {
		return err
	}
	return tx.SetData(addr, data)
}

// ledgerErr maps runtime failures onto program errors where the program has
// a more precise answer, and marks store failures transient.
func ledgerErr(err error, fallback *Error) error {
	switch {
	case errors.Is(err, ledger.ErrStoreUnavailable):
		return fmt.Errorf("%w: %v", ErrTransient, err)
	case errors.Is(err, ledger.ErrAccountInUse):
		return fmt.Errorf("%w: %v", ErrAccountAlreadyInUse, err)
	case errors.Is(err, ledger.ErrInsufficientLamports):
		return fmt.Errorf("%w: %v", ErrInsufficientFunds, err)
	case errors.Is(err, ledger.ErrInsufficientTokens):
		return fmt.Errorf("%w: %v", ErrInsufficientBalance, err)
	case errors.Is(err, ledger.ErrMintAuthority):
		return fmt.Errorf("%w: %v", ErrInvalidMint, err)
	}
	return fmt.Errorf("%w: %v", fallback, err)
}

func checkedAdd(a, b uint64) (uint64, error) {
	if b > math.MaxUint64-a {
		return 0, ErrArithmeticOverflow
	}
	return a + b, nil
}
