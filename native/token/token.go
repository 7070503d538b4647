package token

import (
	"errors"
	"math/big"

	"xvfi/core/types"
	"xvfi/crypto"
)

var (
	ErrNilState              = errors.New("token ledger: state not configured")
	ErrInvalidAmount         = errors.New("token ledger: amount must be positive")
	ErrInvalidAddress        = errors.New("token ledger: address must not be zero")
	ErrInsufficientBalance   = errors.New("token ledger: insufficient balance")
	ErrInsufficientAllowance = errors.New("token ledger: insufficient allowance")
)

type ledgerState interface {
	GetAccount(addr crypto.Address) (*types.Account, error)
	PutAccount(addr crypto.Address, account *types.Account) error
	Allowance(owner, spender crypto.Address) (*big.Int, error)
	SetAllowance(owner, spender crypto.Address, amount *big.Int) error
}

// Ledger tracks XVD balances and allowances. Balance moves never wrap: any
// underflow surfaces as an error and leaves state untouched. Callers are
// responsible for serializing mutations; the collateral engine holds the
// only mint/burn capability by construction.
type Ledger struct {
	state ledgerState
}

// NewLedger constructs a token ledger over the given state backend.
func NewLedger(state ledgerState) *Ledger {
	return &Ledger{state: state}
}

// BalanceOf returns the XVD balance for the address.
func (l *Ledger) BalanceOf(addr crypto.Address) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, ErrNilState
	}
	acc, err := l.loadAccount(addr)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(acc.BalanceXVD), nil
}

// Mint credits freshly created XVD to the recipient.
func (l *Ledger) Mint(to crypto.Address, amount *big.Int) error {
	if l == nil || l.state == nil {
		return ErrNilState
	}
	if to.IsZero() {
		return ErrInvalidAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	acc, err := l.loadAccount(to)
	if err != nil {
		return err
	}
	acc.BalanceXVD = new(big.Int).Add(acc.BalanceXVD, amount)
	return l.state.PutAccount(to, acc)
}

// Burn destroys XVD held by the address.
func (l *Ledger) Burn(from crypto.Address, amount *big.Int) error {
	if l == nil || l.state == nil {
		return ErrNilState
	}
	if from.IsZero() {
		return ErrInvalidAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	acc, err := l.loadAccount(from)
	if err != nil {
		return err
	}
	if acc.BalanceXVD.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	acc.BalanceXVD = new(big.Int).Sub(acc.BalanceXVD, amount)
	return l.state.PutAccount(from, acc)
}

// Transfer moves XVD between accounts.
func (l *Ledger) Transfer(from, to crypto.Address, amount *big.Int) error {
	if l == nil || l.state == nil {
		return ErrNilState
	}
	if from.IsZero() || to.IsZero() {
		return ErrInvalidAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	fromAcc, err := l.loadAccount(from)
	if err != nil {
		return err
	}
	if fromAcc.BalanceXVD.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	toAcc, err := l.loadAccount(to)
	if err != nil {
		return err
	}
	fromAcc.BalanceXVD = new(big.Int).Sub(fromAcc.BalanceXVD, amount)
	toAcc.BalanceXVD = new(big.Int).Add(toAcc.BalanceXVD, amount)
	if err := l.state.PutAccount(from, fromAcc); err != nil {
		return err
	}
	return l.state.PutAccount(to, toAcc)
}

// Approve sets the allowance the spender may move out of the owner's balance.
func (l *Ledger) Approve(owner, spender crypto.Address, amount *big.Int) error {
	if l == nil || l.state == nil {
		return ErrNilState
	}
	if owner.IsZero() || spender.IsZero() {
		return ErrInvalidAddress
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	return l.state.SetAllowance(owner, spender, new(big.Int).Set(amount))
}

// Allowance reports the remaining amount the spender may move for the owner.
func (l *Ledger) Allowance(owner, spender crypto.Address) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, ErrNilState
	}
	allowance, err := l.state.Allowance(owner, spender)
	if err != nil {
		return nil, err
	}
	if allowance == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(allowance), nil
}

// TransferFrom moves XVD out of the owner's balance against the spender's
// allowance, decrementing it by the amount moved.
func (l *Ledger) TransferFrom(spender, from, to crypto.Address, amount *big.Int) error {
	if l == nil || l.state == nil {
		return ErrNilState
	}
	if spender.IsZero() {
		return ErrInvalidAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	allowance, err := l.Allowance(from, spender)
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 {
		return ErrInsufficientAllowance
	}
	if err := l.Transfer(from, to, amount); err != nil {
		return err
	}
	return l.state.SetAllowance(from, spender, new(big.Int).Sub(allowance, amount))
}

func (l *Ledger) loadAccount(addr crypto.Address) (*types.Account, error) {
	acc, err := l.state.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		acc = &types.Account{}
	}
	acc.EnsureDefaults()
	return acc, nil
}
