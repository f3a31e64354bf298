package assets

import (
	"context"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"

	"burnrouter/native/common"
)

// Ledger is the storage a Token keeps its balances and allowances in.
type Ledger interface {
	Balance(asset, owner [20]byte) (*big.Int, error)
	SetBalance(asset, owner [20]byte, amount *big.Int) error
	Allowance(asset, owner, spender [20]byte) (*big.Int, error)
	SetAllowance(asset, owner, spender [20]byte, amount *big.Int) error
}

// Token is a plain ledger-backed asset.
type Token struct {
	id       [20]byte
	symbol   string
	decimals uint8
	ledger   Ledger
}

func NewToken(id [20]byte, symbol string, decimals uint8, ledger Ledger) *Token {
	return &Token{id: id, symbol: symbol, decimals: decimals, ledger: ledger}
}

func (t *Token) ID() [20]byte    { return t.id }
func (t *Token) Symbol() string  { return t.symbol }
func (t *Token) Decimals() uint8 { return t.decimals }

func (t *Token) BalanceOf(owner [20]byte) (*big.Int, error) {
	return t.ledger.Balance(t.id, owner)
}

func (t *Token) Allowance(owner, spender [20]byte) (*big.Int, error) {
	return t.ledger.Allowance(t.id, owner, spender)
}

func (t *Token) Transfer(_ context.Context, from, to [20]byte, amount *big.Int) error {
	return t.move(from, to, amount)
}

func (t *Token) TransferFrom(_ context.Context, spender, from, to [20]byte, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	allowance, err := t.ledger.Allowance(t.id, from, spender)
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientAllowance, allowance, amount)
	}
	if err := t.move(from, to, amount); err != nil {
		return err
	}
	return t.ledger.SetAllowance(t.id, from, spender, new(big.Int).Sub(allowance, amount))
}

func (t *Token) Approve(_ context.Context, owner, spender [20]byte, amount *big.Int) error {
	if common.IsZero(owner) || common.IsZero(spender) {
		return common.ErrZeroAddress
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	return t.ledger.SetAllowance(t.id, owner, spender, amount)
}

// Mint credits freshly issued units to the account.
func (t *Token) Mint(to [20]byte, amount *big.Int) error {
	if common.IsZero(to) {
		return common.ErrZeroAddress
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	balance, err := t.ledger.Balance(t.id, to)
	if err != nil {
		return err
	}
	next, err := addChecked(balance, amount)
	if err != nil {
		return err
	}
	return t.ledger.SetBalance(t.id, to, next)
}

func (t *Token) move(from, to [20]byte, amount *big.Int) error {
	if common.IsZero(to) {
		return common.ErrZeroAddress
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	if amount.Sign() == 0 || from == to {
		return nil
	}
	fromBalance, err := t.ledger.Balance(t.id, from)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, fromBalance, amount)
	}
	toBalance, err := t.ledger.Balance(t.id, to)
	if err != nil {
		return err
	}
	credited, err := addChecked(toBalance, amount)
	if err != nil {
		return err
	}
	if err := t.ledger.SetBalance(t.id, from, new(big.Int).Sub(fromBalance, amount)); err != nil {
		return err
	}
	return t.ledger.SetBalance(t.id, to, credited)
}

func checkAmount(amount *big.Int) error {
	if amount == nil {
		return fmt.Errorf("assets: nil amount")
	}
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	if _, overflow := uint256.FromBig(amount); overflow {
		return ErrAmountOverflow
	}
	return nil
}

func addChecked(a, b *big.Int) (*big.Int, error) {
	x, overflow := uint256.FromBig(a)
	if overflow {
		return nil, ErrAmountOverflow
	}
	y, overflow := uint256.FromBig(b)
	if overflow {
		return nil, ErrAmountOverflow
	}
	sum, carry := new(uint256.Int).AddOverflow(x, y)
	if carry {
		return nil, ErrAmountOverflow
	}
	return sum.ToBig(), nil
}
