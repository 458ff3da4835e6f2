package token

import (
	"errors"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrInsufficientBalance indicates a transfer or burn exceeds the
	// holder's balance.
	ErrInsufficientBalance = errors.New("token: insufficient balance")
	// ErrInvalidAmount indicates a zero, negative, or nil amount.
	ErrInvalidAmount = errors.New("token: amount must be positive")
)

// Token is an in-process fungible balance book with standard mint, burn, and
// transfer semantics. It backs the debt unit and collateral assets when the
// engine runs without external token contracts.
type Token struct {
	mu       sync.RWMutex
	symbol   string
	balances map[common.Address]*big.Int
	supply   *big.Int
}

// New constructs an empty token with the given symbol.
func New(symbol string) *Token {
	return &Token{
		symbol:   strings.ToUpper(strings.TrimSpace(symbol)),
		balances: make(map[common.Address]*big.Int),
		supply:   big.NewInt(0),
	}
}

// Symbol returns the token's symbol.
func (t *Token) Symbol() string { return t.symbol }

// Mint credits amount to the holder and grows total supply.
func (t *Token) Mint(to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.balances[to] = new(big.Int).Add(t.balance(to), amount)
	t.supply = new(big.Int).Add(t.supply, amount)
	return nil
}

// Burn destroys amount from the holder's balance and shrinks total supply.
func (t *Token) Burn(from common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	balance := t.balance(from)
	if balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	t.balances[from] = new(big.Int).Sub(balance, amount)
	t.supply = new(big.Int).Sub(t.supply, amount)
	return nil
}

// Transfer moves amount between holders. No partial transfers: the call
// either applies fully or fails.
func (t *Token) Transfer(from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	balance := t.balance(from)
	if balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	t.balances[from] = new(big.Int).Sub(balance, amount)
	t.balances[to] = new(big.Int).Add(t.balance(to), amount)
	return nil
}

// BalanceOf returns the holder's balance.
func (t *Token) BalanceOf(holder common.Address) *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return new(big.Int).Set(t.balance(holder))
}

// TotalSupply returns the outstanding supply.
func (t *Token) TotalSupply() *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return new(big.Int).Set(t.supply)
}

func (t *Token) balance(holder common.Address) *big.Int {
	balance := t.balances[holder]
	if balance == nil {
		return big.NewInt(0)
	}
	return balance
}
