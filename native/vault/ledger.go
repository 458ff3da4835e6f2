package vault

import (
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrInsufficientCollateral indicates a debit would push a collateral
	// balance negative.
	ErrInsufficientCollateral = errors.New("vault: insufficient collateral")
	// ErrInsufficientDebt indicates a repayment exceeds the outstanding
	// minted debt.
	ErrInsufficientDebt = errors.New("vault: insufficient debt")
	// ErrInvalidAmount indicates a zero, negative, or nil amount.
	ErrInvalidAmount = errors.New("vault: amount must be positive")
)

// Valuer resolves the USD value of a collateral amount for a registered
// asset. Implemented by oracle.Adapter.
type Valuer interface {
	USDValue(symbol string, amount *big.Int) (*big.Int, error)
	Symbols() []string
}

// Position maintains the collateral and minted-debt balances for a single
// account. Amounts are 1e18-scaled big integers, matching the engine's
// canonical precision.
type Position struct {
	Address    common.Address
	Collateral map[string]*big.Int
	Debt       *big.Int
}

// Clone returns a deep copy of the position.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	clone := &Position{Address: p.Address, Collateral: make(map[string]*big.Int, len(p.Collateral))}
	for symbol, balance := range p.Collateral {
		if balance != nil {
			clone.Collateral[symbol] = new(big.Int).Set(balance)
		}
	}
	if p.Debt != nil {
		clone.Debt = new(big.Int).Set(p.Debt)
	}
	return clone
}

// Ledger is the exclusive owner of all account positions. It is a pure state
// container: validation of asset registration and solvency policy live with
// the engine and evaluator.
type Ledger struct {
	mu       sync.RWMutex
	valuer   Valuer
	accounts map[common.Address]*Position
}

// NewLedger constructs an empty ledger valuing collateral through the
// supplied valuer.
func NewLedger(valuer Valuer) *Ledger {
	return &Ledger{valuer: valuer, accounts: make(map[common.Address]*Position)}
}

// Credit adds amount to the account's balance for the asset. Accounts are
// implicitly created on first touch.
func (l *Ledger) Credit(account common.Address, symbol string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	position := l.ensurePosition(account)
	balance := position.Collateral[symbol]
	if balance == nil {
		balance = big.NewInt(0)
	}
	position.Collateral[symbol] = new(big.Int).Add(balance, amount)
	return nil
}

// Debit removes amount from the account's balance for the asset, failing if
// the balance would go negative.
func (l *Ledger) Debit(account common.Address, symbol string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	position := l.ensurePosition(account)
	balance := position.Collateral[symbol]
	if balance == nil || balance.Cmp(amount) < 0 {
		return ErrInsufficientCollateral
	}
	position.Collateral[symbol] = new(big.Int).Sub(balance, amount)
	return nil
}

// IncreaseDebt raises the minted-debt balance for the account.
func (l *Ledger) IncreaseDebt(account common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	position := l.ensurePosition(account)
	position.Debt = new(big.Int).Add(position.Debt, amount)
	return nil
}

// DecreaseDebt lowers the minted-debt balance, failing if it would go
// negative.
func (l *Ledger) DecreaseDebt(account common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	position := l.ensurePosition(account)
	if position.Debt.Cmp(amount) < 0 {
		return ErrInsufficientDebt
	}
	position.Debt = new(big.Int).Sub(position.Debt, amount)
	return nil
}

// CollateralBalance returns the account's balance for the asset.
func (l *Ledger) CollateralBalance(account common.Address, symbol string) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	position, ok := l.accounts[account]
	if !ok {
		return big.NewInt(0)
	}
	balance := position.Collateral[symbol]
	if balance == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(balance)
}

// Debt returns the account's minted-debt balance.
func (l *Ledger) Debt(account common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	position, ok := l.accounts[account]
	if !ok || position.Debt == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(position.Debt)
}

// Position returns a deep copy of the account's recorded position.
func (l *Ledger) Position(account common.Address) *Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	position, ok := l.accounts[account]
	if !ok {
		return &Position{Address: account, Collateral: make(map[string]*big.Int), Debt: big.NewInt(0)}
	}
	return position.Clone()
}

// TotalCollateralValue sums the USD value of the account's balance across
// every registered asset. The summation accumulates across assets; each
// balance is valued fresh through the valuer.
func (l *Ledger) TotalCollateralValue(account common.Address) (*big.Int, error) {
	l.mu.RLock()
	position, ok := l.accounts[account]
	var balances map[string]*big.Int
	if ok {
		balances = make(map[string]*big.Int, len(position.Collateral))
		for symbol, balance := range position.Collateral {
			if balance != nil {
				balances[symbol] = new(big.Int).Set(balance)
			}
		}
	}
	l.mu.RUnlock()

	total := big.NewInt(0)
	for _, symbol := range l.valuer.Symbols() {
		balance := balances[symbol]
		if balance == nil || balance.Sign() == 0 {
			continue
		}
		value, err := l.valuer.USDValue(symbol, balance)
		if err != nil {
			return nil, err
		}
		total.Add(total, value)
	}
	return total, nil
}

func (l *Ledger) ensurePosition(account common.Address) *Position {
	position, ok := l.accounts[account]
	if !ok {
		position = &Position{
			Address:    account,
			Collateral: make(map[string]*big.Int),
			Debt:       big.NewInt(0),
		}
		l.accounts[account] = position
	}
	if position.Collateral == nil {
		position.Collateral = make(map[string]*big.Int)
	}
	if position.Debt == nil {
		position.Debt = big.NewInt(0)
	}
	return position
}
