package solvency

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethmath "github.com/ethereum/go-ethereum/common/math"
)

var (
	// precision is the canonical 1e18 fixed-point scale.
	precision = big.NewInt(1_000_000_000_000_000_000)
	// liquidationThreshold and liquidationPrecision express the 50% safety
	// discount applied to collateral value, i.e. 200% overcollateralization
	// is required at the margin.
	liquidationThreshold = big.NewInt(50)
	liquidationPrecision = big.NewInt(100)
	// minHealthFactor is expressed at the same 1e18 scale as the health
	// factor itself. Using the raw integer 1 here would make the solvency
	// check vacuous for any account with nonzero debt and positive
	// collateral.
	minHealthFactor = new(big.Int).Set(precision)
)

// MinHealthFactor returns the 1e18-scaled health-factor floor below which an
// account is considered insolvent.
func MinHealthFactor() *big.Int {
	return new(big.Int).Set(minHealthFactor)
}

// HealthFactorError reports a solvency check failure together with the
// offending computed health factor so callers can decide remediation.
type HealthFactorError struct {
	HealthFactor *big.Int
}

func (e *HealthFactorError) Error() string {
	return fmt.Sprintf("solvency: health factor %s below minimum %s", e.HealthFactor, minHealthFactor)
}

// LedgerView is the read surface the evaluator needs from the ledger.
type LedgerView interface {
	Debt(account common.Address) *big.Int
	TotalCollateralValue(account common.Address) (*big.Int, error)
}

// Evaluator computes collateral valuations and health factors; it is the
// single source of truth for whether an account is safe.
type Evaluator struct {
	ledger LedgerView
}

// NewEvaluator constructs an evaluator reading from the supplied ledger.
func NewEvaluator(ledger LedgerView) *Evaluator {
	return &Evaluator{ledger: ledger}
}

// Snapshot returns the account's minted debt and total collateral value in
// USD at the canonical scale.
func (ev *Evaluator) Snapshot(account common.Address) (*big.Int, *big.Int, error) {
	if ev == nil || ev.ledger == nil {
		return nil, nil, fmt.Errorf("solvency: evaluator not configured")
	}
	collateralValue, err := ev.ledger.TotalCollateralValue(account)
	if err != nil {
		return nil, nil, err
	}
	return ev.ledger.Debt(account), collateralValue, nil
}

// HealthFactor computes the 1e18-scaled safety ratio for the account. Zero
// debt yields the maximum representable value rather than dividing by zero.
func (ev *Evaluator) HealthFactor(account common.Address) (*big.Int, error) {
	debt, collateralValue, err := ev.Snapshot(account)
	if err != nil {
		return nil, err
	}
	return healthFactor(debt, collateralValue), nil
}

// AssertSolvent fails with a HealthFactorError when the account's health
// factor is below the minimum. A health factor of exactly 1e18 is solvent.
func (ev *Evaluator) AssertSolvent(account common.Address) error {
	factor, err := ev.HealthFactor(account)
	if err != nil {
		return err
	}
	if factor.Cmp(minHealthFactor) < 0 {
		return &HealthFactorError{HealthFactor: factor}
	}
	return nil
}

func healthFactor(debt, collateralValue *big.Int) *big.Int {
	if debt == nil || debt.Sign() == 0 {
		return new(big.Int).Set(ethmath.MaxBig256)
	}
	if collateralValue == nil {
		collateralValue = big.NewInt(0)
	}
	adjusted := new(big.Int).Mul(collateralValue, liquidationThreshold)
	adjusted.Quo(adjusted, liquidationPrecision)
	adjusted.Mul(adjusted, precision)
	return adjusted.Quo(adjusted, debt)
}
