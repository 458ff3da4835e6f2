package engine

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"stablemint/core/events"
	"stablemint/native/solvency"
	"stablemint/native/vault"
	"stablemint/observability"
)

var (
	// ErrNotLiquidatable indicates the target account's health factor is at
	// or above the minimum.
	ErrNotLiquidatable = errors.New("engine: account not eligible for liquidation")
	// ErrHealthNotImproved indicates the liquidation did not move the target
	// closer to solvency; the whole operation is rolled back.
	ErrHealthNotImproved = errors.New("engine: liquidation did not improve health factor")
)

// Liquidation bonus granted to the liquidator on top of the repaid debt
// value, in percent over liquidationPrecision.
var (
	liquidationBonus     = big.NewInt(10)
	liquidationPrecision = big.NewInt(100)
)

// Liquidate lets a third party repay debtToCover of the target's minted debt
// in exchange for seized collateral of the given kind worth the repaid value
// plus the liquidation bonus. The seizure is capped by the target's actual
// balance: a bonus-inclusive amount exceeding it fails rather than paying a
// partial bonus. The target's health factor must strictly improve.
func (e *Engine) Liquidate(liquidator, target common.Address, symbol string, debtToCover *big.Int) (*big.Int, error) {
	if err := e.acquire(); err != nil {
		return nil, err
	}
	defer e.release()

	if _, err := e.checkAsset(symbol, debtToCover); err != nil {
		return nil, e.reject("liquidate", err)
	}
	symbol = normalised(symbol)

	startingFactor, err := e.eval.HealthFactor(target)
	if err != nil {
		return nil, e.reject("liquidate", err)
	}
	if startingFactor.Cmp(solvency.MinHealthFactor()) >= 0 {
		return nil, e.reject("liquidate", ErrNotLiquidatable)
	}

	if e.ledger.Debt(target).Cmp(debtToCover) < 0 {
		return nil, e.reject("liquidate", vault.ErrInsufficientDebt)
	}

	// Collateral owed to the liquidator: token equivalent of the repaid
	// debt value plus the bonus.
	baseAmount, err := e.registry.TokenAmountFromUSD(symbol, debtToCover)
	if err != nil {
		return nil, e.reject("liquidate", err)
	}
	bonus := new(big.Int).Mul(baseAmount, liquidationBonus)
	bonus.Quo(bonus, liquidationPrecision)
	seizeAmount := new(big.Int).Add(baseAmount, bonus)
	if e.ledger.CollateralBalance(target, symbol).Cmp(seizeAmount) < 0 {
		return nil, e.reject("liquidate", vault.ErrInsufficientCollateral)
	}

	// Effects, target side first for deterministic replay.
	if err := e.ledger.DecreaseDebt(target, debtToCover); err != nil {
		return nil, e.reject("liquidate", err)
	}
	if err := e.ledger.Debit(target, symbol, seizeAmount); err != nil {
		_ = e.ledger.IncreaseDebt(target, debtToCover)
		return nil, e.reject("liquidate", err)
	}

	rollbackLedger := func() {
		_ = e.ledger.Credit(target, symbol, seizeAmount)
		_ = e.ledger.IncreaseDebt(target, debtToCover)
	}

	// Interactions: repayment is pulled from the liquidator and destroyed,
	// then the seized collateral is released.
	if err := e.debt.Pull(liquidator, debtToCover); err != nil {
		rollbackLedger()
		return nil, e.reject("liquidate", fmt.Errorf("%w: %v", ErrTransferFailed, err))
	}
	if err := e.debt.Burn(debtToCover); err != nil {
		_ = e.debt.Mint(liquidator, debtToCover)
		rollbackLedger()
		return nil, e.reject("liquidate", fmt.Errorf("%w: %v", ErrMintFailed, err))
	}
	asset := e.assets[symbol]
	if err := asset.Push(liquidator, seizeAmount); err != nil {
		_ = e.debt.Mint(liquidator, debtToCover)
		rollbackLedger()
		return nil, e.reject("liquidate", fmt.Errorf("%w: %v", ErrTransferFailed, err))
	}

	rollbackAll := func() {
		_ = asset.Pull(liquidator, seizeAmount)
		_ = e.debt.Mint(liquidator, debtToCover)
		rollbackLedger()
	}

	// Post-condition: the target must end closer to solvency. An account
	// whose debt reached zero exits the liquidatable state unconditionally.
	endingFactor, err := e.eval.HealthFactor(target)
	if err != nil {
		rollbackAll()
		return nil, e.reject("liquidate", err)
	}
	if e.ledger.Debt(target).Sign() != 0 && endingFactor.Cmp(startingFactor) <= 0 {
		rollbackAll()
		return nil, e.rejectHealth("liquidate", ErrHealthNotImproved)
	}
	// The liquidator's own position must not be left broken by the repayment.
	if err := e.eval.AssertSolvent(liquidator); err != nil {
		rollbackAll()
		return nil, e.rejectHealth("liquidate", err)
	}

	opID := uuid.NewString()
	e.emit(events.LiquidationExecuted{
		OperationID: opID,
		Liquidator:  liquidator,
		Target:      target,
		Symbol:      symbol,
		DebtCovered: debtToCover,
		Seized:      seizeAmount,
	})
	e.logger.Info("liquidation executed",
		"operation", opID,
		"liquidator", liquidator.Hex(),
		"target", target.Hex(),
		"symbol", symbol,
		"debtCovered", debtToCover.String(),
		"seized", seizeAmount.String(),
	)
	observability.Engine().RecordOperation("liquidate", "ok")
	observability.Engine().RecordLiquidation()
	return seizeAmount, nil
}
