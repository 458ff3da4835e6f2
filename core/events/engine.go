package events

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"stablemint/core/types"
)

const (
	// TypeCollateralDeposited is emitted when collateral enters custody.
	TypeCollateralDeposited = "engine.collateral_deposited"
	// TypeCollateralRedeemed is emitted when collateral is released back to
	// the owner.
	TypeCollateralRedeemed = "engine.collateral_redeemed"
	// TypeDebtMinted is emitted after a successful mint passed the solvency
	// gate.
	TypeDebtMinted = "engine.debt_minted"
	// TypeDebtBurned is emitted when minted debt is repaid and destroyed.
	TypeDebtBurned = "engine.debt_burned"
	// TypeLiquidationExecuted is emitted when a third party repays an
	// unhealthy account's debt in exchange for seized collateral.
	TypeLiquidationExecuted = "engine.liquidation_executed"
)

type CollateralDeposited struct {
	OperationID string
	Account     common.Address
	Symbol      string
	Amount      *big.Int
}

func (CollateralDeposited) EventType() string { return TypeCollateralDeposited }

func (e CollateralDeposited) Event() *types.Event {
	return &types.Event{
		Type: TypeCollateralDeposited,
		Attributes: map[string]string{
			"operationId": e.OperationID,
			"account":     e.Account.Hex(),
			"symbol":      e.Symbol,
			"amount":      bigString(e.Amount),
		},
	}
}

type CollateralRedeemed struct {
	OperationID string
	Account     common.Address
	Symbol      string
	Amount      *big.Int
}

func (CollateralRedeemed) EventType() string { return TypeCollateralRedeemed }

func (e CollateralRedeemed) Event() *types.Event {
	return &types.Event{
		Type: TypeCollateralRedeemed,
		Attributes: map[string]string{
			"operationId": e.OperationID,
			"account":     e.Account.Hex(),
			"symbol":      e.Symbol,
			"amount":      bigString(e.Amount),
		},
	}
}

type DebtMinted struct {
	OperationID  string
	Account      common.Address
	Amount       *big.Int
	HealthFactor *big.Int
}

func (DebtMinted) EventType() string { return TypeDebtMinted }

func (e DebtMinted) Event() *types.Event {
	return &types.Event{
		Type: TypeDebtMinted,
		Attributes: map[string]string{
			"operationId":  e.OperationID,
			"account":      e.Account.Hex(),
			"amount":       bigString(e.Amount),
			"healthFactor": bigString(e.HealthFactor),
		},
	}
}

type DebtBurned struct {
	OperationID string
	Account     common.Address
	Amount      *big.Int
}

func (DebtBurned) EventType() string { return TypeDebtBurned }

func (e DebtBurned) Event() *types.Event {
	return &types.Event{
		Type: TypeDebtBurned,
		Attributes: map[string]string{
			"operationId": e.OperationID,
			"account":     e.Account.Hex(),
			"amount":      bigString(e.Amount),
		},
	}
}

type LiquidationExecuted struct {
	OperationID string
	Liquidator  common.Address
	Target      common.Address
	Symbol      string
	DebtCovered *big.Int
	Seized      *big.Int
}

func (LiquidationExecuted) EventType() string { return TypeLiquidationExecuted }

func (e LiquidationExecuted) Event() *types.Event {
	return &types.Event{
		Type: TypeLiquidationExecuted,
		Attributes: map[string]string{
			"operationId": e.OperationID,
			"liquidator":  e.Liquidator.Hex(),
			"target":      e.Target.Hex(),
			"symbol":      e.Symbol,
			"debtCovered": bigString(e.DebtCovered),
			"seized":      bigString(e.Seized),
		},
	}
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
