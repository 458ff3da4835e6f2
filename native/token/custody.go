package token

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// DebtUnit binds a token to the engine's custody address and exposes the
// debt-unit collaborator surface: mint to a holder, pull into custody, and
// burn from custody.
type DebtUnit struct {
	token   *Token
	custody common.Address
}

// NewDebtUnit wraps the token as the engine's debt unit.
func NewDebtUnit(tok *Token, custody common.Address) *DebtUnit {
	return &DebtUnit{token: tok, custody: custody}
}

func (d *DebtUnit) Mint(to common.Address, amount *big.Int) error {
	return d.token.Mint(to, amount)
}

func (d *DebtUnit) Pull(from common.Address, amount *big.Int) error {
	return d.token.Transfer(from, d.custody, amount)
}

func (d *DebtUnit) Burn(amount *big.Int) error {
	return d.token.Burn(d.custody, amount)
}

// AssetVault binds a collateral token to the engine's custody address and
// exposes the pull/push transfer surface used during deposits and redeems.
type AssetVault struct {
	token   *Token
	custody common.Address
}

// NewAssetVault wraps the token as a custody-held collateral asset.
func NewAssetVault(tok *Token, custody common.Address) *AssetVault {
	return &AssetVault{token: tok, custody: custody}
}

func (v *AssetVault) Pull(from common.Address, amount *big.Int) error {
	return v.token.Transfer(from, v.custody, amount)
}

func (v *AssetVault) Push(to common.Address, amount *big.Int) error {
	return v.token.Transfer(v.custody, to, amount)
}
