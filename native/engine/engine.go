package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"stablemint/core/events"
	"stablemint/core/types"
	"stablemint/native/oracle"
	"stablemint/native/solvency"
	"stablemint/native/vault"
	"stablemint/observability"
)

var (
	// ErrInvalidAmount indicates a zero, negative, or nil amount.
	ErrInvalidAmount = errors.New("engine: amount must be positive")
	// ErrAssetNotRegistered indicates the collateral symbol is not part of
	// the approved set.
	ErrAssetNotRegistered = errors.New("engine: collateral asset not registered")
	// ErrMintFailed wraps a debt-unit mint failure; the operation is rolled
	// back in full.
	ErrMintFailed = errors.New("engine: debt unit mint failed")
	// ErrTransferFailed wraps an external asset transfer failure; the
	// operation is rolled back in full.
	ErrTransferFailed = errors.New("engine: asset transfer failed")
	// ErrConfigMismatch indicates the registered asset set and transfer
	// collaborators disagree at construction.
	ErrConfigMismatch = errors.New("engine: asset collaborators do not match registered set")
	// ErrReentrantCall indicates a mutating operation was invoked while
	// another is in flight, e.g. a collaborator calling back into the engine
	// during an external transfer.
	ErrReentrantCall = errors.New("engine: reentrant invocation")
)

// DebtToken is the external debt-unit collaborator: the synthetic asset
// minted against collateral.
type DebtToken interface {
	Mint(to common.Address, amount *big.Int) error
	Pull(from common.Address, amount *big.Int) error
	Burn(amount *big.Int) error
}

// CollateralAsset is the external transfer collaborator for one collateral
// kind. Pull moves assets from a holder into custody, Push releases them.
type CollateralAsset interface {
	Pull(from common.Address, amount *big.Int) error
	Push(to common.Address, amount *big.Int) error
}

// EventEmitter receives the typed events produced by state transitions.
type EventEmitter interface {
	Emit(evt *types.Event)
}

// Engine wraps every state-mutating operation with checks-effects-
// interactions ordering and pre/post solvency gating. The engine is invoked
// transactionally and serially: an exclusion flag acquired for the whole call
// rejects re-entrant invocation from within an in-flight interaction.
type Engine struct {
	inFlight atomic.Bool
	registry *oracle.Adapter
	ledger   *vault.Ledger
	eval     *solvency.Evaluator
	debt     DebtToken
	assets   map[string]CollateralAsset
	emitter  EventEmitter
	logger   *slog.Logger
}

// NewEngine wires the solvency core to its collaborators. Every symbol in the
// registered set must have a matching transfer collaborator.
func NewEngine(registry *oracle.Adapter, ledger *vault.Ledger, eval *solvency.Evaluator, debt DebtToken, assets map[string]CollateralAsset) (*Engine, error) {
	if registry == nil || ledger == nil || eval == nil || debt == nil {
		return nil, fmt.Errorf("engine: registry, ledger, evaluator, and debt token are required")
	}
	symbols := registry.Symbols()
	if len(assets) != len(symbols) {
		return nil, ErrConfigMismatch
	}
	supplied := make(map[string]CollateralAsset, len(assets))
	for symbol, asset := range assets {
		supplied[normalised(symbol)] = asset
	}
	bound := make(map[string]CollateralAsset, len(symbols))
	for _, symbol := range symbols {
		asset, ok := supplied[symbol]
		if !ok || asset == nil {
			return nil, ErrConfigMismatch
		}
		bound[symbol] = asset
	}
	return &Engine{
		registry: registry,
		ledger:   ledger,
		eval:     eval,
		debt:     debt,
		assets:   bound,
		logger:   slog.Default(),
	}, nil
}

// SetEmitter wires the event sink used by state transitions.
func (e *Engine) SetEmitter(emitter EventEmitter) {
	if e == nil {
		return
	}
	e.emitter = emitter
}

// SetLogger replaces the structured logger.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if e == nil || logger == nil {
		return
	}
	e.logger = logger
}

// DepositCollateral credits the ledger and pulls the asset into custody. No
// solvency check is needed: deposits only improve the health factor.
func (e *Engine) DepositCollateral(account common.Address, symbol string, amount *big.Int) error {
	if err := e.acquire(); err != nil {
		return err
	}
	defer e.release()
	return e.depositCollateral(account, symbol, amount)
}

func (e *Engine) depositCollateral(account common.Address, symbol string, amount *big.Int) error {
	asset, err := e.checkAsset(symbol, amount)
	if err != nil {
		return e.reject("deposit", err)
	}
	if err := e.ledger.Credit(account, symbol, amount); err != nil {
		return e.reject("deposit", err)
	}
	if err := asset.Pull(account, amount); err != nil {
		// Undo the credit; the external pull never happened.
		_ = e.ledger.Debit(account, symbol, amount)
		return e.reject("deposit", fmt.Errorf("%w: %v", ErrTransferFailed, err))
	}
	opID := uuid.NewString()
	e.emit(events.CollateralDeposited{OperationID: opID, Account: account, Symbol: symbol, Amount: amount})
	e.logger.Info("collateral deposited", "operation", opID, "account", account.Hex(), "symbol", symbol, "amount", amount.String())
	observability.Engine().RecordOperation("deposit", "ok")
	return nil
}

// MintDebt increases the account's minted debt and gates the mint on the
// resulting health factor. The debt unit reaches the caller only after
// solvency is confirmed.
func (e *Engine) MintDebt(account common.Address, amount *big.Int) error {
	if err := e.acquire(); err != nil {
		return err
	}
	defer e.release()
	return e.mintDebt(account, amount)
}

func (e *Engine) mintDebt(account common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return e.reject("mint", ErrInvalidAmount)
	}
	if err := e.ledger.IncreaseDebt(account, amount); err != nil {
		return e.reject("mint", err)
	}
	if err := e.eval.AssertSolvent(account); err != nil {
		_ = e.ledger.DecreaseDebt(account, amount)
		return e.rejectHealth("mint", err)
	}
	if err := e.debt.Mint(account, amount); err != nil {
		_ = e.ledger.DecreaseDebt(account, amount)
		return e.reject("mint", fmt.Errorf("%w: %v", ErrMintFailed, err))
	}
	opID := uuid.NewString()
	factor, _ := e.eval.HealthFactor(account)
	e.emit(events.DebtMinted{OperationID: opID, Account: account, Amount: amount, HealthFactor: factor})
	e.logger.Info("debt minted", "operation", opID, "account", account.Hex(), "amount", amount.String())
	observability.Engine().RecordOperation("mint", "ok")
	return nil
}

// RedeemCollateral debits the ledger, confirms the remaining position is
// solvent, then releases the asset back to the owner. A failed push undoes
// the debit.
func (e *Engine) RedeemCollateral(account common.Address, symbol string, amount *big.Int) error {
	if err := e.acquire(); err != nil {
		return err
	}
	defer e.release()
	return e.redeemCollateral(account, symbol, amount)
}

func (e *Engine) redeemCollateral(account common.Address, symbol string, amount *big.Int) error {
	asset, err := e.checkAsset(symbol, amount)
	if err != nil {
		return e.reject("redeem", err)
	}
	if err := e.ledger.Debit(account, symbol, amount); err != nil {
		return e.reject("redeem", err)
	}
	if err := e.eval.AssertSolvent(account); err != nil {
		_ = e.ledger.Credit(account, symbol, amount)
		return e.rejectHealth("redeem", err)
	}
	if err := asset.Push(account, amount); err != nil {
		_ = e.ledger.Credit(account, symbol, amount)
		return e.reject("redeem", fmt.Errorf("%w: %v", ErrTransferFailed, err))
	}
	opID := uuid.NewString()
	e.emit(events.CollateralRedeemed{OperationID: opID, Account: account, Symbol: symbol, Amount: amount})
	e.logger.Info("collateral redeemed", "operation", opID, "account", account.Hex(), "symbol", symbol, "amount", amount.String())
	observability.Engine().RecordOperation("redeem", "ok")
	return nil
}

// BurnDebt pulls the debt unit from the caller into custody, destroys it, and
// lowers the ledger debt. Burning always improves the health factor; the
// post-check still runs, never skipped.
func (e *Engine) BurnDebt(account common.Address, amount *big.Int) error {
	if err := e.acquire(); err != nil {
		return err
	}
	defer e.release()
	return e.burnDebt(account, amount)
}

func (e *Engine) burnDebt(account common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return e.reject("burn", ErrInvalidAmount)
	}
	if e.ledger.Debt(account).Cmp(amount) < 0 {
		return e.reject("burn", vault.ErrInsufficientDebt)
	}
	if err := e.debt.Pull(account, amount); err != nil {
		return e.reject("burn", fmt.Errorf("%w: %v", ErrTransferFailed, err))
	}
	if err := e.debt.Burn(amount); err != nil {
		_ = e.debt.Mint(account, amount)
		return e.reject("burn", fmt.Errorf("%w: %v", ErrMintFailed, err))
	}
	if err := e.ledger.DecreaseDebt(account, amount); err != nil {
		_ = e.debt.Mint(account, amount)
		return e.reject("burn", err)
	}
	if err := e.eval.AssertSolvent(account); err != nil {
		_ = e.ledger.IncreaseDebt(account, amount)
		_ = e.debt.Mint(account, amount)
		return e.rejectHealth("burn", err)
	}
	opID := uuid.NewString()
	e.emit(events.DebtBurned{OperationID: opID, Account: account, Amount: amount})
	e.logger.Info("debt burned", "operation", opID, "account", account.Hex(), "amount", amount.String())
	observability.Engine().RecordOperation("burn", "ok")
	return nil
}

// DepositAndMint sequences a collateral deposit and a debt mint atomically:
// when the mint fails the deposit is unwound.
func (e *Engine) DepositAndMint(account common.Address, symbol string, collateralAmount, debtAmount *big.Int) error {
	if err := e.acquire(); err != nil {
		return err
	}
	defer e.release()
	if err := e.depositCollateral(account, symbol, collateralAmount); err != nil {
		return err
	}
	if err := e.mintDebt(account, debtAmount); err != nil {
		if undoErr := e.undoDeposit(account, symbol, collateralAmount); undoErr != nil {
			return fmt.Errorf("engine: mint failed (%w) and deposit rollback failed: %v", err, undoErr)
		}
		return err
	}
	return nil
}

// RedeemAndBurn sequences a debt burn and a collateral redeem atomically:
// when the redeem fails the burn is unwound.
func (e *Engine) RedeemAndBurn(account common.Address, symbol string, collateralAmount, debtAmount *big.Int) error {
	if err := e.acquire(); err != nil {
		return err
	}
	defer e.release()
	if err := e.burnDebt(account, debtAmount); err != nil {
		return err
	}
	if err := e.redeemCollateral(account, symbol, collateralAmount); err != nil {
		if undoErr := e.undoBurn(account, debtAmount); undoErr != nil {
			return fmt.Errorf("engine: redeem failed (%w) and burn rollback failed: %v", err, undoErr)
		}
		return err
	}
	return nil
}

func (e *Engine) undoDeposit(account common.Address, symbol string, amount *big.Int) error {
	if err := e.ledger.Debit(account, symbol, amount); err != nil {
		return err
	}
	return e.assets[normalised(symbol)].Push(account, amount)
}

func (e *Engine) undoBurn(account common.Address, amount *big.Int) error {
	if err := e.ledger.IncreaseDebt(account, amount); err != nil {
		return err
	}
	return e.debt.Mint(account, amount)
}

func (e *Engine) checkAsset(symbol string, amount *big.Int) (CollateralAsset, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	asset, ok := e.assets[normalised(symbol)]
	if !ok {
		return nil, ErrAssetNotRegistered
	}
	return asset, nil
}

func (e *Engine) emit(evt interface{ Event() *types.Event }) {
	if e.emitter == nil {
		return
	}
	e.emitter.Emit(evt.Event())
}

// acquire takes the per-call exclusion flag. The flag is released only on the
// call's exit, guaranteeing atomicity of checks-effects-interactions against
// recursive re-entry.
func (e *Engine) acquire() error {
	if !e.inFlight.CompareAndSwap(false, true) {
		return ErrReentrantCall
	}
	return nil
}

func (e *Engine) release() {
	e.inFlight.Store(false)
}

func normalised(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func (e *Engine) reject(op string, err error) error {
	e.logger.Warn("operation rejected", "op", op, "err", err)
	observability.Engine().RecordOperation(op, "rejected")
	return err
}

func (e *Engine) rejectHealth(op string, err error) error {
	e.logger.Warn("operation rejected", "op", op, "err", err)
	observability.Engine().RecordOperation(op, "rejected")
	observability.Engine().RecordHealthFailure(op)
	return err
}
