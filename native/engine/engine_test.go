package engine

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"stablemint/core/types"
	"stablemint/native/oracle"
	"stablemint/native/solvency"
	"stablemint/native/token"
	"stablemint/native/vault"
)

var precision = big.NewInt(1_000_000_000_000_000_000)

func usd(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), precision)
}

func addr(b byte) common.Address {
	return common.BytesToAddress([]byte{b})
}

var custody = addr(0xEE)

type fixture struct {
	engine   *Engine
	ledger   *vault.Ledger
	eval     *solvency.Evaluator
	feed     *oracle.ManualFeed
	weth     *token.Token
	debtTok  *token.Token
	registry *oracle.Adapter
}

// newFixture wires a single-collateral engine: WETH priced at $2000 through
// an 8-decimal manual feed, with in-memory token collaborators.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	feed := oracle.NewManualFeed(big.NewInt(2000_00000000), 8)
	registry, err := oracle.NewAdapter([]string{"WETH"}, []oracle.PriceFeed{feed}, 0)
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	ledger := vault.NewLedger(registry)
	eval := solvency.NewEvaluator(ledger)
	weth := token.New("WETH")
	debtTok := token.New("SUSD")
	core, err := NewEngine(registry, ledger, eval, token.NewDebtUnit(debtTok, custody), map[string]CollateralAsset{
		"WETH": token.NewAssetVault(weth, custody),
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return &fixture{engine: core, ledger: ledger, eval: eval, feed: feed, weth: weth, debtTok: debtTok, registry: registry}
}

func (f *fixture) fund(t *testing.T, holder common.Address, amount *big.Int) {
	t.Helper()
	if err := f.weth.Mint(holder, amount); err != nil {
		t.Fatalf("fund %s: %v", holder.Hex(), err)
	}
}

type recordingEmitter struct {
	events []*types.Event
}

func (r *recordingEmitter) Emit(evt *types.Event) {
	r.events = append(r.events, evt)
}

func TestDepositThenRedeemRoundTrip(t *testing.T) {
	f := newFixture(t)
	user := addr(0x01)
	f.fund(t, user, usd(5))

	if err := f.engine.DepositCollateral(user, "WETH", usd(5)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if balance := f.weth.BalanceOf(custody); balance.Cmp(usd(5)) != 0 {
		t.Fatalf("custody did not receive collateral: %s", balance)
	}
	if err := f.engine.RedeemCollateral(user, "WETH", usd(5)); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if balance := f.weth.BalanceOf(user); balance.Cmp(usd(5)) != 0 {
		t.Fatalf("collateral not returned: %s", balance)
	}
	if balance := f.ledger.CollateralBalance(user, "WETH"); balance.Sign() != 0 {
		t.Fatalf("residual ledger balance: %s", balance)
	}
	if debt := f.ledger.Debt(user); debt.Sign() != 0 {
		t.Fatalf("round trip created debt: %s", debt)
	}
}

func TestDepositValidation(t *testing.T) {
	f := newFixture(t)
	user := addr(0x02)

	if err := f.engine.DepositCollateral(user, "WETH", big.NewInt(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if err := f.engine.DepositCollateral(user, "DOGE", big.NewInt(1)); !errors.Is(err, ErrAssetNotRegistered) {
		t.Fatalf("expected ErrAssetNotRegistered, got %v", err)
	}
}

func TestDepositRollsBackWhenPullFails(t *testing.T) {
	f := newFixture(t)
	user := addr(0x03)
	// User holds nothing, so the custody pull must fail.

	err := f.engine.DepositCollateral(user, "WETH", usd(1))
	if !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}
	if balance := f.ledger.CollateralBalance(user, "WETH"); balance.Sign() != 0 {
		t.Fatalf("ledger credit not rolled back: %s", balance)
	}
}

func TestMintBoundary(t *testing.T) {
	// 0.1 WETH at $2000 is $200 of collateral; the 50% threshold supports
	// exactly $100 of debt.
	f := newFixture(t)
	user := addr(0x04)
	deposit := new(big.Int).Div(precision, big.NewInt(10))
	f.fund(t, user, deposit)
	if err := f.engine.DepositCollateral(user, "WETH", deposit); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	err := f.engine.MintDebt(user, usd(101))
	var hfErr *solvency.HealthFactorError
	if !errors.As(err, &hfErr) {
		t.Fatalf("expected HealthFactorError for $101, got %v", err)
	}
	if debt := f.ledger.Debt(user); debt.Sign() != 0 {
		t.Fatalf("failed mint left debt behind: %s", debt)
	}
	if balance := f.debtTok.BalanceOf(user); balance.Sign() != 0 {
		t.Fatalf("failed mint issued tokens: %s", balance)
	}

	if err := f.engine.MintDebt(user, usd(99)); err != nil {
		t.Fatalf("minting $99 must succeed: %v", err)
	}
	if balance := f.debtTok.BalanceOf(user); balance.Cmp(usd(99)) != 0 {
		t.Fatalf("unexpected minted balance: %s", balance)
	}

	// Top up to the exact boundary: $100 total debt is still solvent.
	if err := f.engine.MintDebt(user, usd(1)); err != nil {
		t.Fatalf("minting to the exact threshold must succeed: %v", err)
	}
	factor, err := f.eval.HealthFactor(user)
	if err != nil {
		t.Fatalf("health factor: %v", err)
	}
	if factor.Cmp(precision) != 0 {
		t.Fatalf("expected boundary health factor 1e18, got %s", factor)
	}
}

func TestRedeemBlockedWhileDebtOutstanding(t *testing.T) {
	f := newFixture(t)
	user := addr(0x05)
	f.fund(t, user, usd(1))
	if err := f.engine.DepositCollateral(user, "WETH", usd(1)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := f.engine.MintDebt(user, usd(1000)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	// Redeeming the full collateral would leave $1000 debt unbacked.
	err := f.engine.RedeemCollateral(user, "WETH", usd(1))
	var hfErr *solvency.HealthFactorError
	if !errors.As(err, &hfErr) {
		t.Fatalf("expected HealthFactorError, got %v", err)
	}
	if balance := f.ledger.CollateralBalance(user, "WETH"); balance.Cmp(usd(1)) != 0 {
		t.Fatalf("rejected redeem mutated ledger: %s", balance)
	}
	if balance := f.weth.BalanceOf(user); balance.Sign() != 0 {
		t.Fatalf("rejected redeem released collateral: %s", balance)
	}
}

func TestBurnReducesDebtAndSupply(t *testing.T) {
	f := newFixture(t)
	user := addr(0x06)
	f.fund(t, user, usd(1))
	if err := f.engine.DepositCollateral(user, "WETH", usd(1)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := f.engine.MintDebt(user, usd(400)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	if err := f.engine.BurnDebt(user, usd(150)); err != nil {
		t.Fatalf("burn: %v", err)
	}
	if debt := f.ledger.Debt(user); debt.Cmp(usd(250)) != 0 {
		t.Fatalf("unexpected remaining debt: %s", debt)
	}
	if balance := f.debtTok.BalanceOf(user); balance.Cmp(usd(250)) != 0 {
		t.Fatalf("unexpected remaining tokens: %s", balance)
	}
	if supply := f.debtTok.TotalSupply(); supply.Cmp(usd(250)) != 0 {
		t.Fatalf("burned tokens still in supply: %s", supply)
	}

	if err := f.engine.BurnDebt(user, usd(300)); !errors.Is(err, vault.ErrInsufficientDebt) {
		t.Fatalf("expected ErrInsufficientDebt on over-burn, got %v", err)
	}
}

func TestDepositAndMintAtomicity(t *testing.T) {
	f := newFixture(t)
	user := addr(0x07)
	f.fund(t, user, usd(1))

	// $2000 collateral cannot support $1500 of debt; the deposit must be
	// unwound with the failed mint.
	err := f.engine.DepositAndMint(user, "WETH", usd(1), usd(1500))
	var hfErr *solvency.HealthFactorError
	if !errors.As(err, &hfErr) {
		t.Fatalf("expected HealthFactorError, got %v", err)
	}
	if balance := f.ledger.CollateralBalance(user, "WETH"); balance.Sign() != 0 {
		t.Fatalf("deposit not unwound: %s", balance)
	}
	if balance := f.weth.BalanceOf(user); balance.Cmp(usd(1)) != 0 {
		t.Fatalf("collateral not returned: %s", balance)
	}

	if err := f.engine.DepositAndMint(user, "WETH", usd(1), usd(900)); err != nil {
		t.Fatalf("valid composite failed: %v", err)
	}
	if balance := f.debtTok.BalanceOf(user); balance.Cmp(usd(900)) != 0 {
		t.Fatalf("unexpected minted balance: %s", balance)
	}
}

func TestRedeemAndBurnAtomicity(t *testing.T) {
	f := newFixture(t)
	user := addr(0x08)
	f.fund(t, user, usd(1))
	if err := f.engine.DepositAndMint(user, "WETH", usd(1), usd(800)); err != nil {
		t.Fatalf("setup: %v", err)
	}

	// Burning $100 then redeeming the whole position would break solvency;
	// the burn must be unwound.
	err := f.engine.RedeemAndBurn(user, "WETH", usd(1), usd(100))
	var hfErr *solvency.HealthFactorError
	if !errors.As(err, &hfErr) {
		t.Fatalf("expected HealthFactorError, got %v", err)
	}
	if debt := f.ledger.Debt(user); debt.Cmp(usd(800)) != 0 {
		t.Fatalf("burn not unwound: %s", debt)
	}
	if balance := f.debtTok.BalanceOf(user); balance.Cmp(usd(800)) != 0 {
		t.Fatalf("debt tokens not restored: %s", balance)
	}

	if err := f.engine.RedeemAndBurn(user, "WETH", usd(1), usd(800)); err != nil {
		t.Fatalf("full exit failed: %v", err)
	}
	if balance := f.weth.BalanceOf(user); balance.Cmp(usd(1)) != 0 {
		t.Fatalf("collateral not returned: %s", balance)
	}
	if debt := f.ledger.Debt(user); debt.Sign() != 0 {
		t.Fatalf("residual debt after exit: %s", debt)
	}
}

func TestSolvencyHoldsAfterEverySuccessfulOperation(t *testing.T) {
	f := newFixture(t)
	user := addr(0x09)
	f.fund(t, user, usd(2))

	steps := []func() error{
		func() error { return f.engine.DepositCollateral(user, "WETH", usd(2)) },
		func() error { return f.engine.MintDebt(user, usd(1200)) },
		func() error { return f.engine.BurnDebt(user, usd(200)) },
		func() error { return f.engine.RedeemCollateral(user, "WETH", usd(1)) },
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if f.ledger.Debt(user).Sign() == 0 {
			continue
		}
		factor, err := f.eval.HealthFactor(user)
		if err != nil {
			t.Fatalf("step %d health factor: %v", i, err)
		}
		if factor.Cmp(solvency.MinHealthFactor()) < 0 {
			t.Fatalf("step %d left account insolvent: %s", i, factor)
		}
	}
}

func TestEngineEmitsTypedEvents(t *testing.T) {
	f := newFixture(t)
	emitter := &recordingEmitter{}
	f.engine.SetEmitter(emitter)
	user := addr(0x0A)
	f.fund(t, user, usd(1))

	if err := f.engine.DepositAndMint(user, "WETH", usd(1), usd(500)); err != nil {
		t.Fatalf("composite: %v", err)
	}
	if len(emitter.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(emitter.events))
	}
	if emitter.events[0].Type != "engine.collateral_deposited" {
		t.Fatalf("unexpected first event: %s", emitter.events[0].Type)
	}
	if emitter.events[1].Type != "engine.debt_minted" {
		t.Fatalf("unexpected second event: %s", emitter.events[1].Type)
	}
	if got := emitter.events[0].Attributes["account"]; got != user.Hex() {
		t.Fatalf("unexpected event account: %s", got)
	}
	if emitter.events[0].Attributes["operationId"] == "" {
		t.Fatal("expected operation id on event")
	}
}

// reentrantAsset calls back into the engine from inside the custody pull,
// mimicking a malicious asset contract.
type reentrantAsset struct {
	engine  *Engine
	account common.Address
	seen    error
}

func (r *reentrantAsset) Pull(from common.Address, amount *big.Int) error {
	r.seen = r.engine.MintDebt(r.account, big.NewInt(1))
	return r.seen
}

func (r *reentrantAsset) Push(to common.Address, amount *big.Int) error { return nil }

func TestReentrantInvocationExcluded(t *testing.T) {
	feed := oracle.NewManualFeed(big.NewInt(2000_00000000), 8)
	registry, err := oracle.NewAdapter([]string{"WETH"}, []oracle.PriceFeed{feed}, 0)
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	ledger := vault.NewLedger(registry)
	eval := solvency.NewEvaluator(ledger)
	debtTok := token.New("SUSD")
	malicious := &reentrantAsset{account: addr(0x0B)}
	core, err := NewEngine(registry, ledger, eval, token.NewDebtUnit(debtTok, custody), map[string]CollateralAsset{
		"WETH": malicious,
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	malicious.engine = core

	err = core.DepositCollateral(addr(0x0B), "WETH", usd(1))
	if !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected deposit to fail on reentrancy, got %v", err)
	}
	if !errors.Is(malicious.seen, ErrReentrantCall) {
		t.Fatalf("expected nested call to see ErrReentrantCall, got %v", malicious.seen)
	}
	if balance := ledger.CollateralBalance(addr(0x0B), "WETH"); balance.Sign() != 0 {
		t.Fatalf("reentrant attempt mutated ledger: %s", balance)
	}
}

func TestEngineConstructionValidation(t *testing.T) {
	feed := oracle.NewManualFeed(big.NewInt(1_00000000), 8)
	registry, err := oracle.NewAdapter([]string{"WETH"}, []oracle.PriceFeed{feed}, 0)
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	ledger := vault.NewLedger(registry)
	eval := solvency.NewEvaluator(ledger)
	debtUnit := token.NewDebtUnit(token.New("SUSD"), custody)

	if _, err := NewEngine(registry, ledger, eval, debtUnit, map[string]CollateralAsset{}); !errors.Is(err, ErrConfigMismatch) {
		t.Fatalf("expected ErrConfigMismatch for missing assets, got %v", err)
	}
	if _, err := NewEngine(registry, ledger, eval, debtUnit, map[string]CollateralAsset{
		"WBTC": token.NewAssetVault(token.New("WBTC"), custody),
	}); !errors.Is(err, ErrConfigMismatch) {
		t.Fatalf("expected ErrConfigMismatch for wrong symbol, got %v", err)
	}
}

func TestStaleQuoteBlocksMint(t *testing.T) {
	feed := oracle.NewManualFeed(big.NewInt(2000_00000000), 8)
	registry, err := oracle.NewAdapter([]string{"WETH"}, []oracle.PriceFeed{feed}, time.Minute)
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	ledger := vault.NewLedger(registry)
	eval := solvency.NewEvaluator(ledger)
	weth := token.New("WETH")
	core, err := NewEngine(registry, ledger, eval, token.NewDebtUnit(token.New("SUSD"), custody), map[string]CollateralAsset{
		"WETH": token.NewAssetVault(weth, custody),
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	user := addr(0x0C)
	if err := weth.Mint(user, usd(1)); err != nil {
		t.Fatalf("fund: %v", err)
	}
	if err := core.DepositCollateral(user, "WETH", usd(1)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	feed.Set(big.NewInt(2000_00000000), 8, time.Now().Add(-time.Hour))
	if err := core.MintDebt(user, usd(100)); !errors.Is(err, oracle.ErrStalePrice) {
		t.Fatalf("expected ErrStalePrice to block mint, got %v", err)
	}
	if debt := ledger.Debt(user); debt.Sign() != 0 {
		t.Fatalf("stale-price mint left debt: %s", debt)
	}
}
