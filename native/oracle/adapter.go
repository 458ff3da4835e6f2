package oracle

import (
	"fmt"
	"math/big"
	"strings"
	"time"
)

// precision is the canonical fixed-point scale shared with the ledger and
// solvency math.
var precision = big.NewInt(1_000_000_000_000_000_000)

// Adapter normalises heterogeneous feed precision into the canonical 1e18
// scale and answers USD valuation queries per registered asset. The asset set
// is built once at construction and is immutable thereafter.
type Adapter struct {
	symbols []string
	feeds   map[string]PriceFeed
	maxAge  time.Duration
}

// NewAdapter builds an adapter from parallel symbol and feed slices. The
// slices must have equal length. maxAge bounds quote freshness; zero disables
// the age check beyond what the feed itself guarantees.
func NewAdapter(symbols []string, feeds []PriceFeed, maxAge time.Duration) (*Adapter, error) {
	if len(symbols) != len(feeds) {
		return nil, ErrConfigMismatch
	}
	adapter := &Adapter{
		symbols: make([]string, 0, len(symbols)),
		feeds:   make(map[string]PriceFeed, len(symbols)),
		maxAge:  maxAge,
	}
	for i, symbol := range symbols {
		canonical := normaliseSymbol(symbol)
		if canonical == "" {
			return nil, fmt.Errorf("oracle: empty symbol at index %d", i)
		}
		if feeds[i] == nil {
			return nil, fmt.Errorf("oracle: nil feed for %s", canonical)
		}
		if _, exists := adapter.feeds[canonical]; exists {
			return nil, fmt.Errorf("oracle: duplicate symbol %s", canonical)
		}
		adapter.symbols = append(adapter.symbols, canonical)
		adapter.feeds[canonical] = feeds[i]
	}
	return adapter, nil
}

// Symbols returns the registered asset symbols in registration order.
func (a *Adapter) Symbols() []string {
	if a == nil {
		return nil
	}
	return append([]string{}, a.symbols...)
}

// Supports reports whether the symbol belongs to the registered asset set.
func (a *Adapter) Supports(symbol string) bool {
	if a == nil {
		return false
	}
	_, ok := a.feeds[normaliseSymbol(symbol)]
	return ok
}

// USDValue returns the 1e18-scaled USD value of amount units of the asset,
// where amount is itself expressed at the 1e18 native scale. The feed is
// re-queried on every call.
func (a *Adapter) USDValue(symbol string, amount *big.Int) (*big.Int, error) {
	price, err := a.normalisedPrice(symbol)
	if err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() == 0 {
		return big.NewInt(0), nil
	}
	// price and amount are both 1e18 scaled; divide once to undo the double
	// scaling.
	value := new(big.Int).Mul(price, amount)
	return value.Quo(value, precision), nil
}

// TokenAmountFromUSD converts a 1e18-scaled USD value into the equivalent
// 1e18-scaled token amount of the asset at the current feed price.
func (a *Adapter) TokenAmountFromUSD(symbol string, usdValue *big.Int) (*big.Int, error) {
	price, err := a.normalisedPrice(symbol)
	if err != nil {
		return nil, err
	}
	if usdValue == nil || usdValue.Sign() == 0 {
		return big.NewInt(0), nil
	}
	amount := new(big.Int).Mul(usdValue, precision)
	return amount.Quo(amount, price), nil
}

func (a *Adapter) normalisedPrice(symbol string) (*big.Int, error) {
	if a == nil {
		return nil, fmt.Errorf("oracle: adapter not configured")
	}
	feed, ok := a.feeds[normaliseSymbol(symbol)]
	if !ok {
		return nil, ErrUnknownAsset
	}
	round, err := feed.LatestRound()
	if err != nil {
		return nil, err
	}
	if round.Answer == nil || round.Answer.Sign() <= 0 {
		return nil, ErrInvalidPrice
	}
	if a.maxAge > 0 {
		if round.UpdatedAt.IsZero() || time.Since(round.UpdatedAt) > a.maxAge {
			return nil, ErrStalePrice
		}
	}
	if round.Decimals > 18 {
		return nil, fmt.Errorf("oracle: feed precision %d exceeds canonical scale", round.Decimals)
	}
	// Bridge the source precision up to 18 decimals, e.g. 1e10 for the
	// common 8-decimal feed.
	bridge := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(18-round.Decimals)), nil)
	return new(big.Int).Mul(round.Answer, bridge), nil
}

func normaliseSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
