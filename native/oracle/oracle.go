package oracle

import (
	"errors"
	"math/big"
	"time"
)

var (
	// ErrInvalidPrice indicates the feed reported a zero or negative answer.
	ErrInvalidPrice = errors.New("oracle: feed returned non-positive price")
	// ErrStalePrice indicates the feed answer is older than the configured
	// freshness window.
	ErrStalePrice = errors.New("oracle: feed answer is stale")
	// ErrUnknownAsset indicates the requested symbol is not registered.
	ErrUnknownAsset = errors.New("oracle: asset not registered")
	// ErrConfigMismatch indicates the symbol and feed slices supplied at
	// initialisation have different lengths.
	ErrConfigMismatch = errors.New("oracle: symbol and feed counts differ")
)

// RoundData is a point-in-time reading from an external price source. Answer
// is scaled by Decimals; the engine consumes only the answer and timestamp.
type RoundData struct {
	RoundID   uint64
	Answer    *big.Int
	Decimals  uint8
	UpdatedAt time.Time
}

// PriceFeed resolves the latest USD price reading for a single asset. Every
// valuation re-queries the source; callers must not cache readings.
type PriceFeed interface {
	LatestRound() (RoundData, error)
}
