package oracle

import (
	"fmt"
	"math/big"
	"sync"
	"time"
)

// ManualFeed provides an in-memory feed implementation used for tests and
// manual overrides during incident response.
type ManualFeed struct {
	mu       sync.RWMutex
	round    RoundData
	failWith error
}

// NewManualFeed constructs a feed pre-loaded with the supplied answer at the
// given source precision, stamped now.
func NewManualFeed(answer *big.Int, decimals uint8) *ManualFeed {
	feed := &ManualFeed{}
	feed.Set(answer, decimals, time.Now())
	return feed
}

// Set replaces the stored round. The round id advances on every update.
func (m *ManualFeed) Set(answer *big.Int, decimals uint8, updatedAt time.Time) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.round.RoundID++
	m.round.Decimals = decimals
	m.round.UpdatedAt = updatedAt
	if answer != nil {
		m.round.Answer = new(big.Int).Set(answer)
	} else {
		m.round.Answer = nil
	}
	m.failWith = nil
}

// Fail forces subsequent reads to return err until the next Set.
func (m *ManualFeed) Fail(err error) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.failWith = err
	m.mu.Unlock()
}

// LatestRound returns a copy of the stored round.
func (m *ManualFeed) LatestRound() (RoundData, error) {
	if m == nil {
		return RoundData{}, fmt.Errorf("oracle: manual feed not configured")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failWith != nil {
		return RoundData{}, m.failWith
	}
	round := m.round
	if round.Answer != nil {
		round.Answer = new(big.Int).Set(round.Answer)
	}
	return round, nil
}
