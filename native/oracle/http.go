package oracle

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// HTTPDoer abstracts http.Client for ease of testing.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPFeed fetches price data from a JSON quote endpoint. The endpoint is
// expected to return {"price": "<decimal>", "timestamp": <unix seconds>}.
type HTTPFeed struct {
	client   HTTPDoer
	endpoint string
	decimals uint8
}

// NewHTTPFeed constructs an HTTP feed adapter. When the client is nil
// http.DefaultClient is used. decimals fixes the source precision the decoded
// answer is scaled to.
func NewHTTPFeed(client HTTPDoer, endpoint string, decimals uint8) *HTTPFeed {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFeed{client: client, endpoint: strings.TrimSpace(endpoint), decimals: decimals}
}

func (f *HTTPFeed) LatestRound() (RoundData, error) {
	if f == nil || f.endpoint == "" {
		return RoundData{}, fmt.Errorf("oracle: http feed not configured")
	}
	req, err := http.NewRequest(http.MethodGet, f.endpoint, nil)
	if err != nil {
		return RoundData{}, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return RoundData{}, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return RoundData{}, fmt.Errorf("oracle: http feed status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var payload struct {
		Price     string `json:"price"`
		Timestamp int64  `json:"timestamp"`
		Round     uint64 `json:"round"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return RoundData{}, fmt.Errorf("oracle: http feed decode: %w", err)
	}
	price := strings.TrimSpace(payload.Price)
	if price == "" {
		return RoundData{}, ErrInvalidPrice
	}
	parsed, err := decimal.NewFromString(price)
	if err != nil {
		return RoundData{}, fmt.Errorf("oracle: http feed price %q: %w", payload.Price, err)
	}
	if parsed.Sign() <= 0 {
		return RoundData{}, ErrInvalidPrice
	}
	answer := parsed.Shift(int32(f.decimals)).Truncate(0).BigInt()
	ts := time.Unix(payload.Timestamp, 0)
	if payload.Timestamp <= 0 {
		ts = time.Now().UTC()
	}
	return RoundData{
		RoundID:   payload.Round,
		Answer:    answer,
		Decimals:  f.decimals,
		UpdatedAt: ts,
	}, nil
}
