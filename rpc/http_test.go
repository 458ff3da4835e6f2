package rpc

import (
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"stablemint/native/oracle"
	"stablemint/native/solvency"
	"stablemint/native/vault"
)

type harness struct {
	server *httptest.Server
	ledger *vault.Ledger
	feed   *oracle.ManualFeed
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	feed := oracle.NewManualFeed(big.NewInt(2000_00000000), 8)
	registry, err := oracle.NewAdapter([]string{"WETH"}, []oracle.PriceFeed{feed}, 0)
	require.NoError(t, err)
	ledger := vault.NewLedger(registry)
	eval := solvency.NewEvaluator(ledger)
	srv := httptest.NewServer(NewServer(ledger, eval, registry, nil).Handler())
	t.Cleanup(srv.Close)
	return &harness{server: srv, ledger: ledger, feed: feed}
}

func (h *harness) get(t *testing.T, path string, out any) int {
	t.Helper()
	resp, err := http.Get(h.server.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func eth(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000_000_000_000))
}

func TestHealthzAndCollateralList(t *testing.T) {
	h := newHarness(t)

	require.Equal(t, http.StatusOK, h.get(t, "/healthz", nil))

	var listing map[string][]string
	require.Equal(t, http.StatusOK, h.get(t, "/v1/collateral", &listing))
	require.Equal(t, []string{"WETH"}, listing["symbols"])
}

func TestAccountSnapshot(t *testing.T) {
	h := newHarness(t)
	account := common.BytesToAddress([]byte{0x01})
	require.NoError(t, h.ledger.Credit(account, "WETH", eth(2)))
	require.NoError(t, h.ledger.IncreaseDebt(account, eth(1000)))

	var snapshot snapshotResponse
	require.Equal(t, http.StatusOK, h.get(t, "/v1/accounts/"+account.Hex(), &snapshot))
	require.Equal(t, account.Hex(), snapshot.Address)
	require.Equal(t, eth(1000).String(), snapshot.DebtMinted)
	require.Equal(t, eth(4000).String(), snapshot.CollateralValueUSD)
	require.Equal(t, eth(2).String(), snapshot.Collateral["WETH"])
}

func TestAccountHealth(t *testing.T) {
	h := newHarness(t)
	account := common.BytesToAddress([]byte{0x02})
	require.NoError(t, h.ledger.Credit(account, "WETH", eth(1)))
	require.NoError(t, h.ledger.IncreaseDebt(account, eth(1000)))

	var health healthResponse
	require.Equal(t, http.StatusOK, h.get(t, "/v1/accounts/"+account.Hex()+"/health", &health))
	require.Equal(t, "1000000000000000000", health.HealthFactor)
	require.False(t, health.Liquidatable)

	h.feed.Set(big.NewInt(1600_00000000), 8, time.Now())
	require.Equal(t, http.StatusOK, h.get(t, "/v1/accounts/"+account.Hex()+"/health", &health))
	require.Equal(t, "800000000000000000", health.HealthFactor)
	require.True(t, health.Liquidatable)
}

func TestCollateralValue(t *testing.T) {
	h := newHarness(t)

	var value valueResponse
	status := h.get(t, "/v1/collateral/WETH/value?amount="+eth(3).String(), &value)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, eth(6000).String(), value.ValueUSD)
}

func TestQueryErrors(t *testing.T) {
	h := newHarness(t)

	require.Equal(t, http.StatusBadRequest, h.get(t, "/v1/accounts/not-an-address", nil))
	require.Equal(t, http.StatusBadRequest, h.get(t, "/v1/collateral/WETH/value?amount=abc", nil))
	require.Equal(t, http.StatusNotFound, h.get(t, "/v1/collateral/DOGE/value?amount=1", nil))

	h.feed.Fail(oracle.ErrInvalidPrice)
	require.Equal(t, http.StatusBadGateway, h.get(t, "/v1/collateral/WETH/value?amount=1", nil))
}
