package rpc

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stablemint/native/oracle"
	"stablemint/native/solvency"
	"stablemint/native/vault"
)

// Server exposes the read-only query surface: account snapshots, health
// factors, and per-asset valuations. State changes never flow through HTTP;
// they are caller-driven through the engine API.
type Server struct {
	ledger   *vault.Ledger
	eval     *solvency.Evaluator
	registry *oracle.Adapter
	logger   *slog.Logger
}

// NewServer wires the query surface to the ledger, evaluator, and oracle
// registry.
func NewServer(ledger *vault.Ledger, eval *solvency.Evaluator, registry *oracle.Adapter, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{ledger: ledger, eval: eval, registry: registry, logger: logger}
}

// Handler mounts the routes and returns the root handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/v1", func(r chi.Router) {
		r.Get("/collateral", s.listCollateral)
		r.Get("/collateral/{symbol}/value", s.collateralValue)
		r.Get("/accounts/{address}", s.accountSnapshot)
		r.Get("/accounts/{address}/health", s.accountHealth)
	})
	return r
}

type snapshotResponse struct {
	Address            string            `json:"address"`
	DebtMinted         string            `json:"debtMinted"`
	CollateralValueUSD string            `json:"collateralValueUsd"`
	Collateral         map[string]string `json:"collateral"`
}

func (s *Server) accountSnapshot(w http.ResponseWriter, r *http.Request) {
	account, ok := s.parseAddress(w, r)
	if !ok {
		return
	}
	debt, collateralValue, err := s.eval.Snapshot(account)
	if err != nil {
		s.writeError(w, err)
		return
	}
	position := s.ledger.Position(account)
	balances := make(map[string]string, len(position.Collateral))
	for symbol, balance := range position.Collateral {
		balances[symbol] = balance.String()
	}
	writeJSON(w, http.StatusOK, snapshotResponse{
		Address:            account.Hex(),
		DebtMinted:         debt.String(),
		CollateralValueUSD: collateralValue.String(),
		Collateral:         balances,
	})
}

type healthResponse struct {
	Address      string `json:"address"`
	HealthFactor string `json:"healthFactor"`
	Liquidatable bool   `json:"liquidatable"`
}

func (s *Server) accountHealth(w http.ResponseWriter, r *http.Request) {
	account, ok := s.parseAddress(w, r)
	if !ok {
		return
	}
	factor, err := s.eval.HealthFactor(account)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Address:      account.Hex(),
		HealthFactor: factor.String(),
		Liquidatable: factor.Cmp(solvency.MinHealthFactor()) < 0,
	})
}

func (s *Server) listCollateral(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"symbols": s.registry.Symbols()})
}

type valueResponse struct {
	Symbol   string `json:"symbol"`
	Amount   string `json:"amount"`
	ValueUSD string `json:"valueUsd"`
}

func (s *Server) collateralValue(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	raw := r.URL.Query().Get("amount")
	amount, ok := new(big.Int).SetString(raw, 10)
	if !ok || amount.Sign() < 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("amount must be a non-negative integer"))
		return
	}
	value, err := s.registry.USDValue(symbol, amount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, valueResponse{Symbol: symbol, Amount: amount.String(), ValueUSD: value.String()})
}

func (s *Server) parseAddress(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	raw := chi.URLParam(r, "address")
	if !common.IsHexAddress(raw) {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid account address"))
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, oracle.ErrUnknownAsset):
		status = http.StatusNotFound
	case errors.Is(err, oracle.ErrInvalidPrice), errors.Is(err, oracle.ErrStalePrice):
		status = http.StatusBadGateway
	}
	s.logger.Warn("query failed", "err", err, "status", status)
	writeJSON(w, status, errorBody(err.Error()))
}

func errorBody(message string) map[string]string {
	return map[string]string{"error": message}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
