package main

import (
	"flag"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"stablemint/config"
	"stablemint/native/engine"
	"stablemint/native/oracle"
	"stablemint/native/solvency"
	"stablemint/native/token"
	"stablemint/native/vault"
	"stablemint/observability/logging"
	"stablemint/rpc"
)

const envVar = "STABLEMINT_ENV"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	listenFlag := flag.String("listen", "", "Override the HTTP listen address")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv(envVar))
	logger := logging.Setup("stablemintd", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}
	if *listenFlag != "" {
		cfg.ListenAddress = strings.TrimSpace(*listenFlag)
	}

	custody := common.HexToAddress(cfg.CustodyAddress)
	httpClient := &http.Client{Timeout: 10 * time.Second}

	symbols := make([]string, 0, len(cfg.Collateral))
	feeds := make([]oracle.PriceFeed, 0, len(cfg.Collateral))
	assets := make(map[string]engine.CollateralAsset, len(cfg.Collateral))
	for _, entry := range cfg.Collateral {
		symbols = append(symbols, entry.Symbol)
		feeds = append(feeds, oracle.NewHTTPFeed(httpClient, entry.FeedURL, entry.FeedDecimals))
		assets[entry.Symbol] = token.NewAssetVault(token.New(entry.Symbol), custody)
	}

	registry, err := oracle.NewAdapter(symbols, feeds, cfg.MaxQuoteAge())
	if err != nil {
		logger.Error("failed to build oracle registry", "err", err)
		os.Exit(1)
	}

	ledger := vault.NewLedger(registry)
	evaluator := solvency.NewEvaluator(ledger)
	debtUnit := token.NewDebtUnit(token.New(cfg.DebtSymbol), custody)

	core, err := engine.NewEngine(registry, ledger, evaluator, debtUnit, assets)
	if err != nil {
		logger.Error("failed to build engine", "err", err)
		os.Exit(1)
	}
	core.SetLogger(logger)

	server := rpc.NewServer(ledger, evaluator, registry, logger)
	logger.Info("stablemintd listening",
		"address", cfg.ListenAddress,
		"collateral", strings.Join(symbols, ","),
		"debtSymbol", cfg.DebtSymbol,
	)
	if err := http.ListenAndServe(cfg.ListenAddress, server.Handler()); err != nil {
		logger.Error("http server stopped", "err", err)
		os.Exit(1)
	}
}
