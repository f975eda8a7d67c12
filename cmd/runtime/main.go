package main

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	container "github.com/thehyperflames/dicontainer-go"

	"github.com/hxuan190/dex-aggregator/internal/aggregator"
	"github.com/hxuan190/dex-aggregator/internal/config"
	"github.com/hxuan190/dex-aggregator/internal/http"
)

// @title DEX Aggregator API
// @version 1.0-beta
// @description Swap aggregation across Internet Computer DEXes with best-route quoting and two-dex splits.
// @description
// @description ## - Features
// @description - **Multi-DEX Quotes**: Quotes ICPSwap and KongSwap concurrently and ranks them by output
// @description - **Split Routing**: Ternary search over the order distribution between the two best dexes
// @description - **Token Standards**: Resolves ICRC1/ICRC2 support per ledger and picks the cheaper transfer path
// @description - **Progress Streaming**: Swaps stream every step as server-sent events
// @description - **Recovery**: Pending transfers and unclaimed proceeds survive restarts and can be resumed
// @description
// @description ## - Supported DEXs
// @description | DEX | Canister | Standards |
// @description |-----|----------|-----------|
// @description | **ICPSwap** | `4mmnk-kiaaa-aaaag-qbllq-cai` (factory) | ICRC1, ICRC2 |
// @description | **KongSwap** | `2ipq2-uqaaa-aaaar-qailq-cai` | ICRC1, ICRC2 |
// @description
// @description ## - Usage Tips
// @description - Amounts are in base units of the input ledger
// @description - Default slippage is 100 bps (1%)
// @description - Rate Limit: 10 requests/second per client (burst: 20)
// @description
// @BasePath /
// @schemes https http
// @tag.name quote
// @tag.description Ranked quotes with price impact and fee breakdown
// @tag.name swap
// @tag.description Execute a quote and stream its progress
// @tag.name pairs
// @tag.description Pair discovery across dexes
// @tag.name dexes
// @tag.description Registered dexes and pair availability
// @tag.name tokens
// @tag.description Ledger metadata
// @tag.name admin
// @tag.description Pending transfers, claims and caches

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// load env
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("no .env file, using process environment")
	}
	if level, err := zerolog.ParseLevel(strings.ToLower(os.Getenv("LOG_LEVEL"))); err == nil && level != zerolog.NoLevel {
		zerolog.SetGlobalLevel(level)
	}

	// di container config
	conf := container.NewConf(
		&config.GeneralConfig{},
		&config.RPCConfig{},
		&config.AggregatorConfig{},
	)

	// di container
	dic, err := container.New(
		// config
		conf,

		// services
		&aggregator.Service{},
		&http.HTTPService{},
	)
	if err != nil {
		log.Error().Err(err).Msg("failed to create di container")
		return
	}

	// Run blocks until SIGINT/SIGTERM
	if err := dic.Run(); err != nil {
		log.Error().Err(err).Msg("failed to run di container")
		return
	}

	// Run doesn't call Stop(), we must do it manually
	log.Info().Msg("Shutting down services...")
	if err := dic.Stop(); err != nil {
		log.Error().Err(err).Msg("error during shutdown")
	}
	log.Info().Msg("Shutdown complete")
}
