package config

import (
	"errors"
	"strconv"
	"strings"

	"github.com/andrew-solarstorm/go-packages/common"
)

type AggregatorConfig struct {
	// DBPath is the path to the BoltDB file holding pending transfers, pool
	// ids, token metadata and outstanding claims.
	// Default: "./data/aggregator.db"
	DBPath string

	// PersistenceEnabled selects BoltDB over the in-memory store.
	// Default: true
	PersistenceEnabled bool

	// DefaultSlippage is the fraction applied when a request carries none.
	// Default: 0.01
	DefaultSlippage float64

	// SplitEnabled lets quote requests ask for a two-dex split.
	// Default: true
	SplitEnabled bool

	// QuoteConcurrency caps concurrent adapter calls per request. Zero is unlimited.
	QuoteConcurrency int

	// EnabledDexes lists the adapters to register. Default: "icpswap,kongswap"
	EnabledDexes []string

	// ICPSwapFeeTier is the pool fee tier in hundredths of a bip.
	// Default: 3000
	ICPSwapFeeTier uint32
}

func (c *AggregatorConfig) Key() string {
	return AGGREGATOR_CONFIG_KEY
}

func (c *AggregatorConfig) Load() error {
	c.DBPath = common.GetEnvOrDefault("AGGREGATOR_DB_PATH", "./data/aggregator.db")
	c.PersistenceEnabled = common.GetEnvOrDefault("AGGREGATOR_PERSISTENCE_ENABLED", "true") == "true"
	c.SplitEnabled = common.GetEnvOrDefault("AGGREGATOR_SPLIT_ENABLED", "true") == "true"
	c.QuoteConcurrency = common.GetEnvOrDefaultInt("AGGREGATOR_QUOTE_CONCURRENCY", 0)

	slippage, err := strconv.ParseFloat(common.GetEnvOrDefault("AGGREGATOR_DEFAULT_SLIPPAGE", "0.01"), 64)
	if err != nil {
		return errors.New("invalid AGGREGATOR_DEFAULT_SLIPPAGE")
	}
	c.DefaultSlippage = slippage

	c.EnabledDexes = nil
	for _, id := range strings.Split(common.GetEnvOrDefault("AGGREGATOR_DEXES", "icpswap,kongswap"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			c.EnabledDexes = append(c.EnabledDexes, id)
		}
	}
	c.ICPSwapFeeTier = uint32(common.GetEnvOrDefaultInt("ICPSWAP_FEE_TIER", 3000))
	return c.Validate()
}

func (c *AggregatorConfig) Validate() error {
	if c.DefaultSlippage < 0 || c.DefaultSlippage > 1 {
		return errors.New("default slippage must be within [0,1]")
	}
	if c.PersistenceEnabled && c.DBPath == "" {
		return errors.New("db path is required when persistence is enabled")
	}
	if c.QuoteConcurrency < 0 {
		return errors.New("quote concurrency must not be negative")
	}
	return nil
}

func (c *AggregatorConfig) DexEnabled(id string) bool {
	for _, d := range c.EnabledDexes {
		if d == id {
			return true
		}
	}
	return false
}
