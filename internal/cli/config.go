package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/hxuan190/dex-aggregator/internal/config"
)

// Settings is the slice of the runtime configuration a one-off command needs.
type Settings struct {
	RPC        config.RPCConfig
	Aggregator config.AggregatorConfig
}

// LoadSettings reads .swapctl.yaml from $HOME or the working directory, or
// file when set, and lets SWAPCTL_* environment variables override it.
func LoadSettings(v *viper.Viper, file string) (*Settings, error) {
	v.SetConfigType("yaml")
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(".swapctl")
		v.AddConfigPath("$HOME")
		v.AddConfigPath(".")
	}

	v.SetDefault("db_path", "./data/aggregator.db")
	v.SetDefault("persistence", true)
	v.SetDefault("slippage", 0.01)
	v.SetDefault("dexes", "icpswap,kongswap")
	v.SetDefault("icpswap_factory_id", "4mmnk-kiaaa-aaaag-qbllq-cai")
	v.SetDefault("icpswap_fee_tier", 3000)
	v.SetDefault("kongswap_backend_id", "2ipq2-uqaaa-aaaar-qailq-cai")
	v.SetDefault("rps", 10)
	v.SetDefault("burst", 20)

	v.SetEnvPrefix("SWAPCTL")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	s := &Settings{
		RPC: config.RPCConfig{
			GatewayURL:        v.GetString("gateway_url"),
			GatewayAPIKey:     v.GetString("gateway_api_key"),
			CallerPrincipal:   v.GetString("caller_principal"),
			RequestsPerSecond: v.GetFloat64("rps"),
			Burst:             v.GetInt("burst"),
			ICPSwapFactoryID:  v.GetString("icpswap_factory_id"),
			KongSwapBackendID: v.GetString("kongswap_backend_id"),
		},
		Aggregator: config.AggregatorConfig{
			DBPath:             v.GetString("db_path"),
			PersistenceEnabled: v.GetBool("persistence"),
			DefaultSlippage:    v.GetFloat64("slippage"),
			SplitEnabled:       true,
			EnabledDexes:       splitList(v.GetStringSlice("dexes")),
			ICPSwapFeeTier:     v.GetUint32("icpswap_fee_tier"),
		},
	}

	if err := s.RPC.Validate(); err != nil {
		return nil, fmt.Errorf("%w: set SWAPCTL_GATEWAY_URL and SWAPCTL_CALLER_PRINCIPAL or add them to .swapctl.yaml", err)
	}
	if err := s.Aggregator.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// splitList accepts both a yaml list and a comma separated env value.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
