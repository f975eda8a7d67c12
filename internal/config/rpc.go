package config

import (
	"errors"
	"os"
	"slices"
	"strconv"

	"github.com/andrew-solarstorm/go-packages/common"
)

type RPCConfig struct {
	// GatewayURL is the HTTP canister gateway every canister call goes through.
	GatewayURL    string
	GatewayAPIKey string
	// CallerPrincipal owns the funds being swapped.
	CallerPrincipal string
	// Gateway calls per second. Zero disables the limit.
	RequestsPerSecond float64
	Burst             int

	ICPSwapFactoryID  string
	KongSwapBackendID string
}

func (r *RPCConfig) Key() string {
	return RPC_CONFIG_KEY
}

func (r *RPCConfig) Load() error {
	r.GatewayURL = os.Getenv("GATEWAY_URL")
	r.GatewayAPIKey = os.Getenv("GATEWAY_API_KEY")
	r.CallerPrincipal = os.Getenv("CALLER_PRINCIPAL")
	r.ICPSwapFactoryID = common.GetEnvOrDefault("ICPSWAP_FACTORY_ID", "4mmnk-kiaaa-aaaag-qbllq-cai")
	r.KongSwapBackendID = common.GetEnvOrDefault("KONGSWAP_BACKEND_ID", "2ipq2-uqaaa-aaaar-qailq-cai")
	r.Burst = common.GetEnvOrDefaultInt("GATEWAY_BURST", 20)

	rps, err := strconv.ParseFloat(common.GetEnvOrDefault("GATEWAY_RPS", "10"), 64)
	if err != nil {
		return errors.New("invalid GATEWAY_RPS")
	}
	r.RequestsPerSecond = rps
	return nil
}

func (r *RPCConfig) Validate() error {
	if slices.Contains([]string{r.GatewayURL, r.CallerPrincipal}, "") {
		return errors.New("invalid rpc config")
	}
	return nil
}
