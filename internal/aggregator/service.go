package aggregator

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	container "github.com/thehyperflames/dicontainer-go"

	"github.com/hxuan190/dex-aggregator/internal/adapters/persistence"
	"github.com/hxuan190/dex-aggregator/internal/config"
	"github.com/hxuan190/dex-aggregator/internal/dex"
	"github.com/hxuan190/dex-aggregator/internal/dex/icpswap"
	"github.com/hxuan190/dex-aggregator/internal/dex/kongswap"
	"github.com/hxuan190/dex-aggregator/internal/pending"
	"github.com/hxuan190/dex-aggregator/internal/rpc/gateway"
	"github.com/hxuan190/dex-aggregator/internal/services"
	"github.com/hxuan190/dex-aggregator/internal/store"
	"github.com/hxuan190/dex-aggregator/internal/tokens"
)

const AGGREGATOR_SERVICE = "aggregator-service"

var (
	// Error aliases
	ErrIncompatibleStandard = dex.ErrIncompatibleStandard
	ErrAmountTooSmall       = dex.ErrAmountTooSmall
	ErrNoPoolForPair        = dex.ErrNoPoolForPair
	ErrQuoteFailed          = dex.ErrQuoteFailed
	ErrSwapFailed           = dex.ErrSwapFailed
	ErrClaimFailed          = dex.ErrClaimFailed
	ErrInvalidQuote         = dex.ErrInvalidQuote
	ErrPendingNotFound      = pending.ErrPendingNotFound
)

// Components is the aggregator and everything it is wired to: the durable
// store, the canister gateway, the token resolver and the adapters.
type Components struct {
	DB         store.Store
	Client     *gateway.Client
	Tokens     *tokens.Resolver
	Pending    *pending.Cache
	Aggregator *Aggregator

	bolt *persistence.BoltStore
}

// NewComponents opens the store and registers every enabled adapter.
func NewComponents(rpcConfig *config.RPCConfig, aggConfig *config.AggregatorConfig) (*Components, error) {
	c := &Components{}
	if aggConfig.PersistenceEnabled {
		bolt, err := persistence.NewBoltStore(aggConfig.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open aggregator store: %w", err)
		}
		c.bolt = bolt
		c.DB = bolt
	} else {
		log.Warn().Msg("[aggregatorService] persistence disabled, pending transfers will not survive a restart")
		c.DB = store.NewMemory()
	}

	c.Client = gateway.New(gateway.Config{
		BaseURL:           rpcConfig.GatewayURL,
		APIKey:            rpcConfig.GatewayAPIKey,
		Caller:            rpcConfig.CallerPrincipal,
		RequestsPerSecond: rpcConfig.RequestsPerSecond,
		Burst:             rpcConfig.Burst,
	})
	c.Tokens = tokens.NewResolver(c.Client, store.Prefixed(c.DB, "tokens"))
	c.Pending = pending.New(c.DB)

	c.Aggregator = New(c.Tokens,
		WithPending(c.Pending),
		WithConcurrency(aggConfig.QuoteConcurrency),
		WithDefaultSlippage(aggConfig.DefaultSlippage),
	)
	for _, adapter := range c.adapters(rpcConfig, aggConfig) {
		if err := c.Aggregator.RegisterDex(adapter); err != nil {
			_ = c.Close()
			return nil, err
		}
	}
	return c, nil
}

func (c *Components) adapters(rpcConfig *config.RPCConfig, aggConfig *config.AggregatorConfig) []dex.Adapter {
	var out []dex.Adapter
	if aggConfig.DexEnabled(icpswap.DexID) {
		out = append(out, icpswap.New(icpswap.Deps{
			Factory: c.Client.Factory(rpcConfig.ICPSwapFactoryID),
			Pools:   c.Client,
			Ledgers: c.Client,
			Tokens:  c.Tokens,
			Pending: c.Pending,
			Cache:   c.DB,
			Owner:   rpcConfig.CallerPrincipal,
			FeeTier: aggConfig.ICPSwapFeeTier,
		}))
	}
	if aggConfig.DexEnabled(kongswap.DexID) {
		out = append(out, kongswap.New(kongswap.Deps{
			Backend: c.Client.Routed(rpcConfig.KongSwapBackendID),
			Ledgers: c.Client,
			Tokens:  c.Tokens,
			Pending: c.Pending,
			Cache:   c.DB,
			Owner:   rpcConfig.CallerPrincipal,
		}))
	}
	return out
}

// Close flushes and closes the durable store, if any.
func (c *Components) Close() error {
	if c.bolt == nil {
		return nil
	}
	return c.bolt.Close()
}

type Service struct {
	container.BaseDIInstance
	logger *services.ServiceLogger

	config *config.AggregatorConfig
	*Components
}

func (svc *Service) ID() string {
	return AGGREGATOR_SERVICE
}

func (svc *Service) Configure(c container.IContainer) error {
	svc.logger = services.NewServiceLogger(svc)
	rpcConfig := c.GetConfig(config.RPC_CONFIG_KEY).(*config.RPCConfig)
	svc.config = c.GetConfig(config.AGGREGATOR_CONFIG_KEY).(*config.AggregatorConfig)

	components, err := NewComponents(rpcConfig, svc.config)
	if err != nil {
		return err
	}
	svc.Components = components
	return nil
}

// Start reports transfers left behind by a previous run. Resuming them is an
// operator decision, so nothing is replayed automatically.
func (svc *Service) Start() error {
	recs, err := svc.Pending.List()
	if err != nil {
		return err
	}
	for _, rec := range recs {
		svc.logger.Warn().
			Str("key", rec.Key).
			Str("dex", rec.DexID).
			Str("amount", rec.Amount.String()).
			Msg("[aggregatorService] pending transfer awaiting resume")
	}

	claims, err := svc.Aggregator.OutstandingClaims()
	if err != nil {
		return err
	}
	svc.logger.Info().
		Int("dexes", len(svc.Aggregator.Dexes())).
		Int("pending", len(recs)).
		Int("claims", len(claims)).
		Int("tokens", svc.Tokens.CachedCount()).
		Msg("[aggregatorService] started")
	return nil
}

func (svc *Service) Stop() error {
	if svc.Components == nil {
		return nil
	}
	if err := svc.Close(); err != nil {
		log.Error().Err(err).Msg("[aggregatorService] failed to close store")
		return err
	}
	return nil
}

func (svc *Service) SplitEnabled() bool {
	return svc.config.SplitEnabled
}

// RetryClaims retries every outstanding claim and logs what is still owed.
func (svc *Service) RetryClaims(ctx context.Context) (map[string]int, error) {
	settled, err := svc.Aggregator.RetryClaims(ctx)
	if left, lerr := svc.Aggregator.OutstandingClaims(); lerr == nil && len(left) > 0 {
		svc.logger.Warn().Int("outstanding", len(left)).Msg("[aggregatorService] claims still outstanding")
	}
	return settled, err
}
