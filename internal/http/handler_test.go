package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	gohttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hxuan190/dex-aggregator/internal/aggregator"
	"github.com/hxuan190/dex-aggregator/internal/common"
	"github.com/hxuan190/dex-aggregator/internal/config"
	"github.com/hxuan190/dex-aggregator/internal/dex"
	"github.com/hxuan190/dex-aggregator/internal/domain"
	"github.com/hxuan190/dex-aggregator/internal/http/middlewares"
	"github.com/hxuan190/dex-aggregator/internal/pending"
	"github.com/hxuan190/dex-aggregator/internal/store"
)

const (
	ledgerIn  = "ledger-in"
	ledgerOut = "ledger-out"
)

type stubTokens struct {
	infos   map[string]*domain.TokenInfo
	cleared bool
}

func newStubTokens() *stubTokens {
	both := []domain.Standard{domain.StandardICRC2, domain.StandardICRC1}
	one := []domain.Standard{domain.StandardICRC1}
	return &stubTokens{infos: map[string]*domain.TokenInfo{
		ledgerIn:     {LedgerID: ledgerIn, Symbol: "IN", Decimals: 8, Fee: big.NewInt(0), Standards: both},
		ledgerOut:    {LedgerID: ledgerOut, Symbol: "OUT", Decimals: 8, Fee: big.NewInt(0), Standards: both},
		"icrc1-only": {LedgerID: "icrc1-only", Symbol: "ONE", Decimals: 8, Fee: big.NewInt(0), Standards: one},
	}}
}

func (s *stubTokens) GetTokenInfo(ctx context.Context, id string) (*domain.TokenInfo, error) {
	info, ok := s.infos[id]
	if !ok {
		return nil, fmt.Errorf("unknown ledger %s", id)
	}
	return info, nil
}

func (s *stubTokens) Invalidate(id string) { delete(s.infos, id) }
func (s *stubTokens) ClearCache()          { s.cleared = true }

// stubDex quotes amount×rate and executes at the quoted amount.
type stubDex struct {
	id      string
	rate    int64
	swapErr string
}

func (d *stubDex) ID() string   { return d.id }
func (d *stubDex) Name() string { return strings.ToUpper(d.id) }
func (d *stubDex) SupportedStandards() []domain.Standard {
	return []domain.Standard{domain.StandardICRC2}
}
func (d *stubDex) InputFeeCount(domain.Standard) int  { return 2 }
func (d *stubDex) OutputFeeCount(domain.Standard) int { return 0 }

func (d *stubDex) HasPair(ctx context.Context, a, b string) (bool, error) {
	return a == ledgerIn && b == ledgerOut, nil
}

func (d *stubDex) GetPairsForToken(ctx context.Context, token string) ([]domain.Pair, error) {
	return []domain.Pair{{DexID: d.id, InputToken: token, OutputToken: ledgerOut, PoolID: d.id + "-pool"}}, nil
}

func (d *stubDex) GetSpotPrice(ctx context.Context, in, out string) (float64, error) {
	return float64(d.rate), nil
}

func (d *stubDex) GetQuote(ctx context.Context, req dex.QuoteRequest) (*domain.SwapQuote, error) {
	out := new(big.Int).Mul(req.Amount, big.NewInt(d.rate))
	return &domain.SwapQuote{
		DexID:                d.id,
		DexName:              d.Name(),
		InputToken:           req.InputToken,
		OutputToken:          req.OutputToken,
		InputAmount:          req.Amount,
		EffectiveInputAmount: req.Amount,
		ExpectedOutput:       out,
		MinimumOutput:        dex.MinimumOutput(out, req.Slippage),
		SpotPrice:            float64(d.rate),
		PriceImpact:          0.0125,
		DexFeePercent:        0.3,
		FeeBreakdown: domain.FeeBreakdown{
			InputTransferFees:    new(big.Int),
			OutputWithdrawalFees: new(big.Int),
			DexTradingFee:        new(big.Int),
			InputFeeCount:        2,
		},
		Standard: req.Standard,
		Route: []domain.RouteStep{{
			DexID: d.id, PoolID: d.id + "-pool", InputToken: req.InputToken, OutputToken: req.OutputToken,
			AmountIn: req.Amount, AmountOut: out,
		}},
		Timestamp: time.Now(),
	}, nil
}

func (d *stubDex) ExecuteSwap(ctx context.Context, req dex.SwapRequest) (*domain.SwapResult, error) {
	tr := dex.NewTracker(req.OnProgress, 2)
	tr.Step(domain.StepApproving, "approving")
	tr.Step(domain.StepSwapping, "swapping")
	if d.swapErr != "" {
		err := fmt.Errorf("%w: %s", dex.ErrSwapFailed, d.swapErr)
		tr.Fail(err)
		return domain.FailedResult(err), nil
	}
	tr.Complete("done", "42")
	return &domain.SwapResult{Success: true, AmountOut: req.Quote.ExpectedOutput, TxID: "42"}, nil
}

type fixture struct {
	agg    *aggregator.Aggregator
	tokens *stubTokens
	engine *gin.Engine
	pend   *pending.Cache
}

func newFixture(t *testing.T, conf *config.GeneralConfig, limiter *middlewares.RateLimiter) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	if conf == nil {
		conf = &config.GeneralConfig{Env: config.DevEnv}
	}
	tokens := newStubTokens()
	pend := pending.New(store.NewMemory())
	agg := aggregator.New(tokens, aggregator.WithPending(pend))
	require.NoError(t, agg.RegisterDex(&stubDex{id: "alpha", rate: 2}))
	require.NoError(t, agg.RegisterDex(&stubDex{id: "beta", rate: 3}))
	return &fixture{
		agg:    agg,
		tokens: tokens,
		pend:   pend,
		engine: newEngine(conf, limiter, newHandlers(agg, tokens, true)),
	}
}

func (f *fixture) do(method, path string, body io.Reader, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

type envelope[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) envelope[T] {
	t.Helper()
	var env envelope[T]
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil, nil)
	w := f.do(gohttp.MethodGet, "/health", nil)
	assert.Equal(t, gohttp.StatusOK, w.Code)
}

func TestGetQuote(t *testing.T) {
	f := newFixture(t, nil, nil)
	w := f.do(gohttp.MethodGet, "/api/v1/quote?inputToken=ledger-in&outputToken=ledger-out&amount=1000&slippageBps=100&split=true", nil)
	require.Equal(t, gohttp.StatusOK, w.Code, w.Body.String())

	env := decode[QuoteResponse](t, w)
	require.True(t, env.Success)
	require.Len(t, env.Data.Quotes, 2)
	assert.Equal(t, "beta", env.Data.Quotes[0].DexID)
	assert.Equal(t, "alpha", env.Data.Quotes[1].DexID)
	require.NotNil(t, env.Data.Best)
	assert.Equal(t, "3000", env.Data.Best.AmountOut)
	assert.Equal(t, "2970", env.Data.Best.MinimumAmountOut)
	assert.Equal(t, uint16(125), env.Data.Best.PriceImpactBps)
	assert.Equal(t, "low", env.Data.Best.PriceImpactSeverity)
	assert.Equal(t, "0.30%", env.Data.Best.Fees.DexFeePercentage)
	assert.Equal(t, "ICRC2", env.Data.Best.Standard)
	require.Len(t, env.Data.Best.Routes, 1)
	assert.Equal(t, "beta-pool", env.Data.Best.Routes[0].PoolID)
	assert.Nil(t, env.Data.Split, "linear dexes never benefit from a split")
}

func TestGetQuoteErrors(t *testing.T) {
	f := newFixture(t, nil, nil)
	cases := []struct {
		name   string
		query  string
		status int
	}{
		{"missing params", "inputToken=ledger-in", gohttp.StatusBadRequest},
		{"bad amount", "inputToken=ledger-in&outputToken=ledger-out&amount=-5", gohttp.StatusBadRequest},
		{"same token", "inputToken=ledger-in&outputToken=ledger-in&amount=5", gohttp.StatusBadRequest},
		{"bad standard", "inputToken=ledger-in&outputToken=ledger-out&amount=5&standard=ICRC9", gohttp.StatusBadRequest},
		{"slippage over 100%", "inputToken=ledger-in&outputToken=ledger-out&amount=5&slippageBps=20000", gohttp.StatusBadRequest},
		{"unknown dex", "inputToken=ledger-in&outputToken=ledger-out&amount=5&dexIds=gamma", gohttp.StatusNotFound},
		{"incompatible standard", "inputToken=icrc1-only&outputToken=ledger-out&amount=5", gohttp.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := f.do(gohttp.MethodGet, "/api/v1/quote?"+tc.query, nil)
			assert.Equal(t, tc.status, w.Code, w.Body.String())
			assert.False(t, decode[any](t, w).Success)
		})
	}
}

func TestSwapStreamsProgress(t *testing.T) {
	f := newFixture(t, nil, nil)
	srv := httptest.NewServer(f.engine)
	t.Cleanup(srv.Close)

	resp, err := gohttp.Post(srv.URL+"/api/v1/swap", "application/json",
		strings.NewReader(`{"inputToken":"ledger-in","outputToken":"ledger-out","amount":"1000","dexId":"alpha"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, gohttp.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Execution-Id"))

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	body := string(raw)

	assert.Contains(t, body, "event:quote")
	assert.Contains(t, body, `"dexId":"alpha"`)
	assert.Equal(t, 3, strings.Count(body, "event:progress"))
	assert.Contains(t, body, `"step":"APPROVING"`)
	assert.Contains(t, body, `"step":"COMPLETE"`)
	assert.Contains(t, body, "event:result")
	assert.Contains(t, body, `"success":true`)
	assert.Contains(t, body, `"amountOut":"2000"`)
	assert.Less(t, strings.Index(body, "event:quote"), strings.Index(body, "event:result"))
}

func TestSwapRejectedByFloor(t *testing.T) {
	f := newFixture(t, nil, nil)
	w := f.do(gohttp.MethodPost, "/api/v1/swap",
		strings.NewReader(`{"inputToken":"ledger-in","outputToken":"ledger-out","amount":"1000","minAmountOut":"5000"}`),
		"Content-Type", "application/json")
	assert.Equal(t, gohttp.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "UNPROCESSABLE", decode[any](t, w).Code)
}

func TestDexesAndPairs(t *testing.T) {
	f := newFixture(t, nil, nil)

	w := f.do(gohttp.MethodGet, "/api/v1/dexes", nil)
	require.Equal(t, gohttp.StatusOK, w.Code)
	dexes := decode[[]DexInfo](t, w).Data
	require.Len(t, dexes, 2)
	assert.Equal(t, "alpha", dexes[0].ID)
	assert.Equal(t, []string{"ICRC2"}, dexes[0].Standards)

	w = f.do(gohttp.MethodGet, "/api/v1/dexes/available?tokenIn=ledger-in&tokenOut=ledger-out", nil)
	require.Equal(t, gohttp.StatusOK, w.Code)
	assert.ElementsMatch(t, []string{"alpha", "beta"}, decode[[]string](t, w).Data)

	w = f.do(gohttp.MethodGet, "/api/v1/dexes/available?tokenIn=ledger-in", nil)
	assert.Equal(t, gohttp.StatusBadRequest, w.Code)

	w = f.do(gohttp.MethodGet, "/api/v1/pairs/ledger-in", nil)
	require.Equal(t, gohttp.StatusOK, w.Code)
	pairs := decode[PairsResponse](t, w).Data
	assert.Equal(t, 2, pairs.Total)
}

func TestAdminRoutes(t *testing.T) {
	f := newFixture(t, &config.GeneralConfig{Env: config.ProdEnv, AdminToken: "s3cret"}, nil)

	w := f.do(gohttp.MethodGet, "/api/v1/admin/pending", nil)
	assert.Equal(t, gohttp.StatusUnauthorized, w.Code)

	require.NoError(t, f.pend.Save(&domain.PendingTransferRecord{
		DexID: "alpha", InputToken: ledgerIn, OutputToken: ledgerOut,
		BlockIndex: big.NewInt(7), Amount: big.NewInt(100), Timestamp: time.Now(),
	}))
	w = f.do(gohttp.MethodGet, "/api/v1/admin/pending", nil, "Authorization", "Bearer s3cret")
	require.Equal(t, gohttp.StatusOK, w.Code)
	recs := decode[[]domain.PendingTransferRecord](t, w).Data
	require.Len(t, recs, 1)
	assert.Equal(t, "alpha:ledger-in:ledger-out:7", recs[0].Key)

	// stubDex cannot resume
	w = f.do(gohttp.MethodPost, "/api/v1/admin/pending/"+recs[0].Key+"/resume", nil, "Authorization", "Bearer s3cret")
	assert.Equal(t, gohttp.StatusUnprocessableEntity, w.Code)

	w = f.do(gohttp.MethodPost, "/api/v1/admin/pending/missing/resume", nil, "Authorization", "Bearer s3cret")
	assert.Equal(t, gohttp.StatusNotFound, w.Code)

	w = f.do(gohttp.MethodGet, "/api/v1/admin/claims", nil, "Authorization", "Bearer s3cret")
	require.Equal(t, gohttp.StatusOK, w.Code)
	assert.Empty(t, decode[[]domain.OutstandingClaim](t, w).Data)

	w = f.do(gohttp.MethodDelete, "/api/v1/admin/tokens/cache", nil, "Authorization", "Bearer s3cret")
	require.Equal(t, gohttp.StatusOK, w.Code)
	assert.True(t, f.tokens.cleared)
}

func TestAdminDisabledWithoutTokenOutsideDev(t *testing.T) {
	f := newFixture(t, &config.GeneralConfig{Env: config.ProdEnv}, nil)
	w := f.do(gohttp.MethodGet, "/api/v1/admin/claims", nil)
	assert.Equal(t, gohttp.StatusForbidden, w.Code)
}

func TestTokenInfo(t *testing.T) {
	f := newFixture(t, nil, nil)
	w := f.do(gohttp.MethodGet, "/api/v1/tokens/ledger-in", nil)
	require.Equal(t, gohttp.StatusOK, w.Code)
	assert.Equal(t, "IN", decode[domain.TokenInfo](t, w).Data.Symbol)
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, nil, middlewares.NewRateLimiter(1, 2))
	assert.Equal(t, gohttp.StatusOK, f.do(gohttp.MethodGet, "/health", nil).Code)
	assert.Equal(t, gohttp.StatusOK, f.do(gohttp.MethodGet, "/health", nil).Code)
	assert.Equal(t, gohttp.StatusTooManyRequests, f.do(gohttp.MethodGet, "/health", nil).Code)
}

func TestToHttpError(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("x: %w", aggregator.ErrAdapterNotRegistered), gohttp.StatusNotFound},
		{dex.Wrap("icpswap", "quote", dex.ErrNoPoolForPair), gohttp.StatusNotFound},
		{pending.ErrPendingNotFound, gohttp.StatusNotFound},
		{dex.ErrAmountTooSmall, gohttp.StatusUnprocessableEntity},
		{aggregator.ErrCannotResume, gohttp.StatusUnprocessableEntity},
		{aggregator.ErrNoAdapters, gohttp.StatusServiceUnavailable},
		{dex.QuoteError("kongswap", errors.New("timeout")), gohttp.StatusBadGateway},
		{common.HTTPErrorForbidden(""), gohttp.StatusForbidden},
		{errors.New("boom"), gohttp.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			assert.Equal(t, tc.status, toHttpError(tc.err).StatusCode)
		})
	}
}
