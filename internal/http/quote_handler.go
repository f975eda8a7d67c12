package http

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/hxuan190/dex-aggregator/internal/aggregator"
	"github.com/hxuan190/dex-aggregator/internal/dex"
	"github.com/hxuan190/dex-aggregator/internal/domain"
	"github.com/hxuan190/dex-aggregator/internal/http/httputil"
)

type QuoteHandler struct {
	agg          *aggregator.Aggregator
	splitEnabled bool
}

func NewQuoteHandler(agg *aggregator.Aggregator, splitEnabled bool) *QuoteHandler {
	return &QuoteHandler{agg: agg, splitEnabled: splitEnabled}
}

func (h *QuoteHandler) SetRoutes(pub *gin.RouterGroup, admin *gin.RouterGroup) {
	pub.GET("", h.getQuote)
}

func (h *QuoteHandler) Root() string {
	return "/quote"
}

// QuoteRequest represents the parameters for requesting swap quotes
type QuoteRequest struct {
	// Input token ledger canister id
	InputToken string `form:"inputToken" binding:"required" example:"ryjl3-tyaaa-aaaaa-aaaba-cai"`

	// Output token ledger canister id
	OutputToken string `form:"outputToken" binding:"required" example:"mxzaz-hqaaa-aaaar-qaada-cai"`

	// Amount in smallest token units, ledger transfer fees included
	Amount string `form:"amount" binding:"required" example:"100000000"`

	// Slippage tolerance in basis points (1 bps = 0.01%). Default: 100 (1%)
	SlippageBps *uint16 `form:"slippageBps" example:"100"`

	// Preferred transfer standard when the token and dex share both
	Standard string `form:"standard" enums:"ICRC1,ICRC2" example:"ICRC2"`

	// Comma separated dex ids to restrict the search to
	DexIDs string `form:"dexIds" example:"icpswap,kongswap"`

	// Also try splitting the order between the two best dexes
	Split bool `form:"split" example:"true"`
}

// RouteInfo describes a single hop in the swap route
type RouteInfo struct {
	DexID       string `json:"dexId" example:"icpswap"`
	PoolID      string `json:"poolId" example:"xmiu5-jqaaa-aaaag-qbz7q-cai"`
	InputToken  string `json:"inputToken" example:"ryjl3-tyaaa-aaaaa-aaaba-cai"`
	OutputToken string `json:"outputToken" example:"mxzaz-hqaaa-aaaar-qaada-cai"`
	AmountIn    string `json:"amountIn" example:"99980000"`
	AmountOut   string `json:"amountOut" example:"1250000000"`
}

// FeeInfo itemizes what the swap costs beyond market impact
type FeeInfo struct {
	// Ledger fees paid on the input token (approve / transfer / deposit)
	InputTransferFees string `json:"inputTransferFees" example:"20000"`
	// Ledger fees deducted from the output
	OutputWithdrawalFees string `json:"outputWithdrawalFees" example:"10"`
	// Pool fee charged in input token units
	DexTradingFee    string `json:"dexTradingFee" example:"299940"`
	InputFeeCount    int    `json:"inputFeeCount" example:"2"`
	OutputFeeCount   int    `json:"outputFeeCount" example:"1"`
	DexFeePercentage string `json:"dexFeePercent" example:"0.30%"`
}

// QuoteInfo is one ranked quote, or a split across two dexes
type QuoteInfo struct {
	DexID                string `json:"dexId" example:"icpswap"`
	DexName              string `json:"dexName" example:"ICPSwap"`
	InputToken           string `json:"inputToken"`
	OutputToken          string `json:"outputToken"`
	AmountIn             string `json:"amountIn" example:"100000000"`
	EffectiveAmountIn    string `json:"effectiveAmountIn" example:"99980000"`
	AmountOut            string `json:"amountOut" example:"1250000000"`
	MinimumAmountOut     string `json:"minimumAmountOut" example:"1237500000"`

	// Output per input at the pool's current price, decimals applied
	SpotPrice float64 `json:"spotPrice" example:"12.56"`

	// Price impact in basis points (1 bps = 0.01%)
	PriceImpactBps      uint16 `json:"priceImpactBps" example:"25"`
	PriceImpactPercent  string `json:"priceImpactPercent" example:"0.25%"`
	PriceImpactSeverity string `json:"priceImpactSeverity" enums:"none,low,moderate,high,extreme" example:"none"`
	PriceImpactWarning  string `json:"priceImpactWarning,omitempty"`

	Fees     FeeInfo     `json:"fees"`
	Standard string      `json:"standard" example:"ICRC2"`
	Routes   []RouteInfo `json:"routes"`
	HopCount int         `json:"hopCount" example:"1"`

	IsSplit bool `json:"isSplit,omitempty"`
	// Percentage of the input routed to the second leg
	Distribution int         `json:"distribution,omitempty" example:"30"`
	Legs         []QuoteInfo `json:"legs,omitempty"`
}

// QuoteResponse contains every dex that answered, best first
type QuoteResponse struct {
	Best   *QuoteInfo  `json:"best"`
	Quotes []QuoteInfo `json:"quotes"`
	Split  *QuoteInfo  `json:"split,omitempty"`
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func toQuoteInfo(q *domain.SwapQuote) QuoteInfo {
	bps := dex.ImpactBps(q.PriceImpact)
	info := QuoteInfo{
		DexID:               q.DexID,
		DexName:             q.DexName,
		InputToken:          q.InputToken,
		OutputToken:         q.OutputToken,
		AmountIn:            amountString(q.InputAmount),
		EffectiveAmountIn:   amountString(q.EffectiveInputAmount),
		AmountOut:           amountString(q.ExpectedOutput),
		MinimumAmountOut:    amountString(q.MinimumOutput),
		SpotPrice:           q.SpotPrice,
		PriceImpactBps:      bps,
		PriceImpactPercent:  fmt.Sprintf("%.2f%%", q.PriceImpact*100),
		PriceImpactSeverity: string(dex.GetPriceImpactSeverity(bps)),
		PriceImpactWarning:  dex.GetPriceImpactWarning(bps),
		Fees: FeeInfo{
			InputTransferFees:    amountString(q.FeeBreakdown.InputTransferFees),
			OutputWithdrawalFees: amountString(q.FeeBreakdown.OutputWithdrawalFees),
			DexTradingFee:        amountString(q.FeeBreakdown.DexTradingFee),
			InputFeeCount:        q.FeeBreakdown.InputFeeCount,
			OutputFeeCount:       q.FeeBreakdown.OutputFeeCount,
			DexFeePercentage:     fmt.Sprintf("%.2f%%", q.DexFeePercent),
		},
		Standard:     string(q.Standard),
		Routes:       make([]RouteInfo, 0, len(q.Route)),
		HopCount:     q.Hops(),
		IsSplit:      q.IsSplitQuote,
		Distribution: q.Distribution,
	}
	for _, step := range q.Route {
		info.Routes = append(info.Routes, RouteInfo{
			DexID:       step.DexID,
			PoolID:      step.PoolID,
			InputToken:  step.InputToken,
			OutputToken: step.OutputToken,
			AmountIn:    amountString(step.AmountIn),
			AmountOut:   amountString(step.AmountOut),
		})
	}
	for _, leg := range q.Legs {
		if leg != nil {
			info.Legs = append(info.Legs, toQuoteInfo(leg))
		}
	}
	return info
}

type parsedQuoteRequest struct {
	params aggregator.QuoteParams
	split  bool
}

// parseQuoteParams validates the shared quote/swap parameters.
func parseQuoteParams(in, out, amountStr string, slippageBps *uint16, standard, dexIDs string, defaultSlippage float64) (aggregator.QuoteParams, error) {
	p := aggregator.QuoteParams{InputToken: in, OutputToken: out, Slippage: defaultSlippage}
	if in == out {
		return p, errors.New("inputToken and outputToken must differ")
	}
	amount, ok := new(big.Int).SetString(amountStr, 10)
	if !ok || amount.Sign() <= 0 {
		return p, errors.New("invalid amount: must be a positive integer")
	}
	p.Amount = amount

	if slippageBps != nil {
		if *slippageBps > 10000 {
			return p, errors.New("invalid slippageBps: must be at most 10000")
		}
		p.Slippage = float64(*slippageBps) / 10000
	}
	if standard != "" {
		switch std := domain.Standard(strings.ToUpper(standard)); std {
		case domain.StandardICRC1, domain.StandardICRC2:
			p.PreferredStandard = std
		default:
			return p, errors.New("invalid standard: must be ICRC1 or ICRC2")
		}
	}
	for _, id := range strings.Split(dexIDs, ",") {
		if id = strings.TrimSpace(id); id != "" {
			p.DexIDs = append(p.DexIDs, id)
		}
	}
	return p, nil
}

func (h *QuoteHandler) parseQuoteRequest(c *gin.Context) (*parsedQuoteRequest, bool) {
	var req QuoteRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httputil.BadRequest(c, "invalid query parameters: "+err.Error())
		return nil, false
	}
	params, err := parseQuoteParams(req.InputToken, req.OutputToken, req.Amount, req.SlippageBps, req.Standard, req.DexIDs, h.agg.Slippage())
	if err != nil {
		httputil.BadRequest(c, err.Error())
		return nil, false
	}
	if req.Split && !h.splitEnabled {
		httputil.BadRequest(c, "split quotes are disabled")
		return nil, false
	}
	return &parsedQuoteRequest{params: params, split: req.Split}, true
}

// @Summary Get swap quotes
// @Description Quote every registered dex that shares a transfer standard with the input token and rank the results by expected output.
// @Description
// @Description **Amount Format:** smallest token units, ledger transfer fees included.
// @Description Each quote itemizes the transfer fees, the pool fee and the price impact.
// @Description
// @Description With `split=true` the order is also divided between the two best dexes; the split is returned only when it beats both.
// @Tags quote
// @Produce json
// @Param inputToken query string true "Input token ledger id"
// @Param outputToken query string true "Output token ledger id"
// @Param amount query string true "Amount in smallest token units"
// @Param slippageBps query int false "Slippage tolerance in basis points" example(100)
// @Param standard query string false "Preferred standard" Enums(ICRC1, ICRC2)
// @Param dexIds query string false "Comma separated dex ids"
// @Param split query bool false "Try a two-dex split"
// @Success 200 {object} QuoteResponse "Ranked quotes"
// @Failure 400 {object} httputil.Response "Invalid request parameters"
// @Failure 404 {object} httputil.Response "No dex quoted the pair"
// @Failure 422 {object} httputil.Response "No dex supports the token's standards"
// @Router /api/v1/quote [get]
func (h *QuoteHandler) getQuote(c *gin.Context) {
	parsed, ok := h.parseQuoteRequest(c)
	if !ok {
		return
	}

	best, err := h.agg.GetBestQuote(c.Request.Context(), parsed.params, parsed.split)
	if err != nil {
		handleError(c, err)
		return
	}
	if len(best.Quotes) == 0 {
		httputil.NotFound(c, "no dex returned a quote for this pair")
		return
	}

	resp := QuoteResponse{Quotes: make([]QuoteInfo, 0, len(best.Quotes))}
	for _, q := range best.Quotes {
		resp.Quotes = append(resp.Quotes, toQuoteInfo(q))
	}
	if best.Split != nil {
		split := toQuoteInfo(best.Split)
		resp.Split = &split
	}
	top := toQuoteInfo(best.Best())
	resp.Best = &top

	httputil.Success(c, resp)
}
