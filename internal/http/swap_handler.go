package http

import (
	"context"
	"io"
	"math/big"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/hxuan190/dex-aggregator/internal/aggregator"
	"github.com/hxuan190/dex-aggregator/internal/common"
	"github.com/hxuan190/dex-aggregator/internal/domain"
	"github.com/hxuan190/dex-aggregator/internal/http/httputil"
)

// progressBuffer absorbs bursts of step events while the client reads.
const progressBuffer = 32

type SwapHandler struct {
	agg          *aggregator.Aggregator
	splitEnabled bool
}

func NewSwapHandler(agg *aggregator.Aggregator, splitEnabled bool) *SwapHandler {
	return &SwapHandler{agg: agg, splitEnabled: splitEnabled}
}

func (h *SwapHandler) SetRoutes(pub *gin.RouterGroup, admin *gin.RouterGroup) {
	pub.POST("", h.swap)
}

func (h *SwapHandler) Root() string {
	return "/swap"
}

// SwapRequest asks the aggregator to quote and execute in one call
type SwapRequest struct {
	InputToken  string  `json:"inputToken" binding:"required" example:"ryjl3-tyaaa-aaaaa-aaaba-cai"`
	OutputToken string  `json:"outputToken" binding:"required" example:"mxzaz-hqaaa-aaaar-qaada-cai"`
	Amount      string  `json:"amount" binding:"required" example:"100000000"`
	SlippageBps *uint16 `json:"slippageBps" example:"100"`
	Standard    string  `json:"standard" enums:"ICRC1,ICRC2"`

	// Execute on this dex only. Empty picks the best quote.
	DexID string `json:"dexId" example:"kongswap"`

	// Allow a two-dex split when it beats every single quote
	Split bool `json:"split"`

	// Refuse to execute when the fresh quote expects less than this
	MinAmountOut string `json:"minAmountOut" example:"1237500000"`
}

type LegResponse struct {
	DexID      string `json:"dexId"`
	DexName    string `json:"dexName"`
	AmountIn   string `json:"amountIn"`
	AmountOut  string `json:"amountOut"`
	Success    bool   `json:"success"`
	TxID       string `json:"txId,omitempty"`
	Error      string `json:"error,omitempty"`
	PendingKey string `json:"pendingKey,omitempty"`
}

// SwapResponse is the final "result" event of the stream
type SwapResponse struct {
	ExecutionID string        `json:"executionId"`
	Success     bool          `json:"success"`
	AmountOut   string        `json:"amountOut" example:"1249000000"`
	TxID        string        `json:"txId,omitempty"`
	Error       string        `json:"error,omitempty"`
	PendingKey  string        `json:"pendingKey,omitempty"`
	Legs        []LegResponse `json:"legs,omitempty"`
}

func toSwapResponse(execID string, res *domain.SwapResult) SwapResponse {
	out := SwapResponse{
		ExecutionID: execID,
		Success:     res.Success,
		AmountOut:   amountString(res.AmountOut),
		TxID:        res.TxID,
		Error:       res.Error,
		PendingKey:  res.PendingKey,
	}
	for _, l := range res.Legs {
		out.Legs = append(out.Legs, LegResponse{
			DexID:      l.DexID,
			DexName:    l.DexName,
			AmountIn:   amountString(l.InputAmount),
			AmountOut:  amountString(l.AmountOut),
			Success:    l.Success,
			TxID:       l.TxID,
			Error:      l.Error,
			PendingKey: l.PendingKey,
		})
	}
	return out
}

type swapOutcome struct {
	res *domain.SwapResult
	err error
}

// @Summary Quote and execute a swap
// @Description Fetch a fresh quote (single dex or split) and execute it. The response is a server-sent event stream:
// @Description - `quote`: the quote being executed
// @Description - `progress`: one event per swap step (CHECKING_ALLOWANCE, APPROVING, TRANSFERRING, SWAPPING, CLAIMING, ...)
// @Description - `result`: the final outcome, itemized per leg for split swaps
// @Description - `error`: execution could not start
// @Description
// @Description A swap keeps running when the client disconnects.
// @Tags swap
// @Accept json
// @Produce text/event-stream
// @Param request body SwapRequest true "Swap parameters"
// @Success 200 {object} SwapResponse "Final result event"
// @Failure 400 {object} httputil.Response "Invalid request"
// @Failure 404 {object} httputil.Response "No dex quoted the pair"
// @Failure 422 {object} httputil.Response "Quote below minAmountOut or incompatible standard"
// @Router /api/v1/swap [post]
func (h *SwapHandler) swap(c *gin.Context) {
	var req SwapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	if req.Split && !h.splitEnabled {
		httputil.BadRequest(c, "split swaps are disabled")
		return
	}
	params, err := parseQuoteParams(req.InputToken, req.OutputToken, req.Amount, req.SlippageBps, req.Standard, req.DexID, h.agg.Slippage())
	if err != nil {
		httputil.BadRequest(c, err.Error())
		return
	}
	var floor *big.Int
	if req.MinAmountOut != "" {
		v, ok := new(big.Int).SetString(req.MinAmountOut, 10)
		if !ok || v.Sign() < 0 {
			httputil.BadRequest(c, "invalid minAmountOut")
			return
		}
		floor = v
	}

	best, err := h.agg.GetBestQuote(c.Request.Context(), params, req.Split && req.DexID == "")
	if err != nil {
		handleError(c, err)
		return
	}
	quote := best.Best()
	if quote == nil {
		httputil.NotFound(c, "no dex returned a quote for this pair")
		return
	}
	if floor != nil && quote.ExpectedOrZero().Cmp(floor) < 0 {
		httputil.Abort(c, common.HTTPErrorUnprocessable("quote "+quote.ExpectedOrZero().String()+" is below minAmountOut"))
		return
	}

	execID := uuid.NewString()
	c.Header("X-Execution-Id", execID)
	log.Info().
		Str("exec", execID).
		Str("dex", quote.DexID).
		Str("amountIn", quote.InputAmount.String()).
		Str("expected", quote.ExpectedOrZero().String()).
		Msg("[SwapHandler] executing swap")

	emit, events, closeEvents := domain.ProgressChannel(progressBuffer)
	done := make(chan swapOutcome, 1)
	slippage := params.Slippage
	// a swap in flight outlives its client
	ctx := context.WithoutCancel(c.Request.Context())
	go func() {
		res, err := h.agg.Swap(ctx, aggregator.SwapParams{Quote: quote, Slippage: &slippage, OnProgress: emit})
		closeEvents()
		done <- swapOutcome{res: res, err: err}
	}()

	c.SSEvent("quote", toQuoteInfo(quote))
	c.Stream(func(w io.Writer) bool {
		if p, ok := <-events; ok {
			c.SSEvent("progress", p)
			return true
		}
		out := <-done
		if out.err != nil {
			e := toHttpError(out.err)
			c.SSEvent("error", httputil.Response{Success: false, Error: e.Message, Code: e.Code})
			return false
		}
		c.SSEvent("result", toSwapResponse(execID, out.res))
		return false
	})

	// the client may have gone away mid-stream; keep the swap unblocked
	go func() {
		for range events {
		}
	}()
}
