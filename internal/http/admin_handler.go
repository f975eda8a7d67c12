package http

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/hxuan190/dex-aggregator/internal/aggregator"
	"github.com/hxuan190/dex-aggregator/internal/domain"
	"github.com/hxuan190/dex-aggregator/internal/http/httputil"
)

// PendingHandler exposes crash recovery of single-transfer swaps.
type PendingHandler struct {
	agg *aggregator.Aggregator
}

func NewPendingHandler(agg *aggregator.Aggregator) *PendingHandler {
	return &PendingHandler{agg: agg}
}

func (h *PendingHandler) SetRoutes(pub *gin.RouterGroup, admin *gin.RouterGroup) {
	admin.GET("", h.list)
	admin.POST("/:key/resume", h.resume)
}

func (h *PendingHandler) Root() string {
	return "/pending"
}

// @Summary List pending transfers
// @Description Transfers whose dependent swap call was never acknowledged, oldest first.
// @Tags admin
// @Produce json
// @Success 200 {array} domain.PendingTransferRecord
// @Router /api/v1/admin/pending [get]
func (h *PendingHandler) list(c *gin.Context) {
	recs, err := h.agg.PendingTransfers()
	if err != nil {
		handleError(c, err)
		return
	}
	if recs == nil {
		recs = []*domain.PendingTransferRecord{}
	}
	httputil.Success(c, recs)
}

// @Summary Resume a pending transfer
// @Description Replays the swap call for funds already transferred to the dex.
// @Tags admin
// @Produce json
// @Param key path string true "Pending transfer key"
// @Success 200 {object} SwapResponse
// @Failure 404 {object} httputil.Response
// @Router /api/v1/admin/pending/{key}/resume [post]
func (h *PendingHandler) resume(c *gin.Context) {
	// recovery must not be cut short by the caller hanging up
	ctx := context.WithoutCancel(c.Request.Context())
	res, err := h.agg.ResumePending(ctx, c.Param("key"), nil)
	if err != nil {
		handleError(c, err)
		return
	}
	httputil.Success(c, toSwapResponse("", res))
}

type ClaimHandler struct {
	agg *aggregator.Aggregator
}

func NewClaimHandler(agg *aggregator.Aggregator) *ClaimHandler {
	return &ClaimHandler{agg: agg}
}

func (h *ClaimHandler) SetRoutes(pub *gin.RouterGroup, admin *gin.RouterGroup) {
	admin.GET("", h.list)
	admin.POST("/retry", h.retry)
}

func (h *ClaimHandler) Root() string {
	return "/claims"
}

// @Summary List outstanding claims
// @Tags admin
// @Produce json
// @Success 200 {array} domain.OutstandingClaim
// @Router /api/v1/admin/claims [get]
func (h *ClaimHandler) list(c *gin.Context) {
	claims, err := h.agg.OutstandingClaims()
	if err != nil {
		handleError(c, err)
		return
	}
	if claims == nil {
		claims = []domain.OutstandingClaim{}
	}
	httputil.Success(c, claims)
}

type ClaimRetryResponse struct {
	// Claims settled per dex
	Settled map[string]int `json:"settled"`
	// Claims still outstanding after the retry
	Outstanding int    `json:"outstanding"`
	Error       string `json:"error,omitempty"`
}

// @Summary Retry outstanding claims
// @Tags admin
// @Produce json
// @Success 200 {object} ClaimRetryResponse
// @Router /api/v1/admin/claims/retry [post]
func (h *ClaimHandler) retry(c *gin.Context) {
	settled, retryErr := h.agg.RetryClaims(c.Request.Context())
	left, err := h.agg.OutstandingClaims()
	if err != nil {
		handleError(c, err)
		return
	}
	resp := ClaimRetryResponse{Settled: settled, Outstanding: len(left)}
	if retryErr != nil {
		resp.Error = retryErr.Error()
	}
	httputil.Success(c, resp)
}

// TokenCache is the token metadata cache behind the resolver.
type TokenCache interface {
	GetTokenInfo(ctx context.Context, ledgerID string) (*domain.TokenInfo, error)
	Invalidate(ledgerID string)
	ClearCache()
}

type TokenHandler struct {
	tokens TokenCache
}

func NewTokenHandler(tokens TokenCache) *TokenHandler {
	return &TokenHandler{tokens: tokens}
}

func (h *TokenHandler) SetRoutes(pub *gin.RouterGroup, admin *gin.RouterGroup) {
	pub.GET("/:ledger", h.get)
	admin.DELETE("/cache", h.clear)
	admin.DELETE("/cache/:ledger", h.invalidate)
}

func (h *TokenHandler) Root() string {
	return "/tokens"
}

// @Summary Token metadata
// @Description Symbol, decimals, transfer fee and supported standards of a ledger.
// @Tags tokens
// @Produce json
// @Param ledger path string true "Token ledger id"
// @Success 200 {object} domain.TokenInfo
// @Router /api/v1/tokens/{ledger} [get]
func (h *TokenHandler) get(c *gin.Context) {
	info, err := h.tokens.GetTokenInfo(c.Request.Context(), c.Param("ledger"))
	if err != nil {
		handleError(c, err)
		return
	}
	httputil.Success(c, info)
}

// @Summary Clear the token metadata cache
// @Tags admin
// @Router /api/v1/admin/tokens/cache [delete]
func (h *TokenHandler) clear(c *gin.Context) {
	h.tokens.ClearCache()
	httputil.Success(c, gin.H{"cleared": true})
}

// @Summary Drop one token from the metadata cache
// @Tags admin
// @Param ledger path string true "Token ledger id"
// @Router /api/v1/admin/tokens/cache/{ledger} [delete]
func (h *TokenHandler) invalidate(c *gin.Context) {
	h.tokens.Invalidate(c.Param("ledger"))
	httputil.Success(c, gin.H{"invalidated": c.Param("ledger")})
}
