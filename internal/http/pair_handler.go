package http

import (
	"github.com/gin-gonic/gin"

	"github.com/hxuan190/dex-aggregator/internal/aggregator"
	"github.com/hxuan190/dex-aggregator/internal/domain"
	"github.com/hxuan190/dex-aggregator/internal/http/httputil"
)

type PairHandler struct {
	agg *aggregator.Aggregator
}

func NewPairHandler(agg *aggregator.Aggregator) *PairHandler {
	return &PairHandler{agg: agg}
}

func (h *PairHandler) SetRoutes(pub *gin.RouterGroup, admin *gin.RouterGroup) {
	pub.GET("/:token", h.getPairs)
}

func (h *PairHandler) Root() string {
	return "/pairs"
}

// PairsResponse lists every pool trading the token, across all dexes
type PairsResponse struct {
	Token string        `json:"token" example:"ryjl3-tyaaa-aaaaa-aaaba-cai"`
	Pairs []domain.Pair `json:"pairs"`
	Total int           `json:"total" example:"42"`
}

// @Summary List pairs for a token
// @Description Pools on every registered dex that trade the token. Dexes that fail discovery are left out.
// @Tags pairs
// @Produce json
// @Param token path string true "Token ledger id"
// @Success 200 {object} PairsResponse
// @Router /api/v1/pairs/{token} [get]
func (h *PairHandler) getPairs(c *gin.Context) {
	token := c.Param("token")
	pairs, err := h.agg.GetAllPairsForToken(c.Request.Context(), token)
	if err != nil {
		handleError(c, err)
		return
	}
	httputil.Success(c, PairsResponse{Token: token, Pairs: pairs, Total: len(pairs)})
}

type DexHandler struct {
	agg *aggregator.Aggregator
}

func NewDexHandler(agg *aggregator.Aggregator) *DexHandler {
	return &DexHandler{agg: agg}
}

func (h *DexHandler) SetRoutes(pub *gin.RouterGroup, admin *gin.RouterGroup) {
	pub.GET("", h.listDexes)
	pub.GET("/available", h.availableDexes)
}

func (h *DexHandler) Root() string {
	return "/dexes"
}

type DexInfo struct {
	ID        string   `json:"id" example:"icpswap"`
	Name      string   `json:"name" example:"ICPSwap"`
	Standards []string `json:"standards" example:"ICRC2,ICRC1"`
}

// @Summary List registered dexes
// @Tags dexes
// @Produce json
// @Success 200 {array} DexInfo
// @Router /api/v1/dexes [get]
func (h *DexHandler) listDexes(c *gin.Context) {
	dexes := h.agg.Dexes()
	out := make([]DexInfo, 0, len(dexes))
	for _, d := range dexes {
		info := DexInfo{ID: d.ID(), Name: d.Name()}
		for _, s := range d.SupportedStandards() {
			info.Standards = append(info.Standards, string(s))
		}
		out = append(out, info)
	}
	httputil.Success(c, out)
}

// @Summary Dexes that trade a pair
// @Tags dexes
// @Produce json
// @Param tokenIn query string true "Input token ledger id"
// @Param tokenOut query string true "Output token ledger id"
// @Success 200 {array} string
// @Failure 400 {object} httputil.Response
// @Router /api/v1/dexes/available [get]
func (h *DexHandler) availableDexes(c *gin.Context) {
	in, out := c.Query("tokenIn"), c.Query("tokenOut")
	if in == "" || out == "" {
		httputil.BadRequest(c, "tokenIn and tokenOut are required")
		return
	}
	ids, err := h.agg.GetAvailableDexes(c.Request.Context(), in, out)
	if err != nil {
		handleError(c, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	httputil.Success(c, ids)
}
