package http

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/hxuan190/dex-aggregator/internal/aggregator"
	"github.com/hxuan190/dex-aggregator/internal/common"
	"github.com/hxuan190/dex-aggregator/internal/http/httputil"
)

// toHttpError maps the aggregator's error taxonomy onto status codes.
func toHttpError(err error) *common.HttpError {
	var httpErr *common.HttpError
	switch {
	case errors.As(err, &httpErr):
		return httpErr
	case errors.Is(err, aggregator.ErrAdapterNotRegistered),
		errors.Is(err, aggregator.ErrNoPoolForPair),
		errors.Is(err, aggregator.ErrPendingNotFound):
		return common.HTTPErrorNotFound(err.Error())
	case errors.Is(err, aggregator.ErrIncompatibleStandard),
		errors.Is(err, aggregator.ErrAmountTooSmall),
		errors.Is(err, aggregator.ErrInvalidQuote),
		errors.Is(err, aggregator.ErrCannotResume):
		return common.HTTPErrorUnprocessable(err.Error())
	case errors.Is(err, aggregator.ErrNoAdapters):
		return common.HTTPErrorServiceUnavailable(err.Error())
	case errors.Is(err, aggregator.ErrQuoteFailed),
		errors.Is(err, aggregator.ErrSwapFailed),
		errors.Is(err, aggregator.ErrClaimFailed):
		return common.HTTPErrorBadGateway(err.Error())
	default:
		return common.HTTPErrorInternalError(err.Error())
	}
}

func handleError(c *gin.Context, err error) {
	httputil.Abort(c, toHttpError(err))
}
