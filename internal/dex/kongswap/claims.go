package kongswap

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/bytedance/sonic"

	"github.com/hxuan190/dex-aggregator/internal/dex"
	"github.com/hxuan190/dex-aggregator/internal/domain"
	"github.com/hxuan190/dex-aggregator/internal/metrics"
)

func (a *Adapter) recordClaim(id, token string, cause error) {
	a.logger.Warn().Err(cause).Str("claim", id).Msg("[KongSwap] claim failed, kept for retry")
	claim := domain.OutstandingClaim{
		ID:        id,
		DexID:     DexID,
		Token:     token,
		CreatedAt: time.Now(),
		Attempts:  1,
		LastError: fmt.Errorf("%w: %w", dex.ErrClaimFailed, cause).Error(),
	}
	a.saveClaim(claim)
}

func (a *Adapter) saveClaim(claim domain.OutstandingClaim) {
	data, err := sonic.Marshal(claim)
	if err != nil {
		a.logger.Error().Err(err).Str("claim", claim.ID).Msg("[KongSwap] failed to encode claim")
		return
	}
	if err := a.claims.Set(claim.ID, data); err != nil {
		a.logger.Error().Err(err).Str("claim", claim.ID).Msg("[KongSwap] failed to store claim")
	}
	a.refreshClaimGauge()
}

func (a *Adapter) OutstandingClaims() ([]domain.OutstandingClaim, error) {
	all, err := a.claims.All()
	if err != nil {
		return nil, err
	}
	out := make([]domain.OutstandingClaim, 0, len(all))
	for id, data := range all {
		var c domain.OutstandingClaim
		if err := sonic.Unmarshal(data, &c); err != nil {
			a.logger.Warn().Err(err).Str("claim", id).Msg("[KongSwap] skipping corrupt claim")
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// RetryClaims claims every outstanding payout once. Claims that fail again
// stay stored with their attempt count bumped.
func (a *Adapter) RetryClaims(ctx context.Context) (int, error) {
	claims, err := a.OutstandingClaims()
	if err != nil {
		return 0, err
	}

	claimed, failed := 0, 0
	for _, c := range claims {
		if err := a.backend.Claim(ctx, c.ID); err != nil {
			failed++
			c.Attempts++
			c.LastError = fmt.Errorf("%w: %w", dex.ErrClaimFailed, err).Error()
			a.saveClaim(c)
			continue
		}
		if err := a.claims.Remove(c.ID); err != nil {
			a.logger.Error().Err(err).Str("claim", c.ID).Msg("[KongSwap] failed to drop settled claim")
		}
		claimed++
	}
	a.refreshClaimGauge()

	if failed > 0 {
		return claimed, fmt.Errorf("%w: %d claim(s) still outstanding", dex.ErrClaimFailed, failed)
	}
	return claimed, nil
}

func (a *Adapter) refreshClaimGauge() {
	all, err := a.claims.All()
	if err != nil {
		return
	}
	metrics.OutstandingClaims.WithLabelValues(DexID).Set(float64(len(all)))
}
