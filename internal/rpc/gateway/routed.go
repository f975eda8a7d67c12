package gateway

import (
	"context"
	"fmt"
	"math/big"

	"github.com/hxuan190/dex-aggregator/internal/rpc"
)

type Routed struct {
	client *Client
	id     string
}

var _ rpc.RoutedBackend = (*Routed)(nil)

func (r *Routed) CanisterID() string {
	return r.id
}

type swapAmountsArgs struct {
	PayToken     string   `json:"payToken"`
	PayAmount    *big.Int `json:"payAmount"`
	ReceiveToken string   `json:"receiveToken"`
}

func (r *Routed) SwapAmounts(ctx context.Context, tokenIn string, amount *big.Int, tokenOut string) (*rpc.SwapAmountsReply, error) {
	var reply rpc.SwapAmountsReply
	found, err := r.client.call(ctx, r.id, "swap_amounts", swapAmountsArgs{PayToken: tokenIn, PayAmount: amount, ReceiveToken: tokenOut}, &reply)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%s.swap_amounts: empty result", r.id)
	}
	return &reply, nil
}

func (r *Routed) Swap(ctx context.Context, args rpc.RoutedSwapArgs) (*rpc.RoutedSwapReply, error) {
	var reply rpc.RoutedSwapReply
	found, err := r.client.call(ctx, r.id, "swap", args, &reply)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%s.swap: empty result", r.id)
	}
	return &reply, nil
}

type claimArgs struct {
	ClaimID string `json:"claimId"`
}

func (r *Routed) Claim(ctx context.Context, claimID string) error {
	_, err := r.client.call(ctx, r.id, "claim", claimArgs{ClaimID: claimID}, nil)
	return err
}

type poolsArgs struct {
	Filter string `json:"filter,omitempty"`
}

func (r *Routed) Pools(ctx context.Context, filter string) ([]rpc.RoutedPool, error) {
	var pools []rpc.RoutedPool
	_, err := r.client.call(ctx, r.id, "pools", poolsArgs{Filter: filter}, &pools)
	return pools, err
}
