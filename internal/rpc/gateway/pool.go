package gateway

import (
	"context"
	"fmt"
	"math/big"

	"github.com/hxuan190/dex-aggregator/internal/rpc"
)

type Factory struct {
	client *Client
	id     string
}

var _ rpc.PoolFactory = (*Factory)(nil)

type getPoolArgs struct {
	Token0 rpc.PoolToken `json:"token0"`
	Token1 rpc.PoolToken `json:"token1"`
	Fee    uint32        `json:"fee"`
}

// GetPool returns nil without error when the factory has no such pool.
func (f *Factory) GetPool(ctx context.Context, token0, token1 rpc.PoolToken, fee uint32) (*rpc.PoolRef, error) {
	var ref rpc.PoolRef
	found, err := f.client.call(ctx, f.id, "getPool", getPoolArgs{Token0: token0, Token1: token1, Fee: fee}, &ref)
	if err != nil || !found {
		return nil, err
	}
	return &ref, nil
}

func (f *Factory) GetPools(ctx context.Context) ([]rpc.PoolRef, error) {
	var refs []rpc.PoolRef
	_, err := f.client.call(ctx, f.id, "getPools", nil, &refs)
	return refs, err
}

type Pool struct {
	client *Client
	id     string
}

var _ rpc.Pool = (*Pool)(nil)

func (p *Pool) Metadata(ctx context.Context) (*rpc.PoolMetadata, error) {
	var meta rpc.PoolMetadata
	found, err := p.client.call(ctx, p.id, "metadata", nil, &meta)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%s.metadata: empty result", p.id)
	}
	return &meta, nil
}

func (p *Pool) Quote(ctx context.Context, args rpc.PoolQuoteArgs) (*big.Int, error) {
	return p.nat(ctx, "quote", args)
}

func (p *Pool) DepositAndSwap(ctx context.Context, args rpc.DepositAndSwapArgs) (*big.Int, error) {
	return p.nat(ctx, "depositAndSwap", args)
}

func (p *Pool) DepositFromAndSwap(ctx context.Context, args rpc.DepositAndSwapArgs) (*big.Int, error) {
	return p.nat(ctx, "depositFromAndSwap", args)
}

func (p *Pool) Deposit(ctx context.Context, args rpc.DepositArgs) (*big.Int, error) {
	return p.nat(ctx, "deposit", args)
}

func (p *Pool) Swap(ctx context.Context, args rpc.PoolQuoteArgs) (*big.Int, error) {
	return p.nat(ctx, "swap", args)
}

func (p *Pool) Withdraw(ctx context.Context, args rpc.WithdrawArgs) (*big.Int, error) {
	return p.nat(ctx, "withdraw", args)
}

func (p *Pool) nat(ctx context.Context, method string, args any) (*big.Int, error) {
	var out big.Int
	found, err := p.client.call(ctx, p.id, method, args, &out)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%s.%s: empty result", p.id, method)
	}
	return &out, nil
}
