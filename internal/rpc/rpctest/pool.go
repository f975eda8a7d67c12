package rpctest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/hxuan190/dex-aggregator/internal/rpc"
)

var ErrInterrupted = errors.New("swap call interrupted")

// Factory resolves pools by unordered token pair and fee tier.
type Factory struct {
	mu       sync.Mutex
	pools    map[string]rpc.PoolRef
	GetErr   error
	ListErr  error
	getCalls int
}

func NewFactory(refs ...rpc.PoolRef) *Factory {
	f := &Factory{pools: make(map[string]rpc.PoolRef)}
	for _, r := range refs {
		f.Add(r)
	}
	return f
}

func pairKey(a, b string, fee uint32) string {
	s := []string{a, b}
	sort.Strings(s)
	return fmt.Sprintf("%s|%s|%d", s[0], s[1], fee)
}

func (f *Factory) Add(ref rpc.PoolRef) {
	f.mu.Lock()
	f.pools[pairKey(ref.Token0.Address, ref.Token1.Address, ref.Fee)] = ref
	f.mu.Unlock()
}

func (f *Factory) GetCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getCalls
}

func (f *Factory) GetPool(ctx context.Context, token0, token1 rpc.PoolToken, fee uint32) (*rpc.PoolRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	if f.GetErr != nil {
		return nil, f.GetErr
	}
	ref, ok := f.pools[pairKey(token0.Address, token1.Address, fee)]
	if !ok {
		return nil, nil
	}
	return &ref, nil
}

func (f *Factory) GetPools(ctx context.Context) ([]rpc.PoolRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	out := make([]rpc.PoolRef, 0, len(f.pools))
	for _, r := range f.pools {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CanisterID < out[j].CanisterID })
	return out, nil
}

// Pool answers quotes with QuoteFn and swaps with the same curve. FailSwaps
// makes the next N swap calls fail with ErrInterrupted.
type Pool struct {
	mu sync.Mutex

	Meta    *rpc.PoolMetadata
	QuoteFn func(amountIn *big.Int, zeroForOne bool) (*big.Int, error)

	MetadataErr error
	FailSwaps   int

	DepositAndSwapCalls     []rpc.DepositAndSwapArgs
	DepositFromAndSwapCalls []rpc.DepositAndSwapArgs
}

// LinearPool returns num/den output per input unit in both directions.
func LinearPool(meta *rpc.PoolMetadata, num, den int64) *Pool {
	return &Pool{
		Meta: meta,
		QuoteFn: func(amountIn *big.Int, _ bool) (*big.Int, error) {
			out := new(big.Int).Mul(amountIn, big.NewInt(num))
			return out.Quo(out, big.NewInt(den)), nil
		},
	}
}

func (p *Pool) Metadata(ctx context.Context) (*rpc.PoolMetadata, error) {
	if p.MetadataErr != nil {
		return nil, p.MetadataErr
	}
	if p.Meta == nil {
		return nil, errors.New("no metadata")
	}
	m := *p.Meta
	return &m, nil
}

func (p *Pool) Quote(ctx context.Context, args rpc.PoolQuoteArgs) (*big.Int, error) {
	return p.QuoteFn(args.AmountIn, args.ZeroForOne)
}

func (p *Pool) swap(args rpc.DepositAndSwapArgs) (*big.Int, error) {
	if p.FailSwaps > 0 {
		p.FailSwaps--
		return nil, ErrInterrupted
	}
	out, err := p.QuoteFn(args.AmountIn, args.ZeroForOne)
	if err != nil {
		return nil, err
	}
	if args.AmountOutMinimum != nil && out.Cmp(args.AmountOutMinimum) < 0 {
		return nil, errors.New("slippage exceeded")
	}
	return out, nil
}

func (p *Pool) DepositAndSwap(ctx context.Context, args rpc.DepositAndSwapArgs) (*big.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.DepositAndSwapCalls = append(p.DepositAndSwapCalls, args)
	return p.swap(args)
}

func (p *Pool) DepositFromAndSwap(ctx context.Context, args rpc.DepositAndSwapArgs) (*big.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.DepositFromAndSwapCalls = append(p.DepositFromAndSwapCalls, args)
	return p.swap(args)
}

func (p *Pool) Deposit(ctx context.Context, args rpc.DepositArgs) (*big.Int, error) {
	return new(big.Int).Set(args.Amount), nil
}

func (p *Pool) Swap(ctx context.Context, args rpc.PoolQuoteArgs) (*big.Int, error) {
	return p.QuoteFn(args.AmountIn, args.ZeroForOne)
}

func (p *Pool) Withdraw(ctx context.Context, args rpc.WithdrawArgs) (*big.Int, error) {
	return new(big.Int).Set(args.Amount), nil
}

// Pools serves fakes by canister id.
type Pools map[string]*Pool

func (ps Pools) Pool(id string) rpc.Pool {
	p, ok := ps[id]
	if !ok {
		return nil
	}
	return p
}
