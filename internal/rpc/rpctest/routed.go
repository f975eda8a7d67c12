package rpctest

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/hxuan190/dex-aggregator/internal/rpc"
)

// RoutedBackend answers swap_amounts with AmountsFn and executes swaps at the
// same amounts. ClaimIDs are attached to every successful swap reply.
type RoutedBackend struct {
	mu sync.Mutex

	ID        string
	AmountsFn func(tokenIn string, amount *big.Int, tokenOut string) (*rpc.SwapAmountsReply, error)
	PoolList  []rpc.RoutedPool
	PoolsErr  error
	FailSwaps int
	ClaimIDs  []string
	ClaimErr  error

	SwapCalls  []rpc.RoutedSwapArgs
	ClaimCalls []string
	txCounter  int
}

func (b *RoutedBackend) CanisterID() string {
	return b.ID
}

func (b *RoutedBackend) SwapAmounts(ctx context.Context, tokenIn string, amount *big.Int, tokenOut string) (*rpc.SwapAmountsReply, error) {
	return b.AmountsFn(tokenIn, amount, tokenOut)
}

func (b *RoutedBackend) Swap(ctx context.Context, args rpc.RoutedSwapArgs) (*rpc.RoutedSwapReply, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.SwapCalls = append(b.SwapCalls, args)
	if b.FailSwaps > 0 {
		b.FailSwaps--
		return nil, ErrInterrupted
	}
	reply, err := b.AmountsFn(args.PayToken, args.PayAmount, args.ReceiveToken)
	if err != nil {
		return nil, err
	}
	if args.ReceiveAmount != nil && reply.ReceiveAmount.Cmp(args.ReceiveAmount) < 0 {
		return nil, errors.New("slippage exceeded")
	}
	b.txCounter++
	return &rpc.RoutedSwapReply{
		TxID:          big.NewInt(int64(b.txCounter)).String(),
		Status:        "Success",
		ReceiveAmount: reply.ReceiveAmount,
		ClaimIDs:      append([]string(nil), b.ClaimIDs...),
	}, nil
}

func (b *RoutedBackend) Claim(ctx context.Context, claimID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ClaimCalls = append(b.ClaimCalls, claimID)
	return b.ClaimErr
}

func (b *RoutedBackend) SetClaimErr(err error) {
	b.mu.Lock()
	b.ClaimErr = err
	b.mu.Unlock()
}

func (b *RoutedBackend) Pools(ctx context.Context, filter string) ([]rpc.RoutedPool, error) {
	if b.PoolsErr != nil {
		return nil, b.PoolsErr
	}
	return b.PoolList, nil
}
