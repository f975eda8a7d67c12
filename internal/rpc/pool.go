package rpc

import (
	"context"
	"math/big"
)

type PoolToken struct {
	Address  string `json:"address"`
	Standard string `json:"standard"`
}

// PoolRef is the factory's view of a pool.
type PoolRef struct {
	CanisterID  string    `json:"canisterId"`
	Token0      PoolToken `json:"token0"`
	Token1      PoolToken `json:"token1"`
	Fee         uint32    `json:"fee"`
	TickSpacing int32     `json:"tickSpacing"`
}

// PoolMetadata is the live pool state used for spot prices.
type PoolMetadata struct {
	Token0       PoolToken `json:"token0"`
	Token1       PoolToken `json:"token1"`
	Fee          uint32    `json:"fee"`
	SqrtPriceX96 *big.Int  `json:"sqrtPriceX96"`
	Liquidity    *big.Int  `json:"liquidity"`
	Tick         int32     `json:"tick"`
}

type PoolQuoteArgs struct {
	AmountIn         *big.Int `json:"amountIn"`
	ZeroForOne       bool     `json:"zeroForOne"`
	AmountOutMinimum *big.Int `json:"amountOutMinimum"`
}

type DepositAndSwapArgs struct {
	ZeroForOne       bool     `json:"zeroForOne"`
	AmountIn         *big.Int `json:"amountIn"`
	AmountOutMinimum *big.Int `json:"amountOutMinimum"`
	TokenInFee       *big.Int `json:"tokenInFee"`
	TokenOutFee      *big.Int `json:"tokenOutFee"`
}

type DepositArgs struct {
	Token  string   `json:"token"`
	Amount *big.Int `json:"amount"`
	Fee    *big.Int `json:"fee"`
}

type WithdrawArgs struct {
	Token  string   `json:"token"`
	Amount *big.Int `json:"amount"`
	Fee    *big.Int `json:"fee"`
}

// PoolFactory is the registry of pool canisters.
type PoolFactory interface {
	GetPool(ctx context.Context, token0, token1 PoolToken, fee uint32) (*PoolRef, error)
	GetPools(ctx context.Context) ([]PoolRef, error)
}

// Pool is one pool canister. DepositAndSwap expects the input already sitting
// in the caller's pool subaccount; DepositFromAndSwap pulls it via allowance.
// Deposit, Swap and Withdraw are the legacy three-call path.
type Pool interface {
	Metadata(ctx context.Context) (*PoolMetadata, error)
	Quote(ctx context.Context, args PoolQuoteArgs) (*big.Int, error)
	DepositAndSwap(ctx context.Context, args DepositAndSwapArgs) (*big.Int, error)
	DepositFromAndSwap(ctx context.Context, args DepositAndSwapArgs) (*big.Int, error)
	Deposit(ctx context.Context, args DepositArgs) (*big.Int, error)
	Swap(ctx context.Context, args PoolQuoteArgs) (*big.Int, error)
	Withdraw(ctx context.Context, args WithdrawArgs) (*big.Int, error)
}

type PoolProvider interface {
	Pool(canisterID string) Pool
}

type PoolProviderFunc func(canisterID string) Pool

func (f PoolProviderFunc) Pool(canisterID string) Pool {
	return f(canisterID)
}
