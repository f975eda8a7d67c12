package rpc

import (
	"context"
	"math/big"
)

// SwapAmountsTx is one hop of a routed quote.
type SwapAmountsTx struct {
	PoolSymbol     string   `json:"poolSymbol"`
	PayChain       string   `json:"payChain,omitempty"`
	PaySymbol      string   `json:"paySymbol"`
	PayAddress     string   `json:"payAddress"`
	PayAmount      *big.Int `json:"payAmount"`
	ReceiveSymbol  string   `json:"receiveSymbol"`
	ReceiveAddress string   `json:"receiveAddress"`
	ReceiveAmount  *big.Int `json:"receiveAmount"`
	Price          float64  `json:"price"`
	LpFee          *big.Int `json:"lpFee"`
	GasFee         *big.Int `json:"gasFee"`
}

type SwapAmountsReply struct {
	PayAmount     *big.Int        `json:"payAmount"`
	ReceiveAmount *big.Int        `json:"receiveAmount"`
	MidPrice      *float64        `json:"midPrice,omitempty"`
	Price         float64         `json:"price"`
	Slippage      *float64        `json:"slippage,omitempty"`
	Txs           []SwapAmountsTx `json:"txs"`
}

type RoutedSwapArgs struct {
	PayToken       string   `json:"payToken"`
	PayAmount      *big.Int `json:"payAmount"`
	PayTxID        *big.Int `json:"payTxId,omitempty"`
	ReceiveToken   string   `json:"receiveToken"`
	ReceiveAmount  *big.Int `json:"receiveAmount,omitempty"`
	ReceiveAddress string   `json:"receiveAddress,omitempty"`
	MaxSlippage    *float64 `json:"maxSlippage,omitempty"`
}

type RoutedSwapReply struct {
	TxID          string   `json:"txId"`
	RequestID     string   `json:"requestId,omitempty"`
	Status        string   `json:"status"`
	ReceiveAmount *big.Int `json:"receiveAmount"`
	ClaimIDs      []string `json:"claimIds"`
}

type RoutedPool struct {
	PoolID    string   `json:"poolId"`
	Symbol    string   `json:"symbol"`
	Address0  string   `json:"address0"`
	Symbol0   string   `json:"symbol0"`
	Balance0  *big.Int `json:"balance0"`
	Address1  string   `json:"address1"`
	Symbol1   string   `json:"symbol1"`
	Balance1  *big.Int `json:"balance1"`
	Price     float64  `json:"price"`
	LpFeeBps  uint8    `json:"lpFeeBps"`
	IsRemoved bool     `json:"isRemoved"`
}

// RoutedBackend is a DEX that routes internally across its own pools and
// exposes a single swap entry point. Receive proceeds that could not be
// delivered come back as claim ids.
type RoutedBackend interface {
	CanisterID() string
	SwapAmounts(ctx context.Context, tokenIn string, amount *big.Int, tokenOut string) (*SwapAmountsReply, error)
	Swap(ctx context.Context, args RoutedSwapArgs) (*RoutedSwapReply, error)
	Claim(ctx context.Context, claimID string) error
	Pools(ctx context.Context, filter string) ([]RoutedPool, error)
}
