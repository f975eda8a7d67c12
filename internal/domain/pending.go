package domain

import (
	"math/big"
	"time"
)

// PendingTransferRecord marks funds that already left the user's account
// through a single-transfer path whose dependent swap call has not been
// acknowledged yet. It is written right after the transfer confirms and
// removed only when the swap call succeeds.
type PendingTransferRecord struct {
	Key          string    `json:"key"`
	DexID        string    `json:"dexId"`
	PoolID       string    `json:"poolId,omitempty"`
	BlockIndex   *big.Int  `json:"blockIndex"`
	InputToken   string    `json:"inputToken"`
	OutputToken  string    `json:"outputToken"`
	Amount       *big.Int  `json:"amount"`
	MinAmountOut *big.Int  `json:"minAmountOut"`
	Standard     Standard  `json:"standard"`
	Timestamp    time.Time `json:"timestamp"`
}
