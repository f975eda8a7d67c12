package domain

import (
	"math/big"
	"slices"
)

type Standard string

const (
	// StandardICRC1 moves funds with a single ledger transfer.
	StandardICRC1 Standard = "ICRC1"
	// StandardICRC2 approves the DEX which then pulls funds with transfer_from.
	StandardICRC2 Standard = "ICRC2"
)

// Rank orders standards by capability, richer first.
func (s Standard) Rank() int {
	switch s {
	case StandardICRC2:
		return 2
	case StandardICRC1:
		return 1
	default:
		return 0
	}
}

func (s Standard) String() string {
	return string(s)
}

type TokenInfo struct {
	LedgerID  string     `json:"ledgerId"`
	Symbol    string     `json:"symbol"`
	Name      string     `json:"name,omitempty"`
	Decimals  uint8      `json:"decimals"`
	Fee       *big.Int   `json:"fee"`
	Standards []Standard `json:"standards"`
	Logo      string     `json:"logo,omitempty"`
}

func (t *TokenInfo) Supports(std Standard) bool {
	return slices.Contains(t.Standards, std)
}

// FeeOrZero never returns nil so callers can multiply without checks.
func (t *TokenInfo) FeeOrZero() *big.Int {
	if t == nil || t.Fee == nil {
		return new(big.Int)
	}
	return t.Fee
}

// Pair is one tradable direction discovered on a DEX.
type Pair struct {
	DexID       string `json:"dexId"`
	InputToken  string `json:"inputToken"`
	OutputToken string `json:"outputToken"`
	PoolID      string `json:"poolId"`
}
