// Package rpc declares the remote contracts the aggregator consumes: token
// ledgers, the pool-style DEX backend and the routed DEX backend. Only the
// shape matters here; transports live in subpackages.
package rpc

import (
	"context"
	"math/big"
	"time"
)

// Account is a ledger account: an owner principal plus optional subaccount.
type Account struct {
	Owner      string `json:"owner"`
	Subaccount []byte `json:"subaccount,omitempty"`
}

type MetadataEntry struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

type StandardRecord struct {
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
}

type Allowance struct {
	Allowance *big.Int   `json:"allowance"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

type ApproveArgs struct {
	Spender           Account  `json:"spender"`
	Amount            *big.Int `json:"amount"`
	Fee               *big.Int `json:"fee,omitempty"`
	ExpectedAllowance *big.Int `json:"expectedAllowance,omitempty"`
	ExpiresAt         *uint64  `json:"expiresAt,omitempty"`
	Memo              []byte   `json:"memo,omitempty"`
}

type TransferArgs struct {
	To             Account  `json:"to"`
	Amount         *big.Int `json:"amount"`
	Fee            *big.Int `json:"fee,omitempty"`
	FromSubaccount []byte   `json:"fromSubaccount,omitempty"`
	Memo           []byte   `json:"memo,omitempty"`
}

// Ledger is the token ledger contract. Err variants of the remote Result are
// returned as Go errors; Ok values are the block index of the transaction.
type Ledger interface {
	Metadata(ctx context.Context) ([]MetadataEntry, error)
	SupportedStandards(ctx context.Context) ([]StandardRecord, error)
	Fee(ctx context.Context) (*big.Int, error)
	Allowance(ctx context.Context, owner, spender Account) (*Allowance, error)
	Approve(ctx context.Context, args ApproveArgs) (*big.Int, error)
	Transfer(ctx context.Context, args TransferArgs) (*big.Int, error)
}

// LedgerProvider resolves the ledger client for a ledger canister id.
type LedgerProvider interface {
	Ledger(ledgerID string) Ledger
}

// LedgerProviderFunc adapts a function to LedgerProvider.
type LedgerProviderFunc func(ledgerID string) Ledger

func (f LedgerProviderFunc) Ledger(ledgerID string) Ledger {
	return f(ledgerID)
}
