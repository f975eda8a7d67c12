// Package rpctest provides in-memory implementations of the rpc contracts
// for adapter and aggregator tests.
package rpctest

import (
	"context"
	"math/big"
	"sync"

	"github.com/hxuan190/dex-aggregator/internal/rpc"
)

// Ledger is a scriptable token ledger. Allowances are keyed by spender owner.
type Ledger struct {
	mu sync.Mutex

	Symbol    string
	Decimals  uint8
	FeeAmount *big.Int
	Standards []string

	MetadataErr  error
	FeeErr       error
	StandardsErr error
	AllowanceErr error
	ApproveErr   error
	TransferErr  error

	allowances map[string]*big.Int
	nextBlock  int64

	Approvals []rpc.ApproveArgs
	Transfers []rpc.TransferArgs
	calls     map[string]int
}

func NewLedger(symbol string, decimals uint8, fee int64, standards ...string) *Ledger {
	return &Ledger{
		Symbol:     symbol,
		Decimals:   decimals,
		FeeAmount:  big.NewInt(fee),
		Standards:  standards,
		allowances: make(map[string]*big.Int),
		nextBlock:  100,
		calls:      make(map[string]int),
	}
}

func (l *Ledger) count(method string) {
	l.mu.Lock()
	l.calls[method]++
	l.mu.Unlock()
}

// Calls reports how often method was invoked.
func (l *Ledger) Calls(method string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[method]
}

func (l *Ledger) Metadata(ctx context.Context) ([]rpc.MetadataEntry, error) {
	l.count("metadata")
	if l.MetadataErr != nil {
		return nil, l.MetadataErr
	}
	return []rpc.MetadataEntry{
		{Key: "icrc1:symbol", Value: l.Symbol},
		{Key: "icrc1:name", Value: l.Symbol + " token"},
		{Key: "icrc1:decimals", Value: uint64(l.Decimals)},
		{Key: "icrc1:fee", Value: new(big.Int).Set(l.FeeAmount)},
	}, nil
}

func (l *Ledger) SupportedStandards(ctx context.Context) ([]rpc.StandardRecord, error) {
	l.count("standards")
	if l.StandardsErr != nil {
		return nil, l.StandardsErr
	}
	out := make([]rpc.StandardRecord, 0, len(l.Standards))
	for _, s := range l.Standards {
		out = append(out, rpc.StandardRecord{Name: s})
	}
	return out, nil
}

func (l *Ledger) Fee(ctx context.Context) (*big.Int, error) {
	l.count("fee")
	if l.FeeErr != nil {
		return nil, l.FeeErr
	}
	return new(big.Int).Set(l.FeeAmount), nil
}

func (l *Ledger) SetAllowance(spender string, amount int64) {
	l.mu.Lock()
	l.allowances[spender] = big.NewInt(amount)
	l.mu.Unlock()
}

func (l *Ledger) Allowance(ctx context.Context, owner, spender rpc.Account) (*rpc.Allowance, error) {
	l.count("allowance")
	if l.AllowanceErr != nil {
		return nil, l.AllowanceErr
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.allowances[spender.Owner]
	if !ok {
		a = new(big.Int)
	}
	return &rpc.Allowance{Allowance: new(big.Int).Set(a)}, nil
}

func (l *Ledger) Approve(ctx context.Context, args rpc.ApproveArgs) (*big.Int, error) {
	l.count("approve")
	if l.ApproveErr != nil {
		return nil, l.ApproveErr
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Approvals = append(l.Approvals, args)
	l.allowances[args.Spender.Owner] = new(big.Int).Set(args.Amount)
	l.nextBlock++
	return big.NewInt(l.nextBlock), nil
}

func (l *Ledger) Transfer(ctx context.Context, args rpc.TransferArgs) (*big.Int, error) {
	l.count("transfer")
	if l.TransferErr != nil {
		return nil, l.TransferErr
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Transfers = append(l.Transfers, args)
	l.nextBlock++
	return big.NewInt(l.nextBlock), nil
}

// Ledgers serves fakes by ledger id.
type Ledgers map[string]*Ledger

func (ls Ledgers) Ledger(id string) rpc.Ledger {
	l, ok := ls[id]
	if !ok {
		return nil
	}
	return l
}
