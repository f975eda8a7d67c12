package gateway

import (
	"context"
	"fmt"
	"math/big"

	"github.com/hxuan190/dex-aggregator/internal/rpc"
)

type Ledger struct {
	client *Client
	id     string
}

var _ rpc.Ledger = (*Ledger)(nil)

func (l *Ledger) Metadata(ctx context.Context) ([]rpc.MetadataEntry, error) {
	var out []rpc.MetadataEntry
	_, err := l.client.call(ctx, l.id, "icrc1_metadata", nil, &out)
	return out, err
}

func (l *Ledger) SupportedStandards(ctx context.Context) ([]rpc.StandardRecord, error) {
	var out []rpc.StandardRecord
	_, err := l.client.call(ctx, l.id, "icrc1_supported_standards", nil, &out)
	return out, err
}

func (l *Ledger) Fee(ctx context.Context) (*big.Int, error) {
	return l.nat(ctx, "icrc1_fee", nil)
}

type allowanceArgs struct {
	Account rpc.Account `json:"account"`
	Spender rpc.Account `json:"spender"`
}

func (l *Ledger) Allowance(ctx context.Context, owner, spender rpc.Account) (*rpc.Allowance, error) {
	var out rpc.Allowance
	found, err := l.client.call(ctx, l.id, "icrc2_allowance", allowanceArgs{Account: owner, Spender: spender}, &out)
	if err != nil {
		return nil, err
	}
	if !found || out.Allowance == nil {
		return &rpc.Allowance{Allowance: new(big.Int)}, nil
	}
	return &out, nil
}

func (l *Ledger) Approve(ctx context.Context, args rpc.ApproveArgs) (*big.Int, error) {
	return l.nat(ctx, "icrc2_approve", args)
}

func (l *Ledger) Transfer(ctx context.Context, args rpc.TransferArgs) (*big.Int, error) {
	return l.nat(ctx, "icrc1_transfer", args)
}

func (l *Ledger) nat(ctx context.Context, method string, args any) (*big.Int, error) {
	var out big.Int
	found, err := l.client.call(ctx, l.id, method, args, &out)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%s.%s: empty result", l.id, method)
	}
	return &out, nil
}
