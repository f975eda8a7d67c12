package dex

import (
	"errors"
	"fmt"

	"github.com/hxuan190/dex-aggregator/internal/domain"
	"github.com/hxuan190/dex-aggregator/internal/tokens"
)

var (
	ErrIncompatibleStandard = tokens.ErrIncompatibleStandard
	ErrAmountTooSmall       = errors.New("amount too small to cover transfer fees")
	ErrNoPoolForPair        = errors.New("no pool for pair")
	ErrQuoteFailed          = errors.New("quote failed")
	ErrSwapFailed           = errors.New("swap failed")
	ErrClaimFailed          = errors.New("claim failed")
	ErrInvalidQuote         = errors.New("invalid quote")
	ErrTransferNotRecorded  = errors.New("transfer not recorded for resume")
)

// AdapterError attaches the adapter identity to a remote failure.
type AdapterError struct {
	DexID string
	Op    string
	Err   error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.DexID, e.Op, e.Err)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

func Wrap(dexID, op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *AdapterError
	if errors.As(err, &ae) && ae.DexID == dexID {
		return err
	}
	return &AdapterError{DexID: dexID, Op: op, Err: err}
}

// QuoteError marks a rejected remote quote call.
func QuoteError(dexID string, err error) error {
	return Wrap(dexID, "quote", fmt.Errorf("%w: %w", ErrQuoteFailed, err))
}

// DexIDOf extracts the adapter id from an error chain, if any.
func DexIDOf(err error) string {
	var ae *AdapterError
	if errors.As(err, &ae) {
		return ae.DexID
	}
	return ""
}

// FailedAfterTransfer is the result of a swap call that failed after the
// input already left the user's account at rec.BlockIndex. The block index
// always travels with the result. The pending key is only attached when the
// record was saved; saveErr is reported otherwise.
func FailedAfterTransfer(tr *Tracker, rec *domain.PendingTransferRecord, swapErr, saveErr error) *domain.SwapResult {
	block := rec.BlockIndex.String()
	err := fmt.Errorf("%w: %w", ErrSwapFailed, swapErr)
	if saveErr != nil {
		err = fmt.Errorf("%w; %w (block %s): %w", err, ErrTransferNotRecorded, block, saveErr)
	}
	tr.FailTx(err, block)

	res := domain.FailedResult(err)
	res.TxID = block
	if saveErr == nil {
		res.PendingKey = rec.Key
	}
	return res
}
