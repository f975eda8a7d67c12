package domain

import (
	"math/big"
	"time"
)

type SwapStep string

const (
	StepCheckingAllowance SwapStep = "CHECKING_ALLOWANCE"
	StepApproving         SwapStep = "APPROVING"
	StepTransferring      SwapStep = "TRANSFERRING"
	StepDepositing        SwapStep = "DEPOSITING"
	StepSwapping          SwapStep = "SWAPPING"
	StepWithdrawing       SwapStep = "WITHDRAWING"
	StepClaiming          SwapStep = "CLAIMING"
	StepComplete          SwapStep = "COMPLETE"
	StepFailed            SwapStep = "FAILED"
)

func (s SwapStep) Terminal() bool {
	return s == StepComplete || s == StepFailed
}

// SwapProgress is streamed to callers while a swap executes. It is never persisted.
type SwapProgress struct {
	Step       SwapStep `json:"step"`
	Message    string   `json:"message"`
	StepIndex  int      `json:"stepIndex"`
	TotalSteps int      `json:"totalSteps"`
	Completed  bool     `json:"completed"`
	Failed     bool     `json:"failed"`
	Error      string   `json:"error,omitempty"`
	TxID       string   `json:"txId,omitempty"`

	// Legs is set on combined progress of a split swap.
	Legs []LegProgress `json:"legs,omitempty"`
}

type LegProgress struct {
	DexID    string       `json:"dexId"`
	DexName  string       `json:"dexName"`
	Progress SwapProgress `json:"progress"`
}

type ProgressFunc func(SwapProgress)

// Emit is a nil-safe call of f.
func (f ProgressFunc) Emit(p SwapProgress) {
	if f != nil {
		f(p)
	}
}

// ProgressChannel adapts the callback contract to a channel. The returned
// close function must be called once the swap has returned.
func ProgressChannel(buffer int) (ProgressFunc, <-chan SwapProgress, func()) {
	ch := make(chan SwapProgress, buffer)
	return func(p SwapProgress) { ch <- p }, ch, func() { close(ch) }
}

// SwapResult is the outcome of one swap. PendingKey is set when the swap
// failed after its transfer and the transfer is waiting to be resumed.
type SwapResult struct {
	Success    bool        `json:"success"`
	AmountOut  *big.Int    `json:"amountOut"`
	TxID       string      `json:"txId,omitempty"`
	Error      string      `json:"error,omitempty"`
	PendingKey string      `json:"pendingKey,omitempty"`
	Legs       []LegResult `json:"legs,omitempty"`
}

// FailedResult is what adapters return when the remote swap call was rejected.
func FailedResult(err error) *SwapResult {
	r := &SwapResult{AmountOut: new(big.Int)}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

type LegResult struct {
	DexID       string   `json:"dexId"`
	DexName     string   `json:"dexName"`
	InputAmount *big.Int `json:"inputAmount"`
	AmountOut   *big.Int `json:"amountOut"`
	Success     bool     `json:"success"`
	TxID        string   `json:"txId,omitempty"`
	Error       string   `json:"error,omitempty"`
	PendingKey  string   `json:"pendingKey,omitempty"`
}

// FailedLegs lists the legs a caller has to retry.
func (r *SwapResult) FailedLegs() []LegResult {
	var failed []LegResult
	for _, l := range r.Legs {
		if !l.Success {
			failed = append(failed, l)
		}
	}
	return failed
}

// OutstandingClaim is swap output the backend did not deliver and whose claim
// call failed. It is retried later and never fails the originating swap.
type OutstandingClaim struct {
	ID        string    `json:"id"`
	DexID     string    `json:"dexId"`
	Token     string    `json:"token,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"lastError,omitempty"`
}
