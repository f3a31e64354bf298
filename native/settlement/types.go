package settlement

import (
	"context"
	"math/big"

	"burnrouter/native/common"
)

// Request is one conversion in a batch. Deadline is a Unix timestamp in
// seconds; zero disables the check.
type Request struct {
	Asset    [20]byte
	AmountIn *big.Int
	MinOut   *big.Int
	Route    []byte
	Deadline int64
}

// BatchCall is the input of SettleBatch. Value is an amount of the settlement
// asset the caller attaches directly, outside any swap.
type BatchCall struct {
	Caller    [20]byte
	Requests  []Request
	Recipient [20]byte
	Forward   bool
	Payload   []byte
	Referrer  [20]byte
	Deadline  int64
	Value     *big.Int
	Budget    *common.Meter
}

// RelayCall forwards directly supplied value without any swaps.
type RelayCall struct {
	Caller   [20]byte
	Payload  []byte
	Referrer [20]byte
	Deadline int64
	Value    *big.Int
	Budget   *common.Meter
}

type OutcomeStatus uint8

const (
	OutcomeSucceeded OutcomeStatus = iota
	OutcomeFailed
)

func (s OutcomeStatus) String() string {
	if s == OutcomeSucceeded {
		return "succeeded"
	}
	return "failed"
}

// Failure reasons recorded on batch items.
const (
	ReasonZeroAmount           = "zero amount"
	ReasonInsufficientBudget   = "insufficient execution budget"
	ReasonRouterError          = "router error"
	ReasonRouterRevokeFailure  = "router error + revoke failure"
	ReasonSettlementAssetInput = "settlement asset input"
)

// Outcome is the per-item result. Consumed and Produced are set on success;
// Reason is set on failure.
type Outcome struct {
	Index    int
	Asset    [20]byte
	AmountIn *big.Int
	Status   OutcomeStatus
	Consumed *big.Int
	Produced *big.Int
	Reason   string
}

func (o Outcome) Succeeded() bool { return o.Status == OutcomeSucceeded }

type Mode uint8

const (
	ModeDirect Mode = iota
	ModeForward
)

func (m Mode) String() string {
	if m == ModeForward {
		return "forward"
	}
	return "direct"
}

// Phase tracks a settlement through Collecting, FeeComputed and Distributed.
// Aborted is terminal and only observed through logs and metrics since an
// aborted call returns an error instead of a receipt.
type Phase uint8

const (
	PhaseCollecting Phase = iota
	PhaseFeeComputed
	PhaseDistributed
	PhaseAborted
)

func (p Phase) String() string {
	switch p {
	case PhaseCollecting:
		return "collecting"
	case PhaseFeeComputed:
		return "fee_computed"
	case PhaseDistributed:
		return "distributed"
	default:
		return "aborted"
	}
}

// Receipt describes a completed settlement.
type Receipt struct {
	Caller       [20]byte
	Mode         Mode
	Phase        Phase
	Outcomes     []Outcome
	Proceeds     *big.Int
	DirectValue  *big.Int
	SwapFee      *big.Int
	DirectFee    *big.Int
	Fee          *big.Int
	Net          *big.Int
	Referrer     [20]byte
	ReferrerCut  *big.Int
	CollectorCut *big.Int
	Destination  [20]byte
	Payload      []byte
	ReturnData   []byte
}

// SwapCall is handed to the Router. The router pulls AmountIn of AssetIn from
// Engine using the allowance granted for this call and pays its output to
// Engine.
type SwapCall struct {
	Engine          [20]byte
	Payer           [20]byte
	AssetIn         [20]byte
	AmountIn        *big.Int
	MinOut          *big.Int
	SettlementAsset [20]byte
	Route           []byte
	Budget          *common.Meter
}

type SwapResult struct {
	AssetOut  [20]byte
	AmountOut *big.Int
}

// Router is the external conversion service.
type Router interface {
	Address() [20]byte
	Swap(ctx context.Context, call SwapCall) (SwapResult, error)
}

// ForwardCall describes net proceeds already credited to the forwarding
// target.
type ForwardCall struct {
	Engine  [20]byte
	Payer   [20]byte
	Asset   [20]byte
	Amount  *big.Int
	Payload []byte
}

// Forwarder delivers the payload to the forwarding target and returns its
// response.
type Forwarder interface {
	Forward(ctx context.Context, target [20]byte, call ForwardCall) ([]byte, error)
}

// Metrics receives settlement observations. observability.SettlementMetrics
// implements it.
type Metrics interface {
	ObserveItem(status, reason string)
	ObserveBatch(mode, result string, items int)
	ObserveReferralPaid()
}

type noopMetrics struct{}

func (noopMetrics) ObserveItem(string, string)       {}
func (noopMetrics) ObserveBatch(string, string, int) {}
func (noopMetrics) ObserveReferralPaid()             {}
