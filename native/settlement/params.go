package settlement

import (
	"burnrouter/native/common"
	"burnrouter/native/fees"
)

const (
	DefaultMaxItemsPerBatch   uint64 = 50
	DefaultMinExecutionBudget uint64 = 100_000
	DefaultPaymentDecimals    uint8  = 6

	// ForwardingMinimumMultiplier scales NativeSentFeeDivisor into the
	// smallest value a forwarding call may carry.
	ForwardingMinimumMultiplier uint64 = 20
)

// Params is the engine configuration persisted in state.
type Params struct {
	FeeCollector               [20]byte
	ForwardingTarget           [20]byte
	SettlementAsset            [20]byte
	PaymentToken               [20]byte
	PaymentDecimals            uint8
	Fees                       fees.Params
	MaxItemsPerBatch           uint64
	MinExecutionBudget         uint64
	AcceptSettlementAssetInput bool
}

// DefaultParams returns the launch configuration without addresses.
func DefaultParams() Params {
	return Params{
		PaymentDecimals:    DefaultPaymentDecimals,
		Fees:               fees.DefaultParams(),
		MaxItemsPerBatch:   DefaultMaxItemsPerBatch,
		MinExecutionBudget: DefaultMinExecutionBudget,
	}
}

// Validate checks the parameters against the engine's own identity.
func (p Params) Validate(engine [20]byte) error {
	if common.IsZero(p.FeeCollector) || common.IsZero(p.SettlementAsset) {
		return common.ErrZeroAddress
	}
	if p.FeeCollector == engine {
		return ErrInvalidFeeCollector
	}
	if !common.IsZero(p.ForwardingTarget) && (p.ForwardingTarget == engine || p.ForwardingTarget == p.FeeCollector) {
		return ErrInvalidForwardingTarget
	}
	if err := p.Fees.Validate(); err != nil {
		return err
	}
	if p.MaxItemsPerBatch == 0 {
		return ErrZeroMaxItems
	}
	if p.MinExecutionBudget == 0 {
		return ErrZeroMinExecutionBudget
	}
	return nil
}
