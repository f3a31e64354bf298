package settlement

import (
	"context"
	"fmt"
	"math/big"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"burnrouter/core/events"
	"burnrouter/native/assets"
	"burnrouter/native/common"
	"burnrouter/native/fees"
)

// instruction is the validated routing decision for one settlement.
type instruction struct {
	caller      [20]byte
	mode        Mode
	destination [20]byte
	payload     []byte
	referrer    [20]byte
	share       uint8
}

// SettleBatch converts every request, prices the aggregate and pays it out.
func (e *Engine) SettleBatch(ctx context.Context, call BatchCall) (*Receipt, error) {
	var receipt *Receipt
	mode := ModeDirect
	if call.Forward {
		mode = ModeForward
	}
	err := e.transact(ctx, "settle_batch", func(ctx context.Context) error {
		if err := e.guard.Enter(); err != nil {
			return err
		}
		defer e.guard.Leave()

		trace.SpanFromContext(ctx).SetAttributes(
			attribute.Int("items", len(call.Requests)),
			attribute.String("mode", mode.String()),
		)
		params, err := e.loadParams()
		if err != nil {
			return err
		}
		if err := common.Guard(e.gate, common.ModuleSettlement); err != nil {
			return ErrEnforcedPause
		}
		if len(call.Requests) == 0 {
			return ErrMismatchedInputs
		}
		if uint64(len(call.Requests)) > params.MaxItemsPerBatch {
			return &BatchTooLargeError{Got: len(call.Requests), Max: params.MaxItemsPerBatch}
		}
		if err := e.checkDeadline(call.Deadline); err != nil {
			return err
		}
		for _, req := range call.Requests {
			if err := e.checkDeadline(req.Deadline); err != nil {
				return err
			}
			if err := checkAmount(req.AmountIn); err != nil {
				return err
			}
			if err := checkAmount(req.MinOut); err != nil {
				return err
			}
		}
		if err := checkAmount(call.Value); err != nil {
			return err
		}
		value := orZero(call.Value)
		inst, err := e.plan(params, call.Caller, call.Recipient, call.Forward, call.Payload, call.Referrer, value)
		if err != nil {
			return err
		}
		settlementAsset, err := e.resolve(params.SettlementAsset)
		if err != nil {
			return err
		}
		if value.Sign() > 0 {
			received, err := e.pull(ctx, settlementAsset, call.Caller, value, call.Budget)
			if err != nil {
				return err
			}
			value = received
		}
		outcomes, proceeds, err := e.runSwaps(ctx, params, settlementAsset, call)
		if err != nil {
			return err
		}
		receipt, err = e.settle(ctx, params, settlementAsset, inst, proceeds, value, call.Budget)
		if err != nil {
			return err
		}
		receipt.Outcomes = outcomes
		return nil
	})
	e.observeBatch(mode, err, len(call.Requests))
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// RelayForward forwards directly supplied value without swaps. The same fee
// and referral rules apply to the value alone.
func (e *Engine) RelayForward(ctx context.Context, call RelayCall) (*Receipt, error) {
	var receipt *Receipt
	err := e.transact(ctx, "relay_forward", func(ctx context.Context) error {
		if err := e.guard.Enter(); err != nil {
			return err
		}
		defer e.guard.Leave()

		params, err := e.loadParams()
		if err != nil {
			return err
		}
		if err := common.Guard(e.gate, common.ModuleSettlement); err != nil {
			return ErrEnforcedPause
		}
		if err := e.checkDeadline(call.Deadline); err != nil {
			return err
		}
		if err := checkAmount(call.Value); err != nil {
			return err
		}
		value := orZero(call.Value)
		if value.Sign() == 0 {
			return ErrZeroValue
		}
		inst, err := e.plan(params, call.Caller, [20]byte{}, true, call.Payload, call.Referrer, value)
		if err != nil {
			return err
		}
		settlementAsset, err := e.resolve(params.SettlementAsset)
		if err != nil {
			return err
		}
		received, err := e.pull(ctx, settlementAsset, call.Caller, value, call.Budget)
		if err != nil {
			return err
		}
		receipt, err = e.settle(ctx, params, settlementAsset, inst, big.NewInt(0), received, call.Budget)
		return err
	})
	e.observeBatch(ModeForward, err, 0)
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

func (e *Engine) observeBatch(mode Mode, err error, items int) {
	result := "settled"
	if err != nil {
		result = "aborted"
	}
	e.metrics.ObserveBatch(mode.String(), result, items)
}

// plan validates the destination and referrer of a settlement before any
// asset moves.
func (e *Engine) plan(params *Params, caller, recipient [20]byte, forward bool, payload []byte, referrer [20]byte, value *big.Int) (*instruction, error) {
	inst := &instruction{caller: caller, mode: ModeDirect}
	if forward {
		if err := common.Guard(e.gate, common.ModuleForwarding); err != nil {
			return nil, ErrForwardingPaused
		}
		if !common.IsZero(recipient) {
			return nil, &BridgeAndRecipientBothSetError{Recipient: recipient}
		}
		if len(payload) == 0 {
			return nil, ErrInvalidBridgeData
		}
		if common.IsZero(params.ForwardingTarget) {
			return nil, ErrForwardingTargetNotSet
		}
		if e.forwarder == nil {
			return nil, ErrForwarderNotSet
		}
		inst.mode = ModeForward
		inst.destination = params.ForwardingTarget
		inst.payload = append([]byte(nil), payload...)
	} else {
		if len(payload) > 0 {
			return nil, &BridgeDataMustBeEmptyError{Data: append([]byte(nil), payload...)}
		}
		switch {
		case common.IsZero(recipient):
			if value.Sign() > 0 {
				return nil, ErrRecipientMustBeSet
			}
			inst.destination = caller
		case recipient == caller:
			return nil, ErrRecipientIsSender
		case recipient == params.FeeCollector:
			return nil, ErrToCannotBeFeeCollector
		case recipient == e.address:
			return nil, ErrToCannotBeContract
		default:
			inst.destination = recipient
		}
	}

	share, err := e.referralShare(params, caller, referrer)
	if err != nil {
		return nil, err
	}
	if share > 0 {
		inst.referrer = referrer
		inst.share = share
	}
	return inst, nil
}

// referralShare validates referrer and returns the share it earns. A paused
// referral flow earns nothing but still validates.
func (e *Engine) referralShare(params *Params, caller, referrer [20]byte) (uint8, error) {
	if common.IsZero(referrer) {
		return 0, nil
	}
	if referrer == params.FeeCollector {
		return 0, ErrReferrerCannotBeFeeCollector
	}
	if referrer == e.address {
		return 0, ErrReferrerCannotBeContract
	}
	partnerShare, err := e.registry.Share(referrer)
	if err != nil {
		return 0, err
	}
	if referrer == caller && partnerShare == 0 {
		return 0, ErrReferrerCannotBeSelfUnlessPartner
	}
	if common.Guard(e.gate, common.ModuleReferral) != nil {
		return 0, nil
	}
	if partnerShare > 0 {
		return partnerShare, nil
	}
	return params.Fees.ReferrerFeeShare, nil
}

// settle prices the aggregate and performs at most three payouts plus the
// forwarding call.
func (e *Engine) settle(ctx context.Context, params *Params, settlementAsset assets.Asset, inst *instruction, proceeds, value *big.Int, budget *common.Meter) (*Receipt, error) {
	receipt := &Receipt{
		Caller:      inst.caller,
		Mode:        inst.mode,
		Phase:       PhaseCollecting,
		Proceeds:    new(big.Int).Set(proceeds),
		DirectValue: new(big.Int).Set(value),
		Referrer:    inst.referrer,
		Destination: inst.destination,
		Payload:     inst.payload,
	}
	if inst.mode == ModeForward {
		combined := new(big.Int).Add(proceeds, value)
		minimum := new(big.Int).SetUint64(params.Fees.NativeSentFeeDivisor)
		minimum.Mul(minimum, new(big.Int).SetUint64(ForwardingMinimumMultiplier))
		if combined.Cmp(minimum) < 0 {
			return nil, &InsufficientValueError{Got: combined, Min: minimum}
		}
	}

	breakdown, err := fees.Compute(fees.Input{
		SwapProceeds: proceeds,
		DirectValue:  value,
		Params:       params.Fees,
		Share:        inst.share,
	})
	if err != nil {
		return nil, err
	}
	receipt.SwapFee = breakdown.SwapFee
	receipt.DirectFee = breakdown.DirectFee
	receipt.Fee = breakdown.Fee
	receipt.Net = breakdown.Net
	receipt.ReferrerCut = breakdown.ReferrerCut
	receipt.CollectorCut = breakdown.CollectorCut
	receipt.Phase = PhaseFeeComputed

	if err := e.send(ctx, settlementAsset, params.FeeCollector, breakdown.CollectorCut, budget); err != nil {
		return nil, err
	}
	if breakdown.ReferrerCut.Sign() > 0 {
		if err := e.send(ctx, settlementAsset, inst.referrer, breakdown.ReferrerCut, budget); err != nil {
			return nil, err
		}
		e.buffer.Emit(events.ReferrerFeePaid{Payer: inst.caller, Referrer: inst.referrer, Amount: breakdown.ReferrerCut})
		e.metrics.ObserveReferralPaid()
	}
	if err := e.send(ctx, settlementAsset, inst.destination, breakdown.Net, budget); err != nil {
		return nil, err
	}
	if inst.mode == ModeForward {
		returnData, err := e.forward(ctx, settlementAsset, inst, breakdown.Net, budget)
		if err != nil {
			return nil, err
		}
		receipt.ReturnData = returnData
		e.buffer.Emit(events.ForwardSucceeded{
			Payer:      inst.caller,
			Target:     inst.destination,
			ReturnData: returnData,
			Net:        breakdown.Net,
			Fee:        breakdown.Fee,
		})
	}
	e.buffer.Emit(events.BatchSettled{Payer: inst.caller, Net: breakdown.Net, Fee: breakdown.Fee})
	receipt.Phase = PhaseDistributed
	return receipt, nil
}

func (e *Engine) forward(ctx context.Context, settlementAsset assets.Asset, inst *instruction, net *big.Int, budget *common.Meter) ([]byte, error) {
	if err := budget.Consume(ForwardCost); err != nil {
		return nil, err
	}
	returnData, err := e.forwarder.Forward(ctx, inst.destination, ForwardCall{
		Engine:  e.address,
		Payer:   inst.caller,
		Asset:   settlementAsset.ID(),
		Amount:  new(big.Int).Set(net),
		Payload: append([]byte(nil), inst.payload...),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrForwardFailed, err)
	}
	return returnData, nil
}

// Quote prices a hypothetical settlement without moving assets.
func (e *Engine) Quote(caller, referrer [20]byte, proceeds, value *big.Int) (fees.Breakdown, error) {
	params, err := e.loadParams()
	if err != nil {
		return fees.Breakdown{}, err
	}
	if err := checkAmount(proceeds); err != nil {
		return fees.Breakdown{}, err
	}
	if err := checkAmount(value); err != nil {
		return fees.Breakdown{}, err
	}
	share, err := e.referralShare(params, caller, referrer)
	if err != nil {
		return fees.Breakdown{}, err
	}
	return fees.Compute(fees.Input{
		SwapProceeds: orZero(proceeds),
		DirectValue:  orZero(value),
		Params:       params.Fees,
		Share:        share,
	})
}
