package settlement

import (
	"context"
	"math/big"
	"strconv"

	"burnrouter/core/events"
	"burnrouter/crypto"
	"burnrouter/native/common"
	"burnrouter/native/fees"
)

// Parameter names reported by ParamChanged events.
const (
	ParamFeeCollector               = "feeCollector"
	ParamBurnFeeDivisor             = "burnFeeDivisor"
	ParamNativeSentFeeDivisor       = "nativeSentFeeDivisor"
	ParamReferrerFeeShare           = "referrerFeeShare"
	ParamForwardingTarget           = "forwardingTarget"
	ParamMinExecutionBudget         = "minExecutionBudget"
	ParamMaxItemsPerBatch           = "maxItemsPerBatch"
	ParamAcceptSettlementAssetInput = "acceptSettlementAssetInput"
)

// updateParams runs an owner-only change to the stored parameters and emits
// a single ParamChanged event.
func (e *Engine) updateParams(caller [20]byte, name string, fn func(*Params) (string, error)) error {
	return e.transact(context.Background(), "set_"+name, func(context.Context) error {
		if err := e.gate.RequireOwner(caller); err != nil {
			return err
		}
		params, err := e.loadParams()
		if err != nil {
			return err
		}
		value, err := fn(params)
		if err != nil {
			return err
		}
		if err := e.state.PutSettlementParams(params); err != nil {
			return err
		}
		e.buffer.Emit(events.ParamChanged{Param: name, Value: value, Caller: caller})
		return nil
	})
}

func accountString(addr [20]byte) string {
	return crypto.FromRaw(crypto.AccountPrefix, addr).String()
}

func (e *Engine) SetFeeCollector(caller, collector [20]byte) error {
	return e.updateParams(caller, ParamFeeCollector, func(p *Params) (string, error) {
		if common.IsZero(collector) {
			return "", common.ErrZeroAddress
		}
		if collector == e.address {
			return "", ErrInvalidFeeCollector
		}
		if collector == p.ForwardingTarget {
			return "", ErrInvalidForwardingTarget
		}
		p.FeeCollector = collector
		return accountString(collector), nil
	})
}

func (e *Engine) SetBurnFeeDivisor(caller [20]byte, divisor uint64) error {
	return e.updateParams(caller, ParamBurnFeeDivisor, func(p *Params) (string, error) {
		if err := fees.ValidateBurnFeeDivisor(divisor); err != nil {
			return "", err
		}
		p.Fees.BurnFeeDivisor = divisor
		return strconv.FormatUint(divisor, 10), nil
	})
}

func (e *Engine) SetNativeSentFeeDivisor(caller [20]byte, divisor uint64) error {
	return e.updateParams(caller, ParamNativeSentFeeDivisor, func(p *Params) (string, error) {
		if err := fees.ValidateNativeSentFeeDivisor(divisor); err != nil {
			return "", err
		}
		p.Fees.NativeSentFeeDivisor = divisor
		return strconv.FormatUint(divisor, 10), nil
	})
}

func (e *Engine) SetReferrerFeeShare(caller [20]byte, share uint8) error {
	return e.updateParams(caller, ParamReferrerFeeShare, func(p *Params) (string, error) {
		if err := fees.ValidateFeeShare(share); err != nil {
			return "", err
		}
		p.Fees.ReferrerFeeShare = share
		return strconv.FormatUint(uint64(share), 10), nil
	})
}

func (e *Engine) SetForwardingTarget(caller, target [20]byte) error {
	return e.updateParams(caller, ParamForwardingTarget, func(p *Params) (string, error) {
		if common.IsZero(target) {
			return "", common.ErrZeroAddress
		}
		if target == e.address || target == p.FeeCollector {
			return "", ErrInvalidForwardingTarget
		}
		p.ForwardingTarget = target
		return accountString(target), nil
	})
}

func (e *Engine) SetMinExecutionBudget(caller [20]byte, budget uint64) error {
	return e.updateParams(caller, ParamMinExecutionBudget, func(p *Params) (string, error) {
		if budget == 0 {
			return "", ErrZeroMinExecutionBudget
		}
		p.MinExecutionBudget = budget
		return strconv.FormatUint(budget, 10), nil
	})
}

func (e *Engine) SetMaxItemsPerBatch(caller [20]byte, limit uint64) error {
	return e.updateParams(caller, ParamMaxItemsPerBatch, func(p *Params) (string, error) {
		if limit == 0 {
			return "", ErrZeroMaxItems
		}
		p.MaxItemsPerBatch = limit
		return strconv.FormatUint(limit, 10), nil
	})
}

// SetAcceptSettlementAssetInput controls whether batch items already in the
// settlement asset count as proceeds or are skipped.
func (e *Engine) SetAcceptSettlementAssetInput(caller [20]byte, accept bool) error {
	return e.updateParams(caller, ParamAcceptSettlementAssetInput, func(p *Params) (string, error) {
		p.AcceptSettlementAssetInput = accept
		return strconv.FormatBool(accept), nil
	})
}

func (e *Engine) gateCall(op string, fn func() error) error {
	return e.transact(context.Background(), op, func(context.Context) error { return fn() })
}

func (e *Engine) Pause(caller [20]byte) error {
	return e.gateCall("pause", func() error { return e.gate.Pause(caller) })
}

func (e *Engine) Unpause(caller [20]byte) error {
	return e.gateCall("unpause", func() error { return e.gate.Unpause(caller) })
}

func (e *Engine) SetForwardingPaused(caller [20]byte, paused bool) error {
	return e.gateCall("set_forwarding_paused", func() error { return e.gate.SetForwardingPaused(caller, paused) })
}

func (e *Engine) SetReferralPaused(caller [20]byte, paused bool) error {
	return e.gateCall("set_referral_paused", func() error { return e.gate.SetReferralPaused(caller, paused) })
}

func (e *Engine) SetAdmin(caller, oldAdmin, newAdmin [20]byte) error {
	return e.gateCall("set_admin", func() error { return e.gate.SetAdmin(caller, oldAdmin, newAdmin) })
}

func (e *Engine) GrantAdmin(caller, admin [20]byte) error {
	return e.gateCall("grant_admin", func() error { return e.gate.GrantAdmin(caller, admin) })
}

func (e *Engine) RevokeAdmin(caller, admin [20]byte) error {
	return e.gateCall("revoke_admin", func() error { return e.gate.RevokeAdmin(caller, admin) })
}

func (e *Engine) TransferOwnership(caller, newOwner [20]byte) error {
	return e.gateCall("transfer_ownership", func() error { return e.gate.TransferOwnership(caller, newOwner) })
}

// RescueAsset lets the owner recover tokens held by the engine. It stays
// available while paused.
func (e *Engine) RescueAsset(ctx context.Context, caller, token, to [20]byte, amount *big.Int) error {
	return e.transact(ctx, "rescue_asset", func(ctx context.Context) error {
		if err := e.guard.Enter(); err != nil {
			return err
		}
		defer e.guard.Leave()
		if err := e.gate.RequireOwner(caller); err != nil {
			return err
		}
		if common.IsZero(to) {
			return common.ErrZeroAddress
		}
		if err := checkAmount(amount); err != nil {
			return err
		}
		asset, err := e.resolve(token)
		if err != nil {
			return err
		}
		if err := e.send(ctx, asset, to, amount, nil); err != nil {
			return err
		}
		e.buffer.Emit(events.AssetRescued{Asset: token, To: to, Amount: orZero(amount)})
		return nil
	})
}

// RescueNative recovers settlement-asset value held by the engine.
func (e *Engine) RescueNative(ctx context.Context, caller, to [20]byte, amount *big.Int) error {
	params, err := e.loadParams()
	if err != nil {
		return err
	}
	return e.RescueAsset(ctx, caller, params.SettlementAsset, to, amount)
}
