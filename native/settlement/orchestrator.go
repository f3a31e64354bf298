package settlement

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"burnrouter/core/events"
	"burnrouter/native/assets"
	"burnrouter/native/common"
)

var (
	errSameAssetOut  = errors.New("router returned the input asset")
	errUnexpectedOut = errors.New("router returned an unexpected asset")
	errNoOutput      = errors.New("router produced nothing")
	errBelowMinimum  = errors.New("router output below minimum")
)

// runSwaps converts every request in order. Soft failures are recorded on the
// outcome and never abort the batch; the returned error is always a hard
// failure.
func (e *Engine) runSwaps(ctx context.Context, params *Params, settlementAsset assets.Asset, call BatchCall) ([]Outcome, *big.Int, error) {
	total := big.NewInt(0)
	outcomes := make([]Outcome, 0, len(call.Requests))
	for i, req := range call.Requests {
		outcome, err := e.swapItem(ctx, params, settlementAsset, call.Caller, i, req, call.Budget)
		if err != nil {
			return nil, nil, fmt.Errorf("item %d: %w", i, err)
		}
		if outcome.Succeeded() {
			total.Add(total, outcome.Produced)
		}
		e.recordOutcome(call.Caller, outcome)
		outcomes = append(outcomes, outcome)
	}
	return outcomes, total, nil
}

func (e *Engine) swapItem(ctx context.Context, params *Params, settlementAsset assets.Asset, caller [20]byte, index int, req Request, budget *common.Meter) (Outcome, error) {
	out := Outcome{Index: index, Asset: req.Asset, AmountIn: orZero(req.AmountIn)}
	fail := func(reason string) (Outcome, error) {
		out.Status = OutcomeFailed
		out.Reason = reason
		return out, nil
	}
	succeed := func(consumed, produced *big.Int) (Outcome, error) {
		out.Status = OutcomeSucceeded
		out.Consumed = consumed
		out.Produced = produced
		return out, nil
	}

	if err := budget.Consume(ItemCost); err != nil {
		return out, err
	}
	if out.AmountIn.Sign() == 0 {
		return fail(ReasonZeroAmount)
	}
	token, err := e.resolve(req.Asset)
	if err != nil {
		return out, err
	}

	if budget.Remaining() < params.MinExecutionBudget {
		received, err := e.pull(ctx, token, caller, out.AmountIn, budget)
		if err != nil {
			return out, err
		}
		if err := e.send(ctx, token, caller, received, budget); err != nil {
			return out, err
		}
		return fail(ReasonInsufficientBudget)
	}

	if req.Asset == params.SettlementAsset {
		if !params.AcceptSettlementAssetInput {
			return fail(ReasonSettlementAssetInput)
		}
		received, err := e.pull(ctx, token, caller, out.AmountIn, budget)
		if err != nil {
			return out, err
		}
		if received.Sign() == 0 {
			return fail(ReasonZeroAmount)
		}
		return succeed(received, new(big.Int).Set(received))
	}

	received, err := e.pull(ctx, token, caller, out.AmountIn, budget)
	if err != nil {
		return out, err
	}
	if received.Sign() == 0 {
		return fail(ReasonZeroAmount)
	}
	if e.router == nil {
		return out, ErrNilRouter
	}
	routerAddr := e.router.Address()
	if err := token.Approve(ctx, e.address, routerAddr, received); err != nil {
		return out, fmt.Errorf("settlement: approve router: %w", err)
	}
	if err := budget.Consume(SwapCost); err != nil {
		return out, err
	}

	before, err := settlementAsset.BalanceOf(e.address)
	if err != nil {
		return out, err
	}
	snap := e.state.Snapshot()
	mark := e.buffer.Mark()
	result, swapErr := e.router.Swap(ctx, SwapCall{
		Engine:          e.address,
		Payer:           caller,
		AssetIn:         req.Asset,
		AmountIn:        new(big.Int).Set(received),
		MinOut:          orZero(req.MinOut),
		SettlementAsset: params.SettlementAsset,
		Route:           append([]byte(nil), req.Route...),
		Budget:          budget,
	})
	var produced *big.Int
	if swapErr == nil {
		produced, swapErr = e.measureSwap(settlementAsset, before, result, req, params)
	}
	if swapErr == nil {
		return succeed(received, produced)
	}

	e.state.RevertToSnapshot(snap)
	e.buffer.Truncate(mark)
	e.logger.Debug("router call failed", "index", index, "error", swapErr)
	if err := token.Approve(ctx, e.address, routerAddr, big.NewInt(0)); err != nil {
		e.logger.Debug("router allowance revocation failed", "index", index, "error", err)
		return fail(ReasonRouterRevokeFailure)
	}
	if err := e.send(ctx, token, caller, received, budget); err != nil {
		return out, err
	}
	return fail(ReasonRouterError)
}

// measureSwap derives the produced amount from the engine's settlement-asset
// balance rather than trusting the router's report.
func (e *Engine) measureSwap(settlementAsset assets.Asset, before *big.Int, result SwapResult, req Request, params *Params) (*big.Int, error) {
	if result.AssetOut == req.Asset {
		return nil, errSameAssetOut
	}
	if result.AssetOut != params.SettlementAsset {
		return nil, errUnexpectedOut
	}
	after, err := settlementAsset.BalanceOf(e.address)
	if err != nil {
		return nil, err
	}
	produced := new(big.Int).Sub(after, before)
	if produced.Sign() <= 0 {
		return nil, errNoOutput
	}
	if req.MinOut != nil && produced.Cmp(req.MinOut) < 0 {
		return nil, errBelowMinimum
	}
	return produced, nil
}

func (e *Engine) recordOutcome(caller [20]byte, o Outcome) {
	if o.Succeeded() {
		e.buffer.Emit(events.SwapSucceeded{
			Index:     o.Index,
			Payer:     caller,
			Asset:     o.Asset,
			AmountIn:  o.Consumed,
			AmountOut: o.Produced,
		})
	} else {
		e.logger.Debug("batch item failed", "index", o.Index, "reason", o.Reason)
		e.buffer.Emit(events.SwapFailed{
			Index:  o.Index,
			Payer:  caller,
			Asset:  o.Asset,
			Amount: o.AmountIn,
			Reason: o.Reason,
		})
	}
	e.metrics.ObserveItem(o.Status.String(), o.Reason)
}
