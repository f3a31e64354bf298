package adapters

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"burnrouter/native/assets"
	"burnrouter/native/settlement"
)

// RouterCost is charged against the caller's execution budget per swap.
const RouterCost uint64 = 10_000

var (
	ErrNoRate          = errors.New("router: no rate for asset")
	ErrReserveDepleted = errors.New("router: reserve depleted")
	ErrSlippage        = errors.New("router: output below minimum")
)

// FixedRateRouter converts assets into the settlement asset at configured
// rates, paying out of the settlement-asset balance held at its address.
type FixedRateRouter struct {
	address    [20]byte
	assets     assets.Resolver
	settlement [20]byte

	mu    sync.RWMutex
	rates map[[20]byte]*big.Rat
}

// NewFixedRateRouter builds a router. Rates are settlement-asset smallest
// units per input smallest unit.
func NewFixedRateRouter(address [20]byte, resolver assets.Resolver, settlementAsset [20]byte, rates map[[20]byte]*big.Rat) *FixedRateRouter {
	r := &FixedRateRouter{
		address:    address,
		assets:     resolver,
		settlement: settlementAsset,
		rates:      make(map[[20]byte]*big.Rat, len(rates)),
	}
	for id, rate := range rates {
		r.rates[id] = new(big.Rat).Set(rate)
	}
	return r
}

func (r *FixedRateRouter) Address() [20]byte { return r.address }

// SetRate replaces the rate for asset. A nil rate delists it.
func (r *FixedRateRouter) SetRate(asset [20]byte, rate *big.Rat) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rate == nil {
		delete(r.rates, asset)
		return
	}
	r.rates[asset] = new(big.Rat).Set(rate)
}

// Quote returns the output for amount of asset without moving anything.
func (r *FixedRateRouter) Quote(asset [20]byte, amount *big.Int) (*big.Int, error) {
	r.mu.RLock()
	rate, ok := r.rates[asset]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %x", ErrNoRate, asset)
	}
	out := new(big.Rat).Mul(new(big.Rat).SetInt(amount), rate)
	return new(big.Int).Quo(out.Num(), out.Denom()), nil
}

func (r *FixedRateRouter) Swap(ctx context.Context, call settlement.SwapCall) (settlement.SwapResult, error) {
	if call.SettlementAsset != r.settlement {
		return settlement.SwapResult{}, fmt.Errorf("router: unsupported output asset %x", call.SettlementAsset)
	}
	if err := call.Budget.Consume(RouterCost); err != nil {
		return settlement.SwapResult{}, err
	}
	out, err := r.Quote(call.AssetIn, call.AmountIn)
	if err != nil {
		return settlement.SwapResult{}, err
	}
	if call.MinOut != nil && out.Cmp(call.MinOut) < 0 {
		return settlement.SwapResult{}, ErrSlippage
	}
	in, err := r.assets.Resolve(call.AssetIn)
	if err != nil {
		return settlement.SwapResult{}, err
	}
	settle, err := r.assets.Resolve(r.settlement)
	if err != nil {
		return settlement.SwapResult{}, err
	}
	reserve, err := settle.BalanceOf(r.address)
	if err != nil {
		return settlement.SwapResult{}, err
	}
	if reserve.Cmp(out) < 0 {
		return settlement.SwapResult{}, ErrReserveDepleted
	}
	if err := in.TransferFrom(ctx, r.address, call.Engine, r.address, call.AmountIn); err != nil {
		return settlement.SwapResult{}, fmt.Errorf("router: pull input: %w", err)
	}
	if err := settle.Transfer(ctx, r.address, call.Engine, out); err != nil {
		return settlement.SwapResult{}, fmt.Errorf("router: pay output: %w", err)
	}
	return settlement.SwapResult{AssetOut: r.settlement, AmountOut: out}, nil
}
