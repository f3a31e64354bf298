package referral

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"burnrouter/core/events"
	"burnrouter/native/assets"
	"burnrouter/native/common"
	"burnrouter/native/fees"
)

type registryState interface {
	PartnerShare(addr [20]byte) (uint8, error)
	PutPartnerShare(addr [20]byte, share uint8) error
	DeletePartnerShare(addr [20]byte) error
}

// Authorizer is satisfied by access.Gate.
type Authorizer interface {
	RequireOwner(caller [20]byte) error
	RequireOwnerOrAdmin(caller [20]byte) error
}

// Payment describes how tier purchases are paid: Spender pulls Token from the
// buyer straight to Collector.
type Payment struct {
	Token     assets.Asset
	Decimals  uint8
	Collector [20]byte
	Spender   [20]byte
}

// Registry tracks referral partners and their fee shares.
type Registry struct {
	state   registryState
	emitter events.Emitter
	pauses  common.PauseView
	auth    Authorizer
}

func NewRegistry() *Registry {
	return &Registry{emitter: events.NoopEmitter{}}
}

func (r *Registry) SetState(state registryState)  { r.state = state }
func (r *Registry) SetPauses(p common.PauseView)  { r.pauses = p }
func (r *Registry) SetAuthorizer(auth Authorizer) { r.auth = auth }

func (r *Registry) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		r.emitter = events.NoopEmitter{}
		return
	}
	r.emitter = emitter
}

func (r *Registry) emit(evt events.Event) {
	if r.emitter != nil {
		r.emitter.Emit(evt)
	}
}

// Share returns the stored share of addr; zero means not a partner.
func (r *Registry) Share(addr [20]byte) (uint8, error) {
	if r.state == nil {
		return 0, ErrNotInitialized
	}
	return r.state.PartnerShare(addr)
}

func (r *Registry) Tier(addr [20]byte) (Tier, error) {
	share, err := r.Share(addr)
	if err != nil {
		return Unregistered, err
	}
	return TierForShare(share), nil
}

func (r *Registry) IsPartner(addr [20]byte) (bool, error) {
	share, err := r.Share(addr)
	return share > 0, err
}

func (r *Registry) guard() error {
	if r.state == nil {
		return ErrNotInitialized
	}
	if err := common.Guard(r.pauses, common.ModuleSettlement); err != nil {
		return ErrEnforcedPause
	}
	if err := common.Guard(r.pauses, common.ModuleReferral); err != nil {
		return ErrReferralPaused
	}
	return nil
}

// Purchase registers caller at the tier whose price equals amount.
func (r *Registry) Purchase(ctx context.Context, caller [20]byte, amount *big.Int, pay Payment) (Tier, error) {
	if err := r.guard(); err != nil {
		return Unregistered, err
	}
	current, err := r.state.PartnerShare(caller)
	if err != nil {
		return Unregistered, err
	}
	if current > 0 {
		return Unregistered, ErrAlreadyPartner
	}
	tier := Unregistered
	for _, candidate := range []Tier{Tier30, Tier40, Tier50} {
		if amount != nil && amount.Cmp(Price(candidate, pay.Decimals)) == 0 {
			tier = candidate
			break
		}
	}
	if tier == Unregistered {
		return Unregistered, ErrInsufficientAllowanceOrAmount
	}
	if err := r.collect(ctx, caller, amount, pay); err != nil {
		return Unregistered, err
	}
	if err := r.state.PutPartnerShare(caller, tier.Share()); err != nil {
		return Unregistered, err
	}
	r.emit(events.PartnerAdded{Partner: caller, Share: tier.Share()})
	return tier, nil
}

// Upgrade moves a purchased tier up; amount must equal the price difference.
func (r *Registry) Upgrade(ctx context.Context, caller [20]byte, amount *big.Int, pay Payment) (Tier, error) {
	if err := r.guard(); err != nil {
		return Unregistered, err
	}
	share, err := r.state.PartnerShare(caller)
	if err != nil {
		return Unregistered, err
	}
	if share == 0 {
		return Unregistered, ErrReferrerNotRegistered
	}
	if share >= Tier50.Share() {
		return Unregistered, ErrMaximumTierReached
	}
	current := TierForShare(share)
	if current == TierCustom {
		return Unregistered, ErrCustomShareNotUpgradable
	}
	target := Unregistered
	for _, candidate := range []Tier{Tier40, Tier50} {
		if candidate <= current {
			continue
		}
		if amount != nil && amount.Cmp(UpgradeCost(current, candidate, pay.Decimals)) == 0 {
			target = candidate
			break
		}
	}
	if target == Unregistered {
		return Unregistered, ErrInsufficientAllowanceOrAmount
	}
	if err := r.collect(ctx, caller, amount, pay); err != nil {
		return Unregistered, err
	}
	if err := r.state.PutPartnerShare(caller, target.Share()); err != nil {
		return Unregistered, err
	}
	r.emit(events.PartnerShareChanged{Partner: caller, Share: target.Share()})
	return target, nil
}

func (r *Registry) collect(ctx context.Context, payer [20]byte, amount *big.Int, pay Payment) error {
	if pay.Token == nil {
		return fmt.Errorf("referral: payment token not configured")
	}
	if common.IsZero(pay.Collector) {
		return common.ErrZeroAddress
	}
	allowance, err := pay.Token.Allowance(payer, pay.Spender)
	if err != nil {
		return err
	}
	balance, err := pay.Token.BalanceOf(payer)
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 || balance.Cmp(amount) < 0 {
		return ErrInsufficientAllowanceOrAmount
	}
	if err := pay.Token.TransferFrom(ctx, pay.Spender, payer, pay.Collector, amount); err != nil {
		if errors.Is(err, assets.ErrInsufficientAllowance) || errors.Is(err, assets.ErrInsufficientBalance) {
			return ErrInsufficientAllowanceOrAmount
		}
		return err
	}
	return nil
}

// Put assigns an arbitrary share to addr. New partners raise PartnerAdded,
// existing ones PartnerShareChanged.
func (r *Registry) Put(caller, addr [20]byte, share uint8) error {
	if err := r.guard(); err != nil {
		return err
	}
	if r.auth != nil {
		if err := r.auth.RequireOwnerOrAdmin(caller); err != nil {
			return err
		}
	}
	if common.IsZero(addr) {
		return common.ErrZeroAddress
	}
	if err := fees.ValidateFeeShare(share); err != nil {
		return err
	}
	previous, err := r.state.PartnerShare(addr)
	if err != nil {
		return err
	}
	if err := r.state.PutPartnerShare(addr, share); err != nil {
		return err
	}
	if previous == 0 {
		r.emit(events.PartnerAdded{Partner: addr, Share: share})
	} else {
		r.emit(events.PartnerShareChanged{Partner: addr, Share: share})
	}
	return nil
}

// Remove clears a partner. Only the owner may remove.
func (r *Registry) Remove(caller, addr [20]byte) error {
	if err := r.guard(); err != nil {
		return err
	}
	if r.auth != nil {
		if err := r.auth.RequireOwner(caller); err != nil {
			return err
		}
	}
	if common.IsZero(addr) {
		return common.ErrZeroAddress
	}
	share, err := r.state.PartnerShare(addr)
	if err != nil {
		return err
	}
	if share == 0 {
		return ErrPartnerNotFound
	}
	if err := r.state.DeletePartnerShare(addr); err != nil {
		return err
	}
	r.emit(events.PartnerRemoved{Partner: addr})
	return nil
}
