package settlement

import (
	"context"
	"math/big"

	"burnrouter/native/common"
	"burnrouter/native/referral"
)

func (e *Engine) payment(params *Params) (referral.Payment, error) {
	if common.IsZero(params.PaymentToken) {
		return referral.Payment{}, ErrPaymentTokenNotSet
	}
	token, err := e.resolve(params.PaymentToken)
	if err != nil {
		return referral.Payment{}, err
	}
	return referral.Payment{
		Token:     token,
		Decimals:  params.PaymentDecimals,
		Collector: params.FeeCollector,
		Spender:   e.address,
	}, nil
}

// PurchaseReferralTier buys a partner tier with the payment token. The
// caller must have approved the engine for amount.
func (e *Engine) PurchaseReferralTier(ctx context.Context, caller [20]byte, amount *big.Int) (referral.Tier, error) {
	tier := referral.Unregistered
	err := e.transact(ctx, "purchase_referral_tier", func(ctx context.Context) error {
		if err := e.guard.Enter(); err != nil {
			return err
		}
		defer e.guard.Leave()
		params, err := e.loadParams()
		if err != nil {
			return err
		}
		pay, err := e.payment(params)
		if err != nil {
			return err
		}
		tier, err = e.registry.Purchase(ctx, caller, amount, pay)
		return err
	})
	if err != nil {
		return referral.Unregistered, err
	}
	return tier, nil
}

// UpgradeReferralTier pays the price difference to move to a higher tier.
func (e *Engine) UpgradeReferralTier(ctx context.Context, caller [20]byte, amount *big.Int) (referral.Tier, error) {
	tier := referral.Unregistered
	err := e.transact(ctx, "upgrade_referral_tier", func(ctx context.Context) error {
		if err := e.guard.Enter(); err != nil {
			return err
		}
		defer e.guard.Leave()
		params, err := e.loadParams()
		if err != nil {
			return err
		}
		pay, err := e.payment(params)
		if err != nil {
			return err
		}
		tier, err = e.registry.Upgrade(ctx, caller, amount, pay)
		return err
	})
	if err != nil {
		return referral.Unregistered, err
	}
	return tier, nil
}

// PutPartner assigns share to partner. Owner or admin only.
func (e *Engine) PutPartner(caller, partner [20]byte, share uint8) error {
	return e.gateCall("put_partner", func() error { return e.registry.Put(caller, partner, share) })
}

// RemovePartner clears partner. Owner only.
func (e *Engine) RemovePartner(caller, partner [20]byte) error {
	return e.gateCall("remove_partner", func() error { return e.registry.Remove(caller, partner) })
}
