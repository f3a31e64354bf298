package referral

import (
	"fmt"
	"math/big"
)

// Tier is a referral partner level. Purchased tiers map onto fixed shares of
// the fee; TierCustom marks shares assigned by an administrator.
type Tier uint8

const (
	Unregistered Tier = iota
	Tier30
	Tier40
	Tier50
	TierCustom
)

func (t Tier) String() string {
	switch t {
	case Unregistered:
		return "unregistered"
	case Tier30:
		return "tier30"
	case Tier40:
		return "tier40"
	case Tier50:
		return "tier50"
	case TierCustom:
		return "custom"
	default:
		return fmt.Sprintf("tier(%d)", uint8(t))
	}
}

// Share returns the tier's share out of 20. Custom tiers have no fixed share.
func (t Tier) Share() uint8 {
	switch t {
	case Tier30:
		return 6
	case Tier40:
		return 8
	case Tier50:
		return 10
	default:
		return 0
	}
}

// BasisPoints converts the share to basis points of the fee.
func (t Tier) BasisPoints() uint32 {
	return ShareBasisPoints(t.Share())
}

// ShareBasisPoints converts any share out of 20 to basis points.
func ShareBasisPoints(share uint8) uint32 {
	return uint32(share) * 500
}

// TierForShare classifies a stored share.
func TierForShare(share uint8) Tier {
	switch share {
	case 0:
		return Unregistered
	case 6:
		return Tier30
	case 8:
		return Tier40
	case 10:
		return Tier50
	default:
		return TierCustom
	}
}

// purchasePrice is the price of a tier in whole payment-token units.
func purchasePrice(t Tier) int64 {
	switch t {
	case Tier30:
		return 25
	case Tier40:
		return 50
	case Tier50:
		return 100
	default:
		return 0
	}
}

// Price returns the cost of buying t outright, scaled to the payment token's
// decimals.
func Price(t Tier, decimals uint8) *big.Int {
	return scale(purchasePrice(t), decimals)
}

// UpgradeCost returns the price difference between two purchasable tiers.
func UpgradeCost(from, to Tier, decimals uint8) *big.Int {
	delta := purchasePrice(to) - purchasePrice(from)
	if delta < 0 {
		delta = 0
	}
	return scale(delta, decimals)
}

func scale(units int64, decimals uint8) *big.Int {
	factor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	return factor.Mul(factor, big.NewInt(units))
}
