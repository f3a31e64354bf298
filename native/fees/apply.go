package fees

import (
	"errors"
	"fmt"
	"math/big"
)

const (
	// MinBurnFeeDivisor caps the fee on swap proceeds at 2.5%.
	MinBurnFeeDivisor uint64 = 40
	// MinNativeSentFeeDivisor caps the fee on directly supplied value at 0.25%.
	MinNativeSentFeeDivisor uint64 = 400
	// ShareDenominator is the fixed denominator of referral shares; a share of
	// 4 grants the referrer 4/20 of the fee.
	ShareDenominator uint8 = 20
)

var (
	ErrFeeDivisorTooLow = errors.New("fees: divisor below minimum")
	ErrFeeShareTooHigh  = errors.New("fees: share above maximum")
	ErrZeroFeeShare     = errors.New("fees: share must be positive")
	ErrNegativeAmount   = errors.New("fees: negative amount")
)

// FeeDivisorTooLowError reports a divisor below its floor.
type FeeDivisorTooLowError struct {
	Got uint64
	Min uint64
}

func (e *FeeDivisorTooLowError) Error() string {
	return fmt.Sprintf("fees: divisor %d below minimum %d", e.Got, e.Min)
}

func (e *FeeDivisorTooLowError) Is(target error) bool { return target == ErrFeeDivisorTooLow }

// FeeShareTooHighError reports a referral share above ShareDenominator.
type FeeShareTooHighError struct {
	Got uint8
	Max uint8
}

func (e *FeeShareTooHighError) Error() string {
	return fmt.Sprintf("fees: share %d above maximum %d", e.Got, e.Max)
}

func (e *FeeShareTooHighError) Is(target error) bool { return target == ErrFeeShareTooHigh }

// Params holds the owner-controlled fee configuration.
type Params struct {
	BurnFeeDivisor       uint64 `json:"burnFeeDivisor"`
	NativeSentFeeDivisor uint64 `json:"nativeSentFeeDivisor"`
	ReferrerFeeShare     uint8  `json:"referrerFeeShare"`
}

// DefaultParams returns the launch configuration: 2.5% on swaps, 0.25% on
// direct value and a 20% default referral share.
func DefaultParams() Params {
	return Params{
		BurnFeeDivisor:       MinBurnFeeDivisor,
		NativeSentFeeDivisor: MinNativeSentFeeDivisor,
		ReferrerFeeShare:     4,
	}
}

// Validate checks every field against its bound.
func (p Params) Validate() error {
	if err := ValidateBurnFeeDivisor(p.BurnFeeDivisor); err != nil {
		return err
	}
	if err := ValidateNativeSentFeeDivisor(p.NativeSentFeeDivisor); err != nil {
		return err
	}
	return ValidateFeeShare(p.ReferrerFeeShare)
}

func ValidateBurnFeeDivisor(divisor uint64) error {
	if divisor < MinBurnFeeDivisor {
		return &FeeDivisorTooLowError{Got: divisor, Min: MinBurnFeeDivisor}
	}
	return nil
}

func ValidateNativeSentFeeDivisor(divisor uint64) error {
	if divisor < MinNativeSentFeeDivisor {
		return &FeeDivisorTooLowError{Got: divisor, Min: MinNativeSentFeeDivisor}
	}
	return nil
}

// ValidateFeeShare accepts shares in [1, ShareDenominator].
func ValidateFeeShare(share uint8) error {
	if share == 0 {
		return ErrZeroFeeShare
	}
	if share > ShareDenominator {
		return &FeeShareTooHighError{Got: share, Max: ShareDenominator}
	}
	return nil
}

// ComputeFee returns floor(amount/divisor). Nil or zero amounts produce a zero
// fee.
func ComputeFee(amount *big.Int, divisor uint64) *big.Int {
	if amount == nil || amount.Sign() <= 0 || divisor == 0 {
		return big.NewInt(0)
	}
	return new(big.Int).Quo(amount, new(big.Int).SetUint64(divisor))
}

// SplitFee divides a fee between the referrer and the collector. The referrer
// receives floor(fee*share/20) and the collector keeps the remainder.
func SplitFee(fee *big.Int, share uint8) (referrerCut, collectorCut *big.Int) {
	if fee == nil || fee.Sign() <= 0 {
		return big.NewInt(0), big.NewInt(0)
	}
	if share > ShareDenominator {
		share = ShareDenominator
	}
	referrerCut = new(big.Int).Mul(fee, big.NewInt(int64(share)))
	referrerCut.Quo(referrerCut, big.NewInt(int64(ShareDenominator)))
	collectorCut = new(big.Int).Sub(fee, referrerCut)
	return referrerCut, collectorCut
}

// Input captures everything needed to price one settlement. Share is the
// referral share to apply; zero means no referrer is paid.
type Input struct {
	SwapProceeds *big.Int
	DirectValue  *big.Int
	Params       Params
	Share        uint8
}

// Breakdown is the result of Compute. SwapFee is charged on swap proceeds only
// and DirectFee on directly supplied value only.
type Breakdown struct {
	Gross        *big.Int
	SwapFee      *big.Int
	DirectFee    *big.Int
	Fee          *big.Int
	Net          *big.Int
	ReferrerCut  *big.Int
	CollectorCut *big.Int
}

// Compute prices a settlement. The result always satisfies Fee+Net == Gross
// and ReferrerCut+CollectorCut == Fee.
func Compute(in Input) (Breakdown, error) {
	if err := ValidateBurnFeeDivisor(in.Params.BurnFeeDivisor); err != nil {
		return Breakdown{}, err
	}
	if err := ValidateNativeSentFeeDivisor(in.Params.NativeSentFeeDivisor); err != nil {
		return Breakdown{}, err
	}
	if in.Share > ShareDenominator {
		return Breakdown{}, &FeeShareTooHighError{Got: in.Share, Max: ShareDenominator}
	}
	proceeds := nonNil(in.SwapProceeds)
	direct := nonNil(in.DirectValue)
	if proceeds.Sign() < 0 || direct.Sign() < 0 {
		return Breakdown{}, ErrNegativeAmount
	}

	out := Breakdown{
		Gross:     new(big.Int).Add(proceeds, direct),
		SwapFee:   ComputeFee(proceeds, in.Params.BurnFeeDivisor),
		DirectFee: ComputeFee(direct, in.Params.NativeSentFeeDivisor),
	}
	out.Fee = new(big.Int).Add(out.SwapFee, out.DirectFee)
	out.Net = new(big.Int).Sub(out.Gross, out.Fee)
	out.ReferrerCut, out.CollectorCut = SplitFee(out.Fee, in.Share)
	return out, nil
}

func nonNil(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}
