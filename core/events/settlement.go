package events

import (
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"burnrouter/core/types"
	"burnrouter/crypto"
)

const (
	TypeSwapSucceeded        = "settlement.swap.succeeded"
	TypeSwapFailed           = "settlement.swap.failed"
	TypeBatchSettled         = "settlement.batch.settled"
	TypeReferrerFeePaid      = "settlement.referrer.paid"
	TypeForwardSucceeded     = "settlement.forward.succeeded"
	TypeParamChanged         = "settlement.param.changed"
	TypeAssetRescued         = "settlement.asset.rescued"
	TypePauseChanged         = "access.pause.changed"
	TypeAdminChanged         = "access.admin.changed"
	TypeOwnershipTransferred = "access.owner.transferred"
	TypePartnerAdded         = "referral.partner.added"
	TypePartnerShareChanged  = "referral.partner.share_changed"
	TypePartnerRemoved       = "referral.partner.removed"
)

// SwapSucceeded reports a batch item converted into the settlement asset.
type SwapSucceeded struct {
	Index     int
	Payer     [20]byte
	Asset     [20]byte
	AmountIn  *big.Int
	AmountOut *big.Int
}

func (SwapSucceeded) EventType() string { return TypeSwapSucceeded }

func (e SwapSucceeded) Event() *types.Event {
	return &types.Event{
		Type: TypeSwapSucceeded,
		Attributes: map[string]string{
			"index":     strconv.Itoa(e.Index),
			"payer":     accountString(e.Payer),
			"asset":     assetString(e.Asset),
			"amountIn":  formatAmount(e.AmountIn),
			"amountOut": formatAmount(e.AmountOut),
		},
	}
}

// SwapFailed reports a batch item that was skipped or rejected. Amount is the
// quantity that was handed back (or left untouched) for the payer.
type SwapFailed struct {
	Index  int
	Payer  [20]byte
	Asset  [20]byte
	Amount *big.Int
	Reason string
}

func (SwapFailed) EventType() string { return TypeSwapFailed }

func (e SwapFailed) Event() *types.Event {
	return &types.Event{
		Type: TypeSwapFailed,
		Attributes: map[string]string{
			"index":  strconv.Itoa(e.Index),
			"payer":  accountString(e.Payer),
			"asset":  assetString(e.Asset),
			"amount": formatAmount(e.Amount),
			"reason": strings.TrimSpace(e.Reason),
		},
	}
}

// BatchSettled is raised once per successful settlement call.
type BatchSettled struct {
	Payer [20]byte
	Net   *big.Int
	Fee   *big.Int
}

func (BatchSettled) EventType() string { return TypeBatchSettled }

func (e BatchSettled) Event() *types.Event {
	return &types.Event{
		Type: TypeBatchSettled,
		Attributes: map[string]string{
			"payer": accountString(e.Payer),
			"net":   formatAmount(e.Net),
			"fee":   formatAmount(e.Fee),
		},
	}
}

// ReferrerFeePaid records the referral cut paid out of a settlement fee.
type ReferrerFeePaid struct {
	Payer    [20]byte
	Referrer [20]byte
	Amount   *big.Int
}

func (ReferrerFeePaid) EventType() string { return TypeReferrerFeePaid }

func (e ReferrerFeePaid) Event() *types.Event {
	return &types.Event{
		Type: TypeReferrerFeePaid,
		Attributes: map[string]string{
			"payer":    accountString(e.Payer),
			"referrer": accountString(e.Referrer),
			"amount":   formatAmount(e.Amount),
		},
	}
}

// ForwardSucceeded records net proceeds handed to the forwarding target along
// with whatever the target returned.
type ForwardSucceeded struct {
	Payer      [20]byte
	Target     [20]byte
	ReturnData []byte
	Net        *big.Int
	Fee        *big.Int
}

func (ForwardSucceeded) EventType() string { return TypeForwardSucceeded }

func (e ForwardSucceeded) Event() *types.Event {
	return &types.Event{
		Type: TypeForwardSucceeded,
		Attributes: map[string]string{
			"payer":      accountString(e.Payer),
			"target":     accountString(e.Target),
			"returnData": hexutil.Encode(e.ReturnData),
			"net":        formatAmount(e.Net),
			"fee":        formatAmount(e.Fee),
		},
	}
}

// ParamChanged is raised by every configuration setter.
type ParamChanged struct {
	Param  string
	Value  string
	Caller [20]byte
}

func (ParamChanged) EventType() string { return TypeParamChanged }

func (e ParamChanged) Event() *types.Event {
	return &types.Event{
		Type: TypeParamChanged,
		Attributes: map[string]string{
			"param":  e.Param,
			"value":  e.Value,
			"caller": accountString(e.Caller),
		},
	}
}

// AssetRescued records an owner-initiated recovery of stuck funds.
type AssetRescued struct {
	Asset  [20]byte
	To     [20]byte
	Amount *big.Int
}

func (AssetRescued) EventType() string { return TypeAssetRescued }

func (e AssetRescued) Event() *types.Event {
	return &types.Event{
		Type: TypeAssetRescued,
		Attributes: map[string]string{
			"asset":  assetString(e.Asset),
			"to":     accountString(e.To),
			"amount": formatAmount(e.Amount),
		},
	}
}

// PauseChanged covers the global pause and the partial forwarding/referral
// pauses.
type PauseChanged struct {
	Scope  string
	Paused bool
	Caller [20]byte
}

func (PauseChanged) EventType() string { return TypePauseChanged }

func (e PauseChanged) Event() *types.Event {
	return &types.Event{
		Type: TypePauseChanged,
		Attributes: map[string]string{
			"scope":  e.Scope,
			"paused": strconv.FormatBool(e.Paused),
			"caller": accountString(e.Caller),
		},
	}
}

// AdminChanged covers grants (zero Old), revocations (zero New) and swaps.
type AdminChanged struct {
	Old [20]byte
	New [20]byte
}

func (AdminChanged) EventType() string { return TypeAdminChanged }

func (e AdminChanged) Event() *types.Event {
	attrs := map[string]string{}
	if e.Old != ([20]byte{}) {
		attrs["old"] = accountString(e.Old)
	}
	if e.New != ([20]byte{}) {
		attrs["new"] = accountString(e.New)
	}
	return &types.Event{Type: TypeAdminChanged, Attributes: attrs}
}

type OwnershipTransferred struct {
	Previous [20]byte
	Current  [20]byte
}

func (OwnershipTransferred) EventType() string { return TypeOwnershipTransferred }

func (e OwnershipTransferred) Event() *types.Event {
	return &types.Event{
		Type: TypeOwnershipTransferred,
		Attributes: map[string]string{
			"previous": accountString(e.Previous),
			"current":  accountString(e.Current),
		},
	}
}

type PartnerAdded struct {
	Partner [20]byte
	Share   uint8
}

func (PartnerAdded) EventType() string { return TypePartnerAdded }

func (e PartnerAdded) Event() *types.Event {
	return &types.Event{
		Type: TypePartnerAdded,
		Attributes: map[string]string{
			"partner": accountString(e.Partner),
			"share":   strconv.FormatUint(uint64(e.Share), 10),
		},
	}
}

type PartnerShareChanged struct {
	Partner [20]byte
	Share   uint8
}

func (PartnerShareChanged) EventType() string { return TypePartnerShareChanged }

func (e PartnerShareChanged) Event() *types.Event {
	return &types.Event{
		Type: TypePartnerShareChanged,
		Attributes: map[string]string{
			"partner": accountString(e.Partner),
			"share":   strconv.FormatUint(uint64(e.Share), 10),
		},
	}
}

type PartnerRemoved struct {
	Partner [20]byte
}

func (PartnerRemoved) EventType() string { return TypePartnerRemoved }

func (e PartnerRemoved) Event() *types.Event {
	return &types.Event{
		Type:       TypePartnerRemoved,
		Attributes: map[string]string{"partner": accountString(e.Partner)},
	}
}

func accountString(addr [20]byte) string {
	return crypto.FromRaw(crypto.AccountPrefix, addr).String()
}

func assetString(addr [20]byte) string {
	return crypto.FromRaw(crypto.AssetPrefix, addr).String()
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
