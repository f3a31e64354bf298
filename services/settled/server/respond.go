package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"burnrouter/core/events"
	"burnrouter/core/types"
	"burnrouter/crypto"
	"burnrouter/native/access"
	"burnrouter/native/assets"
	"burnrouter/native/fees"
	"burnrouter/native/referral"
	"burnrouter/native/settlement"
	"burnrouter/services/settled/node"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

var (
	forbidden = []error{
		access.ErrUnauthorized,
		access.ErrNotAdminOrOwner,
	}
	conflicts = []error{
		settlement.ErrEnforcedPause,
		access.ErrExpectedPause,
		settlement.ErrForwardingPaused,
		settlement.ErrForwarderNotSet,
		settlement.ErrReferralPaused,
		settlement.ErrReentrantCall,
		settlement.ErrAlreadyInitialized,
		access.ErrAdminAlreadyExists,
		referral.ErrAlreadyPartner,
	}
	notFound = []error{
		referral.ErrPartnerNotFound,
		access.ErrAdminDoesNotExist,
		assets.ErrUnknownAsset,
		node.ErrUnknownAsset,
	}
	invalid = []error{
		settlement.ErrMismatchedInputs,
		settlement.ErrBatchTooLarge,
		settlement.ErrInvalidDeadline,
		settlement.ErrInvalidAmount,
		settlement.ErrZeroValue,
		settlement.ErrRecipientIsSender,
		settlement.ErrToCannotBeFeeCollector,
		settlement.ErrToCannotBeContract,
		settlement.ErrRecipientMustBeSet,
		settlement.ErrBridgeAndRecipientBoth,
		settlement.ErrBridgeDataMustBeEmpty,
		settlement.ErrInvalidBridgeData,
		settlement.ErrInsufficientValue,
		settlement.ErrForwardingTargetNotSet,
		settlement.ErrInvalidForwardingTarget,
		settlement.ErrInvalidFeeCollector,
		settlement.ErrZeroMinExecutionBudget,
		settlement.ErrZeroMaxItems,
		settlement.ErrReferrerCannotBeSelfUnlessPartner,
		settlement.ErrReferrerCannotBeFeeCollector,
		settlement.ErrReferrerCannotBeContract,
		settlement.ErrReferrerNotRegistered,
		settlement.ErrMaximumTierReached,
		settlement.ErrInsufficientAllowanceOrAmount,
		settlement.ErrPaymentTokenNotSet,
		settlement.ErrZeroAddress,
		settlement.ErrBudgetExhausted,
		access.ErrSameAdmin,
		referral.ErrCustomShareNotUpgradable,
		fees.ErrFeeDivisorTooLow,
		fees.ErrFeeShareTooHigh,
		fees.ErrZeroFeeShare,
		fees.ErrNegativeAmount,
		assets.ErrInsufficientBalance,
		assets.ErrInsufficientAllowance,
		assets.ErrNegativeAmount,
		assets.ErrAmountOverflow,
	}
)

// errorStatus maps engine errors onto HTTP status codes.
func errorStatus(err error) int {
	switch {
	case matchesAny(err, forbidden):
		return http.StatusForbidden
	case matchesAny(err, conflicts):
		return http.StatusConflict
	case matchesAny(err, notFound):
		return http.StatusNotFound
	case errors.Is(err, settlement.ErrForwardFailed):
		return http.StatusBadGateway
	case matchesAny(err, invalid):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func matchesAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func parseAmount(field, raw string) (*big.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	amount, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("%s: invalid amount %q", field, raw)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("%s: amount must not be negative", field)
	}
	return amount, nil
}

func parseAddress(field, raw string) ([20]byte, error) {
	addr, err := crypto.ParseRaw(raw)
	if err != nil {
		return addr, fmt.Errorf("%s: %w", field, err)
	}
	return addr, nil
}

func parsePayload(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	data, err := hexutil.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("payload: %w", err)
	}
	return data, nil
}

func account(addr [20]byte) string {
	return crypto.FromRaw(crypto.AccountPrefix, addr).String()
}

func assetString(addr [20]byte) string {
	return crypto.FromRaw(crypto.AssetPrefix, addr).String()
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func renderEvents(evts []events.Event) []*types.Event {
	out := make([]*types.Event, 0, len(evts))
	for _, evt := range evts {
		if payload, ok := evt.(events.Payload); ok {
			out = append(out, payload.Event())
			continue
		}
		out = append(out, &types.Event{Type: evt.EventType()})
	}
	return out
}
