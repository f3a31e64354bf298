package settlement

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"burnrouter/crypto"
	"burnrouter/native/access"
	"burnrouter/native/common"
	"burnrouter/native/referral"
)

var (
	ErrNotInitialized     = errors.New("settlement: engine not initialised")
	ErrAlreadyInitialized = errors.New("settlement: engine already initialised")
	ErrNilState           = errors.New("settlement: state not configured")
	ErrNilRouter          = errors.New("settlement: router not configured")
	ErrNilAssets          = errors.New("settlement: asset resolver not configured")

	ErrMismatchedInputs = errors.New("settlement: mismatched inputs")
	ErrBatchTooLarge    = errors.New("settlement: batch too large")
	ErrInvalidDeadline  = errors.New("settlement: invalid deadline")
	ErrInvalidAmount    = errors.New("settlement: amount out of range")
	ErrZeroValue        = errors.New("settlement: zero value")

	ErrRecipientIsSender                 = errors.New("settlement: recipient is sender")
	ErrToCannotBeFeeCollector            = errors.New("settlement: recipient cannot be fee collector")
	ErrToCannotBeContract                = errors.New("settlement: recipient cannot be the engine")
	ErrRecipientMustBeSet                = errors.New("settlement: recipient must be set")
	ErrBridgeAndRecipientBoth            = errors.New("settlement: forwarding and recipient both set")
	ErrBridgeDataMustBeEmpty             = errors.New("settlement: payload must be empty without forwarding")
	ErrInvalidBridgeData                 = errors.New("settlement: invalid forwarding payload")
	ErrInsufficientValue                 = errors.New("settlement: value below forwarding minimum")
	ErrForwardingPaused                  = errors.New("settlement: forwarding paused")
	ErrForwardingTargetNotSet            = errors.New("settlement: forwarding target not set")
	ErrForwarderNotSet                   = errors.New("settlement: no forwarder configured")
	ErrForwardFailed                     = errors.New("settlement: forwarding target rejected the call")
	ErrInvalidForwardingTarget           = errors.New("settlement: forwarding target cannot be the engine or fee collector")
	ErrInvalidFeeCollector               = errors.New("settlement: fee collector cannot be the engine")
	ErrZeroMinExecutionBudget            = errors.New("settlement: minimum execution budget must be positive")
	ErrZeroMaxItems                      = errors.New("settlement: max items per batch must be positive")
	ErrReferrerCannotBeSelfUnlessPartner = errors.New("settlement: referrer cannot be self unless partner")
	ErrReferrerCannotBeFeeCollector      = errors.New("settlement: referrer cannot be fee collector")
	ErrReferrerCannotBeContract          = errors.New("settlement: referrer cannot be the engine")
	ErrSettlementAssetMissing            = errors.New("settlement: settlement asset not configured")
	ErrPaymentTokenNotSet                = errors.New("settlement: payment token not configured")
	ErrReferrerNotRegistered             = referral.ErrReferrerNotRegistered
	ErrMaximumTierReached                = referral.ErrMaximumTierReached
	ErrReferralPaused                    = referral.ErrReferralPaused
	ErrInsufficientAllowanceOrAmount     = referral.ErrInsufficientAllowanceOrAmount

	ErrEnforcedPause   = access.ErrEnforcedPause
	ErrReentrantCall   = common.ErrReentrantCall
	ErrZeroAddress     = common.ErrZeroAddress
	ErrBudgetExhausted = common.ErrBudgetExhausted
)

// BatchTooLargeError reports a batch above MaxItemsPerBatch.
type BatchTooLargeError struct {
	Got int
	Max uint64
}

func (e *BatchTooLargeError) Error() string {
	return fmt.Sprintf("settlement: batch of %d items exceeds maximum %d", e.Got, e.Max)
}

func (e *BatchTooLargeError) Is(target error) bool { return target == ErrBatchTooLarge }

// BridgeAndRecipientBothSetError carries the recipient supplied alongside a
// forwarding request.
type BridgeAndRecipientBothSetError struct {
	Recipient [20]byte
}

func (e *BridgeAndRecipientBothSetError) Error() string {
	return fmt.Sprintf("%v: %s", ErrBridgeAndRecipientBoth, crypto.FromRaw(crypto.AccountPrefix, e.Recipient))
}

func (e *BridgeAndRecipientBothSetError) Is(target error) bool {
	return target == ErrBridgeAndRecipientBoth
}

// BridgeDataMustBeEmptyError carries the payload supplied without forwarding.
type BridgeDataMustBeEmptyError struct {
	Data []byte
}

func (e *BridgeDataMustBeEmptyError) Error() string {
	return fmt.Sprintf("%v: %s", ErrBridgeDataMustBeEmpty, hexutil.Encode(e.Data))
}

func (e *BridgeDataMustBeEmptyError) Is(target error) bool { return target == ErrBridgeDataMustBeEmpty }

// InsufficientValueError reports a forwarding call below the minimum value.
type InsufficientValueError struct {
	Got *big.Int
	Min *big.Int
}

func (e *InsufficientValueError) Error() string {
	return fmt.Sprintf("settlement: value %s below forwarding minimum %s", e.Got, e.Min)
}

func (e *InsufficientValueError) Is(target error) bool { return target == ErrInsufficientValue }
