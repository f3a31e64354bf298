package referral

import (
	"errors"

	"burnrouter/native/access"
)

var (
	ErrNotInitialized                = errors.New("referral: registry not initialised")
	ErrReferralPaused                = errors.New("referral: paused")
	ErrEnforcedPause                 = access.ErrEnforcedPause
	ErrAlreadyPartner                = errors.New("referral: caller already a partner")
	ErrReferrerNotRegistered         = errors.New("referral: referrer not registered")
	ErrMaximumTierReached            = errors.New("referral: maximum tier reached")
	ErrCustomShareNotUpgradable      = errors.New("referral: administratively assigned share cannot be upgraded")
	ErrInsufficientAllowanceOrAmount = errors.New("referral: insufficient allowance or amount")
	ErrPartnerNotFound               = errors.New("referral: partner not found")
)
