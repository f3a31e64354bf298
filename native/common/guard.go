package common

import "errors"

// Pause scopes understood by the settlement stack. ModuleSettlement is the
// global switch; the other two only disable their own feature.
const (
	ModuleSettlement = "settlement"
	ModuleForwarding = "forwarding"
	ModuleReferral   = "referral"
)

var ErrModulePaused = errors.New("module paused")

type PauseView interface {
	IsPaused(module string) bool
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// ErrZeroAddress is returned wherever an identity or destination must be set.
var ErrZeroAddress = errors.New("zero address")

// IsZero reports whether addr is the zero identifier.
func IsZero(addr [20]byte) bool {
	return addr == [20]byte{}
}
