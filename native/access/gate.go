package access

import (
	"bytes"
	"sort"

	"burnrouter/core/events"
	"burnrouter/native/common"
)

// Roles is the persisted authorisation and pause state.
type Roles struct {
	Owner           [20]byte
	Admins          [][20]byte
	PauseAll        bool
	PauseForwarding bool
	PauseReferral   bool
}

func (r *Roles) isAdmin(addr [20]byte) bool {
	_, ok := r.adminIndex(addr)
	return ok
}

func (r *Roles) adminIndex(addr [20]byte) (int, bool) {
	i := sort.Search(len(r.Admins), func(i int) bool {
		return bytes.Compare(r.Admins[i][:], addr[:]) >= 0
	})
	return i, i < len(r.Admins) && r.Admins[i] == addr
}

func (r *Roles) addAdmin(addr [20]byte) {
	i, ok := r.adminIndex(addr)
	if ok {
		return
	}
	r.Admins = append(r.Admins, [20]byte{})
	copy(r.Admins[i+1:], r.Admins[i:])
	r.Admins[i] = addr
}

func (r *Roles) removeAdmin(addr [20]byte) {
	i, ok := r.adminIndex(addr)
	if !ok {
		return
	}
	r.Admins = append(r.Admins[:i], r.Admins[i+1:]...)
}

type gateState interface {
	AccessRoles() (*Roles, error)
	PutAccessRoles(*Roles) error
}

// Gate owns the owner/admin roles and the pause switches. It implements
// common.PauseView for the other engines.
type Gate struct {
	state   gateState
	emitter events.Emitter
}

func NewGate() *Gate {
	return &Gate{emitter: events.NoopEmitter{}}
}

func (g *Gate) SetState(state gateState) { g.state = state }

func (g *Gate) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		g.emitter = events.NoopEmitter{}
		return
	}
	g.emitter = emitter
}

func (g *Gate) emit(evt events.Event) {
	if g.emitter != nil {
		g.emitter.Emit(evt)
	}
}

func (g *Gate) roles() (*Roles, error) {
	if g.state == nil {
		return nil, ErrNotInitialized
	}
	roles, err := g.state.AccessRoles()
	if err != nil {
		return nil, err
	}
	if roles == nil {
		return nil, ErrNotInitialized
	}
	return roles, nil
}

// Initialize installs the owner and an optional initial admin.
func (g *Gate) Initialize(owner, admin [20]byte) error {
	if g.state == nil {
		return ErrNotInitialized
	}
	if common.IsZero(owner) {
		return common.ErrZeroAddress
	}
	existing, err := g.state.AccessRoles()
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrAlreadyInitialized
	}
	roles := &Roles{Owner: owner}
	if !common.IsZero(admin) {
		roles.addAdmin(admin)
	}
	if err := g.state.PutAccessRoles(roles); err != nil {
		return err
	}
	g.emit(events.OwnershipTransferred{Current: owner})
	if !common.IsZero(admin) {
		g.emit(events.AdminChanged{New: admin})
	}
	return nil
}

func (g *Gate) Owner() ([20]byte, error) {
	roles, err := g.roles()
	if err != nil {
		return [20]byte{}, err
	}
	return roles.Owner, nil
}

// Admins returns the admin set in ascending byte order.
func (g *Gate) Admins() ([][20]byte, error) {
	roles, err := g.roles()
	if err != nil {
		return nil, err
	}
	return append([][20]byte(nil), roles.Admins...), nil
}

func (g *Gate) IsAdmin(addr [20]byte) (bool, error) {
	roles, err := g.roles()
	if err != nil {
		return false, err
	}
	return roles.isAdmin(addr), nil
}

func (g *Gate) RequireOwner(caller [20]byte) error {
	roles, err := g.roles()
	if err != nil {
		return err
	}
	if caller != roles.Owner {
		return &UnauthorizedError{Caller: caller}
	}
	return nil
}

func (g *Gate) RequireOwnerOrAdmin(caller [20]byte) error {
	roles, err := g.roles()
	if err != nil {
		return err
	}
	if caller != roles.Owner && !roles.isAdmin(caller) {
		return &NotAdminOrOwnerError{Caller: caller}
	}
	return nil
}

// mutate loads the roles, checks the caller is the owner and persists fn's
// changes when it succeeds.
func (g *Gate) mutate(caller [20]byte, fn func(*Roles) error) error {
	roles, err := g.roles()
	if err != nil {
		return err
	}
	if caller != roles.Owner {
		return &UnauthorizedError{Caller: caller}
	}
	if err := fn(roles); err != nil {
		return err
	}
	return g.state.PutAccessRoles(roles)
}

func (g *Gate) TransferOwnership(caller, newOwner [20]byte) error {
	var previous [20]byte
	err := g.mutate(caller, func(r *Roles) error {
		if common.IsZero(newOwner) {
			return common.ErrZeroAddress
		}
		previous = r.Owner
		r.Owner = newOwner
		return nil
	})
	if err != nil {
		return err
	}
	g.emit(events.OwnershipTransferred{Previous: previous, Current: newOwner})
	return nil
}

func (g *Gate) GrantAdmin(caller, admin [20]byte) error {
	err := g.mutate(caller, func(r *Roles) error {
		if common.IsZero(admin) {
			return common.ErrZeroAddress
		}
		if r.isAdmin(admin) {
			return ErrAdminAlreadyExists
		}
		r.addAdmin(admin)
		return nil
	})
	if err != nil {
		return err
	}
	g.emit(events.AdminChanged{New: admin})
	return nil
}

func (g *Gate) RevokeAdmin(caller, admin [20]byte) error {
	err := g.mutate(caller, func(r *Roles) error {
		if common.IsZero(admin) {
			return common.ErrZeroAddress
		}
		if !r.isAdmin(admin) {
			return ErrAdminDoesNotExist
		}
		r.removeAdmin(admin)
		return nil
	})
	if err != nil {
		return err
	}
	g.emit(events.AdminChanged{Old: admin})
	return nil
}

// SetAdmin replaces oldAdmin with newAdmin in a single step.
func (g *Gate) SetAdmin(caller, oldAdmin, newAdmin [20]byte) error {
	err := g.mutate(caller, func(r *Roles) error {
		if common.IsZero(oldAdmin) || common.IsZero(newAdmin) {
			return common.ErrZeroAddress
		}
		if oldAdmin == newAdmin {
			return ErrSameAdmin
		}
		if !r.isAdmin(oldAdmin) {
			return ErrAdminDoesNotExist
		}
		if r.isAdmin(newAdmin) {
			return ErrAdminAlreadyExists
		}
		r.removeAdmin(oldAdmin)
		r.addAdmin(newAdmin)
		return nil
	})
	if err != nil {
		return err
	}
	g.emit(events.AdminChanged{Old: oldAdmin, New: newAdmin})
	return nil
}

func (g *Gate) Pause(caller [20]byte) error {
	err := g.mutate(caller, func(r *Roles) error {
		if r.PauseAll {
			return ErrEnforcedPause
		}
		r.PauseAll = true
		return nil
	})
	if err != nil {
		return err
	}
	g.emit(events.PauseChanged{Scope: common.ModuleSettlement, Paused: true, Caller: caller})
	return nil
}

func (g *Gate) Unpause(caller [20]byte) error {
	err := g.mutate(caller, func(r *Roles) error {
		if !r.PauseAll {
			return ErrExpectedPause
		}
		r.PauseAll = false
		return nil
	})
	if err != nil {
		return err
	}
	g.emit(events.PauseChanged{Scope: common.ModuleSettlement, Paused: false, Caller: caller})
	return nil
}

func (g *Gate) SetForwardingPaused(caller [20]byte, paused bool) error {
	err := g.mutate(caller, func(r *Roles) error {
		r.PauseForwarding = paused
		return nil
	})
	if err != nil {
		return err
	}
	g.emit(events.PauseChanged{Scope: common.ModuleForwarding, Paused: paused, Caller: caller})
	return nil
}

func (g *Gate) SetReferralPaused(caller [20]byte, paused bool) error {
	err := g.mutate(caller, func(r *Roles) error {
		r.PauseReferral = paused
		return nil
	})
	if err != nil {
		return err
	}
	g.emit(events.PauseChanged{Scope: common.ModuleReferral, Paused: paused, Caller: caller})
	return nil
}

// IsPaused implements common.PauseView. Unreadable state reports paused.
func (g *Gate) IsPaused(module string) bool {
	roles, err := g.roles()
	if err != nil {
		return true
	}
	switch module {
	case common.ModuleSettlement:
		return roles.PauseAll
	case common.ModuleForwarding:
		return roles.PauseForwarding
	case common.ModuleReferral:
		return roles.PauseReferral
	default:
		return false
	}
}
