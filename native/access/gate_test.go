package access

import (
	"errors"
	"testing"

	"burnrouter/core/events"
	"burnrouter/native/common"
)

type mockState struct {
	roles *Roles
}

func (m *mockState) AccessRoles() (*Roles, error) {
	if m.roles == nil {
		return nil, nil
	}
	clone := *m.roles
	clone.Admins = append([][20]byte(nil), m.roles.Admins...)
	return &clone, nil
}

func (m *mockState) PutAccessRoles(r *Roles) error {
	clone := *r
	clone.Admins = append([][20]byte(nil), r.Admins...)
	m.roles = &clone
	return nil
}

func addr(b byte) [20]byte {
	var out [20]byte
	out[19] = b
	return out
}

func newTestGate(t *testing.T) (*Gate, *events.Recorder) {
	t.Helper()
	g := NewGate()
	g.SetState(&mockState{})
	rec := &events.Recorder{}
	g.SetEmitter(rec)
	if err := g.Initialize(addr(1), addr(2)); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	rec.Reset()
	return g, rec
}

func TestInitialize(t *testing.T) {
	g := NewGate()
	if err := g.RequireOwner(addr(1)); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
	g.SetState(&mockState{})
	if err := g.Initialize([20]byte{}, addr(2)); !errors.Is(err, common.ErrZeroAddress) {
		t.Fatalf("expected ErrZeroAddress, got %v", err)
	}
	if err := g.Initialize(addr(1), addr(2)); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := g.Initialize(addr(1), addr(2)); !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("expected ErrAlreadyInitialized, got %v", err)
	}
	ok, err := g.IsAdmin(addr(2))
	if err != nil || !ok {
		t.Fatalf("expected initial admin, ok=%v err=%v", ok, err)
	}
}

func TestOwnerChecks(t *testing.T) {
	g, _ := newTestGate(t)
	if err := g.RequireOwner(addr(1)); err != nil {
		t.Fatalf("owner rejected: %v", err)
	}
	var unauth *UnauthorizedError
	if err := g.RequireOwner(addr(2)); !errors.As(err, &unauth) || unauth.Caller != addr(2) {
		t.Fatalf("expected UnauthorizedError for admin, got %v", err)
	}
	if err := g.RequireOwnerOrAdmin(addr(2)); err != nil {
		t.Fatalf("admin rejected: %v", err)
	}
	var notAdmin *NotAdminOrOwnerError
	if err := g.RequireOwnerOrAdmin(addr(9)); !errors.As(err, &notAdmin) || notAdmin.Caller != addr(9) {
		t.Fatalf("expected NotAdminOrOwnerError, got %v", err)
	}
	if err := g.RequireOwnerOrAdmin(addr(9)); !errors.Is(err, ErrNotAdminOrOwner) {
		t.Fatalf("expected ErrNotAdminOrOwner, got %v", err)
	}
}

func TestSetAdmin(t *testing.T) {
	g, rec := newTestGate(t)

	if err := g.SetAdmin(addr(9), addr(2), addr(3)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := g.SetAdmin(addr(2), addr(2), addr(3)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("admin must not swap admins, got %v", err)
	}
	if err := g.SetAdmin(addr(1), addr(2), addr(2)); !errors.Is(err, ErrSameAdmin) {
		t.Fatalf("expected ErrSameAdmin, got %v", err)
	}
	if err := g.SetAdmin(addr(1), addr(4), addr(3)); !errors.Is(err, ErrAdminDoesNotExist) {
		t.Fatalf("expected ErrAdminDoesNotExist, got %v", err)
	}
	if err := g.SetAdmin(addr(1), addr(2), [20]byte{}); !errors.Is(err, common.ErrZeroAddress) {
		t.Fatalf("expected ErrZeroAddress, got %v", err)
	}
	if err := g.GrantAdmin(addr(1), addr(3)); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if err := g.SetAdmin(addr(1), addr(2), addr(3)); !errors.Is(err, ErrAdminAlreadyExists) {
		t.Fatalf("expected ErrAdminAlreadyExists, got %v", err)
	}
	if err := g.SetAdmin(addr(1), addr(2), addr(5)); err != nil {
		t.Fatalf("set admin: %v", err)
	}
	admins, err := g.Admins()
	if err != nil {
		t.Fatalf("admins: %v", err)
	}
	if len(admins) != 2 || admins[0] != addr(3) || admins[1] != addr(5) {
		t.Fatalf("unexpected admins: %v", admins)
	}
	changes := rec.OfType(events.TypeAdminChanged)
	if len(changes) != 2 {
		t.Fatalf("expected 2 admin events, got %d", len(changes))
	}
	last := changes[1].(events.AdminChanged)
	if last.Old != addr(2) || last.New != addr(5) {
		t.Fatalf("unexpected admin event: %+v", last)
	}
}

func TestGrantRevokeAdmin(t *testing.T) {
	g, _ := newTestGate(t)
	if err := g.GrantAdmin(addr(1), addr(2)); !errors.Is(err, ErrAdminAlreadyExists) {
		t.Fatalf("expected ErrAdminAlreadyExists, got %v", err)
	}
	if err := g.RevokeAdmin(addr(1), addr(2)); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if err := g.RevokeAdmin(addr(1), addr(2)); !errors.Is(err, ErrAdminDoesNotExist) {
		t.Fatalf("expected ErrAdminDoesNotExist, got %v", err)
	}
	if err := g.RequireOwnerOrAdmin(addr(2)); !errors.Is(err, ErrNotAdminOrOwner) {
		t.Fatalf("revoked admin still authorised: %v", err)
	}
}

func TestTransferOwnership(t *testing.T) {
	g, rec := newTestGate(t)
	if err := g.TransferOwnership(addr(2), addr(2)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := g.TransferOwnership(addr(1), [20]byte{}); !errors.Is(err, common.ErrZeroAddress) {
		t.Fatalf("expected ErrZeroAddress, got %v", err)
	}
	if err := g.TransferOwnership(addr(1), addr(7)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if err := g.RequireOwner(addr(1)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("previous owner still authorised: %v", err)
	}
	evts := rec.OfType(events.TypeOwnershipTransferred)
	if len(evts) != 1 {
		t.Fatalf("expected ownership event, got %d", len(evts))
	}
}

func TestPauseSwitches(t *testing.T) {
	g, rec := newTestGate(t)
	if err := g.Pause(addr(2)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("admin must not pause, got %v", err)
	}
	if err := g.Unpause(addr(1)); !errors.Is(err, ErrExpectedPause) {
		t.Fatalf("expected ErrExpectedPause, got %v", err)
	}
	if err := g.Pause(addr(1)); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if !g.IsPaused(common.ModuleSettlement) || g.IsPaused(common.ModuleReferral) {
		t.Fatalf("unexpected pause view")
	}
	if err := g.Pause(addr(1)); !errors.Is(err, ErrEnforcedPause) {
		t.Fatalf("expected ErrEnforcedPause, got %v", err)
	}
	if err := g.Unpause(addr(1)); err != nil {
		t.Fatalf("unpause: %v", err)
	}
	if err := g.SetForwardingPaused(addr(1), true); err != nil {
		t.Fatalf("pause forwarding: %v", err)
	}
	if err := g.SetReferralPaused(addr(1), true); err != nil {
		t.Fatalf("pause referral: %v", err)
	}
	if !g.IsPaused(common.ModuleForwarding) || !g.IsPaused(common.ModuleReferral) || g.IsPaused(common.ModuleSettlement) {
		t.Fatalf("partial pauses not reflected")
	}
	pauses := rec.OfType(events.TypePauseChanged)
	if len(pauses) != 4 {
		t.Fatalf("expected 4 pause events, got %d", len(pauses))
	}
	first := pauses[0].(events.PauseChanged)
	if first.Caller != addr(1) || !first.Paused || first.Scope != common.ModuleSettlement {
		t.Fatalf("unexpected pause event: %+v", first)
	}
}

func TestIsPausedFailsClosed(t *testing.T) {
	g := NewGate()
	if !g.IsPaused(common.ModuleSettlement) {
		t.Fatalf("uninitialised gate must report paused")
	}
}
