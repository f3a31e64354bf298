package state

import (
	"burnrouter/native/access"
	"burnrouter/native/settlement"
)

var (
	settlementParamsKey = []byte("settlement/params")
	accessRolesKey      = []byte("access/roles")
	partnerPrefix       = []byte("referral/partner/")
)

func partnerKey(addr [20]byte) []byte {
	buf := make([]byte, 0, len(partnerPrefix)+20)
	buf = append(buf, partnerPrefix...)
	return append(buf, addr[:]...)
}

// SettlementParams returns the stored engine parameters or nil when the
// engine was never initialised.
func (m *Manager) SettlementParams() (*settlement.Params, error) {
	params := new(settlement.Params)
	ok, err := m.KVGet(settlementParamsKey, params)
	if err != nil || !ok {
		return nil, err
	}
	return params, nil
}

func (m *Manager) PutSettlementParams(params *settlement.Params) error {
	return m.KVPut(settlementParamsKey, params)
}

// AccessRoles returns the stored roles or nil when none were written.
func (m *Manager) AccessRoles() (*access.Roles, error) {
	roles := new(access.Roles)
	ok, err := m.KVGet(accessRolesKey, roles)
	if err != nil || !ok {
		return nil, err
	}
	return roles, nil
}

func (m *Manager) PutAccessRoles(roles *access.Roles) error {
	return m.KVPut(accessRolesKey, roles)
}

// PartnerShare returns the referral share of addr, zero when unregistered.
func (m *Manager) PartnerShare(addr [20]byte) (uint8, error) {
	var share uint8
	if _, err := m.KVGet(partnerKey(addr), &share); err != nil {
		return 0, err
	}
	return share, nil
}

func (m *Manager) PutPartnerShare(addr [20]byte, share uint8) error {
	if share == 0 {
		return m.DeletePartnerShare(addr)
	}
	return m.KVPut(partnerKey(addr), share)
}

func (m *Manager) DeletePartnerShare(addr [20]byte) error {
	return m.KVDelete(partnerKey(addr))
}
