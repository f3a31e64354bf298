package state

import (
	"fmt"
	"math/big"
)

var (
	balancePrefix   = []byte("ledger/balance/")
	allowancePrefix = []byte("ledger/allowance/")
)

func balanceKey(asset, owner [20]byte) []byte {
	buf := make([]byte, 0, len(balancePrefix)+40)
	buf = append(buf, balancePrefix...)
	buf = append(buf, asset[:]...)
	return append(buf, owner[:]...)
}

func allowanceKey(asset, owner, spender [20]byte) []byte {
	buf := make([]byte, 0, len(allowancePrefix)+60)
	buf = append(buf, allowancePrefix...)
	buf = append(buf, asset[:]...)
	buf = append(buf, owner[:]...)
	return append(buf, spender[:]...)
}

func (m *Manager) loadAmount(key []byte) (*big.Int, error) {
	amount := new(big.Int)
	ok, err := m.KVGet(key, amount)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return amount, nil
}

func (m *Manager) storeAmount(key []byte, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return m.KVDelete(key)
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("state: negative amount not allowed")
	}
	return m.KVPut(key, amount)
}

// Balance returns the holding of owner in asset.
func (m *Manager) Balance(asset, owner [20]byte) (*big.Int, error) {
	return m.loadAmount(balanceKey(asset, owner))
}

// SetBalance stores a balance; zero removes the entry.
func (m *Manager) SetBalance(asset, owner [20]byte, amount *big.Int) error {
	return m.storeAmount(balanceKey(asset, owner), amount)
}

func (m *Manager) Allowance(asset, owner, spender [20]byte) (*big.Int, error) {
	return m.loadAmount(allowanceKey(asset, owner, spender))
}

func (m *Manager) SetAllowance(asset, owner, spender [20]byte, amount *big.Int) error {
	return m.storeAmount(allowanceKey(asset, owner, spender), amount)
}
