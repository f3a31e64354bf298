package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// AddressPrefix is the bech32 human-readable part.
type AddressPrefix string

const (
	// AccountPrefix marks callers, partners and module accounts.
	AccountPrefix AddressPrefix = "brn"
	// AssetPrefix marks asset identifiers.
	AssetPrefix AddressPrefix = "brnasset"
)

// Address is a 20-byte identifier rendered with a bech32 prefix.
type Address struct {
	prefix AddressPrefix
	raw    [20]byte
}

// FromRaw wraps a fixed-size identifier with the supplied prefix.
func FromRaw(prefix AddressPrefix, raw [20]byte) Address {
	return Address{prefix: prefix, raw: raw}
}

func (a Address) String() string {
	conv, err := bech32.ConvertBits(a.raw[:], 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(string(a.prefix), conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

func (a Address) Raw() [20]byte         { return a.raw }
func (a Address) Prefix() AddressPrefix { return a.prefix }

// DecodeAddress parses a bech32 address of any prefix.
func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(addrStr)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	if len(conv) != 20 {
		return Address{}, fmt.Errorf("address must decode to 20 bytes, got %d", len(conv))
	}
	return Address{prefix: AddressPrefix(prefix), raw: [20]byte(conv)}, nil
}

// ParseRaw accepts either a bech32 address or a 0x-prefixed hex string and
// returns the underlying 20 bytes. Empty input maps onto the zero address.
func ParseRaw(value string) ([20]byte, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return [20]byte{}, nil
	}
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		if !common.IsHexAddress(trimmed) {
			return [20]byte{}, fmt.Errorf("invalid hex address %q", value)
		}
		return [20]byte(common.HexToAddress(trimmed)), nil
	}
	addr, err := DecodeAddress(trimmed)
	if err != nil {
		return [20]byte{}, err
	}
	return addr.raw, nil
}

// DeriveAddress produces a deterministic identifier from a label, used for
// module accounts such as the settlement engine itself.
func DeriveAddress(label string) [20]byte {
	return [20]byte(crypto.Keccak256([]byte(label))[12:])
}

// PrivateKey is a secp256k1 signing key.
type PrivateKey struct {
	*ecdsa.PrivateKey
}

type PublicKey struct {
	*ecdsa.PublicKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

func (k *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{&k.PrivateKey.PublicKey}
}

// Address returns the account controlled by the key.
func (k *PublicKey) Address() Address {
	return FromRaw(AccountPrefix, crypto.PubkeyToAddress(*k.PublicKey))
}
