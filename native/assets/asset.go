package assets

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"burnrouter/crypto"
)

var (
	ErrUnknownAsset          = errors.New("assets: unknown asset")
	ErrAssetExists           = errors.New("assets: asset already registered")
	ErrInsufficientBalance   = errors.New("assets: insufficient balance")
	ErrInsufficientAllowance = errors.New("assets: insufficient allowance")
	ErrNegativeAmount        = errors.New("assets: negative amount")
	ErrAmountOverflow        = errors.New("assets: amount exceeds 256 bits")
)

// Asset is a transferable balance ledger keyed by 20-byte identities. Spender
// based pulls require a prior Approve by the owner.
type Asset interface {
	ID() [20]byte
	BalanceOf(owner [20]byte) (*big.Int, error)
	Allowance(owner, spender [20]byte) (*big.Int, error)
	Transfer(ctx context.Context, from, to [20]byte, amount *big.Int) error
	TransferFrom(ctx context.Context, spender, from, to [20]byte, amount *big.Int) error
	Approve(ctx context.Context, owner, spender [20]byte, amount *big.Int) error
}

// Resolver maps asset identifiers onto implementations.
type Resolver interface {
	Resolve(id [20]byte) (Asset, error)
}

// Registry is an in-process Resolver.
type Registry struct {
	mu     sync.RWMutex
	assets map[[20]byte]Asset
}

func NewRegistry() *Registry {
	return &Registry{assets: make(map[[20]byte]Asset)}
}

func (r *Registry) Register(asset Asset) error {
	if asset == nil {
		return fmt.Errorf("assets: nil asset")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	id := asset.ID()
	if _, ok := r.assets[id]; ok {
		return fmt.Errorf("%w: %s", ErrAssetExists, crypto.FromRaw(crypto.AssetPrefix, id))
	}
	r.assets[id] = asset
	return nil
}

// Replace installs asset regardless of any previous registration.
func (r *Registry) Replace(asset Asset) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assets[asset.ID()] = asset
}

func (r *Registry) Resolve(id [20]byte) (Asset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	asset, ok := r.assets[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAsset, crypto.FromRaw(crypto.AssetPrefix, id))
	}
	return asset, nil
}
