// Package node hosts a settlement engine over persistent state and serialises
// every call into a single committed unit.
package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"strings"
	"sync"

	"github.com/jonboulle/clockwork"

	"burnrouter/config"
	"burnrouter/core/events"
	"burnrouter/core/state"
	"burnrouter/crypto"
	"burnrouter/native/assets"
	"burnrouter/native/settlement"
	"burnrouter/services/settled/adapters"
	"burnrouter/storage"
)

var ErrUnknownAsset = errors.New("node: unknown asset")

// Options wires a node.
type Options struct {
	DB        storage.Database
	Engine    [20]byte
	Genesis   *config.ResolvedGenesis
	Forwarder settlement.Forwarder
	Metrics   settlement.Metrics
	Logger    *slog.Logger
	Clock     clockwork.Clock
}

// AssetInfo describes a registered token.
type AssetInfo struct {
	ID       [20]byte
	Symbol   string
	Decimals uint8
}

// Node owns the engine, its state and the asset registry.
type Node struct {
	mu       sync.Mutex
	state    *state.Manager
	engine   *settlement.Engine
	assets   *assets.Registry
	router   *adapters.FixedRateRouter
	recorder *events.Recorder
	infos    map[[20]byte]AssetInfo
	symbols  map[string][20]byte
	logger   *slog.Logger
}

// New boots the node. An empty database is seeded from the genesis; an
// already initialised one keeps its balances and parameters.
func New(opts Options) (*Node, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("node: database required")
	}
	if opts.Genesis == nil {
		return nil, fmt.Errorf("node: genesis required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	n := &Node{
		state:    state.NewManager(opts.DB),
		assets:   assets.NewRegistry(),
		recorder: &events.Recorder{},
		infos:    make(map[[20]byte]AssetInfo),
		symbols:  make(map[string][20]byte),
		logger:   logger,
	}
	tokens := make(map[[20]byte]*assets.Token, len(opts.Genesis.Assets))
	for _, asset := range opts.Genesis.Assets {
		token := assets.NewToken(asset.ID, asset.Symbol, asset.Decimals, n.state)
		if err := n.assets.Register(token); err != nil {
			return nil, fmt.Errorf("node: register %s: %w", asset.Symbol, err)
		}
		tokens[asset.ID] = token
		n.infos[asset.ID] = AssetInfo{ID: asset.ID, Symbol: asset.Symbol, Decimals: asset.Decimals}
		n.symbols[asset.Symbol] = asset.ID
	}

	g := opts.Genesis
	n.router = adapters.NewFixedRateRouter(g.Router.Address, n.assets, g.Params.SettlementAsset, g.Router.Rates)
	n.engine = settlement.NewEngine(opts.Engine)
	n.engine.SetState(n.state)
	n.engine.SetAssets(n.assets)
	n.engine.SetRouter(n.router)
	n.engine.SetForwarder(opts.Forwarder)
	n.engine.SetEmitter(n.recorder)
	n.engine.SetLogger(logger.With("component", "settlement"))
	n.engine.SetMetrics(opts.Metrics)
	if opts.Clock != nil {
		n.engine.SetClock(opts.Clock)
	}

	if _, err := n.engine.Params(); err == nil {
		logger.Info("resuming from existing state")
		return n, nil
	} else if !errors.Is(err, settlement.ErrNotInitialized) {
		return nil, err
	}
	if err := n.seed(g, tokens); err != nil {
		n.state.Discard()
		return nil, err
	}
	if err := n.state.Commit(); err != nil {
		return nil, fmt.Errorf("node: commit genesis: %w", err)
	}
	n.recorder.Reset()
	logger.Info("seeded genesis state", "assets", len(tokens), "partners", len(g.Partners))
	return n, nil
}

func (n *Node) seed(g *config.ResolvedGenesis, tokens map[[20]byte]*assets.Token) error {
	for _, asset := range g.Assets {
		for addr, amount := range asset.Allocations {
			if err := tokens[asset.ID].Mint(addr, amount); err != nil {
				return fmt.Errorf("node: allocate %s: %w", asset.Symbol, err)
			}
		}
	}
	if g.Router.Reserve != nil && g.Router.Reserve.Sign() > 0 {
		if err := tokens[g.Params.SettlementAsset].Mint(g.Router.Address, g.Router.Reserve); err != nil {
			return fmt.Errorf("node: fund router reserve: %w", err)
		}
	}
	if err := n.engine.Initialize(g.Owner, g.Admin, g.Params); err != nil {
		return fmt.Errorf("node: initialise engine: %w", err)
	}
	for partner, share := range g.Partners {
		if err := n.engine.PutPartner(g.Owner, partner, share); err != nil {
			return fmt.Errorf("node: seed partner: %w", err)
		}
	}
	return nil
}

// Exec runs fn against the engine as one committed unit and returns the
// events it emitted. A failing fn leaves state untouched.
func (n *Node) Exec(fn func(*settlement.Engine) error) ([]events.Event, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.recorder.Reset()
	if err := fn(n.engine); err != nil {
		n.state.Discard()
		n.recorder.Reset()
		return nil, err
	}
	if err := n.state.Commit(); err != nil {
		n.state.Discard()
		return nil, fmt.Errorf("node: commit: %w", err)
	}
	out := n.recorder.Events
	n.recorder.Reset()
	return out, nil
}

// View runs a read-only fn under the node lock.
func (n *Node) View(fn func(*settlement.Engine) error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return fn(n.engine)
}

// Approve sets the allowance owner grants spender on asset.
func (n *Node) Approve(ctx context.Context, asset, owner, spender [20]byte, amount *big.Int) error {
	_, err := n.Exec(func(*settlement.Engine) error {
		token, err := n.assets.Resolve(asset)
		if err != nil {
			return err
		}
		return token.Approve(ctx, owner, spender, amount)
	})
	return err
}

// Balance returns owner's balance of asset.
func (n *Node) Balance(asset, owner [20]byte) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	token, err := n.assets.Resolve(asset)
	if err != nil {
		return nil, err
	}
	return token.BalanceOf(owner)
}

// Allowance returns what spender may still pull from owner.
func (n *Node) Allowance(asset, owner, spender [20]byte) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	token, err := n.assets.Resolve(asset)
	if err != nil {
		return nil, err
	}
	return token.Allowance(owner, spender)
}

// LookupAsset resolves a symbol, bech32 identifier or hex address to a
// registered asset.
func (n *Node) LookupAsset(ref string) (AssetInfo, error) {
	ref = strings.TrimSpace(ref)
	if id, ok := n.symbols[config.NormalizeSymbol(ref)]; ok {
		return n.infos[id], nil
	}
	if id, err := crypto.ParseRaw(ref); err == nil {
		if info, ok := n.infos[id]; ok {
			return info, nil
		}
	}
	return AssetInfo{}, fmt.Errorf("%w: %s", ErrUnknownAsset, ref)
}

// Assets lists every registered asset ordered by symbol.
func (n *Node) Assets() []AssetInfo {
	out := make([]AssetInfo, 0, len(n.infos))
	for _, info := range n.infos {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Asset returns the registered asset with id.
func (n *Node) Asset(id [20]byte) (AssetInfo, error) {
	info, ok := n.infos[id]
	if !ok {
		return AssetInfo{}, ErrUnknownAsset
	}
	return info, nil
}

// EngineAddress returns the engine's own account.
func (n *Node) EngineAddress() [20]byte { return n.engine.Address() }

// Router exposes the conversion venue for quoting.
func (n *Node) Router() *adapters.FixedRateRouter { return n.router }
