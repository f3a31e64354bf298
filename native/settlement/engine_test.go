package settlement_test

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"burnrouter/core/events"
	"burnrouter/core/state"
	"burnrouter/crypto"
	"burnrouter/native/assets"
	"burnrouter/native/settlement"
	"burnrouter/storage"
)

var (
	engineAddr    = crypto.DeriveAddress("test/engine")
	routerAddr    = crypto.DeriveAddress("test/router")
	ownerAddr     = crypto.DeriveAddress("test/owner")
	adminAddr     = crypto.DeriveAddress("test/admin")
	userAddr      = crypto.DeriveAddress("test/user")
	recipientAddr = crypto.DeriveAddress("test/recipient")
	referrerAddr  = crypto.DeriveAddress("test/referrer")
	collectorAddr = crypto.DeriveAddress("test/collector")
	targetAddr    = crypto.DeriveAddress("test/forwarding-target")

	settleID = crypto.DeriveAddress("asset/WNATIVE")
	tokenAID = crypto.DeriveAddress("asset/AAA")
	tokenBID = crypto.DeriveAddress("asset/BBB")
	usdcID   = crypto.DeriveAddress("asset/USDC")
)

var errPoolReverted = errors.New("pool reverted")

func ether(t *testing.T, value string) *big.Int {
	t.Helper()
	r, ok := new(big.Rat).SetString(value)
	if !ok {
		t.Fatalf("invalid amount %q", value)
	}
	r.Mul(r, new(big.Rat).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)))
	if !r.IsInt() {
		t.Fatalf("amount %q has too many decimals", value)
	}
	return new(big.Int).Set(r.Num())
}

// rateRouter swaps 1:1 into the settlement asset out of its own reserve.
type rateRouter struct {
	addr       [20]byte
	assets     *assets.Registry
	settlement [20]byte
	fail       map[[20]byte]bool
	echo       map[[20]byte]bool
	halve      map[[20]byte]bool
	calls      int
}

func (r *rateRouter) Address() [20]byte { return r.addr }

func (r *rateRouter) Swap(ctx context.Context, call settlement.SwapCall) (settlement.SwapResult, error) {
	r.calls++
	in, err := r.assets.Resolve(call.AssetIn)
	if err != nil {
		return settlement.SwapResult{}, err
	}
	if err := in.TransferFrom(ctx, r.addr, call.Engine, r.addr, call.AmountIn); err != nil {
		return settlement.SwapResult{}, err
	}
	if r.fail[call.AssetIn] {
		return settlement.SwapResult{}, errPoolReverted
	}
	if r.echo[call.AssetIn] {
		if err := in.Transfer(ctx, r.addr, call.Engine, call.AmountIn); err != nil {
			return settlement.SwapResult{}, err
		}
		return settlement.SwapResult{AssetOut: call.AssetIn, AmountOut: call.AmountIn}, nil
	}
	out := new(big.Int).Set(call.AmountIn)
	if r.halve[call.AssetIn] {
		out.Quo(out, big.NewInt(2))
	}
	settle, err := r.assets.Resolve(r.settlement)
	if err != nil {
		return settlement.SwapResult{}, err
	}
	if err := settle.Transfer(ctx, r.addr, call.Engine, out); err != nil {
		return settlement.SwapResult{}, err
	}
	return settlement.SwapResult{AssetOut: r.settlement, AmountOut: out}, nil
}

type recordingForwarder struct {
	calls   []settlement.ForwardCall
	targets [][20]byte
	reply   []byte
	err     error
}

func (f *recordingForwarder) Forward(_ context.Context, target [20]byte, call settlement.ForwardCall) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.calls = append(f.calls, call)
	f.targets = append(f.targets, target)
	return f.reply, nil
}

type testEnv struct {
	t         *testing.T
	state     *state.Manager
	engine    *settlement.Engine
	assets    *assets.Registry
	settle    *assets.Token
	tokenA    *assets.Token
	tokenB    *assets.Token
	usdc      *assets.Token
	router    *rateRouter
	forwarder *recordingForwarder
	events    *events.Recorder
	clock     *clockwork.FakeClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st := state.NewManager(storage.NewMemDB())
	registry := assets.NewRegistry()
	env := &testEnv{
		t:         t,
		state:     st,
		assets:    registry,
		settle:    assets.NewToken(settleID, "WNATIVE", 18, st),
		tokenA:    assets.NewToken(tokenAID, "AAA", 18, st),
		tokenB:    assets.NewToken(tokenBID, "BBB", 18, st),
		usdc:      assets.NewToken(usdcID, "USDC", 6, st),
		forwarder: &recordingForwarder{reply: []byte{0xca, 0xfe}},
		events:    &events.Recorder{},
		clock:     clockwork.NewFakeClockAt(time.Unix(1_700_000_000, 0)),
	}
	for _, tok := range []*assets.Token{env.settle, env.tokenA, env.tokenB, env.usdc} {
		if err := registry.Register(tok); err != nil {
			t.Fatalf("register %s: %v", tok.Symbol(), err)
		}
	}
	env.router = &rateRouter{
		addr:       routerAddr,
		assets:     registry,
		settlement: settleID,
		fail:       map[[20]byte]bool{},
		echo:       map[[20]byte]bool{},
		halve:      map[[20]byte]bool{},
	}
	if err := env.settle.Mint(routerAddr, ether(t, "1000")); err != nil {
		t.Fatalf("fund router: %v", err)
	}

	engine := settlement.NewEngine(engineAddr)
	engine.SetState(st)
	engine.SetAssets(registry)
	engine.SetRouter(env.router)
	engine.SetForwarder(env.forwarder)
	engine.SetEmitter(env.events)
	engine.SetClock(env.clock)

	params := settlement.DefaultParams()
	params.FeeCollector = collectorAddr
	params.ForwardingTarget = targetAddr
	params.SettlementAsset = settleID
	params.PaymentToken = usdcID
	if err := engine.Initialize(ownerAddr, adminAddr, params); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	env.engine = engine
	env.events.Reset()
	return env
}

// fund mints amount of tok to who and approves the engine for it.
func (env *testEnv) fund(tok *assets.Token, who [20]byte, amount *big.Int) {
	env.t.Helper()
	if err := tok.Mint(who, amount); err != nil {
		env.t.Fatalf("mint: %v", err)
	}
	allowance, err := tok.Allowance(who, engineAddr)
	if err != nil {
		env.t.Fatalf("allowance: %v", err)
	}
	if err := tok.Approve(context.Background(), who, engineAddr, new(big.Int).Add(allowance, amount)); err != nil {
		env.t.Fatalf("approve: %v", err)
	}
}

func (env *testEnv) balance(tok assets.Asset, who [20]byte) *big.Int {
	env.t.Helper()
	bal, err := tok.BalanceOf(who)
	if err != nil {
		env.t.Fatalf("balance: %v", err)
	}
	return bal
}

func (env *testEnv) requireBalance(tok assets.Asset, who [20]byte, want *big.Int) {
	env.t.Helper()
	if got := env.balance(tok, who); got.Cmp(want) != 0 {
		env.t.Fatalf("balance of %s: expected %s, got %s", crypto.FromRaw(crypto.AccountPrefix, who), want, got)
	}
}

func (env *testEnv) request(tok *assets.Token, amount string) settlement.Request {
	return settlement.Request{Asset: tok.ID(), AmountIn: ether(env.t, amount), MinOut: big.NewInt(1), Route: []byte{0x01}}
}

func TestInitializeOnce(t *testing.T) {
	env := newTestEnv(t)
	params, err := env.engine.Params()
	if err != nil {
		t.Fatalf("params: %v", err)
	}
	if params.Fees.BurnFeeDivisor != 40 || params.Fees.NativeSentFeeDivisor != 400 || params.Fees.ReferrerFeeShare != 4 {
		t.Fatalf("unexpected default fees: %+v", params.Fees)
	}
	if params.MaxItemsPerBatch != 50 || params.MinExecutionBudget != 100_000 || params.PaymentDecimals != 6 {
		t.Fatalf("unexpected defaults: %+v", params)
	}
	if err := env.engine.Initialize(ownerAddr, adminAddr, params); !errors.Is(err, settlement.ErrAlreadyInitialized) {
		t.Fatalf("expected ErrAlreadyInitialized, got %v", err)
	}
}

func TestInitializeValidatesParams(t *testing.T) {
	st := state.NewManager(storage.NewMemDB())
	engine := settlement.NewEngine(engineAddr)
	engine.SetState(st)

	params := settlement.DefaultParams()
	params.SettlementAsset = settleID
	if err := engine.Initialize(ownerAddr, adminAddr, params); !errors.Is(err, settlement.ErrZeroAddress) {
		t.Fatalf("expected ErrZeroAddress, got %v", err)
	}
	params.FeeCollector = engineAddr
	if err := engine.Initialize(ownerAddr, adminAddr, params); !errors.Is(err, settlement.ErrInvalidFeeCollector) {
		t.Fatalf("expected ErrInvalidFeeCollector, got %v", err)
	}
	params.FeeCollector = collectorAddr
	params.MinExecutionBudget = 0
	if err := engine.Initialize(ownerAddr, adminAddr, params); !errors.Is(err, settlement.ErrZeroMinExecutionBudget) {
		t.Fatalf("expected ErrZeroMinExecutionBudget, got %v", err)
	}
	if _, err := engine.Params(); !errors.Is(err, settlement.ErrNotInitialized) {
		t.Fatalf("failed initialisation must leave no params, got %v", err)
	}
}

func TestUninitialisedEngine(t *testing.T) {
	engine := settlement.NewEngine(engineAddr)
	if _, err := engine.SettleBatch(context.Background(), settlement.BatchCall{}); !errors.Is(err, settlement.ErrNilState) {
		t.Fatalf("expected ErrNilState, got %v", err)
	}
	engine.SetState(state.NewManager(storage.NewMemDB()))
	if _, err := engine.SettleBatch(context.Background(), settlement.BatchCall{}); !errors.Is(err, settlement.ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
}
