package settlement

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"burnrouter/core/events"
	"burnrouter/native/access"
	"burnrouter/native/assets"
	"burnrouter/native/common"
	"burnrouter/native/referral"
)

// Execution budget charged by the engine itself. Routers may charge more
// through SwapCall.Budget.
const (
	ItemCost     uint64 = 2_000
	TransferCost uint64 = 5_000
	SwapCost     uint64 = 40_000
	ForwardCost  uint64 = 20_000
)

type engineState interface {
	SettlementParams() (*Params, error)
	PutSettlementParams(*Params) error
	AccessRoles() (*access.Roles, error)
	PutAccessRoles(*access.Roles) error
	PartnerShare(addr [20]byte) (uint8, error)
	PutPartnerShare(addr [20]byte, share uint8) error
	DeletePartnerShare(addr [20]byte) error
	Snapshot() int
	RevertToSnapshot(id int)
}

// Engine settles batches of conversions and owns the access gate and the
// referral registry that guard them. Every public mutation runs as a single
// unit: on error all state writes and events of the call are dropped.
type Engine struct {
	address   [20]byte
	state     engineState
	gate      *access.Gate
	registry  *referral.Registry
	router    Router
	forwarder Forwarder
	assets    assets.Resolver
	emitter   events.Emitter
	buffer    events.Buffer
	guard     common.ReentrancyGuard
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   Metrics
	tracer    trace.Tracer
	depth     int
}

// NewEngine creates an engine identified by address. The address is the
// account that holds assets in flight and is granted allowances.
func NewEngine(address [20]byte) *Engine {
	e := &Engine{
		address:  address,
		gate:     access.NewGate(),
		registry: referral.NewRegistry(),
		emitter:  events.NoopEmitter{},
		clock:    clockwork.NewRealClock(),
		logger:   slog.Default(),
		metrics:  noopMetrics{},
		tracer:   otel.Tracer("burnrouter/native/settlement"),
	}
	e.gate.SetEmitter(&e.buffer)
	e.registry.SetEmitter(&e.buffer)
	e.registry.SetPauses(e.gate)
	e.registry.SetAuthorizer(e.gate)
	return e
}

func (e *Engine) SetState(state engineState) {
	e.state = state
	e.gate.SetState(state)
	e.registry.SetState(state)
}

func (e *Engine) SetRouter(r Router)             { e.router = r }
func (e *Engine) SetForwarder(f Forwarder)       { e.forwarder = f }
func (e *Engine) SetAssets(r assets.Resolver)    { e.assets = r }
func (e *Engine) SetClock(clock clockwork.Clock) { e.clock = clock }

func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	e.logger = logger
}

func (e *Engine) SetMetrics(m Metrics) {
	if m == nil {
		m = noopMetrics{}
	}
	e.metrics = m
}

func (e *Engine) Address() [20]byte { return e.address }

// transact runs fn as one unit of execution. Nested calls made from
// collaborator callbacks share the outer unit; only the outermost call flushes
// events downstream.
func (e *Engine) transact(ctx context.Context, op string, fn func(context.Context) error) (err error) {
	if e.state == nil {
		return ErrNilState
	}
	ctx, span := e.tracer.Start(ctx, "settlement."+op)
	defer span.End()

	snap := e.state.Snapshot()
	mark := e.buffer.Mark()
	e.depth++
	defer func() {
		e.depth--
		if r := recover(); r != nil {
			e.state.RevertToSnapshot(snap)
			e.buffer.Truncate(mark)
			panic(r)
		}
		if err != nil {
			e.state.RevertToSnapshot(snap)
			e.buffer.Truncate(mark)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			e.logger.Warn("settlement call rejected", "op", op, "depth", e.depth, "error", err)
			return
		}
		if e.depth == 0 {
			span.SetAttributes(attribute.Int("events", e.buffer.Len()))
			e.buffer.Flush(e.emitter)
		}
	}()
	return fn(ctx)
}

// Initialize stores the initial parameters and installs the owner and an
// optional admin.
func (e *Engine) Initialize(owner, admin [20]byte, params Params) error {
	return e.transact(context.Background(), "initialize", func(context.Context) error {
		existing, err := e.state.SettlementParams()
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrAlreadyInitialized
		}
		if err := params.Validate(e.address); err != nil {
			return err
		}
		if err := e.state.PutSettlementParams(&params); err != nil {
			return err
		}
		return e.gate.Initialize(owner, admin)
	})
}

func (e *Engine) loadParams() (*Params, error) {
	if e.state == nil {
		return nil, ErrNilState
	}
	params, err := e.state.SettlementParams()
	if err != nil {
		return nil, err
	}
	if params == nil {
		return nil, ErrNotInitialized
	}
	return params, nil
}

// Params returns a copy of the current configuration.
func (e *Engine) Params() (Params, error) {
	params, err := e.loadParams()
	if err != nil {
		return Params{}, err
	}
	return *params, nil
}

func (e *Engine) Owner() ([20]byte, error)                 { return e.gate.Owner() }
func (e *Engine) Admins() ([][20]byte, error)              { return e.gate.Admins() }
func (e *Engine) IsAdmin(addr [20]byte) (bool, error)      { return e.gate.IsAdmin(addr) }
func (e *Engine) IsPaused(module string) bool              { return e.gate.IsPaused(module) }
func (e *Engine) PartnerShare(addr [20]byte) (uint8, error) { return e.registry.Share(addr) }

func (e *Engine) PartnerTier(addr [20]byte) (referral.Tier, error) {
	return e.registry.Tier(addr)
}

func (e *Engine) resolve(id [20]byte) (assets.Asset, error) {
	if e.assets == nil {
		return nil, ErrNilAssets
	}
	return e.assets.Resolve(id)
}

func (e *Engine) checkDeadline(deadline int64) error {
	if deadline != 0 && deadline < e.clock.Now().Unix() {
		return ErrInvalidDeadline
	}
	return nil
}

func checkAmount(v *big.Int) error {
	if v == nil {
		return nil
	}
	if v.Sign() < 0 {
		return ErrInvalidAmount
	}
	if _, overflow := uint256.FromBig(v); overflow {
		return ErrInvalidAmount
	}
	return nil
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// pull moves amount of token from owner into the engine using the engine's
// allowance and returns what actually arrived.
func (e *Engine) pull(ctx context.Context, token assets.Asset, owner [20]byte, amount *big.Int, budget *common.Meter) (*big.Int, error) {
	if err := budget.Consume(TransferCost); err != nil {
		return nil, err
	}
	before, err := token.BalanceOf(e.address)
	if err != nil {
		return nil, err
	}
	if err := token.TransferFrom(ctx, e.address, owner, e.address, amount); err != nil {
		return nil, fmt.Errorf("settlement: pull: %w", err)
	}
	after, err := token.BalanceOf(e.address)
	if err != nil {
		return nil, err
	}
	received := new(big.Int).Sub(after, before)
	if received.Sign() < 0 {
		received.SetInt64(0)
	}
	return received, nil
}

// send pays amount of token from the engine to to. Zero amounts are skipped.
func (e *Engine) send(ctx context.Context, token assets.Asset, to [20]byte, amount *big.Int, budget *common.Meter) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if err := budget.Consume(TransferCost); err != nil {
		return err
	}
	if err := token.Transfer(ctx, e.address, to, amount); err != nil {
		return fmt.Errorf("settlement: transfer: %w", err)
	}
	return nil
}
