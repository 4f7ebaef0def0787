// Package ledger is the collateralized debt accounting engine. Accounts deposit
// collateral and delegate it to pools; pools back markets whose reported debt
// flows lazily down the Market -> Pool -> Vault -> Position tree.
//
// Every public method runs as a single serialized transaction over the backing
// store: it either commits completely or leaves no trace, and its events are
// emitted only after the commit succeeded.
package ledger

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	ledgererrors "synthledger/core/errors"
	"synthledger/core/events"
	"synthledger/core/types"
	nativecommon "synthledger/native/common"
	"synthledger/observability/metrics"
	"synthledger/storage"
)

var (
	errNilStore  = errors.New("ledger engine: store not configured")
	errNilOracle = errors.New("ledger engine: price oracle not configured")

	// ErrReentrantCall is returned when a collaborator invoked from inside a
	// ledger operation calls back into the ledger.
	ErrReentrantCall = errors.New("ledger engine: reentrant call rejected")
)

// Operation groups that can be paused independently.
const (
	ModuleAccounts    = "accounts"
	ModuleCollateral  = "collateral"
	ModulePools       = "pools"
	ModuleMarkets     = "markets"
	ModuleDelegation  = "delegation"
	ModuleIssuance    = "issuance"
	ModuleLiquidation = "liquidation"
	ModuleRewards     = "rewards"
)

// Modules lists every pausable operation group.
var Modules = []string{
	ModuleAccounts,
	ModuleCollateral,
	ModulePools,
	ModuleMarkets,
	ModuleDelegation,
	ModuleIssuance,
	ModuleLiquidation,
	ModuleRewards,
}

const tracerName = "synthledger/native/ledger"

type ledgerCtxKey struct{}

type ledgerEvent struct {
	evt *types.Event
}

func (e ledgerEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e ledgerEvent) Event() *types.Event { return e.evt }

// Engine owns the ledger store and serializes every state transition.
// Collaborators must not call back into the engine with a context other than
// the one they were handed; such a call blocks on the engine lock.
type Engine struct {
	mu        sync.Mutex
	db        storage.Database
	oracle    PriceOracle
	custodian Custodian
	payer     RewardsPayer
	emitter   events.Emitter
	pauses    nativecommon.PauseView
	nowFn     func() time.Time
	logger    *slog.Logger
	tracer    trace.Tracer
	metrics   *metrics.LedgerMetrics
}

// NewEngine constructs an engine persisting into db.
func NewEngine(db storage.Database) *Engine {
	return &Engine{
		db:      db,
		emitter: events.NoopEmitter{},
		nowFn:   time.Now,
		logger:  slog.Default(),
		tracer:  otel.Tracer(tracerName),
	}
}

// SetOracle configures the collateral price source.
func (e *Engine) SetOracle(oracle PriceOracle) { e.oracle = oracle }

// SetCustodian configures the collaborator moving collateral tokens.
func (e *Engine) SetCustodian(custodian Custodian) { e.custodian = custodian }

// SetRewardsPayer configures the collaborator paying claimed rewards.
func (e *Engine) SetRewardsPayer(payer RewardsPayer) { e.payer = payer }

// SetEmitter configures the sink receiving committed events.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

// SetPauses configures the pause switches consulted before each mutation.
// A nil view leaves every module active.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetNowFunc overrides the clock, primarily for tests.
func (e *Engine) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	e.nowFn = now
}

// SetLogger sets the structured logger; nil restores slog.Default.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	e.logger = logger
}

// SetMetrics enables prometheus instrumentation.
func (e *Engine) SetMetrics(m *metrics.LedgerMetrics) { e.metrics = m }

func (e *Engine) now() uint64 {
	ts := e.nowFn().Unix()
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

func insideLedger(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	marked, _ := ctx.Value(ledgerCtxKey{}).(bool)
	return marked
}

// execute runs fn as one atomic state transition.
func (e *Engine) execute(ctx context.Context, op, module string, fn func(tx *ledgerTx) error) error {
	return e.run(ctx, op, module, true, fn)
}

// view runs fn against a throwaway transaction. Settlement performed by fn to
// compute up to date figures is discarded, so repeated views are idempotent.
func (e *Engine) view(ctx context.Context, op string, fn func(tx *ledgerTx) error) error {
	return e.run(ctx, op, "", false, fn)
}

func (e *Engine) run(ctx context.Context, op, module string, commit bool, fn func(tx *ledgerTx) error) (err error) {
	if e == nil || e.db == nil {
		return errNilStore
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if insideLedger(ctx) {
		e.metrics.IncReentrant()
		return ErrReentrantCall
	}
	if commit {
		if err := nativecommon.Guard(e.pauses, module); err != nil {
			return err
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	ctx, span := e.tracer.Start(ctx, "ledger."+op, trace.WithAttributes(attribute.Bool("ledger.mutating", commit)))
	defer span.End()
	started := time.Now()
	defer func() {
		e.metrics.ObserveOperation(op, outcome(err), time.Since(started))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome(err))
			e.logger.Debug("ledger operation failed", slog.String("operation", op), slog.String("error", err.Error()))
		}
	}()

	tx := &ledgerTx{
		ctx:    context.WithValue(ctx, ledgerCtxKey{}, true),
		engine: e,
		kv:     storage.NewOverlay(e.db),
		now:    e.now(),
	}
	if err = fn(tx); err != nil {
		tx.kv.Discard()
		return err
	}
	if !commit {
		tx.kv.Discard()
		return nil
	}

	params, err := tx.loadParams()
	if err != nil {
		return err
	}
	if len(tx.events) > 0 {
		params.Sequence++
		for _, evt := range tx.events {
			evt.Height = params.Sequence
		}
	}
	if err = tx.saveParams(); err != nil {
		return err
	}
	if err = tx.kv.Commit(); err != nil {
		return err
	}
	span.SetAttributes(attribute.Int("ledger.events", len(tx.events)))
	for _, evt := range tx.events {
		e.metrics.IncEvent(evt.Type)
		e.emitter.Emit(ledgerEvent{evt: evt})
	}
	return nil
}

func outcome(err error) string {
	if err == nil {
		return ""
	}
	if le, ok := ledgererrors.As(err); ok {
		return le.Kind()
	}
	switch {
	case errors.Is(err, ErrReentrantCall):
		return "reentrant"
	case errors.Is(err, nativecommon.ErrModulePaused):
		return "paused"
	}
	return "internal"
}
