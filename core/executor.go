package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"nftledger/core/eventlog"
	"nftledger/core/events"
	"nftledger/core/identity"
	"nftledger/core/state"
	"nftledger/core/types"
	"nftledger/crypto"
	"nftledger/native/nft"
	"nftledger/observability"
	"nftledger/observability/logging"
	"nftledger/storage"
)

var (
	ErrNilDatabase = errors.New("core: database required")
	ErrNoMethod    = errors.New("core: call method required")
)

// Call describes one state-changing invocation. Signers are addresses the
// host has already authenticated; Signatures are verified against the call
// digest and add their recovered signers. Nonce must equal the next nonce of
// every recovered signer and is consumed when the call commits.
type Call struct {
	ID         string
	Method     string
	Params     json.RawMessage
	Nonce      uint64
	Signers    []common.Address
	Signatures [][]byte
}

// Result reports a committed call.
type Result struct {
	CallID  string
	Events  []events.Event
	LastSeq uint64
	Value   any
}

// Executor hosts ledger calls. Calls are serialised; each one runs against a
// fresh overlay whose writes and events are committed together only when the
// call succeeds.
type Executor struct {
	mu      sync.RWMutex
	db      storage.Database
	network string
	logger  *slog.Logger
	tracer  trace.Tracer
	sink    events.Emitter
	refs    state.RefResolver
	clock   func() time.Time
}

// Option customises an Executor.
type Option func(*Executor)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(x *Executor) {
		if l != nil {
			x.logger = l
		}
	}
}

// WithSink forwards committed events to emitter.
func WithSink(emitter events.Emitter) Option {
	return func(x *Executor) {
		if emitter != nil {
			x.sink = emitter
		}
	}
}

// WithClock overrides the wall clock.
func WithClock(clock func() time.Time) Option {
	return func(x *Executor) {
		if clock != nil {
			x.clock = clock
		}
	}
}

// WithRefResolver installs the resolver for legacy text references.
func WithRefResolver(r state.RefResolver) Option {
	return func(x *Executor) { x.refs = r }
}

// NewExecutor builds a call host over db for the named network.
func NewExecutor(db storage.Database, network string, opts ...Option) (*Executor, error) {
	if db == nil {
		return nil, ErrNilDatabase
	}
	x := &Executor{
		db:      db,
		network: network,
		logger:  slog.Default(),
		tracer:  otel.Tracer("nftledger/core"),
		sink:    events.NoopEmitter{},
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(x)
	}
	return x, nil
}

// Network returns the network name bound into call digests.
func (x *Executor) Network() string { return x.network }

// Log returns a reader over the committed event log.
func (x *Executor) Log() *eventlog.Log { return eventlog.New(x.db) }

// Digest returns the digest a caller must sign for call.
func (x *Executor) Digest(call Call) []byte {
	return crypto.CallDigest(x.network, call.Method, call.Nonce, call.Params)
}

// Nonce returns the next nonce addr must sign with.
func (x *Executor) Nonce(addr common.Address) (uint64, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return readNonce(x.db, addr)
}

// witness combines host signers with the signers recovered from the call's
// signatures, which are returned in address order.
func (x *Executor) witness(call Call) (identity.Witness, []common.Address, error) {
	static := identity.NewStaticWitness(call.Signers...)
	if len(call.Signatures) == 0 {
		return static, nil, nil
	}
	recovered, err := crypto.NewSignatureWitness(x.Digest(call), call.Signatures)
	if err != nil {
		return nil, nil, err
	}
	return identity.WitnessFunc(func(addr common.Address) bool {
		return static.CheckWitness(addr) || recovered.CheckWitness(addr)
	}), sortedSigners(recovered.Signers()), nil
}

func (x *Executor) engine(kv state.KV, w identity.Witness, emitter events.Emitter, now int64) *nft.Engine {
	codec := state.NewCodec(kv)
	if x.refs != nil {
		codec.SetRefResolver(x.refs)
	}
	engine := nft.NewEngine()
	engine.SetState(codec)
	engine.SetWitness(w)
	engine.SetEmitter(emitter)
	engine.SetNowFunc(func() int64 { return now })
	return engine
}

// Invoke runs fn as a single atomic call. On error every write and event is
// discarded; on success writes, the event log and the head are committed in
// one batch and the events are forwarded to the sink.
func (x *Executor) Invoke(ctx context.Context, call Call, fn func(*nft.Engine) error) (Result, error) {
	if call.Method == "" {
		return Result{}, ErrNoMethod
	}
	if call.ID == "" {
		call.ID = uuid.NewString()
	}
	ctx, span := x.tracer.Start(ctx, "ledger."+call.Method, trace.WithAttributes(
		attribute.String("ledger.call_id", call.ID),
		attribute.String("ledger.method", call.Method),
	))
	defer span.End()
	logger := x.logger.With("call_id", call.ID, "method", call.Method)
	start := time.Now()

	w, signed, err := x.witness(call)
	if err != nil {
		span.SetStatus(codes.Error, "invalid signature")
		observability.Calls().RecordRejection(call.Method, "invalid_signature", time.Since(start))
		logger.Debug("call rejected", append([]any{"reason", "invalid_signature", "error", err}, signatureAttrs(call)...)...)
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	overlay := storage.NewOverlay(x.db)
	recorder := &events.Recorder{}
	now := x.clock().Unix()
	engine := x.engine(overlay, w, recorder, now)

	if err := checkNonces(overlay, signed, call.Nonce); err != nil {
		overlay.Discard()
		if !errors.Is(err, ErrNonceMismatch) {
			err = fmt.Errorf("%w: %w", nft.ErrIntegrity, err)
		}
		x.fail(ctx, span, logger, call, err, start)
		return Result{}, err
	}
	if err := fn(engine); err != nil {
		overlay.Discard()
		x.fail(ctx, span, logger, call, err, start)
		return Result{}, err
	}

	if err := consumeNonces(overlay, signed, call.Nonce); err != nil {
		overlay.Discard()
		err = fmt.Errorf("%w: %w", nft.ErrIntegrity, err)
		x.fail(ctx, span, logger, call, err, start)
		return Result{}, err
	}
	emitted := recorder.Events()
	rendered := make([]*types.Event, 0, len(emitted))
	for _, evt := range emitted {
		rendered = append(rendered, evt.Event())
	}
	last, err := eventlog.Stage(overlay, call.ID, now, rendered)
	if err != nil {
		overlay.Discard()
		err = fmt.Errorf("%w: stage events: %w", nft.ErrIntegrity, err)
		x.fail(ctx, span, logger, call, err, start)
		return Result{}, err
	}
	writes := overlay.Pending()
	if err := overlay.Commit(); err != nil {
		err = fmt.Errorf("%w: commit: %w", nft.ErrIntegrity, err)
		x.fail(ctx, span, logger, call, err, start)
		return Result{}, err
	}

	first := last - uint64(len(emitted)) + 1
	for i, evt := range emitted {
		observability.Calls().RecordEvent(evt.EventType(), first+uint64(i))
		x.sink.Emit(evt)
	}
	observability.Calls().RecordCommit(call.Method, writes, time.Since(start))
	span.SetAttributes(attribute.Int("ledger.events", len(emitted)), attribute.Int("ledger.writes", writes))
	logger.Debug("call committed", "events", len(emitted), "writes", writes, "seq", last)
	return Result{CallID: call.ID, Events: emitted, LastSeq: last}, nil
}

func (x *Executor) fail(ctx context.Context, span trace.Span, logger *slog.Logger, call Call, err error, start time.Time) {
	span.RecordError(err)
	if nft.IsIntegrity(err) {
		span.SetStatus(codes.Error, "integrity fault")
		observability.Calls().RecordFault(call.Method, time.Since(start))
		logger.ErrorContext(ctx, "call aborted", "error", err)
		return
	}
	reason := nft.Reason(err)
	switch {
	case reason != "":
	case errors.Is(err, ErrNonceMismatch):
		reason = "nonce_mismatch"
	default:
		reason = "invalid_params"
	}
	span.SetStatus(codes.Error, reason)
	observability.Calls().RecordRejection(call.Method, reason, time.Since(start))
	logger.DebugContext(ctx, "call rejected", "reason", reason, "error", err)
}

// View runs fn against committed state. Writes made by fn are discarded and
// events are dropped.
func (x *Executor) View(ctx context.Context, fn func(*nft.Engine) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	x.mu.RLock()
	defer x.mu.RUnlock()

	overlay := storage.NewOverlay(x.db)
	defer overlay.Discard()
	engine := x.engine(overlay, identity.NewStaticWitness(), events.NoopEmitter{}, x.clock().Unix())
	return fn(engine)
}

// Submit decodes and runs a named ledger call.
func (x *Executor) Submit(ctx context.Context, call Call) (Result, error) {
	handler, ok := methods[call.Method]
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownMethod, call.Method)
	}
	var value any
	res, err := x.Invoke(ctx, call, func(e *nft.Engine) error {
		v, err := handler(e, call.Params)
		value = v
		return err
	})
	if err != nil {
		return Result{}, err
	}
	res.Value = value
	return res, nil
}

func signatureAttrs(call Call) []any {
	attrs := make([]any, 0, len(call.Signatures))
	for i, sig := range call.Signatures {
		attrs = append(attrs, logging.MaskField(fmt.Sprintf("signature_%d", i), hexutil.Encode(sig)))
	}
	return attrs
}
