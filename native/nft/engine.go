package nft

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"nftledger/core/events"
	"nftledger/core/identity"
	"nftledger/core/state"
)

// Engine wires collection, token, drop and check-in logic to a field codec,
// an account resolver, an event emitter and a clock. An engine is scoped to a
// single call; the host serialises calls.
type Engine struct {
	codec    *state.Codec
	resolver *identity.Resolver
	witness  identity.Witness
	emitter  events.Emitter
	nowFn    func() int64
}

// NewEngine constructs an engine with default dependencies.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn: func() int64 {
			return time.Now().Unix()
		},
	}
}

// SetState configures the codec the engine reads and writes through.
func (e *Engine) SetState(codec *state.Codec) {
	e.codec = codec
	e.resolver = nil
	if codec != nil {
		e.resolver = identity.NewResolver(codec, e.witness)
	}
}

// SetWitness configures the oracle used to authorise callers.
func (e *Engine) SetWitness(w identity.Witness) {
	e.witness = w
	if e.codec != nil {
		e.resolver = identity.NewResolver(e.codec, w)
	}
}

// SetEmitter configures the event emitter used by the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used for deterministic testing.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// Resolver exposes the account resolver bound to the engine's state.
func (e *Engine) Resolver() *identity.Resolver { return e.resolver }

func (e *Engine) ready() error {
	if e == nil || e.codec == nil || e.resolver == nil {
		return errNilState
	}
	return nil
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || evt == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// actor resolves ref and checks the witness for it. The returned id is
// positive on success.
func (e *Engine) actor(ref identity.AccountRef) (int64, error) {
	id, err := e.resolver.Resolve(ref)
	if err != nil {
		return 0, integrity("resolve account", err)
	}
	if id <= 0 {
		return 0, ErrInvalidAccount
	}
	if !e.resolver.Authorize(ref) {
		return 0, ErrUnauthorized
	}
	return id, nil
}

// account resolves ref without a witness check.
func (e *Engine) account(ref identity.AccountRef) (int64, error) {
	id, err := e.resolver.Resolve(ref)
	if err != nil {
		return 0, integrity("resolve account", err)
	}
	if id <= 0 {
		return 0, ErrInvalidAccount
	}
	return id, nil
}

// addressPtr renders an account id for event payloads; non-positive ids are
// absent.
func (e *Engine) addressPtr(id int64) *common.Address {
	if id <= 0 {
		return nil
	}
	return events.AccountPtr(e.resolver.AddressOf(id))
}
