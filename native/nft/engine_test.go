package nft

import (
	"bytes"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"nftledger/core/events"
	"nftledger/core/identity"
	"nftledger/core/state"
	"nftledger/storage"
)

var errInjected = errors.New("injected write failure")

// faultyKV fails every Put whose key starts with failPrefix.
type faultyKV struct {
	*storage.MemDB
	failPrefix []byte
}

func (f *faultyKV) Put(key, value []byte) error {
	if f.failPrefix != nil && bytes.HasPrefix(key, f.failPrefix) {
		return errInjected
	}
	return f.MemDB.Put(key, value)
}

type testEnv struct {
	t       *testing.T
	kv      *faultyKV
	engine  *Engine
	events  *events.Recorder
	signers identity.StaticWitness
	clock   int64
	nextKey byte
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		t:       t,
		kv:      &faultyKV{MemDB: storage.NewMemDB()},
		events:  &events.Recorder{},
		signers: identity.NewStaticWitness(),
		clock:   1_700_000_000,
	}
	engine := NewEngine()
	engine.SetState(state.NewCodec(env.kv))
	engine.SetWitness(env.signers)
	engine.SetEmitter(env.events)
	engine.SetNowFunc(func() int64 { return env.clock })
	env.engine = engine
	return env
}

// account returns a fresh address whose folded id is positive. Signed
// accounts are added to the witness.
func (env *testEnv) account(signed bool) identity.AccountRef {
	env.t.Helper()
	for {
		env.nextKey++
		if env.nextKey == 0 {
			env.t.Fatalf("ran out of test addresses")
		}
		var addr common.Address
		addr[0] = env.nextKey
		addr[19] = 0x7e
		if identity.FoldBytes(addr.Bytes()) <= 0 {
			continue
		}
		if signed {
			env.signers[addr] = struct{}{}
		}
		return identity.AddressRef(addr)
	}
}

func (env *testEnv) id(ref identity.AccountRef) int64 {
	env.t.Helper()
	id := env.engine.Resolver().Lookup(ref)
	if id <= 0 {
		env.t.Fatalf("account %s has no id", ref)
	}
	return id
}

func defaultParams() CollectionParams {
	return CollectionParams{
		Name:         "Harbor Pass",
		Symbol:       "HRB",
		Description:  "Season membership",
		BaseURI:      "ipfs://harbor/",
		RoyaltyBps:   250,
		Transferable: true,
	}
}

func (env *testEnv) collection(owner identity.AccountRef, p CollectionParams) int64 {
	env.t.Helper()
	id, err := env.engine.CreateCollection(owner, p)
	if err != nil {
		env.t.Fatalf("create collection: %v", err)
	}
	return id
}

func (env *testEnv) mint(owner identity.AccountRef, collectionID int64, to identity.AccountRef) int64 {
	env.t.Helper()
	tokenID, err := env.engine.Mint(owner, collectionID, to, "", "")
	if err != nil {
		env.t.Fatalf("mint: %v", err)
	}
	return tokenID
}

func (env *testEnv) eventTypes() []string {
	var out []string
	for _, evt := range env.events.Events() {
		out = append(out, evt.EventType())
	}
	return out
}

func TestEngineWithoutStateFails(t *testing.T) {
	engine := NewEngine()
	if _, err := engine.CreateCollection(identity.IDRef(1), defaultParams()); !errors.Is(err, errNilState) {
		t.Fatalf("expected nil state error, got %v", err)
	}
	if _, err := engine.TotalSupply(); !IsIntegrity(err) {
		t.Fatalf("expected integrity classification, got %v", err)
	}
}

func TestCreateCollectionAssignsSequentialIDs(t *testing.T) {
	env := newTestEnv(t)
	first := env.collection(env.account(true), defaultParams())
	second := env.collection(env.account(true), defaultParams())
	if first != 1 || second != 2 {
		t.Fatalf("expected ids 1 and 2, got %d and %d", first, second)
	}
	c, err := env.engine.Collection(first)
	if err != nil {
		t.Fatalf("collection: %v", err)
	}
	if c.Name != "Harbor Pass" || c.Minted != 0 || c.Paused || !c.Transferable {
		t.Fatalf("unexpected collection record: %+v", c)
	}
	if c.CreatedAt != env.clock {
		t.Fatalf("createdAt %d, want %d", c.CreatedAt, env.clock)
	}
	evts := env.events.Events()
	if len(evts) != 2 || evts[0].EventType() != events.TypeCollectionUpserted {
		t.Fatalf("expected two CollectionUpserted events, got %v", env.eventTypes())
	}
}

func TestCreateCollectionRejections(t *testing.T) {
	env := newTestEnv(t)
	owner := env.account(true)
	env.collection(owner, defaultParams())

	if _, err := env.engine.CreateCollection(owner, defaultParams()); !errors.Is(err, ErrOwnerHasCollection) {
		t.Fatalf("expected one collection per owner, got %v", err)
	}
	unsigned := env.account(false)
	if _, err := env.engine.CreateCollection(unsigned, defaultParams()); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	bad := defaultParams()
	bad.RoyaltyBps = 10_001
	if _, err := env.engine.CreateCollection(env.account(true), bad); !errors.Is(err, ErrInvalidRoyalty) {
		t.Fatalf("expected invalid royalty, got %v", err)
	}
	bad = defaultParams()
	bad.Name = ""
	if _, err := env.engine.CreateCollection(env.account(true), bad); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("expected invalid name, got %v", err)
	}
	bad = defaultParams()
	bad.MaxSupply = -1
	if _, err := env.engine.CreateCollection(env.account(true), bad); !errors.Is(err, ErrInvalidMaxSupply) {
		t.Fatalf("expected invalid max supply, got %v", err)
	}
}

func TestUpdateCollectionOwnerOnly(t *testing.T) {
	env := newTestEnv(t)
	owner := env.account(true)
	operator := env.account(true)
	cid := env.collection(owner, defaultParams())
	if err := env.engine.SetCollectionOperator(owner, cid, operator, true); err != nil {
		t.Fatalf("grant operator: %v", err)
	}
	update := CollectionUpdate{Description: "changed", BaseURI: "ipfs://new/", RoyaltyBps: 100, Transferable: true}
	if err := env.engine.UpdateCollection(operator, cid, update); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("operator must not update, got %v", err)
	}
	if err := env.engine.UpdateCollection(env.account(true), cid, update); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("stranger must not update, got %v", err)
	}
	if err := env.engine.UpdateCollection(owner, cid, update); err != nil {
		t.Fatalf("owner update: %v", err)
	}
	c, err := env.engine.Collection(cid)
	if err != nil {
		t.Fatalf("collection: %v", err)
	}
	if c.Description != "changed" || c.RoyaltyBps != 100 {
		t.Fatalf("update not applied: %+v", c)
	}
	if err := env.engine.UpdateCollection(owner, 99, update); !errors.Is(err, ErrCollectionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestOperatorMayMintAndBurn(t *testing.T) {
	env := newTestEnv(t)
	owner := env.account(true)
	operator := env.account(true)
	holder := env.account(false)
	cid := env.collection(owner, defaultParams())

	if _, err := env.engine.Mint(operator, cid, holder, "", ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized before grant, got %v", err)
	}
	if err := env.engine.SetCollectionOperator(owner, cid, operator, true); err != nil {
		t.Fatalf("grant: %v", err)
	}
	ok, err := env.engine.IsCollectionOperator(cid, operator)
	if err != nil || !ok {
		t.Fatalf("expected operator grant, got %v %v", ok, err)
	}
	tokenID := env.mint(operator, cid, holder)
	if err := env.engine.Burn(operator, tokenID); err != nil {
		t.Fatalf("operator burn: %v", err)
	}
	if err := env.engine.SetCollectionOperator(owner, cid, operator, false); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := env.engine.Mint(operator, cid, holder, "", ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized after revoke, got %v", err)
	}
}

func TestMintAssignsTokenIDsAndFallbacks(t *testing.T) {
	env := newTestEnv(t)
	owner := env.account(true)
	holder := env.account(false)
	cid := env.collection(owner, defaultParams())

	first := env.mint(owner, cid, holder)
	second, err := env.engine.Mint(owner, cid, holder, "ipfs://custom", `{"tier":"gold"}`)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if first != ComposeTokenID(cid, 1) || second != ComposeTokenID(cid, 2) {
		t.Fatalf("unexpected token ids %d, %d", first, second)
	}
	tok, err := env.engine.Token(first)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if tok.URI != "ipfs://harbor/" || tok.Properties != "Harbor Pass" {
		t.Fatalf("expected fallbacks, got uri=%q props=%q", tok.URI, tok.Properties)
	}
	if tok.Class != ClassMembership || tok.MintedAt != env.clock {
		t.Fatalf("unexpected token record %+v", tok)
	}
	balance, err := env.engine.BalanceOf(holder)
	if err != nil || balance != 2 {
		t.Fatalf("balance %d err %v", balance, err)
	}
	status, err := env.engine.MembershipStatus(cid, holder)
	if err != nil || status.Balance != 2 || !status.IsMember {
		t.Fatalf("membership %+v err %v", status, err)
	}
	transfer, ok := env.events.Events()[1].(events.Transfer)
	if !ok || transfer.From != nil || transfer.To == nil || transfer.TokenID != first {
		t.Fatalf("expected mint Transfer, got %#v", env.events.Events()[1])
	}
}

func TestSupplyCapSurvivesBurn(t *testing.T) {
	env := newTestEnv(t)
	owner := env.account(true)
	p := defaultParams()
	p.MaxSupply = 3
	cid := env.collection(owner, p)
	var tokens []int64
	for i := 0; i < 3; i++ {
		tokens = append(tokens, env.mint(owner, cid, owner))
	}
	if _, err := env.engine.Mint(owner, cid, owner, "", ""); !errors.Is(err, ErrMaxSupplyReached) {
		t.Fatalf("expected supply cap, got %v", err)
	}
	if err := env.engine.Burn(owner, tokens[0]); err != nil {
		t.Fatalf("burn: %v", err)
	}
	c, err := env.engine.Collection(cid)
	if err != nil {
		t.Fatalf("collection: %v", err)
	}
	if c.Minted != 3 {
		t.Fatalf("minted must not drop on burn, got %d", c.Minted)
	}
	if _, err := env.engine.Mint(owner, cid, owner, "", ""); !errors.Is(err, ErrMaxSupplyReached) {
		t.Fatalf("burn must not reopen supply, got %v", err)
	}
	supply, err := env.engine.TotalSupply()
	if err != nil || supply != 2 {
		t.Fatalf("total supply %d err %v", supply, err)
	}
}

func TestMintRejectsExhaustedSerial(t *testing.T) {
	env := newTestEnv(t)
	owner := env.account(true)
	cid := env.collection(owner, defaultParams())
	if err := env.engine.codec.PutInt(collectionSerialKey(cid), MaxSerial); err != nil {
		t.Fatalf("seed serial: %v", err)
	}
	if _, err := env.engine.Mint(owner, cid, owner, "", ""); !errors.Is(err, ErrSerialExhausted) {
		t.Fatalf("expected serial exhaustion, got %v", err)
	}
}

func TestMintRejectsExistingDerivedToken(t *testing.T) {
	env := newTestEnv(t)
	owner := env.account(true)
	cid := env.collection(owner, defaultParams())
	if err := env.engine.codec.PutInt(tokenFieldKey(ComposeTokenID(cid, 1), tokenFieldCollection), cid); err != nil {
		t.Fatalf("seed token: %v", err)
	}
	env.events.Reset()
	before := env.kv.Len()

	if _, err := env.engine.Mint(owner, cid, owner, "", ""); !errors.Is(err, ErrTokenExists) {
		t.Fatalf("expected ErrTokenExists, got %v", err)
	}
	if after := env.kv.Len(); after != before {
		t.Fatalf("mint wrote %d keys before rejecting", after-before)
	}
	if got := env.eventTypes(); len(got) != 0 {
		t.Fatalf("unexpected events %v", got)
	}
	c, err := env.engine.Collection(cid)
	if err != nil || c.Minted != 0 || c.Serial != 0 {
		t.Fatalf("collection %+v err %v", c, err)
	}
}

func TestMintRejectsPausedCollection(t *testing.T) {
	env := newTestEnv(t)
	owner := env.account(true)
	cid := env.collection(owner, defaultParams())
	if err := env.engine.UpdateCollection(owner, cid, CollectionUpdate{BaseURI: "ipfs://x/", Transferable: true, Paused: true}); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if _, err := env.engine.Mint(owner, cid, owner, "", ""); !errors.Is(err, ErrCollectionPaused) {
		t.Fatalf("expected paused, got %v", err)
	}
}

func TestBurnTwiceFails(t *testing.T) {
	env := newTestEnv(t)
	owner := env.account(true)
	cid := env.collection(owner, defaultParams())
	tokenID := env.mint(owner, cid, owner)
	if err := env.engine.Burn(owner, tokenID); err != nil {
		t.Fatalf("burn: %v", err)
	}
	if err := env.engine.Burn(owner, tokenID); !errors.Is(err, ErrTokenBurned) {
		t.Fatalf("expected already burned, got %v", err)
	}
	addr, err := env.engine.OwnerOf(tokenID)
	if err != nil || addr != (common.Address{}) {
		t.Fatalf("burned token should have zero owner, got %s %v", addr.Hex(), err)
	}
	balance, _ := env.engine.BalanceOf(owner)
	if balance != 0 {
		t.Fatalf("balance should be 0 after burn, got %d", balance)
	}
}

func TestTransferMovesOwnership(t *testing.T) {
	env := newTestEnv(t)
	owner := env.account(true)
	recipient := env.account(false)
	cid := env.collection(owner, defaultParams())
	tokenID := env.mint(owner, cid, owner)
	env.events.Reset()

	if err := env.engine.Transfer(recipient, tokenID, nil); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	got, err := env.engine.OwnerOf(tokenID)
	if err != nil {
		t.Fatalf("owner of: %v", err)
	}
	want, _ := recipient.Address()
	if got != want {
		t.Fatalf("owner %s, want %s", got.Hex(), want.Hex())
	}
	if env.events.Len() != 1 {
		t.Fatalf("expected one Transfer event, got %v", env.eventTypes())
	}
	ownerMembers, _ := env.engine.MembershipStatus(cid, owner)
	recipientMembers, _ := env.engine.MembershipStatus(cid, recipient)
	if ownerMembers.Balance != 0 || recipientMembers.Balance != 1 {
		t.Fatalf("membership not moved: %d / %d", ownerMembers.Balance, recipientMembers.Balance)
	}

	// The previous owner is still witnessed but no longer owns the token.
	if err := env.engine.Transfer(owner, tokenID, nil); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestSelfTransferIsNoop(t *testing.T) {
	env := newTestEnv(t)
	owner := env.account(true)
	cid := env.collection(owner, defaultParams())
	tokenID := env.mint(owner, cid, owner)
	env.events.Reset()
	before := env.kv.Len()

	if err := env.engine.Transfer(owner, tokenID, []byte("memo")); err != nil {
		t.Fatalf("self transfer: %v", err)
	}
	if env.events.Len() != 0 {
		t.Fatalf("self transfer emitted %v", env.eventTypes())
	}
	if env.kv.Len() != before {
		t.Fatalf("self transfer wrote state: %d -> %d keys", before, env.kv.Len())
	}
	balance, _ := env.engine.BalanceOf(owner)
	if balance != 1 {
		t.Fatalf("balance changed to %d", balance)
	}
}

func TestTransferRespectsCollectionFlags(t *testing.T) {
	env := newTestEnv(t)
	owner := env.account(true)
	p := defaultParams()
	p.Transferable = false
	cid := env.collection(owner, p)
	tokenID := env.mint(owner, cid, owner)
	if err := env.engine.Transfer(env.account(false), tokenID, nil); !errors.Is(err, ErrNotTransferable) {
		t.Fatalf("expected not transferable, got %v", err)
	}
}

func TestSoulboundMembershipCannotMove(t *testing.T) {
	env := newTestEnv(t)
	owner := env.account(true)
	cid := env.collection(owner, defaultParams())
	tokenID := env.mint(owner, cid, owner)
	program := CheckInProgram{Enabled: true, MembershipSoulbound: true}
	if err := env.engine.ConfigureCheckIn(owner, cid, program); err != nil {
		t.Fatalf("configure: %v", err)
	}
	if err := env.engine.Transfer(env.account(false), tokenID, nil); !errors.Is(err, ErrSoulbound) {
		t.Fatalf("expected soulbound, got %v", err)
	}
}

func TestOwnerDedicatedCollection(t *testing.T) {
	env := newTestEnv(t)
	owner := env.account(true)
	has, err := env.engine.HasOwnerDedicatedCollection(owner)
	if err != nil || has {
		t.Fatalf("fresh owner should have none: %v %v", has, err)
	}
	cid := env.collection(owner, defaultParams())
	got, err := env.engine.OwnerDedicatedCollection(owner)
	if err != nil || got != cid {
		t.Fatalf("owner collection %d err %v", got, err)
	}
}

func TestEchoTokenEmitsFullRecord(t *testing.T) {
	env := newTestEnv(t)
	owner := env.account(true)
	cid := env.collection(owner, defaultParams())
	tokenID := env.mint(owner, cid, owner)
	env.events.Reset()
	if err := env.engine.EchoToken(tokenID); err != nil {
		t.Fatalf("echo: %v", err)
	}
	evts := env.events.Events()
	if len(evts) != 1 {
		t.Fatalf("expected one event, got %d", len(evts))
	}
	upserted, ok := evts[0].(events.TokenUpserted)
	if !ok || upserted.TokenID != tokenID || upserted.CollectionID != cid || upserted.URI != "ipfs://harbor/" {
		t.Fatalf("unexpected event %#v", evts[0])
	}
	if err := env.engine.EchoToken(42); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStorageFaultIsIntegrityError(t *testing.T) {
	env := newTestEnv(t)
	owner := env.account(true)
	cid := env.collection(owner, defaultParams())
	env.kv.failPrefix = balancePrefix
	_, err := env.engine.Mint(owner, cid, owner, "", "")
	if !IsIntegrity(err) || !errors.Is(err, errInjected) {
		t.Fatalf("expected wrapped integrity error, got %v", err)
	}
}
