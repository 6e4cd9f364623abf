package core

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"nftledger/core/events"
	"nftledger/core/identity"
	"nftledger/crypto"
	"nftledger/native/nft"
	"nftledger/storage"
)

var errDiskFull = errors.New("disk full")

type failingDB struct {
	*storage.MemDB
	fail bool
}

func (f *failingDB) Put(key, value []byte) error {
	if f.fail {
		return errDiskFull
	}
	return f.MemDB.Put(key, value)
}

func positiveKey(t *testing.T) (*crypto.PrivateKey, common.Address) {
	t.Helper()
	for i := 0; i < 64; i++ {
		key, err := crypto.GeneratePrivateKey()
		if err != nil {
			t.Fatalf("generate key: %v", err)
		}
		addr := key.PubKey().Address().Common()
		if identity.FoldBytes(addr.Bytes()) > 0 {
			return key, addr
		}
	}
	t.Fatalf("no key with a positive account id")
	return nil, common.Address{}
}

func newTestExecutor(t *testing.T, db storage.Database, sink events.Emitter) *Executor {
	t.Helper()
	fixed := time.Unix(1_700_000_000, 0)
	x, err := NewExecutor(db, "testnet", WithSink(sink), WithClock(func() time.Time { return fixed }))
	if err != nil {
		t.Fatalf("new executor: %v", err)
	}
	return x
}

func mustParams(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal params: %v", err)
	}
	return raw
}

func TestNewExecutorRequiresDatabase(t *testing.T) {
	if _, err := NewExecutor(nil, "testnet"); !errors.Is(err, ErrNilDatabase) {
		t.Fatalf("expected ErrNilDatabase, got %v", err)
	}
}

func TestSubmitCommitsWritesAndEvents(t *testing.T) {
	db := storage.NewMemDB()
	sink := &events.Recorder{}
	x := newTestExecutor(t, db, sink)
	_, owner := positiveKey(t)

	res, err := x.Submit(context.Background(), Call{
		Method:  "createCollection",
		Params:  mustParams(t, map[string]any{"owner": owner.Hex(), "name": "Harbor", "symbol": "HRB", "baseUri": "ipfs://harbor/", "transferable": true}),
		Signers: []common.Address{owner},
	})
	if err != nil {
		t.Fatalf("create collection: %v", err)
	}
	if res.CallID == "" {
		t.Fatalf("expected generated call id")
	}
	if res.Value != int64(1) {
		t.Fatalf("expected collection id 1, got %v", res.Value)
	}
	if len(res.Events) != 1 || res.Events[0].EventType() != events.TypeCollectionUpserted {
		t.Fatalf("unexpected events %v", res.Events)
	}
	if sink.Len() != 1 {
		t.Fatalf("sink received %d events", sink.Len())
	}
	if res.LastSeq != 1 {
		t.Fatalf("expected seq 1, got %d", res.LastSeq)
	}

	res, err = x.Submit(context.Background(), Call{
		Method:  "mint",
		Params:  mustParams(t, map[string]any{"operator": owner.Hex(), "collectionId": 1, "to": owner.Hex()}),
		Signers: []common.Address{owner},
	})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if res.Value != int64(1_000_001) {
		t.Fatalf("expected token 1000001, got %v", res.Value)
	}

	records, err := x.Log().Read(0, 0)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[1].CallID != res.CallID || records[1].Time != 1_700_000_000 {
		t.Fatalf("unexpected record %+v", records[1])
	}
	decoded, err := events.Decode(records[1].Event)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	transfer, ok := decoded.(events.Transfer)
	if !ok || transfer.From != nil || transfer.To == nil || *transfer.To != owner {
		t.Fatalf("unexpected transfer %+v", decoded)
	}

	var balance int64
	err = x.View(context.Background(), func(e *nft.Engine) error {
		var err error
		balance, err = e.BalanceOf(identity.AddressRef(owner))
		return err
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if balance != 1 {
		t.Fatalf("expected balance 1, got %d", balance)
	}
}

func TestRejectedCallLeavesNoTrace(t *testing.T) {
	db := storage.NewMemDB()
	sink := &events.Recorder{}
	x := newTestExecutor(t, db, sink)
	_, owner := positiveKey(t)

	_, err := x.Submit(context.Background(), Call{
		Method: "createCollection",
		Params: mustParams(t, map[string]any{"owner": owner.Hex(), "name": "Harbor", "symbol": "HRB", "baseUri": "ipfs://harbor/"}),
	})
	if !errors.Is(err, nft.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if db.Len() != 0 {
		t.Fatalf("expected no writes, found %d keys", db.Len())
	}
	if sink.Len() != 0 {
		t.Fatalf("expected no events, got %d", sink.Len())
	}
	head, err := x.Log().Head()
	if err != nil || head != 0 {
		t.Fatalf("expected empty log, head=%d err=%v", head, err)
	}
}

func TestInvokeDiscardsWritesOnPolicyError(t *testing.T) {
	db := storage.NewMemDB()
	x := newTestExecutor(t, db, nil)
	_, owner := positiveKey(t)
	ref := identity.AddressRef(owner)

	_, err := x.Invoke(context.Background(), Call{Method: "batch", Signers: []common.Address{owner}}, func(e *nft.Engine) error {
		if _, err := e.CreateCollection(ref, nft.CollectionParams{Name: "A", Symbol: "A", BaseURI: "ipfs://a/"}); err != nil {
			return err
		}
		_, err := e.CreateCollection(ref, nft.CollectionParams{Name: "", Symbol: "B", BaseURI: "ipfs://b/"})
		return err
	})
	if !errors.Is(err, nft.ErrInvalidName) {
		t.Fatalf("expected ErrInvalidName, got %v", err)
	}
	if db.Len() != 0 {
		t.Fatalf("first collection leaked %d keys", db.Len())
	}
}

func TestCommitFailureIsIntegrityFault(t *testing.T) {
	db := &failingDB{MemDB: storage.NewMemDB(), fail: true}
	sink := &events.Recorder{}
	x := newTestExecutor(t, db, sink)
	_, owner := positiveKey(t)

	_, err := x.Submit(context.Background(), Call{
		Method:  "createCollection",
		Params:  mustParams(t, map[string]any{"owner": owner.Hex(), "name": "Harbor", "symbol": "HRB", "baseUri": "ipfs://harbor/"}),
		Signers: []common.Address{owner},
	})
	if !nft.IsIntegrity(err) {
		t.Fatalf("expected integrity fault, got %v", err)
	}
	if !errors.Is(err, errDiskFull) {
		t.Fatalf("expected cause to be preserved, got %v", err)
	}
	if sink.Len() != 0 {
		t.Fatalf("events forwarded for failed commit")
	}
}

func TestSignedCallAuthorisesRecoveredSigner(t *testing.T) {
	x := newTestExecutor(t, storage.NewMemDB(), nil)
	key, owner := positiveKey(t)
	call := Call{
		Method: "createCollection",
		Params: mustParams(t, map[string]any{"owner": crypto.FromCommon(owner).String(), "name": "Harbor", "symbol": "HRB", "baseUri": "ipfs://harbor/"}),
	}
	sig, err := key.Sign(x.Digest(call))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	call.Signatures = [][]byte{sig}
	if _, err := x.Submit(context.Background(), call); err != nil {
		t.Fatalf("signed call rejected: %v", err)
	}

	other := call
	other.Params = mustParams(t, map[string]any{"owner": owner.Hex(), "name": "Other", "symbol": "OTH", "baseUri": "ipfs://other/"})
	if _, err := x.Submit(context.Background(), other); !errors.Is(err, nft.ErrUnauthorized) {
		t.Fatalf("signature over different params must not authorise, got %v", err)
	}
}

func signCall(t *testing.T, x *Executor, key *crypto.PrivateKey, call Call) Call {
	t.Helper()
	sig, err := key.Sign(x.Digest(call))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	call.Signatures = [][]byte{sig}
	return call
}

func TestReplayedSignedCallRejected(t *testing.T) {
	db := storage.NewMemDB()
	x := newTestExecutor(t, db, nil)
	key, owner := positiveKey(t)
	ctx := context.Background()

	create := signCall(t, x, key, Call{
		Method: "createCollection",
		Params: mustParams(t, map[string]any{"owner": owner.Hex(), "name": "Harbor", "symbol": "HRB", "baseUri": "ipfs://harbor/", "transferable": true}),
		Nonce:  0,
	})
	if _, err := x.Submit(ctx, create); err != nil {
		t.Fatalf("create: %v", err)
	}
	update := func(paused bool, nonce uint64) Call {
		return signCall(t, x, key, Call{
			Method: "updateCollection",
			Params: mustParams(t, map[string]any{"owner": owner.Hex(), "collectionId": 1, "baseUri": "ipfs://harbor/", "transferable": true, "paused": paused}),
			Nonce:  nonce,
		})
	}
	unpause := update(false, 1)
	if _, err := x.Submit(ctx, unpause); err != nil {
		t.Fatalf("unpause: %v", err)
	}
	if _, err := x.Submit(ctx, update(true, 2)); err != nil {
		t.Fatalf("pause: %v", err)
	}
	head, err := x.Log().Head()
	if err != nil {
		t.Fatalf("head: %v", err)
	}

	if _, err := x.Submit(ctx, unpause); !errors.Is(err, ErrNonceMismatch) {
		t.Fatalf("replay must be rejected, got %v", err)
	}
	if _, err := x.Submit(ctx, create); !errors.Is(err, ErrNonceMismatch) {
		t.Fatalf("replayed create must be rejected, got %v", err)
	}
	if _, err := x.Submit(ctx, update(false, 7)); !errors.Is(err, ErrNonceMismatch) {
		t.Fatalf("future nonce must be rejected, got %v", err)
	}

	var paused bool
	err = x.View(ctx, func(e *nft.Engine) error {
		c, err := e.Collection(1)
		if err != nil {
			return err
		}
		paused = c.Paused
		return nil
	})
	if err != nil || !paused {
		t.Fatalf("collection must stay paused, paused=%v err=%v", paused, err)
	}
	if after, err := x.Log().Head(); err != nil || after != head {
		t.Fatalf("rejected replays appended events, head %d -> %d err %v", head, after, err)
	}
	if next, err := x.Nonce(owner); err != nil || next != 3 {
		t.Fatalf("expected next nonce 3, got %d err %v", next, err)
	}
}

func TestRejectedSignedCallKeepsNonce(t *testing.T) {
	x := newTestExecutor(t, storage.NewMemDB(), nil)
	key, owner := positiveKey(t)
	ctx := context.Background()

	bad := signCall(t, x, key, Call{
		Method: "createCollection",
		Params: mustParams(t, map[string]any{"owner": owner.Hex(), "name": "", "symbol": "HRB", "baseUri": "ipfs://harbor/"}),
	})
	if _, err := x.Submit(ctx, bad); !errors.Is(err, nft.ErrInvalidName) {
		t.Fatalf("expected ErrInvalidName, got %v", err)
	}
	if next, err := x.Nonce(owner); err != nil || next != 0 {
		t.Fatalf("rejected call consumed nonce: %d err %v", next, err)
	}
	good := signCall(t, x, key, Call{
		Method: "createCollection",
		Params: mustParams(t, map[string]any{"owner": owner.Hex(), "name": "Harbor", "symbol": "HRB", "baseUri": "ipfs://harbor/"}),
	})
	if _, err := x.Submit(ctx, good); err != nil {
		t.Fatalf("create: %v", err)
	}
	if next, err := x.Nonce(owner); err != nil || next != 1 {
		t.Fatalf("expected next nonce 1, got %d err %v", next, err)
	}
}

func TestMalformedSignatureRejected(t *testing.T) {
	x := newTestExecutor(t, storage.NewMemDB(), nil)
	_, err := x.Submit(context.Background(), Call{
		Method:     "echoToken",
		Params:     json.RawMessage(`{"tokenId":1}`),
		Signatures: [][]byte{{0x01, 0x02}},
	})
	if !errors.Is(err, crypto.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestSubmitRejectsUnknownMethodAndBadParams(t *testing.T) {
	x := newTestExecutor(t, storage.NewMemDB(), nil)
	if _, err := x.Submit(context.Background(), Call{Method: "selfDestruct"}); !errors.Is(err, ErrUnknownMethod) {
		t.Fatalf("expected ErrUnknownMethod, got %v", err)
	}
	if _, err := x.Submit(context.Background(), Call{Method: "burn", Params: json.RawMessage(`{"operator":"bogus","tokenId":1}`)}); !errors.Is(err, ErrInvalidParams) {
		t.Fatalf("expected ErrInvalidParams, got %v", err)
	}
	if _, err := x.Submit(context.Background(), Call{Method: "burn"}); !errors.Is(err, ErrInvalidParams) {
		t.Fatalf("expected ErrInvalidParams for empty params, got %v", err)
	}
	if _, err := x.Invoke(context.Background(), Call{}, func(*nft.Engine) error { return nil }); !errors.Is(err, ErrNoMethod) {
		t.Fatalf("expected ErrNoMethod, got %v", err)
	}
}

func TestInvokeHonoursCancelledContext(t *testing.T) {
	x := newTestExecutor(t, storage.NewMemDB(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	_, err := x.Invoke(ctx, Call{Method: "noop"}, func(*nft.Engine) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) || called {
		t.Fatalf("expected cancellation before execution, err=%v called=%v", err, called)
	}
}
