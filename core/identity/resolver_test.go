package identity

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"nftledger/core/state"
	"nftledger/storage"
)

func newTestResolver(w Witness) (*Resolver, *storage.MemDB) {
	db := storage.NewMemDB()
	return NewResolver(state.NewCodec(db), w), db
}

func TestFoldBytesShortInputIsLittleEndian(t *testing.T) {
	if got := FoldBytes([]byte{0x01, 0x02}); got != 0x0201 {
		t.Fatalf("expected 0x0201, got %#x", got)
	}
	if got := FoldBytes(nil); got != 0 {
		t.Fatalf("empty input should fold to 0, got %d", got)
	}
}

// Standard FNV-1a 64-bit parameters.
const (
	fnvOffsetBasis uint64 = 14695981039346656037
	fnvPrime       uint64 = 1099511628211
)

func TestFoldBytesMatchesFNV1a(t *testing.T) {
	addr := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	hash := fnvOffsetBasis
	for _, b := range addr.Bytes() {
		hash ^= uint64(b)
		hash *= fnvPrime
	}
	if got := FoldBytes(addr.Bytes()); got != int64(hash) {
		t.Fatalf("fold mismatch: got %d want %d", got, int64(hash))
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	r, _ := newTestResolver(nil)
	addr := findPositiveAddress(t)
	first, err := r.Resolve(AddressRef(addr))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	second, err := r.Resolve(AddressRef(addr))
	if err != nil {
		t.Fatalf("resolve again: %v", err)
	}
	if first != second || first <= 0 {
		t.Fatalf("expected stable positive id, got %d and %d", first, second)
	}
	if got := r.AddressOf(first); got != addr {
		t.Fatalf("reverse mapping mismatch: %s", got.Hex())
	}
	if r.Lookup(AddressRef(addr)) != first {
		t.Fatalf("lookup should agree with resolve")
	}
}

func TestResolvePassesThroughAliases(t *testing.T) {
	r, db := newTestResolver(nil)
	id, err := r.Resolve(IDRef(77))
	if err != nil || id != 77 {
		t.Fatalf("expected pass-through 77, got %d (%v)", id, err)
	}
	if db.Len() != 0 {
		t.Fatalf("alias resolution must not write")
	}
	if id, _ := r.Resolve(IDRef(-3)); id != 0 {
		t.Fatalf("non-positive alias should resolve to 0")
	}
	if id, _ := r.Resolve(BytesRef([]byte{1, 2, 3})); id != 0 {
		t.Fatalf("short byte refs should resolve to 0")
	}
}

func TestResolveRejectsNegativeFold(t *testing.T) {
	r, db := newTestResolver(nil)
	addr := findNegativeAddress(t)
	id, err := r.Resolve(AddressRef(addr))
	if err != nil || id != 0 {
		t.Fatalf("expected 0 for negative fold, got %d (%v)", id, err)
	}
	if db.Len() != 0 {
		t.Fatalf("invalid identity must not persist a mapping")
	}
}

func TestResolveDetectsCollision(t *testing.T) {
	r, db := newTestResolver(nil)
	addr := findPositiveAddress(t)
	id := FoldBytes(addr.Bytes())
	other := common.HexToAddress("0x1111111111111111111111111111111111111111")
	if err := db.Put(AccountKey(id), other.Bytes()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := r.Resolve(AddressRef(addr)); !errors.Is(err, ErrAccountCollision) {
		t.Fatalf("expected collision error, got %v", err)
	}
}

func TestAddressOfFallback(t *testing.T) {
	r, _ := newTestResolver(nil)
	got := r.AddressOf(0x0102)
	want := common.Address{}
	want[18] = 0x02
	want[19] = 0x01
	if got != want {
		t.Fatalf("fallback mismatch: %x", got)
	}
	if r.AddressOf(0) != (common.Address{}) {
		t.Fatalf("zero id should map to zero address")
	}
}

func TestAuthorizeFailsClosed(t *testing.T) {
	addr := findPositiveAddress(t)
	r, _ := newTestResolver(NewStaticWitness(addr))

	if !r.Authorize(AddressRef(addr)) {
		t.Fatalf("witnessed address should authorise")
	}
	id := FoldBytes(addr.Bytes())
	if r.Authorize(IDRef(id)) {
		t.Fatalf("alias without mapping must not authorise")
	}
	if _, err := r.Resolve(AddressRef(addr)); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !r.AuthorizeID(id) {
		t.Fatalf("alias with mapping should authorise")
	}
	stranger := common.HexToAddress("0x2222222222222222222222222222222222222222")
	if r.Authorize(AddressRef(stranger)) {
		t.Fatalf("unwitnessed address must not authorise")
	}
	var nilResolver *Resolver
	if nilResolver.Authorize(AddressRef(addr)) {
		t.Fatalf("nil resolver must fail closed")
	}
}

func findPositiveAddress(t *testing.T) common.Address {
	t.Helper()
	for i := 1; i < 256; i++ {
		var addr common.Address
		addr[0] = byte(i)
		addr[19] = 0x42
		if FoldBytes(addr.Bytes()) > 0 {
			return addr
		}
	}
	t.Fatalf("no positive address found")
	return common.Address{}
}

func findNegativeAddress(t *testing.T) common.Address {
	t.Helper()
	for i := 1; i < 256; i++ {
		var addr common.Address
		addr[0] = byte(i)
		addr[19] = 0x42
		if FoldBytes(addr.Bytes()) < 0 {
			return addr
		}
	}
	t.Fatalf("no negative address found")
	return common.Address{}
}
