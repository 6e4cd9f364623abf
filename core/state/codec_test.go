package state

import (
	"errors"
	"testing"

	"nftledger/storage"
)

func TestCodecIntRoundTripAndDefaults(t *testing.T) {
	c := NewCodec(storage.NewMemDB())
	key := []byte("k")

	v, err := c.GetInt(key)
	if err != nil || v != 0 {
		t.Fatalf("missing key: got %d, %v", v, err)
	}
	if err := c.PutInt(key, -42); err != nil {
		t.Fatalf("put: %v", err)
	}
	v, err = c.GetInt(key)
	if err != nil || v != -42 {
		t.Fatalf("expected -42, got %d (%v)", v, err)
	}
	raw, _, _ := c.GetBytes(key)
	if len(raw) != 8 || raw[0] != 0xd6 || raw[7] != 0xff {
		t.Fatalf("unexpected little-endian encoding %x", raw)
	}
}

func TestCodecShortValueReadsZero(t *testing.T) {
	db := storage.NewMemDB()
	_ = db.Put([]byte("k"), []byte{1, 2, 3})
	c := NewCodec(db)
	if v, _ := c.GetInt([]byte("k")); v != 0 {
		t.Fatalf("short value should decode to 0, got %d", v)
	}
	if b, _ := c.GetBool([]byte("k")); b {
		t.Fatalf("short value should decode to false")
	}
}

func TestCodecBool(t *testing.T) {
	c := NewCodec(storage.NewMemDB())
	if err := c.PutBool([]byte("b"), true); err != nil {
		t.Fatalf("put: %v", err)
	}
	if v, _ := c.GetInt([]byte("b")); v != 1 {
		t.Fatalf("true should persist as 1, got %d", v)
	}
	_ = c.PutBool([]byte("b"), false)
	if b, _ := c.GetBool([]byte("b")); b {
		t.Fatalf("expected false")
	}
}

func TestCodecStringLegacyRefFallback(t *testing.T) {
	db := storage.NewMemDB()
	c := NewCodec(db)
	if err := c.PutString([]byte("s"), "hello"); err != nil {
		t.Fatalf("put: %v", err)
	}
	if s, _ := c.GetString([]byte("s")); s != "hello" {
		t.Fatalf("expected hello, got %q", s)
	}

	legacy := EncodeInt(-7)
	legacy[0] = 0xff
	_ = db.Put([]byte("legacy"), EncodeInt(int64(0x00000000ff00ff07)))
	c.SetRefResolver(RefTable{0x00000000ff00ff07: "resolved"})
	if s, _ := c.GetString([]byte("legacy")); s != "resolved" {
		t.Fatalf("expected legacy ref to resolve, got %q", s)
	}
	_ = db.Put([]byte("legacy2"), legacy)
	if s, _ := c.GetString([]byte("legacy2")); s != "" {
		t.Fatalf("unresolved ref should read empty, got %q", s)
	}
}

func TestCodecRejectsInvalidUTF8(t *testing.T) {
	c := NewCodec(storage.NewMemDB())
	err := c.PutString([]byte("s"), string([]byte{0xff, 0xfe}))
	if !errors.Is(err, ErrInvalidUTF8) {
		t.Fatalf("expected ErrInvalidUTF8, got %v", err)
	}
}

type brokenKV struct{}

func (brokenKV) Get([]byte) ([]byte, error) { return nil, errors.New("disk gone") }
func (brokenKV) Put([]byte, []byte) error  { return errors.New("disk gone") }

func TestCodecPropagatesStoreErrors(t *testing.T) {
	c := NewCodec(brokenKV{})
	if _, err := c.GetInt([]byte("k")); err == nil {
		t.Fatalf("expected read error")
	}
	if err := c.PutInt([]byte("k"), 1); err == nil {
		t.Fatalf("expected write error")
	}
}

func TestMinimalEncoding(t *testing.T) {
	cases := []struct {
		v    int64
		want []byte
	}{
		{0, []byte{}},
		{1, []byte{0x01}},
		{127, []byte{0x7f}},
		{128, []byte{0x80, 0x00}},
		{255, []byte{0xff, 0x00}},
		{256, []byte{0x00, 0x01}},
		{-1, []byte{0xff}},
		{-128, []byte{0x80}},
		{-129, []byte{0x7f, 0xff}},
		{1_000_001, []byte{0x41, 0x42, 0x0f}},
	}
	for _, tc := range cases {
		got := EncodeMinimal(tc.v)
		if string(got) != string(tc.want) {
			t.Fatalf("EncodeMinimal(%d) = %x, want %x", tc.v, got, tc.want)
		}
		if back := DecodeMinimal(got); back != tc.v {
			t.Fatalf("DecodeMinimal(%x) = %d, want %d", got, back, tc.v)
		}
	}
}
