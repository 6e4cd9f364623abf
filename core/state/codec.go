package state

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf8"

	"nftledger/storage"
)

// KV is the single-key storage primitive the codec reads and writes through.
type KV interface {
	Get(key []byte) ([]byte, error)
	Put(key []byte, value []byte) error
}

// RefResolver maps legacy integer references to the text they stood for.
// Records persisted before text fields were stored inline hold an 8-byte
// reference instead of UTF-8 bytes.
type RefResolver interface {
	StringRef(ref int64) (string, bool)
}

// Codec performs typed reads and writes of primitive fields. Integers are
// 8-byte little-endian; booleans are integers 0/1; strings are raw UTF-8.
type Codec struct {
	kv   KV
	refs RefResolver
}

// NewCodec returns a codec over kv.
func NewCodec(kv KV) *Codec {
	return &Codec{kv: kv}
}

// SetRefResolver installs the resolver used for legacy text references.
func (c *Codec) SetRefResolver(r RefResolver) { c.refs = r }

// Store exposes the underlying key-value primitive.
func (c *Codec) Store() KV { return c.kv }

// GetBytes returns the raw value stored under key. Absent keys report
// found=false with a nil error.
func (c *Codec) GetBytes(key []byte) ([]byte, bool, error) {
	value, err := c.kv.Get(key)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("state: get %x: %w", key, err)
	}
	return value, true, nil
}

// PutBytes stores value under key verbatim.
func (c *Codec) PutBytes(key, value []byte) error {
	if err := c.kv.Put(key, value); err != nil {
		return fmt.Errorf("state: put %x: %w", key, err)
	}
	return nil
}

// Has reports whether any value is stored under key.
func (c *Codec) Has(key []byte) (bool, error) {
	_, found, err := c.GetBytes(key)
	return found, err
}

// GetInt decodes an 8-byte little-endian integer. Missing or short values
// read as zero.
func (c *Codec) GetInt(key []byte) (int64, error) {
	value, found, err := c.GetBytes(key)
	if err != nil || !found {
		return 0, err
	}
	return DecodeInt(value), nil
}

// PutInt encodes value as 8 little-endian bytes.
func (c *Codec) PutInt(key []byte, value int64) error {
	return c.PutBytes(key, EncodeInt(value))
}

// GetBool reads an integer flag; any non-zero value is true.
func (c *Codec) GetBool(key []byte) (bool, error) {
	v, err := c.GetInt(key)
	return v != 0, err
}

// PutBool stores value as the integer 1 or 0.
func (c *Codec) PutBool(key []byte, value bool) error {
	if value {
		return c.PutInt(key, 1)
	}
	return c.PutInt(key, 0)
}

// GetString reads a UTF-8 text field. Values that are not valid UTF-8 are
// interpreted as a legacy integer reference and resolved through the
// configured RefResolver; unresolved references read as empty.
func (c *Codec) GetString(key []byte) (string, error) {
	value, found, err := c.GetBytes(key)
	if err != nil || !found {
		return "", err
	}
	if utf8.Valid(value) {
		return string(value), nil
	}
	ref := DecodeInt(value)
	if c.refs == nil || ref <= 0 {
		return "", nil
	}
	text, ok := c.refs.StringRef(ref)
	if !ok {
		return "", nil
	}
	return text, nil
}

// PutString stores value as raw UTF-8 bytes.
func (c *Codec) PutString(key []byte, value string) error {
	if !utf8.ValidString(value) {
		return fmt.Errorf("%w: %q", ErrInvalidUTF8, value)
	}
	return c.PutBytes(key, []byte(value))
}

// ErrInvalidUTF8 is returned when a text field is not valid UTF-8.
var ErrInvalidUTF8 = errors.New("state: text is not valid utf-8")

// EncodeInt returns the 8-byte little-endian encoding of v.
func EncodeInt(v int64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(v))
	return buf
}

// DecodeInt reads the first 8 bytes of value as a little-endian integer.
// Shorter inputs decode to zero.
func DecodeInt(value []byte) int64 {
	if len(value) < 8 {
		return 0
	}
	return int64(binary.LittleEndian.Uint64(value[:8]))
}

// RefTable is an in-memory RefResolver used by migrations and tests.
type RefTable map[int64]string

// StringRef implements RefResolver.
func (t RefTable) StringRef(ref int64) (string, bool) {
	s, ok := t[ref]
	return s, ok
}

// EncodeMinimal returns the shortest little-endian two's-complement encoding
// of v. Zero encodes as an empty slice.
func EncodeMinimal(v int64) []byte {
	if v == 0 {
		return []byte{}
	}
	full := EncodeInt(v)
	n := 8
	if v > 0 {
		for n > 1 && full[n-1] == 0x00 && full[n-2]&0x80 == 0 {
			n--
		}
	} else {
		for n > 1 && full[n-1] == 0xff && full[n-2]&0x80 != 0 {
			n--
		}
	}
	return full[:n]
}

// DecodeMinimal reverses EncodeMinimal. Inputs longer than 8 bytes decode to
// zero.
func DecodeMinimal(b []byte) int64 {
	if len(b) == 0 || len(b) > 8 {
		return 0
	}
	buf := make([]byte, 8)
	copy(buf, b)
	if b[len(b)-1]&0x80 != 0 {
		for i := len(b); i < 8; i++ {
			buf[i] = 0xff
		}
	}
	return int64(binary.LittleEndian.Uint64(buf))
}
