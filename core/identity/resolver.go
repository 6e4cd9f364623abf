package identity

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"

	"github.com/ethereum/go-ethereum/common"

	"nftledger/core/state"
)

// AccountKeyPrefix prefixes the persisted id -> address reverse mapping.
const AccountKeyPrefix = "mnr:account:"

// ErrAccountCollision is returned when an address folds to an id whose reverse
// mapping already holds a different address.
var ErrAccountCollision = errors.New("identity: account id already bound to another address")

// Witness confirms that the current call is authorised by addr.
type Witness interface {
	CheckWitness(addr common.Address) bool
}

// WitnessFunc adapts a plain function to the Witness interface.
type WitnessFunc func(addr common.Address) bool

// CheckWitness implements Witness.
func (f WitnessFunc) CheckWitness(addr common.Address) bool {
	if f == nil {
		return false
	}
	return f(addr)
}

// StaticWitness authorises a fixed set of addresses.
type StaticWitness map[common.Address]struct{}

// NewStaticWitness returns a witness that accepts exactly the provided signers.
func NewStaticWitness(signers ...common.Address) StaticWitness {
	w := make(StaticWitness, len(signers))
	for _, s := range signers {
		w[s] = struct{}{}
	}
	return w
}

// CheckWitness implements Witness.
func (w StaticWitness) CheckWitness(addr common.Address) bool {
	_, ok := w[addr]
	return ok
}

// AccountRef names an account either by raw address bytes or by a previously
// issued integer id.
type AccountRef struct {
	raw   []byte
	id    int64
	bytes bool
}

// AddressRef references an account by its 20-byte address.
func AddressRef(addr common.Address) AccountRef {
	return AccountRef{raw: addr.Bytes(), bytes: true}
}

// BytesRef references an account by raw bytes. Only 20-byte inputs resolve.
func BytesRef(b []byte) AccountRef {
	return AccountRef{raw: append([]byte(nil), b...), bytes: true}
}

// IDRef references an account by a previously issued integer id.
func IDRef(id int64) AccountRef {
	return AccountRef{id: id}
}

// IsZero reports whether the reference carries no information.
func (r AccountRef) IsZero() bool {
	return !r.bytes && r.id == 0
}

// Address returns the referenced address when the ref is address-backed.
func (r AccountRef) Address() (common.Address, bool) {
	if !r.bytes || len(r.raw) != common.AddressLength {
		return common.Address{}, false
	}
	return common.BytesToAddress(r.raw), true
}

func (r AccountRef) String() string {
	if addr, ok := r.Address(); ok {
		return addr.Hex()
	}
	if r.bytes {
		return fmt.Sprintf("bytes:%x", r.raw)
	}
	return fmt.Sprintf("id:%d", r.id)
}

// FoldBytes derives a signed 64-bit id from raw address bytes. Inputs of up
// to 8 bytes are loaded little-endian with zero padding; longer inputs are
// hashed with FNV-1a 64 and a zero hash is forced to 1.
func FoldBytes(b []byte) int64 {
	if len(b) == 0 {
		return 0
	}
	if len(b) <= 8 {
		var padded [8]byte
		copy(padded[:], b)
		return int64(binary.LittleEndian.Uint64(padded[:]))
	}
	h := fnv.New64a()
	h.Write(b)
	hash := h.Sum64()
	if hash == 0 {
		hash = 1
	}
	return int64(hash)
}

// AccountKey returns the storage key of the reverse mapping for id.
func AccountKey(id int64) []byte {
	key := make([]byte, 0, len(AccountKeyPrefix)+8)
	key = append(key, AccountKeyPrefix...)
	return append(key, state.EncodeInt(id)...)
}

// Resolver canonicalises account references into stable integer ids.
type Resolver struct {
	codec   *state.Codec
	witness Witness
}

// NewResolver builds a resolver persisting reverse mappings through codec.
// A nil witness rejects every authorisation request.
func NewResolver(codec *state.Codec, witness Witness) *Resolver {
	return &Resolver{codec: codec, witness: witness}
}

// Resolve returns the account id for ref, or 0 when ref carries no usable
// identity. Address-backed refs record their reverse mapping.
func (r *Resolver) Resolve(ref AccountRef) (int64, error) {
	if !ref.bytes {
		if ref.id <= 0 {
			return 0, nil
		}
		return ref.id, nil
	}
	if len(ref.raw) != common.AddressLength {
		return 0, nil
	}
	id := FoldBytes(ref.raw)
	if id <= 0 {
		return 0, nil
	}
	key := AccountKey(id)
	stored, found, err := r.codec.GetBytes(key)
	if err != nil {
		return 0, err
	}
	if found && len(stored) == common.AddressLength {
		if !bytes.Equal(stored, ref.raw) {
			return 0, fmt.Errorf("%w: id %d", ErrAccountCollision, id)
		}
		return id, nil
	}
	if err := r.codec.PutBytes(key, ref.raw); err != nil {
		return 0, err
	}
	return id, nil
}

// Lookup resolves ref without persisting anything. Read paths use it so a
// query never writes.
func (r *Resolver) Lookup(ref AccountRef) int64 {
	if !ref.bytes {
		if ref.id <= 0 {
			return 0
		}
		return ref.id
	}
	if len(ref.raw) != common.AddressLength {
		return 0
	}
	id := FoldBytes(ref.raw)
	if id <= 0 {
		return 0
	}
	return id
}

// AddressOf returns the address bound to id. Ids without a stored mapping
// fall back to their own minimal little-endian encoding, right-aligned into
// 20 bytes. Non-positive ids map to the zero address.
func (r *Resolver) AddressOf(id int64) common.Address {
	if id <= 0 {
		return common.Address{}
	}
	stored, found, err := r.codec.GetBytes(AccountKey(id))
	if err == nil && found && len(stored) == common.AddressLength {
		return common.BytesToAddress(stored)
	}
	return FallbackAddress(id)
}

// HasMapping reports whether id has a persisted reverse mapping.
func (r *Resolver) HasMapping(id int64) bool {
	stored, found, err := r.codec.GetBytes(AccountKey(id))
	return err == nil && found && len(stored) == common.AddressLength
}

// FallbackAddress derives address bytes from the id itself.
func FallbackAddress(id int64) common.Address {
	var out common.Address
	if id <= 0 {
		return out
	}
	src := state.EncodeMinimal(id)
	copy(out[common.AddressLength-len(src):], src)
	return out
}

// Authorize asks the witness whether the caller controls the address ref
// resolves to. Alias ids are only authorised through a stored mapping.
func (r *Resolver) Authorize(ref AccountRef) bool {
	if r == nil || r.witness == nil {
		return false
	}
	if ref.bytes {
		addr, ok := ref.Address()
		if !ok {
			return false
		}
		return r.witness.CheckWitness(addr)
	}
	if ref.id <= 0 {
		return false
	}
	stored, found, err := r.codec.GetBytes(AccountKey(ref.id))
	if err != nil || !found || len(stored) != common.AddressLength {
		return false
	}
	return r.witness.CheckWitness(common.BytesToAddress(stored))
}

// AuthorizeID checks the witness for an already-resolved account id.
func (r *Resolver) AuthorizeID(id int64) bool {
	return r.Authorize(IDRef(id))
}
