package crypto

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"nftledger/core/identity"
)

// AddressPrefix is the human-readable part of a bech32 account address.
type AddressPrefix string

// NFTPrefix is the only prefix the ledger issues or accepts.
const NFTPrefix AddressPrefix = "nft"

var ErrInvalidAddress = errors.New("crypto: invalid address")

// Address is an account address paired with its bech32 prefix.
type Address struct {
	prefix AddressPrefix
	addr   common.Address
}

// FromCommon wraps an account address with the ledger prefix.
func FromCommon(addr common.Address) Address {
	return Address{prefix: NFTPrefix, addr: addr}
}

// String renders the bech32 form, e.g. nft1qy...
func (a Address) String() string {
	conv, err := bech32.ConvertBits(a.addr.Bytes(), 8, 5, true)
	if err != nil {
		return a.addr.Hex()
	}
	encoded, err := bech32.Encode(string(a.prefix), conv)
	if err != nil {
		return a.addr.Hex()
	}
	return encoded
}

func (a Address) Bytes() []byte { return a.addr.Bytes() }

func (a Address) Prefix() AddressPrefix { return a.prefix }

// Common returns the address as a go-ethereum address.
func (a Address) Common() common.Address { return a.addr }

// DecodeAddress parses a bech32 address carrying NFTPrefix.
func DecodeAddress(s string) (Address, error) {
	hrp, data, err := bech32.Decode(s)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if AddressPrefix(hrp) != NFTPrefix {
		return Address{}, fmt.Errorf("%w: prefix %q", ErrInvalidAddress, hrp)
	}
	raw, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(raw) != common.AddressLength {
		return Address{}, fmt.Errorf("%w: %d bytes", ErrInvalidAddress, len(raw))
	}
	return FromCommon(common.BytesToAddress(raw)), nil
}

// ParseAccountRef accepts a 0x-prefixed hex address, a bech32 address or a
// decimal account id.
func ParseAccountRef(s string) (identity.AccountRef, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return identity.AccountRef{}, fmt.Errorf("%w: empty", ErrInvalidAddress)
	case strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X"):
		if !common.IsHexAddress(s) {
			return identity.AccountRef{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
		}
		return identity.AddressRef(common.HexToAddress(s)), nil
	case strings.HasPrefix(s, string(NFTPrefix)+"1"):
		addr, err := DecodeAddress(s)
		if err != nil {
			return identity.AccountRef{}, err
		}
		return identity.AddressRef(addr.Common()), nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return identity.AccountRef{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return identity.IDRef(id), nil
}

// PrivateKey is a secp256k1 signer key.
type PrivateKey struct {
	*ecdsa.PrivateKey
}

type PublicKey struct {
	*ecdsa.PublicKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Bytes returns the 32-byte scalar.
func (k *PrivateKey) Bytes() []byte {
	return crypto.FromECDSA(k.PrivateKey)
}

func (k *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{&k.PrivateKey.PublicKey}
}

// Sign produces a 65-byte recoverable signature over a 32-byte digest.
func (k *PrivateKey) Sign(digest []byte) ([]byte, error) {
	return crypto.Sign(digest, k.PrivateKey)
}

func (k *PublicKey) Address() Address {
	return FromCommon(crypto.PubkeyToAddress(*k.PublicKey))
}
