package core

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/ethereum/go-ethereum/common"

	"nftledger/storage"
)

var ErrNonceMismatch = errors.New("core: signer nonce mismatch")

var noncePrefix = []byte("sig:nonce:")

type nonceStore interface {
	Get(key []byte) ([]byte, error)
	Put(key []byte, value []byte) error
}

func nonceKey(addr common.Address) []byte {
	key := make([]byte, 0, len(noncePrefix)+common.AddressLength)
	key = append(key, noncePrefix...)
	return append(key, addr.Bytes()...)
}

// readNonce returns the next nonce addr must sign with. Unseen signers start
// at zero.
func readNonce(kv nonceStore, addr common.Address) (uint64, error) {
	raw, err := kv.Get(nonceKey(addr))
	if err != nil {
		if storage.IsNotFound(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read nonce %s: %w", addr.Hex(), err)
	}
	if len(raw) != 8 {
		return 0, fmt.Errorf("corrupt nonce %s (%d bytes)", addr.Hex(), len(raw))
	}
	return binary.BigEndian.Uint64(raw), nil
}

// checkNonces requires every signer's next nonce to equal nonce.
func checkNonces(kv nonceStore, signers []common.Address, nonce uint64) error {
	if len(signers) > 0 && nonce == math.MaxUint64 {
		return fmt.Errorf("%w: nonce space exhausted", ErrNonceMismatch)
	}
	for _, addr := range signers {
		next, err := readNonce(kv, addr)
		if err != nil {
			return err
		}
		if next != nonce {
			return fmt.Errorf("%w: %s expects %d, call carries %d", ErrNonceMismatch, addr.Hex(), next, nonce)
		}
	}
	return nil
}

// consumeNonces advances every signer past nonce.
func consumeNonces(kv nonceStore, signers []common.Address, nonce uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], nonce+1)
	for _, addr := range signers {
		if err := kv.Put(nonceKey(addr), buf[:]); err != nil {
			return fmt.Errorf("write nonce %s: %w", addr.Hex(), err)
		}
	}
	return nil
}

func sortedSigners(signers []common.Address) []common.Address {
	out := slices.Clone(signers)
	slices.SortFunc(out, func(a, b common.Address) int { return bytes.Compare(a[:], b[:]) })
	return out
}
