package crypto

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// SignatureLength is the size of a recoverable secp256k1 signature.
const SignatureLength = crypto.SignatureLength

var ErrInvalidSignature = errors.New("crypto: invalid signature")

// CallDigest binds a call to its network, method, signer nonce and canonical
// parameters.
func CallDigest(network, method string, nonce uint64, params []byte) []byte {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], nonce)
	return crypto.Keccak256(
		[]byte(network), []byte{0},
		[]byte(method), []byte{0},
		n[:],
		params,
	)
}

// SignatureWitness authorises the addresses that produced valid signatures
// over a call digest.
type SignatureWitness struct {
	signers map[common.Address]struct{}
}

// NewSignatureWitness recovers every signer from sigs. A single malformed
// signature rejects the whole set.
func NewSignatureWitness(digest []byte, sigs [][]byte) (*SignatureWitness, error) {
	w := &SignatureWitness{signers: make(map[common.Address]struct{}, len(sigs))}
	for i, sig := range sigs {
		if len(sig) != SignatureLength {
			return nil, fmt.Errorf("%w: signature %d has %d bytes", ErrInvalidSignature, i, len(sig))
		}
		pub, err := crypto.SigToPub(digest, sig)
		if err != nil {
			return nil, fmt.Errorf("%w: signature %d: %v", ErrInvalidSignature, i, err)
		}
		w.signers[crypto.PubkeyToAddress(*pub)] = struct{}{}
	}
	return w, nil
}

// CheckWitness reports whether addr signed the call.
func (w *SignatureWitness) CheckWitness(addr common.Address) bool {
	if w == nil {
		return false
	}
	_, ok := w.signers[addr]
	return ok
}

// Signers lists the recovered addresses.
func (w *SignatureWitness) Signers() []common.Address {
	out := make([]common.Address, 0, len(w.signers))
	for addr := range w.signers {
		out = append(out, addr)
	}
	return out
}
