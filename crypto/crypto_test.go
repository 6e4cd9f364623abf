package crypto

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestAddressRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)
	addr := key.PubKey().Address()
	require.Equal(t, NFTPrefix, addr.Prefix())

	decoded, err := DecodeAddress(addr.String())
	require.NoError(t, err)
	require.Equal(t, addr.Bytes(), decoded.Bytes())

	conv, err := bech32.ConvertBits(addr.Bytes(), 8, 5, true)
	require.NoError(t, err)
	foreign, err := bech32.Encode("eth", conv)
	require.NoError(t, err)
	_, err = DecodeAddress(foreign)
	require.ErrorIs(t, err, ErrInvalidAddress)
}

func TestParseAccountRef(t *testing.T) {
	hexAddr := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	ref, err := ParseAccountRef(hexAddr.Hex())
	require.NoError(t, err)
	got, ok := ref.Address()
	require.True(t, ok)
	require.Equal(t, hexAddr, got)

	ref, err = ParseAccountRef(FromCommon(hexAddr).String())
	require.NoError(t, err)
	got, ok = ref.Address()
	require.True(t, ok)
	require.Equal(t, hexAddr, got)

	ref, err = ParseAccountRef("42")
	require.NoError(t, err)
	_, ok = ref.Address()
	require.False(t, ok)

	for _, bad := range []string{"", "0x1234", "nft1notvalid", "abc"} {
		_, err := ParseAccountRef(bad)
		require.Error(t, err, bad)
	}
}

func TestSignatureWitness(t *testing.T) {
	alice, err := GeneratePrivateKey()
	require.NoError(t, err)
	bob, err := GeneratePrivateKey()
	require.NoError(t, err)

	digest := CallDigest("testnet", "mint", 0, []byte(`{"collectionId":1}`))
	sig, err := alice.Sign(digest)
	require.NoError(t, err)

	w, err := NewSignatureWitness(digest, [][]byte{sig})
	require.NoError(t, err)
	require.True(t, w.CheckWitness(alice.PubKey().Address().Common()))
	require.False(t, w.CheckWitness(bob.PubKey().Address().Common()))
	require.Len(t, w.Signers(), 1)

	// A signature over a different digest recovers a different signer.
	other := CallDigest("mainnet", "mint", 0, []byte(`{"collectionId":1}`))
	w, err = NewSignatureWitness(other, [][]byte{sig})
	require.NoError(t, err)
	require.False(t, w.CheckWitness(alice.PubKey().Address().Common()))

	// The nonce is part of the digest.
	next := CallDigest("testnet", "mint", 1, []byte(`{"collectionId":1}`))
	require.NotEqual(t, digest, next)
	w, err = NewSignatureWitness(next, [][]byte{sig})
	require.NoError(t, err)
	require.False(t, w.CheckWitness(alice.PubKey().Address().Common()))

	_, err = NewSignatureWitness(digest, [][]byte{sig[:10]})
	require.True(t, errors.Is(err, ErrInvalidSignature))

	var nilWitness *SignatureWitness
	require.False(t, nilWitness.CheckWitness(common.Address{}))
}

func TestKeystoreRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "keys", "signer.json")

	require.NoError(t, SaveToKeystore(path, key, "hunter2", LightKeystore))
	loaded, err := LoadFromKeystore(path, "hunter2")
	require.NoError(t, err)
	require.Equal(t, key.Bytes(), loaded.Bytes())

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	_, err = LoadFromKeystore(path, "wrong")
	require.ErrorIs(t, err, ErrWrongPassphrase)
	_, err = LoadFromKeystore("", "x")
	require.Error(t, err)
}
