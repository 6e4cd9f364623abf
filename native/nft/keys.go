package nft

import (
	"encoding/binary"

	"nftledger/core/identity"
)

// Every key starts with a fixed "mnr:" prefix. Integer components are
// appended as 8-byte little-endian values; per-entity fields end with a
// one-byte field code.
var (
	collectionFieldPrefix  = []byte("mnr:c:")
	collectionSerialPrefix = []byte("mnr:c:serial:")
	collectionTokenPrefix  = []byte("mnr:c:token:")
	tokenFieldPrefix       = []byte("mnr:t:")
	globalTokenPrefix      = []byte("mnr:g:token:")
	balancePrefix          = []byte("mnr:balance:")
	operatorPrefix         = []byte("mnr:operator:")
	ownerCollectionPrefix  = []byte("mnr:owner:collection:")
	dropConfigPrefix       = []byte("mnr:drop:cfg:")
	dropWhitelistPrefix    = []byte("mnr:drop:wl:")
	dropClaimedPrefix      = []byte("mnr:drop:claimed:")
	checkInProgramPrefix   = []byte("mnr:checkin:cfg:")
	checkInWalletPrefix    = []byte("mnr:checkin:wallet:")
	membershipPrefix       = []byte("mnr:membership:balance:")

	keyTotalSupply        = []byte("mnr:total")
	keyCollectionCounter  = []byte("mnr:collection:counter")
	keyGlobalTokenCounter = []byte("mnr:token:global_counter")
)

// TokenSerialFactor separates collections in the token id space:
// tokenID = collectionID*TokenSerialFactor + serial.
const TokenSerialFactor int64 = 1_000_000

// MaxSerial is the largest serial a collection may issue.
const MaxSerial = TokenSerialFactor - 1

// Collection field codes.
const (
	fieldOwner        byte = 0x01
	fieldName         byte = 0x02
	fieldSymbol       byte = 0x03
	fieldDescription  byte = 0x04
	fieldBaseURI      byte = 0x05
	fieldMaxSupply    byte = 0x06
	fieldMinted       byte = 0x07
	fieldRoyaltyBps   byte = 0x08
	fieldTransferable byte = 0x09
	fieldPaused       byte = 0x0A
	fieldCreatedAt    byte = 0x0B
)

// Token field codes.
const (
	tokenFieldCollection byte = 0x11
	tokenFieldOwner      byte = 0x12
	tokenFieldURI        byte = 0x13
	tokenFieldProperties byte = 0x14
	tokenFieldBurned     byte = 0x15
	tokenFieldMintedAt   byte = 0x16
	tokenFieldClass      byte = 0x17
)

// Drop configuration field codes.
const (
	dropFieldEnabled           byte = 0x21
	dropFieldStartAt           byte = 0x22
	dropFieldEndAt             byte = 0x23
	dropFieldPerWalletLimit    byte = 0x24
	dropFieldWhitelistRequired byte = 0x25
)

// Check-in program field codes.
const (
	checkInFieldEnabled             byte = 0x31
	checkInFieldMembershipRequired  byte = 0x32
	checkInFieldMembershipSoulbound byte = 0x33
	checkInFieldStartAt             byte = 0x34
	checkInFieldEndAt               byte = 0x35
	checkInFieldInterval            byte = 0x36
	checkInFieldMaxPerWallet        byte = 0x37
	checkInFieldMintProof           byte = 0x38
)

// Check-in wallet field codes.
const (
	walletFieldCount  byte = 0x41
	walletFieldLastAt byte = 0x42
)

type keyBuilder []byte

func newKey(prefix []byte, extra int) keyBuilder {
	buf := make([]byte, len(prefix), len(prefix)+extra)
	copy(buf, prefix)
	return buf
}

func (k keyBuilder) id(v int64) keyBuilder {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], uint64(v))
	return append(k, tmp[:]...)
}

func (k keyBuilder) sep() keyBuilder { return append(k, ':') }

func (k keyBuilder) field(code byte) keyBuilder { return append(k, code) }

func collectionFieldKey(collectionID int64, field byte) []byte {
	return newKey(collectionFieldPrefix, 9).id(collectionID).field(field)
}

func collectionSerialKey(collectionID int64) []byte {
	return newKey(collectionSerialPrefix, 8).id(collectionID)
}

func collectionTokenKey(collectionID, serial int64) []byte {
	return newKey(collectionTokenPrefix, 17).id(collectionID).sep().id(serial)
}

func tokenFieldKey(tokenID int64, field byte) []byte {
	return newKey(tokenFieldPrefix, 9).id(tokenID).field(field)
}

func globalTokenKey(index int64) []byte {
	return newKey(globalTokenPrefix, 8).id(index)
}

func balanceKey(owner int64) []byte {
	return newKey(balancePrefix, 8).id(owner)
}

func operatorKey(collectionID, operator int64) []byte {
	return newKey(operatorPrefix, 17).id(collectionID).sep().id(operator)
}

func accountKey(accountID int64) []byte {
	return identity.AccountKey(accountID)
}

func ownerCollectionKey(owner int64) []byte {
	return newKey(ownerCollectionPrefix, 8).id(owner)
}

func dropConfigKey(collectionID int64, field byte) []byte {
	return newKey(dropConfigPrefix, 9).id(collectionID).field(field)
}

func dropWhitelistKey(collectionID, account int64) []byte {
	return newKey(dropWhitelistPrefix, 17).id(collectionID).sep().id(account)
}

func dropClaimedKey(collectionID, account int64) []byte {
	return newKey(dropClaimedPrefix, 17).id(collectionID).sep().id(account)
}

func checkInProgramKey(collectionID int64, field byte) []byte {
	return newKey(checkInProgramPrefix, 9).id(collectionID).field(field)
}

func checkInWalletKey(collectionID, account int64, field byte) []byte {
	return newKey(checkInWalletPrefix, 18).id(collectionID).sep().id(account).field(field)
}

func membershipBalanceKey(collectionID, account int64) []byte {
	return newKey(membershipPrefix, 17).id(collectionID).sep().id(account)
}

// ComposeTokenID derives the token id for a collection serial.
func ComposeTokenID(collectionID, serial int64) int64 {
	return collectionID*TokenSerialFactor + serial
}

// SplitTokenID returns the collection id and serial encoded in tokenID.
func SplitTokenID(tokenID int64) (collectionID, serial int64) {
	return tokenID / TokenSerialFactor, tokenID % TokenSerialFactor
}
