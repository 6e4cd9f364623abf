package nft

import (
	"math"

	"github.com/ethereum/go-ethereum/common"
)

// TokenClass governs membership accounting and soulbound restrictions.
type TokenClass int64

const (
	ClassStandard     TokenClass = 0
	ClassMembership   TokenClass = 1
	ClassCheckInProof TokenClass = 2
)

// Valid reports whether c is a known token class.
func (c TokenClass) Valid() bool {
	return c >= ClassStandard && c <= ClassCheckInProof
}

func (c TokenClass) String() string {
	switch c {
	case ClassStandard:
		return "standard"
	case ClassMembership:
		return "membership"
	case ClassCheckInProof:
		return "checkin-proof"
	default:
		return "unknown"
	}
}

// Unbounded is reported by remaining-count projections when no cap applies.
const Unbounded int64 = math.MaxInt64

const (
	Symbol   = "MNFTP"
	Decimals = 0

	maxNameLength        = 80
	maxSymbolLength      = 12
	maxDescriptionLength = 512
	maxBaseURILength     = 512
	maxRoyaltyBps        = 10_000

	// MaxWhitelistBatch bounds the entries accepted by SetDropWhitelistBatch.
	MaxWhitelistBatch = 500
)

// Collection is the logical view of a tenant's collection record.
type Collection struct {
	ID           int64
	OwnerID      int64
	Owner        common.Address
	Name         string
	Symbol       string
	Description  string
	BaseURI      string
	MaxSupply    int64
	Minted       int64
	RoyaltyBps   int64
	Transferable bool
	Paused       bool
	CreatedAt    int64
	Serial       int64
}

// CollectionParams carries the creation inputs of a collection.
type CollectionParams struct {
	Name         string
	Symbol       string
	Description  string
	BaseURI      string
	MaxSupply    int64
	RoyaltyBps   int64
	Transferable bool
}

// CollectionUpdate carries the mutable fields of a collection.
type CollectionUpdate struct {
	Description  string
	BaseURI      string
	RoyaltyBps   int64
	Transferable bool
	Paused       bool
}

// Token is the logical view of a token record. Burned tokens keep their
// record as a tombstone.
type Token struct {
	ID           int64
	CollectionID int64
	OwnerID      int64
	Owner        common.Address
	URI          string
	Properties   string
	Burned       bool
	MintedAt     int64
	Class        TokenClass
}

// DropConfig is a collection's self-service minting policy. Zero bounds are
// open on that side; a zero per-wallet limit is unlimited.
type DropConfig struct {
	Enabled           bool
	StartAt           int64
	EndAt             int64
	PerWalletLimit    int64
	WhitelistRequired bool
}

// DropWalletStats summarises one account's drop position. Allowance is -1
// when no whitelist is required.
type DropWalletStats struct {
	Claimed      int64
	Allowance    int64
	Remaining    int64
	ClaimableNow bool
}

// CheckInProgram is a collection's recurring check-in policy.
type CheckInProgram struct {
	Enabled              bool
	MembershipRequired   bool
	MembershipSoulbound  bool
	StartAt              int64
	EndAt                int64
	IntervalSeconds      int64
	MaxCheckInsPerWallet int64
	MintProofNFT         bool
}

// CheckInWalletStats summarises one account's check-in position.
type CheckInWalletStats struct {
	Count         int64
	LastCheckInAt int64
	Remaining     int64
	CanCheckInNow bool
}

// CheckInResult is returned by a successful check-in. ProofTokenID is 0 when
// the program does not mint proofs.
type CheckInResult struct {
	ProofTokenID int64
	Count        int64
	CheckedAt    int64
}

// MembershipStatus reports an account's membership standing in a collection.
type MembershipStatus struct {
	Balance             int64
	IsMember            bool
	MembershipRequired  bool
	MembershipSoulbound bool
}

// TokenProperties is the structured properties view of a token.
type TokenProperties struct {
	TokenID      int64          `json:"tokenId"`
	CollectionID int64          `json:"collectionId"`
	Owner        common.Address `json:"owner"`
	TokenURI     string         `json:"tokenURI"`
	Properties   string         `json:"properties"`
	TokenClass   TokenClass     `json:"tokenClass"`
}

// Royalty is one entry of the royalties listing.
type Royalty struct {
	Address string `json:"address"`
	Value   int64  `json:"value"`
}

// Collection field codes accepted by CollectionField.
const (
	CollectionFieldOwner        = 1
	CollectionFieldName         = 2
	CollectionFieldSymbol       = 3
	CollectionFieldDescription  = 4
	CollectionFieldBaseURI      = 5
	CollectionFieldMaxSupply    = 6
	CollectionFieldMinted       = 7
	CollectionFieldRoyaltyBps   = 8
	CollectionFieldTransferable = 9
	CollectionFieldPaused       = 10
	CollectionFieldCreatedAt    = 11
)

// Token field codes accepted by TokenField.
const (
	TokenFieldCollectionID = 1
	TokenFieldOwner        = 2
	TokenFieldURI          = 3
	TokenFieldProperties   = 4
	TokenFieldBurned       = 5
	TokenFieldMintedAt     = 6
	TokenFieldClass        = 7
)
