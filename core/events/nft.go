package events

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"nftledger/core/state"
	"nftledger/core/types"
)

const (
	// TypeTransfer is emitted on mint (from = nil), burn (to = nil) and transfer.
	TypeTransfer = "Transfer"
	// TypeCollectionUpserted echoes the full collection record after create or update.
	TypeCollectionUpserted = "CollectionUpserted"
	// TypeTokenUpserted echoes the full token record on request.
	TypeTokenUpserted = "TokenUpserted"
	// TypeCollectionOperatorUpdated is emitted when an operator grant changes.
	TypeCollectionOperatorUpdated = "CollectionOperatorUpdated"
	// TypeDropConfigUpdated is emitted when a collection's drop is reconfigured.
	TypeDropConfigUpdated = "DropConfigUpdated"
	// TypeDropWhitelistUpdated is emitted once per whitelist entry written.
	TypeDropWhitelistUpdated = "DropWhitelistUpdated"
	// TypeDropClaimed is emitted for every successful drop claim.
	TypeDropClaimed = "DropClaimed"
	// TypeCheckInProgramUpdated is emitted when a check-in program is reconfigured.
	TypeCheckInProgramUpdated = "CheckInProgramUpdated"
	// TypeCheckedIn is emitted for every successful check-in.
	TypeCheckedIn = "CheckedIn"
)

// ErrMalformedEvent is returned by Decode when positional values do not match
// the layout of the named event.
var ErrMalformedEvent = errors.New("events: malformed event")

// Transfer records a token moving between accounts. Amount is always 1.
type Transfer struct {
	From    *common.Address
	To      *common.Address
	TokenID int64
}

func (Transfer) EventType() string { return TypeTransfer }

func (e Transfer) Event() *types.Event {
	return &types.Event{Type: TypeTransfer, Values: []any{
		accountValue(e.From),
		accountValue(e.To),
		int64(1),
		idValue(e.TokenID),
	}}
}

// CollectionUpserted carries every collection field in storage order.
type CollectionUpserted struct {
	CollectionID int64
	Owner        *common.Address
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
}

func (CollectionUpserted) EventType() string { return TypeCollectionUpserted }

func (e CollectionUpserted) Event() *types.Event {
	return &types.Event{Type: TypeCollectionUpserted, Values: []any{
		idValue(e.CollectionID),
		accountValue(e.Owner),
		e.Name,
		e.Symbol,
		e.Description,
		e.BaseURI,
		e.MaxSupply,
		e.Minted,
		e.RoyaltyBps,
		e.Transferable,
		e.Paused,
		e.CreatedAt,
	}}
}

// TokenUpserted carries every token field.
type TokenUpserted struct {
	TokenID      int64
	CollectionID int64
	Owner        *common.Address
	URI          string
	Properties   string
	Burned       bool
	MintedAt     int64
}

func (TokenUpserted) EventType() string { return TypeTokenUpserted }

func (e TokenUpserted) Event() *types.Event {
	return &types.Event{Type: TypeTokenUpserted, Values: []any{
		idValue(e.TokenID),
		idValue(e.CollectionID),
		accountValue(e.Owner),
		e.URI,
		e.Properties,
		e.Burned,
		e.MintedAt,
	}}
}

// CollectionOperatorUpdated records an operator grant or revocation.
type CollectionOperatorUpdated struct {
	CollectionID int64
	Operator     *common.Address
	Enabled      bool
}

func (CollectionOperatorUpdated) EventType() string { return TypeCollectionOperatorUpdated }

func (e CollectionOperatorUpdated) Event() *types.Event {
	return &types.Event{Type: TypeCollectionOperatorUpdated, Values: []any{
		idValue(e.CollectionID),
		accountValue(e.Operator),
		e.Enabled,
	}}
}

// DropConfigUpdated mirrors the stored drop configuration.
type DropConfigUpdated struct {
	CollectionID      int64
	Enabled           bool
	StartAt           int64
	EndAt             int64
	PerWalletLimit    int64
	WhitelistRequired bool
}

func (DropConfigUpdated) EventType() string { return TypeDropConfigUpdated }

func (e DropConfigUpdated) Event() *types.Event {
	return &types.Event{Type: TypeDropConfigUpdated, Values: []any{
		idValue(e.CollectionID),
		e.Enabled,
		e.StartAt,
		e.EndAt,
		e.PerWalletLimit,
		e.WhitelistRequired,
	}}
}

// DropWhitelistUpdated records one whitelist allowance write.
type DropWhitelistUpdated struct {
	CollectionID int64
	Account      *common.Address
	Allowance    int64
}

func (DropWhitelistUpdated) EventType() string { return TypeDropWhitelistUpdated }

func (e DropWhitelistUpdated) Event() *types.Event {
	return &types.Event{Type: TypeDropWhitelistUpdated, Values: []any{
		idValue(e.CollectionID),
		accountValue(e.Account),
		e.Allowance,
	}}
}

// DropClaimed records a successful claim and the claimer's new claim count.
type DropClaimed struct {
	CollectionID int64
	Claimer      *common.Address
	TokenID      int64
	ClaimedCount int64
}

func (DropClaimed) EventType() string { return TypeDropClaimed }

func (e DropClaimed) Event() *types.Event {
	return &types.Event{Type: TypeDropClaimed, Values: []any{
		idValue(e.CollectionID),
		accountValue(e.Claimer),
		idValue(e.TokenID),
		e.ClaimedCount,
	}}
}

// CheckInProgramUpdated mirrors the stored check-in program.
type CheckInProgramUpdated struct {
	CollectionID         int64
	Enabled              bool
	MembershipRequired   bool
	MembershipSoulbound  bool
	StartAt              int64
	EndAt                int64
	IntervalSeconds      int64
	MaxCheckInsPerWallet int64
	MintProofNFT         bool
}

func (CheckInProgramUpdated) EventType() string { return TypeCheckInProgramUpdated }

func (e CheckInProgramUpdated) Event() *types.Event {
	return &types.Event{Type: TypeCheckInProgramUpdated, Values: []any{
		idValue(e.CollectionID),
		e.Enabled,
		e.MembershipRequired,
		e.MembershipSoulbound,
		e.StartAt,
		e.EndAt,
		e.IntervalSeconds,
		e.MaxCheckInsPerWallet,
		e.MintProofNFT,
	}}
}

// CheckedIn records a successful check-in. ProofTokenID is 0 when no proof
// token was minted and is then emitted as an empty byte string.
type CheckedIn struct {
	CollectionID int64
	Account      *common.Address
	Count        int64
	CheckedAt    int64
	ProofTokenID int64
}

func (CheckedIn) EventType() string { return TypeCheckedIn }

func (e CheckedIn) Event() *types.Event {
	proof := []byte{}
	if e.ProofTokenID > 0 {
		proof = idValue(e.ProofTokenID)
	}
	return &types.Event{Type: TypeCheckedIn, Values: []any{
		idValue(e.CollectionID),
		accountValue(e.Account),
		e.Count,
		e.CheckedAt,
		proof,
	}}
}

// Decode rebuilds the typed event from its positional form.
func Decode(evt *types.Event) (Event, error) {
	if evt == nil {
		return nil, fmt.Errorf("%w: nil event", ErrMalformedEvent)
	}
	d := decoder{values: evt.Values, typ: evt.Type}
	var out Event
	switch evt.Type {
	case TypeTransfer:
		e := Transfer{From: d.account(0), To: d.account(1)}
		if d.integer(2) != 1 {
			d.fail(2)
		}
		e.TokenID = d.id(3)
		out = e
		d.expect(4)
	case TypeCollectionUpserted:
		out = CollectionUpserted{
			CollectionID: d.id(0), Owner: d.account(1), Name: d.text(2), Symbol: d.text(3),
			Description: d.text(4), BaseURI: d.text(5), MaxSupply: d.integer(6), Minted: d.integer(7),
			RoyaltyBps: d.integer(8), Transferable: d.flag(9), Paused: d.flag(10), CreatedAt: d.integer(11),
		}
		d.expect(12)
	case TypeTokenUpserted:
		out = TokenUpserted{
			TokenID: d.id(0), CollectionID: d.id(1), Owner: d.account(2), URI: d.text(3),
			Properties: d.text(4), Burned: d.flag(5), MintedAt: d.integer(6),
		}
		d.expect(7)
	case TypeCollectionOperatorUpdated:
		out = CollectionOperatorUpdated{CollectionID: d.id(0), Operator: d.account(1), Enabled: d.flag(2)}
		d.expect(3)
	case TypeDropConfigUpdated:
		out = DropConfigUpdated{
			CollectionID: d.id(0), Enabled: d.flag(1), StartAt: d.integer(2), EndAt: d.integer(3),
			PerWalletLimit: d.integer(4), WhitelistRequired: d.flag(5),
		}
		d.expect(6)
	case TypeDropWhitelistUpdated:
		out = DropWhitelistUpdated{CollectionID: d.id(0), Account: d.account(1), Allowance: d.integer(2)}
		d.expect(3)
	case TypeDropClaimed:
		out = DropClaimed{CollectionID: d.id(0), Claimer: d.account(1), TokenID: d.id(2), ClaimedCount: d.integer(3)}
		d.expect(4)
	case TypeCheckInProgramUpdated:
		out = CheckInProgramUpdated{
			CollectionID: d.id(0), Enabled: d.flag(1), MembershipRequired: d.flag(2),
			MembershipSoulbound: d.flag(3), StartAt: d.integer(4), EndAt: d.integer(5),
			IntervalSeconds: d.integer(6), MaxCheckInsPerWallet: d.integer(7), MintProofNFT: d.flag(8),
		}
		d.expect(9)
	case TypeCheckedIn:
		out = CheckedIn{
			CollectionID: d.id(0), Account: d.account(1), Count: d.integer(2),
			CheckedAt: d.integer(3), ProofTokenID: d.id(4),
		}
		d.expect(5)
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformedEvent, evt.Type)
	}
	if d.err != nil {
		return nil, d.err
	}
	return out, nil
}

// AccountPtr returns a pointer to addr for use in event fields.
func AccountPtr(addr common.Address) *common.Address {
	return &addr
}

func accountValue(addr *common.Address) any {
	if addr == nil {
		return nil
	}
	return addr.Bytes()
}

func idValue(id int64) []byte {
	return state.EncodeMinimal(id)
}

type decoder struct {
	typ    string
	values []any
	err    error
}

func (d *decoder) fail(i int) {
	if d.err == nil {
		d.err = fmt.Errorf("%w: %s field %d", ErrMalformedEvent, d.typ, i)
	}
}

func (d *decoder) expect(n int) {
	if len(d.values) != n {
		d.fail(n)
	}
}

func (d *decoder) at(i int) (any, bool) {
	if i >= len(d.values) {
		d.fail(i)
		return nil, false
	}
	return d.values[i], true
}

func (d *decoder) account(i int) *common.Address {
	v, ok := d.at(i)
	if !ok || v == nil {
		return nil
	}
	b, ok := v.([]byte)
	if !ok || len(b) != common.AddressLength {
		d.fail(i)
		return nil
	}
	addr := common.BytesToAddress(b)
	return &addr
}

func (d *decoder) id(i int) int64 {
	v, ok := d.at(i)
	if !ok {
		return 0
	}
	b, ok := v.([]byte)
	if !ok {
		d.fail(i)
		return 0
	}
	return state.DecodeMinimal(b)
}

func (d *decoder) integer(i int) int64 {
	v, ok := d.at(i)
	if !ok {
		return 0
	}
	n, ok := v.(int64)
	if !ok {
		d.fail(i)
	}
	return n
}

func (d *decoder) flag(i int) bool {
	v, ok := d.at(i)
	if !ok {
		return false
	}
	b, ok := v.(bool)
	if !ok {
		d.fail(i)
	}
	return b
}

func (d *decoder) text(i int) string {
	v, ok := d.at(i)
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		d.fail(i)
	}
	return s
}
