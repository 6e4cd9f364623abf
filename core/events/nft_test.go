package events

import (
	"errors"
	"reflect"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"nftledger/core/types"
)

func TestTransferFieldOrder(t *testing.T) {
	to := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	evt := Transfer{To: &to, TokenID: 1_000_001}.Event()
	if evt.Type != "Transfer" {
		t.Fatalf("unexpected type %s", evt.Type)
	}
	if len(evt.Values) != 4 {
		t.Fatalf("expected 4 values, got %d", len(evt.Values))
	}
	if evt.Values[0] != nil {
		t.Fatalf("mint transfer must carry a nil sender")
	}
	if got := evt.Values[1].([]byte); len(got) != 20 || got[19] != 0xaa {
		t.Fatalf("unexpected recipient bytes %x", got)
	}
	if evt.Values[2] != int64(1) {
		t.Fatalf("amount must be 1, got %v", evt.Values[2])
	}
	if got := evt.Values[3].([]byte); !reflect.DeepEqual(got, []byte{0x41, 0x42, 0x0f}) {
		t.Fatalf("token id should be minimal little-endian, got %x", got)
	}
}

func TestCheckedInEmptyProof(t *testing.T) {
	evt := CheckedIn{CollectionID: 2, Count: 1, CheckedAt: 10}.Event()
	proof, ok := evt.Values[4].([]byte)
	if !ok || len(proof) != 0 {
		t.Fatalf("expected empty proof bytes, got %#v", evt.Values[4])
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	owner := common.HexToAddress("0x0102030405060708090a0b0c0d0e0f1011121314")
	cases := []Event{
		Transfer{From: &owner, TokenID: 2_000_003},
		CollectionUpserted{CollectionID: 3, Owner: &owner, Name: "n", Symbol: "S", BaseURI: "ipfs://x", MaxSupply: 3, RoyaltyBps: 500, Transferable: true, CreatedAt: 99},
		TokenUpserted{TokenID: 3_000_001, CollectionID: 3, Owner: &owner, URI: "u", Properties: "p", MintedAt: 7},
		CollectionOperatorUpdated{CollectionID: 1, Operator: &owner, Enabled: true},
		DropConfigUpdated{CollectionID: 1, Enabled: true, StartAt: 5, EndAt: 10, PerWalletLimit: 2},
		DropWhitelistUpdated{CollectionID: 1, Account: &owner, Allowance: 4},
		DropClaimed{CollectionID: 1, Claimer: &owner, TokenID: 1_000_002, ClaimedCount: 2},
		CheckInProgramUpdated{CollectionID: 1, Enabled: true, IntervalSeconds: 3600, MintProofNFT: true},
		CheckedIn{CollectionID: 1, Account: &owner, Count: 3, CheckedAt: 3600, ProofTokenID: 1_000_004},
	}
	for _, want := range cases {
		got, err := Decode(want.Event())
		if err != nil {
			t.Fatalf("decode %s: %v", want.EventType(), err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("%s mismatch:\n got %#v\nwant %#v", want.EventType(), got, want)
		}
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	_, err := Decode(&types.Event{Type: TypeDropClaimed, Values: []any{[]byte{1}, nil, "oops", int64(1)}})
	if !errors.Is(err, ErrMalformedEvent) {
		t.Fatalf("expected ErrMalformedEvent, got %v", err)
	}
	_, err = Decode(&types.Event{Type: "Unknown"})
	if !errors.Is(err, ErrMalformedEvent) {
		t.Fatalf("expected ErrMalformedEvent for unknown type, got %v", err)
	}
}

func TestRecorderKeepsOrder(t *testing.T) {
	var rec Recorder
	rec.Emit(DropClaimed{ClaimedCount: 1})
	rec.Emit(nil)
	rec.Emit(DropClaimed{ClaimedCount: 2})
	got := rec.Events()
	if len(got) != 2 || got[1].(DropClaimed).ClaimedCount != 2 {
		t.Fatalf("unexpected recorder contents %#v", got)
	}
	rec.Reset()
	if rec.Len() != 0 {
		t.Fatalf("reset should clear events")
	}
}
