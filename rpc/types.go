package rpc

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"nftledger/core"
	"nftledger/core/eventlog"
	"nftledger/core/types"
	"nftledger/crypto"
	"nftledger/native/nft"
)

type errorBody struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

// AccountView renders an address in both hex and bech32 form.
type AccountView struct {
	Hex    string `json:"hex"`
	Bech32 string `json:"bech32"`
}

func accountView(addr common.Address) AccountView {
	return AccountView{Hex: addr.Hex(), Bech32: crypto.FromCommon(addr).String()}
}

type CollectionResponse struct {
	ID           int64       `json:"id"`
	Owner        AccountView `json:"owner"`
	Name         string      `json:"name"`
	Symbol       string      `json:"symbol"`
	Description  string      `json:"description"`
	BaseURI      string      `json:"baseUri"`
	MaxSupply    int64       `json:"maxSupply"`
	Minted       int64       `json:"minted"`
	RoyaltyBps   int64       `json:"royaltyBps"`
	Transferable bool        `json:"transferable"`
	Paused       bool        `json:"paused"`
	CreatedAt    int64       `json:"createdAt"`
}

func collectionResponse(c *nft.Collection) CollectionResponse {
	return CollectionResponse{
		ID:           c.ID,
		Owner:        accountView(c.Owner),
		Name:         c.Name,
		Symbol:       c.Symbol,
		Description:  c.Description,
		BaseURI:      c.BaseURI,
		MaxSupply:    c.MaxSupply,
		Minted:       c.Minted,
		RoyaltyBps:   c.RoyaltyBps,
		Transferable: c.Transferable,
		Paused:       c.Paused,
		CreatedAt:    c.CreatedAt,
	}
}

type TokenResponse struct {
	ID           int64       `json:"id"`
	CollectionID int64       `json:"collectionId"`
	Owner        AccountView `json:"owner"`
	TokenURI     string      `json:"tokenUri"`
	Properties   string      `json:"properties"`
	Burned       bool        `json:"burned"`
	MintedAt     int64       `json:"mintedAt"`
	Class        string      `json:"class"`
}

type WalletResponse struct {
	Account             AccountView `json:"account"`
	Balance             int64       `json:"balance"`
	DedicatedCollection int64       `json:"dedicatedCollection,omitempty"`
	Tokens              []int64     `json:"tokens"`
}

type DropConfigResponse struct {
	Enabled           bool  `json:"enabled"`
	StartAt           int64 `json:"startAt"`
	EndAt             int64 `json:"endAt"`
	PerWalletLimit    int64 `json:"perWalletLimit"`
	WhitelistRequired bool  `json:"whitelistRequired"`
}

type DropStatsResponse struct {
	Claimed      int64 `json:"claimed"`
	Allowance    int64 `json:"allowance"`
	Remaining    int64 `json:"remaining"`
	ClaimableNow bool  `json:"claimableNow"`
}

type CheckInProgramResponse struct {
	Enabled              bool  `json:"enabled"`
	MembershipRequired   bool  `json:"membershipRequired"`
	MembershipSoulbound  bool  `json:"membershipSoulbound"`
	StartAt              int64 `json:"startAt"`
	EndAt                int64 `json:"endAt"`
	IntervalSeconds      int64 `json:"intervalSeconds"`
	MaxCheckInsPerWallet int64 `json:"maxCheckInsPerWallet"`
	MintProofNFT         bool  `json:"mintProofNft"`
}

type CheckInStatsResponse struct {
	Count         int64 `json:"count"`
	LastCheckInAt int64 `json:"lastCheckInAt"`
	Remaining     int64 `json:"remaining"`
	CanCheckInNow bool  `json:"canCheckInNow"`
}

type MembershipResponse struct {
	Balance             int64 `json:"balance"`
	IsMember            bool  `json:"isMember"`
	MembershipRequired  bool  `json:"membershipRequired"`
	MembershipSoulbound bool  `json:"membershipSoulbound"`
}

type RoyaltyInfoResponse struct {
	Receiver AccountView `json:"receiver"`
	Amount   int64       `json:"amount"`
}

type MetaResponse struct {
	Network     string `json:"network"`
	Symbol      string `json:"symbol"`
	Decimals    int    `json:"decimals"`
	TotalSupply int64  `json:"totalSupply"`
	LogHead     uint64 `json:"logHead"`
}

type EventResponse struct {
	Seq    uint64 `json:"seq"`
	CallID string `json:"callId"`
	Time   int64  `json:"time"`
	Type   string `json:"type"`
	Values []any  `json:"values"`
}

func eventResponse(rec eventlog.Record) EventResponse {
	return EventResponse{Seq: rec.Seq, CallID: rec.CallID, Time: rec.Time, Type: rec.Event.Type, Values: eventValues(rec.Event)}
}

// eventValues renders raw byte values as 0x-hex.
func eventValues(evt *types.Event) []any {
	values := make([]any, len(evt.Values))
	for i, v := range evt.Values {
		if b, ok := v.([]byte); ok {
			values[i] = hexutil.Encode(b)
			continue
		}
		values[i] = v
	}
	return values
}

// CallRequest is the body of POST /v1/calls. Signatures are 0x-hex
// secp256k1 signatures over the call digest, which binds Nonce.
type CallRequest struct {
	ID         string          `json:"id,omitempty"`
	Method     string          `json:"method"`
	Params     json.RawMessage `json:"params"`
	Nonce      uint64          `json:"nonce"`
	Signatures []string        `json:"signatures"`
}

type NonceResponse struct {
	Account AccountView `json:"account"`
	Nonce   uint64      `json:"nonce"`
}

type CallResponse struct {
	CallID  string          `json:"callId"`
	LastSeq uint64          `json:"lastSeq"`
	Events  []EventResponse `json:"events"`
	Value   any             `json:"value,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

var errBadRequest = errors.New("bad request")

// writeError maps ledger errors onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusUnprocessableEntity
	reason := nft.Reason(err)
	switch {
	case nft.IsIntegrity(err):
		status = http.StatusInternalServerError
		writeJSON(w, status, errorBody{Error: "internal error", Reason: "integrity"})
		return
	case errors.Is(err, nft.ErrCollectionNotFound), errors.Is(err, nft.ErrTokenNotFound), errors.Is(err, errNotFound):
		status = http.StatusNotFound
	case errors.Is(err, nft.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, core.ErrNonceMismatch):
		status = http.StatusConflict
		reason = "nonce_mismatch"
	case errors.Is(err, errBadRequest), errors.Is(err, core.ErrUnknownMethod), errors.Is(err, core.ErrInvalidParams),
		errors.Is(err, core.ErrNoMethod), errors.Is(err, crypto.ErrInvalidSignature), errors.Is(err, crypto.ErrInvalidAddress),
		errors.Is(err, nft.ErrInvalidFieldCode), errors.Is(err, nft.ErrInvalidIndex):
		status = http.StatusBadRequest
	case reason == "":
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, errorBody{Error: err.Error(), Reason: reason})
}
