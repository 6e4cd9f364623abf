package core

import (
	"encoding/json"
	"errors"
	"fmt"

	"nftledger/core/identity"
	"nftledger/crypto"
	"nftledger/native/nft"
)

var (
	ErrUnknownMethod = errors.New("core: unknown method")
	ErrInvalidParams = errors.New("core: invalid params")
)

type handler func(e *nft.Engine, params json.RawMessage) (any, error)

// Account strings accept hex, bech32 or a decimal account id.
type account string

func (a account) ref() (identity.AccountRef, error) {
	ref, err := crypto.ParseAccountRef(string(a))
	if err != nil {
		return identity.AccountRef{}, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return ref, nil
}

type createCollectionParams struct {
	Owner        account `json:"owner"`
	Name         string  `json:"name"`
	Symbol       string  `json:"symbol"`
	Description  string  `json:"description"`
	BaseURI      string  `json:"baseUri"`
	MaxSupply    int64   `json:"maxSupply"`
	RoyaltyBps   int64   `json:"royaltyBps"`
	Transferable bool    `json:"transferable"`
}

type updateCollectionParams struct {
	Owner        account `json:"owner"`
	CollectionID int64   `json:"collectionId"`
	Description  string  `json:"description"`
	BaseURI      string  `json:"baseUri"`
	RoyaltyBps   int64   `json:"royaltyBps"`
	Transferable bool    `json:"transferable"`
	Paused       bool    `json:"paused"`
}

type operatorParams struct {
	Owner        account `json:"owner"`
	CollectionID int64   `json:"collectionId"`
	Operator     account `json:"operator"`
	Enabled      bool    `json:"enabled"`
}

type mintParams struct {
	Operator     account `json:"operator"`
	CollectionID int64   `json:"collectionId"`
	To           account `json:"to"`
	TokenURI     string  `json:"tokenUri"`
	Properties   string  `json:"properties"`
}

type burnParams struct {
	Operator account `json:"operator"`
	TokenID  int64   `json:"tokenId"`
}

type transferParams struct {
	To      account `json:"to"`
	TokenID int64   `json:"tokenId"`
	Data    []byte  `json:"data"`
}

type dropParams struct {
	Owner             account `json:"owner"`
	CollectionID      int64   `json:"collectionId"`
	Enabled           bool    `json:"enabled"`
	StartAt           int64   `json:"startAt"`
	EndAt             int64   `json:"endAt"`
	PerWalletLimit    int64   `json:"perWalletLimit"`
	WhitelistRequired bool    `json:"whitelistRequired"`
}

type whitelistParams struct {
	Owner        account   `json:"owner"`
	CollectionID int64     `json:"collectionId"`
	Accounts     []account `json:"accounts"`
	Allowances   []int64   `json:"allowances"`
}

type claimParams struct {
	Claimer      account `json:"claimer"`
	CollectionID int64   `json:"collectionId"`
	TokenURI     string  `json:"tokenUri"`
	Properties   string  `json:"properties"`
}

type checkInProgramParams struct {
	Owner                account `json:"owner"`
	CollectionID         int64   `json:"collectionId"`
	Enabled              bool    `json:"enabled"`
	MembershipRequired   bool    `json:"membershipRequired"`
	MembershipSoulbound  bool    `json:"membershipSoulbound"`
	StartAt              int64   `json:"startAt"`
	EndAt                int64   `json:"endAt"`
	IntervalSeconds      int64   `json:"intervalSeconds"`
	MaxCheckInsPerWallet int64   `json:"maxCheckInsPerWallet"`
	MintProofNFT         bool    `json:"mintProofNft"`
}

type tokenParams struct {
	TokenID int64 `json:"tokenId"`
}

func decode[T any](raw json.RawMessage) (T, error) {
	var out T
	if len(raw) == 0 {
		return out, fmt.Errorf("%w: empty", ErrInvalidParams)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return out, nil
}

var methods = map[string]handler{
	"createCollection": func(e *nft.Engine, raw json.RawMessage) (any, error) {
		p, err := decode[createCollectionParams](raw)
		if err != nil {
			return nil, err
		}
		owner, err := p.Owner.ref()
		if err != nil {
			return nil, err
		}
		return e.CreateCollection(owner, nft.CollectionParams{
			Name:         p.Name,
			Symbol:       p.Symbol,
			Description:  p.Description,
			BaseURI:      p.BaseURI,
			MaxSupply:    p.MaxSupply,
			RoyaltyBps:   p.RoyaltyBps,
			Transferable: p.Transferable,
		})
	},
	"updateCollection": func(e *nft.Engine, raw json.RawMessage) (any, error) {
		p, err := decode[updateCollectionParams](raw)
		if err != nil {
			return nil, err
		}
		owner, err := p.Owner.ref()
		if err != nil {
			return nil, err
		}
		return nil, e.UpdateCollection(owner, p.CollectionID, nft.CollectionUpdate{
			Description:  p.Description,
			BaseURI:      p.BaseURI,
			RoyaltyBps:   p.RoyaltyBps,
			Transferable: p.Transferable,
			Paused:       p.Paused,
		})
	},
	"setCollectionOperator": func(e *nft.Engine, raw json.RawMessage) (any, error) {
		p, err := decode[operatorParams](raw)
		if err != nil {
			return nil, err
		}
		owner, err := p.Owner.ref()
		if err != nil {
			return nil, err
		}
		operator, err := p.Operator.ref()
		if err != nil {
			return nil, err
		}
		return nil, e.SetCollectionOperator(owner, p.CollectionID, operator, p.Enabled)
	},
	"mint": func(e *nft.Engine, raw json.RawMessage) (any, error) {
		p, err := decode[mintParams](raw)
		if err != nil {
			return nil, err
		}
		operator, err := p.Operator.ref()
		if err != nil {
			return nil, err
		}
		to, err := p.To.ref()
		if err != nil {
			return nil, err
		}
		return e.Mint(operator, p.CollectionID, to, p.TokenURI, p.Properties)
	},
	"burn": func(e *nft.Engine, raw json.RawMessage) (any, error) {
		p, err := decode[burnParams](raw)
		if err != nil {
			return nil, err
		}
		operator, err := p.Operator.ref()
		if err != nil {
			return nil, err
		}
		return nil, e.Burn(operator, p.TokenID)
	},
	"transfer": func(e *nft.Engine, raw json.RawMessage) (any, error) {
		p, err := decode[transferParams](raw)
		if err != nil {
			return nil, err
		}
		to, err := p.To.ref()
		if err != nil {
			return nil, err
		}
		return true, e.Transfer(to, p.TokenID, p.Data)
	},
	"configureDrop": func(e *nft.Engine, raw json.RawMessage) (any, error) {
		p, err := decode[dropParams](raw)
		if err != nil {
			return nil, err
		}
		owner, err := p.Owner.ref()
		if err != nil {
			return nil, err
		}
		return nil, e.ConfigureDrop(owner, p.CollectionID, nft.DropConfig{
			Enabled:           p.Enabled,
			StartAt:           p.StartAt,
			EndAt:             p.EndAt,
			PerWalletLimit:    p.PerWalletLimit,
			WhitelistRequired: p.WhitelistRequired,
		})
	},
	"setDropWhitelist": func(e *nft.Engine, raw json.RawMessage) (any, error) {
		p, err := decode[whitelistParams](raw)
		if err != nil {
			return nil, err
		}
		owner, err := p.Owner.ref()
		if err != nil {
			return nil, err
		}
		refs := make([]identity.AccountRef, len(p.Accounts))
		for i, a := range p.Accounts {
			if refs[i], err = a.ref(); err != nil {
				return nil, err
			}
		}
		return nil, e.SetDropWhitelistBatch(owner, p.CollectionID, refs, p.Allowances)
	},
	"claimDrop": func(e *nft.Engine, raw json.RawMessage) (any, error) {
		p, err := decode[claimParams](raw)
		if err != nil {
			return nil, err
		}
		claimer, err := p.Claimer.ref()
		if err != nil {
			return nil, err
		}
		return e.ClaimDrop(claimer, p.CollectionID, p.TokenURI, p.Properties)
	},
	"configureCheckIn": func(e *nft.Engine, raw json.RawMessage) (any, error) {
		p, err := decode[checkInProgramParams](raw)
		if err != nil {
			return nil, err
		}
		owner, err := p.Owner.ref()
		if err != nil {
			return nil, err
		}
		return nil, e.ConfigureCheckIn(owner, p.CollectionID, nft.CheckInProgram{
			Enabled:              p.Enabled,
			MembershipRequired:   p.MembershipRequired,
			MembershipSoulbound:  p.MembershipSoulbound,
			StartAt:              p.StartAt,
			EndAt:                p.EndAt,
			IntervalSeconds:      p.IntervalSeconds,
			MaxCheckInsPerWallet: p.MaxCheckInsPerWallet,
			MintProofNFT:         p.MintProofNFT,
		})
	},
	"checkIn": func(e *nft.Engine, raw json.RawMessage) (any, error) {
		p, err := decode[claimParams](raw)
		if err != nil {
			return nil, err
		}
		claimer, err := p.Claimer.ref()
		if err != nil {
			return nil, err
		}
		return e.CheckIn(claimer, p.CollectionID, p.TokenURI, p.Properties)
	},
	"echoToken": func(e *nft.Engine, raw json.RawMessage) (any, error) {
		p, err := decode[tokenParams](raw)
		if err != nil {
			return nil, err
		}
		return nil, e.EchoToken(p.TokenID)
	},
}

// Methods lists the call names Submit accepts.
func Methods() []string {
	out := make([]string, 0, len(methods))
	for name := range methods {
		out = append(out, name)
	}
	return out
}
