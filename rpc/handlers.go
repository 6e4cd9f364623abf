package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi/v5"

	"nftledger/core"
	"nftledger/core/identity"
	"nftledger/crypto"
	"nftledger/native/nft"
)

const defaultEventLimit = 100

var (
	errNotFound        = errors.New("not found")
	errIndexerDisabled = errors.New("listing routes require the indexer")
)

func pathInt(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: %s %q", errBadRequest, name, raw)
	}
	return v, nil
}

func queryInt(r *http.Request, name string, fallback int64) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: %s %q", errBadRequest, name, raw)
	}
	return v, nil
}

func pathAccount(r *http.Request) (identity.AccountRef, error) {
	return crypto.ParseAccountRef(chi.URLParam(r, "account"))
}

func (s *Server) requireIndexer(w http.ResponseWriter) bool {
	if s.index == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: errIndexerDisabled.Error(), Reason: "indexer_disabled"})
		return false
	}
	return true
}

// view evaluates fn against committed state and writes its result.
func (s *Server) view(w http.ResponseWriter, r *http.Request, fn func(*nft.Engine) (any, error)) {
	var out any
	err := s.exec.View(r.Context(), func(e *nft.Engine) error {
		var err error
		out, err = fn(e)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleMeta(w http.ResponseWriter, r *http.Request) {
	head, err := s.exec.Log().Head()
	if err != nil {
		writeError(w, err)
		return
	}
	s.view(w, r, func(e *nft.Engine) (any, error) {
		supply, err := e.TotalSupply()
		if err != nil {
			return nil, err
		}
		return MetaResponse{
			Network:     s.exec.Network(),
			Symbol:      e.Symbol(),
			Decimals:    e.Decimals(),
			TotalSupply: supply,
			LogHead:     head,
		}, nil
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	after, err := queryInt(r, "after", 0)
	if err != nil {
		writeError(w, err)
		return
	}
	limit, err := queryInt(r, "limit", defaultEventLimit)
	if err != nil {
		writeError(w, err)
		return
	}
	if limit == 0 || limit > 1000 {
		limit = defaultEventLimit
	}
	records, err := s.exec.Log().Read(uint64(after), int(limit))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]EventResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, eventResponse(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req CallRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	call := core.Call{ID: req.ID, Method: req.Method, Params: req.Params, Nonce: req.Nonce}
	for i, raw := range req.Signatures {
		sig, err := hexutil.Decode(raw)
		if err != nil {
			writeError(w, fmt.Errorf("%w: signature %d: %v", crypto.ErrInvalidSignature, i, err))
			return
		}
		call.Signatures = append(call.Signatures, sig)
	}
	res, err := s.exec.Submit(r.Context(), call)
	if err != nil {
		writeError(w, err)
		return
	}
	out := CallResponse{CallID: res.CallID, LastSeq: res.LastSeq, Value: res.Value, Events: make([]EventResponse, 0, len(res.Events))}
	first := res.LastSeq - uint64(len(res.Events)) + 1
	for i, evt := range res.Events {
		rendered := evt.Event()
		out.Events = append(out.Events, EventResponse{
			Seq:    first + uint64(i),
			CallID: res.CallID,
			Type:   rendered.Type,
			Values: eventValues(rendered),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleNonce(w http.ResponseWriter, r *http.Request) {
	ref, err := pathAccount(r)
	if err != nil {
		writeError(w, err)
		return
	}
	addr, ok := ref.Address()
	if !ok {
		writeError(w, fmt.Errorf("%w: nonces are kept per address", errBadRequest))
		return
	}
	nonce, err := s.exec.Nonce(addr)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, NonceResponse{Account: accountView(addr), Nonce: nonce})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if !s.requireIndexer(w) {
		return
	}
	stats, err := s.index.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleListCollections(w http.ResponseWriter, r *http.Request) {
	if !s.requireIndexer(w) {
		return
	}
	owner := ""
	if raw := r.URL.Query().Get("owner"); raw != "" {
		ref, err := crypto.ParseAccountRef(raw)
		if err != nil {
			writeError(w, err)
			return
		}
		addr, ok := ref.Address()
		if !ok {
			writeError(w, fmt.Errorf("%w: owner must be an address", errBadRequest))
			return
		}
		owner = addr.Hex()
	}
	rows, err := s.index.Collections(r.Context(), owner)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleCollection(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "collectionID")
	if err != nil {
		writeError(w, err)
		return
	}
	s.view(w, r, func(e *nft.Engine) (any, error) {
		c, err := e.Collection(id)
		if err != nil {
			return nil, err
		}
		return collectionResponse(c), nil
	})
}

func (s *Server) handleCollectionTokens(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "collectionID")
	if err != nil {
		writeError(w, err)
		return
	}
	s.view(w, r, func(e *nft.Engine) (any, error) {
		if _, err := e.Collection(id); err != nil {
			return nil, err
		}
		ids, err := e.CollectionTokens(id).Collect()
		if err != nil {
			return nil, err
		}
		if ids == nil {
			ids = []int64{}
		}
		return ids, nil
	})
}

func (s *Server) handleCollectionSerial(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "collectionID")
	if err != nil {
		writeError(w, err)
		return
	}
	serial, err := pathInt(r, "serial")
	if err != nil {
		writeError(w, err)
		return
	}
	s.view(w, r, func(e *nft.Engine) (any, error) {
		tokenID, err := e.CollectionTokenBySerial(id, serial)
		if err != nil {
			return nil, err
		}
		if tokenID == 0 {
			return nil, fmt.Errorf("%w: serial %d", errNotFound, serial)
		}
		return map[string]int64{"tokenId": tokenID}, nil
	})
}

func (s *Server) handleOperator(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "collectionID")
	if err != nil {
		writeError(w, err)
		return
	}
	ref, err := pathAccount(r)
	if err != nil {
		writeError(w, err)
		return
	}
	s.view(w, r, func(e *nft.Engine) (any, error) {
		ok, err := e.IsCollectionOperator(id, ref)
		if err != nil {
			return nil, err
		}
		return map[string]bool{"operator": ok}, nil
	})
}

func (s *Server) handleDropConfig(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "collectionID")
	if err != nil {
		writeError(w, err)
		return
	}
	s.view(w, r, func(e *nft.Engine) (any, error) {
		if _, err := e.Collection(id); err != nil {
			return nil, err
		}
		cfg, err := e.DropConfig(id)
		if err != nil {
			return nil, err
		}
		return DropConfigResponse(cfg), nil
	})
}

func (s *Server) handleDropStats(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "collectionID")
	if err != nil {
		writeError(w, err)
		return
	}
	ref, err := pathAccount(r)
	if err != nil {
		writeError(w, err)
		return
	}
	s.view(w, r, func(e *nft.Engine) (any, error) {
		stats, err := e.DropWalletStats(id, ref)
		if err != nil {
			return nil, err
		}
		return DropStatsResponse(stats), nil
	})
}

func (s *Server) handleCheckInProgram(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "collectionID")
	if err != nil {
		writeError(w, err)
		return
	}
	s.view(w, r, func(e *nft.Engine) (any, error) {
		if _, err := e.Collection(id); err != nil {
			return nil, err
		}
		p, err := e.CheckInProgram(id)
		if err != nil {
			return nil, err
		}
		return CheckInProgramResponse(p), nil
	})
}

func (s *Server) handleCheckInStats(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "collectionID")
	if err != nil {
		writeError(w, err)
		return
	}
	ref, err := pathAccount(r)
	if err != nil {
		writeError(w, err)
		return
	}
	s.view(w, r, func(e *nft.Engine) (any, error) {
		stats, err := e.CheckInWalletStats(id, ref)
		if err != nil {
			return nil, err
		}
		return CheckInStatsResponse(stats), nil
	})
}

func (s *Server) handleCheckIns(w http.ResponseWriter, r *http.Request) {
	if !s.requireIndexer(w) {
		return
	}
	id, err := pathInt(r, "collectionID")
	if err != nil {
		writeError(w, err)
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, err)
		return
	}
	rows, err := s.index.CheckIns(r.Context(), id, int(limit))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleMembership(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "collectionID")
	if err != nil {
		writeError(w, err)
		return
	}
	ref, err := pathAccount(r)
	if err != nil {
		writeError(w, err)
		return
	}
	s.view(w, r, func(e *nft.Engine) (any, error) {
		status, err := e.MembershipStatus(id, ref)
		if err != nil {
			return nil, err
		}
		return MembershipResponse(status), nil
	})
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "tokenID")
	if err != nil {
		writeError(w, err)
		return
	}
	s.view(w, r, func(e *nft.Engine) (any, error) {
		t, err := e.Token(id)
		if err != nil {
			return nil, err
		}
		return TokenResponse{
			ID:           t.ID,
			CollectionID: t.CollectionID,
			Owner:        accountView(t.Owner),
			TokenURI:     t.URI,
			Properties:   t.Properties,
			Burned:       t.Burned,
			MintedAt:     t.MintedAt,
			Class:        t.Class.String(),
		}, nil
	})
}

func (s *Server) handleRoyalties(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "tokenID")
	if err != nil {
		writeError(w, err)
		return
	}
	s.view(w, r, func(e *nft.Engine) (any, error) {
		raw, err := e.Royalties(id)
		if err != nil {
			return nil, err
		}
		return json.RawMessage(raw), nil
	})
}

func (s *Server) handleRoyaltyInfo(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "tokenID")
	if err != nil {
		writeError(w, err)
		return
	}
	price, err := queryInt(r, "salePrice", 0)
	if err != nil {
		writeError(w, err)
		return
	}
	s.view(w, r, func(e *nft.Engine) (any, error) {
		receiver, amount, ok, err := e.RoyaltyInfo(id, price)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: no royalty for token %d", errNotFound, id)
		}
		return RoyaltyInfoResponse{Receiver: accountView(receiver), Amount: amount}, nil
	})
}

func (s *Server) handleTokenTransfers(w http.ResponseWriter, r *http.Request) {
	if !s.requireIndexer(w) {
		return
	}
	id, err := pathInt(r, "tokenID")
	if err != nil {
		writeError(w, err)
		return
	}
	rows, err := s.index.Transfers(r.Context(), id, 0)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleTransfers(w http.ResponseWriter, r *http.Request) {
	if !s.requireIndexer(w) {
		return
	}
	tokenID, err := queryInt(r, "tokenId", 0)
	if err != nil {
		writeError(w, err)
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, err)
		return
	}
	rows, err := s.index.Transfers(r.Context(), tokenID, int(limit))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleWallet(w http.ResponseWriter, r *http.Request) {
	ref, err := pathAccount(r)
	if err != nil {
		writeError(w, err)
		return
	}
	s.view(w, r, func(e *nft.Engine) (any, error) {
		balance, err := e.BalanceOf(ref)
		if err != nil {
			return nil, err
		}
		dedicated, err := e.OwnerDedicatedCollection(ref)
		if err != nil {
			return nil, err
		}
		tokens, err := e.TokensOf(ref).Collect()
		if err != nil {
			return nil, err
		}
		if tokens == nil {
			tokens = []int64{}
		}
		addr, ok := ref.Address()
		if !ok {
			addr = e.Resolver().AddressOf(e.Resolver().Lookup(ref))
		}
		return WalletResponse{
			Account:             accountView(addr),
			Balance:             balance,
			DedicatedCollection: dedicated,
			Tokens:              tokens,
		}, nil
	})
}
