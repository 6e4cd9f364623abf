package nft

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"nftledger/core/identity"
)

// TokenIterator walks the global token index, yielding live tokens that
// match its filter. Storage is read lazily on every step; an iterator is
// single-use.
type TokenIterator struct {
	e       *Engine
	owner   int64
	coll    int64
	next    int64
	limit   int64
	current int64
	err     error
}

func (e *Engine) iterate(owner, collectionID int64) *TokenIterator {
	it := &TokenIterator{e: e, owner: owner, coll: collectionID, next: 1}
	if err := e.ready(); err != nil {
		it.err = err
		return it
	}
	it.limit, it.err = e.readInt("read global token counter", keyGlobalTokenCounter)
	return it
}

// Next advances to the next matching token.
func (it *TokenIterator) Next() bool {
	if it == nil || it.err != nil {
		return false
	}
	for it.next <= it.limit {
		idx := it.next
		it.next++
		ok, err := it.match(idx)
		if err != nil {
			it.err = err
			return false
		}
		if ok {
			return true
		}
	}
	it.current = 0
	return false
}

func (it *TokenIterator) match(idx int64) (bool, error) {
	e := it.e
	tokenID, err := e.readInt("read global token index", globalTokenKey(idx))
	if err != nil || tokenID <= 0 {
		return false, err
	}
	r := e.reader()
	collectionID := r.i64(tokenFieldKey(tokenID, tokenFieldCollection))
	owner := r.i64(tokenFieldKey(tokenID, tokenFieldOwner))
	burned := r.flag(tokenFieldKey(tokenID, tokenFieldBurned))
	if r.err != nil {
		return false, integrity("read token", r.err)
	}
	if collectionID <= 0 || burned {
		return false, nil
	}
	if it.owner > 0 && owner != it.owner {
		return false, nil
	}
	if it.coll > 0 && collectionID != it.coll {
		return false, nil
	}
	it.current = tokenID
	return true, nil
}

// TokenID returns the token the iterator is positioned on.
func (it *TokenIterator) TokenID() int64 { return it.current }

// Err returns the first storage fault hit while iterating.
func (it *TokenIterator) Err() error { return it.err }

// Collect drains the iterator.
func (it *TokenIterator) Collect() ([]int64, error) {
	var out []int64
	for it.Next() {
		out = append(out, it.TokenID())
	}
	return out, it.Err()
}

// Tokens iterates every live token in mint order.
func (e *Engine) Tokens() *TokenIterator { return e.iterate(0, 0) }

// TokensOf iterates the live tokens owned by ref. An unknown account yields
// nothing.
func (e *Engine) TokensOf(ref identity.AccountRef) *TokenIterator {
	if e.ready() != nil {
		return e.iterate(0, 0)
	}
	id := e.resolver.Lookup(ref)
	if id <= 0 {
		return &TokenIterator{e: e}
	}
	return e.iterate(id, 0)
}

// CollectionTokens iterates the live tokens of one collection.
func (e *Engine) CollectionTokens(collectionID int64) *TokenIterator {
	if collectionID <= 0 {
		return &TokenIterator{e: e}
	}
	return e.iterate(0, collectionID)
}

// TokenByIndex returns the token recorded at 1-based global index i, burned
// or not, or 0 when i is out of range.
func (e *Engine) TokenByIndex(i int64) (int64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	counter, err := e.readInt("read global token counter", keyGlobalTokenCounter)
	if err != nil {
		return 0, err
	}
	if i <= 0 || i > counter {
		return 0, nil
	}
	return e.readInt("read global token index", globalTokenKey(i))
}

// TokenOfByIndex returns the i-th (1-based) live token owned by ref.
func (e *Engine) TokenOfByIndex(ref identity.AccountRef, i int64) (int64, error) {
	if i <= 0 {
		return 0, ErrInvalidIndex
	}
	it := e.TokensOf(ref)
	for n := int64(1); it.Next(); n++ {
		if n == i {
			return it.TokenID(), nil
		}
	}
	if err := it.Err(); err != nil {
		return 0, err
	}
	return 0, ErrInvalidIndex
}

// CollectionTokenBySerial returns the token minted with serial in the
// collection, or 0.
func (e *Engine) CollectionTokenBySerial(collectionID, serial int64) (int64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	if collectionID <= 0 || serial <= 0 || serial > MaxSerial {
		return 0, nil
	}
	return e.readInt("read collection token index", collectionTokenKey(collectionID, serial))
}

// Symbol returns the ledger-wide token symbol.
func (e *Engine) Symbol() string { return Symbol }

// Decimals is always zero; tokens are indivisible.
func (e *Engine) Decimals() int { return Decimals }

// TotalSupply returns the number of live tokens across all collections.
func (e *Engine) TotalSupply() (int64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	return e.readInt("read total supply", keyTotalSupply)
}

// BalanceOf returns the number of live tokens held by ref.
func (e *Engine) BalanceOf(ref identity.AccountRef) (int64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	id := e.resolver.Lookup(ref)
	if id <= 0 {
		return 0, nil
	}
	return e.balance(id)
}

// OwnerOf returns the owner's address, or the zero address for missing and
// burned tokens.
func (e *Engine) OwnerOf(tokenID int64) (common.Address, error) {
	if err := e.ready(); err != nil {
		return common.Address{}, err
	}
	t, err := e.loadToken(tokenID)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return common.Address{}, nil
		}
		return common.Address{}, err
	}
	if t.Burned {
		return common.Address{}, nil
	}
	return t.Owner, nil
}

// Collection returns the full collection record.
func (e *Engine) Collection(collectionID int64) (*Collection, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.loadCollection(collectionID)
}

// CollectionField returns a single collection field by its numeric code.
// Owner is a common.Address, text fields are strings, flags are bools and
// everything else is int64.
func (e *Engine) CollectionField(collectionID int64, code int) (any, error) {
	c, err := e.Collection(collectionID)
	if err != nil {
		return nil, err
	}
	switch code {
	case CollectionFieldOwner:
		return c.Owner, nil
	case CollectionFieldName:
		return c.Name, nil
	case CollectionFieldSymbol:
		return c.Symbol, nil
	case CollectionFieldDescription:
		return c.Description, nil
	case CollectionFieldBaseURI:
		return c.BaseURI, nil
	case CollectionFieldMaxSupply:
		return c.MaxSupply, nil
	case CollectionFieldMinted:
		return c.Minted, nil
	case CollectionFieldRoyaltyBps:
		return c.RoyaltyBps, nil
	case CollectionFieldTransferable:
		return c.Transferable, nil
	case CollectionFieldPaused:
		return c.Paused, nil
	case CollectionFieldCreatedAt:
		return c.CreatedAt, nil
	}
	return nil, fmt.Errorf("%w: collection field %d", ErrInvalidFieldCode, code)
}

// Token returns the full token record, burned tokens included.
func (e *Engine) Token(tokenID int64) (*Token, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.loadToken(tokenID)
}

// TokenField returns a single token field by its numeric code.
func (e *Engine) TokenField(tokenID int64, code int) (any, error) {
	t, err := e.Token(tokenID)
	if err != nil {
		return nil, err
	}
	switch code {
	case TokenFieldCollectionID:
		return t.CollectionID, nil
	case TokenFieldOwner:
		return t.Owner, nil
	case TokenFieldURI:
		return t.URI, nil
	case TokenFieldProperties:
		return t.Properties, nil
	case TokenFieldBurned:
		return t.Burned, nil
	case TokenFieldMintedAt:
		return t.MintedAt, nil
	case TokenFieldClass:
		return t.Class, nil
	}
	return nil, fmt.Errorf("%w: token field %d", ErrInvalidFieldCode, code)
}

// TokenURI returns the token's metadata URI.
func (e *Engine) TokenURI(tokenID int64) (string, error) {
	t, err := e.Token(tokenID)
	if err != nil {
		return "", err
	}
	return t.URI, nil
}

// Properties returns the descriptive view of a token.
func (e *Engine) Properties(tokenID int64) (TokenProperties, error) {
	t, err := e.Token(tokenID)
	if err != nil {
		return TokenProperties{}, err
	}
	return TokenProperties{
		TokenID:      t.ID,
		CollectionID: t.CollectionID,
		Owner:        t.Owner,
		TokenURI:     t.URI,
		Properties:   t.Properties,
		TokenClass:   t.Class,
	}, nil
}

// Royalties renders the token's royalty recipients as a JSON array. Tokens
// without a royalty yield "[]".
func (e *Engine) Royalties(tokenID int64) (string, error) {
	receiver, bps, err := e.royalty(tokenID)
	if err != nil {
		return "", err
	}
	list := []Royalty{}
	if bps > 0 {
		list = append(list, Royalty{Address: receiver.Hex(), Value: bps})
	}
	out, err := json.Marshal(list)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// RoyaltyInfo computes the royalty owed on a sale: floor(salePrice * bps /
// 10000), paid to the collection owner. ok is false when no royalty applies.
func (e *Engine) RoyaltyInfo(tokenID, salePrice int64) (receiver common.Address, amount int64, ok bool, err error) {
	if salePrice <= 0 {
		return common.Address{}, 0, false, nil
	}
	receiver, bps, err := e.royalty(tokenID)
	if err != nil || bps <= 0 {
		return common.Address{}, 0, false, err
	}
	product := new(uint256.Int).Mul(uint256.NewInt(uint64(salePrice)), uint256.NewInt(uint64(bps)))
	product.Div(product, uint256.NewInt(maxRoyaltyBps))
	return receiver, int64(product.Uint64()), true, nil
}

// royalty returns the collection owner and royalty bps for a token. Missing
// tokens report zero bps.
func (e *Engine) royalty(tokenID int64) (common.Address, int64, error) {
	if err := e.ready(); err != nil {
		return common.Address{}, 0, err
	}
	exists, err := e.tokenExists(tokenID)
	if err != nil || !exists {
		return common.Address{}, 0, err
	}
	r := e.reader()
	collectionID := r.i64(tokenFieldKey(tokenID, tokenFieldCollection))
	bps := r.i64(collectionFieldKey(collectionID, fieldRoyaltyBps))
	owner := r.i64(collectionFieldKey(collectionID, fieldOwner))
	if r.err != nil {
		return common.Address{}, 0, integrity("read royalty", r.err)
	}
	if bps <= 0 || owner <= 0 {
		return common.Address{}, 0, nil
	}
	return e.resolver.AddressOf(owner), bps, nil
}
