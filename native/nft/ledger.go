package nft

import (
	"fmt"
	"math"

	"nftledger/core/events"
	"nftledger/core/identity"
)

// Mint issues a membership-class token in collectionID to the recipient.
// The operator must be witnessed and be the owner or an operator of the
// collection.
func (e *Engine) Mint(operator identity.AccountRef, collectionID int64, to identity.AccountRef, uri, properties string) (int64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	operatorID, err := e.actor(operator)
	if err != nil {
		return 0, err
	}
	toID, err := e.account(to)
	if err != nil {
		return 0, err
	}
	exists, err := e.collectionExists(collectionID)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, ErrCollectionNotFound
	}
	ok, err := e.canManage(collectionID, operatorID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrUnauthorized
	}
	return e.mintFor(collectionID, toID, uri, properties, ClassMembership)
}

// mintFor performs the unauthorised mint primitive shared by Mint, drop claims
// and check-in proofs. Validation completes before the first write.
func (e *Engine) mintFor(collectionID, toID int64, uri, properties string, class TokenClass) (int64, error) {
	if toID <= 0 {
		return 0, ErrInvalidAccount
	}
	if !class.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrInvalidTokenClass, class)
	}
	c, err := e.loadCollection(collectionID)
	if err != nil {
		return 0, err
	}
	if c.Paused {
		return 0, ErrCollectionPaused
	}
	if c.MaxSupply > 0 && c.Minted >= c.MaxSupply {
		return 0, fmt.Errorf("%w: %d of %d", ErrMaxSupplyReached, c.Minted, c.MaxSupply)
	}
	serial := c.Serial + 1
	if serial > MaxSerial || collectionID > (math.MaxInt64-MaxSerial)/TokenSerialFactor {
		return 0, fmt.Errorf("%w: collection %d", ErrSerialExhausted, collectionID)
	}
	tokenID := ComposeTokenID(collectionID, serial)
	exists, err := e.tokenExists(tokenID)
	if err != nil {
		return 0, err
	}
	if exists {
		return 0, fmt.Errorf("%w: %d", ErrTokenExists, tokenID)
	}
	// Missing URI/properties fall back to the collection base URI and name.
	if uri == "" {
		uri = c.BaseURI
	}
	if properties == "" {
		properties = c.Name
	}

	w := e.writer()
	w.i64(collectionSerialKey(collectionID), serial)
	w.i64(tokenFieldKey(tokenID, tokenFieldCollection), collectionID)
	w.i64(tokenFieldKey(tokenID, tokenFieldOwner), toID)
	w.text(tokenFieldKey(tokenID, tokenFieldURI), uri)
	w.text(tokenFieldKey(tokenID, tokenFieldProperties), properties)
	w.flag(tokenFieldKey(tokenID, tokenFieldBurned), false)
	w.i64(tokenFieldKey(tokenID, tokenFieldMintedAt), e.now())
	w.i64(tokenFieldKey(tokenID, tokenFieldClass), int64(class))
	w.i64(collectionFieldKey(collectionID, fieldMinted), c.Minted+1)
	if w.err != nil {
		return 0, integrity("write token", w.err)
	}
	if _, err := e.increment("increment balance", balanceKey(toID)); err != nil {
		return 0, err
	}
	if _, err := e.increment("increment total supply", keyTotalSupply); err != nil {
		return 0, err
	}
	if class == ClassMembership {
		if err := e.adjustMembership(collectionID, toID, 1); err != nil {
			return 0, err
		}
	}
	index, err := e.increment("increment global token counter", keyGlobalTokenCounter)
	if err != nil {
		return 0, err
	}
	if err := e.writeInt("write global token index", globalTokenKey(index), tokenID); err != nil {
		return 0, err
	}
	if err := e.writeInt("write collection token index", collectionTokenKey(collectionID, serial), tokenID); err != nil {
		return 0, err
	}
	e.emit(events.Transfer{To: e.addressPtr(toID), TokenID: tokenID})
	return tokenID, nil
}

// Burn tombstones a token. The operator must be the token owner or manage
// its collection. The serial and index slot are never reused.
func (e *Engine) Burn(operator identity.AccountRef, tokenID int64) error {
	if err := e.ready(); err != nil {
		return err
	}
	operatorID, err := e.actor(operator)
	if err != nil {
		return err
	}
	t, err := e.loadToken(tokenID)
	if err != nil {
		return err
	}
	if t.Burned {
		return ErrTokenBurned
	}
	if operatorID != t.OwnerID {
		ok, err := e.canManage(t.CollectionID, operatorID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrUnauthorized
		}
	}
	if err := integrity("write burned flag", e.codec.PutBool(tokenFieldKey(tokenID, tokenFieldBurned), true)); err != nil {
		return err
	}
	if err := e.decrementClamped("decrement balance", balanceKey(t.OwnerID)); err != nil {
		return err
	}
	if err := e.decrementClamped("decrement total supply", keyTotalSupply); err != nil {
		return err
	}
	if t.Class == ClassMembership {
		if err := e.adjustMembership(t.CollectionID, t.OwnerID, -1); err != nil {
			return err
		}
	}
	e.emit(events.Transfer{From: e.addressPtr(t.OwnerID), TokenID: tokenID})
	return nil
}

// Transfer moves a token to a new owner. The witness is checked against the
// token's recorded owner, never the recipient. Sending a token to its
// current owner succeeds without writing or emitting anything. data is
// accepted for interface compatibility and ignored.
func (e *Engine) Transfer(to identity.AccountRef, tokenID int64, data []byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	toID := e.resolver.Lookup(to)
	if toID <= 0 {
		return ErrInvalidAccount
	}
	t, err := e.loadToken(tokenID)
	if err != nil {
		return err
	}
	if t.Burned {
		return ErrTokenBurned
	}
	paused, err := e.collectionPaused(t.CollectionID)
	if err != nil {
		return err
	}
	if paused {
		return ErrCollectionPaused
	}
	transferable, err := e.readInt("read transferable flag", collectionFieldKey(t.CollectionID, fieldTransferable))
	if err != nil {
		return err
	}
	if transferable == 0 {
		return ErrNotTransferable
	}
	if t.Class == ClassMembership {
		soulbound, err := e.soulbound(t.CollectionID)
		if err != nil {
			return err
		}
		if soulbound {
			return ErrSoulbound
		}
	}
	if !e.resolver.AuthorizeID(t.OwnerID) {
		return ErrUnauthorized
	}
	if t.OwnerID == toID {
		return nil
	}
	if _, err := e.account(to); err != nil {
		return err
	}
	if err := e.decrementClamped("decrement sender balance", balanceKey(t.OwnerID)); err != nil {
		return err
	}
	if _, err := e.increment("increment recipient balance", balanceKey(toID)); err != nil {
		return err
	}
	if err := e.writeInt("write token owner", tokenFieldKey(tokenID, tokenFieldOwner), toID); err != nil {
		return err
	}
	if t.Class == ClassMembership {
		if err := e.adjustMembership(t.CollectionID, t.OwnerID, -1); err != nil {
			return err
		}
		if err := e.adjustMembership(t.CollectionID, toID, 1); err != nil {
			return err
		}
	}
	e.emit(events.Transfer{From: e.addressPtr(t.OwnerID), To: e.addressPtr(toID), TokenID: tokenID})
	return nil
}

// EchoToken emits a TokenUpserted event carrying the token's full state.
func (e *Engine) EchoToken(tokenID int64) error {
	if err := e.ready(); err != nil {
		return err
	}
	t, err := e.loadToken(tokenID)
	if err != nil {
		return err
	}
	e.emit(events.TokenUpserted{
		TokenID:      t.ID,
		CollectionID: t.CollectionID,
		Owner:        e.addressPtr(t.OwnerID),
		URI:          t.URI,
		Properties:   t.Properties,
		Burned:       t.Burned,
		MintedAt:     t.MintedAt,
	})
	return nil
}
