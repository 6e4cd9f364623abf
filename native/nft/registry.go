package nft

import (
	"fmt"

	"nftledger/core/events"
	"nftledger/core/identity"
)

func validateCollectionParams(p CollectionParams) error {
	if p.MaxSupply < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidMaxSupply, p.MaxSupply)
	}
	if p.RoyaltyBps < 0 || p.RoyaltyBps > maxRoyaltyBps {
		return fmt.Errorf("%w: %d", ErrInvalidRoyalty, p.RoyaltyBps)
	}
	if len(p.Name) == 0 || len(p.Name) > maxNameLength {
		return fmt.Errorf("%w: length %d", ErrInvalidName, len(p.Name))
	}
	if len(p.Symbol) == 0 || len(p.Symbol) > maxSymbolLength {
		return fmt.Errorf("%w: length %d", ErrInvalidSymbol, len(p.Symbol))
	}
	if len(p.Description) > maxDescriptionLength {
		return fmt.Errorf("%w: length %d", ErrInvalidDescription, len(p.Description))
	}
	if len(p.BaseURI) == 0 || len(p.BaseURI) > maxBaseURILength {
		return fmt.Errorf("%w: length %d", ErrInvalidBaseURI, len(p.BaseURI))
	}
	return nil
}

// CreateCollection registers a new collection owned by owner and returns its
// id. Each owner may hold a single dedicated collection.
func (e *Engine) CreateCollection(owner identity.AccountRef, p CollectionParams) (int64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	if err := validateCollectionParams(p); err != nil {
		return 0, err
	}
	ownerID, err := e.actor(owner)
	if err != nil {
		return 0, err
	}
	existing, err := e.readInt("read owner collection", ownerCollectionKey(ownerID))
	if err != nil {
		return 0, err
	}
	if existing > 0 {
		return 0, fmt.Errorf("%w: collection %d", ErrOwnerHasCollection, existing)
	}
	counter, err := e.readInt("read collection counter", keyCollectionCounter)
	if err != nil {
		return 0, err
	}
	id := counter + 1

	w := e.writer()
	w.i64(keyCollectionCounter, id)
	w.i64(collectionFieldKey(id, fieldOwner), ownerID)
	w.text(collectionFieldKey(id, fieldName), p.Name)
	w.text(collectionFieldKey(id, fieldSymbol), p.Symbol)
	w.text(collectionFieldKey(id, fieldDescription), p.Description)
	w.text(collectionFieldKey(id, fieldBaseURI), p.BaseURI)
	w.i64(collectionFieldKey(id, fieldMaxSupply), p.MaxSupply)
	w.i64(collectionFieldKey(id, fieldMinted), 0)
	w.i64(collectionFieldKey(id, fieldRoyaltyBps), p.RoyaltyBps)
	w.flag(collectionFieldKey(id, fieldTransferable), p.Transferable)
	w.flag(collectionFieldKey(id, fieldPaused), false)
	w.i64(collectionFieldKey(id, fieldCreatedAt), e.now())
	w.i64(collectionSerialKey(id), 0)
	w.i64(ownerCollectionKey(ownerID), id)
	if w.err != nil {
		return 0, integrity("create collection", w.err)
	}
	if err := e.emitCollectionUpserted(id); err != nil {
		return 0, err
	}
	return id, nil
}

// UpdateCollection rewrites the mutable fields of a collection. Only the
// recorded owner may update; operators may not.
func (e *Engine) UpdateCollection(owner identity.AccountRef, collectionID int64, u CollectionUpdate) error {
	if err := e.ready(); err != nil {
		return err
	}
	if u.RoyaltyBps < 0 || u.RoyaltyBps > maxRoyaltyBps {
		return fmt.Errorf("%w: %d", ErrInvalidRoyalty, u.RoyaltyBps)
	}
	if _, err := e.requireOwner(owner, collectionID); err != nil {
		return err
	}
	if len(u.Description) > maxDescriptionLength {
		return fmt.Errorf("%w: length %d", ErrInvalidDescription, len(u.Description))
	}
	if len(u.BaseURI) > maxBaseURILength {
		return fmt.Errorf("%w: length %d", ErrInvalidBaseURI, len(u.BaseURI))
	}
	w := e.writer()
	w.text(collectionFieldKey(collectionID, fieldDescription), u.Description)
	w.text(collectionFieldKey(collectionID, fieldBaseURI), u.BaseURI)
	w.i64(collectionFieldKey(collectionID, fieldRoyaltyBps), u.RoyaltyBps)
	w.flag(collectionFieldKey(collectionID, fieldTransferable), u.Transferable)
	w.flag(collectionFieldKey(collectionID, fieldPaused), u.Paused)
	if w.err != nil {
		return integrity("update collection", w.err)
	}
	return e.emitCollectionUpserted(collectionID)
}

// SetCollectionOperator grants or revokes delegated mint/burn rights.
func (e *Engine) SetCollectionOperator(owner identity.AccountRef, collectionID int64, operator identity.AccountRef, enabled bool) error {
	if err := e.ready(); err != nil {
		return err
	}
	operatorID, err := e.account(operator)
	if err != nil {
		return err
	}
	if _, err := e.requireOwner(owner, collectionID); err != nil {
		return err
	}
	if err := integrity("write operator grant", e.codec.PutBool(operatorKey(collectionID, operatorID), enabled)); err != nil {
		return err
	}
	e.emit(events.CollectionOperatorUpdated{
		CollectionID: collectionID,
		Operator:     e.addressPtr(operatorID),
		Enabled:      enabled,
	})
	return nil
}

// CanManage reports whether actorID owns the collection or holds an active
// operator grant for it.
func (e *Engine) CanManage(collectionID, actorID int64) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	if collectionID <= 0 || actorID <= 0 {
		return false, nil
	}
	return e.canManage(collectionID, actorID)
}

// IsCollectionOperator reports whether ref holds an operator grant.
func (e *Engine) IsCollectionOperator(collectionID int64, ref identity.AccountRef) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	id := e.resolver.Lookup(ref)
	if collectionID <= 0 || id <= 0 {
		return false, nil
	}
	v, err := e.readInt("read operator grant", operatorKey(collectionID, id))
	return v != 0, err
}

// OwnerDedicatedCollection returns the collection bound to ref, or 0.
func (e *Engine) OwnerDedicatedCollection(ref identity.AccountRef) (int64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	id := e.resolver.Lookup(ref)
	if id <= 0 {
		return 0, nil
	}
	cid, err := e.readInt("read owner collection", ownerCollectionKey(id))
	if err != nil || cid <= 0 {
		return 0, err
	}
	return cid, nil
}

// HasOwnerDedicatedCollection reports whether ref already owns a collection.
func (e *Engine) HasOwnerDedicatedCollection(ref identity.AccountRef) (bool, error) {
	cid, err := e.OwnerDedicatedCollection(ref)
	return cid > 0, err
}

// requireOwner authorises ref and checks it is the collection's recorded
// owner. Operator grants do not satisfy this check.
func (e *Engine) requireOwner(ref identity.AccountRef, collectionID int64) (int64, error) {
	actorID, err := e.actor(ref)
	if err != nil {
		return 0, err
	}
	if collectionID <= 0 {
		return 0, ErrCollectionNotFound
	}
	owner, err := e.readInt("read collection owner", collectionFieldKey(collectionID, fieldOwner))
	if err != nil {
		return 0, err
	}
	if owner <= 0 {
		return 0, ErrCollectionNotFound
	}
	if owner != actorID {
		return 0, ErrUnauthorized
	}
	return actorID, nil
}

func (e *Engine) emitCollectionUpserted(collectionID int64) error {
	c, err := e.loadCollection(collectionID)
	if err != nil {
		return integrity("echo collection", err)
	}
	e.emit(events.CollectionUpserted{
		CollectionID: c.ID,
		Owner:        e.addressPtr(c.OwnerID),
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
	})
	return nil
}
