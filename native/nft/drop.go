package nft

import (
	"fmt"

	"nftledger/core/events"
	"nftledger/core/identity"
)

func validateWindow(start, end int64) bool {
	if start < 0 || end < 0 {
		return false
	}
	if start > 0 && end > 0 && end <= start {
		return false
	}
	return true
}

// ConfigureDrop replaces a collection's drop policy. Owner only.
func (e *Engine) ConfigureDrop(owner identity.AccountRef, collectionID int64, cfg DropConfig) error {
	if err := e.ready(); err != nil {
		return err
	}
	if !validateWindow(cfg.StartAt, cfg.EndAt) || cfg.PerWalletLimit < 0 {
		return fmt.Errorf("%w: start=%d end=%d perWallet=%d", ErrInvalidDropConfig, cfg.StartAt, cfg.EndAt, cfg.PerWalletLimit)
	}
	if _, err := e.requireOwner(owner, collectionID); err != nil {
		return err
	}
	if err := e.storeDropConfig(collectionID, cfg); err != nil {
		return err
	}
	e.emit(events.DropConfigUpdated{
		CollectionID:      collectionID,
		Enabled:           cfg.Enabled,
		StartAt:           cfg.StartAt,
		EndAt:             cfg.EndAt,
		PerWalletLimit:    cfg.PerWalletLimit,
		WhitelistRequired: cfg.WhitelistRequired,
	})
	return nil
}

// SetDropWhitelist sets one account's claim allowance. Owner only.
func (e *Engine) SetDropWhitelist(owner identity.AccountRef, collectionID int64, account identity.AccountRef, allowance int64) error {
	return e.SetDropWhitelistBatch(owner, collectionID, []identity.AccountRef{account}, []int64{allowance})
}

// SetDropWhitelistBatch sets allowances for parallel lists of accounts. Every
// entry is validated before the first write, so a rejected batch changes
// nothing. One event is emitted per entry.
func (e *Engine) SetDropWhitelistBatch(owner identity.AccountRef, collectionID int64, accounts []identity.AccountRef, allowances []int64) error {
	if err := e.ready(); err != nil {
		return err
	}
	if _, err := e.requireOwner(owner, collectionID); err != nil {
		return err
	}
	if len(accounts) != len(allowances) {
		return fmt.Errorf("%w: %d accounts, %d allowances", ErrWhitelistMismatch, len(accounts), len(allowances))
	}
	if len(accounts) > MaxWhitelistBatch {
		return fmt.Errorf("%w: %d entries", ErrWhitelistTooLarge, len(accounts))
	}
	ids := make([]int64, len(accounts))
	for i, ref := range accounts {
		if allowances[i] < 0 {
			return fmt.Errorf("%w: entry %d", ErrInvalidAllowance, i)
		}
		id := e.resolver.Lookup(ref)
		if id <= 0 {
			return fmt.Errorf("%w: entry %d", ErrInvalidAccount, i)
		}
		ids[i] = id
	}
	for i, ref := range accounts {
		if _, err := e.account(ref); err != nil {
			return err
		}
		if err := e.writeInt("write whitelist allowance", dropWhitelistKey(collectionID, ids[i]), allowances[i]); err != nil {
			return err
		}
		e.emit(events.DropWhitelistUpdated{
			CollectionID: collectionID,
			Account:      e.addressPtr(ids[i]),
			Allowance:    allowances[i],
		})
	}
	return nil
}

// ClaimDrop mints a membership token to the claimer if every drop gate
// passes, and returns the new token id.
func (e *Engine) ClaimDrop(claimer identity.AccountRef, collectionID int64, uri, properties string) (int64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	claimerID, err := e.actor(claimer)
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
	cfg, err := e.loadDropConfig(collectionID)
	if err != nil {
		return 0, err
	}
	claimed, err := e.checkClaim(collectionID, claimerID, cfg)
	if err != nil {
		return 0, err
	}
	tokenID, err := e.mintFor(collectionID, claimerID, uri, properties, ClassMembership)
	if err != nil {
		return 0, err
	}
	next := claimed + 1
	if err := e.writeInt("write claimed count", dropClaimedKey(collectionID, claimerID), next); err != nil {
		return 0, err
	}
	e.emit(events.DropClaimed{
		CollectionID: collectionID,
		Claimer:      e.addressPtr(claimerID),
		TokenID:      tokenID,
		ClaimedCount: next,
	})
	return tokenID, nil
}

// checkClaim applies the drop gates that precede minting and returns the
// account's current claim count. The supply cap is enforced by mintFor.
func (e *Engine) checkClaim(collectionID, accountID int64, cfg DropConfig) (int64, error) {
	if !cfg.Enabled {
		return 0, ErrDropDisabled
	}
	if !windowOpen(e.now(), cfg.StartAt, cfg.EndAt) {
		return 0, ErrDropWindowClosed
	}
	paused, err := e.collectionPaused(collectionID)
	if err != nil {
		return 0, err
	}
	if paused {
		return 0, ErrCollectionPaused
	}
	claimed, err := e.readInt("read claimed count", dropClaimedKey(collectionID, accountID))
	if err != nil {
		return 0, err
	}
	if cfg.PerWalletLimit > 0 && claimed >= cfg.PerWalletLimit {
		return 0, fmt.Errorf("%w: %d of %d", ErrWalletLimitReached, claimed, cfg.PerWalletLimit)
	}
	if cfg.WhitelistRequired {
		allowance, err := e.readInt("read whitelist allowance", dropWhitelistKey(collectionID, accountID))
		if err != nil {
			return 0, err
		}
		if allowance <= 0 || claimed >= allowance {
			return 0, fmt.Errorf("%w: %d of %d", ErrWhitelistExhausted, claimed, allowance)
		}
	}
	return claimed, nil
}

// RemainingDropClaims projects how many more claims accountID could make
// under the active caps. It returns Unbounded when no cap applies and 0 when
// the drop is disabled.
func (e *Engine) RemainingDropClaims(collectionID, accountID int64) (int64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	cfg, err := e.loadDropConfig(collectionID)
	if err != nil {
		return 0, err
	}
	return e.remainingClaims(collectionID, accountID, cfg)
}

func (e *Engine) remainingClaims(collectionID, accountID int64, cfg DropConfig) (int64, error) {
	if !cfg.Enabled {
		return 0, nil
	}
	r := e.reader()
	minted := r.i64(collectionFieldKey(collectionID, fieldMinted))
	maxSupply := r.i64(collectionFieldKey(collectionID, fieldMaxSupply))
	claimed := r.i64(dropClaimedKey(collectionID, accountID))
	allowance := r.i64(dropWhitelistKey(collectionID, accountID))
	if r.err != nil {
		return 0, integrity("read drop caps", r.err)
	}

	remaining := Unbounded
	if maxSupply > 0 {
		if minted >= maxSupply {
			return 0, nil
		}
		remaining = min(remaining, maxSupply-minted)
	}
	if cfg.PerWalletLimit > 0 {
		if claimed >= cfg.PerWalletLimit {
			return 0, nil
		}
		remaining = min(remaining, cfg.PerWalletLimit-claimed)
	}
	if cfg.WhitelistRequired {
		if allowance <= 0 || claimed >= allowance {
			return 0, nil
		}
		remaining = min(remaining, allowance-claimed)
	}
	return remaining, nil
}

// DropConfig returns the stored drop policy of an existing collection.
func (e *Engine) DropConfig(collectionID int64) (DropConfig, error) {
	if err := e.ready(); err != nil {
		return DropConfig{}, err
	}
	if err := e.requireCollection(collectionID); err != nil {
		return DropConfig{}, err
	}
	return e.loadDropConfig(collectionID)
}

// DropWalletStats reports an account's claims, allowance (-1 without a
// whitelist), remaining claims and whether a claim would pass right now.
func (e *Engine) DropWalletStats(collectionID int64, account identity.AccountRef) (DropWalletStats, error) {
	if err := e.ready(); err != nil {
		return DropWalletStats{}, err
	}
	accountID := e.resolver.Lookup(account)
	if accountID <= 0 {
		return DropWalletStats{}, ErrInvalidAccount
	}
	if err := e.requireCollection(collectionID); err != nil {
		return DropWalletStats{}, err
	}
	cfg, err := e.loadDropConfig(collectionID)
	if err != nil {
		return DropWalletStats{}, err
	}
	claimed, err := e.readInt("read claimed count", dropClaimedKey(collectionID, accountID))
	if err != nil {
		return DropWalletStats{}, err
	}
	allowance := int64(-1)
	if cfg.WhitelistRequired {
		if allowance, err = e.readInt("read whitelist allowance", dropWhitelistKey(collectionID, accountID)); err != nil {
			return DropWalletStats{}, err
		}
	}
	remaining, err := e.remainingClaims(collectionID, accountID, cfg)
	if err != nil {
		return DropWalletStats{}, err
	}
	claimable, err := e.claimableNow(collectionID, cfg, remaining)
	if err != nil {
		return DropWalletStats{}, err
	}
	return DropWalletStats{
		Claimed:      claimed,
		Allowance:    allowance,
		Remaining:    remaining,
		ClaimableNow: claimable,
	}, nil
}

// CanClaimDrop reports whether a claim by account would currently succeed.
func (e *Engine) CanClaimDrop(collectionID int64, account identity.AccountRef) (bool, error) {
	stats, err := e.DropWalletStats(collectionID, account)
	if err != nil {
		if IsIntegrity(err) {
			return false, err
		}
		return false, nil
	}
	return stats.ClaimableNow, nil
}

func (e *Engine) claimableNow(collectionID int64, cfg DropConfig, remaining int64) (bool, error) {
	if !cfg.Enabled || !windowOpen(e.now(), cfg.StartAt, cfg.EndAt) {
		return false, nil
	}
	paused, err := e.collectionPaused(collectionID)
	if err != nil || paused {
		return false, err
	}
	return remaining > 0, nil
}

func (e *Engine) requireCollection(collectionID int64) error {
	exists, err := e.collectionExists(collectionID)
	if err != nil {
		return err
	}
	if !exists {
		return ErrCollectionNotFound
	}
	return nil
}
