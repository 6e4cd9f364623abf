package nft

import (
	"fmt"
	"math"

	"nftledger/core/events"
	"nftledger/core/identity"
)

// ConfigureCheckIn replaces a collection's check-in program. Owner only.
func (e *Engine) ConfigureCheckIn(owner identity.AccountRef, collectionID int64, p CheckInProgram) error {
	if err := e.ready(); err != nil {
		return err
	}
	if !validateWindow(p.StartAt, p.EndAt) || p.IntervalSeconds < 0 || p.MaxCheckInsPerWallet < 0 {
		return fmt.Errorf("%w: start=%d end=%d interval=%d max=%d",
			ErrInvalidCheckInConfig, p.StartAt, p.EndAt, p.IntervalSeconds, p.MaxCheckInsPerWallet)
	}
	if _, err := e.requireOwner(owner, collectionID); err != nil {
		return err
	}
	if err := e.storeCheckInProgram(collectionID, p); err != nil {
		return err
	}
	e.emit(events.CheckInProgramUpdated{
		CollectionID:         collectionID,
		Enabled:              p.Enabled,
		MembershipRequired:   p.MembershipRequired,
		MembershipSoulbound:  p.MembershipSoulbound,
		StartAt:              p.StartAt,
		EndAt:                p.EndAt,
		IntervalSeconds:      p.IntervalSeconds,
		MaxCheckInsPerWallet: p.MaxCheckInsPerWallet,
		MintProofNFT:         p.MintProofNFT,
	})
	return nil
}

// CheckIn records a check-in for the witnessed claimer and, when the program
// asks for it, mints a proof token. A stats write failing after the proof
// mint is reported as ErrFatal.
func (e *Engine) CheckIn(claimer identity.AccountRef, collectionID int64, uri, properties string) (CheckInResult, error) {
	if err := e.ready(); err != nil {
		return CheckInResult{}, err
	}
	claimerID, err := e.actor(claimer)
	if err != nil {
		return CheckInResult{}, err
	}
	if err := e.requireCollection(collectionID); err != nil {
		return CheckInResult{}, err
	}
	p, err := e.loadCheckInProgram(collectionID)
	if err != nil {
		return CheckInResult{}, err
	}
	count, _, err := e.checkInGate(collectionID, claimerID, p)
	if err != nil {
		return CheckInResult{}, err
	}

	var proof int64
	if p.MintProofNFT {
		if proof, err = e.mintFor(collectionID, claimerID, uri, properties, ClassCheckInProof); err != nil {
			return CheckInResult{}, err
		}
	}
	now := e.now()
	next := saturatingAdd(count, 1)
	if err := e.storeWalletStats(collectionID, claimerID, next, now); err != nil {
		return CheckInResult{}, fmt.Errorf("%w: persist check-in stats: %w", ErrFatal, err)
	}
	e.emit(events.CheckedIn{
		CollectionID: collectionID,
		Account:      e.addressPtr(claimerID),
		Count:        next,
		CheckedAt:    now,
		ProofTokenID: proof,
	})
	return CheckInResult{ProofTokenID: proof, Count: next, CheckedAt: now}, nil
}

// checkInGate runs the eligibility checks shared by CheckIn and the read
// paths, and returns the wallet's stored count and last check-in time.
func (e *Engine) checkInGate(collectionID, accountID int64, p CheckInProgram) (count, lastAt int64, err error) {
	if !p.Enabled {
		return 0, 0, ErrCheckInDisabled
	}
	now := e.now()
	if !windowOpen(now, p.StartAt, p.EndAt) {
		return 0, 0, ErrCheckInWindowClosed
	}
	paused, err := e.collectionPaused(collectionID)
	if err != nil {
		return 0, 0, err
	}
	if paused {
		return 0, 0, ErrCollectionPaused
	}
	if p.MembershipRequired {
		balance, err := e.membershipBalance(collectionID, accountID)
		if err != nil {
			return 0, 0, err
		}
		if balance <= 0 {
			return 0, 0, ErrMembershipRequired
		}
	}
	count, lastAt, err = e.loadWalletStats(collectionID, accountID)
	if err != nil {
		return 0, 0, err
	}
	if p.MaxCheckInsPerWallet > 0 && count >= p.MaxCheckInsPerWallet {
		return count, lastAt, fmt.Errorf("%w: %d of %d", ErrCheckInLimitReached, count, p.MaxCheckInsPerWallet)
	}
	if p.IntervalSeconds > 0 && count > 0 {
		if lastAt > math.MaxInt64-p.IntervalSeconds {
			return count, lastAt, fmt.Errorf("%w: interval overflows", ErrCheckInTooSoon)
		}
		if now < lastAt+p.IntervalSeconds {
			return count, lastAt, fmt.Errorf("%w: next at %d", ErrCheckInTooSoon, lastAt+p.IntervalSeconds)
		}
	}
	return count, lastAt, nil
}

// CheckInProgram returns the stored program of an existing collection.
func (e *Engine) CheckInProgram(collectionID int64) (CheckInProgram, error) {
	if err := e.ready(); err != nil {
		return CheckInProgram{}, err
	}
	if err := e.requireCollection(collectionID); err != nil {
		return CheckInProgram{}, err
	}
	return e.loadCheckInProgram(collectionID)
}

// CheckInWalletStats reports a wallet's check-in count, last check-in time,
// remaining check-ins and current eligibility.
func (e *Engine) CheckInWalletStats(collectionID int64, account identity.AccountRef) (CheckInWalletStats, error) {
	if err := e.ready(); err != nil {
		return CheckInWalletStats{}, err
	}
	accountID := e.resolver.Lookup(account)
	if accountID <= 0 {
		return CheckInWalletStats{}, ErrInvalidAccount
	}
	if err := e.requireCollection(collectionID); err != nil {
		return CheckInWalletStats{}, err
	}
	p, err := e.loadCheckInProgram(collectionID)
	if err != nil {
		return CheckInWalletStats{}, err
	}
	count, lastAt, err := e.loadWalletStats(collectionID, accountID)
	if err != nil {
		return CheckInWalletStats{}, err
	}
	remaining := Unbounded
	if p.MaxCheckInsPerWallet > 0 {
		remaining = max(p.MaxCheckInsPerWallet-count, 0)
	}
	can, err := e.eligible(collectionID, accountID, p)
	if err != nil {
		return CheckInWalletStats{}, err
	}
	return CheckInWalletStats{
		Count:         count,
		LastCheckInAt: lastAt,
		Remaining:     remaining,
		CanCheckInNow: can,
	}, nil
}

// CanCheckIn reports whether a check-in by account would currently pass
// every gate.
func (e *Engine) CanCheckIn(collectionID int64, account identity.AccountRef) (bool, error) {
	stats, err := e.CheckInWalletStats(collectionID, account)
	if err != nil {
		if IsIntegrity(err) {
			return false, err
		}
		return false, nil
	}
	return stats.CanCheckInNow, nil
}

// eligible folds policy rejections from checkInGate into false and passes
// integrity faults through.
func (e *Engine) eligible(collectionID, accountID int64, p CheckInProgram) (bool, error) {
	_, _, err := e.checkInGate(collectionID, accountID, p)
	switch {
	case err == nil:
		return true, nil
	case IsIntegrity(err):
		return false, err
	default:
		return false, nil
	}
}

// MembershipStatus reports an account's membership balance in a collection
// together with the program's membership flags.
func (e *Engine) MembershipStatus(collectionID int64, account identity.AccountRef) (MembershipStatus, error) {
	if err := e.ready(); err != nil {
		return MembershipStatus{}, err
	}
	accountID := e.resolver.Lookup(account)
	if accountID <= 0 {
		return MembershipStatus{}, ErrInvalidAccount
	}
	if err := e.requireCollection(collectionID); err != nil {
		return MembershipStatus{}, err
	}
	p, err := e.loadCheckInProgram(collectionID)
	if err != nil {
		return MembershipStatus{}, err
	}
	balance, err := e.membershipBalance(collectionID, accountID)
	if err != nil {
		return MembershipStatus{}, err
	}
	return MembershipStatus{
		Balance:             balance,
		IsMember:            balance > 0,
		MembershipRequired:  p.MembershipRequired,
		MembershipSoulbound: p.MembershipSoulbound,
	}, nil
}

// TokenClass returns the class recorded for tokenID, or ClassStandard when
// the token does not exist.
func (e *Engine) TokenClass(tokenID int64) (TokenClass, error) {
	if err := e.ready(); err != nil {
		return ClassStandard, err
	}
	exists, err := e.tokenExists(tokenID)
	if err != nil || !exists {
		return ClassStandard, err
	}
	v, err := e.readInt("read token class", tokenFieldKey(tokenID, tokenFieldClass))
	return TokenClass(v), err
}
