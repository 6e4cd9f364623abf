package nft

import (
	"errors"
	"fmt"
)

// Policy rejections. A call failing with one of these performed no writes and
// emitted no events.
var (
	ErrInvalidAccount       = errors.New("nft: invalid account")
	ErrUnauthorized         = errors.New("nft: unauthorized")
	ErrInvalidMaxSupply     = errors.New("nft: max supply must not be negative")
	ErrInvalidRoyalty       = errors.New("nft: royalty bps out of range")
	ErrInvalidName          = errors.New("nft: invalid collection name")
	ErrInvalidSymbol        = errors.New("nft: invalid collection symbol")
	ErrInvalidDescription   = errors.New("nft: invalid collection description")
	ErrInvalidBaseURI       = errors.New("nft: invalid collection base uri")
	ErrOwnerHasCollection   = errors.New("nft: owner already has a collection")
	ErrCollectionNotFound   = errors.New("nft: collection not found")
	ErrCollectionPaused     = errors.New("nft: collection paused")
	ErrMaxSupplyReached     = errors.New("nft: max supply reached")
	ErrSerialExhausted      = errors.New("nft: collection serial space exhausted")
	ErrTokenExists          = errors.New("nft: token already exists")
	ErrTokenNotFound        = errors.New("nft: token not found")
	ErrTokenBurned          = errors.New("nft: token burned")
	ErrInvalidTokenClass    = errors.New("nft: invalid token class")
	ErrNotTransferable      = errors.New("nft: collection not transferable")
	ErrSoulbound            = errors.New("nft: membership token is soulbound")
	ErrInvalidDropConfig    = errors.New("nft: invalid drop configuration")
	ErrDropDisabled         = errors.New("nft: drop disabled")
	ErrDropWindowClosed     = errors.New("nft: drop window closed")
	ErrWalletLimitReached   = errors.New("nft: per-wallet claim limit reached")
	ErrWhitelistExhausted   = errors.New("nft: whitelist allowance exhausted")
	ErrInvalidAllowance     = errors.New("nft: allowance must not be negative")
	ErrWhitelistMismatch    = errors.New("nft: whitelist accounts and allowances differ in length")
	ErrWhitelistTooLarge    = errors.New("nft: whitelist batch too large")
	ErrInvalidCheckInConfig = errors.New("nft: invalid check-in configuration")
	ErrCheckInDisabled      = errors.New("nft: check-in disabled")
	ErrCheckInWindowClosed  = errors.New("nft: check-in window closed")
	ErrMembershipRequired   = errors.New("nft: membership required")
	ErrCheckInLimitReached  = errors.New("nft: per-wallet check-in limit reached")
	ErrCheckInTooSoon       = errors.New("nft: check-in interval not elapsed")
	ErrInvalidFieldCode     = errors.New("nft: unknown field code")
	ErrInvalidIndex         = errors.New("nft: index out of range")
)

// ErrIntegrity marks a storage failure in the middle of a write sequence or
// a read that could not be served. The call must be aborted as a whole.
var ErrIntegrity = errors.New("nft: ledger integrity fault")

// ErrFatal marks the check-in path where a proof token was minted but the
// wallet statistics could not be persisted. It always wraps ErrIntegrity.
var ErrFatal = fmt.Errorf("%w: check-in state not persisted after proof mint", ErrIntegrity)

var errNilState = errors.New("nft engine: state not configured")

func integrity(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrIntegrity) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrIntegrity, op, err)
}

// IsIntegrity reports whether err must abort the enclosing call.
func IsIntegrity(err error) bool {
	return errors.Is(err, ErrIntegrity) || errors.Is(err, errNilState)
}

// IsCapRejection reports whether err is a claim rejection caused by one of the
// drop caps: collection supply, per-wallet limit or whitelist allowance.
func IsCapRejection(err error) bool {
	return errors.Is(err, ErrMaxSupplyReached) ||
		errors.Is(err, ErrWalletLimitReached) ||
		errors.Is(err, ErrWhitelistExhausted)
}

var rejectionReasons = []struct {
	err    error
	reason string
}{
	{ErrInvalidAccount, "invalid_account"},
	{ErrUnauthorized, "unauthorized"},
	{ErrInvalidMaxSupply, "invalid_max_supply"},
	{ErrInvalidRoyalty, "invalid_royalty"},
	{ErrInvalidName, "invalid_name"},
	{ErrInvalidSymbol, "invalid_symbol"},
	{ErrInvalidDescription, "invalid_description"},
	{ErrInvalidBaseURI, "invalid_base_uri"},
	{ErrOwnerHasCollection, "owner_has_collection"},
	{ErrCollectionNotFound, "collection_not_found"},
	{ErrCollectionPaused, "collection_paused"},
	{ErrMaxSupplyReached, "max_supply_reached"},
	{ErrSerialExhausted, "serial_exhausted"},
	{ErrTokenExists, "token_exists"},
	{ErrTokenNotFound, "token_not_found"},
	{ErrTokenBurned, "token_burned"},
	{ErrInvalidTokenClass, "invalid_token_class"},
	{ErrNotTransferable, "not_transferable"},
	{ErrSoulbound, "soulbound"},
	{ErrInvalidDropConfig, "invalid_drop_config"},
	{ErrDropDisabled, "drop_disabled"},
	{ErrDropWindowClosed, "drop_window_closed"},
	{ErrWalletLimitReached, "wallet_limit_reached"},
	{ErrWhitelistExhausted, "whitelist_exhausted"},
	{ErrInvalidAllowance, "invalid_allowance"},
	{ErrWhitelistMismatch, "whitelist_mismatch"},
	{ErrWhitelistTooLarge, "whitelist_too_large"},
	{ErrInvalidCheckInConfig, "invalid_checkin_config"},
	{ErrCheckInDisabled, "checkin_disabled"},
	{ErrCheckInWindowClosed, "checkin_window_closed"},
	{ErrMembershipRequired, "membership_required"},
	{ErrCheckInLimitReached, "checkin_limit_reached"},
	{ErrCheckInTooSoon, "checkin_too_soon"},
	{ErrInvalidFieldCode, "invalid_field_code"},
	{ErrInvalidIndex, "invalid_index"},
}

// Reason returns a stable label for a policy rejection, "integrity" for
// faults and "" for errors the engine did not produce.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	if IsIntegrity(err) {
		return "integrity"
	}
	for _, r := range rejectionReasons {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	return ""
}
