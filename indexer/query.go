package indexer

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

const maxListLimit = 500

// Stats summarises the projection tables.
type Stats struct {
	Collections int64  `json:"collections"`
	Tokens      int64  `json:"tokens"`
	Transfers   int64  `json:"transfers"`
	CheckIns    int64  `json:"checkIns"`
	Cursor      uint64 `json:"cursor"`
}

// Stats counts projected rows.
func (ix *Indexer) Stats(ctx context.Context) (Stats, error) {
	db := ix.db.WithContext(ctx)
	var s Stats
	if err := db.Model(&Collection{}).Count(&s.Collections).Error; err != nil {
		return Stats{}, err
	}
	if err := db.Model(&Token{}).Where("burned = ?", false).Count(&s.Tokens).Error; err != nil {
		return Stats{}, err
	}
	if err := db.Model(&Transfer{}).Count(&s.Transfers).Error; err != nil {
		return Stats{}, err
	}
	if err := db.Model(&CheckIn{}).Count(&s.CheckIns).Error; err != nil {
		return Stats{}, err
	}
	cursor, err := readCursor(db)
	if err != nil {
		return Stats{}, err
	}
	s.Cursor = cursor
	return s, nil
}

// Collections lists collections, optionally filtered by owner hex address.
func (ix *Indexer) Collections(ctx context.Context, owner string) ([]Collection, error) {
	var out []Collection
	q := ix.db.WithContext(ctx).Order("collection_id")
	if owner != "" {
		q = q.Where("owner = ?", owner)
	}
	return out, q.Find(&out).Error
}

// CollectionTokens lists live tokens of a collection in serial order.
func (ix *Indexer) CollectionTokens(ctx context.Context, collectionID int64) ([]Token, error) {
	var out []Token
	err := ix.db.WithContext(ctx).
		Where("collection_id = ? AND burned = ?", collectionID, false).
		Order("token_id").Find(&out).Error
	return out, err
}

// WalletTokens lists live tokens held by owner.
func (ix *Indexer) WalletTokens(ctx context.Context, owner string) ([]Token, error) {
	var out []Token
	err := ix.db.WithContext(ctx).
		Where("owner = ? AND burned = ?", owner, false).
		Order("token_id").Find(&out).Error
	return out, err
}

// Transfers lists the newest transfers first, optionally for one token.
func (ix *Indexer) Transfers(ctx context.Context, tokenID int64, limit int) ([]Transfer, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}
	var out []Transfer
	q := ix.db.WithContext(ctx).Order("seq DESC").Limit(limit)
	if tokenID > 0 {
		q = q.Where("token_id = ?", tokenID)
	}
	return out, q.Find(&out).Error
}

// CheckIns lists the newest check-ins of a collection.
func (ix *Indexer) CheckIns(ctx context.Context, collectionID int64, limit int) ([]CheckIn, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}
	var out []CheckIn
	err := ix.db.WithContext(ctx).
		Where("collection_id = ?", collectionID).
		Order("seq DESC").Limit(limit).Find(&out).Error
	return out, err
}

// Token returns one projected token, or gorm.ErrRecordNotFound.
func (ix *Indexer) Token(ctx context.Context, tokenID int64) (*Token, error) {
	var row Token
	err := ix.db.WithContext(ctx).First(&row, "token_id = ?", tokenID).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// IsNotFound reports whether err is a missing-row error.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
