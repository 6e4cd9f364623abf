// Package indexer projects the committed event log into relational tables
// that serve listing queries the key-value ledger cannot answer directly.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"nftledger/config"
	"nftledger/core/eventlog"
	"nftledger/core/events"
	"nftledger/native/nft"
	"nftledger/observability"
)

const cursorKey = "event_seq"

var ErrUnknownDriver = errors.New("indexer: unknown driver")

// Open connects to the projection database and migrates its schema.
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case config.DriverSQLite:
		dialector = sqlite.Open(dsn)
	case config.DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("indexer: open %s: %w", driver, err)
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	return db, nil
}

// Indexer copies event-log records into the projection tables. The cursor
// advances in the same transaction as the rows it covers.
type Indexer struct {
	db     *gorm.DB
	log    *eventlog.Log
	batch  int
	logger *slog.Logger
}

// New builds an indexer reading log into db in batches of batch records.
func New(db *gorm.DB, log *eventlog.Log, batch int, logger *slog.Logger) *Indexer {
	if batch <= 0 {
		batch = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{db: db, log: log, batch: batch, logger: logger.With("component", "indexer")}
}

// DB exposes the projection database for read queries.
func (ix *Indexer) DB() *gorm.DB { return ix.db }

// Cursor returns the sequence number of the last projected record.
func (ix *Indexer) Cursor(ctx context.Context) (uint64, error) {
	return readCursor(ix.db.WithContext(ctx))
}

func readCursor(tx *gorm.DB) (uint64, error) {
	var state SyncState
	err := tx.Where(&SyncState{Key: cursorKey}).Limit(1).Find(&state).Error
	if err != nil {
		return 0, fmt.Errorf("indexer: read cursor: %w", err)
	}
	if state.Value == "" {
		return 0, nil
	}
	seq, err := strconv.ParseUint(state.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("indexer: corrupt cursor %q: %w", state.Value, err)
	}
	return seq, nil
}

func writeCursor(tx *gorm.DB, seq uint64) error {
	state := SyncState{Key: cursorKey, Value: strconv.FormatUint(seq, 10)}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&state).Error
}

// Sync projects at most one batch of records past the cursor and returns how
// many were consumed.
func (ix *Indexer) Sync(ctx context.Context) (int, error) {
	cursor, err := ix.Cursor(ctx)
	if err != nil {
		return 0, err
	}
	records, err := ix.log.Read(cursor, ix.batch)
	if err != nil {
		observability.Indexer().RecordFailure()
		return 0, fmt.Errorf("indexer: read log: %w", err)
	}
	if len(records) == 0 {
		return 0, nil
	}
	err = ix.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, rec := range records {
			if err := ix.apply(tx, rec); err != nil {
				return fmt.Errorf("indexer: project record %d: %w", rec.Seq, err)
			}
		}
		return writeCursor(tx, records[len(records)-1].Seq)
	})
	if err != nil {
		observability.Indexer().RecordFailure()
		return 0, err
	}
	for _, rec := range records {
		observability.Indexer().RecordProjected(rec.Event.Type, rec.Seq)
	}
	ix.logger.Debug("projected records", "count", len(records), "seq", records[len(records)-1].Seq)
	return len(records), nil
}

// CatchUp runs Sync until the log is drained.
func (ix *Indexer) CatchUp(ctx context.Context) (int, error) {
	total := 0
	for {
		n, err := ix.Sync(ctx)
		total += n
		if err != nil || n < ix.batch {
			return total, err
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}
	}
}

// Run catches up every interval until ctx is cancelled.
func (ix *Indexer) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := ix.CatchUp(ctx); err != nil && ctx.Err() == nil {
			ix.logger.Warn("sync failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (ix *Indexer) apply(tx *gorm.DB, rec eventlog.Record) error {
	decoded, err := events.Decode(rec.Event)
	if err != nil {
		ix.logger.Warn("skipping undecodable record", "seq", rec.Seq, "error", err)
		return nil
	}
	at := time.Unix(rec.Time, 0).UTC()
	switch evt := decoded.(type) {
	case events.CollectionUpserted:
		row := Collection{
			CollectionID: evt.CollectionID,
			Owner:        addressText(evt.Owner),
			Name:         evt.Name,
			Symbol:       evt.Symbol,
			Description:  evt.Description,
			BaseURI:      evt.BaseURI,
			MaxSupply:    evt.MaxSupply,
			Minted:       evt.Minted,
			RoyaltyBps:   evt.RoyaltyBps,
			Transferable: evt.Transferable,
			Paused:       evt.Paused,
			CreatedAt:    time.Unix(evt.CreatedAt, 0).UTC(),
			UpdatedAt:    at,
		}
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
	case events.TokenUpserted:
		row := Token{
			TokenID:      evt.TokenID,
			CollectionID: evt.CollectionID,
			Owner:        addressText(evt.Owner),
			URI:          evt.URI,
			Properties:   evt.Properties,
			Burned:       evt.Burned,
			MintedAt:     time.Unix(evt.MintedAt, 0).UTC(),
			UpdatedAt:    at,
		}
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
	case events.Transfer:
		return applyTransfer(tx, rec, evt, at)
	case events.DropClaimed:
		return tx.Create(&DropClaim{
			Seq:          rec.Seq,
			CollectionID: evt.CollectionID,
			Claimer:      addressText(evt.Claimer),
			TokenID:      evt.TokenID,
			ClaimedCount: evt.ClaimedCount,
			ClaimedAt:    at,
		}).Error
	case events.CheckedIn:
		return tx.Create(&CheckIn{
			Seq:          rec.Seq,
			CollectionID: evt.CollectionID,
			Account:      addressText(evt.Account),
			Count:        evt.Count,
			ProofTokenID: evt.ProofTokenID,
			CheckedAt:    time.Unix(evt.CheckedAt, 0).UTC(),
		}).Error
	}
	return nil
}

func applyTransfer(tx *gorm.DB, rec eventlog.Record, evt events.Transfer, at time.Time) error {
	switch {
	case evt.From == nil && evt.To != nil:
		collectionID, _ := nft.SplitTokenID(evt.TokenID)
		row := Token{
			TokenID:      evt.TokenID,
			CollectionID: collectionID,
			Owner:        addressText(evt.To),
			MintedAt:     at,
			UpdatedAt:    at,
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
			return err
		}
		if err := tx.Model(&Collection{}).Where("collection_id = ?", collectionID).
			UpdateColumn("minted", gorm.Expr("minted + 1")).Error; err != nil {
			return err
		}
	case evt.To == nil:
		if err := tx.Model(&Token{}).Where("token_id = ?", evt.TokenID).
			UpdateColumns(map[string]any{"burned": true, "updated_at": at}).Error; err != nil {
			return err
		}
	default:
		if err := tx.Model(&Token{}).Where("token_id = ?", evt.TokenID).
			UpdateColumns(map[string]any{"owner": addressText(evt.To), "updated_at": at}).Error; err != nil {
			return err
		}
	}
	return tx.Create(&Transfer{
		Seq:         rec.Seq,
		CallID:      rec.CallID,
		TokenID:     evt.TokenID,
		FromAddress: addressPtr(evt.From),
		ToAddress:   addressPtr(evt.To),
		Timestamp:   at,
	}).Error
}

func addressText(addr *common.Address) string {
	if addr == nil {
		return ""
	}
	return addr.Hex()
}

func addressPtr(addr *common.Address) *string {
	if addr == nil {
		return nil
	}
	s := addr.Hex()
	return &s
}
