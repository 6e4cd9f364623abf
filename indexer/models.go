package indexer

import (
	"time"

	"gorm.io/gorm"
)

// Collection is the projected view of a collection record.
type Collection struct {
	CollectionID int64  `gorm:"primaryKey;autoIncrement:false"`
	Owner        string `gorm:"size:42;index"`
	Name         string `gorm:"size:64"`
	Symbol       string `gorm:"size:16"`
	Description  string
	BaseURI      string
	MaxSupply    int64
	Minted       int64
	RoyaltyBps   int64
	Transferable bool
	Paused       bool
	CreatedAt    time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime:false"`
}

// Token is the projected view of a token. Burned tokens stay as rows.
type Token struct {
	TokenID      int64  `gorm:"primaryKey;autoIncrement:false"`
	CollectionID int64  `gorm:"index"`
	Owner        string `gorm:"size:42;index"`
	URI          string
	Properties   string
	Burned       bool
	MintedAt     time.Time
	UpdatedAt    time.Time `gorm:"autoUpdateTime:false"`
}

// Transfer is one mint, burn or transfer. A nil From marks a mint and a nil
// To marks a burn.
type Transfer struct {
	ID          uint    `gorm:"primaryKey"`
	Seq         uint64  `gorm:"uniqueIndex"`
	CallID      string  `gorm:"size:64;index"`
	TokenID     int64   `gorm:"index"`
	FromAddress *string `gorm:"size:42"`
	ToAddress   *string `gorm:"size:42"`
	Timestamp   time.Time
}

// DropClaim is one successful drop claim.
type DropClaim struct {
	ID           uint   `gorm:"primaryKey"`
	Seq          uint64 `gorm:"uniqueIndex"`
	CollectionID int64  `gorm:"index"`
	Claimer      string `gorm:"size:42;index"`
	TokenID      int64
	ClaimedCount int64
	ClaimedAt    time.Time
}

// CheckIn is one successful check-in.
type CheckIn struct {
	ID           uint   `gorm:"primaryKey"`
	Seq          uint64 `gorm:"uniqueIndex"`
	CollectionID int64  `gorm:"index"`
	Account      string `gorm:"size:42;index"`
	Count        int64
	ProofTokenID int64
	CheckedAt    time.Time
}

// SyncState holds projection cursors.
type SyncState struct {
	Key   string `gorm:"primaryKey;size:64"`
	Value string
}

func (SyncState) TableName() string { return "sync_state" }

// AutoMigrate creates or updates every projection table.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Collection{},
		&Token{},
		&Transfer{},
		&DropClaim{},
		&CheckIn{},
		&SyncState{},
	)
}
