package models

import (
	"time"

	"github.com/google/uuid"
)

// Link is the durable record of a session↔wallet association. Tokens are
// stored raw because the server must route by them; the privData blob stays
// opaque to the server.
type Link struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey"`
	WalletToken     string    `gorm:"type:varchar(255);not null;index"`
	SessionToken    string    `gorm:"type:varchar(255);not null;index"`
	ClientToken     string    `gorm:"type:varchar(255);index"`
	AppInfo         string    `gorm:"type:text"` // JSON-encoded entities.AppInfo
	PubKey          string    `gorm:"type:varchar(255)"`
	CurrentRPC      string    `gorm:"type:varchar(255)"`
	CurrentAccounts string    `gorm:"type:text"` // JSON-encoded []string
	PrivData        string    `gorm:"type:text"`
	NotifyWallet    bool      `gorm:"default:false"`
	Active          bool      `gorm:"not null;index"`
	LinkedAt        *time.Time
	UnlinkedAt      *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (Link) TableName() string {
	return "links"
}
