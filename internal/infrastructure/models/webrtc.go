package models

import (
	"time"
)

// NotificationEndpoint mirrors the webrtc_notification_endpoint table
type NotificationEndpoint struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	EthAddress  string `gorm:"type:varchar(255);index"`
	WalletToken string `gorm:"type:varchar(255);index"`
	DeviceToken string `gorm:"type:varchar(255)"`
	DeviceType  string `gorm:"type:varchar(16)"`
	Active      bool
	LastOnline  *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (NotificationEndpoint) TableName() string {
	return "webrtc_notification_endpoint"
}

// Referral stores attestation and referral URL registrations
type Referral struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	EthAddress  string `gorm:"type:varchar(255);index"`
	AttestURL   string `gorm:"type:text"`
	ReferralURL string `gorm:"type:text"`
	CreatedAt   time.Time
}

func (Referral) TableName() string {
	return "webrtc_referrals"
}

// UserInfo stores off-chain profile data keyed by address
type UserInfo struct {
	EthAddress string `gorm:"type:varchar(255);primaryKey"`
	IpfsHash   string `gorm:"type:varchar(255)"`
	Info       string `gorm:"type:text"` // JSON blob loaded from the object store
	UpdatedAt  time.Time
}

func (UserInfo) TableName() string {
	return "webrtc_user_info"
}
