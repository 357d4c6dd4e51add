package repositories

import (
	"context"
	"time"

	"wallet-link.backend/internal/domain/entities"
)

// NotificationEndpointRepository persists wallet devices registered for
// relay wake-up notifications.
type NotificationEndpointRepository interface {
	Upsert(ctx context.Context, endpoint *entities.NotificationEndpoint) error
	GetByEthAddress(ctx context.Context, ethAddress string) ([]*entities.NotificationEndpoint, error)
	TouchLastOnline(ctx context.Context, ethAddress string, at time.Time) error
	DeactivateStale(ctx context.Context, olderThan time.Time) (int64, error)
}

// ReferralRepository persists attestation/referral registrations
type ReferralRepository interface {
	Create(ctx context.Context, referral *entities.Referral) error
	GetByEthAddress(ctx context.Context, ethAddress string) ([]*entities.Referral, error)
}

// UserInfoRepository persists off-chain profile records keyed by address
type UserInfoRepository interface {
	Upsert(ctx context.Context, info *entities.UserInfo) error
	GetByEthAddress(ctx context.Context, ethAddress string) (*entities.UserInfo, error)
}
