package repositories

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"wallet-link.backend/internal/domain/entities"
	domainerrors "wallet-link.backend/internal/domain/errors"
	"wallet-link.backend/internal/infrastructure/models"
)

// NotificationEndpointRepositoryImpl implements NotificationEndpointRepository
type NotificationEndpointRepositoryImpl struct {
	db *gorm.DB
}

func NewNotificationEndpointRepository(db *gorm.DB) *NotificationEndpointRepositoryImpl {
	return &NotificationEndpointRepositoryImpl{db: db}
}

// Upsert registers a device, keyed by (wallet_token, device_token). A wallet
// re-registering the same device refreshes the row instead of duplicating it.
func (r *NotificationEndpointRepositoryImpl) Upsert(ctx context.Context, endpoint *entities.NotificationEndpoint) error {
	var existing models.NotificationEndpoint
	err := r.db.WithContext(ctx).
		Where("wallet_token = ? AND device_token = ?", endpoint.WalletToken, endpoint.DeviceToken).
		First(&existing).Error

	now := time.Now()
	if errors.Is(err, gorm.ErrRecordNotFound) {
		m := &models.NotificationEndpoint{
			EthAddress:  endpoint.EthAddress,
			WalletToken: endpoint.WalletToken,
			DeviceToken: endpoint.DeviceToken,
			DeviceType:  endpoint.DeviceType,
			Active:      true,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		return r.db.WithContext(ctx).Create(m).Error
	}
	if err != nil {
		return err
	}

	return r.db.WithContext(ctx).Model(&existing).
		Updates(map[string]interface{}{
			"eth_address": endpoint.EthAddress,
			"device_type": endpoint.DeviceType,
			"active":      true,
			"updated_at":  now,
		}).Error
}

func (r *NotificationEndpointRepositoryImpl) GetByEthAddress(ctx context.Context, ethAddress string) ([]*entities.NotificationEndpoint, error) {
	var ms []models.NotificationEndpoint
	if err := r.db.WithContext(ctx).
		Where("eth_address = ? AND active = ?", ethAddress, true).
		Find(&ms).Error; err != nil {
		return nil, err
	}

	endpoints := make([]*entities.NotificationEndpoint, 0, len(ms))
	for _, m := range ms {
		endpoints = append(endpoints, toEndpointEntity(&m))
	}
	return endpoints, nil
}

func (r *NotificationEndpointRepositoryImpl) TouchLastOnline(ctx context.Context, ethAddress string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.NotificationEndpoint{}).
		Where("eth_address = ?", ethAddress).
		Updates(map[string]interface{}{
			"last_online": at,
			"updated_at":  at,
		}).Error
}

func (r *NotificationEndpointRepositoryImpl) DeactivateStale(ctx context.Context, olderThan time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.NotificationEndpoint{}).
		Where("active = ? AND last_online IS NOT NULL AND last_online < ?", true, olderThan).
		Update("active", false)
	return res.RowsAffected, res.Error
}

func toEndpointEntity(m *models.NotificationEndpoint) *entities.NotificationEndpoint {
	e := &entities.NotificationEndpoint{
		ID:          m.ID,
		EthAddress:  m.EthAddress,
		WalletToken: m.WalletToken,
		DeviceToken: m.DeviceToken,
		DeviceType:  m.DeviceType,
		Active:      m.Active,
		CreatedAt:   m.CreatedAt,
	}
	if m.LastOnline != nil {
		e.LastOnline.SetValid(*m.LastOnline)
	}
	return e
}

// ReferralRepositoryImpl implements ReferralRepository
type ReferralRepositoryImpl struct {
	db *gorm.DB
}

func NewReferralRepository(db *gorm.DB) *ReferralRepositoryImpl {
	return &ReferralRepositoryImpl{db: db}
}

func (r *ReferralRepositoryImpl) Create(ctx context.Context, referral *entities.Referral) error {
	m := &models.Referral{
		EthAddress:  referral.EthAddress,
		AttestURL:   referral.AttestURL,
		ReferralURL: referral.ReferralURL,
		CreatedAt:   time.Now(),
	}
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	referral.ID = m.ID
	referral.CreatedAt = m.CreatedAt
	return nil
}

func (r *ReferralRepositoryImpl) GetByEthAddress(ctx context.Context, ethAddress string) ([]*entities.Referral, error) {
	var ms []models.Referral
	if err := r.db.WithContext(ctx).
		Where("eth_address = ?", ethAddress).
		Order("created_at DESC").
		Find(&ms).Error; err != nil {
		return nil, err
	}

	referrals := make([]*entities.Referral, 0, len(ms))
	for _, m := range ms {
		referrals = append(referrals, &entities.Referral{
			ID:          m.ID,
			EthAddress:  m.EthAddress,
			AttestURL:   m.AttestURL,
			ReferralURL: m.ReferralURL,
			CreatedAt:   m.CreatedAt,
		})
	}
	return referrals, nil
}

// UserInfoRepositoryImpl implements UserInfoRepository
type UserInfoRepositoryImpl struct {
	db *gorm.DB
}

func NewUserInfoRepository(db *gorm.DB) *UserInfoRepositoryImpl {
	return &UserInfoRepositoryImpl{db: db}
}

func (r *UserInfoRepositoryImpl) Upsert(ctx context.Context, info *entities.UserInfo) error {
	m := &models.UserInfo{
		EthAddress: info.EthAddress,
		IpfsHash:   info.IpfsHash,
		Info:       string(info.Info),
		UpdatedAt:  time.Now(),
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "eth_address"}},
			DoUpdates: clause.AssignmentColumns([]string{"ipfs_hash", "info", "updated_at"}),
		}).
		Create(m).Error
}

func (r *UserInfoRepositoryImpl) GetByEthAddress(ctx context.Context, ethAddress string) (*entities.UserInfo, error) {
	var m models.UserInfo
	if err := r.db.WithContext(ctx).Where("eth_address = ?", ethAddress).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}
	return &entities.UserInfo{
		EthAddress: m.EthAddress,
		IpfsHash:   m.IpfsHash,
		Info:       []byte(m.Info),
		UpdatedAt:  m.UpdatedAt,
	}, nil
}
