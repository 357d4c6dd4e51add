package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"
	"gorm.io/gorm"
	"wallet-link.backend/internal/domain/entities"
	domainerrors "wallet-link.backend/internal/domain/errors"
	"wallet-link.backend/internal/infrastructure/models"
)

// LinkRepositoryImpl implements LinkRepository
type LinkRepositoryImpl struct {
	db *gorm.DB
}

func NewLinkRepository(db *gorm.DB) *LinkRepositoryImpl {
	return &LinkRepositoryImpl{db: db}
}

func (r *LinkRepositoryImpl) Create(ctx context.Context, link *entities.Link) error {
	m, err := r.toModel(link)
	if err != nil {
		return err
	}
	now := time.Now()
	m.CreatedAt = now
	m.UpdatedAt = now
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *LinkRepositoryImpl) GetByID(ctx context.Context, linkID uuid.UUID) (*entities.Link, error) {
	var m models.Link
	if err := r.db.WithContext(ctx).Where("id = ?", linkID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}
	return r.toEntity(&m), nil
}

func (r *LinkRepositoryImpl) GetActiveBySession(ctx context.Context, sessionToken string) (*entities.Link, error) {
	var m models.Link
	if err := r.db.WithContext(ctx).
		Where("session_token = ? AND active = ?", sessionToken, true).
		First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}
	return r.toEntity(&m), nil
}

func (r *LinkRepositoryImpl) GetByWalletToken(ctx context.Context, walletToken string) ([]*entities.Link, error) {
	var ms []models.Link
	if err := r.db.WithContext(ctx).
		Where("wallet_token = ?", walletToken).
		Order("linked_at DESC").
		Find(&ms).Error; err != nil {
		return nil, err
	}

	links := make([]*entities.Link, 0, len(ms))
	for _, m := range ms {
		model := m
		links = append(links, r.toEntity(&model))
	}
	return links, nil
}

func (r *LinkRepositoryImpl) GetActive(ctx context.Context) ([]*entities.Link, error) {
	var ms []models.Link
	if err := r.db.WithContext(ctx).Where("active = ?", true).Find(&ms).Error; err != nil {
		return nil, err
	}

	links := make([]*entities.Link, 0, len(ms))
	for _, m := range ms {
		model := m
		links = append(links, r.toEntity(&model))
	}
	return links, nil
}

func (r *LinkRepositoryImpl) Deactivate(ctx context.Context, linkID uuid.UUID) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&models.Link{}).
		Where("id = ? AND active = ?", linkID, true).
		Updates(map[string]interface{}{
			"active":      false,
			"unlinked_at": now,
			"updated_at":  now,
		}).Error
}

func (r *LinkRepositoryImpl) DeactivateByClientToken(ctx context.Context, clientToken string) (int64, error) {
	now := time.Now()
	res := r.db.WithContext(ctx).Model(&models.Link{}).
		Where("client_token = ? AND active = ?", clientToken, true).
		Updates(map[string]interface{}{
			"active":      false,
			"unlinked_at": now,
			"updated_at":  now,
		})
	return res.RowsAffected, res.Error
}

func (r *LinkRepositoryImpl) DeactivateBySession(ctx context.Context, sessionToken string) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&models.Link{}).
		Where("session_token = ? AND active = ?", sessionToken, true).
		Updates(map[string]interface{}{
			"active":      false,
			"unlinked_at": now,
			"updated_at":  now,
		}).Error
}

// SetNotifyWallet updates the notification preference on a Link, but only if
// the caller's wallet token owns it. Returns false for foreign links rather
// than an error so bulk updates can count silently skipped rows.
func (r *LinkRepositoryImpl) SetNotifyWallet(ctx context.Context, walletToken string, linkID uuid.UUID, notify bool) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Link{}).
		Where("id = ? AND wallet_token = ?", linkID, walletToken).
		Updates(map[string]interface{}{
			"notify_wallet": notify,
			"updated_at":    time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *LinkRepositoryImpl) toModel(link *entities.Link) (*models.Link, error) {
	appInfo, err := json.Marshal(link.AppInfo)
	if err != nil {
		return nil, err
	}
	accounts, err := json.Marshal(link.CurrentAccounts)
	if err != nil {
		return nil, err
	}

	m := &models.Link{
		ID:              link.ID,
		WalletToken:     link.WalletToken,
		SessionToken:    link.SessionToken,
		ClientToken:     link.ClientToken,
		AppInfo:         string(appInfo),
		PubKey:          link.PubKey,
		CurrentRPC:      link.CurrentRPC,
		CurrentAccounts: string(accounts),
		PrivData:        link.PrivData,
		NotifyWallet:    link.NotifyWallet,
		Active:          link.Active,
	}
	if link.LinkedAt.Valid {
		t := link.LinkedAt.Time
		m.LinkedAt = &t
	}
	if link.UnlinkedAt.Valid {
		t := link.UnlinkedAt.Time
		m.UnlinkedAt = &t
	}
	return m, nil
}

func (r *LinkRepositoryImpl) toEntity(m *models.Link) *entities.Link {
	link := &entities.Link{
		ID:           m.ID,
		WalletToken:  m.WalletToken,
		SessionToken: m.SessionToken,
		ClientToken:  m.ClientToken,
		PubKey:       m.PubKey,
		CurrentRPC:   m.CurrentRPC,
		PrivData:     m.PrivData,
		NotifyWallet: m.NotifyWallet,
		Active:       m.Active,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
	if m.AppInfo != "" {
		_ = json.Unmarshal([]byte(m.AppInfo), &link.AppInfo)
	}
	if m.CurrentAccounts != "" {
		_ = json.Unmarshal([]byte(m.CurrentAccounts), &link.CurrentAccounts)
	}
	if m.LinkedAt != nil {
		link.LinkedAt = null.TimeFrom(*m.LinkedAt)
	}
	if m.UnlinkedAt != nil {
		link.UnlinkedAt = null.TimeFrom(*m.UnlinkedAt)
	}
	return link
}
