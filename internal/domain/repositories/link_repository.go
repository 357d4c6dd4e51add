package repositories

import (
	"context"

	"github.com/google/uuid"
	"wallet-link.backend/internal/domain/entities"
)

// LinkRepository persists Links. The durable store is the source of truth;
// the in-memory registry is rebuilt from GetActive on startup.
type LinkRepository interface {
	Create(ctx context.Context, link *entities.Link) error
	GetByID(ctx context.Context, linkID uuid.UUID) (*entities.Link, error)
	GetActiveBySession(ctx context.Context, sessionToken string) (*entities.Link, error)
	GetByWalletToken(ctx context.Context, walletToken string) ([]*entities.Link, error)
	GetActive(ctx context.Context) ([]*entities.Link, error)
	Deactivate(ctx context.Context, linkID uuid.UUID) error
	DeactivateBySession(ctx context.Context, sessionToken string) error
	DeactivateByClientToken(ctx context.Context, clientToken string) (int64, error)
	SetNotifyWallet(ctx context.Context, walletToken string, linkID uuid.UUID, notify bool) (bool, error)
}
