package entities

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"
)

// LinkState tracks the lifecycle of a single pairing.
type LinkState string

const (
	LinkStateUnlinked  LinkState = "UNLINKED"
	LinkStatePrelinked LinkState = "PRELINKED"
	LinkStateLinked    LinkState = "LINKED"
)

// CanTransition reports whether moving to the target state is legal.
// Unlinked is terminal but re-enterable: both live states may unlink,
// and an unlinked session may start a new pairing.
func (s LinkState) CanTransition(to LinkState) bool {
	switch s {
	case LinkStateUnlinked:
		return to == LinkStatePrelinked
	case LinkStatePrelinked:
		return to == LinkStateLinked || to == LinkStateUnlinked
	case LinkStateLinked:
		return to == LinkStateUnlinked
	}
	return false
}

// AppInfo describes the dapp requesting a wallet link
type AppInfo struct {
	Name      string `json:"name,omitempty"`
	URL       string `json:"url,omitempty"`
	Icon      string `json:"icon,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	ReturnURL string `json:"return_url,omitempty"`
}

// PendingCallStatus values
type PendingCallStatus string

const (
	PendingCallStatusPending   PendingCallStatus = "PENDING"
	PendingCallStatusDelivered PendingCallStatus = "DELIVERED"
	PendingCallStatusResolved  PendingCallStatus = "RESOLVED"
)

// PendingCall is an RPC-like request queued against a Link, waiting for
// the wallet to sign and resolve it. Resolved exactly once.
type PendingCall struct {
	CallID    string            `json:"call_id"`
	Account   string            `json:"account,omitempty"`
	Call      json.RawMessage   `json:"call"`
	ReturnURL string            `json:"return_url,omitempty"`
	SessionToken string         `json:"session_token,omitempty"`
	Status    PendingCallStatus `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
}

// PairingCode is a short-lived code binding a browser session (or, in the
// prelink flow, a wallet) to a future Link. Destroyed on redemption or expiry.
type PairingCode struct {
	Code            string       `json:"code"`
	SessionToken    string       `json:"session_token,omitempty"`
	ClientToken     string       `json:"client_token,omitempty"`
	WalletToken     string       `json:"wallet_token,omitempty"`
	LinkID          uuid.UUID    `json:"link_id"`
	AppInfo         AppInfo      `json:"app_info"`
	PubKey          string       `json:"pub_key,omitempty"`
	PendingCall     *PendingCall `json:"pending_call,omitempty"`
	NotifyWallet    bool         `json:"notify_wallet"`
	CurrentRPC      string       `json:"current_rpc,omitempty"`
	CurrentAccounts []string     `json:"current_accounts,omitempty"`
	PrivData        string       `json:"priv_data,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	ExpiresAt       time.Time    `json:"expires_at"`
}

// Expired reports whether the code's TTL has elapsed. Expiry is checked
// lazily at redemption time, not swept in the background.
func (c *PairingCode) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// Link is an established association between a session and a wallet.
// A wallet holds many Links over time; a session has at most one active Link.
type Link struct {
	ID              uuid.UUID `json:"link_id"`
	WalletToken     string    `json:"-"`
	SessionToken    string    `json:"-"`
	ClientToken     string    `json:"-"`
	AppInfo         AppInfo   `json:"app_info"`
	PubKey          string    `json:"pub_key,omitempty"`
	CurrentRPC      string    `json:"current_rpc,omitempty"`
	CurrentAccounts []string  `json:"current_accounts,omitempty"`
	PrivData        string    `json:"-"`
	NotifyWallet    bool      `json:"notify_wallet"`
	Active          bool      `json:"linked"`
	LinkedAt        null.Time `json:"linked_at,omitempty"`
	UnlinkedAt      null.Time `json:"unlinked_at,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// State derives the pairing state of the link entity itself.
func (l *Link) State() LinkState {
	if l.Active {
		return LinkStateLinked
	}
	return LinkStateUnlinked
}

// LinkSummary is the wallet-facing view of a Link
type LinkSummary struct {
	LinkID       uuid.UUID `json:"link_id"`
	AppInfo      AppInfo   `json:"app_info"`
	Linked       bool      `json:"linked"`
	NotifyWallet bool      `json:"notify_wallet"`
	LinkedAt     null.Time `json:"linked_at,omitempty"`
	UnlinkedAt   null.Time `json:"unlinked_at,omitempty"`
}

// LinkUpdate mutates notification preferences on a wallet's own Link
type LinkUpdate struct {
	LinkID       string `json:"link_id" binding:"required"`
	NotifyWallet bool   `json:"notify_wallet"`
}
