package entities

import (
	"encoding/json"
	"math/big"
	"time"

	"github.com/volatiletech/null/v8"
)

// SubscriptionRules constrain which listing/offer a relay socket may act on
type SubscriptionRules struct {
	ListingID string `json:"listing_id"`
	OfferID   string `json:"offer_id"`
}

// RelayAuth is the first frame a client sends on the webrtc relay socket
type RelayAuth struct {
	Signature   string            `json:"signature"`
	Message     string            `json:"message"`
	Rules       SubscriptionRules `json:"rules"`
	Timestamp   int64             `json:"timestamp"`
	WalletToken string            `json:"walletToken"`
}

// Offer mirrors the on-chain marketplace offer fields the relay cares about
type Offer struct {
	ListingID      string       `json:"listing_id"`
	OfferID        string       `json:"offer_id"`
	Buyer          string       `json:"buyer"`
	Seller         string       `json:"seller"`
	Value          *big.Int     `json:"value"`
	Refund         *big.Int     `json:"refund"`
	Status         uint8        `json:"status"`
	Verifier       string       `json:"verifier"`
	AcceptIpfsHash string       `json:"accept_ipfs_hash,omitempty"`
	VerifyTerms    *VerifyTerms `json:"verify_terms,omitempty"`
}

// Payout is the amount a finalize releases to the seller
func (o *Offer) Payout() *big.Int {
	if o.Value == nil {
		return big.NewInt(0)
	}
	payout := new(big.Int).Set(o.Value)
	if o.Refund != nil {
		payout.Sub(payout, o.Refund)
	}
	return payout
}

// VerifyTerms describe the external check gating a verified finalize
type VerifyTerms struct {
	VerifyURL  string `json:"verifyURL"`
	CheckArg   string `json:"checkArg"`
	MatchValue string `json:"matchValue"`
}

// NotificationEndpoint is a wallet device registered for relay wake-ups
type NotificationEndpoint struct {
	ID          uint      `json:"id"`
	EthAddress  string    `json:"eth_address"`
	WalletToken string    `json:"-"`
	DeviceToken string    `json:"device_token"`
	DeviceType  string    `json:"device_type"`
	Active      bool      `json:"active"`
	LastOnline  null.Time `json:"last_online,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Referral records the attestation/referral URLs registered for an account
type Referral struct {
	ID          uint      `json:"id"`
	EthAddress  string    `json:"eth_address"`
	AttestURL   string    `json:"attest_url"`
	ReferralURL string    `json:"referral_url"`
	CreatedAt   time.Time `json:"created_at"`
}

// UserInfo is off-chain profile data pinned by content hash
type UserInfo struct {
	EthAddress string          `json:"eth_address"`
	IpfsHash   string          `json:"ipfs_hash"`
	Info       json.RawMessage `json:"info,omitempty"`
	UpdatedAt  time.Time       `json:"updated_at"`
}
