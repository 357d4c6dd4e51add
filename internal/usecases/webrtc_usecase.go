package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"wallet-link.backend/internal/domain/entities"
	domainerrors "wallet-link.backend/internal/domain/errors"
	"wallet-link.backend/internal/domain/repositories"
	"wallet-link.backend/internal/metrics"
	"wallet-link.backend/pkg/ethsig"
	"wallet-link.backend/pkg/logger"
)

// IPFSStore reads and pins off-chain objects
type IPFSStore interface {
	GetObject(ctx context.Context, hash string, dest interface{}) error
	PutObject(ctx context.Context, obj interface{}) (string, error)
}

// Relay frame types pushed to subscribers
const (
	RelayMsgSignal     = "SIGNAL"
	RelayMsgDisconnect = "DISCONNECT"
)

// Subscription is one authenticated relay socket. Signaling frames route to
// the peer derived from the subscription's offer at auth time.
type Subscription struct {
	usecase     *WebRTCUsecase
	ethAddress  string
	peerAddress string
	rules       entities.SubscriptionRules

	mu      sync.Mutex
	handler func(payload json.RawMessage)
	closed  bool
}

// OnServerMessage registers the callback invoked for each relayed frame.
// Frames arriving before registration are dropped; the relay has no replay.
func (s *Subscription) OnServerMessage(handler func(payload json.RawMessage)) {
	s.mu.Lock()
	s.handler = handler
	s.mu.Unlock()
}

func (s *Subscription) deliver(payload json.RawMessage) {
	s.mu.Lock()
	handler := s.handler
	closed := s.closed
	s.mu.Unlock()
	if closed || handler == nil {
		return
	}
	handler(payload)
}

// ClientMessage forwards a signaling frame to the matched peer. Returns
// false when no peer socket is live; the caller may fall back to a device
// wake-up.
func (s *Subscription) ClientMessage(msg json.RawMessage) bool {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return false
	}

	frame, err := json.Marshal(map[string]interface{}{
		"type":    RelayMsgSignal,
		"from":    s.ethAddress,
		"payload": msg,
	})
	if err != nil {
		return false
	}
	return s.usecase.routeToPeer(s, frame)
}

// ClientClose tears the subscription down and notifies the paired side
func (s *Subscription) ClientClose() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	frame, _ := json.Marshal(map[string]interface{}{
		"type": RelayMsgDisconnect,
		"from": s.ethAddress,
	})
	s.usecase.routeToPeer(s, frame)
	s.usecase.detach(s)
}

// WebRTCUsecase is the relay and subscription manager plus the signed
// off-chain operations that ride on the same surface.
type WebRTCUsecase struct {
	verifier     ethsig.Verifier
	hot          *HotWalletUsecase
	reader       MarketplaceReader
	endpointRepo repositories.NotificationEndpointRepository
	referralRepo repositories.ReferralRepository
	userInfoRepo repositories.UserInfoRepository
	ipfs         IPFSStore

	authWindow time.Duration

	mu   sync.RWMutex
	subs map[string][]*Subscription

	now func() time.Time
}

// NewWebRTCUsecase creates the relay manager
func NewWebRTCUsecase(
	verifier ethsig.Verifier,
	hot *HotWalletUsecase,
	reader MarketplaceReader,
	endpointRepo repositories.NotificationEndpointRepository,
	referralRepo repositories.ReferralRepository,
	userInfoRepo repositories.UserInfoRepository,
	ipfs IPFSStore,
	authWindow time.Duration,
) *WebRTCUsecase {
	return &WebRTCUsecase{
		verifier:     verifier,
		hot:          hot,
		reader:       reader,
		endpointRepo: endpointRepo,
		referralRepo: referralRepo,
		userInfoRepo: userInfoRepo,
		ipfs:         ipfs,
		authWindow:   authWindow,
		subs:         make(map[string][]*Subscription),
		now:          time.Now,
	}
}

// Subscribe authenticates a relay socket. The auth envelope's message must
// be signed by ethAddress and embed the envelope timestamp, which must fall
// inside the freshness window. When the rules name an offer, the address
// must be a party to it and the counterparty becomes the signaling peer.
func (u *WebRTCUsecase) Subscribe(ctx context.Context, ethAddress string, auth entities.RelayAuth) (*Subscription, error) {
	now := u.now()
	ts := time.Unix(auth.Timestamp, 0)
	if auth.Timestamp == 0 || now.Sub(ts) > u.authWindow || ts.Sub(now) > u.authWindow {
		return nil, domainerrors.AuthError("auth timestamp outside freshness window")
	}
	// binding the timestamp into the signed text is what makes the
	// freshness check meaningful
	if !strings.Contains(auth.Message, strconv.FormatInt(auth.Timestamp, 10)) {
		return nil, domainerrors.AuthError("auth message does not bind timestamp")
	}

	signer, err := u.verifier.RecoverPersonal(auth.Message, auth.Signature)
	if err != nil || !strings.EqualFold(signer, ethAddress) {
		return nil, domainerrors.AuthError("signature does not recover to subscriber address")
	}

	sub := &Subscription{
		usecase:    u,
		ethAddress: normalizeAddress(ethAddress),
		rules:      auth.Rules,
	}

	if auth.Rules.OfferID != "" {
		peer, err := u.peerForOffer(ctx, ethAddress, auth.Rules)
		if err != nil {
			return nil, err
		}
		sub.peerAddress = peer
	}

	u.mu.Lock()
	u.subs[sub.ethAddress] = append(u.subs[sub.ethAddress], sub)
	metrics.ActiveRelaySubscriptions.Inc()
	u.mu.Unlock()

	if err := u.endpointRepo.TouchLastOnline(ctx, sub.ethAddress, now); err != nil {
		logger.Debug(ctx, "Touch last online failed", zap.Error(err))
	}

	logger.Debug(ctx, "Relay subscription opened",
		zap.String("address", sub.ethAddress), zap.String("peer", sub.peerAddress))
	return sub, nil
}

// peerForOffer checks the subscriber is a party to the offer the rules name
// and returns the counterparty address.
func (u *WebRTCUsecase) peerForOffer(ctx context.Context, ethAddress string, rules entities.SubscriptionRules) (string, error) {
	listingID, offerID, err := parseRuleIDs(rules)
	if err != nil {
		return "", domainerrors.AuthError("malformed subscription rules")
	}

	offer, err := u.reader.GetOffer(ctx, listingID, offerID)
	if err != nil {
		return "", domainerrors.NotFound("offer not found")
	}

	switch {
	case strings.EqualFold(offer.Buyer, ethAddress):
		return normalizeAddress(offer.Seller), nil
	case strings.EqualFold(offer.Seller, ethAddress):
		return normalizeAddress(offer.Buyer), nil
	}
	return "", domainerrors.Forbidden("subscriber is not a party to the offer")
}

func parseRuleIDs(rules entities.SubscriptionRules) (*big.Int, *big.Int, error) {
	if rules.ListingID != "" {
		listing, ok := new(big.Int).SetString(rules.ListingID, 10)
		if !ok {
			return nil, nil, fmt.Errorf("malformed listing id %q", rules.ListingID)
		}
		offer, ok := new(big.Int).SetString(rules.OfferID, 10)
		if !ok {
			return nil, nil, fmt.Errorf("malformed offer id %q", rules.OfferID)
		}
		return listing, offer, nil
	}
	return parseCompositeOfferID(rules.OfferID)
}

// routeToPeer delivers a frame to every live subscription of the sender's
// peer that points back at the sender. Returns whether anything was live.
func (u *WebRTCUsecase) routeToPeer(from *Subscription, frame json.RawMessage) bool {
	if from.peerAddress == "" {
		return false
	}

	u.mu.RLock()
	var targets []*Subscription
	for _, sub := range u.subs[from.peerAddress] {
		if sub.peerAddress == from.ethAddress {
			targets = append(targets, sub)
		}
	}
	u.mu.RUnlock()

	for _, sub := range targets {
		sub.deliver(frame)
	}
	return len(targets) > 0
}

func (u *WebRTCUsecase) detach(sub *Subscription) {
	u.mu.Lock()
	defer u.mu.Unlock()

	list := u.subs[sub.ethAddress]
	for i, s := range list {
		if s == sub {
			list = append(list[:i], list[i+1:]...)
			metrics.ActiveRelaySubscriptions.Dec()
			break
		}
	}
	if len(list) == 0 {
		delete(u.subs, sub.ethAddress)
	} else {
		u.subs[sub.ethAddress] = list
	}
}

// GetActiveAddresses lists addresses with at least one live subscription
func (u *WebRTCUsecase) GetActiveAddresses() []string {
	u.mu.RLock()
	defer u.mu.RUnlock()

	addresses := make([]string, 0, len(u.subs))
	for addr := range u.subs {
		addresses = append(addresses, addr)
	}
	return addresses
}

// verifySignedOperation checks the canonical-message pattern every signed
// off-chain operation shares: the account signed the message text, and the
// message is the JSON payload of the operation itself.
func (u *WebRTCUsecase) verifySignedOperation(account, message, signature string, payload interface{}) error {
	signer, err := u.verifier.RecoverPersonal(message, signature)
	if err != nil || !strings.EqualFold(signer, account) {
		return domainerrors.AuthError("signature does not recover to account")
	}
	if err := json.Unmarshal([]byte(message), payload); err != nil {
		return domainerrors.BadRequest("malformed operation payload")
	}
	return nil
}

// RegisterReferral persists attest/referral URLs signed by the account
func (u *WebRTCUsecase) RegisterReferral(ctx context.Context, account, message, signature string) error {
	var payload struct {
		AttestURL   string `json:"attestURL"`
		ReferralURL string `json:"referralURL"`
	}
	if err := u.verifySignedOperation(account, message, signature, &payload); err != nil {
		return err
	}
	if payload.AttestURL == "" && payload.ReferralURL == "" {
		return domainerrors.BadRequest("no urls in referral payload")
	}

	return u.referralRepo.Create(ctx, &entities.Referral{
		EthAddress:  normalizeAddress(account),
		AttestURL:   payload.AttestURL,
		ReferralURL: payload.ReferralURL,
	})
}

// GetAllAttests lists the attest URLs registered for an account
func (u *WebRTCUsecase) GetAllAttests(ctx context.Context, account string) ([]string, error) {
	referrals, err := u.referralRepo.GetByEthAddress(ctx, normalizeAddress(account))
	if err != nil {
		return nil, err
	}

	attests := make([]string, 0, len(referrals))
	for _, r := range referrals {
		if r.AttestURL != "" {
			attests = append(attests, r.AttestURL)
		}
	}
	return attests, nil
}

// SubmitUserInfo pins a signed profile object and records its content hash
func (u *WebRTCUsecase) SubmitUserInfo(ctx context.Context, account, message, signature string) (*entities.UserInfo, error) {
	var payload json.RawMessage
	if err := u.verifySignedOperation(account, message, signature, &payload); err != nil {
		return nil, err
	}

	hash, err := u.ipfs.PutObject(ctx, payload)
	if err != nil {
		logger.Error(ctx, "User info pin failed", zap.Error(err))
		return nil, domainerrors.InternalError(err)
	}

	info := &entities.UserInfo{
		EthAddress: normalizeAddress(account),
		IpfsHash:   hash,
		Info:       payload,
		UpdatedAt:  u.now(),
	}
	if err := u.userInfoRepo.Upsert(ctx, info); err != nil {
		return nil, err
	}
	return info, nil
}

// GetUserInfo fetches the stored profile for an account
func (u *WebRTCUsecase) GetUserInfo(ctx context.Context, account string) (*entities.UserInfo, error) {
	info, err := u.userInfoRepo.GetByEthAddress(ctx, normalizeAddress(account))
	if err != nil {
		return nil, domainerrors.NotFound("no user info for account")
	}
	return info, nil
}

// VerifyAcceptOffer relays an on-behalf accept: the seller's typed accept
// signature must recover to the listing's seller and the fee must clear the
// operator minimum before anything is submitted.
func (u *WebRTCUsecase) VerifyAcceptOffer(ctx context.Context, compositeID, ipfsHash string, behalfFee *big.Int, signature string) (string, error) {
	listingID, offerID, err := parseCompositeOfferID(compositeID)
	if err != nil {
		return "", domainerrors.BadRequest(err.Error())
	}

	offer, err := u.reader.GetOffer(ctx, listingID, offerID)
	if err != nil {
		return "", domainerrors.NotFound("offer not found")
	}

	ipfsBytes, err := u.hot.hashes.HashToBytes32(ipfsHash)
	if err != nil {
		return "", domainerrors.BadRequest("malformed ipfs hash")
	}

	signer, err := u.hot.RecoverAccept(listingID, offerID, ipfsBytes, behalfFee, signature)
	if err != nil {
		return "", err
	}
	if !strings.EqualFold(signer, offer.Seller) {
		return "", domainerrors.AuthError("accept signature does not recover to seller")
	}

	return u.hot.SubmitMarketplace(ctx, "acceptOfferOnBehalf", []interface{}{
		listingID, offerID, hexutil.Encode(ipfsBytes[:]), behalfFee, signature,
	})
}

// VerifySubmitFinalize relays a verified on-behalf finalize carrying both
// the seller's and the verifier's finalize signatures.
func (u *WebRTCUsecase) VerifySubmitFinalize(ctx context.Context, compositeID, ipfsHash string, behalfFee *big.Int, sellerSig, verifierSig string) (string, error) {
	listingID, offerID, err := parseCompositeOfferID(compositeID)
	if err != nil {
		return "", domainerrors.BadRequest(err.Error())
	}

	offer, err := u.reader.GetOffer(ctx, listingID, offerID)
	if err != nil {
		return "", domainerrors.NotFound("offer not found")
	}

	ipfsBytes, err := u.hot.hashes.HashToBytes32(ipfsHash)
	if err != nil {
		return "", domainerrors.BadRequest("malformed ipfs hash")
	}

	payout := offer.Payout()
	seller, err := u.hot.RecoverFinalize(listingID, offerID, ipfsBytes, payout, behalfFee, sellerSig)
	if err != nil {
		return "", err
	}
	if !strings.EqualFold(seller, offer.Seller) {
		return "", domainerrors.AuthError("finalize signature does not recover to seller")
	}

	verifier, err := u.hot.RecoverFinalize(listingID, offerID, ipfsBytes, payout, behalfFee, verifierSig)
	if err != nil {
		return "", err
	}
	expectedVerifier := offer.Verifier
	if expectedVerifier == "" || isZeroAddress(expectedVerifier) {
		expectedVerifier = u.hot.Address()
	}
	if !strings.EqualFold(verifier, expectedVerifier) {
		return "", domainerrors.AuthError("finalize signature does not recover to verifier")
	}

	return u.hot.SubmitMarketplace(ctx, "verifiedOnBehalfFinalize", []interface{}{
		listingID, offerID, hexutil.Encode(ipfsBytes[:]), behalfFee, payout, behalfFee, sellerSig, verifierSig,
	})
}

// NotificationEndpoints lists active devices registered for an address,
// for wake-ups when a peer is offline.
func (u *WebRTCUsecase) NotificationEndpoints(ctx context.Context, account string) ([]*entities.NotificationEndpoint, error) {
	return u.endpointRepo.GetByEthAddress(ctx, normalizeAddress(account))
}

func isZeroAddress(addr string) bool {
	trimmed := strings.TrimPrefix(strings.ToLower(addr), "0x")
	for _, c := range trimmed {
		if c != '0' {
			return false
		}
	}
	return trimmed != ""
}
