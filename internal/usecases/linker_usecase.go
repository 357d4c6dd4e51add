package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"
	"go.uber.org/zap"

	"wallet-link.backend/internal/domain/entities"
	domainerrors "wallet-link.backend/internal/domain/errors"
	"wallet-link.backend/internal/domain/repositories"
	"wallet-link.backend/internal/metrics"
	"wallet-link.backend/pkg/logger"
	"wallet-link.backend/pkg/mailbox"
	"wallet-link.backend/pkg/token"
)

// Message types pushed through recipient mailboxes
const (
	MsgTypeLinked       = "LINKED"
	MsgTypeUnlinked     = "UNLINKED"
	MsgTypeCall         = "CALL"
	MsgTypeCallResponse = "CALL_RESPONSE"
	MsgTypeEthNotify    = "ETH_NOTIFY"
)

const (
	sessionChannelPrefix = "session:"
	walletChannelPrefix  = "wallet:"
)

// CodeStore is the short-TTL pairing code storage collaborator
type CodeStore interface {
	Save(ctx context.Context, code string, value interface{}, ttl time.Duration) error
	Peek(ctx context.Context, code string, dest interface{}) error
	Consume(ctx context.Context, code string, dest interface{}) error
	Delete(ctx context.Context, code string) error
}

// ErrCodeNotFound must be returned by CodeStore implementations for unknown
// or already-consumed codes; re-declared here so the usecase does not import
// the redis adapter.
var ErrCodeNotFound = errors.New("code not found")

// LinkerUsecase is the token/code registry and link state machine. The
// durable link store is the source of truth; the active-link cache and the
// pending-call table are a session layer rebuilt on restart.
type LinkerUsecase struct {
	linkRepo     repositories.LinkRepository
	endpointRepo repositories.NotificationEndpointRepository
	codes        CodeStore
	mbox         *mailbox.Mailbox

	codeTTL time.Duration

	mu           sync.RWMutex
	activeBySession map[string]*entities.Link
	pendingCalls map[string]*entities.PendingCall // linkID+callID

	now func() time.Time
}

// NewLinkerUsecase creates the registry
func NewLinkerUsecase(
	linkRepo repositories.LinkRepository,
	endpointRepo repositories.NotificationEndpointRepository,
	codes CodeStore,
	mbox *mailbox.Mailbox,
	codeTTL time.Duration,
) *LinkerUsecase {
	return &LinkerUsecase{
		linkRepo:        linkRepo,
		endpointRepo:    endpointRepo,
		codes:           codes,
		mbox:            mbox,
		codeTTL:         codeTTL,
		activeBySession: make(map[string]*entities.Link),
		pendingCalls:    make(map[string]*entities.PendingCall),
		now:             time.Now,
	}
}

// WarmCache reloads active links from the store after a restart
func (u *LinkerUsecase) WarmCache(ctx context.Context) error {
	links, err := u.linkRepo.GetActive(ctx)
	if err != nil {
		return err
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	u.activeBySession = make(map[string]*entities.Link, len(links))
	for _, link := range links {
		u.activeBySession[link.SessionToken] = link
	}
	metrics.ActiveLinks.Set(float64(len(u.activeBySession)))
	return nil
}

func (u *LinkerUsecase) cacheActivate(link *entities.Link) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.activeBySession[link.SessionToken] = link
	metrics.ActiveLinks.Set(float64(len(u.activeBySession)))
}

func (u *LinkerUsecase) cacheDeactivateSession(sessionToken string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.activeBySession, sessionToken)
	metrics.ActiveLinks.Set(float64(len(u.activeBySession)))
}

func (u *LinkerUsecase) activeLink(ctx context.Context, sessionToken string) *entities.Link {
	u.mu.RLock()
	link, ok := u.activeBySession[sessionToken]
	u.mu.RUnlock()
	if ok {
		return link
	}

	// cache miss: fall back to the store
	link, err := u.linkRepo.GetActiveBySession(ctx, sessionToken)
	if err != nil {
		return nil
	}
	u.cacheActivate(link)
	return link
}

// sessionState derives the pairing state of a session for transition checks
func (u *LinkerUsecase) sessionState(ctx context.Context, sessionToken string, hasCode bool) entities.LinkState {
	if link := u.activeLink(ctx, sessionToken); link != nil {
		return entities.LinkStateLinked
	}
	if hasCode {
		return entities.LinkStatePrelinked
	}
	return entities.LinkStateUnlinked
}

// GenerateCodeInput carries the browser-side pairing request
type GenerateCodeInput struct {
	ClientToken  string
	SessionToken string
	PubKey       string
	UserAgent    string
	ReturnURL    string
	PendingCall  *entities.PendingCall
	NotifyWallet bool
}

// GenerateCodeResult reports the minted credentials
type GenerateCodeResult struct {
	ClientToken  string
	SessionToken string
	Code         string
	Linked       bool
}

// GenerateCode starts the browser-initiated pairing flow. Missing tokens are
// minted; an existing session reports `Linked` so a page refresh is
// idempotent rather than silently producing a second active link.
func (u *LinkerUsecase) GenerateCode(ctx context.Context, input GenerateCodeInput) (*GenerateCodeResult, error) {
	clientToken := input.ClientToken
	if clientToken == "" {
		var err error
		if clientToken, err = token.NewToken(); err != nil {
			return nil, err
		}
	}

	sessionToken := input.SessionToken
	if sessionToken == "" {
		var err error
		if sessionToken, err = token.NewToken(); err != nil {
			return nil, err
		}
	}

	code, err := token.NewCode()
	if err != nil {
		return nil, err
	}

	now := u.now()
	pairing := &entities.PairingCode{
		Code:         code,
		SessionToken: sessionToken,
		ClientToken:  clientToken,
		AppInfo: entities.AppInfo{
			UserAgent: input.UserAgent,
			ReturnURL: input.ReturnURL,
		},
		PubKey:       input.PubKey,
		PendingCall:  input.PendingCall,
		NotifyWallet: input.NotifyWallet,
		LinkID:       uuid.New(),
		CreatedAt:    now,
		ExpiresAt:    now.Add(u.codeTTL),
	}
	if pairing.PendingCall != nil {
		pairing.PendingCall.Status = entities.PendingCallStatusPending
		pairing.PendingCall.CreatedAt = now
		pairing.PendingCall.SessionToken = sessionToken
	}

	if err := u.codes.Save(ctx, code, pairing, u.codeTTL); err != nil {
		return nil, err
	}

	logger.Debug(ctx, "Pairing code generated",
		zap.String("session", token.Fingerprint(sessionToken)),
		zap.String("link_id", pairing.LinkID.String()))

	return &GenerateCodeResult{
		ClientToken:  clientToken,
		SessionToken: sessionToken,
		Code:         code,
		Linked:       u.activeLink(ctx, sessionToken) != nil,
	}, nil
}

// LinkInfo describes a pending code to the wallet before redemption
type LinkInfo struct {
	AppInfo entities.AppInfo `json:"app_info"`
	LinkID  uuid.UUID        `json:"link_id"`
	PubKey  string           `json:"pub_key,omitempty"`
}

// GetLinkInfo looks up a pending code without consuming it
func (u *LinkerUsecase) GetLinkInfo(ctx context.Context, code string) (*LinkInfo, error) {
	var pairing entities.PairingCode
	if err := u.codes.Peek(ctx, code, &pairing); err != nil {
		if isCodeMiss(err) {
			return nil, domainerrors.NotFound("unknown or expired code")
		}
		return nil, err
	}
	if pairing.Expired(u.now()) {
		_ = u.codes.Delete(ctx, code)
		return nil, domainerrors.NotFound("unknown or expired code")
	}

	return &LinkInfo{
		AppInfo: pairing.AppInfo,
		LinkID:  pairing.LinkID,
		PubKey:  pairing.PubKey,
	}, nil
}

// LinkWalletResult reports a successful browser-code redemption
type LinkWalletResult struct {
	Linked             bool
	PendingCallContext *entities.PendingCall
	AppInfo            entities.AppInfo
	LinkID             uuid.UUID
	LinkedAt           time.Time
}

// LinkWallet redeems a browser-generated code. The code is consumed
// atomically so a second redemption fails with InvalidCode; creating the
// link deactivates any prior active link for the session.
func (u *LinkerUsecase) LinkWallet(ctx context.Context, walletToken, code, currentRPC string, currentAccounts []string, privData string) (*LinkWalletResult, error) {
	if walletToken == "" {
		return nil, domainerrors.BadRequest("wallet token required")
	}

	var pairing entities.PairingCode
	if err := u.codes.Consume(ctx, code, &pairing); err != nil {
		if isCodeMiss(err) {
			return nil, invalidCode()
		}
		return nil, err
	}

	now := u.now()
	if pairing.Expired(now) {
		return nil, invalidCode()
	}
	if pairing.SessionToken == "" {
		// a prelink code cannot be redeemed on the wallet side
		return nil, invalidCode()
	}
	// A code generated against a dapp public key must carry back data
	// encrypted to that key; an empty payload means the wallet could not
	// honor the key exchange.
	if pairing.PubKey != "" && privData == "" {
		return nil, domainerrors.NewAppError(400, domainerrors.CodeWalletMismatch, "wallet key mismatch", domainerrors.ErrWalletMismatch)
	}

	state := u.sessionState(ctx, pairing.SessionToken, true)
	if !state.CanTransition(entities.LinkStateLinked) && state != entities.LinkStateLinked {
		return nil, invalidCode()
	}

	// one active link per session: replace atomically
	if prior := u.activeLink(ctx, pairing.SessionToken); prior != nil {
		if err := u.linkRepo.DeactivateBySession(ctx, pairing.SessionToken); err != nil {
			return nil, err
		}
		u.cacheDeactivateSession(pairing.SessionToken)
	}

	link := &entities.Link{
		ID:              pairing.LinkID,
		WalletToken:     walletToken,
		SessionToken:    pairing.SessionToken,
		ClientToken:     pairing.ClientToken,
		AppInfo:         pairing.AppInfo,
		PubKey:          pairing.PubKey,
		CurrentRPC:      currentRPC,
		CurrentAccounts: currentAccounts,
		PrivData:        privData,
		NotifyWallet:    pairing.NotifyWallet,
		Active:          true,
		LinkedAt:        null.TimeFrom(now),
	}
	if err := u.linkRepo.Create(ctx, link); err != nil {
		return nil, err
	}
	u.cacheActivate(link)

	result := &LinkWalletResult{
		Linked:   true,
		AppInfo:  pairing.AppInfo,
		LinkID:   link.ID,
		LinkedAt: now,
	}

	if pairing.PendingCall != nil {
		pairing.PendingCall.Status = entities.PendingCallStatusDelivered
		u.trackPendingCall(link.ID, pairing.PendingCall)
		result.PendingCallContext = pairing.PendingCall
	}

	u.publishSession(pairing.SessionToken, map[string]interface{}{
		"type":             MsgTypeLinked,
		"link_id":          link.ID.String(),
		"current_rpc":      currentRPC,
		"current_accounts": currentAccounts,
		"priv_data":        privData,
		"linked_at":        now,
	})

	logger.Info(ctx, "Wallet linked",
		zap.String("link_id", link.ID.String()),
		zap.String("wallet", token.Fingerprint(walletToken)))

	return result, nil
}

// PrelinkResult reports a wallet-initiated pairing code
type PrelinkResult struct {
	WalletToken string
	Code        string
	LinkID      uuid.UUID
}

// PrelinkWallet starts the reverse flow: the wallet mints a code the
// browser later redeems through LinkPrelinked.
func (u *LinkerUsecase) PrelinkWallet(ctx context.Context, walletToken, pubKey, currentRPC string, currentAccounts []string, privData string) (*PrelinkResult, error) {
	if walletToken == "" {
		var err error
		if walletToken, err = token.NewToken(); err != nil {
			return nil, err
		}
	}

	code, err := token.NewCode()
	if err != nil {
		return nil, err
	}

	now := u.now()
	pairing := &entities.PairingCode{
		Code:            code,
		WalletToken:     walletToken,
		LinkID:          uuid.New(),
		PubKey:          pubKey,
		CurrentRPC:      currentRPC,
		CurrentAccounts: currentAccounts,
		PrivData:        privData,
		CreatedAt:       now,
		ExpiresAt:       now.Add(u.codeTTL),
	}
	if err := u.codes.Save(ctx, code, pairing, u.codeTTL); err != nil {
		return nil, err
	}

	return &PrelinkResult{
		WalletToken: walletToken,
		Code:        code,
		LinkID:      pairing.LinkID,
	}, nil
}

// LinkPrelinkedResult reports a completed reverse-flow pairing
type LinkPrelinkedResult struct {
	ClientToken  string
	SessionToken string
	Linked       bool
}

// LinkPrelinked completes the wallet-initiated flow from the browser side
func (u *LinkerUsecase) LinkPrelinked(ctx context.Context, code string, linkID uuid.UUID, userAgent, returnURL string) (*LinkPrelinkedResult, error) {
	var pairing entities.PairingCode
	if err := u.codes.Consume(ctx, code, &pairing); err != nil {
		if isCodeMiss(err) {
			return nil, invalidCode()
		}
		return nil, err
	}

	now := u.now()
	if pairing.Expired(now) || pairing.WalletToken == "" || pairing.LinkID != linkID {
		return nil, invalidCode()
	}

	clientToken, err := token.NewToken()
	if err != nil {
		return nil, err
	}
	sessionToken, err := token.NewToken()
	if err != nil {
		return nil, err
	}

	link := &entities.Link{
		ID:           pairing.LinkID,
		WalletToken:  pairing.WalletToken,
		SessionToken: sessionToken,
		ClientToken:  clientToken,
		AppInfo: entities.AppInfo{
			UserAgent: userAgent,
			ReturnURL: returnURL,
		},
		PubKey:          pairing.PubKey,
		CurrentRPC:      pairing.CurrentRPC,
		CurrentAccounts: pairing.CurrentAccounts,
		PrivData:        pairing.PrivData,
		Active:          true,
		LinkedAt:        null.TimeFrom(now),
	}
	if err := u.linkRepo.Create(ctx, link); err != nil {
		return nil, err
	}
	u.cacheActivate(link)

	u.publishWallet(pairing.WalletToken, map[string]interface{}{
		"type":      MsgTypeLinked,
		"link_id":   link.ID.String(),
		"app_info":  link.AppInfo,
		"linked_at": now,
	})

	return &LinkPrelinkedResult{
		ClientToken:  clientToken,
		SessionToken: sessionToken,
		Linked:       true,
	}, nil
}

// CallWallet enqueues a contract call for the linked wallet to sign. Fails
// silently (false) when the session has no active link.
func (u *LinkerUsecase) CallWallet(ctx context.Context, clientToken, sessionToken, account, callID string, call json.RawMessage, returnURL string) bool {
	link := u.activeLink(ctx, sessionToken)
	if link == nil {
		return false
	}
	if !token.Equal(link.ClientToken, clientToken) {
		return false
	}

	pending := &entities.PendingCall{
		CallID:       callID,
		Account:      account,
		Call:         call,
		ReturnURL:    returnURL,
		SessionToken: sessionToken,
		Status:       entities.PendingCallStatusDelivered,
		CreatedAt:    u.now(),
	}
	u.trackPendingCall(link.ID, pending)

	u.publishWallet(link.WalletToken, map[string]interface{}{
		"type":          MsgTypeCall,
		"call_id":       callID,
		"call":          call,
		"account":       account,
		"return_url":    returnURL,
		"link_id":       link.ID.String(),
		"session_token": sessionToken,
	})
	return true
}

// WalletCalled resolves a pending call exactly once and routes the result
// back to the session's message stream.
func (u *LinkerUsecase) WalletCalled(ctx context.Context, walletToken, callID string, linkID uuid.UUID, sessionToken string, result json.RawMessage) bool {
	link, err := u.linkRepo.GetByID(ctx, linkID)
	if err != nil {
		return false
	}
	if !token.Equal(link.WalletToken, walletToken) {
		return false
	}
	if sessionToken == "" {
		sessionToken = link.SessionToken
	} else if !token.Equal(link.SessionToken, sessionToken) {
		return false
	}

	if !u.resolvePendingCall(linkID, callID) {
		return false
	}

	u.publishSession(sessionToken, map[string]interface{}{
		"type":    MsgTypeCallResponse,
		"call_id": callID,
		"result":  result,
		"link_id": linkID.String(),
	})
	return true
}

// Unlink deactivates every active link held by the browser identified by
// the client token. Idempotent: a second call is a no-op reporting success.
func (u *LinkerUsecase) Unlink(ctx context.Context, clientToken string) bool {
	if clientToken == "" {
		return false
	}

	u.mu.Lock()
	var sessions []string
	var wallets []string
	for session, link := range u.activeBySession {
		if link.ClientToken == clientToken {
			sessions = append(sessions, session)
			wallets = append(wallets, link.WalletToken)
		}
	}
	for _, session := range sessions {
		delete(u.activeBySession, session)
	}
	metrics.ActiveLinks.Set(float64(len(u.activeBySession)))
	u.mu.Unlock()

	if _, err := u.linkRepo.DeactivateByClientToken(ctx, clientToken); err != nil {
		logger.Error(ctx, "Unlink failed", zap.Error(err))
		return false
	}

	for i, session := range sessions {
		u.publishSession(session, map[string]interface{}{"type": MsgTypeUnlinked})
		u.publishWallet(wallets[i], map[string]interface{}{"type": MsgTypeUnlinked})
	}
	return true
}

// UnlinkWallet deactivates one of the wallet's own links. Idempotent.
func (u *LinkerUsecase) UnlinkWallet(ctx context.Context, walletToken string, linkID uuid.UUID) bool {
	link, err := u.linkRepo.GetByID(ctx, linkID)
	if err != nil {
		return false
	}
	if !token.Equal(link.WalletToken, walletToken) {
		return false
	}
	if !link.Active {
		return true
	}

	if err := u.linkRepo.Deactivate(ctx, linkID); err != nil {
		logger.Error(ctx, "Unlink wallet failed", zap.Error(err))
		return false
	}
	u.cacheDeactivateSession(link.SessionToken)
	u.publishSession(link.SessionToken, map[string]interface{}{"type": MsgTypeUnlinked})
	return true
}

// GetWalletLinks lists the wallet's link history, most recent first
func (u *LinkerUsecase) GetWalletLinks(ctx context.Context, walletToken string) ([]*entities.LinkSummary, error) {
	links, err := u.linkRepo.GetByWalletToken(ctx, walletToken)
	if err != nil {
		return nil, err
	}

	summaries := make([]*entities.LinkSummary, 0, len(links))
	for _, link := range links {
		summaries = append(summaries, &entities.LinkSummary{
			LinkID:       link.ID,
			AppInfo:      link.AppInfo,
			Linked:       link.Active,
			NotifyWallet: link.NotifyWallet,
			LinkedAt:     link.LinkedAt,
			UnlinkedAt:   link.UnlinkedAt,
		})
	}
	return summaries, nil
}

// UpdateWalletLinks bulk-updates notification preferences. Links not owned
// by the wallet are silently skipped and not counted.
func (u *LinkerUsecase) UpdateWalletLinks(ctx context.Context, walletToken string, updates []entities.LinkUpdate) int {
	count := 0
	for _, update := range updates {
		linkID, err := uuid.Parse(update.LinkID)
		if err != nil {
			continue
		}
		ok, err := u.linkRepo.SetNotifyWallet(ctx, walletToken, linkID, update.NotifyWallet)
		if err != nil {
			logger.Error(ctx, "Update wallet link failed", zap.Error(err), zap.String("link_id", update.LinkID))
			continue
		}
		if ok {
			count++
		}
	}
	return count
}

// RegisterWalletNotification registers a wallet device for relay wake-ups
func (u *LinkerUsecase) RegisterWalletNotification(ctx context.Context, walletToken, ethAddress, deviceType, deviceToken string) bool {
	err := u.endpointRepo.Upsert(ctx, &entities.NotificationEndpoint{
		EthAddress:  ethAddress,
		WalletToken: walletToken,
		DeviceToken: deviceToken,
		DeviceType:  deviceType,
		Active:      true,
	})
	if err != nil {
		logger.Error(ctx, "Register wallet notification failed", zap.Error(err))
		return false
	}
	return true
}

// EthNotify pushes a wake-up to every linked wallet holding one of the
// receiver accounts.
func (u *LinkerUsecase) EthNotify(receivers []string) {
	lookup := make(map[string]bool, len(receivers))
	for _, addr := range receivers {
		lookup[normalizeAddress(addr)] = true
	}

	u.mu.RLock()
	var walletTokens []string
	seen := make(map[string]bool)
	for _, link := range u.activeBySession {
		for _, account := range link.CurrentAccounts {
			if lookup[normalizeAddress(account)] && !seen[link.WalletToken] {
				seen[link.WalletToken] = true
				walletTokens = append(walletTokens, link.WalletToken)
			}
		}
	}
	u.mu.RUnlock()

	for _, walletToken := range walletTokens {
		u.publishWallet(walletToken, map[string]interface{}{"type": MsgTypeEthNotify})
	}
}

// HasActiveWalletLink reports whether the wallet token holds any active link
func (u *LinkerUsecase) HasActiveWalletLink(ctx context.Context, walletToken string) bool {
	u.mu.RLock()
	for _, link := range u.activeBySession {
		if token.Equal(link.WalletToken, walletToken) {
			u.mu.RUnlock()
			return true
		}
	}
	u.mu.RUnlock()

	links, err := u.linkRepo.GetByWalletToken(ctx, walletToken)
	if err != nil {
		return false
	}
	for _, link := range links {
		if link.Active {
			return true
		}
	}
	return false
}

// HandleSessionMessages attaches a live subscriber to the session channel
// after replaying history past readID. The client token must own the
// session's active link, if one exists.
func (u *LinkerUsecase) HandleSessionMessages(ctx context.Context, clientToken, sessionToken string, readID uint64, handler mailbox.Handler) (func(), error) {
	if clientToken == "" {
		return nil, domainerrors.Unauthorized("no client token available")
	}
	if sessionToken == "" {
		return nil, domainerrors.BadRequest("session token required")
	}
	if link := u.activeLink(ctx, sessionToken); link != nil && !token.Equal(link.ClientToken, clientToken) {
		return nil, domainerrors.Forbidden("session not owned by client")
	}

	return u.mbox.Subscribe(sessionChannelPrefix+sessionToken, readID, handler), nil
}

// HandleWalletMessages attaches a live subscriber to the wallet channel
func (u *LinkerUsecase) HandleWalletMessages(walletToken string, readID uint64, handler mailbox.Handler) (func(), error) {
	if walletToken == "" {
		return nil, domainerrors.BadRequest("wallet token required")
	}
	return u.mbox.Subscribe(walletChannelPrefix+walletToken, readID, handler), nil
}

func (u *LinkerUsecase) publishSession(sessionToken string, payload map[string]interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	metrics.MailboxPublished.WithLabelValues("session").Inc()
	u.mbox.Publish(sessionChannelPrefix+sessionToken, data)
}

func (u *LinkerUsecase) publishWallet(walletToken string, payload map[string]interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	metrics.MailboxPublished.WithLabelValues("wallet").Inc()
	u.mbox.Publish(walletChannelPrefix+walletToken, data)
}

func (u *LinkerUsecase) trackPendingCall(linkID uuid.UUID, call *entities.PendingCall) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.pendingCalls[pendingCallKey(linkID, call.CallID)] = call
}

// resolvePendingCall flips a call to resolved exactly once. Calls unknown to
// this process (queued before a restart) resolve permissively: the durable
// result routing is by linkID+callID, not by the in-memory table.
func (u *LinkerUsecase) resolvePendingCall(linkID uuid.UUID, callID string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()

	key := pendingCallKey(linkID, callID)
	call, ok := u.pendingCalls[key]
	if !ok {
		return true
	}
	if call.Status == entities.PendingCallStatusResolved {
		return false
	}
	call.Status = entities.PendingCallStatusResolved
	return true
}

func pendingCallKey(linkID uuid.UUID, callID string) string {
	return linkID.String() + ":" + callID
}

func invalidCode() *domainerrors.AppError {
	return domainerrors.NewAppError(400, domainerrors.CodeInvalidCode, "invalid or expired code", domainerrors.ErrInvalidCode)
}

func isCodeMiss(err error) bool {
	return err != nil && (errors.Is(err, ErrCodeNotFound) || err.Error() == ErrCodeNotFound.Error())
}

func normalizeAddress(addr string) string {
	out := make([]byte, 0, len(addr))
	for i := 0; i < len(addr); i++ {
		c := addr[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out = append(out, c)
	}
	return string(out)
}
