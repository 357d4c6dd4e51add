package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"wallet-link.backend/internal/domain/entities"
	domainerrors "wallet-link.backend/internal/domain/errors"
	"wallet-link.backend/internal/interfaces/http/middleware"
	"wallet-link.backend/internal/interfaces/http/response"
	"wallet-link.backend/internal/usecases"
	"wallet-link.backend/pkg/jwt"
	"wallet-link.backend/pkg/token"
)

type LinkerService interface {
	GenerateCode(ctx context.Context, input usecases.GenerateCodeInput) (*usecases.GenerateCodeResult, error)
	GetLinkInfo(ctx context.Context, code string) (*usecases.LinkInfo, error)
	LinkWallet(ctx context.Context, walletToken, code, currentRPC string, currentAccounts []string, privData string) (*usecases.LinkWalletResult, error)
	PrelinkWallet(ctx context.Context, walletToken, pubKey, currentRPC string, currentAccounts []string, privData string) (*usecases.PrelinkResult, error)
	LinkPrelinked(ctx context.Context, code string, linkID uuid.UUID, userAgent, returnURL string) (*usecases.LinkPrelinkedResult, error)
	CallWallet(ctx context.Context, clientToken, sessionToken, account, callID string, call json.RawMessage, returnURL string) bool
	WalletCalled(ctx context.Context, walletToken, callID string, linkID uuid.UUID, sessionToken string, result json.RawMessage) bool
	Unlink(ctx context.Context, clientToken string) bool
	UnlinkWallet(ctx context.Context, walletToken string, linkID uuid.UUID) bool
	GetWalletLinks(ctx context.Context, walletToken string) ([]*entities.LinkSummary, error)
	UpdateWalletLinks(ctx context.Context, walletToken string, updates []entities.LinkUpdate) int
	RegisterWalletNotification(ctx context.Context, walletToken, ethAddress, deviceType, deviceToken string) bool
	EthNotify(receivers []string)
}

// ServerInfo is the static metadata surface of /server-info
type ServerInfo struct {
	ContractAddress string `json:"contract_address"`
	ContractVersion string `json:"contract_version"`
	NetworkID       string `json:"network_id"`
	VerifierAddress string `json:"verifier_address,omitempty"`
	IPFSGateway     string `json:"ipfs_gateway,omitempty"`
}

// LinkHandler handles pairing and link lifecycle endpoints
type LinkHandler struct {
	linker      LinkerService
	tokens      *jwt.ClientTokenService
	serverInfo  ServerInfo
	notifyToken string
}

// NewLinkHandler creates a new link handler
func NewLinkHandler(linker LinkerService, tokens *jwt.ClientTokenService, serverInfo ServerInfo, notifyToken string) *LinkHandler {
	return &LinkHandler{
		linker:      linker,
		tokens:      tokens,
		serverInfo:  serverInfo,
		notifyToken: notifyToken,
	}
}

func (h *LinkHandler) setClientTokenCookie(c *gin.Context, clientToken string) {
	cookie, err := h.tokens.Issue(clientToken)
	if err != nil {
		return
	}
	c.SetCookie(middleware.ClientTokenCookie, cookie,
		int(h.tokens.Expiry().Seconds()), "/", "", false, true)
}

// GenerateCode starts a browser-side pairing
// POST /generate-code
func (h *LinkHandler) GenerateCode(c *gin.Context) {
	var input struct {
		SessionToken string                `json:"session_token"`
		PubKey       string                `json:"pub_key"`
		ReturnURL    string                `json:"return_url"`
		PendingCall  *entities.PendingCall `json:"pending_call"`
		NotifyWallet bool                  `json:"notify_wallet"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, domainerrors.BadRequest(err.Error()))
		return
	}

	clientToken, _ := middleware.GetClientToken(c)

	result, err := h.linker.GenerateCode(c.Request.Context(), usecases.GenerateCodeInput{
		ClientToken:  clientToken,
		SessionToken: input.SessionToken,
		PubKey:       input.PubKey,
		UserAgent:    c.Request.UserAgent(),
		ReturnURL:    input.ReturnURL,
		PendingCall:  input.PendingCall,
		NotifyWallet: input.NotifyWallet,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	if result.ClientToken != clientToken {
		h.setClientTokenCookie(c, result.ClientToken)
	}

	response.Success(c, http.StatusOK, gin.H{
		"session_token": result.SessionToken,
		"link_code":     result.Code,
		"linked":        result.Linked,
	})
}

// GetLinkInfo describes a pending code without consuming it
// GET /link-info/:code
func (h *LinkHandler) GetLinkInfo(c *gin.Context) {
	info, err := h.linker.GetLinkInfo(c.Request.Context(), c.Param("code"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, info)
}

// GetServerInfo reports contract and verifier metadata
// GET /server-info/:version?
func (h *LinkHandler) GetServerInfo(c *gin.Context) {
	info := h.serverInfo
	if v := c.Param("version"); v != "" && v != info.ContractVersion {
		response.Error(c, domainerrors.NotFound("unknown contract version"))
		return
	}
	response.Success(c, http.StatusOK, info)
}

// CallWallet queues a contract call for the linked wallet
// POST /call-wallet/:sessionToken
func (h *LinkHandler) CallWallet(c *gin.Context) {
	clientToken, ok := middleware.GetClientToken(c)
	if !ok {
		response.Error(c, domainerrors.Unauthorized("no client token available"))
		return
	}

	var input struct {
		CallID    string          `json:"call_id" binding:"required"`
		Call      json.RawMessage `json:"call" binding:"required"`
		Account   string          `json:"account"`
		ReturnURL string          `json:"return_url"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, domainerrors.BadRequest(err.Error()))
		return
	}

	// fails silently: a missing link reports success=false, not an error
	ok = h.linker.CallWallet(c.Request.Context(), clientToken, c.Param("sessionToken"),
		input.Account, input.CallID, input.Call, input.ReturnURL)
	response.Success(c, http.StatusOK, gin.H{"success": ok})
}

// WalletCalled resolves a pending call with the wallet's result
// POST /wallet-called/:walletToken
func (h *LinkHandler) WalletCalled(c *gin.Context) {
	var input struct {
		CallID       string          `json:"call_id" binding:"required"`
		LinkID       string          `json:"link_id" binding:"required"`
		SessionToken string          `json:"session_token"`
		Result       json.RawMessage `json:"result"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, domainerrors.BadRequest(err.Error()))
		return
	}

	linkID, err := uuid.Parse(input.LinkID)
	if err != nil {
		response.Error(c, domainerrors.BadRequest("malformed link id"))
		return
	}

	ok := h.linker.WalletCalled(c.Request.Context(), c.Param("walletToken"),
		input.CallID, linkID, input.SessionToken, input.Result)
	response.Success(c, http.StatusOK, gin.H{"success": ok})
}

// LinkWallet redeems a browser pairing code from the wallet
// POST /link-wallet/:walletToken
func (h *LinkHandler) LinkWallet(c *gin.Context) {
	var input struct {
		Code            string   `json:"code" binding:"required"`
		CurrentRPC      string   `json:"current_rpc"`
		CurrentAccounts []string `json:"current_accounts"`
		PrivData        string   `json:"priv_data"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, domainerrors.BadRequest(err.Error()))
		return
	}

	result, err := h.linker.LinkWallet(c.Request.Context(), c.Param("walletToken"),
		input.Code, input.CurrentRPC, input.CurrentAccounts, input.PrivData)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}

// PrelinkWallet starts a wallet-side pairing
// POST /prelink-wallet/:walletToken
func (h *LinkHandler) PrelinkWallet(c *gin.Context) {
	var input struct {
		PubKey          string   `json:"pub_key"`
		CurrentRPC      string   `json:"current_rpc"`
		CurrentAccounts []string `json:"current_accounts"`
		PrivData        string   `json:"priv_data"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, domainerrors.BadRequest(err.Error()))
		return
	}

	walletToken := c.Param("walletToken")
	if walletToken == "-" {
		// wallet has no token yet; one is minted for it
		walletToken = ""
	}

	result, err := h.linker.PrelinkWallet(c.Request.Context(), walletToken,
		input.PubKey, input.CurrentRPC, input.CurrentAccounts, input.PrivData)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"wallet_token": result.WalletToken,
		"link_code":    result.Code,
		"link_id":      result.LinkID.String(),
	})
}

// LinkPrelinked completes a wallet-side pairing from the browser
// POST /link-prelinked
func (h *LinkHandler) LinkPrelinked(c *gin.Context) {
	var input struct {
		Code   string `json:"code" binding:"required"`
		LinkID string `json:"link_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, domainerrors.BadRequest(err.Error()))
		return
	}

	linkID, err := uuid.Parse(input.LinkID)
	if err != nil {
		response.Error(c, domainerrors.BadRequest("malformed link id"))
		return
	}

	result, err := h.linker.LinkPrelinked(c.Request.Context(), input.Code, linkID,
		c.Request.UserAgent(), c.Request.Referer())
	if err != nil {
		response.Error(c, err)
		return
	}

	h.setClientTokenCookie(c, result.ClientToken)
	response.Success(c, http.StatusOK, gin.H{
		"session_token": result.SessionToken,
		"linked":        result.Linked,
	})
}

// GetWalletLinks lists the wallet's link history
// GET /wallet-links/:walletToken
func (h *LinkHandler) GetWalletLinks(c *gin.Context) {
	links, err := h.linker.GetWalletLinks(c.Request.Context(), c.Param("walletToken"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, links)
}

// UpdateWalletLinks bulk-updates notification preferences
// POST /wallet-update-links/:walletToken
func (h *LinkHandler) UpdateWalletLinks(c *gin.Context) {
	var input struct {
		Updates []entities.LinkUpdate `json:"updates" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, domainerrors.BadRequest(err.Error()))
		return
	}

	count := h.linker.UpdateWalletLinks(c.Request.Context(), c.Param("walletToken"), input.Updates)
	response.Success(c, http.StatusOK, gin.H{"updated": count})
}

// Unlink deactivates the browser's links. Always reports success so the
// client can clear state without special-casing an already-unlinked cookie.
// POST /unlink
func (h *LinkHandler) Unlink(c *gin.Context) {
	if clientToken, ok := middleware.GetClientToken(c); ok {
		h.linker.Unlink(c.Request.Context(), clientToken)
	}
	response.Success(c, http.StatusOK, gin.H{"success": true})
}

// UnlinkWallet deactivates a single link from the wallet side
// POST /unlink-wallet/:walletToken
func (h *LinkHandler) UnlinkWallet(c *gin.Context) {
	var input struct {
		LinkID string `json:"link_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, domainerrors.BadRequest(err.Error()))
		return
	}

	linkID, err := uuid.Parse(input.LinkID)
	if err != nil {
		response.Error(c, domainerrors.BadRequest("malformed link id"))
		return
	}

	ok := h.linker.UnlinkWallet(c.Request.Context(), c.Param("walletToken"), linkID)
	response.Success(c, http.StatusOK, gin.H{"success": ok})
}

// RegisterWalletNotification registers a wallet device for wake-ups
// POST /register-wallet-notification/:walletToken
func (h *LinkHandler) RegisterWalletNotification(c *gin.Context) {
	var input struct {
		EthAddress  string `json:"eth_address" binding:"required"`
		DeviceType  string `json:"device_type" binding:"required"`
		DeviceToken string `json:"device_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, domainerrors.BadRequest(err.Error()))
		return
	}

	ok := h.linker.RegisterWalletNotification(c.Request.Context(), c.Param("walletToken"),
		input.EthAddress, input.DeviceType, input.DeviceToken)
	if !ok {
		response.Error(c, domainerrors.InternalError(nil))
		return
	}
	response.Success(c, http.StatusOK, gin.H{"success": true})
}

// EthNotify wakes wallets holding any of the receiver accounts. Gated by a
// shared secret so only the trusted event listener can trigger it.
// POST /eth-notify
func (h *LinkHandler) EthNotify(c *gin.Context) {
	var input struct {
		Token     string   `json:"token"`
		Receivers []string `json:"receivers" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, domainerrors.BadRequest(err.Error()))
		return
	}

	provided := input.Token
	if provided == "" {
		provided = c.GetHeader("X-Notify-Token")
	}
	if h.notifyToken == "" || !token.Equal(provided, h.notifyToken) {
		response.Error(c, domainerrors.Unauthorized("bad notify token"))
		return
	}

	h.linker.EthNotify(input.Receivers)
	response.Success(c, http.StatusOK, gin.H{"success": true})
}

// GetMarketplaceAddresses reports the marketplace contract binding
// GET /marketplace-addresses
func (h *LinkHandler) GetMarketplaceAddresses(c *gin.Context) {
	response.Success(c, http.StatusOK, gin.H{
		"addresses": []string{h.serverInfo.ContractAddress},
		"network":   h.serverInfo.NetworkID,
	})
}
