package handlers

import (
	"math/big"
	"net/http"

	"github.com/gin-gonic/gin"

	domainerrors "wallet-link.backend/internal/domain/errors"
	"wallet-link.backend/internal/interfaces/http/response"
	"wallet-link.backend/internal/usecases"
)

// WebRTCHandler handles the relay's REST surface: presence, offers and the
// signed off-chain operations.
type WebRTCHandler struct {
	webrtc *usecases.WebRTCUsecase
	hot    *usecases.HotWalletUsecase
}

// NewWebRTCHandler creates a new webrtc handler
func NewWebRTCHandler(webrtc *usecases.WebRTCUsecase, hot *usecases.HotWalletUsecase) *WebRTCHandler {
	return &WebRTCHandler{webrtc: webrtc, hot: hot}
}

// GetActiveAddresses lists addresses with live relay subscriptions
// GET /webrtc-addresses
func (h *WebRTCHandler) GetActiveAddresses(c *gin.Context) {
	response.Success(c, http.StatusOK, gin.H{
		"addresses": h.webrtc.GetActiveAddresses(),
	})
}

// GetOffer reads a marketplace offer with its verification terms
// GET /webrtc-offer/:listingID/:offerID
func (h *WebRTCHandler) GetOffer(c *gin.Context) {
	compositeID := c.Param("listingID") + "-" + c.Param("offerID")
	offer, err := h.hot.GetOffer(c.Request.Context(), compositeID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, offer)
}

// RegisterReferral records signed attest/referral URLs for an account
// POST /wr-reg-ref/:accountAddress
func (h *WebRTCHandler) RegisterReferral(c *gin.Context) {
	var input struct {
		Message   string `json:"message" binding:"required"`
		Signature string `json:"signature" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, domainerrors.BadRequest(err.Error()))
		return
	}

	err := h.webrtc.RegisterReferral(c.Request.Context(), c.Param("accountAddress"),
		input.Message, input.Signature)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"success": true})
}

// GetAllAttests lists attest URLs registered for an account
// GET /webrtc-attests/:accountAddress
func (h *WebRTCHandler) GetAllAttests(c *gin.Context) {
	attests, err := h.webrtc.GetAllAttests(c.Request.Context(), c.Param("accountAddress"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"attests": attests})
}

// SubmitUserInfo pins a signed profile object
// POST /webrtc-user-info
func (h *WebRTCHandler) SubmitUserInfo(c *gin.Context) {
	var input struct {
		Account   string `json:"account" binding:"required"`
		Message   string `json:"message" binding:"required"`
		Signature string `json:"signature" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, domainerrors.BadRequest(err.Error()))
		return
	}

	info, err := h.webrtc.SubmitUserInfo(c.Request.Context(), input.Account,
		input.Message, input.Signature)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, info)
}

// GetUserInfo fetches the stored profile for an account
// GET /webrtc-user-info/:accountAddress
func (h *WebRTCHandler) GetUserInfo(c *gin.Context) {
	info, err := h.webrtc.GetUserInfo(c.Request.Context(), c.Param("accountAddress"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, info)
}

// VerifyAcceptOffer relays a seller-authorized on-behalf accept
// POST /webrtc-verify-accept
func (h *WebRTCHandler) VerifyAcceptOffer(c *gin.Context) {
	var input struct {
		OfferID   string `json:"offer_id" binding:"required"`
		IpfsHash  string `json:"ipfs_hash" binding:"required"`
		Fee       string `json:"fee" binding:"required"`
		Signature string `json:"signature" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, domainerrors.BadRequest(err.Error()))
		return
	}

	fee, ok := new(big.Int).SetString(input.Fee, 10)
	if !ok {
		response.Error(c, domainerrors.BadRequest("malformed fee"))
		return
	}

	txHash, err := h.webrtc.VerifyAcceptOffer(c.Request.Context(), input.OfferID,
		input.IpfsHash, fee, input.Signature)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"tx_hash": txHash})
}

// VerifySubmitFinalize relays a doubly signed on-behalf finalize
// POST /webrtc-verify-finalize
func (h *WebRTCHandler) VerifySubmitFinalize(c *gin.Context) {
	var input struct {
		OfferID     string `json:"offer_id" binding:"required"`
		IpfsHash    string `json:"ipfs_hash" binding:"required"`
		Fee         string `json:"fee" binding:"required"`
		SellerSig   string `json:"seller_sig" binding:"required"`
		VerifierSig string `json:"verifier_sig" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, domainerrors.BadRequest(err.Error()))
		return
	}

	fee, ok := new(big.Int).SetString(input.Fee, 10)
	if !ok {
		response.Error(c, domainerrors.BadRequest("malformed fee"))
		return
	}

	txHash, err := h.webrtc.VerifySubmitFinalize(c.Request.Context(), input.OfferID,
		input.IpfsHash, fee, input.SellerSig, input.VerifierSig)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"tx_hash": txHash})
}
