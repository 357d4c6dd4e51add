package handlers

import (
	"encoding/json"
	"math/big"
	"net/http"

	"github.com/gin-gonic/gin"

	domainerrors "wallet-link.backend/internal/domain/errors"
	"wallet-link.backend/internal/interfaces/http/response"
	"wallet-link.backend/internal/usecases"
)

// HotWalletHandler exposes the operator co-sign surface
type HotWalletHandler struct {
	hot *usecases.HotWalletUsecase
}

// NewHotWalletHandler creates a new hot wallet handler
func NewHotWalletHandler(hot *usecases.HotWalletUsecase) *HotWalletHandler {
	return &HotWalletHandler{hot: hot}
}

// SubmitMarketplace relays an allow-listed marketplace call
// POST /submit-marketplace-onbehalf
func (h *HotWalletHandler) SubmitMarketplace(c *gin.Context) {
	var input struct {
		Cmd    string        `json:"cmd" binding:"required"`
		Params []interface{} `json:"params" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, domainerrors.BadRequest(err.Error()))
		return
	}

	txHash, err := h.hot.SubmitMarketplace(c.Request.Context(), input.Cmd, input.Params)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"tx_hash": txHash})
}

// VerifyOffer runs the operator verification and returns a finalize signature
// POST /verify-offer
func (h *HotWalletHandler) VerifyOffer(c *gin.Context) {
	var input struct {
		OfferID string          `json:"offer_id" binding:"required"`
		Fee     string          `json:"fee" binding:"required"`
		Params  json.RawMessage `json:"params"`
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

	result, err := h.hot.VerifyOffer(c.Request.Context(), input.OfferID, fee, input.Params)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}
