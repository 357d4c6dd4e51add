package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"wallet-link.backend/internal/interfaces/http/handlers"
)

type routeDeps struct {
	linkHandler   *handlers.LinkHandler
	webrtcHandler *handlers.WebRTCHandler
	hotHandler    *handlers.HotWalletHandler
	wsHandler     *handlers.WSHandler
}

func registerRoutes(r *gin.Engine, d routeDeps) {
	// Pairing and link lifecycle
	r.POST("/generate-code", d.linkHandler.GenerateCode)
	r.GET("/link-info/:code", d.linkHandler.GetLinkInfo)
	r.GET("/server-info", d.linkHandler.GetServerInfo)
	r.GET("/server-info/:version", d.linkHandler.GetServerInfo)
	r.POST("/call-wallet/:sessionToken", d.linkHandler.CallWallet)
	r.POST("/wallet-called/:walletToken", d.linkHandler.WalletCalled)
	r.POST("/link-wallet/:walletToken", d.linkHandler.LinkWallet)
	r.POST("/prelink-wallet/:walletToken", d.linkHandler.PrelinkWallet)
	r.POST("/link-prelinked", d.linkHandler.LinkPrelinked)
	r.GET("/wallet-links/:walletToken", d.linkHandler.GetWalletLinks)
	r.POST("/wallet-update-links/:walletToken", d.linkHandler.UpdateWalletLinks)
	r.POST("/unlink", d.linkHandler.Unlink)
	r.POST("/unlink-wallet/:walletToken", d.linkHandler.UnlinkWallet)
	r.POST("/register-wallet-notification/:walletToken", d.linkHandler.RegisterWalletNotification)
	r.POST("/eth-notify", d.linkHandler.EthNotify)
	r.GET("/marketplace-addresses", d.linkHandler.GetMarketplaceAddresses)

	// WebRTC relay REST surface
	r.GET("/webrtc-addresses", d.webrtcHandler.GetActiveAddresses)
	r.GET("/webrtc-offer/:listingID/:offerID", d.webrtcHandler.GetOffer)
	r.POST("/wr-reg-ref/:accountAddress", d.webrtcHandler.RegisterReferral)
	r.GET("/webrtc-attests/:accountAddress", d.webrtcHandler.GetAllAttests)
	r.POST("/webrtc-user-info", d.webrtcHandler.SubmitUserInfo)
	r.GET("/webrtc-user-info/:accountAddress", d.webrtcHandler.GetUserInfo)
	r.POST("/webrtc-verify-accept", d.webrtcHandler.VerifyAcceptOffer)
	r.POST("/webrtc-verify-finalize", d.webrtcHandler.VerifySubmitFinalize)

	// Hot wallet co-sign surface
	r.POST("/submit-marketplace-onbehalf", d.hotHandler.SubmitMarketplace)
	r.POST("/verify-offer", d.hotHandler.VerifyOffer)

	// WebSocket surfaces
	r.GET("/linked-messages/:sessionToken/:readId", d.wsHandler.LinkedMessages)
	r.GET("/wallet-messages/:walletToken/:readId", d.wsHandler.WalletMessages)
	r.GET("/webrtc-relay/:ethAddress", d.wsHandler.WebRTCRelay)
}

// applyCORSMiddleware echoes the request origin because the ct cookie needs
// credentialed cross-origin requests; a wildcard origin would break those.
func applyCORSMiddleware(r *gin.Engine) {
	r.Use(func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, X-Request-ID, X-Notify-Token")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})
}

func registerHealthRoute(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
