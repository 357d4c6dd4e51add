package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"wallet-link.backend/internal/domain/entities"
	domainerrors "wallet-link.backend/internal/domain/errors"
	"wallet-link.backend/internal/interfaces/http/middleware"
	"wallet-link.backend/internal/usecases"
	"wallet-link.backend/pkg/logger"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 54 * time.Second

	// outbound frames buffered per socket before it is considered stalled
	wsSendBuffer = 64
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WSHandler owns the three WebSocket surfaces: session messages, wallet
// messages and the webrtc signaling relay.
type WSHandler struct {
	linker *usecases.LinkerUsecase
	webrtc *usecases.WebRTCUsecase
}

// NewWSHandler creates a new websocket handler
func NewWSHandler(linker *usecases.LinkerUsecase, webrtc *usecases.WebRTCUsecase) *WSHandler {
	return &WSHandler{linker: linker, webrtc: webrtc}
}

// wsEnvelope frames every mailbox message pushed down a socket
type wsEnvelope struct {
	MsgID   uint64          `json:"msg_id"`
	Message json.RawMessage `json:"msg"`
}

// closeWithReason performs an orderly close. Authorization failures use the
// normal closure code so clients treat them as "relink required" rather
// than a transport fault worth retrying.
func closeWithReason(conn *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
	conn.Close()
}

// pumpMailbox bridges a mailbox subscription to a socket. Replayed frames
// are written directly from the subscribe callback, which runs synchronously
// before live delivery starts, so a backlog larger than wsSendBuffer never
// trips the overflow path. Live frames pass through a buffered channel and a
// single writer goroutine; a full buffer drops the connection.
func (h *WSHandler) pumpMailbox(c *gin.Context, subscribe func(fn func(payload json.RawMessage, msgID uint64)) (func(), error)) {
	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	send := make(chan wsEnvelope, wsSendBuffer)
	overflow := make(chan struct{})

	var mu sync.Mutex
	replaying := true
	var replayErr error
	var overflowed bool

	unsubscribe, err := subscribe(func(payload json.RawMessage, msgID uint64) {
		mu.Lock()
		defer mu.Unlock()
		env := wsEnvelope{MsgID: msgID, Message: payload}
		if replaying {
			if replayErr != nil {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			replayErr = conn.WriteJSON(env)
			return
		}
		if overflowed {
			return
		}
		select {
		case send <- env:
		default:
			overflowed = true
			close(overflow)
		}
	})
	if err != nil {
		closeWithReason(conn, err.Error())
		return
	}
	defer unsubscribe()

	mu.Lock()
	replaying = false
	failed := replayErr
	mu.Unlock()
	if failed != nil {
		conn.Close()
		return
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(wsPongWait))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case env := <-send:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(env); err != nil {
				conn.Close()
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				return
			}
		case <-overflow:
			closeWithReason(conn, "message buffer overflow")
			return
		case <-done:
			conn.Close()
			return
		}
	}
}

// LinkedMessages streams the session mailbox to the browser
// GET /linked-messages/:sessionToken/:readId
func (h *WSHandler) LinkedMessages(c *gin.Context) {
	clientToken, ok := middleware.GetClientToken(c)
	if !ok {
		// upgrade anyway so the client receives a close reason instead
		// of an opaque handshake failure
		conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		closeWithReason(conn, domainerrors.ErrUnauthorized.Error())
		return
	}

	sessionToken := c.Param("sessionToken")
	readID, _ := strconv.ParseUint(c.Param("readId"), 10, 64)

	h.pumpMailbox(c, func(fn func(payload json.RawMessage, msgID uint64)) (func(), error) {
		return h.linker.HandleSessionMessages(c.Request.Context(), clientToken, sessionToken, readID, fn)
	})
}

// WalletMessages streams the wallet mailbox to the wallet app
// GET /wallet-messages/:walletToken/:readId
func (h *WSHandler) WalletMessages(c *gin.Context) {
	walletToken := c.Param("walletToken")
	readID, _ := strconv.ParseUint(c.Param("readId"), 10, 64)

	h.pumpMailbox(c, func(fn func(payload json.RawMessage, msgID uint64)) (func(), error) {
		return h.linker.HandleWalletMessages(walletToken, readID, fn)
	})
}

// WebRTCRelay runs a signaling subscription over a socket. The first client
// frame must be the auth envelope; anything after it is relayed to the peer.
// GET /webrtc-relay/:ethAddress
func (h *WSHandler) WebRTCRelay(c *gin.Context) {
	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	ethAddress := c.Param("ethAddress")

	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	_, first, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return
	}

	var auth entities.RelayAuth
	if err := json.Unmarshal(first, &auth); err != nil {
		closeWithReason(conn, "malformed auth envelope")
		return
	}

	sub, err := h.webrtc.Subscribe(c.Request.Context(), ethAddress, auth)
	if err != nil {
		closeWithReason(conn, err.Error())
		return
	}
	defer sub.ClientClose()

	send := make(chan json.RawMessage, wsSendBuffer)
	sub.OnServerMessage(func(payload json.RawMessage) {
		select {
		case send <- payload:
		default:
			logger.Warn(c.Request.Context(), "Relay frame dropped",
				zap.String("address", ethAddress))
		}
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(wsPongWait))
			return nil
		})
		for {
			conn.SetReadDeadline(time.Now().Add(wsPongWait))
			_, frame, err := conn.ReadMessage()
			if err != nil {
				return
			}
			sub.ClientMessage(frame)
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case payload := <-send:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				conn.Close()
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				return
			}
		case <-done:
			conn.Close()
			return
		}
	}
}
