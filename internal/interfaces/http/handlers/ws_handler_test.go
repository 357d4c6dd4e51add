package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet-link.backend/internal/domain/entities"
	"wallet-link.backend/internal/usecases"
	"wallet-link.backend/pkg/ethsig"
	"wallet-link.backend/pkg/mailbox"
)

type wsEndpointRepo struct{}

func (wsEndpointRepo) Upsert(context.Context, *entities.NotificationEndpoint) error { return nil }
func (wsEndpointRepo) GetByEthAddress(context.Context, string) ([]*entities.NotificationEndpoint, error) {
	return nil, nil
}
func (wsEndpointRepo) TouchLastOnline(context.Context, string, time.Time) error { return nil }
func (wsEndpointRepo) DeactivateStale(context.Context, time.Time) (int64, error) {
	return 0, nil
}

type wsOfferReader struct {
	offer *entities.Offer
}

func (r *wsOfferReader) GetOffer(_ context.Context, listingID, offerID *big.Int) (*entities.Offer, error) {
	if r.offer != nil && r.offer.ListingID == listingID.String() && r.offer.OfferID == offerID.String() {
		return r.offer, nil
	}
	return nil, fmt.Errorf("no offer %s-%s", listingID, offerID)
}

func (r *wsOfferReader) ChainID() *big.Int       { return big.NewInt(4) }
func (r *wsOfferReader) ContractAddress() string { return "0x0" }

func newWSSigner(t *testing.T) *ethsig.KeySigner {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer, err := ethsig.NewKeySigner(hexutil.Encode(crypto.FromECDSA(key)))
	require.NoError(t, err)
	return signer
}

func newWSServer(t *testing.T, webrtc *usecases.WebRTCUsecase, mbox *mailbox.Mailbox) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var linker *usecases.LinkerUsecase
	if mbox != nil {
		linker = usecases.NewLinkerUsecase(nil, nil, nil, mbox, time.Minute)
	}
	h := NewWSHandler(linker, webrtc)

	r := gin.New()
	r.GET("/wallet-messages/:walletToken/:readId", h.WalletMessages)
	r.GET("/webrtc-relay/:ethAddress", h.WebRTCRelay)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func TestWalletMessages_ReplayThenLive(t *testing.T) {
	mbox := mailbox.New(mailbox.DefaultOptions)
	srv := newWSServer(t, nil, mbox)

	// a message published before the socket exists
	mbox.Publish("wallet:wt-1", json.RawMessage(`{"type":"LINKED"}`))

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/wallet-messages/wt-1/0"), nil)
	require.NoError(t, err)
	defer conn.Close()

	var env wsEnvelope
	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, uint64(1), env.MsgID)
	assert.JSONEq(t, `{"type":"LINKED"}`, string(env.Message))

	mbox.Publish("wallet:wt-1", json.RawMessage(`{"type":"CALL"}`))
	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, uint64(2), env.MsgID)
	assert.JSONEq(t, `{"type":"CALL"}`, string(env.Message))
}

func TestWalletMessages_ReplaysBacklogLargerThanSendBuffer(t *testing.T) {
	mbox := mailbox.New(mailbox.DefaultOptions)
	srv := newWSServer(t, nil, mbox)

	total := wsSendBuffer + 36
	for i := 1; i <= total; i++ {
		mbox.Publish("wallet:wt-1", json.RawMessage(fmt.Sprintf(`{"n":%d}`, i)))
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/wallet-messages/wt-1/0"), nil)
	require.NoError(t, err)
	defer conn.Close()

	// the full backlog arrives in order, not a buffer-overflow close
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for i := 1; i <= total; i++ {
		var env wsEnvelope
		require.NoError(t, conn.ReadJSON(&env))
		assert.Equal(t, uint64(i), env.MsgID)
	}
}

func TestWalletMessages_CursorSkipsSeen(t *testing.T) {
	mbox := mailbox.New(mailbox.DefaultOptions)
	srv := newWSServer(t, nil, mbox)

	mbox.Publish("wallet:wt-1", json.RawMessage(`{"n":1}`))
	mbox.Publish("wallet:wt-1", json.RawMessage(`{"n":2}`))

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/wallet-messages/wt-1/1"), nil)
	require.NoError(t, err)
	defer conn.Close()

	var env wsEnvelope
	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, uint64(2), env.MsgID)
}

func TestWebRTCRelay_BadAuthClosesNormally(t *testing.T) {
	webrtc := usecases.NewWebRTCUsecase(ethsig.NewVerifier(), nil, nil,
		wsEndpointRepo{}, nil, nil, nil, 30*time.Second)
	srv := newWSServer(t, webrtc, nil)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/webrtc-relay/0xabc"), nil)
	require.NoError(t, err)
	defer conn.Close()

	// an auth envelope with no timestamp binding
	require.NoError(t, conn.WriteJSON(entities.RelayAuth{Message: "hi", Signature: "0x00"}))

	_, _, err = conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.CloseNormalClosure, closeErr.Code)
	assert.NotEmpty(t, closeErr.Text)
}

func TestWebRTCRelay_SignalBetweenPeers(t *testing.T) {
	buyer := newWSSigner(t)
	seller := newWSSigner(t)
	reader := &wsOfferReader{offer: &entities.Offer{
		ListingID: "5",
		OfferID:   "0",
		Buyer:     buyer.Address(),
		Seller:    seller.Address(),
	}}
	webrtc := usecases.NewWebRTCUsecase(ethsig.NewVerifier(), nil, reader,
		wsEndpointRepo{}, nil, nil, nil, 30*time.Second)
	srv := newWSServer(t, webrtc, nil)

	dial := func(signer *ethsig.KeySigner) *websocket.Conn {
		conn, _, err := websocket.DefaultDialer.Dial(
			wsURL(srv, "/webrtc-relay/"+signer.Address()), nil)
		require.NoError(t, err)
		t.Cleanup(func() { conn.Close() })

		ts := time.Now().Unix()
		message := fmt.Sprintf("subscribe at %d", ts)
		signature, err := signer.SignDigest(ethsig.PersonalDigest(message))
		require.NoError(t, err)
		require.NoError(t, conn.WriteJSON(entities.RelayAuth{
			Signature: signature,
			Message:   message,
			Timestamp: ts,
			Rules:     entities.SubscriptionRules{ListingID: "5", OfferID: "0"},
		}))
		return conn
	}

	sellerConn := dial(seller)
	buyerConn := dial(buyer)

	// the auth frame is processed asynchronously; wait for both sides
	require.Eventually(t, func() bool {
		return len(webrtc.GetActiveAddresses()) == 2
	}, 3*time.Second, 10*time.Millisecond)

	require.NoError(t, buyerConn.WriteMessage(websocket.TextMessage, []byte(`{"sdp":"offer"}`)))

	sellerConn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, raw, err := sellerConn.ReadMessage()
	require.NoError(t, err)

	var frame map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &frame))
	assert.Equal(t, usecases.RelayMsgSignal, frame["type"])
	assert.Equal(t, strings.ToLower(buyer.Address()), frame["from"])
	payload, err := json.Marshal(frame["payload"])
	require.NoError(t, err)
	assert.JSONEq(t, `{"sdp":"offer"}`, string(payload))

	// closing the buyer side surfaces a DISCONNECT on the seller side
	buyerConn.Close()
	sellerConn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, raw, err = sellerConn.ReadMessage()
	require.NoError(t, err)

	var disconnect map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &disconnect))
	assert.Equal(t, usecases.RelayMsgDisconnect, disconnect["type"])
}
