package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet-link.backend/internal/domain/entities"
	domainerrors "wallet-link.backend/internal/domain/errors"
	"wallet-link.backend/pkg/ethsig"
)

type fakeReferralRepo struct {
	mu        sync.Mutex
	referrals []*entities.Referral
}

func (r *fakeReferralRepo) Create(_ context.Context, referral *entities.Referral) error {
	r.mu.Lock()
	r.referrals = append(r.referrals, referral)
	r.mu.Unlock()
	return nil
}

func (r *fakeReferralRepo) GetByEthAddress(_ context.Context, ethAddress string) ([]*entities.Referral, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entities.Referral
	for _, ref := range r.referrals {
		if ref.EthAddress == ethAddress {
			out = append(out, ref)
		}
	}
	return out, nil
}

type fakeUserInfoRepo struct {
	mu    sync.Mutex
	infos map[string]*entities.UserInfo
}

func newFakeUserInfoRepo() *fakeUserInfoRepo {
	return &fakeUserInfoRepo{infos: make(map[string]*entities.UserInfo)}
}

func (r *fakeUserInfoRepo) Upsert(_ context.Context, info *entities.UserInfo) error {
	r.mu.Lock()
	r.infos[info.EthAddress] = info
	r.mu.Unlock()
	return nil
}

func (r *fakeUserInfoRepo) GetByEthAddress(_ context.Context, ethAddress string) (*entities.UserInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.infos[ethAddress]
	if !ok {
		return nil, domainerrors.ErrNotFound
	}
	return info, nil
}

type relayFixture struct {
	usecase   *WebRTCUsecase
	hot       *HotWalletUsecase
	submitter *fakeSubmitter
	buyer     *ethsig.KeySigner
	seller    *ethsig.KeySigner
	operator  *ethsig.KeySigner
	reader    *fakeMarketplaceReader
	referrals *fakeReferralRepo
	userInfos *fakeUserInfoRepo
}

func newRelayFixture(t *testing.T) *relayFixture {
	t.Helper()
	buyer := mustSigner(t)
	seller := mustSigner(t)
	operator := mustSigner(t)

	reader := &fakeMarketplaceReader{offers: map[string]*entities.Offer{
		"5-0": {
			ListingID: "5",
			OfferID:   "0",
			Buyer:     buyer.Address(),
			Seller:    seller.Address(),
			Value:     big.NewInt(1000),
			Refund:    big.NewInt(100),
		},
	}}
	submitter := &fakeSubmitter{methods: map[string]bool{
		"acceptOfferOnBehalf":      true,
		"verifiedOnBehalfFinalize": true,
	}}
	hot := NewHotWalletUsecase(reader, submitter, operator, ethsig.NewVerifier(), nil, fakeHashCodec{})
	referrals := &fakeReferralRepo{}
	userInfos := newFakeUserInfoRepo()
	u := NewWebRTCUsecase(ethsig.NewVerifier(), hot, reader, &fakeEndpointRepo{},
		referrals, userInfos, &fakeIPFS{}, 30*time.Second)

	return &relayFixture{
		usecase:   u,
		hot:       hot,
		submitter: submitter,
		buyer:     buyer,
		seller:    seller,
		operator:  operator,
		reader:    reader,
		referrals: referrals,
		userInfos: userInfos,
	}
}

// relayAuth builds an auth envelope whose signed message binds the timestamp
func relayAuth(t *testing.T, signer *ethsig.KeySigner, ts int64, rules entities.SubscriptionRules) entities.RelayAuth {
	t.Helper()
	message := fmt.Sprintf("subscribe to relay at %d", ts)
	signature, err := signer.SignDigest(ethsig.PersonalDigest(message))
	require.NoError(t, err)
	return entities.RelayAuth{
		Signature: signature,
		Message:   message,
		Rules:     rules,
		Timestamp: ts,
	}
}

func TestSubscribe_AuthChecks(t *testing.T) {
	f := newRelayFixture(t)
	ctx := context.Background()
	now := time.Now()
	f.usecase.now = func() time.Time { return now }

	t.Run("fresh signed envelope accepted", func(t *testing.T) {
		sub, err := f.usecase.Subscribe(ctx, f.buyer.Address(),
			relayAuth(t, f.buyer, now.Unix(), entities.SubscriptionRules{}))
		require.NoError(t, err)
		defer sub.ClientClose()
		assert.Contains(t, f.usecase.GetActiveAddresses(), strings.ToLower(f.buyer.Address()))
	})

	t.Run("stale timestamp refused", func(t *testing.T) {
		_, err := f.usecase.Subscribe(ctx, f.buyer.Address(),
			relayAuth(t, f.buyer, now.Add(-time.Minute).Unix(), entities.SubscriptionRules{}))
		var appErr *domainerrors.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, domainerrors.CodeInvalidSignature, appErr.Code)
	})

	t.Run("future timestamp refused", func(t *testing.T) {
		_, err := f.usecase.Subscribe(ctx, f.buyer.Address(),
			relayAuth(t, f.buyer, now.Add(time.Minute).Unix(), entities.SubscriptionRules{}))
		require.Error(t, err)
	})

	t.Run("message must embed the timestamp", func(t *testing.T) {
		auth := relayAuth(t, f.buyer, now.Unix(), entities.SubscriptionRules{})
		message := "subscribe to relay, trust me"
		signature, err := f.buyer.SignDigest(ethsig.PersonalDigest(message))
		require.NoError(t, err)
		auth.Message = message
		auth.Signature = signature

		_, err = f.usecase.Subscribe(ctx, f.buyer.Address(), auth)
		var appErr *domainerrors.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, domainerrors.CodeInvalidSignature, appErr.Code)
	})

	t.Run("signature by someone else refused", func(t *testing.T) {
		_, err := f.usecase.Subscribe(ctx, f.buyer.Address(),
			relayAuth(t, f.seller, now.Unix(), entities.SubscriptionRules{}))
		var appErr *domainerrors.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, domainerrors.CodeInvalidSignature, appErr.Code)
	})
}

func TestSubscribe_OfferRules(t *testing.T) {
	f := newRelayFixture(t)
	ctx := context.Background()
	now := time.Now()
	f.usecase.now = func() time.Time { return now }
	rules := entities.SubscriptionRules{ListingID: "5", OfferID: "0"}

	t.Run("buyer is paired with seller", func(t *testing.T) {
		sub, err := f.usecase.Subscribe(ctx, f.buyer.Address(),
			relayAuth(t, f.buyer, now.Unix(), rules))
		require.NoError(t, err)
		defer sub.ClientClose()
		assert.Equal(t, strings.ToLower(f.seller.Address()), sub.peerAddress)
	})

	t.Run("stranger to the offer refused", func(t *testing.T) {
		stranger := mustSigner(t)
		_, err := f.usecase.Subscribe(ctx, stranger.Address(),
			relayAuth(t, stranger, now.Unix(), rules))
		var appErr *domainerrors.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, domainerrors.CodeForbidden, appErr.Code)
	})

	t.Run("unknown offer refused", func(t *testing.T) {
		_, err := f.usecase.Subscribe(ctx, f.buyer.Address(),
			relayAuth(t, f.buyer, now.Unix(), entities.SubscriptionRules{ListingID: "9", OfferID: "9"}))
		var appErr *domainerrors.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, domainerrors.CodeNotFound, appErr.Code)
	})

	t.Run("composite offer id accepted", func(t *testing.T) {
		sub, err := f.usecase.Subscribe(ctx, f.seller.Address(),
			relayAuth(t, f.seller, now.Unix(), entities.SubscriptionRules{OfferID: "5-0"}))
		require.NoError(t, err)
		defer sub.ClientClose()
		assert.Equal(t, strings.ToLower(f.buyer.Address()), sub.peerAddress)
	})
}

func TestRelayRouting(t *testing.T) {
	f := newRelayFixture(t)
	ctx := context.Background()
	now := time.Now()
	f.usecase.now = func() time.Time { return now }
	rules := entities.SubscriptionRules{ListingID: "5", OfferID: "0"}

	buyerSub, err := f.usecase.Subscribe(ctx, f.buyer.Address(),
		relayAuth(t, f.buyer, now.Unix(), rules))
	require.NoError(t, err)

	// nothing live on the other side yet
	assert.False(t, buyerSub.ClientMessage(json.RawMessage(`{"sdp":"offer"}`)))

	sellerSub, err := f.usecase.Subscribe(ctx, f.seller.Address(),
		relayAuth(t, f.seller, now.Unix(), rules))
	require.NoError(t, err)

	var sellerGot []map[string]interface{}
	sellerSub.OnServerMessage(func(payload json.RawMessage) {
		var frame map[string]interface{}
		require.NoError(t, json.Unmarshal(payload, &frame))
		sellerGot = append(sellerGot, frame)
	})

	require.True(t, buyerSub.ClientMessage(json.RawMessage(`{"sdp":"offer"}`)))
	require.Len(t, sellerGot, 1)
	assert.Equal(t, RelayMsgSignal, sellerGot[0]["type"])
	assert.Equal(t, strings.ToLower(f.buyer.Address()), sellerGot[0]["from"])

	// closing the buyer side notifies the seller and detaches
	buyerSub.ClientClose()
	require.Len(t, sellerGot, 2)
	assert.Equal(t, RelayMsgDisconnect, sellerGot[1]["type"])
	assert.NotContains(t, f.usecase.GetActiveAddresses(), strings.ToLower(f.buyer.Address()))

	// frames into a closed subscription go nowhere
	assert.False(t, buyerSub.ClientMessage(json.RawMessage(`{}`)))

	sellerSub.ClientClose()
	assert.Empty(t, f.usecase.GetActiveAddresses())
}

func TestRegisterReferralAndAttests(t *testing.T) {
	f := newRelayFixture(t)
	ctx := context.Background()

	message := `{"attestURL":"https://attest.example/alice","referralURL":"https://ref.example/alice"}`
	signature, err := f.buyer.SignDigest(ethsig.PersonalDigest(message))
	require.NoError(t, err)

	require.NoError(t, f.usecase.RegisterReferral(ctx, f.buyer.Address(), message, signature))

	attests, err := f.usecase.GetAllAttests(ctx, f.buyer.Address())
	require.NoError(t, err)
	assert.Equal(t, []string{"https://attest.example/alice"}, attests)

	// a signature from another key is refused
	forged, err := f.seller.SignDigest(ethsig.PersonalDigest(message))
	require.NoError(t, err)
	err = f.usecase.RegisterReferral(ctx, f.buyer.Address(), message, forged)
	var appErr *domainerrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, domainerrors.CodeInvalidSignature, appErr.Code)

	// an empty payload carries nothing to register
	empty := `{}`
	emptySig, err := f.buyer.SignDigest(ethsig.PersonalDigest(empty))
	require.NoError(t, err)
	err = f.usecase.RegisterReferral(ctx, f.buyer.Address(), empty, emptySig)
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, domainerrors.CodeInvalidInput, appErr.Code)
}

func TestSubmitUserInfo(t *testing.T) {
	f := newRelayFixture(t)
	ctx := context.Background()

	message := `{"name":"alice","avatar":"QmAvatar"}`
	signature, err := f.buyer.SignDigest(ethsig.PersonalDigest(message))
	require.NoError(t, err)

	info, err := f.usecase.SubmitUserInfo(ctx, f.buyer.Address(), message, signature)
	require.NoError(t, err)
	assert.Equal(t, strings.ToLower(f.buyer.Address()), info.EthAddress)
	assert.NotEmpty(t, info.IpfsHash)
	assert.JSONEq(t, message, string(info.Info))

	got, err := f.usecase.GetUserInfo(ctx, f.buyer.Address())
	require.NoError(t, err)
	assert.Equal(t, info.IpfsHash, got.IpfsHash)

	_, err = f.usecase.GetUserInfo(ctx, "0x00000000000000000000000000000000000000bb")
	var appErr *domainerrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, domainerrors.CodeNotFound, appErr.Code)
}

func TestVerifyAcceptOffer(t *testing.T) {
	f := newRelayFixture(t)
	ctx := context.Background()
	fee := new(big.Int).Set(minBehalfFee)

	ipfsBytes, err := fakeHashCodec{}.HashToBytes32("QmAccept")
	require.NoError(t, err)
	digest := ethsig.AcceptDigest(big.NewInt(5), big.NewInt(0), ipfsBytes, fee)

	sellerSig, err := f.seller.SignDigest(digest)
	require.NoError(t, err)

	txHash, err := f.usecase.VerifyAcceptOffer(ctx, "5-0", "QmAccept", fee, sellerSig)
	require.NoError(t, err)
	assert.Equal(t, "0xdeadbeef", txHash)
	require.Len(t, f.submitter.calls, 1)
	assert.Equal(t, "acceptOfferOnBehalf", f.submitter.calls[0].cmd)

	// only the seller can authorize an on-behalf accept
	buyerSig, err := f.buyer.SignDigest(digest)
	require.NoError(t, err)
	_, err = f.usecase.VerifyAcceptOffer(ctx, "5-0", "QmAccept", fee, buyerSig)
	var appErr *domainerrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, domainerrors.CodeInvalidSignature, appErr.Code)
	assert.Len(t, f.submitter.calls, 1)

	// the fee floor holds even with a valid seller signature
	low := new(big.Int).Sub(minBehalfFee, big.NewInt(1))
	lowDigest := ethsig.AcceptDigest(big.NewInt(5), big.NewInt(0), ipfsBytes, low)
	lowSig, err := f.seller.SignDigest(lowDigest)
	require.NoError(t, err)
	_, err = f.usecase.VerifyAcceptOffer(ctx, "5-0", "QmAccept", low, lowSig)
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, domainerrors.CodeFeeTooLow, appErr.Code)
}

func TestVerifySubmitFinalize(t *testing.T) {
	f := newRelayFixture(t)
	ctx := context.Background()
	fee := new(big.Int).Set(minBehalfFee)
	payout := big.NewInt(900) // value minus refund

	ipfsBytes, err := fakeHashCodec{}.HashToBytes32("QmFinalize")
	require.NoError(t, err)
	digest := ethsig.FinalizeDigest(big.NewInt(5), big.NewInt(0), ipfsBytes, payout, fee)

	sellerSig, err := f.seller.SignDigest(digest)
	require.NoError(t, err)
	// the offer names no verifier, so the operator's hot wallet stands in
	verifierSig, err := f.operator.SignDigest(digest)
	require.NoError(t, err)

	txHash, err := f.usecase.VerifySubmitFinalize(ctx, "5-0", "QmFinalize", fee, sellerSig, verifierSig)
	require.NoError(t, err)
	assert.Equal(t, "0xdeadbeef", txHash)
	require.Len(t, f.submitter.calls, 1)
	assert.Equal(t, "verifiedOnBehalfFinalize", f.submitter.calls[0].cmd)

	// a verifier signature from a random key is refused
	stranger := mustSigner(t)
	strangerSig, err := stranger.SignDigest(digest)
	require.NoError(t, err)
	_, err = f.usecase.VerifySubmitFinalize(ctx, "5-0", "QmFinalize", fee, sellerSig, strangerSig)
	var appErr *domainerrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, domainerrors.CodeInvalidSignature, appErr.Code)

	// a named verifier on the offer displaces the hot wallet
	named := mustSigner(t)
	f.reader.offers["5-0"].Verifier = named.Address()
	namedSig, err := named.SignDigest(digest)
	require.NoError(t, err)
	_, err = f.usecase.VerifySubmitFinalize(ctx, "5-0", "QmFinalize", fee, sellerSig, namedSig)
	require.NoError(t, err)
	_, err = f.usecase.VerifySubmitFinalize(ctx, "5-0", "QmFinalize", fee, sellerSig, verifierSig)
	require.Error(t, err)
}
