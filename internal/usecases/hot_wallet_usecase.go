package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"wallet-link.backend/internal/domain/entities"
	domainerrors "wallet-link.backend/internal/domain/errors"
	"wallet-link.backend/pkg/ethsig"
	"wallet-link.backend/pkg/logger"
)

// minBehalfFee is the minimum reimbursement, in wei, the operator accepts
// for submitting a transaction on a user's behalf. The boundary is
// inclusive: a fee exactly at the minimum passes.
var minBehalfFee, _ = new(big.Int).SetString("50000000000000", 10)

// allowedCalls maps relayable marketplace commands to the position of
// their reimbursement-fee parameter. Anything not listed is refused
// outright, whatever fee it offers.
var allowedCalls = map[string]int{
	"acceptOfferOnBehalf":      3,
	"verifiedOnBehalfFinalize": 3,
}

// MarketplaceReader reads marketplace contract state
type MarketplaceReader interface {
	GetOffer(ctx context.Context, listingID, offerID *big.Int) (*entities.Offer, error)
	ChainID() *big.Int
	ContractAddress() string
}

// MarketplaceSubmitter submits co-signed marketplace transactions
type MarketplaceSubmitter interface {
	HasMethod(cmd string) bool
	SubmitCall(ctx context.Context, cmd string, params []interface{}) (string, error)
}

// HashDecoder converts gateway content hashes to on-chain bytes32 form
type HashDecoder interface {
	HashToBytes32(hash string) ([32]byte, error)
	Bytes32ToHash(b [32]byte) string
}

// HotWalletUsecase enforces the operator co-signing policy: only
// allow-listed marketplace commands carrying at least the minimum
// reimbursement fee are ever signed or submitted with the hot key.
type HotWalletUsecase struct {
	reader    MarketplaceReader
	submitter MarketplaceSubmitter
	signer    ethsig.Signer
	verifier  ethsig.Verifier
	ipfs      IPFSStore
	hashes    HashDecoder
	client    *http.Client
}

// NewHotWalletUsecase creates the co-sign gate. signer may be nil when the
// operator runs without a hot key; signing operations then fail with
// Forbidden instead of panicking.
func NewHotWalletUsecase(
	reader MarketplaceReader,
	submitter MarketplaceSubmitter,
	signer ethsig.Signer,
	verifier ethsig.Verifier,
	ipfs IPFSStore,
	hashes HashDecoder,
) *HotWalletUsecase {
	return &HotWalletUsecase{
		reader:    reader,
		submitter: submitter,
		signer:    signer,
		verifier:  verifier,
		ipfs:      ipfs,
		hashes:    hashes,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Address reports the hot wallet address, empty when unconfigured
func (u *HotWalletUsecase) Address() string {
	if u.signer == nil {
		return ""
	}
	return u.signer.Address()
}

// checkCallPolicy applies the allow-list and minimum-fee rule to a raw
// parameter vector. Fee params arrive as JSON strings or numbers.
func checkCallPolicy(cmd string, params []interface{}) error {
	feeIndex, ok := allowedCalls[cmd]
	if !ok {
		return domainerrors.Forbidden(fmt.Sprintf("call %q not permitted", cmd))
	}
	if feeIndex >= len(params) {
		return domainerrors.BadRequest("missing fee parameter")
	}

	fee, err := paramToBig(params[feeIndex])
	if err != nil {
		return domainerrors.BadRequest("malformed fee parameter")
	}
	if fee.Cmp(minBehalfFee) < 0 {
		return domainerrors.FeeTooLow(fmt.Sprintf("fee %s below minimum %s", fee, minBehalfFee))
	}
	return nil
}

func paramToBig(raw interface{}) (*big.Int, error) {
	switch v := raw.(type) {
	case string:
		n, ok := new(big.Int).SetString(v, 10)
		if !ok {
			return nil, fmt.Errorf("not a base-10 integer: %q", v)
		}
		return n, nil
	case float64:
		return new(big.Int).SetInt64(int64(v)), nil
	case json.Number:
		n, ok := new(big.Int).SetString(v.String(), 10)
		if !ok {
			return nil, fmt.Errorf("not an integer: %q", v.String())
		}
		return n, nil
	case *big.Int:
		return v, nil
	}
	return nil, fmt.Errorf("cannot read fee from %T", raw)
}

// SubmitMarketplace relays an allow-listed contract call signed with the
// hot key. Returns the transaction hash.
func (u *HotWalletUsecase) SubmitMarketplace(ctx context.Context, cmd string, params []interface{}) (string, error) {
	if u.signer == nil {
		return "", domainerrors.Forbidden("no hot wallet configured")
	}
	if err := checkCallPolicy(cmd, params); err != nil {
		return "", err
	}
	if !u.submitter.HasMethod(cmd) {
		return "", domainerrors.BadRequest(fmt.Sprintf("unknown marketplace method %q", cmd))
	}

	txHash, err := u.submitter.SubmitCall(ctx, cmd, params)
	if err != nil {
		logger.Error(ctx, "Marketplace submit failed", zap.String("cmd", cmd), zap.Error(err))
		return "", domainerrors.InternalError(err)
	}

	logger.Info(ctx, "Marketplace call submitted",
		zap.String("cmd", cmd), zap.String("tx", txHash))
	return txHash, nil
}

// GetOffer reads an offer, resolving its off-chain accept terms when the
// accept hash is present.
func (u *HotWalletUsecase) GetOffer(ctx context.Context, compositeID string) (*entities.Offer, error) {
	listingID, offerID, err := parseCompositeOfferID(compositeID)
	if err != nil {
		return nil, domainerrors.BadRequest(err.Error())
	}

	offer, err := u.reader.GetOffer(ctx, listingID, offerID)
	if err != nil {
		return nil, domainerrors.NotFound("offer not found")
	}

	if terms := u.acceptTerms(ctx, offer.AcceptIpfsHash); terms != nil {
		offer.VerifyTerms = terms
	}
	return offer, nil
}

// acceptTerms reads the verification terms embedded in the accept object.
// Missing or malformed terms are not an error, just an unverified offer.
func (u *HotWalletUsecase) acceptTerms(ctx context.Context, acceptHashHex string) *entities.VerifyTerms {
	if acceptHashHex == "" || u.ipfs == nil {
		return nil
	}
	raw, err := hexutil.Decode(acceptHashHex)
	if err != nil || len(raw) != 32 {
		return nil
	}
	var b [32]byte
	copy(b[:], raw)
	if b == ([32]byte{}) {
		return nil
	}

	var accept struct {
		VerifyTerms *entities.VerifyTerms `json:"verifyTerms"`
	}
	if err := u.ipfs.GetObject(ctx, u.hashes.Bytes32ToHash(b), &accept); err != nil {
		return nil
	}
	return accept.VerifyTerms
}

// SignFinalize produces the verifier-side signature over the finalize
// digest for an offer the hot wallet has verified.
func (u *HotWalletUsecase) SignFinalize(listingID, offerID *big.Int, ipfsBytes [32]byte, payout, fee *big.Int) (string, error) {
	if u.signer == nil {
		return "", domainerrors.Forbidden("no hot wallet configured")
	}
	digest := ethsig.FinalizeDigest(listingID, offerID, ipfsBytes, payout, fee)
	return u.signer.SignDigest(digest)
}

// RecoverFinalize recovers the signer of a finalize authorization
func (u *HotWalletUsecase) RecoverFinalize(listingID, offerID *big.Int, ipfsBytes [32]byte, payout, fee *big.Int, signature string) (string, error) {
	digest := ethsig.FinalizeDigest(listingID, offerID, ipfsBytes, payout, fee)
	addr, err := u.verifier.RecoverDigest(digest, signature)
	if err != nil {
		return "", domainerrors.AuthError("signature recovery failed")
	}
	return addr, nil
}

// RecoverAccept recovers the signer of an on-behalf accept authorization
func (u *HotWalletUsecase) RecoverAccept(listingID, offerID *big.Int, ipfsBytes [32]byte, behalfFee *big.Int, signature string) (string, error) {
	digest := ethsig.AcceptDigest(listingID, offerID, ipfsBytes, behalfFee)
	addr, err := u.verifier.RecoverDigest(digest, signature)
	if err != nil {
		return "", domainerrors.AuthError("signature recovery failed")
	}
	return addr, nil
}

// VerifyOfferResult reports the outcome of an operator verification
type VerifyOfferResult struct {
	Verified  bool   `json:"verified"`
	Signature string `json:"signature,omitempty"`
	IpfsHash  string `json:"ipfs_hash,omitempty"`
	Payout    string `json:"payout,omitempty"`
	Fee       string `json:"fee,omitempty"`
}

// VerifyOffer runs the offer's external verification check itself: it
// fetches the terms' verify URL, compares the named response field to the
// expected value and pins the verification record before co-signing. The
// requester payload is stored with the record for audit.
func (u *HotWalletUsecase) VerifyOffer(ctx context.Context, compositeID string, fee *big.Int, requester json.RawMessage) (*VerifyOfferResult, error) {
	if u.signer == nil {
		return nil, domainerrors.Forbidden("no hot wallet configured")
	}
	if fee == nil || fee.Cmp(minBehalfFee) < 0 {
		return nil, domainerrors.FeeTooLow(fmt.Sprintf("fee below minimum %s", minBehalfFee))
	}

	listingID, offerID, err := parseCompositeOfferID(compositeID)
	if err != nil {
		return nil, domainerrors.BadRequest(err.Error())
	}

	offer, err := u.reader.GetOffer(ctx, listingID, offerID)
	if err != nil {
		return nil, domainerrors.NotFound("offer not found")
	}
	// the hot wallet only verifies offers naming it as verifier
	if !strings.EqualFold(offer.Verifier, u.signer.Address()) {
		return nil, domainerrors.Forbidden("offer names a different verifier")
	}

	terms := u.acceptTerms(ctx, offer.AcceptIpfsHash)
	if terms == nil || terms.VerifyURL == "" || terms.CheckArg == "" || terms.MatchValue == "" {
		return nil, domainerrors.NotFound("offer has no verification terms")
	}

	checked, err := u.fetchVerification(ctx, terms.VerifyURL)
	if err != nil {
		logger.Warn(ctx, "Verification fetch failed",
			zap.String("url", terms.VerifyURL), zap.Error(err))
		return nil, domainerrors.InternalError(err)
	}
	if fmt.Sprint(checked[terms.CheckArg]) != terms.MatchValue {
		return &VerifyOfferResult{Verified: false}, nil
	}

	ipfsHash, err := u.ipfs.PutObject(ctx, map[string]interface{}{
		"verifyURL":       terms.VerifyURL,
		"checkArg":        terms.CheckArg,
		"matchValue":      terms.MatchValue,
		"verifyRequester": requester,
	})
	if err != nil {
		return nil, domainerrors.InternalError(err)
	}
	ipfsBytes, err := u.hashes.HashToBytes32(ipfsHash)
	if err != nil {
		return nil, domainerrors.InternalError(err)
	}

	payout := offer.Payout()
	signature, err := u.SignFinalize(listingID, offerID, ipfsBytes, payout, fee)
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "Offer verified",
		zap.String("listing", listingID.String()),
		zap.String("offer", offerID.String()))

	return &VerifyOfferResult{
		Verified:  true,
		Signature: signature,
		IpfsHash:  ipfsHash,
		Payout:    payout.String(),
		Fee:       fee.String(),
	}, nil
}

// fetchVerification performs the external check lookup and decodes the
// JSON response
func (u *HotWalletUsecase) fetchVerification(ctx context.Context, url string) (map[string]interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := u.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("verification endpoint returned %s", resp.Status)
	}
	var out map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

func parseCompositeOfferID(compositeID string) (*big.Int, *big.Int, error) {
	parts := strings.Split(compositeID, "-")
	if len(parts) != 2 {
		return nil, nil, fmt.Errorf("malformed offer id %q", compositeID)
	}
	listing, ok := new(big.Int).SetString(parts[0], 10)
	if !ok {
		return nil, nil, fmt.Errorf("malformed listing id %q", parts[0])
	}
	offer, ok := new(big.Int).SetString(parts[1], 10)
	if !ok {
		return nil, nil, fmt.Errorf("malformed offer index %q", parts[1])
	}
	return listing, offer, nil
}
