package blockchain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"wallet-link.backend/internal/domain/entities"
	"wallet-link.backend/pkg/ethsig"
)

// marketplaceABI is the slice of the marketplace contract the relay touches:
// reading offers/listings and submitting the two on-behalf calls.
const marketplaceABI = `[
  {"name":"offers","type":"function","stateMutability":"view",
   "inputs":[{"name":"listingID","type":"uint256"},{"name":"offerID","type":"uint256"}],
   "outputs":[{"name":"value","type":"uint256"},{"name":"commission","type":"uint256"},
              {"name":"refund","type":"uint256"},{"name":"buyer","type":"address"},
              {"name":"verifier","type":"address"},{"name":"finalizes","type":"uint256"},
              {"name":"ipfsHash","type":"bytes32"},{"name":"status","type":"uint8"}]},
  {"name":"listings","type":"function","stateMutability":"view",
   "inputs":[{"name":"listingID","type":"uint256"}],
   "outputs":[{"name":"seller","type":"address"},{"name":"deposit","type":"uint256"},
              {"name":"depositManager","type":"address"}]},
  {"name":"acceptOfferOnBehalf","type":"function","stateMutability":"nonpayable",
   "inputs":[{"name":"listingID","type":"uint256"},{"name":"offerID","type":"uint256"},
             {"name":"ipfsHash","type":"bytes32"},{"name":"behalfFee","type":"uint256"},
             {"name":"signature","type":"bytes"}],"outputs":[]},
  {"name":"verifiedOnBehalfFinalize","type":"function","stateMutability":"nonpayable",
   "inputs":[{"name":"listingID","type":"uint256"},{"name":"offerID","type":"uint256"},
             {"name":"ipfsHash","type":"bytes32"},{"name":"behalfFee","type":"uint256"},
             {"name":"payout","type":"uint256"},{"name":"fee","type":"uint256"},
             {"name":"sellerSig","type":"bytes"},{"name":"verifierSig","type":"bytes"}],
   "outputs":[]}
]`

var (
	dialEVMClient    = ethclient.Dial
	getClientChainID = func(client *ethclient.Client, ctx context.Context) (*big.Int, error) {
		return client.ChainID(ctx)
	}
)

// MarketplaceClient reads marketplace contract state and submits hot-wallet
// co-signed transactions.
type MarketplaceClient struct {
	client      *ethclient.Client
	chainID     *big.Int
	contract    common.Address
	contractABI abi.ABI
	signer      *ethsig.KeySigner

	// testCallView allows deterministic unit tests without network sockets
	testCallView func(ctx context.Context, to common.Address, data []byte) ([]byte, error)
}

// NewMarketplaceClient dials the RPC endpoint and binds the contract address.
// The signer may be nil when no hot wallet is configured; submit calls then
// fail with a clear error.
func NewMarketplaceClient(rpcURL, contractAddress string, signer *ethsig.KeySigner) (*MarketplaceClient, error) {
	client, err := dialEVMClient(rpcURL)
	if err != nil {
		return nil, err
	}

	chainID, err := getClientChainID(client, context.Background())
	if err != nil {
		return nil, err
	}

	parsed, err := abi.JSON(strings.NewReader(marketplaceABI))
	if err != nil {
		return nil, err
	}

	return &MarketplaceClient{
		client:      client,
		chainID:     chainID,
		contract:    common.HexToAddress(contractAddress),
		contractABI: parsed,
		signer:      signer,
	}, nil
}

// NewMarketplaceClientWithCallView creates a client backed by an injected
// call function, for unit tests without RPC sockets.
func NewMarketplaceClientWithCallView(callViewFn func(ctx context.Context, to common.Address, data []byte) ([]byte, error)) *MarketplaceClient {
	parsed, _ := abi.JSON(strings.NewReader(marketplaceABI))
	return &MarketplaceClient{
		chainID:      big.NewInt(1),
		contractABI:  parsed,
		testCallView: callViewFn,
	}
}

// ChainID returns the chain id of the connected network
func (c *MarketplaceClient) ChainID() *big.Int {
	return c.chainID
}

// ContractAddress returns the bound marketplace address
func (c *MarketplaceClient) ContractAddress() string {
	return c.contract.Hex()
}

// ParseOfferID splits a composite "listingID-offerID" identifier
func ParseOfferID(offerID string) (*big.Int, *big.Int, error) {
	parts := strings.Split(offerID, "-")
	if len(parts) != 2 {
		return nil, nil, fmt.Errorf("malformed offer id %q", offerID)
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

func (c *MarketplaceClient) callView(ctx context.Context, data []byte) ([]byte, error) {
	if c.testCallView != nil {
		return c.testCallView(ctx, c.contract, data)
	}
	msg := ethereum.CallMsg{To: &c.contract, Data: data}
	return c.client.CallContract(ctx, msg, nil)
}

// GetOffer reads an offer and its listing's seller straight from the chain
func (c *MarketplaceClient) GetOffer(ctx context.Context, listingID, offerID *big.Int) (*entities.Offer, error) {
	data, err := c.contractABI.Pack("offers", listingID, offerID)
	if err != nil {
		return nil, err
	}
	raw, err := c.callView(ctx, data)
	if err != nil {
		return nil, err
	}
	values, err := c.contractABI.Unpack("offers", raw)
	if err != nil {
		return nil, err
	}
	if len(values) != 8 {
		return nil, fmt.Errorf("unexpected offers output arity %d", len(values))
	}

	seller, err := c.getSeller(ctx, listingID)
	if err != nil {
		return nil, err
	}

	ipfsHash, _ := values[6].([32]byte)
	offer := &entities.Offer{
		ListingID:      listingID.String(),
		OfferID:        offerID.String(),
		Value:          values[0].(*big.Int),
		Refund:         values[2].(*big.Int),
		Buyer:          values[3].(common.Address).Hex(),
		Verifier:       values[4].(common.Address).Hex(),
		Status:         values[7].(uint8),
		Seller:         seller,
		AcceptIpfsHash: hexutil.Encode(ipfsHash[:]),
	}
	return offer, nil
}

func (c *MarketplaceClient) getSeller(ctx context.Context, listingID *big.Int) (string, error) {
	data, err := c.contractABI.Pack("listings", listingID)
	if err != nil {
		return "", err
	}
	raw, err := c.callView(ctx, data)
	if err != nil {
		return "", err
	}
	values, err := c.contractABI.Unpack("listings", raw)
	if err != nil {
		return "", err
	}
	return values[0].(common.Address).Hex(), nil
}

// HasMethod reports whether the bound contract slice knows a command
func (c *MarketplaceClient) HasMethod(cmd string) bool {
	_, ok := c.contractABI.Methods[cmd]
	return ok
}

// PackCall converts loosely typed JSON params into the method's ABI types
// and packs the calldata.
func (c *MarketplaceClient) PackCall(cmd string, params []interface{}) ([]byte, error) {
	method, ok := c.contractABI.Methods[cmd]
	if !ok {
		return nil, fmt.Errorf("unknown marketplace method %q", cmd)
	}
	if len(params) != len(method.Inputs) {
		return nil, fmt.Errorf("method %q wants %d params, got %d", cmd, len(method.Inputs), len(params))
	}

	converted := make([]interface{}, len(params))
	for i, input := range method.Inputs {
		v, err := convertParam(input.Type, params[i])
		if err != nil {
			return nil, fmt.Errorf("param %d of %q: %w", i, cmd, err)
		}
		converted[i] = v
	}
	return c.contractABI.Pack(cmd, converted...)
}

func convertParam(t abi.Type, raw interface{}) (interface{}, error) {
	switch t.T {
	case abi.UintTy, abi.IntTy:
		switch v := raw.(type) {
		case string:
			n, ok := new(big.Int).SetString(v, 10)
			if !ok {
				return nil, fmt.Errorf("not a base-10 integer: %q", v)
			}
			return n, nil
		case float64:
			return new(big.Int).SetInt64(int64(v)), nil
		case *big.Int:
			return v, nil
		}
	case abi.AddressTy:
		if v, ok := raw.(string); ok {
			return common.HexToAddress(v), nil
		}
	case abi.FixedBytesTy:
		if v, ok := raw.(string); ok {
			b, err := hexutil.Decode(v)
			if err != nil || len(b) != t.Size {
				return nil, fmt.Errorf("expected %d hex bytes", t.Size)
			}
			var out [32]byte
			copy(out[:], b)
			return out, nil
		}
	case abi.BytesTy:
		if v, ok := raw.(string); ok {
			return hexutil.Decode(v)
		}
	}
	return nil, fmt.Errorf("cannot convert %T to %s", raw, t.String())
}

// SubmitCall estimates gas, signs with the hot wallet and broadcasts the
// transaction. Returns the transaction hash without waiting for inclusion.
func (c *MarketplaceClient) SubmitCall(ctx context.Context, cmd string, params []interface{}) (string, error) {
	if c.signer == nil {
		return "", fmt.Errorf("no hot wallet configured")
	}

	data, err := c.PackCall(cmd, params)
	if err != nil {
		return "", err
	}

	from := common.HexToAddress(c.signer.Address())
	nonce, err := c.client.PendingNonceAt(ctx, from)
	if err != nil {
		return "", err
	}
	gasPrice, err := c.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", err
	}
	gas, err := c.client.EstimateGas(ctx, ethereum.CallMsg{
		From: from,
		To:   &c.contract,
		Data: data,
	})
	if err != nil {
		return "", err
	}

	tx := types.NewTransaction(nonce, c.contract, big.NewInt(0), gas, gasPrice, data)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.signer.Key())
	if err != nil {
		return "", err
	}
	if err := c.client.SendTransaction(ctx, signed); err != nil {
		return "", err
	}
	return signed.Hash().Hex(), nil
}
