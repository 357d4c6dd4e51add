package blockchain

import (
	"context"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(marketplaceABI))
	if err != nil {
		panic(err)
	}
	return parsed
}()

func TestParseOfferID(t *testing.T) {
	listing, offer, err := ParseOfferID("42-7")
	require.NoError(t, err)
	assert.Equal(t, int64(42), listing.Int64())
	assert.Equal(t, int64(7), offer.Int64())

	for _, bad := range []string{"", "42", "42-7-1", "a-1", "1-b"} {
		_, _, err := ParseOfferID(bad)
		assert.Error(t, err, bad)
	}
}

func TestGetOffer_DecodesContractOutput(t *testing.T) {
	buyer := common.HexToAddress("0x00000000000000000000000000000000000000b1")
	verifier := common.HexToAddress("0x00000000000000000000000000000000000000c1")
	seller := common.HexToAddress("0x00000000000000000000000000000000000000d1")
	var ipfsHash [32]byte
	ipfsHash[0] = 0xab

	client := NewMarketplaceClientWithCallView(
		func(_ context.Context, _ common.Address, data []byte) ([]byte, error) {
			offersID := testABI.Methods["offers"].ID
			listingsID := testABI.Methods["listings"].ID
			switch {
			case len(data) >= 4 && string(data[:4]) == string(offersID):
				return testABI.Methods["offers"].Outputs.Pack(
					big.NewInt(1000), big.NewInt(25), big.NewInt(100),
					buyer, verifier, big.NewInt(0), ipfsHash, uint8(2))
			case len(data) >= 4 && string(data[:4]) == string(listingsID):
				return testABI.Methods["listings"].Outputs.Pack(
					seller, big.NewInt(0), common.Address{})
			}
			t.Fatalf("unexpected calldata %x", data)
			return nil, nil
		})

	offer, err := client.GetOffer(context.Background(), big.NewInt(5), big.NewInt(0))
	require.NoError(t, err)
	assert.Equal(t, "5", offer.ListingID)
	assert.Equal(t, "0", offer.OfferID)
	assert.Equal(t, big.NewInt(1000), offer.Value)
	assert.Equal(t, big.NewInt(100), offer.Refund)
	assert.Equal(t, buyer.Hex(), offer.Buyer)
	assert.Equal(t, verifier.Hex(), offer.Verifier)
	assert.Equal(t, seller.Hex(), offer.Seller)
	assert.Equal(t, uint8(2), offer.Status)
	assert.Equal(t, big.NewInt(900), offer.Payout())
	assert.Equal(t, "0xab"+strings.Repeat("00", 31), offer.AcceptIpfsHash)
}

func TestHasMethod(t *testing.T) {
	client := NewMarketplaceClientWithCallView(nil)
	assert.True(t, client.HasMethod("acceptOfferOnBehalf"))
	assert.True(t, client.HasMethod("verifiedOnBehalfFinalize"))
	assert.False(t, client.HasMethod("withdrawListing"))
}

func TestPackCall_ConvertsJSONParams(t *testing.T) {
	client := NewMarketplaceClientWithCallView(nil)

	ipfsHex := "0x" + strings.Repeat("ab", 32)
	data, err := client.PackCall("acceptOfferOnBehalf", []interface{}{
		"5", float64(0), ipfsHex, "50000000000000", "0x1234",
	})
	require.NoError(t, err)
	assert.Equal(t, testABI.Methods["acceptOfferOnBehalf"].ID, data[:4])

	// same arguments in their native types pack to the same calldata
	var ipfsBytes [32]byte
	for i := range ipfsBytes {
		ipfsBytes[i] = 0xab
	}
	fee, _ := new(big.Int).SetString("50000000000000", 10)
	want, err := testABI.Pack("acceptOfferOnBehalf",
		big.NewInt(5), big.NewInt(0), ipfsBytes, fee, []byte{0x12, 0x34})
	require.NoError(t, err)
	assert.Equal(t, want, data)
}

func TestPackCall_Rejects(t *testing.T) {
	client := NewMarketplaceClientWithCallView(nil)
	ipfsHex := "0x" + strings.Repeat("ab", 32)

	_, err := client.PackCall("unknownMethod", nil)
	assert.Error(t, err)

	// arity mismatch
	_, err = client.PackCall("acceptOfferOnBehalf", []interface{}{"5", "0"})
	assert.Error(t, err)

	// short fixed-bytes value
	_, err = client.PackCall("acceptOfferOnBehalf", []interface{}{
		"5", "0", "0xabcd", "50000000000000", "0x1234",
	})
	assert.Error(t, err)

	// non-numeric uint
	_, err = client.PackCall("acceptOfferOnBehalf", []interface{}{
		"lots", "0", ipfsHex, "50000000000000", "0x1234",
	})
	assert.Error(t, err)
}

func TestSubmitCall_RequiresSigner(t *testing.T) {
	client := NewMarketplaceClientWithCallView(nil)
	_, err := client.SubmitCall(context.Background(), "acceptOfferOnBehalf", nil)
	assert.Error(t, err)
}
