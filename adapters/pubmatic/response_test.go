package pubmatic

import (
	"encoding/json"
	"testing"

	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prebid/prebid-adapters/adapters"
	"github.com/prebid/prebid-adapters/errortypes"
	"github.com/prebid/prebid-adapters/openrtb_ext"
	"github.com/prebid/prebid-adapters/util/ptrutil"
)

func bannerRequestData() *adapters.RequestData {
	return &adapters.RequestData{
		BidRequest: &openrtb2.BidRequest{
			Site: &openrtb2.Site{Ref: "https://referer.example.com"},
			Imp: []openrtb2.Imp{
				{ID: "bid-1", Banner: &openrtb2.Banner{W: ptrutil.ToPtr(int64(300)), H: ptrutil.ToPtr(int64(250))}},
			},
		},
	}
}

func responseBody(t *testing.T, resp openrtb2.BidResponse) *adapters.ResponseData {
	t.Helper()
	body, err := json.Marshal(resp)
	require.NoError(t, err)
	return &adapters.ResponseData{StatusCode: 200, Body: body}
}

func TestMakeBidsStatusCodes(t *testing.T) {
	a := &PubmaticAdapter{endpoint: defaultEndpoint}
	request := testRequest(bannerBid("bid-1", `{"publisherId":"5670"}`))

	t.Run("204 yields an empty response", func(t *testing.T) {
		resp, errs := a.MakeBids(request, bannerRequestData(), &adapters.ResponseData{StatusCode: 204})
		require.NotNil(t, resp)
		assert.Empty(t, resp.Bids)
		assert.Empty(t, errs)
	})

	t.Run("400 is a bad input error", func(t *testing.T) {
		resp, errs := a.MakeBids(request, bannerRequestData(), &adapters.ResponseData{StatusCode: 400})
		assert.Nil(t, resp)
		require.Len(t, errs, 1)
		assert.IsType(t, &errortypes.BadInput{}, errs[0])
	})

	t.Run("500 is a bad server response", func(t *testing.T) {
		resp, errs := a.MakeBids(request, bannerRequestData(), &adapters.ResponseData{StatusCode: 500})
		assert.Nil(t, resp)
		require.Len(t, errs, 1)
		assert.IsType(t, &errortypes.BadServerResponse{}, errs[0])
	})

	t.Run("unparsable body is a bad server response", func(t *testing.T) {
		resp, errs := a.MakeBids(request, bannerRequestData(), &adapters.ResponseData{StatusCode: 200, Body: []byte(`{`)})
		assert.Nil(t, resp)
		require.Len(t, errs, 1)
		assert.IsType(t, &errortypes.BadServerResponse{}, errs[0])
	})
}

func TestMakeBidsBanner(t *testing.T) {
	a := &PubmaticAdapter{endpoint: defaultEndpoint}
	request := testRequest(bannerBid("bid-1", `{"publisherId":"5670"}`))

	response := responseBody(t, openrtb2.BidResponse{
		ID:  "resp-1",
		Cur: "EUR",
		SeatBid: []openrtb2.SeatBid{{
			Seat: "seat-id",
			Ext:  json.RawMessage(`{"buyid":"BUYER-ID-987"}`),
			Bid: []openrtb2.Bid{{
				ID:      "partner-imp-id-1",
				ImpID:   "bid-1",
				Price:   1.2345,
				AdM:     "<div>ad</div>",
				CrID:    "creative-1",
				DealID:  "deal-1",
				ADomain: []string{"blackrock.com"},
				Cat:     []string{"IAB1-1"},
				Ext:     json.RawMessage(`{"dspid":6,"deal_channel":6,"advid":976,"dchain":{"ver":"1.0"}}`),
			}},
		}},
	})

	resp, errs := a.MakeBids(request, bannerRequestData(), response)
	require.NotNil(t, resp)
	assert.Empty(t, errs)
	assert.Equal(t, "EUR", resp.Currency)
	require.Len(t, resp.Bids, 1)

	bid := resp.Bids[0]
	assert.Equal(t, openrtb_ext.BidTypeBanner, bid.BidType)
	assert.Equal(t, 1.23, bid.Cpm)
	assert.Equal(t, "creative-1", bid.CreativeID)
	assert.True(t, bid.NetRevenue)
	assert.Equal(t, 360, bid.TTL)
	assert.Equal(t, "https://referer.example.com", bid.Referrer)
	assert.Equal(t, "partner-imp-id-1", bid.PartnerImpID)
	assert.Equal(t, "seat-id", bid.Seat)
	assert.Equal(t, 6, *bid.DspID)
	assert.Equal(t, "PMPG", bid.DealChannel)
	assert.Equal(t, map[string]string{"hb_buyid_pubmatic": "BUYER-ID-987"}, bid.BidTargets)

	require.NotNil(t, bid.Meta)
	assert.Equal(t, "seat-id", bid.Meta.BuyerID)
	assert.Equal(t, "seat-id", bid.Meta.AdvertiserID)
	assert.Equal(t, "seat-id", bid.Meta.AgencyID)
	assert.Equal(t, 6, bid.Meta.NetworkID)
	assert.Equal(t, 6, bid.Meta.DemandSource)
	assert.Equal(t, "IAB1-1", bid.Meta.PrimaryCatID)
	assert.Equal(t, []string{"blackrock.com"}, bid.Meta.AdvertiserDomains)
	assert.Equal(t, "blackrock.com", bid.Meta.ClickURL)
	assert.Equal(t, "blackrock.com", bid.Meta.BrandID)
	assert.JSONEq(t, `{"ver":"1.0"}`, string(bid.Meta.DChain))
	assert.Equal(t, openrtb_ext.BidTypeBanner, bid.Meta.MediaType)
}

func TestMakeBidsMetaBuyerPrecedence(t *testing.T) {
	a := &PubmaticAdapter{endpoint: defaultEndpoint}
	request := testRequest(bannerBid("bid-1", `{"publisherId":"5670"}`))

	makeBid := func(t *testing.T, seat, ext string) *adapters.TypedBid {
		t.Helper()
		response := responseBody(t, openrtb2.BidResponse{
			SeatBid: []openrtb2.SeatBid{{
				Seat: seat,
				Bid:  []openrtb2.Bid{{ID: "b1", ImpID: "bid-1", Price: 1.0, Ext: json.RawMessage(ext)}},
			}},
		})
		resp, errs := a.MakeBids(request, bannerRequestData(), response)
		require.NotNil(t, resp)
		require.Empty(t, errs)
		require.Len(t, resp.Bids, 1)
		return resp.Bids[0]
	}

	t.Run("seat wins over advid", func(t *testing.T) {
		bid := makeBid(t, "5100", `{"advid":"12"}`)
		assert.Equal(t, "5100", bid.Meta.BuyerID)
		assert.Equal(t, "5100", bid.Meta.AdvertiserID)
		assert.Equal(t, "5100", bid.Meta.AgencyID)
	})

	t.Run("advid fills in when the seat is empty", func(t *testing.T) {
		bid := makeBid(t, "", `{"advid":976}`)
		assert.Equal(t, "976", bid.Meta.BuyerID)
		assert.Equal(t, "976", bid.Meta.AdvertiserID)
		assert.Equal(t, "976", bid.Meta.AgencyID)
	})
}

func TestMakeBidsUnmatchedImpIDDropped(t *testing.T) {
	a := &PubmaticAdapter{endpoint: defaultEndpoint}
	request := testRequest(bannerBid("bid-1", `{"publisherId":"5670"}`))

	response := responseBody(t, openrtb2.BidResponse{
		SeatBid: []openrtb2.SeatBid{{
			Bid: []openrtb2.Bid{
				{ID: "b1", ImpID: "no-such-imp", Price: 1.0},
				{ID: "b2", ImpID: "bid-1", Price: 2.0},
			},
		}},
	})

	resp, errs := a.MakeBids(request, bannerRequestData(), response)
	require.NotNil(t, resp)
	assert.Empty(t, errs)
	require.Len(t, resp.Bids, 1)
	assert.Equal(t, "bid-1", resp.Bids[0].Bid.ImpID)
	assert.Equal(t, "USD", resp.Currency)
}

func TestDealChannel(t *testing.T) {
	a := &PubmaticAdapter{endpoint: defaultEndpoint}
	request := testRequest(bannerBid("bid-1", `{"publisherId":"5670"}`))

	makeBid := func(t *testing.T, ext string, dealID string) *adapters.TypedBid {
		t.Helper()
		response := responseBody(t, openrtb2.BidResponse{
			SeatBid: []openrtb2.SeatBid{{
				Bid: []openrtb2.Bid{{ID: "b1", ImpID: "bid-1", Price: 1.0, DealID: dealID, Ext: json.RawMessage(ext)}},
			}},
		})
		resp, errs := a.MakeBids(request, bannerRequestData(), response)
		require.NotNil(t, resp)
		require.Empty(t, errs)
		require.Len(t, resp.Bids, 1)
		return resp.Bids[0]
	}

	assert.Equal(t, "PMP", makeBid(t, `{}`, "deal-1").DealChannel)
	assert.Equal(t, "PREF", makeBid(t, `{"deal_channel":5}`, "deal-1").DealChannel)
	assert.Equal(t, "PMPG", makeBid(t, `{"deal_channel":6}`, "deal-1").DealChannel)
	assert.Empty(t, makeBid(t, `{"deal_channel":11}`, "deal-1").DealChannel)
	assert.Empty(t, makeBid(t, `{}`, "").DealChannel)
}

func TestResolveBidTypeFromExt(t *testing.T) {
	a := &PubmaticAdapter{endpoint: defaultEndpoint}
	request := testRequest(bannerBid("bid-1", `{"publisherId":"5670"}`))

	response := responseBody(t, openrtb2.BidResponse{
		SeatBid: []openrtb2.SeatBid{{
			Bid: []openrtb2.Bid{{ID: "b1", ImpID: "bid-1", Price: 1.0, Ext: json.RawMessage(`{"bidtype":1}`)}},
		}},
	})

	resp, _ := a.MakeBids(request, bannerRequestData(), response)
	require.Len(t, resp.Bids, 1)
	assert.Equal(t, openrtb_ext.BidTypeVideo, resp.Bids[0].BidType)
	assert.Equal(t, 1800, resp.Bids[0].TTL)
}

func TestResolveBidTypeFromImp(t *testing.T) {
	tests := []struct {
		name     string
		imp      openrtb2.Imp
		expected openrtb_ext.BidType
	}{
		{
			name:     "banner wins in multiformat",
			imp:      openrtb2.Imp{ID: "bid-1", Banner: &openrtb2.Banner{}, Video: &openrtb2.Video{}, Native: &openrtb2.Native{}},
			expected: openrtb_ext.BidTypeBanner,
		},
		{
			name:     "video before native",
			imp:      openrtb2.Imp{ID: "bid-1", Video: &openrtb2.Video{}, Native: &openrtb2.Native{}},
			expected: openrtb_ext.BidTypeVideo,
		},
		{
			name:     "native only",
			imp:      openrtb2.Imp{ID: "bid-1", Native: &openrtb2.Native{}},
			expected: openrtb_ext.BidTypeNative,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, resolveBidType(&openrtb_ext.ExtBidPubmatic{}, &tt.imp))
		})
	}
}

func TestMakeBidsNative(t *testing.T) {
	a := &PubmaticAdapter{endpoint: defaultEndpoint}
	request := testRequest(bannerBid("bid-1", `{"publisherId":"5670"}`))
	requestData := &adapters.RequestData{
		BidRequest: &openrtb2.BidRequest{
			Imp: []openrtb2.Imp{{ID: "bid-1", Native: &openrtb2.Native{Request: `{"ver":"1.2"}`}}},
		},
	}

	t.Run("adm parses into the native response", func(t *testing.T) {
		adm := `{"native":{"assets":[{"id":0,"title":{"text":"Lexus"}}],"link":{"url":"https://example.com"}}}`
		response := responseBody(t, openrtb2.BidResponse{
			SeatBid: []openrtb2.SeatBid{{
				Bid: []openrtb2.Bid{{ID: "b1", ImpID: "bid-1", Price: 1.0, AdM: adm}},
			}},
		})

		resp, errs := a.MakeBids(request, requestData, response)
		assert.Empty(t, errs)
		require.Len(t, resp.Bids, 1)
		assert.Equal(t, openrtb_ext.BidTypeNative, resp.Bids[0].BidType)
		require.NotNil(t, resp.Bids[0].NativeResponse)
	})

	t.Run("unparsable adm drops the bid", func(t *testing.T) {
		response := responseBody(t, openrtb2.BidResponse{
			SeatBid: []openrtb2.SeatBid{{
				Bid: []openrtb2.Bid{{ID: "b1", ImpID: "bid-1", Price: 1.0, AdM: "<div>not native</div>"}},
			}},
		})

		resp, errs := a.MakeBids(request, requestData, response)
		require.Len(t, errs, 1)
		assert.IsType(t, &errortypes.BadServerResponse{}, errs[0])
		assert.Empty(t, resp.Bids)
	})
}

func TestMakeBidsVideo(t *testing.T) {
	a := &PubmaticAdapter{endpoint: defaultEndpoint}
	requestData := &adapters.RequestData{
		BidRequest: &openrtb2.BidRequest{
			Imp: []openrtb2.Imp{{ID: "bid-1", Video: &openrtb2.Video{}}},
		},
	}

	videoBid := func(context string, maxDuration int64) adapters.BidRequest {
		return adapters.BidRequest{
			BidID:  "bid-1",
			Params: json.RawMessage(`{"publisherId":"5670"}`),
			MediaTypes: adapters.MediaTypes{
				Video: &adapters.Video{
					Context: context,
					Video:   openrtb2.Video{MIMEs: []string{"video/mp4"}, MaxDuration: maxDuration},
				},
			},
		}
	}

	t.Run("adpod deal priority becomes the deal tier", func(t *testing.T) {
		request := testRequest(videoBid(adapters.VideoContextAdpod, 30))
		response := responseBody(t, openrtb2.BidResponse{
			SeatBid: []openrtb2.SeatBid{{
				Bid: []openrtb2.Bid{{ID: "b1", ImpID: "bid-1", Price: 1.0, Ext: json.RawMessage(`{"prebiddealpriority":5,"video":{"duration":20}}`)}},
			}},
		})

		resp, errs := a.MakeBids(request, requestData, response)
		assert.Empty(t, errs)
		require.Len(t, resp.Bids, 1)
		require.NotNil(t, resp.Bids[0].Video)
		assert.Equal(t, 5, resp.Bids[0].Video.DealTier)
		assert.EqualValues(t, 20, resp.Bids[0].Video.DurationSeconds)
		assert.Equal(t, adapters.VideoContextAdpod, resp.Bids[0].Video.Context)
	})

	t.Run("duration falls back to the declared max", func(t *testing.T) {
		request := testRequest(videoBid(adapters.VideoContextAdpod, 30))
		response := responseBody(t, openrtb2.BidResponse{
			SeatBid: []openrtb2.SeatBid{{
				Bid: []openrtb2.Bid{{ID: "b1", ImpID: "bid-1", Price: 1.0, Ext: json.RawMessage(`{"prebiddealpriority":5}`)}},
			}},
		})

		resp, _ := a.MakeBids(request, requestData, response)
		require.Len(t, resp.Bids, 1)
		require.NotNil(t, resp.Bids[0].Video)
		assert.EqualValues(t, 30, resp.Bids[0].Video.DurationSeconds)
	})

	t.Run("no deal tier outside adpod", func(t *testing.T) {
		request := testRequest(videoBid(adapters.VideoContextInstream, 30))
		response := responseBody(t, openrtb2.BidResponse{
			SeatBid: []openrtb2.SeatBid{{
				Bid: []openrtb2.Bid{{ID: "b1", ImpID: "bid-1", Price: 1.0, Ext: json.RawMessage(`{"prebiddealpriority":5}`)}},
			}},
		})

		resp, _ := a.MakeBids(request, requestData, response)
		require.Len(t, resp.Bids, 1)
		assert.Nil(t, resp.Bids[0].Video)
	})

	t.Run("outstream bids get the default renderer", func(t *testing.T) {
		bid := videoBid(adapters.VideoContextOutstream, 30)
		bid.Params = json.RawMessage(`{"publisherId":"5670","outstreamAU":"renderer_test"}`)
		request := testRequest(bid)
		response := responseBody(t, openrtb2.BidResponse{
			SeatBid: []openrtb2.SeatBid{{
				Bid: []openrtb2.Bid{{ID: "b1", ImpID: "bid-1", Price: 1.0}},
			}},
		})

		resp, _ := a.MakeBids(request, requestData, response)
		require.Len(t, resp.Bids, 1)
		require.NotNil(t, resp.Bids[0].Renderer)
		assert.Equal(t, outstreamRendererURL, resp.Bids[0].Renderer.URL)
	})

	t.Run("publisher renderer wins over the default", func(t *testing.T) {
		bid := videoBid(adapters.VideoContextOutstream, 30)
		bid.Renderer = &adapters.RendererConfig{ID: "pub", URL: "https://example.com/r.js"}
		request := testRequest(bid)
		response := responseBody(t, openrtb2.BidResponse{
			SeatBid: []openrtb2.SeatBid{{
				Bid: []openrtb2.Bid{{ID: "b1", ImpID: "bid-1", Price: 1.0}},
			}},
		})

		resp, _ := a.MakeBids(request, requestData, response)
		require.Len(t, resp.Bids, 1)
		assert.Nil(t, resp.Bids[0].Renderer)
	})
}

func TestMakeBidsMarketplace(t *testing.T) {
	a := &PubmaticAdapter{endpoint: defaultEndpoint}
	request := testRequest(bannerBid("bid-1", `{"publisherId":"5670"}`))

	response := responseBody(t, openrtb2.BidResponse{
		SeatBid: []openrtb2.SeatBid{{
			Seat: "groupm",
			Bid:  []openrtb2.Bid{{ID: "b1", ImpID: "bid-1", Price: 1.0, Ext: json.RawMessage(`{"marketplace":"groupm"}`)}},
		}},
	})

	resp, _ := a.MakeBids(request, bannerRequestData(), response)
	require.Len(t, resp.Bids, 1)
	assert.Equal(t, "groupm", resp.Bids[0].BidderCode)
}

func TestMakeBidsInBannerVideo(t *testing.T) {
	a := &PubmaticAdapter{endpoint: defaultEndpoint}
	request := testRequest(bannerBid("bid-1", `{"publisherId":"5670"}`))

	response := responseBody(t, openrtb2.BidResponse{
		SeatBid: []openrtb2.SeatBid{{
			Bid: []openrtb2.Bid{{ID: "b1", ImpID: "bid-1", Price: 1.0, Ext: json.RawMessage(`{"ibv":true}`)}},
		}},
	})

	resp, _ := a.MakeBids(request, bannerRequestData(), response)
	require.Len(t, resp.Bids, 1)
	assert.True(t, resp.Bids[0].InBannerVideo)
	assert.Equal(t, openrtb_ext.BidTypeBanner, resp.Bids[0].BidType)
	assert.Equal(t, openrtb_ext.BidTypeVideo, resp.Bids[0].Meta.MediaType)
}

func TestMakeBidsTTL(t *testing.T) {
	a := &PubmaticAdapter{endpoint: defaultEndpoint}
	request := testRequest(bannerBid("bid-1", `{"publisherId":"5670"}`))

	response := responseBody(t, openrtb2.BidResponse{
		SeatBid: []openrtb2.SeatBid{{
			Bid: []openrtb2.Bid{{ID: "b1", ImpID: "bid-1", Price: 1.0, Exp: 200}},
		}},
	})

	resp, _ := a.MakeBids(request, bannerRequestData(), response)
	require.Len(t, resp.Bids, 1)
	assert.Equal(t, 200, resp.Bids[0].TTL)
}

func TestMakeBidsCreativeIDFallsBackToBidID(t *testing.T) {
	a := &PubmaticAdapter{endpoint: defaultEndpoint}
	request := testRequest(bannerBid("bid-1", `{"publisherId":"5670"}`))

	response := responseBody(t, openrtb2.BidResponse{
		SeatBid: []openrtb2.SeatBid{{
			Bid: []openrtb2.Bid{{ID: "b1", ImpID: "bid-1", Price: 1.0}},
		}},
	})

	resp, _ := a.MakeBids(request, bannerRequestData(), response)
	require.Len(t, resp.Bids, 1)
	assert.Equal(t, "b1", resp.Bids[0].CreativeID)
}

func TestMakeBidsPAAPI(t *testing.T) {
	a := &PubmaticAdapter{endpoint: defaultEndpoint}
	request := testRequest(bannerBid("bid-1", `{"publisherId":"5670"}`))

	response := responseBody(t, openrtb2.BidResponse{
		Ext: json.RawMessage(`{"fledge_auction_configs":{"bid-2":{"seller":"b.com"},"bid-1":{"seller":"a.com"}}}`),
	})

	resp, errs := a.MakeBids(request, bannerRequestData(), response)
	assert.Empty(t, errs)
	require.NotNil(t, resp)
	require.Len(t, resp.PAAPI, 2)
	assert.Equal(t, "bid-1", resp.PAAPI[0].BidID)
	assert.JSONEq(t, `{"seller":"a.com"}`, string(resp.PAAPI[0].Config))
	assert.Equal(t, "bid-2", resp.PAAPI[1].BidID)
}
