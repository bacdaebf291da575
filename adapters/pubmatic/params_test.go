package pubmatic

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prebid/prebid-adapters/adapters"
	"github.com/prebid/prebid-adapters/errortypes"
)

func TestParseParamsValid(t *testing.T) {
	bid := &adapters.BidRequest{
		AdUnitCode: "div-1",
		Params:     json.RawMessage(`{"publisherId":"5670","adSlot":"/15671365/DMDemo@300x250"}`),
		MediaTypes: adapters.MediaTypes{
			Banner: &adapters.Banner{Sizes: []adapters.BannerSize{{W: 300, H: 250}}},
		},
	}

	params, err := parseParams(bid)
	require.NoError(t, err)
	assert.Equal(t, "5670", params.PublisherID)
	assert.Equal(t, "/15671365/DMDemo@300x250", params.AdSlot)
}

func TestParseParamsInvalid(t *testing.T) {
	tests := []struct {
		name       string
		params     string
		mediaTypes adapters.MediaTypes
	}{
		{
			name:   "malformed json",
			params: `{"publisherId":`,
			mediaTypes: adapters.MediaTypes{
				Banner: &adapters.Banner{Sizes: []adapters.BannerSize{{W: 300, H: 250}}},
			},
		},
		{
			name:   "missing publisherId",
			params: `{"adSlot":"slot@300x250"}`,
			mediaTypes: adapters.MediaTypes{
				Banner: &adapters.Banner{Sizes: []adapters.BannerSize{{W: 300, H: 250}}},
			},
		},
		{
			name:   "publisherId not a string",
			params: `{"publisherId":5670}`,
			mediaTypes: adapters.MediaTypes{
				Banner: &adapters.Banner{Sizes: []adapters.BannerSize{{W: 300, H: 250}}},
			},
		},
		{
			name:   "blank publisherId",
			params: `{"publisherId":"  "}`,
			mediaTypes: adapters.MediaTypes{
				Banner: &adapters.Banner{Sizes: []adapters.BannerSize{{W: 300, H: 250}}},
			},
		},
		{
			name:   "video without mimes",
			params: `{"publisherId":"5670"}`,
			mediaTypes: adapters.MediaTypes{
				Video: &adapters.Video{Context: adapters.VideoContextInstream},
			},
		},
		{
			name:   "video without context",
			params: `{"publisherId":"5670","video":{"mimes":["video/mp4"]}}`,
			mediaTypes: adapters.MediaTypes{
				Video: &adapters.Video{},
			},
		},
		{
			name:   "outstream without renderer or outstreamAU",
			params: `{"publisherId":"5670","video":{"mimes":["video/mp4"]}}`,
			mediaTypes: adapters.MediaTypes{
				Video: &adapters.Video{Context: adapters.VideoContextOutstream},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bid := &adapters.BidRequest{
				AdUnitCode: "div-1",
				Params:     json.RawMessage(tt.params),
				MediaTypes: tt.mediaTypes,
			}
			_, err := parseParams(bid)
			assert.Error(t, err)
		})
	}
}

func TestIsBidRequestValid(t *testing.T) {
	a := &PubmaticAdapter{endpoint: defaultEndpoint}

	valid := &adapters.BidRequest{
		AdUnitCode: "div-1",
		Params:     json.RawMessage(`{"publisherId":"5670","adSlot":"slot@300x250"}`),
		MediaTypes: adapters.MediaTypes{
			Banner: &adapters.Banner{Sizes: []adapters.BannerSize{{W: 300, H: 250}}},
		},
	}
	assert.NoError(t, a.IsBidRequestValid(valid))

	invalid := &adapters.BidRequest{
		AdUnitCode: "div-2",
		Params:     json.RawMessage(`{"adSlot":"slot@300x250"}`),
		MediaTypes: adapters.MediaTypes{
			Banner: &adapters.Banner{Sizes: []adapters.BannerSize{{W: 300, H: 250}}},
		},
	}
	err := a.IsBidRequestValid(invalid)
	require.Error(t, err)
	assert.IsType(t, &errortypes.BadInput{}, err)
}

func TestParseParamsOutstream(t *testing.T) {
	video := func() *adapters.Video {
		return &adapters.Video{
			Context: adapters.VideoContextOutstream,
			Video:   videoWithMIMEs(),
		}
	}

	t.Run("outstreamAU satisfies the renderer requirement", func(t *testing.T) {
		bid := &adapters.BidRequest{
			Params:     json.RawMessage(`{"publisherId":"5670","outstreamAU":"renderer_test_pubmatic"}`),
			MediaTypes: adapters.MediaTypes{Video: video()},
		}
		_, err := parseParams(bid)
		assert.NoError(t, err)
	})

	t.Run("publisher renderer satisfies the requirement", func(t *testing.T) {
		bid := &adapters.BidRequest{
			Params:     json.RawMessage(`{"publisherId":"5670"}`),
			MediaTypes: adapters.MediaTypes{Video: video()},
			Renderer:   &adapters.RendererConfig{ID: "pub-renderer", URL: "https://example.com/r.js"},
		}
		_, err := parseParams(bid)
		assert.NoError(t, err)
	})

	t.Run("mediaTypes renderer satisfies the requirement", func(t *testing.T) {
		v := video()
		v.Renderer = &adapters.RendererConfig{ID: "mt-renderer", URL: "https://example.com/r.js"}
		bid := &adapters.BidRequest{
			Params:     json.RawMessage(`{"publisherId":"5670"}`),
			MediaTypes: adapters.MediaTypes{Video: v},
		}
		_, err := parseParams(bid)
		assert.NoError(t, err)
	})

	t.Run("another media type keeps the placement alive", func(t *testing.T) {
		bid := &adapters.BidRequest{
			Params: json.RawMessage(`{"publisherId":"5670"}`),
			MediaTypes: adapters.MediaTypes{
				Video:  video(),
				Banner: &adapters.Banner{Sizes: []adapters.BannerSize{{W: 300, H: 250}}},
			},
		}
		_, err := parseParams(bid)
		assert.NoError(t, err)
	})
}

func TestVideoMIMEsParamsWin(t *testing.T) {
	bid := &adapters.BidRequest{
		Params: json.RawMessage(`{"publisherId":"5670","video":{"mimes":["video/webm"]}}`),
		MediaTypes: adapters.MediaTypes{
			Video: &adapters.Video{Context: adapters.VideoContextInstream, Video: videoWithMIMEs()},
		},
	}
	params, err := parseParams(bid)
	require.NoError(t, err)
	assert.Equal(t, []string{"video/webm"}, videoMIMEs(bid, params))
}

func TestFilterParamEntries(t *testing.T) {
	tests := []struct {
		name     string
		dst      []string
		values   []string
		expected []string
	}{
		{
			name:     "trims and drops short entries",
			values:   []string{" IAB-1 ", "ab", "   ", "IAB-2"},
			expected: []string{"IAB-1", "IAB-2"},
		},
		{
			name:     "exactly three characters is dropped",
			values:   []string{"abc", "abcd"},
			expected: []string{"abcd"},
		},
		{
			name:     "dedup keeps first seen order",
			dst:      []string{"IAB-1"},
			values:   []string{"IAB-2", "IAB-1", "IAB-2", "IAB-3"},
			expected: []string{"IAB-1", "IAB-2", "IAB-3"},
		},
		{
			name:     "nil values leaves dst untouched",
			dst:      []string{"IAB-1"},
			expected: []string{"IAB-1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, filterParamEntries(tt.dst, tt.values))
		})
	}
}
