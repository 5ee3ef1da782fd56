package bilibili

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qiuyin/bili-audio-archiver/internal/bilibili/dto"
	httpx "github.com/qiuyin/bili-audio-archiver/internal/http"
	"github.com/qiuyin/bili-audio-archiver/internal/model"
)

func newTestNegotiator(t *testing.T, audio []dto.DashAudio) *Negotiator {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc(navPath, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(dto.NavResponse{
			Data: dto.NavData{WbiImg: dto.WbiImg{
				ImgURL: "https://i0.hdslb.com/bfs/wbi/" + testImgKey + ".png",
				SubURL: "https://i0.hdslb.com/bfs/wbi/" + testSubKey + ".png",
			}},
		})
	})
	mux.HandleFunc(viewPath, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(dto.ViewResponse{
			Data: dto.ViewData{Bvid: r.URL.Query().Get("bvid"), Cid: 112233, Title: "episode", Pubdate: 1700000000},
		})
	})
	mux.HandleFunc(playURLPath, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(dto.PlayURLResponse{
			Data: dto.PlayURLData{Dash: dto.Dash{Audio: audio}},
		})
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client := NewClient(httpx.NewClient("", nil))
	client.baseURL = server.URL
	return NewNegotiator(client)
}

func TestNegotiator_PicksHighestBandwidthAllowed(t *testing.T) {
	negotiator := newTestNegotiator(t, []dto.DashAudio{
		{ID: 30216, BaseURL: "https://cdn.example/64k.m4s", Bandwidth: 67000, Codecs: "mp4a.40.2"},
		{ID: 30232, BaseURL: "https://cdn.example/132k.m4s", Bandwidth: 130000, Codecs: "mp4a.40.2"},
		{ID: 30280, BaseURL: "https://cdn.example/192k.m4s", Bandwidth: 192000, Codecs: "mp4a.40.2"},
	})

	desc, err := negotiator.Negotiate(context.Background(), "BV1aa", model.TierElevated)
	require.NoError(t, err)

	assert.Equal(t, 30280, desc.Quality)
	assert.Equal(t, int64(192000), desc.Bandwidth)
	assert.Equal(t, model.TierElevated, desc.RequiredTier)
}

func TestNegotiator_AnonymousTierGetsLowestVariantOnly(t *testing.T) {
	negotiator := newTestNegotiator(t, []dto.DashAudio{
		{ID: 30216, BaseURL: "https://cdn.example/64k.m4s", Bandwidth: 67000},
		{ID: 30280, BaseURL: "https://cdn.example/192k.m4s", Bandwidth: 192000},
	})

	desc, err := negotiator.Negotiate(context.Background(), "BV1aa", model.TierAnonymous)
	require.NoError(t, err)

	assert.Equal(t, 30216, desc.Quality, "anonymous session must not receive gated variants")
}

func TestNegotiator_NotAvailableWhenAllVariantsGated(t *testing.T) {
	negotiator := newTestNegotiator(t, []dto.DashAudio{
		{ID: 30251, BaseURL: "https://cdn.example/hires.m4s", Bandwidth: 999000},
	})

	_, err := negotiator.Negotiate(context.Background(), "BV1aa", model.TierAnonymous)
	assert.ErrorIs(t, err, ErrNotAvailable)
}

func TestNegotiator_NotAvailableWhenNoAudio(t *testing.T) {
	negotiator := newTestNegotiator(t, nil)

	_, err := negotiator.Negotiate(context.Background(), "BV1aa", model.TierElevated)
	assert.ErrorIs(t, err, ErrNotAvailable)
}

func TestNegotiator_ParsesDeadline(t *testing.T) {
	negotiator := newTestNegotiator(t, []dto.DashAudio{
		{ID: 30216, BaseURL: "https://cdn.example/64k.m4s?deadline=1700009999", Bandwidth: 67000},
	})

	desc, err := negotiator.Negotiate(context.Background(), "BV1aa", model.TierAnonymous)
	require.NoError(t, err)
	assert.Equal(t, int64(1700009999), desc.ExpiresAt.Unix())
}
