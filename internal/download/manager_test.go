package download

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qiuyin/bili-audio-archiver/internal/bilibili/dto"
	"github.com/qiuyin/bili-audio-archiver/internal/config"
)

const (
	fakeImgKey = "7cd084941338484aae1ad9425b84077c"
	fakeSubKey = "4932caff0ff746eab6f01bf08b70ac45"

	// DASH format ids on either side of the anonymous quality ceiling.
	formatOpen  = 30216
	formatGated = 30280
)

// fakeVideo is one item served by the fake platform.
type fakeVideo struct {
	bvid    string
	title   string
	created int64
	gated   bool

	// streamStatus, when non-zero, is served for every stream request.
	streamStatus int

	// deadlines is a per-negotiation queue of deadline query values to
	// stamp onto the stream URL. Empty means no deadline parameter.
	deadlines []string
}

// fakeBili serves the nav, catalog, view and playurl endpoints plus the
// stream CDN from a single httptest server.
type fakeBili struct {
	mu     sync.Mutex
	pages  map[int][]string // page number -> bvids
	count  int
	videos map[string]*fakeVideo

	failPages map[int]bool

	streamHits map[string]int
	playHits   map[string]int

	content []byte
	baseURL string
}

func newFakeBili() *fakeBili {
	return &fakeBili{
		pages:      map[int][]string{},
		videos:     map[string]*fakeVideo{},
		failPages:  map[int]bool{},
		streamHits: map[string]int{},
		playHits:   map[string]int{},
		content:    []byte("dash audio segment payload for tests"),
	}
}

func (f *fakeBili) addVideo(v *fakeVideo, page int) {
	f.videos[v.bvid] = v
	f.pages[page] = append(f.pages[page], v.bvid)
	f.count++
}

func (f *fakeBili) start(t *testing.T) {
	t.Helper()
	server := httptest.NewServer(f)
	t.Cleanup(server.Close)
	f.baseURL = server.URL
}

func (f *fakeBili) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.URL.Path == "/x/web-interface/nav":
		writeJSON(w, dto.NavResponse{Data: dto.NavData{WbiImg: dto.WbiImg{
			ImgURL: "https://i0.hdslb.com/bfs/wbi/" + fakeImgKey + ".png",
			SubURL: "https://i0.hdslb.com/bfs/wbi/" + fakeSubKey + ".png",
		}}})

	case r.URL.Path == "/x/space/wbi/arc/search":
		page, _ := strconv.Atoi(r.URL.Query().Get("pn"))
		if f.failPages[page] {
			http.Error(w, "upstream error", http.StatusInternalServerError)
			return
		}
		var vlist []dto.ArcVideo
		for _, bvid := range f.pages[page] {
			v := f.videos[bvid]
			vlist = append(vlist, dto.ArcVideo{
				Bvid:    v.bvid,
				Title:   v.title,
				Created: v.created,
				Length:  "03:20",
			})
		}
		writeJSON(w, dto.ArcSearchResponse{Data: dto.ArcSearchData{
			List: dto.ArcList{Vlist: vlist},
			Page: dto.ArcPage{Pn: page, Ps: 30, Count: f.count},
		}})

	case r.URL.Path == "/x/web-interface/view":
		v, ok := f.videos[r.URL.Query().Get("bvid")]
		if !ok {
			writeJSON(w, dto.ViewResponse{Envelope: dto.Envelope{Code: -404, Message: "not found"}})
			return
		}
		writeJSON(w, dto.ViewResponse{Data: dto.ViewData{
			Bvid:    v.bvid,
			Cid:     1000,
			Title:   v.title,
			Pubdate: v.created,
		}})

	case r.URL.Path == "/x/player/playurl":
		bvid := r.URL.Query().Get("bvid")
		v, ok := f.videos[bvid]
		if !ok {
			writeJSON(w, dto.PlayURLResponse{Envelope: dto.Envelope{Code: -404, Message: "not found"}})
			return
		}
		f.playHits[bvid]++

		formatID := formatOpen
		if v.gated {
			formatID = formatGated
		}
		streamURL := f.baseURL + "/stream/" + bvid
		if len(v.deadlines) > 0 {
			streamURL += "?deadline=" + v.deadlines[0]
			v.deadlines = v.deadlines[1:]
		}
		writeJSON(w, dto.PlayURLResponse{Data: dto.PlayURLData{Dash: dto.Dash{
			Audio: []dto.DashAudio{{
				ID:        formatID,
				BaseURL:   streamURL,
				Bandwidth: 192000,
				Codecs:    "mp4a.40.2",
			}},
		}}})

	case strings.HasPrefix(r.URL.Path, "/stream/"):
		bvid := strings.TrimPrefix(r.URL.Path, "/stream/")
		f.streamHits[bvid]++
		if v := f.videos[bvid]; v != nil && v.streamStatus != 0 {
			http.Error(w, "stream error", v.streamStatus)
			return
		}
		w.Header().Set("Content-Length", fmt.Sprint(len(f.content)))
		w.Write(f.content)

	default:
		http.NotFound(w, r)
	}
}

func (f *fakeBili) streamHitsFor(bvid string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streamHits[bvid]
}

func (f *fakeBili) playHitsFor(bvid string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.playHits[bvid]
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func testSettings(t *testing.T) *config.Settings {
	t.Helper()
	s := config.DefaultSettings()
	s.ArchivePath = t.TempDir()
	s.RequestIntervalSeconds = 0
	s.DownloadMaxRetries = 2
	s.DownloadRetryCooldown = 0.001
	s.DownloadRetryJitter = 0
	return s
}

func newTestManager(t *testing.T, fake *fakeBili, settings *config.Settings) *Manager {
	t.Helper()
	fake.start(t)
	m := NewManager(settings, nil)
	m.api.SetBaseURL(fake.baseURL)
	return m
}

func archivedFiles(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "*.m4a"))
	require.NoError(t, err)
	return matches
}

func TestManager_Run_ArchivesCatalog(t *testing.T) {
	fake := newFakeBili()
	fake.addVideo(&fakeVideo{bvid: "BV1xx411c7m1", title: "First", created: 1700000000}, 1)
	fake.addVideo(&fakeVideo{bvid: "BV1xx411c7m2", title: "Second", created: 1700000100}, 1)
	fake.addVideo(&fakeVideo{bvid: "BV1xx411c7m3", title: "Members Only", created: 1700000200, gated: true}, 1)
	fake.addVideo(&fakeVideo{bvid: "BV1xx411c7m4", title: "Fourth", created: 1700000300}, 1)

	settings := testSettings(t)
	m := newTestManager(t, fake, settings)

	summary, err := m.Run(context.Background(), "12345")
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Downloaded)
	assert.Equal(t, 1, summary.Unavailable, "gated item is skipped, not failed")
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 4, summary.Total())
	assert.False(t, summary.EnumerationTruncated)

	files := archivedFiles(t, settings.ArchivePath)
	require.Len(t, files, 3)
	for _, path := range files {
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, fake.content, data)
	}
}

func TestManager_Run_DeterministicNaming(t *testing.T) {
	fake := newFakeBili()
	created := time.Date(2023, 11, 10, 9, 8, 7, 0, time.Local).Unix()
	fake.addVideo(&fakeVideo{bvid: "BV1xx411c7m1", title: "Hello World", created: created}, 1)

	settings := testSettings(t)
	m := newTestManager(t, fake, settings)

	_, err := m.Run(context.Background(), "12345")
	require.NoError(t, err)

	want := filepath.Join(settings.ArchivePath, "BV1xx411c7m1_Hello World_2023-11-10-09-08-07.m4a")
	_, statErr := os.Stat(want)
	assert.NoError(t, statErr, "file name must be derived only from id, title and publish time")
}

func TestManager_Run_SecondRunIsIdempotent(t *testing.T) {
	fake := newFakeBili()
	fake.addVideo(&fakeVideo{bvid: "BV1xx411c7m1", title: "First", created: 1700000000}, 1)
	fake.addVideo(&fakeVideo{bvid: "BV1xx411c7m2", title: "Second", created: 1700000100}, 1)

	settings := testSettings(t)
	m := newTestManager(t, fake, settings)

	first, err := m.Run(context.Background(), "12345")
	require.NoError(t, err)
	require.Equal(t, 2, first.Downloaded)
	streamHitsAfterFirst := fake.streamHitsFor("BV1xx411c7m1") + fake.streamHitsFor("BV1xx411c7m2")
	playHitsAfterFirst := fake.playHitsFor("BV1xx411c7m1") + fake.playHitsFor("BV1xx411c7m2")

	second, err := m.Run(context.Background(), "12345")
	require.NoError(t, err)

	assert.Equal(t, 0, second.Downloaded)
	assert.Equal(t, 2, second.AlreadyPresent)
	streamHitsAfterSecond := fake.streamHitsFor("BV1xx411c7m1") + fake.streamHitsFor("BV1xx411c7m2")
	playHitsAfterSecond := fake.playHitsFor("BV1xx411c7m1") + fake.playHitsFor("BV1xx411c7m2")
	assert.Equal(t, streamHitsAfterFirst, streamHitsAfterSecond, "a complete archive makes zero stream fetches")
	assert.Equal(t, playHitsAfterFirst, playHitsAfterSecond, "skip decision must precede negotiation")
}

func TestManager_Run_DeduplicatesAcrossPages(t *testing.T) {
	fake := newFakeBili()
	fake.addVideo(&fakeVideo{bvid: "BV1xx411c7m1", title: "First", created: 1700000000}, 1)
	fake.addVideo(&fakeVideo{bvid: "BV1xx411c7m2", title: "Second", created: 1700000100}, 1)
	fake.addVideo(&fakeVideo{bvid: "BV1xx411c7m3", title: "Third", created: 1700000200}, 2)
	// The platform repeats an entry across the page boundary.
	fake.pages[2] = append(fake.pages[2], "BV1xx411c7m2")
	fake.count = 60

	settings := testSettings(t)
	m := newTestManager(t, fake, settings)

	summary, err := m.Run(context.Background(), "12345")
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Downloaded)
	assert.Equal(t, 3, summary.Total(), "repeated listing entries collapse to one item")
	assert.Equal(t, 1, fake.streamHitsFor("BV1xx411c7m2"))
}

func TestManager_Run_ItemFailureDoesNotAbortRun(t *testing.T) {
	fake := newFakeBili()
	fake.addVideo(&fakeVideo{bvid: "BV1xx411c7m1", title: "Good", created: 1700000000}, 1)
	fake.addVideo(&fakeVideo{bvid: "BV1xx411c7m2", title: "Broken", created: 1700000100, streamStatus: http.StatusInternalServerError}, 1)
	fake.addVideo(&fakeVideo{bvid: "BV1xx411c7m3", title: "Also Good", created: 1700000200}, 1)

	settings := testSettings(t)
	m := newTestManager(t, fake, settings)

	summary, err := m.Run(context.Background(), "12345")
	require.NoError(t, err, "per-item failures never fail the run")

	assert.Equal(t, 2, summary.Downloaded)
	assert.Equal(t, 1, summary.Failed)

	var failed *ItemReport
	for i := range summary.Reports {
		if summary.Reports[i].Outcome == ItemFailed {
			failed = &summary.Reports[i]
		}
	}
	require.NotNil(t, failed)
	assert.Equal(t, "BV1xx411c7m2", failed.Item.ID)
	assert.Error(t, failed.Err)
}

func TestManager_Run_TruncatedCatalogProceeds(t *testing.T) {
	fake := newFakeBili()
	fake.addVideo(&fakeVideo{bvid: "BV1xx411c7m1", title: "First", created: 1700000000}, 1)
	fake.addVideo(&fakeVideo{bvid: "BV1xx411c7m2", title: "Second", created: 1700000100}, 1)
	fake.count = 60
	fake.failPages[2] = true

	settings := testSettings(t)
	m := newTestManager(t, fake, settings)

	summary, err := m.Run(context.Background(), "12345")
	require.NoError(t, err, "a mid-walk page failure degrades, it does not abort")

	assert.True(t, summary.EnumerationTruncated)
	assert.Equal(t, 2, summary.Downloaded, "items before the failure are still archived")
}

func TestManager_Run_EnumerationFailure(t *testing.T) {
	fake := newFakeBili()
	fake.failPages[1] = true

	settings := testSettings(t)
	m := newTestManager(t, fake, settings)

	summary, err := m.Run(context.Background(), "12345")
	assert.Error(t, err)
	assert.Nil(t, summary)
}

func TestManager_Run_InvalidUID(t *testing.T) {
	fake := newFakeBili()
	settings := testSettings(t)
	m := newTestManager(t, fake, settings)

	for _, uid := range []string{"", "abc", "-5", "0", "12 34"} {
		_, err := m.Run(context.Background(), uid)
		assert.Error(t, err, "uid %q", uid)
	}
}

func TestManager_Run_ExpiredStreamRenegotiated(t *testing.T) {
	fake := newFakeBili()
	past := fmt.Sprint(time.Now().Add(-time.Hour).Unix())
	fake.addVideo(&fakeVideo{
		bvid:      "BV1xx411c7m1",
		title:     "First",
		created:   1700000000,
		deadlines: []string{past},
	}, 1)

	settings := testSettings(t)
	m := newTestManager(t, fake, settings)

	summary, err := m.Run(context.Background(), "12345")
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Downloaded)
	assert.Equal(t, 2, fake.playHitsFor("BV1xx411c7m1"), "an expired URL costs exactly one re-negotiation")
}

func TestManager_Run_WritesPlaylist(t *testing.T) {
	fake := newFakeBili()
	fake.addVideo(&fakeVideo{bvid: "BV1xx411c7m1", title: "First", created: 1700000000}, 1)
	fake.addVideo(&fakeVideo{bvid: "BV1xx411c7m2", title: "Second", created: 1700000100}, 1)

	settings := testSettings(t)
	settings.CreatePlaylist = true
	m := newTestManager(t, fake, settings)

	_, err := m.Run(context.Background(), "12345")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(settings.ArchivePath, "12345.m3u"))
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "#EXTM3U")
	assert.Contains(t, content, "First")
	assert.Contains(t, content, "Second")
}

func TestManager_ArchiveOne(t *testing.T) {
	fake := newFakeBili()
	fake.addVideo(&fakeVideo{bvid: "BV1xx411c7m1", title: "Solo", created: 1700000000}, 1)

	settings := testSettings(t)
	m := newTestManager(t, fake, settings)

	report, err := m.ArchiveOne(context.Background(), "BV1xx411c7m1")
	require.NoError(t, err)

	assert.Equal(t, ItemDownloaded, report.Outcome)
	require.Len(t, archivedFiles(t, settings.ArchivePath), 1)

	_, err = m.ArchiveOne(context.Background(), "not-a-bvid")
	assert.Error(t, err)
}

func TestManager_GetProgress(t *testing.T) {
	fake := newFakeBili()
	fake.addVideo(&fakeVideo{bvid: "BV1xx411c7m1", title: "First", created: 1700000000}, 1)
	fake.addVideo(&fakeVideo{bvid: "BV1xx411c7m2", title: "Second", created: 1700000100}, 1)

	settings := testSettings(t)
	m := newTestManager(t, fake, settings)

	_, err := m.Run(context.Background(), "12345")
	require.NoError(t, err)

	received, done, total := m.GetProgress()
	assert.Equal(t, int64(2*len(fake.content)), received)
	assert.Equal(t, int32(2), done)
	assert.Equal(t, int32(2), total)
}
