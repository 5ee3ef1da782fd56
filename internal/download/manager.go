package download

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/qiuyin/bili-audio-archiver/internal/audio"
	"github.com/qiuyin/bili-audio-archiver/internal/bilibili"
	"github.com/qiuyin/bili-audio-archiver/internal/config"
	httpx "github.com/qiuyin/bili-audio-archiver/internal/http"
	ioutils "github.com/qiuyin/bili-audio-archiver/internal/io"
	"github.com/qiuyin/bili-audio-archiver/internal/model"
)

// ProgressLevel indicates the severity/type of a progress message.
type ProgressLevel int

const (
	LevelInfo ProgressLevel = iota
	LevelVerbose
	LevelWarning
	LevelError
	LevelSuccess
)

// ProgressEvent represents an archiving progress update.
type ProgressEvent struct {
	Message string
	Level   ProgressLevel
}

// ItemOutcome is the per-item result category of a run.
type ItemOutcome int

const (
	// ItemDownloaded means the audio was fetched and finalized this run.
	ItemDownloaded ItemOutcome = iota

	// ItemAlreadyPresent means a prior run had completed the item.
	ItemAlreadyPresent

	// ItemUnavailable means no stream was reachable at the auth tier.
	// Not an error; the item is skipped.
	ItemUnavailable

	// ItemFailed means the retry budget was exhausted.
	ItemFailed
)

func (o ItemOutcome) String() string {
	switch o {
	case ItemDownloaded:
		return "downloaded"
	case ItemAlreadyPresent:
		return "already-present"
	case ItemUnavailable:
		return "unavailable"
	default:
		return "failed"
	}
}

// ItemReport records how one item terminated.
type ItemReport struct {
	Item    *model.MediaItem
	Outcome ItemOutcome
	Bytes   int64

	// Err is the final error for ItemFailed, nil otherwise.
	Err error
}

// Summary is the result of one archiving run.
//
// A run that completed enumeration is a success regardless of per-item
// failures; the counts tell the story.
type Summary struct {
	RunID     string
	CreatorID string

	Downloaded     int
	AlreadyPresent int
	Unavailable    int
	Failed         int

	// EnumerationTruncated is set when a catalog page failed mid-walk and
	// the run proceeded with the partial catalog.
	EnumerationTruncated bool

	Reports []ItemReport
}

// Total returns the number of items the run attempted.
func (s *Summary) Total() int {
	return len(s.Reports)
}

// Manager drives a creator's catalog end-to-end: enumerate → negotiate →
// fetch, with skip-if-exists, a shared politeness throttle and bounded
// retries. One item's failure never aborts the run.
type Manager struct {
	settings   *config.Settings
	paths      *model.PathConfig
	httpClient *httpx.Client
	catalog    *bilibili.Catalog
	negotiator *bilibili.Negotiator
	fetcher    *Fetcher
	api        *bilibili.Client

	receivedBytes int64
	queuedItems   int32
	doneItems     int32

	onProgress func(ProgressEvent)
	log        *logrus.Entry
}

// NewManager creates a Manager from settings. onProgress may be nil.
//
// The politeness throttle is one token bucket shared by every worker and
// by enumeration: one request per configured interval, whoever asks.
func NewManager(settings *config.Settings, onProgress func(ProgressEvent)) *Manager {
	var limiter *rate.Limiter
	if interval := settings.RequestInterval(); interval > 0 {
		limiter = rate.NewLimiter(rate.Every(interval), 1)
	}

	client := httpx.NewClient(settings.SessData, limiter)
	api := bilibili.NewClient(client)
	paths := settings.ToPathConfig()

	return &Manager{
		settings:   settings,
		paths:      paths,
		httpClient: client,
		api:        api,
		catalog:    bilibili.NewCatalog(api, paths, settings.MaxCatalogPages),
		negotiator: bilibili.NewNegotiator(api),
		fetcher:    NewFetcher(client, fetchPolicy(settings)),
		onProgress: onProgress,
		log:        logrus.WithField("component", "download"),
	}
}

// fetchPolicy builds the retry policy applied inside each fetch.
func fetchPolicy(s *config.Settings) Policy {
	return Policy{
		MaxAttempts: s.DownloadMaxRetries,
		BaseDelay:   s.RetryCooldown(),
		Exponent:    s.DownloadRetryExponent,
		MaxDelay:    30 * time.Second,
		Jitter:      s.DownloadRetryJitter,
		Retryable:   IsRetryable,
	}
}

// itemPolicy builds the per-item retry budget around negotiate → fetch.
func (m *Manager) itemPolicy() Policy {
	p := fetchPolicy(m.settings)
	// The fetcher already retries transport errors internally; the item
	// budget mainly covers negotiation failures, so keep it small.
	if p.MaxAttempts > 3 {
		p.MaxAttempts = 3
	}
	return p
}

// Run archives every published item of the given creator.
//
// Returns an error only for configuration failures (malformed uid) and
// enumeration-level failures that yielded nothing at all; everything else
// is reported in the Summary. A mid-walk catalog failure degrades to a
// truncated run over the partial catalog.
func (m *Manager) Run(ctx context.Context, uid string) (*Summary, error) {
	if err := bilibili.ValidateUID(uid); err != nil {
		return nil, err
	}
	if err := ioutils.EnsureDir(m.settings.ArchivePath); err != nil {
		return nil, diskError("mkdir", m.settings.ArchivePath, err)
	}

	summary := &Summary{RunID: uuid.NewString(), CreatorID: uid}
	log := m.log.WithFields(logrus.Fields{"run_id": summary.RunID, "uid": uid})
	log.Info("starting archive run")

	queue := make(chan *model.MediaItem, 64)

	// Enumeration runs ahead single-threaded, feeding the worker pool.
	var enumErr error
	go func() {
		defer close(queue)
		enumErr = m.catalog.Walk(ctx, uid, func(item *model.MediaItem) error {
			atomic.AddInt32(&m.queuedItems, 1)
			select {
			case queue <- item:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}()

	var mu sync.Mutex
	var reports []ItemReport

	g, workerCtx := errgroup.WithContext(ctx)
	g.SetLimit(m.workerCount())

	for item := range queue {
		item := item
		g.Go(func() error {
			report := m.processItem(workerCtx, item)
			atomic.AddInt32(&m.doneItems, 1)

			mu.Lock()
			reports = append(reports, report)
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	summary.Reports = reports
	m.tally(summary)

	if enumErr != nil {
		var catErr *bilibili.CatalogError
		switch {
		case errors.Is(enumErr, context.Canceled):
			return summary, enumErr
		case errors.As(enumErr, &catErr) && len(catErr.Partial) > 0:
			// Partial catalog: the items we saw were processed; report
			// the truncation instead of failing the run.
			summary.EnumerationTruncated = true
			log.WithError(catErr.Err).Warnf("catalog truncated at page %d, proceeding with %d items", catErr.Page, len(catErr.Partial))
			m.progress(ProgressEvent{Message: fmt.Sprintf("Catalog truncated after %d items: %v", len(catErr.Partial), catErr.Err), Level: LevelWarning})
		default:
			return nil, fmt.Errorf("enumerate %s: %w", uid, enumErr)
		}
	}

	if m.settings.CreatePlaylist {
		m.writePlaylist(uid, summary)
	}

	log.WithFields(logrus.Fields{
		"downloaded":      summary.Downloaded,
		"already_present": summary.AlreadyPresent,
		"unavailable":     summary.Unavailable,
		"failed":          summary.Failed,
	}).Info("archive run finished")

	return summary, nil
}

// ListCatalog enumerates the creator's catalog without downloading
// anything. Used for dry runs.
func (m *Manager) ListCatalog(ctx context.Context, uid string) ([]*model.MediaItem, error) {
	if err := bilibili.ValidateUID(uid); err != nil {
		return nil, err
	}
	return m.catalog.All(ctx, uid)
}

// ArchiveOne archives a single item by its id, outside any catalog walk.
func (m *Manager) ArchiveOne(ctx context.Context, bvid string) (*ItemReport, error) {
	if err := bilibili.ValidateBVID(bvid); err != nil {
		return nil, err
	}
	if err := ioutils.EnsureDir(m.settings.ArchivePath); err != nil {
		return nil, diskError("mkdir", m.settings.ArchivePath, err)
	}

	info, err := m.api.VideoInfo(ctx, bvid)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", bvid, err)
	}

	item := model.NewMediaItem(bvid, info.Title, time.Unix(info.Pubdate, 0), info.Pic, 0, m.paths)
	report := m.processItem(ctx, item)
	return &report, nil
}

// GetProgress returns current byte and item counters for UIs.
func (m *Manager) GetProgress() (receivedBytes int64, doneItems, totalItems int32) {
	return atomic.LoadInt64(&m.receivedBytes),
		atomic.LoadInt32(&m.doneItems),
		atomic.LoadInt32(&m.queuedItems)
}

func (m *Manager) workerCount() int {
	if m.settings.Concurrency < 1 {
		return 1
	}
	return m.settings.Concurrency
}

// processItem runs negotiate → fetch for one item and converts every
// failure into an outcome record. Item ids map 1:1 to destination paths,
// and the catalog deduplicates ids, so no two workers ever write the same
// path.
func (m *Manager) processItem(ctx context.Context, item *model.MediaItem) ItemReport {
	// Completion check before any network: the final path only exists
	// via a verified atomic rename, so existence is proof of completion.
	if info, err := os.Stat(item.Path); err == nil && !info.IsDir() {
		m.progress(ProgressEvent{Message: fmt.Sprintf("Skipping existing: %s", filepath.Base(item.Path)), Level: LevelVerbose})
		return ItemReport{Item: item, Outcome: ItemAlreadyPresent, Bytes: info.Size()}
	}

	var (
		result      *FetchResult
		unavailable bool
	)

	err := m.itemPolicy().Do(ctx, func(ctx context.Context) error {
		desc, err := m.negotiator.Negotiate(ctx, item.ID, m.httpClient.Tier())
		if errors.Is(err, bilibili.ErrNotAvailable) {
			unavailable = true
			return nil
		}
		if err != nil {
			return err
		}

		m.progress(ProgressEvent{
			Message: fmt.Sprintf("%s: selected %d bps audio (%s)", item.ID, desc.Bandwidth, desc.Codec),
			Level:   LevelVerbose,
		})

		result, err = m.fetchTracked(ctx, desc, item)
		if errors.Is(err, ErrStreamExpired) {
			// The URL outlived its deadline; a single fresh negotiation
			// mints a new one.
			desc, err = m.negotiator.Negotiate(ctx, item.ID, m.httpClient.Tier())
			if errors.Is(err, bilibili.ErrNotAvailable) {
				unavailable = true
				return nil
			}
			if err != nil {
				return err
			}
			result, err = m.fetchTracked(ctx, desc, item)
		}
		return err
	})

	switch {
	case unavailable:
		m.progress(ProgressEvent{Message: fmt.Sprintf("%s: no stream at %s tier, skipping", item.ID, m.httpClient.Tier()), Level: LevelWarning})
		return ItemReport{Item: item, Outcome: ItemUnavailable}

	case err != nil:
		m.progress(ProgressEvent{Message: fmt.Sprintf("%s: failed: %v", item.ID, err), Level: LevelError})
		m.log.WithError(err).WithField("bvid", item.ID).Error("item failed")
		return ItemReport{Item: item, Outcome: ItemFailed, Err: err}

	case result.Outcome == OutcomeAlreadyComplete:
		m.progress(ProgressEvent{Message: fmt.Sprintf("Skipping existing: %s", filepath.Base(item.Path)), Level: LevelVerbose})
		return ItemReport{Item: item, Outcome: ItemAlreadyPresent, Bytes: result.TotalBytes}

	default:
		m.saveCoverArt(ctx, item)
		m.progress(ProgressEvent{Message: fmt.Sprintf("Archived: %s", filepath.Base(item.Path)), Level: LevelSuccess})
		return ItemReport{Item: item, Outcome: ItemDownloaded, Bytes: result.BytesWritten}
	}
}

// fetchTracked wires the fetcher's progress into the run-wide byte counter.
func (m *Manager) fetchTracked(ctx context.Context, desc *model.StreamDescriptor, item *model.MediaItem) (*FetchResult, error) {
	var lastWritten int64
	return m.fetcher.Fetch(ctx, desc, item.Path, func(written, total int64) {
		// written can move backwards when a restart discards partials.
		if delta := written - lastWritten; delta > 0 {
			atomic.AddInt64(&m.receivedBytes, delta)
		}
		lastWritten = written
	})
}

// saveCoverArt downloads and shrinks the item's cover image next to the
// audio file. Failures are cosmetic and only logged.
func (m *Manager) saveCoverArt(ctx context.Context, item *model.MediaItem) {
	if !m.settings.SaveCoverArt || item.CoverURL == "" {
		return
	}
	if _, err := os.Stat(item.CoverPath); err == nil {
		return
	}

	data, err := m.httpClient.Get(ctx, item.CoverURL)
	if err == nil {
		data, err = ioutils.ShrinkToJPEG(data, m.settings.CoverArtMaxSize)
	}
	if err == nil {
		err = os.WriteFile(item.CoverPath, data, 0644)
	}
	if err != nil {
		m.progress(ProgressEvent{Message: fmt.Sprintf("%s: cover art failed: %v", item.ID, err), Level: LevelWarning})
	}
}

// writePlaylist emits a playlist over everything present in the archive
// after the run, named by the creator id.
func (m *Manager) writePlaylist(uid string, summary *Summary) {
	items := lo.FilterMap(summary.Reports, func(r ItemReport, _ int) (*model.MediaItem, bool) {
		return r.Item, r.Outcome == ItemDownloaded || r.Outcome == ItemAlreadyPresent
	})
	if len(items) == 0 {
		return
	}

	format := audio.ParseFormat(m.settings.PlaylistFormat)
	creator := audio.NewPlaylistCreator(format, m.settings.M3UExtended)
	content := creator.CreatePlaylist(items)

	path := filepath.Join(m.settings.ArchivePath, uid+format.Extension())
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		m.progress(ProgressEvent{Message: fmt.Sprintf("Error writing playlist: %v", err), Level: LevelWarning})
		return
	}
	m.progress(ProgressEvent{Message: fmt.Sprintf("Created playlist: %s", filepath.Base(path)), Level: LevelSuccess})
}

// tally fills the summary counters from the reports.
func (m *Manager) tally(s *Summary) {
	counts := lo.CountValuesBy(s.Reports, func(r ItemReport) ItemOutcome { return r.Outcome })
	s.Downloaded = counts[ItemDownloaded]
	s.AlreadyPresent = counts[ItemAlreadyPresent]
	s.Unavailable = counts[ItemUnavailable]
	s.Failed = counts[ItemFailed]
}

func (m *Manager) progress(event ProgressEvent) {
	if m.onProgress != nil {
		m.onProgress(event)
	}
}
