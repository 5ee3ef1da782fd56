package download

import (
	"context"
	"io"
	"net/http"
	"os"
	"time"

	httpx "github.com/qiuyin/bili-audio-archiver/internal/http"
	ioutils "github.com/qiuyin/bili-audio-archiver/internal/io"
	"github.com/qiuyin/bili-audio-archiver/internal/model"
)

// tempSuffix marks the in-progress partial file next to its destination.
// Co-located so the final rename stays on one volume and is atomic.
const tempSuffix = ".tmp"

// FetchOutcome describes how a fetch terminated successfully.
type FetchOutcome int

const (
	// OutcomeDownloaded means bytes were transferred and the file was
	// finalized in this call.
	OutcomeDownloaded FetchOutcome = iota

	// OutcomeAlreadyComplete means the destination already held the
	// complete file and no network call was made.
	OutcomeAlreadyComplete
)

// FetchResult reports a completed fetch.
type FetchResult struct {
	// Outcome tells whether anything was transferred.
	Outcome FetchOutcome

	// BytesWritten is the number of bytes transferred by this call,
	// excluding any pre-existing partial bytes.
	BytesWritten int64

	// TotalBytes is the size of the finalized file.
	TotalBytes int64
}

// Fetcher downloads one selected stream to a local path with resume,
// range-fallback and integrity verification.
//
// The write path is: stream into "<dest>.tmp", verify the byte count,
// then atomically rename to the destination. The destination path only
// ever comes into existence through that rename, so an existing final
// file is always a complete one.
//
// A Fetcher is safe for concurrent use as long as no two calls share a
// destination path; the orchestrator guarantees that by dedup on item id.
type Fetcher struct {
	client *httpx.Client
	policy Policy

	// now is the clock used for expiry checks; replaceable in tests.
	now func() time.Time
}

// NewFetcher creates a Fetcher using the given transport and retry policy
// for transport and integrity failures.
func NewFetcher(client *httpx.Client, policy Policy) *Fetcher {
	return &Fetcher{
		client: client,
		policy: policy,
		now:    time.Now,
	}
}

// Fetch downloads desc to destPath.
//
// Behavior per terminating condition:
//   - destination already complete: OutcomeAlreadyComplete, zero network calls
//   - transport failure: retried with backoff, partial kept for resume
//   - size mismatch after a clean transfer: partial discarded, restarted,
//     bounded by the retry budget
//   - expired stream URL (deadline passed or CDN 403): ErrStreamExpired,
//     bubbled up so the caller can re-negotiate a fresh descriptor
//   - disk failure: *DiskError, fatal, not retried
//
// onProgress, when non-nil, receives cumulative progress including resumed
// bytes. It may be called from the transfer goroutine at chunk granularity.
func (f *Fetcher) Fetch(ctx context.Context, desc *model.StreamDescriptor, destPath string, onProgress func(written, total int64)) (*FetchResult, error) {
	if complete, size := f.alreadyComplete(destPath, desc.Size); complete {
		return &FetchResult{Outcome: OutcomeAlreadyComplete, TotalBytes: size}, nil
	}

	var transferred int64
	err := f.policy.Do(ctx, func(ctx context.Context) error {
		n, attemptErr := f.attempt(ctx, desc, destPath, onProgress)
		transferred += n
		return attemptErr
	})
	if err != nil {
		return nil, err
	}

	info, statErr := os.Stat(destPath)
	if statErr != nil {
		return nil, diskError("stat", destPath, statErr)
	}
	return &FetchResult{
		Outcome:      OutcomeDownloaded,
		BytesWritten: transferred,
		TotalBytes:   info.Size(),
	}, nil
}

// alreadyComplete reports whether destPath already holds the finished file.
// When the expected size is unknown the existence of the final path is
// sufficient, because it can only have been created by a verified rename.
func (f *Fetcher) alreadyComplete(destPath string, expectedSize int64) (bool, int64) {
	info, err := os.Stat(destPath)
	if err != nil || info.IsDir() {
		return false, 0
	}
	if expectedSize > 0 && info.Size() != expectedSize {
		return false, 0
	}
	return true, info.Size()
}

// attempt performs one transfer attempt, resuming from whatever the
// partial file already holds. Returns the bytes transferred by this
// attempt even when it fails partway.
func (f *Fetcher) attempt(ctx context.Context, desc *model.StreamDescriptor, destPath string, onProgress func(written, total int64)) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if desc.Expired(f.now()) {
		return 0, ErrStreamExpired
	}

	tempPath := destPath + tempSuffix
	offset := partialSize(tempPath)

	// A partial that already matches the declared size is a completed
	// transfer whose finalize was interrupted: commit it without any
	// network traffic.
	if desc.Size > 0 && offset == desc.Size {
		return 0, f.verifyAndFinalize(tempPath, destPath, desc.Size)
	}

	resp, err := f.client.Send(ctx, http.MethodGet, desc.URL, offset)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	switch resp.Status {
	case http.StatusOK, http.StatusPartialContent:
		// proceed below

	case http.StatusForbidden:
		// The CDN rejects URLs past their deadline with 403.
		return 0, ErrStreamExpired

	case http.StatusRequestedRangeNotSatisfiable:
		// Our partial is at or past the server's end of file. If it is
		// exactly the full object, the previous run crashed between
		// transfer and rename: finish the commit. Otherwise the partial
		// is garbage.
		if resp.TotalSize > 0 && offset == resp.TotalSize {
			return 0, f.verifyAndFinalize(tempPath, destPath, resp.TotalSize)
		}
		os.Remove(tempPath)
		return 0, &IntegrityError{Path: tempPath, Expected: resp.TotalSize, Got: offset}

	default:
		return 0, &httpx.StatusError{Status: resp.Status, URL: desc.URL}
	}

	// Server bytes must land at the offset the server actually served:
	// append only on 206, otherwise restart the file from zero.
	var file *os.File
	base := int64(0)
	if resp.RangeHonored {
		file, err = os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		base = offset
	} else {
		file, err = os.Create(tempPath)
	}
	if err != nil {
		return 0, diskError("open", tempPath, err)
	}

	expected := desc.Size
	if expected <= 0 {
		expected = resp.TotalSize
	}

	sink := &writeTracker{file: file}
	var dst io.Writer = sink
	if onProgress != nil {
		dst = &httpx.ProgressWriter{
			Writer:   sink,
			Written:  base,
			Total:    expected,
			OnUpdate: onProgress,
		}
	}

	n, copyErr := io.Copy(dst, resp.Body)
	closeErr := file.Close()

	if copyErr != nil {
		if sink.writeErr != nil {
			return n, diskError("write", tempPath, sink.writeErr)
		}
		// Read-side failure: keep the partial for resume.
		return n, copyErr
	}
	if closeErr != nil {
		return n, diskError("close", tempPath, closeErr)
	}

	if expected > 0 {
		return n, f.verifyAndFinalize(tempPath, destPath, expected)
	}

	// Size unknown: a cleanly terminated stream is the best signal we get.
	if err := ioutils.Finalize(tempPath, destPath); err != nil {
		return n, diskError("rename", tempPath, err)
	}
	return n, nil
}

// verifyAndFinalize checks the partial's size against expected and commits
// it via atomic rename. On mismatch the partial is discarded so the next
// attempt restarts from scratch.
func (f *Fetcher) verifyAndFinalize(tempPath, destPath string, expected int64) error {
	info, err := os.Stat(tempPath)
	if err != nil {
		return diskError("stat", tempPath, err)
	}
	if info.Size() != expected {
		os.Remove(tempPath)
		return &IntegrityError{Path: tempPath, Expected: expected, Got: info.Size()}
	}
	if err := ioutils.Finalize(tempPath, destPath); err != nil {
		return diskError("rename", tempPath, err)
	}
	return nil
}

// partialSize returns the size of an existing partial file, 0 when absent.
func partialSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return 0
	}
	return info.Size()
}

// writeTracker separates disk-write failures from stream-read failures so
// the caller can classify the error from io.Copy.
type writeTracker struct {
	file     *os.File
	writeErr error
}

func (w *writeTracker) Write(p []byte) (int, error) {
	n, err := w.file.Write(p)
	if err != nil {
		w.writeErr = err
	}
	return n, err
}
