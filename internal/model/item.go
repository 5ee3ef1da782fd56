package model

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// publishedTimeLayout is the timestamp layout embedded in archive filenames.
// It contains no characters that need sanitizing on any platform.
const publishedTimeLayout = "2006-01-02-15-04-05"

// MediaItem represents one published video in a creator's catalog.
//
// MediaItem carries the metadata needed to archive the video's audio track:
//   - ID (the platform's bvid) as the stable cross-run identity
//   - Title and PublishedAt for deterministic file naming
//   - CoverURL for optional cover art download
//   - Computed local paths for the audio file, cover art and transcript
//
// Paths are computed once via NewMediaItem; re-running the archiver for the
// same item always recomputes the same paths, which is how prior completion
// is detected.
//
// Example:
//
//	cfg := &PathConfig{ArchivePath: "/archive", FileNameFormat: "{id}_{title}_{published}.m4a"}
//	item := NewMediaItem("BV1xx411c7mD", "第一期 访谈", published, coverURL, 1800, cfg)
//	// item.Path = "/archive/BV1xx411c7mD_第一期 访谈_2023-05-01-12-00-00.m4a"
type MediaItem struct {
	// ID is the platform-assigned video identifier (bvid).
	// Unique within a catalog and stable across runs.
	ID string

	// Title is the video title as published.
	Title string

	// PublishedAt is the publish timestamp reported by the listing.
	PublishedAt time.Time

	// CoverURL is the video cover image URL. Empty when not available.
	CoverURL string

	// DurationSec is the video length in seconds, 0 when unknown.
	// Used for extended playlist entries.
	DurationSec int

	// Path is the computed final path of the archived audio file.
	Path string

	// CoverPath is the computed path for the cover art image.
	CoverPath string

	// TranscriptPath is the computed path for the transcription output.
	TranscriptPath string
}

// PathConfig holds archive layout settings.
//
// FileNameFormat supports placeholders replaced with per-item values:
//   - {id} - video identifier (bvid)
//   - {title} - sanitized video title
//   - {published} - publish timestamp, "2006-01-02-15-04-05"
//   - {year}, {month}, {day} - publish date components
type PathConfig struct {
	// ArchivePath is the directory holding finalized audio files.
	ArchivePath string

	// FileNameFormat is the template for audio filenames.
	// Must include the container extension (typically ".m4a").
	FileNameFormat string

	// TranscriptsDirName is the name of the sibling directory holding
	// transcription outputs. Defaults to "transcripts" when empty.
	TranscriptsDirName string
}

// TranscriptsDir returns the directory holding transcription outputs.
func (cfg *PathConfig) TranscriptsDir() string {
	name := cfg.TranscriptsDirName
	if name == "" {
		name = "transcripts"
	}
	return filepath.Join(cfg.ArchivePath, name)
}

// NewMediaItem creates a MediaItem with computed paths.
//
// The audio path is derived from the configured filename format, the cover
// path replaces the audio extension with ".jpg", and the transcript path is
// the matching ".txt" base name inside the transcripts directory.
func NewMediaItem(id, title string, publishedAt time.Time, coverURL string, durationSec int, cfg *PathConfig) *MediaItem {
	item := &MediaItem{
		ID:          id,
		Title:       title,
		PublishedAt: publishedAt,
		CoverURL:    coverURL,
		DurationSec: durationSec,
	}

	fileName := item.parseFileName(cfg)
	item.Path = item.parseFilePath(cfg, fileName)

	base := strings.TrimSuffix(filepath.Base(item.Path), filepath.Ext(item.Path))
	item.CoverPath = filepath.Join(cfg.ArchivePath, base+".jpg")
	item.TranscriptPath = filepath.Join(cfg.TranscriptsDir(), base+".txt")

	return item
}

// parseFilePath joins the archive dir and filename, capping total length
// for Windows compatibility (MAX_PATH = 260).
func (m *MediaItem) parseFilePath(cfg *PathConfig, fileName string) string {
	filePath := filepath.Join(cfg.ArchivePath, fileName)

	if len(filePath) >= 260 {
		ext := filepath.Ext(fileName)
		// The id and timestamp are the identity; shorten the title only.
		overflow := len(filePath) - 259
		title := sanitizeFileName(m.Title)
		if overflow < len(title) {
			short := strings.Replace(fileName, title, title[:len(title)-overflow], 1)
			filePath = filepath.Join(cfg.ArchivePath, short)
		} else {
			filePath = filepath.Join(cfg.ArchivePath, m.ID+ext)
		}
	}

	return filePath
}

// parseFileName computes the filename from the config template.
func (m *MediaItem) parseFileName(cfg *PathConfig) string {
	fileName := cfg.FileNameFormat
	fileName = strings.ReplaceAll(fileName, "{year}", m.PublishedAt.Format("2006"))
	fileName = strings.ReplaceAll(fileName, "{month}", m.PublishedAt.Format("01"))
	fileName = strings.ReplaceAll(fileName, "{day}", m.PublishedAt.Format("02"))
	fileName = strings.ReplaceAll(fileName, "{published}", m.PublishedAt.Format(publishedTimeLayout))
	fileName = strings.ReplaceAll(fileName, "{title}", sanitizeFileName(m.Title))
	fileName = strings.ReplaceAll(fileName, "{id}", m.ID)
	return fileName
}

// ParseDuration converts a listing duration string like "12:34" or
// "1:02:03" to seconds. Returns 0 for unparsable input.
func ParseDuration(s string) int {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0
	}
	total := 0
	for _, p := range parts {
		var n int
		if _, err := fmt.Sscanf(p, "%d", &n); err != nil || n < 0 {
			return 0
		}
		total = total*60 + n
	}
	return total
}

// sanitizeFileName removes or replaces characters that are invalid in
// file names, mirroring the rules used for paths throughout the archiver.
func sanitizeFileName(name string) string {
	invalidChars := regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
	name = invalidChars.ReplaceAllString(name, "_")
	name = regexp.MustCompile(`\.+$`).ReplaceAllString(name, "")
	name = regexp.MustCompile(`\s+`).ReplaceAllString(name, " ")
	return strings.TrimSpace(name)
}
