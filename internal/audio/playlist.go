package audio

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/qiuyin/bili-audio-archiver/internal/model"
)

// PlaylistFormat represents supported playlist file formats.
type PlaylistFormat int

const (
	// FormatM3U creates .m3u files (most compatible).
	// Can be extended with EXTINF lines for duration/title info.
	FormatM3U PlaylistFormat = iota

	// FormatPLS creates .pls files (Winamp/SHOUTcast format).
	FormatPLS
)

// ParseFormat maps a settings string to a PlaylistFormat, defaulting to M3U.
func ParseFormat(s string) PlaylistFormat {
	if strings.EqualFold(s, "pls") {
		return FormatPLS
	}
	return FormatM3U
}

// Extension returns the file extension for the playlist format, including the dot.
func (pf PlaylistFormat) Extension() string {
	if pf == FormatPLS {
		return ".pls"
	}
	return ".m3u"
}

// PlaylistCreator generates a playlist over the archived audio files of a
// creator.
//
// Entries reference bare filenames, so the playlist is written into the
// archive directory itself and stays valid when the directory moves.
//
// Example:
//
//	creator := NewPlaylistCreator(FormatM3U, true)
//	content := creator.CreatePlaylist(items)
//	os.WriteFile(filepath.Join(archiveDir, uid+".m3u"), []byte(content), 0644)
type PlaylistCreator struct {
	format   PlaylistFormat
	extended bool // For M3U: include EXTINF lines with duration/title
}

// NewPlaylistCreator creates a new PlaylistCreator.
func NewPlaylistCreator(format PlaylistFormat, extended bool) *PlaylistCreator {
	return &PlaylistCreator{
		format:   format,
		extended: extended,
	}
}

// CreatePlaylist generates playlist content for the given items, in order.
func (p *PlaylistCreator) CreatePlaylist(items []*model.MediaItem) string {
	if p.format == FormatPLS {
		return p.createPLS(items)
	}
	return p.createM3U(items)
}

func (p *PlaylistCreator) createM3U(items []*model.MediaItem) string {
	var sb strings.Builder

	if p.extended {
		sb.WriteString("#EXTM3U\n")
	}

	for _, item := range items {
		if p.extended {
			sb.WriteString(fmt.Sprintf("#EXTINF:%d,%s\n", item.DurationSec, item.Title))
		}
		sb.WriteString(filepath.Base(item.Path))
		sb.WriteString("\n")
	}

	return sb.String()
}

func (p *PlaylistCreator) createPLS(items []*model.MediaItem) string {
	var sb strings.Builder

	sb.WriteString("[playlist]\n")
	for i, item := range items {
		n := i + 1
		sb.WriteString(fmt.Sprintf("File%d=%s\n", n, filepath.Base(item.Path)))
		sb.WriteString(fmt.Sprintf("Title%d=%s\n", n, item.Title))
		sb.WriteString(fmt.Sprintf("Length%d=%d\n", n, item.DurationSec))
	}
	sb.WriteString(fmt.Sprintf("NumberOfEntries=%d\n", len(items)))
	sb.WriteString("Version=2\n")

	return sb.String()
}
