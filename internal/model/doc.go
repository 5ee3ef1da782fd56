// Package model defines the core data structures used throughout
// the bili-audio-archiver application.
//
// # MediaItem
//
// MediaItem represents one published video in a creator's catalog, with
// deterministic local paths computed from its identity:
//
//	item := model.NewMediaItem(bvid, title, publishedAt, coverURL, durationSec, pathConfig)
//	fmt.Println(item.Path)           // Where the audio file is saved
//	fmt.Println(item.TranscriptPath) // Where its transcript is saved
//
// # StreamDescriptor
//
// StreamDescriptor describes one downloadable audio variant (URL, bitrate,
// expiry, required auth tier). Negotiation selects the highest-bandwidth
// descriptor the current tier can access.
//
// # Path Configuration
//
// PathConfig controls how archive paths are computed using placeholders:
//
//	cfg := &model.PathConfig{
//	    ArchivePath:    "/archive",
//	    FileNameFormat: "{id}_{title}_{published}.m4a",
//	}
//
// Available placeholders: {id}, {title}, {published}, {year}, {month}, {day}
package model
