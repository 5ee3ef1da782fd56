// Package config manages application settings for bili-audio-archiver.
//
// Settings are stored as JSON and cover the archive layout, the session
// credential, download behavior (concurrency, politeness interval, retry
// budget), cover art, playlists and transcription.
//
// # Usage
//
//	settings, err := config.Load("/path/to/settings.json")
//	if err != nil { ... }
//
//	settings.Concurrency = 4
//	err = settings.Save("/path/to/settings.json")
//
// Load returns DefaultSettings when the file doesn't exist.
package config
