package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/qiuyin/bili-audio-archiver/internal/model"
)

// Settings holds all configuration options.
type Settings struct {
	// Archive settings
	ArchivePath        string `json:"archive_path"`
	FileNameFormat     string `json:"file_name_format"`
	TranscriptsDirName string `json:"transcripts_dir_name"`

	// Credential: the platform session cookie. Empty means anonymous,
	// which restricts stream quality to the lowest tier.
	SessData string `json:"sessdata"`

	// Download settings
	Concurrency             int     `json:"concurrency"`
	MaxCatalogPages         int     `json:"max_catalog_pages"`
	RequestIntervalSeconds  float64 `json:"request_interval_seconds"`
	DownloadMaxRetries      int     `json:"download_max_retries"`
	DownloadRetryCooldown   float64 `json:"download_retry_cooldown"`
	DownloadRetryExponent   float64 `json:"download_retry_exponent"`
	DownloadRetryJitter     float64 `json:"download_retry_jitter"`

	// Cover art settings
	SaveCoverArt    bool `json:"save_cover_art"`
	CoverArtMaxSize int  `json:"cover_art_max_size"`

	// Playlist settings
	CreatePlaylist bool   `json:"create_playlist"`
	PlaylistFormat string `json:"playlist_format"` // m3u, pls
	M3UExtended    bool   `json:"m3u_extended"`

	// Transcription settings
	Transcribe         bool   `json:"transcribe"`
	OpenAIAPIKey       string `json:"openai_api_key"`
	TranscriptionModel string `json:"transcription_model"`
}

// DefaultSettings returns settings with default values.
func DefaultSettings() *Settings {
	homeDir, _ := os.UserHomeDir()
	return &Settings{
		ArchivePath:        filepath.Join(homeDir, "BiliAudio"),
		FileNameFormat:     "{id}_{title}_{published}.m4a",
		TranscriptsDirName: "transcripts",

		Concurrency:            2,
		MaxCatalogPages:        500,
		RequestIntervalSeconds: 2.0,
		DownloadMaxRetries:     5,
		DownloadRetryCooldown:  0.5,
		DownloadRetryExponent:  2.0,
		DownloadRetryJitter:    0.3,

		SaveCoverArt:    false,
		CoverArtMaxSize: 1000,

		CreatePlaylist: false,
		PlaylistFormat: "m3u",
		M3UExtended:    true,

		Transcribe:         false,
		TranscriptionModel: "whisper-1",
	}
}

// Load reads settings from a JSON file. A missing file yields defaults.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultSettings(), nil
		}
		return nil, err
	}

	settings := DefaultSettings()
	if err := json.Unmarshal(data, settings); err != nil {
		return nil, err
	}

	return settings, nil
}

// Save writes settings to a JSON file.
func (s *Settings) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// ToPathConfig converts settings to the model's path configuration.
func (s *Settings) ToPathConfig() *model.PathConfig {
	return &model.PathConfig{
		ArchivePath:        s.ArchivePath,
		FileNameFormat:     s.FileNameFormat,
		TranscriptsDirName: s.TranscriptsDirName,
	}
}

// RequestInterval returns the politeness interval between requests.
func (s *Settings) RequestInterval() time.Duration {
	if s.RequestIntervalSeconds <= 0 {
		return 0
	}
	return time.Duration(s.RequestIntervalSeconds * float64(time.Second))
}

// RetryCooldown returns the base backoff delay.
func (s *Settings) RetryCooldown() time.Duration {
	if s.DownloadRetryCooldown <= 0 {
		return 0
	}
	return time.Duration(s.DownloadRetryCooldown * float64(time.Second))
}

// Tier returns the auth tier implied by the configured credential.
func (s *Settings) Tier() model.AuthTier {
	if s.SessData != "" {
		return model.TierElevated
	}
	return model.TierAnonymous
}
