package transcribe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// ErrNoAPIKey is returned when transcription is requested without a
// configured OpenAI API key.
var ErrNoAPIKey = errors.New("transcription requires an OpenAI API key")

// Transcriber converts archived audio files to text via the OpenAI
// speech-to-text API.
//
// Transcription is a separate pass over the archive, not part of the
// download pipeline: it can run repeatedly and only processes audio that
// has no transcript yet.
type Transcriber struct {
	client *openai.Client
	model  string
}

// New creates a Transcriber using the given API key and model name
// (for example "whisper-1").
func New(apiKey, model string) (*Transcriber, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}

	client := openai.NewClient(option.WithAPIKey(apiKey))

	return &Transcriber{
		client: &client,
		model:  model,
	}, nil
}

// Transcribe sends one audio file to the API and returns the recognized
// text.
func (t *Transcriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	file, err := os.Open(audioPath)
	if err != nil {
		return "", fmt.Errorf("open audio: %w", err)
	}
	defer file.Close()

	result, err := t.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		Model: openai.AudioModel(t.model),
		File:  file,
	})
	if err != nil {
		return "", fmt.Errorf("transcribe %s: %w", filepath.Base(audioPath), err)
	}
	return result.Text, nil
}

// TranscribeToFile transcribes audioPath and writes the text to
// transcriptPath. An existing transcript is left untouched and reported
// as skipped, which makes repeated passes over the archive cheap.
func (t *Transcriber) TranscribeToFile(ctx context.Context, audioPath, transcriptPath string) (skipped bool, err error) {
	if info, statErr := os.Stat(transcriptPath); statErr == nil && !info.IsDir() {
		return true, nil
	}

	text, err := t.Transcribe(ctx, audioPath)
	if err != nil {
		return false, err
	}

	if err := os.MkdirAll(filepath.Dir(transcriptPath), 0755); err != nil {
		return false, fmt.Errorf("create transcript dir: %w", err)
	}
	if err := os.WriteFile(transcriptPath, []byte(text), 0644); err != nil {
		return false, fmt.Errorf("write transcript: %w", err)
	}
	return false, nil
}

// TranscriptPath maps an audio file to its transcript location: a .txt
// file of the same base name inside the transcripts directory next to the
// audio file.
func TranscriptPath(audioPath, transcriptsDirName string) string {
	base := filepath.Base(audioPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(filepath.Dir(audioPath), transcriptsDirName, stem+".txt")
}
