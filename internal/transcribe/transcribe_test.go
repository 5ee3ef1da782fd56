package transcribe

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranscriptPath(t *testing.T) {
	tests := []struct {
		name      string
		audioPath string
		want      string
	}{
		{
			name:      "m4a in archive dir",
			audioPath: filepath.Join("archive", "BV1xx411c7mD_Title_2023-11-10-09-08-07.m4a"),
			want:      filepath.Join("archive", "transcripts", "BV1xx411c7mD_Title_2023-11-10-09-08-07.txt"),
		},
		{
			name:      "no extension",
			audioPath: filepath.Join("archive", "plain"),
			want:      filepath.Join("archive", "transcripts", "plain.txt"),
		},
		{
			name:      "dots in title",
			audioPath: filepath.Join("archive", "ep.1.mp3"),
			want:      filepath.Join("archive", "transcripts", "ep.1.txt"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TranscriptPath(tt.audioPath, "transcripts")
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := New("", "whisper-1")
	assert.ErrorIs(t, err, ErrNoAPIKey)

	tr, err := New("sk-test", "whisper-1")
	require.NoError(t, err)
	assert.NotNil(t, tr)
}

func TestTranscribeToFile_SkipsExisting(t *testing.T) {
	tr, err := New("sk-test", "whisper-1")
	require.NoError(t, err)

	dir := t.TempDir()
	audioPath := filepath.Join(dir, "item.m4a")
	transcriptPath := TranscriptPath(audioPath, "transcripts")

	require.NoError(t, os.WriteFile(audioPath, []byte("audio"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Dir(transcriptPath), 0755))
	require.NoError(t, os.WriteFile(transcriptPath, []byte("existing transcript"), 0644))

	// An existing transcript short-circuits before any network call, so
	// the fake API key is never exercised.
	skipped, err := tr.TranscribeToFile(context.Background(), audioPath, transcriptPath)
	require.NoError(t, err)
	assert.True(t, skipped)

	data, err := os.ReadFile(transcriptPath)
	require.NoError(t, err)
	assert.Equal(t, "existing transcript", string(data), "existing transcripts are never overwritten")
}

func TestRunner_SkipsNonAudioAndExisting(t *testing.T) {
	tr, err := New("sk-test", "whisper-1")
	require.NoError(t, err)

	dir := t.TempDir()
	audioPath := filepath.Join(dir, "done.m4a")
	require.NoError(t, os.WriteFile(audioPath, []byte("audio"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not audio"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cover.jpg"), []byte("not audio"), 0644))

	transcriptPath := TranscriptPath(audioPath, "transcripts")
	require.NoError(t, os.MkdirAll(filepath.Dir(transcriptPath), 0755))
	require.NoError(t, os.WriteFile(transcriptPath, []byte("done"), 0644))

	runner := NewRunner(tr, "transcripts", nil)
	summary, err := runner.Run(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Skipped, "only the audio file is considered, and it already has a transcript")
	assert.Equal(t, 0, summary.Transcribed)
	assert.Equal(t, 0, summary.Failed)
	require.Len(t, summary.Reports, 1)
	assert.True(t, summary.Reports[0].Skipped)
}

func TestRunner_EmptyDir(t *testing.T) {
	tr, err := New("sk-test", "whisper-1")
	require.NoError(t, err)

	runner := NewRunner(tr, "transcripts", nil)
	summary, err := runner.Run(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, summary.Reports)
}
