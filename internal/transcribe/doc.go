// Package transcribe converts archived audio files to text transcripts
// using the OpenAI speech-to-text API.
//
// The package runs as a pass over an existing archive directory rather
// than inside the download pipeline. Each audio file maps to a .txt file
// of the same base name inside a transcripts subdirectory, and files that
// already have a transcript are skipped, so the pass is idempotent and
// safe to re-run after every archive update.
package transcribe
