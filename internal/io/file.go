// Package ioutils provides file system utilities for the bili-audio-archiver.
//
// This package contains functions for:
//   - Filename sanitization
//   - Directory creation
//   - Atomic file finalization (rename of a finished temp file)
package ioutils

import (
	"os"
	"regexp"
	"strings"
)

// SanitizeFileName removes or replaces characters that are invalid in file/folder names.
//
// This function ensures filenames are valid across different operating systems,
// particularly Windows which has the most restrictive naming rules.
//
// The following transformations are applied:
//   - Invalid characters (<>:"/\|?* and control chars 0x00-0x1f) → underscore
//   - Trailing dots → removed (Windows limitation)
//   - Multiple whitespace → single space
//   - Trailing whitespace → removed
//
// Example:
//
//	SanitizeFileName("Episode: Part 1/2")  // Returns "Episode_ Part 1_2"
//	SanitizeFileName("Title...")           // Returns "Title"
func SanitizeFileName(name string) string {
	// Replace invalid path/file characters with underscore
	// Characters: < > : " / \ | ? * and control characters (0x00-0x1f)
	invalidChars := regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
	name = invalidChars.ReplaceAllString(name, "_")

	// Remove trailing dots (Windows doesn't allow filenames ending with dots)
	name = regexp.MustCompile(`\.+$`).ReplaceAllString(name, "")

	// Replace multiple whitespace with single space for cleaner names
	name = regexp.MustCompile(`\s+`).ReplaceAllString(name, " ")

	return strings.TrimRight(name, " ")
}

// EnsureDir creates a directory and all parent directories if they don't exist.
//
// Directories are created with mode 0755 (rwxr-xr-x).
// If the directory already exists, no error is returned.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

// Finalize atomically renames a finished temporary file to its final path.
//
// This is the single commit point of a download: before the rename only the
// temporary file exists, after it only the final file does. A crash at any
// point leaves either a recoverable partial or a complete final file, never
// a truncated file at the final path.
//
// The temporary file must be co-located with the destination (same volume)
// so the rename is atomic.
func Finalize(tempPath, finalPath string) error {
	return os.Rename(tempPath, finalPath)
}
