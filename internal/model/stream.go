package model

import (
	"net/url"
	"strconv"
	"time"
)

// AuthTier is the privilege level implied by the configured credential.
//
// An anonymous session can only reach the lowest-quality audio variant;
// an elevated session (a valid login cookie) unlocks the rest. This is a
// capability gate, not an error condition.
type AuthTier int

const (
	// TierAnonymous is the tier without any session credential.
	TierAnonymous AuthTier = iota

	// TierElevated is the tier granted by a valid session credential.
	TierElevated
)

func (t AuthTier) String() string {
	if t == TierElevated {
		return "elevated"
	}
	return "anonymous"
}

// qualityAnonymousMax is the highest DASH audio format id served to
// anonymous sessions (the 64K variant).
const qualityAnonymousMax = 30216

// StreamDescriptor describes one downloadable audio variant of an item.
//
// Multiple descriptors usually exist per item; negotiation picks the one
// with the highest Bandwidth whose RequiredTier does not exceed the
// session's tier.
type StreamDescriptor struct {
	// URL is the CDN download URL. May expire; see ExpiresAt.
	URL string

	// BackupURLs are alternative CDN URLs for the same variant.
	BackupURLs []string

	// Quality is the platform's audio format id (e.g. 30216, 30232, 30280).
	Quality int

	// Bandwidth is the variant bitrate in bits per second.
	// Higher is better; this is the quality rank used for selection.
	Bandwidth int64

	// Codec is the codec string reported for the variant.
	Codec string

	// Size is the expected byte size, or 0 when unknown until the
	// download response headers arrive.
	Size int64

	// ExpiresAt is when the URL stops being valid. Zero when unknown.
	ExpiresAt time.Time

	// RequiredTier is the minimum auth tier needed to play this variant.
	RequiredTier AuthTier
}

// Expired reports whether the descriptor's URL is past its deadline.
// Descriptors without a known deadline never report expired.
func (d *StreamDescriptor) Expired(now time.Time) bool {
	return !d.ExpiresAt.IsZero() && now.After(d.ExpiresAt)
}

// RequiredTierFor maps a DASH audio format id to the tier needed to
// access it. Variants above the 64K format require a session cookie.
func RequiredTierFor(formatID int) AuthTier {
	if formatID > qualityAnonymousMax {
		return TierElevated
	}
	return TierAnonymous
}

// StreamDeadline extracts the expiry timestamp from a CDN URL's
// "deadline" query parameter. Returns the zero time when absent or
// malformed.
func StreamDeadline(rawURL string) time.Time {
	u, err := url.Parse(rawURL)
	if err != nil {
		return time.Time{}
	}
	deadline := u.Query().Get("deadline")
	if deadline == "" {
		return time.Time{}
	}
	sec, err := strconv.ParseInt(deadline, 10, 64)
	if err != nil || sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}
