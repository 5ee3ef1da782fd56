package bilibili

import (
	"context"
	"errors"

	"github.com/qiuyin/bili-audio-archiver/internal/model"
)

// ErrNotAvailable signals that an item has no audio variant reachable at
// the current auth tier. This is not a failure: the orchestrator skips the
// item, logs it and continues.
var ErrNotAvailable = errors.New("no audio stream available at current auth tier")

// Negotiator resolves the audio stream descriptors of one item and selects
// the best variant the session is allowed to fetch.
//
// Selection rule: among all DASH audio variants, pick the one with the
// highest bandwidth whose required tier does not exceed the session tier.
// Descriptor URLs expire (the CDN embeds a deadline); the negotiator does
// not cache descriptors, so a retry after expiry simply re-negotiates.
type Negotiator struct {
	api *Client
}

// NewNegotiator creates a Negotiator on top of the API client.
func NewNegotiator(api *Client) *Negotiator {
	return &Negotiator{api: api}
}

// Negotiate resolves the best allowed audio descriptor for one item.
//
// Two API calls are made: video info (for the cid) and the playurl DASH
// manifest. Returns ErrNotAvailable when no variant is reachable at the
// given tier, including the case of an item with no audio at all.
func (n *Negotiator) Negotiate(ctx context.Context, bvid string, tier model.AuthTier) (*model.StreamDescriptor, error) {
	info, err := n.api.VideoInfo(ctx, bvid)
	if err != nil {
		return nil, err
	}

	manifest, err := n.api.PlayURL(ctx, bvid, info.Cid)
	if err != nil {
		return nil, err
	}

	var best *model.StreamDescriptor
	for _, variant := range manifest.Dash.Audio {
		required := model.RequiredTierFor(variant.ID)
		if required > tier {
			continue
		}
		if best != nil && variant.Bandwidth <= best.Bandwidth {
			continue
		}
		best = &model.StreamDescriptor{
			URL:          variant.BaseURL,
			BackupURLs:   variant.BackupURL,
			Quality:      variant.ID,
			Bandwidth:    variant.Bandwidth,
			Codec:        variant.Codecs,
			ExpiresAt:    model.StreamDeadline(variant.BaseURL),
			RequiredTier: required,
		}
	}

	if best == nil {
		return nil, ErrNotAvailable
	}
	return best, nil
}
