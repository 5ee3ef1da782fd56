package bilibili

import (
	"context"
	"fmt"
	"time"

	"github.com/qiuyin/bili-audio-archiver/internal/model"
)

// defaultPageSize is the largest page the listing endpoint serves.
const defaultPageSize = 30

// CatalogError reports a page fetch failure partway through enumeration.
//
// Partial holds every item yielded before the failure, in enumeration
// order, so the caller can decide to proceed with the partial catalog or
// abort the run.
type CatalogError struct {
	// Partial is the ordered sequence of items already yielded.
	Partial []*model.MediaItem

	// Page is the 1-based page number that failed.
	Page int

	// Err is the underlying failure.
	Err error
}

func (e *CatalogError) Error() string {
	return fmt.Sprintf("catalog page %d failed after %d items: %v", e.Page, len(e.Partial), e.Err)
}

func (e *CatalogError) Unwrap() error { return e.Err }

// Catalog enumerates a creator's published videos across paginated listing
// results.
//
// The enumeration is lazy: items are handed to the visit callback as each
// page arrives, so downloads can start while later pages are still being
// fetched. Items are deduplicated by id across pages, since the server may
// repeat entries when the catalog mutates mid-walk. A page budget guards
// against a server that keeps returning pages forever.
//
// Catalog keeps no cursor state between Walk calls; re-invoking Walk
// re-enumerates from scratch. Idempotence across runs comes from the
// orchestrator's skip-if-exists logic, not from persisted cursors.
type Catalog struct {
	api      *Client
	paths    *model.PathConfig
	pageSize int
	maxPages int
}

// NewCatalog creates a Catalog enumerator. maxPages bounds the walk;
// values below 1 fall back to a single page.
func NewCatalog(api *Client, paths *model.PathConfig, maxPages int) *Catalog {
	if maxPages < 1 {
		maxPages = 1
	}
	return &Catalog{
		api:      api,
		paths:    paths,
		pageSize: defaultPageSize,
		maxPages: maxPages,
	}
}

// Walk enumerates the creator's catalog, invoking visit for each distinct
// item in listing order. A non-nil error from visit aborts the walk and is
// returned unchanged.
//
// A page fetch failure is returned as *CatalogError carrying the items
// already yielded. Termination: the server returning an empty page, the
// total-count hint being reached, or the page budget running out.
func (c *Catalog) Walk(ctx context.Context, uid string, visit func(*model.MediaItem) error) error {
	seen := make(map[string]struct{})
	var yielded []*model.MediaItem

	for page := 1; page <= c.maxPages; page++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		data, err := c.api.VideoPage(ctx, uid, page, c.pageSize)
		if err != nil {
			return &CatalogError{Partial: yielded, Page: page, Err: err}
		}

		if len(data.List.Vlist) == 0 {
			return nil
		}

		for _, v := range data.List.Vlist {
			if v.Bvid == "" {
				continue
			}
			if _, dup := seen[v.Bvid]; dup {
				continue
			}
			seen[v.Bvid] = struct{}{}

			item := model.NewMediaItem(
				v.Bvid,
				v.Title,
				time.Unix(v.Created, 0),
				v.Pic,
				model.ParseDuration(v.Length),
				c.paths,
			)
			yielded = append(yielded, item)

			if err := visit(item); err != nil {
				return err
			}
		}

		// The count hint tells us when the last page has been consumed;
		// trusting it saves one empty-page round trip.
		if data.Page.Count > 0 && len(seen) >= data.Page.Count {
			return nil
		}
	}

	return nil
}

// All enumerates the whole catalog into a slice. Convenience for callers
// that want the full listing up front (single-item lookups, tests).
func (c *Catalog) All(ctx context.Context, uid string) ([]*model.MediaItem, error) {
	var items []*model.MediaItem
	err := c.Walk(ctx, uid, func(item *model.MediaItem) error {
		items = append(items, item)
		return nil
	})
	return items, err
}
