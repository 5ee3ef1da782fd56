// Package bilibili implements the platform-facing layer of the archiver:
// WBI request signing, the web API client, catalog enumeration and audio
// stream negotiation.
//
// # Catalog
//
// Catalog walks a creator's paginated video list lazily, deduplicating
// item ids across pages and bounding the number of pages fetched:
//
//	catalog := bilibili.NewCatalog(api, pathConfig, maxPages)
//	err := catalog.Walk(ctx, uid, func(item *model.MediaItem) error {
//	    queue <- item
//	    return nil
//	})
//
// A mid-walk page failure surfaces as *CatalogError carrying the items
// already yielded, so the caller can proceed with the partial catalog.
//
// # Negotiator
//
// Negotiator resolves the DASH audio variants of one item and picks the
// highest-bandwidth variant the session's auth tier can access. A session
// without a SESSDATA credential only reaches the lowest-quality variant.
//
// # WBI signing
//
// Listing and playurl endpoints require WBI-signed queries: the img/sub
// keys are fetched from the nav endpoint, scrambled through a fixed
// permutation table, and the md5 of the sorted, encoded query plus that
// mixin key is appended as w_rid.
package bilibili
