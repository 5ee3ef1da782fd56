// Package http provides an HTTP client configured for the Bilibili API
// and its media CDN.
//
// The Client in this package handles:
//   - Browser-like User-Agent and Referer headers the API requires
//   - The optional SESSDATA session cookie (elevated-tier credential)
//   - Byte-range requests with explicit 206-vs-200 reporting
//   - A shared politeness rate limiter awaited before every request
//
// # Basic Usage
//
//	client := http.NewClient(sessData, limiter)
//
//	// Fetch and decode a JSON API response
//	var view dto.ViewResponse
//	err := client.GetJSON(ctx, viewURL, &view)
//
//	// Resume a stream download from byte offset 4096
//	resp, err := client.Send(ctx, "GET", streamURL, 4096)
//	if resp.RangeHonored { /* append */ } else { /* restart from 0 */ }
//
// # Error Taxonomy
//
// Network-level failures (timeout, reset, TLS, DNS) are returned as
// *TransportError and are always retryable. HTTP statuses are returned as
// ordinary responses; the convenience helpers turn non-200 into *StatusError.
package http
