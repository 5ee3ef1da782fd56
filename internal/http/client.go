package http

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/qiuyin/bili-audio-archiver/internal/model"
	"golang.org/x/time/rate"
)

// ErrorKind classifies a transport-level failure.
type ErrorKind int

const (
	KindNetwork ErrorKind = iota
	KindTimeout
	KindConnectionReset
	KindTLSFailure
	KindDNSFailure
)

func (k ErrorKind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindConnectionReset:
		return "connection-reset"
	case KindTLSFailure:
		return "tls-failure"
	case KindDNSFailure:
		return "dns-failure"
	default:
		return "network"
	}
}

// TransportError wraps a network-level failure (timeout, reset, TLS, DNS).
//
// Transport errors are always retryable by the caller; non-2xx statuses are
// never reported as TransportError, they come back as ordinary responses
// (or StatusError from the convenience helpers) for the caller to interpret.
type TransportError struct {
	Kind ErrorKind
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// StatusError reports a non-success HTTP status from a convenience helper.
type StatusError struct {
	Status int
	URL    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d from %s", e.Status, e.URL)
}

// Response is the result of a Send call.
//
// TotalSize is the size of the complete remote object: for a 206 response it
// comes from the Content-Range total, for a 200 response from Content-Length.
// It is -1 when the server did not report it.
type Response struct {
	// Status is the HTTP status code.
	Status int

	// RangeHonored reports whether the server honored the byte-range
	// request (HTTP 206). When false for a ranged request, the body is
	// the full object from offset 0 and any local partial must be
	// discarded.
	RangeHonored bool

	// ContentLength is the length of this response body, -1 when unknown.
	ContentLength int64

	// TotalSize is the complete object size, -1 when unknown.
	TotalSize int64

	// Body streams the response payload. The caller must close it.
	Body io.ReadCloser
}

// Client wraps HTTP operations with Bilibili-specific configuration.
//
// Client provides:
//   - Browser-like User-Agent and Referer headers the API requires
//   - Optional SESSDATA session cookie (the elevated-tier credential)
//   - A shared politeness rate limiter applied before every request
//   - Byte-range requests with explicit range-honored reporting
//
// Example usage:
//
//	client := NewClient(sessData, rate.NewLimiter(rate.Every(time.Second), 1))
//
//	// JSON API call
//	var nav dto.NavResponse
//	err := client.GetJSON(ctx, navURL, &nav)
//
//	// Ranged stream request resuming at byte 4096
//	resp, err := client.Send(ctx, http.MethodGet, streamURL, 4096)
type Client struct {
	httpClient *http.Client
	userAgent  string
	referer    string
	sessData   string
	limiter    *rate.Limiter
}

// NewClient creates an HTTP client configured for the Bilibili API and CDN.
//
// sessData is the optional elevated-session credential; the empty string
// leaves the client anonymous. limiter is the shared politeness throttle
// and may be nil to disable throttling (tests).
func NewClient(sessData string, limiter *rate.Limiter) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		userAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/58.0.3029.110 Safari/537.3",
		referer:   "https://www.bilibili.com/",
		sessData:  sessData,
		limiter:   limiter,
	}
}

// Tier returns the auth tier implied by the configured credential.
func (c *Client) Tier() model.AuthTier {
	if c.sessData != "" {
		return model.TierElevated
	}
	return model.TierAnonymous
}

// Send issues a request with the configured identity headers and an optional
// byte-range starting at offset (offset <= 0 means no range).
//
// The shared rate limiter is awaited before the request goes out, so every
// network call is a cancellation point. Network-level failures are returned
// as *TransportError; any HTTP status comes back as an ordinary Response.
func (c *Client) Send(ctx context.Context, method, url string, offset int64) (*Response, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classify(err)
	}

	out := &Response{
		Status:        resp.StatusCode,
		RangeHonored:  resp.StatusCode == http.StatusPartialContent,
		ContentLength: resp.ContentLength,
		TotalSize:     -1,
		Body:          resp.Body,
	}

	switch {
	case out.RangeHonored:
		out.TotalSize = parseContentRangeTotal(resp.Header.Get("Content-Range"))
	case resp.StatusCode == http.StatusOK && resp.ContentLength >= 0:
		out.TotalSize = resp.ContentLength
	case resp.StatusCode == http.StatusRequestedRangeNotSatisfiable:
		// "Content-Range: bytes */N" tells us the full size even here.
		out.TotalSize = parseContentRangeTotal(resp.Header.Get("Content-Range"))
	}

	return out, nil
}

// Get performs a GET request and returns the response body as bytes.
//
// Returns *TransportError for network failures and *StatusError for any
// status other than 200 OK.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	resp, err := c.Send(ctx, http.MethodGet, url, 0)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.Status != http.StatusOK {
		return nil, &StatusError{Status: resp.Status, URL: url}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classify(err)
	}
	return body, nil
}

// GetJSON performs a GET request and decodes the JSON response body into v.
func (c *Client) GetJSON(ctx context.Context, url string, v any) error {
	body, err := c.Get(ctx, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

// GetFileSize returns the size of the remote object via a HEAD request.
//
// Returns an error when the server doesn't report a Content-Length.
func (c *Client) GetFileSize(ctx context.Context, url string) (int64, error) {
	resp, err := c.Send(ctx, http.MethodHead, url, 0)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()

	if resp.Status != http.StatusOK {
		return 0, &StatusError{Status: resp.Status, URL: url}
	}
	if resp.ContentLength < 0 {
		return 0, fmt.Errorf("no Content-Length header for %s", url)
	}
	return resp.ContentLength, nil
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Referer", c.referer)
	if c.sessData != "" {
		req.Header.Set("Cookie", "SESSDATA="+c.sessData)
	}
}

// parseContentRangeTotal extracts the total size from a Content-Range
// header like "bytes 1024-2047/4096". Returns -1 when absent or "*".
func parseContentRangeTotal(header string) int64 {
	idx := strings.LastIndex(header, "/")
	if idx < 0 {
		return -1
	}
	total, err := strconv.ParseInt(header[idx+1:], 10, 64)
	if err != nil {
		return -1
	}
	return total
}

// classify maps a low-level error to a TransportError kind.
func classify(err error) error {
	// Context cancellation is not a transport failure; bubble it unchanged
	// so callers can distinguish "stop" from "retry".
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	kind := KindNetwork

	var dnsErr *net.DNSError
	var tlsErr *tls.CertificateVerificationError
	var recordErr tls.RecordHeaderError
	var netErr net.Error

	switch {
	case errors.As(err, &dnsErr):
		kind = KindDNSFailure
	case errors.As(err, &tlsErr), errors.As(err, &recordErr):
		kind = KindTLSFailure
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, io.ErrUnexpectedEOF):
		kind = KindConnectionReset
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = KindTimeout
	}

	return &TransportError{Kind: kind, Err: err}
}

// ProgressWriter wraps a writer to track download progress.
//
// Use this to monitor large downloads by providing an OnUpdate callback
// that receives the current bytes written and total expected bytes.
//
// Example:
//
//	pw := &ProgressWriter{
//	    Writer: file,
//	    Total:  totalSize,
//	    OnUpdate: func(written, total int64) {
//	        fmt.Printf("%d / %d bytes\n", written, total)
//	    },
//	}
//	io.Copy(pw, resp.Body)
type ProgressWriter struct {
	// Writer is the underlying writer to write data to.
	Writer io.Writer

	// Total is the expected total bytes.
	Total int64

	// Written is the current number of bytes written.
	Written int64

	// OnUpdate is called after each Write with current progress.
	// Parameters are (bytesWritten, totalExpected).
	OnUpdate func(written, total int64)
}

// Write implements io.Writer, tracking progress and calling OnUpdate.
func (pw *ProgressWriter) Write(p []byte) (int, error) {
	n, err := pw.Writer.Write(p)
	pw.Written += int64(n)
	if pw.OnUpdate != nil {
		pw.OnUpdate(pw.Written, pw.Total)
	}
	return n, err
}
