package download

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"syscall"

	httpx "github.com/qiuyin/bili-audio-archiver/internal/http"
)

// ErrStreamExpired signals that a stream URL's deadline passed before or
// during the fetch. The orchestrator answers with exactly one
// re-negotiation, which mints a fresh URL.
var ErrStreamExpired = errors.New("stream url expired")

// IntegrityError reports a finished transfer whose byte count does not
// match the declared size. The partial artifact is discarded and the fetch
// restarts from scratch, up to the retry budget.
type IntegrityError struct {
	Path     string
	Expected int64
	Got      int64
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity: %s has %d bytes, expected %d", e.Path, e.Got, e.Expected)
}

// DiskErrorKind distinguishes the fatal local-storage failures.
type DiskErrorKind int

const (
	DiskOther DiskErrorKind = iota
	DiskNoSpace
	DiskPermission
)

func (k DiskErrorKind) String() string {
	switch k {
	case DiskNoSpace:
		return "no-space"
	case DiskPermission:
		return "permission"
	default:
		return "disk"
	}
}

// DiskError reports a local filesystem failure. Fatal for the task:
// retrying a full disk or a permission problem only burns the budget.
type DiskError struct {
	Kind DiskErrorKind
	Op   string
	Path string
	Err  error
}

func (e *DiskError) Error() string {
	return fmt.Sprintf("disk %s: %s %s: %v", e.Kind, e.Op, e.Path, e.Err)
}

func (e *DiskError) Unwrap() error { return e.Err }

// diskError classifies a filesystem error from op on path.
func diskError(op, path string, err error) *DiskError {
	kind := DiskOther
	switch {
	case errors.Is(err, syscall.ENOSPC):
		kind = DiskNoSpace
	case errors.Is(err, os.ErrPermission):
		kind = DiskPermission
	}
	return &DiskError{Kind: kind, Op: op, Path: path, Err: err}
}

// IsRetryable is the default retryable predicate of the archiver's retry
// policies.
//
// Retryable: transport failures, integrity mismatches, HTTP 429 and 5xx.
// Not retryable: client errors other than 429, disk failures, expired
// streams (those need re-negotiation, not repetition), cancellation.
func IsRetryable(err error) bool {
	var transportErr *httpx.TransportError
	if errors.As(err, &transportErr) {
		return true
	}

	var integrityErr *IntegrityError
	if errors.As(err, &integrityErr) {
		return true
	}

	var statusErr *httpx.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Status == http.StatusTooManyRequests || statusErr.Status >= 500
	}

	return false
}
