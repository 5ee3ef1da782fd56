// Package download provides the archiving engine: resumable stream
// fetching and the orchestration of a whole creator catalog.
//
// # Manager
//
// The Manager coordinates the entire run:
//
//  1. Enumerate the creator's catalog (lazily, feeding a worker pool)
//  2. Skip items whose finalized file already exists
//  3. Negotiate the best audio stream the auth tier allows
//  4. Fetch with resume, integrity verification and atomic finalize
//  5. Record a per-item outcome; one failure never aborts the run
//
// # Basic Usage
//
//	manager := download.NewManager(settings, func(event download.ProgressEvent) {
//	    fmt.Println(event.Message)
//	})
//
//	summary, err := manager.Run(ctx, uid)
//	if err != nil {
//	    log.Fatal(err) // enumeration or configuration failure
//	}
//	fmt.Printf("%d downloaded, %d failed\n", summary.Downloaded, summary.Failed)
//
// # Concurrency
//
// A bounded worker pool (settings.Concurrency) consumes items as the
// enumerator yields them. The politeness rate limiter is shared across all
// workers. Item ids map 1:1 to destination paths and are deduplicated, so
// no two workers ever write the same file.
//
// # Retry Logic
//
// Retries are driven by Policy: bounded attempts, exponential backoff with
// jitter, and a retryable predicate over the error taxonomy. Transport and
// integrity errors retry; expired stream URLs trigger one re-negotiation;
// disk errors fail the task immediately.
package download
