/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package storagemodels

import (
	"time"
)

// StreamOptions configures how a bulk record source reads its input.
type StreamOptions struct {
	MaxRetries      int                  // Retry attempts for transient errors (default: 3)
	RetryBackoff    time.Duration        // Backoff between retries, doubled per attempt (default: 1s)
	PageSize        int32                // Items per page for paginated sources (default: 100)
	MaxItems        int                  // Stop after this many records, 0 for no limit
	ProgressHandler func(StreamProgress) // Optional progress callback, invoked once per page
	ErrorHandler    func(error) bool     // Return true to skip a bad record, false to stop
}

// StreamProgress tracks source progress
type StreamProgress struct {
	ItemsRead   int64     // Total records decoded
	PagesRead   int       // Total pages (or files) read
	Errors      []error   // Accumulated non-fatal errors
	StartTime   time.Time // When reading started
	CurrentRate float64   // Records per second
}

// StreamOption is a functional option for configuring a source
type StreamOption func(*StreamOptions)

// DefaultStreamOptions returns default source options
func DefaultStreamOptions() StreamOptions {
	return StreamOptions{
		MaxRetries:   3,
		RetryBackoff: time.Second,
		PageSize:     100,
	}
}

// NewStreamOptions applies opts over DefaultStreamOptions.
func NewStreamOptions(opts ...StreamOption) StreamOptions {
	o := DefaultStreamOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithMaxRetries sets the maximum retry attempts
func WithMaxRetries(retries int) StreamOption {
	return func(opts *StreamOptions) {
		opts.MaxRetries = retries
	}
}

// WithRetryBackoff sets the initial retry backoff duration
func WithRetryBackoff(backoff time.Duration) StreamOption {
	return func(opts *StreamOptions) {
		opts.RetryBackoff = backoff
	}
}

// WithPageSize sets the page size
func WithPageSize(size int32) StreamOption {
	return func(opts *StreamOptions) {
		opts.PageSize = size
	}
}

// WithMaxItems caps the number of records read
func WithMaxItems(n int) StreamOption {
	return func(opts *StreamOptions) {
		opts.MaxItems = n
	}
}

// WithProgressHandler sets a progress callback
func WithProgressHandler(handler func(StreamProgress)) StreamOption {
	return func(opts *StreamOptions) {
		opts.ProgressHandler = handler
	}
}

// WithErrorHandler sets an error handler that can decide whether to continue
func WithErrorHandler(handler func(error) bool) StreamOption {
	return func(opts *StreamOptions) {
		opts.ErrorHandler = handler
	}
}

// Rate returns records per second since StartTime.
func (p StreamProgress) Rate(now time.Time) float64 {
	elapsed := now.Sub(p.StartTime).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(p.ItemsRead) / elapsed
}
