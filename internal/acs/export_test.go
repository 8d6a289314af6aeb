package acs

import "time"

// NewFetcherWithLimit is NewFetcher with a smaller body cap.
func NewFetcherWithLimit(timeout time.Duration, maxBodySize int64) *Fetcher {
	f := NewFetcher(timeout)
	f.maxBodySize = maxBodySize
	return f
}
