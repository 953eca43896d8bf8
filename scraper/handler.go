package scraper

import (
	"context"
	"errors"
	"fmt"
)

// Searcher fetches one page of search results.
type Searcher interface {
	FetchPage(ctx context.Context, page int) (*SearchPage, error)
	PageSize() int
}

// DetailFetcher fetches the detail record of one listing.
type DetailFetcher interface {
	FetchDetail(ctx context.Context, listingID string) (*DetailListing, error)
}

// FetchError is a failed API call. StatusCode is 0 when no response arrived.
type FetchError struct {
	Endpoint   string
	StatusCode int
	Body       string
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: %v", e.Endpoint, e.Err)
	}
	msg := fmt.Sprintf("%s: status %d", e.Endpoint, e.StatusCode)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Retryable reports whether repeating the call could succeed: transport
// failures, malformed bodies, throttling and server errors.
func (e *FetchError) Retryable() bool {
	if errors.Is(e.Err, context.Canceled) {
		return false
	}
	switch {
	case e.StatusCode == 0:
		return true
	case e.StatusCode == 429:
		return true
	case e.StatusCode >= 500:
		return true
	case e.StatusCode >= 200 && e.StatusCode < 300:
		return true // decode failure on a 2xx
	}
	return false
}
