package bitbucket

import (
	"context"
	"errors"
	"fmt"

	"github.com/chainguard-dev/clog"
)

// MaxPages bounds a single FetchAll walk.
const MaxPages = 1000

var (
	// ErrPageLimit is returned when a walk reaches MaxPages without a final page.
	ErrPageLimit = errors.New("page limit reached")
	// ErrPageCycle is returned when a next link points at an already fetched page.
	ErrPageCycle = errors.New("pagination cycle detected")
)

// Page is one page of a paginated Bitbucket collection.
type Page[T any] struct {
	Values []T    `json:"values"`
	Next   string `json:"next,omitempty"`
}

// FetchAll follows next links from rootURL and returns every value in page
// order. When a page cannot be fetched or parsed, the values gathered so far
// are returned together with the error.
func FetchAll[T any](ctx context.Context, t *Transport, rootURL string) ([]T, error) {
	return fetchPages[T](ctx, t, rootURL, MaxPages)
}

func fetchPages[T any](ctx context.Context, t *Transport, rootURL string, maxPages int) ([]T, error) {
	values := []T{}
	seen := make(map[string]bool)

	for pageURL, page := rootURL, 1; pageURL != ""; page++ {
		if page > maxPages {
			clog.FromContext(ctx).Warn("stopping pagination", "url", rootURL, "pages", maxPages)
			return values, fmt.Errorf("fetching %s: %w", rootURL, ErrPageLimit)
		}
		if seen[pageURL] {
			clog.FromContext(ctx).Warn("stopping pagination", "url", rootURL, "repeated", pageURL)
			return values, fmt.Errorf("fetching %s: %w", pageURL, ErrPageCycle)
		}
		seen[pageURL] = true

		resp, err := GetJSON[Page[T]](ctx, t, pageURL)
		if err != nil {
			return values, fmt.Errorf("fetching page %d of %s: %w", page, rootURL, err)
		}

		clog.FromContext(ctx).Debug("bitbucket page fetched", "url", pageURL, "page", page, "count", len(resp.Values))

		values = append(values, resp.Values...)
		pageURL = resp.Next
	}

	return values, nil
}
