// Package feed resolves pages of the post feed, filtered by the distance between the viewer
// and the post authors, and keeps the pagination state of a feed.
package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/emprius/emprius-social-backend/gateway"
	"github.com/emprius/emprius-social-backend/geo"
)

const (
	// BatchSize is the number of posts fetched from the backend for every page.
	BatchSize = 20
	// DefaultTimeout bounds a single page resolution.
	DefaultTimeout = 10 * time.Second
)

// PostLister lists posts in descending creation order, strictly after the cursor post.
type PostLister interface {
	ListPosts(ctx context.Context, cursor string, limit int) ([]*gateway.Post, error)
}

// Request describes the page to resolve. A nil Viewer means the viewer location is unknown,
// the distance filter is then ignored.
type Request struct {
	Viewer *geo.Coordinate
	Filter geo.DistanceFilter
	Cursor string
}

// Page is a resolved page of the feed. NextCursor and HasMore are computed from the batch
// fetched from the backend before filtering, so a page may have fewer posts than Fetched, or
// none at all, while HasMore is still true.
type Page struct {
	Posts      []*gateway.Post `json:"posts"`
	NextCursor string          `json:"nextCursor"`
	HasMore    bool            `json:"hasMore"`
	Fetched    int             `json:"fetched"`
}

// Resolver resolves feed pages.
type Resolver struct {
	lister    PostLister
	batchSize int
	timeout   time.Duration
}

// NewResolver creates a Resolver. A zero timeout uses DefaultTimeout.
func NewResolver(lister PostLister, timeout time.Duration) *Resolver {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Resolver{
		lister:    lister,
		batchSize: BatchSize,
		timeout:   timeout,
	}
}

type batchResult struct {
	posts []*gateway.Post
	err   error
}

// Resolve fetches one batch after req.Cursor and filters it by distance. Backend failures are
// returned as is, without partial results. A batch not fetched within the resolver timeout, or
// before ctx is cancelled, is a gateway.ErrTransport failure.
func (r *Resolver) Resolve(ctx context.Context, req Request) (*Page, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	done := make(chan batchResult, 1)
	go func() {
		posts, err := r.lister.ListPosts(ctx, req.Cursor, r.batchSize)
		done <- batchResult{posts: posts, err: err}
	}()

	var batch []*gateway.Post
	select {
	case res := <-done:
		if res.err != nil {
			return nil, res.err
		}
		batch = res.posts
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("resolve feed: %w: no response after %s", gateway.ErrTransport, r.timeout)
		}
		return nil, fmt.Errorf("resolve feed: %w: %w", gateway.ErrTransport, ctx.Err())
	}

	page := &Page{
		Fetched: len(batch),
		HasMore: len(batch) == r.batchSize,
	}
	if len(batch) > 0 {
		page.NextCursor = batch[len(batch)-1].ID
	}
	if req.Viewer == nil {
		page.Posts = append(make([]*gateway.Post, 0, len(batch)), batch...)
	} else {
		page.Posts = geo.Filter(batch, req.Viewer, req.Filter, (*gateway.Post).AuthorCoordinate)
	}
	return page, nil
}
