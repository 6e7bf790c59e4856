package query

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/emprius/emprius-social-backend/feed"
	"github.com/emprius/emprius-social-backend/gateway"
	"github.com/emprius/emprius-social-backend/geo"
)

// FeedKey is the cache key of the feed of a viewer and distance filter.
func FeedKey(viewer *geo.Coordinate, filter geo.DistanceFilter) Key {
	if viewer == nil {
		return NewKey(GetPosts, "none", filter.String())
	}
	return NewKey(GetPosts,
		fmt.Sprintf("%g", viewer.Latitude),
		fmt.Sprintf("%g", viewer.Longitude),
		filter.String())
}

// Feed returns the feed session of a viewer and distance filter, creating it if needed.
// A session invalidated by a mutation is reset before being returned.
func (c *Client) Feed(viewer *geo.Coordinate, filter geo.DistanceFilter) *feed.Session {
	k := FeedKey(viewer, filter).String()
	c.feedsMu.Lock()
	defer c.feedsMu.Unlock()
	fe, ok := c.feeds.Get(k)
	if !ok {
		if fe, ok = c.unadmitted[k]; ok && c.admitFeed(k, fe) {
			delete(c.unadmitted, k)
		}
	}
	if ok {
		if fe.stale.Swap(false) {
			fe.session.Reset()
		}
		return fe.session
	}
	fe = &feedEntry{session: feed.NewSession(c.resolver, viewer, filter)}
	if !c.admitFeed(k, fe) {
		if len(c.unadmitted) >= MaxFeedSessions {
			for old := range c.unadmitted {
				delete(c.unadmitted, old)
				break
			}
		}
		c.unadmitted[k] = fe
		log.Debug().Str("feed", k).Msg("feed registry refused session")
	}
	return fe.session
}

// FeedPage returns the page of the feed that starts after cursor. Pages already fetched by the
// session are served from it; the page following the last one advances the session; any other
// cursor is resolved without touching the session.
func (c *Client) FeedPage(ctx context.Context, viewer *geo.Coordinate, filter geo.DistanceFilter, cursor string) (*feed.Page, error) {
	s := c.Feed(viewer, filter)
	if page, ok := s.PageAt(cursor); ok {
		return page, nil
	}
	if cursor != s.Cursor() {
		return c.resolve(ctx, viewer, filter, cursor)
	}
	page, err := s.FetchNext(ctx)
	switch {
	case errors.Is(err, feed.ErrExhausted):
		return &feed.Page{Posts: []*gateway.Post{}, NextCursor: cursor}, nil
	case errors.Is(err, feed.ErrSessionReset):
		return c.resolve(ctx, viewer, filter, cursor)
	case err != nil:
		return nil, err
	}
	return page, nil
}

// FeedHasMore reports whether the feed session of a viewer and distance filter can fetch
// another page.
func (c *Client) FeedHasMore(viewer *geo.Coordinate, filter geo.DistanceFilter) bool {
	return c.Feed(viewer, filter).HasMore()
}

// resolve fetches the page after cursor outside of the session. Concurrent calls for the same
// feed and cursor share a single backend request.
func (c *Client) resolve(ctx context.Context, viewer *geo.Coordinate, filter geo.DistanceFilter, cursor string) (*feed.Page, error) {
	k := append(FeedKey(viewer, filter), "cursor", cursor).String()
	isUnique := false
	ch := c.group.DoChan(k, func() (any, error) {
		isUnique = true
		return c.resolver.Resolve(context.WithoutCancel(ctx), feed.Request{Viewer: viewer, Filter: filter, Cursor: cursor})
	})
	select {
	case res := <-ch:
		if !isUnique {
			deduplicatedFetchCounter.Inc()
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*feed.Page), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("resolve feed: %w: %w", gateway.ErrTransport, ctx.Err())
	}
}
