package feed_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"github.com/emprius/emprius-social-backend/feed"
	"github.com/emprius/emprius-social-backend/gateway"
	"github.com/emprius/emprius-social-backend/gateway/gatewaytest"
	"github.com/emprius/emprius-social-backend/geo"
)

var (
	santCeloni = geo.NewCoordinate(41.688407, 2.491027)
	manresa    = geo.NewCoordinate(41.749846, 1.825959)
	madrid     = geo.NewCoordinate(40.416775, -3.703790)
)

func within(t *testing.T, km float64) geo.DistanceFilter {
	f, err := geo.Within(km)
	qt.Assert(t, err, qt.IsNil)
	return f
}

func TestResolveFiltersByDistance(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	g, m := gatewaytest.NewGateway()
	near := m.AddUser(t, "near", manresa)
	far := m.AddUser(t, "far", madrid)
	unknown := m.AddUser(t, "unknown", nil)

	// 20 posts, the 3 newest by the near author
	base := time.Now().UTC().Truncate(time.Millisecond).Add(-time.Hour)
	var oldest string
	for i := 0; i < 20; i++ {
		author := far.ID
		switch {
		case i >= 17:
			author = near.ID
		case i < 2:
			author = unknown.ID
		}
		p := m.AddPost(t, author, "post", base.Add(time.Duration(i)*time.Second))
		if i == 0 {
			oldest = p.ID.Hex()
		}
	}

	resolver := feed.NewResolver(g, 0)

	c.Run("bounded filter", func(c *qt.C) {
		page, err := resolver.Resolve(ctx, feed.Request{Viewer: santCeloni, Filter: within(t, 100)})
		c.Assert(err, qt.IsNil)
		c.Assert(page.Posts, qt.HasLen, 3)
		for _, p := range page.Posts {
			c.Assert(p.CreatorID, qt.Equals, near.ID.Hex())
		}
		c.Assert(page.Fetched, qt.Equals, 20)
		c.Assert(page.HasMore, qt.IsTrue)
		// the cursor comes from the unfiltered batch
		c.Assert(page.NextCursor, qt.Equals, oldest)
	})

	c.Run("unknown viewer ignores the filter", func(c *qt.C) {
		page, err := resolver.Resolve(ctx, feed.Request{Filter: within(t, 1)})
		c.Assert(err, qt.IsNil)
		c.Assert(page.Posts, qt.HasLen, 20)
	})

	c.Run("unbounded filter keeps posts without location", func(c *qt.C) {
		page, err := resolver.Resolve(ctx, feed.Request{Viewer: santCeloni, Filter: geo.Unbounded()})
		c.Assert(err, qt.IsNil)
		c.Assert(page.Posts, qt.HasLen, 20)
	})

	c.Run("nothing in range", func(c *qt.C) {
		page, err := resolver.Resolve(ctx, feed.Request{Viewer: santCeloni, Filter: within(t, 5)})
		c.Assert(err, qt.IsNil)
		c.Assert(page.Posts, qt.HasLen, 0)
		c.Assert(page.Posts, qt.IsNotNil)
		c.Assert(page.HasMore, qt.IsTrue)
	})

	c.Run("after the last post", func(c *qt.C) {
		page, err := resolver.Resolve(ctx, feed.Request{Cursor: oldest})
		c.Assert(err, qt.IsNil)
		c.Assert(page.Posts, qt.HasLen, 0)
		c.Assert(page.HasMore, qt.IsFalse)
		c.Assert(page.NextCursor, qt.Equals, "")
	})
}

func TestResolveFailures(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	g, m := gatewaytest.NewGateway()

	m.Fail("ListPosts", errors.New("connection refused"))
	_, err := feed.NewResolver(g, 0).Resolve(ctx, feed.Request{})
	c.Assert(err, qt.ErrorIs, gateway.ErrTransport)
	m.Fail("ListPosts", nil)

	release := make(chan struct{})
	defer close(release)
	m.OnCall("ListPosts", func() { <-release })
	_, err = feed.NewResolver(g, 20*time.Millisecond).Resolve(ctx, feed.Request{})
	c.Assert(err, qt.ErrorIs, gateway.ErrTransport)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = feed.NewResolver(g, time.Second).Resolve(cancelled, feed.Request{})
	c.Assert(err, qt.ErrorIs, gateway.ErrTransport)
	c.Assert(err, qt.ErrorIs, context.Canceled)
}

func newSeededSession(t *testing.T, posts int) (*feed.Session, *gatewaytest.Memory) {
	g, m := gatewaytest.NewGateway()
	author := m.AddUser(t, "author", nil)
	base := time.Now().UTC().Truncate(time.Millisecond).Add(-time.Hour)
	for i := 0; i < posts; i++ {
		m.AddPost(t, author.ID, "post", base.Add(time.Duration(i)*time.Second))
	}
	return feed.NewSession(feed.NewResolver(g, time.Second), nil, geo.Unbounded()), m
}

func TestSessionWalk(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	s, _ := newSeededSession(t, 25)
	c.Assert(s.State(), qt.Equals, feed.Idle)
	c.Assert(s.HasMore(), qt.IsTrue)

	first, err := s.FetchNext(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(first.Posts, qt.HasLen, 20)
	c.Assert(s.State(), qt.Equals, feed.HasMore)
	c.Assert(s.Cursor(), qt.Equals, first.NextCursor)

	second, err := s.FetchNext(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(second.Posts, qt.HasLen, 5)
	c.Assert(second.Posts[0].CreatedAt.Before(first.Posts[19].CreatedAt), qt.IsTrue)
	c.Assert(s.State(), qt.Equals, feed.Exhausted)
	c.Assert(s.HasMore(), qt.IsFalse)

	_, err = s.FetchNext(ctx)
	c.Assert(err, qt.ErrorIs, feed.ErrExhausted)

	page, ok := s.PageAt(first.NextCursor)
	c.Assert(ok, qt.IsTrue)
	c.Assert(page, qt.Equals, second)
	c.Assert(s.Pages(), qt.HasLen, 2)

	s.Reset()
	c.Assert(s.State(), qt.Equals, feed.Idle)
	again, err := s.FetchNext(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(again.NextCursor, qt.Equals, first.NextCursor)
}

func TestSessionCoalescesConcurrentFetches(t *testing.T) {
	c := qt.New(t)
	s, m := newSeededSession(t, 25)

	release := make(chan struct{})
	m.OnCall("ListPosts", func() { <-release })

	const callers = 10
	pages := make([]*feed.Page, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pages[i], errs[i] = s.FetchNext(context.Background())
		}(i)
	}
	waitFor(t, func() bool { return m.Calls("ListPosts") == 1 })
	c.Assert(s.State(), qt.Equals, feed.Fetching)
	close(release)
	wg.Wait()

	c.Assert(m.Calls("ListPosts"), qt.Equals, 1)
	for i := 0; i < callers; i++ {
		c.Assert(errs[i], qt.IsNil)
		c.Assert(pages[i], qt.Equals, pages[0])
	}
	c.Assert(s.Pages(), qt.HasLen, 1)
}

func TestSessionResetDiscardsInFlightPage(t *testing.T) {
	c := qt.New(t)
	s, m := newSeededSession(t, 25)

	release := make(chan struct{})
	m.OnCall("ListPosts", func() { <-release })

	done := make(chan error, 1)
	go func() {
		_, err := s.FetchNext(context.Background())
		done <- err
	}()
	waitFor(t, func() bool { return m.Calls("ListPosts") == 1 })
	s.Reset()
	close(release)

	c.Assert(<-done, qt.ErrorIs, feed.ErrSessionReset)
	c.Assert(s.State(), qt.Equals, feed.Idle)
	c.Assert(s.Pages(), qt.HasLen, 0)
	c.Assert(s.Cursor(), qt.Equals, "")
}

func TestSessionFailureIsRetryable(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	s, m := newSeededSession(t, 25)

	first, err := s.FetchNext(ctx)
	c.Assert(err, qt.IsNil)

	m.Fail("ListPosts", errors.New("timeout"))
	_, err = s.FetchNext(ctx)
	c.Assert(err, qt.ErrorIs, gateway.ErrTransport)
	c.Assert(s.State(), qt.Equals, feed.HasMore)
	c.Assert(s.Cursor(), qt.Equals, first.NextCursor)

	m.Fail("ListPosts", nil)
	second, err := s.FetchNext(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(second.Posts, qt.HasLen, 5)
}

func TestSessionCallerCancellation(t *testing.T) {
	c := qt.New(t)
	s, m := newSeededSession(t, 25)

	release := make(chan struct{})
	m.OnCall("ListPosts", func() { <-release })

	ctx, cancel := context.WithCancel(context.Background())
	cancelled := make(chan error, 1)
	go func() {
		_, err := s.FetchNext(ctx)
		cancelled <- err
	}()
	waitFor(t, func() bool { return m.Calls("ListPosts") == 1 })

	patient := make(chan *feed.Page, 1)
	go func() {
		page, _ := s.FetchNext(context.Background())
		patient <- page
	}()

	cancel()
	c.Assert(<-cancelled, qt.ErrorIs, context.Canceled)
	close(release)
	page := <-patient
	c.Assert(page, qt.IsNotNil)
	c.Assert(page.Posts, qt.HasLen, 20)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}
