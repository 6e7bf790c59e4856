package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/emprius/emprius-social-backend/geo"
)

var (
	// ErrExhausted is returned by FetchNext once the last page has been fetched.
	ErrExhausted = errors.New("feed exhausted")
	// ErrSessionReset is returned to the callers of a fetch that was in flight during a Reset.
	ErrSessionReset = errors.New("feed session reset")
)

// State of a feed Session.
type State int

const (
	// Idle means no page has been requested yet.
	Idle State = iota
	// Fetching means a page request is in flight.
	Fetching
	// HasMore means the last batch was full and another page can be requested.
	HasMore
	// Exhausted means the last batch was not full.
	Exhausted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Fetching:
		return "fetching"
	case HasMore:
		return "hasMore"
	case Exhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Session walks the feed of one viewer and distance filter, page after page.
// Concurrent FetchNext calls for the same cursor share a single backend request, and the
// cursor of a page is always taken from the previous page, so pages are never skipped nor
// requested out of order.
type Session struct {
	resolver *Resolver
	viewer   *geo.Coordinate
	filter   geo.DistanceFilter
	group    singleflight.Group

	mu         sync.Mutex
	state      State
	cursor     string
	generation uint64
	pages      []*Page
	byCursor   map[string]*Page
}

// NewSession creates an idle Session.
func NewSession(resolver *Resolver, viewer *geo.Coordinate, filter geo.DistanceFilter) *Session {
	return &Session{
		resolver: resolver,
		viewer:   viewer,
		filter:   filter,
		byCursor: map[string]*Page{},
	}
}

// FetchNext resolves the page following the last fetched one. A failed fetch leaves the
// session as it was, so the call can be retried.
func (s *Session) FetchNext(ctx context.Context) (*Page, error) {
	s.mu.Lock()
	if s.state == Exhausted {
		s.mu.Unlock()
		return nil, ErrExhausted
	}
	cursor := s.cursor
	gen := s.generation
	s.mu.Unlock()

	ch := s.group.DoChan(fmt.Sprintf("%d/%s", gen, cursor), func() (any, error) {
		return s.fetch(ctx, gen, cursor)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Page), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Session) fetch(ctx context.Context, gen uint64, cursor string) (*Page, error) {
	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		return nil, ErrSessionReset
	}
	// a caller that read the cursor before the previous fetch completed gets that page
	if page, ok := s.byCursor[cursor]; ok {
		s.mu.Unlock()
		return page, nil
	}
	previous := s.state
	s.state = Fetching
	s.mu.Unlock()

	// callers waiting on the same fetch must not fail because the first one gave up
	page, err := s.resolver.Resolve(context.WithoutCancel(ctx), Request{
		Viewer: s.viewer,
		Filter: s.filter,
		Cursor: cursor,
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return nil, ErrSessionReset
	}
	if err != nil {
		s.state = previous
		return nil, err
	}
	s.pages = append(s.pages, page)
	s.byCursor[cursor] = page
	s.cursor = page.NextCursor
	s.state = Exhausted
	if page.HasMore {
		s.state = HasMore
	}
	return page, nil
}

// Reset abandons the session. Pages in flight are discarded when they arrive.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.state = Idle
	s.cursor = ""
	s.pages = nil
	s.byCursor = map[string]*Page{}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Cursor returns the cursor the next page will be requested with.
func (s *Session) Cursor() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// HasMore reports whether another page can be requested: nothing was fetched yet or the last
// unfiltered batch was full.
func (s *Session) HasMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pages) == 0 {
		return true
	}
	return s.pages[len(s.pages)-1].HasMore
}

// Pages returns the fetched pages in order.
func (s *Session) Pages() []*Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Page(nil), s.pages...)
}

// PageAt returns the already fetched page requested with cursor.
func (s *Session) PageAt(cursor string) (*Page, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	page, ok := s.byCursor[cursor]
	return page, ok
}
