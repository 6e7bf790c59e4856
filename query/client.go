// Package query caches the results of the read operations of the gateway, deduplicates
// concurrent identical reads and invalidates cached results after mutations, following the
// invalidation Table.
package query

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Yiling-J/theine-go"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/emprius/emprius-social-backend/feed"
	"github.com/emprius/emprius-social-backend/gateway"
)

const (
	// DefaultCacheSize is the maximum number of cached read results.
	DefaultCacheSize = 10000
	// MaxFeedSessions is the maximum number of feed sessions kept.
	MaxFeedSessions = 1000
)

// Status of a cached key.
type Status int

const (
	// Missing means the key is not cached.
	Missing Status = iota
	// Fresh means the cached value is served without a backend request.
	Fresh
	// Stale means the cached value was invalidated and the next read refetches it.
	Stale
)

func (s Status) String() string {
	switch s {
	case Missing:
		return "missing"
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

type entry struct {
	key   Key
	value any
	stale atomic.Bool
}

type feedEntry struct {
	session *feed.Session
	stale   atomic.Bool
}

// Options configure a Client.
type Options struct {
	Gateway     *gateway.Gateway
	Table       Table
	CacheSize   int64
	FeedTimeout time.Duration
}

// Client is the query cache in front of the gateway.
type Client struct {
	gw       *gateway.Gateway
	table    Table
	cache    *theine.Cache[string, *entry]
	group    singleflight.Group
	resolver *feed.Resolver

	// epoch is increased by every invalidation. A fetch that overlaps an invalidation is
	// stored stale, since it may have read the data before the mutation.
	epoch atomic.Uint64

	feedsMu sync.Mutex
	feeds   *theine.Cache[string, *feedEntry]
	// unadmitted holds sessions the registry refused, so their cursor survives until a
	// later admission succeeds.
	unadmitted map[string]*feedEntry
	admitFeed  func(k string, fe *feedEntry) bool
}

// NewClient creates a Client. A nil Table uses DefaultTable.
func NewClient(opts Options) (*Client, error) {
	table := opts.Table
	if table == nil {
		table = DefaultTable()
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	size := opts.CacheSize
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := theine.NewBuilder[string, *entry](size).Build()
	if err != nil {
		return nil, fmt.Errorf("could not create query cache: %w", err)
	}
	feeds, err := theine.NewBuilder[string, *feedEntry](MaxFeedSessions).Build()
	if err != nil {
		cache.Close()
		return nil, fmt.Errorf("could not create feed registry: %w", err)
	}
	c := &Client{
		gw:         opts.Gateway,
		table:      table,
		cache:      cache,
		resolver:   feed.NewResolver(opts.Gateway, opts.FeedTimeout),
		feeds:      feeds,
		unadmitted: make(map[string]*feedEntry),
	}
	c.admitFeed = func(k string, fe *feedEntry) bool {
		return c.feeds.Set(k, fe, 1)
	}
	return c, nil
}

// Gateway returns the gateway behind the client.
func (c *Client) Gateway() *gateway.Gateway {
	return c.gw
}

// Close releases the caches.
func (c *Client) Close() {
	c.cache.Close()
	c.feeds.Close()
}

// Status reports whether key is cached and fresh.
func (c *Client) Status(key Key) Status {
	e, ok := c.cache.Get(key.String())
	if !ok {
		return Missing
	}
	if e.stale.Load() {
		return Stale
	}
	return Fresh
}

// Fetch returns the cached value of key, or runs fn and caches its result. Concurrent Fetch
// calls for the same key share a single fn call. Errors are never cached.
func Fetch[T any](ctx context.Context, c *Client, key Key, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	k := key.String()
	if e, ok := c.cache.Get(k); ok && !e.stale.Load() {
		if v, ok := e.value.(T); ok {
			cacheHitCounter.WithLabelValues(string(key.Op())).Inc()
			return v, nil
		}
	}
	cacheMissCounter.WithLabelValues(string(key.Op())).Inc()

	isUnique := false
	ch := c.group.DoChan(k, func() (any, error) {
		isUnique = true
		epoch := c.epoch.Load()
		// callers sharing this fetch must not fail because the first one gave up
		v, err := fn(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		e := &entry{key: key, value: v}
		if !c.cache.Set(k, e, 1) {
			log.Debug().Str("key", k).Msg("query cache refused entry")
			return v, nil
		}
		if c.epoch.Load() != epoch {
			e.stale.Store(true)
		}
		return v, nil
	})

	select {
	case res := <-ch:
		if !isUnique {
			deduplicatedFetchCounter.Inc()
		}
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Mutate runs fn and, if it succeeds, invalidates the key prefixes that the Table declares for
// the mutation m. A failed mutation leaves the cache untouched.
func Mutate[T any](ctx context.Context, c *Client, m Mutation, params Params, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	prefixes, err := c.table.Prefixes(m, params)
	if errors.Is(err, ErrMissingParam) {
		return zero, fmt.Errorf("%w: %w", gateway.ErrValidation, err)
	}
	if err != nil {
		return zero, err
	}
	v, err := fn(ctx)
	if err != nil {
		return zero, err
	}
	c.invalidate(m, prefixes)
	return v, nil
}

// Invalidate marks stale the cached entries and the feed sessions matching any of prefixes.
func (c *Client) Invalidate(prefixes ...Key) {
	c.invalidate("", prefixes)
}

func (c *Client) invalidate(m Mutation, prefixes []Key) {
	if len(prefixes) == 0 {
		return
	}
	c.epoch.Add(1)
	count := 0
	c.cache.Range(func(_ string, e *entry) bool {
		for _, p := range prefixes {
			if e.key.HasPrefix(p) {
				if !e.stale.Swap(true) {
					count++
				}
				break
			}
		}
		return true
	})

	markFeed := func(k string, fe *feedEntry) bool {
		key := ParseKey(k)
		for _, p := range prefixes {
			if key.HasPrefix(p) {
				fe.stale.Store(true)
				break
			}
		}
		return true
	}
	c.feeds.Range(markFeed)
	c.feedsMu.Lock()
	for k, fe := range c.unadmitted {
		markFeed(k, fe)
	}
	c.feedsMu.Unlock()

	if m != "" {
		invalidatedEntryCounter.WithLabelValues(string(m)).Add(float64(count))
	}
	log.Debug().Str("mutation", string(m)).Int("entries", count).Msg("query cache invalidated")
}
