package query

import (
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/emprius/emprius-social-backend/gateway/gatewaytest"
	"github.com/emprius/emprius-social-backend/geo"
)

func TestFeedKeptWhenRegistryRefuses(t *testing.T) {
	c := qt.New(t)
	g, _ := gatewaytest.NewGateway()
	client, err := NewClient(Options{Gateway: g})
	c.Assert(err, qt.IsNil)
	defer client.Close()

	refuse := true
	client.admitFeed = func(k string, fe *feedEntry) bool {
		if refuse {
			return false
		}
		return client.feeds.Set(k, fe, 1)
	}

	s := client.Feed(nil, geo.Unbounded())
	c.Assert(client.Feed(nil, geo.Unbounded()), qt.Equals, s)
	c.Assert(client.unadmitted, qt.HasLen, 1)

	client.invalidate(CreatePost, []Key{NewKey(GetPosts)})
	c.Assert(client.unadmitted[FeedKey(nil, geo.Unbounded()).String()].stale.Load(), qt.IsTrue)

	refuse = false
	c.Assert(client.Feed(nil, geo.Unbounded()), qt.Equals, s)
	c.Assert(client.unadmitted, qt.HasLen, 0)
}
