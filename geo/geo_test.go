package geo

import (
	"errors"
	"math"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/google/go-cmp/cmp"
)

var (
	santCeloni = Coordinate{Latitude: 41.688407, Longitude: 2.491027}
	manresa    = Coordinate{Latitude: 41.749846, Longitude: 1.825959}
	moia       = Coordinate{Latitude: 41.809433, Longitude: 2.096000}
)

func TestHaversine(t *testing.T) {
	c := qt.New(t)

	c.Run("zero for the same point", func(c *qt.C) {
		for _, p := range []Coordinate{santCeloni, manresa, {}, {Latitude: -89.9, Longitude: 179.9}} {
			c.Assert(Haversine(p, p), qt.Equals, 0.0)
		}
	})

	c.Run("symmetric", func(c *qt.C) {
		pairs := [][2]Coordinate{
			{santCeloni, manresa},
			{manresa, moia},
			{{Latitude: 0, Longitude: 0}, {Latitude: -33.86, Longitude: 151.2}},
			{{Latitude: 89, Longitude: -179}, {Latitude: -89, Longitude: 179}},
		}
		for _, p := range pairs {
			c.Assert(math.Abs(Haversine(p[0], p[1])-Haversine(p[1], p[0])) < 1e-9, qt.IsTrue)
		}
	})

	c.Run("known distances", func(c *qt.C) {
		d := Haversine(santCeloni, manresa)
		c.Assert(d > 50 && d < 60, qt.IsTrue, qt.Commentf("distance %f", d))
		d = Haversine(manresa, moia)
		c.Assert(d > 20 && d < 30, qt.IsTrue, qt.Commentf("distance %f", d))
		// one degree of latitude on the equator
		d = Haversine(Coordinate{}, Coordinate{Latitude: 1})
		c.Assert(math.Abs(d-111.195) < 0.01, qt.IsTrue, qt.Commentf("distance %f", d))
	})
}

func TestDistanceFilter(t *testing.T) {
	c := qt.New(t)
	viewer := &Coordinate{}

	c.Run("unbounded lets everything through", func(c *qt.C) {
		f := Unbounded()
		c.Assert(f.IsUnbounded(), qt.IsTrue)
		c.Assert(f.Allows(viewer, nil), qt.IsTrue)
		c.Assert(f.Allows(nil, nil), qt.IsTrue)
		c.Assert(f.Allows(viewer, &Coordinate{Latitude: 80}), qt.IsTrue)
		c.Assert(f.String(), qt.Equals, "all")
	})

	c.Run("bounded excludes missing coordinates", func(c *qt.C) {
		for _, km := range []float64{0, 1, 100, 20000} {
			f, err := Within(km)
			c.Assert(err, qt.IsNil)
			c.Assert(f.Allows(viewer, nil), qt.IsFalse)
			c.Assert(f.Allows(nil, viewer), qt.IsFalse)
		}
	})

	c.Run("bounded radius", func(c *qt.C) {
		f, err := Within(100)
		c.Assert(err, qt.IsNil)
		c.Assert(f.Allows(viewer, &Coordinate{Latitude: 0.5}), qt.IsTrue)
		c.Assert(f.Allows(viewer, &Coordinate{Latitude: 0.89}), qt.IsTrue)
		c.Assert(f.Allows(viewer, &Coordinate{Latitude: 1}), qt.IsFalse)
		c.Assert(f.Allows(viewer, viewer), qt.IsTrue)
		c.Assert(f.String(), qt.Equals, "100")
	})

	c.Run("invalid radius", func(c *qt.C) {
		for _, km := range []float64{-1, math.NaN(), math.Inf(1)} {
			_, err := Within(km)
			c.Assert(errors.Is(err, ErrInvalidDistance), qt.IsTrue)
		}
	})
}

func TestParseDistanceFilter(t *testing.T) {
	c := qt.New(t)
	for _, s := range []string{"", "All", "all", "0", " 0 km"} {
		f, err := ParseDistanceFilter(s)
		c.Assert(err, qt.IsNil)
		c.Assert(f.IsUnbounded(), qt.IsTrue, qt.Commentf("input %q", s))
	}
	for s, want := range map[string]float64{"5 km": 5, "10km": 10, "25": 25, "100 KM": 100, "2.5": 2.5} {
		f, err := ParseDistanceFilter(s)
		c.Assert(err, qt.IsNil)
		c.Assert(f.IsUnbounded(), qt.IsFalse)
		c.Assert(f.RadiusKm(), qt.Equals, want)
	}
	for _, s := range []string{"far", "-5 km", "NaN"} {
		_, err := ParseDistanceFilter(s)
		c.Assert(errors.Is(err, ErrInvalidDistance), qt.IsTrue, qt.Commentf("input %q", s))
	}
	for _, s := range DistanceOptions {
		_, err := ParseDistanceFilter(s)
		c.Assert(err, qt.IsNil, qt.Commentf("option %q", s))
	}
}

func TestFilter(t *testing.T) {
	c := qt.New(t)
	type item struct {
		id  int
		loc *Coordinate
	}
	items := []item{
		{1, &Coordinate{Latitude: 0.1}},
		{2, nil},
		{3, &Coordinate{Latitude: 5}},
		{4, &Coordinate{Longitude: -0.2}},
	}
	author := func(i item) *Coordinate { return i.loc }

	f, _ := Within(100)
	got := Filter(items, &Coordinate{}, f, author)
	c.Assert(len(got), qt.Equals, 2)
	c.Assert(got[0].id, qt.Equals, 1)
	c.Assert(got[1].id, qt.Equals, 4)
	// the input is untouched
	c.Assert(len(items), qt.Equals, 4)
	c.Assert(items[1].id, qt.Equals, 2)

	all := Filter(items, &Coordinate{}, Unbounded(), author)
	c.Assert(all, qt.CmpEquals(cmp.AllowUnexported(item{})), items)

	none := Filter(items, nil, f, author)
	c.Assert(none, qt.HasLen, 0)
}

func TestCoordinateValidate(t *testing.T) {
	c := qt.New(t)
	c.Assert(santCeloni.Validate(), qt.IsNil)
	c.Assert(Coordinate{Latitude: -90, Longitude: 180}.Validate(), qt.IsNil)
	c.Assert(Coordinate{Latitude: 90.5, Longitude: 0}.Validate(), qt.ErrorIs, ErrInvalidCoordinate)
	c.Assert(Coordinate{Latitude: 0, Longitude: -181}.Validate(), qt.ErrorIs, ErrInvalidCoordinate)
	c.Assert(Coordinate{Latitude: math.NaN(), Longitude: 0}.Validate(), qt.ErrorIs, ErrInvalidCoordinate)
}
