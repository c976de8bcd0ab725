package service

import (
	"github.com/golang/geo/s2"
	"github.com/paulmach/orb"
)

// EarthRadius is the mean Earth radius in meters used for distances.
const EarthRadius = 6371000.0

// Distance returns the great-circle distance in meters between two
// [lon, lat] points.
func Distance(a, b orb.Point) float64 {
	la := s2.LatLngFromDegrees(a.Lat(), a.Lon())
	lb := s2.LatLngFromDegrees(b.Lat(), b.Lon())
	return la.Distance(lb).Radians() * EarthRadius
}

// Representative returns the point used to rank a geometry by distance: the
// point itself, or the arithmetic mean of every coordinate pair. ok is false
// for nil or empty geometries.
func Representative(g orb.Geometry) (orb.Point, bool) {
	if p, isPoint := g.(orb.Point); isPoint {
		return p, true
	}
	var sumLon, sumLat float64
	n := 0
	eachPoint(g, func(p orb.Point) {
		sumLon += p.Lon()
		sumLat += p.Lat()
		n++
	})
	if n == 0 {
		return orb.Point{}, false
	}
	return orb.Point{sumLon / float64(n), sumLat / float64(n)}, true
}

func eachPoint(g orb.Geometry, fn func(orb.Point)) {
	switch geom := g.(type) {
	case orb.Point:
		fn(geom)
	case orb.MultiPoint:
		for _, p := range geom {
			fn(p)
		}
	case orb.LineString:
		for _, p := range geom {
			fn(p)
		}
	case orb.Ring:
		for _, p := range geom {
			fn(p)
		}
	case orb.MultiLineString:
		for _, ls := range geom {
			eachPoint(ls, fn)
		}
	case orb.Polygon:
		for _, r := range geom {
			eachPoint(r, fn)
		}
	case orb.MultiPolygon:
		for _, p := range geom {
			eachPoint(p, fn)
		}
	case orb.Collection:
		for _, c := range geom {
			eachPoint(c, fn)
		}
	}
}
