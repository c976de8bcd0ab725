package service

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Classify splits a feature collection into point, line and polygon subsets.
// Collections are expanded into one feature per child geometry, each carrying
// a copy of the parent's properties. Unsupported geometry types are dropped.
// The input is never mutated.
func Classify(fc *geojson.FeatureCollection) Classified {
	var c Classified
	if fc == nil {
		return c
	}
	for _, f := range fc.Features {
		if f == nil {
			continue
		}
		classifyGeometry(&c, f, f.Geometry)
	}
	return c
}

func classifyGeometry(c *Classified, parent *geojson.Feature, g orb.Geometry) {
	switch geom := g.(type) {
	case orb.Collection:
		for _, child := range geom {
			classifyGeometry(c, parent, child)
		}
	case orb.Point:
		c.Points = append(c.Points, derive(parent, geom))
	case orb.LineString, orb.MultiLineString:
		c.Lines = append(c.Lines, derive(parent, geom))
	case orb.Polygon, orb.MultiPolygon:
		f := derive(parent, geom)
		c.Lines = append(c.Lines, f)
		c.Polygons = append(c.Polygons, f)
	default:
		c.Dropped++
	}
}

// derive builds a new feature for geometry g with the parent's ID and a
// private copy of its properties.
func derive(parent *geojson.Feature, g orb.Geometry) *geojson.Feature {
	f := geojson.NewFeature(g)
	f.ID = parent.ID
	for k, v := range parent.Properties {
		f.Properties[k] = v
	}
	return f
}
