// Package kml decodes KML, KMZ and GeoJSON overlay files into GeoJSON
// feature collections.
package kml

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Supported file extensions.
const (
	ExtKML     = ".kml"
	ExtKMZ     = ".kmz"
	ExtGeoJSON = ".geojson"
	ExtJSON    = ".json"
)

// DecodeError reports a file that could not be decoded.
type DecodeError struct {
	Name string
	Err  error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("decode %s: %v", e.Name, e.Err) }

func (e *DecodeError) Unwrap() error { return e.Err }

var (
	ErrUnsupported = errors.New("unsupported file type")
	ErrNoKML       = errors.New("kmz archive has no .kml entry")
	ErrBadName     = errors.New("invalid file name")
)

var validName = regexp.MustCompile(`^[\w\-\s.]+$`)

// Ext returns the lowercase extension of name.
func Ext(name string) string { return strings.ToLower(filepath.Ext(name)) }

// Supported reports whether name has a decodable extension.
func Supported(name string) bool {
	switch Ext(name) {
	case ExtKML, ExtKMZ, ExtGeoJSON, ExtJSON:
		return true
	}
	return false
}

// ValidateName checks that an uploaded file name is made of word
// characters, dashes, spaces and dots, and has a supported extension.
func ValidateName(name string) error {
	if !validName.MatchString(name) || strings.Contains(name, "..") {
		return &DecodeError{Name: name, Err: ErrBadName}
	}
	if !Supported(name) {
		return &DecodeError{Name: name, Err: ErrUnsupported}
	}
	return nil
}

// Decode parses data according to the extension of name.
func Decode(name string, data []byte) (*geojson.FeatureCollection, error) {
	var (
		fc  *geojson.FeatureCollection
		err error
	)
	switch Ext(name) {
	case ExtKMZ:
		fc, err = decodeKMZ(data)
	case ExtKML:
		fc, err = decodeKML(bytes.NewReader(data))
	case ExtGeoJSON, ExtJSON:
		fc, err = decodeGeoJSON(data)
	default:
		err = ErrUnsupported
	}
	if err != nil {
		return nil, &DecodeError{Name: name, Err: err}
	}
	return fc, nil
}

func decodeKMZ(data []byte) (*geojson.FeatureCollection, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	for _, f := range zr.File {
		if Ext(f.Name) != ExtKML {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return decodeKML(rc)
	}
	return nil, ErrNoKML
}

func decodeGeoJSON(data []byte) (*geojson.FeatureCollection, error) {
	var doc struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	switch doc.Type {
	case "FeatureCollection":
		return geojson.UnmarshalFeatureCollection(data)
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, err
		}
		fc := geojson.NewFeatureCollection()
		fc.Append(f)
		return fc, nil
	}
	return nil, fmt.Errorf("unexpected geojson type %q", doc.Type)
}

// decodeKML walks the document and converts every Placemark, at any folder
// depth, in document order.
func decodeKML(r io.Reader) (*geojson.FeatureCollection, error) {
	dec := xml.NewDecoder(r)
	fc := geojson.NewFeatureCollection()
	sawRoot := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		sawRoot = true
		if start.Name.Local != "Placemark" {
			continue
		}
		var pm placemark
		if err := dec.DecodeElement(&pm, &start); err != nil {
			return nil, err
		}
		if f := pm.feature(); f != nil {
			fc.Append(f)
		}
	}
	if !sawRoot {
		return nil, errors.New("empty document")
	}
	return fc, nil
}

type placemark struct {
	ID           string       `xml:"id,attr"`
	Name         string       `xml:"name"`
	Description  string       `xml:"description"`
	ExtendedData extendedData `xml:"ExtendedData"`
	Nodes        []node       `xml:",any"`
}

type extendedData struct {
	Data []struct {
		Name  string `xml:"name,attr"`
		Value string `xml:"value"`
	} `xml:"Data"`
	SchemaData []struct {
		SimpleData []struct {
			Name  string `xml:"name,attr"`
			Value string `xml:",chardata"`
		} `xml:"SimpleData"`
	} `xml:"SchemaData"`
}

// node is any element below a Placemark. Geometry elements are recognized
// by local name; everything else is ignored.
type node struct {
	XMLName     xml.Name
	Coordinates string `xml:"coordinates"`
	Outer       []ring `xml:"outerBoundaryIs>LinearRing"`
	Inner       []ring `xml:"innerBoundaryIs>LinearRing"`
	Children    []node `xml:",any"`
}

type ring struct {
	Coordinates string `xml:"coordinates"`
}

func (pm placemark) feature() *geojson.Feature {
	var geom orb.Geometry
	for _, n := range pm.Nodes {
		if g := n.geometry(); g != nil {
			geom = g
			break
		}
	}
	if geom == nil {
		return nil
	}

	f := geojson.NewFeature(geom)
	if pm.ID != "" {
		f.ID = pm.ID
	}
	if name := strings.TrimSpace(pm.Name); name != "" {
		f.Properties["name"] = name
	}
	if desc := strings.TrimSpace(pm.Description); desc != "" {
		f.Properties["description"] = desc
	}
	for _, d := range pm.ExtendedData.Data {
		if d.Name != "" {
			f.Properties[d.Name] = strings.TrimSpace(d.Value)
		}
	}
	for _, sd := range pm.ExtendedData.SchemaData {
		for _, d := range sd.SimpleData {
			if d.Name != "" {
				f.Properties[d.Name] = strings.TrimSpace(d.Value)
			}
		}
	}
	return f
}

func (n node) geometry() orb.Geometry {
	switch n.XMLName.Local {
	case "Point":
		coords := parseCoordinates(n.Coordinates)
		if len(coords) == 0 {
			return nil
		}
		return coords[0]
	case "LineString":
		coords := parseCoordinates(n.Coordinates)
		if len(coords) < 2 {
			return nil
		}
		return orb.LineString(coords)
	case "LinearRing":
		coords := parseCoordinates(n.Coordinates)
		if len(coords) < 2 {
			return nil
		}
		return orb.Polygon{orb.Ring(coords)}
	case "Polygon":
		var poly orb.Polygon
		for _, r := range n.Outer {
			if coords := parseCoordinates(r.Coordinates); len(coords) > 0 {
				poly = append(poly, orb.Ring(coords))
			}
		}
		if len(poly) == 0 {
			return nil
		}
		for _, r := range n.Inner {
			if coords := parseCoordinates(r.Coordinates); len(coords) > 0 {
				poly = append(poly, orb.Ring(coords))
			}
		}
		return poly
	case "MultiGeometry":
		var col orb.Collection
		for _, c := range n.Children {
			if g := c.geometry(); g != nil {
				col = append(col, g)
			}
		}
		if len(col) == 0 {
			return nil
		}
		return col
	}
	return nil
}

// parseCoordinates reads whitespace-separated "lon,lat[,alt]" tuples.
// Malformed tuples are skipped.
func parseCoordinates(s string) []orb.Point {
	fields := strings.Fields(s)
	points := make([]orb.Point, 0, len(fields))
	for _, tuple := range fields {
		parts := strings.Split(tuple, ",")
		if len(parts) < 2 {
			continue
		}
		lon, err1 := strconv.ParseFloat(parts[0], 64)
		lat, err2 := strconv.ParseFloat(parts[1], 64)
		if err1 != nil || err2 != nil {
			continue
		}
		points = append(points, orb.Point{lon, lat})
	}
	return points
}
