// Package geo converts recorded vehicle paths to and from simplefeatures
// geometries, so they can be stored as WKT and measured.
package geo

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/bngseg/collector/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"
)

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// ErrTooFewPoints is returned for a non-empty path without two distinct
// horizontal positions, which has no line geometry.
var ErrTooFewPoints = errors.New("path needs at least 2 distinct positions")

// LineString builds a LINESTRING Z from a recorded path. An empty path gives
// an empty line string.
func LineString(points []core.Vec3) (geom.LineString, error) {
	if err := checkDistinct(points); err != nil {
		return geom.LineString{}, err
	}
	flat := make([]float64, 0, len(points)*3)
	for _, p := range points {
		flat = append(flat, p.X, p.Y, p.Z)
	}
	return newLineString(flat)
}

func newLineString(flat []float64) (geom.LineString, error) {
	ls, err := geom.NewLineString(geom.NewSequence(flat, geom.DimXYZ))
	if err != nil {
		return geom.LineString{}, fmt.Errorf("build path: %w", err)
	}
	return ls, nil
}

func checkDistinct(points []core.Vec3) error {
	if len(points) == 0 {
		return nil
	}
	for _, p := range points[1:] {
		if p.X != points[0].X || p.Y != points[0].Y {
			return nil
		}
	}
	return fmt.Errorf("%w: got %d points at one position", ErrTooFewPoints, len(points))
}

// Points returns the vertices of ls. Missing Z values are zero.
func Points(ls geom.LineString) []core.Vec3 {
	seq := ls.Coordinates()
	points := make([]core.Vec3, seq.Length())
	for i := range points {
		c := seq.Get(i)
		points[i] = core.Vec3{X: c.X, Y: c.Y, Z: c.Z}
	}
	return points
}

// WKT returns the path as WKT text.
func WKT(points []core.Vec3) (string, error) {
	ls, err := LineString(points)
	if err != nil {
		return "", err
	}
	return ls.AsText(), nil
}

// ParseWKT reads a path from WKT text. Only LINESTRING geometries are
// accepted.
func ParseWKT(text string) ([]core.Vec3, error) {
	g, err := geom.UnmarshalWKT(strings.TrimSpace(text))
	if err != nil {
		return nil, fmt.Errorf("parse path: %w", err)
	}
	ls, ok := g.AsLineString()
	if !ok {
		return nil, fmt.Errorf("parse path: want LINESTRING, got %s", g.Type())
	}
	return Points(ls), nil
}

// SavePath writes a recorded path to file as WKT.
func SavePath(path string, points []core.Vec3) error {
	text, err := WKT(points)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(text+"\n"), 0644); err != nil {
		return fmt.Errorf("save path: %w", err)
	}
	return nil
}

// LoadPath reads a path written by SavePath.
func LoadPath(path string) ([]core.Vec3, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load path: %w", err)
	}
	return ParseWKT(string(data))
}

// Length returns the 3D length of the path in meters.
func Length(points []core.Vec3) float64 {
	var total float64
	for i := 1; i < len(points); i++ {
		d := core.Vec3{
			X: points[i].X - points[i-1].X,
			Y: points[i].Y - points[i-1].Y,
			Z: points[i].Z - points[i-1].Z,
		}
		total += d.Norm()
	}
	return total
}

// Origin anchors simulator world coordinates to the earth: world (0, 0)
// sits at Lon, Lat and the world X and Y axes point east and north.
type Origin struct {
	Lon float64
	Lat float64
}

// ParseOrigin parses a "long,lat" string.
func ParseOrigin(s string) (Origin, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return Origin{}, ErrInvalidCoordinates
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Origin{}, ErrInvalidCoordinates
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Origin{}, ErrInvalidCoordinates
	}
	if lon < -180 || lon > 180 || lat <= -85 || lat >= 85 {
		return Origin{}, ErrInvalidCoordinates
	}
	return Origin{Lon: lon, Lat: lat}, nil
}

// Georeference places a path on the earth relative to o and returns it as
// a WGS84 (EPSG:4326) LINESTRING Z of long, lat and elevation.
func Georeference(points []core.Vec3, o Origin) (geom.LineString, error) {
	if err := checkDistinct(points); err != nil {
		return geom.LineString{}, err
	}

	epsg := wgs84.EPSG()
	toMercator := epsg.Transform(4326, 3857)
	toLonLat := epsg.Transform(3857, 4326)

	ox, oy, _ := toMercator(o.Lon, o.Lat, 0)
	// web mercator meters are stretched by 1/cos(lat) away from the equator
	scale := 1 / math.Cos(o.Lat*math.Pi/180)

	flat := make([]float64, 0, len(points)*3)
	for _, p := range points {
		lon, lat, _ := toLonLat(ox+p.X*scale, oy+p.Y*scale, 0)
		flat = append(flat, lon, lat, p.Z)
	}
	return newLineString(flat)
}
