package mcl

import (
	"encoding/json"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/simplify"
)

// GeometryType represents the GeoJSON geometry type
type GeometryType string

const (
	GeometryPoint           GeometryType = "Point"
	GeometryLineString      GeometryType = "LineString"
	GeometryPolygon         GeometryType = "Polygon"
	GeometryMultiPoint      GeometryType = "MultiPoint"
	GeometryMultiLineString GeometryType = "MultiLineString"
)

// Geometry represents a GeoJSON geometry object
type Geometry struct {
	Type        GeometryType    `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// Feature represents a GeoJSON feature with geometry and properties
type Feature struct {
	Type       string                 `json:"type"`
	Geometry   *Geometry              `json:"geometry"`
	Properties map[string]interface{} `json:"properties"`
	ID         interface{}            `json:"id,omitempty"`
}

// FeatureCollection represents a GeoJSON FeatureCollection
type FeatureCollection struct {
	Type     string     `json:"type"`
	Features []*Feature `json:"features"`
}

// NewFeatureCollection creates a new empty FeatureCollection
func NewFeatureCollection() *FeatureCollection {
	return &FeatureCollection{
		Type:     "FeatureCollection",
		Features: make([]*Feature, 0),
	}
}

// AddFeature appends a feature to the collection
func (fc *FeatureCollection) AddFeature(f *Feature) {
	fc.Features = append(fc.Features, f)
}

// NewFeature creates a Feature with the given geometry and properties
func NewFeature(geom *Geometry, props map[string]interface{}) *Feature {
	if props == nil {
		props = make(map[string]interface{})
	}
	return &Feature{
		Type:       "Feature",
		Geometry:   geom,
		Properties: props,
	}
}

// pointGeometry builds a Point geometry from world coordinates (meters).
func pointGeometry(x, y float64) *Geometry {
	coordsJSON, _ := json.Marshal([2]float64{x, y})
	return &Geometry{Type: GeometryPoint, Coordinates: coordsJSON}
}

// multiPointGeometry builds a MultiPoint geometry from an orb.MultiPoint.
func multiPointGeometry(mp orb.MultiPoint) *Geometry {
	coords := make([][2]float64, len(mp))
	for i, p := range mp {
		coords[i] = [2]float64{p[0], p[1]}
	}
	coordsJSON, _ := json.Marshal(coords)
	return &Geometry{Type: GeometryMultiPoint, Coordinates: coordsJSON}
}

// polygonGeometry builds a Polygon geometry from an orb.Polygon.
func polygonGeometry(poly orb.Polygon) *Geometry {
	rings := make([][][2]float64, len(poly))
	for i, ring := range poly {
		coords := make([][2]float64, len(ring))
		for j, p := range ring {
			coords[j] = [2]float64{p[0], p[1]}
		}
		rings[i] = coords
	}
	coordsJSON, _ := json.Marshal(rings)
	return &Geometry{Type: GeometryPolygon, Coordinates: coordsJSON}
}

// lineStringGeometry builds a LineString geometry from an orb.LineString.
func lineStringGeometry(ls orb.LineString) *Geometry {
	coords := make([][2]float64, len(ls))
	for i, p := range ls {
		coords[i] = [2]float64{p[0], p[1]}
	}
	coordsJSON, _ := json.Marshal(coords)
	return &Geometry{Type: GeometryLineString, Coordinates: coordsJSON}
}

// particleMultiPoint collects particle positions into an orb.MultiPoint.
func particleMultiPoint(particles []Particle) orb.MultiPoint {
	mp := make(orb.MultiPoint, len(particles))
	for i, p := range particles {
		mp[i] = orb.Point{p.Pose.Translation.X, p.Pose.Translation.Y}
	}
	return mp
}

// CloudToFeatureCollection exports one hypothesis as GeoJSON: the
// particle cloud as a MultiPoint, its bounding box as a Polygon with
// area and centroid properties, and the pose estimate as a Point.
// Coordinates are map-frame meters.
func CloudToFeatureCollection(particles []Particle, status HypothesisStatus) *FeatureCollection {
	fc := NewFeatureCollection()

	if len(particles) == 0 {
		return fc
	}

	mp := particleMultiPoint(particles)

	cloud := NewFeature(multiPointGeometry(mp), map[string]interface{}{
		"kind":         "particles",
		"hypothesisId": status.ID,
		"count":        len(particles),
	})
	fc.AddFeature(cloud)

	boundPoly := mp.Bound().ToPolygon()
	centroid, area := planar.CentroidArea(boundPoly)
	bound := NewFeature(polygonGeometry(boundPoly), map[string]interface{}{
		"kind":         "cloudBound",
		"hypothesisId": status.ID,
		"area":         area,
		"centroidX":    centroid[0],
		"centroidY":    centroid[1],
	})
	fc.AddFeature(bound)

	estimate := NewFeature(pointGeometry(
		status.Estimate.Pose.Translation.X,
		status.Estimate.Pose.Translation.Y,
	), map[string]interface{}{
		"kind":         "estimate",
		"hypothesisId": status.ID,
		"yaw":          status.Estimate.Pose.Yaw(),
		"spreadXY":     status.Estimate.SpreadXY,
		"spreadYaw":    status.Estimate.SpreadYaw,
		"quality":      status.Quality,
		"diverged":     status.Diverged,
	})
	fc.AddFeature(estimate)

	return fc
}

// CostmapToFeatures traces lethal cells into row-wise wall segments,
// simplifies them, and returns one LineString feature per segment.
// Diagonal walls come out as staircases of short segments, which is
// acceptable for an overlay layer.
func CostmapToFeatures(costmap *Costmap) []*Feature {
	cellsX, cellsY := costmap.Size()
	originX, originY := costmap.Origin()
	res := costmap.Resolution()

	// Simplify each run with half a cell of tolerance so collinear
	// points collapse but corners survive.
	simplifier := simplify.DouglasPeucker(res / 2)

	var features []*Feature
	for my := 0; my < cellsY; my++ {
		runStart := -1
		for mx := 0; mx <= cellsX; mx++ {
			lethal := mx < cellsX && costmap.CellCost(mx, my) == LethalObstacle
			if lethal && runStart < 0 {
				runStart = mx
			}
			if !lethal && runStart >= 0 {
				y := originY + (float64(my)+0.5)*res
				ls := orb.LineString{
					{originX + float64(runStart)*res, y},
					{originX + float64(mx)*res, y},
				}
				ls = simplifier.Simplify(ls).(orb.LineString)
				features = append(features, NewFeature(lineStringGeometry(ls), map[string]interface{}{
					"kind": "wall",
				}))
				runStart = -1
			}
		}
	}
	return features
}

// ExportGeoJSON serializes one hypothesis plus the costmap walls into a
// single FeatureCollection document.
func ExportGeoJSON(particles []Particle, status HypothesisStatus, costmap *Costmap) ([]byte, error) {
	fc := CloudToFeatureCollection(particles, status)
	if costmap != nil {
		for _, f := range CostmapToFeatures(costmap) {
			fc.AddFeature(f)
		}
	}
	return json.MarshalIndent(fc, "", "  ")
}
