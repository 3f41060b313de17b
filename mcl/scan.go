package mcl

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// Well-known frame names. Scan frames vary by sensor and come from the
// scan itself; these two are fixed by convention.
const (
	// MapFrame is the global frame the costmap and all estimates live in.
	MapFrame = "map"
	// BaseFrame is the robot body frame particles are expressed against.
	BaseFrame = "base_footprint"
)

// LaserScan is one range-sensor sweep. Readings are ordered; reading j
// was taken at bearing AngleMin + j*AngleIncrement in the sensor frame.
// NaN and Inf entries mark dropped or out-of-range returns and are
// skipped individually by the sensor model.
type LaserScan struct {
	Ranges         []float64 `json:"ranges"`
	AngleMin       float64   `json:"angleMin"`
	AngleIncrement float64   `json:"angleIncrement"`
	Frame          string    `json:"frame"`
	Stamp          time.Time `json:"stamp"`
}

// PointAt converts reading j to sensor-frame Cartesian coordinates.
func (s *LaserScan) PointAt(j int) Transform {
	dist := s.Ranges[j]
	angle := s.AngleMin + float64(j)*s.AngleIncrement
	return Transform{
		Translation: Vec3{X: dist * math.Cos(angle), Y: dist * math.Sin(angle)},
		Rotation:    IdentityQuaternion(),
	}
}

// SimulateScan ray-casts a full sweep from a sensor pose in the map
// frame: beams evenly spaced over 2*pi, each marched half a cell at a
// time until it hits a lethal cell. Beams that reach maxRange without a
// hit come back NaN, like a dropped return on real hardware.
func SimulateScan(costmap CostQuery, sensorPose Transform, beams int, maxRange float64, frame string, stamp time.Time) *LaserScan {
	angleMin := -math.Pi
	angleIncrement := 2 * math.Pi / float64(beams)
	step := costmap.Resolution() / 2

	yaw := sensorPose.Yaw()
	ox := sensorPose.Translation.X
	oy := sensorPose.Translation.Y

	ranges := make([]float64, beams)
	for j := 0; j < beams; j++ {
		angle := yaw + angleMin + float64(j)*angleIncrement
		dx := math.Cos(angle)
		dy := math.Sin(angle)

		ranges[j] = math.NaN()
		for dist := step; dist <= maxRange; dist += step {
			if costmap.CostAt(ox+dist*dx, oy+dist*dy) == LethalObstacle {
				ranges[j] = dist
				break
			}
		}
	}

	return &LaserScan{
		Ranges:         ranges,
		AngleMin:       angleMin,
		AngleIncrement: angleIncrement,
		Frame:          frame,
		Stamp:          stamp,
	}
}

// TransformLookup resolves the rigid transform from a source frame to a
// target frame at a point in time. Implementations wait a bounded time;
// an unavailable transform comes back as an error, never a hang. The
// filter turns that error into a skipped correction cycle.
type TransformLookup interface {
	Lookup(sourceFrame, targetFrame string, stamp time.Time) (Transform, error)
}

// StaticTransformLookup is a map-backed TransformLookup for rigidly
// mounted sensors and for tests.
type StaticTransformLookup struct {
	mu         sync.RWMutex
	transforms map[string]Transform
}

// NewStaticTransformLookup creates an empty lookup.
func NewStaticTransformLookup() *StaticTransformLookup {
	return &StaticTransformLookup{transforms: make(map[string]Transform)}
}

// Set registers the transform from sourceFrame to targetFrame.
func (l *StaticTransformLookup) Set(sourceFrame, targetFrame string, t Transform) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.transforms[sourceFrame+"\x00"+targetFrame] = t
}

// Lookup returns the registered transform, or an error when none exists.
// The stamp is ignored: static transforms are valid at all times.
func (l *StaticTransformLookup) Lookup(sourceFrame, targetFrame string, stamp time.Time) (Transform, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, ok := l.transforms[sourceFrame+"\x00"+targetFrame]
	if !ok {
		return IdentityTransform(), fmt.Errorf("no transform %s -> %s", sourceFrame, targetFrame)
	}
	return t, nil
}
