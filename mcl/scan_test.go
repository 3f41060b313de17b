package mcl

import (
	"math"
	"testing"
	"time"
)

func TestLaserScan_PointAt(t *testing.T) {
	scan := &LaserScan{
		Ranges:         []float64{1.0, 2.0, 1.5},
		AngleMin:       0,
		AngleIncrement: math.Pi / 2,
	}

	p0 := scan.PointAt(0)
	if !nearlyEqual(p0.Translation.X, 1.0) || !nearlyEqual(p0.Translation.Y, 0) {
		t.Errorf("point 0 = (%g, %g), want (1, 0)", p0.Translation.X, p0.Translation.Y)
	}

	// Second reading is at 90°: straight along +Y.
	p1 := scan.PointAt(1)
	if !nearlyEqual(p1.Translation.X, 0) || !nearlyEqual(p1.Translation.Y, 2.0) {
		t.Errorf("point 1 = (%g, %g), want (0, 2)", p1.Translation.X, p1.Translation.Y)
	}
}

func TestSimulateScan_HitsWalls(t *testing.T) {
	costmap := corridorMap() // wall column at x = 2.0

	scan := SimulateScan(costmap, IdentityTransform(), 360, 8.0, "laser", time.Unix(0, 0))

	if len(scan.Ranges) != 360 {
		t.Fatalf("len(Ranges) = %d, want 360", len(scan.Ranges))
	}
	if scan.Frame != "laser" {
		t.Errorf("Frame = %s, want laser", scan.Frame)
	}

	// The beam pointing straight at the wall: angle 0 means index 180
	// (angleMin is -pi).
	forward := scan.Ranges[180]
	if math.IsNaN(forward) {
		t.Fatal("forward beam missed the wall")
	}
	if math.Abs(forward-2.0) > 0.1 {
		t.Errorf("forward range = %g, want ~2.0", forward)
	}

	// The beam pointing away from the wall exits the map: dropped return.
	if !math.IsNaN(scan.Ranges[0]) {
		t.Errorf("backward range = %g, want NaN", scan.Ranges[0])
	}
}

func TestSimulateScan_RespectsSensorYaw(t *testing.T) {
	costmap := corridorMap()

	// Sensor rotated 180°: now the beam at scan angle pi (index 0 from
	// angleMin=-pi... the world-frame headings shift with the pose).
	pose := FromXYYaw(0, 0, math.Pi)
	scan := SimulateScan(costmap, pose, 360, 8.0, "laser", time.Unix(0, 0))

	// World +X direction is now at scan angle -pi, index 0.
	forward := scan.Ranges[0]
	if math.IsNaN(forward) || math.Abs(forward-2.0) > 0.1 {
		t.Errorf("rotated forward range = %v, want ~2.0", forward)
	}
}

func TestSimulateScan_MaxRange(t *testing.T) {
	costmap := corridorMap()

	// Max range shorter than the wall distance: everything is dropped.
	scan := SimulateScan(costmap, IdentityTransform(), 36, 1.0, "laser", time.Unix(0, 0))

	for j, r := range scan.Ranges {
		if !math.IsNaN(r) {
			t.Errorf("beam %d = %g, want NaN inside an empty 1m radius", j, r)
		}
	}
}

func TestStaticTransformLookup(t *testing.T) {
	l := NewStaticTransformLookup()

	if _, err := l.Lookup("laser", BaseFrame, time.Now()); err == nil {
		t.Error("expected error for unregistered transform")
	}

	mount := FromXYYaw(0.2, 0, math.Pi)
	l.Set("laser", BaseFrame, mount)

	got, err := l.Lookup("laser", BaseFrame, time.Now())
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if !transformsNearlyEqual(got, mount) {
		t.Errorf("Lookup = %+v, want %+v", got, mount)
	}

	// Direction matters: the reverse pair is not registered.
	if _, err := l.Lookup(BaseFrame, "laser", time.Now()); err == nil {
		t.Error("expected error for reversed frame pair")
	}
}

func TestFrameConstants(t *testing.T) {
	if MapFrame != "map" {
		t.Errorf("MapFrame = %s", MapFrame)
	}
	if BaseFrame != "base_footprint" {
		t.Errorf("BaseFrame = %s", BaseFrame)
	}
}
