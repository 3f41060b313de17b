package mcl

import (
	"testing"
	"time"
)

func trackerFixture(particles int, seed uint64) (*Tracker, *Costmap, *StaticTransformLookup) {
	cfg := DefaultFilterConfig()
	cfg.Particles = particles
	cfg.Seed = seed

	return NewTracker(TrackerConfig{MaxHypotheses: 3}, cfg), corridorMap(), identityLookup()
}

func TestTracker_AddRemove(t *testing.T) {
	tracker, _, _ := trackerFixture(10, 1)

	id0, err := tracker.AddHypothesis(IdentityTransform())
	if err != nil {
		t.Fatalf("AddHypothesis failed: %v", err)
	}
	id1, err := tracker.AddHypothesis(FromXYYaw(1, 0, 0))
	if err != nil {
		t.Fatalf("AddHypothesis failed: %v", err)
	}
	if id0 == id1 {
		t.Errorf("ids not unique: %d == %d", id0, id1)
	}
	if tracker.Len() != 2 {
		t.Errorf("Len = %d, want 2", tracker.Len())
	}

	tracker.RemoveHypothesis(id0)
	if tracker.Len() != 1 {
		t.Errorf("Len = %d after remove, want 1", tracker.Len())
	}

	// Unknown ids are ignored.
	tracker.RemoveHypothesis(999)
	if tracker.Len() != 1 {
		t.Errorf("Len = %d after bogus remove, want 1", tracker.Len())
	}
}

func TestTracker_Limit(t *testing.T) {
	tracker, _, _ := trackerFixture(10, 1)

	for i := 0; i < 3; i++ {
		if _, err := tracker.AddHypothesis(IdentityTransform()); err != nil {
			t.Fatalf("AddHypothesis %d failed: %v", i, err)
		}
	}

	if _, err := tracker.AddHypothesis(IdentityTransform()); err == nil {
		t.Error("expected error beyond MaxHypotheses")
	}
}

func TestTracker_DefaultLimit(t *testing.T) {
	tracker := NewTracker(TrackerConfig{}, DefaultFilterConfig())

	for i := 0; i < 4; i++ {
		if _, err := tracker.AddHypothesis(IdentityTransform()); err != nil {
			t.Fatalf("AddHypothesis %d failed: %v", i, err)
		}
	}
	if _, err := tracker.AddHypothesis(IdentityTransform()); err == nil {
		t.Error("expected default limit of 4")
	}
}

func TestTracker_Cycle(t *testing.T) {
	tracker, costmap, lookup := trackerFixture(20, 3)
	if _, err := tracker.AddHypothesis(IdentityTransform()); err != nil {
		t.Fatalf("AddHypothesis failed: %v", err)
	}

	scan := singleReadingScan(2.0)
	tracker.Cycle(FromXYYaw(0, 0, 0), scan, costmap, lookup)

	best, ok := tracker.Best()
	if !ok {
		t.Fatal("expected a hypothesis")
	}
	if best.Cycles != 1 {
		t.Errorf("Cycles = %d, want 1", best.Cycles)
	}
	if best.Quality <= 0 {
		t.Errorf("Quality = %g, want positive after a matching scan", best.Quality)
	}
	if best.Diverged {
		t.Error("hypothesis diverged on a matching scan")
	}
}

func TestTracker_CycleNilScanSkipsCorrection(t *testing.T) {
	tracker, costmap, lookup := trackerFixture(20, 3)
	if _, err := tracker.AddHypothesis(IdentityTransform()); err != nil {
		t.Fatalf("AddHypothesis failed: %v", err)
	}

	tracker.Cycle(FromXYYaw(0.1, 0, 0), nil, costmap, lookup)

	best, _ := tracker.Best()
	if best.Cycles != 1 {
		t.Errorf("Cycles = %d, want 1 (odometry-only cycles still count)", best.Cycles)
	}
}

func TestTracker_CycleMissingTransform(t *testing.T) {
	tracker, costmap, _ := trackerFixture(20, 3)
	if _, err := tracker.AddHypothesis(IdentityTransform()); err != nil {
		t.Fatalf("AddHypothesis failed: %v", err)
	}

	// Empty lookup: correction is skipped with a warning, the cycle still
	// advances.
	tracker.Cycle(IdentityTransform(), singleReadingScan(2.0), costmap, NewStaticTransformLookup())

	best, _ := tracker.Best()
	if best.Cycles != 1 {
		t.Errorf("Cycles = %d, want 1", best.Cycles)
	}
}

func TestTracker_ReseedCadence(t *testing.T) {
	cfg := DefaultFilterConfig()
	cfg.Particles = 20
	cfg.Seed = 5
	cfg.ReseedEvery = 3

	tracker := NewTracker(TrackerConfig{}, cfg)
	if _, err := tracker.AddHypothesis(IdentityTransform()); err != nil {
		t.Fatalf("AddHypothesis failed: %v", err)
	}

	costmap := corridorMap()
	lookup := identityLookup()

	for i := 0; i < 7; i++ {
		tracker.Cycle(IdentityTransform(), singleReadingScan(2.0), costmap, lookup)
	}

	// Reseed normalizes: right after a reseed cycle the weight mass is
	// bounded, between reseeds the additive correction grows it. Either
	// way the population size never changes.
	if got := len(tracker.BestParticles()); got != 20 {
		t.Errorf("population = %d, want 20 after reseeds", got)
	}
}

func TestTracker_ZeroValueConfigCycles(t *testing.T) {
	// A config that never went through ApplyDefaults still has to cycle;
	// ReseedEvery falls back to the stock cadence instead of dividing by
	// zero.
	tracker := NewTracker(TrackerConfig{}, FilterConfig{Particles: 10})
	if _, err := tracker.AddHypothesis(IdentityTransform()); err != nil {
		t.Fatalf("AddHypothesis failed: %v", err)
	}

	for i := 0; i < 6; i++ {
		tracker.Cycle(IdentityTransform(), nil, nil, nil)
	}

	best, ok := tracker.Best()
	if !ok {
		t.Fatal("expected a hypothesis")
	}
	if best.Cycles != 6 {
		t.Errorf("Cycles = %d, want 6", best.Cycles)
	}
}

func TestTracker_BestPicksHighestQuality(t *testing.T) {
	tracker, costmap, lookup := trackerFixture(20, 9)

	// One hypothesis at the true pose, one far off the map features.
	goodID, _ := tracker.AddHypothesis(IdentityTransform())
	if _, err := tracker.AddHypothesis(FromXYYaw(-2.0, -2.0, 3.0)); err != nil {
		t.Fatalf("AddHypothesis failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		tracker.Cycle(IdentityTransform(), singleReadingScan(2.0), costmap, lookup)
	}

	best, ok := tracker.Best()
	if !ok {
		t.Fatal("expected a best hypothesis")
	}
	if best.ID != goodID {
		t.Errorf("best = %d, want %d (the one matching the map)", best.ID, goodID)
	}

	statuses := tracker.Statuses()
	if len(statuses) != 2 {
		t.Fatalf("len(statuses) = %d, want 2", len(statuses))
	}
	if statuses[0].Quality < statuses[1].Quality {
		t.Error("statuses not sorted best first")
	}
}

func TestTracker_BestEmpty(t *testing.T) {
	tracker := NewTracker(TrackerConfig{}, DefaultFilterConfig())

	if _, ok := tracker.Best(); ok {
		t.Error("Best on an empty tracker should report false")
	}
	if particles := tracker.BestParticles(); particles != nil {
		t.Errorf("BestParticles = %v, want nil", particles)
	}
}

func TestTracker_PruneKeepsBest(t *testing.T) {
	tracker, costmap, lookup := trackerFixture(20, 9)

	goodID, _ := tracker.AddHypothesis(IdentityTransform())
	tracker.AddHypothesis(FromXYYaw(-2.0, -2.0, 3.0))
	tracker.AddHypothesis(FromXYYaw(-2.0, 2.0, 1.5))

	for i := 0; i < 2; i++ {
		tracker.Cycle(IdentityTransform(), singleReadingScan(2.0), costmap, lookup)
	}

	best, _ := tracker.Best()
	removed := tracker.Prune(best.Quality * 0.5)

	if tracker.Len() < 1 {
		t.Fatal("prune emptied the tracker")
	}
	if removed != 3-tracker.Len() {
		t.Errorf("removed = %d, Len = %d", removed, tracker.Len())
	}
	kept, _ := tracker.Best()
	if kept.ID != goodID {
		t.Errorf("prune dropped the best hypothesis %d", goodID)
	}
}

func TestTracker_ReproducibleWithSeed(t *testing.T) {
	run := func() PoseEstimate {
		tracker, costmap, lookup := trackerFixture(30, 21)
		if _, err := tracker.AddHypothesis(IdentityTransform()); err != nil {
			t.Fatalf("AddHypothesis failed: %v", err)
		}
		for i := 0; i < 5; i++ {
			tracker.Cycle(FromXYYaw(0.05, 0, 0), singleReadingScan(2.0), costmap, lookup)
		}
		best, _ := tracker.Best()
		return best.Estimate
	}

	a := run()
	b := run()

	if a.Pose.Translation.X != b.Pose.Translation.X || a.SpreadXY != b.SpreadXY {
		t.Errorf("seeded runs diverged: %+v vs %+v", a, b)
	}
}

func TestTracker_UpdatedAtAdvances(t *testing.T) {
	tracker, costmap, lookup := trackerFixture(10, 2)
	if _, err := tracker.AddHypothesis(IdentityTransform()); err != nil {
		t.Fatalf("AddHypothesis failed: %v", err)
	}

	before, _ := tracker.Best()
	time.Sleep(time.Millisecond)
	tracker.Cycle(IdentityTransform(), nil, costmap, lookup)
	after, _ := tracker.Best()

	if !after.UpdatedAt.After(before.UpdatedAt) {
		t.Error("UpdatedAt did not advance after a cycle")
	}
}
