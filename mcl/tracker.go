package mcl

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"
)

// HypothesisStatus is a snapshot of one tracked hypothesis for HTTP
// endpoints and MQTT publishing.
type HypothesisStatus struct {
	ID        int          `json:"id"`
	Estimate  PoseEstimate `json:"estimate"`
	Quality   float64      `json:"quality"`
	Diverged  bool         `json:"diverged"`
	Cycles    int          `json:"cycles"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

// hypothesis is one filter instance plus its bookkeeping.
type hypothesis struct {
	id       int
	filter   *ParticlesDistribution
	quality  float64
	diverged bool
	cycles   int
	updated  time.Time
}

// Tracker maintains a bounded set of localization hypotheses and runs
// them in lockstep: every odometry/scan cycle is applied to all of them,
// and the best-scoring one is the published estimate. It is safe for
// concurrent use; MQTT callbacks feed cycles in while HTTP handlers read
// snapshots out.
type Tracker struct {
	mu        sync.RWMutex
	cfg       TrackerConfig
	filterCfg FilterConfig
	hyps      []*hypothesis
	nextID    int
}

// NewTracker creates a tracker that spawns filters with the given
// tuning. MaxHypotheses of 0 means the default of 4; a ReseedEvery
// below 1 means the default cadence of 5.
func NewTracker(cfg TrackerConfig, filterCfg FilterConfig) *Tracker {
	if cfg.MaxHypotheses == 0 {
		cfg.MaxHypotheses = 4
	}
	if filterCfg.ReseedEvery < 1 {
		filterCfg.ReseedEvery = DefaultFilterConfig().ReseedEvery
	}
	return &Tracker{
		cfg:       cfg,
		filterCfg: filterCfg,
	}
}

// AddHypothesis spawns a new filter initialized around pose and returns
// its id. Adding beyond MaxHypotheses fails; prune first.
func (t *Tracker) AddHypothesis(pose Transform) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.hyps) >= t.cfg.MaxHypotheses {
		return 0, fmt.Errorf("hypothesis limit reached (%d)", t.cfg.MaxHypotheses)
	}

	id := t.nextID
	t.nextID++

	// Each hypothesis gets its own noise stream so one filter's draw
	// order never disturbs another's. With a fixed base seed the streams
	// are still reproducible per hypothesis id.
	seed := t.filterCfg.Seed
	if seed != 0 {
		seed += uint64(id) //nolint:gosec // id is a small non-negative counter
	}

	f := NewParticlesDistribution(t.filterCfg, NewGaussianSource(seed))
	f.Init(pose)

	t.hyps = append(t.hyps, &hypothesis{
		id:      id,
		filter:  f,
		updated: time.Now(),
	})
	return id, nil
}

// RemoveHypothesis drops a hypothesis by id. Unknown ids are ignored.
func (t *Tracker) RemoveHypothesis(id int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, h := range t.hyps {
		if h.id == id {
			t.hyps = append(t.hyps[:i], t.hyps[i+1:]...)
			return
		}
	}
}

// Len returns the number of live hypotheses.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.hyps)
}

// Cycle runs one full filter iteration on every hypothesis: predict with
// the odometry displacement, correct against the scan, reseed every
// ReseedEvery cycles. A nil scan skips correction (odometry-only cycle).
//
// A failed transform lookup is logged and skips correction for that
// hypothesis without touching its weights; the cycle still counts.
func (t *Tracker) Cycle(displacement Transform, scan *LaserScan, costmap CostQuery, lookup TransformLookup) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, h := range t.hyps {
		h.filter.Predict(displacement)

		if scan != nil {
			if err := h.filter.Correct(scan, costmap, lookup); err != nil {
				log.Printf("Warning: hypothesis %d: skipping correction: %v", h.id, err)
			}
		}

		h.quality = h.filter.Quality()
		h.diverged = h.filter.WeightSum() == 0
		h.cycles++
		h.updated = time.Now()

		if h.cycles%t.filterCfg.ReseedEvery == 0 {
			h.filter.Reseed()
		}
	}
}

// Best returns a snapshot of the highest-quality hypothesis, or false
// when none are tracked.
func (t *Tracker) Best() (HypothesisStatus, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var best *hypothesis
	for _, h := range t.hyps {
		if best == nil || h.quality > best.quality {
			best = h
		}
	}
	if best == nil {
		return HypothesisStatus{}, false
	}
	return statusOf(best), true
}

// Statuses returns snapshots of all hypotheses, best first.
func (t *Tracker) Statuses() []HypothesisStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]HypothesisStatus, 0, len(t.hyps))
	for _, h := range t.hyps {
		out = append(out, statusOf(h))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Quality > out[j].Quality
	})
	return out
}

// BestParticles returns a copy of the best hypothesis's population, for
// rendering and export. Empty when nothing is tracked.
func (t *Tracker) BestParticles() []Particle {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var best *hypothesis
	for _, h := range t.hyps {
		if best == nil || h.quality > best.quality {
			best = h
		}
	}
	if best == nil {
		return nil
	}
	return best.filter.Particles()
}

// Prune drops every hypothesis whose quality is below minQuality, always
// keeping at least the best one so the tracker never empties itself.
func (t *Tracker) Prune(minQuality float64) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.hyps) <= 1 {
		return 0
	}

	var best *hypothesis
	for _, h := range t.hyps {
		if best == nil || h.quality > best.quality {
			best = h
		}
	}

	kept := t.hyps[:0]
	removed := 0
	for _, h := range t.hyps {
		if h == best || h.quality >= minQuality {
			kept = append(kept, h)
		} else {
			removed++
		}
	}
	t.hyps = kept
	return removed
}

func statusOf(h *hypothesis) HypothesisStatus {
	return HypothesisStatus{
		ID:        h.id,
		Estimate:  h.filter.Estimate(),
		Quality:   h.quality,
		Diverged:  h.diverged,
		Cycles:    h.cycles,
		UpdatedAt: h.updated,
	}
}
