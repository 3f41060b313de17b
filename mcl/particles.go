package mcl

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// invSqrt2Pi is 1/sqrt(2*pi), the Gaussian normalization constant.
const invSqrt2Pi = 0.3989422804014327

// minWeight is the floor applied to particle weights during correction
// so no hypothesis is ever driven to exactly zero by a single scan.
const minWeight = 1e-6

// Particle is one pose hypothesis with its unnormalized weight.
type Particle struct {
	Pose   Transform `json:"pose"`
	Weight float64   `json:"weight"`
}

// ParticlesDistribution is a single-hypothesis Monte Carlo localization
// filter: a fixed-size population of weighted pose particles advanced by
// a noisy motion model, re-weighted against laser scans with a
// likelihood-field search over a costmap, and periodically resampled.
//
// All methods mutate the distribution in place and none of them are safe
// for concurrent use; the driving loop invokes them sequentially once per
// odometry/sensor cycle.
type ParticlesDistribution struct {
	cfg       FilterConfig
	noise     NoiseSource
	particles []Particle
}

// NewParticlesDistribution creates a filter with the given tuning and
// noise source. Call Init before the first cycle.
func NewParticlesDistribution(cfg FilterConfig, noise NoiseSource) *ParticlesDistribution {
	return &ParticlesDistribution{
		cfg:   cfg,
		noise: noise,
	}
}

// Init replaces the population with cfg.Particles particles scattered
// around pose with the init-noise sigmas, at uniform weight 1/N.
func (d *ParticlesDistribution) Init(pose Transform) {
	n := d.cfg.Particles
	d.particles = make([]Particle, n)

	for i := range d.particles {
		p := &d.particles[i]
		p.Weight = 1.0 / float64(n)

		t := pose.Translation
		t.X = d.noise.Normal(t.X, d.cfg.InitNoise.X)
		t.Y = d.noise.Normal(t.Y, d.cfg.InitNoise.Y)

		roll, pitch, yaw := pose.RPY()
		yaw = d.noise.Normal(yaw, d.cfg.InitNoise.Yaw)

		p.Pose = Transform{
			Translation: t,
			Rotation:    QuaternionFromRPY(roll, pitch, yaw),
		}
	}

	d.Normalize()
}

// Predict advances every particle by the odometry displacement plus
// proportional noise. Particles are independent; there is no coupling
// between them.
func (d *ParticlesDistribution) Predict(displacement Transform) {
	for i := range d.particles {
		d.particles[i].Pose = d.particles[i].Pose.
			Compose(displacement).
			Compose(d.motionNoise(displacement))
	}
}

// motionNoise builds a small perturbation transform whose magnitude
// scales with the displacement itself: a robot that did not move gets no
// noise, a long step gets proportionally more. One translation draw and
// one rotation draw per call.
func (d *ParticlesDistribution) motionNoise(dm Transform) Transform {
	noiseTra := d.noise.Normal(0, d.cfg.MotionNoise)
	noiseRot := d.noise.Normal(0, d.cfg.MotionNoise)

	roll, pitch, yaw := dm.RPY()

	return Transform{
		Translation: Vec3{
			X: dm.Translation.X * noiseTra,
			Y: dm.Translation.Y * noiseTra,
			Z: 0,
		},
		Rotation: QuaternionFromRPY(roll, pitch, yaw*noiseRot),
	}
}

// Correct re-weights every particle against one laser scan using a
// likelihood-field search over the costmap. The base←sensor transform is
// resolved through lookup at the scan timestamp; when that fails the
// whole call is a no-op (weights untouched) and the error is returned
// for the caller to log as a warning.
//
// Weights are accumulated additively across readings and never
// normalized here; readings that are NaN or Inf are skipped one by one.
func (d *ParticlesDistribution) Correct(scan *LaserScan, costmap CostQuery, lookup TransformLookup) error {
	baseToSensor, err := lookup.Lookup(scan.Frame, BaseFrame, scan.Stamp)
	if err != nil {
		return err
	}

	o := d.cfg.ObservationSigma
	normalComp1 := invSqrt2Pi / o

	for j := range scan.Ranges {
		if math.IsNaN(scan.Ranges[j]) || math.IsInf(scan.Ranges[j], 0) {
			continue
		}

		sensorToPoint := scan.PointAt(j)

		for i := range d.particles {
			p := &d.particles[i]

			dist := d.errorDistanceToObstacle(p.Pose, baseToSensor, sensorToPoint, costmap)
			if math.IsInf(dist, 0) {
				continue
			}

			a := dist / o
			prob := normalComp1 * math.Exp(-0.5*a*a)
			p.Weight = math.Max(p.Weight+prob, minWeight)
		}
	}

	return nil
}

// errorDistanceToObstacle projects one scan reading through a particle's
// pose into the map frame and returns the distance from the projected
// point to the nearest lethal cell along the sightline. The search
// marches outward in both directions simultaneously, one grid cell per
// step, out to rangeBoundMultiplier*sigma; finding nothing returns +Inf.
func (d *ParticlesDistribution) errorDistanceToObstacle(
	mapToBase, baseToSensor, sensorToPoint Transform, costmap CostQuery,
) float64 {
	if math.IsInf(sensorToPoint.Translation.X, 0) || math.IsNaN(sensorToPoint.Translation.X) {
		return math.Inf(1)
	}

	mapToSensor := mapToBase.Compose(baseToSensor)
	mapToPoint := mapToSensor.Compose(sensorToPoint)

	if costAt(costmap, mapToPoint) == LethalObstacle {
		return 0
	}

	length := sensorToPoint.Translation.Length()
	if length == 0 {
		return math.Inf(1)
	}
	unit := sensorToPoint.Translation.Scale(1 / length)

	bound := d.cfg.RangeBoundMultiplier * d.cfg.ObservationSigma
	step := costmap.Resolution()

	for dist := step; dist < bound; dist += step {
		offset := Transform{
			Translation: unit.Scale(dist),
			Rotation:    IdentityQuaternion(),
		}
		if costAt(costmap, mapToPoint.Compose(offset)) == LethalObstacle {
			return dist
		}

		offset.Translation = offset.Translation.Scale(-1)
		if costAt(costmap, mapToPoint.Compose(offset)) == LethalObstacle {
			return dist
		}
	}

	return math.Inf(1)
}

// costAt classifies the cell under a map-frame transform's translation.
func costAt(costmap CostQuery, t Transform) Cost {
	return costmap.CostAt(t.Translation.X, t.Translation.Y)
}

// Reseed concentrates belief on the strongest hypotheses and re-injects
// diversity. The top survivorFraction of particles (by weight) survive
// untouched as a prefix; every remaining slot is refilled with a
// jittered clone at half the last survivor's weight.
//
// A selector value is drawn from N(0, winnerCount) and clamped for each
// replacement but the clone source is positional (the i-th particle of
// the sorted set), matching long-observed behavior of this filter.
func (d *ParticlesDistribution) Reseed() {
	d.Normalize()

	sort.Slice(d.particles, func(i, j int) bool {
		return d.particles[i].Weight > d.particles[j].Weight
	})

	n := len(d.particles)
	survivorCount := int(float64(n) * d.cfg.SurvivorFraction)
	loserCount := n - survivorCount
	winnerCount := int(float64(n) * d.cfg.WinnerFraction)

	if survivorCount == 0 {
		return
	}

	newParticles := make([]Particle, 0, n)
	newParticles = append(newParticles, d.particles[:survivorCount]...)
	lastSurvivor := newParticles[survivorCount-1]

	for i := 0; i < loserCount; i++ {
		selector := int(d.noise.Normal(0, float64(winnerCount)))
		if selector < 0 {
			selector = 0
		} else if selector > winnerCount {
			selector = winnerCount
		}
		_ = selector // drawn, clamped, and deliberately not used as an index

		src := d.particles[i]

		var p Particle
		p.Weight = lastSurvivor.Weight / 2

		t := src.Pose.Translation
		t.X += d.noise.Normal(0, d.cfg.ReseedNoise.X)
		t.Y += d.noise.Normal(0, d.cfg.ReseedNoise.Y)

		roll, pitch, yaw := src.Pose.RPY()
		yaw = d.noise.Normal(yaw, d.cfg.ReseedNoise.Yaw)

		p.Pose = Transform{
			Translation: t,
			Rotation:    QuaternionFromRPY(roll, pitch, yaw),
		}

		newParticles = append(newParticles, p)
	}

	d.particles = newParticles
}

// Normalize rescales weights to sum to 1. A fully degenerate population
// (zero sum) is left unchanged; that is the caller-visible signal of
// filter divergence, and this core never reinitializes itself.
func (d *ParticlesDistribution) Normalize() {
	sum := d.WeightSum()
	if sum == 0 {
		return
	}
	for i := range d.particles {
		d.particles[i].Weight /= sum
	}
}

// WeightSum returns the current (possibly unnormalized) weight mass.
func (d *ParticlesDistribution) WeightSum() float64 {
	sum := 0.0
	for i := range d.particles {
		sum += d.particles[i].Weight
	}
	return sum
}

// Len returns the population size.
func (d *ParticlesDistribution) Len() int {
	return len(d.particles)
}

// Particles returns a copy of the population for export. Mutating the
// returned slice does not affect the filter.
func (d *ParticlesDistribution) Particles() []Particle {
	out := make([]Particle, len(d.particles))
	copy(out, d.particles)
	return out
}

// PoseEstimate summarizes the population for the hypothesis-selection
// layer: a weighted mean pose and the translational/heading spread.
type PoseEstimate struct {
	Pose      Transform `json:"pose"`
	SpreadXY  float64   `json:"spreadXY"`
	SpreadYaw float64   `json:"spreadYaw"`
}

// Estimate returns the weighted mean pose of the population and its
// spread. Heading is averaged through the unit circle so poses across
// the ±pi wrap do not cancel.
func (d *ParticlesDistribution) Estimate() PoseEstimate {
	n := len(d.particles)
	if n == 0 {
		return PoseEstimate{Pose: IdentityTransform()}
	}

	xs := make([]float64, n)
	ys := make([]float64, n)
	ws := make([]float64, n)
	sinSum, cosSum := 0.0, 0.0
	yaws := make([]float64, n)

	for i, p := range d.particles {
		xs[i] = p.Pose.Translation.X
		ys[i] = p.Pose.Translation.Y
		ws[i] = p.Weight
		yaw := p.Pose.Yaw()
		yaws[i] = yaw
		sinSum += p.Weight * math.Sin(yaw)
		cosSum += p.Weight * math.Cos(yaw)
	}

	// Degenerate weights: fall back to an unweighted mean so the
	// estimate stays finite while the caller decides what to do.
	if d.WeightSum() == 0 {
		for i := range ws {
			ws[i] = 1
		}
		sinSum, cosSum = 0, 0
		for i := range yaws {
			sinSum += math.Sin(yaws[i])
			cosSum += math.Cos(yaws[i])
		}
	}

	// gonum's weighted variance divides by (sum(w) - 1), so weights are
	// rescaled to sum to n to keep the estimator finite for normalized
	// populations.
	var wSum float64
	for _, w := range ws {
		wSum += w
	}
	scale := float64(n) / wSum
	for i := range ws {
		ws[i] *= scale
	}

	meanX := stat.Mean(xs, ws)
	meanY := stat.Mean(ys, ws)
	meanYaw := math.Atan2(sinSum, cosSum)

	var stdX, stdY float64
	if n > 1 {
		stdX = stat.StdDev(xs, ws)
		stdY = stat.StdDev(ys, ws)
	}

	spreadYaw := 0.0
	for i, yaw := range yaws {
		diff := math.Atan2(math.Sin(yaw-meanYaw), math.Cos(yaw-meanYaw))
		spreadYaw += ws[i] * diff * diff
	}
	spreadYaw = math.Sqrt(spreadYaw / float64(n))

	return PoseEstimate{
		Pose:      FromXYYaw(meanX, meanY, meanYaw),
		SpreadXY:  math.Hypot(stdX, stdY),
		SpreadYaw: spreadYaw,
	}
}

// Quality scores the hypothesis for arbitration: the mean particle
// weight, taken before normalization so scans that matched the map well
// show up as mass.
func (d *ParticlesDistribution) Quality() float64 {
	if len(d.particles) == 0 {
		return 0
	}
	return d.WeightSum() / float64(len(d.particles))
}
