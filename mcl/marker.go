package mcl

import (
	"image/color"
	"time"
)

// ColorName selects one of the fixed palette entries used to tell
// hypotheses apart in visualizations.
type ColorName int

const (
	Red ColorName = iota
	Green
	Blue
	White
	Grey
	DarkGrey
	Black
	Yellow
	Orange
	Brown
	Pink
	LimeGreen
	Purple
	Cyan
	Magenta
)

// Color is an RGBA color with float channels in [0, 1], the convention
// marker consumers expect.
type Color struct {
	R float64 `json:"r"`
	G float64 `json:"g"`
	B float64 `json:"b"`
	A float64 `json:"a"`
}

// RGBA converts to an 8-bit premultiplied-free color for the raster
// and vector renderers.
func (c Color) RGBA() color.RGBA {
	return color.RGBA{
		R: uint8(c.R * 255),
		G: uint8(c.G * 255),
		B: uint8(c.B * 255),
		A: uint8(c.A * 255),
	}
}

// GetColor returns the palette entry at full opacity.
func GetColor(name ColorName) Color {
	return GetColorAlpha(name, 1.0)
}

// GetColorAlpha returns the palette entry with the given opacity.
// Unknown names come back white.
func GetColorAlpha(name ColorName, alpha float64) Color {
	c := Color{R: 1, G: 1, B: 1, A: alpha}
	switch name {
	case Red:
		c.R, c.G, c.B = 0.8, 0.1, 0.1
	case Green:
		c.R, c.G, c.B = 0.1, 0.8, 0.1
	case Blue:
		c.R, c.G, c.B = 0.1, 0.1, 0.8
	case White:
		c.R, c.G, c.B = 1.0, 1.0, 1.0
	case Grey:
		c.R, c.G, c.B = 0.9, 0.9, 0.9
	case DarkGrey:
		c.R, c.G, c.B = 0.6, 0.6, 0.6
	case Black:
		c.R, c.G, c.B = 0.0, 0.0, 0.0
	case Yellow:
		c.R, c.G, c.B = 1.0, 1.0, 0.0
	case Orange:
		c.R, c.G, c.B = 1.0, 0.5, 0.0
	case Brown:
		c.R, c.G, c.B = 0.597, 0.296, 0.0
	case Pink:
		c.R, c.G, c.B = 1.0, 0.4, 1.0
	case LimeGreen:
		c.R, c.G, c.B = 0.6, 1.0, 0.2
	case Purple:
		c.R, c.G, c.B = 0.597, 0.0, 0.597
	case Cyan:
		c.R, c.G, c.B = 0.0, 1.0, 1.0
	case Magenta:
		c.R, c.G, c.B = 1.0, 0.0, 1.0
	}
	return c
}

// HypothesisColor maps a hypothesis id onto the palette, cycling through
// the saturated entries so adjacent ids contrast.
func HypothesisColor(id int) ColorName {
	palette := []ColorName{Red, Green, Blue, Yellow, Orange, Purple, Cyan, Magenta}
	return palette[id%len(palette)]
}

// Marker is one arrow in a particle-cloud visualization: the particle's
// pose in the map frame plus display attributes.
type Marker struct {
	ID    int       `json:"id"`
	Frame string    `json:"frame"`
	Stamp time.Time `json:"stamp"`
	Pose  Transform `json:"pose"`
	Scale Vec3      `json:"scale"`
	Color Color     `json:"color"`
}

// particleMarkerScale is the arrow geometry for one particle: 10cm long,
// 1cm wide and tall.
var particleMarkerScale = Vec3{X: 0.1, Y: 0.01, Z: 0.01}

// BuildParticleMarkers converts a particle population into one arrow
// marker per particle, all in the same color. Marker ids are the
// particle indices.
func BuildParticleMarkers(particles []Particle, name ColorName, stamp time.Time) []Marker {
	c := GetColor(name)
	markers := make([]Marker, len(particles))
	for i, p := range particles {
		markers[i] = Marker{
			ID:    i,
			Frame: MapFrame,
			Stamp: stamp,
			Pose:  p.Pose,
			Scale: particleMarkerScale,
			Color: c,
		}
	}
	return markers
}
