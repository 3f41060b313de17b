package mcl

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// CloudRenderer renders the costmap with a particle cloud and pose
// estimate overlaid, for the HTTP endpoints and the -output flag.
type CloudRenderer struct {
	Costmap *Costmap
	// CellPixels is how many image pixels one grid cell occupies.
	CellPixels int
	// ShowLegend draws the quality/spread readout in the top-left corner.
	ShowLegend bool
}

// Greyscale used for the map background.
var (
	freeColor    = color.RGBA{255, 255, 255, 255}
	lethalColor  = color.RGBA{40, 40, 40, 255}
	unknownColor = color.RGBA{200, 200, 200, 255}
)

// NewCloudRenderer creates a renderer with default settings.
func NewCloudRenderer(costmap *Costmap) *CloudRenderer {
	return &CloudRenderer{
		Costmap:    costmap,
		CellPixels: 4,
		ShowLegend: true,
	}
}

// worldToPixel converts a world coordinate to image coordinates. Image
// row 0 is the top, so y is flipped.
func (r *CloudRenderer) worldToPixel(x, y float64) (int, int) {
	originX, originY := r.Costmap.Origin()
	_, cellsY := r.Costmap.Size()
	res := r.Costmap.Resolution()

	px := int((x - originX) / res * float64(r.CellPixels))
	py := int(float64(cellsY*r.CellPixels) - (y-originY)/res*float64(r.CellPixels))
	return px, py
}

// Render draws the costmap, the particle cloud, and the estimate into a
// new image. Particles are dots with a heading tick; the estimate is a
// larger circle with a heading line.
func (r *CloudRenderer) Render(particles []Particle, estimate PoseEstimate, name ColorName) *image.RGBA {
	cellsX, cellsY := r.Costmap.Size()
	width := cellsX * r.CellPixels
	height := cellsY * r.CellPixels

	img := image.NewRGBA(image.Rect(0, 0, width, height))

	// Map background.
	for my := 0; my < cellsY; my++ {
		for mx := 0; mx < cellsX; mx++ {
			var c color.RGBA
			switch r.Costmap.CellCost(mx, my) {
			case LethalObstacle:
				c = lethalColor
			case FreeSpace:
				c = freeColor
			default:
				c = unknownColor
			}

			// Cell row 0 is the bottom of the map.
			baseX := mx * r.CellPixels
			baseY := (cellsY - 1 - my) * r.CellPixels
			for dy := 0; dy < r.CellPixels; dy++ {
				for dx := 0; dx < r.CellPixels; dx++ {
					img.Set(baseX+dx, baseY+dy, c)
				}
			}
		}
	}

	particleColor := GetColorAlpha(name, 0.9).RGBA()
	headingLen := particleMarkerScale.X / r.Costmap.Resolution() * float64(r.CellPixels)

	for _, p := range particles {
		px, py := r.worldToPixel(p.Pose.Translation.X, p.Pose.Translation.Y)
		drawDot(img, px, py, 1, particleColor)
		drawHeading(img, px, py, p.Pose.Yaw(), headingLen, particleColor)
	}

	// Estimate on top, black outline for contrast.
	ex, ey := r.worldToPixel(estimate.Pose.Translation.X, estimate.Pose.Translation.Y)
	drawDot(img, ex, ey, 4, color.RGBA{0, 0, 0, 255})
	drawDot(img, ex, ey, 3, particleColor)
	drawHeading(img, ex, ey, estimate.Pose.Yaw(), headingLen*3, color.RGBA{0, 0, 0, 255})

	if r.ShowLegend {
		black := color.RGBA{0, 0, 0, 255}
		drawText(img, 10, 15, fmt.Sprintf("particles: %d", len(particles)), black)
		drawText(img, 10, 30, fmt.Sprintf("estimate: (%.2f, %.2f) yaw %.2f",
			estimate.Pose.Translation.X, estimate.Pose.Translation.Y, estimate.Pose.Yaw()), black)
		drawText(img, 10, 45, fmt.Sprintf("spread: %.3fm / %.3frad",
			estimate.SpreadXY, estimate.SpreadYaw), black)
	}

	return img
}

// SavePNG renders and writes the image to a PNG file.
func (r *CloudRenderer) SavePNG(path string, particles []Particle, estimate PoseEstimate, name ColorName) error {
	img := r.Render(particles, estimate, name)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer f.Close()

	return png.Encode(f, img)
}

// drawDot draws a filled circle
func drawDot(img *image.RGBA, cx, cy, radius int, c color.RGBA) {
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy <= radius*radius {
				x, y := cx+dx, cy+dy
				if x >= 0 && x < img.Bounds().Max.X && y >= 0 && y < img.Bounds().Max.Y {
					img.Set(x, y, c)
				}
			}
		}
	}
}

// drawHeading draws a line from (cx, cy) in the yaw direction. Image y
// grows downward, so the y component is negated.
func drawHeading(img *image.RGBA, cx, cy int, yaw, length float64, c color.RGBA) {
	steps := int(length)
	if steps < 2 {
		steps = 2
	}
	for s := 0; s <= steps; s++ {
		t := float64(s) / float64(steps) * length
		x := cx + int(t*math.Cos(yaw))
		y := cy - int(t*math.Sin(yaw))
		if x >= 0 && x < img.Bounds().Max.X && y >= 0 && y < img.Bounds().Max.Y {
			img.Set(x, y, c)
		}
	}
}

// drawText renders text onto an image at the specified position
func drawText(img *image.RGBA, x, y int, text string, c color.RGBA) {
	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}
