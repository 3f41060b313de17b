package mcl

import (
	"image/png"
	"io"
	"math"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
)

// VectorCloudRenderer renders the costmap and particle cloud as vector
// graphics. SVG output scales cleanly in dashboards; PNG output goes
// through the same path rasterized.
//
// Canvas coordinates are in millimeters with y up, which matches the
// map frame directly, so world meters are scaled by 1000 and drawn
// without flipping.
type VectorCloudRenderer struct {
	Costmap *Costmap
	// Padding around the map bounds, in meters.
	Padding float64
	// Resolution for PNG output (default: 300 DPI).
	Resolution canvas.Resolution
	// GridSpacing draws dashed grid lines this many meters apart;
	// 0 disables the grid.
	GridSpacing float64
}

// metersToMM scales world meters to canvas millimeters.
const metersToMM = 1000.0

// NewVectorCloudRenderer creates a vector renderer with default settings.
func NewVectorCloudRenderer(costmap *Costmap) *VectorCloudRenderer {
	return &VectorCloudRenderer{
		Costmap:     costmap,
		Padding:     0.5,
		Resolution:  canvas.DPI(300),
		GridSpacing: 1.0,
	}
}

// canvasRenderer is an interface that both svg and rasterizer renderers implement
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

// RenderToSVG writes the cloud as an SVG to the provided writer
func (r *VectorCloudRenderer) RenderToSVG(w io.Writer, particles []Particle, estimate PoseEstimate, name ColorName) error {
	width, height := r.canvasSize()

	svgRenderer := svg.New(w, width, height, nil)
	r.renderToCanvas(svgRenderer, particles, estimate, name, width, height)
	return svgRenderer.Close()
}

// RenderToPNG writes the cloud as a PNG to the provided writer
func (r *VectorCloudRenderer) RenderToPNG(w io.Writer, particles []Particle, estimate PoseEstimate, name ColorName) error {
	width, height := r.canvasSize()

	rast := rasterizer.New(width, height, r.Resolution, canvas.DefaultColorSpace)
	r.renderToCanvas(rast, particles, estimate, name, width, height)

	// Rasterizer implements draw.Image, which embeds image.Image
	return png.Encode(w, rast)
}

// canvasSize returns the canvas dimensions in millimeters.
func (r *VectorCloudRenderer) canvasSize() (width, height float64) {
	cellsX, cellsY := r.Costmap.Size()
	res := r.Costmap.Resolution()
	width = (float64(cellsX)*res + 2*r.Padding) * metersToMM
	height = (float64(cellsY)*res + 2*r.Padding) * metersToMM
	return width, height
}

// toCanvas converts a world coordinate to canvas millimeters.
func (r *VectorCloudRenderer) toCanvas(x, y float64) (float64, float64) {
	originX, originY := r.Costmap.Origin()
	cx := (x - originX + r.Padding) * metersToMM
	cy := (y - originY + r.Padding) * metersToMM
	return cx, cy
}

// renderToCanvas renders the cloud to a canvas renderer (shared logic for SVG and PNG)
func (r *VectorCloudRenderer) renderToCanvas(renderer canvasRenderer, particles []Particle, estimate PoseEstimate, name ColorName, width, height float64) {
	// White background.
	bgStyle := canvas.DefaultStyle
	bgStyle.Fill = canvas.Paint{Color: canvas.White}
	renderer.RenderPath(canvas.Rectangle(width, height), bgStyle, canvas.Identity)

	r.renderCostmap(renderer)
	r.renderGrid(renderer)

	particleColor := GetColorAlpha(name, 0.9).RGBA()
	res := r.Costmap.Resolution()

	// Particle arrows: a stroke from the pose in the heading direction.
	arrowStyle := canvas.DefaultStyle
	arrowStyle.Fill = canvas.Paint{Color: canvas.Transparent}
	arrowStyle.Stroke = canvas.Paint{Color: particleColor}
	arrowStyle.StrokeWidth = particleMarkerScale.Y * metersToMM

	arrowLen := particleMarkerScale.X * metersToMM
	for _, p := range particles {
		cx, cy := r.toCanvas(p.Pose.Translation.X, p.Pose.Translation.Y)
		yaw := p.Pose.Yaw()

		arrow := &canvas.Path{}
		arrow.MoveTo(cx, cy)
		arrow.LineTo(cx+arrowLen*math.Cos(yaw), cy+arrowLen*math.Sin(yaw))
		renderer.RenderPath(arrow, arrowStyle, canvas.Identity)
	}

	// Estimate: filled circle with a longer heading line, on top.
	ex, ey := r.toCanvas(estimate.Pose.Translation.X, estimate.Pose.Translation.Y)

	estStyle := canvas.DefaultStyle
	estStyle.Fill = canvas.Paint{Color: particleColor}
	estStyle.Stroke = canvas.Paint{Color: canvas.Black}
	estStyle.StrokeWidth = 2.0

	estPath := canvas.Circle(res * 2 * metersToMM)
	estPath = estPath.Translate(ex, ey)
	renderer.RenderPath(estPath, estStyle, canvas.Identity)

	headingStyle := canvas.DefaultStyle
	headingStyle.Fill = canvas.Paint{Color: canvas.Transparent}
	headingStyle.Stroke = canvas.Paint{Color: canvas.Black}
	headingStyle.StrokeWidth = 4.0

	yaw := estimate.Pose.Yaw()
	headingLen := arrowLen * 3
	heading := &canvas.Path{}
	heading.MoveTo(ex, ey)
	heading.LineTo(ex+headingLen*math.Cos(yaw), ey+headingLen*math.Sin(yaw))
	renderer.RenderPath(heading, headingStyle, canvas.Identity)

	// Spread ring around the estimate.
	if estimate.SpreadXY > 0 {
		spreadStyle := canvas.DefaultStyle
		spreadStyle.Fill = canvas.Paint{Color: canvas.Transparent}
		spreadStyle.Stroke = canvas.Paint{Color: particleColor}
		spreadStyle.StrokeWidth = 2.0
		spreadStyle.Dashes = []float64{10.0, 10.0}

		ring := canvas.Circle(estimate.SpreadXY * metersToMM)
		ring = ring.Translate(ex, ey)
		renderer.RenderPath(ring, spreadStyle, canvas.Identity)
	}
}

// renderCostmap draws lethal and unknown cells as filled rectangles.
// Free space stays background white.
func (r *VectorCloudRenderer) renderCostmap(renderer canvasRenderer) {
	cellsX, cellsY := r.Costmap.Size()
	originX, originY := r.Costmap.Origin()
	res := r.Costmap.Resolution()
	cellMM := res * metersToMM

	lethalStyle := canvas.DefaultStyle
	lethalStyle.Fill = canvas.Paint{Color: canvas.Black}
	lethalStyle.Stroke = canvas.Paint{Color: canvas.Transparent}

	unknownStyle := canvas.DefaultStyle
	unknownStyle.Fill = canvas.Paint{Color: canvas.Lightgray}
	unknownStyle.Stroke = canvas.Paint{Color: canvas.Transparent}

	for my := 0; my < cellsY; my++ {
		for mx := 0; mx < cellsX; mx++ {
			var style canvas.Style
			switch r.Costmap.CellCost(mx, my) {
			case LethalObstacle:
				style = lethalStyle
			case NoInformation:
				style = unknownStyle
			default:
				continue
			}

			wx := originX + float64(mx)*res
			wy := originY + float64(my)*res
			cx, cy := r.toCanvas(wx, wy)

			cell := canvas.Rectangle(cellMM, cellMM)
			cell = cell.Translate(cx, cy)
			renderer.RenderPath(cell, style, canvas.Identity)
		}
	}
}

// renderGrid draws dashed grid lines every GridSpacing meters.
func (r *VectorCloudRenderer) renderGrid(renderer canvasRenderer) {
	if r.GridSpacing <= 0 {
		return
	}

	cellsX, cellsY := r.Costmap.Size()
	originX, originY := r.Costmap.Origin()
	res := r.Costmap.Resolution()
	maxX := originX + float64(cellsX)*res
	maxY := originY + float64(cellsY)*res

	gridStyle := canvas.DefaultStyle
	gridStyle.Fill = canvas.Paint{Color: canvas.Transparent}
	gridStyle.Stroke = canvas.Paint{Color: canvas.Gray}
	gridStyle.StrokeWidth = 1.0
	gridStyle.Dashes = []float64{10.0, 10.0}

	for x := math.Ceil(originX/r.GridSpacing) * r.GridSpacing; x <= maxX; x += r.GridSpacing {
		x1, y1 := r.toCanvas(x, originY)
		x2, y2 := r.toCanvas(x, maxY)
		gridPath := &canvas.Path{}
		gridPath.MoveTo(x1, y1)
		gridPath.LineTo(x2, y2)
		renderer.RenderPath(gridPath, gridStyle, canvas.Identity)
	}

	for y := math.Ceil(originY/r.GridSpacing) * r.GridSpacing; y <= maxY; y += r.GridSpacing {
		x1, y1 := r.toCanvas(originX, y)
		x2, y2 := r.toCanvas(maxX, y)
		gridPath := &canvas.Path{}
		gridPath.MoveTo(x1, y1)
		gridPath.LineTo(x2, y2)
		renderer.RenderPath(gridPath, gridStyle, canvas.Identity)
	}
}
