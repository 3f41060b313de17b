package mcl

import (
	"fmt"
	"image"
	_ "image/png"
	"os"
)

// Cost classifies one occupancy-grid cell. The values follow the usual
// costmap convention so grids exported by navigation stacks map over
// directly.
type Cost uint8

const (
	// FreeSpace is a cell known to be traversable.
	FreeSpace Cost = 0
	// LethalObstacle is a cell guaranteed to be occupied.
	LethalObstacle Cost = 254
	// NoInformation marks unknown cells and any out-of-bounds query.
	NoInformation Cost = 255
)

// CostQuery is what the sensor model needs from a map: a cell
// classification for a world coordinate and the grid resolution, which
// doubles as the ray-march step size.
type CostQuery interface {
	// CostAt classifies the cell under the world coordinate (x, y).
	// Coordinates outside the grid return NoInformation.
	CostAt(x, y float64) Cost
	// Resolution returns the cell edge length in meters.
	Resolution() float64
}

// Costmap is a dense occupancy grid with a world-frame origin at its
// lower-left corner.
type Costmap struct {
	width, height int
	resolution    float64
	originX       float64
	originY       float64
	cells         []Cost
}

// NewCostmap creates a grid of width x height cells, all FreeSpace.
func NewCostmap(width, height int, resolution, originX, originY float64) *Costmap {
	return &Costmap{
		width:      width,
		height:     height,
		resolution: resolution,
		originX:    originX,
		originY:    originY,
		cells:      make([]Cost, width*height),
	}
}

// Resolution returns the cell edge length in meters.
func (c *Costmap) Resolution() float64 { return c.resolution }

// Size returns the grid dimensions in cells.
func (c *Costmap) Size() (width, height int) { return c.width, c.height }

// Origin returns the world coordinate of the lower-left grid corner.
func (c *Costmap) Origin() (x, y float64) { return c.originX, c.originY }

// WorldToMap converts a world coordinate to cell indices. ok is false
// when the coordinate falls outside the grid.
func (c *Costmap) WorldToMap(x, y float64) (mx, my int, ok bool) {
	if x < c.originX || y < c.originY {
		return 0, 0, false
	}
	mx = int((x - c.originX) / c.resolution)
	my = int((y - c.originY) / c.resolution)
	if mx >= c.width || my >= c.height {
		return 0, 0, false
	}
	return mx, my, true
}

// SetCost sets the classification of the cell containing (x, y).
// Coordinates outside the grid are ignored.
func (c *Costmap) SetCost(x, y float64, cost Cost) {
	if mx, my, ok := c.WorldToMap(x, y); ok {
		c.cells[my*c.width+mx] = cost
	}
}

// SetCellCost sets a cell by index. Out-of-range indices are ignored.
func (c *Costmap) SetCellCost(mx, my int, cost Cost) {
	if mx < 0 || my < 0 || mx >= c.width || my >= c.height {
		return
	}
	c.cells[my*c.width+mx] = cost
}

// CostAt classifies the cell under the world coordinate (x, y).
func (c *Costmap) CostAt(x, y float64) Cost {
	mx, my, ok := c.WorldToMap(x, y)
	if !ok {
		return NoInformation
	}
	return c.cells[my*c.width+mx]
}

// CellCost returns the classification of a cell by index.
func (c *Costmap) CellCost(mx, my int) Cost {
	if mx < 0 || my < 0 || mx >= c.width || my >= c.height {
		return NoInformation
	}
	return c.cells[my*c.width+mx]
}

// Thresholds for CostmapFromImage, on 16-bit luminance. Dark pixels are
// walls, light pixels are floor, anything between is unknown.
const (
	lethalLuma = 0x3000
	freeLuma   = 0xC000
)

// CostmapFromImage builds a costmap from an occupancy image (PNG or any
// registered format). Image row 0 is the top of the map, so rows are
// flipped to keep the grid origin at the lower-left.
func CostmapFromImage(img image.Image, resolution, originX, originY float64) *Costmap {
	bounds := img.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()
	cm := NewCostmap(w, h, resolution, originX, originY)

	for py := 0; py < h; py++ {
		for px := 0; px < w; px++ {
			r, g, b, _ := img.At(bounds.Min.X+px, bounds.Min.Y+py).RGBA()
			// Rec. 601 luma, stays in 16-bit range.
			luma := (299*r + 587*g + 114*b) / 1000

			var cost Cost
			switch {
			case luma < lethalLuma:
				cost = LethalObstacle
			case luma > freeLuma:
				cost = FreeSpace
			default:
				cost = NoInformation
			}
			cm.SetCellCost(px, h-1-py, cost)
		}
	}
	return cm
}

// LoadCostmap reads an occupancy image from disk and builds a costmap.
func LoadCostmap(path string, resolution, originX, originY float64) (*Costmap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening map image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding map image %s: %w", path, err)
	}
	return CostmapFromImage(img, resolution, originX, originY), nil
}
