package mcl

import (
	"bytes"
	"strings"
	"testing"
)

func TestVectorCloudRenderer_RenderToSVG(t *testing.T) {
	r := NewVectorCloudRenderer(corridorMap())
	particles, estimate := renderFixture()

	var buf bytes.Buffer
	if err := r.RenderToSVG(&buf, particles, estimate, Red); err != nil {
		t.Fatalf("RenderToSVG failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "<svg") {
		t.Error("output missing <svg> element")
	}
	if !strings.Contains(out, "path") {
		t.Error("output has no path elements")
	}
}

func TestVectorCloudRenderer_RenderToPNG(t *testing.T) {
	// A small map keeps rasterization cheap.
	cm := NewCostmap(20, 20, 0.1, -1, -1)
	for i := 0; i < 20; i++ {
		cm.SetCellCost(i, 0, LethalObstacle)
	}

	r := NewVectorCloudRenderer(cm)
	particles, estimate := renderFixture()

	var buf bytes.Buffer
	if err := r.RenderToPNG(&buf, particles, estimate, Blue); err != nil {
		t.Fatalf("RenderToPNG failed: %v", err)
	}

	if !bytes.HasPrefix(buf.Bytes(), []byte{0x89, 0x50, 0x4E, 0x47}) {
		t.Error("output is not a PNG")
	}
}

func TestVectorCloudRenderer_GridDisabled(t *testing.T) {
	r := NewVectorCloudRenderer(corridorMap())
	r.GridSpacing = 0

	particles, estimate := renderFixture()

	var buf bytes.Buffer
	if err := r.RenderToSVG(&buf, particles, estimate, Red); err != nil {
		t.Fatalf("RenderToSVG failed: %v", err)
	}
	if buf.Len() == 0 {
		t.Error("empty SVG output")
	}
}

func TestVectorCloudRenderer_CanvasSize(t *testing.T) {
	cm := NewCostmap(100, 50, 0.05, 0, 0) // 5m x 2.5m
	r := NewVectorCloudRenderer(cm)

	w, h := r.canvasSize()
	// Map extent plus 0.5m padding on each side, in millimeters.
	if w != 6000 {
		t.Errorf("width = %g, want 6000", w)
	}
	if h != 3500 {
		t.Errorf("height = %g, want 3500", h)
	}
}

func TestVectorCloudRenderer_ToCanvas(t *testing.T) {
	cm := NewCostmap(100, 100, 0.05, -2.5, -2.5)
	r := NewVectorCloudRenderer(cm)

	// World origin sits padding + 2.5m from the canvas corner.
	cx, cy := r.toCanvas(0, 0)
	if cx != 3000 || cy != 3000 {
		t.Errorf("toCanvas(0,0) = (%g, %g), want (3000, 3000)", cx, cy)
	}
}
