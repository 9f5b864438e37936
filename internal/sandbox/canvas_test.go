package sandbox

import (
	"bytes"
	"image/color"
	"image/png"
	"math"
	"testing"

	"go.starlark.net/starlark"
)

func rgbTuple(r, g, b int) starlark.Tuple {
	return starlark.Tuple{starlark.MakeInt(r), starlark.MakeInt(g), starlark.MakeInt(b)}
}

func TestUnpackColor(t *testing.T) {
	col, err := unpackColor(rgbTuple(10, 20, 30))
	if err != nil {
		t.Fatalf("unpackColor: %v", err)
	}
	if col.R != 10 || col.G != 20 || col.B != 30 || col.A != 0xff {
		t.Errorf("color = %+v", col)
	}

	bad := []starlark.Value{
		starlark.String("red"),
		starlark.Tuple{starlark.MakeInt(1), starlark.MakeInt(2)},
		starlark.Tuple{starlark.MakeInt(1), starlark.MakeInt(2), starlark.MakeInt(300)},
		starlark.Tuple{starlark.MakeInt(-1), starlark.MakeInt(0), starlark.MakeInt(0)},
	}
	for _, v := range bad {
		if _, err := unpackColor(v); err == nil {
			t.Errorf("unpackColor(%s) should fail", v.String())
		}
	}
}

func TestCanvasEncodePNG(t *testing.T) {
	c := newCanvas(3, 2)
	data, err := c.EncodePNG()
	if err != nil {
		t.Fatalf("EncodePNG: %v", err)
	}

	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 3 || b.Dy() != 2 {
		t.Errorf("bounds = %v, want 3x2", b)
	}
}

func TestCanvasDrawingClipsOutOfBounds(t *testing.T) {
	c := newCanvas(4, 4)

	// None of these may panic; out-of-range pixels are dropped.
	c.fillRect(-2, -2, 10, 10, color.RGBA{R: 9, G: 9, B: 9, A: 0xff})
	c.drawLine(-5, -5, 20, 20, color.RGBA{R: 200, A: 0xff})

	got := c.img.RGBAAt(2, 2)
	if got.R != 200 {
		t.Errorf("pixel (2,2) = %+v, want the line color on the diagonal", got)
	}
	if corner := c.img.RGBAAt(3, 0); corner.R != 9 {
		t.Errorf("pixel (3,0) = %+v, want the fill color", corner)
	}
}

func TestCanvasDrawingBoundsWorkByCanvasArea(t *testing.T) {
	col := color.RGBA{R: 7, A: 0xff}

	t.Run("rect", func(t *testing.T) {
		c := newCanvas(4, 4)
		c.fillRect(0, 0, 2_000_000_000, 2_000_000_000, col)
		for y := 0; y < 4; y++ {
			for x := 0; x < 4; x++ {
				if c.img.RGBAAt(x, y).R != 7 {
					t.Fatalf("pixel (%d,%d) not filled", x, y)
				}
			}
		}
	})

	t.Run("rect int overflow", func(t *testing.T) {
		c := newCanvas(4, 4)
		c.fillRect(math.MaxInt, math.MaxInt, math.MaxInt, math.MaxInt, col)
		c.fillRect(math.MinInt, math.MinInt, 3, 3, col)
		if c.img.RGBAAt(0, 0).R == 7 {
			t.Error("off-canvas rect wrapped around and drew")
		}
	})

	t.Run("circle", func(t *testing.T) {
		c := newCanvas(4, 4)
		c.fillCircle(2, 2, 2_000_000_000, col)
		if c.img.RGBAAt(0, 0).R != 7 {
			t.Error("canvas inside a huge circle should be filled")
		}
		far := newCanvas(4, 4)
		far.fillCircle(math.MinInt, math.MinInt, 10, col)
		if far.img.RGBAAt(0, 0).R == 7 {
			t.Error("far-away circle drew on the canvas")
		}
	})

	t.Run("line", func(t *testing.T) {
		c := newCanvas(4, 4)
		c.drawLine(-1_000_000_000, -1_000_000_000, 1_000_000_000, 1_000_000_000, col)
		if c.img.RGBAAt(1, 1).R != 7 {
			t.Error("diagonal through the canvas should be drawn")
		}
		miss := newCanvas(4, 4)
		miss.drawLine(-1_000_000_000, 100, 1_000_000_000, 100, col)
		for y := 0; y < 4; y++ {
			for x := 0; x < 4; x++ {
				if miss.img.RGBAAt(x, y).R == 7 {
					t.Fatalf("line that misses the canvas drew at (%d,%d)", x, y)
				}
			}
		}
	})
}

func TestClipSegmentKeepsInBoundsEndpoints(t *testing.T) {
	x0, y0, x1, y1, ok := clipSegment(1, 1, 3, 2, 7, 7)
	if !ok || x0 != 1 || y0 != 1 || x1 != 3 || y1 != 2 {
		t.Errorf("in-bounds segment changed: (%v,%v)-(%v,%v) ok=%v", x0, y0, x1, y1, ok)
	}
	if _, _, _, _, ok := clipSegment(-10, -10, -5, -5, 7, 7); ok {
		t.Error("segment entirely outside reported visible")
	}
}
