package sandbox

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// Canvas is the single drawable type a snippet may construct. It wraps an
// RGBA raster and becomes the run's image artifact when exactly one canvas
// exists at completion.
type Canvas struct {
	img    *image.RGBA
	frozen bool
}

var (
	_ starlark.Value    = (*Canvas)(nil)
	_ starlark.HasAttrs = (*Canvas)(nil)
)

func newCanvas(w, h int) *Canvas {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	// Opaque black background, matching a freshly created drawing surface.
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0xff
	}
	return &Canvas{img: img}
}

func (c *Canvas) Width() int  { return c.img.Rect.Dx() }
func (c *Canvas) Height() int { return c.img.Rect.Dy() }

// EncodePNG renders the canvas as a PNG byte stream.
func (c *Canvas) EncodePNG() ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, c.img); err != nil {
		return nil, fmt.Errorf("encoding canvas: %w", err)
	}
	return buf.Bytes(), nil
}

func (c *Canvas) String() string {
	return fmt.Sprintf("<canvas %dx%d>", c.Width(), c.Height())
}

func (c *Canvas) Type() string          { return "canvas" }
func (c *Canvas) Freeze()               { c.frozen = true }
func (c *Canvas) Truth() starlark.Bool  { return starlark.True }
func (c *Canvas) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: canvas") }

func (c *Canvas) Attr(name string) (starlark.Value, error) {
	switch name {
	case "width":
		return starlark.MakeInt(c.Width()), nil
	case "height":
		return starlark.MakeInt(c.Height()), nil
	}
	if fn, ok := canvasMethods[name]; ok {
		return starlark.NewBuiltin(name, fn).BindReceiver(c), nil
	}
	return nil, nil
}

func (c *Canvas) AttrNames() []string {
	names := []string{"width", "height"}
	for name := range canvasMethods {
		names = append(names, name)
	}
	return names
}

type canvasMethod = func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error)

var canvasMethods = map[string]canvasMethod{
	"set":    canvasSet,
	"fill":   canvasFill,
	"rect":   canvasRect,
	"line":   canvasLine,
	"circle": canvasCircle,
}

// NewCanvasModule builds the starlark `canvas` module. Every canvas created
// through it is reported via record, which is how the runner learns whether
// the run produced a drawable artifact.
func NewCanvasModule(maxDim int, record func(*Canvas)) *starlarkstruct.Module {
	newFn := func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var w, h int
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "width", &w, "height", &h); err != nil {
			return nil, err
		}
		if w <= 0 || h <= 0 {
			return nil, fmt.Errorf("canvas.new: dimensions must be positive, got %dx%d", w, h)
		}
		if w > maxDim || h > maxDim {
			return nil, fmt.Errorf("canvas.new: %dx%d exceeds the %d pixel limit", w, h, maxDim)
		}
		c := newCanvas(w, h)
		record(c)
		return c, nil
	}

	return &starlarkstruct.Module{
		Name: "canvas",
		Members: starlark.StringDict{
			"new": starlark.NewBuiltin("canvas.new", newFn),
		},
	}
}

// unpackColor converts an (r, g, b) tuple or list into an RGBA color.
func unpackColor(v starlark.Value) (color.RGBA, error) {
	seq, ok := v.(starlark.Indexable)
	if !ok || seq.Len() != 3 {
		return color.RGBA{}, fmt.Errorf("color must be an (r, g, b) sequence, got %s", v.Type())
	}
	var ch [3]uint8
	for i := 0; i < 3; i++ {
		n, err := starlark.AsInt32(seq.Index(i))
		if err != nil || n < 0 || n > 255 {
			return color.RGBA{}, fmt.Errorf("color component %d must be an int in 0..255", i)
		}
		ch[i] = uint8(n)
	}
	return color.RGBA{R: ch[0], G: ch[1], B: ch[2], A: 0xff}, nil
}

func (c *Canvas) checkMutable(op string) error {
	if c.frozen {
		return fmt.Errorf("%s: cannot modify frozen canvas", op)
	}
	return nil
}

func canvasSet(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	c := b.Receiver().(*Canvas)
	var x, y int
	var colv starlark.Value
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "x", &x, "y", &y, "color", &colv); err != nil {
		return nil, err
	}
	if err := c.checkMutable(b.Name()); err != nil {
		return nil, err
	}
	col, err := unpackColor(colv)
	if err != nil {
		return nil, err
	}
	if x >= 0 && y >= 0 && x < c.Width() && y < c.Height() {
		c.img.SetRGBA(x, y, col)
	}
	return starlark.None, nil
}

func canvasFill(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	c := b.Receiver().(*Canvas)
	var colv starlark.Value
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "color", &colv); err != nil {
		return nil, err
	}
	if err := c.checkMutable(b.Name()); err != nil {
		return nil, err
	}
	col, err := unpackColor(colv)
	if err != nil {
		return nil, err
	}
	c.fillRect(0, 0, c.Width(), c.Height(), col)
	return starlark.None, nil
}

func canvasRect(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	c := b.Receiver().(*Canvas)
	var x, y, w, h int
	var colv starlark.Value
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "x", &x, "y", &y, "width", &w, "height", &h, "color", &colv); err != nil {
		return nil, err
	}
	if err := c.checkMutable(b.Name()); err != nil {
		return nil, err
	}
	col, err := unpackColor(colv)
	if err != nil {
		return nil, err
	}
	c.fillRect(x, y, w, h, col)
	return starlark.None, nil
}

func canvasLine(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	c := b.Receiver().(*Canvas)
	var x0, y0, x1, y1 int
	var colv starlark.Value
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "x0", &x0, "y0", &y0, "x1", &x1, "y1", &y1, "color", &colv); err != nil {
		return nil, err
	}
	if err := c.checkMutable(b.Name()); err != nil {
		return nil, err
	}
	col, err := unpackColor(colv)
	if err != nil {
		return nil, err
	}
	c.drawLine(x0, y0, x1, y1, col)
	return starlark.None, nil
}

func canvasCircle(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	c := b.Receiver().(*Canvas)
	var cx, cy, r int
	var colv starlark.Value
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "x", &cx, "y", &cy, "radius", &r, "color", &colv); err != nil {
		return nil, err
	}
	if err := c.checkMutable(b.Name()); err != nil {
		return nil, err
	}
	if r < 0 {
		return nil, fmt.Errorf("circle: radius must be non-negative")
	}
	col, err := unpackColor(colv)
	if err != nil {
		return nil, err
	}
	c.fillCircle(cx, cy, r, col)
	return starlark.None, nil
}

// Drawing primitives clip their geometry to the canvas BEFORE iterating.
// Arguments come straight from the snippet and the interpreter's interrupt
// cannot fire inside a builtin, so the iteration space of every primitive
// must be bounded by the canvas area, never by its arguments.

func (c *Canvas) fillCircle(cx, cy, r int, col color.RGBA) {
	box := image.Rect(satAdd(cx, -r), satAdd(cy, -r), satAdd(satAdd(cx, r), 1), satAdd(satAdd(cy, r), 1))
	box = box.Intersect(c.img.Rect)
	// float64 keeps the in/out test exact for visible pixels and safe from
	// overflow when the center or radius is enormous.
	rr := float64(r) * float64(r)
	fcx, fcy := float64(cx), float64(cy)
	for y := box.Min.Y; y < box.Max.Y; y++ {
		for x := box.Min.X; x < box.Max.X; x++ {
			dx, dy := float64(x)-fcx, float64(y)-fcy
			if dx*dx+dy*dy <= rr {
				c.img.SetRGBA(x, y, col)
			}
		}
	}
}

func (c *Canvas) fillRect(x, y, w, h int, col color.RGBA) {
	if w <= 0 || h <= 0 {
		return
	}
	r := image.Rect(x, y, satAdd(x, w), satAdd(y, h)).Intersect(c.img.Rect)
	for yy := r.Min.Y; yy < r.Max.Y; yy++ {
		for xx := r.Min.X; xx < r.Max.X; xx++ {
			c.img.SetRGBA(xx, yy, col)
		}
	}
}

// drawLine uses Bresenham's algorithm over the segment's visible portion.
func (c *Canvas) drawLine(x0, y0, x1, y1 int, col color.RGBA) {
	fx0, fy0, fx1, fy1, visible := clipSegment(
		float64(x0), float64(y0), float64(x1), float64(y1),
		float64(c.Width()-1), float64(c.Height()-1),
	)
	if !visible {
		return
	}
	x0, y0 = int(math.Round(fx0)), int(math.Round(fy0))
	x1, y1 = int(math.Round(fx1)), int(math.Round(fy1))
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	err := dx + dy
	for {
		if x0 >= 0 && y0 >= 0 && x0 < c.Width() && y0 < c.Height() {
			c.img.SetRGBA(x0, y0, col)
		}
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

// clipSegment is Liang-Barsky clipping against [0,xmax] x [0,ymax]. A fully
// in-bounds segment comes back unchanged.
func clipSegment(x0, y0, x1, y1, xmax, ymax float64) (cx0, cy0, cx1, cy1 float64, visible bool) {
	dx, dy := x1-x0, y1-y0
	t0, t1 := 0.0, 1.0
	edges := [4][2]float64{
		{-dx, x0},
		{dx, xmax - x0},
		{-dy, y0},
		{dy, ymax - y0},
	}
	for _, e := range edges {
		p, q := e[0], e[1]
		if p == 0 {
			if q < 0 {
				return 0, 0, 0, 0, false
			}
			continue
		}
		t := q / p
		if p < 0 {
			if t > t1 {
				return 0, 0, 0, 0, false
			}
			if t > t0 {
				t0 = t
			}
		} else {
			if t < t0 {
				return 0, 0, 0, 0, false
			}
			if t < t1 {
				t1 = t
			}
		}
	}
	return x0 + t0*dx, y0 + t0*dy, x0 + t1*dx, y0 + t1*dy, true
}

// satAdd adds without wrapping; sums past either end of the int range clamp.
func satAdd(a, b int) int {
	s := a + b
	if b > 0 && s < a {
		return math.MaxInt
	}
	if b < 0 && s > a {
		return math.MinInt
	}
	return s
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
