// Package pattern draws synthetic pictures into an input surface so a
// session can be exercised without a camera or a renderer.
package pattern

import (
	"surface-recorder/internal/config"
)

// Colour bars at 75% intensity, left to right
var colorBarsRGB = [][3]uint8{
	{192, 192, 192}, // White
	{192, 192, 0},   // Yellow
	{0, 192, 192},   // Cyan
	{0, 192, 0},     // Green
	{192, 0, 192},   // Magenta
	{192, 0, 0},     // Red
	{0, 0, 192},     // Blue
	{16, 16, 16},    // Black
}

type yuv struct{ y, u, v uint8 }

// Generator renders moving colour bars as raw 4:2:0 pictures. The bars
// scroll left by a few pixels per frame so consecutive pictures differ.
type Generator struct {
	width  int
	height int
	nv12   bool
	bars   []yuv
	frame  []byte
}

// NewGenerator creates a generator for the encoder's picture geometry and
// pixel layout. ColorFormatNV12 interleaves chroma, every other format is
// written as planar I420.
func NewGenerator(cfg config.Encoder) *Generator {
	bars := make([]yuv, len(colorBarsRGB))
	for i, rgb := range colorBarsRGB {
		y, u, v := rgbToYUV(rgb[0], rgb[1], rgb[2])
		bars[i] = yuv{y, u, v}
	}
	return &Generator{
		width:  cfg.Width,
		height: cfg.Height,
		nv12:   cfg.ColorFormat == config.ColorFormatNV12,
		bars:   bars,
		frame:  make([]byte, cfg.FrameSize()),
	}
}

// FrameSize returns the size of one picture in bytes
func (g *Generator) FrameSize() int {
	return len(g.frame)
}

// Render draws picture n. The returned slice is reused by the next call.
func (g *Generator) Render(n uint64) []byte {
	w, h := g.width, g.height
	barWidth := w / len(g.bars)
	if barWidth == 0 {
		barWidth = 1
	}
	shift := int(n*4) % w

	barAt := func(x int) yuv {
		idx := ((x + shift) % w) / barWidth
		if idx >= len(g.bars) {
			idx = len(g.bars) - 1
		}
		return g.bars[idx]
	}

	luma := g.frame[:w*h]
	for x := 0; x < w; x++ {
		luma[x] = barAt(x).y
	}
	for y := 1; y < h; y++ {
		copy(luma[y*w:(y+1)*w], luma[:w])
	}

	cw, ch := w/2, h/2
	chroma := g.frame[w*h:]
	if g.nv12 {
		row := chroma[:2*cw]
		for x := 0; x < cw; x++ {
			c := barAt(2 * x)
			row[2*x] = c.u
			row[2*x+1] = c.v
		}
		for y := 1; y < ch; y++ {
			copy(chroma[y*2*cw:(y+1)*2*cw], row)
		}
		return g.frame
	}

	uPlane := chroma[:cw*ch]
	vPlane := chroma[cw*ch:]
	for x := 0; x < cw; x++ {
		c := barAt(2 * x)
		uPlane[x] = c.u
		vPlane[x] = c.v
	}
	for y := 1; y < ch; y++ {
		copy(uPlane[y*cw:(y+1)*cw], uPlane[:cw])
		copy(vPlane[y*cw:(y+1)*cw], vPlane[:cw])
	}
	return g.frame
}

// rgbToYUV converts RGB to limited range YUV (BT.601)
func rgbToYUV(r, g, b uint8) (y, u, v uint8) {
	yf := 16.0 + 65.481*float64(r)/255.0 + 128.553*float64(g)/255.0 + 24.966*float64(b)/255.0
	uf := 128.0 - 37.797*float64(r)/255.0 - 74.203*float64(g)/255.0 + 112.0*float64(b)/255.0
	vf := 128.0 + 112.0*float64(r)/255.0 - 93.786*float64(g)/255.0 - 18.214*float64(b)/255.0

	y = uint8(clamp(yf, 16, 235))
	u = uint8(clamp(uf, 16, 240))
	v = uint8(clamp(vf, 16, 240))
	return
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
