package icon

import (
	"image"
	"image/color"
	"image/draw"

	xdraw "golang.org/x/image/draw"
)

var (
	pinColor   = color.RGBA{R: 0xE8, G: 0x50, B: 0x5B, A: 0xFF}
	ringColor  = color.RGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF}
	insetEmpty = color.RGBA{R: 0xC8, G: 0xC8, B: 0xC8, A: 0xFF}
)

// PinSize returns the pixel size of a pin rendered with the given width.
func PinSize(width int) (w, h int) {
	return width, width * 4 / 3
}

// SynthesizePin draws a map pin with src clipped into a circular inset in its head.
// A nil src leaves the inset filled with a neutral grey.
func SynthesizePin(src image.Image, width int) *image.RGBA {
	w, h := PinSize(width)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))

	center := image.Pt(w/2, w/2)
	radius := w/2 - 1

	// body: head circle plus a tail tapering to the bottom tip
	body := &pinMask{center: center, radius: radius, tipY: h - 1, size: image.Rect(0, 0, w, h)}
	draw.DrawMask(dst, dst.Bounds(), image.NewUniform(pinColor), image.Point{}, body, image.Point{}, draw.Over)

	ring := radius * 82 / 100
	drawDisc(dst, center, ring, image.NewUniform(ringColor))

	inset := radius * 72 / 100
	if inset <= 0 {
		return dst
	}
	if src == nil || src.Bounds().Empty() {
		drawDisc(dst, center, inset, image.NewUniform(insetEmpty))
		return dst
	}

	side := inset * 2
	scaled := image.NewRGBA(image.Rect(0, 0, side, side))
	xdraw.CatmullRom.Scale(scaled, scaled.Bounds(), src, squareCrop(src.Bounds()), draw.Src, nil)
	drawDisc(dst, center, inset, scaled)

	return dst
}

// drawDisc paints src through a circular mask centered at c. Image sources are
// aligned so their origin lands on the top-left corner of the disc.
func drawDisc(dst draw.Image, c image.Point, r int, src image.Image) {
	rect := image.Rect(c.X-r, c.Y-r, c.X+r, c.Y+r)
	mask := &circleMask{center: c, radius: r}
	draw.DrawMask(dst, rect, src, src.Bounds().Min, mask, rect.Min, draw.Over)
}

// squareCrop returns the largest centered square inside b.
func squareCrop(b image.Rectangle) image.Rectangle {
	dx, dy := b.Dx(), b.Dy()
	if dx == dy {
		return b
	}
	if dx > dy {
		off := (dx - dy) / 2
		return image.Rect(b.Min.X+off, b.Min.Y, b.Min.X+off+dy, b.Max.Y)
	}
	off := (dy - dx) / 2
	return image.Rect(b.Min.X, b.Min.Y+off, b.Max.X, b.Min.Y+off+dx)
}

type circleMask struct {
	center image.Point
	radius int
}

func (c *circleMask) ColorModel() color.Model {
	return color.AlphaModel
}

func (c *circleMask) Bounds() image.Rectangle {
	return image.Rect(c.center.X-c.radius, c.center.Y-c.radius, c.center.X+c.radius, c.center.Y+c.radius)
}

func (c *circleMask) At(x, y int) color.Color {
	xx := float64(x-c.center.X) + 0.5
	yy := float64(y-c.center.Y) + 0.5
	rr := float64(c.radius)
	if xx*xx+yy*yy < rr*rr {
		return color.Alpha{A: 255}
	}
	return color.Alpha{A: 0}
}

type pinMask struct {
	center image.Point
	radius int
	tipY   int
	size   image.Rectangle
}

func (p *pinMask) ColorModel() color.Model {
	return color.AlphaModel
}

func (p *pinMask) Bounds() image.Rectangle {
	return p.size
}

func (p *pinMask) At(x, y int) color.Color {
	xx := float64(x-p.center.X) + 0.5
	yy := float64(y-p.center.Y) + 0.5
	rr := float64(p.radius)
	if xx*xx+yy*yy < rr*rr {
		return color.Alpha{A: 255}
	}

	if y >= p.center.Y && y <= p.tipY {
		span := float64(p.tipY - p.center.Y)
		if span <= 0 {
			return color.Alpha{A: 0}
		}
		half := rr * float64(p.tipY-y) / span
		if xx < 0 {
			xx = -xx
		}
		if xx <= half {
			return color.Alpha{A: 255}
		}
	}
	return color.Alpha{A: 0}
}
