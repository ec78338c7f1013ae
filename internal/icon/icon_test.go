package icon

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/draw"
	"strings"
	"testing"

	"github.com/chai2010/webp"
)

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
	return img
}

func TestCache_PutKeepsFirstEntry(t *testing.T) {
	c := NewCache()
	first := &Icon{DataURI: "a"}
	second := &Icon{DataURI: "b"}

	if got := c.Put("u", first); got != first {
		t.Fatalf("expected first icon stored")
	}
	if got := c.Put("u", second); got != first {
		t.Fatalf("expected existing icon returned on duplicate put")
	}
	if got, ok := c.Get("u"); !ok || got != first {
		t.Fatalf("expected cached first icon, got %+v", got)
	}
	if c.Len() != 1 {
		t.Fatalf("expected one entry, got %d", c.Len())
	}
}

func TestSynthesizePin_ClipsSourceIntoHead(t *testing.T) {
	pin := SynthesizePin(solid(10, 20, color.RGBA{R: 255, A: 255}), 48)

	if b := pin.Bounds(); b.Dx() != 48 || b.Dy() != 64 {
		t.Fatalf("unexpected pin size %v", b)
	}

	center := pin.RGBAAt(24, 24)
	if center.R < 200 || center.G > 50 || center.B > 50 || center.A != 255 {
		t.Fatalf("expected red inset at head center, got %+v", center)
	}

	if corner := pin.RGBAAt(0, 0); corner.A != 0 {
		t.Fatalf("expected transparent corner, got %+v", corner)
	}
	if tail := pin.RGBAAt(24, 58); tail != pinColor {
		t.Fatalf("expected pin color on tail, got %+v", tail)
	}
	if beside := pin.RGBAAt(2, 60); beside.A != 0 {
		t.Fatalf("expected transparent beside tail, got %+v", beside)
	}
}

func TestSynthesizePin_NilSource(t *testing.T) {
	pin := SynthesizePin(nil, 32)
	if got := pin.RGBAAt(16, 16); got != insetEmpty {
		t.Fatalf("expected grey inset, got %+v", got)
	}
}

func TestSquareCrop(t *testing.T) {
	cases := []struct {
		in, want image.Rectangle
	}{
		{image.Rect(0, 0, 10, 10), image.Rect(0, 0, 10, 10)},
		{image.Rect(0, 0, 20, 10), image.Rect(5, 0, 15, 10)},
		{image.Rect(0, 0, 10, 30), image.Rect(0, 10, 10, 20)},
	}
	for _, tc := range cases {
		if got := squareCrop(tc.in); got != tc.want {
			t.Fatalf("squareCrop(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestEncodeWebPDataURI(t *testing.T) {
	uri, err := EncodeWebPDataURI(SynthesizePin(nil, 32), 0)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	const prefix = "data:image/webp;base64,"
	if !strings.HasPrefix(uri, prefix) {
		t.Fatalf("unexpected prefix in %q", uri[:32])
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(uri, prefix))
	if err != nil {
		t.Fatalf("base64: %v", err)
	}
	img, err := webp.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("decode webp: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 32 || b.Dy() != 42 {
		t.Fatalf("unexpected decoded size %v", b)
	}
}

func TestStyleFor_Tiers(t *testing.T) {
	cases := map[int]Tier{
		0:    TierSmall,
		9:    TierSmall,
		10:   TierMedium,
		49:   TierMedium,
		50:   TierLarge,
		5000: TierLarge,
	}
	for count, want := range cases {
		if got := StyleFor(count, DefaultThresholds).Tier; got != want {
			t.Fatalf("StyleFor(%d) = %s, want %s", count, got, want)
		}
	}

	if got := StyleFor(5000, DefaultThresholds).Label; got != "999+" {
		t.Fatalf("expected capped label, got %q", got)
	}
}

func TestRenderCluster_Deterministic(t *testing.T) {
	a := RenderCluster(42, DefaultThresholds)
	b := RenderCluster(42, DefaultThresholds)

	if a != b {
		t.Fatalf("expected identical renders")
	}
	if a.Style.Tier != TierMedium {
		t.Fatalf("expected medium tier, got %s", a.Style.Tier)
	}
	if !strings.HasPrefix(a.DataURI, "data:image/svg+xml;base64,") {
		t.Fatalf("unexpected data uri %q", a.DataURI)
	}
	if !strings.Contains(a.SVG, ">42<") {
		t.Fatalf("expected label in svg, got %s", a.SVG)
	}
	if strings.Contains(a.SVG, "\n") {
		t.Fatalf("expected minified svg, got %s", a.SVG)
	}
}

func TestPlaceholder_Shared(t *testing.T) {
	a := Placeholder(48)
	if a != Placeholder(48) {
		t.Fatalf("expected shared placeholder pointer")
	}
	if !a.Placeholder || a.Width != 48 || a.Height != 64 {
		t.Fatalf("unexpected placeholder %+v", a)
	}
}

func TestEncodeWebPDataURI_Lossy(t *testing.T) {
	uri, err := EncodeWebPDataURI(SynthesizePin(nil, 32), 80)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !strings.HasPrefix(uri, "data:image/webp;base64,") {
		t.Fatalf("unexpected data uri %q", uri[:32])
	}
}
