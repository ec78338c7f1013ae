package icon

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/svg"
)

const svgMime = "image/svg+xml"

// Tier is the visual size class of a cluster marker.
type Tier string

// Cluster tiers.
const (
	TierSmall  Tier = "small"
	TierMedium Tier = "medium"
	TierLarge  Tier = "large"
)

// Thresholds splits cluster counts into tiers: below Medium is small,
// below Large is medium, anything else is large.
type Thresholds struct {
	Medium int
	Large  int
}

// DefaultThresholds are the 10/50 tier boundaries.
var DefaultThresholds = Thresholds{Medium: 10, Large: 50}

// ClusterStyle describes how a cluster marker is drawn.
type ClusterStyle struct {
	Tier      Tier   `json:"tier"`
	Fill      string `json:"fill"`
	TextColor string `json:"text_color"`
	Label     string `json:"label"`
	Diameter  int    `json:"diameter"`
}

// ClusterIcon is a rendered cluster marker.
type ClusterIcon struct {
	Style   ClusterStyle `json:"style"`
	SVG     string       `json:"-"`
	DataURI string       `json:"data_uri"`
}

var (
	minifier     *minify.M
	minifierOnce sync.Once
)

func svgMinifier() *minify.M {
	minifierOnce.Do(func() {
		minifier = minify.New()
		minifier.AddFunc(svgMime, svg.Minify)
	})
	return minifier
}

// StyleFor maps a count to its tier style.
func StyleFor(count int, th Thresholds) ClusterStyle {
	label := strconv.Itoa(count)
	if count > 999 {
		label = "999+"
	}

	switch {
	case count >= th.Large:
		return ClusterStyle{Tier: TierLarge, Fill: "#D7263D", TextColor: "#FFFFFF", Label: label, Diameter: 64}
	case count >= th.Medium:
		return ClusterStyle{Tier: TierMedium, Fill: "#F49D37", TextColor: "#FFFFFF", Label: label, Diameter: 52}
	default:
		return ClusterStyle{Tier: TierSmall, Fill: "#3F88C5", TextColor: "#FFFFFF", Label: label, Diameter: 40}
	}
}

// RenderCluster renders the cluster marker for count. It depends only on its inputs.
func RenderCluster(count int, th Thresholds) ClusterIcon {
	style := StyleFor(count, th)
	d := style.Diameter
	r := d / 2

	raw := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
  <circle cx="%d" cy="%d" r="%d" fill="%s" fill-opacity="0.35" />
  <circle cx="%d" cy="%d" r="%d" fill="%s" />
  <text x="50%%" y="50%%" dominant-baseline="central" text-anchor="middle"
        font-family="sans-serif" font-size="%d" font-weight="bold" fill="%s">%s</text>
</svg>`,
		d, d, d, d,
		r, r, r, style.Fill,
		r, r, r*3/4, style.Fill,
		d/3, style.TextColor, style.Label,
	)

	doc := minifySVG(raw)
	return ClusterIcon{Style: style, SVG: doc, DataURI: svgDataURI(doc)}
}

func minifySVG(raw string) string {
	out, err := svgMinifier().String(svgMime, raw)
	if err != nil {
		log.Warn().Err(err).Msg("SVG minification failed, using raw document")
		return raw
	}
	return out
}
