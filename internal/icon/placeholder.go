package icon

import (
	"fmt"
	"sync"
)

var (
	placeholders   = map[int]*Icon{}
	placeholdersMu sync.Mutex
)

// Placeholder returns the shared fallback pin for the given width. The same
// pointer is returned for every call with equal width.
func Placeholder(width int) *Icon {
	placeholdersMu.Lock()
	defer placeholdersMu.Unlock()

	if ic, ok := placeholders[width]; ok {
		return ic
	}

	w, h := PinSize(width)
	r := w/2 - 1
	raw := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
  <path d="M %d %d L %d %d L %d %d Z" fill="#9E9E9E" />
  <circle cx="%d" cy="%d" r="%d" fill="#9E9E9E" />
  <circle cx="%d" cy="%d" r="%d" fill="#FFFFFF" />
</svg>`,
		w, h, w, h,
		1, w/2, w/2, h-1, w-1, w/2,
		w/2, w/2, r,
		w/2, w/2, r*72/100,
	)

	ic := &Icon{
		DataURI:     svgDataURI(minifySVG(raw)),
		Width:       w,
		Height:      h,
		Placeholder: true,
	}
	placeholders[width] = ic
	return ic
}
