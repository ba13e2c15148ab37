package climate

import (
	"math"
	"slices"
)

// stripePalette goes from cold blue to warm red.
var stripePalette = []string{
	"#08306b", "#08519c", "#2171b5", "#4292c6", "#6baed6", "#9ecae1", "#c6dbef", "#deebf7",
	"#fee0d2", "#fcbba1", "#fc9272", "#fb6a4a", "#ef3b2c", "#cb181d", "#a50f15", "#67000d",
}

// Stripe is one coloured bar of a climate stripes chart.
type Stripe struct {
	Year        int     `json:"year"`
	Temperature float64 `json:"temperature"`
	Color       string  `json:"color"`
}

// Stripes colours each year of s relative to the series' own min and max.
// A flat series maps every year to the middle of the palette.
func Stripes(s ClimateSeries) []Stripe {
	n := min(len(s.Years), len(s.Temperatures))
	if n == 0 {
		return nil
	}
	lo := slices.Min(s.Temperatures[:n])
	hi := slices.Max(s.Temperatures[:n])

	out := make([]Stripe, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Stripe{
			Year:        s.Years[i],
			Temperature: s.Temperatures[i],
			Color:       StripeColor(s.Temperatures[i], lo, hi),
		})
	}
	return out
}

// StripeColor returns the palette entry for t within [lo, hi].
func StripeColor(t, lo, hi float64) string {
	last := len(stripePalette) - 1
	normalized := 0.5
	if hi > lo {
		normalized = (t - lo) / (hi - lo)
	}
	idx := int(math.Floor(normalized * float64(last)))
	idx = max(0, min(idx, last))
	return stripePalette[idx]
}
