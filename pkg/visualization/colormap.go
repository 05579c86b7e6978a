package visualization

import (
	"fmt"
	"image/color"
	"math"
	"sort"
)

// Colormap maps a normalised value in [0, 1] to a colour
type Colormap func(t float64) color.NRGBA

// linear ramps between two RGB endpoints given in [0, 1]
func linear(from, to [3]float64) Colormap {
	return func(t float64) color.NRGBA {
		t = math.Max(0, math.Min(1, t))
		var c [3]uint8
		for i := range c {
			c[i] = uint8(math.Round(255 * (from[i] + t*(to[i]-from[i]))))
		}
		return color.NRGBA{R: c[0], G: c[1], B: c[2], A: 255}
	}
}

// Two-tone ramps matching the usual matplotlib definitions
var colormaps = map[string]Colormap{
	"winter": linear([3]float64{0, 0, 1}, [3]float64{0, 1, 0.5}),
	"cool":   linear([3]float64{0, 1, 1}, [3]float64{1, 0, 1}),
	"autumn": linear([3]float64{1, 0, 0}, [3]float64{1, 1, 0}),
	"spring": linear([3]float64{1, 0, 1}, [3]float64{1, 1, 0}),
	"summer": linear([3]float64{0, 0.5, 0.4}, [3]float64{1, 1, 0.4}),
}

// ColormapByName looks up a colormap
func ColormapByName(name string) (Colormap, error) {
	cm, ok := colormaps[name]
	if !ok {
		return nil, fmt.Errorf("unknown colormap %q (available: %v)", name, ColormapNames())
	}
	return cm, nil
}

// ColormapNames lists the available colormaps in sorted order
func ColormapNames() []string {
	names := make([]string, 0, len(colormaps))
	for name := range colormaps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Gray maps v inside [lo, hi] to a grey level, clamping outside values
func Gray(v, lo, hi float64) uint8 {
	t := (v - lo) / (hi - lo)
	t = math.Max(0, math.Min(1, t))
	return uint8(math.Round(255 * t))
}

// Blend composites fg over bg with the given opacity
func Blend(bg, fg color.NRGBA, alpha float64) color.NRGBA {
	mix := func(b, f uint8) uint8 {
		return uint8(math.Round(float64(b)*(1-alpha) + float64(f)*alpha))
	}
	return color.NRGBA{R: mix(bg.R, fg.R), G: mix(bg.G, fg.G), B: mix(bg.B, fg.B), A: 255}
}
