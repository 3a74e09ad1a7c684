package composite

import (
	"fmt"
	"image/color"
	"math"
)

// Strategy selects the per-cell reduction that folds N aligned site grids
// into one output grid. The set is closed: every strategy shares the same
// surrounding pipeline (load, align, reduce, threshold, render).
type Strategy int

const (
	// StrategyComposite keeps the lowest path loss seen at each cell:
	// the strongest signal from any site wins.
	StrategyComposite Strategy = iota
	// StrategyBestServer is numerically identical to StrategyComposite but
	// also records which site won each cell, for dominance maps.
	StrategyBestServer
	// StrategyRedundancy keeps the best value only where at least
	// MinOverlap sites reach the cell at or under the threshold.
	StrategyRedundancy
	// StrategyMutualWithTarget bounds two-way connectivity between one
	// target site and the best of the remaining network: the weaker of the
	// two links limits the pair.
	StrategyMutualWithTarget
)

func (s Strategy) String() string {
	switch s {
	case StrategyComposite:
		return "composite"
	case StrategyBestServer:
		return "best_server"
	case StrategyRedundancy:
		return "redundancy"
	case StrategyMutualWithTarget:
		return "mutual_with_target"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// ParseStrategy resolves a configuration name to its Strategy.
func ParseStrategy(name string) (Strategy, error) {
	switch name {
	case "composite":
		return StrategyComposite, nil
	case "best_server":
		return StrategyBestServer, nil
	case "redundancy":
		return StrategyRedundancy, nil
	case "mutual_with_target":
		return StrategyMutualWithTarget, nil
	}
	return 0, fmt.Errorf("unknown strategy %q", name)
}

// NoOwner marks cells no site won.
const NoOwner = -1

// reduceBest returns the minimum non-NaN value and the index of the site
// that achieved it, or (NaN, NoOwner) when every input is NaN. Equal values
// keep the earlier site, so the result does not depend on goroutine timing.
func reduceBest(values []float64) (float64, int) {
	best := math.NaN()
	owner := NoOwner
	for i, v := range values {
		if math.IsNaN(v) {
			continue
		}
		if owner == NoOwner || v < best {
			best = v
			owner = i
		}
	}
	return best, owner
}

// reduceRedundancy returns the minimum value among inputs at or under
// thresholdDB, provided at least minOverlap inputs qualify; NaN otherwise.
// A single strong site is not redundant coverage.
func reduceRedundancy(values []float64, thresholdDB float64, minOverlap int) float64 {
	count := 0
	best := math.Inf(1)
	for _, v := range values {
		if v <= thresholdDB { // NaN fails this comparison
			count++
			if v < best {
				best = v
			}
		}
	}
	if count < minOverlap {
		return math.NaN()
	}
	return best
}

// reduceMutual returns the weakest-link bound between the target site's
// value and the best network value: max(target, min(network)). NaN when the
// target has no data or no network site reaches the cell; a target-only
// signal cannot establish mutual connectivity.
func reduceMutual(values []float64, target int) float64 {
	tv := values[target]
	if math.IsNaN(tv) {
		return math.NaN()
	}
	networkBest := math.Inf(1)
	for i, v := range values {
		if i == target || math.IsNaN(v) {
			continue
		}
		if v < networkBest {
			networkBest = v
		}
	}
	if math.IsInf(networkBest, 1) {
		return math.NaN()
	}
	return math.Max(tv, networkBest)
}

// ServerPalette is the fixed cycle of display colors assigned to sites in
// best-server dominance maps and their legends.
var ServerPalette = []color.NRGBA{
	{255, 0, 0, 255},    // red
	{0, 0, 255, 255},    // blue
	{0, 128, 0, 255},    // green
	{255, 165, 0, 255},  // orange
	{128, 0, 128, 255},  // purple
	{0, 255, 255, 255},  // cyan
	{255, 20, 147, 255}, // deep pink
	{255, 255, 0, 255},  // yellow
	{139, 69, 19, 255},  // brown
	{0, 0, 0, 255},      // black
}

// SiteColor returns the palette color for the i-th loaded site.
func SiteColor(i int) color.NRGBA {
	return ServerPalette[i%len(ServerPalette)]
}
