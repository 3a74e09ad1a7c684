// Package composite merges independently generated RF path-loss coverage
// rasters into one derived coverage map. Each input site contributes a
// colored raster, a color scale mapping colors to dB values, and a KML
// bounding box placing the raster on a lat/lon grid; the pipeline aligns
// all sites onto a common grid, reduces them cell-by-cell under a chosen
// strategy, and re-renders the surviving values as a new geo-referenced
// raster.
package composite

import (
	"fmt"
	"math"
	"runtime"
	"sync"

	"gonum.org/v1/gonum/mat"
)

type Options struct {
	// Strategy is the per-cell reduction over the aligned site grids.
	Strategy Strategy
	// ThresholdDB is the maximum acceptable path loss. Cells above it
	// render transparent regardless of strategy. Inclusive.
	ThresholdDB float64
	// ResolutionDeg overrides the common grid's cell size in degrees per
	// pixel. Zero picks the finest per-axis resolution among the inputs.
	ResolutionDeg float64
	// TargetSiteID names the target site for StrategyMutualWithTarget;
	// every other loaded site forms the network. Ignored otherwise.
	TargetSiteID string
	// MinOverlap is the number of sites that must reach a cell at or under
	// ThresholdDB for StrategyRedundancy to keep it.
	MinOverlap int
	// Workers bounds the goroutines used for the per-cell reduction.
	// Zero means GOMAXPROCS.
	Workers int
}

func DefaultOptions() Options {
	return Options{
		Strategy:    StrategyComposite,
		ThresholdDB: 150.0,
		MinOverlap:  2,
	}
}

// Compositor runs the alignment and reduction stages over a set of loaded
// sites, keeping each stage's product for inspection. Nothing is mutated
// after Build returns: render and write stages read the results as values.
type Compositor struct {
	Scale *ColorScale
	Sites []*GeoRaster

	// Populated by Build.
	Grid    CommonGrid
	Aligned []*mat.Dense
	Values  *mat.Dense
	// Owners holds the winning site index per cell (NoOwner where none),
	// row-major. Populated only by StrategyBestServer.
	Owners []int
}

func NewCompositor(scale *ColorScale, sites []*GeoRaster) *Compositor {
	return &Compositor{Scale: scale, Sites: sites}
}

// SiteIDs returns the loaded site identifiers in loading order, matching
// the palette order used by best-server renderings.
func (c *Compositor) SiteIDs() []string {
	ids := make([]string, len(c.Sites))
	for i, s := range c.Sites {
		ids[i] = s.SiteID
	}
	return ids
}

// Build computes the common grid, resamples every site onto it and reduces
// the aligned grids to the output value grid. Sites resample concurrently;
// the reduction is row-parallel. Both stages write disjoint cells, so no
// locking is involved.
func (c *Compositor) Build(opt Options) error {
	grid, err := BuildCommonGrid(c.Sites, opt.ResolutionDeg)
	if err != nil {
		return err
	}
	c.Grid = grid

	target := NoOwner
	if opt.Strategy == StrategyMutualWithTarget {
		for i, s := range c.Sites {
			if s.SiteID == opt.TargetSiteID {
				target = i
				break
			}
		}
		if target == NoOwner {
			return fmt.Errorf("target site %q is not among the loaded sites", opt.TargetSiteID)
		}
		if len(c.Sites) < 2 {
			return fmt.Errorf("strategy %s needs a target and at least one network site, have %d site(s)", opt.Strategy, len(c.Sites))
		}
	}
	minOverlap := opt.MinOverlap
	if minOverlap <= 0 {
		minOverlap = DefaultOptions().MinOverlap
	}

	// Common grid is fixed from here on; per-site resampling only reads it.
	c.Aligned = make([]*mat.Dense, len(c.Sites))
	var wg sync.WaitGroup
	for i, s := range c.Sites {
		i, s := i, s
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Aligned[i] = Resample(s, grid)
		}()
	}
	wg.Wait()

	c.Values = mat.NewDense(grid.Height, grid.Width, nil)
	if opt.Strategy == StrategyBestServer {
		c.Owners = make([]int, grid.Height*grid.Width)
	} else {
		c.Owners = nil
	}

	workers := opt.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	workers = min(workers, grid.Height)
	var reduceWG sync.WaitGroup
	for w := 0; w < workers; w++ {
		w := w
		reduceWG.Add(1)
		go func() {
			defer reduceWG.Done()
			cell := make([]float64, len(c.Sites))
			for row := w; row < grid.Height; row += workers {
				for col := 0; col < grid.Width; col++ {
					for i, a := range c.Aligned {
						cell[i] = a.At(row, col)
					}
					c.reduceInto(opt.Strategy, row, col, cell, opt.ThresholdDB, minOverlap, target)
				}
			}
		}()
	}
	reduceWG.Wait()
	return nil
}

func (c *Compositor) reduceInto(strategy Strategy, row, col int, cell []float64, thresholdDB float64, minOverlap, target int) {
	switch strategy {
	case StrategyComposite:
		v, _ := reduceBest(cell)
		c.Values.Set(row, col, v)
	case StrategyBestServer:
		v, owner := reduceBest(cell)
		c.Values.Set(row, col, v)
		c.Owners[row*c.Grid.Width+col] = owner
	case StrategyRedundancy:
		c.Values.Set(row, col, reduceRedundancy(cell, thresholdDB, minOverlap))
	case StrategyMutualWithTarget:
		c.Values.Set(row, col, reduceMutual(cell, target))
	default:
		c.Values.Set(row, col, math.NaN())
	}
}

// Result packages the composited surface as a GeoRaster over the common
// grid's bounding box, symmetric with the pipeline's inputs.
func (c *Compositor) Result(siteID string) *GeoRaster {
	return &GeoRaster{
		SiteID: siteID,
		Bounds: c.Grid.Bounds,
		Width:  c.Grid.Width,
		Height: c.Grid.Height,
		Cells:  c.Values,
	}
}
