// Command compositemap merges the SPLAT!-style coverage rasters found in a
// working directory into one composite coverage map. Every site is a
// <name>.kml GroundOverlay next to a <name>.png (or .ppm) raster; one
// shared color-scale file maps raster colors to path-loss dB. The composite
// raster, its legend strip and a re-ingestable KML placement are written
// back into the same directory.
package main

import (
	"flag"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/radiomaps/composite"
	"github.com/radiomaps/composite/utils"
)

type config struct {
	dir        string
	scalePath  string
	strategy   composite.Strategy
	outBase    string
	target     string
	threshold  float64
	resolution float64
	minOverlap int
	tolerance  float64
	snap       float64
	strict     bool
}

func main() {
	var cfg config
	var strategyName string
	flag.StringVar(&cfg.dir, "dir", ".", "working directory holding site .kml + raster pairs")
	flag.StringVar(&cfg.scalePath, "scale", "color_scale.lcf", "color scale file (relative to -dir unless absolute)")
	flag.StringVar(&strategyName, "strategy", "composite", "composite | best_server | redundancy | mutual_with_target")
	flag.StringVar(&cfg.outBase, "out", "", "output base name (default derived from the strategy)")
	flag.StringVar(&cfg.target, "target", "", "target site name for mutual_with_target")
	flag.Float64Var(&cfg.threshold, "threshold", 150.0, "maximum acceptable path loss in dB (inclusive)")
	flag.Float64Var(&cfg.resolution, "resolution", 0, "common grid resolution in degrees per pixel (0 = finest input)")
	flag.IntVar(&cfg.minOverlap, "min-overlap", 2, "sites required per cell for redundancy")
	flag.Float64Var(&cfg.tolerance, "tolerance", 0, "Lab color distance accepted when decoding (0 = exact palette match only)")
	flag.Float64Var(&cfg.snap, "snap", 0, "Lab distance for snapping off-palette raster colors before decoding (0 = off)")
	flag.BoolVar(&cfg.strict, "strict", false, "abort on the first unloadable site instead of skipping it")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	strategy, err := composite.ParseStrategy(strategyName)
	if err != nil {
		logger.Error("bad flags", "err", err)
		os.Exit(2)
	}
	cfg.strategy = strategy
	if cfg.outBase == "" {
		cfg.outBase = "composite_" + strategyName
	}

	if err := run(logger, cfg); err != nil {
		logger.Error("run failed", "err", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, cfg config) error {
	scale, err := loadScale(cfg)
	if err != nil {
		return err
	}

	sites, err := loadSites(logger, cfg, scale)
	if err != nil {
		return err
	}
	if len(sites) == 0 {
		return fmt.Errorf("no usable sites in %s", cfg.dir)
	}

	comp := composite.NewCompositor(scale, sites)
	opt := composite.DefaultOptions()
	opt.Strategy = cfg.strategy
	opt.ThresholdDB = cfg.threshold
	opt.ResolutionDeg = cfg.resolution
	opt.TargetSiteID = cfg.target
	opt.MinOverlap = cfg.minOverlap
	if err := comp.Build(opt); err != nil {
		return err
	}
	logger.Info("composited",
		"strategy", opt.Strategy.String(),
		"sites", len(sites),
		"grid", fmt.Sprintf("%dx%d", comp.Grid.Width, comp.Grid.Height))

	return writeArtifacts(logger, cfg, comp, opt)
}

func loadScale(cfg config) (*composite.ColorScale, error) {
	path := cfg.scalePath
	if !filepath.IsAbs(path) {
		path = filepath.Join(cfg.dir, path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	scale, err := composite.ParseColorScale(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	scale.Tolerance = cfg.tolerance
	return scale, nil
}

// loadSites resolves each <name>.kml + raster pair in the working
// directory into a GeoRaster. Previous composite outputs are skipped so a
// run never re-ingests its own artifacts by accident.
func loadSites(logger *slog.Logger, cfg config, scale *composite.ColorScale) ([]*composite.GeoRaster, error) {
	kmls, err := filepath.Glob(filepath.Join(cfg.dir, "*.kml"))
	if err != nil {
		return nil, err
	}
	var sites []*composite.GeoRaster
	for _, kmlPath := range kmls {
		name := strings.TrimSuffix(filepath.Base(kmlPath), filepath.Ext(kmlPath))
		if strings.Contains(name, "composite") {
			continue
		}
		site, err := loadSite(cfg, scale, kmlPath, name)
		if err != nil {
			if cfg.strict {
				return nil, err
			}
			logger.Warn("skipping site", "site", name, "err", err)
			continue
		}
		if unmatched := utils.UnmatchedColors(site.Image, scale.Palette(), maxLabDist(cfg)); len(unmatched) > 0 {
			logger.Warn("raster carries colors the scale cannot decode",
				"site", name, "colors", len(unmatched))
		}
		logger.Info("loaded site", "site", name, "size", fmt.Sprintf("%dx%d", site.Raster.Width, site.Raster.Height))
		sites = append(sites, site.Raster)
	}
	return sites, nil
}

type loadedSite struct {
	Raster *composite.GeoRaster
	Image  image.Image
}

func maxLabDist(cfg config) float64 {
	if cfg.tolerance > 0 {
		return cfg.tolerance
	}
	return 0.02 // near-exact; discrete palettes should match within this
}

func loadSite(cfg config, scale *composite.ColorScale, kmlPath, name string) (*loadedSite, error) {
	kf, err := os.Open(kmlPath)
	if err != nil {
		return nil, err
	}
	bounds, err := composite.ParseLatLonBox(kf)
	kf.Close()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", kmlPath, err)
	}

	base := strings.TrimSuffix(kmlPath, filepath.Ext(kmlPath))
	rasterPath := base + ".png"
	if _, err := os.Stat(rasterPath); err != nil {
		rasterPath = base + ".ppm"
	}
	img, err := utils.ReadRaster(rasterPath)
	if err != nil {
		return nil, err
	}
	if cfg.snap > 0 {
		img = utils.SnapToPalette(img, scale.Palette(), cfg.snap)
	}
	raster, err := composite.LoadGeoRaster(name, img, scale, bounds)
	if err != nil {
		return nil, err
	}
	return &loadedSite{Raster: raster, Image: img}, nil
}

func writeArtifacts(logger *slog.Logger, cfg config, comp *composite.Compositor, opt composite.Options) error {
	outPNG := filepath.Join(cfg.dir, cfg.outBase+".png")
	outLegend := filepath.Join(cfg.dir, cfg.outBase+"_legend.png")
	outKML := filepath.Join(cfg.dir, cfg.outBase+".kml")

	if err := composite.WritePNG(outPNG, composite.RenderValues(comp.Values, comp.Scale, opt.ThresholdDB)); err != nil {
		return err
	}
	if err := composite.WritePNG(outLegend, composite.RenderScaleLegend(comp.Scale)); err != nil {
		return err
	}
	if opt.Strategy == composite.StrategyBestServer {
		servers := filepath.Join(cfg.dir, cfg.outBase+"_servers.png")
		serverLegend := filepath.Join(cfg.dir, cfg.outBase+"_server_legend.png")
		if err := composite.WritePNG(servers, composite.RenderOwners(comp.Values, comp.Owners, opt.ThresholdDB)); err != nil {
			return err
		}
		if err := composite.WritePNG(serverLegend, composite.RenderSiteLegend(comp.SiteIDs())); err != nil {
			return err
		}
	}
	if err := composite.WriteOverlayKML(outKML, composite.Overlay{
		Name:       "Composite Coverage",
		ImageHref:  filepath.Base(outPNG),
		LegendHref: filepath.Base(outLegend),
		Bounds:     comp.Grid.Bounds,
	}); err != nil {
		return err
	}
	logger.Info("wrote artifacts", "png", outPNG, "kml", outKML)
	return nil
}
