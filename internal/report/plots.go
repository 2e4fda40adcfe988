// Package report renders the analysis outputs: static PNG figures via
// gonum/plot and an interactive HTML summary via go-echarts.
package report

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/tracklab/sptfit/internal/results"
	"github.com/tracklab/sptfit/internal/stats"
)

// MSDCurve is one averaged MSD series ready for plotting, labelled by the
// condition it was pooled from.
type MSDCurve struct {
	Condition string
	LagTimes  []float64
	Values    []float64
}

// Plotter writes PNG figures into a single output directory.
type Plotter struct {
	outputDir string
}

// NewPlotter creates the output directory if needed.
func NewPlotter(outputDir string) (*Plotter, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("create plot output dir: %w", err)
	}
	return &Plotter{outputDir: outputDir}, nil
}

// SaveMSDCurves plots the per-condition ensemble-averaged MSD curves on a
// shared axis.
func (pl *Plotter) SaveMSDCurves(curves []MSDCurve) (string, error) {
	p := plot.New()
	p.Title.Text = "Ensemble MSD"
	p.X.Label.Text = "Lag time (s)"
	p.Y.Label.Text = "MSD (µm²)"

	colors := generateColors(len(curves))
	for i, c := range curves {
		pts := make(plotter.XYs, 0, len(c.LagTimes))
		for j := range c.LagTimes {
			pts = append(pts, plotter.XY{X: c.LagTimes[j], Y: c.Values[j]})
		}
		if len(pts) == 0 {
			continue
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return "", fmt.Errorf("msd line for %s: %w", c.Condition, err)
		}
		line.Color = colors[i]
		line.Width = vg.Points(1.5)
		p.Add(line)
		p.Legend.Add(c.Condition, line)
	}

	p.Legend.Top = true
	p.Legend.Left = true
	p.Legend.XOffs = 10
	p.Legend.YOffs = -10

	file := filepath.Join(pl.outputDir, "ensemble_msd.png")
	if err := p.Save(8*vg.Inch, 6*vg.Inch, file); err != nil {
		return "", fmt.Errorf("save msd plot: %w", err)
	}
	return file, nil
}

// SaveHistogram writes a histogram of values, one PNG per call. name keys
// the output file ("D" or "alpha"), label the x axis.
func (pl *Plotter) SaveHistogram(condition, name, label string, values []float64, bins int) (string, error) {
	if len(values) == 0 {
		return "", fmt.Errorf("no values to plot for %s/%s", condition, name)
	}
	if bins <= 0 {
		bins = 30
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s - %s", condition, label)
	p.X.Label.Text = label
	p.Y.Label.Text = "Count"

	h, err := plotter.NewHist(plotter.Values(values), bins)
	if err != nil {
		return "", fmt.Errorf("histogram for %s/%s: %w", condition, name, err)
	}
	h.FillColor = color.RGBA{R: 0x31, G: 0x68, B: 0x8e, A: 255}
	p.Add(h)

	file := filepath.Join(pl.outputDir, fmt.Sprintf("%s_%s_hist.png", condition, name))
	if err := p.Save(8*vg.Inch, 6*vg.Inch, file); err != nil {
		return "", fmt.Errorf("save histogram: %w", err)
	}
	return file, nil
}

// KDECurve is one evaluated density estimate, labelled by condition.
type KDECurve struct {
	Condition string
	X         []float64
	Density   []float64
	Alpha2    float64
}

// SaveStepKDE plots per-condition step-size density estimates for one lag,
// annotating each legend entry with the non-Gaussian parameter.
func (pl *Plotter) SaveStepKDE(tlag int, curves []KDECurve) (string, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Step size density (tlag=%d)", tlag)
	p.X.Label.Text = "Step size (µm)"
	p.Y.Label.Text = "Density"

	colors := generateColors(len(curves))
	for i, c := range curves {
		pts := make(plotter.XYs, 0, len(c.X))
		for j := range c.X {
			pts = append(pts, plotter.XY{X: c.X[j], Y: c.Density[j]})
		}
		if len(pts) == 0 {
			continue
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return "", fmt.Errorf("kde line for %s: %w", c.Condition, err)
		}
		line.Color = colors[i]
		line.Width = vg.Points(1.5)
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("%s (a2=%.3f)", c.Condition, c.Alpha2), line)
	}

	p.Legend.Top = true
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	file := filepath.Join(pl.outputDir, fmt.Sprintf("step_kde_tlag_%02d.png", tlag))
	if err := p.Save(8*vg.Inch, 6*vg.Inch, file); err != nil {
		return "", fmt.Errorf("save kde plot: %w", err)
	}
	return file, nil
}

// SaveReplicateMedians plots per-replicate median D grouped by condition
// as a scatter, one x position per condition.
func (pl *Plotter) SaveReplicateMedians(medians []results.MedianD) (string, error) {
	p := plot.New()
	p.Title.Text = "Replicate median D"
	p.X.Label.Text = "Condition"
	p.Y.Label.Text = "Median D (µm²/s)"

	// Assign each condition an integer x position, in first-seen order.
	xpos := make(map[string]int)
	var names []string
	for _, m := range medians {
		if _, ok := xpos[m.Condition]; !ok {
			xpos[m.Condition] = len(names)
			names = append(names, m.Condition)
		}
	}

	pts := make(plotter.XYs, 0, len(medians))
	for _, m := range medians {
		pts = append(pts, plotter.XY{X: float64(xpos[m.Condition]), Y: m.Median})
	}
	sc, err := plotter.NewScatter(pts)
	if err != nil {
		return "", fmt.Errorf("median scatter: %w", err)
	}
	sc.GlyphStyle.Radius = vg.Points(3)
	p.Add(sc)

	p.NominalX(names...)

	file := filepath.Join(pl.outputDir, "replicate_median_d.png")
	if err := p.Save(8*vg.Inch, 6*vg.Inch, file); err != nil {
		return "", fmt.Errorf("save median plot: %w", err)
	}
	return file, nil
}

// KSByLag is the two-sample KS result for one lag of a condition pair.
type KSByLag struct {
	Tlag   int
	Result stats.KSResult
}

// SaveKSPValues plots KS p-values against lag for one condition pair, with
// a dashed reference line at 0.05.
func (pl *Plotter) SaveKSPValues(condA, condB string, rows []KSByLag) (string, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("KS test: %s vs %s", condA, condB)
	p.X.Label.Text = "tlag"
	p.Y.Label.Text = "p-value"
	p.Y.Min = 0
	p.Y.Max = 1

	pts := make(plotter.XYs, 0, len(rows))
	for _, r := range rows {
		pts = append(pts, plotter.XY{X: float64(r.Tlag), Y: r.Result.PValue})
	}
	line, scatter, err := plotter.NewLinePoints(pts)
	if err != nil {
		return "", fmt.Errorf("ks line: %w", err)
	}
	line.Color = color.RGBA{R: 0x26, G: 0x82, B: 0x8e, A: 255}
	scatter.GlyphStyle.Radius = vg.Points(3)
	p.Add(line, scatter)

	if len(rows) > 0 {
		ref := plotter.XYs{
			{X: float64(rows[0].Tlag), Y: 0.05},
			{X: float64(rows[len(rows)-1].Tlag), Y: 0.05},
		}
		refLine, err := plotter.NewLine(ref)
		if err != nil {
			return "", fmt.Errorf("ks reference line: %w", err)
		}
		refLine.Color = color.RGBA{R: 0xff, G: 0x52, B: 0x52, A: 255}
		refLine.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
		p.Add(refLine)
	}

	file := filepath.Join(pl.outputDir, fmt.Sprintf("ks_%s_vs_%s.png", condA, condB))
	if err := p.Save(8*vg.Inch, 6*vg.Inch, file); err != nil {
		return "", fmt.Errorf("save ks plot: %w", err)
	}
	return file, nil
}

// generateColors creates a palette of distinct colors for condition lines.
func generateColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}
	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		hue := float64(i) / float64(n)
		r, g, b := hslToRGB(hue, 0.7, 0.45)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

// hslToRGB converts HSL to RGB (0-255 range)
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	var rf, gf, bf float64

	if s == 0 {
		rf, gf, bf = l, l, l
	} else {
		var q float64
		if l < 0.5 {
			q = l * (1 + s)
		} else {
			q = l + s - l*s
		}
		p := 2*l - q
		rf = hueToRGB(p, q, h+1.0/3.0)
		gf = hueToRGB(p, q, h)
		bf = hueToRGB(p, q, h-1.0/3.0)
	}

	return uint8(rf * 255), uint8(gf * 255), uint8(bf * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t += 1
	}
	if t > 1 {
		t -= 1
	}
	if t < 1.0/6.0 {
		return p + (q-p)*6*t
	}
	if t < 1.0/2.0 {
		return q
	}
	if t < 2.0/3.0 {
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}
