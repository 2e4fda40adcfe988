package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/tracklab/sptfit/internal/results"
	"github.com/tracklab/sptfit/internal/stats"
)

// Comparison summarises the statistical tests between one condition pair,
// pooled across lags.
type Comparison struct {
	CondA string
	CondB string
	KS    stats.KSResult
	MWU   stats.MWUResult
}

// HTMLReport holds everything the interactive summary page renders.
type HTMLReport struct {
	Title       string
	MSDCurves   []MSDCurve
	Ensembles   []results.Ensemble
	Medians     []results.MedianD
	Comparisons []Comparison
}

// Render writes the report as a single self-contained HTML page.
func (r *HTMLReport) Render(w io.Writer) error {
	page := components.NewPage()
	page.PageTitle = r.Title

	page.AddCharts(
		r.msdChart(),
		r.dAlphaChart(),
		r.medianChart(),
	)
	if len(r.Comparisons) > 0 {
		page.AddCharts(r.comparisonChart())
	}

	if err := page.Render(w); err != nil {
		return fmt.Errorf("render html report: %w", err)
	}
	return nil
}

// Save renders the report to report.html inside outputDir.
func (r *HTMLReport) Save(outputDir string) (string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	file := filepath.Join(outputDir, "report.html")
	f, err := os.Create(file)
	if err != nil {
		return "", fmt.Errorf("create report file: %w", err)
	}
	defer f.Close()
	if err := r.Render(f); err != nil {
		return "", err
	}
	return file, nil
}

func (r *HTMLReport) msdChart() components.Charter {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: "Ensemble MSD", Subtitle: fmt.Sprintf("conditions=%d", len(r.MSDCurves))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Lag time (s)"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "MSD (µm²)"}),
	)

	// All curves share the lag axis of the longest one.
	var axis []string
	for _, c := range r.MSDCurves {
		if len(c.LagTimes) > len(axis) {
			axis = make([]string, len(c.LagTimes))
			for i, t := range c.LagTimes {
				axis[i] = fmt.Sprintf("%.3f", t)
			}
		}
	}
	line.SetXAxis(axis)

	for _, c := range r.MSDCurves {
		data := make([]opts.LineData, 0, len(c.Values))
		for _, v := range c.Values {
			data = append(data, opts.LineData{Value: v})
		}
		line.AddSeries(c.Condition, data)
	}
	return line
}

func (r *HTMLReport) dAlphaChart() components.Charter {
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: "Per-track fits", Subtitle: "D vs alpha, one point per track"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "D (µm²/s)", Type: "log"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "alpha"}),
	)

	for _, e := range r.Ensembles {
		data := make([]opts.ScatterData, 0, len(e.Rows))
		for _, row := range e.Rows {
			if row.D <= 0 {
				continue
			}
			data = append(data, opts.ScatterData{Value: []interface{}{row.D, row.Alpha}})
		}
		scatter.AddSeries(e.Condition, data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 5}))
	}
	return scatter
}

func (r *HTMLReport) medianChart() components.Charter {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: "Replicate median D"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Median D (µm²/s)"}),
	)

	x := make([]string, 0, len(r.Medians))
	y := make([]opts.BarData, 0, len(r.Medians))
	for _, m := range r.Medians {
		x = append(x, m.Replicate)
		y = append(y, opts.BarData{Value: m.Median, Name: m.Condition})
	}
	bar.SetXAxis(x).
		AddSeries("median D", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)
	return bar
}

func (r *HTMLReport) comparisonChart() components.Charter {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: "Condition comparisons", Subtitle: "p-values, KS and Mann-Whitney U on pooled D"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "p-value", Max: 1}),
	)

	x := make([]string, 0, len(r.Comparisons))
	ks := make([]opts.BarData, 0, len(r.Comparisons))
	mwu := make([]opts.BarData, 0, len(r.Comparisons))
	for _, c := range r.Comparisons {
		label := fmt.Sprintf("%s vs %s (%s)", c.CondA, c.CondB, stats.PToAsterisks(c.MWU.PValue))
		x = append(x, label)
		ks = append(ks, opts.BarData{Value: c.KS.PValue})
		mwu = append(mwu, opts.BarData{Value: c.MWU.PValue})
	}
	bar.SetXAxis(x).
		AddSeries("KS", ks).
		AddSeries("MWU", mwu)
	return bar
}
