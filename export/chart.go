package export

import (
	"io"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/nvr-ai/galton-goalie/histogram"
	"github.com/pkg/errors"
)

// NewHistogramChart builds an interactive bar chart of counts with an optional fitted normal
// line sampled at each bucket centre.
func NewHistogramChart(counts []uint64, options ChartOptions) *charts.Bar {
	stats := histogram.Compute(counts)

	subtitle := ""
	if options.ShowStats {
		subtitle = StatsLine(stats)
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: options.Title, Width: "100%", Height: "520px"}),
		charts.WithTitleOpts(opts.Title{Title: options.Title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)

	labels := make([]string, len(counts))
	data := make([]opts.BarData, len(counts))
	for i, c := range counts {
		labels[i] = strconv.Itoa(i + 1)
		data[i] = opts.BarData{Value: c}
	}
	bar.SetXAxis(labels).AddSeries("Counts", data,
		charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
	)

	if !options.ShowGaussian {
		return bar
	}
	xs, ys := GaussianCurve(counts, stats)
	if len(xs) == 0 {
		return bar
	}
	fit := make([]opts.LineData, 0, len(counts))
	for i := range xs {
		if i%gaussianSamplesPerBucket == gaussianSamplesPerBucket/2 {
			fit = append(fit, opts.LineData{Value: ys[i]})
		}
	}
	line := charts.NewLine()
	line.SetXAxis(labels).AddSeries("Normal fit", fit,
		charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}),
	)
	bar.Overlap(line)

	return bar
}

// WriteHTML renders the interactive histogram chart as a standalone HTML page.
func WriteHTML(w io.Writer, counts []uint64, options ChartOptions) error {
	page := components.NewPage()
	page.AddCharts(NewHistogramChart(counts, options))
	return errors.Wrap(page.Render(w), "render chart")
}
