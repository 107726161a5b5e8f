package export

import (
	"fmt"
	"image/color"
	"io"

	"github.com/nvr-ai/galton-goalie/histogram"
	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// ChartOptions control what the histogram charts show.
type ChartOptions struct {
	Title        string
	ShowGaussian bool
	ShowStats    bool
	Width        vg.Length
	Height       vg.Length
}

// DefaultChartOptions returns the stock chart layout.
func DefaultChartOptions() ChartOptions {
	return ChartOptions{
		Title:        "Galton board distribution",
		ShowGaussian: true,
		ShowStats:    true,
		Width:        10 * vg.Inch,
		Height:       5 * vg.Inch,
	}
}

var (
	barColor   = color.RGBA{R: 70, G: 130, B: 180, A: 255}
	curveColor = color.RGBA{R: 220, G: 60, B: 60, A: 255}
)

// StatsLine formats the summary shown under chart titles.
func StatsLine(stats histogram.Statistics) string {
	return fmt.Sprintf("N = %d   mean = %.2f   std dev = %.2f", stats.Total, stats.Mean, stats.StdDev)
}

// NewHistogramPlot builds a bar chart of counts at positions 1..n with an optional fitted
// normal curve.
func NewHistogramPlot(counts []uint64, opts ChartOptions) (*plot.Plot, error) {
	if len(counts) == 0 {
		return nil, errors.New("histogram has no buckets")
	}
	stats := histogram.Compute(counts)

	p := plot.New()
	p.Title.Text = opts.Title
	if opts.ShowStats {
		p.Title.Text += "\n" + StatsLine(stats)
	}
	p.X.Label.Text = "Bucket"
	p.Y.Label.Text = "Count"
	p.Legend.Top = true

	values := make(plotter.Values, len(counts))
	for i, c := range counts {
		values[i] = float64(c)
	}
	bars, err := plotter.NewBarChart(values, vg.Points(20))
	if err != nil {
		return nil, errors.Wrap(err, "bar chart")
	}
	bars.XMin = 1
	bars.Color = barColor
	bars.LineStyle.Width = vg.Length(0)
	p.Add(bars)
	p.Legend.Add("Counts", bars)

	ticks := make([]plot.Tick, len(counts))
	for i := range counts {
		ticks[i] = plot.Tick{Value: float64(i + 1), Label: fmt.Sprint(i + 1)}
	}
	p.X.Tick.Marker = plot.ConstantTicks(ticks)
	p.X.Min = 0.5
	p.X.Max = float64(len(counts)) + 0.5
	p.Y.Min = 0

	if opts.ShowGaussian {
		xs, ys := GaussianCurve(counts, stats)
		if len(xs) > 0 {
			pts := make(plotter.XYs, len(xs))
			for i := range xs {
				pts[i] = plotter.XY{X: xs[i], Y: ys[i]}
			}
			line, err := plotter.NewLine(pts)
			if err != nil {
				return nil, errors.Wrap(err, "gaussian line")
			}
			line.Width = vg.Points(2)
			line.Color = curveColor
			p.Add(line)
			p.Legend.Add("Normal fit", line)
		}
	}

	return p, nil
}

// WritePNG renders the histogram plot as a PNG image.
func WritePNG(w io.Writer, counts []uint64, opts ChartOptions) error {
	p, err := NewHistogramPlot(counts, opts)
	if err != nil {
		return err
	}
	if opts.Width == 0 || opts.Height == 0 {
		def := DefaultChartOptions()
		opts.Width, opts.Height = def.Width, def.Height
	}
	wt, err := p.WriterTo(opts.Width, opts.Height, "png")
	if err != nil {
		return errors.Wrap(err, "png canvas")
	}
	_, err = wt.WriteTo(w)
	return errors.Wrap(err, "write png")
}

// SavePNG renders the histogram plot to a file; the format follows the extension.
func SavePNG(path string, counts []uint64, opts ChartOptions) error {
	p, err := NewHistogramPlot(counts, opts)
	if err != nil {
		return err
	}
	return errors.Wrapf(p.Save(opts.Width, opts.Height, path), "save %s", path)
}
