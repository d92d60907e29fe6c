// Package plot renders sampler traces and topology frequencies as an HTML page of echarts.
package plot

import (
	"fmt"
	"io"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/Sumatoshi-tech/sranges/pkg/mcmc"
)

// DataZoom defaults.
const dataZoomEndPercent = 100

// Chart colors of the dark theme.
const (
	chartBackground = "#1e1e2e"
	chartText       = "#cdd6f4"
	chartTextMuted  = "#a6adc8"
	chartAxis       = "#585b70"
	chartGrid       = "#313244"
	barColor        = "#89b4fa"
)

// ChartOpts provides the themed options shared by every chart.
type ChartOpts struct {
	Width  string
	Height string
}

// DefaultChartOpts returns full-width charts 500px high.
func DefaultChartOpts() *ChartOpts {
	return &ChartOpts{Width: "100%", Height: "500px"}
}

func (c *ChartOpts) init() opts.Initialization {
	return opts.Initialization{Width: c.Width, Height: c.Height, BackgroundColor: chartBackground, Theme: "dark"}
}

func (c *ChartOpts) title(title, subtitle string) opts.Title {
	return opts.Title{
		Title:         title,
		Subtitle:      subtitle,
		Left:          "center",
		TitleStyle:    &opts.TextStyle{Color: chartText},
		SubtitleStyle: &opts.TextStyle{Color: chartTextMuted},
	}
}

func (c *ChartOpts) legend() opts.Legend {
	return opts.Legend{
		Show:      opts.Bool(true),
		Type:      "scroll",
		Top:       "10%",
		Left:      "center",
		TextStyle: &opts.TextStyle{Color: chartTextMuted},
	}
}

func (c *ChartOpts) xAxis(name string) opts.XAxis {
	return opts.XAxis{
		Name:      name,
		AxisLabel: &opts.AxisLabel{Color: chartTextMuted},
		AxisLine:  &opts.AxisLine{LineStyle: &opts.LineStyle{Color: chartAxis}},
	}
}

func (c *ChartOpts) yAxis(name string) opts.YAxis {
	return opts.YAxis{
		Name:      name,
		Scale:     opts.Bool(true),
		AxisLabel: &opts.AxisLabel{Color: chartTextMuted},
		AxisLine:  &opts.AxisLine{LineStyle: &opts.LineStyle{Color: chartAxis}},
		SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: chartGrid}},
	}
}

func (c *ChartOpts) dataZoom() []opts.DataZoom {
	return []opts.DataZoom{
		{Type: "slider", Start: 0, End: dataZoomEndPercent},
		{Type: "inside"},
	}
}

// TraceChart draws the log-density trace of every chain against the iteration.
func TraceChart(c *ChartOpts, trace *mcmc.Trace) *charts.Line {
	if c == nil {
		c = DefaultChartOpts()
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(c.init()),
		charts.WithTitleOpts(c.title("Log density", "target log density of the sampled states")),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(c.dataZoom()...),
		charts.WithXAxisOpts(c.xAxis("iteration")),
		charts.WithYAxisOpts(c.yAxis("log density")),
		charts.WithLegendOpts(c.legend()),
	)

	var labels []string

	for _, chain := range trace.Chains() {
		points := trace.Points(chain)

		if len(points) > len(labels) {
			labels = labels[:0]
			for _, p := range points {
				labels = append(labels, strconv.FormatInt(p.Iteration, 10))
			}
		}

		data := make([]opts.LineData, len(points))
		for i, p := range points {
			data[i] = opts.LineData{Value: p.LogDensity}
		}

		line.AddSeries(fmt.Sprintf("chain %d", chain), data,
			charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	}

	line.SetXAxis(labels)

	return line
}

// TopologyChart draws the frequencies of the given topologies as bars.
func TopologyChart(c *ChartOpts, counts []mcmc.TopologyCount, total int64) *charts.Bar {
	if c == nil {
		c = DefaultChartOpts()
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(c.init()),
		charts.WithTitleOpts(c.title("Topologies", fmt.Sprintf("%d sampled trees", total))),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(c.xAxis("")),
		charts.WithYAxisOpts(c.yAxis("frequency")),
	)

	labels := make([]string, len(counts))
	data := make([]opts.BarData, len(counts))

	for i, tc := range counts {
		labels[i] = tc.Topology
		freq := 0.0

		if total > 0 {
			freq = float64(tc.Count) / float64(total)
		}

		data[i] = opts.BarData{Value: freq}
	}

	bar.SetXAxis(labels)
	bar.AddSeries("frequency", data, charts.WithItemStyleOpts(opts.ItemStyle{Color: barColor}))

	return bar
}

// Page renders the trace chart, when trace has samples, and the topology chart to w.
func Page(w io.Writer, trace *mcmc.Trace, counts []mcmc.TopologyCount, total int64) error {
	page := components.NewPage()
	page.PageTitle = "sranges"

	if trace != nil && len(trace.Chains()) > 0 {
		page.AddCharts(TraceChart(nil, trace))
	}

	page.AddCharts(TopologyChart(nil, counts, total))

	err := page.Render(w)
	if err != nil {
		return fmt.Errorf("render plot page: %w", err)
	}

	return nil
}
