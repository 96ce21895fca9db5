// Package diagram renders the coordinator history as an HTML page of line
// charts.
package diagram

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/dreamware/primegrid/internal/cluster"
)

// PageTitle is the HTML title of the rendered page.
const PageTitle = "PrimeGrid statistics"

const (
	chartWidth  = "100%"
	chartHeight = "400px"
	lineWidth   = 2
	labelLayout = "02.01 15:04"
	dataZoomEnd = 100
)

// series is one line of a chart, extracted from every history entry.
type series struct {
	name  string
	value func(cluster.HistoryEntry) uint64
	color string
	dash  bool
}

// spec describes one chart of the page.
type spec struct {
	title  string
	yAxis  string
	series []series
}

var (
	activeClients = series{name: "Active clients", color: "#1f77b4",
		value: func(e cluster.HistoryEntry) uint64 { return uint64(e.ActiveClients) }}
	batches = series{name: "Batches", color: "#2ca02c",
		value: func(e cluster.HistoryEntry) uint64 { return e.TotalBatchesCompleted }}
	primes = series{name: "Primes found", color: "#d62728",
		value: func(e cluster.HistoryEntry) uint64 { return e.TotalPrimesFound }}
	numbers = series{name: "Numbers processed", color: "#9467bd",
		value: func(e cluster.HistoryEntry) uint64 { return e.TotalNumbersProcessed }}
)

func dashed(s series) series {
	s.dash = true
	return s
}

// specs lists the six charts in page order.
var specs = []spec{
	{title: "Active clients over time", yAxis: "Clients", series: []series{activeClients}},
	{title: "Completed batches", yAxis: "Batches", series: []series{dashed(batches)}},
	{title: "Primes found", yAxis: "Primes", series: []series{primes}},
	{title: "Numbers processed", yAxis: "Numbers", series: []series{numbers}},
	{title: "Processed numbers vs primes found", yAxis: "Count", series: []series{dashed(numbers), primes}},
	{title: "Batches vs active clients", yAxis: "Count", series: []series{batches, dashed(activeClients)}},
}

// Titles returns the chart titles in page order.
func Titles() []string {
	out := make([]string, len(specs))
	for i, s := range specs {
		out[i] = s.title
	}
	return out
}

// Render writes the full HTML page for entries to w. An empty history still
// renders every chart, without data points.
func Render(w io.Writer, entries []cluster.HistoryEntry) error {
	page := components.NewPage()
	page.PageTitle = PageTitle

	labels := timeLabels(entries)
	for _, s := range specs {
		page.AddCharts(buildChart(s, labels, entries))
	}

	if err := page.Render(w); err != nil {
		return fmt.Errorf("render page: %w", err)
	}
	return nil
}

// RenderJSON decodes a history log (as written by the file store) from r and
// renders it to w.
func RenderJSON(w io.Writer, r io.Reader) error {
	var entries []cluster.HistoryEntry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return fmt.Errorf("decode history: %w", err)
	}
	return Render(w, entries)
}

func buildChart(s spec, labels []string, entries []cluster.HistoryEntry) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: chartWidth, Height: chartHeight}),
		charts.WithTitleOpts(opts.Title{Title: s.title, Left: "center"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(len(s.series) > 1), Top: "bottom"}),
		charts.WithDataZoomOpts(
			opts.DataZoom{Type: "slider", Start: 0, End: dataZoomEnd},
			opts.DataZoom{Type: "inside"},
		),
		charts.WithXAxisOpts(opts.XAxis{Name: "Time"}),
		charts.WithYAxisOpts(opts.YAxis{Name: s.yAxis}),
	)
	line.SetXAxis(labels)

	for _, ser := range s.series {
		data := make([]opts.LineData, len(entries))
		for i, e := range entries {
			data[i] = opts.LineData{Value: ser.value(e)}
		}

		style := opts.LineStyle{Width: lineWidth}
		if ser.dash {
			style.Type = "dashed"
		}
		line.AddSeries(ser.name, data,
			charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(true)}),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: ser.color}),
			charts.WithLineStyleOpts(style),
		)
	}
	return line
}

func timeLabels(entries []cluster.HistoryEntry) []string {
	labels := make([]string, len(entries))
	for i, e := range entries {
		t, err := time.ParseInLocation(cluster.TimestampLayout, e.Timestamp, time.Local)
		if err != nil {
			labels[i] = e.Timestamp
			continue
		}
		labels[i] = t.Format(labelLayout)
	}
	return labels
}
