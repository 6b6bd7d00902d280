package yolods

import (
	"fmt"
	"io"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// className returns names[id] or the id as a string if there is no such name.
func className(names []string, id int) string {
	if id >= 0 && id < len(names) {
		return names[id]
	}
	return strconv.Itoa(id)
}

// WriteClassChart renders the per-class record counts of the report as an HTML bar chart.
func WriteClassChart(w io.Writer, r *Report, numClasses int, names []string) error {
	ids := r.ClassIDs(numClasses)
	x := make([]string, len(ids))
	y := make([]opts.BarData, len(ids))
	for i, id := range ids {
		x[i] = className(names, id)
		y[i] = opts.BarData{Value: r.ClassCounts[id]}
	}

	b := r.Balance(numClasses)
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Class distribution",
			Width: "100%", Height: "640px"}),
		charts.WithTitleOpts(opts.Title{
			Title: "Class distribution",
			Subtitle: fmt.Sprintf("images=%d labels=%d records=%d max/min=%.2f", r.TotalImages,
				r.TotalLabels, r.TotalRecords, b.Ratio),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).
		AddSeries("records", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)

	page := components.NewPage()
	page.AddCharts(bar)
	if err := page.Render(w); err != nil {
		return fmt.Errorf("%w: render error: %v", ErrIO, err)
	}
	return nil
}
