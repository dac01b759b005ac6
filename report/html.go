package report

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// RenderTraceHTML writes an interactive page with the objective and
// violation charts of t.
func RenderTraceHTML(w io.Writer, t *Trace) error {
	if len(t.Points) == 0 {
		return ErrEmptyTrace
	}
	iters := make([]int, len(t.Points))
	obj := make([]opts.LineData, len(t.Points))
	viol := make([]opts.LineData, len(t.Points))
	for i, p := range t.Points {
		iters[i] = p.Iter
		obj[i] = opts.LineData{Value: p.Objective}
		viol[i] = opts.LineData{Value: p.MaxViolation}
	}
	last := t.Last()

	objChart := charts.NewLine()
	objChart.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: t.Title, Width: "100%", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{Title: t.Title, Subtitle: fmt.Sprintf("iterations=%d objective=%g", last.Iter, last.Objective)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Iteration", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Objective"}),
	)
	objChart.SetXAxis(iters).AddSeries("objective", obj)

	violChart := charts.NewLine()
	violChart.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{Title: "Max Violation", Subtitle: fmt.Sprintf("final=%g", last.MaxViolation)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Iteration", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Violation"}),
	)
	violChart.SetXAxis(iters).AddSeries("max violation", viol)

	page := components.NewPage()
	page.AddCharts(objChart, violChart)
	return page.Render(w)
}
