package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
)

const (
	colorBackground  = "#060c1b"
	colorTextPrimary = "#eceff4"
	colorSeverity    = "#3b82f6"
	colorThreshold   = "#fbbf24"
	colorAlertMark   = "#f87171"
	colorMonitorMark = "#fbbf24"

	chartWidth  = "1200px"
	chartHeight = "520px"
)

// RenderSeverityChart 把单 symbol 的决策历史渲染成 HTML 折线图。
// 主线是 severity score，ALERT/MONITOR 日期用散点标出，阈值画参考线。
func RenderSeverityChart(w io.Writer, symbol string, rows []Row, monitorThreshold, alertThreshold float64) error {
	if len(rows) == 0 {
		return fmt.Errorf("chart: %s 没有可渲染的决策历史", symbol)
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeChalk,
			BackgroundColor: colorBackground,
			Width:           chartWidth,
			Height:          chartHeight,
			PageTitle:       fmt.Sprintf("%s severity history", strings.ToUpper(symbol)),
		}),
		charts.WithTitleOpts(opts.Title{
			Title: fmt.Sprintf("%s · severity score", strings.ToUpper(symbol)),
			TitleStyle: &opts.TextStyle{
				Color: colorTextPrimary,
			},
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "score"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "date"}),
	)

	dates := make([]string, 0, len(rows))
	severity := make([]opts.LineData, 0, len(rows))
	alerts := make([]opts.ScatterData, 0)
	monitors := make([]opts.ScatterData, 0)
	for _, row := range rows {
		dates = append(dates, row.Date)
		severity = append(severity, opts.LineData{Value: row.SeverityScore})
		switch row.Classification {
		case "ALERT":
			alerts = append(alerts, opts.ScatterData{Value: []any{row.Date, row.SeverityScore}})
		case "MONITOR":
			monitors = append(monitors, opts.ScatterData{Value: []any{row.Date, row.SeverityScore}})
		}
	}

	line.SetXAxis(dates).
		AddSeries("severity", severity,
			charts.WithLineStyleOpts(opts.LineStyle{Color: colorSeverity, Width: 2}),
			charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}),
		).
		SetSeriesOptions(
			charts.WithMarkLineNameYAxisItemOpts(
				opts.MarkLineNameYAxisItem{Name: "monitor", YAxis: monitorThreshold},
				opts.MarkLineNameYAxisItem{Name: "alert", YAxis: alertThreshold},
			),
			charts.WithMarkLineStyleOpts(opts.MarkLineStyle{
				Symbol: []string{"none", "none"},
				LineStyle: &opts.LineStyle{
					Color: colorThreshold,
					Type:  "dashed",
				},
			}),
		)

	scatter := charts.NewScatter()
	scatter.SetXAxis(dates).
		AddSeries("ALERT", alerts, charts.WithItemStyleOpts(opts.ItemStyle{Color: colorAlertMark})).
		AddSeries("MONITOR", monitors, charts.WithItemStyleOpts(opts.ItemStyle{Color: colorMonitorMark}))
	line.Overlap(scatter)

	return line.Render(w)
}
