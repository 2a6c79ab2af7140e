package api

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// echartsAssetsPrefix is where the rendered page loads echarts.min.js from.
const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// presenceChart renders occupancy per bucket over the requested window as
// a stepped line chart. Buckets are 15 minutes up to a day, hourly beyond.
func (s *Server) presenceChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	if !s.requireDB(w) {
		return
	}
	from, to, err := s.window(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	width := 15 * time.Minute
	if to.Sub(from) > 24*time.Hour {
		width = time.Hour
	}

	buckets, err := s.db.OccupancySeries(from, to, width)
	if err != nil {
		internalError(w, fmt.Sprintf("Failed to compute occupancy: %v", err))
		return
	}
	summary, err := s.db.OccupancySummary(from, to)
	if err != nil {
		internalError(w, fmt.Sprintf("Failed to compute occupancy: %v", err))
		return
	}

	x := make([]string, 0, len(buckets))
	y := make([]opts.LineData, 0, len(buckets))
	for _, b := range buckets {
		x = append(x, b.Start.Format("01-02 15:04"))
		y = append(y, opts.LineData{Value: b.Occupancy * 100})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Presence", Width: "100%", Height: "600px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Occupancy",
			Subtitle: fmt.Sprintf("%s to %s, %.1f%% present, %d arrivals", from.Format(time.RFC3339), to.Format(time.RFC3339), summary.Occupancy*100, summary.Arrivals),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 100, Name: "% present"}),
	)
	line.SetXAxis(x).AddSeries("occupancy", y,
		charts.WithLineChartOpts(opts.LineChart{Step: "end"}),
		charts.WithAreaStyleOpts(opts.AreaStyle{Opacity: opts.Float(0.3)}),
	)

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsPrefix)
	page.AddCharts(line)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		internalError(w, fmt.Sprintf("render error: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
