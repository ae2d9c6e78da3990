package sohcast

import (
	"bytes"
	"encoding/base64"
	"math"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// LineCapacity generates an echart line chart of the actual capacity series
// against the forecasted window. Null positions render as gaps.
func LineCapacity(res *Result) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(
			opts.Title{
				Title: "Capacity Forecast",
			},
		),
		charts.WithXAxisOpts(
			opts.XAxis{
				Name: "Month index",
			},
		),
		charts.WithYAxisOpts(
			opts.YAxis{
				Name: "Ca (Ah)",
			},
		),
	)

	lineDataActual := make([]opts.LineData, 0, len(res.T))
	lineDataPredicted := make([]opts.LineData, 0, len(res.T))
	for i := 0; i < len(res.T); i++ {
		lineDataActual = append(lineDataActual, lineData(res.Actual[i]))
		lineDataPredicted = append(lineDataPredicted, lineData(res.Predicted[i]))
	}

	line.SetXAxis(res.T).
		AddSeries("Actual Ca", lineDataActual).
		AddSeries(res.ModelLabel, lineDataPredicted)
	return line
}

func lineData(v float64) opts.LineData {
	if math.IsNaN(v) {
		// echarts renders "-" as a gap in the series
		return opts.LineData{Value: "-"}
	}
	return opts.LineData{Value: v}
}

// renderChart renders the capacity chart page and returns it base64 encoded.
func renderChart(res *Result) (string, error) {
	page := components.NewPage()
	page.AddCharts(LineCapacity(res))

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
