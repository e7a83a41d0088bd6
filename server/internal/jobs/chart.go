package jobs

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// RenderChart writes an HTML line chart of a finished sweep to w: S/N as a
// function of AB magnitude, with the target S/N drawn as a second flat
// series when one was set.
func RenderChart(w io.Writer, job *Job) error {
	if job.Status != StatusDone {
		return fmt.Errorf("jobs: job %q is %s, nothing to chart", job.ID, job.Status)
	}

	xs := make([]string, len(job.Points))
	ys := make([]opts.LineData, len(job.Points))
	for i, pt := range job.Points {
		xs[i] = fmt.Sprintf("%.2f", pt.MagAB)
		ys[i] = opts.LineData{Value: pt.SNR}
	}

	subtitle := fmt.Sprintf("%s / %s, %d exposures",
		job.Spec.Params.Instrument, job.Spec.Params.Filter, job.Spec.Params.Exposures)
	if job.Summary != nil && job.Summary.LimitingMag != 0 {
		subtitle += fmt.Sprintf(", limiting mag %.3f AB", job.Summary.LimitingMag)
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: "Magnitude Sweep",
			Width:     "900px",
			Height:    "600px",
		}),
		charts.WithTitleOpts(opts.Title{Title: "S/N vs magnitude", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "AB mag"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "S/N"}),
	)

	line.SetXAxis(xs).
		AddSeries("S/N", ys, charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))

	if job.Spec.TargetSNR > 0 {
		target := make([]opts.LineData, len(job.Points))
		for i := range target {
			target[i] = opts.LineData{Value: job.Spec.TargetSNR}
		}
		line.AddSeries("target", target)
	}

	return line.Render(w)
}
