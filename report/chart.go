// Package report renders the static shape trace of a UNet.
package report

import (
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/sugarme/gounet/shapeinference"
)

// StageRow is one line of the architecture summary.
type StageRow struct {
	Name     string
	Channels int64
	Height   int64
	Width    int64
	Pad      shapeinference.Pad
}

// Rows flattens a trace into encoder rows (enc0..), decoder rows (dec0..)
// and the classifier output.
func Rows(trace *shapeinference.Trace) []StageRow {
	var rows []StageRow
	for i, f := range trace.Features[1:] {
		rows = append(rows, StageRow{Name: fmt.Sprintf("enc%d", i), Channels: f.Channels(), Height: f.Height(), Width: f.Width()})
	}
	for i, d := range trace.Decoder {
		rows = append(rows, StageRow{
			Name:     fmt.Sprintf("dec%d", i),
			Channels: d.Output.Channels(),
			Height:   d.Output.Height(),
			Width:    d.Output.Width(),
			Pad:      d.Pad,
		})
	}
	o := trace.Output
	rows = append(rows, StageRow{Name: "logit", Channels: o.Channels(), Height: o.Height(), Width: o.Width()})
	return rows
}

// WriteTable prints the trace as an aligned table.
func WriteTable(w io.Writer, trace *shapeinference.Trace) error {
	in := trace.Input
	data := [][]string{{"input", itoa(in.Channels()), itoa(in.Height()), itoa(in.Width()), ""}}
	for _, r := range Rows(trace) {
		pad := ""
		if !r.Pad.IsZero() {
			pad = fmt.Sprintf("%d,%d,%d,%d", r.Pad.Top, r.Pad.Bottom, r.Pad.Left, r.Pad.Right)
		}
		data = append(data, []string{r.Name, itoa(r.Channels), itoa(r.Height), itoa(r.Width), pad})
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"STAGE", "CHANNELS", "HEIGHT", "WIDTH", "PAD"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()
	return nil
}

func itoa(v int64) string { return strconv.FormatInt(v, 10) }

// ArchitectureChart draws per-stage channel widths (log2) next to spatial
// heights (log2) and saves the chart; the format follows the extension.
func ArchitectureChart(trace *shapeinference.Trace, path string) error {
	rows := Rows(trace)

	p, err := plot.New()
	if err != nil {
		return errors.Wrap(err, "new plot")
	}
	p.Title.Text = fmt.Sprintf("UNet %dx%d", trace.Input.Height(), trace.Input.Width())
	p.Y.Label.Text = "log2"

	channels := make(plotter.Values, len(rows))
	heights := make(plotter.Values, len(rows))
	names := make([]string, len(rows))
	for i, r := range rows {
		channels[i] = math.Log2(float64(r.Channels))
		heights[i] = math.Log2(float64(r.Height))
		names[i] = r.Name
	}

	width := vg.Points(10)
	cBars, err := plotter.NewBarChart(channels, width)
	if err != nil {
		return errors.Wrap(err, "channel bars")
	}
	cBars.Offset = -width / 2
	cBars.Color = plotutil.Color(0)

	hBars, err := plotter.NewBarChart(heights, width)
	if err != nil {
		return errors.Wrap(err, "height bars")
	}
	hBars.Offset = width / 2
	hBars.Color = plotutil.Color(1)

	p.Add(cBars, hBars)
	p.Legend.Add("channels", cBars)
	p.Legend.Add("height", hBars)
	p.Legend.Top = true
	p.NominalX(names...)

	w := vg.Length(len(rows)+2) * vg.Centimeter * 1.5
	if err := p.Save(w, 10*vg.Centimeter, path); err != nil {
		return errors.Wrapf(err, "save %s", path)
	}
	return nil
}
