package report

import (
	"bytes"
	"image/color"

	"github.com/uranc/slmea/fsutil"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

var (
	objectiveColor = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	violationColor = color.RGBA{R: 214, G: 39, B: 40, A: 255}
)

// SaveTracePNG writes the objective and constraint violation of t as two
// stacked panels of one PNG image.
func SaveTracePNG(fsys fsutil.FileSystem, t *Trace, path string) error {
	if len(t.Points) == 0 {
		return ErrEmptyTrace
	}
	objPts := make(plotter.XYs, len(t.Points))
	violPts := make(plotter.XYs, len(t.Points))
	for i, p := range t.Points {
		objPts[i] = plotter.XY{X: float64(p.Iter), Y: p.Objective}
		violPts[i] = plotter.XY{X: float64(p.Iter), Y: p.MaxViolation}
	}

	pObj, err := linePlot(t.Title+" - Objective", "Objective", objPts, objectiveColor)
	if err != nil {
		return err
	}
	pViol, err := linePlot(t.Title+" - Max Violation", "Violation", violPts, violationColor)
	if err != nil {
		return err
	}

	img := vgimg.New(10*vg.Inch, 8*vg.Inch)
	dc := draw.New(img)
	tiles := draw.Tiles{Rows: 2, Cols: 1, PadY: vg.Points(10)}
	canvases := plot.Align([][]*plot.Plot{{pObj}, {pViol}}, tiles, dc)
	pObj.Draw(canvases[0][0])
	pViol.Draw(canvases[1][0])

	var buf bytes.Buffer
	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(&buf); err != nil {
		return err
	}
	return fsys.WriteFile(path, buf.Bytes(), 0o644)
}

func linePlot(title, ylabel string, pts plotter.XYs, c color.Color) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Iteration"
	p.Y.Label.Text = ylabel
	line, err := plotter.NewLine(pts)
	if err != nil {
		return nil, err
	}
	line.Color = c
	line.Width = vg.Points(1)
	p.Add(plotter.NewGrid(), line)
	return p, nil
}
