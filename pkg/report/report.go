// Package report summarizes a stacking run: how long each image took,
// and how far each one had to be moved to line up with the first.
package report

import(
	"fmt"
	"image/color"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/codahale/hdrhistogram"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/abworrall/focus-stack/pkg/stack"
)

// Timings are recorded in microseconds, up to an hour per image
const(
	minMicros = 1
	maxMicros = int64(time.Hour / time.Microsecond)
	sigFigs   = 3
)

type Timing struct {
	Count   int64
	Min     time.Duration
	Max     time.Duration
	Mean    time.Duration
	P50     time.Duration
	P90     time.Duration
	P99     time.Duration
	Total   time.Duration
}

func (t Timing)String() string {
	return fmt.Sprintf("%d images in %s: min %s, p50 %s, p90 %s, p99 %s, max %s, mean %s",
		t.Count, t.Total.Round(time.Millisecond), t.Min, t.P50, t.P90, t.P99, t.Max, t.Mean)
}

// Summarize builds a latency histogram of the per-frame times
func Summarize(frames []stack.Frame) Timing {
	h := hdrhistogram.New(minMicros, maxMicros, sigFigs)
	total := time.Duration(0)

	for _, f := range frames {
		if err := record(h, f.Elapsed); err != nil {
			log.Printf("report: frame %d: %v\n", f.Index, err)
		}
		total += f.Elapsed
	}

	if h.TotalCount() == 0 {
		return Timing{}
	}

	us := func(v int64) time.Duration { return time.Duration(v) * time.Microsecond }
	return Timing{
		Count: h.TotalCount(),
		Min:   us(h.Min()),
		Max:   us(h.Max()),
		Mean:  time.Duration(h.Mean() * float64(time.Microsecond)),
		P50:   us(h.ValueAtQuantile(50)),
		P90:   us(h.ValueAtQuantile(90)),
		P99:   us(h.ValueAtQuantile(99)),
		Total: total,
	}
}

// record adds d to h in microseconds, clamped to what h can track
func record(h *hdrhistogram.Histogram, d time.Duration) error {
	us := int64(d / time.Microsecond)
	if lo := h.LowestTrackableValue(); us < lo {
		us = lo
	} else if hi := h.HighestTrackableValue(); us > hi {
		us = hi
	}
	if err := h.RecordValue(us); err != nil {
		return fmt.Errorf("record %s: %w", d, err)
	}
	return nil
}

// Text is a plain listing of the frames, followed by the timing summary
func Text(frames []stack.Frame) string {
	str := ""
	for _, f := range frames {
		str += f.String() + "\n"
	}
	return str + Summarize(frames).String() + "\n"
}

// WritePlots writes shifts.png (the registration shift of each frame) and
// timings.png (how long each frame took) into dir, and returns their
// filenames.
func WritePlots(frames []stack.Frame, dir string) ([]string, error) {
	if len(frames) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("report: %w", err)
	}

	dx := make(plotter.XYs, len(frames))
	dy := make(plotter.XYs, len(frames))
	secs := make(plotter.XYs, len(frames))
	for i, f := range frames {
		x := float64(f.Index)
		dx[i] = plotter.XY{X: x, Y: f.DX}
		dy[i] = plotter.XY{X: x, Y: f.DY}
		secs[i] = plotter.XY{X: x, Y: f.Elapsed.Seconds()}
	}

	shifts := plot.New()
	shifts.Title.Text = "Registration shift"
	shifts.X.Label.Text = "Frame"
	shifts.Y.Label.Text = "Pixels"
	if err := addLine(shifts, "dx", dx, color.RGBA{R: 200, A: 255}); err != nil {
		return nil, err
	}
	if err := addLine(shifts, "dy", dy, color.RGBA{B: 200, A: 255}); err != nil {
		return nil, err
	}

	timings := plot.New()
	timings.Title.Text = fmt.Sprintf("Time per frame (%s)", Summarize(frames).Total.Round(time.Millisecond))
	timings.X.Label.Text = "Frame"
	timings.Y.Label.Text = "Seconds"
	if err := addLine(timings, "elapsed", secs, color.RGBA{G: 150, A: 255}); err != nil {
		return nil, err
	}

	written := []string{}
	for i, p := range []*plot.Plot{shifts, timings} {
		filename := filepath.Join(dir, []string{"shifts.png", "timings.png"}[i])
		if err := p.Save(8*vg.Inch, 4*vg.Inch, filename); err != nil {
			return written, fmt.Errorf("report: save %s: %w", filename, err)
		}
		written = append(written, filename)
	}
	return written, nil
}

func addLine(p *plot.Plot, label string, pts plotter.XYs, c color.Color) error {
	l, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("report: %s: %w", label, err)
	}
	l.Color = c
	l.Width = vg.Points(1)
	p.Add(l)
	p.Legend.Add(label, l)
	return nil
}
