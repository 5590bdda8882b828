package emath

import "math"

// Separable resampling, used to build and collapse the pyramids. Each
// output sample along an axis is a weighted sum of a few input samples;
// the per-axis weights are worked out once into a slice of taps.

// binomial is the 5-tap low-pass filter used when halving a level
var binomial = [5]float64{1.0/16, 4.0/16, 6.0/16, 4.0/16, 1.0/16}

type tap struct {
	idx []int
	wt  []float64
}

// apply sums src[idx*step + off] * wt over the taps
func (t tap)apply(src []float32, step, off int) float32 {
	s := 0.0
	for i, j := range t.idx {
		s += t.wt[i] * float64(src[j*step + off])
	}
	return float32(s)
}

// reflect101 mirrors an out of range index back into [0,n), without
// repeating the edge sample (so -1 -> 1, n -> n-2).
func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 { i = -i }
		if i >= n { i = 2*n - 2 - i }
	}
	return i
}

// downTaps blurs with the binomial kernel and keeps every second sample
func downTaps(n, outN int) []tap {
	taps := make([]tap, outN)
	for o:=0; o<outN; o++ {
		t := tap{idx: make([]int, 5), wt: make([]float64, 5)}
		for k:=-2; k<=2; k++ {
			t.idx[k+2] = reflect101(2*o + k, n)
			t.wt[k+2]  = binomial[k+2]
		}
		taps[o] = t
	}
	return taps
}

// upTaps is the polyphase form of zero-stuffing followed by the binomial
// kernel (scaled by 2): even outputs sit on an input sample and take
// (1,6,1)/8, odd outputs sit between two and take (4,4)/8. When outN is
// odd the trailing even sample has no input under it, so its center is
// clamped to the last input.
func upTaps(n, outN int) []tap {
	taps := make([]tap, outN)
	for o:=0; o<outN; o++ {
		j := o / 2
		if j > n-1 {
			j = n-1
		}
		if o%2 == 0 {
			taps[o] = tap{
				idx: []int{reflect101(j-1, n), j, reflect101(j+1, n)},
				wt:  []float64{1.0/8, 6.0/8, 1.0/8},
			}
		} else {
			taps[o] = tap{
				idx: []int{j, reflect101(j+1, n)},
				wt:  []float64{4.0/8, 4.0/8},
			}
		}
	}
	return taps
}

// areaTaps averages the input samples covered by each output sample,
// weighting partially covered samples by the covered fraction.
func areaTaps(n, outN int) []tap {
	taps := make([]tap, outN)
	scale := float64(n) / float64(outN)
	for o:=0; o<outN; o++ {
		lo := float64(o) * scale
		hi := lo + scale
		t := tap{}
		for i:=int(math.Floor(lo)); i<n && float64(i)<hi; i++ {
			cover := math.Min(hi, float64(i+1)) - math.Max(lo, float64(i))
			if cover <= 0 {
				continue
			}
			t.idx = append(t.idx, i)
			t.wt  = append(t.wt, cover/scale)
		}
		taps[o] = t
	}
	return taps
}

// resample runs the x taps then the y taps over every channel of src,
// on a pool of the given number of workers.
func (src *FloatImage)resample(outW, outH int, xt, yt []tap, workers int) *FloatImage {
	c := src.C
	tmp := NewFloatImage(outW, src.H, c)
	ParallelRows(src.H, workers, func(y0, y1 int) {
		for y:=y0; y<y1; y++ {
			in  := src.Row(y)
			out := tmp.Row(y)
			for x:=0; x<outW; x++ {
				for ch:=0; ch<c; ch++ {
					out[x*c + ch] = xt[x].apply(in, c, ch)
				}
			}
		}
	})

	dst := NewFloatImage(outW, outH, c)
	stride := outW * c
	ParallelRows(outH, workers, func(y0, y1 int) {
		for y:=y0; y<y1; y++ {
			out := dst.Row(y)
			for i:=0; i<stride; i++ {
				out[i] = yt[y].apply(tmp.Pix, stride, i)
			}
		}
	})
	return dst
}

// PyrDown low-pass filters the image and halves each dimension (rounding down)
func (src *FloatImage)PyrDown(workers int) *FloatImage {
	w, h := src.W/2, src.H/2
	return src.resample(w, h, downTaps(src.W, w), downTaps(src.H, h), workers)
}

// PyrUp interpolates the image up to w x h, which should be about twice its size
func (src *FloatImage)PyrUp(w, h, workers int) *FloatImage {
	return src.resample(w, h, upTaps(src.W, w), upTaps(src.H, h), workers)
}
