package facematch

import (
	"errors"
	"fmt"
	"image"
	"math"
)

// EmbeddingDim is the fixed dimensionality produced by the built-in encoder.
const EmbeddingDim = 128

// DefaultThreshold is the calibrated match-distance cutoff. Callers may
// override it per comparison.
const DefaultThreshold = 0.5

var (
	ErrNoFaceDetected   = errors.New("no face detected")
	ErrInvalidEmbedding = errors.New("invalid embedding")
)

// Embedding is a fixed-length numeric vector representing a face.
type Embedding []float64

// Matcher turns a captured image into an embedding and compares embedding
// pairs. Implementations must be stateless and side-effect free so the
// recognition engine can be swapped or mocked without touching orchestration.
type Matcher interface {
	// Enroll locates the primary face region in img and returns its
	// embedding. Returns ErrNoFaceDetected when no usable region is found.
	Enroll(img image.Image) (Embedding, error)
	// Verify reports whether probe matches ref within threshold, along with
	// the measured distance. Returns ErrInvalidEmbedding on dimension
	// mismatch.
	Verify(ref, probe Embedding, threshold float64) (bool, float64, error)
}

// GridMatcher is the built-in deterministic encoder. It slides a detection
// window over the luminance plane looking for regions with face-like local
// contrast, picks the largest qualifying region as the primary (multiple
// regions never fall through to model order), and encodes that region as a
// normalised 8x16 luminance-gradient grid.
//
// It is not a production-grade recognition model. It exists so the pipeline
// is fully exercisable without a native vision dependency; deployments swap
// in a real engine behind the Matcher interface.
type GridMatcher struct{}

func New() *GridMatcher { return &GridMatcher{} }

// Enroll implements Matcher.
func (m *GridMatcher) Enroll(img image.Image) (Embedding, error) {
	if img == nil {
		return nil, ErrNoFaceDetected
	}
	lum := luminance(img)
	region, ok := detectPrimaryRegion(lum)
	if !ok {
		return nil, ErrNoFaceDetected
	}
	return encodeRegion(lum, region), nil
}

// Verify implements Matcher. Distance is Euclidean over the embedding space;
// a probe matches when distance <= threshold.
func (m *GridMatcher) Verify(ref, probe Embedding, threshold float64) (bool, float64, error) {
	return Verify(ref, probe, threshold)
}

// Verify is the pure comparison shared by all matcher implementations.
func Verify(ref, probe Embedding, threshold float64) (bool, float64, error) {
	if len(ref) == 0 || len(probe) == 0 {
		return false, 0, fmt.Errorf("empty embedding: %w", ErrInvalidEmbedding)
	}
	if len(ref) != len(probe) {
		return false, 0, fmt.Errorf("dimension mismatch %d vs %d: %w", len(ref), len(probe), ErrInvalidEmbedding)
	}
	var sum float64
	for i := range ref {
		d := ref[i] - probe[i]
		sum += d * d
	}
	dist := math.Sqrt(sum)
	return dist <= threshold, dist, nil
}

// plane is a dense grayscale raster.
type plane struct {
	w, h int
	pix  []float64
}

func (p *plane) at(x, y int) float64 { return p.pix[y*p.w+x] }

func luminance(img image.Image) *plane {
	b := img.Bounds()
	p := &plane{w: b.Dx(), h: b.Dy(), pix: make([]float64, b.Dx()*b.Dy())}
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			// Rec. 601 luma, 16-bit channels scaled to [0,1].
			p.pix[i] = (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(bl)) / 65535.0
			i++
		}
	}
	return p
}

// detectPrimaryRegion scans candidate windows and keeps those whose local
// luminance variance clears a floor (flat frames, covered lenses and blank
// captures produce none). Among qualifying windows the largest wins; equal
// sizes tie-break on top-left position so the choice is deterministic.
func detectPrimaryRegion(p *plane) (image.Rectangle, bool) {
	const minDim = 32
	const varianceFloor = 0.004

	if p.w < minDim || p.h < minDim {
		return image.Rectangle{}, false
	}

	best := image.Rectangle{}
	found := false
	// Windows at 3 scales relative to the frame, stepped by half a window.
	for _, frac := range []float64{0.9, 0.6, 0.4} {
		side := int(frac * float64(min(p.w, p.h)))
		if side < minDim {
			continue
		}
		step := side / 2
		for y := 0; y+side <= p.h; y += step {
			for x := 0; x+side <= p.w; x += step {
				r := image.Rect(x, y, x+side, y+side)
				if regionVariance(p, r) < varianceFloor {
					continue
				}
				if !found || larger(r, best) {
					best = r
					found = true
				}
			}
		}
	}
	return best, found
}

func larger(a, b image.Rectangle) bool {
	aa, ba := a.Dx()*a.Dy(), b.Dx()*b.Dy()
	if aa != ba {
		return aa > ba
	}
	if a.Min.Y != b.Min.Y {
		return a.Min.Y < b.Min.Y
	}
	return a.Min.X < b.Min.X
}

func regionVariance(p *plane, r image.Rectangle) float64 {
	var sum, sumSq float64
	n := float64(r.Dx() * r.Dy())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			v := p.at(x, y)
			sum += v
			sumSq += v * v
		}
	}
	mean := sum / n
	return sumSq/n - mean*mean
}

// encodeRegion samples the region into an 8x8 grid of mean luminance plus an
// 8x8 grid of horizontal gradients, then L2-normalises the 128 values so
// distance comparisons are scale-invariant.
func encodeRegion(p *plane, r image.Rectangle) Embedding {
	const grid = 8
	e := make(Embedding, EmbeddingDim)

	cw := float64(r.Dx()) / grid
	ch := float64(r.Dy()) / grid
	for gy := 0; gy < grid; gy++ {
		for gx := 0; gx < grid; gx++ {
			x0 := r.Min.X + int(float64(gx)*cw)
			y0 := r.Min.Y + int(float64(gy)*ch)
			x1 := r.Min.X + int(float64(gx+1)*cw)
			y1 := r.Min.Y + int(float64(gy+1)*ch)
			if x1 <= x0 {
				x1 = x0 + 1
			}
			if y1 <= y0 {
				y1 = y0 + 1
			}
			var sum, grad float64
			n := float64((x1 - x0) * (y1 - y0))
			for y := y0; y < y1; y++ {
				for x := x0; x < x1; x++ {
					sum += p.at(x, y)
					if x+1 < p.w {
						grad += math.Abs(p.at(x+1, y) - p.at(x, y))
					}
				}
			}
			e[gy*grid+gx] = sum / n
			e[64+gy*grid+gx] = grad / n
		}
	}

	var norm float64
	for _, v := range e {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range e {
			e[i] /= norm
		}
	}
	return e
}
