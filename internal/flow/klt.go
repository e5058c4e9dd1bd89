package flow

import (
	"math"

	"github.com/banshee-data/opticalflow/internal/camera"
)

// PyramidLevels is the number of levels kept in a Prepared image.
const PyramidLevels = 3

// Level is one pyramid level stored as float32 intensities.
type Level struct {
	Width  int
	Height int
	Pix    []float32
}

func (l *Level) at(x, y int) float32 {
	if x < 0 {
		x = 0
	} else if x >= l.Width {
		x = l.Width - 1
	}
	if y < 0 {
		y = 0
	} else if y >= l.Height {
		y = l.Height - 1
	}
	return l.Pix[y*l.Width+x]
}

// bilinear samples the level at a sub-pixel position, clamping at the edges.
func (l *Level) bilinear(x, y float64) float64 {
	x0, y0 := math.Floor(x), math.Floor(y)
	fx, fy := x-x0, y-y0
	ix, iy := int(x0), int(y0)
	v00 := float64(l.at(ix, iy))
	v10 := float64(l.at(ix+1, iy))
	v01 := float64(l.at(ix, iy+1))
	v11 := float64(l.at(ix+1, iy+1))
	return (1-fy)*((1-fx)*v00+fx*v10) + fy*((1-fx)*v01+fx*v11)
}

// Prepared is the cached preprocessing of one frame: an image pyramid with
// level 0 at full resolution. Storage is reused across frames.
type Prepared struct {
	Levels [PyramidLevels]Level
}

func (p *Prepared) resize(width, height int) {
	w, h := width, height
	for i := range p.Levels {
		l := &p.Levels[i]
		l.Width, l.Height = w, h
		if cap(l.Pix) < w*h {
			l.Pix = make([]float32, w*h)
		}
		l.Pix = l.Pix[:w*h]
		w, h = w/2, h/2
	}
}

// KLTParams tunes the pyramidal Lucas–Kanade tracker.
type KLTParams struct {
	GridSize   int     // tracked points per axis
	HalfWindow int     // window is (2*HalfWindow+1)² pixels
	Iterations int     // Gauss–Newton steps per level
	MinEigen   float64 // reject windows whose structure tensor is weaker than this
	MaxError   float64 // mean absolute residual at which quality reaches 0
}

// DefaultKLTParams returns the tuning used on a 64×64 image.
func DefaultKLTParams() KLTParams {
	return KLTParams{
		GridSize:   5,
		HalfWindow: 3,
		Iterations: 5,
		MinEigen:   20,
		MaxError:   16,
	}
}

// KLT tracks a grid of points with pyramidal Lucas–Kanade.
type KLT struct {
	p KLTParams
}

// NewKLT returns a tracker using p.
func NewKLT(p KLTParams) *KLT {
	return &KLT{p: p}
}

// Name implements Estimator.
func (k *KLT) Name() string { return "klt" }

// NeedsPreprocessing implements Estimator.
func (k *KLT) NeedsPreprocessing() bool { return true }

// Capability implements Estimator. Each level can recover about one window
// radius, doubled per level above the base.
func (k *KLT) Capability() float64 {
	return float64(k.p.HalfWindow) * float64(int(1)<<(PyramidLevels-1))
}

// Preprocess implements Estimator by building the image pyramid.
func (k *KLT) Preprocess(img *camera.Image, dst *Prepared) {
	dst.resize(img.Width, img.Height)
	base := &dst.Levels[0]
	for i := 0; i < img.Width*img.Height; i++ {
		base.Pix[i] = float32(img.Pix[i])
	}
	for li := 1; li < PyramidLevels; li++ {
		src, l := &dst.Levels[li-1], &dst.Levels[li]
		for y := 0; y < l.Height; y++ {
			for x := 0; x < l.Width; x++ {
				sum := src.at(2*x, 2*y) + src.at(2*x+1, 2*y) + src.at(2*x, 2*y+1) + src.at(2*x+1, 2*y+1)
				l.Pix[y*l.Width+x] = sum / 4
			}
		}
	}
}

// Estimate implements Estimator.
func (k *KLT) Estimate(prev, cur View, comp Compensation, out []Correspondence) int {
	a, b := prev.Prepared, cur.Prepared
	if a == nil || b == nil || a.Levels[0].Width != b.Levels[0].Width || a.Levels[0].Height != b.Levels[0].Height {
		return 0
	}
	w, h := a.Levels[0].Width, a.Levels[0].Height
	top := PyramidLevels - 1
	margin := (k.p.HalfWindow + 1) << top
	spanX, spanY := w-2*margin, h-2*margin
	if k.p.GridSize <= 0 || spanX < 0 || spanY < 0 {
		return 0
	}
	cx, cy := float64(w)/2, float64(h)/2

	n := 0
	for gy := 0; gy < k.p.GridSize && n < len(out); gy++ {
		for gx := 0; gx < k.p.GridSize && n < len(out); gx++ {
			x := margin + step(gx, k.p.GridSize, spanX)
			y := margin + step(gy, k.p.GridSize, spanY)
			px, py := comp.At(float64(x)-cx, float64(y)-cy)
			res := Correspondence{AtX: x, AtY: y}

			dx, dy := px/float64(int(1)<<top), py/float64(int(1)<<top)
			ok := true
			var residual float64
			for li := top; li >= 0 && ok; li-- {
				scale := float64(int(1) << li)
				dx, dy, residual, ok = k.track(&a.Levels[li], &b.Levels[li], float64(x)/scale, float64(y)/scale, dx, dy)
				if li > 0 {
					dx, dy = dx*2, dy*2
				}
			}
			if ok {
				res.X = dx - px
				res.Y = dy - py
				res.Quality = math.Max(0, 1-residual/k.p.MaxError)
			}
			out[n] = res
			n++
		}
	}
	return n
}

// track refines the displacement (dx, dy) of the window centred at (x, y)
// on one pyramid level. It returns the refined displacement, the mean
// absolute residual and false when the window lacks structure.
func (k *KLT) track(a, b *Level, x, y, dx, dy float64) (float64, float64, float64, bool) {
	hw := k.p.HalfWindow
	ix, iy := int(math.Round(x)), int(math.Round(y))

	var gxx, gxy, gyy float64
	for wy := -hw; wy <= hw; wy++ {
		for wx := -hw; wx <= hw; wx++ {
			gx := float64(a.at(ix+wx+1, iy+wy)-a.at(ix+wx-1, iy+wy)) / 2
			gy := float64(a.at(ix+wx, iy+wy+1)-a.at(ix+wx, iy+wy-1)) / 2
			gxx += gx * gx
			gxy += gx * gy
			gyy += gy * gy
		}
	}
	det := gxx*gyy - gxy*gxy
	// smaller eigenvalue of the 2×2 structure tensor
	tr := gxx + gyy
	minEig := (tr - math.Sqrt(math.Max(0, tr*tr-4*det))) / 2
	if minEig < k.p.MinEigen || det == 0 {
		return dx, dy, 0, false
	}

	var residual float64
	for it := 0; it < k.p.Iterations; it++ {
		var bx, by float64
		residual = 0
		for wy := -hw; wy <= hw; wy++ {
			for wx := -hw; wx <= hw; wx++ {
				gx := float64(a.at(ix+wx+1, iy+wy)-a.at(ix+wx-1, iy+wy)) / 2
				gy := float64(a.at(ix+wx, iy+wy+1)-a.at(ix+wx, iy+wy-1)) / 2
				diff := float64(a.at(ix+wx, iy+wy)) - b.bilinear(float64(ix+wx)+dx, float64(iy+wy)+dy)
				bx += diff * gx
				by += diff * gy
				residual += math.Abs(diff)
			}
		}
		ux := (gyy*bx - gxy*by) / det
		uy := (gxx*by - gxy*bx) / det
		dx += ux
		dy += uy
		if ux*ux+uy*uy < 1e-4 {
			break
		}
	}
	side := float64(2*hw + 1)
	return dx, dy, residual / (side * side), true
}
