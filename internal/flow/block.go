package flow

import (
	"math"

	"github.com/banshee-data/opticalflow/internal/camera"
)

// BlockParams tunes the block matcher.
type BlockParams struct {
	BlockSize   int     // side of the square block, pixels
	SearchRange int     // ± search radius around the rotation prediction
	GridSize    int     // blocks per axis
	MinTexture  float64 // mean absolute gradient below which a block is rejected
	MaxSAD      float64 // mean absolute difference per pixel at which quality reaches 0
}

// DefaultBlockParams returns the tuning used on a 64×64 image.
func DefaultBlockParams() BlockParams {
	return BlockParams{
		BlockSize:   8,
		SearchRange: 4,
		GridSize:    5,
		MinTexture:  2.0,
		MaxSAD:      24.0,
	}
}

// BlockMatcher estimates flow by exhaustive SAD search of a grid of blocks.
type BlockMatcher struct {
	p BlockParams
}

// NewBlockMatcher returns a block matcher using p.
func NewBlockMatcher(p BlockParams) *BlockMatcher {
	return &BlockMatcher{p: p}
}

// Name implements Estimator.
func (m *BlockMatcher) Name() string { return "block" }

// NeedsPreprocessing implements Estimator; block matching reads raw pixels.
func (m *BlockMatcher) NeedsPreprocessing() bool { return false }

// Preprocess implements Estimator and does nothing.
func (m *BlockMatcher) Preprocess(*camera.Image, *Prepared) {}

// Capability implements Estimator.
func (m *BlockMatcher) Capability() float64 { return float64(m.p.SearchRange) }

// Estimate implements Estimator.
func (m *BlockMatcher) Estimate(prev, cur View, comp Compensation, out []Correspondence) int {
	a, b := prev.Image, cur.Image
	if a == nil || b == nil || a.Width != b.Width || a.Height != b.Height {
		return 0
	}
	bs, r, g := m.p.BlockSize, m.p.SearchRange, m.p.GridSize
	margin := r + 1
	spanX := a.Width - bs - 2*margin
	spanY := a.Height - bs - 2*margin
	if g <= 0 || spanX < 0 || spanY < 0 {
		return 0
	}
	cx, cy := float64(a.Width)/2, float64(a.Height)/2
	pixels := float64(bs * bs)

	n := 0
	for gy := 0; gy < g && n < len(out); gy++ {
		for gx := 0; gx < g && n < len(out); gx++ {
			bx := margin + step(gx, g, spanX)
			by := margin + step(gy, g, spanY)
			res := Correspondence{AtX: bx + bs/2, AtY: by + bs/2}

			px, py := comp.At(float64(res.AtX)-cx, float64(res.AtY)-cy)
			if texture(a, bx, by, bs) < m.p.MinTexture {
				out[n] = res
				n++
				continue
			}

			ox, oy := int(math.Round(px)), int(math.Round(py))
			best := math.Inf(1)
			var bestX, bestY int
			var sads [3][3]float64 // neighbourhood of the best match for sub-pixel refinement
			for sy := -r; sy <= r; sy++ {
				for sx := -r; sx <= r; sx++ {
					s := sad(a, b, bx, by, bx+ox+sx, by+oy+sy, bs)
					if s < best {
						best, bestX, bestY = s, sx, sy
					}
				}
			}
			if math.IsInf(best, 1) {
				out[n] = res
				n++
				continue
			}
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					sads[dy+1][dx+1] = sad(a, b, bx, by, bx+ox+bestX+dx, by+oy+bestY+dy, bs)
				}
			}

			subX := parabola(sads[1][0], sads[1][1], sads[1][2])
			subY := parabola(sads[0][1], sads[1][1], sads[2][1])
			res.X = float64(ox+bestX) + subX - px
			res.Y = float64(oy+bestY) + subY - py
			res.Quality = math.Max(0, 1-best/(pixels*m.p.MaxSAD))
			out[n] = res
			n++
		}
	}
	return n
}

func step(i, n, span int) int {
	if n <= 1 {
		return span / 2
	}
	return i * span / (n - 1)
}

// sad is the sum of absolute differences between the block at (ax, ay) in a
// and the block at (bx, by) in b. Blocks leaving b score +Inf.
func sad(a, b *camera.Image, ax, ay, bx, by, bs int) float64 {
	if bx < 0 || by < 0 || bx+bs > b.Width || by+bs > b.Height {
		return math.Inf(1)
	}
	var sum int
	for y := 0; y < bs; y++ {
		ra := a.Pix[(ay+y)*a.Width+ax : (ay+y)*a.Width+ax+bs]
		rb := b.Pix[(by+y)*b.Width+bx : (by+y)*b.Width+bx+bs]
		for x := range ra {
			d := int(ra[x]) - int(rb[x])
			if d < 0 {
				d = -d
			}
			sum += d
		}
	}
	return float64(sum)
}

// texture is the mean absolute horizontal plus vertical gradient of a block.
func texture(img *camera.Image, bx, by, bs int) float64 {
	var sum int
	for y := by; y < by+bs-1; y++ {
		for x := bx; x < bx+bs-1; x++ {
			v := int(img.Pix[y*img.Width+x])
			dx := int(img.Pix[y*img.Width+x+1]) - v
			dy := int(img.Pix[(y+1)*img.Width+x]) - v
			if dx < 0 {
				dx = -dx
			}
			if dy < 0 {
				dy = -dy
			}
			sum += dx + dy
		}
	}
	return float64(sum) / float64((bs-1)*(bs-1))
}

// parabola returns the sub-pixel offset of the minimum of a parabola
// through (-1, l), (0, c), (1, r), limited to ±0.5.
func parabola(l, c, r float64) float64 {
	if math.IsInf(l, 1) || math.IsInf(r, 1) {
		return 0
	}
	den := l - 2*c + r
	if den <= 0 {
		return 0
	}
	off := 0.5 * (l - r) / den
	return math.Max(-0.5, math.Min(0.5, off))
}
