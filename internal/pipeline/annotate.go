package pipeline

import (
	"github.com/banshee-data/opticalflow/internal/camera"
	"github.com/banshee-data/opticalflow/internal/flow"
)

// Marker intensities painted into exported video frames.
const (
	AnchorMarker = 255
	FlowMarker   = 200
)

// Annotate marks each accepted correspondence in img: the anchor pixel and
// the point displaced by twice the measured flow. Offsets outside a
// frameSize×frameSize image are skipped.
func Annotate(img *camera.Image, results []flow.Correspondence, frameSize int) {
	limit := frameSize * frameSize
	if n := img.Size(); limit > n {
		limit = n
	}
	for _, r := range results {
		if r.Quality <= 0 {
			continue
		}
		if at := r.AtY*frameSize + r.AtX; at >= 0 && at < limit {
			img.Pix[at] = AnchorMarker
		}
		ofs := int(float64(r.AtY)+r.Y*2+0.5)*frameSize + int(float64(r.AtX)+r.X*2+0.5)
		if ofs >= 0 && ofs < limit {
			img.Pix[ofs] = FlowMarker
		}
	}
}
