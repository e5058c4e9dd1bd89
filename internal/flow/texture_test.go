package flow

import (
	"math"

	"github.com/banshee-data/opticalflow/internal/camera"
)

// scene renders a smooth periodic pattern translated by (sx, sy).
func scene(w, h int, sx, sy float64) *camera.Image {
	img := camera.NewImage(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			fx, fy := float64(x)-sx, float64(y)-sy
			v := 128 +
				30*math.Sin(2*math.Pi*fx/17) +
				30*math.Sin(2*math.Pi*fy/23) +
				30*math.Sin(2*math.Pi*(fx+fy)/29) +
				30*math.Sin(2*math.Pi*(fx-fy)/13)
			img.Set(x, y, uint8(math.Round(v)))
		}
	}
	return img
}

func flat(w, h int, v uint8) *camera.Image {
	img := camera.NewImage(w, h)
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

func prepare(e Estimator, img *camera.Image) View {
	v := View{Image: img}
	if e.NeedsPreprocessing() {
		v.Prepared = &Prepared{}
		e.Preprocess(img, v.Prepared)
	}
	return v
}
