package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/banshee-data/opticalflow/internal/camera"
	"github.com/banshee-data/opticalflow/internal/flow"
)

func TestAnnotate(t *testing.T) {
	img := camera.NewImage(8, 8)
	results := []flow.Correspondence{
		{AtX: 2, AtY: 2, X: 1, Y: 0.5, Quality: 1},
		{AtX: 5, AtY: 1, X: 0, Y: 0, Quality: 0},
	}
	Annotate(img, results, 8)

	assert.Equal(t, uint8(AnchorMarker), img.At(2, 2))
	assert.Equal(t, uint8(FlowMarker), img.At(4, 3))
	assert.Zero(t, img.At(5, 1), "rejected correspondences are not drawn")

	painted := 0
	for _, v := range img.Pix {
		if v != 0 {
			painted++
		}
	}
	assert.Equal(t, 2, painted)
}

func TestAnnotate_OutOfRangeSkipped(t *testing.T) {
	img := camera.NewImage(8, 8)
	results := []flow.Correspondence{
		{AtX: 7, AtY: 7, X: 3, Y: 3, Quality: 1},
		{AtX: 0, AtY: 0, X: -2, Y: -2, Quality: 1},
	}
	assert.NotPanics(t, func() { Annotate(img, results, 8) })
	assert.Equal(t, uint8(AnchorMarker), img.At(7, 7))
	assert.Equal(t, uint8(AnchorMarker), img.At(0, 0))
}

func TestAnnotate_FrameLargerThanImage(t *testing.T) {
	img := camera.NewImage(4, 4)
	results := []flow.Correspondence{{AtX: 3, AtY: 3, X: 0, Y: 0, Quality: 1}}
	assert.NotPanics(t, func() { Annotate(img, results, 8) })
}
