package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func uniform(n int, x, y float64) []Correspondence {
	out := make([]Correspondence, n)
	for i := range out {
		out[i] = Correspondence{X: x, Y: y, Quality: 1}
	}
	return out
}

func TestExtract(t *testing.T) {
	withOutliers := uniform(10, 1, -1)
	withOutliers[3] = Correspondence{X: 9, Y: 9, Quality: 1}
	withOutliers[7] = Correspondence{X: -6, Y: 0, Quality: 1}

	halfRejected := uniform(8, 2, 0)
	for i := 0; i < 4; i++ {
		halfRejected[i].Quality = 0
	}

	tests := []struct {
		name  string
		in    []Correspondence
		count int
		wantX float64
		wantY float64
		wantQ uint8
	}{
		{name: "empty", in: nil, count: 0},
		{name: "count beyond slice", in: uniform(2, 1, 1), count: 40, wantX: 1, wantY: 1, wantQ: 255},
		{name: "uniform", in: uniform(25, 0.5, 1.5), count: 25, wantX: 0.5, wantY: 1.5, wantQ: 255},
		{name: "outliers rejected", in: withOutliers, count: 10, wantX: 1, wantY: -1, wantQ: 204},
		{name: "quality counts rejected results", in: halfRejected, count: 8, wantX: 2, wantY: 0, wantQ: 127},
		{name: "single valid", in: uniform(1, 3, 3), count: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, y, q := Extract(tt.in, tt.count, 0.3, 0.5)
			assert.InDelta(t, tt.wantX, x, 1e-9)
			assert.InDelta(t, tt.wantY, y, 1e-9)
			assert.Equal(t, tt.wantQ, q)
		})
	}
}

func TestExtract_TooFewValid(t *testing.T) {
	in := uniform(20, 1, 1)
	for i := 0; i < 16; i++ {
		in[i].Quality = 0
	}
	// 4 valid of 20 is below the quarter floor of (20+4)/4 = 6
	x, y, q := Extract(in, 20, 0.3, 0.5)
	assert.Zero(t, x)
	assert.Zero(t, y)
	assert.Zero(t, q)
}

func TestExtract_MinThresholdFloor(t *testing.T) {
	in := uniform(10, 0, 0)
	in[0].X = 0.4
	in[1].X = -0.4

	// ratio*|median| is 0, the floor keeps the small deviations
	_, _, q := Extract(in, 10, 0.3, 0.5)
	assert.Equal(t, uint8(255), q)

	_, _, q = Extract(in, 10, 0.3, 0.1)
	assert.Equal(t, uint8(204), q)
}

func TestExtract_DoesNotAllocate(t *testing.T) {
	in := uniform(MaxCorrespondences, 1, -1)
	in[5] = Correspondence{X: 8, Y: 8, Quality: 1}
	allocs := testing.AllocsPerRun(100, func() {
		Extract(in, len(in), 0.2, 0.5)
	})
	assert.Zero(t, allocs)
}
