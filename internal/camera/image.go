package camera

import "fmt"

// Image is an 8-bit grayscale image stored row-major.
type Image struct {
	Width  int
	Height int
	Pix    []uint8
}

// NewImage allocates a width×height image.
func NewImage(width, height int) *Image {
	return &Image{Width: width, Height: height, Pix: make([]uint8, width*height)}
}

// At returns the pixel at (x, y). Out-of-range coordinates return 0.
func (im *Image) At(x, y int) uint8 {
	if x < 0 || y < 0 || x >= im.Width || y >= im.Height {
		return 0
	}
	return im.Pix[y*im.Width+x]
}

// Set writes the pixel at (x, y); out-of-range writes are ignored.
func (im *Image) Set(x, y int, v uint8) {
	if x < 0 || y < 0 || x >= im.Width || y >= im.Height {
		return
	}
	im.Pix[y*im.Width+x] = v
}

// Size returns the number of pixels.
func (im *Image) Size() int { return im.Width * im.Height }

// Mean returns the average pixel value.
func (im *Image) Mean() float64 {
	n := im.Size()
	if n == 0 {
		return 0
	}
	var sum uint64
	for _, v := range im.Pix[:n] {
		sum += uint64(v)
	}
	return float64(sum) / float64(n)
}

// CaptureParams are the per-frame sensor settings recorded with each buffer.
type CaptureParams struct {
	Width      int
	Height     int
	Binning    int
	Exposure   float64 // exposure time in µs
	AnalogGain float64
}

// Validate checks the parameters against a pool whose buffers hold at most
// capacity pixels.
func (p CaptureParams) Validate(capacity int) error {
	if p.Width <= 0 || p.Height <= 0 {
		return fmt.Errorf("invalid image size %dx%d", p.Width, p.Height)
	}
	if p.Width*p.Height > capacity {
		return fmt.Errorf("image size %dx%d exceeds buffer capacity %d", p.Width, p.Height, capacity)
	}
	switch p.Binning {
	case 1, 2, 4:
	default:
		return fmt.Errorf("unsupported binning %d", p.Binning)
	}
	return nil
}
