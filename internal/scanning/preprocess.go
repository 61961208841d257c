package scanning

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"math"

	"golang.org/x/image/draw"
)

// Threshold selects the binarization strategy
type Threshold string

const (
	// ThresholdAdaptive binarizes against a Gaussian-weighted local mean
	ThresholdAdaptive Threshold = "adaptive"
	// ThresholdOtsu inverts brightness and applies a global Otsu threshold
	// (light or embossed print on a dark surface)
	ThresholdOtsu Threshold = "otsu"
)

// PreprocessConfig controls the preprocessing pipeline
type PreprocessConfig struct {
	Threshold    Threshold
	MinDimension int     // images whose shorter side is below this are upscaled 2x
	BlockSize    int     // adaptive neighborhood size, odd
	C            float64 // adaptive offset subtracted from the local mean
}

// DefaultPreprocessConfig returns the reference configuration
func DefaultPreprocessConfig() PreprocessConfig {
	return PreprocessConfig{
		Threshold:    ThresholdAdaptive,
		MinDimension: 500,
		BlockSize:    31,
		C:            10,
	}
}

// PreparedImage is a binarized raster ready for recognition
type PreparedImage struct {
	Gray *image.Gray
	PNG  []byte
}

// Preprocessor normalizes photos for text recognition
type Preprocessor struct {
	cfg PreprocessConfig
}

// NewPreprocessor validates cfg and returns a Preprocessor
func NewPreprocessor(cfg PreprocessConfig) (*Preprocessor, error) {
	switch cfg.Threshold {
	case ThresholdAdaptive, ThresholdOtsu:
	default:
		return nil, fmt.Errorf("unknown threshold strategy %q", cfg.Threshold)
	}
	if cfg.BlockSize < 3 || cfg.BlockSize%2 == 0 {
		return nil, fmt.Errorf("block size must be odd and at least 3, got %d", cfg.BlockSize)
	}
	if cfg.MinDimension < 0 {
		return nil, fmt.Errorf("min dimension must not be negative, got %d", cfg.MinDimension)
	}
	return &Preprocessor{cfg: cfg}, nil
}

// Prepare decodes data and runs grayscale, upscale, denoise and threshold in that order.
// It returns an error wrapping ErrDecode if data is not an image.
func (p *Preprocessor) Prepare(data []byte, contentType string) (*PreparedImage, error) {
	img, err := decodeImage(data, contentType)
	if err != nil {
		return nil, err
	}

	gray := toGray(img)
	gray = upscale(gray, p.cfg.MinDimension)
	gray = medianFilter(gray)

	var binary *image.Gray
	if p.cfg.Threshold == ThresholdOtsu {
		binary = otsuThreshold(gray)
	} else {
		binary = adaptiveThreshold(gray, p.cfg.BlockSize, p.cfg.C)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, binary); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return &PreparedImage{Gray: binary, PNG: buf.Bytes()}, nil
}

func toGray(img image.Image) *image.Gray {
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	return gray
}

func upscale(src *image.Gray, minDimension int) *image.Gray {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	if min(w, h) >= minDimension {
		return src
	}
	dst := image.NewGray(image.Rect(0, 0, w*2, h*2))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

// clamp keeps neighborhood lookups inside the image (replicated border)
func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// medianFilter applies a 3x3 median to drop sensor speckle
func medianFilter(src *image.Gray) *image.Gray {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))
	var window [9]uint8
	for y := 0; y < h; y++ {
		up := src.Pix[clamp(y-1, 0, h-1)*src.Stride:]
		row := src.Pix[y*src.Stride:]
		down := src.Pix[clamp(y+1, 0, h-1)*src.Stride:]
		for x := 0; x < w; x++ {
			l, r := clamp(x-1, 0, w-1), clamp(x+1, 0, w-1)
			window = [9]uint8{
				up[l], up[x], up[r],
				row[l], row[x], row[r],
				down[l], down[x], down[r],
			}
			dst.Pix[y*dst.Stride+x] = median9(&window)
		}
	}
	return dst
}

// median9Network is a 19 compare-exchange selection network; after it runs
// index 4 holds the median of the nine inputs
var median9Network = [19][2]uint8{
	{1, 2}, {4, 5}, {7, 8},
	{0, 1}, {3, 4}, {6, 7},
	{1, 2}, {4, 5}, {7, 8},
	{0, 3}, {5, 8}, {4, 7},
	{3, 6}, {1, 4}, {2, 5},
	{4, 7}, {4, 2}, {6, 4},
	{4, 2},
}

// median9 returns the median of p, reordering it in place
func median9(p *[9]uint8) uint8 {
	for _, pair := range median9Network {
		a, b := pair[0], pair[1]
		if p[a] > p[b] {
			p[a], p[b] = p[b], p[a]
		}
	}
	return p[4]
}

// gaussianKernel mirrors the sigma OpenCV derives from the kernel size
func gaussianKernel(size int) []float64 {
	sigma := 0.3*(float64(size-1)*0.5-1) + 0.8
	kernel := make([]float64, size)
	half := size / 2
	var sum float64
	for i := range kernel {
		d := float64(i - half)
		kernel[i] = math.Exp(-(d * d) / (2 * sigma * sigma))
		sum += kernel[i]
	}
	for i := range kernel {
		kernel[i] /= sum
	}
	return kernel
}

func adaptiveThreshold(src *image.Gray, blockSize int, c float64) *image.Gray {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	kernel := gaussianKernel(blockSize)
	half := blockSize / 2

	// separable blur: horizontal then vertical
	tmp := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var acc float64
			for k, weight := range kernel {
				acc += weight * float64(src.Pix[y*src.Stride+clamp(x+k-half, 0, w-1)])
			}
			tmp[y*w+x] = acc
		}
	}

	dst := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var mean float64
			for k, weight := range kernel {
				mean += weight * tmp[clamp(y+k-half, 0, h-1)*w+x]
			}
			if float64(src.Pix[y*src.Stride+x]) > mean-c {
				dst.Pix[y*dst.Stride+x] = 255
			}
		}
	}
	return dst
}

// otsuLevel returns the threshold maximizing between-class variance
func otsuLevel(hist [256]int, total int) uint8 {
	var sum float64
	for i, n := range hist {
		sum += float64(i * n)
	}

	var (
		sumB, maxVar float64
		wB           int
		level        uint8
	)
	for i, n := range hist {
		wB += n
		if wB == 0 {
			continue
		}
		wF := total - wB
		if wF == 0 {
			break
		}
		sumB += float64(i * n)
		mB := sumB / float64(wB)
		mF := (sum - sumB) / float64(wF)
		v := float64(wB) * float64(wF) * (mB - mF) * (mB - mF)
		if v > maxVar {
			maxVar = v
			level = uint8(i)
		}
	}
	return level
}

func otsuThreshold(src *image.Gray) *image.Gray {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	inverted := make([]uint8, w*h)
	var hist [256]int
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := 255 - src.Pix[y*src.Stride+x]
			inverted[y*w+x] = v
			hist[v]++
		}
	}

	level := otsuLevel(hist, w*h)
	dst := image.NewGray(image.Rect(0, 0, w, h))
	for i, v := range inverted {
		if v > level {
			dst.Pix[(i/w)*dst.Stride+i%w] = 255
		}
	}
	return dst
}
