package scanning

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math/rand"
	"sort"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// grayPNG encodes a w x h image filled by fill(x, y)
func grayPNG(w, h int, fill func(x, y int) uint8) []byte {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: fill(x, y)})
		}
	}
	var buf bytes.Buffer
	Expect(png.Encode(&buf, img)).To(Succeed())
	return buf.Bytes()
}

func uniform(v uint8) func(x, y int) uint8 {
	return func(x, y int) uint8 { return v }
}

func onlyBinary(img *image.Gray) bool {
	for _, v := range img.Pix {
		if v != 0 && v != 255 {
			return false
		}
	}
	return true
}

var _ = Describe("NewPreprocessor", func() {
	var (
		cfg PreprocessConfig
		err error
	)

	BeforeEach(func() {
		cfg = DefaultPreprocessConfig()
	})

	JustBeforeEach(func() {
		_, err = NewPreprocessor(cfg)
	})

	When("the configuration is the default", func() {
		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})
	})

	When("the threshold strategy is unknown", func() {
		BeforeEach(func() {
			cfg.Threshold = "sauvola"
		})

		It("returns an error", func() {
			Expect(err).To(MatchError(ContainSubstring("unknown threshold strategy")))
		})
	})

	When("the block size is even", func() {
		BeforeEach(func() {
			cfg.BlockSize = 30
		})

		It("returns an error", func() {
			Expect(err).To(HaveOccurred())
		})
	})
})

var _ = Describe("Preprocessor", func() {
	var (
		cfg      PreprocessConfig
		data     []byte
		mimeType string
		prepared *PreparedImage
		err      error
	)

	BeforeEach(func() {
		cfg = DefaultPreprocessConfig()
		mimeType = "image/png"
	})

	JustBeforeEach(func() {
		p, newErr := NewPreprocessor(cfg)
		Expect(newErr).NotTo(HaveOccurred())
		prepared, err = p.Prepare(data, mimeType)
	})

	When("the bytes are not an image", func() {
		BeforeEach(func() {
			data = []byte("definitely not a photo")
		})

		It("returns a decode error", func() {
			Expect(err).To(MatchError(ErrDecode))
		})
	})

	When("the input is empty", func() {
		BeforeEach(func() {
			data = nil
		})

		It("returns a decode error", func() {
			Expect(err).To(MatchError(ErrDecode))
		})
	})

	When("the image is smaller than the minimum dimension", func() {
		BeforeEach(func() {
			data = grayPNG(120, 80, uniform(200))
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should upscale by two", func() {
			Expect(prepared.Gray.Bounds().Dx()).To(Equal(240))
			Expect(prepared.Gray.Bounds().Dy()).To(Equal(160))
		})
	})

	When("the image is large enough", func() {
		BeforeEach(func() {
			cfg.MinDimension = 64
			data = grayPNG(100, 70, uniform(200))
		})

		It("should keep the original size", func() {
			Expect(prepared.Gray.Bounds().Dx()).To(Equal(100))
			Expect(prepared.Gray.Bounds().Dy()).To(Equal(70))
		})
	})

	When("using adaptive thresholding", func() {
		BeforeEach(func() {
			// light background with a thin dark vertical stroke
			data = grayPNG(520, 520, func(x, y int) uint8 {
				if x >= 250 && x <= 252 {
					return 30
				}
				return 220
			})
		})

		It("should only produce black and white pixels", func() {
			Expect(onlyBinary(prepared.Gray)).To(BeTrue())
		})

		It("should keep the stroke dark", func() {
			Expect(prepared.Gray.GrayAt(251, 100).Y).To(Equal(uint8(0)))
		})

		It("should turn the background white", func() {
			Expect(prepared.Gray.GrayAt(100, 100).Y).To(Equal(uint8(255)))
		})

		It("should encode the result as PNG", func() {
			decoded, decodeErr := png.Decode(bytes.NewReader(prepared.PNG))
			Expect(decodeErr).NotTo(HaveOccurred())
			Expect(decoded.Bounds()).To(Equal(prepared.Gray.Bounds()))
		})
	})

	When("using otsu thresholding on light print", func() {
		BeforeEach(func() {
			cfg.Threshold = ThresholdOtsu
			cfg.MinDimension = 0
			data = grayPNG(200, 100, func(x, y int) uint8 {
				if x < 100 {
					return 50
				}
				return 200
			})
		})

		It("should only produce black and white pixels", func() {
			Expect(onlyBinary(prepared.Gray)).To(BeTrue())
		})

		It("should render the light region dark after inversion", func() {
			Expect(prepared.Gray.GrayAt(150, 50).Y).To(Equal(uint8(0)))
		})

		It("should render the dark surface white after inversion", func() {
			Expect(prepared.Gray.GrayAt(50, 50).Y).To(Equal(uint8(255)))
		})
	})

	When("the photo is a JPEG", func() {
		BeforeEach(func() {
			mimeType = "image/jpeg"
			img := image.NewRGBA(image.Rect(0, 0, 64, 64))
			for i := range img.Pix {
				img.Pix[i] = 180
			}
			var buf bytes.Buffer
			Expect(jpeg.Encode(&buf, img, nil)).To(Succeed())
			data = buf.Bytes()
		})

		It("should decode and prepare it", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(prepared.Gray.Bounds().Dx()).To(Equal(128))
		})
	})
})

var _ = Describe("median9", func() {
	sortedMedian := func(p [9]uint8) uint8 {
		s := p[:]
		sort.Slice(s, func(i, j int) bool { return s[i] < s[j] })
		return s[4]
	}

	DescribeTable("fixed windows",
		func(p [9]uint8, expected uint8) {
			Expect(median9(&p)).To(Equal(expected))
		},
		Entry("ascending", [9]uint8{1, 2, 3, 4, 5, 6, 7, 8, 9}, uint8(5)),
		Entry("descending", [9]uint8{9, 8, 7, 6, 5, 4, 3, 2, 1}, uint8(5)),
		Entry("single speck", [9]uint8{255, 255, 255, 255, 0, 255, 255, 255, 255}, uint8(255)),
		Entry("duplicates", [9]uint8{0, 0, 0, 0, 7, 7, 7, 7, 7}, uint8(7)),
		Entry("all equal", [9]uint8{42, 42, 42, 42, 42, 42, 42, 42, 42}, uint8(42)),
	)

	It("should agree with a full sort on random windows", func() {
		rng := rand.New(rand.NewSource(7))
		for i := 0; i < 10000; i++ {
			var p [9]uint8
			for j := range p {
				p[j] = uint8(rng.Intn(256))
			}
			expected := sortedMedian(p)
			Expect(median9(&p)).To(Equal(expected), "window %v", p)
		}
	})

	It("should not allocate", func() {
		p := [9]uint8{3, 1, 4, 1, 5, 9, 2, 6, 5}
		allocs := testing.AllocsPerRun(100, func() {
			window := p
			median9(&window)
		})
		Expect(allocs).To(BeZero())
	})
})

var _ = Describe("medianFilter", func() {
	It("should remove an isolated speck", func() {
		src := image.NewGray(image.Rect(0, 0, 5, 5))
		for i := range src.Pix {
			src.Pix[i] = 255
		}
		src.SetGray(2, 2, color.Gray{Y: 0})

		dst := medianFilter(src)
		for _, v := range dst.Pix {
			Expect(v).To(Equal(uint8(255)))
		}
	})

	It("should keep a solid edge", func() {
		src := image.NewGray(image.Rect(0, 0, 6, 4))
		for y := 0; y < 4; y++ {
			for x := 0; x < 6; x++ {
				if x >= 3 {
					src.SetGray(x, y, color.Gray{Y: 255})
				}
			}
		}

		dst := medianFilter(src)
		Expect(dst.GrayAt(2, 1).Y).To(Equal(uint8(0)))
		Expect(dst.GrayAt(3, 1).Y).To(Equal(uint8(255)))
	})
})

var _ = Describe("otsuLevel", func() {
	It("should split a bimodal histogram between the peaks", func() {
		var hist [256]int
		hist[40] = 500
		hist[210] = 500
		level := otsuLevel(hist, 1000)
		Expect(level).To(BeNumerically(">=", 40))
		Expect(level).To(BeNumerically("<", 210))
	})
})

var _ = Describe("isHEICFormat", func() {
	It("should detect the heic brand", func() {
		Expect(isHEICFormat([]byte("\x00\x00\x00\x18ftypheic\x00\x00\x00\x00"))).To(BeTrue())
	})

	It("should reject short input", func() {
		Expect(isHEICFormat([]byte("ftyp"))).To(BeFalse())
	})
})
