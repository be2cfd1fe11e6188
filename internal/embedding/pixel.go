package embedding

import (
	"context"
	"fmt"
	"image"
	"math"
)

// pixelGrid is the side of the grayscale grid the DCT runs on.
const pixelGrid = 32

// pixelCoefficients is the side of the low-frequency DCT block kept.
const pixelCoefficients = 8

// PixelProvider is an offline provider that describes an image by the
// low-frequency DCT coefficients of its 32x32 grayscale thumbnail, the same
// transform perceptual hashes use. It needs no model server and is fully
// deterministic, but it captures appearance, not identity.
type PixelProvider struct{}

// NewPixelProvider creates a PixelProvider.
func NewPixelProvider() *PixelProvider {
	return &PixelProvider{}
}

func (p *PixelProvider) ID() string { return "pixel:dct8" }

// Dim returns the length of vectors produced by the provider.
func (p *PixelProvider) Dim() int { return pixelCoefficients*pixelCoefficients - 1 }

func (p *PixelProvider) Embed(ctx context.Context, path string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, err := Decode(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoEmbedding, err)
	}
	return p.EmbedImage(img), nil
}

// EmbedImage computes the vector for an already decoded image.
func (p *PixelProvider) EmbedImage(img image.Image) []float32 {
	gray := toGrayscale(resizeImage(img, pixelGrid, pixelGrid))
	dct := computeDCT(gray)

	// Top-left 8x8 coefficients without the DC component, so overall
	// brightness does not contribute.
	vec := make([]float32, 0, p.Dim())
	for u := range pixelCoefficients {
		for v := range pixelCoefficients {
			if u == 0 && v == 0 {
				continue
			}
			vec = append(vec, float32(dct[u][v]))
		}
	}
	return vec
}

// toGrayscale converts an image to a 2D array of grayscale values (0-255).
func toGrayscale(img *image.RGBA) [][]float64 {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	gray := make([][]float64, width)
	for x := range width {
		gray[x] = make([]float64, height)
		for y := range height {
			r, g, b, _ := img.At(x, y).RGBA()
			// ITU-R BT.601 luma formula.
			gray[x][y] = 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
		}
	}

	return gray
}

// computeDCT computes the Discrete Cosine Transform of a square grayscale grid.
func computeDCT(gray [][]float64) [][]float64 {
	size := len(gray)
	dct := make([][]float64, size)
	for i := range dct {
		dct[i] = make([]float64, size)
	}

	cosTable := make([][]float64, size)
	for i := range cosTable {
		cosTable[i] = make([]float64, size)
		for j := range size {
			cosTable[i][j] = math.Cos(math.Pi * float64(i) * (2*float64(j) + 1) / (2 * float64(size)))
		}
	}

	// DCT-II, separable: rows first, then columns.
	tmp := make([][]float64, size)
	for u := range size {
		tmp[u] = make([]float64, size)
		for y := range size {
			var sum float64
			for x := range size {
				sum += gray[x][y] * cosTable[u][x]
			}
			tmp[u][y] = sum
		}
	}
	for u := range size {
		for v := range size {
			var sum float64
			for y := range size {
				sum += tmp[u][y] * cosTable[v][y]
			}
			dct[u][v] = sum
		}
	}

	return dct
}
