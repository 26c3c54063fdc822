// Package quality scores decoded images from 0 to 100 using a brightness
// sub-score and a Laplacian edge-energy blur sub-score computed over a
// fixed-size thumbnail.
package quality

import (
	"errors"
	"fmt"
	"image"
	"io"
	"math"

	// Registered decoders.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"golang.org/x/image/draw"
)

// ErrDecode is returned when the input cannot be decoded as an image.
var ErrDecode = errors.New("image decode failed")

// ThumbnailSize is the length of the longer side after downscaling.
const ThumbnailSize = 256

// Issue codes reported in Result.Issues.
const (
	IssueTooDark     = "too_dark"
	IssueOverexposed = "overexposed"
	IssueBlurry      = "blurry"
)

// Weights is the scoring policy.
type Weights struct {
	Brightness float64
	Blur       float64

	// BlurScale multiplies the root mean square Laplacian before clamping.
	BlurScale float64

	DarkThreshold   float64
	BrightThreshold float64
	BlurryThreshold float64

	// LowQualityThreshold is the composite score below which an image is low quality.
	LowQualityThreshold float64
}

// DefaultWeights reproduces the scores stored by earlier versions of the gallery.
var DefaultWeights = Weights{
	Brightness:          0.3,
	Blur:                0.7,
	BlurScale:           2.5,
	DarkThreshold:       20,
	BrightThreshold:     230,
	BlurryThreshold:     30,
	LowQualityThreshold: 50,
}

// Result is the outcome of analyzing one image.
type Result struct {
	Score           int
	BrightnessScore float64
	BlurScore       float64
	AvgLuminance    float64
	Issues          []string

	lowThreshold float64
}

// LowQuality reports whether the composite score is under the policy threshold.
func (r *Result) LowQuality() bool {
	return float64(r.Score) < r.lowThreshold
}

// Analyzer computes quality scores. It is stateless and safe for concurrent use.
type Analyzer struct {
	weights Weights
}

// NewAnalyzer creates an Analyzer with the given policy.
func NewAnalyzer(w Weights) *Analyzer {
	return &Analyzer{weights: w}
}

// Analyze decodes r and scores it.
func (a *Analyzer) Analyze(r io.Reader) (*Result, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return a.AnalyzeImage(img), nil
}

// Score decodes r and returns only the composite score.
func (a *Analyzer) Score(r io.Reader) (int, error) {
	res, err := a.Analyze(r)
	if err != nil {
		return 0, err
	}
	return res.Score, nil
}

// AnalyzeImage scores an already decoded image.
func (a *Analyzer) AnalyzeImage(img image.Image) *Result {
	lum, w, h := luminance(thumbnail(img))

	res := &Result{lowThreshold: a.weights.LowQualityThreshold, Issues: []string{}}
	if w == 0 || h == 0 {
		return res
	}

	var sum float64
	for _, v := range lum {
		sum += v
	}
	res.AvgLuminance = sum / float64(len(lum))
	res.BrightnessScore = a.brightness(res.AvgLuminance)
	res.BlurScore = a.blur(lum, w, h)

	composite := res.BrightnessScore*a.weights.Brightness + res.BlurScore*a.weights.Blur
	res.Score = int(math.Round(clamp(composite, 0, 100)))

	if res.AvgLuminance < a.weights.DarkThreshold {
		res.Issues = append(res.Issues, IssueTooDark)
	}
	if res.AvgLuminance > a.weights.BrightThreshold {
		res.Issues = append(res.Issues, IssueOverexposed)
	}
	if res.BlurScore < a.weights.BlurryThreshold {
		res.Issues = append(res.Issues, IssueBlurry)
	}
	return res
}

func (a *Analyzer) brightness(avg float64) float64 {
	switch {
	case avg < a.weights.DarkThreshold:
		return avg * 2
	case avg > a.weights.BrightThreshold:
		return (255 - avg) * 2
	default:
		return 100 - math.Abs(avg-128)*0.39
	}
}

// blur is the scaled root mean square of the 4-neighbour Laplacian over
// interior pixels. Images smaller than 3x3 have no interior and score 0.
func (a *Analyzer) blur(lum []float64, w, h int) float64 {
	if w < 3 || h < 3 {
		return 0
	}
	var sumSq float64
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			i := y*w + x
			lap := 4*lum[i] - lum[i-1] - lum[i+1] - lum[i-w] - lum[i+w]
			sumSq += lap * lap
		}
	}
	n := float64((w - 2) * (h - 2))
	return math.Min(math.Sqrt(sumSq/n)*a.weights.BlurScale, 100)
}

// thumbnail scales img so its longer side is ThumbnailSize, preserving the
// aspect ratio. The result always has its origin at (0, 0).
func thumbnail(img image.Image) *image.RGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return image.NewRGBA(image.Rect(0, 0, 0, 0))
	}

	tw, th := w, h
	if w >= h {
		tw = ThumbnailSize
		th = max(1, int(math.Round(float64(h)*ThumbnailSize/float64(w))))
	} else {
		th = ThumbnailSize
		tw = max(1, int(math.Round(float64(w)*ThumbnailSize/float64(h))))
	}

	dst := image.NewRGBA(image.Rect(0, 0, tw, th))
	if tw == w && th == h {
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
		return dst
	}
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

func luminance(img *image.RGBA) ([]float64, int, int) {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	lum := make([]float64, w*h)
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < w; x++ {
			p := row[x*4 : x*4+3]
			lum[y*w+x] = 0.299*float64(p[0]) + 0.587*float64(p[1]) + 0.114*float64(p[2])
		}
	}
	return lum, w, h
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
