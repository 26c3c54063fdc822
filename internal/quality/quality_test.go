package quality

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"strings"
	"testing"
)

func uniform(w, h int, v uint8) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{v, v, v, 255})
		}
	}
	return img
}

func checkerboard(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(0)
			if (x+y)%2 == 0 {
				v = 255
			}
			img.Set(x, y, color.RGBA{v, v, v, 255})
		}
	}
	return img
}

func hasIssue(r *Result, code string) bool {
	for _, i := range r.Issues {
		if i == code {
			return true
		}
	}
	return false
}

func TestAnalyzer_AnalyzeImage(t *testing.T) {
	a := NewAnalyzer(DefaultWeights)

	tests := []struct {
		name       string
		img        image.Image
		wantScore  int
		wantIssues []string
		wantLow    bool
	}{
		{"black", uniform(64, 64, 0), 0, []string{IssueTooDark, IssueBlurry}, true},
		{"white", uniform(64, 64, 255), 0, []string{IssueOverexposed, IssueBlurry}, true},
		{"mid gray", uniform(256, 256, 128), 30, []string{IssueBlurry}, true},
		{"sharp checkerboard", checkerboard(256, 256), 100, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := a.AnalyzeImage(tt.img)
			if res.Score != tt.wantScore {
				t.Errorf("Score = %d, want %d", res.Score, tt.wantScore)
			}
			if len(res.Issues) != len(tt.wantIssues) {
				t.Fatalf("Issues = %v, want %v", res.Issues, tt.wantIssues)
			}
			for _, code := range tt.wantIssues {
				if !hasIssue(res, code) {
					t.Errorf("Issues = %v, missing %q", res.Issues, code)
				}
			}
			if res.LowQuality() != tt.wantLow {
				t.Errorf("LowQuality() = %v, want %v", res.LowQuality(), tt.wantLow)
			}
		})
	}
}

func TestAnalyzer_BrightnessBands(t *testing.T) {
	a := NewAnalyzer(DefaultWeights)

	tests := []struct {
		avg  float64
		want float64
	}{
		{0, 0},
		{10, 20},
		{128, 100},
		{28, 61},
		{240, 30},
		{255, 0},
	}
	for _, tt := range tests {
		got := a.brightness(tt.avg)
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("brightness(%v) = %v, want %v", tt.avg, got, tt.want)
		}
	}
}

// grayChecker is a one-pixel checkerboard of 128+c and 128-c.
func grayChecker(w, h int, c uint8) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := 128 - c
			if (x+y)%2 == 0 {
				v = 128 + c
			}
			img.Set(x, y, color.RGBA{v, v, v, 255})
		}
	}
	return img
}

// grayStripes is vertical stripes of the given width alternating between
// 128+c and 128-c.
func grayStripes(w, h, width int, c uint8) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := 128 - c
			if (x/width)%2 == 0 {
				v = 128 + c
			}
			img.Set(x, y, color.RGBA{v, v, v, 255})
		}
	}
	return img
}

func TestAnalyzer_ScoreMonotonicInEdgeEnergy(t *testing.T) {
	a := NewAnalyzer(DefaultWeights)

	tests := []struct {
		name   string
		images []*image.RGBA // increasing edge energy, mean luminance 128
	}{
		{"checker contrast", []*image.RGBA{
			grayChecker(256, 256, 0),
			grayChecker(256, 256, 1),
			grayChecker(256, 256, 2),
			grayChecker(256, 256, 3),
			grayChecker(256, 256, 4),
			grayChecker(256, 256, 6),
			grayChecker(256, 256, 10),
			grayChecker(256, 256, 40),
			grayChecker(256, 256, 127),
		}},
		{"stripe width", []*image.RGBA{
			grayStripes(256, 256, 32, 3),
			grayStripes(256, 256, 16, 3),
			grayStripes(256, 256, 8, 3),
			grayStripes(256, 256, 4, 3),
			grayStripes(256, 256, 2, 3),
			grayStripes(256, 256, 1, 3),
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var prev *Result
			for i, img := range tt.images {
				res := a.AnalyzeImage(img)
				if math.Abs(res.AvgLuminance-128) > 0.01 {
					t.Fatalf("image %d: AvgLuminance = %v, want 128", i, res.AvgLuminance)
				}
				if prev != nil {
					if res.BlurScore < prev.BlurScore {
						t.Errorf("image %d: BlurScore = %v, below previous %v", i, res.BlurScore, prev.BlurScore)
					}
					if res.Score < prev.Score {
						t.Errorf("image %d: Score = %d, below previous %d", i, res.Score, prev.Score)
					}
				}
				prev = res
			}
			first, last := a.AnalyzeImage(tt.images[0]), prev
			if last.Score <= first.Score {
				t.Errorf("Score did not rise across the table: %d to %d", first.Score, last.Score)
			}
		})
	}
}

func TestAnalyzer_BlurNeedsInterior(t *testing.T) {
	a := NewAnalyzer(DefaultWeights)

	// 300x2 scales to 256x2, which has no interior pixels.
	res := a.AnalyzeImage(checkerboard(300, 2))
	if res.BlurScore != 0 {
		t.Errorf("BlurScore = %v, want 0", res.BlurScore)
	}
	if !hasIssue(res, IssueBlurry) {
		t.Errorf("Issues = %v, want blurry", res.Issues)
	}
}

func TestAnalyzer_Analyze(t *testing.T) {
	a := NewAnalyzer(DefaultWeights)

	t.Run("decodes png", func(t *testing.T) {
		var buf bytes.Buffer
		if err := png.Encode(&buf, checkerboard(256, 256)); err != nil {
			t.Fatalf("png.Encode() error = %v", err)
		}
		score, err := a.Score(&buf)
		if err != nil {
			t.Fatalf("Score() error = %v", err)
		}
		if score != 100 {
			t.Errorf("Score() = %d, want 100", score)
		}
	})

	t.Run("rejects garbage", func(t *testing.T) {
		_, err := a.Analyze(strings.NewReader("definitely not an image"))
		if !errors.Is(err, ErrDecode) {
			t.Errorf("Analyze() error = %v, want ErrDecode", err)
		}
	})
}

func TestThumbnail(t *testing.T) {
	tests := []struct {
		name         string
		w, h         int
		wantW, wantH int
	}{
		{"landscape", 512, 128, 256, 64},
		{"portrait", 100, 400, 64, 256},
		{"already sized", 256, 100, 256, 100},
		{"upscales small", 16, 16, 256, 256},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := thumbnail(uniform(tt.w, tt.h, 90)).Bounds()
			if got.Dx() != tt.wantW || got.Dy() != tt.wantH {
				t.Errorf("thumbnail(%dx%d) = %dx%d, want %dx%d", tt.w, tt.h, got.Dx(), got.Dy(), tt.wantW, tt.wantH)
			}
		})
	}
}
