package gallery_test

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gallery-go/internal/gallery"
	"gallery-go/internal/testutil"
)

// seedAnalysis stores a black image, a sharp checkerboard and a record
// whose file is missing.
func seedAnalysis(t *testing.T, f *fixture) {
	t.Helper()
	f.writeFile(t, "dark.png", testutil.SolidPNG(t, 64, 64, color.Black))
	f.writeFile(t, "sharp.png", testutil.CheckerPNG(t, 256, 256))
	doc := gallery.NewImageDocument()
	doc.Images = []gallery.ImageRecord{
		testutil.Image("dark", "dark.png", 3000),
		testutil.Image("sharp", "sharp.png", 2000),
		testutil.Image("gone", "gone.png", 1000),
	}
	require.NoError(t, f.ws.WriteImages(doc))
}

func TestAnalyzeImagesAll(t *testing.T) {
	f := newFixture(t)
	seedAnalysis(t, f)
	ctx := context.Background()

	var reports []gallery.AnalyzeProgress
	summary, err := gallery.AnalyzeImages(ctx, f.store, nil, gallery.AnalyzeRequest{Mode: gallery.AnalyzeAll, MaxWorkers: 2},
		func(p gallery.AnalyzeProgress) { reports = append(reports, p) })
	require.NoError(t, err)

	assert.Equal(t, &gallery.AnalyzeSummary{Total: 3, Analyzed: 2, Failed: 1, LowQuality: 1}, summary)
	require.Len(t, reports, 3)
	assert.Equal(t, 3, reports[2].Done)
	assert.Equal(t, 3, reports[2].Total)

	dark, err := f.store.GetImage(ctx, "dark")
	require.NoError(t, err)
	require.NotNil(t, dark.QualityScore)
	assert.Equal(t, 0.0, *dark.QualityScore)
	assert.Contains(t, dark.QualityIssues, "too_dark")

	sharp, err := f.store.GetImage(ctx, "sharp")
	require.NoError(t, err)
	require.NotNil(t, sharp.QualityScore)
	assert.Greater(t, *sharp.QualityScore, 50.0)

	gone, err := f.store.GetImage(ctx, "gone")
	require.NoError(t, err)
	assert.Nil(t, gone.QualityScore)
}

func TestAnalyzeImagesUnscored(t *testing.T) {
	f := newFixture(t)
	seedAnalysis(t, f)
	ctx := context.Background()

	require.NoError(t, f.store.SaveQuality(ctx, "dark", gallery.QualityUpdate{Score: 12}))

	summary, err := gallery.AnalyzeImages(ctx, f.store, nil, gallery.AnalyzeRequest{Mode: gallery.AnalyzeUnscored}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 1, summary.Analyzed)
	assert.Equal(t, 1, summary.Failed)

	dark, err := f.store.GetImage(ctx, "dark")
	require.NoError(t, err)
	assert.Equal(t, 12.0, *dark.QualityScore)
}

func TestAnalyzeImagesSelected(t *testing.T) {
	f := newFixture(t)
	seedAnalysis(t, f)
	ctx := context.Background()

	_, err := gallery.AnalyzeImages(ctx, f.store, nil, gallery.AnalyzeRequest{Mode: gallery.AnalyzeSelected}, nil)
	assert.ErrorIs(t, err, gallery.ErrNothingSelected)

	summary, err := gallery.AnalyzeImages(ctx, f.store, nil,
		gallery.AnalyzeRequest{Mode: gallery.AnalyzeSelected, IDs: []string{"sharp", "unknown"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, &gallery.AnalyzeSummary{Total: 2, Analyzed: 1, Failed: 1}, summary)

	_, err = gallery.AnalyzeImages(ctx, f.store, nil, gallery.AnalyzeRequest{Mode: "sometimes"}, nil)
	assert.Error(t, err)
}

func TestAnalyzeImagesCancelled(t *testing.T) {
	f := newFixture(t)
	seedAnalysis(t, f)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := gallery.AnalyzeImages(ctx, f.store, nil, gallery.AnalyzeRequest{Mode: gallery.AnalyzeAll}, nil)
	require.NoError(t, err)
	assert.True(t, summary.Stopped)
	assert.Zero(t, summary.Analyzed)
	assert.Equal(t, 3, summary.Total)
}

func TestControllerAnalyzeSelection(t *testing.T) {
	f := newFixture(t)
	seedAnalysis(t, f)
	c, _ := newController(t, f, 10)
	ctx := context.Background()

	c.Select("sharp")
	summary, err := c.AnalyzeQuality(ctx, gallery.AnalyzeRequest{Mode: gallery.AnalyzeSelected}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Analyzed)

	for _, img := range c.Current().Images {
		if img.ID == "sharp" {
			assert.NotNil(t, img.QualityScore)
		}
	}
}

// stoppableStore is a RemoteAnalyzer whose run lasts until StopAnalysis is
// called.
type stoppableStore struct {
	gallery.ImageStore
	stopped chan struct{}
	stopErr error
}

func (s *stoppableStore) AnalyzeRemote(ctx context.Context, req gallery.RemoteAnalyzeRequest) (*gallery.AnalyzeSummary, error) {
	<-s.stopped
	return &gallery.AnalyzeSummary{Total: 5, Analyzed: 2}, nil
}

func (s *stoppableStore) StopAnalysis(ctx context.Context) error {
	close(s.stopped)
	return s.stopErr
}

// warnRecorder forwards Warn messages to a channel.
type warnRecorder struct {
	gallery.NopLogger
	warns chan string
}

func (l *warnRecorder) Warn(msg string, args ...any) {
	l.warns <- fmt.Sprint(append([]any{msg}, args...)...)
}

func TestAnalyzeImagesRemoteStopFailure(t *testing.T) {
	s := &stoppableStore{stopped: make(chan struct{}), stopErr: errors.New("connection reset")}
	logger := &warnRecorder{warns: make(chan string, 1)}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := gallery.AnalyzeImages(ctx, s, nil,
		gallery.AnalyzeRequest{Mode: gallery.AnalyzeAll, Logger: logger}, nil)
	require.NoError(t, err)
	assert.True(t, summary.Stopped)
	assert.Equal(t, 2, summary.Analyzed)

	select {
	case msg := <-logger.warns:
		assert.Contains(t, msg, "stopping remote analysis failed")
		assert.Contains(t, msg, "connection reset")
	case <-time.After(5 * time.Second):
		t.Fatal("failed stop request was not logged")
	}
}
