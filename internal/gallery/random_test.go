package gallery_test

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gallery-go/internal/gallery"
	"gallery-go/internal/testutil"
)

func scored(rec gallery.ImageRecord, score float64) gallery.ImageRecord {
	rec.QualityScore = &score
	return rec
}

func seedRandom(t *testing.T, f *fixture) {
	t.Helper()
	fav := scored(testutil.Image("fav", "fav.png", 5000), 90)
	fav.Favorite = true
	doc := gallery.NewImageDocument()
	doc.Images = []gallery.ImageRecord{
		scored(testutil.Image("good", "good.png", 1000), 80),
		scored(testutil.Image("poor", "poor.png", 2000), 20),
		testutil.Image("unscored", "unscored.png", 3000),
		testutil.Image("nofile", "", 4000),
		fav,
	}
	require.NoError(t, f.ws.WriteImages(doc))
}

func TestRandomPickerCyclesWithoutRepeats(t *testing.T) {
	f := newFixture(t)
	seedRandom(t, f)
	ctx := context.Background()
	p := gallery.NewRandomPicker(f.store, gallery.DefaultRandomMinQuality, false, rand.New(rand.NewPCG(1, 2)))

	require.NoError(t, p.Load(ctx))
	assert.Equal(t, 3, p.Size())

	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		rec, err := p.Next(ctx)
		require.NoError(t, err)
		assert.False(t, seen[rec.ID], "repeated %s", rec.ID)
		seen[rec.ID] = true
	}
	assert.Equal(t, map[string]bool{"good": true, "unscored": true, "fav": true}, seen)
	assert.Zero(t, p.Remaining())

	_, err := p.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Remaining())

	p.Reset()
	assert.Equal(t, 3, p.Remaining())

	p.Forget("good")
	assert.Equal(t, 2, p.Size())
}

func TestRandomPickerFavoritesOnly(t *testing.T) {
	f := newFixture(t)
	seedRandom(t, f)
	ctx := context.Background()
	p := gallery.NewRandomPicker(f.store, gallery.DefaultRandomMinQuality, true, nil)

	for i := 0; i < 3; i++ {
		rec, err := p.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, "fav", rec.ID)
	}
}

func TestRandomPickerEmpty(t *testing.T) {
	f := newFixture(t)
	p := gallery.NewRandomPicker(f.store, gallery.DefaultRandomMinQuality, false, nil)

	_, err := p.Next(context.Background())
	assert.ErrorIs(t, err, gallery.ErrNoImages)
}
