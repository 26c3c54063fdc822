package gallery

import (
	"context"
	"errors"
	"math/rand/v2"
)

// DefaultRandomMinQuality is the lowest stored score the random viewer shows.
// Unscored images are always eligible.
const DefaultRandomMinQuality = 40

// ErrNoImages is returned by RandomPicker when nothing is eligible.
var ErrNoImages = errors.New("no images to show")

// RandomPicker walks the collection in random order without repeating an
// image until every eligible image has been shown once.
type RandomPicker struct {
	store         ImageStore
	minQuality    float64
	favoritesOnly bool
	intn          func(int) int

	pool   []ImageRecord
	viewed map[string]bool
	loaded bool
}

// NewRandomPicker creates a picker. A nil rng uses the global source.
func NewRandomPicker(store ImageStore, minQuality float64, favoritesOnly bool, rng *rand.Rand) *RandomPicker {
	intn := rand.IntN
	if rng != nil {
		intn = rng.IntN
	}
	return &RandomPicker{
		store:         store,
		minQuality:    minQuality,
		favoritesOnly: favoritesOnly,
		intn:          intn,
		viewed:        map[string]bool{},
	}
}

// Load fetches the eligible images and forgets what was viewed.
func (p *RandomPicker) Load(ctx context.Context) error {
	var f ImageFilter
	if p.favoritesOnly {
		fav := true
		f.Favorite = &fav
	}
	all, err := ListAllImages(ctx, p.store, f)
	if err != nil {
		return err
	}

	p.pool = p.pool[:0]
	for _, rec := range all {
		if rec.Filename == "" {
			continue
		}
		if rec.QualityScore != nil && *rec.QualityScore < p.minQuality {
			continue
		}
		p.pool = append(p.pool, rec)
	}
	p.viewed = map[string]bool{}
	p.loaded = true
	return nil
}

// Next returns a random image not shown since the last Reset. Once all
// have been shown, the viewed set starts over.
func (p *RandomPicker) Next(ctx context.Context) (*ImageRecord, error) {
	if !p.loaded {
		if err := p.Load(ctx); err != nil {
			return nil, err
		}
	}
	if len(p.pool) == 0 {
		return nil, ErrNoImages
	}

	unviewed := make([]int, 0, len(p.pool))
	for i := range p.pool {
		if !p.viewed[p.pool[i].ID] {
			unviewed = append(unviewed, i)
		}
	}
	if len(unviewed) == 0 {
		p.Reset()
		return p.Next(ctx)
	}

	rec := p.pool[unviewed[p.intn(len(unviewed))]]
	p.viewed[rec.ID] = true
	return &rec, nil
}

// Reset forgets which images were shown.
func (p *RandomPicker) Reset() {
	p.viewed = map[string]bool{}
}

// Forget drops id from the pool, after it was deleted.
func (p *RandomPicker) Forget(id string) {
	for i := range p.pool {
		if p.pool[i].ID == id {
			p.pool = append(p.pool[:i], p.pool[i+1:]...)
			break
		}
	}
	delete(p.viewed, id)
}

// Remaining returns how many eligible images have not been shown.
func (p *RandomPicker) Remaining() int {
	n := 0
	for i := range p.pool {
		if !p.viewed[p.pool[i].ID] {
			n++
		}
	}
	return n
}

// Size returns the number of eligible images.
func (p *RandomPicker) Size() int {
	return len(p.pool)
}
