package gallery

// View modes of the gallery listing.
const (
	ViewGrid = "grid"
	ViewList = "list"
)

// Preferences are the per-user listing settings that outlive a session.
type Preferences struct {
	PageSize int
	ViewMode string
}

// DefaultPreferences returns the settings used before the user changes anything.
func DefaultPreferences() Preferences {
	return Preferences{PageSize: DefaultPageSize, ViewMode: ViewGrid}
}

// PreferenceStore loads and saves Preferences.
type PreferenceStore interface {
	Load() (Preferences, error)
	Save(p Preferences) error
}

// MemoryPreferences keeps preferences in memory.
type MemoryPreferences struct {
	Prefs Preferences
}

func NewMemoryPreferences() *MemoryPreferences {
	return &MemoryPreferences{Prefs: DefaultPreferences()}
}

func (m *MemoryPreferences) Load() (Preferences, error) { return m.Prefs, nil }

func (m *MemoryPreferences) Save(p Preferences) error {
	m.Prefs = p
	return nil
}
