// Package prefs persists viewer preferences: recently opened files, the last
// selected file, layer toggles, basemap style and last known location.
package prefs

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Defaults.
const (
	MaxRecentFiles = 5
	DefaultMaxAge  = 7 * 24 * time.Hour
)

// Location is the last known user position.
type Location struct {
	Lon      float64 `json:"lon" doc:"Longitude" minimum:"-180" maximum:"180"`
	Lat      float64 `json:"lat" doc:"Latitude" minimum:"-90" maximum:"90"`
	Accuracy float64 `json:"accuracy,omitempty" doc:"Accuracy radius in meters"`
}

// Preferences holds the persisted toggles and style.
type Preferences struct {
	MarkersVisible bool      `json:"markers_visible" doc:"Point markers visible"`
	NamesVisible   bool      `json:"names_visible" doc:"Marker labels visible"`
	LinesVisible   bool      `json:"lines_visible" doc:"Lines and polygons visible"`
	CurrentStyle   string    `json:"current_style" doc:"Basemap style name" example:"Voyager"`
	LastLocation   *Location `json:"last_location,omitempty" doc:"Last known user location"`
}

// DefaultPreferences has every layer visible.
func DefaultPreferences(style string) Preferences {
	return Preferences{MarkersVisible: true, NamesVisible: true, LinesVisible: true, CurrentStyle: style}
}

// State is everything a backend persists.
type State struct {
	RecentFiles  []string    `json:"recent_files"`
	LastSelected string      `json:"last_selected,omitempty"`
	Preferences  Preferences `json:"preferences"`
	SavedAt      time.Time   `json:"saved_at"`
}

// Backend loads and saves State. Load returns ok=false when nothing is
// stored or the stored state has expired.
type Backend interface {
	Load(ctx context.Context) (State, bool, error)
	Save(ctx context.Context, st State) error
}

// Store caches State in memory and writes every change through to a Backend.
type Store struct {
	mu      sync.RWMutex
	state   State
	backend Backend
	log     *slog.Logger
}

// New loads the stored state, falling back to defaults when none is found.
func New(ctx context.Context, backend Backend, defaults Preferences, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	s := &Store{backend: backend, log: log, state: State{RecentFiles: []string{}, Preferences: defaults}}
	st, ok, err := backend.Load(ctx)
	if err != nil {
		log.Warn("prefs load failed", "error", err)
		return s
	}
	if ok {
		if st.RecentFiles == nil {
			st.RecentFiles = []string{}
		}
		if st.Preferences.CurrentStyle == "" {
			st.Preferences.CurrentStyle = defaults.CurrentStyle
		}
		s.state = st
	}
	return s
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.state
	st.RecentFiles = append([]string{}, s.state.RecentFiles...)
	if s.state.Preferences.LastLocation != nil {
		loc := *s.state.Preferences.LastLocation
		st.Preferences.LastLocation = &loc
	}
	return st
}

// Recent returns recently opened files, most recent first.
func (s *Store) Recent() []string { return s.Snapshot().RecentFiles }

// LastSelected returns the file selected most recently.
func (s *Store) LastSelected() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.LastSelected
}

// Preferences returns the stored preferences.
func (s *Store) Preferences() Preferences { return s.Snapshot().Preferences }

// Touch records name as opened: it moves to the front of the recent list,
// the list is capped at MaxRecentFiles, and name becomes the last selected
// file.
func (s *Store) Touch(ctx context.Context, name string) error {
	return s.update(ctx, func(st *State) {
		st.RecentFiles = pushRecent(st.RecentFiles, name)
		st.LastSelected = name
	})
}

// Forget removes name from the recent list.
func (s *Store) Forget(ctx context.Context, name string) error {
	return s.update(ctx, func(st *State) {
		kept := st.RecentFiles[:0:0]
		for _, f := range st.RecentFiles {
			if f != name {
				kept = append(kept, f)
			}
		}
		st.RecentFiles = kept
		if st.LastSelected == name {
			st.LastSelected = ""
		}
	})
}

// SetPreferences replaces the stored preferences.
func (s *Store) SetPreferences(ctx context.Context, p Preferences) error {
	return s.update(ctx, func(st *State) { st.Preferences = p })
}

// UpdatePreferences applies fn to the stored preferences.
func (s *Store) UpdatePreferences(ctx context.Context, fn func(*Preferences)) error {
	return s.update(ctx, func(st *State) { fn(&st.Preferences) })
}

// SetLocation records the last known location.
func (s *Store) SetLocation(ctx context.Context, loc Location) error {
	return s.update(ctx, func(st *State) { st.Preferences.LastLocation = &loc })
}

func (s *Store) update(ctx context.Context, fn func(*State)) error {
	s.mu.Lock()
	fn(&s.state)
	s.state.SavedAt = time.Now().UTC()
	st := s.state
	st.RecentFiles = append([]string{}, s.state.RecentFiles...)
	s.mu.Unlock()

	if err := s.backend.Save(ctx, st); err != nil {
		s.log.Warn("prefs save failed", "error", err)
		return err
	}
	return nil
}

func pushRecent(recent []string, name string) []string {
	out := make([]string, 0, MaxRecentFiles)
	out = append(out, name)
	for _, f := range recent {
		if f != name && len(out) < MaxRecentFiles {
			out = append(out, f)
		}
	}
	return out
}

// OrderByRecent sorts names with recently opened files first, in recency
// order, followed by the rest alphabetically. names is not modified.
func OrderByRecent(names, recent []string) []string {
	rank := make(map[string]int, len(recent))
	for i, f := range recent {
		if _, dup := rank[f]; !dup {
			rank[f] = i
		}
	}
	out := append([]string{}, names...)
	sort.SliceStable(out, func(i, j int) bool {
		ri, iRecent := rank[out[i]]
		rj, jRecent := rank[out[j]]
		switch {
		case iRecent && jRecent:
			return ri < rj
		case iRecent != jRecent:
			return iRecent
		}
		return out[i] < out[j]
	})
	return out
}
