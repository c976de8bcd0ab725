package service

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-overlay/internal/metrics"
	"github.com/joeblew999/plat-overlay/internal/render"
)

var (
	ErrDuplicateSource  = errors.New("source already loaded")
	ErrSourceNotFound   = errors.New("source not found")
	ErrGroupingDisabled = errors.New("source has no grouping attribute")
	ErrUnknownGroup     = errors.New("group not found in source")
)

// RegistryConfig configures a Registry. Zero values pick defaults.
type RegistryConfig struct {
	GroupKeys []string
	Colors    *ColorTable
	Adapter   render.Adapter
	Bus       *EventBus
	Logger    *slog.Logger
	Style     string
}

// Registry owns the loaded sources. It is the single writer of the source
// list and funnels every selection change through a recompiled filter.
type Registry struct {
	mu      sync.RWMutex
	sources []*Source
	byName  map[string]*Source
	ids     map[string]struct{}
	style   string

	keys    []string
	colors  *ColorTable
	adapter render.Adapter
	bus     *EventBus
	log     *slog.Logger
	vis     *Visibility
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	if len(cfg.GroupKeys) == 0 {
		cfg.GroupKeys = DefaultGroupKeys
	}
	if cfg.Colors == nil {
		cfg.Colors = NewColorTable(nil)
	}
	if cfg.Adapter == nil {
		cfg.Adapter = render.NewScene(orb.Point{}, 0)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	r := &Registry{
		byName:  make(map[string]*Source),
		ids:     make(map[string]struct{}),
		style:   cfg.Style,
		keys:    append([]string(nil), cfg.GroupKeys...),
		colors:  cfg.Colors,
		adapter: cfg.Adapter,
		bus:     cfg.Bus,
		log:     cfg.Logger,
	}
	r.vis = NewVisibility(r, r.adapter, r.bus)
	return r
}

// Visibility returns the registry's visibility controller.
func (r *Registry) Visibility() *Visibility { return r.vis }

// Colors returns the group color table.
func (r *Registry) Colors() *ColorTable { return r.colors }

// Add registers a classified collection under a display name.
func (r *Registry) Add(name string, c Classified) (*Source, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("source name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[name]; exists {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateSource, name)
	}

	tax := ResolveGroups(c.Lines, r.keys)
	src := &Source{
		ID:                r.uniqueID(GenerateID(name)),
		Name:              name,
		GroupingAttribute: tax.Attribute,
		Groups:            tax.Groups,
		Points:            len(c.Points),
		Lines:             len(c.Lines),
		Polygons:          len(c.Polygons),
		LoadedAt:          time.Now().UTC(),
		points:            c.Points,
		lines:             c.Lines,
		polygons:          c.Polygons,
		selected:          make(map[string]struct{}, len(tax.Groups)),
	}
	if src.Groups == nil {
		src.Groups = []string{}
	}
	for _, g := range src.Groups {
		r.colors.ColorFor(g)
		src.selected[g] = struct{}{}
	}
	src.syncSelected()
	r.stampGroups(src)

	r.sources = append(r.sources, src)
	r.byName[name] = src
	r.ids[src.ID] = struct{}{}

	materialize(r.adapter, src, r.vis.State())

	r.log.Info("source added",
		"source", name,
		"id", src.ID,
		"points", src.Points,
		"lines", src.Lines,
		"polygons", src.Polygons,
		"grouping", src.GroupingAttribute,
		"groups", len(src.Groups),
		"dropped", c.Dropped,
	)
	r.bus.Publish(Event{Resource: "sources", Action: "created", ID: src.ID})
	return src.snapshot(), nil
}

// stampGroups rewrites each line/polygon feature's grouping value to its
// group name (trimmed string) so the map engine compares the same values the
// registry selected, then sets the color property on features lacking one:
// the group color, or DefaultLineColor for ungrouped features.
func (r *Registry) stampGroups(src *Source) {
	for _, f := range src.lines {
		var g string
		if src.Grouped() {
			if g = PropString(f, src.GroupingAttribute); g != "" {
				f.Properties[src.GroupingAttribute] = g
			}
		}
		if PropString(f, ColorProperty) != "" {
			continue
		}
		color := DefaultLineColor
		if g != "" {
			color = r.colors.ColorFor(g)
		}
		f.Properties[ColorProperty] = color
	}
}

// Remove unloads a source. Removing an unknown name is a no-op.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	src, ok := r.byName[name]
	if !ok {
		return
	}
	for i, s := range r.sources {
		if s == src {
			r.sources = append(r.sources[:i], r.sources[i+1:]...)
			break
		}
	}
	delete(r.byName, name)
	delete(r.ids, src.ID)

	dematerialize(r.adapter, src.ID)

	for _, g := range src.Groups {
		if !r.groupReferenced(g) {
			r.colors.Release(g)
		}
	}

	metrics.SourcesRemovedTotal.Inc()
	metrics.LoadedSources.Set(float64(len(r.sources)))
	r.log.Info("source removed", "source", name, "id", src.ID)
	r.bus.Publish(Event{Resource: "sources", Action: "deleted", ID: src.ID})
}

func (r *Registry) groupReferenced(group string) bool {
	for _, s := range r.sources {
		if s.hasGroup(group) {
			return true
		}
	}
	return false
}

// Get returns a snapshot of one source.
func (r *Registry) Get(name string) (*Source, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	src, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	return src.snapshot(), nil
}

// GetByID returns a snapshot of the source with the given key.
func (r *Registry) GetByID(id string) (*Source, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.sources {
		if s.ID == id {
			return s.snapshot(), nil
		}
	}
	return nil, fmt.Errorf("%w: id %q", ErrSourceNotFound, id)
}

// List returns snapshots of all sources in insertion order.
func (r *Registry) List() []*Source {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Source, len(r.sources))
	for i, s := range r.sources {
		result[i] = s.snapshot()
	}
	return result
}

// Len returns the number of loaded sources.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sources)
}

// TotalGroupCount returns the number of groups discovered at ingestion.
func (r *Registry) TotalGroupCount(name string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	src, err := r.lookup(name)
	if err != nil {
		return 0, err
	}
	return len(src.Groups), nil
}

// SetGroupSelected shows or hides one group of one source.
func (r *Registry) SetGroupSelected(name, group string, selected bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	src, err := r.grouped(name)
	if err != nil {
		return err
	}
	if !src.hasGroup(group) {
		return fmt.Errorf("%w: %q in %q", ErrUnknownGroup, group, name)
	}
	if selected {
		src.selected[group] = struct{}{}
	} else {
		delete(src.selected, group)
	}
	r.selectionChanged(src)
	return nil
}

// SelectAllGroups makes every discovered group of a source visible.
func (r *Registry) SelectAllGroups(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	src, err := r.grouped(name)
	if err != nil {
		return err
	}
	selectAll(src)
	r.selectionChanged(src)
	return nil
}

// DeselectAllGroups hides every group of a source.
func (r *Registry) DeselectAllGroups(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	src, err := r.grouped(name)
	if err != nil {
		return err
	}
	src.selected = make(map[string]struct{})
	r.selectionChanged(src)
	return nil
}

// SelectAllGroupsAll selects every group of every grouped source.
func (r *Registry) SelectAllGroupsAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, src := range r.sources {
		if !src.Grouped() {
			continue
		}
		selectAll(src)
		r.selectionChanged(src)
	}
}

// DeselectAllGroupsAll hides every group of every grouped source.
func (r *Registry) DeselectAllGroupsAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, src := range r.sources {
		if !src.Grouped() {
			continue
		}
		src.selected = make(map[string]struct{})
		r.selectionChanged(src)
	}
}

// Filter compiles the current filter of a source.
func (r *Registry) Filter(name string) (Filter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	src, err := r.lookup(name)
	if err != nil {
		return Filter{}, err
	}
	return CompileFilter(src), nil
}

// Style returns the current basemap style name.
func (r *Registry) Style() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.style
}

// Restyle switches the basemap style and re-materializes every source
// against it, in load order.
func (r *Registry) Restyle(style string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.style = style
	vis := r.vis.State()
	for _, src := range r.sources {
		dematerialize(r.adapter, src.ID)
		materialize(r.adapter, src, vis)
	}
	r.log.Info("style changed", "style", style, "sources", len(r.sources))
	r.bus.Publish(Event{Resource: "style", Action: "updated", ID: style})
}

func (r *Registry) lookup(name string) (*Source, error) {
	src, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSourceNotFound, name)
	}
	return src, nil
}

func (r *Registry) grouped(name string) (*Source, error) {
	src, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	if !src.Grouped() {
		return nil, fmt.Errorf("%w: %q", ErrGroupingDisabled, name)
	}
	return src, nil
}

func (r *Registry) selectionChanged(src *Source) {
	src.syncSelected()
	applyFilter(r.adapter, src)
	r.bus.Publish(Event{Resource: "groups", Action: "updated", ID: src.ID})
}

func selectAll(src *Source) {
	src.selected = make(map[string]struct{}, len(src.Groups))
	for _, g := range src.Groups {
		src.selected[g] = struct{}{}
	}
}

// uniqueID suffixes id until no loaded source uses it.
func (r *Registry) uniqueID(id string) string {
	if _, taken := r.ids[id]; !taken {
		return id
	}
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d", id, i)
		if _, taken := r.ids[candidate]; !taken {
			return candidate
		}
	}
}

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	nonWordChar   = regexp.MustCompile(`[^\w\-]`)
)

// GenerateID creates a source key from a display name: whitespace runs
// become underscores and anything outside [A-Za-z0-9_-] is dropped.
func GenerateID(name string) string {
	id := whitespaceRun.ReplaceAllString(strings.TrimSpace(name), "_")
	id = nonWordChar.ReplaceAllString(id, "")
	if id == "" {
		id = "source"
	}
	return id
}
