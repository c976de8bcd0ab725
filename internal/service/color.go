package service

import "sync"

// DefaultLineColor is used for line features of ungrouped sources.
const DefaultLineColor = "#00BCD4"

// DefaultPalette is the fixed 40-color group palette.
var DefaultPalette = []string{
	"#E6194B", "#3CB44B", "#FFE119", "#4363D8", "#F58231",
	"#911EB4", "#46F0F0", "#F032E6", "#BCF60C", "#FABEBE",
	"#008080", "#E6BEFF", "#9A6324", "#FFFAC8", "#800000",
	"#AAFFC3", "#808000", "#FFD8B1", "#000075", "#808080",
	"#1F77B4", "#FF7F0E", "#2CA02C", "#D62728", "#9467BD",
	"#8C564B", "#E377C2", "#7F7F7F", "#BCBD22", "#17BECF",
	"#393B79", "#637939", "#8C6D31", "#843C39", "#7B4173",
	"#3182BD", "#E6550D", "#31A354", "#756BB1", "#636363",
}

// ColorTable assigns a stable display color to each group name.
// Colors cycle through the palette once more names than colors have been
// assigned. The table is not source-aware; the registry decides when a name
// can be released.
type ColorTable struct {
	mu       sync.Mutex
	palette  []string
	colors   map[string]string
	assigned int
}

// NewColorTable creates a color table. An empty palette falls back to
// DefaultPalette.
func NewColorTable(palette []string) *ColorTable {
	if len(palette) == 0 {
		palette = DefaultPalette
	}
	return &ColorTable{
		palette: append([]string(nil), palette...),
		colors:  make(map[string]string),
	}
}

// ColorFor returns the color of a group, assigning the next palette entry on
// first use.
func (t *ColorTable) ColorFor(name string) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if c, ok := t.colors[name]; ok {
		return c
	}
	c := t.palette[t.assigned%len(t.palette)]
	t.assigned++
	t.colors[name] = c
	return c
}

// Lookup returns the color of a group without assigning one.
func (t *ColorTable) Lookup(name string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.colors[name]
	return c, ok
}

// Release forgets the color of a group.
func (t *ColorTable) Release(name string) {
	t.mu.Lock()
	delete(t.colors, name)
	t.mu.Unlock()
}

// Len returns the number of names holding a color.
func (t *ColorTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.colors)
}

// PaletteSize returns the number of palette entries.
func (t *ColorTable) PaletteSize() int { return len(t.palette) }
