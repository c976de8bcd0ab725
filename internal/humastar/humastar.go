// Package humastar lets Huma operations answer with Datastar server-sent
// events. Viewer handlers embed [Handler], read the posted signals through
// [SignalsInput] and write element and signal patches through [SSE].
package humastar

import (
	"bytes"
	"encoding/json"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/starfederation/datastar-go/datastar"

	"github.com/joeblew999/plat-overlay/internal/templates"
)

// Handler is embedded by viewer handlers that render fragments into a stream.
type Handler struct {
	Renderer *templates.Renderer
}

// Stream wraps fn as a Huma streaming body.
func (h *Handler) Stream(fn func(sse SSE)) *huma.StreamResponse {
	return &huma.StreamResponse{
		Body: func(ctx huma.Context) { fn(NewSSE(ctx)) },
	}
}

// RenderList renders one tmpl fragment per item, or the empty-state fragment
// with title and msg when there are none.
func (h *Handler) RenderList(tmpl string, items []any, title, msg string) string {
	var buf bytes.Buffer
	if len(items) == 0 {
		h.Renderer.RenderToBuffer(&buf, "empty-state", map[string]string{"Title": title, "Message": msg})
		return buf.String()
	}
	for _, item := range items {
		h.Renderer.RenderToBuffer(&buf, tmpl, item)
	}
	return buf.String()
}

// SSE writes Datastar patches to a Huma stream.
type SSE struct {
	*datastar.ServerSentEventGenerator
}

// NewSSE unwraps the net/http pair behind a humago context.
func NewSSE(ctx huma.Context) SSE {
	r, w := humago.Unwrap(ctx)
	return SSE{datastar.NewSSE(w, r)}
}

// Patch sets the inner HTML of selector.
func (s SSE) Patch(html, selector string) {
	s.PatchElements(html, datastar.WithSelector(selector), datastar.WithModeInner(), datastar.WithViewTransitions())
}

// Replace swaps the element at selector, used for a single source card.
func (s SSE) Replace(html, selector string) {
	s.PatchElements(html, datastar.WithSelector(selector), datastar.WithModeOuter(), datastar.WithViewTransitions())
}

// Error surfaces msg in the viewer's error signal.
func (s SSE) Error(msg string) { s.Signals(map[string]any{"error": msg}) }

// Signals patches the given signal values.
func (s SSE) Signals(signals map[string]any) {
	s.MarshalAndPatchSignals(signals)
}

// Signals is the flat JSON object Datastar posts with each action.
type Signals map[string]any

func signal[T any](s Signals, key string) T {
	v, _ := s[key].(T)
	return v
}

// String returns key as a string, or "" when absent or of another type.
func (s Signals) String(key string) string { return signal[string](s, key) }

// Float returns key as a number, or 0. Used for lon/lat signals.
func (s Signals) Float(key string) float64 { return signal[float64](s, key) }

// Bool returns key as a bool, or false.
func (s Signals) Bool(key string) bool { return signal[bool](s, key) }

// Has reports whether key is present and non-null.
func (s Signals) Has(key string) bool { return s[key] != nil }

// EmptyInput is the input of streams that take no parameters.
type EmptyInput struct{}

// SignalsInput receives the raw Datastar signal body.
type SignalsInput struct {
	RawBody []byte
}

// MustParse decodes the body, mapping malformed JSON to a 400.
func (i *SignalsInput) MustParse() (Signals, error) {
	var signals Signals
	if err := json.Unmarshal(i.RawBody, &signals); err != nil {
		return nil, huma.Error400BadRequest("invalid signals: " + err.Error())
	}
	return signals, nil
}
