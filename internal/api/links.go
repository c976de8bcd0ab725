package api

import (
	"fmt"
	"strings"

	"github.com/danielgtaylor/huma/v2"
)

// links maps operation paths to their RFC 8288 Link header values.
// Enables restish hypermedia navigation via `restish links <url>`.
var links = map[string][]string{
	"/health": {
		`</api/v1/info>; rel="info"`,
		`</api/v1/sources>; rel="sources"`,
		`</api/v1/files>; rel="files"`,
		`</api/v1/map/layers>; rel="map"`,
	},
	"/api/v1/info": {
		`</health>; rel="health"`,
		`</api/v1/sources>; rel="sources"`,
	},
	"/api/v1/sources": {
		`</api/v1/files>; rel="files"`,
		`</api/v1/visibility>; rel="visibility"`,
		`</api/v1/search>; rel="search"`,
	},
	"/api/v1/sources/{id}": {
		`</api/v1/sources>; rel="collection"`,
	},
	"/api/v1/sources/{id}/groups": {
		`</api/v1/sources>; rel="collection"`,
	},
	"/api/v1/files": {
		`</api/v1/sources>; rel="sources"`,
		`</api/v1/prefs>; rel="prefs"`,
	},
	"/api/v1/styles": {
		`</api/v1/map/layers>; rel="map"`,
	},
	"/api/v1/map/layers": {
		`</api/v1/styles>; rel="styles"`,
		`</api/v1/visibility>; rel="visibility"`,
	},
	"/api/v1/store/tables": {
		`</api/v1/store/query>; rel="query"`,
	},
}

// LinkTransformer returns a Huma Transformer that injects RFC 8288 Link headers.
func LinkTransformer() huma.Transformer {
	return func(ctx huma.Context, status string, v any) (any, error) {
		op := ctx.Operation()
		if op == nil {
			return v, nil
		}

		for _, link := range links[op.Path] {
			ctx.AppendHeader("Link", link)
		}

		// Item endpoints get a self link
		if strings.Contains(op.Path, "{") {
			ctx.AppendHeader("Link", fmt.Sprintf(`<%s>; rel="self"`, ctx.URL().Path))
		}

		return v, nil
	}
}
