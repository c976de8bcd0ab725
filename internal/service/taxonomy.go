package service

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/paulmach/orb/geojson"
)

// Taxonomy is the grouping resolved for one source's line/polygon subset.
type Taxonomy struct {
	Attribute string   // empty when grouping is disabled
	Groups    []string // distinct non-empty values, sorted
}

// ResolveGroups picks the grouping attribute and enumerates its values.
//
// Features are scanned in order; the first one carrying a non-empty value for
// any candidate key decides the attribute, preferring earlier keys. The
// choice is positional, never alphabetical.
func ResolveGroups(features []*geojson.Feature, keys []string) Taxonomy {
	var t Taxonomy
	for _, f := range features {
		for _, k := range keys {
			if PropString(f, k) != "" {
				t.Attribute = k
				break
			}
		}
		if t.Attribute != "" {
			break
		}
	}
	if t.Attribute == "" {
		return t
	}

	seen := make(map[string]struct{})
	for _, f := range features {
		v := PropString(f, t.Attribute)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		t.Groups = append(t.Groups, v)
	}
	sort.Strings(t.Groups)
	return t
}

// PropString returns a property as a trimmed string. Numbers are formatted
// without trailing zeros; missing or nil values yield "".
func PropString(f *geojson.Feature, key string) string {
	if f == nil || f.Properties == nil {
		return ""
	}
	return stringValue(f.Properties[key])
}

func stringValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	default:
		return strings.TrimSpace(fmt.Sprint(x))
	}
}
