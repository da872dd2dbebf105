package repository

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dhawalhost/scimd/internal/filter"
	"github.com/dhawalhost/scimd/internal/resource"
	"github.com/dhawalhost/scimd/internal/schema"
)

// matchSortPage evaluates the filter in memory with the filter engine, sorts
// by the requested attribute (id when none is given, so pagination is
// deterministic), and slices out the 1-based page. Shared by the in-memory
// and Postgres repositories.
func matchSortPage(registry *schema.Registry, resourceType string, all []*resource.Resource, f filter.Expression, page PageRequest, sortReq SortRequest) (*FilterResponse, error) {
	core, err := registry.CoreSchema(resourceType)
	if err != nil {
		return nil, err
	}
	extensions, err := registry.ExtensionSchemas(resourceType)
	if err != nil {
		return nil, err
	}
	ev := filter.NewEvaluator(core, extensions)

	matched := make([]*resource.Resource, 0, len(all))
	for _, res := range all {
		hit, err := ev.Matches(f, res)
		if err != nil {
			return nil, err
		}
		if hit {
			matched = append(matched, res)
		}
	}

	sortBy := sortReq.By
	if sortBy == "" {
		sortBy = "id"
	}
	keys := make([]string, len(matched))
	for i, res := range matched {
		key, err := sortKey(core, extensions, res, sortBy)
		if err != nil {
			return nil, err
		}
		keys[i] = key
	}
	order := make([]int, len(matched))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		if sortReq.Descending() {
			return keys[order[a]] > keys[order[b]]
		}
		return keys[order[a]] < keys[order[b]]
	})

	startIndex := page.StartIndex
	if startIndex < 1 {
		startIndex = 1
	}
	count := len(matched)
	if page.Count != nil {
		count = *page.Count
		if count < 0 {
			count = 0
		}
	}

	resp := &FilterResponse{
		StartIndex:   startIndex,
		TotalResults: len(matched),
		Resources:    []*resource.Resource{},
	}
	for i := startIndex - 1; i < len(matched) && len(resp.Resources) < count; i++ {
		resp.Resources = append(resp.Resources, matched[order[i]].Clone())
	}
	return resp, nil
}

// sortKey renders the sort attribute's value as a comparable string. String
// attributes honor the schema's case-exactness; missing values sort first.
func sortKey(core *schema.Schema, extensions []*schema.Schema, res *resource.Resource, sortBy string) (string, error) {
	path, err := filter.ParsePath(sortBy)
	if err != nil {
		return "", err
	}
	resolved, err := schema.Resolve(core, extensions, path.URIPrefix, path.Names()...)
	if err != nil {
		return "", err
	}

	container := res.Attributes()
	if resolved.Extension {
		payload, ok := res.Extension(resolved.Schema.ID)
		if !ok {
			return "", nil
		}
		container = payload
	}
	var value any
	var ok bool
	for key, v := range container {
		if strings.EqualFold(key, resolved.Parent.Name) {
			value, ok = v, true
			break
		}
	}
	if !ok {
		return "", nil
	}
	if path.SubAttribute != "" {
		m, isMap := value.(map[string]any)
		if !isMap {
			return "", nil
		}
		for key, v := range m {
			if strings.EqualFold(key, path.SubAttribute) {
				value = v
				break
			}
		}
	}
	switch v := value.(type) {
	case string:
		if !resolved.Attribute.CaseExact {
			return strings.ToLower(v), nil
		}
		return v, nil
	case float64:
		// Fixed-width so lexicographic order matches numeric order for the
		// magnitudes ids and counters take in practice.
		return fmt.Sprintf("%020.6f", v), nil
	case bool:
		if v {
			return "1", nil
		}
		return "0", nil
	case nil:
		return "", nil
	default:
		return fmt.Sprintf("%v", v), nil
	}
}
