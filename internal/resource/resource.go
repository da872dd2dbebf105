// Package resource holds the extensible SCIM document model: a set of core
// attributes plus extension payloads keyed by schema URI. Attribute names are
// matched case-insensitively but stored as received.
package resource

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Resource is a single SCIM document. It is owned by exactly one request
// flow while in flight; repositories hand out copies, never shared pointers.
type Resource struct {
	resourceType string
	coreSchema   string
	attributes   map[string]any

	extensionOrder []string
	extensions     map[string]map[string]any
}

// New returns an empty resource of the given type with the given core schema
// URI.
func New(resourceType, coreSchema string) *Resource {
	return &Resource{
		resourceType: resourceType,
		coreSchema:   coreSchema,
		attributes:   make(map[string]any),
		extensions:   make(map[string]map[string]any),
	}
}

// ResourceType returns the resource-type name, e.g. "User".
func (r *Resource) ResourceType() string { return r.resourceType }

// CoreSchema returns the core schema URI.
func (r *Resource) CoreSchema() string { return r.coreSchema }

// ID returns the resource id, or "" when unset.
func (r *Resource) ID() string {
	if v, ok := r.Get("id"); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Get returns the core attribute with the given name, matched
// case-insensitively.
func (r *Resource) Get(name string) (any, bool) {
	return getFold(r.attributes, name)
}

// Set stores a core attribute, replacing any existing value whose key
// matches case-insensitively.
func (r *Resource) Set(name string, value any) {
	removeFold(r.attributes, name)
	r.attributes[name] = value
}

// Remove deletes a core attribute.
func (r *Resource) Remove(name string) {
	removeFold(r.attributes, name)
}

// Attributes returns the underlying core attribute map. Mutating it mutates
// the resource.
func (r *Resource) Attributes() map[string]any { return r.attributes }

// Extension returns the payload registered under the given schema URI.
func (r *Resource) Extension(uri string) (map[string]any, bool) {
	for key, payload := range r.extensions {
		if strings.EqualFold(key, uri) {
			return payload, true
		}
	}
	return nil, false
}

// SetExtension attaches (or replaces) an extension payload. First attachment
// order is preserved across serialization.
func (r *Resource) SetExtension(uri string, payload map[string]any) {
	for _, key := range r.extensionOrder {
		if strings.EqualFold(key, uri) {
			r.extensions[key] = payload
			return
		}
	}
	r.extensionOrder = append(r.extensionOrder, uri)
	r.extensions[uri] = payload
}

// RemoveExtension detaches an extension payload.
func (r *Resource) RemoveExtension(uri string) {
	for i, key := range r.extensionOrder {
		if strings.EqualFold(key, uri) {
			delete(r.extensions, key)
			r.extensionOrder = append(r.extensionOrder[:i], r.extensionOrder[i+1:]...)
			return
		}
	}
}

// ExtensionURIs returns attached extension URIs in attachment order.
func (r *Resource) ExtensionURIs() []string {
	out := make([]string, len(r.extensionOrder))
	copy(out, r.extensionOrder)
	return out
}

// Meta returns the meta attribute as a map, creating it if absent.
func (r *Resource) Meta() map[string]any {
	if v, ok := r.Get("meta"); ok {
		if m, ok := v.(map[string]any); ok {
			return m
		}
	}
	m := make(map[string]any)
	r.Set("meta", m)
	return m
}

// Clone returns a deep copy of the resource.
func (r *Resource) Clone() *Resource {
	out := New(r.resourceType, r.coreSchema)
	out.attributes = copyMap(r.attributes)
	for _, uri := range r.extensionOrder {
		out.SetExtension(uri, copyMap(r.extensions[uri]))
	}
	return out
}

// MarshalJSON renders the document with its schemas list, core attributes at
// the top level, and one nested object per extension URI in attachment order.
func (r *Resource) MarshalJSON() ([]byte, error) {
	doc := make(map[string]any, len(r.attributes)+len(r.extensions)+1)
	schemas := []string{r.coreSchema}
	for name, value := range r.attributes {
		doc[name] = value
	}
	for _, uri := range r.extensionOrder {
		doc[uri] = r.extensions[uri]
		schemas = append(schemas, uri)
	}
	doc["schemas"] = schemas
	return json.Marshal(doc)
}

// UnmarshalJSON splits a document into core attributes and extension
// payloads. Any top-level key containing a colon is treated as an extension
// schema URI, matching the URN form RFC 7643 mandates for schema ids.
func (r *Resource) UnmarshalJSON(data []byte) error {
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	if r.attributes == nil {
		r.attributes = make(map[string]any)
	}
	if r.extensions == nil {
		r.extensions = make(map[string]map[string]any)
	}
	delete(doc, "schemas")
	for key, value := range doc {
		if strings.Contains(key, ":") {
			payload, ok := value.(map[string]any)
			if !ok {
				return fmt.Errorf("extension %q: payload must be an object", key)
			}
			r.SetExtension(key, payload)
			continue
		}
		r.Set(key, value)
	}
	return nil
}

func getFold(m map[string]any, name string) (any, bool) {
	for key, value := range m {
		if strings.EqualFold(key, name) {
			return value, true
		}
	}
	return nil, false
}

func removeFold(m map[string]any, name string) {
	for key := range m {
		if strings.EqualFold(key, name) {
			delete(m, key)
		}
	}
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for key, value := range m {
		out[key] = copyValue(value)
	}
	return out
}

func copyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return copyMap(val)
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = copyValue(elem)
		}
		return out
	default:
		return v
	}
}
