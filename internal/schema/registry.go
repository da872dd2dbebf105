package schema

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSchemaNotFound is returned when a schema URI or resource type was never
// registered.
var ErrSchemaNotFound = errors.New("schema not found")

// Registry holds schema and resource-type definitions. It is populated once
// during startup and is read-only afterwards, so lookups need no locking.
type Registry struct {
	schemas     map[string]*Schema
	schemaOrder []string
	types       map[string]*ResourceType
	typeOrder   []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		schemas: make(map[string]*Schema),
		types:   make(map[string]*ResourceType),
	}
}

// AddSchema registers a schema by its URI. Re-registering a URI replaces the
// previous definition.
func (r *Registry) AddSchema(s *Schema) {
	key := strings.ToLower(s.ID)
	if _, ok := r.schemas[key]; !ok {
		r.schemaOrder = append(r.schemaOrder, key)
	}
	r.schemas[key] = s
}

// AddResourceType registers a resource type. The core schema and every
// extension schema must already be registered.
func (r *Registry) AddResourceType(rt *ResourceType) error {
	if _, ok := r.schemas[strings.ToLower(rt.Schema)]; !ok {
		return fmt.Errorf("resource type %q: core schema %q: %w", rt.Name, rt.Schema, ErrSchemaNotFound)
	}
	for _, ext := range rt.SchemaExtensions {
		if _, ok := r.schemas[strings.ToLower(ext.Schema)]; !ok {
			return fmt.Errorf("resource type %q: extension schema %q: %w", rt.Name, ext.Schema, ErrSchemaNotFound)
		}
	}
	key := strings.ToLower(rt.Name)
	if _, ok := r.types[key]; !ok {
		r.typeOrder = append(r.typeOrder, key)
	}
	r.types[key] = rt
	return nil
}

// Schema looks up a schema by URI.
func (r *Registry) Schema(uri string) (*Schema, error) {
	s, ok := r.schemas[strings.ToLower(uri)]
	if !ok {
		return nil, fmt.Errorf("%q: %w", uri, ErrSchemaNotFound)
	}
	return s, nil
}

// ResourceType looks up a resource type by name.
func (r *Registry) ResourceType(name string) (*ResourceType, error) {
	rt, ok := r.types[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("resource type %q: %w", name, ErrSchemaNotFound)
	}
	return rt, nil
}

// CoreSchema returns the core schema of the named resource type.
func (r *Registry) CoreSchema(resourceType string) (*Schema, error) {
	rt, err := r.ResourceType(resourceType)
	if err != nil {
		return nil, err
	}
	return r.Schema(rt.Schema)
}

// ExtensionSchemas returns the extension schemas of the named resource type
// in registration order.
func (r *Registry) ExtensionSchemas(resourceType string) ([]*Schema, error) {
	rt, err := r.ResourceType(resourceType)
	if err != nil {
		return nil, err
	}
	exts := make([]*Schema, 0, len(rt.SchemaExtensions))
	for _, ext := range rt.SchemaExtensions {
		s, err := r.Schema(ext.Schema)
		if err != nil {
			return nil, err
		}
		exts = append(exts, s)
	}
	return exts, nil
}

// Schemas returns every registered schema in registration order.
func (r *Registry) Schemas() []*Schema {
	out := make([]*Schema, 0, len(r.schemaOrder))
	for _, key := range r.schemaOrder {
		out = append(out, r.schemas[key])
	}
	return out
}

// ResourceTypes returns every registered resource type in registration order.
func (r *Registry) ResourceTypes() []*ResourceType {
	out := make([]*ResourceType, 0, len(r.typeOrder))
	for _, key := range r.typeOrder {
		out = append(out, r.types[key])
	}
	return out
}
