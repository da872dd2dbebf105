package schema

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoSuchAttribute is returned when a path segment does not match any
// attribute definition at its nesting level.
var ErrNoSuchAttribute = errors.New("no such attribute")

// ErrInvalidPath is returned when a path references a sub-attribute of a
// non-complex attribute.
var ErrInvalidPath = errors.New("invalid attribute path")

// ResolvedAttribute is the result of resolving an attribute path: the
// definition it terminates at, the definition chain's first element, and the
// schema that owns it (the extension context when the match came from an
// extension schema).
type ResolvedAttribute struct {
	Attribute *Attribute
	Parent    *Attribute
	Schema    *Schema
	Extension bool
}

// Resolve walks an attribute path against a core schema and its extension
// schemas. When uriPrefix is non-empty only the schema with that URI is
// consulted; otherwise the core schema is tried first and then each extension
// in registration order, first match winning.
func Resolve(core *Schema, extensions []*Schema, uriPrefix string, names ...string) (*ResolvedAttribute, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("empty path: %w", ErrInvalidPath)
	}
	if uriPrefix != "" {
		if strings.EqualFold(uriPrefix, core.ID) {
			return resolveIn(core, false, names)
		}
		for _, ext := range extensions {
			if strings.EqualFold(uriPrefix, ext.ID) {
				return resolveIn(ext, true, names)
			}
		}
		return nil, fmt.Errorf("schema %q: %w", uriPrefix, ErrNoSuchAttribute)
	}
	if res, err := resolveIn(core, false, names); err == nil {
		return res, nil
	} else if errors.Is(err, ErrInvalidPath) {
		return nil, err
	}
	for _, ext := range extensions {
		if res, err := resolveIn(ext, true, names); err == nil {
			return res, nil
		} else if errors.Is(err, ErrInvalidPath) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%q: %w", strings.Join(names, "."), ErrNoSuchAttribute)
}

func resolveIn(s *Schema, extension bool, names []string) (*ResolvedAttribute, error) {
	attr := s.Attribute(names[0])
	if attr == nil {
		return nil, fmt.Errorf("%q: %w", names[0], ErrNoSuchAttribute)
	}
	resolved := &ResolvedAttribute{Attribute: attr, Parent: attr, Schema: s, Extension: extension}
	for _, name := range names[1:] {
		if resolved.Attribute.Type != TypeComplex {
			return nil, fmt.Errorf("%q is not complex, cannot resolve %q: %w", resolved.Attribute.Name, name, ErrInvalidPath)
		}
		sub := resolved.Attribute.SubAttribute(name)
		if sub == nil {
			return nil, fmt.Errorf("%q has no sub-attribute %q: %w", resolved.Attribute.Name, name, ErrNoSuchAttribute)
		}
		resolved.Attribute = sub
	}
	return resolved, nil
}
