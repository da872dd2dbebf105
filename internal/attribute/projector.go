package attribute

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dhawalhost/scimd/internal/resource"
	"github.com/dhawalhost/scimd/internal/schema"
)

// ErrConflictingSelection is returned when a request supplies both an
// attributes and an excludedAttributes list.
var ErrConflictingSelection = errors.New("cannot supply both attributes and excludedAttributes")

// Error reports a selection entry that does not resolve against the
// resource's schemas. Callers decide whether to surface it (read path) or
// log and continue (update-display path).
type Error struct {
	Ref Reference
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("attribute selection %q: %v", e.Ref, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

type projectionMode int

const (
	modeDefault projectionMode = iota
	modeInclude
	modeExclude
)

// Projector produces schema-aware output views of resources.
type Projector struct {
	registry *schema.Registry
}

// NewProjector returns a projector backed by the given schema registry.
func NewProjector(registry *schema.Registry) *Projector {
	return &Projector{registry: registry}
}

// ValidateSelection rejects requests carrying both an include and an exclude
// list. It runs before any resource access.
func (p *Projector) ValidateSelection(include, exclude []Reference) error {
	if len(include) > 0 && len(exclude) > 0 {
		return ErrConflictingSelection
	}
	return nil
}

// Project returns a copy of the resource filtered for output:
//   - with an include list: attributes returned "always" plus the listed ones
//     (never returning attributes marked "never");
//   - with an exclude list: the default view minus the listed ones (never
//     removing attributes marked "always");
//   - with neither: attributes returned "always" or "default".
//
// Projection is idempotent: projecting an already-projected resource with the
// same selection yields the same result.
func (p *Projector) Project(res *resource.Resource, include, exclude []Reference) (*resource.Resource, error) {
	if err := p.ValidateSelection(include, exclude); err != nil {
		return nil, err
	}
	core, err := p.registry.CoreSchema(res.ResourceType())
	if err != nil {
		return nil, err
	}
	extensions, err := p.registry.ExtensionSchemas(res.ResourceType())
	if err != nil {
		return nil, err
	}

	mode := modeDefault
	refs := exclude
	if len(include) > 0 {
		mode = modeInclude
		refs = include
	} else if len(exclude) > 0 {
		mode = modeExclude
	}
	for _, ref := range refs {
		if _, err := schema.Resolve(core, extensions, ref.URIPrefix, refNames(ref)...); err != nil {
			return nil, &Error{Ref: ref, Err: err}
		}
	}

	out := res.Clone()
	projectSchema(core, out.Attributes(), mode, refs)
	for _, ext := range extensions {
		payload, ok := out.Extension(ext.ID)
		if !ok {
			continue
		}
		projectSchema(ext, payload, mode, refs)
		if len(payload) == 0 {
			out.RemoveExtension(ext.ID)
		}
	}
	return out, nil
}

func refNames(ref Reference) []string {
	if ref.SubAttribute != "" {
		return []string{ref.Name, ref.SubAttribute}
	}
	return []string{ref.Name}
}

func projectSchema(s *schema.Schema, container map[string]any, mode projectionMode, refs []Reference) {
	for i := range s.Attributes {
		attr := &s.Attributes[i]
		value, ok := getFold(container, attr.Name)
		if !ok {
			continue
		}
		switch decide(s, attr, mode, refs) {
		case keepNone:
			removeFold(container, attr.Name)
		case keepSelected:
			pruneComplex(s, attr, value, mode, refs)
		case keepAll:
			if mode == modeExclude {
				pruneComplex(s, attr, value, mode, refs)
			}
		}
	}
}

type keepDecision int

const (
	keepNone keepDecision = iota
	keepAll
	keepSelected
)

func decide(s *schema.Schema, attr *schema.Attribute, mode projectionMode, refs []Reference) keepDecision {
	if attr.Returned == schema.ReturnedAlways {
		return keepAll
	}
	switch mode {
	case modeInclude:
		if attr.Returned == schema.ReturnedNever {
			return keepNone
		}
		whole, subs := selectionFor(s, attr, refs)
		if whole {
			return keepAll
		}
		if subs {
			return keepSelected
		}
		return keepNone
	case modeExclude:
		if attr.Returned != schema.ReturnedDefault {
			return keepNone
		}
		whole, _ := selectionFor(s, attr, refs)
		if whole {
			return keepNone
		}
		return keepAll
	default:
		if attr.Returned == schema.ReturnedDefault {
			return keepAll
		}
		return keepNone
	}
}

// selectionFor reports whether refs name the whole attribute and whether any
// ref names one of its sub-attributes.
func selectionFor(s *schema.Schema, attr *schema.Attribute, refs []Reference) (whole, subs bool) {
	for _, ref := range refs {
		if !ref.matches(s.ID, attr.Name) {
			continue
		}
		if ref.SubAttribute == "" {
			whole = true
		} else {
			subs = true
		}
	}
	return whole, subs
}

// pruneComplex applies sub-attribute level selection to a complex value. In
// include mode only the named sub-attributes (plus always-returned ones)
// survive; in exclude mode the named sub-attributes are removed unless
// always-returned.
func pruneComplex(s *schema.Schema, attr *schema.Attribute, value any, mode projectionMode, refs []Reference) {
	if attr.Type != schema.TypeComplex {
		return
	}
	prune := func(elem map[string]any) {
		for i := range attr.SubAttributes {
			sub := &attr.SubAttributes[i]
			if sub.Returned == schema.ReturnedAlways {
				continue
			}
			named := false
			for _, ref := range refs {
				if ref.matches(s.ID, attr.Name) && strings.EqualFold(ref.SubAttribute, sub.Name) {
					named = true
					break
				}
			}
			drop := false
			switch mode {
			case modeInclude:
				drop = !named
			case modeExclude:
				drop = named
			}
			if drop {
				removeFold(elem, sub.Name)
			}
		}
	}
	switch v := value.(type) {
	case map[string]any:
		prune(v)
	case []any:
		for _, elem := range v {
			if m, ok := elem.(map[string]any); ok {
				prune(m)
			}
		}
	}
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
