// Package patch applies SCIM PATCH operations (RFC 7644 section 3.5.2) to
// resource documents. A request either applies in full or not at all: the
// processor works on a deep copy and hands it back only when every operation
// succeeded.
package patch

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dhawalhost/scimd/internal/filter"
	"github.com/dhawalhost/scimd/internal/resource"
	"github.com/dhawalhost/scimd/internal/schema"
)

// Operation is one add / remove / replace step of a PATCH request.
type Operation struct {
	Op    string `json:"op" binding:"required"`
	Path  string `json:"path,omitempty"`
	Value any    `json:"value,omitempty"`
}

// ErrNoTarget is returned when a remove operation has no path, or a filtered
// operation matches no element.
var ErrNoTarget = errors.New("no target for patch operation")

// ErrInvalidValue is returned when an operation's value does not fit the
// addressed attribute.
var ErrInvalidValue = errors.New("invalid value for patch operation")

// MutabilityError reports a write to a readOnly or immutable attribute.
type MutabilityError struct {
	Attribute  string
	Mutability schema.Mutability
}

func (e *MutabilityError) Error() string {
	return fmt.Sprintf("attribute %q is %s and cannot be modified", e.Attribute, e.Mutability)
}

// Processor applies patch requests using the schema registry for path
// resolution and mutability checks. It never persists anything.
type Processor struct {
	registry *schema.Registry
}

// NewProcessor returns a processor backed by the given registry.
func NewProcessor(registry *schema.Registry) *Processor {
	return &Processor{registry: registry}
}

// Apply runs the operations strictly in order against a copy of the
// resource. Each operation's path is resolved against the current, possibly
// already-mutated state. On any failure the original resource is untouched
// and the error identifies the failing operation.
func (p *Processor) Apply(res *resource.Resource, ops []Operation) (*resource.Resource, error) {
	core, err := p.registry.CoreSchema(res.ResourceType())
	if err != nil {
		return nil, err
	}
	extensions, err := p.registry.ExtensionSchemas(res.ResourceType())
	if err != nil {
		return nil, err
	}

	out := res.Clone()
	for i, op := range ops {
		if err := p.apply(out, core, extensions, op); err != nil {
			return nil, fmt.Errorf("operation %d (%s): %w", i+1, strings.ToLower(op.Op), err)
		}
	}
	return out, nil
}

func (p *Processor) apply(res *resource.Resource, core *schema.Schema, extensions []*schema.Schema, op Operation) error {
	switch strings.ToLower(op.Op) {
	case "add":
		return p.applyAdd(res, core, extensions, op)
	case "remove":
		return p.applyRemove(res, core, extensions, op)
	case "replace":
		return p.applyReplace(res, core, extensions, op)
	default:
		return fmt.Errorf("%w: unknown op %q", ErrInvalidValue, op.Op)
	}
}

// target bundles a resolved operation path with the container map the
// attribute lives in.
type target struct {
	path      filter.Path
	resolved  *schema.ResolvedAttribute
	container map[string]any
	evaluator *filter.Evaluator
}

func (p *Processor) resolveTarget(res *resource.Resource, core *schema.Schema, extensions []*schema.Schema, rawPath string, forWrite bool) (*target, error) {
	path, err := filter.ParsePath(rawPath)
	if err != nil {
		return nil, err
	}
	resolved, err := schema.Resolve(core, extensions, path.URIPrefix, path.Names()...)
	if err != nil {
		return nil, err
	}
	if forWrite {
		if err := checkMutability(resolved); err != nil {
			return nil, err
		}
	}
	container := res.Attributes()
	if resolved.Extension {
		payload, ok := res.Extension(resolved.Schema.ID)
		if !ok {
			payload = make(map[string]any)
			res.SetExtension(resolved.Schema.ID, payload)
		}
		container = payload
	}
	return &target{
		path:      path,
		resolved:  resolved,
		container: container,
		evaluator: filter.NewEvaluator(core, extensions),
	}, nil
}

// checkMutability re-validates write policy on every operation. readOnly is
// always a hard failure; immutable attributes reject overwrite, which the
// per-operation handlers enforce once the current value is known.
func checkMutability(resolved *schema.ResolvedAttribute) error {
	if resolved.Parent.Mutability == schema.ReadOnly {
		return &MutabilityError{Attribute: resolved.Parent.Name, Mutability: schema.ReadOnly}
	}
	if resolved.Attribute.Mutability == schema.ReadOnly {
		return &MutabilityError{Attribute: resolved.Attribute.Name, Mutability: schema.ReadOnly}
	}
	return nil
}

func (p *Processor) applyAdd(res *resource.Resource, core *schema.Schema, extensions []*schema.Schema, op Operation) error {
	if op.Path == "" {
		return p.mergeTopLevel(res, core, extensions, op.Value)
	}
	t, err := p.resolveTarget(res, core, extensions, op.Path, true)
	if err != nil {
		return err
	}
	return p.write(t, op.Value, false)
}

func (p *Processor) applyReplace(res *resource.Resource, core *schema.Schema, extensions []*schema.Schema, op Operation) error {
	if op.Path == "" {
		return p.mergeTopLevel(res, core, extensions, op.Value)
	}
	t, err := p.resolveTarget(res, core, extensions, op.Path, true)
	if err != nil {
		return err
	}
	return p.write(t, op.Value, true)
}

func (p *Processor) applyRemove(res *resource.Resource, core *schema.Schema, extensions []*schema.Schema, op Operation) error {
	if op.Path == "" {
		return ErrNoTarget
	}
	t, err := p.resolveTarget(res, core, extensions, op.Path, true)
	if err != nil {
		return err
	}
	if t.resolved.Parent.Mutability == schema.Immutable || t.resolved.Attribute.Mutability == schema.Immutable {
		return &MutabilityError{Attribute: t.resolved.Attribute.Name, Mutability: schema.Immutable}
	}

	name := t.resolved.Parent.Name
	if t.path.ValueFilter == nil {
		if t.path.SubAttribute == "" {
			removeFold(t.container, name)
			return nil
		}
		value, ok := getFold(t.container, name)
		if !ok {
			return ErrNoTarget
		}
		switch v := value.(type) {
		case map[string]any:
			removeFold(v, t.path.SubAttribute)
		case []any:
			for _, elem := range v {
				if m, ok := elem.(map[string]any); ok {
					removeFold(m, t.path.SubAttribute)
				}
			}
		default:
			return fmt.Errorf("%w: %q has no sub-attributes", ErrInvalidValue, name)
		}
		return nil
	}

	elems, err := p.matchingElements(t)
	if err != nil {
		return err
	}
	if len(elems.matched) == 0 {
		return ErrNoTarget
	}
	if t.path.SubAttribute != "" {
		for _, elem := range elems.matched {
			removeFold(elem, t.path.SubAttribute)
		}
		return nil
	}
	setFold(t.container, name, elems.rest)
	if len(elems.rest) == 0 {
		removeFold(t.container, name)
	}
	return nil
}

// write implements add (overwrite=false) and replace (overwrite=true) once
// the target is resolved.
func (p *Processor) write(t *target, value any, overwrite bool) error {
	name := t.resolved.Parent.Name

	if t.path.ValueFilter != nil {
		elems, err := p.matchingElements(t)
		if err != nil {
			return err
		}
		if len(elems.matched) == 0 {
			return ErrNoTarget
		}
		for _, elem := range elems.matched {
			if t.path.SubAttribute != "" {
				if err := checkImmutableSub(t, elem); err != nil {
					return err
				}
				setFold(elem, t.path.SubAttribute, value)
				continue
			}
			patch, ok := value.(map[string]any)
			if !ok {
				return fmt.Errorf("%w: filtered write to %q requires an object value", ErrInvalidValue, name)
			}
			for key, sub := range patch {
				setFold(elem, key, sub)
			}
		}
		return nil
	}

	current, exists := getFold(t.container, name)

	if t.resolved.Parent.MultiValued && t.path.SubAttribute == "" {
		if overwrite {
			arr, ok := asArray(value)
			if !ok {
				return fmt.Errorf("%w: %q requires an array value", ErrInvalidValue, name)
			}
			setFold(t.container, name, arr)
			return nil
		}
		existing, _ := current.([]any)
		arr, ok := asArray(value)
		if !ok {
			return fmt.Errorf("%w: %q requires an array or element value", ErrInvalidValue, name)
		}
		setFold(t.container, name, append(existing, arr...))
		return nil
	}

	if t.path.SubAttribute != "" {
		sub, ok := current.(map[string]any)
		if !ok {
			if exists {
				return fmt.Errorf("%w: %q has no sub-attributes", ErrInvalidValue, name)
			}
			sub = make(map[string]any)
			setFold(t.container, name, sub)
		}
		if err := checkImmutable(t.resolved.Attribute, sub, t.path.SubAttribute, overwrite); err != nil {
			return err
		}
		setFold(sub, t.path.SubAttribute, value)
		return nil
	}

	if err := checkImmutable(t.resolved.Attribute, t.container, name, overwrite || exists); err != nil {
		return err
	}
	if t.resolved.Attribute.Type == schema.TypeComplex && !t.resolved.Attribute.MultiValued {
		if patch, ok := value.(map[string]any); ok {
			existing, _ := current.(map[string]any)
			if existing != nil && !overwrite {
				for key, sub := range patch {
					setFold(existing, key, sub)
				}
				return nil
			}
		}
	}
	setFold(t.container, name, value)
	return nil
}

// checkImmutable rejects overwriting an immutable attribute that already has
// a value; the first write is allowed.
func checkImmutable(attr *schema.Attribute, container map[string]any, name string, overwriting bool) error {
	if attr.Mutability != schema.Immutable {
		return nil
	}
	if _, exists := getFold(container, name); exists && overwriting {
		return &MutabilityError{Attribute: attr.Name, Mutability: schema.Immutable}
	}
	return nil
}

func checkImmutableSub(t *target, elem map[string]any) error {
	if t.resolved.Attribute.Mutability != schema.Immutable {
		return nil
	}
	if _, exists := getFold(elem, t.path.SubAttribute); exists {
		return &MutabilityError{Attribute: t.resolved.Attribute.Name, Mutability: schema.Immutable}
	}
	return nil
}

// mergeTopLevel merges an object's attributes into the resource, creating or
// overwriting. Keys containing a colon address extension payloads.
func (p *Processor) mergeTopLevel(res *resource.Resource, core *schema.Schema, extensions []*schema.Schema, value any) error {
	doc, ok := value.(map[string]any)
	if !ok {
		return fmt.Errorf("%w: operation without a path requires an object value", ErrInvalidValue)
	}
	for key, sub := range doc {
		if strings.EqualFold(key, "schemas") {
			continue
		}
		if strings.Contains(key, ":") {
			payload, ok := sub.(map[string]any)
			if !ok {
				return fmt.Errorf("%w: extension %q requires an object value", ErrInvalidValue, key)
			}
			resolvedSchema := findSchema(core, extensions, key)
			if resolvedSchema == nil {
				return fmt.Errorf("schema %q: %w", key, schema.ErrNoSuchAttribute)
			}
			existing, ok := res.Extension(resolvedSchema.ID)
			if !ok {
				existing = make(map[string]any)
				res.SetExtension(resolvedSchema.ID, existing)
			}
			for name, v := range payload {
				if err := p.mergeAttribute(resolvedSchema, existing, name, v); err != nil {
					return err
				}
			}
			continue
		}
		if err := p.mergeAttribute(core, res.Attributes(), key, sub); err != nil {
			return err
		}
	}
	return nil
}

func (p *Processor) mergeAttribute(s *schema.Schema, container map[string]any, name string, value any) error {
	attr := s.Attribute(name)
	if attr == nil {
		return fmt.Errorf("%q: %w", name, schema.ErrNoSuchAttribute)
	}
	if attr.Mutability == schema.ReadOnly {
		return &MutabilityError{Attribute: attr.Name, Mutability: schema.ReadOnly}
	}
	if err := checkImmutable(attr, container, name, true); err != nil {
		return err
	}
	setFold(container, attr.Name, value)
	return nil
}

// matchedElements holds the split of a multi-valued attribute into elements
// matched by a value filter and the rest, in original order.
type matchedElements struct {
	matched []map[string]any
	rest    []any
}

func (p *Processor) matchingElements(t *target) (*matchedElements, error) {
	if !t.resolved.Parent.MultiValued {
		return nil, fmt.Errorf("%w: value filter on single-valued attribute %q", ErrInvalidValue, t.resolved.Parent.Name)
	}
	value, ok := getFold(t.container, t.resolved.Parent.Name)
	if !ok {
		return &matchedElements{}, nil
	}
	elems, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not an array", ErrInvalidValue, t.resolved.Parent.Name)
	}
	out := &matchedElements{}
	for _, elem := range elems {
		m, isMap := elem.(map[string]any)
		if !isMap {
			out.rest = append(out.rest, elem)
			continue
		}
		hit, err := t.evaluator.MatchesElement(t.path.ValueFilter, t.resolved.Parent, m)
		if err != nil {
			return nil, err
		}
		if hit {
			out.matched = append(out.matched, m)
		} else {
			out.rest = append(out.rest, elem)
		}
	}
	return out, nil
}

func findSchema(core *schema.Schema, extensions []*schema.Schema, uri string) *schema.Schema {
	if strings.EqualFold(core.ID, uri) {
		return core
	}
	for _, ext := range extensions {
		if strings.EqualFold(ext.ID, uri) {
			return ext
		}
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

func setFold(m map[string]any, name string, value any) {
	removeFold(m, name)
	m[name] = value
}

func removeFold(m map[string]any, name string) {
	for key := range m {
		if strings.EqualFold(key, name) {
			delete(m, key)
		}
	}
}

func asArray(v any) ([]any, bool) {
	switch val := v.(type) {
	case []any:
		return val, true
	case nil:
		return nil, false
	default:
		return []any{val}, true
	}
}
