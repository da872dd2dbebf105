package repository

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dhawalhost/scimd/internal/filter"
	"github.com/dhawalhost/scimd/internal/patch"
	"github.com/dhawalhost/scimd/internal/resource"
	"github.com/dhawalhost/scimd/internal/schema"
	"github.com/google/uuid"
)

// MemoryOption configures an in-memory repository.
type MemoryOption func(*Memory)

// WithUniqueAttribute enforces uniqueness of the named attribute across the
// stored resources, e.g. userName for Users.
func WithUniqueAttribute(name string) MemoryOption {
	return func(m *Memory) { m.uniqueAttr = name }
}

// WithProcessingExtensions sets the processing-extension chain.
func WithProcessingExtensions(exts ...ProcessingExtension) MemoryOption {
	return func(m *Memory) { m.exts = exts }
}

// WithLocationBase sets the base URL used for meta.location values.
func WithLocationBase(base string) MemoryOption {
	return func(m *Memory) { m.locationBase = strings.TrimRight(base, "/") }
}

// Memory is a map-backed repository guarded by a RWMutex. Matching,
// pagination, and sorting reuse the filter engine in memory.
type Memory struct {
	mu sync.RWMutex

	resourceType string
	endpoint     string
	registry     *schema.Registry
	patcher      *patch.Processor
	uniqueAttr   string
	locationBase string
	exts         []ProcessingExtension

	store map[string]*resource.Resource
}

// NewMemory returns an empty in-memory repository for the named resource
// type, which must be registered.
func NewMemory(registry *schema.Registry, resourceType string, opts ...MemoryOption) (*Memory, error) {
	rt, err := registry.ResourceType(resourceType)
	if err != nil {
		return nil, err
	}
	m := &Memory{
		resourceType: rt.Name,
		endpoint:     rt.Endpoint,
		registry:     registry,
		patcher:      patch.NewProcessor(registry),
		store:        make(map[string]*resource.Resource),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// ResourceType implements Repository.
func (m *Memory) ResourceType() string { return m.resourceType }

// Extensions implements Repository.
func (m *Memory) Extensions() []ProcessingExtension { return m.exts }

// Create implements Repository. A duplicate value of the configured unique
// attribute is rejected with ErrAlreadyExists and leaves the store unchanged.
func (m *Memory) Create(_ context.Context, res *resource.Resource) (*resource.Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.uniqueAttr != "" {
		key, _ := res.Get(m.uniqueAttr)
		if keyStr, ok := key.(string); ok && keyStr != "" {
			for _, stored := range m.store {
				existing, _ := stored.Get(m.uniqueAttr)
				if existingStr, ok := existing.(string); ok && strings.EqualFold(existingStr, keyStr) {
					return nil, fmt.Errorf("%s %q: %w", m.uniqueAttr, keyStr, ErrAlreadyExists)
				}
			}
		}
	}

	stored := res.Clone()
	id := uuid.NewString()
	stored.Set("id", id)
	now := time.Now().UTC().Format(time.RFC3339)
	stored.Set("meta", map[string]any{
		"resourceType": m.resourceType,
		"created":      now,
		"lastModified": now,
		"location":     m.location(id),
	})
	if err := hashPassword(stored); err != nil {
		return nil, err
	}
	m.store[id] = stored
	return stored.Clone(), nil
}

// Get implements Repository, returning (nil, nil) when absent.
func (m *Memory) Get(_ context.Context, id string) (*resource.Resource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stored, ok := m.store[id]
	if !ok {
		return nil, nil
	}
	return stored.Clone(), nil
}

// Update implements Repository. PATCH requests apply the default patch
// processor; PUT requests replace content while preserving id and creation
// metadata.
func (m *Memory) Update(_ context.Context, req *UpdateRequest) (*resource.Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.store[req.ID]
	if !ok {
		return nil, fmt.Errorf("%q: %w", req.ID, ErrNotFound)
	}

	var next *resource.Resource
	if len(req.Patches) > 0 {
		patched, err := m.patcher.Apply(stored, req.Patches)
		if err != nil {
			return nil, err
		}
		next = patched
	} else if req.Replacement != nil {
		next = req.Replacement.Clone()
	} else {
		return nil, fmt.Errorf("update request carries neither a replacement nor patches")
	}

	next.Set("id", req.ID)
	meta := next.Meta()
	meta["resourceType"] = m.resourceType
	if created, ok := stored.Meta()["created"]; ok {
		meta["created"] = created
	}
	meta["lastModified"] = time.Now().UTC().Format(time.RFC3339)
	meta["location"] = m.location(req.ID)
	if err := hashPassword(next); err != nil {
		return nil, err
	}
	m.store[req.ID] = next
	return next.Clone(), nil
}

// Delete implements Repository.
func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[id]; !ok {
		return fmt.Errorf("%q: %w", id, ErrNotFound)
	}
	delete(m.store, id)
	return nil
}

// Find implements Repository using the in-memory filter engine.
func (m *Memory) Find(_ context.Context, f filter.Expression, page PageRequest, sortReq SortRequest) (*FilterResponse, error) {
	m.mu.RLock()
	all := make([]*resource.Resource, 0, len(m.store))
	for _, stored := range m.store {
		all = append(all, stored)
	}
	m.mu.RUnlock()
	return matchSortPage(m.registry, m.resourceType, all, f, page, sortReq)
}

func (m *Memory) location(id string) string {
	return m.locationBase + m.endpoint + "/" + id
}
