// Package repository defines the pluggable persistence contract the
// orchestrator depends on, plus the in-process and Postgres implementations.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dhawalhost/scimd/internal/attribute"
	"github.com/dhawalhost/scimd/internal/filter"
	"github.com/dhawalhost/scimd/internal/patch"
	"github.com/dhawalhost/scimd/internal/resource"
)

// ErrNotFound is returned when the addressed resource does not exist.
var ErrNotFound = errors.New("resource not found")

// ErrAlreadyExists is returned when a create violates a uniqueness
// constraint, e.g. a duplicate userName.
var ErrAlreadyExists = errors.New("resource already exists")

// PageRequest carries 1-based pagination for list queries. A nil Count means
// the caller did not ask for a page size; zero or negative means return
// totalResults only, with no resources (RFC 7644 section 3.4.2.4).
type PageRequest struct {
	StartIndex int
	Count      *int
}

// SortRequest names the attribute to sort by and the direction, "ascending"
// (default) or "descending".
type SortRequest struct {
	By    string
	Order string
}

// Descending reports whether results should sort in descending order.
func (s SortRequest) Descending() bool {
	return strings.EqualFold(s.Order, "descending")
}

// FilterResponse is the result of a find: the matched page plus the total
// match count, which may exceed the page size.
type FilterResponse struct {
	Resources    []*resource.Resource
	StartIndex   int
	TotalResults int
}

// UpdateRequest carries either a full replacement resource (PUT) or an
// ordered patch list (PATCH), together with the stored original.
type UpdateRequest struct {
	ID          string
	Original    *resource.Resource
	Replacement *resource.Resource
	Patches     []patch.Operation
}

// RequestContext exposes the caller's attribute selection to processing
// extensions.
type RequestContext struct {
	Attributes         []attribute.Reference
	ExcludedAttributes []attribute.Reference
}

// ClientError lets a processing extension fail with a client-facing status
// and message; the orchestrator translates it into the protocol envelope.
type ClientError struct {
	Status  int
	Message string
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("processing extension rejected request (%d): %s", e.Status, e.Message)
}

// ProcessingExtension transforms a resource before projection, e.g. to
// redact or enrich attributes per deployment policy.
type ProcessingExtension interface {
	FilterAttributes(ctx context.Context, res *resource.Resource, rc RequestContext) (*resource.Resource, error)
}

// Repository is the persistence collaborator for one resource type.
// Implementations own their concurrency discipline; the core issues single
// logical calls and tolerates conflicts or absence at any time.
type Repository interface {
	// ResourceType returns the resource-type name this repository serves.
	ResourceType() string
	// Create persists a new resource and returns it with id and meta set.
	Create(ctx context.Context, res *resource.Resource) (*resource.Resource, error)
	// Get returns the resource or (nil, nil) when absent.
	Get(ctx context.Context, id string) (*resource.Resource, error)
	// Update applies a replacement or patch request and returns the stored
	// result.
	Update(ctx context.Context, req *UpdateRequest) (*resource.Resource, error)
	// Delete removes the resource, returning ErrNotFound when absent.
	Delete(ctx context.Context, id string) error
	// Find returns the page of resources matching the filter. Implementations
	// may push the filter down or evaluate it in memory with the filter
	// engine.
	Find(ctx context.Context, f filter.Expression, page PageRequest, sort SortRequest) (*FilterResponse, error)
	// Extensions returns the processing-extension chain for this repository
	// in invocation order.
	Extensions() []ProcessingExtension
}

// Registry maps resource-type names to their repository, one per type.
type Registry struct {
	repos map[string]Repository
}

// NewRegistry returns an empty repository registry.
func NewRegistry() *Registry {
	return &Registry{repos: make(map[string]Repository)}
}

// Register adds a repository, replacing any previous one for the same type.
func (r *Registry) Register(repo Repository) {
	r.repos[strings.ToLower(repo.ResourceType())] = repo
}

// Repository returns the repository registered for the resource type.
func (r *Registry) Repository(resourceType string) (Repository, bool) {
	repo, ok := r.repos[strings.ToLower(resourceType)]
	return repo, ok
}
