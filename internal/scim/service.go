package scim

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dhawalhost/scimd/internal/attribute"
	"github.com/dhawalhost/scimd/internal/etag"
	"github.com/dhawalhost/scimd/internal/filter"
	"github.com/dhawalhost/scimd/internal/patch"
	"github.com/dhawalhost/scimd/internal/repository"
	"github.com/dhawalhost/scimd/internal/resource"
	"github.com/dhawalhost/scimd/internal/schema"
	"go.uber.org/zap"
)

// Config carries orchestrator knobs.
type Config struct {
	// RequireDeletePrecondition makes Delete evaluate If-Match like updates
	// do. Off by default: plain idempotent delete.
	RequireDeletePrecondition bool
	// MaxCount caps the page size of list queries. 0 means no cap.
	MaxCount int
}

// Service sequences resource operations across the schema registry, the
// filter and patch engines, the attribute projector, the version engine, and
// the per-type Repository. It holds no per-request state and is safe for
// concurrent use.
type Service struct {
	registry  *schema.Registry
	repos     *repository.Registry
	projector *attribute.Projector
	etags     etag.Generator
	logger    *zap.Logger
	cfg       Config
}

// NewService creates the orchestrator.
func NewService(registry *schema.Registry, repos *repository.Registry, logger *zap.Logger, cfg Config) *Service {
	return &Service{
		registry:  registry,
		repos:     repos,
		projector: attribute.NewProjector(registry),
		logger:    logger,
		cfg:       cfg,
	}
}

// Selection is the caller's attribute selection. At most one list may be
// non-empty.
type Selection struct {
	Attributes         []attribute.Reference
	ExcludedAttributes []attribute.Reference
}

// GetRequest addresses a single-resource read.
type GetRequest struct {
	ResourceType string
	ID           string
	Selection    Selection
	IfNoneMatch  string
	// FilterPresent flags a filter query parameter on a single-resource
	// read, which is query-only and rejected.
	FilterPresent bool
}

// ResourceResult is the outcome of a single-resource operation. Resource is
// nil on a 304 short-circuit and on create's degraded no-body success.
type ResourceResult struct {
	Resource    *resource.Resource
	ETag        string
	Location    string
	NotModified bool
}

// QueryResult is the outcome of a list query.
type QueryResult struct {
	Response *ListResponse
}

// Get reads one resource. The If-None-Match precondition is evaluated before
// any attribute work as a cheap short-circuit.
func (s *Service) Get(ctx context.Context, req *GetRequest) (*ResourceResult, error) {
	if req.FilterPresent {
		return nil, NewError(http.StatusForbidden, "", "Filtering is not supported on single resource reads")
	}
	repo, err := s.repo(req.ResourceType)
	if err != nil {
		return nil, err
	}

	res, err := repo.Get(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	var tag string
	if res != nil {
		tag, err = s.requireEtag(res)
		if err != nil {
			return nil, err
		}
		if etag.Match(req.IfNoneMatch, tag) {
			return &ResourceResult{ETag: tag, NotModified: true}, nil
		}
	}

	if err := s.projector.ValidateSelection(req.Selection.Attributes, req.Selection.ExcludedAttributes); err != nil {
		return nil, err
	}
	if res == nil {
		return nil, notFoundError(req.ID)
	}

	res, err = s.applyExtensions(ctx, repo, res, req.Selection)
	if err != nil {
		return nil, err
	}
	projected, err := s.projector.Project(res, req.Selection.Attributes, req.Selection.ExcludedAttributes)
	if err != nil {
		return nil, err
	}
	return &ResourceResult{Resource: projected, ETag: tag, Location: location(res)}, nil
}

// Query runs a list query, delegating matching, sorting, and pagination to
// the Repository and projecting each returned resource.
func (s *Service) Query(ctx context.Context, resourceType string, req *SearchRequest) (*QueryResult, error) {
	if err := req.Validate(); err != nil {
		return nil, NewError(http.StatusBadRequest, "invalidValue", err.Error())
	}
	repo, err := s.repo(resourceType)
	if err != nil {
		return nil, err
	}
	sel, err := parseSelection(req.Attributes, req.ExcludedAttributes)
	if err != nil {
		return nil, err
	}
	if err := s.projector.ValidateSelection(sel.Attributes, sel.ExcludedAttributes); err != nil {
		return nil, err
	}

	var expr filter.Expression
	if req.Filter != "" {
		expr, err = filter.Parse(req.Filter)
		if err != nil {
			return nil, err
		}
	}

	count := req.Count
	if s.cfg.MaxCount > 0 && (count == nil || *count > s.cfg.MaxCount) {
		capped := s.cfg.MaxCount
		count = &capped
	}
	page := repository.PageRequest{StartIndex: req.StartIndex, Count: count}
	sortReq := repository.SortRequest{By: req.SortBy, Order: req.SortOrder}

	resp, err := repo.Find(ctx, expr, page, sortReq)
	if err != nil {
		return nil, err
	}

	// An empty result is still a ListResponse with totalResults set
	// (RFC 7644 section 3.4.2); Resources stays an empty list, never null.
	list := &ListResponse{
		Schemas:      []string{ListSchema},
		TotalResults: 0,
		Resources:    []*resource.Resource{},
	}
	if resp == nil || len(resp.Resources) == 0 {
		if resp != nil {
			list.TotalResults = resp.TotalResults
			list.StartIndex = resp.StartIndex
		}
		return &QueryResult{Response: list}, nil
	}

	list.TotalResults = resp.TotalResults
	list.StartIndex = resp.StartIndex
	list.ItemsPerPage = len(resp.Resources)
	for _, res := range resp.Resources {
		if _, err := s.requireEtag(res); err != nil {
			return nil, err
		}
		res, err = s.applyExtensions(ctx, repo, res, sel)
		if err != nil {
			return nil, err
		}
		projected, err := s.projector.Project(res, sel.Attributes, sel.ExcludedAttributes)
		if err != nil {
			return nil, err
		}
		list.Resources = append(list.Resources, projected)
	}
	return &QueryResult{Response: list}, nil
}

// Create persists a new resource. The returned ETag reflects the full
// pre-projection content. A projection failure on the echo degrades to a
// bodiless success rather than failing the create, which has already
// happened.
func (s *Service) Create(ctx context.Context, resourceType string, res *resource.Resource, sel Selection) (*ResourceResult, error) {
	repo, err := s.repo(resourceType)
	if err != nil {
		return nil, err
	}
	if err := s.projector.ValidateSelection(sel.Attributes, sel.ExcludedAttributes); err != nil {
		return nil, err
	}

	created, err := repo.Create(ctx, res)
	if err != nil {
		return nil, err
	}

	tag := s.etagLenient(created)
	loc := location(created)

	created, err = s.applyExtensions(ctx, repo, created, sel)
	if err != nil {
		return nil, err
	}
	projected, err := s.projector.Project(created, sel.Attributes, sel.ExcludedAttributes)
	if err != nil {
		s.logger.Debug("Attribute processing failed on create echo, returning bodiless success",
			zap.Error(err))
		return &ResourceResult{ETag: tag, Location: loc}, nil
	}
	return &ResourceResult{Resource: projected, ETag: tag, Location: loc}, nil
}

// Replace handles PUT: full replacement under an optimistic-concurrency
// precondition.
func (s *Service) Replace(ctx context.Context, resourceType, id string, res *resource.Resource, sel Selection, ifMatch string) (*ResourceResult, error) {
	return s.update(ctx, resourceType, id, sel, ifMatch, func(stored *resource.Resource) *repository.UpdateRequest {
		return &repository.UpdateRequest{ID: id, Original: stored, Replacement: res}
	})
}

// Patch handles PATCH: the ordered operation list is applied by the
// Repository (or its default patch processor) under the same precondition
// flow as Replace.
func (s *Service) Patch(ctx context.Context, resourceType, id string, ops []patch.Operation, sel Selection, ifMatch string) (*ResourceResult, error) {
	return s.update(ctx, resourceType, id, sel, ifMatch, func(stored *resource.Resource) *repository.UpdateRequest {
		return &repository.UpdateRequest{ID: id, Original: stored, Patches: ops}
	})
}

// Delete removes a resource. The precondition check is configurable; with it
// off, delete is plain and idempotent like the protocol's observed behavior.
func (s *Service) Delete(ctx context.Context, resourceType, id, ifMatch string) error {
	repo, err := s.repo(resourceType)
	if err != nil {
		return err
	}
	if s.cfg.RequireDeletePrecondition {
		stored, err := repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if stored == nil {
			return notFoundError(id)
		}
		tag, err := s.requireEtag(stored)
		if err != nil {
			return err
		}
		if ifMatch != "" && !etag.Match(ifMatch, tag) {
			return preconditionFailedError(id)
		}
	}
	if err := repo.Delete(ctx, id); err != nil {
		return err
	}
	return nil
}

func (s *Service) update(ctx context.Context, resourceType, id string, sel Selection, ifMatch string, build func(stored *resource.Resource) *repository.UpdateRequest) (*ResourceResult, error) {
	repo, err := s.repo(resourceType)
	if err != nil {
		return nil, err
	}
	if err := s.projector.ValidateSelection(sel.Attributes, sel.ExcludedAttributes); err != nil {
		return nil, err
	}

	stored, err := repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, notFoundError(id)
	}

	backingTag, err := s.requireEtag(stored)
	if err != nil {
		return nil, err
	}
	if ifMatch != "" && !etag.Match(ifMatch, backingTag) {
		return nil, preconditionFailedError(id)
	}

	updated, err := repo.Update(ctx, build(stored))
	if err != nil {
		return nil, err
	}

	loc := location(updated)
	tag := s.etagLenient(updated)

	updated, err = s.applyExtensions(ctx, repo, updated, sel)
	if err != nil {
		return nil, err
	}
	// A successful mutation never fails on display projection; the write
	// already happened, so degrade to the unprojected echo with a warning.
	projected, err := s.projector.Project(updated, sel.Attributes, sel.ExcludedAttributes)
	if err != nil {
		s.logger.Warn("Failed to handle attribute processing in update", zap.Error(err))
		projected = updated
	}
	return &ResourceResult{Resource: projected, ETag: tag, Location: loc}, nil
}

// applyExtensions runs the repository's processing-extension chain in order.
func (s *Service) applyExtensions(ctx context.Context, repo repository.Repository, res *resource.Resource, sel Selection) (*resource.Resource, error) {
	rc := repository.RequestContext{
		Attributes:         sel.Attributes,
		ExcludedAttributes: sel.ExcludedAttributes,
	}
	for _, ext := range repo.Extensions() {
		next, err := ext.FilterAttributes(ctx, res, rc)
		if err != nil {
			return nil, err
		}
		res = next
	}
	return res, nil
}

func (s *Service) repo(resourceType string) (repository.Repository, error) {
	repo, ok := s.repos.Repository(resourceType)
	if !ok {
		return nil, NewError(http.StatusNotImplemented, "", "Provider not defined")
	}
	return repo, nil
}

// requireEtag generates the version tag or fails with a server fault.
func (s *Service) requireEtag(res *resource.Resource) (string, error) {
	tag, err := s.etags.Generate(res)
	if err != nil {
		return "", fmt.Errorf("failed to generate the etag: %w", err)
	}
	return tag, nil
}

// etagLenient generates the version tag, logging instead of failing; used
// where a missing tag must not fail an otherwise-successful mutation.
func (s *Service) etagLenient(res *resource.Resource) string {
	tag, err := s.etags.Generate(res)
	if err != nil {
		s.logger.Warn("Failed to generate etag for resource", zap.Error(err))
		return ""
	}
	return tag
}

// NewResource builds an empty document for the named resource type, ready
// for request deserialization.
func (s *Service) NewResource(resourceType string) (*resource.Resource, error) {
	rt, err := s.registry.ResourceType(resourceType)
	if err != nil {
		return nil, err
	}
	return resource.New(rt.Name, rt.Schema), nil
}

// Registry exposes the schema registry for the discovery endpoints.
func (s *Service) Registry() *schema.Registry { return s.registry }

func parseSelection(attrs, excluded []string) (Selection, error) {
	var sel Selection
	for _, raw := range attrs {
		refs, err := attribute.ParseReferenceList(raw)
		if err != nil {
			return sel, NewError(http.StatusBadRequest, "invalidValue", err.Error())
		}
		sel.Attributes = append(sel.Attributes, refs...)
	}
	for _, raw := range excluded {
		refs, err := attribute.ParseReferenceList(raw)
		if err != nil {
			return sel, NewError(http.StatusBadRequest, "invalidValue", err.Error())
		}
		sel.ExcludedAttributes = append(sel.ExcludedAttributes, refs...)
	}
	return sel, nil
}

func location(res *resource.Resource) string {
	meta, ok := res.Get("meta")
	if !ok {
		return ""
	}
	m, ok := meta.(map[string]any)
	if !ok {
		return ""
	}
	if loc, ok := m["location"].(string); ok {
		return loc
	}
	return ""
}
