package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dhawalhost/scimd/internal/filter"
	"github.com/dhawalhost/scimd/internal/patch"
	"github.com/dhawalhost/scimd/internal/resource"
	"github.com/dhawalhost/scimd/internal/schema"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// uniqueViolation is the Postgres error code for unique_violation.
const uniqueViolation = "23505"

// PostgresOption configures a Postgres repository.
type PostgresOption func(*Postgres)

// WithPostgresUniqueAttribute enforces uniqueness of the named attribute via
// the partial unique index on the documents table.
func WithPostgresUniqueAttribute(name string) PostgresOption {
	return func(p *Postgres) { p.uniqueAttr = name }
}

// WithPostgresProcessingExtensions sets the processing-extension chain.
func WithPostgresProcessingExtensions(exts ...ProcessingExtension) PostgresOption {
	return func(p *Postgres) { p.exts = exts }
}

// WithPostgresLocationBase sets the base URL used for meta.location values.
func WithPostgresLocationBase(base string) PostgresOption {
	return func(p *Postgres) { p.locationBase = strings.TrimRight(base, "/") }
}

// Postgres stores resources as jsonb documents in the scim_resources table:
//
//	CREATE TABLE scim_resources (
//	    id            UUID PRIMARY KEY,
//	    resource_type TEXT NOT NULL,
//	    document      JSONB NOT NULL,
//	    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
//	    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
//	CREATE UNIQUE INDEX scim_resources_unique_key
//	    ON scim_resources (resource_type, LOWER(document->>'userName'))
//	    WHERE document ? 'userName';
//
// Filter matching and sorting happen in memory with the filter engine after
// a type-scoped fetch; the Repository contract leaves push-down optional.
type Postgres struct {
	db *sqlx.DB

	resourceType string
	endpoint     string
	coreSchema   string
	registry     *schema.Registry
	patcher      *patch.Processor
	uniqueAttr   string
	locationBase string
	exts         []ProcessingExtension
}

// NewPostgres returns a Postgres-backed repository for the named resource
// type, which must be registered.
func NewPostgres(db *sqlx.DB, registry *schema.Registry, resourceType string, opts ...PostgresOption) (*Postgres, error) {
	rt, err := registry.ResourceType(resourceType)
	if err != nil {
		return nil, err
	}
	p := &Postgres{
		db:           db,
		resourceType: rt.Name,
		endpoint:     rt.Endpoint,
		coreSchema:   rt.Schema,
		registry:     registry,
		patcher:      patch.NewProcessor(registry),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// ResourceType implements Repository.
func (p *Postgres) ResourceType() string { return p.resourceType }

// Extensions implements Repository.
func (p *Postgres) Extensions() []ProcessingExtension { return p.exts }

// Create implements Repository.
func (p *Postgres) Create(ctx context.Context, res *resource.Resource) (*resource.Resource, error) {
	stored := res.Clone()
	id := uuid.NewString()
	stored.Set("id", id)
	now := time.Now().UTC()
	stored.Set("meta", map[string]any{
		"resourceType": p.resourceType,
		"created":      now.Format(time.RFC3339),
		"lastModified": now.Format(time.RFC3339),
		"location":     p.location(id),
	})
	if err := hashPassword(stored); err != nil {
		return nil, err
	}

	if p.uniqueAttr != "" {
		if err := p.checkUnique(ctx, stored, ""); err != nil {
			return nil, err
		}
	}

	doc, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize resource: %w", err)
	}
	_, err = p.db.ExecContext(ctx,
		`INSERT INTO scim_resources (id, resource_type, document) VALUES ($1, $2, $3)`,
		id, p.resourceType, doc)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return nil, fmt.Errorf("duplicate %s: %w", p.uniqueAttr, ErrAlreadyExists)
		}
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return stored, nil
}

// Get implements Repository, returning (nil, nil) when absent.
func (p *Postgres) Get(ctx context.Context, id string) (*resource.Resource, error) {
	var doc []byte
	err := p.db.QueryRowContext(ctx,
		`SELECT document FROM scim_resources WHERE id = $1 AND resource_type = $2`,
		id, p.resourceType).Scan(&doc)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get resource: %w", err)
	}
	return p.decode(doc)
}

// Update implements Repository.
func (p *Postgres) Update(ctx context.Context, req *UpdateRequest) (*resource.Resource, error) {
	stored, err := p.Get(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("%q: %w", req.ID, ErrNotFound)
	}

	var next *resource.Resource
	if len(req.Patches) > 0 {
		next, err = p.patcher.Apply(stored, req.Patches)
		if err != nil {
			return nil, err
		}
	} else if req.Replacement != nil {
		next = req.Replacement.Clone()
	} else {
		return nil, fmt.Errorf("update request carries neither a replacement nor patches")
	}

	next.Set("id", req.ID)
	meta := next.Meta()
	meta["resourceType"] = p.resourceType
	if created, ok := stored.Meta()["created"]; ok {
		meta["created"] = created
	}
	meta["lastModified"] = time.Now().UTC().Format(time.RFC3339)
	meta["location"] = p.location(req.ID)
	if err := hashPassword(next); err != nil {
		return nil, err
	}

	if p.uniqueAttr != "" {
		if err := p.checkUnique(ctx, next, req.ID); err != nil {
			return nil, err
		}
	}

	doc, err := json.Marshal(next)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize resource: %w", err)
	}
	result, err := p.db.ExecContext(ctx,
		`UPDATE scim_resources SET document = $1, updated_at = NOW() WHERE id = $2 AND resource_type = $3`,
		doc, req.ID, p.resourceType)
	if err != nil {
		return nil, fmt.Errorf("failed to update resource: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return nil, fmt.Errorf("%q: %w", req.ID, ErrNotFound)
	}
	return next, nil
}

// Delete implements Repository.
func (p *Postgres) Delete(ctx context.Context, id string) error {
	result, err := p.db.ExecContext(ctx,
		`DELETE FROM scim_resources WHERE id = $1 AND resource_type = $2`,
		id, p.resourceType)
	if err != nil {
		return fmt.Errorf("failed to delete resource: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%q: %w", id, ErrNotFound)
	}
	return nil
}

// Find implements Repository.
func (p *Postgres) Find(ctx context.Context, f filter.Expression, page PageRequest, sortReq SortRequest) (*FilterResponse, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT document FROM scim_resources WHERE resource_type = $1 ORDER BY created_at`,
		p.resourceType)
	if err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var all []*resource.Resource
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		res, err := p.decode(doc)
		if err != nil {
			return nil, err
		}
		all = append(all, res)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return matchSortPage(p.registry, p.resourceType, all, f, page, sortReq)
}

func (p *Postgres) checkUnique(ctx context.Context, res *resource.Resource, excludeID string) error {
	value, ok := res.Get(p.uniqueAttr)
	keyStr, isStr := value.(string)
	if !ok || !isStr || keyStr == "" {
		return nil
	}
	var count int
	err := p.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM scim_resources
		 WHERE resource_type = $1 AND LOWER(document->>$2) = LOWER($3) AND id::text <> $4`,
		p.resourceType, p.uniqueAttr, keyStr, excludeID).Scan(&count)
	if err != nil {
		return fmt.Errorf("failed to check uniqueness: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("%s %q: %w", p.uniqueAttr, keyStr, ErrAlreadyExists)
	}
	return nil
}

func (p *Postgres) decode(doc []byte) (*resource.Resource, error) {
	res := resource.New(p.resourceType, p.coreSchema)
	if err := json.Unmarshal(doc, res); err != nil {
		return nil, fmt.Errorf("failed to decode stored resource: %w", err)
	}
	return res, nil
}

func (p *Postgres) location(id string) string {
	return p.locationBase + p.endpoint + "/" + id
}
