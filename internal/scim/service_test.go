package scim

import (
	"context"
	"errors"
	"testing"

	"github.com/dhawalhost/scimd/internal/attribute"
	"github.com/dhawalhost/scimd/internal/patch"
	"github.com/dhawalhost/scimd/internal/repository"
	"github.com/dhawalhost/scimd/internal/resource"
	"github.com/dhawalhost/scimd/internal/schema"
	"go.uber.org/zap"
)

var ctx = context.Background()

func newTestService(t *testing.T, cfg Config) *Service {
	t.Helper()
	registry := schema.DefaultRegistry()
	repos := repository.NewRegistry()
	users, err := repository.NewMemory(registry, "User",
		repository.WithUniqueAttribute("userName"),
		repository.WithLocationBase("https://idp.example.com/scim/v2"))
	if err != nil {
		t.Fatalf("failed to build repository: %v", err)
	}
	repos.Register(users)
	groups, err := repository.NewMemory(registry, "Group",
		repository.WithLocationBase("https://idp.example.com/scim/v2"))
	if err != nil {
		t.Fatalf("failed to build repository: %v", err)
	}
	repos.Register(groups)
	return NewService(registry, repos, zap.NewNop(), cfg)
}

func pageSize(n int) *int { return &n }

func newUser(userName string) *resource.Resource {
	res := resource.New("User", schema.UserURI)
	res.Set("userName", userName)
	res.Set("active", true)
	return res
}

func mustCreate(t *testing.T, svc *Service, userName string) *ResourceResult {
	t.Helper()
	result, err := svc.Create(ctx, "User", newUser(userName), Selection{})
	if err != nil {
		t.Fatalf("create %s: %v", userName, err)
	}
	return result
}

func refs(t *testing.T, raw string) []attribute.Reference {
	t.Helper()
	out, err := attribute.ParseReferenceList(raw)
	if err != nil {
		t.Fatalf("parse references %q: %v", raw, err)
	}
	return out
}

func TestCreateReturnsEtagAndLocation(t *testing.T) {
	svc := newTestService(t, Config{})
	result := mustCreate(t, svc, "bjensen")
	if result.Resource == nil {
		t.Fatal("expected created resource echo")
	}
	if result.ETag == "" {
		t.Error("expected version tag")
	}
	if result.Location == "" {
		t.Error("expected location")
	}
	if result.Resource.ID() == "" {
		t.Error("expected assigned id")
	}
}

func TestCreateDuplicateConflicts(t *testing.T) {
	svc := newTestService(t, Config{})
	mustCreate(t, svc, "bjensen")
	_, err := svc.Create(ctx, "User", newUser("bjensen"), Selection{})
	if !errors.Is(err, repository.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
	if !IsConflict(translate(err)) {
		t.Errorf("expected conflict translation, got %v", translate(err))
	}
}

func TestCreateBadSelectionDegradesToBodilessSuccess(t *testing.T) {
	svc := newTestService(t, Config{})
	result, err := svc.Create(ctx, "User", newUser("bjensen"), Selection{
		Attributes: refs(t, "shoeSize"),
	})
	if err != nil {
		t.Fatalf("create must not fail on echo projection: %v", err)
	}
	if result.Resource != nil {
		t.Error("expected bodiless result when the echo cannot be projected")
	}
	if result.ETag == "" || result.Location == "" {
		t.Error("expected version tag and location even without a body")
	}

	// The create itself persisted.
	list, err := svc.Query(ctx, "User", &SearchRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if list.Response.TotalResults != 1 {
		t.Errorf("expected resource persisted, total=%d", list.Response.TotalResults)
	}
}

func TestGet(t *testing.T) {
	svc := newTestService(t, Config{})
	created := mustCreate(t, svc, "bjensen")

	result, err := svc.Get(ctx, &GetRequest{ResourceType: "User", ID: created.Resource.ID()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Resource == nil || result.ETag != created.ETag {
		t.Fatalf("unexpected result: %+v", result)
	}
	if _, ok := result.Resource.Get("password"); ok {
		t.Error("projection must drop returned-never attributes")
	}
}

func TestGetNotFound(t *testing.T) {
	svc := newTestService(t, Config{})
	_, err := svc.Get(ctx, &GetRequest{ResourceType: "User", ID: "missing"})
	if !IsNotFound(err) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestGetRejectsFilterParameter(t *testing.T) {
	svc := newTestService(t, Config{})
	created := mustCreate(t, svc, "bjensen")
	_, err := svc.Get(ctx, &GetRequest{
		ResourceType:  "User",
		ID:            created.Resource.ID(),
		FilterPresent: true,
	})
	var se *Error
	if !errors.As(err, &se) || se.Status != 403 {
		t.Fatalf("expected 403, got %v", err)
	}
}

func TestGetIfNoneMatchShortCircuits(t *testing.T) {
	svc := newTestService(t, Config{})
	created := mustCreate(t, svc, "bjensen")
	result, err := svc.Get(ctx, &GetRequest{
		ResourceType: "User",
		ID:           created.Resource.ID(),
		IfNoneMatch:  created.ETag,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.NotModified || result.Resource != nil {
		t.Fatalf("expected not-modified short circuit, got %+v", result)
	}
}

func TestGetConflictingSelection(t *testing.T) {
	svc := newTestService(t, Config{})
	created := mustCreate(t, svc, "bjensen")
	_, err := svc.Get(ctx, &GetRequest{
		ResourceType: "User",
		ID:           created.Resource.ID(),
		Selection: Selection{
			Attributes:         refs(t, "userName"),
			ExcludedAttributes: refs(t, "emails"),
		},
	})
	if !errors.Is(err, attribute.ErrConflictingSelection) {
		t.Fatalf("expected ErrConflictingSelection, got %v", err)
	}
}

func TestGetUnknownResourceType(t *testing.T) {
	svc := newTestService(t, Config{})
	_, err := svc.Get(ctx, &GetRequest{ResourceType: "Device", ID: "x"})
	var se *Error
	if !errors.As(err, &se) || se.Status != 501 {
		t.Fatalf("expected 501 for unregistered type, got %v", err)
	}
}

func TestQueryEmpty(t *testing.T) {
	svc := newTestService(t, Config{})
	result, err := svc.Query(ctx, "User", &SearchRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Response.TotalResults != 0 {
		t.Errorf("expected total 0, got %d", result.Response.TotalResults)
	}
	if result.Response.Resources == nil || len(result.Response.Resources) != 0 {
		t.Errorf("expected empty non-nil resource list, got %v", result.Response.Resources)
	}
}

func TestQueryFilterAndPagination(t *testing.T) {
	svc := newTestService(t, Config{})
	for _, name := range []string{"alice", "bob", "carol", "dave"} {
		mustCreate(t, svc, name)
	}

	result, err := svc.Query(ctx, "User", &SearchRequest{
		Filter:     `userName co "a"`,
		SortBy:     "userName",
		StartIndex: 1,
		Count:      pageSize(2),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp := result.Response
	if resp.TotalResults != 3 { // alice, carol, dave
		t.Errorf("expected 3 matches, got %d", resp.TotalResults)
	}
	if resp.ItemsPerPage != 2 || len(resp.Resources) != 2 {
		t.Errorf("expected page of 2, got %d", len(resp.Resources))
	}
	if v, _ := resp.Resources[0].Get("userName"); v != "alice" {
		t.Errorf("expected alice first, got %v", v)
	}
}

func TestQueryCountZero(t *testing.T) {
	svc := newTestService(t, Config{MaxCount: 200})
	mustCreate(t, svc, "alice")
	mustCreate(t, svc, "bob")

	result, err := svc.Query(ctx, "User", &SearchRequest{Count: pageSize(0)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp := result.Response
	if resp.TotalResults != 2 {
		t.Errorf("expected totalResults 2, got %d", resp.TotalResults)
	}
	if resp.Resources == nil || len(resp.Resources) != 0 {
		t.Errorf("expected empty non-nil resource list for count 0, got %v", resp.Resources)
	}
	if resp.ItemsPerPage != 0 {
		t.Errorf("expected itemsPerPage 0, got %d", resp.ItemsPerPage)
	}
}

func TestQueryBadFilter(t *testing.T) {
	svc := newTestService(t, Config{})
	_, err := svc.Query(ctx, "User", &SearchRequest{Filter: `userName eq`})
	if err == nil {
		t.Fatal("expected parse error")
	}
	if se := translate(err); se.Status != 400 || se.ScimType != "invalidFilter" {
		t.Errorf("expected invalidFilter translation, got %+v", se)
	}
}

func TestReplaceWithCurrentEtag(t *testing.T) {
	svc := newTestService(t, Config{})
	created := mustCreate(t, svc, "bjensen")

	replacement := newUser("bjensen")
	replacement.Set("displayName", "Babs Jensen")
	result, err := svc.Replace(ctx, "User", created.Resource.ID(), replacement, Selection{}, created.ETag)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v, _ := result.Resource.Get("displayName"); v != "Babs Jensen" {
		t.Errorf("expected replaced content, got %v", v)
	}
	if result.ETag == "" || result.ETag == created.ETag {
		t.Errorf("expected a fresh version tag, got %q", result.ETag)
	}
}

func TestReplaceWithStaleEtag(t *testing.T) {
	svc := newTestService(t, Config{})
	created := mustCreate(t, svc, "bjensen")
	_, err := svc.Replace(ctx, "User", created.Resource.ID(), newUser("bjensen"), Selection{}, `W/"stale"`)
	if !IsPreconditionFailed(err) {
		t.Fatalf("expected precondition failure, got %v", err)
	}
}

func TestPatch(t *testing.T) {
	svc := newTestService(t, Config{})
	created := mustCreate(t, svc, "bjensen")

	result, err := svc.Patch(ctx, "User", created.Resource.ID(), []patch.Operation{
		{Op: "replace", Path: "active", Value: false},
	}, Selection{}, created.ETag)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v, _ := result.Resource.Get("active"); v != false {
		t.Errorf("expected active=false, got %v", v)
	}
}

func TestPatchMutabilityViolation(t *testing.T) {
	svc := newTestService(t, Config{})
	created := mustCreate(t, svc, "bjensen")

	_, err := svc.Patch(ctx, "User", created.Resource.ID(), []patch.Operation{
		{Op: "replace", Path: "id", Value: "boom"},
	}, Selection{}, "")
	var mutErr *patch.MutabilityError
	if !errors.As(err, &mutErr) {
		t.Fatalf("expected MutabilityError, got %v", err)
	}
	if se := translate(err); se.ScimType != "mutability" {
		t.Errorf("expected mutability translation, got %+v", se)
	}
}

func TestPatchNotFound(t *testing.T) {
	svc := newTestService(t, Config{})
	_, err := svc.Patch(ctx, "User", "missing", []patch.Operation{
		{Op: "replace", Path: "active", Value: false},
	}, Selection{}, "")
	if !IsNotFound(err) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	svc := newTestService(t, Config{})
	created := mustCreate(t, svc, "bjensen")
	if err := svc.Delete(ctx, "User", created.Resource.ID(), ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := svc.Get(ctx, &GetRequest{ResourceType: "User", ID: created.Resource.ID()})
	if !IsNotFound(err) {
		t.Fatalf("expected not-found after delete, got %v", err)
	}
	if err := svc.Delete(ctx, "User", created.Resource.ID(), ""); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDeletePreconditionWhenRequired(t *testing.T) {
	svc := newTestService(t, Config{RequireDeletePrecondition: true})
	created := mustCreate(t, svc, "bjensen")

	if err := svc.Delete(ctx, "User", created.Resource.ID(), `W/"stale"`); !IsPreconditionFailed(err) {
		t.Fatalf("expected precondition failure, got %v", err)
	}
	if err := svc.Delete(ctx, "User", created.Resource.ID(), created.ETag); err != nil {
		t.Fatalf("expected delete with current tag to succeed: %v", err)
	}
}

func TestQueryProjectsSelection(t *testing.T) {
	svc := newTestService(t, Config{})
	mustCreate(t, svc, "bjensen")

	result, err := svc.Query(ctx, "User", &SearchRequest{Attributes: []string{"userName"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res := result.Response.Resources[0]
	if _, ok := res.Get("userName"); !ok {
		t.Error("expected included attribute")
	}
	if _, ok := res.Get("active"); ok {
		t.Error("unnamed attribute survived the include list")
	}
}
