package attribute

import (
	"errors"
	"reflect"
	"testing"

	"github.com/dhawalhost/scimd/internal/resource"
	"github.com/dhawalhost/scimd/internal/schema"
)

func testUser(t *testing.T) *resource.Resource {
	t.Helper()
	res := resource.New("User", schema.UserURI)
	res.Set("id", "2819c223")
	res.Set("userName", "bjensen")
	res.Set("displayName", "Babs Jensen")
	res.Set("password", "$2b$10$secret")
	res.Set("name", map[string]any{
		"givenName":  "Barbara",
		"familyName": "Jensen",
	})
	res.Set("emails", []any{
		map[string]any{"value": "bjensen@example.com", "type": "work"},
	})
	res.SetExtension(schema.EnterpriseURI, map[string]any{
		"employeeNumber": "701984",
		"department":     "Tour Operations",
	})
	return res
}

func testProjector() *Projector {
	return NewProjector(schema.DefaultRegistry())
}

func refs(t *testing.T, raw string) []Reference {
	t.Helper()
	out, err := ParseReferenceList(raw)
	if err != nil {
		t.Fatalf("parse references %q: %v", raw, err)
	}
	return out
}

func TestParseReference(t *testing.T) {
	ref, err := ParseReference("name.givenName")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ref.Name != "name" || ref.SubAttribute != "givenName" {
		t.Fatalf("unexpected reference: %+v", ref)
	}

	ref, err = ParseReference(schema.EnterpriseURI + ":employeeNumber")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ref.URIPrefix != schema.EnterpriseURI || ref.Name != "employeeNumber" {
		t.Fatalf("unexpected reference: %+v", ref)
	}

	if _, err := ParseReference("a.b.c"); err == nil {
		t.Error("expected error for two sub-attribute levels")
	}
	if _, err := ParseReference(""); err == nil {
		t.Error("expected error for empty reference")
	}
}

func TestValidateSelection(t *testing.T) {
	p := testProjector()
	if err := p.ValidateSelection(refs(t, "userName"), refs(t, "emails")); !errors.Is(err, ErrConflictingSelection) {
		t.Fatalf("expected ErrConflictingSelection, got %v", err)
	}
	if err := p.ValidateSelection(refs(t, "userName"), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestProjectDefaultView(t *testing.T) {
	p := testProjector()
	out, err := p.Project(testUser(t), nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := out.Get("password"); ok {
		t.Error("returned-never attribute survived the default view")
	}
	for _, name := range []string{"id", "userName", "displayName", "emails"} {
		if _, ok := out.Get(name); !ok {
			t.Errorf("expected %s in default view", name)
		}
	}
	if _, ok := out.Extension(schema.EnterpriseURI); !ok {
		t.Error("expected extension payload in default view")
	}
}

func TestProjectIncludeList(t *testing.T) {
	p := testProjector()
	out, err := p.Project(testUser(t), refs(t, "userName"), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := out.Get("userName"); !ok {
		t.Error("expected included attribute")
	}
	if _, ok := out.Get("id"); !ok {
		t.Error("returned-always attribute must survive any include list")
	}
	if _, ok := out.Get("displayName"); ok {
		t.Error("unnamed attribute survived an include list")
	}
	if _, ok := out.Get("password"); ok {
		t.Error("returned-never attribute survived an include list")
	}
	if _, ok := out.Extension(schema.EnterpriseURI); ok {
		t.Error("extension attributes not named should drop with the empty payload")
	}
}

func TestProjectIncludeNeverIsNoop(t *testing.T) {
	p := testProjector()
	out, err := p.Project(testUser(t), refs(t, "password"), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := out.Get("password"); ok {
		t.Error("returned-never attribute must not be includable")
	}
}

func TestProjectIncludeSubAttribute(t *testing.T) {
	p := testProjector()
	out, err := p.Project(testUser(t), refs(t, "name.givenName"), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v, ok := out.Get("name")
	if !ok {
		t.Fatal("expected name to survive a sub-attribute include")
	}
	name := v.(map[string]any)
	if name["givenName"] != "Barbara" {
		t.Errorf("expected givenName kept, got %v", name)
	}
	if _, ok := name["familyName"]; ok {
		t.Error("unnamed sub-attribute survived the include")
	}
}

func TestProjectExcludeList(t *testing.T) {
	p := testProjector()
	out, err := p.Project(testUser(t), nil, refs(t, "emails,displayName"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := out.Get("emails"); ok {
		t.Error("excluded attribute survived")
	}
	if _, ok := out.Get("displayName"); ok {
		t.Error("excluded attribute survived")
	}
	if _, ok := out.Get("userName"); !ok {
		t.Error("non-excluded attribute dropped")
	}
}

func TestProjectExcludeCannotRemoveAlways(t *testing.T) {
	p := testProjector()
	out, err := p.Project(testUser(t), nil, refs(t, "id"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := out.Get("id"); !ok {
		t.Error("returned-always attribute was excluded")
	}
}

func TestProjectExcludeExtensionAttribute(t *testing.T) {
	p := testProjector()
	out, err := p.Project(testUser(t), nil, refs(t, "employeeNumber"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	payload, ok := out.Extension(schema.EnterpriseURI)
	if !ok {
		t.Fatal("expected extension to survive partial exclusion")
	}
	if _, ok := payload["employeeNumber"]; ok {
		t.Error("excluded extension attribute survived")
	}
	if _, ok := payload["department"]; !ok {
		t.Error("non-excluded extension attribute dropped")
	}
}

func TestProjectUnknownReference(t *testing.T) {
	p := testProjector()
	_, err := p.Project(testUser(t), refs(t, "shoeSize"), nil)
	var attrErr *Error
	if !errors.As(err, &attrErr) {
		t.Fatalf("expected attribute error, got %v", err)
	}
	if !errors.Is(err, schema.ErrNoSuchAttribute) {
		t.Errorf("expected ErrNoSuchAttribute cause, got %v", err)
	}
}

func TestProjectIdempotent(t *testing.T) {
	p := testProjector()
	include := refs(t, "userName,name.givenName")

	once, err := p.Project(testUser(t), include, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	twice, err := p.Project(once, include, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(once.Attributes(), twice.Attributes()) {
		t.Errorf("projection is not idempotent: %v vs %v", once.Attributes(), twice.Attributes())
	}
}

func TestProjectDoesNotMutateInput(t *testing.T) {
	p := testProjector()
	res := testUser(t)
	if _, err := p.Project(res, refs(t, "userName"), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := res.Get("displayName"); !ok {
		t.Error("projection mutated the input resource")
	}
	if _, ok := res.Get("password"); !ok {
		t.Error("projection mutated the input resource")
	}
}
