package schema

import (
	"errors"
	"testing"
)

func TestRegistryLookups(t *testing.T) {
	r := DefaultRegistry()

	s, err := r.Schema(UserURI)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Name != "User" {
		t.Errorf("expected User schema, got %q", s.Name)
	}

	// URIs and type names are matched case-insensitively.
	if _, err := r.Schema("URN:IETF:PARAMS:SCIM:SCHEMAS:CORE:2.0:USER"); err != nil {
		t.Errorf("expected case-insensitive schema lookup, got %v", err)
	}
	if _, err := r.ResourceType("user"); err != nil {
		t.Errorf("expected case-insensitive type lookup, got %v", err)
	}

	if _, err := r.Schema("urn:example:unknown"); !errors.Is(err, ErrSchemaNotFound) {
		t.Errorf("expected ErrSchemaNotFound, got %v", err)
	}
	if _, err := r.ResourceType("Device"); !errors.Is(err, ErrSchemaNotFound) {
		t.Errorf("expected ErrSchemaNotFound, got %v", err)
	}
}

func TestRegistryCoreAndExtensionSchemas(t *testing.T) {
	r := DefaultRegistry()

	core, err := r.CoreSchema("User")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if core.ID != UserURI {
		t.Errorf("expected core schema %s, got %s", UserURI, core.ID)
	}

	exts, err := r.ExtensionSchemas("User")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(exts) != 1 || exts[0].ID != EnterpriseURI {
		t.Fatalf("expected the enterprise extension, got %v", exts)
	}

	exts, err = r.ExtensionSchemas("Group")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(exts) != 0 {
		t.Errorf("expected no Group extensions, got %d", len(exts))
	}
}

func TestAddResourceTypeRequiresSchemas(t *testing.T) {
	r := NewRegistry()
	err := r.AddResourceType(&ResourceType{
		Name:     "Thing",
		Endpoint: "/Things",
		Schema:   "urn:example:Thing",
	})
	if !errors.Is(err, ErrSchemaNotFound) {
		t.Fatalf("expected ErrSchemaNotFound for unregistered core schema, got %v", err)
	}

	r.AddSchema(&Schema{ID: "urn:example:Thing", Name: "Thing"})
	err = r.AddResourceType(&ResourceType{
		Name:             "Thing",
		Endpoint:         "/Things",
		Schema:           "urn:example:Thing",
		SchemaExtensions: []SchemaExtension{{Schema: "urn:example:Missing"}},
	})
	if !errors.Is(err, ErrSchemaNotFound) {
		t.Fatalf("expected ErrSchemaNotFound for unregistered extension, got %v", err)
	}
}

func TestRegistryOrderStable(t *testing.T) {
	r := DefaultRegistry()
	types := r.ResourceTypes()
	if len(types) != 2 || types[0].Name != "User" || types[1].Name != "Group" {
		t.Fatalf("unexpected resource type order: %v", types)
	}
}
