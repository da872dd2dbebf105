package resource

import (
	"encoding/json"
	"testing"
)

const userURI = "urn:ietf:params:scim:schemas:core:2.0:User"
const enterpriseURI = "urn:ietf:params:scim:schemas:extension:enterprise:2.0:User"

func TestGetSetCaseInsensitive(t *testing.T) {
	res := New("User", userURI)
	res.Set("userName", "bjensen")

	if v, ok := res.Get("USERNAME"); !ok || v != "bjensen" {
		t.Fatalf("expected case-insensitive get, got %v, %v", v, ok)
	}

	// Setting under a different casing replaces, never duplicates.
	res.Set("USERNAME", "other")
	if len(res.Attributes()) != 1 {
		t.Fatalf("expected 1 attribute, got %d", len(res.Attributes()))
	}
	if v, _ := res.Get("userName"); v != "other" {
		t.Errorf("expected replaced value, got %v", v)
	}

	res.Remove("UserName")
	if _, ok := res.Get("userName"); ok {
		t.Error("expected attribute removed")
	}
}

func TestExtensionOrderPreserved(t *testing.T) {
	res := New("User", userURI)
	res.SetExtension("urn:example:B", map[string]any{"b": "2"})
	res.SetExtension("urn:example:A", map[string]any{"a": "1"})
	res.SetExtension("URN:EXAMPLE:B", map[string]any{"b": "3"}) // replace, keep slot

	uris := res.ExtensionURIs()
	if len(uris) != 2 || uris[0] != "urn:example:B" || uris[1] != "urn:example:A" {
		t.Fatalf("unexpected extension order: %v", uris)
	}
	payload, ok := res.Extension("urn:example:b")
	if !ok || payload["b"] != "3" {
		t.Errorf("expected replaced payload, got %v", payload)
	}
}

func TestCloneIsDeep(t *testing.T) {
	res := New("User", userURI)
	res.Set("name", map[string]any{"givenName": "Barbara"})
	res.Set("emails", []any{map[string]any{"value": "b@example.com"}})
	res.SetExtension(enterpriseURI, map[string]any{"employeeNumber": "1"})

	clone := res.Clone()
	clone.Attributes()["name"].(map[string]any)["givenName"] = "Changed"
	clone.Attributes()["emails"].([]any)[0].(map[string]any)["value"] = "x@example.com"
	payload, _ := clone.Extension(enterpriseURI)
	payload["employeeNumber"] = "2"

	if name, _ := res.Get("name"); name.(map[string]any)["givenName"] != "Barbara" {
		t.Error("clone shares the name map")
	}
	if emails, _ := res.Get("emails"); emails.([]any)[0].(map[string]any)["value"] != "b@example.com" {
		t.Error("clone shares the emails slice")
	}
	if orig, _ := res.Extension(enterpriseURI); orig["employeeNumber"] != "1" {
		t.Error("clone shares the extension payload")
	}
}

func TestMarshalIncludesSchemas(t *testing.T) {
	res := New("User", userURI)
	res.Set("userName", "bjensen")
	res.SetExtension(enterpriseURI, map[string]any{"employeeNumber": "701984"})

	raw, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("bad output: %v", err)
	}
	schemas, ok := doc["schemas"].([]any)
	if !ok || len(schemas) != 2 {
		t.Fatalf("expected schemas list with core and extension, got %v", doc["schemas"])
	}
	if schemas[0] != userURI || schemas[1] != enterpriseURI {
		t.Errorf("unexpected schemas order: %v", schemas)
	}
	ext, ok := doc[enterpriseURI].(map[string]any)
	if !ok || ext["employeeNumber"] != "701984" {
		t.Errorf("expected nested extension object, got %v", doc[enterpriseURI])
	}
}

func TestUnmarshalSplitsExtensions(t *testing.T) {
	raw := `{
		"schemas": ["` + userURI + `", "` + enterpriseURI + `"],
		"userName": "bjensen",
		"` + enterpriseURI + `": {"employeeNumber": "701984"}
	}`
	res := New("User", userURI)
	if err := json.Unmarshal([]byte(raw), res); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v, _ := res.Get("userName"); v != "bjensen" {
		t.Errorf("expected core attribute, got %v", v)
	}
	if _, ok := res.Get("schemas"); ok {
		t.Error("schemas must not land in the attribute map")
	}
	payload, ok := res.Extension(enterpriseURI)
	if !ok || payload["employeeNumber"] != "701984" {
		t.Errorf("expected extension payload, got %v", payload)
	}
}

func TestUnmarshalRejectsScalarExtension(t *testing.T) {
	raw := `{"urn:example:Bad": "scalar"}`
	res := New("User", userURI)
	if err := json.Unmarshal([]byte(raw), res); err == nil {
		t.Fatal("expected error for non-object extension payload")
	}
}

func TestMeta(t *testing.T) {
	res := New("User", userURI)
	meta := res.Meta()
	meta["resourceType"] = "User"
	if v, _ := res.Get("meta"); v.(map[string]any)["resourceType"] != "User" {
		t.Error("Meta must return the live map, creating it on demand")
	}
}
