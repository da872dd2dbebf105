// Package attribute implements attribute references and the output
// projection rules driven by schema returnability.
package attribute

import (
	"fmt"
	"strings"
)

// Reference identifies an attribute or sub-attribute, optionally qualified
// by a schema URI, e.g. urn:...:User:name.givenName. Name equality is
// case-insensitive.
type Reference struct {
	URIPrefix    string
	Name         string
	SubAttribute string
}

func (r Reference) String() string {
	var b strings.Builder
	if r.URIPrefix != "" {
		b.WriteString(r.URIPrefix)
		b.WriteString(":")
	}
	b.WriteString(r.Name)
	if r.SubAttribute != "" {
		b.WriteString(".")
		b.WriteString(r.SubAttribute)
	}
	return b.String()
}

// ParseReference parses a single attribute reference.
func ParseReference(s string) (Reference, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Reference{}, fmt.Errorf("empty attribute reference")
	}
	ref := Reference{Name: s}
	if idx := strings.LastIndexByte(s, ':'); idx >= 0 {
		ref.URIPrefix = s[:idx]
		ref.Name = s[idx+1:]
	}
	if idx := strings.IndexByte(ref.Name, '.'); idx >= 0 {
		ref.SubAttribute = ref.Name[idx+1:]
		ref.Name = ref.Name[:idx]
		if strings.ContainsRune(ref.SubAttribute, '.') {
			return Reference{}, fmt.Errorf("attribute reference %q: at most one sub-attribute level", s)
		}
	}
	if ref.Name == "" {
		return Reference{}, fmt.Errorf("attribute reference %q: missing attribute name", s)
	}
	return ref, nil
}

// ParseReferenceList parses a comma-separated attribute reference list as
// carried by the attributes / excludedAttributes query parameters.
func ParseReferenceList(s string) ([]Reference, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	refs := make([]Reference, 0, len(parts))
	for _, part := range parts {
		ref, err := ParseReference(part)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// matches reports whether the reference names the given attribute (and
// optionally sub-attribute) within the schema identified by schemaURI.
func (r Reference) matches(schemaURI, name string) bool {
	if r.URIPrefix != "" && !strings.EqualFold(r.URIPrefix, schemaURI) {
		return false
	}
	return strings.EqualFold(r.Name, name)
}
