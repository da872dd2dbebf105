package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/dhawalhost/scimd/internal/resource"
	"golang.org/x/crypto/bcrypt"
)

// hashPassword bcrypt-hashes the password attribute in place when present.
// Values already in bcrypt form are left alone so re-stores stay stable.
func hashPassword(res *resource.Resource) error {
	v, ok := res.Get("password")
	if !ok {
		return nil
	}
	plain, ok := v.(string)
	if !ok || plain == "" {
		res.Remove("password")
		return nil
	}
	if strings.HasPrefix(plain, "$2a$") || strings.HasPrefix(plain, "$2b$") {
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	res.Set("password", string(hash))
	return nil
}

// RefEnricher is a processing extension that fills the $ref sub-attribute of
// member and group values with absolute resource locations before the
// resource is projected for output.
type RefEnricher struct {
	BaseURL string
}

// NewRefEnricher returns an enricher rooted at the given base URL, e.g.
// "https://idp.example.com/scim/v2".
func NewRefEnricher(baseURL string) *RefEnricher {
	return &RefEnricher{BaseURL: strings.TrimRight(baseURL, "/")}
}

// FilterAttributes implements ProcessingExtension.
func (e *RefEnricher) FilterAttributes(_ context.Context, res *resource.Resource, _ RequestContext) (*resource.Resource, error) {
	e.enrich(res, "members", "")
	e.enrich(res, "groups", "Group")
	return res, nil
}

func (e *RefEnricher) enrich(res *resource.Resource, attr, defaultType string) {
	v, ok := res.Get(attr)
	if !ok {
		return
	}
	elems, ok := v.([]any)
	if !ok {
		return
	}
	for _, elem := range elems {
		m, ok := elem.(map[string]any)
		if !ok {
			continue
		}
		if _, ok := m["$ref"]; ok {
			continue
		}
		id, _ := m["value"].(string)
		if id == "" {
			continue
		}
		refType := defaultType
		if t, ok := m["type"].(string); ok && t != "" {
			refType = t
		}
		if refType == "" {
			refType = "User"
		}
		m["$ref"] = fmt.Sprintf("%s/%ss/%s", e.BaseURL, refType, id)
	}
}
