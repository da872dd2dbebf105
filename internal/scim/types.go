package scim

import (
	"github.com/dhawalhost/scimd/internal/patch"
	"github.com/dhawalhost/scimd/internal/resource"
	"github.com/go-playground/validator/v10"
)

// Message schema URIs from RFC 7644.
const (
	ListSchema   = "urn:ietf:params:scim:api:messages:2.0:ListResponse"
	ErrorSchema  = "urn:ietf:params:scim:api:messages:2.0:Error"
	PatchSchema  = "urn:ietf:params:scim:api:messages:2.0:PatchOp"
	SearchSchema = "urn:ietf:params:scim:api:messages:2.0:SearchRequest"
)

// ListResponse is the SCIM list envelope. Indexing is 1-based throughout.
type ListResponse struct {
	Schemas      []string             `json:"schemas"`
	TotalResults int                  `json:"totalResults"`
	StartIndex   int                  `json:"startIndex,omitempty"`
	ItemsPerPage int                  `json:"itemsPerPage,omitempty"`
	Resources    []*resource.Resource `json:"Resources"`
}

// ErrorResponse is the SCIM error envelope.
type ErrorResponse struct {
	Schemas  []string `json:"schemas"`
	Status   string   `json:"status"`
	ScimType string   `json:"scimType,omitempty"`
	Detail   string   `json:"detail,omitempty"`
}

// PatchRequest is the SCIM PATCH envelope.
type PatchRequest struct {
	Schemas    []string          `json:"schemas" binding:"required"`
	Operations []patch.Operation `json:"Operations" binding:"required,min=1"`
}

// SearchRequest is the /.search envelope; the same shape backs GET query
// parameters.
type SearchRequest struct {
	Schemas            []string `json:"schemas,omitempty"`
	Attributes         []string `json:"attributes,omitempty"`
	ExcludedAttributes []string `json:"excludedAttributes,omitempty"`
	Filter             string   `json:"filter,omitempty"`
	SortBy             string   `json:"sortBy,omitempty"`
	SortOrder          string   `json:"sortOrder,omitempty" validate:"omitempty,oneof=ascending descending"`
	StartIndex         int      `json:"startIndex,omitempty" validate:"omitempty,min=1"`
	// Count is nil when absent; an explicit zero (or negative value) asks
	// for totalResults with no resources.
	Count *int `json:"count,omitempty"`
}

var validate = validator.New()

// Validate checks the request's field constraints.
func (r *SearchRequest) Validate() error {
	return validate.Struct(r)
}
