package scim

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/dhawalhost/scimd/internal/attribute"
	"github.com/dhawalhost/scimd/internal/etag"
	"github.com/dhawalhost/scimd/internal/filter"
	"github.com/dhawalhost/scimd/internal/patch"
	"github.com/dhawalhost/scimd/internal/repository"
	"github.com/dhawalhost/scimd/internal/schema"
)

// Error is a protocol-level fault: an HTTP status class, the RFC 7644
// scimType keyword when one applies, and a client-safe detail message. The
// core stays transport-agnostic; the gin boundary maps Status to the wire.
type Error struct {
	Status   int
	ScimType string
	Detail   string
}

func (e *Error) Error() string {
	if e.ScimType != "" {
		return fmt.Sprintf("scim error %d (%s): %s", e.Status, e.ScimType, e.Detail)
	}
	return fmt.Sprintf("scim error %d: %s", e.Status, e.Detail)
}

// NewError builds a protocol fault.
func NewError(status int, scimType, detail string) *Error {
	return &Error{Status: status, ScimType: scimType, Detail: detail}
}

func notFoundError(id string) *Error {
	return NewError(http.StatusNotFound, "", fmt.Sprintf("Resource %s not found", id))
}

func preconditionFailedError(id string) *Error {
	return NewError(http.StatusPreconditionFailed, "",
		fmt.Sprintf("Failed to update record, backing record has changed - %s", id))
}

// IsNotFound reports whether err is a 404-class fault.
func IsNotFound(err error) bool { return hasStatus(err, http.StatusNotFound) }

// IsConflict reports whether err is a 409-class fault.
func IsConflict(err error) bool { return hasStatus(err, http.StatusConflict) }

// IsPreconditionFailed reports whether err is a 412-class fault.
func IsPreconditionFailed(err error) bool { return hasStatus(err, http.StatusPreconditionFailed) }

// IsClientError reports whether err maps to a 4xx status.
func IsClientError(err error) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Status >= 400 && se.Status < 500
	}
	return false
}

func hasStatus(err error, status int) bool {
	var se *Error
	return errors.As(err, &se) && se.Status == status
}

// translate maps component errors onto the protocol taxonomy. Anything not
// recognized is a server fault and must not leak internals to the client.
func translate(err error) *Error {
	var se *Error
	if errors.As(err, &se) {
		return se
	}

	var parseErr *filter.ParseError
	if errors.As(err, &parseErr) {
		return NewError(http.StatusBadRequest, "invalidFilter", parseErr.Error())
	}
	var mutErr *patch.MutabilityError
	if errors.As(err, &mutErr) {
		return NewError(http.StatusBadRequest, "mutability", mutErr.Error())
	}
	var attrErr *attribute.Error
	if errors.As(err, &attrErr) {
		return NewError(http.StatusBadRequest, "invalidValue", attrErr.Error())
	}
	var clientErr *repository.ClientError
	if errors.As(err, &clientErr) {
		return NewError(clientErr.Status, "", clientErr.Message)
	}
	var etagErr *etag.GenerationError
	if errors.As(err, &etagErr) {
		return NewError(http.StatusInternalServerError, "", "Failed to generate the etag")
	}

	switch {
	case errors.Is(err, attribute.ErrConflictingSelection):
		return NewError(http.StatusBadRequest, "invalidValue",
			"Cannot include both attributes and excluded attributes in a single request")
	case errors.Is(err, schema.ErrNoSuchAttribute), errors.Is(err, schema.ErrInvalidPath):
		return NewError(http.StatusBadRequest, "invalidPath", err.Error())
	case errors.Is(err, patch.ErrNoTarget):
		return NewError(http.StatusBadRequest, "noTarget", err.Error())
	case errors.Is(err, patch.ErrInvalidValue):
		return NewError(http.StatusBadRequest, "invalidValue", err.Error())
	case errors.Is(err, repository.ErrAlreadyExists):
		return NewError(http.StatusConflict, "uniqueness", err.Error())
	case errors.Is(err, repository.ErrNotFound):
		return NewError(http.StatusNotFound, "", err.Error())
	case errors.Is(err, schema.ErrSchemaNotFound):
		return NewError(http.StatusNotImplemented, "", "Provider not defined")
	default:
		return NewError(http.StatusInternalServerError, "", "Internal server error")
	}
}
