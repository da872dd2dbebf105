package scim

import (
	"net/http"
	"strconv"

	"github.com/dhawalhost/scimd/internal/attribute"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const contentType = "application/scim+json"

// HTTPHandler exposes the orchestrator over gin. Routes are derived from the
// schema registry, so registering a new resource type is enough to serve it.
type HTTPHandler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHTTPHandler creates the SCIM HTTP boundary.
func NewHTTPHandler(svc *Service, logger *zap.Logger) *HTTPHandler {
	return &HTTPHandler{svc: svc, logger: logger}
}

// RegisterRoutes registers resource endpoints for every known resource type
// plus the discovery endpoints.
func (h *HTTPHandler) RegisterRoutes(router *gin.Engine) {
	group := router.Group("/scim/v2")
	group.Use(scimContentType())

	for _, rt := range h.svc.Registry().ResourceTypes() {
		name := rt.Name
		group.GET(rt.Endpoint, h.list(name))
		group.POST(rt.Endpoint, h.create(name))
		group.POST(rt.Endpoint+"/.search", h.search(name))
		group.GET(rt.Endpoint+"/:id", h.get(name))
		group.PUT(rt.Endpoint+"/:id", h.replace(name))
		group.PATCH(rt.Endpoint+"/:id", h.patch(name))
		group.DELETE(rt.Endpoint+"/:id", h.delete(name))
	}

	group.GET("/Schemas", h.listSchemas)
	group.GET("/Schemas/:id", h.getSchema)
	group.GET("/ResourceTypes", h.listResourceTypes)
	group.GET("/ResourceTypes/:name", h.getResourceType)
	group.GET("/ServiceProviderConfig", h.serviceProviderConfig)
}

func scimContentType() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", contentType)
		c.Next()
	}
}

func (h *HTTPHandler) get(resourceType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		sel, err := querySelection(c)
		if err != nil {
			h.respondError(c, err)
			return
		}
		_, filterPresent := c.GetQuery("filter")
		result, err := h.svc.Get(c.Request.Context(), &GetRequest{
			ResourceType:  resourceType,
			ID:            c.Param("id"),
			Selection:     sel,
			IfNoneMatch:   c.GetHeader("If-None-Match"),
			FilterPresent: filterPresent,
		})
		if err != nil {
			h.respondError(c, err)
			return
		}
		if result.NotModified {
			c.Header("ETag", result.ETag)
			c.Status(http.StatusNotModified)
			return
		}
		setResourceHeaders(c, result)
		c.JSON(http.StatusOK, result.Resource)
	}
}

func (h *HTTPHandler) list(resourceType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		req, err := querySearchRequest(c)
		if err != nil {
			h.respondError(c, err)
			return
		}
		result, err := h.svc.Query(c.Request.Context(), resourceType, req)
		if err != nil {
			h.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result.Response)
	}
}

func (h *HTTPHandler) search(resourceType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SearchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			h.respondError(c, NewError(http.StatusBadRequest, "invalidSyntax", "Invalid search request body"))
			return
		}
		result, err := h.svc.Query(c.Request.Context(), resourceType, &req)
		if err != nil {
			h.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result.Response)
	}
}

func (h *HTTPHandler) create(resourceType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		sel, err := querySelection(c)
		if err != nil {
			h.respondError(c, err)
			return
		}
		res, err := h.svc.NewResource(resourceType)
		if err != nil {
			h.respondError(c, err)
			return
		}
		if err := c.ShouldBindJSON(res); err != nil {
			h.respondError(c, NewError(http.StatusBadRequest, "invalidSyntax", "Invalid resource body"))
			return
		}
		result, err := h.svc.Create(c.Request.Context(), resourceType, res, sel)
		if err != nil {
			h.respondError(c, err)
			return
		}
		setResourceHeaders(c, result)
		if result.Resource == nil {
			c.Status(http.StatusCreated)
			return
		}
		c.JSON(http.StatusCreated, result.Resource)
	}
}

func (h *HTTPHandler) replace(resourceType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		sel, err := querySelection(c)
		if err != nil {
			h.respondError(c, err)
			return
		}
		res, err := h.svc.NewResource(resourceType)
		if err != nil {
			h.respondError(c, err)
			return
		}
		if err := c.ShouldBindJSON(res); err != nil {
			h.respondError(c, NewError(http.StatusBadRequest, "invalidSyntax", "Invalid resource body"))
			return
		}
		result, err := h.svc.Replace(c.Request.Context(), resourceType, c.Param("id"), res, sel, c.GetHeader("If-Match"))
		if err != nil {
			h.respondError(c, err)
			return
		}
		setResourceHeaders(c, result)
		c.JSON(http.StatusOK, result.Resource)
	}
}

func (h *HTTPHandler) patch(resourceType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		sel, err := querySelection(c)
		if err != nil {
			h.respondError(c, err)
			return
		}
		var req PatchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			h.respondError(c, NewError(http.StatusBadRequest, "invalidSyntax", "Invalid patch request body"))
			return
		}
		result, err := h.svc.Patch(c.Request.Context(), resourceType, c.Param("id"), req.Operations, sel, c.GetHeader("If-Match"))
		if err != nil {
			h.respondError(c, err)
			return
		}
		setResourceHeaders(c, result)
		c.JSON(http.StatusOK, result.Resource)
	}
}

func (h *HTTPHandler) delete(resourceType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := h.svc.Delete(c.Request.Context(), resourceType, c.Param("id"), c.GetHeader("If-Match"))
		if err != nil {
			h.respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func (h *HTTPHandler) listSchemas(c *gin.Context) {
	schemas := h.svc.Registry().Schemas()
	resources := make([]any, 0, len(schemas))
	for _, s := range schemas {
		resources = append(resources, s)
	}
	c.JSON(http.StatusOK, gin.H{
		"schemas":      []string{ListSchema},
		"totalResults": len(resources),
		"startIndex":   1,
		"itemsPerPage": len(resources),
		"Resources":    resources,
	})
}

func (h *HTTPHandler) getSchema(c *gin.Context) {
	s, err := h.svc.Registry().Schema(c.Param("id"))
	if err != nil {
		h.respondError(c, notFoundError(c.Param("id")))
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *HTTPHandler) listResourceTypes(c *gin.Context) {
	types := h.svc.Registry().ResourceTypes()
	resources := make([]any, 0, len(types))
	for _, rt := range types {
		resources = append(resources, rt)
	}
	c.JSON(http.StatusOK, gin.H{
		"schemas":      []string{ListSchema},
		"totalResults": len(resources),
		"startIndex":   1,
		"itemsPerPage": len(resources),
		"Resources":    resources,
	})
}

func (h *HTTPHandler) getResourceType(c *gin.Context) {
	rt, err := h.svc.Registry().ResourceType(c.Param("name"))
	if err != nil {
		h.respondError(c, notFoundError(c.Param("name")))
		return
	}
	c.JSON(http.StatusOK, rt)
}

func (h *HTTPHandler) serviceProviderConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"schemas":        []string{"urn:ietf:params:scim:schemas:core:2.0:ServiceProviderConfig"},
		"patch":          gin.H{"supported": true},
		"bulk":           gin.H{"supported": false, "maxOperations": 0, "maxPayloadSize": 0},
		"filter":         gin.H{"supported": true, "maxResults": 200},
		"changePassword": gin.H{"supported": false},
		"sort":           gin.H{"supported": true},
		"etag":           gin.H{"supported": true},
		"authenticationSchemes": []gin.H{
			{
				"type":        "oauthbearertoken",
				"name":        "OAuth Bearer Token",
				"description": "Authentication scheme using the OAuth Bearer Token standard",
			},
		},
	})
}

func setResourceHeaders(c *gin.Context, result *ResourceResult) {
	if result.ETag != "" {
		c.Header("ETag", result.ETag)
	}
	if result.Location != "" {
		c.Header("Location", result.Location)
	}
}

// querySelection parses attributes / excludedAttributes query parameters.
func querySelection(c *gin.Context) (Selection, error) {
	var sel Selection
	for _, raw := range c.QueryArray("attributes") {
		refs, err := attribute.ParseReferenceList(raw)
		if err != nil {
			return sel, NewError(http.StatusBadRequest, "invalidValue", err.Error())
		}
		sel.Attributes = append(sel.Attributes, refs...)
	}
	for _, raw := range c.QueryArray("excludedAttributes") {
		refs, err := attribute.ParseReferenceList(raw)
		if err != nil {
			return sel, NewError(http.StatusBadRequest, "invalidValue", err.Error())
		}
		sel.ExcludedAttributes = append(sel.ExcludedAttributes, refs...)
	}
	return sel, nil
}

// querySearchRequest maps GET list query parameters onto the search envelope.
func querySearchRequest(c *gin.Context) (*SearchRequest, error) {
	req := &SearchRequest{
		Attributes:         c.QueryArray("attributes"),
		ExcludedAttributes: c.QueryArray("excludedAttributes"),
		Filter:             c.Query("filter"),
		SortBy:             c.Query("sortBy"),
		SortOrder:          c.Query("sortOrder"),
	}
	if raw := c.Query("startIndex"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, NewError(http.StatusBadRequest, "invalidValue", "startIndex must be an integer")
		}
		req.StartIndex = n
	}
	if raw := c.Query("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, NewError(http.StatusBadRequest, "invalidValue", "count must be an integer")
		}
		req.Count = &n
	}
	return req, nil
}

func (h *HTTPHandler) respondError(c *gin.Context, err error) {
	se := translate(err)
	if se.Status >= http.StatusInternalServerError {
		h.logger.Error("SCIM request failed", zap.Int("status", se.Status), zap.Error(err))
	} else {
		h.logger.Debug("SCIM request rejected", zap.Int("status", se.Status), zap.Error(err))
	}
	c.AbortWithStatusJSON(se.Status, ErrorResponse{
		Schemas:  []string{ErrorSchema},
		Status:   strconv.Itoa(se.Status),
		ScimType: se.ScimType,
		Detail:   se.Detail,
	})
}
