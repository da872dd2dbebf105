// Package client is a small SDK for SCIM 2.0 service providers.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const contentType = "application/scim+json"

// Client talks to a SCIM 2.0 service provider.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Token      string
}

// Config holds configuration for the client.
type Config struct {
	// BaseURL is the provider root, e.g. "https://idp.example.com/scim/v2".
	BaseURL string
	Token   string
	Timeout time.Duration
}

// New creates a new Client.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		BaseURL: cfg.BaseURL,
		Token:   cfg.Token,
		HTTPClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// SetToken sets the authentication token for subsequent requests.
func (c *Client) SetToken(token string) {
	c.Token = token
}

// Resource is a SCIM resource document as the provider returns it.
type Resource map[string]any

// ID returns the resource identifier, empty when absent.
func (r Resource) ID() string {
	id, _ := r["id"].(string)
	return id
}

// ListResponse is the SCIM list envelope.
type ListResponse struct {
	TotalResults int        `json:"totalResults"`
	StartIndex   int        `json:"startIndex"`
	ItemsPerPage int        `json:"itemsPerPage"`
	Resources    []Resource `json:"Resources"`
}

// ListOptions narrow a list request.
type ListOptions struct {
	Filter     string
	SortBy     string
	SortOrder  string
	StartIndex int
	Count      int
	Attributes string
}

// APIError is a non-2xx response from the provider.
type APIError struct {
	StatusCode int
	ScimType   string
	Detail     string
}

func (e *APIError) Error() string {
	if e.ScimType != "" {
		return fmt.Sprintf("scim API error %d (%s): %s", e.StatusCode, e.ScimType, e.Detail)
	}
	return fmt.Sprintf("scim API error %d: %s", e.StatusCode, e.Detail)
}

// List fetches a page of resources from the named endpoint, e.g. "/Users".
func (c *Client) List(ctx context.Context, endpoint string, opts ListOptions) (*ListResponse, error) {
	q := url.Values{}
	if opts.Filter != "" {
		q.Set("filter", opts.Filter)
	}
	if opts.SortBy != "" {
		q.Set("sortBy", opts.SortBy)
	}
	if opts.SortOrder != "" {
		q.Set("sortOrder", opts.SortOrder)
	}
	if opts.StartIndex > 0 {
		q.Set("startIndex", strconv.Itoa(opts.StartIndex))
	}
	if opts.Count > 0 {
		q.Set("count", strconv.Itoa(opts.Count))
	}
	if opts.Attributes != "" {
		q.Set("attributes", opts.Attributes)
	}
	path := endpoint
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var res ListResponse
	if _, err := c.doRequest(ctx, "GET", path, "", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Get fetches a single resource. The returned string is the resource's ETag.
func (c *Client) Get(ctx context.Context, endpoint, id string) (Resource, string, error) {
	var res Resource
	etag, err := c.doRequest(ctx, "GET", endpoint+"/"+id, "", nil, &res)
	if err != nil {
		return nil, "", err
	}
	return res, etag, nil
}

// Create posts a new resource.
func (c *Client) Create(ctx context.Context, endpoint string, body Resource) (Resource, string, error) {
	var res Resource
	etag, err := c.doRequest(ctx, "POST", endpoint, "", body, &res)
	if err != nil {
		return nil, "", err
	}
	return res, etag, nil
}

// Replace puts a full resource under the given precondition; pass the ETag
// from a prior read, or empty to skip the precondition.
func (c *Client) Replace(ctx context.Context, endpoint, id, ifMatch string, body Resource) (Resource, string, error) {
	var res Resource
	etag, err := c.doRequest(ctx, "PUT", endpoint+"/"+id, ifMatch, body, &res)
	if err != nil {
		return nil, "", err
	}
	return res, etag, nil
}

// PatchOperation is one entry of a PatchOp request.
type PatchOperation struct {
	Op    string `json:"op"`
	Path  string `json:"path,omitempty"`
	Value any    `json:"value,omitempty"`
}

// Patch applies an ordered operation list under the given precondition.
func (c *Client) Patch(ctx context.Context, endpoint, id, ifMatch string, ops []PatchOperation) (Resource, string, error) {
	body := map[string]any{
		"schemas":    []string{"urn:ietf:params:scim:api:messages:2.0:PatchOp"},
		"Operations": ops,
	}
	var res Resource
	etag, err := c.doRequest(ctx, "PATCH", endpoint+"/"+id, ifMatch, body, &res)
	if err != nil {
		return nil, "", err
	}
	return res, etag, nil
}

// Delete removes a resource.
func (c *Client) Delete(ctx context.Context, endpoint, id string) error {
	_, err := c.doRequest(ctx, "DELETE", endpoint+"/"+id, "", nil, nil)
	return err
}

func (c *Client) doRequest(ctx context.Context, method, path, ifMatch string, body, out any) (string, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return "", err
		}
		bodyReader = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bodyReader)
	if err != nil {
		return "", err
	}
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", contentType)
	if ifMatch != "" {
		req.Header.Set("If-Match", ifMatch)
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var envelope struct {
			ScimType string `json:"scimType"`
			Detail   string `json:"detail"`
		}
		respBody, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(respBody, &envelope) == nil {
			apiErr.ScimType = envelope.ScimType
			apiErr.Detail = envelope.Detail
		}
		if apiErr.Detail == "" {
			apiErr.Detail = string(respBody)
		}
		return "", apiErr
	}

	etag := resp.Header.Get("ETag")
	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
			return etag, err
		}
	}
	return etag, nil
}
