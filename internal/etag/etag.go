// Package etag computes deterministic version tags over resource content.
// The tag is a weak validator: equal content always yields an equal tag, and
// any change to a non-excluded attribute changes it.
package etag

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/dhawalhost/scimd/internal/resource"
)

// GenerationError wraps a structural failure while hashing a resource. It is
// a server fault, never a client error.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("etag generation failed: %v", e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Generator produces version tags. The zero value is ready to use.
type Generator struct{}

// Generate hashes the resource's canonical form: attributes sorted by name,
// extensions sorted by URI (so attachment order does not matter), and the
// transport-level meta attribute excluded.
func (g *Generator) Generate(r *resource.Resource) (string, error) {
	var b strings.Builder
	attrs := make(map[string]any, len(r.Attributes()))
	for name, value := range r.Attributes() {
		if strings.EqualFold(name, "meta") {
			continue
		}
		attrs[strings.ToLower(name)] = value
	}
	if err := writeCanonical(&b, attrs); err != nil {
		return "", &GenerationError{Err: err}
	}

	uris := r.ExtensionURIs()
	sort.Slice(uris, func(i, j int) bool {
		return strings.ToLower(uris[i]) < strings.ToLower(uris[j])
	})
	for _, uri := range uris {
		payload, _ := r.Extension(uri)
		b.WriteString(strings.ToLower(uri))
		if err := writeCanonical(&b, payload); err != nil {
			return "", &GenerationError{Err: err}
		}
	}

	sum := sha256.Sum256([]byte(b.String()))
	return fmt.Sprintf(`W/"%x"`, sum[:16]), nil
}

// writeCanonical renders a JSON-like value deterministically: object keys
// sorted case-insensitively, arrays in order, scalars via encoding/json.
func writeCanonical(b *strings.Builder, v any) error {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for key := range val {
			keys = append(keys, key)
		}
		sort.Slice(keys, func(i, j int) bool {
			return strings.ToLower(keys[i]) < strings.ToLower(keys[j])
		})
		b.WriteByte('{')
		for i, key := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(strings.ToLower(key))
			b.WriteByte(':')
			if err := writeCanonical(b, val[key]); err != nil {
				return err
			}
		}
		b.WriteByte('}')
	case []any:
		b.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				b.WriteByte(',')
			}
			if err := writeCanonical(b, elem); err != nil {
				return err
			}
		}
		b.WriteByte(']')
	default:
		raw, err := json.Marshal(val)
		if err != nil {
			return fmt.Errorf("unserializable value %T: %w", v, err)
		}
		b.Write(raw)
	}
	return nil
}

// Match reports whether a precondition header value matches the given tag.
// Weak-validator prefixes and quotes are ignored, and "*" matches any tag.
func Match(header, tag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" {
			return true
		}
		if normalize(candidate) == normalize(tag) {
			return true
		}
	}
	return false
}

func normalize(tag string) string {
	tag = strings.TrimPrefix(tag, "W/")
	return strings.Trim(tag, `"`)
}
