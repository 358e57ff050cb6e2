package sluice

import (
	"fmt"
	"os"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	CacheNoCache   = "no-cache"
	CacheImmutable = "max-age=31536000, immutable"

	// DefaultContentType is used for extensions missing from the table.
	DefaultContentType = "application/octet-stream"
)

// ContentPolicy is the pair of response headers derived from a file extension.
type ContentPolicy struct {
	ContentType  string `yaml:"content_type"`
	CacheControl string `yaml:"cache_control"`
}

// ContentTable maps a lower-case extension including its dot (".html")
// to a ContentPolicy.
type ContentTable map[string]ContentPolicy

// DefaultContentTable returns a fresh copy of the built-in table.
func DefaultContentTable() ContentTable {
	return ContentTable{
		".txt":         {ContentType: "text/plain; charset=utf-8", CacheControl: CacheNoCache},
		".html":        {ContentType: "text/html; charset=utf-8", CacheControl: CacheNoCache},
		".css":         {ContentType: "text/css; charset=utf-8", CacheControl: CacheImmutable},
		".js":          {ContentType: "text/javascript; charset=utf-8", CacheControl: CacheImmutable},
		".json":        {ContentType: "application/json; charset=utf-8", CacheControl: CacheImmutable},
		".webmanifest": {ContentType: "application/manifest+json; charset=utf-8", CacheControl: CacheImmutable},
		".wasm":        {ContentType: "application/wasm", CacheControl: CacheImmutable},
		".png":         {ContentType: "image/png", CacheControl: CacheImmutable},
		".mp4":         {ContentType: "video/mp4", CacheControl: CacheImmutable},
	}
}

// Lookup returns the policy for the extension of name. Unknown extensions
// get DefaultContentType with no-cache.
func (t ContentTable) Lookup(name string) ContentPolicy {
	if p, ok := t[strings.ToLower(path.Ext(name))]; ok {
		return p
	}
	return ContentPolicy{ContentType: DefaultContentType, CacheControl: CacheNoCache}
}

// Merge returns a copy of t with every entry of overrides applied on top.
// Override entries with an empty field keep the base value for that field.
func (t ContentTable) Merge(overrides ContentTable) ContentTable {
	merged := make(ContentTable, len(t)+len(overrides))
	for ext, p := range t {
		merged[ext] = p
	}

	for ext, p := range overrides {
		ext = normalizeExt(ext)
		base, ok := merged[ext]
		if !ok {
			base = ContentPolicy{ContentType: DefaultContentType, CacheControl: CacheNoCache}
		}
		if p.ContentType != "" {
			base.ContentType = p.ContentType
		}
		if p.CacheControl != "" {
			base.CacheControl = p.CacheControl
		}
		merged[ext] = base
	}

	return merged
}

// LoadContentTable reads a YAML file of overrides and merges it over the
// default table. The file maps extensions to policies:
//
//	.svg:
//	  content_type: image/svg+xml
//	  cache_control: max-age=31536000, immutable
//	pdf:
//	  content_type: application/pdf
func LoadContentTable(file string) (ContentTable, error) {
	data, err := os.ReadFile(file) //nolint:gosec // Path is from trusted config
	if err != nil {
		return nil, fmt.Errorf("read content table: %w", err)
	}

	var overrides ContentTable
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidContentTable, file, err)
	}

	for ext, p := range overrides {
		if p.ContentType == "" && p.CacheControl == "" {
			return nil, fmt.Errorf("%w: %s: empty entry for %q", ErrInvalidContentTable, file, ext)
		}
	}

	return DefaultContentTable().Merge(overrides), nil
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
