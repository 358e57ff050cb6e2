package sluice

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// DefaultRangeWindow is the number of bytes past start served for an
// open-ended range request.
const DefaultRangeWindow = 1_000_000

// IndexFile is appended to pathnames that end in a slash.
const IndexFile = "index.html"

// SplitTarget splits a raw request target at the first "?".
// The returned search keeps its leading "?" and is empty when there is no query.
func SplitTarget(target string) (pathname, search string) {
	if i := strings.IndexByte(target, '?'); i >= 0 {
		return target[:i], target[i:]
	}
	return target, ""
}

// SanitizePathname neutralises traversal and resolves directory targets:
//   - every ".." token is replaced by "." in a single pass (no hierarchical
//     resolution), so "...." becomes ".."
//   - a pathname ending in "/" gets IndexFile appended
//   - an empty pathname becomes "/" + IndexFile
//
// It is not a canonicaliser; the file system must still refuse escapes.
func SanitizePathname(p string) string {
	if p == "" {
		return "/" + IndexFile
	}

	p = strings.ReplaceAll(p, "..", ".")

	if strings.HasSuffix(p, "/") {
		p += IndexFile
	}

	return p
}

// ParseSearchParams parses a query string (with or without its leading "?").
// For repeated keys the last value wins.
func ParseSearchParams(search string) map[string]string {
	params := make(map[string]string)

	values, _ := url.ParseQuery(strings.TrimPrefix(search, "?"))
	for k, v := range values {
		if len(v) > 0 {
			params[k] = v[len(v)-1]
		}
	}

	return params
}

// ParseCookie parses a request cookie header of the form "k1=v1; k2=v2".
// Entries are split on the first "="; an entry without "=" maps to "".
func ParseCookie(header string) map[string]string {
	cookie := make(map[string]string)
	if header == "" {
		return cookie
	}

	for _, entry := range strings.Split(header, "; ") {
		key, value, _ := strings.Cut(entry, "=")
		cookie[key] = value
	}

	return cookie
}

// FormatSetCookie renders a cookie map as set-cookie header values, one
// "key=value" entry per key, ordered by key.
func FormatSetCookie(cookie map[string]string) []string {
	if len(cookie) == 0 {
		return nil
	}

	keys := make([]string, 0, len(cookie))
	for k := range cookie {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	values := make([]string, 0, len(keys))
	for _, k := range keys {
		values = append(values, k+"="+cookie[k])
	}

	return values
}

// ParseRange parses a "bytes=<start>-<end>" header against a file of the
// given size. It returns false when the header is not a byte-range request.
//
// An unparseable start is 0. An omitted, unparseable or zero end becomes
// min(start+window, size-1). An end past the file is clamped to size-1.
// The returned range may still have Start > End when start lies beyond the
// file; callers answer that as unsatisfiable.
func ParseRange(header string, size int64, window int64) (ByteRange, bool) {
	value, ok := strings.CutPrefix(header, "bytes=")
	if !ok {
		return ByteRange{}, false
	}

	if window <= 0 {
		window = DefaultRangeWindow
	}

	startStr, endStr, _ := strings.Cut(value, "-")
	start := parseLeadingInt(startStr)
	end := parseLeadingInt(endStr)

	if end == 0 {
		end = min(start+window, size-1)
	}
	if end > size-1 {
		end = size - 1
	}

	return ByteRange{Start: start, End: end}, true
}

// parseLeadingInt parses the leading decimal digits of s after optional
// whitespace, returning 0 when there are none.
func parseLeadingInt(s string) int64 {
	s = strings.TrimSpace(s)

	n := 0
	for n < len(s) && s[n] >= '0' && s[n] <= '9' {
		n++
	}
	if n == 0 {
		return 0
	}

	v, err := strconv.ParseInt(s[:n], 10, 64)
	if err != nil {
		return 0
	}
	return v
}
