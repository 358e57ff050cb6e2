package sluice_test

import (
	"testing"

	"github.com/sagarc03/sluice"
	"github.com/stretchr/testify/assert"
)

func TestSplitTarget(t *testing.T) {
	tt := []struct {
		Name       string
		Target     string
		WantPath   string
		WantSearch string
	}{
		{Name: "no query", Target: "/a/b.txt", WantPath: "/a/b.txt"},
		{Name: "query", Target: "/a?x=1&y=2", WantPath: "/a", WantSearch: "?x=1&y=2"},
		{Name: "empty query", Target: "/a?", WantPath: "/a", WantSearch: "?"},
		{Name: "second question mark stays in search", Target: "/a?x=?", WantPath: "/a", WantSearch: "?x=?"},
		{Name: "empty target", Target: ""},
	}

	for _, tc := range tt {
		t.Run(tc.Name, func(t *testing.T) {
			p, s := sluice.SplitTarget(tc.Target)
			assert.Equal(t, tc.WantPath, p)
			assert.Equal(t, tc.WantSearch, s)
		})
	}
}

func TestSanitizePathname(t *testing.T) {
	tt := []struct {
		Name string
		Path string
		Want string
	}{
		{Name: "plain file", Path: "/style.css", Want: "/style.css"},
		{Name: "root", Path: "/", Want: "/index.html"},
		{Name: "empty", Path: "", Want: "/index.html"},
		{Name: "directory", Path: "/docs/", Want: "/docs/index.html"},
		{Name: "parent segments", Path: "/a/../../etc/passwd", Want: "/a/././etc/passwd"},
		{Name: "dots inside a name", Path: "/a/b..c", Want: "/a/b.c"},
		{Name: "four dots collapse pairwise", Path: "/a/..../b", Want: "/a/../b"},
		{Name: "trailing parent", Path: "/a/..", Want: "/a/."},
		{Name: "single dot kept", Path: "/a/./b", Want: "/a/./b"},
		{Name: "hidden file kept", Path: "/.well-known/x", Want: "/.well-known/x"},
	}

	for _, tc := range tt {
		t.Run(tc.Name, func(t *testing.T) {
			assert.Equal(t, tc.Want, sluice.SanitizePathname(tc.Path))
		})
	}
}

func TestParseSearchParams(t *testing.T) {
	tt := []struct {
		Name   string
		Search string
		Want   map[string]string
	}{
		{Name: "empty", Search: "", Want: map[string]string{}},
		{Name: "leading question mark", Search: "?a=1&b=two", Want: map[string]string{"a": "1", "b": "two"}},
		{Name: "no question mark", Search: "a=1", Want: map[string]string{"a": "1"}},
		{Name: "last value wins", Search: "?a=1&a=2", Want: map[string]string{"a": "2"}},
		{Name: "escaped", Search: "?q=hello%20world", Want: map[string]string{"q": "hello world"}},
		{Name: "key without value", Search: "?flag", Want: map[string]string{"flag": ""}},
	}

	for _, tc := range tt {
		t.Run(tc.Name, func(t *testing.T) {
			assert.Equal(t, tc.Want, sluice.ParseSearchParams(tc.Search))
		})
	}
}

func TestParseCookie(t *testing.T) {
	tt := []struct {
		Name   string
		Header string
		Want   map[string]string
	}{
		{Name: "empty", Header: "", Want: map[string]string{}},
		{Name: "single", Header: "session=abc", Want: map[string]string{"session": "abc"}},
		{Name: "several", Header: "a=1; b=2", Want: map[string]string{"a": "1", "b": "2"}},
		{Name: "split on first equals", Header: "token=x=y", Want: map[string]string{"token": "x=y"}},
		{Name: "entry without equals", Header: "a=1; flag", Want: map[string]string{"a": "1", "flag": ""}},
	}

	for _, tc := range tt {
		t.Run(tc.Name, func(t *testing.T) {
			assert.Equal(t, tc.Want, sluice.ParseCookie(tc.Header))
		})
	}
}

func TestFormatSetCookie(t *testing.T) {
	assert.Nil(t, sluice.FormatSetCookie(nil))
	assert.Equal(t,
		[]string{"a=1", "b=2", "theme=dark"},
		sluice.FormatSetCookie(map[string]string{"theme": "dark", "b": "2", "a": "1"}),
	)
}

func TestParseRange(t *testing.T) {
	tt := []struct {
		Name   string
		Header string
		Size   int64
		Window int64
		Want   sluice.ByteRange
		WantOK bool
	}{
		{Name: "no header", Header: "", Size: 1000},
		{Name: "other unit", Header: "items=0-10", Size: 1000},
		{Name: "closed range", Header: "bytes=0-99", Size: 1000, Want: sluice.ByteRange{Start: 0, End: 99}, WantOK: true},
		{Name: "open end within window", Header: "bytes=100-", Size: 1000, Want: sluice.ByteRange{Start: 100, End: 999}, WantOK: true},
		{Name: "open end capped by window", Header: "bytes=100-", Size: 1000, Window: 10, Want: sluice.ByteRange{Start: 100, End: 110}, WantOK: true},
		{Name: "end past file clamped", Header: "bytes=10-5000", Size: 1000, Want: sluice.ByteRange{Start: 10, End: 999}, WantOK: true},
		{Name: "zero end is open", Header: "bytes=5-0", Size: 100, Window: 10, Want: sluice.ByteRange{Start: 5, End: 15}, WantOK: true},
		{Name: "unparseable start is zero", Header: "bytes=abc-10", Size: 100, Want: sluice.ByteRange{Start: 0, End: 10}, WantOK: true},
		{Name: "leading digits only", Header: "bytes=7x-9y", Size: 100, Want: sluice.ByteRange{Start: 7, End: 9}, WantOK: true},
		{Name: "suffix form reads from zero", Header: "bytes=-50", Size: 100, Want: sluice.ByteRange{Start: 0, End: 50}, WantOK: true},
		{Name: "start beyond file", Header: "bytes=2000-", Size: 1000, Want: sluice.ByteRange{Start: 2000, End: 999}, WantOK: true},
		{Name: "empty file", Header: "bytes=0-", Size: 0, Want: sluice.ByteRange{Start: 0, End: -1}, WantOK: true},
	}

	for _, tc := range tt {
		t.Run(tc.Name, func(t *testing.T) {
			got, ok := sluice.ParseRange(tc.Header, tc.Size, tc.Window)
			assert.Equal(t, tc.WantOK, ok)
			assert.Equal(t, tc.Want, got)
		})
	}
}
