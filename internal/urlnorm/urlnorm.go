// Package urlnorm canonicalizes URLs and derives stable page identifiers.
//
// Two URLs that differ only in trailing slash, query parameter order, host
// casing, or fragment map to the same normalized form, and therefore to the
// same page id. Everything downstream (frontier dedupe, coverage keying,
// evidence paths) depends on this being a pure function.
package urlnorm

import (
	"crypto/md5"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// Normalize returns the canonical form of rawURL: lowercased scheme and host,
// sorted query parameters, no fragment, no trailing slash on the path.
// Invalid URLs are returned trimmed but otherwise untouched so callers can
// still key on them deterministically.
func Normalize(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)
	parsed.Fragment = ""

	if parsed.RawQuery != "" {
		parsed.RawQuery = sortQuery(parsed.RawQuery)
	}

	// Collapse the trailing slash; "/" alone becomes the empty path so that
	// "https://example.com/" and "https://example.com" agree.
	parsed.Path = strings.TrimRight(parsed.Path, "/")

	return parsed.String()
}

// sortQuery reorders query parameters byte-wise by key, then by value for
// repeated keys, preserving every pair.
func sortQuery(rawQuery string) string {
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return rawQuery
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		vs := values[k]
		sort.Strings(vs)
		for _, v := range vs {
			parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(v))
		}
	}
	return strings.Join(parts, "&")
}

// PageID derives the stable 12-hex-character page identifier for a URL.
// It is computed over the normalized form, so PageID(Normalize(u)) == PageID(u).
func PageID(rawURL string) string {
	sum := md5.Sum([]byte(Normalize(rawURL)))
	return hex.EncodeToString(sum[:])[:12]
}

// SameOrigin reports whether two URLs share scheme and host.
func SameOrigin(a, b string) bool {
	pa, err := url.Parse(a)
	if err != nil {
		return false
	}
	pb, err := url.Parse(b)
	if err != nil {
		return false
	}
	return strings.EqualFold(pa.Scheme, pb.Scheme) && strings.EqualFold(pa.Host, pb.Host)
}

// Resolve resolves a possibly-relative href against a base URL, returning
// empty for non-navigable schemes (javascript:, mailto:, tel:, data:, blob:)
// and bare fragments.
func Resolve(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}

	lower := strings.ToLower(href)
	for _, scheme := range []string{"javascript:", "mailto:", "tel:", "data:", "blob:"} {
		if strings.HasPrefix(lower, scheme) {
			return ""
		}
	}

	baseURL, err := url.Parse(base)
	if err != nil {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}

	return baseURL.ResolveReference(ref).String()
}
