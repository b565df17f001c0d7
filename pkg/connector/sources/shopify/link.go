package shopify

import (
	"net/url"
	"regexp"
	"strings"
)

// Link relations used by Shopify's cursor pagination
const (
	RelNext     = "next"
	RelPrevious = "previous"
)

// linkEntry matches one `<target>; rel="name"` element of a Link header.
// The target is delimited by angle brackets, so commas inside it (as in an
// unescaped fields list) do not split entries.
var linkEntry = regexp.MustCompile(`<([^>]*)>\s*;\s*rel="?([^",;]+)"?`)

// Cursors maps a link relation ("next", "previous") to its page_info token
type Cursors map[string]string

// Next returns the cursor for the following page
func (c Cursors) Next() (string, bool) {
	v, ok := c[RelNext]
	return v, ok
}

// Previous returns the cursor for the preceding page
func (c Cursors) Previous() (string, bool) {
	v, ok := c[RelPrevious]
	return v, ok
}

// ParseLinkHeader extracts the page_info token of every relation in a Link
// header value. Entries whose target carries no page_info are ignored, as
// are malformed entries. An empty header yields an empty map.
func ParseLinkHeader(header string) Cursors {
	cursors := make(Cursors)
	if strings.TrimSpace(header) == "" {
		return cursors
	}

	for _, m := range linkEntry.FindAllStringSubmatch(header, -1) {
		target, rel := strings.TrimSpace(m[1]), strings.ToLower(strings.TrimSpace(m[2]))
		u, err := url.Parse(target)
		if err != nil {
			continue
		}
		token := u.Query().Get("page_info")
		if token == "" {
			continue
		}
		// rel may list several space-separated relation types
		for _, r := range strings.Fields(rel) {
			if _, seen := cursors[r]; !seen {
				cursors[r] = token
			}
		}
	}
	return cursors
}
