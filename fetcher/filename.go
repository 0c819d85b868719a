package fetcher

import (
	"net/url"
	"regexp"
)

var filenameRe = regexp.MustCompile(`.*/([-\w]+(\.\w+)?)$`)

// FilenameFromURL extracts the last path segment of a URL, dropping any
// query or fragment. Returns "" when the path carries no usable name.
func FilenameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	m := filenameRe.FindStringSubmatch(u.Path)
	if m == nil {
		return ""
	}
	return m[1]
}
