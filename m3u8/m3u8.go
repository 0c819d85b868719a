// Package m3u8 parses the subset of RFC 8216 playlists needed for stream
// retrieval: master playlists (#EXT-X-STREAM-INF) and media playlists
// (#EXTINF). Anything else in a document is tolerated and skipped.
package m3u8

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

const extM3U = "#EXTM3U"

var ErrWrongFileFormat = errors.New("wrong file format, expected m3u8")

var (
	absoluteURLRe = regexp.MustCompile(`^[a-zA-Z]{3,5}://`)
	baseURLRe     = regexp.MustCompile(`^([a-zA-Z]{3,5}://[^/]+)/.*$`)
)

// URLProperties is a single playlist entry: the URI line plus the attributes
// accumulated from the tag lines preceding it.
type URLProperties struct {
	URL        string
	Properties map[string]string
}

// Playlist is the parse result of one m3u8 document. A document may be both
// master and media at once; ill-formed input is tolerated rather than rejected.
type Playlist struct {
	URLs   []URLProperties
	Master bool
	Media  bool
	Err    error
}

// FromBuffer parses an in-memory m3u8 document. Errors are captured in the
// returned Playlist, never panicked or thrown.
func FromBuffer(buf []byte) *Playlist {
	p := &Playlist{}
	p.parse(bytes.NewReader(buf))
	return p
}

// FromFile parses an m3u8 document from disk.
func FromFile(path string) *Playlist {
	p := &Playlist{}
	f, err := os.Open(path)
	if err != nil {
		p.Err = errors.Wrap(err, "cannot open playlist")
		return p
	}
	defer f.Close()
	p.parse(f)
	return p
}

// IsM3U8 reports whether the buffer starts with the m3u8 magic line.
func IsM3U8(buf []byte) bool {
	return firstNonEmptyLine(bytes.NewReader(buf)) == extM3U
}

// IsM3U8File reports whether the file at path starts with the m3u8 magic line.
func IsM3U8File(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, errors.Wrap(err, "cannot open playlist")
	}
	defer f.Close()
	return firstNonEmptyLine(f) == extM3U, nil
}

func firstNonEmptyLine(r io.Reader) string {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			return line
		}
	}
	return ""
}

// IsAbsoluteURL reports whether u carries a scheme of its own.
func IsAbsoluteURL(u string) bool {
	return absoluteURLRe.MatchString(u)
}

// BaseURL returns the scheme+authority part of url, or "" when url has no
// path to strip.
func BaseURL(url string) string {
	m := baseURLRe.FindStringSubmatch(url)
	if m == nil {
		return ""
	}
	return m[1]
}

func (p *Playlist) ContainsAbsoluteURLs() bool {
	for _, u := range p.URLs {
		if IsAbsoluteURL(u.URL) {
			return true
		}
	}
	return false
}

func (p *Playlist) ContainsRelativeURLs() bool {
	for _, u := range p.URLs {
		if !IsAbsoluteURL(u.URL) {
			return true
		}
	}
	return false
}

// SetBaseURL rewrites every relative entry against base: trailing slashes are
// stripped from base, leading slashes from the entry, and the two are joined
// with a single slash. Absolute entries are left alone.
func (p *Playlist) SetBaseURL(base string) {
	for i := range p.URLs {
		u := p.URLs[i].URL
		if u == "" || IsAbsoluteURL(u) {
			continue
		}
		p.URLs[i].URL = strings.TrimRight(base, "/") + "/" + strings.TrimLeft(u, "/")
	}
}
