package fetcher

import "fmt"

// PathURL is one unit of work: where to put it and where to get it from.
type PathURL struct {
	Path string
	URL  string
}

// Error is a failed transfer. URL and Filename are empty for errors not tied
// to a particular transfer.
type Error struct {
	Message  string
	URL      string
	Filename string
}

func (e *Error) Error() string {
	if e.Filename != "" {
		return fmt.Sprintf("%s (while downloading %s)", e.Message, e.Filename)
	}
	return e.Message
}

// Results is what FetchMany comes back with. Succeeded holds destination
// paths in completion order.
type Results struct {
	Succeeded []string
	Errors    []Error
}
