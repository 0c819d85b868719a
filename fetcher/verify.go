package fetcher

import (
	"bufio"
	"os"
	"regexp"
	"strings"

	"github.com/c2h5oh/datasize"
	"github.com/pkg/errors"
)

// Servers hand out small HTML bodies instead of media data when a request is
// refused; anything at or below this size is treated as suspect.
var verifyThreshold = 1 * datasize.KB

const rateLimitToken = "error code: 1015"

var titleRe = regexp.MustCompile(`<title>(.*)</title>`)

// verifyFile inspects a completed download. Suspiciously small files are
// scanned for known failure markers: a Cloudflare rate-limit code or an HTML
// title describing the refusal.
func verifyFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return errors.Wrapf(err, "can't stat file `%s'", path)
	}
	if uint64(info.Size()) > verifyThreshold.Bytes() {
		return nil
	}

	file, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "can't open file `%s' for reading", path)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.Contains(line, rateLimitToken) {
			return errors.New("rate limit exceeded")
		}
		if m := titleRe.FindStringSubmatch(line); m != nil {
			return errors.New(m[1])
		}
	}

	return errors.New("unknown error")
}
