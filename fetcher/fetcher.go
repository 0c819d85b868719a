// Package fetcher downloads URLs over HTTP: single transfers into a file or
// buffer, and a bounded-parallel multi-transfer engine with a progress meter,
// post-transfer verification and a consecutive-failure circuit breaker.
package fetcher

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/mad-int/hlsget/progress"

	"github.com/c2h5oh/datasize"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

const defaultUserAgent = "curl_wrapper/0.6"

// receiveRateCap is the per-transfer download speed limit.
var receiveRateCap = 1 * datasize.MB

type HTTPRequester interface {
	Do(req *http.Request) (res *http.Response, err error)
}

type Configuration struct {
	userAgent    string
	verbose      bool
	defaultMeter bool
	httpClient   HTTPRequester
}

func Configure() *Configuration {
	return &Configuration{
		userAgent: defaultUserAgent,
		httpClient: &http.Client{
			Transport: &http.Transport{
				Dial: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 120 * time.Second,
				}).Dial,
				TLSHandshakeTimeout:   30 * time.Second,
				ResponseHeaderTimeout: 15 * time.Second,
			},
		},
	}
}

// UserAgent sets the User-Agent header sent with every request.
// Empty values are ignored, the agent string must be non-empty.
func (c *Configuration) UserAgent(ua string) *Configuration {
	if ua != "" {
		c.userAgent = ua
	}
	return c
}

// Verbose enables one "Try to download: <url>" line per transfer.
func (c *Configuration) Verbose(v bool) *Configuration {
	c.verbose = v
	return c
}

// DefaultProgressMeter enables meter rendering. It applies to single
// transfers and to the multi-transfer engine alike: FetchMany always keeps
// its meter records up to date but only renders them when this is set.
func (c *Configuration) DefaultProgressMeter(d bool) *Configuration {
	c.defaultMeter = d
	return c
}

func (c *Configuration) HTTPClient(client HTTPRequester) *Configuration {
	c.httpClient = client
	return c
}

type Fetcher struct {
	*Configuration
}

func New(cfg *Configuration) *Fetcher {
	return &Fetcher{Configuration: cfg}
}

// FetchFile downloads url into path, streaming the body to disk as it
// arrives. The destination is opened before the request goes out; an open
// failure short-circuits without touching the network.
func (f *Fetcher) FetchFile(path, url string) (string, error) {
	file, err := os.Create(path)
	if err != nil {
		return "", errors.Wrapf(err, "can't open file `%s' for writing", path)
	}

	var meter *progress.Meter
	var rec *progress.Process
	if f.defaultMeter {
		meter = progress.NewMeter(1)
		rec = meter.Add(0, filepath.Base(path))
	}

	err = f.stream(context.Background(), url, file, func(total, transferred uint64) {
		if rec != nil {
			rec.Update(total, transferred)
			meter.Print()
		}
	})
	file.Close()

	if meter != nil {
		meter.Finish(0)
		meter.Print()
	}
	if err != nil {
		return "", err
	}
	return path, nil
}

// FetchBuffer downloads url into memory.
func (f *Fetcher) FetchBuffer(url string) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := f.stream(context.Background(), url, buf, nil); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// stream performs one rate-capped transfer, writing body chunks to sink in
// arrival order. Any completed HTTP exchange counts as transport success,
// whatever the status code; undersized error pages are caught by the
// verification pass instead.
func (f *Fetcher) stream(ctx context.Context, url string, sink io.Writer, onProgress func(total, transferred uint64)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.Wrap(err, "invalid url")
	}
	req.Header.Set("User-Agent", f.userAgent)

	logger.Debugw("fetching", "url", url)
	res, err := f.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	var total uint64
	if res.ContentLength > 0 {
		total = uint64(res.ContentLength)
	}

	limiter := rate.NewLimiter(rate.Limit(receiveRateCap.Bytes()), int(receiveRateCap.Bytes()))
	buf := make([]byte, 32*1024)
	var transferred uint64

	for {
		n, rerr := res.Body.Read(buf)
		if n > 0 {
			if werr := limiter.WaitN(ctx, n); werr != nil {
				return werr
			}
			if _, werr := sink.Write(buf[:n]); werr != nil {
				return werr
			}
			transferred += uint64(n)
			if onProgress != nil {
				onProgress(total, transferred)
			}
		}
		if rerr == io.EOF {
			logger.Debugw("transfer complete", "url", url, "size", datasize.ByteSize(transferred).HumanReadable())
			return nil
		}
		if rerr != nil {
			return rerr
		}
	}
}
