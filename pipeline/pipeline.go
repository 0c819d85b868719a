// Package pipeline wires the whole run together: fetch the playlist, pick a
// variant when given a master, fan out the segment downloads and hand the
// parts to ffmpeg for assembly.
package pipeline

import (
	"fmt"
	"io"
	"os"

	"github.com/mad-int/hlsget/concat"
	"github.com/mad-int/hlsget/fetcher"
	"github.com/mad-int/hlsget/m3u8"
	"github.com/mad-int/hlsget/picker"
	"github.com/mad-int/hlsget/pkg/logging"
	"github.com/mad-int/hlsget/pkg/strutil"
	"github.com/mad-int/hlsget/pkg/timer"

	"github.com/pkg/errors"
)

var (
	ErrFfmpegMissing = errors.New("ffmpeg not found")
	ErrNotM3U8       = errors.New("not an m3u8 playlist")
	ErrDownload      = errors.New("download failed")
	ErrFilesystem    = errors.New("filesystem error")
)

type Configuration struct {
	name    string
	url     string
	verbose bool

	fetcher *fetcher.Fetcher
	pick    func([]m3u8.URLProperties) int
	ffmpeg  *concat.Configuration
	stderr  io.Writer
}

func Configure() *Configuration {
	return &Configuration{
		pick:   picker.Pick,
		ffmpeg: concat.Configure(),
		stderr: os.Stderr,
	}
}

// Name is the base name of the assembled output file.
func (c *Configuration) Name(n string) *Configuration {
	c.name = n
	return c
}

func (c *Configuration) URL(u string) *Configuration {
	c.url = u
	return c
}

func (c *Configuration) Verbose(v bool) *Configuration {
	c.verbose = v
	return c
}

// Fetcher overrides the download driver, mostly for tests.
func (c *Configuration) Fetcher(f *fetcher.Fetcher) *Configuration {
	c.fetcher = f
	return c
}

// Picker overrides the interactive variant picker, mostly for tests.
func (c *Configuration) Picker(p func([]m3u8.URLProperties) int) *Configuration {
	c.pick = p
	return c
}

// FFmpeg overrides the concatenator configuration.
func (c *Configuration) FFmpeg(cfg *concat.Configuration) *Configuration {
	c.ffmpeg = cfg
	return c
}

// FFmpegLog routes concatenator output into the given logger.
func (c *Configuration) FFmpegLog(l logging.KVLogger) *Configuration {
	c.ffmpeg.Log(l)
	return c
}

type Pipeline struct {
	*Configuration
}

func New(cfg *Configuration) *Pipeline {
	if cfg.fetcher == nil {
		cfg.fetcher = fetcher.New(fetcher.Configure().
			Verbose(cfg.verbose).
			DefaultProgressMeter(true))
	}
	return &Pipeline{Configuration: cfg}
}

// Run drives the full download-and-assemble sequence. A nil return means
// either a finished <name>.mp4 or a user cancel.
func (p *Pipeline) Run() error {
	t := timer.Start()

	ff, err := concat.New(p.ffmpeg)
	if err == nil {
		err = ff.Check()
	}
	if err != nil {
		p.printError(err.Error())
		return errors.Wrap(ErrFfmpegMissing, err.Error())
	}

	playlist, err := p.fetchPlaylist(p.url)
	if err != nil {
		return err
	}

	if playlist.Master {
		idx := p.pick(playlist.URLs)
		if idx < 0 {
			logger.Info("variant selection cancelled")
			return nil
		}
		variantURL := playlist.URLs[idx].URL
		logger.Infow("variant picked", "url", variantURL)

		playlist, err = p.fetchPlaylist(variantURL)
		if err != nil {
			return err
		}
	}

	if len(playlist.URLs) == 0 {
		p.printError("playlist contains no segments")
		return errors.Wrap(ErrDownload, "empty playlist")
	}

	items := p.segmentItems(playlist)
	results := p.fetcher.FetchMany(items)

	if len(results.Errors) > 0 {
		for _, e := range results.Errors {
			if e.Filename != "" {
				fmt.Fprintf(p.stderr, "Error: %s while downloading %s!\n", e.Message, e.Filename)
			} else {
				fmt.Fprintf(p.stderr, "Error: %s!\n", e.Message)
			}
		}
		return errors.Wrapf(ErrDownload, "%v of %v segments failed", len(results.Errors), len(items))
	}

	listPath := p.name + "-segments.txt"
	outPath := p.name + ".mp4"

	if err := concat.WriteList(listPath, results.Succeeded); err != nil {
		p.printError(err.Error())
		return errors.Wrap(ErrFilesystem, err.Error())
	}

	cerr := ff.Concat(listPath, outPath)
	p.cleanup(listPath, results.Succeeded)

	if cerr != nil {
		p.printError(cerr.Error())
		return cerr
	}

	logger.Infow("done", "output", outPath, "segments", len(results.Succeeded), "seconds_spent", t.String())
	return nil
}

// fetchPlaylist downloads and parses one m3u8 document, rebasing relative
// entries against the document's own base URL.
func (p *Pipeline) fetchPlaylist(url string) (*m3u8.Playlist, error) {
	buf, err := p.fetcher.FetchBuffer(url)
	if err != nil {
		p.printError(err.Error())
		return nil, errors.Wrap(ErrDownload, err.Error())
	}

	if !m3u8.IsM3U8(buf) {
		p.printError(fmt.Sprintf("`%s' is not an m3u8 playlist", url))
		return nil, errors.Wrapf(ErrNotM3U8, "url `%s'", url)
	}

	playlist := m3u8.FromBuffer(buf)
	if playlist.Err != nil {
		p.printError(playlist.Err.Error())
		return nil, errors.Wrap(ErrNotM3U8, playlist.Err.Error())
	}

	if playlist.ContainsRelativeURLs() {
		playlist.SetBaseURL(m3u8.BaseURL(url))
	}

	logger.Debugw("playlist parsed",
		"url", url, "entries", len(playlist.URLs),
		"master", playlist.Master, "media", playlist.Media)
	return playlist, nil
}

// segmentItems derives the per-segment destination names:
// <name>-<i>-v1-a1.ts with i 1-based, zero-padded to the width of the
// segment count.
func (p *Pipeline) segmentItems(playlist *m3u8.Playlist) []fetcher.PathURL {
	width := strutil.CountDigits(len(playlist.URLs))
	items := make([]fetcher.PathURL, len(playlist.URLs))
	for i, u := range playlist.URLs {
		items[i] = fetcher.PathURL{
			Path: fmt.Sprintf("%s-%0*d-v1-a1.ts", p.name, width, i+1),
			URL:  u.URL,
		}
	}
	return items
}

func (p *Pipeline) cleanup(listPath string, segments []string) {
	if err := os.Remove(listPath); err != nil {
		logger.Warnw("cleanup failed", "path", listPath, "err", err)
	}
	for _, s := range segments {
		if err := os.Remove(s); err != nil {
			logger.Warnw("cleanup failed", "path", s, "err", err)
		}
	}
}

func (p *Pipeline) printError(msg string) {
	fmt.Fprintf(p.stderr, "Error: %s!\n", msg)
}
