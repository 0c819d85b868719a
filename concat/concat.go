// Package concat drives an external ffmpeg to glue downloaded media
// segments into a single container, using the concat demuxer and a list
// file of segment paths.
package concat

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/mad-int/hlsget/pkg/logging"

	"github.com/pkg/errors"
)

var ErrFfmpegNotFound = errors.New("ffmpeg not found")

type Configuration struct {
	binPath string
	log     logging.KVLogger
}

func Configure() *Configuration {
	return &Configuration{
		log: logging.NoopKVLogger{},
	}
}

// BinPath overrides ffmpeg binary location detection.
func (c *Configuration) BinPath(p string) *Configuration {
	c.binPath = p
	return c
}

func (c *Configuration) Log(l logging.KVLogger) *Configuration {
	c.log = l
	return c
}

type FFmpeg struct {
	*Configuration
}

func New(cfg *Configuration) (*FFmpeg, error) {
	if cfg.binPath == "" {
		p, err := exec.LookPath("ffmpeg")
		if err != nil {
			p = firstExistingFile([]string{"/usr/local/bin/ffmpeg", "/usr/bin/ffmpeg"})
		}
		cfg.binPath = p
	}
	if cfg.binPath == "" {
		return nil, ErrFfmpegNotFound
	}
	return &FFmpeg{Configuration: cfg}, nil
}

func firstExistingFile(paths []string) string {
	for _, p := range paths {
		_, err := os.Stat(p)
		if !os.IsNotExist(err) {
			return p
		}
	}
	return ""
}

// Check verifies the configured binary actually runs: `ffmpeg --help` must
// exit with status 0.
func (f *FFmpeg) Check() error {
	cmd := exec.Command(f.binPath, "--help")
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Run(); err != nil {
		return errors.Wrapf(ErrFfmpegNotFound, "%s --help: %v", f.binPath, err)
	}
	return nil
}

// WriteList writes the concat demuxer input: one `file '<path>'` line per
// segment, in the given order.
func WriteList(path string, segments []string) error {
	var b strings.Builder
	for _, s := range segments {
		fmt.Fprintf(&b, "file '%s'\n", s)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return errors.Wrapf(err, "can't write concat list `%s'", path)
	}
	return nil
}

// Concat runs `ffmpeg -f concat -safe 0 -i <list> <out>`. The error of a
// failed run carries ffmpeg's exit status.
func (f *FFmpeg) Concat(listPath, outPath string) error {
	args := []string{"-f", "concat", "-safe", "0", "-i", listPath, outPath}

	var stderr bytes.Buffer
	cmd := exec.Command(f.binPath, args...)
	cmd.Stderr = &stderr

	f.log.Info("concatenating segments", "args", strings.Join(args, " "), "out", outPath)
	err := cmd.Run()
	if err != nil {
		f.log.Error("ffmpeg failed", "err", err, "stderr", stderr.String())
		return errors.Wrapf(err, "ffmpeg -f concat failed")
	}

	f.log.Info("concatenation done", "out", outPath)
	return nil
}
