package main

import (
	"os"

	"github.com/mad-int/hlsget/fetcher"
	"github.com/mad-int/hlsget/pipeline"
	"github.com/mad-int/hlsget/pkg/logging"
	"github.com/mad-int/hlsget/pkg/logging/zapadapter"

	"github.com/alecthomas/kong"
	"go.uber.org/zap"
)

var CLI struct {
	Verbose bool   `short:"v" help:"Verbose transfer output."`
	Name    string `short:"n" required:"" help:"Base name of the assembled media file (<name>.mp4)."`
	URL     string `arg:"" name:"url" help:"URL of the m3u8 playlist."`
}

func main() {
	kong.Parse(&CLI,
		kong.Name("hlsget"),
		kong.Description("Download the segments of an HLS presentation and assemble them into a single media file."),
		kong.Exit(func(code int) {
			if code != 0 {
				code = pipeline.ExitArgumentError
			}
			os.Exit(code)
		}),
	)

	logcfg := logging.Dev
	if !CLI.Verbose {
		logcfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	log := logging.Create("hlsget", logcfg)
	fetcher.SetLogger(log.Named("fetcher"))
	pipeline.SetLogger(log.Named("pipeline"))

	p := pipeline.New(pipeline.Configure().
		Name(CLI.Name).
		URL(CLI.URL).
		Verbose(CLI.Verbose).
		FFmpegLog(zapadapter.NewKV(log.Named("ffmpeg").Desugar())))

	os.Exit(pipeline.ExitCode(p.Run()))
}
