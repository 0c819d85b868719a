package pipeline

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/mad-int/hlsget/concat"
	"github.com/mad-int/hlsget/fetcher"
	"github.com/mad-int/hlsget/m3u8"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mediaPlaylist = `#EXTM3U
#EXT-X-TARGETDURATION:10
#EXTINF:9.0,
/seg/1.ts
#EXTINF:9.0,
/seg/2.ts
#EXTINF:4.5,
/seg/3.ts
#EXT-X-ENDLIST
`

const masterPlaylist = `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=716090,RESOLUTION=640x360
/low.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=5627358,RESOLUTION=1920x1080
/high.m3u8
`

func nopBin(t *testing.T) string {
	t.Helper()
	bin, err := exec.LookPath("true")
	if err != nil {
		t.Skip("no `true' binary around")
	}
	return bin
}

// testServer serves the media playlist under /index.m3u8, the master under
// /master.m3u8 and 2 KiB segment bodies under /seg/.
func testServer(segmentHits *int32) *httptest.Server {
	segment := bytes.Repeat([]byte("x"), 2048)
	mux := http.NewServeMux()
	mux.HandleFunc("/index.m3u8", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, mediaPlaylist)
	})
	mux.HandleFunc("/low.m3u8", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, mediaPlaylist)
	})
	mux.HandleFunc("/high.m3u8", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, mediaPlaylist)
	})
	mux.HandleFunc("/master.m3u8", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, masterPlaylist)
	})
	mux.HandleFunc("/seg/", func(w http.ResponseWriter, r *http.Request) {
		if segmentHits != nil {
			atomic.AddInt32(segmentHits, 1)
		}
		w.Write(segment)
	})
	return httptest.NewServer(mux)
}

func testPipeline(t *testing.T, url string) (*Pipeline, *bytes.Buffer) {
	t.Helper()
	stderr := &bytes.Buffer{}
	cfg := Configure().
		Name(path.Join(t.TempDir(), "show")).
		URL(url).
		Fetcher(fetcher.New(fetcher.Configure())).
		FFmpeg(concat.Configure().BinPath(nopBin(t)))
	cfg.stderr = stderr
	return New(cfg), stderr
}

func TestRunMediaPlaylist(t *testing.T) {
	srv := testServer(nil)
	defer srv.Close()

	p, stderr := testPipeline(t, srv.URL+"/index.m3u8")

	require.NoError(t, p.Run())
	assert.Empty(t, stderr.String())

	// intermediates are cleaned up after the concat attempt
	files, err := os.ReadDir(path.Dir(p.name))
	require.NoError(t, err)
	for _, f := range files {
		assert.NotContains(t, f.Name(), "-v1-a1.ts")
		assert.NotContains(t, f.Name(), "-segments.txt")
	}
}

func TestRunMasterPlaylistPicksVariant(t *testing.T) {
	srv := testServer(nil)
	defer srv.Close()

	p, _ := testPipeline(t, srv.URL+"/master.m3u8")

	var seen []m3u8.URLProperties
	p.pick = func(vs []m3u8.URLProperties) int {
		seen = vs
		return 1
	}

	require.NoError(t, p.Run())
	require.Len(t, seen, 2)
	assert.Equal(t, srv.URL+"/low.m3u8", seen[0].URL, "relative variant urls get rebased before picking")
	assert.Equal(t, "640x360", seen[0].Properties["RESOLUTION"])
}

func TestRunMasterPlaylistCancelled(t *testing.T) {
	var segmentHits int32
	srv := testServer(&segmentHits)
	defer srv.Close()

	p, _ := testPipeline(t, srv.URL+"/master.m3u8")
	p.pick = func(vs []m3u8.URLProperties) int { return -1 }

	require.NoError(t, p.Run())
	assert.EqualValues(t, 0, atomic.LoadInt32(&segmentHits), "cancelling must not download anything")
}

func TestRunNotM3U8(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>welcome</body></html>")
	}))
	defer srv.Close()

	p, stderr := testPipeline(t, srv.URL+"/index.html")

	err := p.Run()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotM3U8)
	assert.Equal(t, ExitNotM3U8, ExitCode(err))
	assert.Contains(t, stderr.String(), "Error: ")
}

func TestRunFfmpegMissing(t *testing.T) {
	srv := testServer(nil)
	defer srv.Close()

	p, _ := testPipeline(t, srv.URL+"/index.m3u8")
	p.ffmpeg = concat.Configure().BinPath("/nonexistent/ffmpeg")

	err := p.Run()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFfmpegMissing)
	assert.Equal(t, ExitNoFfmpeg, ExitCode(err))
}

func TestRunFailingSegmentsReported(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/index.m3u8", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, mediaPlaylist)
	})
	mux.HandleFunc("/seg/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><title>404 Not Found</title></html>")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p, stderr := testPipeline(t, srv.URL+"/index.m3u8")

	err := p.Run()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDownload)
	assert.Equal(t, ExitDownload, ExitCode(err))

	lines := strings.Split(strings.TrimRight(stderr.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	for _, l := range lines {
		assert.True(t, strings.HasPrefix(l, "Error: 404 Not Found while downloading "), l)
		assert.True(t, strings.HasSuffix(l, "!"), l)
	}
}

func TestRunEmptyPlaylist(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "#EXTM3U\n#EXT-X-ENDLIST\n")
	}))
	defer srv.Close()

	p, stderr := testPipeline(t, srv.URL+"/index.m3u8")

	err := p.Run()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDownload)
	assert.Contains(t, stderr.String(), "no segments")
}

func TestSegmentItems(t *testing.T) {
	p := New(Configure().Name("show").Fetcher(fetcher.New(fetcher.Configure())))

	urls := make([]m3u8.URLProperties, 12)
	for i := range urls {
		urls[i] = m3u8.URLProperties{URL: fmt.Sprintf("https://h/seg%d.ts", i)}
	}
	items := p.segmentItems(&m3u8.Playlist{URLs: urls})

	require.Len(t, items, 12)
	assert.Equal(t, "show-01-v1-a1.ts", items[0].Path)
	assert.Equal(t, "show-12-v1-a1.ts", items[11].Path)

	items = p.segmentItems(&m3u8.Playlist{URLs: urls[:9]})
	assert.Equal(t, "show-1-v1-a1.ts", items[0].Path)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitOK, ExitCode(nil))
	assert.Equal(t, ExitNoFfmpeg, ExitCode(errors.Wrap(ErrFfmpegMissing, "x")))
	assert.Equal(t, ExitFilesystem, ExitCode(errors.Wrap(ErrFilesystem, "x")))
	assert.Equal(t, ExitNotM3U8, ExitCode(errors.Wrap(ErrNotM3U8, "x")))
	assert.Equal(t, ExitDownload, ExitCode(errors.New("anything else")))
}
