package fetcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mad-int/hlsget/progress"
)

const (
	// maxActiveTransfers bounds how many transfers run at once.
	maxActiveTransfers = 5
	// maxConsecutiveErrors trips the breaker and aborts the engine.
	maxConsecutiveErrors = 5

	renderInterval = 250 * time.Millisecond
)

const (
	outcomeSuccess = iota
	outcomeSetupError
	outcomeTransportError
	outcomeVerifyError
)

type outcome struct {
	kind int
	path string
	err  *Error
}

// FetchMany downloads every path/url pair with at most maxActiveTransfers
// transfers in flight. Per-transfer failures are accumulated, not fatal;
// maxConsecutiveErrors failures in a row abort the run early with whatever
// has been collected. Succeeded paths are in completion order, not
// submission order.
func (f *Fetcher) FetchMany(pathURLs []PathURL) Results {
	res := Results{}
	if len(pathURLs) == 0 {
		return res
	}

	meter := progress.NewMeter(len(pathURLs))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	jobs := make(chan int)
	outcomes := make(chan outcome, len(pathURLs))

	var wg sync.WaitGroup
	for w := 0; w < maxActiveTransfers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				outcomes <- f.transfer(ctx, i, pathURLs[i], meter)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i := range pathURLs {
			select {
			case jobs <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(renderInterval)
	defer ticker.Stop()

	consecutive := 0
	for done := 0; done < len(pathURLs); {
		select {
		case o := <-outcomes:
			done++
			switch o.kind {
			case outcomeSuccess:
				res.Succeeded = append(res.Succeeded, o.path)
				consecutive = 0
			case outcomeSetupError:
				res.Errors = append(res.Errors, *o.err)
			default:
				res.Errors = append(res.Errors, *o.err)
				consecutive++
			}
			if f.defaultMeter {
				meter.Print()
			}
			if consecutive >= maxConsecutiveErrors {
				logger.Errorw("too many consecutive failures, giving up",
					"errors", len(res.Errors), "succeeded", len(res.Succeeded))
				cancel()
				wg.Wait()
				return res
			}
		case <-ticker.C:
			if f.defaultMeter {
				meter.Print()
			}
		}
	}

	cancel()
	wg.Wait()
	return res
}

// transfer runs the full lifecycle of one download: meter registration,
// destination open, rate-capped streaming, close-then-verify.
func (f *Fetcher) transfer(ctx context.Context, id int, pu PathURL, meter *progress.Meter) outcome {
	if f.verbose {
		fmt.Printf("Try to download: %s\n", pu.URL)
	}

	rec := meter.Add(id, filepath.Base(pu.Path))

	file, err := os.Create(pu.Path)
	if err != nil {
		meter.Remove(id)
		return outcome{kind: outcomeSetupError, err: &Error{
			Message:  fmt.Sprintf("can't open file `%s' for writing: %v", pu.Path, err),
			URL:      pu.URL,
			Filename: pu.Path,
		}}
	}
	defer meter.Finish(id)

	terr := f.stream(ctx, pu.URL, file, rec.Update)
	// the destination must be closed before verification looks at it
	file.Close()

	if terr != nil {
		return outcome{kind: outcomeTransportError, err: &Error{
			Message:  terr.Error(),
			URL:      pu.URL,
			Filename: pu.Path,
		}}
	}

	if verr := verifyFile(pu.Path); verr != nil {
		return outcome{kind: outcomeVerifyError, err: &Error{
			Message:  verr.Error(),
			URL:      pu.URL,
			Filename: pu.Path,
		}}
	}

	return outcome{kind: outcomeSuccess, path: pu.Path}
}
