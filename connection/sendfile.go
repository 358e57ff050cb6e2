package connection

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"strconv"

	"github.com/sagarc03/sluice"
	"github.com/sagarc03/sluice/stream"
)

// SendFile streams the file at opts.Pathname, honouring a byte-range
// request. It opens no file handle unless the headers went out.
func (w *Writable) SendFile(ctx context.Context, opts sluice.SendFileOptions) sluice.Outcome {
	if w.fsys == nil {
		w.log.Warn("send file without a file system", "path", opts.Pathname)
		return sluice.FailedStatsNotFound
	}

	info, err := w.fsys.Stat(ctx, opts.Pathname)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			w.log.Debug("stat failed", "path", opts.Pathname, "err", err)
		}
		return sluice.FailedStatsNotFound
	}
	if info.IsDir() {
		return sluice.FailedDirectory
	}
	if !info.Mode().IsRegular() {
		w.log.Info("refusing to send non-regular file", "path", opts.Pathname, "mode", info.Mode().String())
		return sluice.FailedUnknownStats
	}

	policy := w.table.Lookup(opts.Pathname)
	h := http.Header{}
	h.Set("Content-Type", orDefault(opts.ContentType, policy.ContentType))
	h.Set("Cache-Control", orDefault(opts.CacheControl, policy.CacheControl))
	h.Set("X-Content-Type-Options", "nosniff")
	setCookie(h, opts.Cookie)

	size := info.Size()
	status := opts.Status
	var rng *sluice.ByteRange

	if br, ok := sluice.ParseRange(w.r.Header.Get("Range"), size, w.rangeWindow); ok {
		if br.Start > br.End {
			return w.unsatisfiable(h, size)
		}

		rng = &br
		if status == 0 {
			status = http.StatusPartialContent
		}
		h.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", br.Start, br.End, size))
		h.Set("Content-Length", strconv.FormatInt(br.Len(), 10))
		h.Set("Accept-Ranges", "bytes")
	} else {
		if status == 0 {
			status = http.StatusOK
		}
		h.Set("Content-Length", strconv.FormatInt(size, 10))
	}

	if !w.respond(status, h) {
		return sluice.FailedNoFurtherAction
	}

	if w.r.Method == http.MethodHead {
		return w.end()
	}

	src := stream.OpenFile(w.fsys, opts.Pathname, rng, stream.WithLogger(w.log))
	if o := stream.Pipe(ctx, src, w.d); o != sluice.Success {
		return sluice.FailedNoFurtherAction
	}
	return sluice.Success
}

func (w *Writable) unsatisfiable(h http.Header, size int64) sluice.Outcome {
	h.Del("Content-Type")
	h.Set("Content-Range", fmt.Sprintf("bytes */%d", size))

	if !w.respond(http.StatusRequestedRangeNotSatisfiable, h) {
		return sluice.FailedNoFurtherAction
	}
	return w.end()
}
