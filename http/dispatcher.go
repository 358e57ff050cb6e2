package http

import (
	"context"
	"net/http"
	"net/url"

	"github.com/sagarc03/sluice"
)

// DefaultDirectoryRedirectStatus redirects a directory to its trailing-slash
// form.
const DefaultDirectoryRedirectStatus = http.StatusPermanentRedirect

const spaEntry = "/" + sluice.IndexFile

// StaticDispatcher serves files for static and spa modes.
//
// Directories are redirected to their trailing-slash form, missing files get
// a 404 (or /index.html in spa mode), and entries that are neither file nor
// directory get a 403.
type StaticDispatcher struct {
	mode                    sluice.ServerMode
	directoryRedirectStatus int
}

var _ sluice.Handler = (*StaticDispatcher)(nil)

func NewStaticDispatcher(mode sluice.ServerMode, directoryRedirectStatus int) *StaticDispatcher {
	if directoryRedirectStatus == 0 {
		directoryRedirectStatus = DefaultDirectoryRedirectStatus
	}
	return &StaticDispatcher{mode: mode, directoryRedirectStatus: directoryRedirectStatus}
}

func (s *StaticDispatcher) ServeConnection(ctx context.Context, rc *sluice.ReadableConnection, wc sluice.WritableConnection) {
	switch wc.SendFile(ctx, sluice.SendFileOptions{Pathname: rc.Pathname}) {
	case sluice.FailedDirectory:
		href := (&url.URL{Path: rc.Pathname + "/"}).EscapedPath() + rc.Search
		wc.SendHref(sluice.SendHrefOptions{Href: href, Status: s.directoryRedirectStatus})
	case sluice.FailedStatsNotFound:
		if s.mode == sluice.ModeSPA && rc.Pathname != spaEntry {
			if o := wc.SendFile(ctx, sluice.SendFileOptions{Pathname: spaEntry}); o == sluice.Success || o == sluice.FailedNoFurtherAction {
				return
			}
		}
		RespondError(wc, http.StatusNotFound, "Not Found")
	case sluice.FailedUnknownStats:
		RespondError(wc, http.StatusForbidden, "Forbidden")
	}
}
