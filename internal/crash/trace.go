package crash

import (
	"net/http"
	"strings"

	"github.com/getsentry/sentry-go"

	"github.com/kuitang/gisportal/internal/obs"
)

// TraceMiddleware starts one transaction per request on a clone of the reporter hub.
// Whether it is kept is decided by TracesSampleRate. Requests to the tunnel
// are never traced: the reporter's own transport posts there, so a traced
// tunnel request would emit an envelope that comes straight back.
func (r *SentryReporter) TraceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if r.isTunnelRequest(req) {
			next.ServeHTTP(w, req)
			return
		}
		hub := r.hub.Clone()
		hub.Scope().SetRequest(req)
		ctx := sentry.SetHubOnContext(req.Context(), hub)

		tx := sentry.StartTransaction(ctx, req.Method+" "+req.URL.Path,
			sentry.WithOpName("http.server"),
			sentry.ContinueFromRequest(req),
			sentry.WithTransactionSource(sentry.SourceURL),
		)
		defer tx.Finish()

		wrapped, rec := obs.NewResponseRecorder(w)
		next.ServeHTTP(wrapped, req.WithContext(tx.Context()))
		tx.Status = sentry.HTTPtoSpanStatus(rec.StatusCode())
	})
}

func (r *SentryReporter) isTunnelRequest(req *http.Request) bool {
	return r.cfg.TunnelPath != "" && strings.HasPrefix(req.URL.Path, r.cfg.TunnelPath)
}
