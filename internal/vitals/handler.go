package vitals

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/kuitang/gisportal/internal/errs"
	"github.com/kuitang/gisportal/internal/obs"
)

const maxReportBytes = 16 << 10

// Report is one web-vitals measurement sent by the browser.
type Report struct {
	Name   string  `json:"name"`
	Value  float64 `json:"value"`
	ID     string  `json:"id"`
	Rating string  `json:"rating"`
	Page   string  `json:"page,omitempty"`
}

var knownMetrics = map[string]bool{
	"CLS": true, "FCP": true, "FID": true, "INP": true, "LCP": true, "TTFB": true,
}

// Validate checks the measurement is one the browser script can send.
func (r Report) Validate() error {
	if !knownMetrics[r.Name] {
		return errs.New(errs.InvalidArgument, "unknown metric name")
	}
	if r.Value < 0 {
		return errs.New(errs.InvalidArgument, "metric value must not be negative")
	}
	switch r.Rating {
	case "", "good", "needs-improvement", "poor":
	default:
		return errs.New(errs.InvalidArgument, "unknown rating")
	}
	return nil
}

// Handler logs browser web-vitals reports.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxReportBytes))
		if err != nil {
			errs.WriteHTTP(w, errs.Wrap(errs.InvalidArgument, "report too large", err))
			return
		}

		var report Report
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&report); err != nil {
			errs.WriteHTTP(w, errs.Wrap(errs.InvalidArgument, "malformed report", err))
			return
		}
		if err := report.Validate(); err != nil {
			errs.WriteHTTP(w, err)
			return
		}

		obs.From(r.Context()).Info("web_vital",
			"pkg", "vitals",
			"name", report.Name,
			"value", report.Value,
			"id", report.ID,
			"rating", report.Rating,
			"page", report.Page,
		)
		w.WriteHeader(http.StatusNoContent)
	})
}
