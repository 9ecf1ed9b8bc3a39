package mid

import (
	"context"
	"net/http"
	"time"

	"github.com/ardanlabs/ledger/business/sys/metrics"
	"github.com/ardanlabs/ledger/business/web/errs"
	"github.com/ardanlabs/ledger/foundation/validate"
	"github.com/ardanlabs/ledger/foundation/web"
)

// Metrics updates program counters.
func Metrics() web.Middleware {

	// This is the actual middleware function to be executed.
	m := func(handler web.Handler) web.Handler {

		// Create the handler that will be attached in the middleware chain.
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			start := time.Now()

			// Call the next handler.
			err := handler(ctx, w, r)

			status := http.StatusOK
			path := r.URL.Path
			if v, verr := web.GetValues(ctx); verr == nil {
				if v.StatusCode != 0 {
					status = v.StatusCode
				}
				if v.Route != "" {
					path = v.Route
				}
			}

			// Errors are responded to further up the chain so the status
			// code is not yet known.
			if err != nil {
				status = errorStatus(err)
			}

			metrics.RecordRequest(r.Method, path, status, time.Since(start))

			// Increment the errors counter if an error occurred on this request.
			if err != nil {
				metrics.RecordError()
			}

			// Return the error so it can be handled further up the chain.
			return err
		}

		return h
	}

	return m
}

func errorStatus(err error) int {
	switch {
	case validate.IsFieldErrors(err):
		return http.StatusBadRequest
	case errs.IsTrusted(err):
		return errs.GetTrusted(err).Status
	}
	return http.StatusInternalServerError
}
