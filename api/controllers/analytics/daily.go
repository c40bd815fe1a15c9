package analytics

import (
	"context"
	"net/http"
	"time"

	"github.com/saffronhouse/orders-backend/api/responses"
	"github.com/saffronhouse/orders-backend/api/validators"
	"github.com/saffronhouse/orders-backend/internal/analytics"
	pkgerrors "github.com/saffronhouse/orders-backend/pkg/errors"
	"github.com/saffronhouse/orders-backend/pkg/logger"
)

var timeNowUTC = func() time.Time {
	return time.Now().UTC()
}

type dailyReader interface {
	Daily(ctx context.Context, day string) (*analytics.DailyReport, error)
}

type dailyResponse struct {
	responses.Envelope
	Analytics *analytics.DailyReport `json:"analytics"`
}

// Daily returns the analytics row for ?date=YYYY-MM-DD, defaulting to the
// current business day. Days with no confirmed orders read as zeros.
func Daily(svc dailyReader, loc *time.Location, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "analytics service unavailable"))
			return
		}

		day, err := validators.ParseQueryDay(r, "date", timeNowUTC(), loc)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		report, err := svc.Daily(ctx, day)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, dailyResponse{Envelope: responses.OK(), Analytics: report})
	}
}
