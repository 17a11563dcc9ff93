package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/ignite/notification-agent/internal/delivery"
)

// DateRange is a half-open UTC window [Start, End). Zero values are open.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// parseDateRange reads start_date and end_date (YYYY-MM-DD, inclusive).
// A missing start falls back to defaultStart.
func parseDateRange(r *http.Request, defaultStart time.Time) (DateRange, error) {
	q := r.URL.Query()
	rng := DateRange{Start: defaultStart}

	if v := q.Get("start_date"); v != "" {
		t, err := time.Parse(delivery.DayFormat, v)
		if err != nil {
			return DateRange{}, fmt.Errorf("start_date must be YYYY-MM-DD")
		}
		rng.Start = t
	}
	if v := q.Get("end_date"); v != "" {
		t, err := time.Parse(delivery.DayFormat, v)
		if err != nil {
			return DateRange{}, fmt.Errorf("end_date must be YYYY-MM-DD")
		}
		// end of day
		rng.End = t.AddDate(0, 0, 1)
	}
	if !rng.Start.IsZero() && !rng.End.IsZero() && !rng.End.After(rng.Start) {
		return DateRange{}, fmt.Errorf("end_date is before start_date")
	}
	return rng, nil
}
