package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/drivewise/garage-ops/internal/calendar"
	"github.com/drivewise/garage-ops/internal/clock"
	"github.com/drivewise/garage-ops/internal/middleware"
	"github.com/drivewise/garage-ops/internal/models"
)

// CalendarHandler serves the weekly occupancy grid.
type CalendarHandler struct {
	reconciler *calendar.Reconciler
	clock      clock.Clock
}

// NewCalendarHandler creates a calendar handler.
func NewCalendarHandler(reconciler *calendar.Reconciler, clk clock.Clock) *CalendarHandler {
	return &CalendarHandler{reconciler: reconciler, clock: clk}
}

// Week handles GET /api/calendar?start=2006-01-02. Without a start
// parameter the week containing today is served, anchored on Monday.
func (h *CalendarHandler) Week(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		http.Error(w, "User context not found", http.StatusUnauthorized)
		return
	}

	start := r.URL.Query().Get("start")
	var weekStart time.Time
	if start == "" {
		weekStart = mondayOf(h.clock.Now())
	} else {
		parsed, err := time.Parse("2006-01-02", start)
		if err != nil {
			writeError(w, fmt.Errorf("%w: invalid start date %q", models.ErrValidation, start))
			return
		}
		weekStart = parsed
	}

	week, err := h.reconciler.BuildWeek(r.Context(), claims.OrgID, weekStart)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, week)
}

// mondayOf returns the Monday of t's week at midnight UTC.
func mondayOf(t time.Time) time.Time {
	t = t.UTC().Truncate(24 * time.Hour)
	offset := (int(t.Weekday()) + 6) % 7
	return t.AddDate(0, 0, -offset)
}
