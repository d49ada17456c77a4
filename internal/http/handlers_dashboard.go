package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"bunchee/internal/core"
	"bunchee/internal/dashboard"
	"bunchee/internal/ledger"
	"bunchee/internal/log"
	"bunchee/internal/services"
)

type dashboardData struct {
	pageData
	SummaryTitle string
	Summary      core.Summary
	Stats        core.MonthlyStats
	Kind         core.Kind
	Year         int
	Month        int
	Years        []int
	Query        string
	Entries      ledger.EntryPage
	Owners       map[int64]string
	actor        services.Actor
}

// CanModify tells the template whether to show edit and delete buttons.
func (d dashboardData) CanModify(e core.Entry) bool {
	return d.actor.CanModify(e)
}

// Owner returns the username of the entry's owner.
func (d dashboardData) Owner(e core.Entry) string {
	if name, ok := d.Owners[e.UserID]; ok {
		return name
	}
	return "-"
}

// handleDashboard renders the summary, the month controls and one page of
// the entry list. The chart itself is filled in by dashboard.js.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.FromContext(ctx)
	q := r.URL.Query()
	now := s.ledger.Now()
	year, month := lenientMonth(q, now)

	query := ledger.Query{Text: sanitizeInput(q.Get("q")), Page: parsePage(q.Get("page"))}
	entries, err := s.ledger.Search(ctx, query)
	if err != nil {
		logger.Failure(ctx, "Failed to list entries", err, log.FieldOperation, log.OpList)
		ErrorResponse(http.StatusInternalServerError, "failed to load entries").Write(w, r)
		return
	}
	summary, err := s.ledger.Summary(ctx)
	if err != nil {
		logger.Failure(ctx, "Failed to compute summary", err)
		ErrorResponse(http.StatusInternalServerError, "failed to load summary").Write(w, r)
		return
	}
	stats, err := s.ledger.MonthlyStats(ctx, year, month)
	if err != nil {
		logger.Failure(ctx, "Failed to compute monthly stats", err, log.FieldYear, year, log.FieldMonth, month)
		ErrorResponse(http.StatusInternalServerError, "failed to load monthly stats").Write(w, r)
		return
	}

	owners := make(map[int64]string)
	if users, err := s.users.ListUsers(ctx); err == nil {
		for _, u := range users {
			owners[u.ID] = u.Username
		}
	} else {
		logger.WarnContext(ctx, "Failed to list users for entry owners", log.FieldError, err)
	}

	years := make([]int, 0, 6)
	for y := now.Year() - 4; y <= now.Year()+1; y++ {
		years = append(years, y)
	}
	if year < years[0] || year > years[len(years)-1] {
		years = append([]int{year}, years...)
	}

	s.render(w, r, http.StatusOK, "dashboard.html", dashboardData{
		pageData:     s.page(w, r, "แดชบอร์ด"),
		SummaryTitle: fmt.Sprintf(dashboard.DefaultTitleFormat, fmt.Sprint(month), fmt.Sprint(year)),
		Summary:      summary,
		Stats:        stats,
		Kind:         core.ParseKind(q.Get("kind")),
		Year:         year,
		Month:        month,
		Years:        years,
		Query:        query.Text,
		Entries:      entries,
		Owners:       owners,
		actor:        actorFrom(r),
	})
}

// handleChartData returns the per-label totals for one kind and month.
// Missing month or year default to the current month; non-numeric values
// are rejected.
func (s *Server) handleChartData(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	year, month, err := parseMonthQuery(q, s.ledger.Now())
	if err != nil {
		JSONError(http.StatusBadRequest, err.Error()).Write(w, r)
		return
	}
	kind := core.Expense
	if strings.TrimSpace(q.Get("kind")) != "" {
		kind = core.ParseKind(q.Get("kind"))
	}

	data, err := s.ledger.ChartData(ctx, kind, year, month)
	if err != nil {
		log.FromContext(ctx).Failure(ctx, "Failed to build chart data", err,
			log.FieldKind, kind, log.FieldYear, year, log.FieldMonth, month)
		JSONError(http.StatusInternalServerError, "failed to load chart data").Write(w, r)
		return
	}
	NewResponse().Header("Cache-Control", "no-store").JSON(data).Write(w, r)
}

func (s *Server) handleMonthlyStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	year, month, err := parseMonthQuery(r.URL.Query(), s.ledger.Now())
	if err != nil {
		JSONError(http.StatusBadRequest, err.Error()).Write(w, r)
		return
	}
	stats, err := s.ledger.MonthlyStats(ctx, year, month)
	if err != nil {
		log.FromContext(ctx).Failure(ctx, "Failed to compute monthly stats", err,
			log.FieldYear, year, log.FieldMonth, month)
		JSONError(http.StatusInternalServerError, "failed to load monthly stats").Write(w, r)
		return
	}
	NewResponse().Header("Cache-Control", "no-store").JSON(stats).Write(w, r)
}

// writeLedgerError maps service errors of an entry form post to a flash
// message and redirect.
func (s *Server) writeLedgerError(w http.ResponseWriter, r *http.Request, err error, forbidden, back string) {
	ctx := r.Context()
	switch {
	case errors.Is(err, services.ErrForbidden):
		NewResponse().Error(forbidden).Redirect("/dashboard").Write(w, r)
	case errors.Is(err, ledger.ErrNotFound):
		NewResponse().Error(msgNotFound).Redirect("/dashboard").Write(w, r)
	case isValidationError(err):
		NewResponse().Error(entryErrorMessage(err)).Redirect(back).Write(w, r)
	default:
		log.FromContext(ctx).Failure(ctx, "Ledger operation failed", err, log.FieldPath, r.URL.Path)
		NewResponse().Error(msgSaveFailed).Redirect(back).Write(w, r)
	}
}
