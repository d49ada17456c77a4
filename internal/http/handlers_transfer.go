package http

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"

	"bunchee/internal/auth"
	"bunchee/internal/log"
	"bunchee/internal/transfer"
)

const maxImportSize = 5 << 20

// handleExport downloads every entry, across users, oldest first.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.FromContext(ctx)

	entries, err := s.ledger.AllEntries(ctx)
	if err != nil {
		logger.Failure(ctx, "Failed to load entries for export", err, log.FieldOperation, log.OpExport)
		NewResponse().Error(msgExportFailed).Redirect("/dashboard").Write(w, r)
		return
	}
	var buf bytes.Buffer
	if err := transfer.Export(&buf, entries, s.ledger.Location()); err != nil {
		logger.Failure(ctx, "Failed to write CSV export", err, log.FieldOperation, log.OpExport)
		NewResponse().Error(msgExportFailed).Redirect("/dashboard").Write(w, r)
		return
	}

	logger.InfoContext(ctx, "Exported entries", log.FieldOperation, log.OpExport, "count", len(entries))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="entries.csv"`)
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// handleImport reads an uploaded CSV and attributes every row to the caller.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.FromContext(ctx)
	user, _ := auth.UserFromContext(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, maxImportSize)
	file, _, err := r.FormFile("file")
	if err != nil {
		NewResponse().Error(msgNoFile).Redirect("/dashboard").Write(w, r)
		return
	}
	defer file.Close()

	res, err := transfer.Import(file, s.ledger.Location(), s.ledger.Now())
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			ErrorResponse(http.StatusRequestEntityTooLarge, "file too large").Write(w, r)
			return
		}
		logger.WarnContext(ctx, "Rejected CSV import", log.FieldOperation, log.OpImport, log.FieldError, err)
		NewResponse().Error(msgBadCSV).Redirect("/dashboard").Write(w, r)
		return
	}
	for _, skipped := range res.Skipped {
		logger.DebugContext(ctx, "Skipped CSV row", "line", skipped.Line, log.FieldError, skipped.Err)
	}

	n, err := s.ledger.ImportEntries(ctx, user.UserID, res.Entries)
	if err != nil {
		logger.Failure(ctx, "CSV import failed", err, log.FieldOperation, log.OpImport, "saved", n)
		NewResponse().Error(msgSaveFailed).Redirect("/dashboard").Write(w, r)
		return
	}
	logger.InfoContext(ctx, "Imported entries",
		log.FieldOperation, log.OpImport, "count", n, "skipped", len(res.Skipped))

	msg := fmt.Sprintf(msgImported, n)
	if len(res.Skipped) > 0 {
		msg = fmt.Sprintf(msgImportSkipped, n, len(res.Skipped))
	}
	NewResponse().Success(msg).Redirect("/dashboard").Write(w, r)
}
