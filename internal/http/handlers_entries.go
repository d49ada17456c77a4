package http

import (
	"errors"
	"fmt"
	"net/http"

	"bunchee/internal/auth"
	"bunchee/internal/core"
	"bunchee/internal/ledger"
	"bunchee/internal/log"
)

func (s *Server) handleCreateEntry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := r.ParseForm(); err != nil {
		ErrorResponse(http.StatusBadRequest, "invalid form").Write(w, r)
		return
	}
	user, _ := auth.UserFromContext(ctx)

	form := ParseEntryForm(r.PostForm)
	// New entries are always stamped with the current time.
	form.Date, form.Time = "", ""
	e, err := form.Entry(s.ledger.Location())
	if err != nil {
		NewResponse().Error(entryErrorMessage(err)).Redirect("/dashboard").Write(w, r)
		return
	}
	created, err := s.ledger.CreateEntry(ctx, user.UserID, e)
	if err != nil {
		s.writeLedgerError(w, r, err, msgNoEditRight, "/dashboard")
		return
	}
	log.FromContext(ctx).InfoContext(ctx, "Entry created",
		log.NewFields().WithOperation(log.OpCreate).WithEntry(created).ToSlice()...)
	NewResponse().Success(msgSaved).Redirect("/dashboard").Write(w, r)
}

type editData struct {
	pageData
	Entry core.Entry
}

func (s *Server) handleEditPage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := pathID(r)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	e, err := s.ledger.GetEntry(ctx, id)
	if errors.Is(err, ledger.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		log.FromContext(ctx).Failure(ctx, "Failed to load entry", err, log.FieldEntryID, id)
		ErrorResponse(http.StatusInternalServerError, "failed to load entry").Write(w, r)
		return
	}
	if !actorFrom(r).CanModify(e) {
		NewResponse().Error(msgNoEditRight).Redirect("/dashboard").Write(w, r)
		return
	}
	s.render(w, r, http.StatusOK, "edit.html", editData{
		pageData: s.page(w, r, "แก้ไขรายการ"),
		Entry:    e,
	})
}

func (s *Server) handleUpdateEntry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := pathID(r)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		ErrorResponse(http.StatusBadRequest, "invalid form").Write(w, r)
		return
	}
	back := fmt.Sprintf("/entries/%d/edit", id)

	e, err := ParseEntryForm(r.PostForm).Entry(s.ledger.Location())
	if err != nil {
		NewResponse().Error(entryErrorMessage(err)).Redirect(back).Write(w, r)
		return
	}
	e.ID = id
	updated, err := s.ledger.UpdateEntry(ctx, actorFrom(r), e)
	if err != nil {
		s.writeLedgerError(w, r, err, msgNoEditRight, back)
		return
	}
	log.FromContext(ctx).InfoContext(ctx, "Entry updated",
		log.NewFields().WithOperation(log.OpUpdate).WithEntry(updated).ToSlice()...)
	NewResponse().Success(msgUpdated).Redirect("/dashboard").Write(w, r)
}

func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := pathID(r)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if err := s.ledger.DeleteEntry(ctx, actorFrom(r), id); err != nil {
		s.writeLedgerError(w, r, err, msgNoDeleteRight, "/dashboard")
		return
	}
	log.FromContext(ctx).InfoContext(ctx, "Entry deleted",
		log.FieldOperation, log.OpDelete, log.FieldEntryID, id)
	NewResponse().Success(msgDeleted).Redirect("/dashboard").Write(w, r)
}

// handleDeleteAll removes the caller's own entries only.
func (s *Server) handleDeleteAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, _ := auth.UserFromContext(ctx)
	n, err := s.ledger.DeleteAllForUser(ctx, user.UserID)
	if err != nil {
		s.writeLedgerError(w, r, err, msgNoDeleteRight, "/dashboard")
		return
	}
	log.FromContext(ctx).InfoContext(ctx, "Deleted all entries of user",
		log.FieldOperation, log.OpDelete, "count", n)
	NewResponse().Success(msgDeletedAll).Redirect("/dashboard").Write(w, r)
}
