package http

import (
	"errors"
	"net/http"
	"strings"

	"bunchee/internal/auth"
	"bunchee/internal/core"
	"bunchee/internal/ledger"
	"bunchee/internal/log"
)

type adminData struct {
	pageData
	Users []core.User
}

// Protected reports whether u is the seeded admin account.
func (adminData) Protected(u core.User) bool {
	return u.Username == ledger.AdminUsername
}

func (s *Server) handleAdmin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	users, err := s.users.ListUsers(ctx)
	if err != nil {
		log.FromContext(ctx).Failure(ctx, "Failed to list users", err, log.FieldOperation, log.OpList)
		ErrorResponse(http.StatusInternalServerError, "failed to load users").Write(w, r)
		return
	}
	s.render(w, r, http.StatusOK, "admin.html", adminData{
		pageData: s.page(w, r, "ผู้ดูแลระบบ"),
		Users:    users,
	})
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.FromContext(ctx)
	if err := r.ParseForm(); err != nil {
		ErrorResponse(http.StatusBadRequest, "invalid form").Write(w, r)
		return
	}
	username := sanitizeInput(r.PostForm.Get("username"))
	password := r.PostForm.Get("password")
	if username == "" || password == "" {
		NewResponse().Error(msgNeedCredentials).Redirect("/admin").Write(w, r)
		return
	}

	u, err := s.auth.Register(ctx, s.users, username, password)
	switch {
	case errors.Is(err, ledger.ErrDuplicateUsername):
		NewResponse().Error(msgUserExists).Redirect("/admin").Write(w, r)
		return
	case isValidationError(err):
		NewResponse().Error(msgInvalidUsername).Redirect("/admin").Write(w, r)
		return
	case err != nil:
		logger.Failure(ctx, "Failed to create user", err, log.FieldUsername, username)
		NewResponse().Error(msgSaveFailed).Redirect("/admin").Write(w, r)
		return
	}
	if r.PostForm.Get("is_admin") != "" {
		u.IsAdmin = true
		if err := s.users.UpdateUser(ctx, u); err != nil {
			logger.Failure(ctx, "Failed to grant admin", err, log.FieldUserID, u.ID)
			NewResponse().Error(msgSaveFailed).Redirect("/admin").Write(w, r)
			return
		}
	}
	logger.InfoContext(ctx, "User created by admin",
		log.FieldUsername, u.Username, "target_user_id", u.ID, "is_admin", u.IsAdmin)
	NewResponse().Success(msgUserCreated).Redirect("/admin").Write(w, r)
}

// targetUser loads the {id} user and refuses the protected admin account
// with protectedMsg. It writes the response and returns false when the
// handler should stop.
func (s *Server) targetUser(w http.ResponseWriter, r *http.Request, protectedMsg string) (core.User, bool) {
	ctx := r.Context()
	id, err := pathID(r)
	if err != nil {
		http.NotFound(w, r)
		return core.User{}, false
	}
	u, err := s.users.GetUser(ctx, id)
	if errors.Is(err, ledger.ErrNotFound) {
		http.NotFound(w, r)
		return core.User{}, false
	}
	if err != nil {
		log.FromContext(ctx).Failure(ctx, "Failed to load user", err, "target_user_id", id)
		ErrorResponse(http.StatusInternalServerError, "failed to load user").Write(w, r)
		return core.User{}, false
	}
	if u.Username == ledger.AdminUsername {
		NewResponse().Error(protectedMsg).Redirect("/admin").Write(w, r)
		return core.User{}, false
	}
	return u, true
}

// handleDeleteUser removes the user and their entries. Entries go through
// the ledger service first so caches and the mirror follow.
func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.FromContext(ctx)
	u, ok := s.targetUser(w, r, msgProtectedDelete)
	if !ok {
		return
	}
	if _, err := s.ledger.DeleteAllForUser(ctx, u.ID); err != nil {
		logger.Failure(ctx, "Failed to delete entries of user", err, "target_user_id", u.ID)
		NewResponse().Error(msgSaveFailed).Redirect("/admin").Write(w, r)
		return
	}
	if err := s.users.DeleteUser(ctx, u.ID); err != nil {
		logger.Failure(ctx, "Failed to delete user", err, "target_user_id", u.ID)
		NewResponse().Error(msgSaveFailed).Redirect("/admin").Write(w, r)
		return
	}
	logger.InfoContext(ctx, "User deleted", log.FieldUsername, u.Username, "target_user_id", u.ID)
	NewResponse().Success(msgUserDeleted).Redirect("/admin").Write(w, r)
}

func (s *Server) handleToggleAdmin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	u, ok := s.targetUser(w, r, msgProtectedToggle)
	if !ok {
		return
	}
	u.IsAdmin = !u.IsAdmin
	if err := s.users.UpdateUser(ctx, u); err != nil {
		log.FromContext(ctx).Failure(ctx, "Failed to toggle admin", err, "target_user_id", u.ID)
		NewResponse().Error(msgSaveFailed).Redirect("/admin").Write(w, r)
		return
	}
	log.FromContext(ctx).InfoContext(ctx, "Admin flag changed",
		log.FieldUsername, u.Username, "target_user_id", u.ID, "is_admin", u.IsAdmin)
	NewResponse().Success(msgAdminToggled).Redirect("/admin").Write(w, r)
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := r.ParseForm(); err != nil {
		ErrorResponse(http.StatusBadRequest, "invalid form").Write(w, r)
		return
	}
	u, ok := s.targetUser(w, r, msgProtectedReset)
	if !ok {
		return
	}
	next := strings.TrimSpace(r.PostForm.Get("new_password"))
	if next == "" {
		NewResponse().Error(msgNeedNewPassword).Redirect("/admin").Write(w, r)
		return
	}
	if err := s.auth.ResetPassword(ctx, s.users, u.ID, next); err != nil {
		if errors.Is(err, auth.ErrProtectedUser) {
			NewResponse().Error(msgProtectedReset).Redirect("/admin").Write(w, r)
			return
		}
		log.FromContext(ctx).Failure(ctx, "Failed to reset password", err, "target_user_id", u.ID)
		NewResponse().Error(msgSaveFailed).Redirect("/admin").Write(w, r)
		return
	}
	log.FromContext(ctx).InfoContext(ctx, "Password reset by admin", log.FieldUsername, u.Username)
	NewResponse().Success(msgPasswordReset).Redirect("/admin").Write(w, r)
}

// handleChangePassword lets any signed-in user change their own password.
func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, _ := auth.UserFromContext(ctx)
	back := "/dashboard"
	if user.IsAdmin {
		back = "/admin"
	}
	if err := r.ParseForm(); err != nil {
		ErrorResponse(http.StatusBadRequest, "invalid form").Write(w, r)
		return
	}
	current := r.PostForm.Get("current_password")
	next := r.PostForm.Get("new_password")
	if current == "" || next == "" {
		NewResponse().Error(msgNeedPasswords).Redirect(back).Write(w, r)
		return
	}
	if err := s.auth.ChangePassword(ctx, s.users, user.UserID, current, next); err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			atomicAuthFailure(&s.metrics)
			NewResponse().Error(msgWrongPassword).Redirect(back).Write(w, r)
			return
		}
		log.FromContext(ctx).Failure(ctx, "Failed to change password", err)
		NewResponse().Error(msgSaveFailed).Redirect(back).Write(w, r)
		return
	}
	log.FromContext(ctx).InfoContext(ctx, "Password changed")
	NewResponse().Success(msgPasswordChanged).Redirect(back).Write(w, r)
}
