package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/thoughtnest/nestclient/internal/account"
	"github.com/thoughtnest/nestclient/internal/guard"
	"github.com/thoughtnest/nestclient/internal/notify"
)

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type loginResponse struct {
	Redirect string `json:"redirect"`
	Username string `json:"username"`
}

// Login handles POST /login[?redirect=].
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	id, err := h.account.Login(r.Context(), req.Identifier, req.Password)
	if err != nil {
		h.fail(w, r, err, account.MsgLoginFailed)
		return
	}
	h.resetDashboard()
	writeJSON(w, http.StatusOK, loginResponse{
		Redirect: guard.RedirectTarget(r.URL.Query()),
		Username: id.Username,
	})
}

// Signup handles POST /signup[?redirect=].
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req account.SignupRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	id, err := h.account.Signup(r.Context(), req)
	if err != nil {
		h.fail(w, r, err, account.MsgSignupFailed)
		return
	}
	h.resetDashboard()
	writeJSON(w, http.StatusOK, loginResponse{
		Redirect: guard.RedirectTarget(r.URL.Query()),
		Username: id.Username,
	})
}

// Logout handles POST /logout.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.account.Logout(r.Context()); err != nil {
		h.fail(w, r, err, "Logout failed.")
		return
	}
	h.resetDashboard()
	writeJSON(w, http.StatusOK, redirectResponse{Redirect: guard.LoginPath})
}

type emailRequest struct {
	Email string `json:"email"`
}

// ForgotPassword handles POST /forgot-password.
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	msg, err := h.account.ForgotPassword(r.Context(), req.Email)
	if err != nil {
		h.fail(w, r, err, account.MsgResetEmailFailed)
		return
	}
	h.notifier.Notify(msg, notify.Success)
	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}

type resetRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

// ResetPassword handles POST /reset-password.
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Token == "" {
		req.Token = r.URL.Query().Get("token")
	}
	msg, err := h.account.ResetPassword(r.Context(), req.Token, req.NewPassword)
	if err != nil {
		h.fail(w, r, err, account.MsgResetFailed)
		return
	}
	h.notifier.Notify(msg, notify.Success)
	writeJSON(w, http.StatusOK, redirectResponse{Redirect: guard.LoginPath, Message: msg})
}

// Contact handles POST /contact.
func (h *Handler) Contact(w http.ResponseWriter, r *http.Request) {
	var req account.ContactRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	msg, err := h.account.SendContact(r.Context(), req)
	if err != nil {
		h.fail(w, r, err, account.MsgContactFailed)
		return
	}
	h.notifier.Notify(msg, notify.Success)
	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}

// HomeArticle handles GET /home/articles/{slug}: a click on gated content.
func (h *Handler) HomeArticle(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	path := "/articles/" + slug
	if !guard.IsLocalPath(path) || slug == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid article"))
		return
	}
	ctx := r.Context()
	redirect, mark := guard.ArticleGate(path, h.store.IsLoggedIn(ctx), h.store.VisitedBefore(ctx))
	if mark {
		if err := h.store.MarkVisited(ctx); err != nil {
			h.logger.Warn("failed to mark visitor")
		}
	}
	writeJSON(w, http.StatusOK, redirectResponse{Redirect: redirect})
}

// AccountDetails handles GET /account.
func (h *Handler) AccountDetails(w http.ResponseWriter, r *http.Request) {
	d, err := h.account.Account(r.Context())
	if err != nil {
		h.fail(w, r, err, account.MsgAccountLoadFailed)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// UpdateAccount handles PATCH /account.
func (h *Handler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	var req account.UpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.account.UpdateAccount(r.Context(), req)
	if err != nil {
		h.fail(w, r, err, account.MsgUpdateFailed)
		return
	}
	if res.ForceRelogin {
		h.resetDashboard()
		h.notifier.Notify(res.Message, notify.Info)
		writeJSON(w, http.StatusOK, struct {
			*account.UpdateResult
			Redirect string `json:"redirect"`
		}{res, guard.LoginPath})
		return
	}
	h.notifier.Notify(res.Message, notify.Success)
	writeJSON(w, http.StatusOK, res)
}
