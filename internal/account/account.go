// Package account implements the authentication and profile flows: signup,
// login, logout, password reset, account details and the contact form.
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/thoughtnest/nestclient/internal/apiclient"
	"github.com/thoughtnest/nestclient/internal/apperr"
	"github.com/thoughtnest/nestclient/internal/session"
)

// User-facing messages.
const (
	MsgLoginFailed       = "Login failed. Please try again."
	MsgInvalidLogin      = "Invalid email or password. Please try again."
	MsgServerError       = "Server error. Please try again later."
	MsgSignupFailed      = "Signup failed. Please try again."
	MsgSignupInputs      = "Please check your inputs. All fields are required."
	MsgSignupExists      = "An account with this email already exists."
	MsgResetFailed       = "Password reset failed. Please try again."
	MsgResetDone         = "Password reset successful! Please login."
	MsgResetEmailSent    = "Password reset email sent!"
	MsgResetEmailFailed  = "Error sending reset request. Please try again."
	MsgAccountUpdated    = "Account updated successfully!"
	MsgUpdateFailed      = "Update failed."
	MsgEmailChanged      = "Email changed! Please log in again."
	MsgAccountLoadFailed = "User data could not be loaded."
	MsgContactFailed     = "Something went wrong. Please try again."
	MsgContactInvalid    = "Please fill in your name, a valid email and a message of at most 1000 characters."
)

// reloginPhrase in an update response means the server invalidated the token.
const reloginPhrase = "log in again"

// MaxContactMessage bounds the contact form message, in characters.
const MaxContactMessage = 1000

// Service runs the account flows against the backend and keeps the
// session store in step with them.
type Service struct {
	api    *apiclient.Client
	store  session.Store
	logger *slog.Logger
}

// New creates a Service.
func New(api *apiclient.Client, store session.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{api: api, store: store, logger: logger}
}

// SignupRequest is the registration form.
type SignupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate checks that every field is present and the email is well formed.
func (r SignupRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required),
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

// Identity is what the backend returns after signup or login.
type Identity struct {
	Token    string `json:"token"`
	Username string `json:"username"`
}

// Signup registers a user and stores the returned session. The visitor is
// marked as having visited, so later gated clicks go to the login page.
func (s *Service) Signup(ctx context.Context, req SignupRequest) (*Identity, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if err := req.Validate(); err != nil {
		return nil, apperr.Validation(MsgSignupInputs, err)
	}

	resp, err := s.api.Do(ctx, http.MethodPost, "/auth/signup", req)
	if err != nil {
		return nil, signupError(err)
	}
	var id Identity
	if err := resp.Decode(&id); err != nil || id.Token == "" {
		return nil, &apperr.Error{Kind: apperr.KindServer, Status: resp.Status, Message: MsgSignupFailed, Err: err}
	}
	if id.Username == "" {
		id.Username = req.Username
	}
	if err := s.store.Save(ctx, id.Token, id.Username); err != nil {
		return nil, fmt.Errorf("account: save session: %w", err)
	}
	if err := s.store.MarkVisited(ctx); err != nil {
		s.logger.Warn("failed to mark visitor", slog.String("error", err.Error()))
	}
	s.logger.Info("signed up", slog.String("username", id.Username))
	return &id, nil
}

// Login authenticates and stores the session. Any previous session is
// cleared first, so a failed login leaves the client logged out. The
// stored username is the token subject (the account email).
func (s *Service) Login(ctx context.Context, identifier, password string) (*Identity, error) {
	if err := s.store.Clear(ctx); err != nil {
		return nil, fmt.Errorf("account: clear session: %w", err)
	}
	err := validation.Errors{
		"identifier": validation.Validate(strings.TrimSpace(identifier), validation.Required),
		"password":   validation.Validate(password, validation.Required),
	}.Filter()
	if err != nil {
		return nil, apperr.Validation(MsgInvalidLogin, err)
	}

	resp, err := s.api.Do(ctx, http.MethodPost, "/auth/login", map[string]string{
		"identifier": strings.TrimSpace(identifier),
		"password":   password,
	})
	if err != nil {
		return nil, loginError(err)
	}
	var id Identity
	if err := resp.Decode(&id); err != nil || id.Token == "" {
		return nil, &apperr.Error{Kind: apperr.KindServer, Status: resp.Status, Message: MsgLoginFailed, Err: err}
	}

	subject, err := session.SubjectFromToken(id.Token)
	if err != nil {
		s.logger.Warn("login returned an undecodable token", slog.String("error", err.Error()))
		return nil, &apperr.Error{Kind: apperr.KindAuth, Status: resp.Status, Message: MsgLoginFailed, Err: err}
	}
	id.Username = subject
	if err := s.store.Save(ctx, id.Token, id.Username); err != nil {
		return nil, fmt.Errorf("account: save session: %w", err)
	}
	s.logger.Info("logged in", slog.String("user", subject))
	return &id, nil
}

// Logout clears the session and forgets the visitor.
func (s *Service) Logout(ctx context.Context) error {
	if err := s.store.Clear(ctx); err != nil {
		return fmt.Errorf("account: clear session: %w", err)
	}
	if err := s.store.ForgetVisit(ctx); err != nil {
		return fmt.Errorf("account: forget visit: %w", err)
	}
	return nil
}

// ForgotPassword asks the backend to email a reset link.
func (s *Service) ForgotPassword(ctx context.Context, email string) (string, error) {
	email = strings.TrimSpace(email)
	if err := validation.Validate(email, validation.Required, is.Email); err != nil {
		return "", apperr.Validation("Please enter a valid email address.", err)
	}
	resp, err := s.api.Do(ctx, http.MethodPost, "/auth/forgot-password", map[string]string{"email": email})
	if err != nil {
		return "", preferServer(err, MsgResetEmailFailed)
	}
	return orDefault(resp.Message, MsgResetEmailSent), nil
}

// ResetPassword sets a new password using the emailed reset token.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) (string, error) {
	err := validation.Errors{
		"token":       validation.Validate(token, validation.Required),
		"newPassword": validation.Validate(newPassword, validation.Required),
	}.Filter()
	if err != nil {
		return "", apperr.Validation(MsgResetFailed, err)
	}
	_, err = s.api.Do(ctx, http.MethodPost, "/auth/reset-password", map[string]string{
		"token":       token,
		"newPassword": newPassword,
	})
	if err != nil {
		return "", preferServer(err, MsgResetFailed)
	}
	return MsgResetDone, nil
}

// Details is the account summary.
type Details struct {
	Username       string `json:"username"`
	Email          string `json:"email"`
	ArticleCount   int    `json:"articleCount"`
	PublishedCount int    `json:"publishedCount"`
}

// Account fetches the current user's details.
func (s *Service) Account(ctx context.Context) (*Details, error) {
	if _, ok := s.store.Token(ctx); !ok {
		return nil, &apperr.Error{Kind: apperr.KindAuth, Message: apperr.MsgAuth, Err: apperr.ErrNoSession}
	}
	resp, err := s.api.Do(ctx, http.MethodGet, "/auth/account", nil)
	if err != nil {
		return nil, fmt.Errorf("account: details: %w", err)
	}
	var d Details
	if err := resp.Decode(&d); err != nil || (d.Username == "" && d.Email == "") {
		return nil, &apperr.Error{Kind: apperr.KindServer, Status: resp.Status, Message: MsgAccountLoadFailed, Err: err}
	}
	return &d, nil
}

// UpdateRequest changes the username and email.
type UpdateRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

func (r UpdateRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required),
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

// UpdateResult reports an account update. When ForceRelogin is set the
// session has already been cleared.
type UpdateResult struct {
	Details      *Details `json:"account,omitempty"`
	Message      string   `json:"message"`
	ForceRelogin bool     `json:"forceRelogin"`
}

// UpdateAccount patches the account. An email change invalidates the
// token server-side, which the backend announces in the message.
func (s *Service) UpdateAccount(ctx context.Context, req UpdateRequest) (*UpdateResult, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if err := req.Validate(); err != nil {
		return nil, apperr.Validation("Please enter a username and a valid email.", err)
	}
	resp, err := s.api.Do(ctx, http.MethodPatch, "/auth/account", req)
	if err != nil {
		return nil, preferServer(err, MsgUpdateFailed)
	}

	var d Details
	if err := resp.Decode(&d); err != nil || (d.Username == "" && d.Email == "") {
		return nil, &apperr.Error{Kind: apperr.KindServer, Status: resp.Status, Message: "Update succeeded but user data is missing.", Err: err}
	}
	if strings.Contains(resp.Message, reloginPhrase) {
		if err := s.store.Clear(ctx); err != nil {
			return nil, fmt.Errorf("account: clear session: %w", err)
		}
		s.logger.Info("account update requires a new login")
		return &UpdateResult{Details: &d, Message: MsgEmailChanged, ForceRelogin: true}, nil
	}
	return &UpdateResult{Details: &d, Message: MsgAccountUpdated}, nil
}

// ContactRequest is the contact form.
type ContactRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

func (r ContactRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required),
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Message, validation.Required, validation.RuneLength(1, MaxContactMessage)),
	)
}

// SendContact submits the contact form and returns the thank-you message.
func (s *Service) SendContact(ctx context.Context, req ContactRequest) (string, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	if err := req.Validate(); err != nil {
		return "", apperr.Validation(MsgContactInvalid, err)
	}
	if _, err := s.api.Do(ctx, http.MethodPost, "/contact", req); err != nil {
		return "", preferServer(err, MsgContactFailed)
	}
	return fmt.Sprintf("Thank you, %s! Your message has been sent.", req.Name), nil
}

func loginError(err error) error {
	e, ok := apperr.As(err)
	if !ok {
		return err
	}
	out := *e
	out.Err = err
	switch {
	case e.Kind == apperr.KindNetwork:
		out.Message = apperr.MsgNetwork
	case e.Status == http.StatusUnauthorized:
		out.Message = MsgInvalidLogin
	case e.Status >= http.StatusInternalServerError:
		out.Message = MsgServerError
	case e.Message == "" || e.Message == apperr.MsgGeneric || e.Message == apperr.MsgAuth:
		out.Message = MsgLoginFailed
	}
	return &out
}

func signupError(err error) error {
	e, ok := apperr.As(err)
	if !ok {
		return err
	}
	out := *e
	out.Err = err
	switch {
	case e.Kind == apperr.KindNetwork:
		out.Message = apperr.MsgNetwork
	case e.Status == http.StatusBadRequest:
		out.Kind = apperr.KindValidation
		out.Message = MsgSignupInputs
	case e.Status == http.StatusConflict:
		out.Message = MsgSignupExists
	case e.Status >= http.StatusInternalServerError:
		out.Message = MsgServerError
	case e.Message == "" || e.Message == apperr.MsgGeneric:
		out.Message = MsgSignupFailed
	}
	return &out
}

// preferServer keeps the server's message, replacing only the generic
// fallback with a flow-specific one.
func preferServer(err error, fallback string) error {
	e, ok := apperr.As(err)
	if !ok || e.Kind == apperr.KindNetwork || e.Kind == apperr.KindAuth {
		return err
	}
	if e.Message != "" && e.Message != apperr.MsgGeneric {
		return err
	}
	out := *e
	out.Message = fallback
	out.Err = err
	return &out
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

// IsForceRelogin reports whether err means the user has to log in again.
func IsForceRelogin(err error) bool {
	return errors.Is(err, apperr.ErrUnauthorized) || errors.Is(err, apperr.ErrNoSession)
}
