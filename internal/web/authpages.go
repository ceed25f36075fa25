package web

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/mediflow/frontdesk/internal/form"
	"github.com/mediflow/frontdesk/internal/platform/auth"
	"github.com/mediflow/frontdesk/internal/session"
)

type authView struct {
	Mode      string
	Redirect  string
	Action    string
	Email     string
	Name      string
	Errors    form.Errors
	WidgetURL string
	ClientID  string
	CanSignup bool
	// View is "login" or "signup" for the hosted widget.
	View string
}

func (s *Server) authView(c echo.Context, view string) authView {
	_, canSignup := s.identity.(auth.Registrar)
	action := "/" + view
	redirect := c.QueryParam("redirect")
	if redirect != "" {
		action += "?redirect=" + redirect
	}
	return authView{
		Mode:      s.identity.Mode(),
		Redirect:  redirect,
		Action:    action,
		WidgetURL: s.widgetURL,
		ClientID:  s.clientID,
		CanSignup: canSignup || s.identity.Mode() == auth.ModeExternal,
		View:      view,
	}
}

// stayOrLeave sends a signed-in browser away from a sign-in page.
func (s *Server) stayOrLeave(c echo.Context) (bool, error) {
	sess := session.FromContext(c)
	if sess == nil || !sess.Authenticated() {
		return false, nil
	}
	target := auth.ResolveRedirect(c.Request().URL.RequestURI(), true)
	return true, c.Redirect(http.StatusFound, safeRedirect(target))
}

func (s *Server) LoginPage(c echo.Context) error {
	if left, err := s.stayOrLeave(c); left {
		return err
	}
	return s.render(c, http.StatusOK, "login.html", Page{Title: "Sign in", Bare: true, Data: s.authView(c, "login")})
}

// Login verifies a submitted credential. In development mode any submission
// signs in the development user.
func (s *Server) Login(c echo.Context) error {
	cred := auth.Credential{
		Email:    strings.TrimSpace(c.FormValue("email")),
		Password: c.FormValue("password"),
		IDToken:  c.FormValue("id_token"),
	}
	u, err := s.identity.Verify(c.Request().Context(), cred)
	if err != nil {
		view := s.authView(c, "login")
		view.Email = cred.Email
		msg := "Invalid email or password"
		if !errors.Is(err, auth.ErrInvalidCredentials) {
			s.logger.Error().Err(err).Msg("sign-in failed")
			msg = "Sign in failed. Please try again."
		}
		view.Errors = form.Errors{"form": msg}
		if t := session.Toasts(c); t != nil {
			t.Error(msg)
		}
		return s.render(c, http.StatusUnauthorized, "login.html", Page{Title: "Sign in", Bare: true, Data: view})
	}
	return s.signIn(c, u)
}

func (s *Server) SignupPage(c echo.Context) error {
	if left, err := s.stayOrLeave(c); left {
		return err
	}
	view := s.authView(c, "signup")
	if !view.CanSignup {
		return c.Redirect(http.StatusFound, "/login")
	}
	return s.render(c, http.StatusOK, "signup.html", Page{Title: "Create account", Bare: true, Data: view})
}

func (s *Server) Signup(c echo.Context) error {
	reg, ok := s.identity.(auth.Registrar)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "sign up is not available")
	}
	cred := auth.Credential{
		Email:    strings.TrimSpace(c.FormValue("email")),
		Password: c.FormValue("password"),
		Name:     strings.TrimSpace(c.FormValue("name")),
	}
	view := s.authView(c, "signup")
	view.Email, view.Name = cred.Email, cred.Name

	if cred.Password != c.FormValue("confirm") {
		view.Errors = form.Errors{"confirm": "Passwords do not match"}
		return s.render(c, http.StatusUnprocessableEntity, "signup.html", Page{Title: "Create account", Bare: true, Data: view})
	}
	u, err := reg.Register(c.Request().Context(), cred)
	if err != nil {
		code := http.StatusUnprocessableEntity
		if errors.Is(err, auth.ErrAccountExists) {
			code = http.StatusConflict
		}
		view.Errors = form.Errors{"form": err.Error()}
		return s.render(c, code, "signup.html", Page{Title: "Create account", Bare: true, Data: view})
	}
	return s.signIn(c, u)
}

// Callback receives the identity token posted by the hosted widget.
func (s *Server) Callback(c echo.Context) error {
	if msg := c.QueryParam("error"); msg != "" {
		return c.Redirect(http.StatusFound, auth.ErrorURL(msg))
	}
	token := c.FormValue("id_token")
	if token == "" {
		token = c.FormValue("credential")
	}
	u, err := s.identity.Verify(c.Request().Context(), auth.Credential{IDToken: token})
	if err != nil {
		s.logger.Warn().Err(err).Msg("identity callback rejected")
		return c.Redirect(http.StatusFound, auth.ErrorURL("Authentication failed"))
	}
	return s.signIn(c, u)
}

// signIn binds u to a fresh session id and leaves for the page the sign-in
// was started from.
func (s *Server) signIn(c echo.Context, u *auth.User) error {
	sess := session.FromContext(c)
	if sess == nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "no session")
	}
	s.sessions.Renew(c, sess)
	s.sessions.OnSessionChange(sess, u)
	s.logger.Info().Str("user_id", u.ID).Str("provider", u.Provider).Msg("signed in")

	target := auth.ResolveRedirect(c.Request().URL.RequestURI(), true)
	return c.Redirect(http.StatusSeeOther, safeRedirect(target))
}

func (s *Server) ErrorPage(c echo.Context) error {
	msg := c.QueryParam("message")
	if msg == "" {
		msg = "Authentication failed"
	}
	return s.render(c, http.StatusOK, "autherror.html", Page{Title: "Authentication error", Bare: true, Data: msg})
}

// Logout signs the user out, clears both lists and returns to the login
// page with a toast.
func (s *Server) Logout(c echo.Context) error {
	sess := session.FromContext(c)
	if sess == nil || !sess.Authenticated() {
		return c.Redirect(http.StatusSeeOther, "/login")
	}
	if err := s.identity.Logout(c.Request().Context(), sess.User()); err != nil {
		s.logger.Error().Err(err).Msg("logout failed")
		sess.Toasts.Error("Logout failed. Please try again.")
		return c.Redirect(http.StatusSeeOther, backTo(c, auth.DefaultLanding))
	}
	s.sessions.OnSessionChange(sess, nil)
	s.sessions.Renew(c, sess)
	sess.Toasts.Success("Logged out successfully")
	return c.Redirect(http.StatusSeeOther, "/login")
}

type sessionInfo struct {
	Authenticated bool       `json:"authenticated"`
	User          *auth.User `json:"user,omitempty"`
	Mode          string     `json:"mode"`
	Theme         string     `json:"theme"`
	PendingToasts int        `json:"pending_toasts"`
}

// SessionInfo reports who is signed in.
func (s *Server) SessionInfo(c echo.Context) error {
	sess := session.FromContext(c)
	info := sessionInfo{Mode: s.identity.Mode(), Theme: ThemeFor(c)}
	if sess != nil {
		info.User = sess.User()
		info.Authenticated = info.User != nil
		info.PendingToasts = sess.Toasts.Len()
	}
	return c.JSON(http.StatusOK, info)
}
