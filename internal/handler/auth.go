package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/campus-events/internal/apperr"
	"github.com/iliyamo/campus-events/internal/middleware"
	"github.com/iliyamo/campus-events/internal/model"
	"github.com/iliyamo/campus-events/internal/service"
)

// AuthHandler serves the /auth endpoints.
type AuthHandler struct {
	svc        *service.AuthService
	production bool
}

func NewAuthHandler(svc *service.AuthService, production bool) *AuthHandler {
	return &AuthHandler{svc: svc, production: production}
}

// ----- DTOs -----

type registerReq struct {
	Username  string   `json:"username" validate:"required"`
	Email     string   `json:"email" validate:"required,email"`
	Password  string   `json:"password" validate:"required,min=6"`
	Fullname  string   `json:"fullname" validate:"required"`
	Interests []string `json:"interests" validate:"required,min=1,dive,required"`
}

// loginReq accepts the identifier as username or email.
type loginReq struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password" validate:"required"`
}

type googleReq struct {
	IDToken string `json:"idToken" validate:"required"`
}

type refreshReq struct {
	RefreshToken string `json:"refreshToken"`
}

type changePasswordReq struct {
	OldPassword string `json:"oldPassword" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=6"`
}

type updateAccountReq struct {
	Fullname string `json:"fullname" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
}

type interestsReq struct {
	Interests []string `json:"interests" validate:"required,min=1,dive,required"`
}

type roleReq struct {
	Role string `json:"role" validate:"required,oneof=student admin superadmin"`
}

type sessionResp struct {
	User         model.User `json:"user"`
	AccessToken  string     `json:"accessToken"`
	RefreshToken string     `json:"refreshToken"`
}

// ----- handlers -----

func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := bind(c, &req); err != nil {
		return err
	}
	sess, err := h.svc.Register(c.Request().Context(), service.RegisterInput{
		Username:  req.Username,
		Email:     req.Email,
		Password:  req.Password,
		Fullname:  req.Fullname,
		Interests: req.Interests,
	})
	if err != nil {
		return err
	}
	return h.writeSession(c, http.StatusCreated, "user registered successfully", sess)
}

func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := bind(c, &req); err != nil {
		return err
	}
	identifier := req.Username
	if identifier == "" {
		identifier = req.Email
	}
	if identifier == "" {
		return apperr.BadRequest("username or email is required")
	}
	sess, err := h.svc.Login(c.Request().Context(), identifier, req.Password)
	if err != nil {
		return err
	}
	return h.writeSession(c, http.StatusOK, "user logged in successfully", sess)
}

func (h *AuthHandler) GoogleLogin(c echo.Context) error {
	var req googleReq
	if err := bind(c, &req); err != nil {
		return err
	}
	sess, err := h.svc.GoogleLogin(c.Request().Context(), req.IDToken)
	if err != nil {
		return err
	}
	return h.writeSession(c, http.StatusOK, "user logged in with google", sess)
}

// Refresh takes the refresh token from its cookie, else from the body.
func (h *AuthHandler) Refresh(c echo.Context) error {
	raw := ""
	if ck, err := c.Cookie(middleware.RefreshCookie); err == nil {
		raw = ck.Value
	}
	if raw == "" {
		var req refreshReq
		if err := c.Bind(&req); err == nil {
			raw = req.RefreshToken
		}
	}
	if raw == "" {
		return apperr.Unauthorized("unauthorized request")
	}
	sess, err := h.svc.Refresh(c.Request().Context(), raw)
	if err != nil {
		return err
	}
	return h.writeSession(c, http.StatusOK, "access token refreshed", sess)
}

func (h *AuthHandler) Logout(c echo.Context) error {
	u, _ := middleware.CurrentUser(c)
	if err := h.svc.Logout(c.Request().Context(), u.ID); err != nil {
		return err
	}
	h.clearCookies(c)
	return respond(c, http.StatusOK, "user logged out", echo.Map{})
}

func (h *AuthHandler) Me(c echo.Context) error {
	u, _ := middleware.CurrentUser(c)
	return respond(c, http.StatusOK, "current user fetched", u)
}

func (h *AuthHandler) ChangePassword(c echo.Context) error {
	var req changePasswordReq
	if err := bind(c, &req); err != nil {
		return err
	}
	u, _ := middleware.CurrentUser(c)
	if err := h.svc.ChangePassword(c.Request().Context(), u.ID, req.OldPassword, req.NewPassword); err != nil {
		return err
	}
	return respond(c, http.StatusOK, "password changed successfully", echo.Map{})
}

func (h *AuthHandler) UpdateAccount(c echo.Context) error {
	var req updateAccountReq
	if err := bind(c, &req); err != nil {
		return err
	}
	u, _ := middleware.CurrentUser(c)
	updated, err := h.svc.UpdateAccount(c.Request().Context(), u.ID, req.Fullname, req.Email)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "account details updated", updated)
}

func (h *AuthHandler) UpdateInterests(c echo.Context) error {
	var req interestsReq
	if err := bind(c, &req); err != nil {
		return err
	}
	u, _ := middleware.CurrentUser(c)
	updated, err := h.svc.UpdateInterests(c.Request().Context(), u.ID, req.Interests)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "interests updated", updated)
}

func (h *AuthHandler) SearchUsers(c echo.Context) error {
	users, err := h.svc.SearchUsers(c.Request().Context(), c.QueryParam("username"))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "users fetched", users)
}

func (h *AuthHandler) UpdateRole(c echo.Context) error {
	var req roleReq
	if err := bind(c, &req); err != nil {
		return err
	}
	updated, err := h.svc.UpdateRole(c.Request().Context(), c.Param("id"), req.Role)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "role updated", updated)
}

// ----- cookies -----

func (h *AuthHandler) writeSession(c echo.Context, status int, message string, sess *service.Session) error {
	c.SetCookie(h.cookie(middleware.AccessCookie, sess.Access.Token, sess.Access.Exp))
	c.SetCookie(h.cookie(middleware.RefreshCookie, sess.Refresh.Raw, sess.Refresh.Exp))
	return respond(c, status, message, sessionResp{
		User:         sess.User,
		AccessToken:  sess.Access.Token,
		RefreshToken: sess.Refresh.Raw,
	})
}

func (h *AuthHandler) clearCookies(c echo.Context) {
	for _, name := range []string{middleware.AccessCookie, middleware.RefreshCookie} {
		ck := h.cookie(name, "", time.Unix(0, 0))
		ck.MaxAge = -1
		c.SetCookie(ck)
	}
}

// cookie builds an HttpOnly session cookie; Secure with SameSite=None in
// production, SameSite=Lax otherwise.
func (h *AuthHandler) cookie(name, value string, exp time.Time) *http.Cookie {
	ck := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  exp,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if h.production {
		ck.Secure = true
		ck.SameSite = http.SameSiteNoneMode
	}
	return ck
}
