package client

import (
	"context"
	"net/http"
	"net/url"

	goSession "github.com/moneysab/goSession"
)

// Back-office authentication endpoints.
const (
	PathSignIn                   = "/api/auth/sign-in"
	PathSignUp                   = "/api/auth/sign-up"
	PathRefresh                  = "/api/auth/refresh"
	PathSignOut                  = "/api/auth/sign-out"
	PathVerifyEmail              = "/api/auth/verify-email"
	PathRequestResetPassword     = "/api/auth/request-reset-password"
	PathResetPassword            = "/api/auth/reset-password"
	PathRequestVerificationEmail = "/api/auth/request-verification-email"
	PathMe                       = "/api/user/me"
	PathUpdateProfile            = "/api/user/update"
	PathChangePassword           = "/api/user/reset-password"
)

type tokenResponse struct {
	AccessToken string `json:"accessToken"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// AuthAPI implements goSession.AuthAPI over HTTP. Its Client must not use an
// Authorizer transport.
type AuthAPI struct {
	c *Client
}

var _ goSession.AuthAPI = (*AuthAPI)(nil)

// NewAuthAPI returns an AuthAPI backed by c.
func NewAuthAPI(c *Client) *AuthAPI {
	return &AuthAPI{c: c}
}

func (a *AuthAPI) SignIn(ctx context.Context, creds goSession.Credentials) (string, error) {
	var out tokenResponse
	err := a.c.send(ctx, call{op: "sign in", method: http.MethodPost, path: PathSignIn, body: creds, out: &out, noRetry: true})
	return out.AccessToken, err
}

func (a *AuthAPI) Refresh(ctx context.Context, currentToken string) (string, error) {
	var out tokenResponse
	err := a.c.send(ctx, call{
		op:      "refresh",
		method:  http.MethodPost,
		path:    PathRefresh,
		body:    refreshRequest{RefreshToken: currentToken},
		out:     &out,
		noRetry: true,
	})
	return out.AccessToken, err
}

func (a *AuthAPI) SignOut(ctx context.Context, token string) error {
	return a.c.send(ctx, call{
		op:     "sign out",
		method: http.MethodPost,
		path:   PathSignOut,
		body:   refreshRequest{RefreshToken: token},
		bearer: token,
	})
}

func (a *AuthAPI) Me(ctx context.Context, token string) (*goSession.User, error) {
	var u goSession.User
	if err := a.c.send(ctx, call{op: "profile", method: http.MethodGet, path: PathMe, out: &u, bearer: token}); err != nil {
		return nil, err
	}
	return &u, nil
}

func (a *AuthAPI) UpdateProfile(ctx context.Context, token string, update goSession.ProfileUpdate) (*goSession.User, error) {
	var u goSession.User
	err := a.c.send(ctx, call{op: "update profile", method: http.MethodPost, path: PathUpdateProfile, body: update, out: &u, bearer: token})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (a *AuthAPI) ChangePassword(ctx context.Context, token, oldPassword, newPassword string) error {
	body := struct {
		OldPassword string `json:"oldPassword"`
		NewPassword string `json:"newPassword"`
	}{oldPassword, newPassword}
	var discard []byte
	return a.c.send(ctx, call{op: "change password", method: http.MethodPost, path: PathChangePassword, body: body, bearer: token, rawOut: &discard})
}

func (a *AuthAPI) SignUp(ctx context.Context, reg goSession.Registration) (*goSession.RegistrationResult, error) {
	var out goSession.RegistrationResult
	if err := a.c.send(ctx, call{op: "sign up", method: http.MethodPost, path: PathSignUp, body: reg, out: &out, noRetry: true}); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *AuthAPI) VerifyEmail(ctx context.Context, email, otp string) (string, error) {
	body := struct {
		Email string `json:"email"`
		OTP   string `json:"otp"`
	}{email, otp}
	var out tokenResponse
	err := a.c.send(ctx, call{op: "verify email", method: http.MethodPost, path: PathVerifyEmail, body: body, out: &out, noRetry: true})
	return out.AccessToken, err
}

func (a *AuthAPI) RequestPasswordReset(ctx context.Context, email string) error {
	return a.c.send(ctx, call{
		op:     "request password reset",
		method: http.MethodPost,
		path:   PathRequestResetPassword,
		query:  url.Values{"email": {email}},
	})
}

// ResetPassword answers with plain text; the body is ignored.
func (a *AuthAPI) ResetPassword(ctx context.Context, resetToken, newPassword string) error {
	body := struct {
		Token       string `json:"token"`
		NewPassword string `json:"newPassword"`
	}{resetToken, newPassword}
	var discard []byte
	return a.c.send(ctx, call{op: "reset password", method: http.MethodPost, path: PathResetPassword, body: body, rawOut: &discard, noRetry: true})
}

func (a *AuthAPI) RequestVerificationEmail(ctx context.Context, email string) error {
	return a.c.send(ctx, call{
		op:     "request verification email",
		method: http.MethodPost,
		path:   PathRequestVerificationEmail,
		query:  url.Values{"email": {email}},
	})
}
