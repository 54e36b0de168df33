package goSession

import (
	"context"
	"slices"
	"time"
)

// State is the authentication state of a Session.
type State int

const (
	// StateUnknown is the state before Init has run.
	StateUnknown State = iota
	// StateLoading is held while sign-in or the profile fetch is in flight.
	StateLoading
	// StateAuthenticated means a valid token and a loaded user profile.
	StateAuthenticated
	// StateUnauthenticated means no usable token.
	StateUnauthenticated
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateAuthenticated:
		return "authenticated"
	case StateUnauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// StateChange is delivered to subscribers on every transition.
type StateChange struct {
	From   State
	To     State
	Reason string
	At     time.Time
}

// User is the profile of the signed-in back-office user.
type User struct {
	ID            string `json:"id,omitempty"`
	Username      string `json:"username"`
	Email         string `json:"email"`
	FirstName     string `json:"firstName"`
	LastName      string `json:"lastName"`
	PhoneNumber   string `json:"phoneNumber,omitempty"`
	Timezone      string `json:"timezone,omitempty"`
	Locale        string `json:"locale,omitempty"`
	Role          string `json:"role,omitempty"`
	Status        string `json:"status,omitempty"`
	EmailVerified bool   `json:"emailVerified,omitempty"`
	CreatedAt     string `json:"createdAt,omitempty"`
	UpdatedAt     string `json:"updatedAt,omitempty"`
}

// Clone returns a copy of u.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

// Credentials is the sign-in request body.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Registration is the sign-up request body.
type Registration struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	Timezone    string `json:"timezone,omitempty"`
	Locale      string `json:"locale,omitempty"`
	RoleID      int    `json:"roleId"`
}

// RegistrationResult is the sign-up response body.
type RegistrationResult struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

// ProfileUpdate is the body of a profile update. Empty optional fields are
// left untouched by the server.
type ProfileUpdate struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	Timezone    string `json:"timezone,omitempty"`
	Locale      string `json:"locale,omitempty"`
	FirstName   string `json:"firstName,omitempty"`
	LastName    string `json:"lastName,omitempty"`
}

// AuthAPI is the authentication surface of the back-office API. Calls that act
// for the signed-in user take the token explicitly; implementations must not
// route them through a refreshing transport, since a refresh triggered from
// inside a refresh would wait on itself.
type AuthAPI interface {
	SignIn(ctx context.Context, creds Credentials) (accessToken string, err error)
	Refresh(ctx context.Context, currentToken string) (accessToken string, err error)
	SignOut(ctx context.Context, token string) error
	Me(ctx context.Context, token string) (*User, error)
	UpdateProfile(ctx context.Context, token string, update ProfileUpdate) (*User, error)
	ChangePassword(ctx context.Context, token, oldPassword, newPassword string) error

	SignUp(ctx context.Context, reg Registration) (*RegistrationResult, error)
	VerifyEmail(ctx context.Context, email, otp string) (accessToken string, err error)
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, resetToken, newPassword string) error
	RequestVerificationEmail(ctx context.Context, email string) error
}

// Route describes a protected destination for the authorization gate.
type Route struct {
	Path string
	// RequiredRoles passes when any one of them is held.
	RequiredRoles []string
	// RequiredPermission is a "resource:action" pair, e.g. "bank-list:edit".
	RequiredPermission string
}

// DenyReason explains a negative Decision.
type DenyReason string

const (
	DenyNone             DenyReason = ""
	DenyNoToken          DenyReason = "no_valid_token"
	DenyRefreshFailed    DenyReason = "refresh_failed"
	DenyNotAuthenticated DenyReason = "not_authenticated"
	DenyRole             DenyReason = "role_required"
	DenyPermission       DenyReason = "permission_required"
	DenyAuthenticated    DenyReason = "already_authenticated"
)

// Decision is the outcome of a gate check. RedirectTo is set whenever Allowed
// is false.
type Decision struct {
	Allowed    bool
	RedirectTo string
	Reason     DenyReason
}

func hasAnyRole(held, required []string) bool {
	for _, r := range required {
		if slices.Contains(held, r) {
			return true
		}
	}
	return false
}
