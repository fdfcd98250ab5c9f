package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountSuspended indicates the account is suspended; a hard deny
	// for every protected action regardless of other grants.
	ErrAccountSuspended = errors.New("account suspended")
	// ErrTokenMissing occurs when no bearer token accompanies the request.
	ErrTokenMissing = errors.New("authorization token missing")
	// ErrTokenInvalid occurs when signature or expiry validation fails.
	ErrTokenInvalid = errors.New("authorization token invalid")
	// ErrUnauthorized indicates authentication was required but absent or bad.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden indicates an authenticated actor lacking the required grant.
	ErrForbidden = errors.New("forbidden")
	// ErrPermissionCheckFailed indicates an unexpected fault while resolving
	// permissions; surfaced as a server error, never as an allow.
	ErrPermissionCheckFailed = errors.New("permission check failed")
	// ErrRoleInUse indicates role deletion blocked by existing assignments.
	ErrRoleInUse = errors.New("role is assigned to one or more accounts")
	// ErrDuplicateEmail indicates the email is already registered.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrDuplicateRole indicates the role name is already taken.
	ErrDuplicateRole = errors.New("role name already taken")
)
