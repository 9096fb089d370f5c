package authkit

import "errors"

var (
	// ErrUsernameTaken indicates a registration attempt for an existing username.
	ErrUsernameTaken = errors.New("auth.username_taken")
	// ErrEmailTaken indicates a registration attempt for an existing email.
	ErrEmailTaken = errors.New("auth.email_taken")
	// ErrInvalidCredentials covers both unknown users and password mismatches.
	ErrInvalidCredentials = errors.New("auth.invalid_credentials")
	// ErrUserNotFound indicates the authenticated user no longer exists.
	ErrUserNotFound = errors.New("auth.user_not_found")
	// ErrInvalidInput indicates blank or malformed flow input.
	ErrInvalidInput = errors.New("auth.invalid_input")

	// ErrRefreshTokenNotFound indicates no refresh token matched the provided value.
	ErrRefreshTokenNotFound = errors.New("refresh_store.not_found")
	// ErrRefreshTokenExpired indicates the refresh token has reached its expiry.
	ErrRefreshTokenExpired = errors.New("refresh_store.expired")
	// ErrRefreshRecordIncomplete indicates a save without a token hash or user id.
	ErrRefreshRecordIncomplete = errors.New("refresh_store.incomplete_record")

	// ErrMalformedToken indicates the token could not be decoded.
	ErrMalformedToken = errors.New("jwt.malformed")
	// ErrBadSignature indicates the signature does not match the key for the purpose.
	ErrBadSignature = errors.New("jwt.bad_signature")
	// ErrTokenExpired indicates the current time is at or after the token expiry.
	ErrTokenExpired = errors.New("jwt.expired")
	// ErrUnknownTokenPurpose indicates an unsupported purpose flag.
	ErrUnknownTokenPurpose = errors.New("jwt.unknown_purpose")

	// ErrUserAlreadyExists is returned by user stores on a uniqueness violation.
	ErrUserAlreadyExists = errors.New("user_store.already_exists")
	// ErrUserRecordNotFound is returned by user stores when no user matches.
	ErrUserRecordNotFound = errors.New("user_store.not_found")
)

// ErrorKind groups flow errors by how callers are expected to react.
type ErrorKind int

const (
	// ErrorKindNone is reported for a nil error.
	ErrorKindNone ErrorKind = iota
	// ErrorKindValidation errors are surfaced verbatim.
	ErrorKindValidation
	// ErrorKindAuthentication errors are surfaced as a generic denial.
	ErrorKindAuthentication
	// ErrorKindTokenLifecycle errors ask the caller to re-authenticate.
	ErrorKindTokenLifecycle
	// ErrorKindNotFound reports a missing user on an authenticated flow.
	ErrorKindNotFound
	// ErrorKindIntegrity covers store failures and anything unrecognized.
	ErrorKindIntegrity
)

func (kind ErrorKind) String() string {
	switch kind {
	case ErrorKindNone:
		return "none"
	case ErrorKindValidation:
		return "validation"
	case ErrorKindAuthentication:
		return "authentication"
	case ErrorKindTokenLifecycle:
		return "token_lifecycle"
	case ErrorKindNotFound:
		return "not_found"
	default:
		return "integrity"
	}
}

// ClassifyError maps an error returned by the auth flows onto its kind.
func ClassifyError(err error) ErrorKind {
	switch {
	case err == nil:
		return ErrorKindNone
	case errors.Is(err, ErrUsernameTaken), errors.Is(err, ErrEmailTaken), errors.Is(err, ErrInvalidInput):
		return ErrorKindValidation
	case errors.Is(err, ErrInvalidCredentials):
		return ErrorKindAuthentication
	case errors.Is(err, ErrRefreshTokenNotFound),
		errors.Is(err, ErrRefreshTokenExpired),
		errors.Is(err, ErrMalformedToken),
		errors.Is(err, ErrBadSignature),
		errors.Is(err, ErrTokenExpired):
		return ErrorKindTokenLifecycle
	case errors.Is(err, ErrUserNotFound):
		return ErrorKindNotFound
	default:
		return ErrorKindIntegrity
	}
}
