package pasetox

import (
	"errors"
	"fmt"
)

// ErrorCode represents token and identity error categories.
type ErrorCode string

const (
	ErrCodeKeyFormat         ErrorCode = "key_format"
	ErrCodeMissingSigningKey ErrorCode = "missing_signing_key"
	ErrCodeTokenFormat       ErrorCode = "token_format"
	ErrCodeSignature         ErrorCode = "invalid_signature"
	ErrCodeClaimsFormat      ErrorCode = "claims_format"
	ErrCodeExpired           ErrorCode = "token_expired"

	ErrCodeInvalidIdentity     ErrorCode = "invalid_identity_token"
	ErrCodeIdentityExpired     ErrorCode = "identity_token_expired"
	ErrCodeInvalidIssuer       ErrorCode = "invalid_issuer"
	ErrCodeInvalidAudience     ErrorCode = "invalid_audience"
	ErrCodeSubjectNotAllowed   ErrorCode = "subject_not_allowed"
	ErrCodeIssuerNotRegistered ErrorCode = "issuer_not_registered"
	ErrCodeJWKSUnavailable     ErrorCode = "jwks_unavailable"
	ErrCodeExchangeFailed      ErrorCode = "exchange_failed"
	ErrCodeInternal            ErrorCode = "internal_error"
)

var errorMessages = map[ErrorCode]string{
	ErrCodeKeyFormat:         "Malformed key material",
	ErrCodeMissingSigningKey: "Signing key not available",
	ErrCodeTokenFormat:       "Malformed token",
	ErrCodeSignature:         "Invalid token signature",
	ErrCodeClaimsFormat:      "Malformed token claims",
	ErrCodeExpired:           "Token expired",

	ErrCodeInvalidIdentity:     "Invalid identity token",
	ErrCodeIdentityExpired:     "Identity token expired",
	ErrCodeInvalidIssuer:       "Invalid issuer",
	ErrCodeInvalidAudience:     "Invalid audience",
	ErrCodeSubjectNotAllowed:   "Subject not allowed",
	ErrCodeIssuerNotRegistered: "Issuer not registered",
	ErrCodeJWKSUnavailable:     "JWKS unavailable",
	ErrCodeExchangeFailed:      "Authorization code exchange failed",
	ErrCodeInternal:            "Internal error",
}

// Error wraps pasetox errors with a stable code and message.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	base := e.Message
	if base == "" {
		base = string(e.Code)
	}
	if e.Err == nil {
		return base
	}
	return fmt.Sprintf("%s: %v", base, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error carrying the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// CodeOf returns the code of the first *Error in err's chain, or an empty code.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

func newError(code ErrorCode, err error) error {
	msg, ok := errorMessages[code]
	if !ok {
		msg = string(code)
	}
	return &Error{Code: code, Message: msg, Err: err}
}
