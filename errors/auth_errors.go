package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// AuthError is the public failure shape returned to callers. It never carries
// internal causes such as storage errors.
type AuthError struct {
	Code      string       `json:"error"`
	Message   string       `json:"message"`
	Fields    []FieldError `json:"errors,omitempty"`
	Status    int          `json:"-"`
	Retryable bool         `json:"-"`
}

// FieldError describes one rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches any AuthError with the same code, so sentinels work with errors.Is.
func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	return ok && t.Code == e.Code
}

// Error codes
const (
	InvalidInput                = "invalid_input"
	InvalidChallenge            = "invalid_challenge"
	InvalidCredentials          = "invalid_credentials"
	AccountExists               = "account_exists"
	FederatedVerificationFailed = "federated_verification_failed"
	Unauthorized                = "unauthorized"
	ServiceUnavailable          = "service_unavailable"
	ServerError                 = "server_error"
)

var (
	ErrInvalidInput                = &AuthError{Code: InvalidInput, Message: "Invalid input", Status: http.StatusBadRequest}
	ErrInvalidChallenge            = &AuthError{Code: InvalidChallenge, Message: "Invalid captcha", Status: http.StatusBadRequest}
	ErrInvalidCredentials          = &AuthError{Code: InvalidCredentials, Message: "Invalid credentials", Status: http.StatusBadRequest}
	ErrAccountExists               = &AuthError{Code: AccountExists, Message: "User already exists", Status: http.StatusBadRequest}
	ErrFederatedVerificationFailed = &AuthError{Code: FederatedVerificationFailed, Message: "Authentication failed", Status: http.StatusUnauthorized}
	ErrUnauthorized                = &AuthError{Code: Unauthorized, Message: "Token is not valid", Status: http.StatusUnauthorized}
	ErrServiceUnavailable          = &AuthError{Code: ServiceUnavailable, Message: "Service temporarily unavailable, please retry", Status: http.StatusServiceUnavailable, Retryable: true}
	ErrServerError                 = &AuthError{Code: ServerError, Message: "Server error", Status: http.StatusInternalServerError}
)

// NewInvalidInput builds an invalid_input error listing the rejected fields.
func NewInvalidInput(fields ...FieldError) *AuthError {
	return &AuthError{
		Code:    InvalidInput,
		Message: "Invalid input",
		Fields:  fields,
		Status:  http.StatusBadRequest,
	}
}

// From maps any error to its public AuthError. Unclassified errors become server_error.
func From(err error) *AuthError {
	if err == nil {
		return nil
	}
	var authErr *AuthError
	if stderrors.As(err, &authErr) {
		return authErr
	}
	return ErrServerError
}

// IsClassified reports whether err is one of the public taxonomy errors other than server_error.
func IsClassified(err error) bool {
	var authErr *AuthError
	return stderrors.As(err, &authErr) && authErr.Code != ServerError
}
