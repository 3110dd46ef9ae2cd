package auth

import (
	"github.com/welldanyogia/lyricsgate/internal/apperror"
)

// Auth service errors
var (
	ErrEmailExists        = apperror.New(apperror.KindConflict, apperror.CodeEmailExists, "An account with this email already exists")
	ErrInvalidCredentials = apperror.New(apperror.KindAuthentication, apperror.CodeInvalidCredentials, "Invalid email or password")
	ErrTooManyAttempts    = apperror.New(apperror.KindRateLimited, apperror.CodeTooManyAttempts, "Too many failed login attempts. Please try again later.")
	ErrUserNotFound       = apperror.New(apperror.KindNotFound, apperror.CodeUserNotFound, "User not found")
	ErrAuthRequired       = apperror.New(apperror.KindAuthentication, apperror.CodeAuthRequired, "Authentication required")
	ErrInvalidToken       = apperror.New(apperror.KindAuthentication, apperror.CodeInvalidToken, "Invalid or expired token")
	ErrForbidden          = apperror.New(apperror.KindAuthorization, apperror.CodeForbidden, "You do not have permission to access this resource")
	ErrResetTokenInvalid  = apperror.New(apperror.KindValidation, apperror.CodeResetTokenInvalid, "Invalid or expired reset token")
)

// ValidationError represents a validation error with field details
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// validationFailed folds field errors into a single client-facing validation error
func validationFailed(errs []ValidationError) error {
	details := make(map[string][]string)
	for _, ve := range errs {
		details[ve.Field] = append(details[ve.Field], ve.Message)
	}
	return apperror.Validation("Request validation failed", details)
}

func fromPasswordErrors(errs []PasswordValidationError) []ValidationError {
	out := make([]ValidationError, 0, len(errs))
	for _, e := range errs {
		out = append(out, ValidationError{Field: e.Field, Message: e.Message})
	}
	return out
}
