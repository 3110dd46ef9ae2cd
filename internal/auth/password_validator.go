package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

const (
	// MinPasswordLength is the minimum required password length in characters
	MinPasswordLength = 8
	// MaxPasswordBytes is the bcrypt input limit; longer inputs would be silently truncated
	MaxPasswordBytes = 72
	// BcryptCost is the cost factor for bcrypt hashing
	BcryptCost = 10
)

// ErrCorruptCredential is returned when a stored hash cannot be parsed
var ErrCorruptCredential = errors.New("stored credential is malformed")

// PasswordValidationError represents a specific password validation failure
type PasswordValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// PasswordValidator handles password validation and hashing
type PasswordValidator struct {
	cost int
}

// NewPasswordValidator creates a new PasswordValidator instance
func NewPasswordValidator() *PasswordValidator {
	return &PasswordValidator{cost: BcryptCost}
}

// newPasswordValidatorWithCost is used by tests to keep bcrypt fast
func newPasswordValidatorWithCost(cost int) *PasswordValidator {
	return &PasswordValidator{cost: cost}
}

// ValidatePassword checks the password policy: at least 8 characters and at
// most 72 bytes. There are no character class rules.
func (v *PasswordValidator) ValidatePassword(password string) []PasswordValidationError {
	return v.validateField("password", password)
}

func (v *PasswordValidator) validateField(field, password string) []PasswordValidationError {
	var errs []PasswordValidationError

	switch {
	case password == "":
		errs = append(errs, PasswordValidationError{
			Field:   field,
			Message: "Password is required",
		})
	case len([]rune(password)) < MinPasswordLength:
		errs = append(errs, PasswordValidationError{
			Field:   field,
			Message: "Password must be at least 8 characters long",
		})
	}

	if len(password) > MaxPasswordBytes {
		errs = append(errs, PasswordValidationError{
			Field:   field,
			Message: "Password must be at most 72 bytes long",
		})
	}

	return errs
}

// IsValidPassword returns true if the password meets all requirements
func (v *PasswordValidator) IsValidPassword(password string) bool {
	return len(v.ValidatePassword(password)) == 0
}

// HashPassword creates a bcrypt hash of the password. The result encodes its own salt and cost.
func (v *PasswordValidator) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), v.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword compares a password with its bcrypt hash. A mismatch is
// (false, nil); only an unparseable hash is an error.
func (v *PasswordValidator) VerifyPassword(password, hash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, errors.Join(ErrCorruptCredential, err)
	}
}

// GetBcryptCost extracts the cost factor from a bcrypt hash
func GetBcryptCost(hash string) (int, error) {
	return bcrypt.Cost([]byte(hash))
}
