package auth

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/welldanyogia/lyricsgate/internal/apperror"
	appctx "github.com/welldanyogia/lyricsgate/internal/context"
	"github.com/welldanyogia/lyricsgate/internal/repository"
	"github.com/welldanyogia/lyricsgate/internal/sanitizer"
	"github.com/welldanyogia/lyricsgate/internal/usage"
)

// Brute force protection defaults
const (
	MaxFailedAttempts   = 5
	FailedAttemptWindow = 15 * time.Minute
)

// MaxDisplayNameLength bounds the display name in characters
const MaxDisplayNameLength = 50

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// RegisterRequest represents the registration request payload
type RegisterRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

// LoginRequest represents the login request payload
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UserResponse is the public view of an account. It never carries the hash.
type UserResponse struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
	Role        string    `json:"role"`
	CreatedAt   time.Time `json:"createdAt"`
}

// AuthResponse represents the authentication response
type AuthResponse struct {
	Token      string       `json:"token"`
	TokenType  string       `json:"tokenType"`
	ExpiresAt  time.Time    `json:"expiresAt"`
	User       UserResponse `json:"user"`
	UsageCount int64        `json:"usageCount"`
}

// ProfileResponse is the caller's account with quota position
type ProfileResponse struct {
	User  UserResponse `json:"user"`
	Usage usage.Status `json:"usage"`
}

// UsageTracker is the part of the usage ledger the account flows need
type UsageTracker interface {
	Open(ctx context.Context, accountID uuid.UUID) error
	Status(ctx context.Context, accountID uuid.UUID) (usage.Status, error)
}

// AuthService handles registration, login and profile lookups
type AuthService struct {
	accountRepo       repository.AccountRepository
	attemptRepo       repository.LoginAttemptRepository
	usage             UsageTracker
	tokenService      *TokenService
	passwordValidator *PasswordValidator
	sanitizer         sanitizer.TextSanitizer
	logger            *zap.Logger
	maxAttempts       int
	attemptWindow     time.Duration
	now               func() time.Time
	dummyHash         string
}

// Option configures an AuthService
type Option func(*AuthService)

// WithLogger sets the service logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *AuthService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithLoginThrottle sets how many failures within window lock an email out
func WithLoginThrottle(maxAttempts int, window time.Duration) Option {
	return func(s *AuthService) {
		if maxAttempts > 0 && window > 0 {
			s.maxAttempts = maxAttempts
			s.attemptWindow = window
		}
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *AuthService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewAuthService creates a new AuthService instance
func NewAuthService(
	accountRepo repository.AccountRepository,
	attemptRepo repository.LoginAttemptRepository,
	usageTracker UsageTracker,
	tokenService *TokenService,
	passwordValidator *PasswordValidator,
	opts ...Option,
) (*AuthService, error) {
	s := &AuthService{
		accountRepo:       accountRepo,
		attemptRepo:       attemptRepo,
		usage:             usageTracker,
		tokenService:      tokenService,
		passwordValidator: passwordValidator,
		sanitizer:         sanitizer.NewTextSanitizer(),
		logger:            zap.NewNop(),
		maxAttempts:       MaxFailedAttempts,
		attemptWindow:     FailedAttemptWindow,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	// Unknown emails are compared against this hash so both login failure
	// paths pay the same bcrypt cost.
	dummy, err := passwordValidator.HashPassword(uuid.NewString())
	if err != nil {
		return nil, err
	}
	s.dummyHash = dummy

	return s, nil
}

// NormalizeEmail trims and lowercases an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsValidEmail checks an already normalized address against the accepted pattern
func IsValidEmail(email string) bool {
	return len(email) <= 254 && emailPattern.MatchString(email)
}

// Register creates a new standard account and returns a session token
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	var validationErrors []ValidationError

	email := NormalizeEmail(req.Email)
	if !IsValidEmail(email) {
		validationErrors = append(validationErrors, ValidationError{
			Field:   "email",
			Message: "Invalid email format",
		})
	}

	validationErrors = append(validationErrors, fromPasswordErrors(s.passwordValidator.ValidatePassword(req.Password))...)

	displayName := s.sanitizer.Sanitize(req.DisplayName)
	switch {
	case displayName == "":
		validationErrors = append(validationErrors, ValidationError{
			Field:   "displayName",
			Message: "Display name is required",
		})
	case utf8.RuneCountInString(displayName) > MaxDisplayNameLength:
		validationErrors = append(validationErrors, ValidationError{
			Field:   "displayName",
			Message: "Display name must be at most 50 characters",
		})
	}

	if len(validationErrors) > 0 {
		return nil, validationFailed(validationErrors)
	}

	exists, err := s.accountRepo.EmailExists(ctx, email)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	if exists {
		return nil, ErrEmailExists
	}

	passwordHash, err := s.passwordValidator.HashPassword(req.Password)
	if err != nil {
		return nil, apperror.Internal(err)
	}

	account := &repository.Account{
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: passwordHash,
		Role:         repository.RoleStandard,
	}
	if err := s.accountRepo.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrEmailAlreadyExists) {
			return nil, ErrEmailExists
		}
		return nil, apperror.Internal(err)
	}

	// The ledger is created lazily on first use if this fails.
	if err := s.usage.Open(ctx, account.ID); err != nil {
		s.logger.Warn("failed to create usage record at registration",
			zap.String("account_id", account.ID.String()),
			zap.Error(err),
		)
	}

	s.logger.Info("account registered", zap.String("account_id", account.ID.String()))

	return s.issue(account, 0)
}

// Login verifies credentials and returns a session token. Unknown emails and
// wrong passwords produce the same error after the same amount of hashing work.
func (s *AuthService) Login(ctx context.Context, req LoginRequest, ipAddress string) (*AuthResponse, error) {
	email := NormalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return nil, validationFailed([]ValidationError{{Field: "credentials", Message: "Email and password are required"}})
	}

	since := s.now().UTC().Add(-s.attemptWindow)
	failed, err := s.attemptRepo.CountFailedAttempts(ctx, email, since)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	if failed >= s.maxAttempts {
		s.logger.Warn("login throttled", zap.String("email", email), zap.String("ip", ipAddress))
		return nil, apperror.WithDetails(ErrTooManyAttempts, map[string]int{"retryAfterSeconds": int(s.attemptWindow.Seconds())})
	}

	account, err := s.accountRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			_, _ = s.passwordValidator.VerifyPassword(req.Password, s.dummyHash)
			s.recordFailure(ctx, email, ipAddress)
			return nil, ErrInvalidCredentials
		}
		return nil, apperror.Internal(err)
	}

	ok, err := s.passwordValidator.VerifyPassword(req.Password, account.PasswordHash)
	if err != nil {
		s.logger.Error("stored password hash is corrupt", zap.String("account_id", account.ID.String()), zap.Error(err))
		return nil, apperror.Internal(err)
	}
	if !ok {
		s.recordFailure(ctx, email, ipAddress)
		return nil, ErrInvalidCredentials
	}

	if err := s.attemptRepo.ClearFailedAttempts(ctx, email); err != nil {
		s.logger.Warn("failed to clear login attempts", zap.String("email", email), zap.Error(err))
	}

	status, err := s.usage.Status(ctx, account.ID)
	if err != nil {
		return nil, apperror.Internal(err)
	}

	return s.issue(account, status.Count)
}

func (s *AuthService) recordFailure(ctx context.Context, email, ipAddress string) {
	if err := s.attemptRepo.RecordFailedAttempt(ctx, email, ipAddress); err != nil {
		s.logger.Warn("failed to record login attempt", zap.String("email", email), zap.Error(err))
	}
}

func (s *AuthService) issue(account *repository.Account, usageCount int64) (*AuthResponse, error) {
	token, expiresAt, err := s.tokenService.GenerateToken(account.ID.String(), account.Email, string(account.Role))
	if err != nil {
		return nil, apperror.Internal(err)
	}

	return &AuthResponse{
		Token:      token,
		TokenType:  "Bearer",
		ExpiresAt:  expiresAt,
		User:       ToUserResponse(account),
		UsageCount: usageCount,
	}, nil
}

// GetProfile returns the account and its quota position
func (s *AuthService) GetProfile(ctx context.Context, userID string) (*ProfileResponse, error) {
	id, err := uuid.Parse(userID)
	if err != nil {
		return nil, ErrUserNotFound
	}

	account, err := s.accountRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, apperror.Internal(err)
	}

	status, err := s.usage.Status(ctx, account.ID)
	if err != nil {
		return nil, apperror.Internal(err)
	}

	return &ProfileResponse{User: ToUserResponse(account), Usage: status}, nil
}

// EnsureAdmin creates the administrator account, or promotes an existing
// account with that email. It is used to seed the first admin at startup.
func (s *AuthService) EnsureAdmin(ctx context.Context, email, password, displayName string) error {
	email = NormalizeEmail(email)
	if !IsValidEmail(email) {
		return errors.New("admin email is invalid")
	}

	account, err := s.accountRepo.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if account.Role == repository.RoleAdmin {
			return nil
		}
		s.logger.Info("promoting existing account to admin", zap.String("account_id", account.ID.String()))
		return s.accountRepo.UpdateRole(ctx, account.ID, repository.RoleAdmin)
	case !errors.Is(err, repository.ErrUserNotFound):
		return err
	}

	if errs := s.passwordValidator.ValidatePassword(password); len(errs) > 0 {
		return errors.New("admin password does not meet the password policy")
	}
	hash, err := s.passwordValidator.HashPassword(password)
	if err != nil {
		return err
	}

	admin := &repository.Account{
		Email:        email,
		DisplayName:  s.sanitizer.Sanitize(displayName),
		PasswordHash: hash,
		Role:         repository.RoleAdmin,
	}
	if admin.DisplayName == "" {
		admin.DisplayName = "Administrator"
	}
	if err := s.accountRepo.Create(ctx, admin); err != nil {
		return err
	}
	if err := s.usage.Open(ctx, admin.ID); err != nil {
		s.logger.Warn("failed to create usage record for admin", zap.Error(err))
	}

	s.logger.Info("admin account created", zap.String("account_id", admin.ID.String()))
	return nil
}

// LoginWindow is the lockout window of the login throttle
func (s *AuthService) LoginWindow() time.Duration {
	return s.attemptWindow
}

// Authorize checks that the caller holds the required role
func Authorize(identity appctx.Identity, required repository.Role) error {
	if identity.UserID == "" {
		return ErrAuthRequired
	}
	if repository.Role(identity.Role) != required {
		return ErrForbidden
	}
	return nil
}

// PruneLoginAttempts drops failed attempts that can no longer affect the throttle
func (s *AuthService) PruneLoginAttempts(ctx context.Context) (int64, error) {
	return s.attemptRepo.CleanupOldFailedAttempts(ctx, s.now().UTC().Add(-s.attemptWindow))
}

// ToUserResponse builds the public view of an account
func ToUserResponse(account *repository.Account) UserResponse {
	return UserResponse{
		ID:          account.ID.String(),
		Email:       account.Email,
		DisplayName: account.DisplayName,
		Role:        string(account.Role),
		CreatedAt:   account.CreatedAt,
	}
}
