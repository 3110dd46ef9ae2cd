package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/welldanyogia/lyricsgate/internal/apperror"
	"github.com/welldanyogia/lyricsgate/internal/notify"
	"github.com/welldanyogia/lyricsgate/internal/repository"
)

// DefaultResetTokenTTL is how long a reset link stays usable
const DefaultResetTokenTTL = time.Hour

const (
	resetSecretBytes   = 32
	resetDispatchLimit = 30 * time.Second
)

// ForgotPasswordAck is returned for every forgot-password request, whether or
// not the email belongs to an account.
const ForgotPasswordAck = "If an account exists for that email, a password reset link has been sent."

// ForgotPasswordRequest represents the forgot-password payload
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// VerifyResetRequest represents the reset token check payload
type VerifyResetRequest struct {
	Token string `json:"token"`
	Email string `json:"email"`
}

// ResetPasswordRequest represents the password reset payload
type ResetPasswordRequest struct {
	Token       string `json:"token"`
	Email       string `json:"email"`
	NewPassword string `json:"newPassword"`
}

// ResetServiceConfig configures a ResetService
type ResetServiceConfig struct {
	TokenTTL    time.Duration
	LinkBaseURL string
	Now         func() time.Time
}

// ResetService manages the password reset token lifecycle
type ResetService struct {
	accountRepo       repository.AccountRepository
	tokenRepo         repository.ResetTokenRepository
	passwordValidator *PasswordValidator
	notifier          notify.Notifier
	logger            *zap.Logger
	ttl               time.Duration
	linkBase          string
	now               func() time.Time
	wg                sync.WaitGroup
}

// NewResetService creates a new ResetService instance
func NewResetService(
	accountRepo repository.AccountRepository,
	tokenRepo repository.ResetTokenRepository,
	passwordValidator *PasswordValidator,
	notifier notify.Notifier,
	cfg ResetServiceConfig,
	logger *zap.Logger,
) *ResetService {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultResetTokenTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResetService{
		accountRepo:       accountRepo,
		tokenRepo:         tokenRepo,
		passwordValidator: passwordValidator,
		notifier:          notifier,
		logger:            logger,
		ttl:               cfg.TokenTTL,
		linkBase:          cfg.LinkBaseURL,
		now:               cfg.Now,
	}
}

// HashResetSecret returns the stored form of a reset secret
func HashResetSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

func generateResetSecret() (string, error) {
	b := make([]byte, resetSecretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// RequestReset issues a fresh reset token for the account owning email and
// dispatches the link. The caller always gets the same acknowledgement, and the
// lookup and dispatch run in the background so response timing does not reveal
// whether the email is registered.
func (s *ResetService) RequestReset(ctx context.Context, req ForgotPasswordRequest) (string, error) {
	email := NormalizeEmail(req.Email)
	if !IsValidEmail(email) {
		return "", validationFailed([]ValidationError{{Field: "email", Message: "Invalid email format"}})
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), resetDispatchLimit)
		defer cancel()
		s.issueAndSend(bg, email)
	}()

	return ForgotPasswordAck, nil
}

func (s *ResetService) issueAndSend(ctx context.Context, email string) {
	account, err := s.accountRepo.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, repository.ErrUserNotFound) {
			s.logger.Error("reset lookup failed", zap.Error(err))
		}
		return
	}

	secret, err := generateResetSecret()
	if err != nil {
		s.logger.Error("failed to generate reset secret", zap.Error(err))
		return
	}

	expiresAt := s.now().UTC().Add(s.ttl)
	if err := s.tokenRepo.Upsert(ctx, account.ID, HashResetSecret(secret), expiresAt); err != nil {
		s.logger.Error("failed to store reset token",
			zap.String("account_id", account.ID.String()),
			zap.Error(err),
		)
		return
	}

	if err := s.notifier.SendPasswordReset(ctx, account.Email, s.resetLink(secret, account.Email), expiresAt); err != nil {
		s.logger.Error("failed to send reset email",
			zap.String("account_id", account.ID.String()),
			zap.Error(err),
		)
	}
}

func (s *ResetService) resetLink(secret, email string) string {
	u, err := url.Parse(s.linkBase)
	if err != nil || s.linkBase == "" {
		u = &url.URL{Path: "/reset-password"}
	}
	q := u.Query()
	q.Set("token", secret)
	q.Set("email", email)
	u.RawQuery = q.Encode()
	return u.String()
}

// Wait blocks until every dispatched reset has finished
func (s *ResetService) Wait() {
	s.wg.Wait()
}

// lookup resolves secret and email to the stored token. Every failure returns
// ErrResetTokenInvalid; the specific reason only reaches the log.
func (s *ResetService) lookup(ctx context.Context, secret, email string) (*repository.Account, error) {
	email = NormalizeEmail(email)
	if secret == "" || email == "" {
		return nil, ErrResetTokenInvalid
	}

	account, err := s.accountRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			s.logger.Debug("reset token rejected", zap.String("reason", "unknown_email"))
			return nil, ErrResetTokenInvalid
		}
		return nil, apperror.Internal(err)
	}

	token, err := s.tokenRepo.GetByAccountID(ctx, account.ID)
	if err != nil {
		if errors.Is(err, repository.ErrResetTokenNotFound) {
			s.logger.Debug("reset token rejected", zap.String("reason", "no_token"))
			return nil, ErrResetTokenInvalid
		}
		return nil, apperror.Internal(err)
	}

	reason := ""
	switch {
	case subtle.ConstantTimeCompare([]byte(token.TokenHash), []byte(HashResetSecret(secret))) != 1:
		reason = "mismatch"
	case token.Used():
		reason = "used"
	case token.Expired(s.now()):
		reason = "expired"
	}
	if reason != "" {
		s.logger.Debug("reset token rejected",
			zap.String("account_id", account.ID.String()),
			zap.String("reason", reason),
		)
		return nil, ErrResetTokenInvalid
	}

	return account, nil
}

// VerifyResetToken reports whether secret is a live reset token for email
func (s *ResetService) VerifyResetToken(ctx context.Context, req VerifyResetRequest) (bool, error) {
	if _, err := s.lookup(ctx, req.Token, req.Email); err != nil {
		if errors.Is(err, ErrResetTokenInvalid) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ResetPassword replaces the account password and consumes the token. The
// consume is conditional on the token still being live, so of several
// concurrent calls with one token exactly one succeeds.
func (s *ResetService) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	if errs := s.passwordValidator.validateField("newPassword", req.NewPassword); len(errs) > 0 {
		return validationFailed(fromPasswordErrors(errs))
	}

	account, err := s.lookup(ctx, req.Token, req.Email)
	if err != nil {
		return err
	}

	hash, err := s.passwordValidator.HashPassword(req.NewPassword)
	if err != nil {
		return apperror.Internal(err)
	}

	err = s.tokenRepo.ConsumeAndUpdatePassword(ctx, account.ID, HashResetSecret(req.Token), hash, s.now().UTC())
	if err != nil {
		if errors.Is(err, repository.ErrResetTokenConsumed) {
			s.logger.Debug("reset token rejected",
				zap.String("account_id", account.ID.String()),
				zap.String("reason", "lost_consume_race"),
			)
			return ErrResetTokenInvalid
		}
		return apperror.Internal(err)
	}

	s.logger.Info("password reset completed", zap.String("account_id", account.ID.String()))
	return nil
}
