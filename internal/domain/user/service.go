// internal/domain/user/service.go
package user

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/your-org/meatshop-backend/internal/config"
	"github.com/your-org/meatshop-backend/internal/domain/throttle"
	"github.com/your-org/meatshop-backend/internal/pkg/apperr"
	"github.com/your-org/meatshop-backend/internal/pkg/auth"
	"github.com/your-org/meatshop-backend/internal/pkg/clock"
	"gorm.io/gorm"
)

// CartMerger moves a guest cart onto a user after login
type CartMerger interface {
	MergeGuestIntoUser(ctx context.Context, sessionID string, userID uint) error
}

// Service handles accounts and authentication
type Service struct {
	db              *gorm.DB
	config          *config.Config
	passwordManager *auth.PasswordManager
	jwtManager      *auth.JWTManager
	throttle        *throttle.LoginThrottle
	carts           CartMerger
	clock           clock.Clock
	logger          logrus.FieldLogger
}

// NewService creates a new user service
func NewService(db *gorm.DB, cfg *config.Config, limiter *throttle.LoginThrottle, carts CartMerger, clk clock.Clock, logger logrus.FieldLogger) *Service {
	return &Service{
		db:              db,
		config:          cfg,
		passwordManager: auth.NewPasswordManager(cfg),
		jwtManager:      auth.NewJWTManager(cfg),
		throttle:        limiter,
		carts:           carts,
		clock:           clk,
		logger:          logger,
	}
}

// RegisterRequest represents user registration data
type RegisterRequest struct {
	Email           string `json:"email" binding:"required,email"`
	Password        string `json:"password" binding:"required"`
	ConfirmPassword string `json:"confirm_password" binding:"required"`
	FirstName       string `json:"first_name" binding:"required"`
	LastName        string `json:"last_name" binding:"required"`
	Phone           string `json:"phone"`
	Address         string `json:"address"`
}

// LoginRequest represents user login data
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// UpdateProfileRequest carries the editable profile fields
type UpdateProfileRequest struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Phone     *string `json:"phone"`
	Address   *string `json:"address"`
}

// AuthResponse represents authentication response
type AuthResponse struct {
	User         *User  `json:"user"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Register creates a new customer account
func (s *Service) Register(ctx context.Context, req *RegisterRequest) (*AuthResponse, error) {
	if req.Password != req.ConfirmPassword {
		return nil, apperr.Invalid("confirm_password", "passwords do not match")
	}
	if err := auth.ValidatePassword(req.Password); err != nil {
		return nil, apperr.Invalid("password", err.Error())
	}

	email := normalizeEmail(req.Email)

	var count int64
	if err := s.db.WithContext(ctx).Model(&User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if count > 0 {
		return nil, fmt.Errorf("user with this email already exists: %w", apperr.ErrAlreadyExists)
	}

	hashedPassword, err := s.passwordManager.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := User{
		Email:     email,
		Password:  hashedPassword,
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Phone:     req.Phone,
		Address:   req.Address,
		IsActive:  true,
	}

	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.WithField("user_id", user.ID).Info("User registered")

	return s.issueTokens(&user)
}

// Login authenticates a user with lockout protection. On success the guest
// cart bound to sessionID, if any, is merged into the user's cart.
func (s *Service) Login(ctx context.Context, req *LoginRequest, sessionID string) (*AuthResponse, error) {
	key := s.throttle.Key(req.Email)
	log := s.logger.WithField("throttle_key", key)

	locked, err := s.throttle.TooManyAttempts(ctx, key)
	if err != nil {
		log.WithError(err).Warn("Login throttle unavailable, allowing attempt")
	} else if locked {
		return nil, s.rateLimited(ctx, key)
	}

	user, err := s.authenticate(ctx, req)
	if errors.Is(err, apperr.ErrInvalidCredentials) {
		return nil, s.recordFailure(ctx, key)
	}
	if err != nil {
		return nil, err
	}

	if err := s.throttle.Clear(ctx, key); err != nil {
		log.WithError(err).Warn("Failed to clear login throttle")
	}

	now := s.clock.Now()
	if err := s.db.WithContext(ctx).Model(user).UpdateColumn("last_login_at", now).Error; err != nil {
		log.WithError(err).Warn("Failed to update last login")
	}
	user.LastLoginAt = &now

	if sessionID != "" && s.carts != nil {
		if err := s.carts.MergeGuestIntoUser(ctx, sessionID, user.ID); err != nil {
			log.WithError(err).WithField("user_id", user.ID).Error("Failed to merge guest cart")
		}
	}

	return s.issueTokens(user)
}

func (s *Service) authenticate(ctx context.Context, req *LoginRequest) (*User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("email = ?", normalizeEmail(req.Email)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if err := s.passwordManager.VerifyPassword(req.Password, user.Password); err != nil {
		return nil, apperr.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, apperr.ErrInvalidCredentials
	}

	return &user, nil
}

// recordFailure counts a failed attempt and starts a lockout once the limit is reached
func (s *Service) recordFailure(ctx context.Context, key string) error {
	log := s.logger.WithField("throttle_key", key)

	attempts, err := s.throttle.Hit(ctx, key)
	if err != nil {
		log.WithError(err).Warn("Failed to record login attempt")
		return apperr.ErrInvalidCredentials
	}
	if attempts < s.throttle.MaxAttempts() {
		return apperr.ErrInvalidCredentials
	}

	lockout, err := s.throttle.Lockout(ctx, key)
	if err != nil {
		log.WithError(err).Warn("Failed to start login lockout")
		return apperr.ErrInvalidCredentials
	}

	log.WithFields(logrus.Fields{
		"lockout_count":   lockout.Count,
		"lockout_seconds": lockout.Seconds,
	}).Warn("Login locked out")

	return &apperr.RateLimitedError{RetryAfter: lockout.Seconds, LockoutCount: lockout.Count}
}

func (s *Service) rateLimited(ctx context.Context, key string) error {
	seconds, err := s.throttle.AvailableIn(ctx, key)
	if err != nil || seconds < 1 {
		seconds = 1
	}
	count, _ := s.throttle.LockoutCount(ctx, key)
	return &apperr.RateLimitedError{RetryAfter: seconds, LockoutCount: count}
}

// RefreshToken exchanges a refresh token for a new token pair
func (s *Service) RefreshToken(ctx context.Context, refreshToken string) (*AuthResponse, error) {
	claims, err := s.jwtManager.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, fmt.Errorf("invalid refresh token: %w", apperr.ErrUnauthorized)
	}

	var user User
	if err := s.db.WithContext(ctx).First(&user, claims.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user no longer exists: %w", apperr.ErrUnauthorized)
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if !user.IsActive {
		return nil, fmt.Errorf("account is deactivated: %w", apperr.ErrUnauthorized)
	}

	return s.issueTokens(&user)
}

// GetProfile retrieves a user's profile
func (s *Service) GetProfile(ctx context.Context, userID uint) (*User, error) {
	var user User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("user", userID)
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return &user, nil
}

// UpdateProfile changes the contact details used at checkout
func (s *Service) UpdateProfile(ctx context.Context, userID uint, req *UpdateProfileRequest) (*User, error) {
	user, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if req.FirstName != nil {
		updates["first_name"] = strings.TrimSpace(*req.FirstName)
	}
	if req.LastName != nil {
		updates["last_name"] = strings.TrimSpace(*req.LastName)
	}
	if req.Phone != nil {
		updates["phone"] = *req.Phone
	}
	if req.Address != nil {
		updates["address"] = *req.Address
	}
	if len(updates) == 0 {
		return user, nil
	}

	if err := s.db.WithContext(ctx).Model(user).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return s.GetProfile(ctx, userID)
}

// ChangePassword replaces the password after checking the current one
func (s *Service) ChangePassword(ctx context.Context, userID uint, currentPassword, newPassword string) error {
	user, err := s.GetProfile(ctx, userID)
	if err != nil {
		return err
	}

	if err := s.passwordManager.VerifyPassword(currentPassword, user.Password); err != nil {
		return apperr.Invalid("current_password", "current password is incorrect")
	}
	if err := auth.ValidatePassword(newPassword); err != nil {
		return apperr.Invalid("new_password", err.Error())
	}

	hashed, err := s.passwordManager.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.db.WithContext(ctx).Model(user).Update("password", hashed).Error; err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return nil
}

func (s *Service) issueTokens(user *User) (*AuthResponse, error) {
	pair, err := s.jwtManager.GenerateTokenPair(user.ID, user.Email, user.IsAdmin)
	if err != nil {
		return nil, err
	}
	return &AuthResponse{
		User:         user,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
