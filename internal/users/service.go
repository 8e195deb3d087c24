package users

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/bloomcart/bloomcart-backend/pkg/auth"
	"github.com/bloomcart/bloomcart-backend/pkg/config"
	"github.com/bloomcart/bloomcart-backend/pkg/db"
	"github.com/bloomcart/bloomcart-backend/pkg/db/models"
	"github.com/bloomcart/bloomcart-backend/pkg/enums"
	pkgerrors "github.com/bloomcart/bloomcart-backend/pkg/errors"
	"github.com/bloomcart/bloomcart-backend/pkg/logger"
	"github.com/bloomcart/bloomcart-backend/pkg/security"
)

const minPasswordLength = 8

type rateLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// RegisterInput carries a new customer registration.
type RegisterInput struct {
	Email    string
	Password string
	FullName string
	Phone    *string
	Address  *string
	ClientIP string
}

// LoginInput carries a credential check.
type LoginInput struct {
	Email    string
	Password string
	ClientIP string
}

// LoginResult is a successful authentication.
type LoginResult struct {
	User        *models.User
	AccessToken string
}

// UpdateProfileInput carries optional profile changes; nil means unchanged.
type UpdateProfileInput struct {
	FullName *string
	Phone    *string
	Address  *string
}

// Service owns registration, login and profile management.
type Service interface {
	Register(ctx context.Context, input RegisterInput) (*LoginResult, error)
	Login(ctx context.Context, input LoginInput) (*LoginResult, error)
	GetProfile(ctx context.Context, userID uuid.UUID) (*models.User, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, input UpdateProfileInput) (*models.User, error)
}

// ServiceParams collects the user service dependencies.
type ServiceParams struct {
	Repo        Repository
	RateLimiter rateLimiter
	Logger      *logger.Logger
	JWT         config.JWTConfig
	Password    config.PasswordConfig
	RateLimits  config.AuthRateLimitConfig
}

type serviceImpl struct {
	repo    Repository
	limiter rateLimiter
	logg    *logger.Logger
	jwt     config.JWTConfig
	pwCfg   config.PasswordConfig
	limits  config.AuthRateLimitConfig
}

// NewService wires the users service. The rate limiter may be nil; limits are
// then not enforced.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "users repo required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	if params.JWT.Secret == "" || params.JWT.Issuer == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "jwt config required")
	}
	return &serviceImpl{
		repo:    params.Repo,
		limiter: params.RateLimiter,
		logg:    params.Logger,
		jwt:     params.JWT,
		pwCfg:   params.Password,
		limits:  params.RateLimits,
	}, nil
}

// Register creates a customer account and logs it in.
func (s *serviceImpl) Register(ctx context.Context, input RegisterInput) (*LoginResult, error) {
	email := normalizeEmail(input.Email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "a valid email is required")
	}
	if len(input.Password) < minPasswordLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "password must be at least 8 characters")
	}
	if strings.TrimSpace(input.FullName) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "full name is required")
	}

	if err := s.allow(ctx, "register:email:"+email, int64(s.limits.RegisterEmailLimit), s.limits.RegisterWindow); err != nil {
		return nil, err
	}
	if err := s.allowIP(ctx, "register:ip:", input.ClientIP, int64(s.limits.RegisterIPLimit), s.limits.RegisterWindow); err != nil {
		return nil, err
	}

	hash, err := security.HashPassword(input.Password, s.pwCfg)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hashing password")
	}
	user := &models.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: hash,
		FullName:     strings.TrimSpace(input.FullName),
		Phone:        input.Phone,
		Address:      input.Address,
		Roles:        pq.StringArray{enums.RoleCustomer.String()},
		IsActive:     true,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "an account with this email already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating user")
	}

	s.logg.Info(s.logg.WithUserID(ctx, user.ID.String()), "user registered")
	return s.issue(ctx, user)
}

// Login verifies credentials and mints an access token.
func (s *serviceImpl) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	email := normalizeEmail(input.Email)
	if email == "" || input.Password == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email and password are required")
	}

	if err := s.allow(ctx, "login:email:"+email, int64(s.limits.LoginEmailLimit), s.limits.LoginWindow); err != nil {
		return nil, err
	}
	if err := s.allowIP(ctx, "login:ip:", input.ClientIP, int64(s.limits.LoginIPLimit), s.limits.LoginWindow); err != nil {
		return nil, err
	}

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading user")
	}
	if user == nil {
		// Same response as a wrong password; accounts are not enumerable.
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid email or password")
	}
	ok, err := security.VerifyPassword(input.Password, user.PasswordHash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verifying password")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid email or password")
	}
	if !user.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "account is disabled")
	}

	now := time.Now().UTC()
	if err := s.repo.TouchLastLogin(ctx, user.ID, now); err != nil {
		s.logg.Warn(ctx, "stamping last login failed: "+err.Error())
	}
	s.logg.Info(s.logg.WithUserID(ctx, user.ID.String()), "user logged in")
	return s.issue(ctx, user)
}

func (s *serviceImpl) GetProfile(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading user")
	}
	if user == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}
	return user, nil
}

func (s *serviceImpl) UpdateProfile(ctx context.Context, userID uuid.UUID, input UpdateProfileInput) (*models.User, error) {
	updates := map[string]any{}
	if input.FullName != nil {
		if strings.TrimSpace(*input.FullName) == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "full name cannot be empty")
		}
		updates["full_name"] = strings.TrimSpace(*input.FullName)
	}
	if input.Phone != nil {
		updates["phone"] = *input.Phone
	}
	if input.Address != nil {
		updates["address"] = *input.Address
	}
	if err := s.repo.UpdateProfile(ctx, userID, updates); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "updating profile")
	}
	return s.GetProfile(ctx, userID)
}

func (s *serviceImpl) issue(ctx context.Context, user *models.User) (*LoginResult, error) {
	token, err := auth.MintAccessToken(s.jwt, time.Now().UTC(), auth.AccessTokenPayload{
		UserID: user.ID,
		Email:  user.Email,
		Roles:  user.Roles,
		JTI:    uuid.NewString(),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "minting access token")
	}
	return &LoginResult{User: user, AccessToken: token}, nil
}

func (s *serviceImpl) allow(ctx context.Context, scope string, limit int64, window time.Duration) error {
	if s.limiter == nil || limit <= 0 || window <= 0 {
		return nil
	}
	ok, _, err := s.limiter.FixedWindowAllow(ctx, scope, limit, window)
	if err != nil {
		// A broken limiter must not lock everyone out.
		s.logg.Warn(ctx, "rate limit check failed: "+err.Error())
		return nil
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeRateLimit, "too many attempts, try again later")
	}
	return nil
}

func (s *serviceImpl) allowIP(ctx context.Context, prefix, ip string, limit int64, window time.Duration) error {
	if ip == "" {
		return nil
	}
	return s.allow(ctx, prefix+ip, limit, window)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
