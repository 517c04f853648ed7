package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/proprep-api/internal/dto"
)

const defaultTokenTTL = 24 * time.Hour

// CandidateRole is the role claim carried by issued tokens.
const CandidateRole = "candidate"

// ErrInvalidCredentials is returned when the email or password does not match.
var ErrInvalidCredentials = errors.New("invalid email or password")

// AuthConfig holds the demo account and token signing settings.
type AuthConfig struct {
	Secret       string
	DemoEmail    string
	DemoPassword string
	TokenTTL     time.Duration
}

// AuthService issues bearer tokens for the demo account.
type AuthService interface {
	Login(ctx context.Context, req dto.LoginRequest) (dto.LoginResponse, error)
}

type authService struct {
	cfg       AuthConfig
	validator *validator.Validate
	logger    zerolog.Logger
	now       func() time.Time
}

// NewAuthService builds the login service.
func NewAuthService(cfg AuthConfig, validate *validator.Validate, logger zerolog.Logger) AuthService {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = defaultTokenTTL
	}

	return &authService{
		cfg:       cfg,
		validator: validate,
		logger:    logger.With().Str("component", "auth_service").Logger(),
		now:       time.Now,
	}
}

func (s *authService) Login(_ context.Context, req dto.LoginRequest) (dto.LoginResponse, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := s.validator.Struct(req); err != nil {
		return dto.LoginResponse{}, err
	}

	emailOK := subtle.ConstantTimeCompare([]byte(req.Email), []byte(strings.ToLower(s.cfg.DemoEmail))) == 1
	passwordOK := subtle.ConstantTimeCompare([]byte(req.Password), []byte(s.cfg.DemoPassword)) == 1
	if !emailOK || !passwordOK {
		s.logger.Info().Str("email", req.Email).Msg("rejected login attempt")
		return dto.LoginResponse{}, ErrInvalidCredentials
	}

	issuedAt := s.now().UTC()
	expiresAt := issuedAt.Add(s.cfg.TokenTTL)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  req.Email,
		"role": CandidateRole,
		"iat":  issuedAt.Unix(),
		"exp":  expiresAt.Unix(),
	})

	signed, err := token.SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return dto.LoginResponse{}, fmt.Errorf("sign token: %w", err)
	}

	return dto.LoginResponse{
		Token:     signed,
		TokenType: "Bearer",
		ExpiresAt: expiresAt,
		Email:     req.Email,
	}, nil
}
