package services

import (
	"errors"
	"time"

	"github.com/AtRiskMedia/tinysteps-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/tinysteps-go/internal/infrastructure/security"
)

var ErrUnauthorized = errors.New("unauthorized")

// AuthService handles admin authentication and JWT operations
type AuthService struct {
	passwordHash string
	jwtSecret    string
	tokenTTL     time.Duration
	logger       *logging.ChanneledLogger
}

// NewAuthService creates a new authentication service
func NewAuthService(passwordHash, jwtSecret string, tokenTTL time.Duration, logger *logging.ChanneledLogger) *AuthService {
	return &AuthService{
		passwordHash: passwordHash,
		jwtSecret:    jwtSecret,
		tokenTTL:     tokenTTL,
		logger:       logger,
	}
}

// AuthResult holds authentication result data
type AuthResult struct {
	Token     string    `json:"token"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// AuthenticateAdmin checks the password against the configured bcrypt hash
// and issues a token.
func (a *AuthService) AuthenticateAdmin(password string) (*AuthResult, error) {
	if a.passwordHash == "" || a.jwtSecret == "" {
		a.logger.Auth().Warn("Admin login attempted but admin credentials are not configured")
		return nil, ErrUnauthorized
	}
	if !security.CheckPassword(a.passwordHash, password) {
		a.logger.Auth().Info("Admin login failed")
		return nil, ErrUnauthorized
	}

	now := time.Now().UTC()
	token, err := security.GenerateAdminToken("admin", a.jwtSecret, a.tokenTTL, now)
	if err != nil {
		a.logger.Auth().Error("Token generation failed", "error", err.Error())
		return nil, err
	}
	a.logger.Auth().Info("Admin login succeeded")
	return &AuthResult{Token: token, Role: "admin", ExpiresAt: now.Add(a.tokenTTL)}, nil
}

// ValidateAdminToken returns the role carried by a valid admin token.
func (a *AuthService) ValidateAdminToken(token string) (string, error) {
	if token == "" || a.jwtSecret == "" {
		return "", ErrUnauthorized
	}
	claims, err := security.ValidateJWT(token, a.jwtSecret)
	if err != nil {
		a.logger.Auth().Debug("Rejected admin token", "error", err.Error())
		return "", ErrUnauthorized
	}
	role := security.AdminRoleFromClaims(claims)
	if role == "" {
		return "", ErrUnauthorized
	}
	return role, nil
}
