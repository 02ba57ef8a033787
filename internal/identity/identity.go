package identity

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Provider supplies the current user and the bearer credential sent to the service.
type Provider interface {
	UserID() string
	Token() string
}

// Static is a Provider resolved once at startup.
type Static struct {
	userID string
	token  string
}

func (s *Static) UserID() string { return s.userID }
func (s *Static) Token() string  { return s.token }

// New returns a Provider with fixed values.
func New(userID, token string) *Static {
	return &Static{userID: userID, token: token}
}

// FromToken reads the subject of a bearer JWT. The signature is not checked here,
// the service verifies it on every request.
func FromToken(token string) (*Static, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.New("empty token")
	}
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no sub claim")
	}
	return &Static{userID: claims.Subject, token: token}, nil
}

// ParseBearer extracts the token of an "Authorization: Bearer <token>" header value.
func ParseBearer(header string) (string, error) {
	if header == "" {
		return "", errors.New("authorization header empty")
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
		return "", errors.New("invalid authorization header format")
	}
	return strings.TrimSpace(token), nil
}
