package service

import (
	"context"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/middleware/auth/jwt"
	jwtv5 "github.com/golang-jwt/jwt/v5"
)

var (
	ErrUnauthenticated = errors.Unauthorized("UNAUTHENTICATED", "a valid session token is required")
	ErrAdminRequired   = errors.Forbidden("ADMIN_REQUIRED", "admin privileges are required")
)

// Claims is the session token payload issued by the auth service.
type Claims struct {
	UserID string `json:"user_id"`
	Admin  bool   `json:"admin,omitempty"`
	jwtv5.RegisteredClaims
}

// NewClaims is handed to the JWT middleware so tokens parse into Claims.
func NewClaims() jwtv5.Claims {
	return &Claims{}
}

// CurrentClaims returns the verified claims of the request.
func CurrentClaims(ctx context.Context) (*Claims, error) {
	raw, ok := jwt.FromContext(ctx)
	if !ok {
		return nil, ErrUnauthenticated
	}
	claims, ok := raw.(*Claims)
	if !ok || claims.UserID == "" {
		return nil, ErrUnauthenticated
	}
	return claims, nil
}

// CurrentUserID returns the authenticated user id.
func CurrentUserID(ctx context.Context) (string, error) {
	claims, err := CurrentClaims(ctx)
	if err != nil {
		return "", err
	}
	return claims.UserID, nil
}
