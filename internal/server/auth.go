package server

import (
	"context"
	"errors"

	"postguard/internal/conf"
	"postguard/internal/service"

	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/middleware/auth/jwt"
	jwtv5 "github.com/golang-jwt/jwt/v5"
)

var errMissingSecret = errors.New("server: auth.jwt_secret is required")

// JWTAuth verifies HS256 bearer tokens and stores service.Claims in the
// request context.
func JWTAuth(ac *conf.Auth) (middleware.Middleware, error) {
	if ac == nil || ac.JWTSecret == "" {
		return nil, errMissingSecret
	}
	secret := []byte(ac.JWTSecret)
	keyFunc := func(*jwtv5.Token) (any, error) {
		return secret, nil
	}
	opts := []jwt.Option{
		jwt.WithSigningMethod(jwtv5.SigningMethodHS256),
		jwt.WithClaims(service.NewClaims),
	}
	mw := jwt.Server(keyFunc, opts...)
	if ac.Issuer == "" {
		return mw, nil
	}
	return middleware.Chain(mw, checkIssuer(ac.Issuer)), nil
}

func checkIssuer(issuer string) middleware.Middleware {
	return func(next middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req any) (any, error) {
			claims, err := service.CurrentClaims(ctx)
			if err != nil {
				return nil, err
			}
			if claims.Issuer != issuer {
				return nil, service.ErrUnauthenticated
			}
			return next(ctx, req)
		}
	}
}
