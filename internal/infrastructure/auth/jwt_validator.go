package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

// PrincipalClaims represent the subset of JWT claims we care about.
type PrincipalClaims struct {
	Subject           string
	Issuer            string
	Email             string
	Name              string
	PreferredUsername string
	ExpiresAt         time.Time
	IssuedAt          time.Time
}

// Validator validates bearer tokens issued by the external identity provider
// against its published JWKS.
type Validator struct {
	issuer    string
	audience  string
	clockSkew time.Duration
	jwks      *keyfunc.JWKS
	log       zerolog.Logger
}

// NewValidator fetches the JWKS and returns a validator. The key set keeps
// refreshing in the background until ctx is cancelled.
func NewValidator(ctx context.Context, jwksURL, issuer, audience string, refreshEvery, clockSkew time.Duration, log zerolog.Logger) (*Validator, error) {
	if jwksURL == "" {
		return nil, errors.New("jwks url is required")
	}

	componentLog := log.With().Str("component", "auth-validator").Logger()
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
		Ctx:               ctx,
		RefreshInterval:   refreshEvery,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			componentLog.Error().Err(err).Msg("jwks refresh failed")
		},
	})
	if err != nil {
		return nil, fmt.Errorf("fetch jwks: %w", err)
	}

	return &Validator{
		issuer:    issuer,
		audience:  audience,
		clockSkew: clockSkew,
		jwks:      jwks,
		log:       componentLog,
	}, nil
}

// Validate parses and verifies a raw bearer token, returning its principal claims.
func (v *Validator) Validate(tokenString string) (PrincipalClaims, error) {
	parseOpts := []jwt.ParserOption{
		jwt.WithLeeway(v.clockSkew),
		jwt.WithIssuer(v.issuer),
		jwt.WithValidMethods([]string{"RS256", "ES256"}),
	}
	if v.audience != "" {
		parseOpts = append(parseOpts, jwt.WithAudience(v.audience))
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, v.jwks.Keyfunc, parseOpts...)
	if err != nil {
		return PrincipalClaims{}, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return PrincipalClaims{}, errors.New("token is not valid")
	}

	principal := PrincipalClaims{
		Subject:           stringClaim(claims, "sub"),
		Issuer:            stringClaim(claims, "iss"),
		Email:             stringClaim(claims, "email"),
		Name:              stringClaim(claims, "name"),
		PreferredUsername: stringClaim(claims, "preferred_username"),
	}
	if principal.Subject == "" {
		return PrincipalClaims{}, errors.New("token is missing a subject")
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		principal.ExpiresAt = exp.Time
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		principal.IssuedAt = iat.Time
	}

	return principal, nil
}

func stringClaim(claims jwt.MapClaims, key string) string {
	if val, ok := claims[key].(string); ok {
		return strings.TrimSpace(val)
	}
	return ""
}
