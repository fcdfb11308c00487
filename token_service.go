package buildtrack

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// Claims are the identity claims carried by a session token.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
}

// TokenService signs and verifies bearer session tokens.
type TokenService interface {
	Generate(userID uuid.UUID) (string, error)
	Validate(token string) (*Claims, error)
}

// TokenServiceImpl implements TokenService with HS256 and a fixed validity
// window (7 days by default).
type TokenServiceImpl struct {
	signingKey     []byte
	expirationDays int
	issuer         string
	logger         Logger
	now            func() time.Time
}

// NewTokenService creates a new TokenService instance.
func NewTokenService(signingKey []byte, expirationDays int, issuer string, logger Logger) *TokenServiceImpl {
	if logger == nil {
		logger = defLogger{}
	}
	if expirationDays <= 0 {
		expirationDays = 7
	}
	return &TokenServiceImpl{
		signingKey:     signingKey,
		expirationDays: expirationDays,
		issuer:         issuer,
		logger:         logger,
		now:            time.Now,
	}
}

// WithClock injects a custom clock (useful for tests).
func (ts *TokenServiceImpl) WithClock(clock func() time.Time) *TokenServiceImpl {
	if clock != nil {
		ts.now = clock
	}
	return ts
}

// Generate creates a signed token encoding the account identifier.
func (ts *TokenServiceImpl) Generate(userID uuid.UUID) (string, error) {
	now := ts.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.issuer,
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(ts.expirationDays) * 24 * time.Hour)),
			ID:        uuid.NewString(),
		},
		UserID: userID.String(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", wrapInternal(err, "failed to sign token")
	}

	return signed, nil
}

// Validate parses and verifies a token string. Expired tokens and
// tampered/undecodable tokens fail with distinct errors so the HTTP layer can
// tell clients whether to re-login or to discard a broken token.
func (ts *TokenServiceImpl) Validate(tokenString string) (*Claims, error) {
	parserOptions := []jwt.ParserOption{
		jwt.WithTimeFunc(ts.now),
	}
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("token validate encountered unexpected signing method %v", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, parserOptions...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, errors.Wrap(err, ErrTokenMalformed.Category, ErrTokenMalformed.Message).
			WithTextCode(ErrTokenMalformed.TextCode).
			WithCode(errors.CodeUnauthorized)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		ts.logger.Error("token validate could not decode claims")
		return nil, ErrTokenMalformed
	}

	return claims, nil
}

var _ TokenService = (*TokenServiceImpl)(nil)
