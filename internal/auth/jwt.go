package auth

import (
	"errors"
	"strconv"
	"time"

	"eduhub/config"

	"github.com/golang-jwt/jwt/v5"
)

// Access tokens carry the actor (user and role) for every request. Refresh tokens
// only name the user and are exchanged for a new pair.
const (
	audienceAccess  = "eduhub-api"
	audienceRefresh = "eduhub-refresh"
)

var ErrInvalidToken = errors.New("invalid token")

var now = time.Now

type Claims struct {
	UserID uint   `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

func registered(cfg *config.JWTConfig, audience string, userID uint, ttl time.Duration) jwt.RegisteredClaims {
	issued := now()
	return jwt.RegisteredClaims{
		Subject:   strconv.FormatUint(uint64(userID), 10),
		Audience:  jwt.ClaimStrings{audience},
		Issuer:    cfg.Issuer,
		IssuedAt:  jwt.NewNumericDate(issued),
		ExpiresAt: jwt.NewNumericDate(issued.Add(ttl)),
	}
}

func sign(claims jwt.Claims, secret string) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func parse(cfg *config.JWTConfig, tokenString, secret, audience string, claims jwt.Claims) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithAudience(audience),
		jwt.WithTimeFunc(now),
	)
	if err != nil || !token.Valid {
		return ErrInvalidToken
	}
	return nil
}

func GenerateAccessToken(cfg *config.JWTConfig, userID uint, email, role string) (string, error) {
	return sign(Claims{
		UserID:           userID,
		Email:            email,
		Role:             role,
		RegisteredClaims: registered(cfg, audienceAccess, userID, cfg.AccessExpiry),
	}, cfg.AccessSecret)
}

// GenerateRefreshToken carries only the user id; role and email are re-read on refresh.
func GenerateRefreshToken(cfg *config.JWTConfig, userID uint) (string, error) {
	return sign(registered(cfg, audienceRefresh, userID, cfg.RefreshExpiry), cfg.RefreshSecret)
}

// ParseAccessToken rejects refresh tokens and tokens without an actor.
func ParseAccessToken(cfg *config.JWTConfig, tokenString string) (*Claims, error) {
	claims := &Claims{}
	if err := parse(cfg, tokenString, cfg.AccessSecret, audienceAccess, claims); err != nil {
		return nil, err
	}
	if claims.UserID == 0 || claims.Role == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ParseRefreshToken returns the user a refresh token was issued to.
func ParseRefreshToken(cfg *config.JWTConfig, tokenString string) (uint, error) {
	claims := &jwt.RegisteredClaims{}
	if err := parse(cfg, tokenString, cfg.RefreshSecret, audienceRefresh, claims); err != nil {
		return 0, err
	}
	id, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || id == 0 {
		return 0, ErrInvalidToken
	}
	return uint(id), nil
}
