package auth

import (
	"fmt"
	"time"

	"github.com/form3tech-oss/jwt-go"
	"github.com/google/uuid"

	"github.com/israelgr/High-lander-task/internal/highlander"
)

// Claims are carried by both access and refresh tokens. The subject is the
// user id; the token id keeps tokens issued in the same second distinct.
type Claims struct {
	PlayerID string `json:"playerId"`
	Email    string `json:"email"`
	jwt.StandardClaims
}

type Tokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func (s *Service) sign(id highlander.Identity, secret string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := Claims{
		PlayerID: id.PlayerID,
		Email:    id.Email,
		StandardClaims: jwt.StandardClaims{
			Subject:   id.UserID,
			Id:        uuid.NewString(),
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(ttl).Unix(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func (s *Service) issue(id highlander.Identity) (Tokens, error) {
	access, err := s.sign(id, s.opts.AccessSecret, s.opts.AccessTTL)
	if err != nil {
		return Tokens{}, fmt.Errorf("signing access token: %w", err)
	}
	refresh, err := s.sign(id, s.opts.RefreshSecret, s.opts.RefreshTTL)
	if err != nil {
		return Tokens{}, fmt.Errorf("signing refresh token: %w", err)
	}
	return Tokens{AccessToken: access, RefreshToken: refresh}, nil
}

func parse(token, secret string) (highlander.Identity, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || claims.Subject == "" || claims.PlayerID == "" {
		return highlander.Identity{}, ErrInvalidToken
	}
	return highlander.Identity{UserID: claims.Subject, PlayerID: claims.PlayerID, Email: claims.Email}, nil
}

// Authenticate verifies an access token.
func (s *Service) Authenticate(token string) (highlander.Identity, error) {
	return parse(token, s.opts.AccessSecret)
}
