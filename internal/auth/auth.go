// Package auth manages user accounts: registration, password login, JWT
// access/refresh tokens with rotation, and the admin flag.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/israelgr/High-lander-task/internal/highlander"
	"github.com/israelgr/High-lander-task/internal/player"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDisabled    = errors.New("account is disabled")
	ErrEmailTaken         = errors.New("email already registered")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrInvalidToken       = errors.New("invalid token")
	ErrNotFound           = errors.New("user not found")
)

// MaxRefreshTokens is how many refresh tokens a user keeps; older ones are
// revoked on login.
const MaxRefreshTokens = 5

type Options struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	BcryptCost    int
}

type User struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	PlayerID  string     `json:"playerId"`
	IsAdmin   bool       `json:"isAdmin"`
	IsActive  bool       `json:"isActive"`
	LastLogin *time.Time `json:"lastLogin,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

func (u User) identity() highlander.Identity {
	return highlander.Identity{UserID: u.ID, PlayerID: u.PlayerID, Email: u.Email}
}

type Service struct {
	db      *sql.DB
	players *player.Store
	opts    Options
	logger  *slog.Logger
	now     func() time.Time
}

func NewService(logger *slog.Logger, db *sql.DB, players *player.Store, opts Options) *Service {
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		db:      db,
		players: players,
		opts:    opts,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateRegistration(email, password, username string) error {
	if _, err := mail.ParseAddress(email); err != nil || !strings.Contains(email, "@") {
		return fmt.Errorf("%w: a valid email is required", ErrInvalidInput)
	}
	if len(password) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
	}
	if n := utf8.RuneCountInString(username); n < 2 || n > 20 {
		return fmt.Errorf("%w: username must be 2-20 characters", ErrInvalidInput)
	}
	return nil
}

// Register creates a player and a user bound to it and signs them in.
func (s *Service) Register(ctx context.Context, email, password, username string) (User, highlander.Player, Tokens, error) {
	email = normalizeEmail(email)
	username = strings.TrimSpace(username)
	if err := validateRegistration(email, password, username); err != nil {
		return User{}, highlander.Player{}, Tokens{}, err
	}

	if _, err := s.userByEmail(ctx, email); err == nil {
		return User{}, highlander.Player{}, Tokens{}, ErrEmailTaken
	} else if !errors.Is(err, ErrNotFound) {
		return User{}, highlander.Player{}, Tokens{}, err
	}

	p, err := s.players.Create(ctx, username, "")
	if errors.Is(err, player.ErrUsernameTaken) {
		return User{}, highlander.Player{}, Tokens{}, ErrUsernameTaken
	}
	if err != nil {
		return User{}, highlander.Player{}, Tokens{}, err
	}

	u, err := s.createUser(ctx, email, password, p.ID, false)
	if err != nil {
		return User{}, highlander.Player{}, Tokens{}, err
	}

	tokens, err := s.startSession(ctx, u)
	if err != nil {
		return User{}, highlander.Player{}, Tokens{}, err
	}
	return u, p, tokens, nil
}

func (s *Service) createUser(ctx context.Context, email, password, playerID string, admin bool) (User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.opts.BcryptCost)
	if err != nil {
		return User{}, fmt.Errorf("hashing password: %w", err)
	}

	u := User{
		ID:        uuid.NewString(),
		Email:     email,
		PlayerID:  playerID,
		IsAdmin:   admin,
		IsActive:  true,
		CreatedAt: s.now(),
	}
	isAdmin := 0
	if admin {
		isAdmin = 1
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, player_id, password_hash, is_admin, is_active, created_at)
		 VALUES (?, ?, ?, ?, ?, 1, ?)`,
		u.ID, u.Email, u.PlayerID, string(hash), isAdmin, formatTime(u.CreatedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: users.email") {
			return User{}, ErrEmailTaken
		}
		return User{}, fmt.Errorf("inserting user: %w", err)
	}
	return u, nil
}

// Login checks the password and issues a fresh token pair.
func (s *Service) Login(ctx context.Context, email, password string) (User, Tokens, error) {
	u, hash, err := s.credentials(ctx, normalizeEmail(email))
	if errors.Is(err, ErrNotFound) {
		return User{}, Tokens{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, Tokens{}, err
	}
	if !u.IsActive {
		return User{}, Tokens{}, ErrAccountDisabled
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return User{}, Tokens{}, ErrInvalidCredentials
	}

	now := s.now()
	if _, err := s.db.ExecContext(ctx,
		`UPDATE users SET last_login = ? WHERE id = ?`, formatTime(now), u.ID,
	); err != nil {
		return User{}, Tokens{}, fmt.Errorf("recording login: %w", err)
	}
	u.LastLogin = &now

	tokens, err := s.startSession(ctx, u)
	if err != nil {
		return User{}, Tokens{}, err
	}
	return u, tokens, nil
}

// startSession issues tokens, stores the refresh token and trims the
// user's older refresh tokens.
func (s *Service) startSession(ctx context.Context, u User) (Tokens, error) {
	tokens, err := s.issue(u.identity())
	if err != nil {
		return Tokens{}, err
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (token, user_id, created_at) VALUES (?, ?, ?)`,
		tokens.RefreshToken, u.ID, formatTime(s.now()),
	); err != nil {
		return Tokens{}, fmt.Errorf("storing refresh token: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE user_id = ? AND token NOT IN (
			SELECT token FROM refresh_tokens WHERE user_id = ?
			ORDER BY created_at DESC, rowid DESC LIMIT ?)`,
		u.ID, u.ID, MaxRefreshTokens,
	); err != nil {
		return Tokens{}, fmt.Errorf("pruning refresh tokens: %w", err)
	}
	return tokens, nil
}

// Refresh exchanges a stored refresh token for a new pair. The old refresh
// token is revoked.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	id, err := parse(refreshToken, s.opts.RefreshSecret)
	if err != nil {
		return Tokens{}, err
	}

	u, err := s.User(ctx, id.UserID)
	if errors.Is(err, ErrNotFound) {
		return Tokens{}, ErrInvalidToken
	}
	if err != nil {
		return Tokens{}, err
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE token = ? AND user_id = ?`, refreshToken, u.ID,
	)
	if err != nil {
		return Tokens{}, fmt.Errorf("revoking refresh token: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Tokens{}, ErrInvalidToken
	}
	if !u.IsActive {
		return Tokens{}, ErrAccountDisabled
	}
	return s.startSession(ctx, u)
}

// Logout revokes one refresh token, or all of them when refreshToken is "".
func (s *Service) Logout(ctx context.Context, userID, refreshToken string) error {
	var err error
	if refreshToken == "" {
		_, err = s.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE user_id = ?`, userID)
	} else {
		_, err = s.db.ExecContext(ctx,
			`DELETE FROM refresh_tokens WHERE user_id = ? AND token = ?`, userID, refreshToken)
	}
	if err != nil {
		return fmt.Errorf("revoking refresh tokens: %w", err)
	}
	return nil
}

const selectUser = `SELECT id, email, player_id, is_admin, is_active, last_login, created_at, password_hash FROM users`

func scanUser(row *sql.Row) (User, string, error) {
	var (
		u         User
		lastLogin sql.NullString
		createdAt string
		hash      string
	)
	err := row.Scan(&u.ID, &u.Email, &u.PlayerID, &u.IsAdmin, &u.IsActive, &lastLogin, &createdAt, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, "", ErrNotFound
	}
	if err != nil {
		return User{}, "", err
	}
	u.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	if lastLogin.Valid {
		if t, err := time.Parse(timeFormat, lastLogin.String); err == nil {
			u.LastLogin = &t
		}
	}
	return u, hash, nil
}

func (s *Service) User(ctx context.Context, id string) (User, error) {
	u, _, err := scanUser(s.db.QueryRowContext(ctx, selectUser+` WHERE id = ?`, id))
	return u, err
}

func (s *Service) userByEmail(ctx context.Context, email string) (User, error) {
	u, _, err := s.credentials(ctx, email)
	return u, err
}

func (s *Service) credentials(ctx context.Context, email string) (User, string, error) {
	return scanUser(s.db.QueryRowContext(ctx, selectUser+` WHERE email = ?`, email))
}

func (s *Service) IsAdmin(ctx context.Context, userID string) (bool, error) {
	u, err := s.User(ctx, userID)
	if err != nil {
		return false, err
	}
	return u.IsAdmin && u.IsActive, nil
}

// SeedAdmin makes sure an admin account exists for email. An existing user
// is promoted; its password is left alone.
func (s *Service) SeedAdmin(ctx context.Context, email, password, username string) error {
	email = normalizeEmail(email)
	if u, err := s.userByEmail(ctx, email); err == nil {
		if u.IsAdmin {
			return nil
		}
		_, err := s.db.ExecContext(ctx, `UPDATE users SET is_admin = 1 WHERE id = ?`, u.ID)
		if err == nil {
			s.logger.Info("promoted existing user to admin", "email", email)
		}
		return err
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	if err := validateRegistration(email, password, username); err != nil {
		return err
	}
	p, _, err := s.players.GetOrCreate(ctx, username, "")
	if err != nil {
		return err
	}
	if _, err := s.createUser(ctx, email, password, p.ID, true); err != nil {
		return err
	}
	s.logger.Info("seeded admin user", "email", email)
	return nil
}

const timeFormat = "2006-01-02T15:04:05.000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}
