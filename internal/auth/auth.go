// Package auth implements the black-box credential verifier the spec
// treats as an external collaborator (§1 non-goals: "User authentication
// and password hashing ... a black-box credential verifier"). The engine
// itself never inspects a password; it only asks this package to verify
// one and to mint/validate the session token gating the HTTP surface.
//
// Grounded on the teacher's bcrypt + HS256 JWT session pattern (the
// deleted internal/auth package used the same two primitives); rewritten
// against the minimal users(username, password_hash, role) table this
// module actually owns instead of the teacher's multi-tenant user model.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned by Login when the username is unknown
// or the password does not match the stored hash. It deliberately does
// not distinguish the two cases to the caller.
var ErrInvalidCredentials = errors.New("invalid username or password")

// User is the safe, public view of a credential row.
type User struct {
	ID       int64  `db:"id" json:"id"`
	Username string `db:"username" json:"username"`
	Role     string `db:"role" json:"role"`
}

// RegisterRequest is the input to Register.
type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginRequest is the input to Login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TokenPair is what Login returns: a bearer token and its expiry.
type TokenPair struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Service is the credential verifier. It owns the users table and the
// signing secret for session tokens; it is otherwise stateless.
type Service struct {
	db        *sqlx.DB
	logger    *zap.Logger
	jwtSecret []byte
	tokenTTL  time.Duration
}

// NewService constructs a credential verifier over an existing users
// table connection.
func NewService(db *sqlx.DB, logger *zap.Logger, jwtSecret string) *Service {
	return &Service{db: db, logger: logger, jwtSecret: []byte(jwtSecret), tokenTTL: 24 * time.Hour}
}

// Register hashes the password with bcrypt and inserts a new user row with
// the default "user" role. Fails if the username is already taken.
func (s *Service) Register(ctx context.Context, req *RegisterRequest) (*User, error) {
	if req.Username == "" || req.Password == "" {
		return nil, errors.New("username and password are required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	var id int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO users (username, password_hash, role) VALUES ($1, $2, 'user') RETURNING id`,
		req.Username, string(hash),
	).Scan(&id)
	if err != nil {
		return nil, err
	}

	return &User{ID: id, Username: req.Username, Role: "user"}, nil
}

// Login verifies the password against the stored bcrypt hash and, on
// success, mints a signed session token.
func (s *Service) Login(ctx context.Context, req *LoginRequest) (*TokenPair, error) {
	var row struct {
		ID           int64  `db:"id"`
		PasswordHash string `db:"password_hash"`
		Role         string `db:"role"`
	}
	err := s.db.GetContext(ctx, &row, `SELECT id, password_hash, role FROM users WHERE username = $1`, req.Username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(row.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	expiresAt := time.Now().Add(s.tokenTTL)
	claims := jwt.MapClaims{
		"sub":  row.ID,
		"role": row.Role,
		"exp":  expiresAt.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return nil, err
	}

	return &TokenPair{AccessToken: signed, ExpiresAt: expiresAt}, nil
}

// Verify validates a bearer token and returns the user id it carries. Used
// by the HTTP auth middleware to gate every engine endpoint except health.
func (s *Service) Verify(tokenString string) (int64, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return 0, ErrInvalidCredentials
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, ErrInvalidCredentials
	}
	sub, ok := claims["sub"].(float64)
	if !ok {
		return 0, ErrInvalidCredentials
	}
	return int64(sub), nil
}
