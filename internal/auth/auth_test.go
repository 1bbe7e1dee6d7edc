package auth

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"
)

func newTestService(t *testing.T) (*Service, sqlmock.Sqlmock, func()) {
	t.Helper()
	rawDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	sqlxDB := sqlx.NewDb(rawDB, "postgres")
	svc := NewService(sqlxDB, zaptest.NewLogger(t), "test-secret")
	return svc, mock, func() { rawDB.Close() }
}

func TestService_RegisterAndLogin(t *testing.T) {
	svc, mock, closeDB := newTestService(t)
	defer closeDB()

	mock.ExpectQuery("INSERT INTO users").
		WithArgs("alice", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))

	user, err := svc.Register(context.Background(), &RegisterRequest{Username: "alice", Password: "hunter2"})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if user.ID != 1 || user.Username != "alice" {
		t.Errorf("unexpected user: %+v", user)
	}

	// Hash a real password so Login's bcrypt.CompareHashAndPassword succeeds.
	hashed, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("bcrypt.GenerateFromPassword: %v", err)
	}
	mock.ExpectQuery("SELECT id, password_hash, role FROM users").
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"id", "password_hash", "role"}).
			AddRow(int64(1), string(hashed), "user"))

	tokens, err := svc.Login(context.Background(), &LoginRequest{Username: "alice", Password: "hunter2"})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if tokens.AccessToken == "" {
		t.Error("expected non-empty access token")
	}

	userID, err := svc.Verify(tokens.AccessToken)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if userID != 1 {
		t.Errorf("expected subject 1, got %d", userID)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestService_LoginWrongPassword(t *testing.T) {
	svc, mock, closeDB := newTestService(t)
	defer closeDB()

	hashed, err := bcrypt.GenerateFromPassword([]byte("correct-password"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("bcrypt.GenerateFromPassword: %v", err)
	}
	mock.ExpectQuery("SELECT id, password_hash, role FROM users").
		WithArgs("bob").
		WillReturnRows(sqlmock.NewRows([]string{"id", "password_hash", "role"}).
			AddRow(int64(2), string(hashed), "user"))

	_, err = svc.Login(context.Background(), &LoginRequest{Username: "bob", Password: "wrong-password"})
	if err != ErrInvalidCredentials {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestService_VerifyRejectsGarbage(t *testing.T) {
	svc, _, closeDB := newTestService(t)
	defer closeDB()

	if _, err := svc.Verify("not-a-jwt"); err == nil {
		t.Error("expected an error for a malformed token")
	}
}
