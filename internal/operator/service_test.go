package operator

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc := NewService(NewMemoryRepository(), "test-secret", time.Hour)
	if _, err := svc.Register(context.Background(), "presiding", "s3cret-pass", "admin"); err != nil {
		t.Fatalf("register: %v", err)
	}
	return svc
}

func TestLoginAndVerify(t *testing.T) {
	svc := newTestService(t)

	token, err := svc.Login(context.Background(), "presiding", "s3cret-pass")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if token.AccessToken == "" || token.Role != "admin" {
		t.Fatalf("unexpected token: %+v", token)
	}

	claims, err := svc.Verify(token.AccessToken)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Username != "presiding" || claims.Role != "admin" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc := newTestService(t)

	if _, err := svc.Login(context.Background(), "presiding", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: got %v", err)
	}
	if _, err := svc.Login(context.Background(), "nobody", "s3cret-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown user: got %v", err)
	}
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	svc := newTestService(t)

	token, err := svc.Login(context.Background(), "presiding", "s3cret-pass")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	tampered := token.AccessToken[:len(token.AccessToken)-2] + "xx"
	if _, err := svc.Verify(tampered); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("tampered token: got %v", err)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo, "test-secret", time.Nanosecond)
	if _, err := svc.Register(context.Background(), "presiding", "s3cret-pass", "admin"); err != nil {
		t.Fatalf("register: %v", err)
	}
	token, err := svc.Login(context.Background(), "presiding", "s3cret-pass")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	if _, err := svc.Verify(token.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired token: got %v", err)
	}
}
