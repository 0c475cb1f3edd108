package operator

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials hides whether the username or the password was wrong.
var ErrInvalidCredentials = errors.New("invalid username or password")

// ErrInvalidToken covers every token verification failure.
var ErrInvalidToken = errors.New("invalid or expired token")

// Service authenticates operators and issues access tokens for the
// administrative endpoints.
type Service struct {
	repo   Repository
	secret []byte
	ttl    time.Duration
}

func NewService(repo Repository, secret string, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	return &Service{repo: repo, secret: []byte(secret), ttl: ttl}
}

// Register creates an operator account with a bcrypt password hash.
func (s *Service) Register(ctx context.Context, username, password, role string) (Operator, error) {
	if username == "" || password == "" {
		return Operator{}, ErrInvalidCredentials
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Operator{}, err
	}
	op := Operator{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, op); err != nil {
		return Operator{}, err
	}
	return op, nil
}

// Token is an issued operator access token.
type Token struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	Role        string `json:"role"`
}

// Login validates credentials and issues a signed token.
func (s *Service) Login(ctx context.Context, username, password string) (Token, error) {
	op, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrOperatorNotFound) {
			return Token{}, ErrInvalidCredentials
		}
		return Token{}, err
	}
	if err := bcrypt.CompareHashAndPassword(op.PasswordHash, []byte(password)); err != nil {
		return Token{}, ErrInvalidCredentials
	}

	now := time.Now()
	exp := now.Add(s.ttl)
	claims := map[string]any{
		"sub":  op.ID,
		"name": op.Username,
		"role": op.Role,
		"iat":  now.Unix(),
		"exp":  exp.Unix(),
	}
	signed, err := SignHS256(claims, s.secret)
	if err != nil {
		return Token{}, err
	}
	return Token{AccessToken: signed, ExpiresIn: int64(s.ttl.Seconds()), Role: op.Role}, nil
}

// Claims is the verified identity carried by an operator token.
type Claims struct {
	OperatorID string
	Username   string
	Role       string
}

// Verify checks signature and expiry and returns the operator claims.
func (s *Service) Verify(token string) (Claims, error) {
	claims, err := ParseAndVerifyHS256(token, s.secret)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}
	exp, ok := claims["exp"].(float64)
	if !ok || time.Now().Unix() >= int64(exp) {
		return Claims{}, ErrInvalidToken
	}
	sub, _ := claims["sub"].(string)
	name, _ := claims["name"].(string)
	role, _ := claims["role"].(string)
	if sub == "" {
		return Claims{}, ErrInvalidToken
	}
	return Claims{OperatorID: sub, Username: name, Role: role}, nil
}
