package provider

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"media-generation-jobs/internal/domain/ports/adapter"
)

// Compile-time assurance
var _ adapter.CallbackSigner = (*CallbackSigner)(nil)

// CallbackSigner mints the webhook callback URLs handed to the provider.
// The token is an HS256 JWT whose subject is the job id, so the webhook
// receiver can recover the job and reject forged or expired callbacks.
type CallbackSigner struct {
	secret  []byte
	baseURL string
	path    string
	ttl     time.Duration
}

func NewCallbackSigner(secret, baseURL string, ttl time.Duration) (*CallbackSigner, error) {
	if secret == "" {
		return nil, errors.New("callback secret empty")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CallbackSigner{
		secret:  []byte(secret),
		baseURL: strings.TrimRight(baseURL, "/"),
		path:    "/api/v1/webhook/generation",
		ttl:     ttl,
	}, nil
}

type callbackClaims struct {
	jwt.RegisteredClaims
}

func (s *CallbackSigner) URLFor(jobID string) (string, error) {
	now := time.Now()
	claims := callbackClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   jobID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%s?token=%s", s.baseURL, s.path, url.QueryEscape(signed)), nil
}

func (s *CallbackSigner) JobIDFrom(token string) (string, error) {
	claims := &callbackClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", errors.New("invalid callback token")
	}
	if claims.Subject == "" {
		return "", errors.New("callback token missing job id")
	}
	return claims.Subject, nil
}
