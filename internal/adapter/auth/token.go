package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
)

type ctxKey struct{}

type claims struct {
	AccountantID int64 `json:"accountant_id"`
	jwt.RegisteredClaims
}

// Verifier signs and checks HS256 bearer tokens carrying an accountant id.
type Verifier struct {
	secret []byte
	now    func() time.Time
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret), now: time.Now}
}

func (v *Verifier) Issue(accountantID int64, ttl time.Duration) (string, error) {
	now := v.now()
	c := claims{
		AccountantID: accountantID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return token.SignedString(v.secret)
}

func (v *Verifier) Verify(tokenString string) (int64, error) {
	token, err := jwt.ParseWithClaims(tokenString, &claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return v.secret, nil
	}, jwt.WithTimeFunc(v.now))
	if err != nil || !token.Valid {
		return 0, ErrInvalidToken
	}
	c, ok := token.Claims.(*claims)
	if !ok || c.AccountantID <= 0 {
		return 0, ErrInvalidToken
	}
	return c.AccountantID, nil
}

// VerifyHeader accepts an Authorization header value of the form "Bearer <token>".
func (v *Verifier) VerifyHeader(header string) (int64, error) {
	if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return 0, ErrMissingToken
	}
	return v.Verify(strings.TrimSpace(header[len("Bearer "):]))
}

func WithAccountant(ctx context.Context, accountantID int64) context.Context {
	return context.WithValue(ctx, ctxKey{}, accountantID)
}

func AccountantFrom(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(ctxKey{}).(int64)
	return id, ok
}
