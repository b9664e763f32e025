package jwt

import (
	"errors"
	"fmt"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims carries the account id both as the "id" claim and as the subject.
type Claims struct {
	AccountID string `json:"id"`
	gojwt.RegisteredClaims
}

// NewToken issues an HS256 session token for accountID that expires ttl after now.
func NewToken(accountID string, secret string, ttl time.Duration, now time.Time) (string, error) {
	const op = "jwt.NewToken"

	claims := Claims{
		AccountID: accountID,
		RegisteredClaims: gojwt.RegisteredClaims{
			Subject:   accountID,
			IssuedAt:  gojwt.NewNumericDate(now),
			ExpiresAt: gojwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims)

	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return signed, nil
}

// ParseToken checks the signature and expiry of tokenStr and returns its claims.
func ParseToken(tokenStr string, secret string) (*Claims, error) {
	const op = "jwt.ParseToken"

	claims := &Claims{}

	token, err := gojwt.ParseWithClaims(tokenStr, claims, func(t *gojwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*gojwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("%s: unexpected signing method", op)
		}
		return []byte(secret), nil
	},
		gojwt.WithValidMethods([]string{gojwt.SigningMethodHS256.Alg()}),
		gojwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrInvalidToken, err)
	}

	if !token.Valid || claims.AccountID == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	return claims, nil
}
