package tokens

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrMalformed = errors.New("malformed token")
	ErrExpired   = errors.New("token expired")
)

// Codec issues and verifies HS256 tokens of a single class.
type Codec struct {
	class  Class
	secret []byte
	now    func() time.Time
}

func NewCodec(class Class, secret []byte, now func() time.Time) *Codec {
	if now == nil {
		now = time.Now
	}
	return &Codec{class: class, secret: secret, now: now}
}

func (c *Codec) Class() Class { return c.class }

// Issue signs a fresh claim set for subject and returns the token together
// with the expiry embedded in it.
func (c *Codec) Issue(subject string, ttl time.Duration) (string, time.Time, error) {
	if subject == "" {
		return "", time.Time{}, errors.New("empty subject")
	}
	if len(c.secret) == 0 {
		return "", time.Time{}, errors.New("empty signing secret")
	}

	now := c.now().UTC()
	exp := now.Add(ttl).Truncate(time.Second)

	claims := Claims{
		Type: c.class,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", c.class, err)
	}
	return token, exp, nil
}

// Verify checks the signature with the codec secret, then the expiry and the
// token class.
func (c *Codec) Verify(token string) (*Claims, error) {
	claims, err := Parse(token, c.secret, c.now)
	if err != nil {
		return nil, err
	}
	if claims.Type != c.class {
		return nil, fmt.Errorf("%w: expected %s token, got %q", ErrMalformed, c.class, claims.Type)
	}
	return claims, nil
}

// Parse decodes token under secret. It returns ErrExpired when the signature is
// valid but the embedded expiry is at or before now(), and ErrMalformed for
// everything else.
func Parse(token string, secret []byte, now func() time.Time) (*Claims, error) {
	if now == nil {
		now = time.Now
	}
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", ErrMalformed)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(now),
	)

	var claims Claims
	tkn, err := parser.ParseWithClaims(token, &claims, keyFunc(secret))
	switch {
	case err == nil && tkn.Valid:
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, fmt.Errorf("%w: %v", ErrExpired, err)
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	default:
		return nil, ErrMalformed
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrMalformed)
	}
	return &claims, nil
}

// Subject returns the subject of a token signed with the codec secret without
// checking its expiry. It is only meant for ending a session.
func (c *Codec) Subject(token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("%w: empty token", ErrMalformed)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)

	var claims Claims
	tkn, err := parser.ParseWithClaims(token, &claims, keyFunc(c.secret))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !tkn.Valid {
		return "", ErrMalformed
	}
	if claims.Type != c.class {
		return "", fmt.Errorf("%w: expected %s token, got %q", ErrMalformed, c.class, claims.Type)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrMalformed)
	}
	return claims.Subject, nil
}

func keyFunc(secret []byte) jwt.Keyfunc {
	return func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected sign method: %v", t.Header["alg"])
		}
		return secret, nil
	}
}
