package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/developer387/doorbell-app-sub000/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenSecret  = errors.New("token secret is required")
)

// CallClaims scope a bearer token to one call, or to one property when
// CallID is empty.
type CallClaims struct {
	CallID     string      `json:"call_id,omitempty"`
	PropertyID string      `json:"property_id"`
	Role       domain.Role `json:"role"`
	jwt.RegisteredClaims
}

type TokenService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenService(secret, issuer string, ttl time.Duration) (*TokenService, error) {
	if secret == "" {
		return nil, ErrTokenSecret
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenService{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// Issue signs an HS256 token for one participant of one call.
func (t *TokenService) Issue(callID, propertyID string, role domain.Role) (string, error) {
	const op = "service.token.Issue"
	if callID == "" || !role.IsValid() {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}
	return t.sign(op, CallClaims{CallID: callID, PropertyID: propertyID, Role: role}, string(role))
}

// IssueProperty signs an owner token that manages one property.
func (t *TokenService) IssueProperty(propertyID, ownerID string) (string, error) {
	const op = "service.token.IssueProperty"
	if propertyID == "" || ownerID == "" {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}
	return t.sign(op, CallClaims{PropertyID: propertyID, Role: domain.RoleOwner}, ownerID)
}

func (t *TokenService) sign(op string, claims CallClaims, subject string) (string, error) {
	now := t.now().UTC()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    t.issuer,
		Subject:   subject,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return signed, nil
}

func (t *TokenService) Parse(raw string) (*CallClaims, error) {
	const op = "service.token.Parse"

	claims := &CallClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %T", token.Method)
		}
		return t.secret, nil
	},
		jwt.WithIssuer(t.issuer),
		jwt.WithTimeFunc(t.now),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}
	if !claims.Role.IsValid() || claims.PropertyID == "" && claims.CallID == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}
	return claims, nil
}
