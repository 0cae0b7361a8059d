// Package auth issues and verifies session tokens and hashes credentials.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleStudent Role = "student"
)

// Purpose separates session tokens from the short-lived password reset grant.
type Purpose string

const (
	PurposeSession       Purpose = ""
	PurposePasswordReset Purpose = "password_reset"
)

// ResetTTL bounds how long a verified one-time code allows a password change.
const ResetTTL = 10 * time.Minute

var ErrInvalidToken = errors.New("invalid token")

// Identity is what a bearer token says about its holder.
type Identity struct {
	UserID       uuid.UUID
	Email        string
	Role         Role
	IsSubscribed bool
	HasPaid      bool
	IsMaster     bool
	// IsVerified is filled from storage on each request; tokens do not carry it.
	IsVerified   bool
}

// Claims is the JWT payload.
type Claims struct {
	UserID       string  `json:"userId"`
	Email        string  `json:"email"`
	Role         Role    `json:"role"`
	IsSubscribed bool    `json:"isSubscribed,omitempty"`
	HasPaid      bool    `json:"hasPaid,omitempty"`
	IsMaster     bool    `json:"isMaster,omitempty"`
	Purpose      Purpose `json:"purpose,omitempty"`
	jwt.RegisteredClaims
}

// Identity converts validated claims.
func (c *Claims) Identity() (Identity, error) {
	id, err := uuid.Parse(c.UserID)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: bad user id", ErrInvalidToken)
	}
	return Identity{
		UserID:       id,
		Email:        c.Email,
		Role:         c.Role,
		IsSubscribed: c.IsSubscribed,
		HasPaid:      c.HasPaid,
		IsMaster:     c.IsMaster,
	}, nil
}

// Issuer signs and parses HS256 tokens.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs a session token for id.
func (i *Issuer) Issue(id Identity) (string, error) {
	return i.sign(id, PurposeSession, i.ttl)
}

// IssueReset signs a token that only authorises a password change.
func (i *Issuer) IssueReset(id Identity) (string, error) {
	return i.sign(id, PurposePasswordReset, ResetTTL)
}

func (i *Issuer) sign(id Identity, purpose Purpose, ttl time.Duration) (string, error) {
	if len(i.secret) == 0 {
		return "", errors.New("missing secret")
	}
	now := i.now()
	claims := Claims{
		UserID:       id.UserID.String(),
		Email:        id.Email,
		Role:         id.Role,
		IsSubscribed: id.IsSubscribed,
		HasPaid:      id.HasPaid,
		IsMaster:     id.IsMaster,
		Purpose:      purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return tok, nil
}

// Parse verifies tokString and returns its claims. Any "Bearer " prefix is
// ignored.
func (i *Issuer) Parse(tokString string) (*Claims, error) {
	tokString = strings.TrimSpace(strings.TrimPrefix(tokString, "Bearer "))
	if tokString == "" {
		return nil, fmt.Errorf("%w: missing token", ErrInvalidToken)
	}

	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(tokString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !tok.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ParseSession is Parse restricted to session tokens.
func (i *Issuer) ParseSession(tokString string) (Identity, error) {
	claims, err := i.Parse(tokString)
	if err != nil {
		return Identity{}, err
	}
	if claims.Purpose != PurposeSession {
		return Identity{}, fmt.Errorf("%w: not a session token", ErrInvalidToken)
	}
	return claims.Identity()
}

// ParseReset is Parse restricted to password reset grants.
func (i *Issuer) ParseReset(tokString string) (Identity, error) {
	claims, err := i.Parse(tokString)
	if err != nil {
		return Identity{}, err
	}
	if claims.Purpose != PurposePasswordReset {
		return Identity{}, fmt.Errorf("%w: not a reset token", ErrInvalidToken)
	}
	return claims.Identity()
}
