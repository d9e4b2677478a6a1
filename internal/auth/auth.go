// internal/auth/auth.go
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidToken is returned for any peer token that fails verification.
	ErrInvalidToken = errors.New("invalid peer token")
	// ErrBadPassword is returned when a table password does not match.
	ErrBadPassword = errors.New("incorrect table password")
)

const issuer = "cgs"

// PeerClaims identifies one peer seated at one table.
type PeerClaims struct {
	TableID uuid.UUID
	PeerID  uuid.UUID
	Name    string
	Expires time.Time
}

// peerClaims is the JWT body.
type peerClaims struct {
	jwt.RegisteredClaims
	TableID string `json:"table_id"`
	Name    string `json:"name,omitempty"`
}

// Issuer signs and verifies HS256 peer tokens.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer creates an issuer. A non-positive ttl means 12 hours.
func NewIssuer(secret string, ttl time.Duration) (*Issuer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("jwt secret is required")
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue signs a token seating peerID at tableID.
func (i *Issuer) Issue(tableID, peerID uuid.UUID, name string) (string, error) {
	now := i.now().UTC()
	claims := peerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   peerID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			ID:        uuid.NewString(),
		},
		TableID: tableID.String(),
		Name:    name,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign peer token: %w", err)
	}
	return signed, nil
}

// Verify checks a token's signature and expiry and returns its claims.
func (i *Issuer) Verify(token string) (PeerClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return PeerClaims{}, ErrInvalidToken
	}
	var parsed peerClaims
	_, err := jwt.ParseWithClaims(token, &parsed, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return PeerClaims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	peerID, err := uuid.Parse(parsed.Subject)
	if err != nil {
		return PeerClaims{}, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	tableID, err := uuid.Parse(parsed.TableID)
	if err != nil {
		return PeerClaims{}, fmt.Errorf("%w: bad table id", ErrInvalidToken)
	}
	return PeerClaims{
		TableID: tableID,
		PeerID:  peerID,
		Name:    parsed.Name,
		Expires: parsed.ExpiresAt.Time.UTC(),
	}, nil
}

// HashPassword hashes a table password. An empty password yields a nil hash,
// meaning the table is open.
func HashPassword(password string) ([]byte, error) {
	if password == "" {
		return nil, nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	return hash, nil
}

// CheckPassword compares password with a hash from HashPassword. Open tables
// accept any password.
func CheckPassword(hash []byte, password string) error {
	if len(hash) == 0 {
		return nil
	}
	if bcrypt.CompareHashAndPassword(hash, []byte(password)) != nil {
		return ErrBadPassword
	}
	return nil
}
