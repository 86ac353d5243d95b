package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the payload carried by a bearer token.
type Claims struct {
	Username string
	Role     string
}

// Manager issues and validates HS256 bearer tokens.
type Manager struct {
	secret []byte
	ttl    time.Duration
}

func NewManager(secret string, ttl time.Duration) *Manager {
	return &Manager{secret: []byte(secret), ttl: ttl}
}

// Issue creates a signed token for the given user.
func (m *Manager) Issue(username, role string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  username,
		"role": role,
		"exp":  now.Add(m.ttl).Unix(),
		"iat":  now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Verify validates a token string and returns its claims.
func (m *Manager) Verify(tokenString string) (Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return Claims{}, err
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Claims{}, fmt.Errorf("invalid token")
	}

	username, ok := mapClaims["sub"].(string)
	if !ok || username == "" {
		return Claims{}, fmt.Errorf("sub not found in token")
	}
	role, _ := mapClaims["role"].(string)

	return Claims{Username: username, Role: role}, nil
}

// BearerToken extracts the token from a request's Authorization header.
// Returns "" when the header is absent or uses another scheme.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}

// CheckPassword compares a plaintext password against the stored SHA-256
// hex digest. User rows are created externally; this only verifies.
func CheckPassword(plaintext, storedHash string) bool {
	sum := sha256.Sum256([]byte(plaintext))
	entered := hex.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(entered), []byte(storedHash)) == 1
}
