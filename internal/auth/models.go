package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

// BlacklistedToken is the authoritative record of a revoked access
// token. Tokens are stored as SHA-256 digests, never raw.
type BlacklistedToken struct {
	ID        uuid.UUID `json:"id" gorm:"primaryKey;type:uuid;default:uuid_generate_v4()"`
	TokenHash string    `json:"-" gorm:"uniqueIndex;not null;size:64"`
	UserID    uuid.UUID `json:"user_id" gorm:"type:uuid;index;not null"`
	ExpiresAt time.Time `json:"expires_at" gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
}

// RefreshToken is the authoritative record of an issued refresh token
type RefreshToken struct {
	ID        uuid.UUID `json:"id" gorm:"primaryKey;type:uuid;default:uuid_generate_v4()"`
	TokenHash string    `json:"-" gorm:"uniqueIndex;not null;size:64"`
	UserID    uuid.UUID `json:"user_id" gorm:"type:uuid;index;not null"`
	Revoked   bool      `json:"revoked" gorm:"not null;default:false"`
	ExpiresAt time.Time `json:"expires_at" gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
}

// RefreshInfo is what the gate returns for a refresh token lookup
type RefreshInfo struct {
	UserID    uuid.UUID `json:"user_id"`
	Revoked   bool      `json:"revoked"`
	ExpiresAt time.Time `json:"expires_at"`
}

// JWTClaims are the claims carried by both access and refresh tokens
type JWTClaims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	Type   string `json:"type"` // "access" or "refresh"
	jwt.RegisteredClaims
}

// HashToken digests a raw token for use as a storage key
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
