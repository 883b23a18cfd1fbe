// Package model defines domain entities for the application.
package model

import (
	"time"
)

// APIKey represents a project API key.
type APIKey struct {
	ID         string     `json:"id"`
	ProjectID  string     `json:"project_id"`
	Name       string     `json:"name"`
	Prefix     string     `json:"prefix"`
	Hash       string     `json:"-"` // Never serialize
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// IsRevoked returns true if the key has been revoked.
func (k *APIKey) IsRevoked() bool {
	return k.RevokedAt != nil
}

// IsExpired returns true if the key has an expiry at or before now.
func (k *APIKey) IsExpired(now time.Time) bool {
	return k.ExpiresAt != nil && !k.ExpiresAt.After(now)
}

// IsActive returns true if the key can still authenticate.
func (k *APIKey) IsActive(now time.Time) bool {
	return !k.IsRevoked() && !k.IsExpired(now)
}

// AuthContext holds authenticated request context.
// This is injected into the request context by auth middleware.
type AuthContext struct {
	KeyID     string
	KeyPrefix string
	ProjectID string
	ExpiresAt *time.Time
}

// IsExpired reports whether the key behind the context has passed its expiry.
func (a *AuthContext) IsExpired(now time.Time) bool {
	return a.ExpiresAt != nil && !now.Before(*a.ExpiresAt)
}

// APIKeyCreateRequest represents a request to create a new API key.
type APIKeyCreateRequest struct {
	Name          string `json:"name" validate:"required,max=100"`
	ExpiresInDays *int   `json:"expires_in_days,omitempty" validate:"omitempty,min=1,max=3650"`
}

// APIKeyResponse represents the response for an API key (without secrets).
type APIKeyResponse struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Prefix     string     `json:"prefix"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	Revoked    bool       `json:"revoked"`
}

// ToResponse converts an APIKey to APIKeyResponse.
func (k *APIKey) ToResponse() APIKeyResponse {
	return APIKeyResponse{
		ID:         k.ID,
		Name:       k.Name,
		Prefix:     k.Prefix,
		CreatedAt:  k.CreatedAt,
		ExpiresAt:  k.ExpiresAt,
		LastUsedAt: k.LastUsedAt,
		Revoked:    k.IsRevoked(),
	}
}

// APIKeyCreateResponse includes the plaintext key (shown only once).
type APIKeyCreateResponse struct {
	ID        string     `json:"id"`
	Key       string     `json:"key"` // Plaintext - display once only!
	Name      string     `json:"name"`
	Prefix    string     `json:"prefix"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}
