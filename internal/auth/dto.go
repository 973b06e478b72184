package auth

import (
	"time"

	"github.com/charleshuang3/finansecure/internal/models"
)

const tokenTypeBearer = "Bearer"

type RegisterRequest struct {
	Username  string `json:"username" binding:"required"`
	Email     string `json:"email" binding:"required"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Password  string `json:"password" binding:"required"`
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required"`
}

// ClientInfo is stored with a refresh token to tell sessions apart.
type ClientInfo struct {
	UserAgent string
	IP        string
}

// AuthResponse is the envelope returned by every operation.
type AuthResponse struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	User    *UserDTO            `json:"user,omitempty"`
	Tokens  *TokenResponse      `json:"tokens,omitempty"`
	Errors  map[string][]string `json:"errors,omitempty"`

	// Revoked is the number of sessions ended by logout everywhere.
	Revoked *int64 `json:"revoked,omitempty"`
}

type TokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	// ExpiresIn is the access token lifetime in seconds.
	ExpiresIn int64  `json:"expiresIn"`
	TokenType string `json:"tokenType"`
}

type UserDTO struct {
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	FirstName   string     `json:"firstName"`
	LastName    string     `json:"lastName"`
	IsActive    bool       `json:"isActive"`
	CreatedAt   time.Time  `json:"createdAt"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
}

// SessionDTO describes a login session. The refresh token itself is never
// exposed.
type SessionDTO struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	UserAgent string    `json:"userAgent,omitempty"`
	IPAddress string    `json:"ipAddress,omitempty"`
}

func toUserDTO(u *models.User) *UserDTO {
	return &UserDTO{
		ID:          u.ID.String(),
		Username:    u.Username,
		Email:       u.Email,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		IsActive:    u.IsActive,
		CreatedAt:   u.CreatedAt,
		LastLoginAt: u.LastLoginAt,
	}
}

func toSessionDTO(t *models.RefreshToken) SessionDTO {
	return SessionDTO{
		ID:        t.ID.String(),
		CreatedAt: t.CreatedAt,
		ExpiresAt: t.ExpiresAt,
		UserAgent: t.UserAgent,
		IPAddress: t.IPAddress,
	}
}

// ErrorResponse builds the envelope for a failed operation.
func ErrorResponse(err error) *AuthResponse {
	e := AsError(err)
	return &AuthResponse{
		Success: false,
		Message: e.Message,
		Errors:  e.Fields,
	}
}
