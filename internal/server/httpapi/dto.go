package httpapi

import (
	"time"

	"github.com/dmitrijs2005/accountkeeper/internal/server/models"
)

type accountResponse struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Email            string     `json:"email"`
	RoleID           int64      `json:"role_id"`
	Role             string     `json:"role"`
	Active           bool       `json:"active"`
	FailedLoginCount int        `json:"failed_login_count"`
	LockedUntil      *time.Time `json:"locked_until,omitempty"`
	LastAccessAt     *time.Time `json:"last_access_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func toAccountResponse(a *models.Account) accountResponse {
	return accountResponse{
		ID:               a.ID,
		Name:             a.Name,
		Email:            a.Email,
		RoleID:           a.RoleID,
		Role:             a.Role.Name,
		Active:           a.Active,
		FailedLoginCount: a.FailedLoginCount,
		LockedUntil:      a.LockedUntil,
		LastAccessAt:     a.LastAccessAt,
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
	}
}

func toAccountList(list []models.Account) []accountResponse {
	out := make([]accountResponse, len(list))
	for i := range list {
		out[i] = toAccountResponse(&list[i])
	}
	return out
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string          `json:"access_token"`
	TokenType   string          `json:"token_type"`
	ExpiresAt   time.Time       `json:"expires_at"`
	Account     accountResponse `json:"account"`
}

type resetRequest struct {
	Email string `json:"email"`
}

type resetConfirmRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

type tokenValidityResponse struct {
	Valid bool `json:"valid"`
}

type createAccountRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	RoleID   int64  `json:"role_id"`
}

type updateAccountRequest struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	RoleID int64  `json:"role_id"`
}

type statusRequest struct {
	Active *bool `json:"active"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type exportResponse struct {
	URL string `json:"url"`
}
