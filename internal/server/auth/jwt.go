// Package auth issues and verifies the HS256 access tokens handed out on
// successful login.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dmitrijs2005/accountkeeper/internal/common"
	"github.com/dmitrijs2005/accountkeeper/internal/server/models"
)

// Claims carries the authenticated account and the capabilities of its role
// at login time. The server re-reads the account on every request, so the
// capabilities here only inform clients.
type Claims struct {
	jwt.RegisteredClaims
	AccountID    string   `json:"aid"`
	Role         string   `json:"role"`
	Capabilities []string `json:"caps,omitempty"`
}

func GenerateToken(acc *models.Account, secretKey []byte, validity time.Duration, now time.Time) (string, error) {
	caps := make([]string, len(acc.Role.Capabilities))
	for i, c := range acc.Role.Capabilities {
		caps[i] = string(c)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   acc.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validity)),
		},
		AccountID:    acc.ID,
		Role:         acc.Role.Name,
		Capabilities: caps,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return tokenString, nil
}

// GetClaimsFromToken verifies tokenString and returns its claims. Any failure,
// including expiry, is reported as common.ErrInvalidToken.
func GetClaimsFromToken(tokenString string, secretKey []byte) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}

	if !token.Valid || claims.AccountID == "" {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}
