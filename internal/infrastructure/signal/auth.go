package signal

import (
	"fmt"

	"huddle/internal/core/domain"

	"github.com/golang-jwt/jwt/v5"
)

// parseHandshakeToken validates an HS256 token presented on the websocket
// handshake and extracts the user identity. The transport treats a valid
// token as an implicit authenticate step.
func parseHandshakeToken(tokenString, secret string) (domain.UserID, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("invalid token claims")
	}

	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("token missing user_id claim")
	}

	return domain.UserID(userID), nil
}
