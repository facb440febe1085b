package jwt

import "github.com/golang-jwt/jwt/v5"

// CustomClaims описывает данные, хранящиеся в токене мини-приложения:
// идентификатор пользователя платформы.
type CustomClaims struct {
	IdentityID           int64 `json:"identity_id"` // Идентификатор пользователя
	jwt.RegisteredClaims       // Встроенные стандартные claims JWT (ExpiresAt, IssuedAt и пр.)
}
