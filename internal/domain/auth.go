package domain

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Principal — аутентифицированный оператор. Ядро использует его только
// как факт "кто вызывает" на мутирующих эндпоинтах.
type Principal struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type CustomClaims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Secure Token Issuing
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type TokenResponse struct {
	AccessToken string     `json:"access_token"`
	TokenType   string     `json:"token_type"` // Всегда "Bearer"
	ExpiresIn   int64      `json:"expires_in"`
	User        *Principal `json:"user"`
}

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"` // Никогда не отправляем на фронт
	CreatedAt    time.Time `json:"created_at"`
}
