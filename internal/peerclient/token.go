package peerclient

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenTTL — срок жизни peer-токена.
const tokenTTL = 5 * time.Minute

// NewHS256TokenProvider возвращает TokenProvider, подписывающий
// короткоживущие HS256-токены общим секретом удалённого сервера.
// issuer — имя этого сервера, попадает в claims iss и в логи
// принимающей стороны.
func NewHS256TokenProvider(secret, issuer string) TokenProvider {
	key := []byte(secret)

	return func(_ context.Context) (string, error) {
		now := time.Now().UTC()
		claims := jwt.RegisteredClaims{
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		}

		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
		if err != nil {
			return "", fmt.Errorf("подпись peer-токена: %w", err)
		}
		return token, nil
	}
}
