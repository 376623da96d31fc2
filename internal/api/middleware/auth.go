// auth.go — JWT middleware для аутентификации удалённых серверов.
// Входящие запросы синхронизации подписываются удалённой стороной HS256-токеном
// с общим секретом (SM_PEER_JWT_SECRET). Issuer токена — имя сервера-отправителя,
// помещается в контекст для логирования и диагностики.
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apierrors "github.com/bigkaa/gojournal/sync-module/internal/api/errors"
)

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

const (
	// ContextKeyPeer — имя удалённого сервера (issuer токена) в контексте запроса.
	ContextKeyPeer contextKey = "peer_server"
)

// PeerAuth — middleware аутентификации входящих запросов от удалённых серверов.
type PeerAuth struct {
	secret []byte
	leeway time.Duration
	logger *slog.Logger
}

// NewPeerAuth создаёт middleware проверки HS256-токенов удалённых серверов.
// secret — общий секрет, leeway — допустимое отклонение времени при проверке exp/iat.
func NewPeerAuth(secret string, leeway time.Duration, logger *slog.Logger) *PeerAuth {
	return &PeerAuth{
		secret: []byte(secret),
		leeway: leeway,
		logger: logger.With(slog.String("component", "peer_auth")),
	}
}

// Middleware возвращает HTTP middleware для проверки Bearer-токена.
// Извлекает Bearer token, валидирует подпись (HS256), проверяет exp
// и помещает issuer в контекст запроса.
func (p *PeerAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				apierrors.Unauthorized(w, "Отсутствует заголовок Authorization")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				apierrors.Unauthorized(w, "Неверный формат Authorization: ожидается Bearer <token>")
				return
			}

			tokenString := parts[1]
			if tokenString == "" {
				apierrors.Unauthorized(w, "Пустой Bearer token")
				return
			}

			claims := &jwt.RegisteredClaims{}
			token, err := jwt.ParseWithClaims(tokenString, claims,
				func(t *jwt.Token) (any, error) {
					if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
						return nil, fmt.Errorf("неожиданный метод подписи: %v", t.Header["alg"])
					}
					return p.secret, nil
				},
				jwt.WithValidMethods([]string{"HS256"}),
				jwt.WithExpirationRequired(),
				jwt.WithLeeway(p.leeway),
			)
			if err != nil {
				p.logger.Debug("JWT валидация не пройдена",
					slog.String("error", err.Error()),
					slog.String("remote_addr", r.RemoteAddr),
				)
				apierrors.Unauthorized(w, "Невалидный или просроченный токен")
				return
			}

			if !token.Valid {
				apierrors.Unauthorized(w, "Невалидный токен")
				return
			}

			if claims.Issuer == "" {
				apierrors.Unauthorized(w, "Отсутствует iss в токене")
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyPeer, claims.Issuer)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PeerFromContext извлекает имя удалённого сервера из контекста запроса.
// Возвращает пустую строку, если запрос не прошёл через PeerAuth.
func PeerFromContext(ctx context.Context) string {
	peer, _ := ctx.Value(ContextKeyPeer).(string)
	return peer
}
