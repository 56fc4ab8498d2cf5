// Package middleware содержит HTTP middleware аукционного сервиса.
package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"
)

type contextKey string

const userIDKey contextKey = "userID"

const (
	authCookieName = "auth_token"
	authCookieTTL  = 30 * 24 * time.Hour
)

// AuthMiddleware проверяет подписанный cookie с идентификатором пользователя.
// Формат значения: "<userID>.<unix-срок>.<hex HMAC-SHA256>".
type AuthMiddleware struct {
	secretKey []byte
	now       func() time.Time
}

// NewAuthMiddleware создаёт AuthMiddleware. Пустой секрет заменяется случайным ключом,
// тогда cookie не переживают перезапуск.
func NewAuthMiddleware(secret string) *AuthMiddleware {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			panic("auth: read random key: " + err.Error())
		}
	}

	return &AuthMiddleware{
		secretKey: key,
		now:       time.Now,
	}
}

// RequireUser пропускает запрос дальше только с действительным cookie и кладёт
// идентификатор пользователя в контекст.
func (a *AuthMiddleware) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(authCookieName)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		userID, ok := a.parseToken(cookie.Value)
		if !ok {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}

// SetAuthCookie выдаёт cookie авторизации пользователю userID.
func (a *AuthMiddleware) SetAuthCookie(w http.ResponseWriter, userID int64) {
	expires := a.now().Add(authCookieTTL)

	http.SetCookie(w, &http.Cookie{
		Name:     authCookieName,
		Value:    a.token(userID, expires),
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *AuthMiddleware) token(userID int64, expires time.Time) string {
	payload := strconv.FormatInt(userID, 10) + "." + strconv.FormatInt(expires.Unix(), 10)
	return payload + "." + a.sign(payload)
}

func (a *AuthMiddleware) sign(payload string) string {
	mac := hmac.New(sha256.New, a.secretKey)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func (a *AuthMiddleware) parseToken(value string) (int64, bool) {
	parts := strings.Split(value, ".")
	if len(parts) != 3 {
		return 0, false
	}

	payload := parts[0] + "." + parts[1]
	if !hmac.Equal([]byte(parts[2]), []byte(a.sign(payload))) {
		return 0, false
	}

	expires, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || a.now().Unix() >= expires {
		return 0, false
	}

	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}

	return id, true
}

// WithUserID кладёт идентификатор пользователя в контекст.
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// GetUserIDFromContext извлекает идентификатор пользователя из контекста запроса.
func GetUserIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDKey).(int64)
	return id, ok
}
