package auth

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/BuzzLyutic/taskflow/pkg/respond"
)

// Identity — результат внешнего коллаборатора аутентификации.
// Ядро доверяет значению и самостоятельно его не перепроверяет.
type Identity struct {
	UserID int64
	Admin  bool
}

type claims struct {
	Admin bool `json:"admin,omitempty"`
	jwt.RegisteredClaims
}

type ctxKey struct{}

var errNoToken = errors.New("missing bearer token")

// ParseToken валидирует HS256 токен и извлекает владельца
func ParseToken(secret []byte, raw string) (Identity, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{"HS256"}))

	var c claims
	if _, err := parser.ParseWithClaims(raw, &c, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	}); err != nil {
		return Identity{}, err
	}

	userID, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return Identity{}, errors.New("invalid subject claim")
	}

	return Identity{UserID: userID, Admin: c.Admin}, nil
}

// NewToken выписывает токен; используется тестами и утилитами
func NewToken(secret []byte, userID int64, admin bool, ttl time.Duration) (string, error) {
	now := time.Now()
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Admin: admin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return t.SignedString(secret)
}

// Middleware кладет Identity в контекст запроса. Токен берется из
// заголовка Authorization либо из query-параметра token (для SSE,
// где браузер не шлет заголовки).
func Middleware(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := tokenFromRequest(r)
			if err != nil {
				respond.Error(w, r, http.StatusUnauthorized, err.Error())
				return
			}

			ident, err := ParseToken(secret, raw)
			if err != nil {
				respond.Error(w, r, http.StatusUnauthorized, "invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), ctxKey{}, ident)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin пускает дальше только администраторов
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ident, ok := FromContext(r.Context())
		if !ok || !ident.Admin {
			respond.Error(w, r, http.StatusForbidden, "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func FromContext(ctx context.Context) (Identity, bool) {
	ident, ok := ctx.Value(ctxKey{}).(Identity)
	return ident, ok
}

func tokenFromRequest(r *http.Request) (string, error) {
	h := r.Header.Get("Authorization")
	if h == "" {
		if token := r.URL.Query().Get("token"); token != "" {
			return token, nil
		}
		return "", errNoToken
	}

	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("bad authorization header")
	}
	return parts[1], nil
}
