package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"rentledger/utils"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const (
	subjectKey contextKey = "subject"
	roleKey    contextKey = "role"
)

// loggingResponseWriter запоминает код ответа и число записанных байт для журнала запросов
type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
	size       int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	n, err := lrw.ResponseWriter.Write(b)
	lrw.size += n
	return n, err
}

// LoggingMiddleware логирует запрос и учитывает его в метриках.
// Тело ответа не логируется: выгрузки могут быть большими.
func LoggingMiddleware(metrics *utils.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			lrw := &loggingResponseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(lrw, r)

			duration := time.Since(start)
			if metrics != nil {
				metrics.RecordRequest(duration, lrw.statusCode >= http.StatusInternalServerError)
			}
			utils.LogInfo(
				"Method: %s, Path: %s, Status: %d, Size: %d, Duration: %v",
				r.Method,
				r.URL.Path,
				lrw.statusCode,
				lrw.size,
				duration,
			)
		})
	}
}

// AuthMiddleware проверяет JWT токен (HS256) и кладёт subject и role в контекст.
// Токены выпускаются внешним сервисом, здесь выполняется только проверка.
func AuthMiddleware(jwtKey []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := r.Header.Get("Authorization")
			if tokenString == "" {
				http.Error(w, "Authorization header is required", http.StatusUnauthorized)
				return
			}
			tokenString = strings.TrimPrefix(tokenString, "Bearer ")

			token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
				}
				return jwtKey, nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
			if err != nil || !token.Valid {
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				http.Error(w, "Invalid token claims", http.StatusUnauthorized)
				return
			}
			subject, err := claims.GetSubject()
			if err != nil || subject == "" {
				http.Error(w, "Invalid subject in token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), subjectKey, subject)
			if role, ok := claims["role"].(string); ok {
				ctx = context.WithValue(ctx, roleKey, role)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetSubjectFromContext получает subject и role токена, положенные AuthMiddleware.
// Роль пустая, если токен её не содержит. Без AuthMiddleware возвращается ошибка.
func GetSubjectFromContext(r *http.Request) (string, string, error) {
	subject, ok := r.Context().Value(subjectKey).(string)
	if !ok {
		return "", "", fmt.Errorf("subject не найден в контексте запроса")
	}
	role, _ := r.Context().Value(roleKey).(string)
	return subject, role, nil
}
