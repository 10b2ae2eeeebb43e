package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"ContractHub/pkg/logger"

	"github.com/go-chi/chi/v5/middleware"
)

const bearerPrefix = "Bearer "

// authenticate 校验 Bearer 令牌，并为每个请求写一条审计日志。
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token == "" {
			next.ServeHTTP(w, r)
			return
		}
		audit := logger.Audit()

		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, bearerPrefix) ||
			subtle.ConstantTimeCompare([]byte(strings.TrimPrefix(header, bearerPrefix)), []byte(s.token)) != 1 {
			status := http.StatusUnauthorized
			writeJSON(w, status, errorResponse{Code: "UNAUTHORIZED", Message: http.StatusText(status)})
			audit.Warn("access_denied",
				"path", r.URL.Path,
				"method", r.Method,
				"status", status,
				"request_id", middleware.GetReqID(r.Context()),
			)
			return
		}

		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		audit.Info("api_request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
