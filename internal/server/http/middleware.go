package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/lostfound/internal/common"
	"github.com/dmitrijs2005/lostfound/internal/server/models"
	"github.com/google/uuid"
)

type ctxKey string

const (
	ctxKeyRequestID ctxKey = "request_id"
	ctxKeyAccount   ctxKey = "account"
)

const (
	msgNoToken          = "No token, authorization denied"
	msgTokenExpired     = "Token has expired"
	msgTokenInvalid     = "Token is not valid"
	msgSubjectNotFound  = "Token is not valid (user not found)"
	msgTooManyRequests  = "Too many requests, please try again later"
	requestIDHeaderName = "X-Request-Id"
)

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(requestIDHeaderName)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set(requestIDHeaderName, reqID)
		ctx := context.WithValue(r.Context(), ctxKeyRequestID, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestIDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(ctxKeyRequestID).(string); ok {
		return s
	}
	return ""
}

func (h *Handler) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				h.writeError(w, r, "http_panic_recovery", http.StatusInternalServerError, msgServerError, fmt.Errorf("panic: %v", rec))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// statusRecorder remembers the status and size of a response, and whether the
// header has been committed.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	bytes      int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	if r.statusCode != 0 {
		return
	}
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *statusRecorder) Write(payload []byte) (int, error) {
	if r.statusCode == 0 {
		r.statusCode = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(payload)
	r.bytes += n
	return n, err
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

func (r *statusRecorder) Committed() bool { return r.statusCode != 0 }

func committed(w http.ResponseWriter) bool {
	c, ok := w.(interface{ Committed() bool })
	return ok && c.Committed()
}

func (h *Handler) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(recorder, r)

		statusCode := recorder.statusCode
		if statusCode == 0 {
			statusCode = http.StatusOK
		}
		fields := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status_code", statusCode,
			"bytes", recorder.bytes,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", requestIDFromContext(r.Context()),
		}
		switch {
		case statusCode >= 500:
			h.logger.Error(r.Context(), "http request completed", fields...)
		case statusCode >= 400:
			h.logger.Warn(r.Context(), "http request completed", fields...)
		default:
			h.logger.Info(r.Context(), "http request completed", fields...)
		}
	})
}

// corsMiddleware admits credentialed requests from the frontend origin only.
func corsMiddleware(origin string) func(http.Handler) http.Handler {
	origin = strings.TrimRight(origin, "/")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if origin != "" && r.Header.Get("Origin") == origin {
				hdr := w.Header()
				hdr.Set("Access-Control-Allow-Origin", origin)
				hdr.Set("Access-Control-Allow-Credentials", "true")
				hdr.Add("Vary", "Origin")
				if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
					hdr.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
					hdr.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+common.AccessTokenHeaderName)
					w.WriteHeader(http.StatusNoContent)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// authMiddleware admits requests carrying a valid session token and attaches
// the subject account, without its password hash, to the request context.
func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := tokenFromRequest(r)
		if token == "" {
			h.writeError(w, r, "authenticate", http.StatusUnauthorized, msgNoToken, common.ErrUnauthenticated)
			return
		}

		account, err := h.identity.Authenticate(r.Context(), token)
		if err != nil {
			if !errors.Is(err, common.ErrUnauthenticated) {
				h.writeMappedError(w, r, "authenticate", err)
				return
			}
			h.writeError(w, r, "authenticate", http.StatusUnauthorized, authFailureMessage(err), err)
			return
		}

		subject := *account
		subject.PasswordHash = nil
		ctx := context.WithValue(r.Context(), ctxKeyAccount, &subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func authFailureMessage(err error) string {
	switch {
	case errors.Is(err, common.ErrTokenExpired):
		return msgTokenExpired
	case errors.Is(err, common.ErrorNotFound):
		return msgSubjectNotFound
	default:
		return msgTokenInvalid
	}
}

// tokenFromRequest reads the raw token header, falling back to a bearer
// Authorization header.
func tokenFromRequest(r *http.Request) string {
	if token := strings.TrimSpace(r.Header.Get(common.AccessTokenHeaderName)); token != "" {
		return token
	}
	token, err := bearerTokenFromHeader(r.Header.Get("Authorization"))
	if err != nil {
		return ""
	}
	return token
}

func bearerTokenFromHeader(header string) (string, error) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", errors.New("missing bearer token")
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func accountFromContext(ctx context.Context) (*models.Account, bool) {
	account, ok := ctx.Value(ctxKeyAccount).(*models.Account)
	return account, ok && account != nil
}

func (h *Handler) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.limiter != nil && !h.limiter.allow(clientIP(r)) {
			w.Header().Set("Retry-After", "1")
			h.writeError(w, r, "rate_limit", http.StatusTooManyRequests, msgTooManyRequests, nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
