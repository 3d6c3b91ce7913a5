package api

import (
	"net"
	"net/http"
	"strings"
	"time"

	"brokeradmin/core"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const limiterIdleTTL = time.Hour

func (a *API) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := getRealIP(r, a.config.API.TrustProxy)
		a.rateLimitersMu.Lock()
		entry, exists := a.rateLimiters[ip]
		if !exists {
			entry = &rateLimiterEntry{
				limiter: rate.NewLimiter(rate.Limit(a.config.API.RateLimit.RequestsPerSecond), a.config.API.RateLimit.Burst),
			}
			a.rateLimiters[ip] = entry
		}
		entry.lastSeen = time.Now()
		// Capture the limiter under the lock; cleanup may drop the entry.
		limiter := entry.limiter
		a.rateLimitersMu.Unlock()

		if !limiter.Allow() {
			a.writeStatus(w, http.StatusTooManyRequests, "TOO_MANY_REQUESTS", "Too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) cleanupRateLimiters() {
	ticker := time.NewTicker(limiterIdleTTL)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			a.pruneRateLimiters(time.Now())
		case <-a.stopCh:
			return
		}
	}
}

func (a *API) pruneRateLimiters(now time.Time) {
	a.rateLimitersMu.Lock()
	defer a.rateLimitersMu.Unlock()
	for ip, entry := range a.rateLimiters {
		if now.Sub(entry.lastSeen) > limiterIdleTTL {
			delete(a.rateLimiters, ip)
		}
	}
}

func (a *API) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		for _, allowed := range a.config.API.AllowedOrigins {
			if origin == allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
				break
			}
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		w.Header().Set("Access-Control-Allow-Credentials", "true")

		if a.config.API.TLS {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		next.ServeHTTP(w, r)
	})
}

// jwtAuthMiddleware accepts "Authorization: Bearer <token>". Websocket upgrades may
// pass the token as ?token= instead.
func (a *API) jwtAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" && websocket.IsWebSocketUpgrade(r) {
			token = r.URL.Query().Get("token")
		}
		if token == "" {
			a.writeStatus(w, http.StatusUnauthorized, "AUTHENTICATION", "Authentication failed")
			return
		}

		claims, err := a.svc.TokenParser.ParseAccessToken(token)
		if err != nil {
			a.requestLogger(r).Debugw("Rejected access token", "error", err)
			a.writeStatus(w, http.StatusUnauthorized, "JWT_TOKEN_EXPIRED", "Token has expired or is invalid")
			return
		}
		if !claims.Enabled {
			a.writeStatus(w, http.StatusUnauthorized, "AUTHENTICATION", "User account is not active")
			return
		}
		userID, err := uuid.Parse(claims.UserID)
		if err != nil {
			a.writeStatus(w, http.StatusUnauthorized, "AUTHENTICATION", "Authentication failed")
			return
		}

		ctx := withPrincipal(r.Context(), userID, claims.Subject, claims.Authority)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireSysAdmin must run after jwtAuthMiddleware.
func (a *API) requireSysAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authority, _ := GetAuthority(r.Context())
		if core.Authority(authority) != core.AuthoritySysAdmin {
			a.writeError(w, r, core.NewPermissionDeniedError(permissionDeniedMessage))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// getRealIP honours X-Forwarded-For and X-Real-IP only when proxies are trusted.
func getRealIP(r *http.Request, trustProxy bool) string {
	directIP, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		directIP = r.RemoteAddr
	}
	if !trustProxy {
		return directIP
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if net.ParseIP(first) != nil {
			return first
		}
	}
	if xri := r.Header.Get("X-Real-IP"); net.ParseIP(xri) != nil {
		return xri
	}
	return directIP
}
