package auth

import (
	"net/http"
	"time"

	"github.com/clasedesurf/reservations/internal/apperr"
)

// Authenticate attaches the caller's Identity to the request context.
// Requests without a token pass through anonymously and each operation
// decides whether that is enough. A token that is present but invalid is
// rejected.
func (h *AuthHandler) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 1. Bearer header, then the session cookie
		tokenString := bearerToken(r.Header.Get("Authorization"))
		if tokenString == "" {
			if cookie, err := r.Cookie(CookieName); err == nil {
				tokenString = cookie.Value
			}
		}
		if tokenString == "" {
			next.ServeHTTP(w, r)
			return
		}

		s, err := h.parse(tokenString)
		if err != nil {
			apperr.Write(w, err)
			return
		}
		if err := h.attachSchool(r.Context(), &s.identity); err != nil {
			apperr.Write(w, err)
			return
		}

		// 2. Sliding session: refresh the token once it is past half its lifetime
		duration := h.cfg.SessionDuration()
		if !s.expiresAt.IsZero() && time.Until(s.expiresAt) < duration/2 {
			newToken, err := h.GenerateToken(s.identity.UserID, s.identity.Role)
			if err == nil {
				http.SetCookie(w, &http.Cookie{
					Name:     CookieName,
					Value:    newToken,
					Expires:  time.Now().Add(duration),
					HttpOnly: true,
					Path:     "/",
				})
			}
		}

		ctx := WithIdentity(r.Context(), s.identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
