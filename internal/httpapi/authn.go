package httpapi

import (
	"net/http"
	"time"

	"modelgate.org/internal/audit"
	"modelgate.org/internal/auth"
)

const (
	accessCookieName  = "ACCESS_TOKEN"
	refreshCookieName = "REFRESH_TOKEN"
)

// withAuth resolves the ACCESS_TOKEN cookie to a principal. It never rejects:
// a missing, invalid or expired cookie, or a disabled account, simply leaves
// the request anonymous. Per-endpoint guards decide whether anonymous is
// acceptable.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(accessCookieName)
		if err != nil || cookie.Value == "" {
			next.ServeHTTP(w, r)
			return
		}
		principal, err := a.sessions.VerifyAccess(r.Context(), cookie.Value)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		ctx := auth.ContextWithPrincipal(r.Context(), principal)
		ctx = audit.WithUserID(ctx, principal.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireUser denies anonymous requests and returns the principal otherwise.
func (a *API) requireUser(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return auth.Principal{}, false
	}
	return principal, true
}

// requireRole additionally demands a role; missing role is 403, not 401.
func (a *API) requireRole(w http.ResponseWriter, r *http.Request, role string) (auth.Principal, bool) {
	principal, ok := a.requireUser(w, r)
	if !ok {
		return auth.Principal{}, false
	}
	if !principal.HasRole(role) {
		writeError(w, r, http.StatusForbidden, "insufficient role")
		return auth.Principal{}, false
	}
	return principal, true
}

func (a *API) setSessionCookies(w http.ResponseWriter, pair *auth.TokenPair) {
	a.setCookie(w, accessCookieName, pair.AccessToken, int(a.sessions.AccessTTL()/time.Second))
	a.setCookie(w, refreshCookieName, pair.RefreshToken, int(a.sessions.RefreshTTL()/time.Second))
}

func (a *API) clearSessionCookies(w http.ResponseWriter) {
	a.setCookie(w, accessCookieName, "", -1)
	a.setCookie(w, refreshCookieName, "", -1)
}

func (a *API) setCookie(w http.ResponseWriter, name, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   a.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func refreshTokenFromRequest(r *http.Request) string {
	cookie, err := r.Cookie(refreshCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}
