package middleware

import (
	"context"
	"net/http"
	"net/url"

	"github.com/hwlegacy/portalauth"
)

type stateContextKey struct{}

// StateFromContext returns the store state resolved by a guard.
func StateFromContext(ctx context.Context) (portalauth.State, bool) {
	st, ok := ctx.Value(stateContextKey{}).(portalauth.State)
	return st, ok
}

// RequireSession redirects visitors without a resolved user to loginPath
// (the engine's Redirect.LoginPath when empty). The original request URI is
// passed as the "next" query parameter.
func RequireSession(engine *portalauth.Engine, loginPath string) func(http.Handler) http.Handler {
	return guard(engine, func(st portalauth.State, r *http.Request) string {
		if st.User != nil {
			return ""
		}
		return withNext(pathOr(engine, loginPath, func(c portalauth.Config) string { return c.Redirect.LoginPath }), r)
	})
}

// RequireAdmin redirects anonymous visitors to the sign-in page and signed-in
// non-admins to investorPath (the engine's Redirect.InvestorPath when empty).
func RequireAdmin(engine *portalauth.Engine, investorPath string) func(http.Handler) http.Handler {
	return guard(engine, func(st portalauth.State, r *http.Request) string {
		switch {
		case st.User == nil:
			return withNext(pathOr(engine, "", func(c portalauth.Config) string { return c.Redirect.LoginPath }), r)
		case !st.IsAdmin:
			return pathOr(engine, investorPath, func(c portalauth.Config) string { return c.Redirect.InvestorPath })
		default:
			return ""
		}
	})
}

func guard(engine *portalauth.Engine, decide func(portalauth.State, *http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Redirect(w, r, "/login", http.StatusFound)
				return
			}

			store := engine.Store()
			store.Initialize(r.Context())
			st := store.State()

			if target := decide(st, r); target != "" {
				http.Redirect(w, r, target, http.StatusFound)
				return
			}

			ctx := context.WithValue(r.Context(), stateContextKey{}, st)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func pathOr(engine *portalauth.Engine, path string, fallback func(portalauth.Config) string) string {
	if path != "" {
		return path
	}
	return fallback(engine.Config())
}

func withNext(target string, r *http.Request) string {
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	q := u.Query()
	q.Set("next", r.URL.RequestURI())
	u.RawQuery = q.Encode()
	return u.String()
}
