package httpapi

import (
	"net/http"
	"net/url"
	"strings"
)

// gatekeeper redirects obviously-unauthenticated browsers away from protected
// page routes. It only checks that the session cookie exists; it never parses
// or verifies the token. This is a UX shortcut, not a security boundary: the
// API calls behind every page re-verify the bearer token properly.
func (a *API) gatekeeper(next http.Handler) http.Handler {
	if len(a.opts.PagePrefixes) == 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.isPageRoute(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		if _, err := r.Cookie(a.opts.SessionCookie); err != nil {
			// Carry the original destination so login can send them back.
			target := a.opts.LoginPath + "?from=" + url.QueryEscape(r.URL.RequestURI())
			http.Redirect(w, r, target, http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) isPageRoute(path string) bool {
	for _, prefix := range a.opts.PagePrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
