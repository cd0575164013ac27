package shield

import (
	"net/http"
	"strings"

	"github.com/hazyhaar/encart/policy"
)

// HeaderConfig defines the security headers applied to every response.
type HeaderConfig struct {
	CSP                 string
	XFrameOptions       string
	XContentTypeOptions string
	ReferrerPolicy      string
	PermissionsPolicy   string
}

// HeadersForPolicy builds the header configuration for a site that
// injects third-party ad and analytics scripts: the CSP script-src is
// derived from the same trusted-domain allow-list the sanitizer uses,
// so the HTTP layer and the admission pipeline cannot disagree about
// which origins may execute.
func HeadersForPolicy(pol *policy.Policy) HeaderConfig {
	srcs := make([]string, 0, len(pol.TrustedDomains)+2)
	srcs = append(srcs, "'self'")
	for _, d := range pol.TrustedDomains {
		srcs = append(srcs, "https://"+d, "https://*."+d)
	}
	return HeaderConfig{
		CSP: "default-src 'self'; script-src " + strings.Join(srcs, " ") +
			"; style-src 'self' 'unsafe-inline'; img-src 'self' data: https:; frame-ancestors 'none'",
		XFrameOptions:       "DENY",
		XContentTypeOptions: "nosniff",
		ReferrerPolicy:      "strict-origin-when-cross-origin",
		PermissionsPolicy:   "camera=(), microphone=(), geolocation=()",
	}
}

// SecurityHeaders returns middleware that sets the configured security
// headers on every response.
func SecurityHeaders(cfg HeaderConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.XContentTypeOptions != "" {
				w.Header().Set("X-Content-Type-Options", cfg.XContentTypeOptions)
			}
			if cfg.XFrameOptions != "" {
				w.Header().Set("X-Frame-Options", cfg.XFrameOptions)
			}
			if cfg.ReferrerPolicy != "" {
				w.Header().Set("Referrer-Policy", cfg.ReferrerPolicy)
			}
			if cfg.CSP != "" {
				w.Header().Set("Content-Security-Policy", cfg.CSP)
			}
			if cfg.PermissionsPolicy != "" {
				w.Header().Set("Permissions-Policy", cfg.PermissionsPolicy)
			}
			next.ServeHTTP(w, r)
		})
	}
}
