package middleware

import (
	"context"
	"net/http"
	"strings"

	tokenguard "github.com/MrEthical07/tokenguard"
)

type verifyResultContextKey struct{}

// VerifyResultFromContext returns the verification result a [Guard] stored on
// the request context.
func VerifyResultFromContext(ctx context.Context) (tokenguard.VerifyResult, bool) {
	res, ok := ctx.Value(verifyResultContextKey{}).(tokenguard.VerifyResult)
	return res, ok
}

// Guard returns middleware that rejects requests whose bearer token does not
// verify. On success the [tokenguard.VerifyResult] is injected into the
// request context for downstream handlers.
//
// Store outages surface as 503, not 401: the caller's token may be fine, the
// service just cannot prove it right now.
func Guard(engine *tokenguard.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := tokenguard.WithClientIP(r.Context(), remoteIP(r))
			ctx = tokenguard.WithUserAgent(ctx, r.UserAgent())

			res := engine.Verify(ctx, token)
			switch {
			case res.OK():
			case res.Reason == tokenguard.VerifyStoreUnavailable:
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			default:
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx = context.WithValue(ctx, verifyResultContextKey{}, res)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireScope returns middleware that, after [Guard], additionally requires
// the verified token to carry scope.
func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, ok := VerifyResultFromContext(r.Context())
			if !ok || !res.OK() || res.Claims == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			for _, s := range res.Claims.Scopes {
				if s == scope {
					next.ServeHTTP(w, r)
					return
				}
			}
			http.Error(w, "forbidden", http.StatusForbidden)
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}

func remoteIP(r *http.Request) string {
	host := r.RemoteAddr
	if i := strings.LastIndexByte(host, ':'); i > 0 {
		host = host[:i]
	}
	return strings.Trim(host, "[]")
}
