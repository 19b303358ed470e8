package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/pairmint/pairmint"
)

type authResultContextKey struct{}

func AuthResultFromContext(ctx context.Context) (*pairmint.AuthResult, bool) {
	res, ok := ctx.Value(authResultContextKey{}).(*pairmint.AuthResult)
	return res, ok
}

// Guard rejects requests whose Authorization header does not carry a
// verifiable, unexpired bearer access token. On success the AuthResult is
// available to downstream handlers via AuthResultFromContext.
func Guard(engine *pairmint.Engine) func(http.Handler) http.Handler {
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

			res, err := engine.Verify(r.Context(), token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), authResultContextKey{}, res)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithRequestIP copies the request's remote IP into the context so audit
// events emitted during the request carry it. Wrap it outside Guard.
func WithRequestIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		next.ServeHTTP(w, r.WithContext(pairmint.WithClientIP(r.Context(), host)))
	})
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
