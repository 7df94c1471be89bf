package httputil

import (
	"context"
	"net/http"

	"github.com/alex65536/tourney/internal/util/idgen"
)

type reqIDKey struct{}

func WrapRequestContext(parent context.Context) context.Context {
	return context.WithValue(parent, reqIDKey{}, idgen.ID())
}

func WrapRequest(req *http.Request) *http.Request {
	return req.WithContext(WrapRequestContext(req.Context()))
}

// WithRequestID is a middleware that assigns every request an ID and echoes it back in the
// X-Request-Id header.
func WithRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		req = WrapRequest(req)
		w.Header().Set("X-Request-Id", ExtractReqID(req.Context()))
		next.ServeHTTP(w, req)
	})
}

func ExtractReqID(ctx context.Context) string {
	val := ctx.Value(reqIDKey{})
	if val == nil {
		return ""
	}
	if s, ok := val.(string); ok {
		return s
	}
	return ""
}
