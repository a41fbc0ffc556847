package testutil

import (
	"context"
	"net/http"

	id "daofund/pkg/domain"
	"daofund/pkg/requestcontext"
)

// WithCaller stamps a caller address onto the request context, simulating
// what the auth middleware does for authenticated requests.
func WithCaller(req *http.Request, caller id.Address) *http.Request {
	return req.WithContext(requestcontext.WithCaller(req.Context(), caller))
}

// WithContextValue adds an arbitrary key-value pair to the request context.
func WithContextValue(req *http.Request, key, value any) *http.Request {
	ctx := context.WithValue(req.Context(), key, value)
	return req.WithContext(ctx)
}
