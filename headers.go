package usersync

import "context"

type headersContextKey struct{}

// WithHeaders attaches request headers to ctx so every remote call made
// during this context's lifetime carries them (spec.md §6, "Headers":
// caller-injected headers apply to every remote call made during a
// single sync invocation and are cleared afterward — modeled here as
// simply not outliving the context they were attached to).
func WithHeaders(ctx context.Context, headers map[string]string) context.Context {
	if len(headers) == 0 {
		return ctx
	}
	return context.WithValue(ctx, headersContextKey{}, headers)
}

// HeadersFromContext returns the headers attached by WithHeaders, if any.
// RemoteStore implementations call this to decide which headers to send.
func HeadersFromContext(ctx context.Context) map[string]string {
	headers, _ := ctx.Value(headersContextKey{}).(map[string]string)
	return headers
}
