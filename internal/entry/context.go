package entry

import "context"

type correlationKey struct{}

// ContextWithCorrelationID returns a context carrying id, so work done
// on behalf of one operation can stamp every entry it produces.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationIDFromContext returns the correlation id carried by ctx,
// or the empty string when none is set.
func CorrelationIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}
